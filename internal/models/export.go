package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/salineros/internal/shared"
)

// ExportVersion is the current [ExportDocument] format version.
const ExportVersion = 1

// ExportDocument is the import/export JSON document.
type ExportDocument struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Songs      []Song    `json:"songs"`
}

// NewExportDocument snapshots songs into a document stamped with now.
func NewExportDocument(songs []*Song, now time.Time) *ExportDocument {
	doc := &ExportDocument{Version: ExportVersion, ExportedAt: now.UTC(), Songs: make([]Song, 0, len(songs))}
	for _, s := range songs {
		doc.Songs = append(doc.Songs, *s.Clone())
	}
	return doc
}

// CheckVersion rejects documents written by an unknown format version.
func (d *ExportDocument) CheckVersion() error {
	if d.Version < 1 || d.Version > ExportVersion {
		return fmt.Errorf("%w: unsupported export version %d", shared.ErrInvalidArgument, d.Version)
	}
	return nil
}

// Validate checks the version and every song in the document.
func (d *ExportDocument) Validate() error {
	if err := d.CheckVersion(); err != nil {
		return err
	}
	for i := range d.Songs {
		if err := d.Songs[i].Validate(); err != nil {
			return fmt.Errorf("song %d (%q): %w", i, d.Songs[i].Title, err)
		}
	}
	return nil
}
