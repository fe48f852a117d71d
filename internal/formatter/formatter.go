// package formatter renders the song catalog to export formats (JSON document, CSV, Markdown, plain text)
// and reads JSON exports back.
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/salineros/internal/models"
	"github.com/desertthunder/salineros/internal/shared"
)

// Format is an export file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// ParseFormat accepts a format name or common alias.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, name)
	}
}

// Extension returns the file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	case FormatText:
		return ".txt"
	default:
		return ".json"
	}
}

// ExportToJSON renders the export document, indented.
func ExportToJSON(doc *models.ExportDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseExport decodes a JSON export.
//
// A bare array of songs is accepted as a version 1 document.
func ParseExport(data []byte) (*models.ExportDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty export", shared.ErrInvalidArgument)
	}

	if trimmed[0] == '[' {
		var songs []models.Song
		if err := json.Unmarshal(trimmed, &songs); err != nil {
			return nil, fmt.Errorf("%w: failed to parse songs: %w", shared.ErrInvalidArgument, err)
		}
		return &models.ExportDocument{Version: models.ExportVersion, Songs: songs}, nil
	}

	var doc models.ExportDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse export: %w", shared.ErrInvalidArgument, err)
	}
	if err := doc.CheckVersion(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ExportToCSV converts songs to CSV with columns: ID, Title, Tags, Chords, Lyrics, Melody, Audio, UpdatedAt
//
// Tags are joined with ";".
func ExportToCSV(songs []*models.Song) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Tags", "Chords", "Lyrics", "Melody", "Audio", "UpdatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, song := range songs {
		record := []string{
			song.ID,
			song.Title,
			strings.Join(song.Tags, ";"),
			song.Chords,
			song.Lyrics,
			song.Melody,
			song.Audio,
			song.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a songbook: one section per song with tags, chords and lyrics.
func ExportToMarkdown(songs []*models.Song, title string) ([]byte, error) {
	var buf bytes.Buffer

	if title == "" {
		title = "Cancionero"
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Songs**: %d\n\n", len(songs))

	for _, song := range songs {
		fmt.Fprintf(&buf, "## %s\n\n", song.Title)

		if len(song.Tags) > 0 {
			fmt.Fprintf(&buf, "**Tags**: %s\n\n", strings.Join(song.Tags, ", "))
		}
		if song.Melody != "" {
			fmt.Fprintf(&buf, "**Melody**: %s\n\n", song.Melody)
		}
		if song.Audio != "" {
			fmt.Fprintf(&buf, "**Audio**: %s\n\n", song.Audio)
		}
		if song.Chords != "" {
			fmt.Fprintf(&buf, "### Chords\n\n```\n%s\n```\n\n", strings.TrimRight(song.Chords, "\n"))
		}

		fmt.Fprintf(&buf, "### Lyrics\n\n```\n%s\n```\n\n", strings.TrimRight(song.Lyrics, "\n"))
	}

	return buf.Bytes(), nil
}

// ExportToText converts songs to a plain numbered list
func ExportToText(songs []*models.Song) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Songs: %d\n\n", len(songs))
	for i, song := range songs {
		if len(song.Tags) > 0 {
			fmt.Fprintf(&buf, "%d. %s [%s]\n", i+1, song.Title, strings.Join(song.Tags, ", "))
			continue
		}
		fmt.Fprintf(&buf, "%d. %s\n", i+1, song.Title)
	}

	return buf.Bytes(), nil
}

// Export renders songs in format. now stamps JSON documents.
func Export(format Format, songs []*models.Song, now time.Time) ([]byte, error) {
	switch format {
	case FormatJSON:
		return ExportToJSON(models.NewExportDocument(songs, now))
	case FormatCSV:
		return ExportToCSV(songs)
	case FormatMarkdown:
		return ExportToMarkdown(songs, "")
	case FormatText:
		return ExportToText(songs)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteExport renders songs and writes them to path.
//
// Defaults to salineros_export_{epoch} with the format's extension.
func WriteExport(path string, format Format, songs []*models.Song, now time.Time) (string, error) {
	if path == "" {
		path = fmt.Sprintf("salineros_export_%d%s", now.Unix(), format.Extension())
	}

	data, err := Export(format, songs, now)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

// ReadExport loads a JSON export from path.
func ReadExport(path string) (*models.ExportDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export file: %w", err)
	}
	return ParseExport(data)
}
