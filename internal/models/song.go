package models

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/salineros/internal/shared"
	"github.com/go-playground/validator/v10"
)

// Song is one catalog item.
//
// Melody and Audio are optional free-form descriptions; empty means absent.
type Song struct {
	ID        string    `json:"id"`
	Title     string    `json:"title" validate:"required,min=2,max=100"`
	Lyrics    string    `json:"lyrics" validate:"required,min=10,max=10000"`
	Chords    string    `json:"chords" validate:"max=5000"`
	Melody    string    `json:"melody,omitempty" validate:"max=5000"`
	Audio     string    `json:"audio,omitempty" validate:"max=2048"`
	Tags      []string  `json:"tags" validate:"max=10,dive,required,max=20"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func songValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Normalize trims the title and tags and drops empty or case-insensitively duplicated tags.
func (s *Song) Normalize() {
	s.Title = strings.TrimSpace(s.Title)

	seen := make(map[string]struct{}, len(s.Tags))
	tags := make([]string, 0, len(s.Tags))
	for _, tag := range s.Tags {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}
	s.Tags = tags
}

// Validate normalizes the song and checks its schema constraints.
//
// Failures are returned as [*shared.ValidationError].
func (s *Song) Validate() error {
	s.Normalize()

	err := songValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &shared.ValidationError{Fields: []shared.FieldError{{Field: "song", Rule: err.Error()}}}
	}

	fields := make([]shared.FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = shared.FieldError{Field: fe.Namespace(), Rule: fe.Tag(), Param: fe.Param()}
		if idx := strings.IndexByte(fields[i].Field, '.'); idx >= 0 {
			fields[i].Field = fields[i].Field[idx+1:]
		}
	}
	return &shared.ValidationError{Fields: fields}
}

// Clone returns a deep copy of s.
func (s *Song) Clone() *Song {
	if s == nil {
		return nil
	}
	c := *s
	c.Tags = append([]string(nil), s.Tags...)
	return &c
}

// IsLocal reports whether the song still carries a placeholder id.
func (s *Song) IsLocal() bool {
	return shared.IsLocalID(s.ID)
}

// HasTag reports whether the song carries tag, ignoring case.
func (s *Song) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Matches reports whether the lower-cased term occurs in the title, lyrics, chords or any tag.
func (s *Song) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}

	if strings.Contains(strings.ToLower(s.Title), term) ||
		strings.Contains(strings.ToLower(s.Lyrics), term) ||
		strings.Contains(strings.ToLower(s.Chords), term) {
		return true
	}

	for _, tag := range s.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// Touch sets UpdatedAt (and CreatedAt when unset) to now.
func (s *Song) Touch(now time.Time) {
	now = now.UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

// SameContent reports whether s and other carry the same user-editable fields. Ids and timestamps are ignored.
func (s *Song) SameContent(other *Song) bool {
	if other == nil {
		return false
	}
	return s.Title == other.Title &&
		s.Lyrics == other.Lyrics &&
		s.Chords == other.Chords &&
		s.Melody == other.Melody &&
		s.Audio == other.Audio &&
		slices.Equal(s.Tags, other.Tags)
}
