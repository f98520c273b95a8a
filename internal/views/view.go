// Package views implements the saved-view query engine: a pure filter/sort
// pipeline over the live document collection. A view is a value object
// holding filter predicates and a single-key sort, with no derived state
// and no identity beyond its configuration.
package views

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/laguz/internal/models"
)

// SortKey selects the single sort dimension of a view.
type SortKey string

const (
	SortTitle    SortKey = "title"
	SortUpdated  SortKey = "updated"
	SortDue      SortKey = "due"
	SortPriority SortKey = "priority"
	SortStatus   SortKey = "status"
	SortType     SortKey = "type"
	SortPath     SortKey = "path"
)

// DueFilter constrains the due-date property. From/To are inclusive
// YYYY-MM-DD bounds; either may be empty. AllowMissing controls whether
// entities without a due date pass at all: when false they are excluded,
// when true they are included regardless of the range bounds.
type DueFilter struct {
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	AllowMissing bool   `json:"allow_missing"`
}

// View is a saved-view specification.
type View struct {
	Type              models.DocType    `json:"type,omitempty"` // empty means any
	Tags              []string          `json:"tags,omitempty"`
	Statuses          []models.Status   `json:"statuses,omitempty"`
	Priorities        []models.Priority `json:"priorities,omitempty"`
	FavoriteOnly      bool              `json:"favorite_only,omitempty"`
	AncestorID        string            `json:"ancestor_id,omitempty"`
	PathContains      string            `json:"path_contains,omitempty"`
	Due               *DueFilter        `json:"due,omitempty"`
	UpdatedWithinDays int               `json:"updated_within_days,omitempty"`
	Text              string            `json:"text,omitempty"`

	SortKey  SortKey `json:"sort_key,omitempty"`
	SortDesc bool    `json:"sort_desc,omitempty"`
}

// Validate checks the view specification.
func (v View) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Type, validation.In(models.DocTypeNote, models.DocTypeFolder)),
		validation.Field(&v.SortKey, validation.In(
			SortTitle, SortUpdated, SortDue, SortPriority, SortStatus, SortType, SortPath)),
		validation.Field(&v.UpdatedWithinDays, validation.Min(0)),
	)
}

// PathResolver maps an entity id to its materialized hierarchical path
// text. The cache is maintained elsewhere; the engine only reads it.
type PathResolver interface {
	Path(id string) string
}

// PathFunc adapts a function to PathResolver.
type PathFunc func(id string) string

// Path implements PathResolver.
func (f PathFunc) Path(id string) string { return f(id) }
