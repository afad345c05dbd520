package models

import (
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/fields"
)

// TemplateConfig binds one event to one template image and its fields.
// There is at most one per event.
type TemplateConfig struct {
	ID        string        `json:"id"`
	EventID   string        `json:"eventId"`
	ImagePath string        `json:"imagePath"`
	Fields    fields.Set    `json:"validFields"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Event     *EventSummary `json:"event,omitempty"`
}

// HasRank reports whether the template has a place to print a rank.
func (c *TemplateConfig) HasRank() bool {
	return c.Fields.Has(fields.Rank)
}
