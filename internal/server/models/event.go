// Package models defines server-side data models persisted in the database.
package models

import "time"

// Event is the occasion certificates are issued for. Only the attributes the
// certificate pipeline reads are modelled.
type Event struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Organisation string    `json:"organisation"`
	IssuerName   string    `json:"issuerName"`
	Date         time.Time `json:"date"`
	CreatedBy    string    `json:"createdBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EventSummary is embedded in config responses.
type EventSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Organisation string    `json:"organisation"`
	Date         time.Time `json:"date"`
}

func (e *Event) Summary() *EventSummary {
	return &EventSummary{ID: e.ID, Name: e.Name, Organisation: e.Organisation, Date: e.Date}
}
