package models

import (
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/cryptox"
)

// GenerationRecord is one batch generation. The recipient list exists only
// inside Payload.
type GenerationRecord struct {
	ID             string
	ConfigID       string
	RecipientCount int
	HasRank        bool
	GeneratedBy    string
	Payload        cryptox.EncryptedPayload
	CreatedAt      time.Time

	// EventName is filled by list queries; it is not stored on the record.
	EventName string
}

// VerificationToken maps a public uuid to a GenerationRecord.
type VerificationToken struct {
	UUID         string    `json:"uuid"`
	GenerationID string    `json:"generationId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OrganizationStats are cumulative counters. They only ever grow.
type OrganizationStats struct {
	Name           string    `json:"organizationName"`
	RecipientCount int64     `json:"recipientCount"`
	EventsCreated  int64     `json:"eventsCreated"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
