package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceType identifies which external platform an entity belongs to.
type SourceType string

const (
	SourceVoicemail SourceType = "voicemail"
	SourceEmail     SourceType = "email"
)

// Client is a billing client. The SourceType tag distinguishes which external
// source the client was created for; only clients of the matching type are
// eligible for automatic campaign linking.
type Client struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	SourceType SourceType `json:"source_type" db:"source_type"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Campaign is a voicemail broadcast campaign discovered in a report file.
// ClientID is set by the matching resolver or by an explicit manual link;
// once non-nil it is never silently overwritten by a re-sync.
type Campaign struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	ExternalID  string     `json:"external_id" db:"external_id"`
	Name        string     `json:"name" db:"name"`
	ClientID    *uuid.UUID `json:"client_id" db:"client_id"`
	RecordCount int        `json:"record_count" db:"record_count"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// CampaignRecord is one delivery attempt: (campaign, phone, send time) is
// unique. A nil SentAt is a distinct dedup bucket, not an error.
type CampaignRecord struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	CampaignID   uuid.UUID  `json:"campaign_id" db:"campaign_id"`
	Phone        string     `json:"phone" db:"phone"`
	SentAt       *time.Time `json:"sent_at" db:"sent_at"`
	Status       string     `json:"status" db:"status"`
	DurationSecs int        `json:"duration_secs" db:"duration_secs"`
	Carrier      string     `json:"carrier" db:"carrier"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// ImportedFile marks a report file whose records are fully committed.
// Checked before every download/parse pass so files are never reprocessed.
type ImportedFile struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Filename   string    `json:"filename" db:"filename"`
	ImportedAt time.Time `json:"imported_at" db:"imported_at"`
}
