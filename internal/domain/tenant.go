package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is one email-platform account whose reporting data is synced.
// Credentials are per-tenant basic auth against the tenant's own origin.
type Tenant struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	BaseURL      string     `json:"base_url" db:"base_url"`
	Username     string     `json:"username" db:"username"`
	Password     string     `json:"-" db:"password"`
	ListID       string     `json:"list_id" db:"list_id"`
	Active       bool       `json:"active" db:"active"`
	LastSyncedAt *time.Time `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// EmailReport is one send-event fact row from the email platform's receipt
// log. (TenantID, MessageID, Recipient, SentAt) is unique; SentAt is always
// normalized to UTC before persisting because dedup compares exact timestamps.
type EmailReport struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TenantID     uuid.UUID `json:"tenant_id" db:"tenant_id"`
	MessageID    string    `json:"message_id" db:"message_id"`
	Recipient    string    `json:"recipient" db:"recipient"`
	SentAt       time.Time `json:"sent_at" db:"sent_at"`
	CampaignName string    `json:"campaign_name" db:"campaign_name"`
	Subject      string    `json:"subject" db:"subject"`
	Status       string    `json:"status" db:"status"`
	Opens        int       `json:"opens" db:"opens"`
	Clicks       int       `json:"clicks" db:"clicks"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// EmailMessage is message (creative) metadata from the email platform.
type EmailMessage struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TenantID   uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Name       string    `json:"name" db:"name"`
	Subject    string    `json:"subject" db:"subject"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// EmailCampaign is campaign metadata from the email platform (fast full sync).
type EmailCampaign struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TenantID   uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Name       string    `json:"name" db:"name"`
	Subject    string    `json:"subject" db:"subject"`
	Status     string    `json:"status" db:"status"`
	SentCount  int       `json:"sent_count" db:"sent_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// EmailSegment is segment metadata from the email platform.
type EmailSegment struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TenantID     uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ExternalID   string    `json:"external_id" db:"external_id"`
	Name         string    `json:"name" db:"name"`
	ContactCount int       `json:"contact_count" db:"contact_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// FetchedMonth is the backfill resumability marker: its presence proves the
// month's report data was fully persisted for the tenant. Written only after
// every page of the month committed; a crashed backfill restarts by skipping
// any month already marked.
type FetchedMonth struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	YearMonth string    `json:"year_month" db:"year_month"` // "2025-01"
	FromDate  time.Time `json:"from_date" db:"from_date"`
	ToDate    time.Time `json:"to_date" db:"to_date"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
