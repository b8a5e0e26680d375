package mailstats

import (
	"fmt"
	"time"
)

// Email is message (creative) metadata as returned by the reporting API.
type Email struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Status  string `json:"status"`
}

// Campaign is campaign metadata as returned by the reporting API.
type Campaign struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
	SentCount int    `json:"sent_count"`
}

// Segment is segment metadata as returned by the reporting API.
type Segment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactCount int    `json:"contact_count"`
}

// ReportRow is one receipt-log row as returned by the reporting API.
// SentAt arrives as a string in whatever format the tenant's instance emits;
// ParseSentAt normalizes it.
type ReportRow struct {
	MessageID    string `json:"message_id"`
	Recipient    string `json:"recipient"`
	SentAt       string `json:"sent_at"`
	CampaignName string `json:"campaign_name"`
	Subject      string `json:"subject"`
	Status       string `json:"status"`
	Opens        int    `json:"opens"`
	Clicks       int    `json:"clicks"`
}

type emailsResponse struct {
	Total int     `json:"total"`
	Items []Email `json:"items"`
}

type campaignsResponse struct {
	Total int        `json:"total"`
	Items []Campaign `json:"items"`
}

type segmentsResponse struct {
	Total int       `json:"total"`
	Items []Segment `json:"items"`
}

type reportsResponse struct {
	Total int         `json:"total"`
	Items []ReportRow `json:"items"`
}

// sentAtLayouts are the timestamp formats tenant instances have been seen to
// emit. Offsets are honored; bare timestamps are taken as UTC.
var sentAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseSentAt parses a report timestamp and normalizes it to UTC. Dedup
// compares exact timestamps, so every source format must collapse to the
// same instant representation.
func ParseSentAt(s string) (time.Time, error) {
	for _, layout := range sentAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable sent_at %q", s)
}
