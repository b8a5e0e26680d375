package voicedrop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/reportsync/internal/domain"
)

// CampaignGroup is the parser output: all records of one file that belong to
// the same campaign external id.
type CampaignGroup struct {
	ExternalID string
	Name       string
	Records    []domain.CampaignRecord
}

// columnarFile is the current report format: a header row plus positional
// data rows.
type columnarFile struct {
	Fields []string            `json:"fields"`
	Data   [][]json.RawMessage `json:"data"`
}

// ParseReportFile converts one downloaded file into campaign groups. The
// payload is either the columnar {fields, data} document or the legacy
// array-of-objects form; the shape is detected once and dispatched to the
// matching transform. Both yield the same normalized records.
func ParseReportFile(data []byte) ([]CampaignGroup, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var rows []map[string]json.RawMessage
	var err error
	switch trimmed[0] {
	case '{':
		rows, err = parseColumnar(trimmed)
	case '[':
		rows, err = parseLegacy(trimmed)
	default:
		return nil, fmt.Errorf("unrecognized payload shape (leading %q)", trimmed[0])
	}
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*CampaignGroup)
	for _, row := range rows {
		externalID := rawString(row["campaign_id"])
		if externalID == "" {
			// Rows without a campaign id cannot be attributed; drop them.
			continue
		}
		g, ok := groups[externalID]
		if !ok {
			g = &CampaignGroup{ExternalID: externalID, Name: rawString(row["campaign_name"])}
			groups[externalID] = g
		}
		if g.Name == "" {
			g.Name = rawString(row["campaign_name"])
		}
		g.Records = append(g.Records, domain.CampaignRecord{
			Phone:        rawString(row["phone_number"]),
			SentAt:       parseSendDate(rawString(row["delivery_date"])),
			Status:       rawString(row["status"]),
			DurationSecs: rawInt(row["duration"]),
			Carrier:      rawString(row["carrier"]),
		})
	}

	out := make([]CampaignGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

// parseColumnar transforms the {fields, data} document into keyed rows.
func parseColumnar(data []byte) ([]map[string]json.RawMessage, error) {
	var f columnarFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse columnar payload: %w", err)
	}
	if len(f.Fields) == 0 {
		return nil, fmt.Errorf("columnar payload has no fields header")
	}

	fields := make([]string, len(f.Fields))
	for i, name := range f.Fields {
		fields[i] = canonicalField(name)
	}

	rows := make([]map[string]json.RawMessage, 0, len(f.Data))
	for _, values := range f.Data {
		row := make(map[string]json.RawMessage, len(fields))
		for i, name := range fields {
			if i < len(values) {
				row[name] = values[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseLegacy transforms the array-of-objects form into keyed rows.
func parseLegacy(data []byte) ([]map[string]json.RawMessage, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse legacy payload: %w", err)
	}
	rows := make([]map[string]json.RawMessage, 0, len(raw))
	for _, obj := range raw {
		row := make(map[string]json.RawMessage, len(obj))
		for k, v := range obj {
			row[canonicalField(k)] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// canonicalField maps the field-name variants the platform has shipped over
// the years onto one normalized set.
func canonicalField(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "campaign_id", "campaignid", "campaign":
		return "campaign_id"
	case "campaign_name", "campaignname":
		return "campaign_name"
	case "phone_number", "phone", "number", "recipient":
		return "phone_number"
	case "delivery_date", "date", "sent_at", "send_date":
		return "delivery_date"
	case "status", "result":
		return "status"
	case "duration", "duration_secs", "length":
		return "duration"
	case "carrier", "network":
		return "carrier"
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// rawString coerces a JSON value (string or number) to a trimmed string.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// rawInt coerces a JSON value (number or numeric string) to an int.
func rawInt(raw json.RawMessage) int {
	s := rawString(raw)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// sendDateLayouts are the timestamp formats observed in report files.
var sendDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// parseSendDate parses a delivery timestamp, normalizing to UTC. Empty or
// unparseable strings yield nil: they form a distinct dedup bucket rather
// than failing the row.
func parseSendDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range sendDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
