package mailstats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ignite/reportsync/internal/domain"
	"github.com/ignite/reportsync/internal/pkg/httpretry"
)

// apiPrefix is appended to every tenant's configured origin.
const apiPrefix = "/api/v1"

// Client is a per-tenant reporting API client: basic auth against the
// tenant's own origin, offset/limit pagination, retrying transport.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient httpretry.HTTPDoer

	// Report pages are much larger than metadata responses and get a
	// separate, longer timeout.
	reportClient httpretry.HTTPDoer
}

// NewClient creates a reporting API client for one tenant.
func NewClient(tenant domain.Tenant, timeout, reportTimeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if reportTimeout <= 0 {
		reportTimeout = 2 * time.Minute
	}
	return &Client{
		baseURL:      tenant.BaseURL + apiPrefix,
		username:     tenant.Username,
		password:     tenant.Password,
		httpClient:   httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
		reportClient: httpretry.NewRetryClient(&http.Client{Timeout: reportTimeout}, 3),
	}
}

// SetHTTPClient sets custom transports (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
	c.reportClient = client
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, doer httpretry.HTTPDoer, endpoint string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := doer.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func pageParams(offset, limit int) url.Values {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	return params
}

// ListEmails returns one page of message metadata plus the server total.
func (c *Client) ListEmails(ctx context.Context, offset, limit int) ([]Email, int, error) {
	var resp emailsResponse
	if err := c.get(ctx, c.httpClient, "/emails", pageParams(offset, limit), &resp); err != nil {
		return nil, 0, err
	}
	return resp.Items, resp.Total, nil
}

// ListCampaigns returns one page of campaign metadata plus the server total.
func (c *Client) ListCampaigns(ctx context.Context, offset, limit int) ([]Campaign, int, error) {
	var resp campaignsResponse
	if err := c.get(ctx, c.httpClient, "/campaigns", pageParams(offset, limit), &resp); err != nil {
		return nil, 0, err
	}
	return resp.Items, resp.Total, nil
}

// ListSegments returns one page of segment metadata plus the server total.
func (c *Client) ListSegments(ctx context.Context, offset, limit int) ([]Segment, int, error) {
	var resp segmentsResponse
	if err := c.get(ctx, c.httpClient, "/segments", pageParams(offset, limit), &resp); err != nil {
		return nil, 0, err
	}
	return resp.Items, resp.Total, nil
}

// FetchReportPage returns one page of the receipt log plus the server total.
// page is 1-based. from/to bound the send timestamp; either may be nil.
// Rows are requested in ascending id order so page boundaries are stable
// while the log grows under us.
func (c *Client) FetchReportPage(ctx context.Context, page, limit int, from, to *time.Time) ([]ReportRow, int, error) {
	if page < 1 {
		page = 1
	}
	params := pageParams((page-1)*limit, limit)
	params.Set("sort", "id")
	params.Set("order", "asc")
	if from != nil {
		params.Set("from_date", from.UTC().Format(time.RFC3339))
	}
	if to != nil {
		params.Set("to_date", to.UTC().Format(time.RFC3339))
	}

	var resp reportsResponse
	if err := c.get(ctx, c.reportClient, "/reports", params, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Items, resp.Total, nil
}

// HealthCheck performs a cheap authenticated call.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, _, err := c.ListSegments(ctx, 0, 1)
	return err
}
