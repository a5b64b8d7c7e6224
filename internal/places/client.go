// Package places provides the HTTP client for the Google Places web service.
//
// Nearby search is paginated by an opaque next_page_token; details are
// requested with a fixed field mask. Every request goes through a token bucket
// limiter with burst 1, which spaces consecutive calls by the configured delay.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Upstream status values.
const (
	StatusOK          = "OK"
	StatusZeroResults = "ZERO_RESULTS"
)

// DetailFields is the field mask sent with every details request.
var DetailFields = []string{
	"place_id", "name", "formatted_address", "address_components", "geometry",
	"formatted_phone_number", "international_phone_number", "website",
	"business_status", "opening_hours", "price_level", "rating",
	"user_ratings_total", "types", "photos", "reviews", "url",
}

// StatusError is returned when the API answers with a non-success status.
type StatusError struct {
	Op      string
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("places %s: status %s: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("places %s: status %s", e.Op, e.Status)
}

// Client is the shared HTTP client for Places endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Places client that waits at least delay between
// requests. A zero delay disables spacing.
func NewClient(baseURL, apiKey string, delay time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With("component", "places"),
	}
}

// NearbyRequest describes one page of a nearby search.
type NearbyRequest struct {
	Location  LatLng
	Radius    int
	Type      string
	PageToken string
}

// SearchPage is one page of nearby search results.
type SearchPage struct {
	Stubs         []PlaceStub
	NextPageToken string
	Status        string
}

type nearbyResponse struct {
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message"`
	Results       []searchResult `json:"results"`
	NextPageToken string         `json:"next_page_token"`
}

type detailsResponse struct {
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message"`
	Result       PlaceDetail `json:"result"`
}

// NearbySearch fetches a single page of places around req.Location. OK and
// ZERO_RESULTS are both successful outcomes.
func (c *Client) NearbySearch(ctx context.Context, req NearbyRequest) (*SearchPage, error) {
	params := url.Values{}
	params.Set("location", formatLatLng(req.Location))
	params.Set("radius", strconv.Itoa(req.Radius))
	if req.Type != "" {
		params.Set("type", req.Type)
	}
	if req.PageToken != "" {
		params.Set("pagetoken", req.PageToken)
	}

	var resp nearbyResponse
	if err := c.get(ctx, "/nearbysearch/json", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != StatusOK && resp.Status != StatusZeroResults {
		return nil, &StatusError{Op: "nearby search", Status: resp.Status, Message: resp.ErrorMessage}
	}

	page := &SearchPage{
		Stubs:         make([]PlaceStub, 0, len(resp.Results)),
		NextPageToken: resp.NextPageToken,
		Status:        resp.Status,
	}
	for _, r := range resp.Results {
		page.Stubs = append(page.Stubs, PlaceStub{
			ExternalID: r.PlaceID,
			Latitude:   r.Geometry.Location.Lat,
			Longitude:  r.Geometry.Location.Lng,
			Name:       r.Name,
		})
	}
	return page, nil
}

// Details fetches the full record for one place. Only OK is a success.
func (c *Client) Details(ctx context.Context, placeID string) (*PlaceDetail, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", strings.Join(DetailFields, ","))

	var resp detailsResponse
	if err := c.get(ctx, "/details/json", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, &StatusError{Op: "details " + placeID, Status: resp.Status, Message: resp.ErrorMessage}
	}
	return &resp.Result, nil
}

// PhotoURL builds the photo endpoint URL for a photo reference.
func (c *Client) PhotoURL(reference string, maxWidth int) string {
	params := url.Values{}
	params.Set("photoreference", reference)
	params.Set("maxwidth", strconv.Itoa(maxWidth))
	params.Set("key", c.apiKey)
	return c.baseURL + "/photo?" + params.Encode()
}

// get performs a rate-limited GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("key", c.apiKey)
	u := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error carries the full URL, key included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug("places request", "path", path, "status", resp.StatusCode, "duration", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("places %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func formatLatLng(p LatLng) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
