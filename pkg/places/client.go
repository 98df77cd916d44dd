// Package places is a client for the Google Places text-search API, used
// to detect whether a company has an online presence. Each lookup costs
// one credit for the search plus one for the detail fetch; callers record
// the returned credit count in the enrichment log.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

const detailFields = "place_id,name,formatted_address,website,formatted_phone_number," +
	"international_phone_number,rating,user_ratings_total,url,business_status,types"

// ErrNotConfigured is returned when the API key is missing.
var ErrNotConfigured = eris.New("places: api key not configured")

// Client defines the Places operations used by the enrichment stage.
// SearchCompany returns the Lookup with the credits billed so far even
// when it also returns an error.
type Client interface {
	SearchCompany(ctx context.Context, name, city string) (*Lookup, error)
}

// Lookup is the outcome of one company search. Place is nil when nothing
// matched; CreditsUsed is billed either way.
type Lookup struct {
	Place       *Place
	CreditsUsed int
}

// Place is the detail record for one place.
type Place struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Website          string   `json:"website"`
	Phone            string   `json:"formatted_phone_number"`
	IntlPhone        string   `json:"international_phone_number"`
	Rating           *float64 `json:"rating"`
	RatingsTotal     int      `json:"user_ratings_total"`
	BusinessStatus   string   `json:"business_status"`
	Types            []string `json:"types"`
}

// BestPhone prefers the international number format.
func (p Place) BestPhone() string {
	if p.IntlPhone != "" {
		return p.IntlPhone
	}
	return p.Phone
}

// APIError is returned on a non-2xx HTTP status or an error status in
// the response envelope.
type APIError struct {
	StatusCode int
	Status     string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("places: API status %s", e.Status)
	}
	return fmt.Sprintf("places: HTTP %d", e.StatusCode)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithLocale sets the region bias and response language.
func WithLocale(region, language string) Option {
	return func(c *httpClient) {
		if region != "" {
			c.region = region
		}
		if language != "" {
			c.language = language
		}
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	region   string
	language string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a Places client. An empty key makes calls fail with
// ErrNotConfigured.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		region:   "fr",
		language: "fr",
		limiter:  rate.NewLimiter(10, 10),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchCompany runs a text search for "<name> <city>" and fetches the
// details of the best match.
func (c *httpClient) SearchCompany(ctx context.Context, name, city string) (*Lookup, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	query := name
	if city != "" {
		query = name + " " + city
	}

	// Credits are billed per request, not per success, so the partial
	// Lookup is returned alongside the error to keep the accounting.
	lookup := &Lookup{CreditsUsed: 1}
	matches, err := c.textSearch(ctx, query)
	if err != nil {
		return lookup, err
	}
	if len(matches) == 0 {
		return lookup, nil
	}

	lookup.CreditsUsed++
	place, err := c.details(ctx, matches[0].PlaceID)
	if err != nil {
		return lookup, err
	}
	lookup.Place = place
	return lookup, nil
}

type searchMatch struct {
	PlaceID string `json:"place_id"`
	Name    string `json:"name"`
}

func (c *httpClient) textSearch(ctx context.Context, query string) ([]searchMatch, error) {
	params := url.Values{
		"query":    {query},
		"key":      {c.apiKey},
		"region":   {c.region},
		"language": {c.language},
	}
	var envelope struct {
		Results []searchMatch `json:"results"`
		Status  string        `json:"status"`
	}
	if err := c.get(ctx, "/textsearch/json?"+params.Encode(), &envelope); err != nil {
		return nil, eris.Wrap(err, "places: text search")
	}
	if envelope.Status != "OK" && envelope.Status != "ZERO_RESULTS" {
		return nil, &APIError{Status: envelope.Status}
	}
	return envelope.Results, nil
}

func (c *httpClient) details(ctx context.Context, placeID string) (*Place, error) {
	params := url.Values{
		"place_id": {placeID},
		"key":      {c.apiKey},
		"fields":   {detailFields},
		"language": {c.language},
	}
	var envelope struct {
		Result *Place `json:"result"`
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/details/json?"+params.Encode(), &envelope); err != nil {
		return nil, eris.Wrapf(err, "places: details %s", placeID)
	}
	switch envelope.Status {
	case "OK":
		return envelope.Result, nil
	case "NOT_FOUND":
		return nil, nil
	default:
		return nil, &APIError{Status: envelope.Status}
	}
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "wait for rate limiter")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return eris.Wrap(json.Unmarshal(data, out), "decode response")
}
