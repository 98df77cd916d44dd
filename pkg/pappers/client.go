// Package pappers is a client for the Pappers company-data API, the paid
// enrichment source. Every successful call consumes API credits; a 402
// response means the monthly credit budget is gone and is surfaced as a
// permanent error so callers stop retrying.
package pappers

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

	"github.com/leadgrid/prospector/internal/resilience"
)

const defaultBaseURL = "https://api.pappers.fr/v2"

// ErrNotConfigured is returned when the API key is missing.
var ErrNotConfigured = eris.New("pappers: api key not configured")

// ErrQuotaExhausted is returned on HTTP 402. It is permanent: retrying
// cannot restore credits.
var ErrQuotaExhausted = resilience.Permanent(eris.New("pappers: credits exhausted"))

// Client defines the Pappers operations used by the enrichment stage.
type Client interface {
	GetBySIREN(ctx context.Context, siren string) (*Company, error)
}

// Company is the Pappers record for one legal unit.
type Company struct {
	SIREN       string         `json:"siren"`
	SIRETSiege  string         `json:"siret_siege"`
	Name        string         `json:"denomination"`
	TradeName   string         `json:"nom_entreprise"`
	LegalForm   string         `json:"forme_juridique"`
	SectorCode  string         `json:"code_naf"`
	SectorLabel string         `json:"libelle_code_naf"`
	CreatedAt   string         `json:"date_creation"`
	Workforce   *int           `json:"effectif"`
	Revenue     *float64       `json:"chiffre_affaires"`
	HeadOffice  *HeadOffice    `json:"siege"`
	Officers    []Representant `json:"representants"`
	Website     string         `json:"site_web"`
	Phone       string         `json:"telephone"`
}

// HeadOffice is the registered-office establishment.
type HeadOffice struct {
	SIRET      string `json:"siret"`
	Address    string `json:"adresse_ligne_1"`
	PostalCode string `json:"code_postal"`
	City       string `json:"ville"`
	Region     string `json:"region"`
}

// Representant is a company officer.
type Representant struct {
	LastName  string `json:"nom"`
	FirstName string `json:"prenom"`
	Role      string `json:"qualite"`
	BirthDate string `json:"date_naissance"`
	Email     string `json:"email"`
	Phone     string `json:"telephone"`
}

// DisplayName resolves the best available company name.
func (c Company) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.TradeName
}

// SIRET resolves the head-office SIRET, preferring the nested record.
func (c Company) SIRET() string {
	if c.HeadOffice != nil && c.HeadOffice.SIRET != "" {
		return c.HeadOffice.SIRET
	}
	return c.SIRETSiege
}

// FoundedAt parses the creation date, nil when absent or malformed.
func (c Company) FoundedAt() *time.Time {
	if c.CreatedAt == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", c.CreatedAt)
	if err != nil {
		return nil
	}
	return &t
}

// APIError is returned when Pappers responds with an unexpected status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pappers: HTTP %d: %s", e.StatusCode, e.Body)
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

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Pappers client. An empty key makes calls fail with
// ErrNotConfigured.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(2, 2),
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

// GetBySIREN fetches one company; missing companies return (nil, nil).
func (c *httpClient) GetBySIREN(ctx context.Context, siren string) (*Company, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "pappers: wait for rate limiter")
	}

	params := url.Values{
		"siren":     {siren},
		"api_token": {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/entreprise?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "pappers: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "pappers: fetch company %s", siren)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, nil
	case http.StatusPaymentRequired:
		return nil, ErrQuotaExhausted
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pappers: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var out Company
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "pappers: decode company %s", siren)
	}
	return &out, nil
}
