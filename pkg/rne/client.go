// Package rne is a client for the French national company registry
// (Registre National des Entreprises). It authenticates with a
// username/password pair against the SSO endpoint and caches the bearer
// token until shortly before it expires.
package rne

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/leadgrid/prospector/internal/resilience"
)

const defaultBaseURL = "https://registre-national-entreprises.inpi.fr/api"

// Tokens are valid for roughly 24h; refresh at 22h to stay clear of the
// edge.
const tokenTTL = 22 * time.Hour

// ErrNotConfigured is returned when credentials are missing.
var ErrNotConfigured = eris.New("rne: credentials not configured")

// ErrAuthFailed is returned when the SSO login is rejected.
var ErrAuthFailed = eris.New("rne: authentication failed")

// Client defines the registry operations used by the detection stage.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	GetBySIREN(ctx context.Context, siren string) (*Company, error)
}

// SearchRequest selects companies created inside a date window. The
// filter slices are optional; empty means no restriction.
type SearchRequest struct {
	CreatedFrom time.Time
	CreatedTo   time.Time
	NAFCodes    []string
	Departments []string
	LegalForms  []string
	Page        int
	PageSize    int
}

// SearchResult is one page of registry matches.
type SearchResult struct {
	Results      []Company `json:"results"`
	TotalResults int       `json:"totalResults"`
}

// Company is the registry record for one legal unit.
type Company struct {
	SIREN         string     `json:"siren"`
	Name          string     `json:"denominationUniteLegale"`
	Acronym       string     `json:"sigleUniteLegale"`
	CreatedAt     string     `json:"dateCreationUniteLegale"`
	LegalForm     string     `json:"categorieJuridiqueUniteLegale"`
	ActivityCode  string     `json:"activitePrincipaleUniteLegale"`
	WorkforceBand string     `json:"trancheEffectifsUniteLegale"`
	Address       *Address   `json:"adresseEtablissement"`
	Directors     []Director `json:"dirigeants"`
}

// Address is the head-office establishment address.
type Address struct {
	StreetNumber string `json:"numeroVoieEtablissement"`
	StreetType   string `json:"typeVoieEtablissement"`
	StreetLabel  string `json:"libelleVoieEtablissement"`
	PostalCode   string `json:"codePostalEtablissement"`
	City         string `json:"libelleCommuneEtablissement"`
}

// Director is a company officer as listed in the registry.
type Director struct {
	LastName  string `json:"nom"`
	FirstName string `json:"prenom"`
	Role      string `json:"qualite"`
	BirthDate string `json:"dateNaissance"`
}

// DisplayName resolves the best available company name, falling back to
// a SIREN-derived placeholder like the registry UI does.
func (c Company) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Acronym != "" {
		return c.Acronym
	}
	return fmt.Sprintf("Entreprise %s", c.SIREN)
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

// workforceBands maps the registry's coded workforce bands to a lower
// bound headcount.
var workforceBands = map[string]int{
	"00": 0, "01": 1, "02": 3, "03": 6,
	"11": 10, "12": 20, "21": 50, "22": 100,
	"31": 200, "32": 250, "41": 500, "42": 1000,
	"51": 2000, "52": 5000, "53": 10000,
}

// EmployeeCount decodes the workforce band, nil when unknown.
func (c Company) EmployeeCount() *int {
	n, ok := workforceBands[c.WorkforceBand]
	if !ok {
		return nil
	}
	return &n
}

// APIError is returned when the registry responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rne: HTTP %d: %s", e.StatusCode, e.Body)
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

// WithTokenCache replaces the default in-memory token cache.
func WithTokenCache(tc TokenCache) Option {
	return func(c *httpClient) {
		c.tokens = tc
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

// httpClient implements Client using net/http.
type httpClient struct {
	username string
	password string
	baseURL  string
	http     *http.Client
	tokens   TokenCache
	limiter  *rate.Limiter
}

// NewClient creates a registry client. Username and password may be empty;
// calls then fail with ErrNotConfigured.
func NewClient(username, password string, opts ...Option) Client {
	c := &httpClient{
		username: username,
		password: password,
		baseURL:  defaultBaseURL,
		tokens:   NewMemoryTokenCache(),
		limiter:  rate.NewLimiter(5, 5),
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

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	params := url.Values{
		"dateCreationMin": {req.CreatedFrom.Format("2006-01-02")},
		"dateCreationMax": {req.CreatedTo.Format("2006-01-02")},
		"page":            {strconv.Itoa(max(req.Page, 1))},
		"pageSize":        {strconv.Itoa(req.PageSize)},
		"sort":            {"dateCreation:desc"},
	}
	if len(req.NAFCodes) > 0 {
		params.Set("codesNaf", strings.Join(req.NAFCodes, ","))
	}
	if len(req.Departments) > 0 {
		params.Set("departements", strings.Join(req.Departments, ","))
	}
	if len(req.LegalForms) > 0 {
		params.Set("formesJuridiques", strings.Join(req.LegalForms, ","))
	}
	var out SearchResult
	if err := c.get(ctx, "/companies?"+params.Encode(), &out); err != nil {
		return nil, eris.Wrap(err, "rne: search companies")
	}
	return &out, nil
}

func (c *httpClient) GetBySIREN(ctx context.Context, siren string) (*Company, error) {
	var out Company
	err := c.get(ctx, "/companies/"+siren, &out)
	if err != nil {
		var apiErr *APIError
		if eris.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "rne: get company %s", siren)
	}
	return &out, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "wait for rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

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
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}
	return eris.Wrap(json.Unmarshal(data, out), "decode response")
}

func (c *httpClient) authenticate(ctx context.Context) (string, error) {
	if token, ok := c.tokens.Get(); ok {
		return token, nil
	}
	if c.username == "" || c.password == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return "", eris.Wrap(err, "rne: marshal login")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sso/login", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "rne: create login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "rne: execute login")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		return "", eris.Wrapf(ErrAuthFailed, "HTTP %d: %s", resp.StatusCode, string(text))
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", eris.Wrap(err, "rne: decode login response")
	}
	if auth.Token == "" {
		return "", eris.Wrap(ErrAuthFailed, "empty token")
	}

	c.tokens.Set(auth.Token, time.Now().Add(tokenTTL))
	return auth.Token, nil
}
