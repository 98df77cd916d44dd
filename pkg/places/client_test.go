package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placesServer(t *testing.T, searchStatus string, matches []searchMatch, detail *Place) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/textsearch/json":
			assert.Equal(t, "fr", r.URL.Query().Get("language"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":  searchStatus,
				"results": matches,
			})
		case "/details/json":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "OK",
				"result": detail,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchCompanyFetchesDetails(t *testing.T) {
	rating := 4.3
	srv := placesServer(t, "OK",
		[]searchMatch{{PlaceID: "place-1", Name: "Boulangerie Martin"}},
		&Place{
			PlaceID:   "place-1",
			Name:      "Boulangerie Martin",
			Website:   "https://boulangerie-martin.fr",
			IntlPhone: "+33 4 78 00 00 00",
			Rating:    &rating,
		},
	)

	c := NewClient("key-1", WithBaseURL(srv.URL))
	lookup, err := c.SearchCompany(context.Background(), "Boulangerie Martin", "Lyon")
	require.NoError(t, err)
	require.NotNil(t, lookup.Place)
	assert.Equal(t, 2, lookup.CreditsUsed)
	assert.Equal(t, "place-1", lookup.Place.PlaceID)
	assert.Equal(t, "+33 4 78 00 00 00", lookup.Place.BestPhone())
}

func TestSearchCompanyNoMatchCostsOneCredit(t *testing.T) {
	srv := placesServer(t, "ZERO_RESULTS", nil, nil)

	c := NewClient("key-1", WithBaseURL(srv.URL))
	lookup, err := c.SearchCompany(context.Background(), "Inexistante", "")
	require.NoError(t, err)
	assert.Nil(t, lookup.Place)
	assert.Equal(t, 1, lookup.CreditsUsed)
}

func TestSearchCompanyAPIErrorStatus(t *testing.T) {
	srv := placesServer(t, "OVER_QUERY_LIMIT", nil, nil)

	c := NewClient("key-1", WithBaseURL(srv.URL))
	lookup, err := c.SearchCompany(context.Background(), "Boulangerie Martin", "Lyon")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "OVER_QUERY_LIMIT", apiErr.Status)

	require.NotNil(t, lookup)
	assert.Equal(t, 1, lookup.CreditsUsed)
}

func TestSearchCompanyDetailsErrorKeepsCredits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/textsearch/json":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":  "OK",
				"results": []searchMatch{{PlaceID: "place-1"}},
			})
		case "/details/json":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient("key-1", WithBaseURL(srv.URL))
	lookup, err := c.SearchCompany(context.Background(), "Boulangerie Martin", "Lyon")
	require.Error(t, err)
	require.NotNil(t, lookup)
	assert.Nil(t, lookup.Place)
	assert.Equal(t, 2, lookup.CreditsUsed)
}

func TestSearchCompanyWithoutKey(t *testing.T) {
	t.Parallel()

	c := NewClient("")
	_, err := c.SearchCompany(context.Background(), "x", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBestPhoneFallsBack(t *testing.T) {
	t.Parallel()

	p := Place{Phone: "04 78 00 00 00"}
	assert.Equal(t, "04 78 00 00 00", p.BestPhone())
}
