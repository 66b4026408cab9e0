package propertylookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/featureflag"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *RapidAPIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewRapidAPIClient(WithAPIKey("key"), WithBaseURL(srv.URL), WithTimeout(time.Second))
	require.NoError(t, err)
	return c
}

func TestLookupYearBuilt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/property-details-address", r.URL.Path)
		assert.Equal(t, "1 Main St Springfield", r.URL.Query().Get("address"))
		assert.Equal(t, "key", r.Header.Get("x-rapidapi-key"))
		assert.Equal(t, DefaultHost, r.Header.Get("x-rapidapi-host"))
		w.Write([]byte(`{"data":{"yearBuilt":1972,"bedrooms":3}}`))
	})
	year, err := c.LookupYearBuilt(context.Background(), "1 Main St Springfield")
	require.NoError(t, err)
	assert.Equal(t, 1972, year)
}

func TestLookupYearBuiltUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		address string
	}{
		{"server error", http.StatusInternalServerError, `{}`, "1 Main St"},
		{"no data", http.StatusOK, `{"status":"OK"}`, "1 Main St"},
		{"missing year", http.StatusOK, `{"data":{}}`, "1 Main St"},
		{"bad json", http.StatusOK, `{`, "1 Main St"},
		{"blank address", http.StatusOK, `{"data":{"yearBuilt":1950}}`, " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.LookupYearBuilt(context.Background(), tt.address)
			assert.ErrorIs(t, err, models.ErrLookupUnavailable)
		})
	}
}

func TestNewRapidAPIClientRequiresKey(t *testing.T) {
	t.Setenv("RAPIDAPI_KEY", "")
	_, err := NewRapidAPIClient()
	assert.Error(t, err)
}

type fixedLookup int

func (f fixedLookup) LookupYearBuilt(context.Context, string) (int, error) { return int(f), nil }

func TestGated(t *testing.T) {
	ctx := context.Background()

	off := NewGated(featureflag.Static{}, fixedLookup(1960))
	_, err := off.LookupYearBuilt(ctx, "1 Main St")
	assert.ErrorIs(t, err, models.ErrLookupUnavailable)

	on := NewGated(featureflag.Static{featureflag.FlagPropertyLookup: true}, fixedLookup(1960))
	year, err := on.LookupYearBuilt(ctx, "1 Main St")
	require.NoError(t, err)
	assert.Equal(t, 1960, year)

	noClient := NewGated(featureflag.Static{featureflag.FlagPropertyLookup: true}, nil)
	_, err = noClient.LookupYearBuilt(ctx, "1 Main St")
	assert.ErrorIs(t, err, models.ErrLookupUnavailable)
}
