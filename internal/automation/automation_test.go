package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

var qual = models.Qualification{
	ContactID:    "c1",
	FullName:     "Jane Doe",
	ProjectType:  "Mold",
	PropertyType: "Commercial",
	HasInsurance: true,
}

func TestHTTPTriggerCreateProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var got models.Qualification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, qual, got)
		w.Write([]byte(`{"projectId":"P-100"}`))
	}))
	defer srv.Close()

	trig, err := NewHTTPTrigger(WithURL(srv.URL), WithToken("secret"))
	require.NoError(t, err)
	id, err := trig.CreateProject(context.Background(), qual)
	require.NoError(t, err)
	assert.Equal(t, "P-100", id)
}

func TestHTTPTriggerFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusBadGateway, `{"error":"browser crashed"}`, "browser crashed"},
		{"plain error body", http.StatusInternalServerError, `upstream down`, "upstream down"},
		{"missing id", http.StatusOK, `{}`, "no projectId"},
		{"not json", http.StatusOK, `ok`, "decode response"},
		{"numeric id", http.StatusOK, `{"projectId":42}`, "decode response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			trig, err := NewHTTPTrigger(WithURL(srv.URL))
			require.NoError(t, err)
			_, err = trig.CreateProject(context.Background(), qual)
			require.ErrorIs(t, err, models.ErrAutomationFailure)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestHTTPTriggerTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	trig, err := NewHTTPTrigger(WithURL(srv.URL), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	_, err = trig.CreateProject(context.Background(), qual)
	assert.ErrorIs(t, err, models.ErrAutomationFailure)
}

func TestNewHTTPTriggerRequiresURL(t *testing.T) {
	_, err := NewHTTPTrigger()
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.CreateProject(context.Background(), qual)
	assert.ErrorIs(t, err, models.ErrAutomationFailure)
	assert.ErrorIs(t, err, ErrAutomationDisabled)
}
