package albiware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithAPIKey("test-key"), WithBaseURL(srv.URL)}, opts...)
	c, err := NewClient(opts...)
	require.NoError(t, err)
	return c
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("ALBIWARE_API_KEY", "")
	_, err := NewClient()
	assert.Error(t, err)
}

func TestNewClient_EnvFallback(t *testing.T) {
	t.Setenv("ALBIWARE_API_KEY", "env-key")
	t.Setenv("ALBIWARE_BASE_URL", "")
	c, err := NewClient()
	require.NoError(t, err)
	assert.Equal(t, "env-key", c.apiKey)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestContactPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Integrations/Contacts", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("pageSize"))
		writeData(w, []map[string]any{
			{
				"id": 42, "firstName": "Jane", "lastName": "Doe", "email": "jane@example.com",
				"phoneNumber": "(555) 010-0001", "address1": "12 Oak St", "city": "Springfield",
				"state": "IL", "zipCode": "62701",
			},
			{"id": 0, "firstName": "Broken"},
			{"id": 43, "firstName": "Bad", "email": "not-an-email"},
		})
	})

	contacts, err := c.ContactPage(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	got := contacts[0]
	assert.Equal(t, "42", got.ExternalID)
	assert.Equal(t, "Jane Doe", got.FullName)
	assert.Equal(t, "+15550100001", got.Phone)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, "12 Oak St Springfield IL 62701", got.Address)
	assert.Equal(t, models.ContactStatusNew, got.Status)
}

func TestContactPage_EmptyEndsListing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []any{})
	})
	contacts, err := c.ContactPage(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestGet_NonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	_, err := c.ListContacts(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestListProjects_Paginates(t *testing.T) {
	var pages []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Integrations/Projects", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("openOnly"))
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		switch page {
		case "1":
			writeData(w, []map[string]any{{"id": 1, "name": "A"}, {"id": 2, "name": "B"}})
		default:
			writeData(w, []map[string]any{{"id": 3, "name": "C"}})
		}
	}, WithPageSize(2))

	projects, err := c.ListProjects(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, pages)
	require.Len(t, projects, 3)
	assert.Equal(t, "C", projects[2].Name)
}

func TestListTasks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Integrations/Tasks", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("projectId"))
		writeData(w, []map[string]any{
			{"id": 70, "name": "Inspect", "status": "Open", "assignedTo": "Sam", "dueDate": "2024-03-05T12:00:00Z"},
		})
	})

	tasks, err := c.ListTasks(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0].ToTask(ProjectRecord{ID: 7, Name: "Smith Kitchen"})
	assert.Equal(t, "70", task.ExternalID)
	assert.Equal(t, "7", task.ProjectID)
	assert.Equal(t, "Smith Kitchen", task.ProjectName)
	assert.Equal(t, "open", task.Status)
	require.NotNil(t, task.DueAt)
	assert.True(t, task.DueAt.Equal(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)))
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"", nil},
		{"garbage", nil},
		{"2024-03-05T12:00:00Z", ptr(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))},
		{"2024-03-05T12:00:00", ptr(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))},
		{"2024-03-05T07:00:00-05:00", ptr(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))},
		{"2024-03-05", ptr(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			got := ParseTime(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %v", got)
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
