// Package albiware is a client for the Albiware CRM integration API.
package albiware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// Defaults for the Albiware client.
const (
	DefaultBaseURL  = "https://api.albiware.com/v5"
	DefaultPageSize = 100
	DefaultTimeout  = 30 * time.Second
	// maxPages bounds project and task listings.
	maxPages = 200
)

// ContactRecord is a contact as returned by /Integrations/Contacts.
type ContactRecord struct {
	ID          int64  `json:"id" validate:"required,gt=0"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email" validate:"omitempty,email"`
	PhoneNumber string `json:"phoneNumber"`
	Address1    string `json:"address1"`
	City        string `json:"city"`
	State       string `json:"state"`
	ZipCode     string `json:"zipCode"`
	CreatedAt   string `json:"createdAt"`
}

// ProjectRecord is a project as returned by /Integrations/Projects.
type ProjectRecord struct {
	ID   int64  `json:"id" validate:"required,gt=0"`
	Name string `json:"name"`
}

// TaskRecord is a task as returned by /Integrations/Tasks.
type TaskRecord struct {
	ID         int64  `json:"id" validate:"required,gt=0"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	AssignedTo string `json:"assignedTo"`
	DueDate    string `json:"dueDate"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

// Opts configures the Albiware client.
type Opts struct {
	APIKey   string
	BaseURL  string
	PageSize int
	Timeout  time.Duration
}

// Option configures the Albiware client.
type Option func(*Opts)

func WithAPIKey(key string) Option { return func(o *Opts) { o.APIKey = key } }

func WithBaseURL(u string) Option { return func(o *Opts) { o.BaseURL = u } }

func WithPageSize(n int) Option { return func(o *Opts) { o.PageSize = n } }

func WithTimeout(d time.Duration) Option { return func(o *Opts) { o.Timeout = d } }

// Client talks to the Albiware REST API.
type Client struct {
	apiKey   string
	baseURL  string
	pageSize int
	http     *http.Client
	validate *validator.Validate
}

// NewClient builds a Client. Unset options fall back to ALBIWARE_API_KEY and ALBIWARE_BASE_URL.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{PageSize: DefaultPageSize, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ALBIWARE_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("ALBIWARE_BASE_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("albiware api key must be provided")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
	}, nil
}

// ListContacts returns one page of contacts. Pages start at 1. Invalid records are dropped,
// so a short page does not mean the listing is exhausted.
func (c *Client) ListContacts(ctx context.Context, page int) ([]ContactRecord, error) {
	var out listResponse[ContactRecord]
	q := url.Values{"page": {strconv.Itoa(page)}, "pageSize": {strconv.Itoa(c.pageSize)}}
	if err := c.get(ctx, "/Integrations/Contacts", q, &out); err != nil {
		return nil, err
	}
	return validRecords(c, "contact", out.Data), nil
}

// ContactPage returns one page of contacts mapped to the domain model.
func (c *Client) ContactPage(ctx context.Context, page int) ([]models.Contact, error) {
	records, err := c.ListContacts(ctx, page)
	if err != nil {
		return nil, err
	}
	contacts := make([]models.Contact, 0, len(records))
	for _, r := range records {
		contacts = append(contacts, r.ToContact())
	}
	return contacts, nil
}

// ListProjects returns all projects, following pagination.
func (c *Client) ListProjects(ctx context.Context, openOnly bool) ([]ProjectRecord, error) {
	var all []ProjectRecord
	for page := 1; page <= maxPages; page++ {
		var out listResponse[ProjectRecord]
		q := url.Values{
			"page":     {strconv.Itoa(page)},
			"pageSize": {strconv.Itoa(c.pageSize)},
			"openOnly": {strconv.FormatBool(openOnly)},
		}
		if err := c.get(ctx, "/Integrations/Projects", q, &out); err != nil {
			return nil, err
		}
		all = append(all, validRecords(c, "project", out.Data)...)
		if len(out.Data) < c.pageSize {
			break
		}
	}
	return all, nil
}

// ListTasks returns all tasks of a project, following pagination.
func (c *Client) ListTasks(ctx context.Context, projectID int64) ([]TaskRecord, error) {
	var all []TaskRecord
	for page := 1; page <= maxPages; page++ {
		var out listResponse[TaskRecord]
		q := url.Values{
			"page":      {strconv.Itoa(page)},
			"pageSize":  {strconv.Itoa(c.pageSize)},
			"projectId": {strconv.FormatInt(projectID, 10)},
		}
		if err := c.get(ctx, "/Integrations/Tasks", q, &out); err != nil {
			return nil, err
		}
		all = append(all, validRecords(c, "task", out.Data)...)
		if len(out.Data) < c.pageSize {
			break
		}
	}
	return all, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("albiware %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("albiware %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("albiware %s: decode: %w", path, err)
	}
	return nil
}

// validRecords drops records that fail struct validation.
func validRecords[T any](c *Client, kind string, records []T) []T {
	out := records[:0]
	for _, r := range records {
		if err := c.validate.Struct(r); err != nil {
			slog.Warn("Client.validRecords: skipping invalid record", "kind", kind, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

// ToContact maps a vendor record to a NEW contact.
func (r ContactRecord) ToContact() models.Contact {
	name := strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
	var parts []string
	for _, p := range []string{r.Address1, r.City, r.State, r.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	phone := strings.TrimSpace(r.PhoneNumber)
	if normalized, err := util.NormalizePhone(phone); err == nil {
		phone = normalized
	}
	return models.Contact{
		ExternalID: strconv.FormatInt(r.ID, 10),
		FullName:   name,
		Phone:      phone,
		Email:      strings.TrimSpace(r.Email),
		Address:    strings.Join(parts, " "),
		Status:     models.ContactStatusNew,
	}
}

// ToTask maps a vendor task in project p.
func (r TaskRecord) ToTask(p ProjectRecord) models.Task {
	return models.Task{
		ExternalID:  strconv.FormatInt(r.ID, 10),
		Name:        r.Name,
		ProjectID:   strconv.FormatInt(p.ID, 10),
		ProjectName: p.Name,
		DueAt:       ParseTime(r.DueDate),
		Status:      strings.ToLower(strings.TrimSpace(r.Status)),
		AssignedTo:  r.AssignedTo,
	}
}

// ParseTime accepts RFC 3339 and zone-less ISO timestamps (taken as UTC). Returns nil when unparseable.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
