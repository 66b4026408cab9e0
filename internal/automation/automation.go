// Package automation triggers project creation in the vendor system.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// DefaultTimeout bounds a single project creation.
const DefaultTimeout = 2 * time.Minute

// ErrAutomationDisabled is returned by the disabled trigger.
var ErrAutomationDisabled = errors.New("project automation is not configured")

// Trigger creates a vendor project from a completed qualification and returns its id.
// Failures wrap models.ErrAutomationFailure.
type Trigger interface {
	CreateProject(ctx context.Context, q models.Qualification) (string, error)
}

// Opts configures the HTTP trigger.
type Opts struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Option configures the HTTP trigger.
type Option func(*Opts)

// WithURL sets the automation endpoint.
func WithURL(u string) Option { return func(o *Opts) { o.URL = u } }

// WithToken sets the bearer token sent to the endpoint.
func WithToken(token string) Option { return func(o *Opts) { o.Token = token } }

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option { return func(o *Opts) { o.Timeout = d } }

// HTTPTrigger posts the qualification as JSON and expects {"projectId": "..."}.
type HTTPTrigger struct {
	url   string
	token string
	http  *http.Client
}

// NewHTTPTrigger builds an HTTPTrigger. A URL is required.
func NewHTTPTrigger(opts ...Option) (*HTTPTrigger, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("automation url must be provided")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HTTPTrigger{url: cfg.URL, token: cfg.Token, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

type createProjectResponse struct {
	ProjectID string `json:"projectId"`
	Error     string `json:"error,omitempty"`
}

func (t *HTTPTrigger) CreateProject(ctx context.Context, q models.Qualification) (string, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("%w: encode qualification: %v", models.ErrAutomationFailure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrAutomationFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	slog.Debug("HTTPTrigger.CreateProject: requesting project", "contact_id", q.ContactID)
	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrAutomationFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", models.ErrAutomationFailure, err)
	}
	var out createProjectResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("%w: status %d: %s", models.ErrAutomationFailure, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", models.ErrAutomationFailure, decodeErr)
	}
	if out.ProjectID == "" {
		return "", fmt.Errorf("%w: response has no projectId", models.ErrAutomationFailure)
	}
	slog.Info("HTTPTrigger.CreateProject: project created", "contact_id", q.ContactID, "project_id", out.ProjectID)
	return out.ProjectID, nil
}

// Disabled is used when no automation endpoint is configured. Every call fails, so
// contacts stay pending until an endpoint is configured.
type Disabled struct{}

func (Disabled) CreateProject(context.Context, models.Qualification) (string, error) {
	return "", fmt.Errorf("%w: %w", models.ErrAutomationFailure, ErrAutomationDisabled)
}
