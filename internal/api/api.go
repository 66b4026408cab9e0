// Package api provides the LeadPipe HTTP server: the Twilio SMS webhook and the admin/read API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/BTreeMap/LeadPipe/internal/lifecycle"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// Route paths.
const (
	RouteHealth           = "/health"
	RouteWebhookSMS       = "/webhooks/sms"
	RouteContacts         = "/api/contacts"
	RouteContact          = "/api/contacts/{id}"
	RouteContactFollowUp  = "/api/contacts/{id}/follow-up"
	RouteConversations    = "/api/conversations"
	RouteConversationMsgs = "/api/conversations/{id}/messages"
	RouteMessages         = "/api/messages"
	RouteTasks            = "/api/tasks"
	RouteProjectLogs      = "/api/projects/logs"
	RouteAnalyticsSummary = "/api/analytics/summary"
)

// Server defaults.
const (
	DefaultAddr              = ":8080"
	DefaultListLimit         = 100
	DefaultReadHeaderTimeout = 10 * time.Second
)

// SignatureValidator checks the X-Twilio-Signature of a webhook request.
type SignatureValidator interface {
	ValidateSignature(url string, params map[string]string, signature string) bool
}

// Opts configures a Server.
type Opts struct {
	Addr           string
	AllowedOrigins []string
	Validator      SignatureValidator
	// WebhookBaseURL is the public scheme and host Twilio signs requests against.
	WebhookBaseURL string
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAllowedOrigins sets the CORS origins allowed to call the admin API.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *Opts) { o.AllowedOrigins = origins }
}

// WithSignatureValidation enables webhook signature checks against baseURL.
func WithSignatureValidation(v SignatureValidator, baseURL string) Option {
	return func(o *Opts) {
		o.Validator = v
		o.WebhookBaseURL = baseURL
	}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store    store.Store
	mgr      *lifecycle.Manager
	validate *validator.Validate
	opts     Opts
	router   *mux.Router
	http     *http.Server
}

// NewServer creates a Server with its routes registered.
func NewServer(st store.Store, mgr *lifecycle.Manager, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{store: st, mgr: mgr, validate: validator.New(), opts: cfg, router: mux.NewRouter()}
	s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc(RouteHealth, s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteWebhookSMS, s.smsWebhookHandler).Methods(http.MethodPost)

	r.HandleFunc(RouteContacts, s.listContactsHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteContact, s.getContactHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteContactFollowUp, s.scheduleFollowUpHandler).Methods(http.MethodPost)
	r.HandleFunc(RouteConversations, s.listConversationsHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteConversationMsgs, s.conversationMessagesHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteMessages, s.outOfBandMessagesHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteTasks, s.listTasksHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteProjectLogs, s.projectLogsHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteAnalyticsSummary, s.summaryHandler).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Warn("Server: method not allowed", "method", r.Method, "path", r.URL.Path)
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

// Handler returns the router wrapped in CORS handling. Without allowed origins no
// cross-origin request is allowed.
func (s *Server) Handler() http.Handler {
	opts := cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(opts).Handler(s.router)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Server.Start: listening", "addr", s.opts.Addr,
		"signature_validation", s.opts.Validator != nil)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
