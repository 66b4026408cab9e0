package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/automation"
	"github.com/BTreeMap/LeadPipe/internal/conversation"
	"github.com/BTreeMap/LeadPipe/internal/lifecycle"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/notify"
	"github.com/BTreeMap/LeadPipe/internal/propertylookup"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// Sweep defaults.
const (
	DefaultAutomationTimeout = automation.DefaultTimeout
	DefaultLookupTimeout     = propertylookup.DefaultTimeout
	// AsbestosCutoffYear is the first construction year considered asbestos-free.
	AsbestosCutoffYear = 1988
	maxRetryDelay      = 6 * time.Hour
	backoffLogWindow   = 32
)

// SweepOpts configures a Sweeper.
type SweepOpts struct {
	AutomationTimeout time.Duration
	LookupTimeout     time.Duration
	// RetryBase enables exponential backoff between failed attempts. Zero retries every sweep.
	RetryBase time.Duration
	Now       func() time.Time
}

// SweepOption configures a Sweeper.
type SweepOption func(*SweepOpts)

func WithAutomationTimeout(d time.Duration) SweepOption {
	return func(o *SweepOpts) { o.AutomationTimeout = d }
}

func WithLookupTimeout(d time.Duration) SweepOption {
	return func(o *SweepOpts) { o.LookupTimeout = d }
}

func WithRetryBase(d time.Duration) SweepOption {
	return func(o *SweepOpts) { o.RetryBase = d }
}

func WithClock(now func() time.Time) SweepOption {
	return func(o *SweepOpts) { o.Now = now }
}

// Sweeper creates vendor projects for qualified contacts.
type Sweeper struct {
	store    store.Store
	mgr      *lifecycle.Manager
	trigger  automation.Trigger
	lookup   propertylookup.Lookup
	notifier notify.Notifier
	opts     SweepOpts
}

// SweepResult counts what a sweep did.
type SweepResult struct {
	Pending  int
	Created  int
	Failed   int
	Deferred int
	Asbestos int
	// Disabled is set when no automation is configured; nothing is attempted or logged.
	Disabled bool
}

// NewSweeper creates a Sweeper. A nil lookup disables the asbestos check and a nil notifier
// disables office e-mail.
func NewSweeper(st store.Store, mgr *lifecycle.Manager, trigger automation.Trigger,
	lookup propertylookup.Lookup, notifier notify.Notifier, opts ...SweepOption) *Sweeper {
	cfg := SweepOpts{
		AutomationTimeout: DefaultAutomationTimeout,
		LookupTimeout:     DefaultLookupTimeout,
		Now:               time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Sweeper{store: st, mgr: mgr, trigger: trigger, lookup: lookup, notifier: notifier, opts: cfg}
}

func (s *Sweeper) now() time.Time { return s.opts.Now().UTC() }

// Sweep attempts project creation for every pending contact. Per-contact failures are
// logged as failed attempts and retried on a later sweep.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	pending, err := s.mgr.PendingProjectCreations(ctx)
	if err != nil {
		return res, fmt.Errorf("load pending project creations: %w", err)
	}
	res.Pending = len(pending)
	for _, c := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if s.opts.RetryBase > 0 {
			wait, err := s.retryAt(ctx, c.ID)
			if err != nil {
				slog.Error("Sweeper.Sweep: load attempt history failed", "contact_id", c.ID, "error", err)
			} else if s.now().Before(wait) {
				res.Deferred++
				slog.Debug("Sweeper.Sweep: backing off", "contact_id", c.ID, "until", wait)
				continue
			}
		}
		created, asbestos, err := s.createProject(ctx, c)
		if errors.Is(err, automation.ErrAutomationDisabled) {
			res.Disabled = true
			slog.Warn("Sweeper.Sweep: project automation is not configured", "pending", res.Pending)
			return res, nil
		}
		if err != nil {
			res.Failed++
			continue
		}
		if created {
			res.Created++
		}
		if asbestos {
			res.Asbestos++
		}
	}
	if res.Pending > 0 {
		slog.Info("Sweeper.Sweep: run complete", "pending", res.Pending, "created", res.Created,
			"failed", res.Failed, "deferred", res.Deferred, "asbestos", res.Asbestos)
	}
	return res, nil
}

func (s *Sweeper) createProject(ctx context.Context, c models.Contact) (created bool, asbestos bool, err error) {
	tctx, cancel := context.WithTimeout(ctx, s.opts.AutomationTimeout)
	projectID, err := s.trigger.CreateProject(tctx, models.QualificationFor(c))
	cancel()
	if errors.Is(err, automation.ErrAutomationDisabled) {
		return false, false, err
	}
	if err == nil && projectID == "" {
		err = fmt.Errorf("%w: empty project id", models.ErrAutomationFailure)
	}
	if err != nil {
		if !errors.Is(err, models.ErrAutomationFailure) {
			err = fmt.Errorf("%w: %v", models.ErrAutomationFailure, err)
		}
		s.appendLog(ctx, &models.ProjectCreationLog{ContactID: c.ID, Status: models.ProjectLogFailed, Error: err.Error()})
		slog.Warn("Sweeper.createProject: automation failed", "contact_id", c.ID, "error", err)
		return false, false, err
	}

	ok, err := s.store.MarkProjectCreated(ctx, c.ID, projectID, s.now())
	if err != nil {
		return false, false, fmt.Errorf("mark project created for %s: %w", c.ID, err)
	}
	if !ok {
		slog.Debug("Sweeper.createProject: already created", "contact_id", c.ID)
		return false, false, nil
	}
	s.appendLog(ctx, &models.ProjectCreationLog{ContactID: c.ID, Status: models.ProjectLogSuccess, ExternalProjectID: projectID})
	slog.Info("Sweeper.createProject: project created", "contact_id", c.ID, "external_project_id", projectID)

	c.ExternalProjectID = projectID
	c.ProjectCreated = true
	if _, err := s.mgr.NotifyTechnician(ctx, c, conversation.TemplateProjectCreated); err != nil {
		slog.Error("Sweeper.createProject: confirmation SMS failed", "contact_id", c.ID, "error", err)
	}
	if err := s.notifier.ProjectCreated(ctx, c); err != nil {
		slog.Error("Sweeper.createProject: office e-mail failed", "contact_id", c.ID, "error", err)
	}
	return true, s.checkAsbestos(ctx, c), nil
}

// checkAsbestos warns the technician once when the property predates AsbestosCutoffYear.
func (s *Sweeper) checkAsbestos(ctx context.Context, c models.Contact) bool {
	if s.lookup == nil || c.Address == "" {
		return false
	}
	lctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	year, err := s.lookup.LookupYearBuilt(lctx, c.Address)
	cancel()
	if err != nil {
		slog.Info("Sweeper.checkAsbestos: lookup unavailable", "contact_id", c.ID, "error", err)
		return false
	}
	if year <= 0 || year >= AsbestosCutoffYear {
		return false
	}
	ok, err := s.store.MarkAsbestos(ctx, c.ID, year, s.now())
	if err != nil {
		slog.Error("Sweeper.checkAsbestos: mark failed", "contact_id", c.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}
	c.YearBuilt = year
	c.AsbestosTestingRequired = true
	if _, err := s.mgr.NotifyTechnician(ctx, c, conversation.TemplateAsbestosWarning); err != nil {
		slog.Error("Sweeper.checkAsbestos: warning SMS failed", "contact_id", c.ID, "error", err)
	}
	slog.Info("Sweeper.checkAsbestos: asbestos testing required", "contact_id", c.ID, "year_built", year)
	return true
}

// retryAt returns when the contact may next be attempted, from its consecutive failed logs.
func (s *Sweeper) retryAt(ctx context.Context, contactID string) (time.Time, error) {
	logs, err := s.store.ListProjectLogs(ctx, contactID, backoffLogWindow)
	if err != nil {
		return time.Time{}, err
	}
	failures := 0
	for _, l := range logs {
		if l.Status != models.ProjectLogFailed {
			break
		}
		failures++
	}
	if failures == 0 {
		return time.Time{}, nil
	}
	return logs[0].CreatedAt.Add(RetryDelay(s.opts.RetryBase, failures)), nil
}

// RetryDelay is min(base·2^(n-1), 6h) for n consecutive failures.
func RetryDelay(base time.Duration, failures int) time.Duration {
	if base <= 0 || failures <= 0 {
		return 0
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

func (s *Sweeper) appendLog(ctx context.Context, l *models.ProjectCreationLog) {
	l.CreatedAt = s.now()
	if err := s.store.AppendProjectLog(ctx, l); err != nil {
		slog.Error("Sweeper.appendLog: failed", "contact_id", l.ContactID, "status", l.Status, "error", err)
	}
}
