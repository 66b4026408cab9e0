// Package tasks mirrors vendor project tasks and texts staff when they come due.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/albiware"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// Defaults for task reminders.
const (
	DefaultReminderBefore = 24 * time.Hour
	DefaultOverdueEvery   = 24 * time.Hour
	DefaultMaxReminders   = 5
)

// Source lists vendor projects and their tasks.
type Source interface {
	ListProjects(ctx context.Context, openOnly bool) ([]albiware.ProjectRecord, error)
	ListTasks(ctx context.Context, projectID int64) ([]albiware.TaskRecord, error)
}

// Sender delivers staff reminders and records every attempt in the message ledger.
type Sender interface {
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	SendAudited(ctx context.Context, conversationID, contactID, to, body string) (string, error)
}

// Opts configures a Syncer.
type Opts struct {
	ReminderBefore time.Duration
	OverdueEvery   time.Duration
	MaxReminders   int
	Now            func() time.Time
}

// Option configures a Syncer.
type Option func(*Opts)

// WithReminderBefore sets how long before the due date the first reminder goes out.
func WithReminderBefore(d time.Duration) Option {
	return func(o *Opts) { o.ReminderBefore = d }
}

// WithOverdueEvery sets the spacing of overdue reminders.
func WithOverdueEvery(d time.Duration) Option {
	return func(o *Opts) { o.OverdueEvery = d }
}

// WithMaxReminders caps reminders per task and recipient.
func WithMaxReminders(n int) Option {
	return func(o *Opts) { o.MaxReminders = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Syncer pulls tasks from the vendor and sends staff reminders.
type Syncer struct {
	store store.TaskRepo
	src   Source
	send  Sender
	staff []string
	opts  Opts
}

// SyncResult counts what a task sync did.
type SyncResult struct {
	Projects  int
	Tasks     int
	Created   int
	Completed int
	Failed    int
}

// NewSyncer creates a Syncer. Invalid staff numbers are dropped with a warning.
func NewSyncer(st store.TaskRepo, src Source, send Sender, staff []string, opts ...Option) *Syncer {
	cfg := Opts{
		ReminderBefore: DefaultReminderBefore,
		OverdueEvery:   DefaultOverdueEvery,
		MaxReminders:   DefaultMaxReminders,
		Now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	var phones []string
	for _, p := range staff {
		canonical, err := send.ValidateAndCanonicalizeRecipient(p)
		if err != nil {
			slog.Warn("tasks.NewSyncer: dropping invalid staff phone", "phone", p, "error", err)
			continue
		}
		phones = append(phones, canonical)
	}
	return &Syncer{store: st, src: src, send: send, staff: phones, opts: cfg}
}

// Run syncs tasks and then sends due reminders.
func (s *Syncer) Run(ctx context.Context) error {
	if _, err := s.Sync(ctx); err != nil {
		return err
	}
	_, _, err := s.Notify(ctx)
	return err
}

// Sync upserts the tasks of every open vendor project.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	projects, err := s.src.ListProjects(ctx, true)
	if err != nil {
		return res, fmt.Errorf("list projects: %w", err)
	}
	now := s.opts.Now().UTC()
	for _, p := range projects {
		res.Projects++
		records, err := s.src.ListTasks(ctx, p.ID)
		if err != nil {
			res.Failed++
			slog.Error("Syncer.Sync: list tasks failed", "project_id", p.ID, "error", err)
			continue
		}
		for _, r := range records {
			t := r.ToTask(p)
			res.Tasks++
			created, completed, err := s.store.UpsertTask(ctx, &t, now)
			if err != nil {
				res.Failed++
				slog.Error("Syncer.Sync: upsert failed", "external_id", t.ExternalID, "error", err)
				continue
			}
			if created {
				res.Created++
			}
			if completed {
				res.Completed++
				slog.Info("Syncer.Sync: task completed", "task_id", t.ID, "name", t.Name, "project", t.ProjectName)
			}
		}
	}
	slog.Info("Syncer.Sync: run complete", "projects", res.Projects, "tasks", res.Tasks,
		"created", res.Created, "completed", res.Completed, "failed", res.Failed)
	return res, nil
}

// Notify texts each staff phone about open tasks that are due soon or overdue.
func (s *Syncer) Notify(ctx context.Context) (sent int, failed int, err error) {
	if len(s.staff) == 0 {
		return 0, 0, nil
	}
	open, err := s.store.OpenTasks(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load open tasks: %w", err)
	}
	now := s.opts.Now().UTC()
	for _, t := range open {
		history, err := s.store.TaskNotifications(ctx, t.ID)
		if err != nil {
			failed++
			slog.Error("Syncer.Notify: load history failed", "task_id", t.ID, "error", err)
			continue
		}
		for _, phone := range s.staff {
			kind, ok := s.due(t, forPhone(history, phone), now)
			if !ok {
				continue
			}
			sid, err := s.send.SendAudited(ctx, "", "", phone, Render(kind, t, now))
			if err != nil {
				failed++
				slog.Error("Syncer.Notify: send failed", "task_id", t.ID, "phone", phone, "error", err)
				continue
			}
			n := &models.TaskNotification{TaskID: t.ID, Phone: phone, Kind: kind, ProviderMessageID: sid, SentAt: now}
			if err := s.store.AppendTaskNotification(ctx, n); err != nil {
				failed++
				slog.Error("Syncer.Notify: record failed", "task_id", t.ID, "error", err)
				continue
			}
			sent++
		}
	}
	if sent > 0 || failed > 0 {
		slog.Info("Syncer.Notify: run complete", "sent", sent, "failed", failed)
	}
	return sent, failed, nil
}

// due decides whether a reminder is owed given what was already sent to one recipient.
func (s *Syncer) due(t models.Task, sent []models.TaskNotification, now time.Time) (models.NotificationKind, bool) {
	if t.DueAt == nil || len(sent) >= s.opts.MaxReminders {
		return "", false
	}
	until := t.DueAt.Sub(now)
	switch {
	case until > 0:
		if len(sent) == 0 && until <= s.opts.ReminderBefore {
			return models.NotificationReminder, true
		}
		return "", false
	case len(sent) == 0:
		return models.NotificationOverdue, true
	default:
		last := sent[len(sent)-1].SentAt
		if now.Sub(last) >= s.opts.OverdueEvery {
			return models.NotificationOverdue, true
		}
		return "", false
	}
}

func forPhone(all []models.TaskNotification, phone string) []models.TaskNotification {
	var out []models.TaskNotification
	for _, n := range all {
		if n.Phone == phone {
			out = append(out, n)
		}
	}
	return out
}

// Render builds the staff SMS for a task reminder.
func Render(kind models.NotificationKind, t models.Task, now time.Time) string {
	var b strings.Builder
	if kind == models.NotificationOverdue {
		b.WriteString("URGENT task overdue:\n\n")
	} else {
		b.WriteString("Task reminder:\n\n")
	}
	fmt.Fprintf(&b, "Task: %s\nProject: %s\n", t.Name, t.ProjectName)
	if t.AssignedTo != "" {
		fmt.Fprintf(&b, "Assigned to: %s\n", t.AssignedTo)
	}
	if kind == models.NotificationOverdue {
		days := int(now.Sub(*t.DueAt).Hours() / 24)
		fmt.Fprintf(&b, "Status: %d days OVERDUE\n\nPlease complete this task as soon as possible.", days)
	} else {
		fmt.Fprintf(&b, "Due: %s\n\nPlease complete this task on time.", t.DueAt.Format("Jan 2, 3:04 PM MST"))
	}
	return b.String()
}
