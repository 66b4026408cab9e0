// Package store provides storage backends for LeadPipe.
//
// SQLite and PostgreSQL share one SQL implementation; the backends differ in driver,
// placeholder style, pool settings and unique-violation detection. Schema migrations are
// embedded and applied when a store is opened.
package store

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Opts holds configuration for a store backend.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or key/value DSNs and "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// ContactFilter narrows ListContacts. Zero values mean no filter.
type ContactFilter struct {
	Status models.ContactStatus
	Limit  int
}

// ContactRepo persists contacts and the lifecycle claims on them.
type ContactRepo interface {
	// UpsertContact inserts a contact keyed by external id or refreshes its vendor fields.
	// c.ID is set to the stored id. Returns true when the contact was inserted.
	UpsertContact(ctx context.Context, c *models.Contact) (bool, error)
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	ListContacts(ctx context.Context, f ContactFilter) ([]models.Contact, error)
	// ScheduleFollowUp moves a NEW contact to FOLLOW_UP_SCHEDULED. Returns false if the contact
	// was not NEW.
	ScheduleFollowUp(ctx context.Context, id string, dueAt, now time.Time) (bool, error)
	DueFollowUps(ctx context.Context, now time.Time, limit int) ([]models.Contact, error)
	// ClaimFollowUp flips FOLLOW_UP_SCHEDULED to FOLLOW_UP_SENT and inserts conv in one
	// transaction. Returns false if another run already claimed the contact.
	ClaimFollowUp(ctx context.Context, contactID string, conv *models.SMSConversation, now time.Time) (bool, error)
	PendingProjectCreations(ctx context.Context, limit int) ([]models.Contact, error)
	MarkProjectCreated(ctx context.Context, id, externalProjectID string, now time.Time) (bool, error)
	// MarkAsbestos flags the contact unless a warning was already recorded.
	MarkAsbestos(ctx context.Context, id string, yearBuilt int, now time.Time) (bool, error)
}

// ConversationRepo persists qualification conversations.
type ConversationRepo interface {
	GetConversation(ctx context.Context, id string) (*models.SMSConversation, error)
	// ActiveConversationByPhone returns the most recently active non-terminal conversation
	// with phone, or nil.
	ActiveConversationByPhone(ctx context.Context, phone string) (*models.SMSConversation, error)
	ActiveConversationForContact(ctx context.Context, contactID string) (*models.SMSConversation, error)
	ListConversations(ctx context.Context, activeOnly bool, limit int) ([]models.SMSConversation, error)
	// ApplyStep moves conversation id from expected to next and applies upd to its contact
	// atomically. Returns models.ErrTransitionConflict if the state is no longer expected.
	ApplyStep(ctx context.Context, id string, expected, next models.ConversationState, upd models.ContactUpdate, now time.Time) error
	StalledConversations(ctx context.Context, idleSince time.Time, maxReminders int) ([]models.SMSConversation, error)
	// RecordReminder bumps reminders_sent if the conversation is still in state with sent reminders.
	RecordReminder(ctx context.Context, id string, state models.ConversationState, sent int, now time.Time) (bool, error)
}

// MessageRepo is the append-only SMS ledger.
type MessageRepo interface {
	AppendMessage(ctx context.Context, m *models.SMSMessage) error
	// ListMessages returns oldest first. An empty conversationID lists the messages that belong
	// to no conversation: unsolicited replies, technician notices and staff task reminders.
	ListMessages(ctx context.Context, conversationID string) ([]models.SMSMessage, error)
}

// ProjectLogRepo is the append-only ledger of automation attempts.
type ProjectLogRepo interface {
	AppendProjectLog(ctx context.Context, l *models.ProjectCreationLog) error
	// ListProjectLogs returns newest first. An empty contactID lists all contacts.
	ListProjectLogs(ctx context.Context, contactID string, limit int) ([]models.ProjectCreationLog, error)
}

// TaskRepo persists vendor tasks and the staff reminders sent for them.
type TaskRepo interface {
	// UpsertTask returns whether the task was inserted and whether this call observed its completion.
	UpsertTask(ctx context.Context, t *models.Task, now time.Time) (created bool, completed bool, err error)
	OpenTasks(ctx context.Context) ([]models.Task, error)
	ListTasks(ctx context.Context, limit int) ([]models.Task, error)
	AppendTaskNotification(ctx context.Context, n *models.TaskNotification) error
	TaskNotifications(ctx context.Context, taskID string) ([]models.TaskNotification, error)
}

// Store is the full persistence surface used by LeadPipe.
type Store interface {
	ContactRepo
	ConversationRepo
	MessageRepo
	ProjectLogRepo
	TaskRepo
	DedupRepo
	Summary(ctx context.Context) (*models.Summary, error)
	io.Closer
}
