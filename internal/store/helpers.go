package store

import (
	"database/sql"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime binds t as UTC or NULL.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

const contactColumns = `id, external_id, full_name, phone, email, address, status, outcome,
	project_type, property_type, residential_subtype, has_insurance, insurance_company, referral_source,
	follow_up_due_at, follow_up_sent_at, project_creation_needed, project_created, external_project_id,
	project_created_at, asbestos_testing_required, asbestos_notification_sent_at, year_built,
	created_at, updated_at, completed_at`

func scanContact(row scanner) (*models.Contact, error) {
	var c models.Contact
	var status, outcome string
	var hasInsurance sql.NullBool
	var dueAt, sentAt, projectAt, asbestosAt, completedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.ExternalID, &c.FullName, &c.Phone, &c.Email, &c.Address, &status, &outcome,
		&c.ProjectType, &c.PropertyType, &c.ResidentialSubtype, &hasInsurance, &c.InsuranceCompany, &c.ReferralSource,
		&dueAt, &sentAt, &c.ProjectCreationNeeded, &c.ProjectCreated, &c.ExternalProjectID,
		&projectAt, &c.AsbestosTestingRequired, &asbestosAt, &c.YearBuilt,
		&c.CreatedAt, &c.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = models.ContactStatus(status)
	c.Outcome = models.Outcome(outcome)
	if hasInsurance.Valid {
		v := hasInsurance.Bool
		c.HasInsurance = &v
	}
	c.FollowUpDueAt = timePtr(dueAt)
	c.FollowUpSentAt = timePtr(sentAt)
	c.ProjectCreatedAt = timePtr(projectAt)
	c.AsbestosNotificationSentAt = timePtr(asbestosAt)
	c.CompletedAt = timePtr(completedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

const conversationColumns = `id, contact_id, phone, state, outcome, reminders_sent, started_at, last_message_at, completed_at`

func scanConversation(row scanner) (*models.SMSConversation, error) {
	var c models.SMSConversation
	var state, outcome string
	var completedAt sql.NullTime
	err := row.Scan(&c.ID, &c.ContactID, &c.Phone, &state, &outcome, &c.RemindersSent,
		&c.StartedAt, &c.LastMessageAt, &completedAt)
	if err != nil {
		return nil, err
	}
	c.State = models.ConversationState(state)
	c.Outcome = models.Outcome(outcome)
	c.StartedAt = c.StartedAt.UTC()
	c.LastMessageAt = c.LastMessageAt.UTC()
	c.CompletedAt = timePtr(completedAt)
	return &c, nil
}

const messageColumns = `id, conversation_id, contact_id, direction, from_number, to_number, body,
	provider_message_id, status, error, created_at`

func scanMessage(row scanner) (models.SMSMessage, error) {
	var m models.SMSMessage
	var convID, contactID sql.NullString
	var direction, status string
	err := row.Scan(&m.ID, &convID, &contactID, &direction, &m.From, &m.To, &m.Body,
		&m.ProviderMessageID, &status, &m.Error, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	m.ConversationID = convID.String
	m.ContactID = contactID.String
	m.Direction = models.Direction(direction)
	m.Status = models.MessageStatus(status)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

const taskColumns = `id, external_id, name, project_id, project_name, due_at, status, assigned_to,
	completed_at, created_at, updated_at`

func scanTask(row scanner) (*models.Task, error) {
	var t models.Task
	var dueAt, completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.ExternalID, &t.Name, &t.ProjectID, &t.ProjectName, &dueAt, &t.Status,
		&t.AssignedTo, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.DueAt = timePtr(dueAt)
	t.CompletedAt = timePtr(completedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
