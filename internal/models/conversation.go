package models

import "time"

// ConversationState is the position of a qualification dialogue.
type ConversationState string

const (
	StateAwaitingContactConfirmation ConversationState = "awaiting_contact_confirmation"
	StateAwaitingOutcome             ConversationState = "awaiting_outcome"
	StateAwaitingProjectType         ConversationState = "awaiting_project_type"
	StateAwaitingPropertyType        ConversationState = "awaiting_property_type"
	StateAwaitingResidentialSubtype  ConversationState = "awaiting_residential_subtype"
	StateAwaitingInsurance           ConversationState = "awaiting_insurance"
	StateAwaitingInsuranceCompany    ConversationState = "awaiting_insurance_company"
	StateAwaitingReferralSource      ConversationState = "awaiting_referral_source"
	StateCompleted                   ConversationState = "completed"
)

// IsTerminal reports whether no further transitions are possible.
func (s ConversationState) IsTerminal() bool {
	return s == StateCompleted
}

// SMSConversation is one qualification dialogue with a technician about a contact.
type SMSConversation struct {
	ID            string            `json:"id"`
	ContactID     string            `json:"contact_id"`
	Phone         string            `json:"phone"`
	State         ConversationState `json:"state"`
	Outcome       Outcome           `json:"outcome,omitempty"`
	RemindersSent int               `json:"reminders_sent"`
	StartedAt     time.Time         `json:"started_at"`
	LastMessageAt time.Time         `json:"last_message_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}
