package models

import "time"

// ContactStatus tracks where a lead is in the follow-up lifecycle.
type ContactStatus string

const (
	ContactStatusNew               ContactStatus = "new"
	ContactStatusFollowUpScheduled ContactStatus = "follow_up_scheduled"
	ContactStatusFollowUpSent      ContactStatus = "follow_up_sent"
	ContactStatusContactMade       ContactStatus = "contact_made"
	ContactStatusCompleted         ContactStatus = "completed"
	ContactStatusNoContact         ContactStatus = "no_contact"
)

// IsValidContactStatus checks if the given status is known.
func IsValidContactStatus(s ContactStatus) bool {
	switch s {
	case ContactStatusNew, ContactStatusFollowUpScheduled, ContactStatusFollowUpSent,
		ContactStatusContactMade, ContactStatusCompleted, ContactStatusNoContact:
		return true
	default:
		return false
	}
}

// Outcome is the categorical result of a contact attempt.
type Outcome string

const (
	OutcomeNone             Outcome = ""
	OutcomeAppointmentSet   Outcome = "appointment_set"
	OutcomeLookingForQuotes Outcome = "looking_for_quotes"
	OutcomeWasteOfTime      Outcome = "waste_of_time"
	OutcomeSomethingElse    Outcome = "something_else"
	OutcomeNoContact        Outcome = "no_contact"
)

// Label returns the human readable form used in SMS templates.
func (o Outcome) Label() string {
	switch o {
	case OutcomeAppointmentSet:
		return "Appointment set"
	case OutcomeLookingForQuotes:
		return "Looking for quotes"
	case OutcomeWasteOfTime:
		return "Waste of time"
	case OutcomeSomethingElse:
		return "Something else"
	case OutcomeNoContact:
		return "No contact"
	default:
		return ""
	}
}

// Contact represents a prospective customer synced from the vendor CRM.
type Contact struct {
	ID         string        `json:"id"`
	ExternalID string        `json:"external_id"`
	FullName   string        `json:"full_name"`
	Phone      string        `json:"phone,omitempty"`
	Email      string        `json:"email,omitempty"`
	Address    string        `json:"address,omitempty"`
	Status     ContactStatus `json:"status"`
	Outcome    Outcome       `json:"outcome,omitempty"`

	// Qualification fields, empty until collected by the conversation.
	ProjectType        string `json:"project_type,omitempty"`
	PropertyType       string `json:"property_type,omitempty"`
	ResidentialSubtype string `json:"residential_subtype,omitempty"`
	HasInsurance       *bool  `json:"has_insurance,omitempty"`
	InsuranceCompany   string `json:"insurance_company,omitempty"`
	ReferralSource     string `json:"referral_source,omitempty"`

	FollowUpDueAt  *time.Time `json:"follow_up_due_at,omitempty"`
	FollowUpSentAt *time.Time `json:"follow_up_sent_at,omitempty"`

	ProjectCreationNeeded bool       `json:"project_creation_needed"`
	ProjectCreated        bool       `json:"project_created"`
	ExternalProjectID     string     `json:"external_project_id,omitempty"`
	ProjectCreatedAt      *time.Time `json:"project_created_at,omitempty"`

	AsbestosTestingRequired    bool       `json:"asbestos_testing_required"`
	AsbestosNotificationSentAt *time.Time `json:"asbestos_notification_sent_at,omitempty"`
	YearBuilt                  int        `json:"year_built,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ContactUpdate carries the field changes produced by one conversation step.
// Nil fields are left untouched.
type ContactUpdate struct {
	Status                *ContactStatus
	Outcome               *Outcome
	ProjectType           *string
	PropertyType          *string
	ResidentialSubtype    *string
	HasInsurance          *bool
	InsuranceCompany      *string
	ReferralSource        *string
	ProjectCreationNeeded *bool
	// Completed stamps completed_at on the contact.
	Completed bool
}

// IsEmpty reports whether the update changes nothing.
func (u ContactUpdate) IsEmpty() bool {
	return u.Status == nil && u.Outcome == nil && u.ProjectType == nil && u.PropertyType == nil &&
		u.ResidentialSubtype == nil && u.HasInsurance == nil && u.InsuranceCompany == nil &&
		u.ReferralSource == nil && u.ProjectCreationNeeded == nil && !u.Completed
}

// Apply copies the non-nil fields onto c.
func (u ContactUpdate) Apply(c *Contact, now time.Time) {
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.Outcome != nil {
		c.Outcome = *u.Outcome
	}
	if u.ProjectType != nil {
		c.ProjectType = *u.ProjectType
	}
	if u.PropertyType != nil {
		c.PropertyType = *u.PropertyType
	}
	if u.ResidentialSubtype != nil {
		c.ResidentialSubtype = *u.ResidentialSubtype
	}
	if u.HasInsurance != nil {
		v := *u.HasInsurance
		c.HasInsurance = &v
	}
	if u.InsuranceCompany != nil {
		c.InsuranceCompany = *u.InsuranceCompany
	}
	if u.ReferralSource != nil {
		c.ReferralSource = *u.ReferralSource
	}
	if u.ProjectCreationNeeded != nil {
		c.ProjectCreationNeeded = *u.ProjectCreationNeeded
	}
	if u.Completed {
		t := now
		c.CompletedAt = &t
	}
	c.UpdatedAt = now
}
