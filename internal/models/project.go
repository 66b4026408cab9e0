package models

import "time"

// ProjectLogStatus is the result of one automation attempt.
type ProjectLogStatus string

const (
	ProjectLogPending ProjectLogStatus = "pending"
	ProjectLogSuccess ProjectLogStatus = "success"
	ProjectLogFailed  ProjectLogStatus = "failed"
)

// ProjectCreationLog records one attempt of the project automation trigger. Rows are never mutated.
type ProjectCreationLog struct {
	ID                string           `json:"id"`
	ContactID         string           `json:"contact_id"`
	Status            ProjectLogStatus `json:"status"`
	Error             string           `json:"error,omitempty"`
	ExternalProjectID string           `json:"external_project_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Qualification is the data handed to the project automation trigger.
type Qualification struct {
	ContactID          string `json:"contactId"`
	ExternalContactID  string `json:"externalContactId"`
	FullName           string `json:"fullName"`
	Phone              string `json:"phone,omitempty"`
	Address            string `json:"address,omitempty"`
	ProjectType        string `json:"projectType"`
	PropertyType       string `json:"propertyType"`
	ResidentialSubtype string `json:"residentialSubtype,omitempty"`
	HasInsurance       bool   `json:"hasInsurance"`
	InsuranceCompany   string `json:"insuranceCompany,omitempty"`
	ReferralSource     string `json:"referralSource"`
}

// QualificationFor builds the automation payload from a contact.
func QualificationFor(c Contact) Qualification {
	q := Qualification{
		ContactID:          c.ID,
		ExternalContactID:  c.ExternalID,
		FullName:           c.FullName,
		Phone:              c.Phone,
		Address:            c.Address,
		ProjectType:        c.ProjectType,
		PropertyType:       c.PropertyType,
		ResidentialSubtype: c.ResidentialSubtype,
		InsuranceCompany:   c.InsuranceCompany,
		ReferralSource:     c.ReferralSource,
	}
	if c.HasInsurance != nil {
		q.HasInsurance = *c.HasInsurance
	}
	return q
}
