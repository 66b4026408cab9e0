package conversation

import (
	"fmt"
	"strings"
)

// TemplateID names an outgoing SMS.
type TemplateID string

const (
	TemplateNone                TemplateID = ""
	TemplateContactConfirmation TemplateID = "contact_confirmation"
	TemplateOutcomeMenu         TemplateID = "outcome_menu"
	TemplateNoContactAck        TemplateID = "no_contact_ack"
	TemplateOutcomeThanks       TemplateID = "outcome_thanks"
	TemplateProjectTypeMenu     TemplateID = "project_type_menu"
	TemplatePropertyTypeMenu    TemplateID = "property_type_menu"
	TemplateResidentialMenu     TemplateID = "residential_subtype_menu"
	TemplateInsuranceQuestion   TemplateID = "insurance_question"
	TemplateInsuranceCompany    TemplateID = "insurance_company"
	TemplateReferralMenu        TemplateID = "referral_source_menu"
	TemplateSummary             TemplateID = "summary"
	TemplateProjectCreated      TemplateID = "project_created"
	TemplateAsbestosWarning     TemplateID = "asbestos_warning"
)

// Params fills a template. Fields a template does not use are ignored.
type Params struct {
	Name               string
	Technician         string
	ProjectType        string
	PropertyType       string
	ResidentialSubtype string
	Insurance          string
	ReferralSource     string
	ExternalProjectID  string
	Address            string
	YearBuilt          int
}

// Render produces the SMS body for id.
func Render(id TemplateID, p Params) string {
	switch id {
	case TemplateContactConfirmation:
		greeting := "Hi"
		if p.Technician != "" {
			greeting = "Hi " + p.Technician
		}
		return fmt.Sprintf("%s, were you able to make contact with %s yet? Reply YES or NO.", greeting, p.Name)
	case TemplateOutcomeMenu:
		return fmt.Sprintf("Great! What was the outcome with %s?\n\nReply with:\n%s", p.Name, menuText(OutcomeOptions))
	case TemplateNoContactAck:
		return fmt.Sprintf("Got it. I've noted that you couldn't reach %s.", p.Name)
	case TemplateOutcomeThanks:
		return fmt.Sprintf("Got it, thanks for the update on %s!", p.Name)
	case TemplateProjectTypeMenu:
		return fmt.Sprintf("Great! I need a few details to create the project for %s.\n\nWhat type of project?\n%s",
			p.Name, menuText(ProjectTypeOptions))
	case TemplatePropertyTypeMenu:
		return "What type of property?\n" + menuText(PropertyTypeOptions)
	case TemplateResidentialMenu:
		return "What type of residential property?\n" + menuText(ResidentialSubtypeOptions)
	case TemplateInsuranceQuestion:
		return fmt.Sprintf("Is %s going through insurance? Reply YES or NO.", p.Name)
	case TemplateInsuranceCompany:
		return "What insurance company?"
	case TemplateReferralMenu:
		return "How did they hear about us?\n" + menuText(ReferralSourceOptions)
	case TemplateSummary:
		return renderSummary(p)
	case TemplateProjectCreated:
		return fmt.Sprintf("Project created for %s (ID %s).", p.Name, p.ExternalProjectID)
	case TemplateAsbestosWarning:
		return fmt.Sprintf("ASBESTOS ALERT: the property for %s at %s was built in %d. Asbestos testing is required before any demolition.",
			p.Name, p.Address, p.YearBuilt)
	default:
		return ""
	}
}

func renderSummary(p Params) string {
	property := p.PropertyType
	if p.ResidentialSubtype != "" {
		property += " - " + p.ResidentialSubtype
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Perfect! I have all the details for %s:\n", p.Name)
	fmt.Fprintf(&b, "• Project: %s\n", p.ProjectType)
	fmt.Fprintf(&b, "• Property: %s\n", property)
	fmt.Fprintf(&b, "• Insurance: %s\n", p.Insurance)
	fmt.Fprintf(&b, "• Source: %s\n\n", p.ReferralSource)
	b.WriteString("I'll create the project now. You'll get a confirmation once it's done!")
	return b.String()
}

func menuText(options []Option) string {
	lines := make([]string, len(options))
	for i, o := range options {
		lines[i] = fmt.Sprintf("%d - %s", i+1, o.Label)
	}
	return strings.Join(lines, "\n")
}
