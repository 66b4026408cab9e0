package conversation

import (
	"fmt"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Step is the result of advancing a conversation by one reply.
type Step struct {
	Next     models.ConversationState
	Updates  models.ContactUpdate
	Template TemplateID
	Params   Params
	// Reprompt is set when the reply was not recognized and the current prompt is re-sent.
	Reprompt bool
}

// Transitioned reports whether the step moves the conversation or changes the contact.
func (s Step) Transitioned(from models.ConversationState) bool {
	return s.Next != from || !s.Updates.IsEmpty()
}

type transitionFunc func(tok Token, c models.Contact) (Step, bool)

type stateDef struct {
	shape   Shape
	prompt  TemplateID
	advance transitionFunc
}

var table = map[models.ConversationState]stateDef{
	models.StateAwaitingContactConfirmation: {YesNo(), TemplateContactConfirmation, fromContactConfirmation},
	models.StateAwaitingOutcome:             {Menu(OutcomeOptions), TemplateOutcomeMenu, fromOutcome},
	models.StateAwaitingProjectType:         {Menu(ProjectTypeOptions), TemplateProjectTypeMenu, fromProjectType},
	models.StateAwaitingPropertyType:        {Menu(PropertyTypeOptions), TemplatePropertyTypeMenu, fromPropertyType},
	models.StateAwaitingResidentialSubtype:  {Menu(ResidentialSubtypeOptions), TemplateResidentialMenu, fromResidentialSubtype},
	models.StateAwaitingInsurance:           {YesNo(), TemplateInsuranceQuestion, fromInsurance},
	models.StateAwaitingInsuranceCompany:    {FreeText(), TemplateInsuranceCompany, fromInsuranceCompany},
	models.StateAwaitingReferralSource:      {Menu(ReferralSourceOptions), TemplateReferralMenu, fromReferralSource},
}

// ExpectedShape returns the reply shape for state. Terminal and unknown states accept free text.
func ExpectedShape(state models.ConversationState) Shape {
	if def, ok := table[state]; ok {
		return def.shape
	}
	return FreeText()
}

// Prompt returns the template that asks the question of state.
func Prompt(state models.ConversationState) TemplateID {
	return table[state].prompt
}

// Advance computes the next state, the contact updates and the reply template for tok.
// An unrecognized reply leaves the state unchanged and re-sends the prompt. A completed
// conversation never transitions.
func Advance(state models.ConversationState, tok Token, c models.Contact) (Step, error) {
	if state.IsTerminal() {
		return Step{Next: state}, nil
	}
	def, ok := table[state]
	if !ok {
		return Step{}, fmt.Errorf("unknown conversation state %q", state)
	}
	if tok.Kind != TokenUnrecognized {
		if step, ok := def.advance(tok, c); ok {
			merged := c
			step.Updates.Apply(&merged, time.Time{})
			step.Params = ParamsFor(merged)
			return step, nil
		}
	}
	return Step{Next: state, Template: def.prompt, Params: ParamsFor(c), Reprompt: true}, nil
}

// ParamsFor builds template parameters from the contact's current fields.
func ParamsFor(c models.Contact) Params {
	insurance := "No"
	if c.HasInsurance != nil && *c.HasInsurance {
		insurance = "Yes"
		if c.InsuranceCompany != "" {
			insurance = "Yes - " + c.InsuranceCompany
		}
	}
	return Params{
		Name:               c.FullName,
		ProjectType:        c.ProjectType,
		PropertyType:       c.PropertyType,
		ResidentialSubtype: c.ResidentialSubtype,
		Insurance:          insurance,
		ReferralSource:     c.ReferralSource,
		ExternalProjectID:  c.ExternalProjectID,
		Address:            c.Address,
		YearBuilt:          c.YearBuilt,
	}
}

func fromContactConfirmation(tok Token, _ models.Contact) (Step, bool) {
	switch tok.Kind {
	case TokenYes:
		return Step{
			Next:     models.StateAwaitingOutcome,
			Updates:  models.ContactUpdate{Status: statusPtr(models.ContactStatusContactMade)},
			Template: TemplateOutcomeMenu,
		}, true
	case TokenNo:
		return Step{
			Next: models.StateCompleted,
			Updates: models.ContactUpdate{
				Status:    statusPtr(models.ContactStatusNoContact),
				Outcome:   outcomePtr(models.OutcomeNoContact),
				Completed: true,
			},
			Template: TemplateNoContactAck,
		}, true
	}
	return Step{}, false
}

func fromOutcome(tok Token, _ models.Contact) (Step, bool) {
	if tok.Kind != TokenChoice || tok.Choice < 1 || tok.Choice > len(outcomeByChoice) {
		return Step{}, false
	}
	outcome := outcomeByChoice[tok.Choice-1]
	if tok.Choice == outcomeAppointment {
		return Step{
			Next:     models.StateAwaitingProjectType,
			Updates:  models.ContactUpdate{Outcome: outcomePtr(outcome)},
			Template: TemplateProjectTypeMenu,
		}, true
	}
	return Step{
		Next: models.StateCompleted,
		Updates: models.ContactUpdate{
			Status:    statusPtr(models.ContactStatusCompleted),
			Outcome:   outcomePtr(outcome),
			Completed: true,
		},
		Template: TemplateOutcomeThanks,
	}, true
}

func fromProjectType(tok Token, _ models.Contact) (Step, bool) {
	label, ok := choiceLabel(tok, ProjectTypeOptions)
	if !ok {
		return Step{}, false
	}
	return Step{
		Next:     models.StateAwaitingPropertyType,
		Updates:  models.ContactUpdate{ProjectType: &label},
		Template: TemplatePropertyTypeMenu,
	}, true
}

func fromPropertyType(tok Token, _ models.Contact) (Step, bool) {
	label, ok := choiceLabel(tok, PropertyTypeOptions)
	if !ok {
		return Step{}, false
	}
	if tok.Choice == propertyResidential {
		return Step{
			Next:     models.StateAwaitingResidentialSubtype,
			Updates:  models.ContactUpdate{PropertyType: &label},
			Template: TemplateResidentialMenu,
		}, true
	}
	return Step{
		Next:     models.StateAwaitingInsurance,
		Updates:  models.ContactUpdate{PropertyType: &label},
		Template: TemplateInsuranceQuestion,
	}, true
}

func fromResidentialSubtype(tok Token, _ models.Contact) (Step, bool) {
	label, ok := choiceLabel(tok, ResidentialSubtypeOptions)
	if !ok {
		return Step{}, false
	}
	return Step{
		Next:     models.StateAwaitingInsurance,
		Updates:  models.ContactUpdate{ResidentialSubtype: &label},
		Template: TemplateInsuranceQuestion,
	}, true
}

func fromInsurance(tok Token, _ models.Contact) (Step, bool) {
	switch tok.Kind {
	case TokenYes:
		yes := true
		return Step{
			Next:     models.StateAwaitingInsuranceCompany,
			Updates:  models.ContactUpdate{HasInsurance: &yes},
			Template: TemplateInsuranceCompany,
		}, true
	case TokenNo:
		no := false
		return Step{
			Next:     models.StateAwaitingReferralSource,
			Updates:  models.ContactUpdate{HasInsurance: &no},
			Template: TemplateReferralMenu,
		}, true
	}
	return Step{}, false
}

func fromInsuranceCompany(tok Token, _ models.Contact) (Step, bool) {
	if tok.Kind != TokenText || tok.Text == "" {
		return Step{}, false
	}
	company := tok.Text
	return Step{
		Next:     models.StateAwaitingReferralSource,
		Updates:  models.ContactUpdate{InsuranceCompany: &company},
		Template: TemplateReferralMenu,
	}, true
}

func fromReferralSource(tok Token, _ models.Contact) (Step, bool) {
	label, ok := choiceLabel(tok, ReferralSourceOptions)
	if !ok {
		return Step{}, false
	}
	needed := true
	return Step{
		Next: models.StateCompleted,
		Updates: models.ContactUpdate{
			Status:                statusPtr(models.ContactStatusCompleted),
			ReferralSource:        &label,
			ProjectCreationNeeded: &needed,
			Completed:             true,
		},
		Template: TemplateSummary,
	}, true
}

func choiceLabel(tok Token, options []Option) (string, bool) {
	if tok.Kind != TokenChoice || tok.Choice < 1 || tok.Choice > len(options) {
		return "", false
	}
	return options[tok.Choice-1].Label, true
}

func statusPtr(s models.ContactStatus) *models.ContactStatus { return &s }

func outcomePtr(o models.Outcome) *models.Outcome { return &o }
