package conversation

import "github.com/BTreeMap/LeadPipe/internal/models"

// Menu tables. The order defines the digit accepted for each entry.
var (
	OutcomeOptions = []Option{
		{Label: "Appointment set", Aliases: []string{"appointment", "appt", "set", "scheduled", "booked"}},
		{Label: "Looking for quotes", Aliases: []string{"quote", "estimate", "pricing", "price"}},
		{Label: "Waste of time", Aliases: []string{"waste", "not interested"}},
		{Label: "Something else", Aliases: []string{"else", "other", "different"}},
	}

	ProjectTypeOptions = []Option{
		{Label: "Emergency Mitigation Services", Aliases: []string{"emergency", "mitigation", "ems", "water"}},
		{Label: "Mold", Aliases: []string{"mold", "mould"}},
		{Label: "Reconstruction", Aliases: []string{"recon", "rebuild"}},
		{Label: "Sewage", Aliases: []string{"sewage", "sewer"}},
		{Label: "Biohazard", Aliases: []string{"bio"}},
		{Label: "Contents", Aliases: []string{"content"}},
		{Label: "Vandalism", Aliases: []string{"vandal"}},
	}

	PropertyTypeOptions = []Option{
		{Label: "Residential", Aliases: []string{"residential", "home", "house"}},
		{Label: "Commercial", Aliases: []string{"commercial", "business", "office"}},
	}

	ResidentialSubtypeOptions = []Option{
		{Label: "Single Family Home", Aliases: []string{"single"}},
		{Label: "Multi-Family Home", Aliases: []string{"multi", "duplex", "apartment"}},
		{Label: "Manufactured Home", Aliases: []string{"manufactured", "mobile", "trailer"}},
	}

	ReferralSourceOptions = []Option{
		{Label: "Customer Referral", Aliases: []string{"customer"}},
		{Label: "Industry Partner", Aliases: []string{"industry", "partner"}},
		{Label: "Insurance Referral", Aliases: []string{"insurance", "adjuster", "agent"}},
		{Label: "Lead Gen", Aliases: []string{"lead"}},
		{Label: "Online Marketing", Aliases: []string{"online", "marketing", "facebook"}},
		{Label: "Plumber", Aliases: []string{"plumber"}},
		{Label: "Web Search", Aliases: []string{"google", "search", "web"}},
		{Label: "Other", Aliases: []string{"other"}},
	}
)

// outcomeByChoice maps the outcome menu to its enum value.
var outcomeByChoice = []models.Outcome{
	models.OutcomeAppointmentSet,
	models.OutcomeLookingForQuotes,
	models.OutcomeWasteOfTime,
	models.OutcomeSomethingElse,
}

const (
	propertyResidential = 1
	outcomeAppointment  = 1
)
