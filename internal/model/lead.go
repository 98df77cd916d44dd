package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Status represents a lead's position in the sales lifecycle.
type Status string

const (
	StatusNew           Status = "NEW"
	StatusToContact     Status = "TO_CONTACT"
	StatusContacted     Status = "CONTACTED"
	StatusInterested    Status = "INTERESTED"
	StatusToFollowUp    Status = "TO_FOLLOW_UP"
	StatusClient        Status = "CLIENT"
	StatusNotInterested Status = "NOT_INTERESTED"
	StatusLost          Status = "LOST"
	StatusDoNotContact  Status = "DO_NOT_CONTACT"
)

// AllStatuses lists every valid lead status.
var AllStatuses = []Status{
	StatusNew, StatusToContact, StatusContacted, StatusInterested,
	StatusToFollowUp, StatusClient, StatusNotInterested, StatusLost,
	StatusDoNotContact,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Active reports whether a lead in this status counts against an
// operator's capacity. Won, lost and opted-out leads do not.
func (s Status) Active() bool {
	switch s {
	case StatusClient, StatusLost, StatusDoNotContact:
		return false
	default:
		return true
	}
}

// Lead is a prospective customer company.
type Lead struct {
	ID             string     `json:"id"`
	SIREN          string     `json:"siren"`
	SIRET          *string    `json:"siret,omitempty"`
	Name           string     `json:"name"`
	LegalForm      *string    `json:"legal_form,omitempty"`
	SectorCode     *string    `json:"sector_code,omitempty"`
	SectorLabel    *string    `json:"sector_label,omitempty"`
	Address        *string    `json:"address,omitempty"`
	PostalCode     *string    `json:"postal_code,omitempty"`
	City           *string    `json:"city,omitempty"`
	Region         *string    `json:"region,omitempty"`
	Website        *string    `json:"website,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Email          *string    `json:"email,omitempty"`
	EmployeeCount  *int       `json:"employee_count,omitempty"`
	Revenue        *float64   `json:"revenue,omitempty"`
	FoundedAt      *time.Time `json:"founded_at,omitempty"`
	WebsiteQuality *int       `json:"website_quality,omitempty"`

	// Places presence fields, owned by the places source.
	PlaceID     *string  `json:"place_id,omitempty"`
	HasPresence bool     `json:"has_presence"`
	Rating      *float64 `json:"rating,omitempty"`

	// Derived by the scoring engine.
	Score        int           `json:"score"`
	Priority     int           `json:"priority"`
	ScoreDetails *ScoreDetails `json:"score_details,omitempty"`

	Status          Status     `json:"status"`
	AssignedTo      *string    `json:"assigned_to,omitempty"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	NextFollowUpAt  *time.Time `json:"next_follow_up_at,omitempty"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`
	OptedOut        bool       `json:"opted_out"`
	OptedOutAt      *time.Time `json:"opted_out_at,omitempty"`

	ImportBatchID *string   `json:"import_batch_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ScoreDetails is the per-component breakdown persisted alongside the score.
type ScoreDetails struct {
	NoWebsite           int `json:"no_website"`
	WeakWebsite         int `json:"weak_website"`
	YoungCompany        int `json:"young_company"`
	HighValueSector     int `json:"high_value_sector"`
	DirectorContactable int `json:"director_contactable"`
	CompanySize         int `json:"company_size"`
	PresenceNoWebsite   int `json:"presence_no_website"`
	Total               int `json:"total"`
}

// Director is a company officer attached to a lead. Directors are not
// independently addressable; they live and die with their lead.
type Director struct {
	ID        string     `json:"id"`
	LeadID    string     `json:"lead_id"`
	FirstName *string    `json:"first_name,omitempty"`
	LastName  string     `json:"last_name"`
	Role      *string    `json:"role,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Contactable reports whether the director has a usable email or phone.
func (d Director) Contactable() bool {
	return (d.Email != nil && *d.Email != "") || (d.Phone != nil && *d.Phone != "")
}

// ValidateSIREN checks the 9-digit natural business identifier.
func ValidateSIREN(siren string) error {
	if len(siren) != 9 {
		return eris.Errorf("model: SIREN must be 9 digits, got %q", siren)
	}
	for _, r := range siren {
		if r < '0' || r > '9' {
			return eris.Errorf("model: SIREN must be numeric, got %q", siren)
		}
	}
	return nil
}

// ValidateSIRET checks the 14-digit establishment identifier.
func ValidateSIRET(siret string) error {
	if len(siret) != 14 {
		return eris.Errorf("model: SIRET must be 14 digits, got %q", siret)
	}
	for _, r := range siret {
		if r < '0' || r > '9' {
			return eris.Errorf("model: SIRET must be numeric, got %q", siret)
		}
	}
	return nil
}
