package pipeline

import (
	"time"

	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/store"
)

// Source identifies one enrichment provider.
type Source string

const (
	SourceRegistry Source = "rne"
	SourcePaid     Source = "pappers"
	SourcePlaces   Source = "places"
)

// Field names one mergeable lead attribute.
type Field string

const (
	FieldSIRET         Field = "siret"
	FieldName          Field = "name"
	FieldLegalForm     Field = "legal_form"
	FieldSectorCode    Field = "sector_code"
	FieldSectorLabel   Field = "sector_label"
	FieldAddress       Field = "address"
	FieldPostalCode    Field = "postal_code"
	FieldCity          Field = "city"
	FieldRegion        Field = "region"
	FieldWebsite       Field = "website"
	FieldPhone         Field = "phone"
	FieldEmail         Field = "email"
	FieldEmployeeCount Field = "employee_count"
	FieldRevenue       Field = "revenue"
	FieldFoundedAt     Field = "founded_at"
	FieldPlaceID       Field = "place_id"
	FieldHasPresence   Field = "has_presence"
	FieldRating        Field = "rating"
)

// Policy is what a source may do to a field.
type Policy int

const (
	// Denied: the source does not own this field at all.
	Denied Policy = iota
	// FillIfEmpty: write only when no earlier source (or the lead
	// itself) holds a value.
	FillIfEmpty
	// Overwrite: the source is authoritative for this field.
	Overwrite
)

// ownership is the per-source merge policy. The registry detail fills
// gaps in the core business fields. The paid source is authoritative for
// everything it returns. The places source may only fill website/phone
// and exclusively owns the presence fields.
var ownership = map[Source]map[Field]Policy{
	SourceRegistry: {
		FieldSIRET: FillIfEmpty, FieldName: FillIfEmpty, FieldLegalForm: FillIfEmpty,
		FieldSectorCode: FillIfEmpty, FieldSectorLabel: FillIfEmpty,
		FieldAddress: FillIfEmpty, FieldPostalCode: FillIfEmpty, FieldCity: FillIfEmpty,
		FieldRegion: FillIfEmpty, FieldEmployeeCount: FillIfEmpty, FieldFoundedAt: FillIfEmpty,
	},
	SourcePaid: {
		FieldSIRET: Overwrite, FieldName: Overwrite, FieldLegalForm: Overwrite,
		FieldSectorCode: Overwrite, FieldSectorLabel: Overwrite,
		FieldAddress: Overwrite, FieldPostalCode: Overwrite, FieldCity: Overwrite,
		FieldRegion: Overwrite, FieldEmployeeCount: Overwrite, FieldRevenue: Overwrite,
		FieldFoundedAt: Overwrite, FieldWebsite: Overwrite, FieldPhone: Overwrite,
		FieldEmail: Overwrite,
	},
	SourcePlaces: {
		FieldWebsite: FillIfEmpty, FieldPhone: FillIfEmpty,
		FieldPlaceID: Overwrite, FieldHasPresence: Overwrite, FieldRating: Overwrite,
	},
}

// Accumulator builds the single patch applied at the end of enrichment.
// Absence checks look at the patch first, then the lead snapshot, so a
// field set by an earlier source in this run counts as present.
type Accumulator struct {
	lead        *model.Lead
	patch       store.LeadPatch
	contributed map[Source]bool
	order       []Source
}

// NewAccumulator starts a merge over the given lead snapshot.
func NewAccumulator(lead *model.Lead) *Accumulator {
	return &Accumulator{lead: lead, contributed: make(map[Source]bool)}
}

// Patch returns the accumulated update.
func (a *Accumulator) Patch() store.LeadPatch {
	return a.patch
}

// Contributors lists the sources that set at least one field, in the
// order they ran.
func (a *Accumulator) Contributors() []Source {
	return a.order
}

func (a *Accumulator) markContribution(src Source) {
	if !a.contributed[src] {
		a.contributed[src] = true
		a.order = append(a.order, src)
	}
}

func (a *Accumulator) policy(src Source, f Field) Policy {
	return ownership[src][f]
}

// SetString merges a string field. Empty values are ignored.
func (a *Accumulator) SetString(src Source, f Field, v string) {
	if v == "" {
		return
	}
	pol := a.policy(src, f)
	if pol == Denied {
		return
	}

	dst, cur := a.stringSlot(f)
	if dst == nil {
		return
	}
	if pol == FillIfEmpty && (*dst != nil || (cur != nil && *cur != "")) {
		return
	}
	*dst = &v
	a.markContribution(src)
}

// stringSlot resolves a string field to its patch slot and current lead
// value.
func (a *Accumulator) stringSlot(f Field) (**string, *string) {
	switch f {
	case FieldSIRET:
		return &a.patch.SIRET, a.lead.SIRET
	case FieldName:
		name := a.lead.Name
		return &a.patch.Name, &name
	case FieldLegalForm:
		return &a.patch.LegalForm, a.lead.LegalForm
	case FieldSectorCode:
		return &a.patch.SectorCode, a.lead.SectorCode
	case FieldSectorLabel:
		return &a.patch.SectorLabel, a.lead.SectorLabel
	case FieldAddress:
		return &a.patch.Address, a.lead.Address
	case FieldPostalCode:
		return &a.patch.PostalCode, a.lead.PostalCode
	case FieldCity:
		return &a.patch.City, a.lead.City
	case FieldRegion:
		return &a.patch.Region, a.lead.Region
	case FieldWebsite:
		return &a.patch.Website, a.lead.Website
	case FieldPhone:
		return &a.patch.Phone, a.lead.Phone
	case FieldEmail:
		return &a.patch.Email, a.lead.Email
	case FieldPlaceID:
		return &a.patch.PlaceID, a.lead.PlaceID
	default:
		return nil, nil
	}
}

// SetInt merges an int field.
func (a *Accumulator) SetInt(src Source, f Field, v int) {
	if f != FieldEmployeeCount {
		return
	}
	pol := a.policy(src, f)
	if pol == Denied {
		return
	}
	if pol == FillIfEmpty && (a.patch.EmployeeCount != nil || a.lead.EmployeeCount != nil) {
		return
	}
	a.patch.EmployeeCount = &v
	a.markContribution(src)
}

// SetFloat merges a float field.
func (a *Accumulator) SetFloat(src Source, f Field, v float64) {
	pol := a.policy(src, f)
	if pol == Denied {
		return
	}
	switch f {
	case FieldRevenue:
		if pol == FillIfEmpty && (a.patch.Revenue != nil || a.lead.Revenue != nil) {
			return
		}
		a.patch.Revenue = &v
	case FieldRating:
		if pol == FillIfEmpty && (a.patch.Rating != nil || a.lead.Rating != nil) {
			return
		}
		a.patch.Rating = &v
	default:
		return
	}
	a.markContribution(src)
}

// SetTime merges a time field.
func (a *Accumulator) SetTime(src Source, f Field, v time.Time) {
	if f != FieldFoundedAt || v.IsZero() {
		return
	}
	pol := a.policy(src, f)
	if pol == Denied {
		return
	}
	if pol == FillIfEmpty && (a.patch.FoundedAt != nil || a.lead.FoundedAt != nil) {
		return
	}
	a.patch.FoundedAt = &v
	a.markContribution(src)
}

// SetBool merges a bool field.
func (a *Accumulator) SetBool(src Source, f Field, v bool) {
	if f != FieldHasPresence {
		return
	}
	if a.policy(src, f) == Denied {
		return
	}
	a.patch.HasPresence = &v
	a.markContribution(src)
}

// CurrentName is the best-known company name, patch first.
func (a *Accumulator) CurrentName() string {
	if a.patch.Name != nil {
		return *a.patch.Name
	}
	return a.lead.Name
}

// CurrentCity is the best-known city, patch first.
func (a *Accumulator) CurrentCity() string {
	if a.patch.City != nil {
		return *a.patch.City
	}
	if a.lead.City != nil {
		return *a.lead.City
	}
	return ""
}
