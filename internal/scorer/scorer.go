// Package scorer computes a lead's 0-100 score and 1-5 priority tier from
// its attributes. The function is deterministic and side-effect-free; all
// persistence and transitions belong to the caller.
package scorer

import (
	"time"

	"github.com/leadgrid/prospector/internal/model"
)

// Bonus points per component.
const (
	bonusNoWebsite         = 30
	bonusWeakWebsite       = 15
	bonusYoungCompany      = 20
	bonusSectorFallback    = 20
	bonusDirectorContact   = 10
	bonusSizeSweetSpot     = 10
	bonusSizeNear          = 5
	bonusPresenceNoWebsite = 10

	weakWebsiteThreshold = 30
	youngCompanyMonths   = 3
	maxScore             = 100
)

// Context carries the evaluation-time inputs that are not lead attributes.
type Context struct {
	Now                time.Time
	HasDirectorContact bool
	Sectors            SectorTable
}

// Result is the scoring output.
type Result struct {
	Score    int
	Priority int
	Details  model.ScoreDetails
}

// Score evaluates one lead snapshot.
func Score(lead model.Lead, sctx Context) Result {
	var d model.ScoreDetails

	hasWebsite := lead.Website != nil && *lead.Website != ""
	if !hasWebsite {
		d.NoWebsite = bonusNoWebsite
	} else if lead.WebsiteQuality != nil && *lead.WebsiteQuality < weakWebsiteThreshold {
		d.WeakWebsite = bonusWeakWebsite
	}

	if lead.FoundedAt != nil && lead.FoundedAt.After(sctx.Now.AddDate(0, -youngCompanyMonths, 0)) {
		d.YoungCompany = bonusYoungCompany
	}

	if lead.SectorCode != nil {
		if bonus, ok := sctx.Sectors.Bonus(*lead.SectorCode); ok {
			d.HighValueSector = bonus
		}
	}

	if sctx.HasDirectorContact {
		d.DirectorContactable = bonusDirectorContact
	}

	if lead.EmployeeCount != nil {
		switch n := *lead.EmployeeCount; {
		case n >= 3 && n <= 9:
			d.CompanySize = bonusSizeSweetSpot
		case n >= 1 && n <= 2, n >= 10 && n <= 20:
			d.CompanySize = bonusSizeNear
		}
	}

	if lead.HasPresence && !hasWebsite {
		d.PresenceNoWebsite = bonusPresenceNoWebsite
	}

	total := d.NoWebsite + d.WeakWebsite + d.YoungCompany + d.HighValueSector +
		d.DirectorContactable + d.CompanySize + d.PresenceNoWebsite
	if total > maxScore {
		total = maxScore
	}
	d.Total = total

	return Result{Score: total, Priority: PriorityFromScore(total), Details: d}
}

// PriorityFromScore maps a score to its 1 (hottest) to 5 (lowest) tier.
func PriorityFromScore(score int) int {
	switch {
	case score >= 70:
		return 1
	case score >= 55:
		return 2
	case score >= 40:
		return 3
	case score >= 25:
		return 4
	default:
		return 5
	}
}
