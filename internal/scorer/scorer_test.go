package scorer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/prospector/internal/model"
)

var evalTime = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func baseCtx() Context {
	return Context{Now: evalTime, Sectors: DefaultSectors()}
}

func TestScoreNoWebsite(t *testing.T) {
	t.Parallel()

	r := Score(model.Lead{}, baseCtx())
	assert.Equal(t, 30, r.Details.NoWebsite)
	assert.Equal(t, 30, r.Score)
}

func TestScoreWeakWebsiteExclusiveWithNoWebsite(t *testing.T) {
	t.Parallel()

	lead := model.Lead{Website: strPtr("https://example.fr"), WebsiteQuality: intPtr(20)}
	r := Score(lead, baseCtx())
	assert.Equal(t, 0, r.Details.NoWebsite)
	assert.Equal(t, 15, r.Details.WeakWebsite)

	lead.WebsiteQuality = intPtr(50)
	r = Score(lead, baseCtx())
	assert.Equal(t, 0, r.Details.WeakWebsite)
}

func TestScoreYoungCompany(t *testing.T) {
	t.Parallel()

	young := evalTime.AddDate(0, 0, -10)
	old := evalTime.AddDate(0, -4, 0)

	r := Score(model.Lead{Website: strPtr("x"), FoundedAt: &young}, baseCtx())
	assert.Equal(t, 20, r.Details.YoungCompany)

	r = Score(model.Lead{Website: strPtr("x"), FoundedAt: &old}, baseCtx())
	assert.Equal(t, 0, r.Details.YoungCompany)
}

func TestScoreSectorBonus(t *testing.T) {
	t.Parallel()

	r := Score(model.Lead{Website: strPtr("x"), SectorCode: strPtr("47.11Z")}, baseCtx())
	assert.Equal(t, 20, r.Details.HighValueSector)

	// 62 has a configured 15-point bonus.
	r = Score(model.Lead{Website: strPtr("x"), SectorCode: strPtr("62.01Z")}, baseCtx())
	assert.Equal(t, 15, r.Details.HighValueSector)

	// 74 is not high value.
	r = Score(model.Lead{Website: strPtr("x"), SectorCode: strPtr("74.10Z")}, baseCtx())
	assert.Equal(t, 0, r.Details.HighValueSector)

	// Unknown section.
	r = Score(model.Lead{Website: strPtr("x"), SectorCode: strPtr("01.11Z")}, baseCtx())
	assert.Equal(t, 0, r.Details.HighValueSector)
}

func TestScoreSectorFallbackBonus(t *testing.T) {
	t.Parallel()

	sctx := baseCtx()
	sctx.Sectors = SectorTable{"42": {Code: "42", IsHighValue: true}}

	r := Score(model.Lead{Website: strPtr("x"), SectorCode: strPtr("42.99A")}, sctx)
	assert.Equal(t, 20, r.Details.HighValueSector)
}

func TestScoreCompanySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		employees int
		want      int
	}{
		{0, 0}, {1, 5}, {2, 5}, {3, 10}, {9, 10}, {10, 5}, {20, 5}, {21, 0}, {100, 0},
	}
	for _, tt := range tests {
		r := Score(model.Lead{Website: strPtr("x"), EmployeeCount: intPtr(tt.employees)}, baseCtx())
		assert.Equal(t, tt.want, r.Details.CompanySize, "employees=%d", tt.employees)
	}
}

func TestScorePresenceWithoutWebsite(t *testing.T) {
	t.Parallel()

	r := Score(model.Lead{HasPresence: true}, baseCtx())
	assert.Equal(t, 10, r.Details.PresenceNoWebsite)

	r = Score(model.Lead{HasPresence: true, Website: strPtr("https://example.fr")}, baseCtx())
	assert.Equal(t, 0, r.Details.PresenceNoWebsite)
}

func TestScoreDirectorContactable(t *testing.T) {
	t.Parallel()

	sctx := baseCtx()
	sctx.HasDirectorContact = true
	r := Score(model.Lead{Website: strPtr("x")}, sctx)
	assert.Equal(t, 10, r.Details.DirectorContactable)
}

// Registry record with no website, founded 10 days ago, sector 47, one
// contactable director: 30+20+20+10 = 80 and priority 1.
func TestScoreQualifiedScenario(t *testing.T) {
	t.Parallel()

	founded := evalTime.AddDate(0, 0, -10)
	sctx := baseCtx()
	sctx.HasDirectorContact = true

	r := Score(model.Lead{
		SIREN:      "123456789",
		SectorCode: strPtr("47.11Z"),
		FoundedAt:  &founded,
	}, sctx)

	assert.Equal(t, 80, r.Score)
	assert.Equal(t, 1, r.Priority)
	assert.Equal(t, 80, r.Details.Total)
}

func TestScoreCappedAt100(t *testing.T) {
	t.Parallel()

	founded := evalTime.AddDate(0, 0, -5)
	sctx := baseCtx()
	sctx.HasDirectorContact = true

	r := Score(model.Lead{
		SectorCode:    strPtr("47.11Z"),
		FoundedAt:     &founded,
		EmployeeCount: intPtr(5),
		HasPresence:   true,
	}, sctx)

	// 30+20+20+10+10+10 = 100, already at the cap.
	assert.Equal(t, 100, r.Score)
	assert.GreaterOrEqual(t, 100, r.Score)
}

func TestScoreDeterministic(t *testing.T) {
	t.Parallel()

	founded := evalTime.AddDate(0, -1, 0)
	lead := model.Lead{SectorCode: strPtr("56.10A"), FoundedAt: &founded, EmployeeCount: intPtr(4)}
	sctx := baseCtx()

	first := Score(lead, sctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(lead, sctx))
	}
}

func TestPriorityFromScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score, priority int
	}{
		{100, 1}, {75, 1}, {70, 1}, {69, 2}, {55, 2}, {54, 3}, {50, 3},
		{40, 3}, {39, 4}, {25, 4}, {24, 5}, {10, 5}, {0, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.priority, PriorityFromScore(tt.score), "score=%d", tt.score)
	}

	// Non-increasing step function.
	prev := PriorityFromScore(0)
	for s := 1; s <= 100; s++ {
		p := PriorityFromScore(s)
		assert.LessOrEqual(t, p, prev, "score=%d", s)
		prev = p
	}
}

func TestLoadSectorsDefault(t *testing.T) {
	t.Parallel()

	table, err := LoadSectors("")
	require.NoError(t, err)
	bonus, ok := table.Bonus("47.11Z")
	assert.True(t, ok)
	assert.Equal(t, 20, bonus)
}

func TestLoadSectorsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sectors.yaml")
	content := `
- code: "42"
  label: "Travaux de construction"
  score_bonus: 25
  is_high_value: true
- code: "43"
  label: "Travaux spécialisés"
  is_high_value: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadSectors(path)
	require.NoError(t, err)

	bonus, ok := table.Bonus("42.12B")
	assert.True(t, ok)
	assert.Equal(t, 25, bonus)

	_, ok = table.Bonus("43.21A")
	assert.False(t, ok)
}

func TestLoadSectorsBadFile(t *testing.T) {
	t.Parallel()

	_, err := LoadSectors("/nonexistent/sectors.yaml")
	assert.Error(t, err)
}
