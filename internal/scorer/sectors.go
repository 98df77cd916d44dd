package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Sector is one high-value activity section keyed by the first two digits
// of the sector code.
type Sector struct {
	Code        string `yaml:"code"`
	Label       string `yaml:"label"`
	ScoreBonus  int    `yaml:"score_bonus"`
	IsHighValue bool   `yaml:"is_high_value"`
}

// SectorTable looks up sector bonuses by code prefix.
type SectorTable map[string]Sector

// Bonus returns the configured bonus for a sector code. The first two
// digits of the code select the section; a high-value section with no
// explicit bonus falls back to the default.
func (t SectorTable) Bonus(sectorCode string) (int, bool) {
	if len(sectorCode) < 2 {
		return 0, false
	}
	s, ok := t[sectorCode[:2]]
	if !ok || !s.IsHighValue {
		return 0, false
	}
	if s.ScoreBonus == 0 {
		return bonusSectorFallback, true
	}
	return s.ScoreBonus, true
}

// LoadSectors reads a sector table from a YAML file. An empty path returns
// the default table.
func LoadSectors(path string) (SectorTable, error) {
	if path == "" {
		return DefaultSectors(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: read sectors file %s", path)
	}

	var sectors []Sector
	if err := yaml.Unmarshal(data, &sectors); err != nil {
		return nil, eris.Wrapf(err, "scorer: parse sectors file %s", path)
	}

	table := make(SectorTable, len(sectors))
	for _, s := range sectors {
		if len(s.Code) < 2 {
			return nil, eris.Errorf("scorer: sector code %q too short", s.Code)
		}
		table[s.Code[:2]] = s
	}
	return table, nil
}

// DefaultSectors returns the built-in high-value sector table.
func DefaultSectors() SectorTable {
	sectors := []Sector{
		{Code: "47", Label: "Commerce de détail", ScoreBonus: 20, IsHighValue: true},
		{Code: "56", Label: "Restauration", ScoreBonus: 20, IsHighValue: true},
		{Code: "62", Label: "Programmation informatique", ScoreBonus: 15, IsHighValue: true},
		{Code: "68", Label: "Activités immobilières", ScoreBonus: 20, IsHighValue: true},
		{Code: "69", Label: "Activités juridiques et comptables", ScoreBonus: 15, IsHighValue: true},
		{Code: "70", Label: "Conseil de gestion", ScoreBonus: 15, IsHighValue: true},
		{Code: "71", Label: "Architecture et ingénierie", ScoreBonus: 15, IsHighValue: true},
		{Code: "73", Label: "Publicité et études de marché", ScoreBonus: 15, IsHighValue: true},
		{Code: "74", Label: "Autres activités spécialisées", ScoreBonus: 10, IsHighValue: false},
		{Code: "82", Label: "Activités de soutien aux entreprises", ScoreBonus: 10, IsHighValue: false},
		{Code: "85", Label: "Enseignement", ScoreBonus: 10, IsHighValue: false},
		{Code: "86", Label: "Activités pour la santé humaine", ScoreBonus: 15, IsHighValue: true},
		{Code: "93", Label: "Activités sportives et de loisirs", ScoreBonus: 10, IsHighValue: false},
		{Code: "96", Label: "Autres services personnels", ScoreBonus: 15, IsHighValue: true},
	}

	table := make(SectorTable, len(sectors))
	for _, s := range sectors {
		table[s.Code] = s
	}
	return table
}
