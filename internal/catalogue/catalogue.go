package catalogue

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitchlens/scoutcore/internal/domain/metric"
	"github.com/pitchlens/scoutcore/internal/domain/scouting"
)

// ErrCatalogueInvalid marks a catalogue file that fails loading or the startup
// self-check. It indicates a deployment defect and is fatal at process start.
var ErrCatalogueInvalid = errors.New("catalogue invalid")

// Unknown is returned by Resolve for names that match nothing. There is no
// fuzzy fallback: an unresolvable name is an error for the caller.
const Unknown = ""

const (
	// MaxQueryLimit bounds every query's result size.
	MaxQueryLimit = 500
)

// Catalogue is the single source of truth for every metric the system may
// name, compute or return. It is loaded once at startup and immutable after.
type Catalogue struct {
	version   string
	metrics   map[string]metric.Metric
	formulas  map[string]*Formula
	presets   map[string]metric.Preset
	positions map[string]metric.Position
	resolve   map[string]string
	order     []string
}

// Version reports the catalogue file version string.
func (c *Catalogue) Version() string { return c.version }

// IsKnown reports whether the metric id is declared in the catalogue.
func (c *Catalogue) IsKnown(metricID string) bool {
	_, ok := c.metrics[metricID]
	return ok
}

// Metric returns the catalogue entry for a known id.
func (c *Catalogue) Metric(metricID string) (metric.Metric, bool) {
	m, ok := c.metrics[metricID]
	return m, ok
}

// Formula returns the parsed expression for a known metric id.
func (c *Catalogue) Formula(metricID string) (*Formula, bool) {
	f, ok := c.formulas[metricID]
	return f, ok
}

// Preset returns a preset metric group by id.
func (c *Catalogue) Preset(presetID string) (metric.Preset, bool) {
	p, ok := c.presets[presetID]
	return p, ok
}

// Position returns a recognised position code.
func (c *Catalogue) Position(code string) (metric.Position, bool) {
	p, ok := c.positions[strings.ToUpper(strings.TrimSpace(code))]
	return p, ok
}

// MetricIDs lists every metric id in catalogue file order.
func (c *Catalogue) MetricIDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// PresetIDs lists every preset id, sorted.
func (c *Catalogue) PresetIDs() []string {
	out := make([]string, 0, len(c.presets))
	for id := range c.presets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PositionCodes lists every recognised position code, sorted.
func (c *Catalogue) PositionCodes() []string {
	out := make([]string, 0, len(c.positions))
	for code := range c.positions {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Resolve maps a metric id, display name or alias to the canonical metric id.
// Matching is case-insensitive and exact; unresolvable names return Unknown.
func (c *Catalogue) Resolve(aliasOrName string) string {
	key := strings.ToLower(strings.TrimSpace(aliasOrName))
	if key == "" {
		return Unknown
	}
	if id, ok := c.resolve[key]; ok {
		return id
	}
	return Unknown
}

// PresetForPosition picks the default preset for a position group, used by the
// lenient parser fallback. Returns ok=false when the catalogue defines no
// preset covering the position.
func (c *Catalogue) PresetForPosition(code string) (metric.Preset, bool) {
	pos, ok := c.Position(code)
	if !ok {
		return metric.Preset{}, false
	}
	g := pos.GroupWeights
	var want string
	switch {
	case g.Goalkeeper >= g.Defender && g.Goalkeeper >= g.Midfielder && g.Goalkeeper >= g.Forward:
		want = "goalkeeper_profile"
	case g.Forward >= g.Defender && g.Forward >= g.Midfielder:
		want = "striker_profile"
	case g.Midfielder >= g.Defender:
		want = "creative_midfielder_profile"
	default:
		want = "ball_playing_defender_profile"
	}
	p, ok := c.presets[want]
	return p, ok
}

// ValidateQuery checks a StructuredQuery against the catalogue: every metric
// id known, metric/position compatibility, finite non-negative weights, limit
// in [1, MaxQueryLimit], non-negative min-minutes. All reasons are collected.
func (c *Catalogue) ValidateQuery(q scouting.StructuredQuery) error {
	var reasons []error

	for _, id := range q.MetricIDs {
		m, ok := c.metrics[id]
		if !ok {
			reasons = append(reasons, fmt.Errorf("%w: %s", scouting.ErrUnknownMetric, id))
			continue
		}
		for _, pos := range q.Cohort.Positions {
			if _, known := c.Position(pos); !known {
				continue
			}
			if !m.AppliesTo(strings.ToUpper(pos)) {
				reasons = append(reasons, fmt.Errorf("%w: %s for %s", scouting.ErrIncompatibleMetricForPosition, id, pos))
			}
		}
	}
	if q.SortMetric != "" && !c.IsKnown(q.SortMetric) {
		reasons = append(reasons, fmt.Errorf("%w: %s", scouting.ErrUnknownMetric, q.SortMetric))
	}
	if q.PresetID != "" {
		if _, ok := c.presets[q.PresetID]; !ok {
			reasons = append(reasons, fmt.Errorf("%w: preset %s", scouting.ErrUnknownMetric, q.PresetID))
		}
	}
	for _, pos := range q.Cohort.Positions {
		if _, ok := c.Position(pos); !ok {
			reasons = append(reasons, fmt.Errorf("%w: unknown position %s", scouting.ErrParse, pos))
		}
	}
	if q.Weights != nil {
		for name, w := range map[string]float64{"role": q.Weights.Role, "stats": q.Weights.Stats} {
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				reasons = append(reasons, fmt.Errorf("%w: %s=%v", scouting.ErrInvalidWeight, name, w))
			}
		}
		if q.Weights.Role+q.Weights.Stats <= 0 {
			reasons = append(reasons, fmt.Errorf("%w: weights must sum to a positive number", scouting.ErrInvalidWeight))
		}
	}
	if q.Limit < 1 || q.Limit > MaxQueryLimit {
		reasons = append(reasons, fmt.Errorf("%w: %d not in [1, %d]", scouting.ErrInvalidLimit, q.Limit, MaxQueryLimit))
	}
	if q.Cohort.MinMinutes < 0 {
		reasons = append(reasons, fmt.Errorf("%w: min minutes %d", scouting.ErrInvalidLimit, q.Cohort.MinMinutes))
	}

	return errors.Join(reasons...)
}

// SelfCheck validates the catalogue against the store schema: every column
// referenced by every formula must exist on player_season_stats, every preset
// must refer to declared metrics, every metric scope to declared positions.
// Any failure is fatal at startup.
func (c *Catalogue) SelfCheck(statColumns map[string]bool) error {
	var reasons []error
	for _, id := range c.order {
		f := c.formulas[id]
		for _, col := range f.Columns() {
			if !statColumns[col] {
				reasons = append(reasons, fmt.Errorf("metric %s references unknown column %s", id, col))
			}
		}
		m := c.metrics[id]
		for _, pos := range m.Positions {
			if _, ok := c.positions[pos]; !ok {
				reasons = append(reasons, fmt.Errorf("metric %s references unknown position %s", id, pos))
			}
		}
	}
	for id, p := range c.presets {
		for _, pm := range p.Metrics {
			if !c.IsKnown(pm.MetricID) {
				reasons = append(reasons, fmt.Errorf("preset %s references unknown metric %s", id, pm.MetricID))
			}
			if math.IsNaN(pm.Weight) || math.IsInf(pm.Weight, 0) || pm.Weight < 0 {
				reasons = append(reasons, fmt.Errorf("preset %s has invalid weight for %s", id, pm.MetricID))
			}
		}
	}
	if err := errors.Join(reasons...); err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogueInvalid, err)
	}
	return nil
}

type catalogueFile struct {
	Version   string `yaml:"version"`
	Positions []struct {
		Code   string `yaml:"code"`
		Name   string `yaml:"name"`
		Groups struct {
			Goalkeeper float64 `yaml:"goalkeeper"`
			Defender   float64 `yaml:"defender"`
			Midfielder float64 `yaml:"midfielder"`
			Forward    float64 `yaml:"forward"`
		} `yaml:"groups"`
	} `yaml:"positions"`
	Metrics []struct {
		ID         string   `yaml:"id"`
		Name       string   `yaml:"name"`
		Category   string   `yaml:"category"`
		Formula    string   `yaml:"formula"`
		Unit       string   `yaml:"unit"`
		Direction  string   `yaml:"direction"`
		Positions  []string `yaml:"positions"`
		MinMinutes int      `yaml:"min_minutes"`
		Aliases    []string `yaml:"aliases"`
	} `yaml:"metrics"`
	Presets []struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Metrics []struct {
			ID     string  `yaml:"id"`
			Weight float64 `yaml:"weight"`
		} `yaml:"metrics"`
	} `yaml:"presets"`
}

// Load reads and parses the catalogue file. Formulas are parsed eagerly so a
// malformed expression fails the process at startup, not at query time.
func Load(path string) (*Catalogue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrCatalogueInvalid, path, err)
	}
	return Parse(raw)
}

// Parse builds a Catalogue from raw YAML.
func Parse(raw []byte) (*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrCatalogueInvalid, err)
	}
	if len(file.Metrics) == 0 {
		return nil, fmt.Errorf("%w: no metrics declared", ErrCatalogueInvalid)
	}

	c := &Catalogue{
		version:   strings.TrimSpace(file.Version),
		metrics:   make(map[string]metric.Metric, len(file.Metrics)),
		formulas:  make(map[string]*Formula, len(file.Metrics)),
		presets:   make(map[string]metric.Preset, len(file.Presets)),
		positions: make(map[string]metric.Position, len(file.Positions)),
		resolve:   make(map[string]string, len(file.Metrics)*3),
	}

	for _, p := range file.Positions {
		code := strings.ToUpper(strings.TrimSpace(p.Code))
		if code == "" {
			return nil, fmt.Errorf("%w: position with empty code", ErrCatalogueInvalid)
		}
		sum := p.Groups.Goalkeeper + p.Groups.Defender + p.Groups.Midfielder + p.Groups.Forward
		if math.Abs(sum-1) > 1e-6 {
			return nil, fmt.Errorf("%w: position %s group weights sum to %v, want 1", ErrCatalogueInvalid, code, sum)
		}
		c.positions[code] = metric.Position{
			Code: code,
			Name: strings.TrimSpace(p.Name),
			GroupWeights: metric.GroupWeights{
				Goalkeeper: p.Groups.Goalkeeper,
				Defender:   p.Groups.Defender,
				Midfielder: p.Groups.Midfielder,
				Forward:    p.Groups.Forward,
			},
		}
	}

	for _, m := range file.Metrics {
		id := strings.ToLower(strings.TrimSpace(m.ID))
		if id == "" {
			return nil, fmt.Errorf("%w: metric with empty id", ErrCatalogueInvalid)
		}
		if _, dup := c.metrics[id]; dup {
			return nil, fmt.Errorf("%w: duplicate metric id %s", ErrCatalogueInvalid, id)
		}
		formula, err := ParseFormula(m.Formula)
		if err != nil {
			return nil, fmt.Errorf("%w: metric %s: %w", ErrCatalogueInvalid, id, err)
		}
		unit := metric.Unit(strings.TrimSpace(m.Unit))
		switch unit {
		case metric.UnitCount, metric.UnitPer90, metric.UnitFraction, metric.UnitPercent:
		default:
			return nil, fmt.Errorf("%w: metric %s has unknown unit %q", ErrCatalogueInvalid, id, m.Unit)
		}
		direction := metric.Direction(strings.TrimSpace(m.Direction))
		if direction != metric.HigherIsBetter && direction != metric.LowerIsBetter {
			return nil, fmt.Errorf("%w: metric %s has unknown direction %q", ErrCatalogueInvalid, id, m.Direction)
		}
		positions := make([]string, 0, len(m.Positions))
		for _, pos := range m.Positions {
			positions = append(positions, strings.ToUpper(strings.TrimSpace(pos)))
		}
		entry := metric.Metric{
			ID:         id,
			Name:       strings.TrimSpace(m.Name),
			Category:   metric.Category(strings.TrimSpace(m.Category)),
			Formula:    formula.Source(),
			Unit:       unit,
			Direction:  direction,
			Positions:  positions,
			MinMinutes: m.MinMinutes,
			Aliases:    m.Aliases,
		}
		c.metrics[id] = entry
		c.formulas[id] = formula
		c.order = append(c.order, id)

		if err := c.addResolveKey(id, id); err != nil {
			return nil, err
		}
		if entry.Name != "" {
			if err := c.addResolveKey(entry.Name, id); err != nil {
				return nil, err
			}
		}
		for _, alias := range m.Aliases {
			if err := c.addResolveKey(alias, id); err != nil {
				return nil, err
			}
		}
	}

	for _, p := range file.Presets {
		id := strings.ToLower(strings.TrimSpace(p.ID))
		if id == "" {
			return nil, fmt.Errorf("%w: preset with empty id", ErrCatalogueInvalid)
		}
		if _, dup := c.presets[id]; dup {
			return nil, fmt.Errorf("%w: duplicate preset id %s", ErrCatalogueInvalid, id)
		}
		preset := metric.Preset{ID: id, Name: strings.TrimSpace(p.Name)}
		for _, pm := range p.Metrics {
			preset.Metrics = append(preset.Metrics, metric.PresetMetric{
				MetricID: strings.ToLower(strings.TrimSpace(pm.ID)),
				Weight:   pm.Weight,
			})
		}
		c.presets[id] = preset
	}

	return c, nil
}

func (c *Catalogue) addResolveKey(key, metricID string) error {
	normalised := strings.ToLower(strings.TrimSpace(key))
	if normalised == "" {
		return nil
	}
	if existing, ok := c.resolve[normalised]; ok && existing != metricID {
		return fmt.Errorf("%w: name %q maps to both %s and %s", ErrCatalogueInvalid, key, existing, metricID)
	}
	c.resolve[normalised] = metricID
	return nil
}
