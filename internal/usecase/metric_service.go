package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/pitchlens/scoutcore/internal/catalogue"
	"github.com/pitchlens/scoutcore/internal/domain/playerseason"
	"github.com/pitchlens/scoutcore/internal/domain/scouting"
)

type MetricConfig struct {
	// MinMinutes is the floor below which per-90 metrics are reported
	// insufficient rather than extrapolated from a tiny sample.
	MinMinutes int
	// MinCohortSize gates percentile ranking and standardisation.
	MinCohortSize int
	// ZScoreClip bounds standardised values to ±clip.
	ZScoreClip float64
}

func (c MetricConfig) normalised() MetricConfig {
	if c.MinMinutes <= 0 {
		c.MinMinutes = 450
	}
	if c.MinCohortSize <= 0 {
		c.MinCohortSize = 20
	}
	if c.ZScoreClip <= 0 {
		c.ZScoreClip = 3
	}
	return c
}

// MetricService evaluates catalogue formulas against player-season stat lines
// and derives per-90, percentile and standardised views of them. Every metric
// id entering this service has already passed the catalogue; anything else is
// a programming error surfaced as ErrUnknownMetric.
type MetricService struct {
	cat        *catalogue.Catalogue
	seasonRepo playerseason.Repository
	cfg        MetricConfig
}

func NewMetricService(cat *catalogue.Catalogue, seasonRepo playerseason.Repository, cfg MetricConfig) *MetricService {
	return &MetricService{
		cat:        cat,
		seasonRepo: seasonRepo,
		cfg:        cfg.normalised(),
	}
}

// Values evaluates the given metrics for one player-season.
func (s *MetricService) Values(ctx context.Context, playerID, seasonID string, metricIDs []string) (map[string]scouting.MetricValue, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.MetricService.Values")
	defer span.End()

	playerID = strings.TrimSpace(playerID)
	seasonID = strings.TrimSpace(seasonID)
	if playerID == "" || seasonID == "" {
		return nil, fmt.Errorf("%w: player id and season id are required", ErrInvalidInput)
	}

	line, exists, err := s.seasonRepo.GetByPlayerAndSeason(ctx, playerID, seasonID)
	if err != nil {
		return nil, fmt.Errorf("get stat line: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: player=%s season=%s", scouting.ErrNoSeasonData, playerID, seasonID)
	}

	out := make(map[string]scouting.MetricValue, len(metricIDs))
	for _, id := range metricIDs {
		value, err := s.Evaluate(line, id)
		if err != nil {
			return nil, err
		}
		out[id] = value
	}
	return out, nil
}

// Evaluate computes one metric for one stat line, applying per-90 scaling and
// the minimum-minutes validity threshold. Missing columns and zero
// denominators come back as insufficient, never as NaN or zero.
func (s *MetricService) Evaluate(line playerseason.StatLine, metricID string) (scouting.MetricValue, error) {
	m, ok := s.cat.Metric(metricID)
	if !ok {
		return scouting.MetricValue{}, fmt.Errorf("%w: %s", scouting.ErrUnknownMetric, metricID)
	}
	formula, _ := s.cat.Formula(metricID)

	value := scouting.MetricValue{MetricID: metricID, Unit: string(m.Unit)}

	threshold := m.MinMinutes
	if m.Per90() && s.cfg.MinMinutes > threshold {
		threshold = s.cfg.MinMinutes
	}
	if line.Minutes < threshold {
		value.Insufficient = true
		return value, nil
	}

	raw, ok := formula.Eval(line.Stat)
	if !ok {
		value.Insufficient = true
		return value, nil
	}

	if m.Per90() {
		if line.Minutes <= 0 {
			value.Insufficient = true
			return value, nil
		}
		raw = raw / (float64(line.Minutes) / 90.0)
	}

	value.Value = raw
	return value, nil
}

// Cohort applies the query's filters against the store. The season id must
// already be resolved from its label.
func (s *MetricService) Cohort(ctx context.Context, filter playerseason.CohortFilter) ([]playerseason.StatLine, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.MetricService.Cohort")
	defer span.End()

	if strings.TrimSpace(filter.SeasonID) == "" {
		return nil, fmt.Errorf("%w: season is required", ErrInvalidInput)
	}

	lines, err := s.seasonRepo.ListCohort(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list cohort: %w", err)
	}
	return lines, nil
}

// Percentiles ranks every cohort member with a sufficient value for the
// metric. Ranks are ascending in raw value and ties share their average rank;
// the result is scaled to [0, 100] against the cohort actually present.
func (s *MetricService) Percentiles(metricID string, cohort []playerseason.StatLine) (map[string]float64, error) {
	if len(cohort) < s.cfg.MinCohortSize {
		return nil, fmt.Errorf("%w: %d members, need %d", scouting.ErrCohortTooSmall, len(cohort), s.cfg.MinCohortSize)
	}

	type sample struct {
		playerID string
		value    float64
	}
	samples := make([]sample, 0, len(cohort))
	for _, line := range cohort {
		v, err := s.Evaluate(line, metricID)
		if err != nil {
			return nil, err
		}
		if v.Insufficient {
			continue
		}
		samples = append(samples, sample{playerID: line.PlayerID, value: v.Value})
	}
	if len(samples) == 0 {
		return map[string]float64{}, nil
	}

	sort.Slice(samples, func(i, j int) bool {
		if samples[i].value != samples[j].value {
			return samples[i].value < samples[j].value
		}
		return samples[i].playerID < samples[j].playerID
	})

	out := make(map[string]float64, len(samples))
	n := len(samples)
	if n == 1 {
		out[samples[0].playerID] = 50
		return out, nil
	}

	for i := 0; i < n; {
		j := i
		for j < n && samples[j].value == samples[i].value {
			j++
		}
		// 1-based ranks i+1..j averaged across the tie group.
		avgRank := float64(i+1+j) / 2.0
		pct := (avgRank - 1) / float64(n-1) * 100
		for k := i; k < j; k++ {
			out[samples[k].playerID] = pct
		}
		i = j
	}

	return out, nil
}

// StatsFrame holds one cohort's standardisation frame: per-metric means and
// deviations plus each member's clipped z-score vector. Vectors from the same
// frame are mutually comparable; vectors from different frames are not.
type StatsFrame struct {
	MetricIDs []string
	mean      []float64
	std       []float64
	vectors   map[string][]float64
	missing   map[string][]string
}

// Vector returns the standardised vector for a cohort member, in MetricIDs
// order. ok=false means the player is not part of the frame's cohort.
func (f *StatsFrame) Vector(playerID string) ([]float64, bool) {
	v, ok := f.vectors[playerID]
	return v, ok
}

// Insufficient lists the metric ids that could not be computed for the player
// and were standardised as the cohort mean.
func (f *StatsFrame) Insufficient(playerID string) []string {
	return f.missing[playerID]
}

// BuildStatsFrame standardises the metric set over the cohort: zero-mean,
// unit-variance per metric, clipped to the configured range. Metrics a member
// cannot state sit at the mean (z = 0) and are reported via Insufficient.
func (s *MetricService) BuildStatsFrame(cohort []playerseason.StatLine, metricIDs []string) (*StatsFrame, error) {
	if len(cohort) < s.cfg.MinCohortSize {
		return nil, fmt.Errorf("%w: %d members, need %d", scouting.ErrCohortTooSmall, len(cohort), s.cfg.MinCohortSize)
	}
	if len(metricIDs) == 0 {
		return nil, fmt.Errorf("%w: metric set is empty", ErrInvalidInput)
	}

	raw := make([][]float64, len(metricIDs))
	valid := make([][]bool, len(metricIDs))
	for d, id := range metricIDs {
		raw[d] = make([]float64, len(cohort))
		valid[d] = make([]bool, len(cohort))
		for i, line := range cohort {
			v, err := s.Evaluate(line, id)
			if err != nil {
				return nil, err
			}
			if v.Insufficient {
				continue
			}
			raw[d][i] = v.Value
			valid[d][i] = true
		}
	}

	frame := &StatsFrame{
		MetricIDs: append([]string(nil), metricIDs...),
		mean:      make([]float64, len(metricIDs)),
		std:       make([]float64, len(metricIDs)),
		vectors:   make(map[string][]float64, len(cohort)),
		missing:   make(map[string][]string),
	}

	for d := range metricIDs {
		values := make([]float64, 0, len(cohort))
		for i := range cohort {
			if valid[d][i] {
				values = append(values, raw[d][i])
			}
		}
		if len(values) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(values, nil)
		if math.IsNaN(std) {
			std = 0
		}
		frame.mean[d] = mean
		frame.std[d] = std
	}

	for i, line := range cohort {
		vec := make([]float64, len(metricIDs))
		for d := range metricIDs {
			if !valid[d][i] {
				frame.missing[line.PlayerID] = append(frame.missing[line.PlayerID], metricIDs[d])
				continue
			}
			if frame.std[d] == 0 {
				continue
			}
			z := (raw[d][i] - frame.mean[d]) / frame.std[d]
			if z > s.cfg.ZScoreClip {
				z = s.cfg.ZScoreClip
			}
			if z < -s.cfg.ZScoreClip {
				z = -s.cfg.ZScoreClip
			}
			vec[d] = z
		}
		frame.vectors[line.PlayerID] = vec
	}

	return frame, nil
}

// MinCohortSize exposes the configured floor for result metadata.
func (s *MetricService) MinCohortSize() int { return s.cfg.MinCohortSize }

// MinMinutes exposes the configured per-90 validity floor.
func (s *MetricService) MinMinutes() int { return s.cfg.MinMinutes }
