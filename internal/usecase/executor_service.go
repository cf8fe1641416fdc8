package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pitchlens/scoutcore/internal/catalogue"
	"github.com/pitchlens/scoutcore/internal/domain/metric"
	"github.com/pitchlens/scoutcore/internal/domain/player"
	"github.com/pitchlens/scoutcore/internal/domain/playerseason"
	"github.com/pitchlens/scoutcore/internal/domain/scouting"
)

type ExecutorConfig struct {
	// RequestTimeout bounds one whole query, across every store fetch.
	RequestTimeout time.Duration
}

func (c ExecutorConfig) normalised() ExecutorConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// ExecutorService accepts a validated StructuredQuery and dispatches it to
// the right engine. It never substitutes a different metric, cohort or player
// for the requested one; partial results carry their flags instead.
type ExecutorService struct {
	cat        *catalogue.Catalogue
	playerRepo player.Repository
	metricSvc  *MetricService
	roleSvc    *RoleService
	simSvc     *SimilarityService
	validate   *validator.Validate
	cfg        ExecutorConfig
}

func NewExecutorService(
	cat *catalogue.Catalogue,
	playerRepo player.Repository,
	metricSvc *MetricService,
	roleSvc *RoleService,
	simSvc *SimilarityService,
	cfg ExecutorConfig,
) *ExecutorService {
	return &ExecutorService{
		cat:        cat,
		playerRepo: playerRepo,
		metricSvc:  metricSvc,
		roleSvc:    roleSvc,
		simSvc:     simSvc,
		validate:   validator.New(),
		cfg:        cfg.normalised(),
	}
}

// Execute validates, resolves and runs one query.
func (s *ExecutorService) Execute(ctx context.Context, query scouting.StructuredQuery) (scouting.Result, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ExecutorService.Execute")
	defer span.End()

	if query.Limit == 0 {
		query.Limit = 20
	}
	if err := s.validate.Struct(query); err != nil {
		return scouting.Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.cat.ValidateQuery(query); err != nil {
		return scouting.Result{}, err
	}

	ctx, cancel := context.WithTimeoutCause(ctx, s.cfg.RequestTimeout, scouting.ErrTimeout)
	defer cancel()

	seasonID, err := s.resolveSeason(ctx, query.Cohort.Season)
	if err != nil {
		return scouting.Result{}, err
	}

	metricIDs, err := s.resolveMetricSet(ctx, query)
	if err != nil {
		return scouting.Result{}, err
	}

	filter := playerseason.CohortFilter{
		LeagueIDs:  query.Cohort.LeagueIDs,
		SeasonID:   seasonID,
		Positions:  query.Cohort.Positions,
		MinAge:     query.Cohort.MinAge,
		MaxAge:     query.Cohort.MaxAge,
		MinMinutes: query.Cohort.MinMinutes,
	}

	var result scouting.Result
	switch query.Kind {
	case scouting.KindSimilarity:
		result, err = s.executeSimilarity(ctx, query, filter, metricIDs)
	case scouting.KindLeaderboard:
		result, err = s.executeLeaderboard(ctx, query, filter)
	case scouting.KindComparison:
		result, err = s.executeComparison(ctx, query, seasonID, metricIDs)
	case scouting.KindFilter:
		result, err = s.executeFilter(ctx, query, filter, metricIDs)
	default:
		return scouting.Result{}, fmt.Errorf("%w: unknown query kind %q", ErrInvalidInput, query.Kind)
	}
	if err != nil {
		if timeoutErr := timeoutCause(ctx, err); timeoutErr != nil {
			return scouting.Result{}, timeoutErr
		}
		return scouting.Result{}, err
	}

	result.Query = query
	result.Cohort.Filters = query.Cohort
	result.Cohort.MinMinutes = s.metricSvc.MinMinutes()
	return result, nil
}

func (s *ExecutorService) executeSimilarity(ctx context.Context, query scouting.StructuredQuery, filter playerseason.CohortFilter, metricIDs []string) (scouting.Result, error) {
	if strings.TrimSpace(query.ReferenceID) == "" {
		return scouting.Result{}, fmt.Errorf("%w: similarity needs a reference player", ErrInvalidInput)
	}

	outcome, err := s.simSvc.SimilarTo(ctx, SimilarityRequest{
		ReferenceID: query.ReferenceID,
		SeasonID:    filter.SeasonID,
		Filter:      filter,
		MetricIDs:   metricIDs,
		Weights:     query.Weights,
		Limit:       query.Limit,
	})
	if err != nil {
		return scouting.Result{}, err
	}

	return scouting.Result{
		Similarity:  outcome.Rows,
		Cohort:      scouting.CohortDescriptor{Size: outcome.CohortSize},
		Diagnostics: outcome.Diagnostics,
	}, nil
}

func (s *ExecutorService) executeLeaderboard(ctx context.Context, query scouting.StructuredQuery, filter playerseason.CohortFilter) (scouting.Result, error) {
	metricID := query.SortMetric
	if metricID == "" && len(query.MetricIDs) > 0 {
		metricID = query.MetricIDs[0]
	}
	if metricID == "" {
		return scouting.Result{}, fmt.Errorf("%w: leaderboard needs a metric", ErrInvalidInput)
	}
	m, ok := s.cat.Metric(metricID)
	if !ok {
		return scouting.Result{}, fmt.Errorf("%w: %s", scouting.ErrUnknownMetric, metricID)
	}

	cohort, err := s.metricSvc.Cohort(ctx, filter)
	if err != nil {
		return scouting.Result{}, err
	}
	if len(cohort) == 0 {
		return scouting.Result{}, fmt.Errorf("%w: no player-seasons match the filters", scouting.ErrNoCandidates)
	}

	percentiles, err := s.metricSvc.Percentiles(metricID, cohort)
	if err != nil {
		return scouting.Result{}, err
	}

	diagnostics := scouting.Diagnostics{}
	type entry struct {
		line  playerseason.StatLine
		value scouting.MetricValue
	}
	entries := make([]entry, 0, len(cohort))
	for _, line := range cohort {
		value, err := s.metricSvc.Evaluate(line, metricID)
		if err != nil {
			return scouting.Result{}, err
		}
		if value.Insufficient {
			diagnostics.SomeInsufficientMinutes = true
			continue
		}
		entries = append(entries, entry{line: line, value: value})
	}

	higherIsBetter := m.Direction == metric.HigherIsBetter
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].value.Value != entries[j].value.Value {
			if higherIsBetter {
				return entries[i].value.Value > entries[j].value.Value
			}
			return entries[i].value.Value < entries[j].value.Value
		}
		return entries[i].line.PlayerID < entries[j].line.PlayerID
	})

	if len(entries) > query.Limit {
		entries = entries[:query.Limit]
	}

	rows := make([]scouting.LeaderboardRow, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, scouting.LeaderboardRow{
			Rank:       i + 1,
			PlayerID:   e.line.PlayerID,
			PlayerName: e.line.PlayerName,
			Value:      e.value,
			Percentile: percentiles[e.line.PlayerID],
		})
	}

	return scouting.Result{
		Leaderboard: rows,
		Cohort:      scouting.CohortDescriptor{Size: len(cohort)},
		Diagnostics: diagnostics,
	}, nil
}

func (s *ExecutorService) executeComparison(ctx context.Context, query scouting.StructuredQuery, seasonID string, metricIDs []string) (scouting.Result, error) {
	if len(query.PlayerIDs) < 2 {
		return scouting.Result{}, fmt.Errorf("%w: comparison needs at least two players", ErrInvalidInput)
	}

	diagnostics := scouting.Diagnostics{}
	rows := make([]scouting.ComparisonRow, 0, len(query.PlayerIDs))
	for _, playerID := range query.PlayerIDs {
		values, err := s.metricSvc.Values(ctx, playerID, seasonID, metricIDs)
		if err != nil {
			return scouting.Result{}, err
		}

		name := playerID
		if p, ok, err := s.playerRepo.GetByID(ctx, playerID); err != nil {
			return scouting.Result{}, fmt.Errorf("get player: %w", err)
		} else if ok {
			name = p.Name
		}

		aligned := make([]scouting.MetricValue, 0, len(metricIDs))
		for _, id := range metricIDs {
			v := values[id]
			if v.Insufficient {
				diagnostics.SomeInsufficientMinutes = true
			}
			aligned = append(aligned, v)
		}
		rows = append(rows, scouting.ComparisonRow{
			PlayerID:   playerID,
			PlayerName: name,
			Values:     aligned,
		})
	}

	return scouting.Result{
		Comparison:  rows,
		Cohort:      scouting.CohortDescriptor{Size: len(rows)},
		Diagnostics: diagnostics,
	}, nil
}

func (s *ExecutorService) executeFilter(ctx context.Context, query scouting.StructuredQuery, filter playerseason.CohortFilter, metricIDs []string) (scouting.Result, error) {
	cohort, err := s.metricSvc.Cohort(ctx, filter)
	if err != nil {
		return scouting.Result{}, err
	}

	diagnostics := scouting.Diagnostics{}
	rows := make([]scouting.FilterRow, 0, len(cohort))
	for _, line := range cohort {
		row := scouting.FilterRow{
			PlayerID:   line.PlayerID,
			PlayerName: line.PlayerName,
			Position:   line.Position,
			Age:        line.Age,
			Minutes:    line.Minutes,
		}
		for _, id := range metricIDs {
			value, err := s.metricSvc.Evaluate(line, id)
			if err != nil {
				return scouting.Result{}, err
			}
			if value.Insufficient {
				diagnostics.SomeInsufficientMinutes = true
			}
			row.Values = append(row.Values, value)
		}
		rows = append(rows, row)
	}

	if query.SortMetric != "" {
		idx := -1
		for i, id := range metricIDs {
			if id == query.SortMetric {
				idx = i
				break
			}
		}
		if idx >= 0 {
			m, _ := s.cat.Metric(query.SortMetric)
			higherIsBetter := m.Direction == metric.HigherIsBetter
			sort.Slice(rows, func(i, j int) bool {
				vi, vj := rows[i].Values[idx], rows[j].Values[idx]
				if vi.Insufficient != vj.Insufficient {
					return !vi.Insufficient
				}
				if vi.Value != vj.Value {
					if higherIsBetter {
						return vi.Value > vj.Value
					}
					return vi.Value < vj.Value
				}
				return rows[i].PlayerID < rows[j].PlayerID
			})
		}
	}

	if len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}

	return scouting.Result{
		Filter:      rows,
		Cohort:      scouting.CohortDescriptor{Size: len(cohort)},
		Diagnostics: diagnostics,
	}, nil
}

// resolveMetricSet expands the query's explicit metrics, preset, or — for
// similarity without either — the reference player's position preset; a
// leaderboard without either uses its sort metric.
func (s *ExecutorService) resolveMetricSet(ctx context.Context, query scouting.StructuredQuery) ([]string, error) {
	if len(query.MetricIDs) > 0 {
		return query.MetricIDs, nil
	}
	if query.PresetID != "" {
		preset, ok := s.cat.Preset(query.PresetID)
		if !ok {
			return nil, fmt.Errorf("%w: preset %s", scouting.ErrUnknownMetric, query.PresetID)
		}
		return presetMetricIDs(preset), nil
	}
	if query.Kind == scouting.KindSimilarity && query.ReferenceID != "" {
		p, ok, err := s.playerRepo.GetByID(ctx, query.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("get reference player: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: player=%s", ErrNotFound, query.ReferenceID)
		}
		if preset, found := s.cat.PresetForPosition(p.Position); found {
			return presetMetricIDs(preset), nil
		}
	}
	if query.Kind == scouting.KindLeaderboard && query.SortMetric != "" {
		return []string{query.SortMetric}, nil
	}
	if query.Kind == scouting.KindFilter {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: no metric set or preset", ErrInvalidInput)
}

func (s *ExecutorService) resolveSeason(ctx context.Context, label string) (string, error) {
	season, ok, err := s.playerRepo.GetSeasonByLabel(ctx, label)
	if err != nil {
		return "", fmt.Errorf("resolve season: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: season %s", ErrNotFound, label)
	}
	return season.ID, nil
}

func presetMetricIDs(preset metric.Preset) []string {
	out := make([]string, 0, len(preset.Metrics))
	for _, pm := range preset.Metrics {
		out = append(out, pm.MetricID)
	}
	return out
}

// timeoutCause maps a deadline-driven failure to the typed timeout error.
func timeoutCause(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), scouting.ErrTimeout) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", scouting.ErrTimeout, err)
	}
	return nil
}
