package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/pitchlens/scoutcore/internal/domain/player"
	"github.com/pitchlens/scoutcore/internal/domain/playerseason"
	"github.com/pitchlens/scoutcore/internal/platform/logging"
)

type WarmupInput struct {
	// LeagueIDs to probe; empty means every league in the store.
	LeagueIDs []string
	// Season label to probe; empty means the most recent season.
	Season     string
	MaxWorkers int
}

type WarmupLeagueResult struct {
	LeagueID   string `json:"league_id"`
	CohortSize int    `json:"cohort_size"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type WarmupResult struct {
	SeasonID    string               `json:"season_id"`
	LeagueCount int                  `json:"league_count"`
	EmptyCount  int                  `json:"empty_count"`
	FailedCount int                  `json:"failed_count"`
	WorkerCount int                  `json:"worker_count"`
	Leagues     []WarmupLeagueResult `json:"leagues"`
}

// WarmupService is a startup data-readiness probe: it fans out one cohort
// fetch per league over a bounded worker pool, so an empty or unreachable
// store shows up in the logs before the first real query does.
type WarmupService struct {
	playerRepo player.Repository
	seasonRepo playerseason.Repository
	logger     *logging.Logger
}

func NewWarmupService(playerRepo player.Repository, seasonRepo playerseason.Repository, logger *logging.Logger) *WarmupService {
	if logger == nil {
		logger = logging.Default()
	}
	return &WarmupService{
		playerRepo: playerRepo,
		seasonRepo: seasonRepo,
		logger:     logger,
	}
}

func (s *WarmupService) Run(ctx context.Context, input WarmupInput) (WarmupResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.WarmupService.Run")
	defer span.End()

	seasonID, err := s.resolveSeason(ctx, input.Season)
	if err != nil {
		return WarmupResult{}, err
	}

	leagueIDs := input.LeagueIDs
	if len(leagueIDs) == 0 {
		leagues, err := s.playerRepo.ListLeagues(ctx)
		if err != nil {
			return WarmupResult{}, fmt.Errorf("list leagues: %w", err)
		}
		for _, l := range leagues {
			leagueIDs = append(leagueIDs, l.ID)
		}
	}
	if len(leagueIDs) == 0 {
		return WarmupResult{SeasonID: seasonID}, nil
	}

	workers := input.MaxWorkers
	if workers < 1 {
		workers = 4
	}
	if workers > len(leagueIDs) {
		workers = len(leagueIDs)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return WarmupResult{}, fmt.Errorf("create warmup pool: %w", err)
	}
	defer pool.Release()

	results := make([]WarmupLeagueResult, len(leagueIDs))
	var wg sync.WaitGroup
	for i, leagueID := range leagueIDs {
		i, leagueID := i, leagueID
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i] = s.probeLeague(ctx, leagueID, seasonID)
		})
		if submitErr != nil {
			wg.Done()
			results[i] = WarmupLeagueResult{LeagueID: leagueID, Error: submitErr.Error()}
		}
	}
	wg.Wait()

	out := WarmupResult{
		SeasonID:    seasonID,
		LeagueCount: len(leagueIDs),
		WorkerCount: workers,
		Leagues:     results,
	}
	for _, r := range results {
		if r.Error != "" {
			out.FailedCount++
			continue
		}
		if r.CohortSize == 0 {
			out.EmptyCount++
		}
	}

	s.logger.InfoContext(ctx, "store warmup probe finished",
		"season_id", seasonID,
		"leagues", out.LeagueCount,
		"empty", out.EmptyCount,
		"failed", out.FailedCount,
	)

	return out, nil
}

func (s *WarmupService) probeLeague(ctx context.Context, leagueID, seasonID string) WarmupLeagueResult {
	started := time.Now()
	lines, err := s.seasonRepo.ListCohort(ctx, playerseason.CohortFilter{
		LeagueIDs: []string{leagueID},
		SeasonID:  seasonID,
	})
	result := WarmupLeagueResult{
		LeagueID:   leagueID,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.CohortSize = len(lines)
	return result
}

func (s *WarmupService) resolveSeason(ctx context.Context, label string) (string, error) {
	if label != "" {
		season, ok, err := s.playerRepo.GetSeasonByLabel(ctx, label)
		if err != nil {
			return "", fmt.Errorf("resolve season: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("%w: season %s", ErrNotFound, label)
		}
		return season.ID, nil
	}

	seasons, err := s.playerRepo.ListSeasons(ctx)
	if err != nil {
		return "", fmt.Errorf("list seasons: %w", err)
	}
	if len(seasons) == 0 {
		return "", fmt.Errorf("%w: no seasons in store", ErrNotFound)
	}
	latest := seasons[0]
	for _, season := range seasons[1:] {
		if season.StartAt.After(latest.StartAt) {
			latest = season
		}
	}
	return latest.ID, nil
}
