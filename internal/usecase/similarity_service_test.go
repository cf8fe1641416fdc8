package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/pitchlens/scoutcore/internal/domain/playerseason"
	"github.com/pitchlens/scoutcore/internal/domain/scouting"
	"github.com/pitchlens/scoutcore/internal/infrastructure/repository/memory"
)

var strikerMetricIDs = []string{"npg_per90", "npxg_per90", "shots_per90", "xa_per90", "touches_per90"}

func newSimilarityService(t *testing.T, lines []playerseason.StatLine) *SimilarityService {
	t.Helper()

	cat := testCatalogue(t)
	seasonRepo := memory.NewPlayerSeasonRepository(lines)
	metricSvc := NewMetricService(cat, seasonRepo, MetricConfig{
		MinMinutes:    450,
		MinCohortSize: 5,
		ZScoreClip:    3,
	})
	roleSvc := NewRoleService(cat, seasonRepo, RoleConfig{MinEvents: 100})
	return NewSimilarityService(cat, metricSvc, roleSvc, SimilarityConfig{
		RoleWeight:    0.6,
		StatsWeight:   0.4,
		ClampNegative: true,
	})
}

func similarityRequest(referenceID string, limit int) SimilarityRequest {
	return SimilarityRequest{
		ReferenceID: referenceID,
		SeasonID:    testSeasonID,
		Filter: playerseason.CohortFilter{
			LeagueIDs:  []string{testLeagueID},
			SeasonID:   testSeasonID,
			MinMinutes: 450,
		},
		MetricIDs: strikerMetricIDs,
		Limit:     limit,
	}
}

func TestSimilaritySelfIdentity(t *testing.T) {
	svc := newSimilarityService(t, testCohortLines(20))

	outcome, err := svc.SimilarTo(context.Background(), similarityRequest("p07", 10))
	if err != nil {
		t.Fatalf("similar to: %v", err)
	}
	if len(outcome.Rows) == 0 {
		t.Fatalf("no rows")
	}

	top := outcome.Rows[0]
	if top.PlayerID != "p07" {
		t.Fatalf("top entry is %s, want the reference itself", top.PlayerID)
	}
	if math.Abs(top.Total-1.0) > 1e-9 {
		t.Fatalf("self-similarity: got %v want 1.0", top.Total)
	}
	if math.Abs(top.RoleComponent-1.0) > 1e-9 || math.Abs(top.StatsComponent-1.0) > 1e-9 {
		t.Fatalf("self components: role=%v stats=%v", top.RoleComponent, top.StatsComponent)
	}
}

func TestSimilaritySymmetry(t *testing.T) {
	lines := testCohortLines(20)
	svc := newSimilarityService(t, lines)

	lookup := func(reference, candidate string) scouting.SimilarityRow {
		outcome, err := svc.SimilarTo(context.Background(), similarityRequest(reference, 50))
		if err != nil {
			t.Fatalf("similar to %s: %v", reference, err)
		}
		for _, row := range outcome.Rows {
			if row.PlayerID == candidate {
				return row
			}
		}
		t.Fatalf("candidate %s missing from ranking of %s", candidate, reference)
		return scouting.SimilarityRow{}
	}

	ab := lookup("p03", "p11")
	ba := lookup("p11", "p03")
	if math.Abs(ab.Total-ba.Total) > 1e-9 {
		t.Fatalf("asymmetric similarity: %v vs %v", ab.Total, ba.Total)
	}
}

func TestSimilarityTotalsAndBounds(t *testing.T) {
	svc := newSimilarityService(t, testCohortLines(20))

	weights := &scouting.Weights{Role: 0.7, Stats: 0.3}
	req := similarityRequest("p00", 50)
	req.Weights = weights

	outcome, err := svc.SimilarTo(context.Background(), req)
	if err != nil {
		t.Fatalf("similar to: %v", err)
	}

	wSum := weights.Role + weights.Stats
	for _, row := range outcome.Rows {
		if row.Total < 0 || row.Total > 1 {
			t.Fatalf("total out of bounds for %s: %v", row.PlayerID, row.Total)
		}
		expected := weights.Role/wSum*row.RoleComponent + weights.Stats/wSum*row.StatsComponent
		if math.Abs(row.Total-expected) > 1e-9 {
			t.Fatalf("total mismatch for %s: got %v want %v", row.PlayerID, row.Total, expected)
		}
		if len(row.ClosestMetrics) == 0 || len(row.DivergingMetrics) == 0 {
			t.Fatalf("missing attribution for %s", row.PlayerID)
		}
	}
}

func TestSimilarityWeightExtremes(t *testing.T) {
	lines := testCohortLines(20)
	svc := newSimilarityService(t, lines)

	run := func(role, stats float64) map[string]scouting.SimilarityRow {
		req := similarityRequest("p05", 50)
		req.Weights = &scouting.Weights{Role: role, Stats: stats}
		outcome, err := svc.SimilarTo(context.Background(), req)
		if err != nil {
			t.Fatalf("similar to: %v", err)
		}
		out := make(map[string]scouting.SimilarityRow, len(outcome.Rows))
		for _, row := range outcome.Rows {
			out[row.PlayerID] = row
		}
		return out
	}

	statsOnly := run(0, 1)
	roleOnly := run(1, 0)

	for playerID, row := range statsOnly {
		if math.Abs(row.Total-row.StatsComponent) > 1e-9 {
			t.Fatalf("stats-only total for %s: got %v want %v", playerID, row.Total, row.StatsComponent)
		}
	}
	for playerID, row := range roleOnly {
		if math.Abs(row.Total-row.RoleComponent) > 1e-9 {
			t.Fatalf("role-only total for %s: got %v want %v", playerID, row.Total, row.RoleComponent)
		}
	}
}

func TestSimilarityExcludesRoleInsufficient(t *testing.T) {
	lines := testCohortLines(20)
	lines[4].Stats[playerseason.ColPositionalEvents] = playerseason.Value{Float64: 10, Valid: true}
	svc := newSimilarityService(t, lines)

	outcome, err := svc.SimilarTo(context.Background(), similarityRequest("p00", 50))
	if err != nil {
		t.Fatalf("similar to: %v", err)
	}
	for _, row := range outcome.Rows {
		if row.PlayerID == "p04" {
			t.Fatalf("role-insufficient candidate ranked")
		}
	}
}

func TestSimilarityReferenceRoleInsufficient(t *testing.T) {
	lines := testCohortLines(20)
	lines[2].Stats[playerseason.ColPositionalEvents] = playerseason.Value{Float64: 10, Valid: true}
	svc := newSimilarityService(t, lines)

	_, err := svc.SimilarTo(context.Background(), similarityRequest("p02", 10))
	if !errors.Is(err, scouting.ErrReferenceRoleInsufficient) {
		t.Fatalf("expected ErrReferenceRoleInsufficient, got %v", err)
	}
}

func TestSimilarityCohortTooSmall(t *testing.T) {
	svc := newSimilarityService(t, testCohortLines(3))

	_, err := svc.SimilarTo(context.Background(), similarityRequest("p00", 10))
	if !errors.Is(err, scouting.ErrCohortTooSmall) {
		t.Fatalf("expected ErrCohortTooSmall, got %v", err)
	}
}

func TestSimilarityZeroMinuteExclusion(t *testing.T) {
	lines := testCohortLines(20)
	lines[9].Minutes = 0
	lines[9].Stats["minutes_played"] = playerseason.Value{Float64: 0, Valid: true}
	svc := newSimilarityService(t, lines)

	// The default min-minutes filter keeps the zero-minute season out of the cohort.
	outcome, err := svc.SimilarTo(context.Background(), similarityRequest("p00", 50))
	if err != nil {
		t.Fatalf("similar to: %v", err)
	}
	for _, row := range outcome.Rows {
		if row.PlayerID == "p09" {
			t.Fatalf("zero-minute season ranked")
		}
	}
	if outcome.CohortSize != 19 {
		t.Fatalf("unexpected cohort size: %d", outcome.CohortSize)
	}
}
