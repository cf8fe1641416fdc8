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

func newMetricService(t *testing.T, lines []playerseason.StatLine) *MetricService {
	t.Helper()
	return NewMetricService(testCatalogue(t), memory.NewPlayerSeasonRepository(lines), MetricConfig{
		MinMinutes:    450,
		MinCohortSize: 5,
		ZScoreClip:    3,
	})
}

func TestMetricServiceEvaluate(t *testing.T) {
	svc := newMetricService(t, nil)

	t.Run("per90 scales by minutes", func(t *testing.T) {
		line := testForwardLine(0)
		line.Minutes = 900
		line.Stats["minutes_played"] = playerseason.Value{Float64: 900, Valid: true}
		line.Stats["goals"] = playerseason.Value{Float64: 10, Valid: true}

		got, err := svc.Evaluate(line, "goals_per90")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got.Insufficient {
			t.Fatalf("unexpected insufficient")
		}
		if got.Value != 1.0 {
			t.Fatalf("unexpected per90: %v", got.Value)
		}
		if got.Unit != "per90" {
			t.Fatalf("unexpected unit: %s", got.Unit)
		}
	})

	t.Run("below minutes threshold is insufficient", func(t *testing.T) {
		line := testForwardLine(0)
		line.Minutes = 200

		got, err := svc.Evaluate(line, "goals_per90")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !got.Insufficient {
			t.Fatalf("expected insufficient for 200 minutes against a 450 threshold")
		}
	})

	t.Run("null column is insufficient, not zero", func(t *testing.T) {
		line := testForwardLine(0)
		line.Stats["xg"] = playerseason.Value{Valid: false}

		got, err := svc.Evaluate(line, "xg_per90")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !got.Insufficient {
			t.Fatalf("expected insufficient for null xg")
		}
	})

	t.Run("zero denominator is insufficient, never inf", func(t *testing.T) {
		line := testForwardLine(0)
		line.Stats["shots"] = playerseason.Value{Float64: 0, Valid: true}

		got, err := svc.Evaluate(line, "shot_accuracy")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !got.Insufficient {
			t.Fatalf("expected insufficient for zero shots")
		}
	})

	t.Run("unknown metric is rejected", func(t *testing.T) {
		_, err := svc.Evaluate(testForwardLine(0), "clutch_factor")
		if !errors.Is(err, scouting.ErrUnknownMetric) {
			t.Fatalf("expected ErrUnknownMetric, got %v", err)
		}
	})

	t.Run("metric-specific threshold overrides default", func(t *testing.T) {
		line := testForwardLine(0)
		line.Minutes = 700

		// conversion_rate requires 900 minutes in the catalogue.
		got, err := svc.Evaluate(line, "conversion_rate")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !got.Insufficient {
			t.Fatalf("expected insufficient below the metric's own threshold")
		}
	})
}

func TestMetricServiceValues(t *testing.T) {
	lines := testCohortLines(3)
	svc := newMetricService(t, lines)

	got, err := svc.Values(context.Background(), "p01", testSeasonID, []string{"goals_per90", "shot_accuracy"})
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected count: %d", len(got))
	}

	_, err = svc.Values(context.Background(), "missing", testSeasonID, []string{"goals_per90"})
	if !errors.Is(err, scouting.ErrNoSeasonData) {
		t.Fatalf("expected ErrNoSeasonData, got %v", err)
	}
}

func TestMetricServicePercentiles(t *testing.T) {
	lines := testCohortLines(20)
	svc := newMetricService(t, lines)

	t.Run("bounds and extremes", func(t *testing.T) {
		got, err := svc.Percentiles("touches_per90", lines)
		if err != nil {
			t.Fatalf("percentiles: %v", err)
		}
		if len(got) != len(lines) {
			t.Fatalf("unexpected member count: %d", len(got))
		}
		for playerID, pct := range got {
			if pct < 0 || pct > 100 {
				t.Fatalf("percentile out of bounds for %s: %v", playerID, pct)
			}
		}
	})

	t.Run("ties share the average rank", func(t *testing.T) {
		tied := testCohortLines(6)
		for i := range tied {
			tied[i].Minutes = 900
			tied[i].Stats["minutes_played"] = playerseason.Value{Float64: 900, Valid: true}
			tied[i].Stats["goals"] = playerseason.Value{Float64: 5, Valid: true}
		}
		// Two distinct values below the tie group of four.
		tied[0].Stats["goals"] = playerseason.Value{Float64: 1, Valid: true}
		tied[1].Stats["goals"] = playerseason.Value{Float64: 2, Valid: true}

		got, err := svc.Percentiles("goals_per90", tied)
		if err != nil {
			t.Fatalf("percentiles: %v", err)
		}

		// Ranks 3..6 average to 4.5 → (4.5-1)/5*100 = 70.
		for _, id := range []string{"p02", "p03", "p04", "p05"} {
			if math.Abs(got[id]-70) > 1e-9 {
				t.Fatalf("tied percentile for %s: got %v want 70", id, got[id])
			}
		}
		if got["p00"] != 0 {
			t.Fatalf("lowest percentile: got %v want 0", got["p00"])
		}
	})

	t.Run("small cohorts are refused", func(t *testing.T) {
		_, err := svc.Percentiles("goals_per90", testCohortLines(2))
		if !errors.Is(err, scouting.ErrCohortTooSmall) {
			t.Fatalf("expected ErrCohortTooSmall, got %v", err)
		}
	})
}

func TestMetricServiceStatsFrame(t *testing.T) {
	lines := testCohortLines(12)
	svc := newMetricService(t, lines)
	metricIDs := []string{"npg_per90", "shots_per90", "xa_per90"}

	frame, err := svc.BuildStatsFrame(lines, metricIDs)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}

	t.Run("vectors align to the metric order", func(t *testing.T) {
		vec, ok := frame.Vector("p03")
		if !ok {
			t.Fatalf("missing vector for p03")
		}
		if len(vec) != len(metricIDs) {
			t.Fatalf("unexpected width: %d", len(vec))
		}
	})

	t.Run("z-scores are clipped", func(t *testing.T) {
		for _, line := range lines {
			vec, _ := frame.Vector(line.PlayerID)
			for d, z := range vec {
				if z > 3 || z < -3 {
					t.Fatalf("unclipped z for %s dim %d: %v", line.PlayerID, d, z)
				}
			}
		}
	})

	t.Run("standardised values are centred", func(t *testing.T) {
		for d := range metricIDs {
			sum := 0.0
			for _, line := range lines {
				vec, _ := frame.Vector(line.PlayerID)
				sum += vec[d]
			}
			if math.Abs(sum/float64(len(lines))) > 1e-9 {
				t.Fatalf("dimension %d not centred: mean=%v", d, sum/float64(len(lines)))
			}
		}
	})

	t.Run("insufficient members sit at the mean", func(t *testing.T) {
		short := testCohortLines(12)
		short[4].Minutes = 100
		short[4].Stats["minutes_played"] = playerseason.Value{Float64: 100, Valid: true}

		frame, err := svc.BuildStatsFrame(short, metricIDs)
		if err != nil {
			t.Fatalf("build frame: %v", err)
		}
		vec, _ := frame.Vector("p04")
		for d, z := range vec {
			if z != 0 {
				t.Fatalf("expected mean-sitting zero at dim %d, got %v", d, z)
			}
		}
		if len(frame.Insufficient("p04")) != len(metricIDs) {
			t.Fatalf("expected every metric reported insufficient for p04")
		}
	})
}
