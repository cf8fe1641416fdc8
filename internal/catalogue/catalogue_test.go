package catalogue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pitchlens/scoutcore/internal/domain/scouting"
)

func loadShipped(t *testing.T) *Catalogue {
	t.Helper()

	raw, err := os.ReadFile(filepath.Join("..", "..", "configs", "catalogue.yaml"))
	if err != nil {
		t.Fatalf("read shipped catalogue: %v", err)
	}
	cat, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse shipped catalogue: %v", err)
	}
	return cat
}

func shippedStatColumns() map[string]bool {
	// Mirrors the player_season_stats migration; the real check runs against
	// information_schema at startup.
	cols := []string{
		"minutes_played", "matches_played", "starts",
		"goals", "non_penalty_goals", "penalties_scored", "penalties_attempted",
		"shots", "shots_on_target", "xg", "npxg",
		"assists", "xa", "key_passes", "passes_attempted", "passes_completed",
		"progressive_passes", "passes_forward", "passes_backward", "passes_lateral",
		"passes_into_box", "crosses", "long_passes_attempted", "long_passes_completed",
		"tackles", "tackles_won", "interceptions", "blocks", "clearances",
		"aerials_won", "aerials_contested", "fouls_committed", "fouls_drawn",
		"touches", "carries", "progressive_carries", "dribbles_attempted",
		"dribbles_completed", "dispossessed", "miscontrols",
		"saves", "shots_on_target_against", "goals_conceded", "clean_sheets",
		"penalties_faced", "penalties_saved", "crosses_faced", "crosses_stopped",
		"sweeper_actions", "yellow_cards", "red_cards", "distance_covered_km",
		"sprints", "positional_events", "avg_action_x", "avg_action_y",
		"std_action_x", "std_action_y", "touches_def_third", "touches_mid_third",
		"touches_att_third", "touches_left_channel", "touches_centre_channel",
		"touches_right_channel", "touches_own_box", "touches_opp_box",
	}
	out := make(map[string]bool, len(cols))
	for _, c := range cols {
		out[c] = true
	}
	return out
}

func TestShippedCatalogueSelfCheck(t *testing.T) {
	cat := loadShipped(t)

	if err := cat.SelfCheck(shippedStatColumns()); err != nil {
		t.Fatalf("self-check failed: %v", err)
	}
	if len(cat.MetricIDs()) == 0 {
		t.Fatalf("no metrics loaded")
	}
	if _, ok := cat.Preset("striker_profile"); !ok {
		t.Fatalf("striker_profile preset missing")
	}
}

func TestSelfCheckRejectsUnknownColumn(t *testing.T) {
	cat := loadShipped(t)

	cols := shippedStatColumns()
	delete(cols, "xg")

	err := cat.SelfCheck(cols)
	if !errors.Is(err, ErrCatalogueInvalid) {
		t.Fatalf("expected ErrCatalogueInvalid, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	cat := loadShipped(t)

	t.Run("id resolves to itself", func(t *testing.T) {
		if got := cat.Resolve("goals_per90"); got != "goals_per90" {
			t.Fatalf("unexpected id: %s", got)
		}
	})

	t.Run("alias and name are case-insensitive", func(t *testing.T) {
		if got := cat.Resolve("Pass Accuracy"); got != "pass_completion" {
			t.Fatalf("unexpected id: %s", got)
		}
		if got := cat.Resolve("NPXG"); got != "npxg_per90" {
			t.Fatalf("unexpected id: %s", got)
		}
	})

	t.Run("unknown names never fuzzy-match", func(t *testing.T) {
		if got := cat.Resolve("clutch_factor"); got != Unknown {
			t.Fatalf("expected Unknown, got %s", got)
		}
		if got := cat.Resolve("goals_per9"); got != Unknown {
			t.Fatalf("expected Unknown, got %s", got)
		}
	})
}

func TestValidateQuery(t *testing.T) {
	cat := loadShipped(t)

	base := scouting.StructuredQuery{
		Kind:      scouting.KindLeaderboard,
		MetricIDs: []string{"goals_per90"},
		Cohort:    scouting.CohortFilters{Season: "2024-25"},
		Limit:     10,
	}

	t.Run("accepts a clean query", func(t *testing.T) {
		if err := cat.ValidateQuery(base); err != nil {
			t.Fatalf("unexpected rejection: %v", err)
		}
	})

	t.Run("rejects unknown metric", func(t *testing.T) {
		q := base
		q.MetricIDs = []string{"clutch_factor"}
		if err := cat.ValidateQuery(q); !errors.Is(err, scouting.ErrUnknownMetric) {
			t.Fatalf("expected ErrUnknownMetric, got %v", err)
		}
	})

	t.Run("rejects goalkeeper metric for outfield scope", func(t *testing.T) {
		q := base
		q.MetricIDs = []string{"save_rate"}
		q.Cohort.Positions = []string{"CF"}
		if err := cat.ValidateQuery(q); !errors.Is(err, scouting.ErrIncompatibleMetricForPosition) {
			t.Fatalf("expected ErrIncompatibleMetricForPosition, got %v", err)
		}
	})

	t.Run("rejects limits outside bounds", func(t *testing.T) {
		q := base
		q.Limit = 0
		if err := cat.ValidateQuery(q); !errors.Is(err, scouting.ErrInvalidLimit) {
			t.Fatalf("expected ErrInvalidLimit, got %v", err)
		}
		q.Limit = 501
		if err := cat.ValidateQuery(q); !errors.Is(err, scouting.ErrInvalidLimit) {
			t.Fatalf("expected ErrInvalidLimit, got %v", err)
		}
	})

	t.Run("rejects negative and non-finite weights", func(t *testing.T) {
		q := base
		q.Weights = &scouting.Weights{Role: -1, Stats: 0.5}
		if err := cat.ValidateQuery(q); !errors.Is(err, scouting.ErrInvalidWeight) {
			t.Fatalf("expected ErrInvalidWeight, got %v", err)
		}
		q.Weights = &scouting.Weights{Role: 0, Stats: 0}
		if err := cat.ValidateQuery(q); !errors.Is(err, scouting.ErrInvalidWeight) {
			t.Fatalf("expected ErrInvalidWeight, got %v", err)
		}
	})
}

func TestPresetForPosition(t *testing.T) {
	cat := loadShipped(t)

	cases := map[string]string{
		"CF": "striker_profile",
		"GK": "goalkeeper_profile",
		"CM": "creative_midfielder_profile",
		"CB": "ball_playing_defender_profile",
	}
	for code, want := range cases {
		preset, ok := cat.PresetForPosition(code)
		if !ok {
			t.Fatalf("no preset for %s", code)
		}
		if preset.ID != want {
			t.Fatalf("position %s: got %s want %s", code, preset.ID, want)
		}
	}

	if _, ok := cat.PresetForPosition("XX"); ok {
		t.Fatalf("expected no preset for unknown position")
	}
}

func TestParseRejectsBadCatalogues(t *testing.T) {
	t.Run("duplicate alias across metrics", func(t *testing.T) {
		raw := []byte(`
version: "test"
positions:
  - code: CF
    name: Centre-forward
    groups: { goalkeeper: 0, defender: 0, midfielder: 0, forward: 1 }
metrics:
  - id: a
    name: A
    category: shooting
    formula: goals
    unit: count
    direction: higher
    aliases: [scoring]
  - id: b
    name: B
    category: shooting
    formula: shots
    unit: count
    direction: higher
    aliases: [scoring]
`)
		if _, err := Parse(raw); !errors.Is(err, ErrCatalogueInvalid) {
			t.Fatalf("expected ErrCatalogueInvalid, got %v", err)
		}
	})

	t.Run("malformed formula", func(t *testing.T) {
		raw := []byte(`
version: "test"
metrics:
  - id: a
    name: A
    category: shooting
    formula: "goals +"
    unit: count
    direction: higher
`)
		if _, err := Parse(raw); !errors.Is(err, ErrCatalogueInvalid) {
			t.Fatalf("expected ErrCatalogueInvalid, got %v", err)
		}
	})

	t.Run("group weights must sum to one", func(t *testing.T) {
		raw := []byte(`
version: "test"
positions:
  - code: CF
    name: Centre-forward
    groups: { goalkeeper: 0, defender: 0, midfielder: 0.5, forward: 1 }
metrics:
  - id: a
    name: A
    category: shooting
    formula: goals
    unit: count
    direction: higher
`)
		if _, err := Parse(raw); !errors.Is(err, ErrCatalogueInvalid) {
			t.Fatalf("expected ErrCatalogueInvalid, got %v", err)
		}
	})
}
