package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pitchlens/scoutcore/internal/catalogue"
	"github.com/pitchlens/scoutcore/internal/domain/player"
	"github.com/pitchlens/scoutcore/internal/domain/playerseason"
)

const (
	testSeasonID = "s2024"
	testLeagueID = "epl"
)

func testCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()

	raw, err := os.ReadFile(filepath.Join("..", "..", "configs", "catalogue.yaml"))
	if err != nil {
		t.Fatalf("read catalogue: %v", err)
	}
	cat, err := catalogue.Parse(raw)
	if err != nil {
		t.Fatalf("parse catalogue: %v", err)
	}
	return cat
}

func statValues(values map[string]float64) map[string]playerseason.Value {
	out := make(map[string]playerseason.Value, len(values))
	for k, v := range values {
		out[k] = playerseason.Value{Float64: v, Valid: true}
	}
	return out
}

// testForwardLine builds one deterministic centre-forward season. Index i
// varies every stat so no two players coincide, without any randomness.
func testForwardLine(i int) playerseason.StatLine {
	minutes := 900 + 45*i
	shots := 40 + 3*i
	onTarget := 14 + i
	goals := 8 + i%7
	touches := 1100 + 40*i

	stats := map[string]float64{
		"minutes_played":          float64(minutes),
		"matches_played":          float64(12 + i%8),
		"starts":                  float64(10 + i%8),
		"goals":                   float64(goals),
		"non_penalty_goals":       float64(goals - i%3),
		"penalties_scored":        float64(i % 3),
		"penalties_attempted":     float64(i % 3),
		"shots":                   float64(shots),
		"shots_on_target":         float64(onTarget),
		"xg":                      6.5 + 0.4*float64(i),
		"npxg":                    5.9 + 0.35*float64(i),
		"assists":                 float64(2 + i%5),
		"xa":                      1.8 + 0.2*float64(i),
		"key_passes":              float64(18 + 2*i),
		"passes_attempted":        float64(420 + 25*i),
		"passes_completed":        float64(340 + 20*i),
		"progressive_passes":      float64(22 + 2*i),
		"passes_forward":          float64(120 + 6*i),
		"passes_backward":         float64(90 + 4*i),
		"passes_lateral":          float64(130 + 10*i),
		"passes_into_box":         float64(14 + i),
		"crosses":                 float64(8 + i%6),
		"long_passes_attempted":   float64(30 + i),
		"long_passes_completed":   float64(18 + i),
		"tackles":                 float64(12 + i%9),
		"tackles_won":             float64(7 + i%6),
		"interceptions":           float64(6 + i%5),
		"blocks":                  float64(4 + i%4),
		"clearances":              float64(6 + i%7),
		"aerials_won":             float64(30 + 2*i),
		"aerials_contested":       float64(60 + 3*i),
		"fouls_committed":         float64(14 + i%6),
		"fouls_drawn":             float64(20 + i%9),
		"touches":                 float64(touches),
		"carries":                 float64(400 + 15*i),
		"progressive_carries":     float64(40 + 3*i),
		"dribbles_attempted":      float64(38 + 2*i),
		"dribbles_completed":      float64(20 + i),
		"dispossessed":            float64(22 + i%8),
		"miscontrols":             float64(25 + i%9),
		"yellow_cards":            float64(i % 5),
		"red_cards":               float64(i % 2),
		"distance_covered_km":     98.5 + 2.5*float64(i),
		"sprints":                 float64(180 + 8*i),
		"positional_events":       float64(900 + 50*i),
		"avg_action_x":            62 + float64(i%12),
		"avg_action_y":            44 + float64(i%18),
		"std_action_x":            14 + float64(i%6),
		"std_action_y":            17 + float64(i%7),
		"touches_def_third":       float64(90 + 5*i),
		"touches_mid_third":       float64(420 + 15*i),
		"touches_att_third":       float64(520 + 25*i),
		"touches_left_channel":    float64(260 + 10*i),
		"touches_centre_channel":  float64(480 + 20*i),
		"touches_right_channel":   float64(290 + 10*i),
		"touches_own_box":         float64(10 + i%5),
		"touches_opp_box":         float64(150 + 8*i),
		"shots_on_target_against": 0,
	}

	return playerseason.StatLine{
		PlayerID:   fmt.Sprintf("p%02d", i),
		PlayerName: fmt.Sprintf("Player %02d", i),
		TeamID:     fmt.Sprintf("t%d", i%6),
		LeagueID:   testLeagueID,
		SeasonID:   testSeasonID,
		Position:   "CF",
		Age:        21 + i%12,
		Minutes:    minutes,
		Matches:    12 + i%8,
		Stats:      statValues(stats),
	}
}

func testCohortLines(n int) []playerseason.StatLine {
	out := make([]playerseason.StatLine, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, testForwardLine(i))
	}
	return out
}

func testPlayers(n int) []player.Player {
	out := make([]player.Player, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, player.Player{
			ID:          fmt.Sprintf("p%02d", i),
			Name:        fmt.Sprintf("Player %02d", i),
			DateOfBirth: time.Date(2000-i%12, time.March, 1, 0, 0, 0, 0, time.UTC),
			Nationality: "England",
			Position:    "CF",
			Foot:        player.FootRight,
		})
	}
	return out
}

func testLeagues() []player.League {
	return []player.League{
		{ID: testLeagueID, Name: "Premier League", Country: "England"},
		{ID: "laliga", Name: "La Liga", Country: "Spain"},
	}
}

func testSeasons() []player.Season {
	return []player.Season{
		{
			ID:      testSeasonID,
			Label:   "2024-25",
			StartAt: time.Date(2024, time.August, 10, 0, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2025, time.May, 25, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:      "s2023",
			Label:   "2023-24",
			StartAt: time.Date(2023, time.August, 12, 0, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2024, time.May, 19, 0, 0, 0, 0, time.UTC),
		},
	}
}
