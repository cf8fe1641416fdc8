package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pitchlens/scoutcore/internal/domain/scouting"
	"github.com/pitchlens/scoutcore/internal/infrastructure/repository/memory"
	"github.com/pitchlens/scoutcore/internal/platform/cache"
)

type stubLLM struct {
	completion string
	err        error
	prompts    []string
	calls      int
}

func (s *stubLLM) Complete(_ context.Context, prompt string, _ float64, _ int) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.completion, nil
}

func newParserService(t *testing.T, llm LLMCompleter, store *cache.Store) *ParserService {
	t.Helper()

	playerRepo := memory.NewPlayerRepository(testPlayers(12), testLeagues(), testSeasons())
	return NewParserService(llm, testCatalogue(t), playerRepo, store, ParserConfig{
		Temperature:  0.1,
		MaxTokens:    600,
		DefaultLimit: 20,
	})
}

func TestParserStrict(t *testing.T) {
	t.Run("resolves a clean leaderboard question", func(t *testing.T) {
		llm := &stubLLM{completion: `{"kind": "leaderboard", "metrics": ["expected goals"], "leagues": ["Premier League"], "season": "2024-25", "positions": ["CF"], "min_minutes": 900, "limit": 10}`}
		svc := newParserService(t, llm, nil)

		query, err := svc.Parse(context.Background(), "top 10 strikers by expected goals in the premier league")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		if query.Kind != scouting.KindLeaderboard {
			t.Fatalf("unexpected kind: %s", query.Kind)
		}
		if query.SortMetric != "xg_per90" {
			t.Fatalf("unexpected sort metric: %s", query.SortMetric)
		}
		if len(query.Cohort.LeagueIDs) != 1 || query.Cohort.LeagueIDs[0] != testLeagueID {
			t.Fatalf("unexpected leagues: %v", query.Cohort.LeagueIDs)
		}
		if query.Cohort.Season != testSeasonID {
			t.Fatalf("unexpected season: %s", query.Cohort.Season)
		}
		if query.Limit != 10 {
			t.Fatalf("unexpected limit: %d", query.Limit)
		}
	})

	t.Run("refuses an invented metric", func(t *testing.T) {
		llm := &stubLLM{completion: `{"kind": "leaderboard", "metrics": ["clutch factor"], "season": "2024-25", "limit": 10}`}
		svc := newParserService(t, llm, nil)

		_, err := svc.Parse(context.Background(), "give me players with high clutch factor")
		if !errors.Is(err, scouting.ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
		if !strings.Contains(err.Error(), "unknown term: clutch factor") {
			t.Fatalf("expected offending token in error, got %v", err)
		}
	})

	t.Run("refuses non-structured model output", func(t *testing.T) {
		llm := &stubLLM{completion: "I think you want the top scorers, which are..."}
		svc := newParserService(t, llm, nil)

		_, err := svc.Parse(context.Background(), "who are the best finishers")
		if !errors.Is(err, scouting.ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
	})

	t.Run("surfaces transient llm failures unchanged", func(t *testing.T) {
		llm := &stubLLM{err: errors.New("connection refused")}
		svc := newParserService(t, llm, nil)

		_, err := svc.Parse(context.Background(), "who are the best finishers")
		if !errors.Is(err, scouting.ErrLLMUnavailable) {
			t.Fatalf("expected ErrLLMUnavailable, got %v", err)
		}
	})

	t.Run("prompt carries the bounded vocabulary", func(t *testing.T) {
		llm := &stubLLM{completion: `{"kind": "filter", "season": "2024-25", "limit": 5}`}
		svc := newParserService(t, llm, nil)

		if _, err := svc.Parse(context.Background(), "young forwards"); err != nil {
			t.Fatalf("parse: %v", err)
		}
		prompt := llm.prompts[0]
		for _, want := range []string{"goals_per90", "striker_profile", "CF", testLeagueID} {
			if !strings.Contains(prompt, want) {
				t.Fatalf("prompt missing %q", want)
			}
		}
	})
}

func TestParserLenient(t *testing.T) {
	t.Run("degrades to the reference player's preset", func(t *testing.T) {
		llm := &stubLLM{completion: `{"kind": "similarity", "player": "Player 03", "metrics": ["clutch factor"], "season": "2024-25", "limit": 10}`}
		svc := newParserService(t, llm, nil)

		outcome, err := svc.ParseLenient(context.Background(), "players like Player 03 with high clutch factor")
		if err != nil {
			t.Fatalf("parse lenient: %v", err)
		}

		if !outcome.Degraded {
			t.Fatalf("expected degraded outcome")
		}
		found := false
		for _, w := range outcome.Warnings {
			if strings.Contains(w, "unknown term: clutch factor") {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected unknown-term warning, got %v", outcome.Warnings)
		}
		if outcome.Query.Kind != scouting.KindSimilarity {
			t.Fatalf("unexpected kind: %s", outcome.Query.Kind)
		}
		if outcome.Query.ReferenceID != "p03" {
			t.Fatalf("unexpected reference: %s", outcome.Query.ReferenceID)
		}
		if outcome.Query.PresetID != "striker_profile" {
			t.Fatalf("expected position preset, got %q", outcome.Query.PresetID)
		}
	})

	t.Run("clean questions come back undegraded", func(t *testing.T) {
		llm := &stubLLM{completion: `{"kind": "leaderboard", "metrics": ["goals_per90"], "season": "2024-25", "limit": 10}`}
		svc := newParserService(t, llm, nil)

		outcome, err := svc.ParseLenient(context.Background(), "top scorers this season")
		if err != nil {
			t.Fatalf("parse lenient: %v", err)
		}
		if outcome.Degraded || len(outcome.Warnings) > 0 {
			t.Fatalf("unexpected degradation: %+v", outcome)
		}
	})
}

func TestParserCaching(t *testing.T) {
	llm := &stubLLM{completion: `{"kind": "leaderboard", "metrics": ["goals_per90"], "season": "2024-25", "limit": 10}`}
	svc := newParserService(t, llm, cache.NewStore(0))

	for i := 0; i < 3; i++ {
		if _, err := svc.Parse(context.Background(), "Top scorers this season"); err != nil {
			t.Fatalf("parse: %v", err)
		}
	}
	if llm.calls != 1 {
		t.Fatalf("expected one llm call, got %d", llm.calls)
	}
}
