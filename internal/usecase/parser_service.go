package usecase

import (
	"context"
	"fmt"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/pitchlens/scoutcore/internal/catalogue"
	"github.com/pitchlens/scoutcore/internal/domain/player"
	"github.com/pitchlens/scoutcore/internal/domain/scouting"
	"github.com/pitchlens/scoutcore/internal/platform/cache"
)

// LLMCompleter is the language-model boundary. Only the parser talks to it.
type LLMCompleter interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

type ParserConfig struct {
	// Temperature keeps generation near-deterministic.
	Temperature float64
	MaxTokens   int
	// DefaultLimit applies when the question names no count.
	DefaultLimit int
}

func (c ParserConfig) normalised() ParserConfig {
	if c.Temperature <= 0 {
		c.Temperature = 0.1
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 600
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 20
	}
	return c
}

// ParserService turns free text into a StructuredQuery, or refuses. Four
// layers keep hallucinated vocabulary out: the prompt carries the full
// bounded vocabulary, the completion is schema-checked, every name resolves
// against the catalogue and the store, and on failure the parser returns a
// typed error or a flagged safe default. It never invents a metric and never
// computes a number.
type ParserService struct {
	llm        LLMCompleter
	cat        *catalogue.Catalogue
	playerRepo player.Repository
	validate   *validator.Validate
	cache      *cache.Store
	cfg        ParserConfig
}

func NewParserService(llm LLMCompleter, cat *catalogue.Catalogue, playerRepo player.Repository, store *cache.Store, cfg ParserConfig) *ParserService {
	return &ParserService{
		llm:        llm,
		cat:        cat,
		playerRepo: playerRepo,
		validate:   validator.New(),
		cache:      store,
		cfg:        cfg.normalised(),
	}
}

// Parse is the strict mode: any unresolved token fails the whole question.
func (s *ParserService) Parse(ctx context.Context, text string) (scouting.StructuredQuery, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ParserService.Parse")
	defer span.End()

	outcome, err := s.parse(ctx, text)
	if err != nil {
		return scouting.StructuredQuery{}, err
	}
	if len(outcome.Warnings) > 0 {
		return scouting.StructuredQuery{}, fmt.Errorf("%w: %s", scouting.ErrParse, strings.Join(outcome.Warnings, "; "))
	}
	return outcome.Query, nil
}

// ParseLenient degrades instead of refusing: unresolved tokens fall back to a
// safe default scoped to the entity the text most plausibly references, with
// the degradation reported. Transient LLM failures still surface as errors.
func (s *ParserService) ParseLenient(ctx context.Context, text string) (scouting.ParseOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ParserService.ParseLenient")
	defer span.End()

	outcome, err := s.parse(ctx, text)
	if err != nil {
		return scouting.ParseOutcome{}, err
	}
	return outcome, nil
}

// llmQuery is the only shape the model may answer with. Anything that fails
// this schema is rejected before resolution starts.
type llmQuery struct {
	Kind       string   `json:"kind" validate:"required,oneof=similarity leaderboard comparison filter"`
	Player     string   `json:"player"`
	Players    []string `json:"players" validate:"max=10"`
	Metrics    []string `json:"metrics" validate:"max=20"`
	Preset     string   `json:"preset"`
	SortMetric string   `json:"sort_metric"`
	Leagues    []string `json:"leagues" validate:"max=10"`
	Season     string   `json:"season"`
	Positions  []string `json:"positions" validate:"max=11"`
	MinAge     int      `json:"min_age" validate:"min=0,max=60"`
	MaxAge     int      `json:"max_age" validate:"min=0,max=60"`
	MinMinutes int      `json:"min_minutes" validate:"min=0"`
	Limit      int      `json:"limit" validate:"min=0,max=500"`
}

func (s *ParserService) parse(ctx context.Context, text string) (scouting.ParseOutcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return scouting.ParseOutcome{}, fmt.Errorf("%w: empty question", scouting.ErrParse)
	}

	if s.cache == nil {
		return s.parseUncached(ctx, text)
	}

	key := "parse:" + strings.ToLower(text)
	loaded, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		return s.parseUncached(ctx, text)
	})
	if err != nil {
		return scouting.ParseOutcome{}, err
	}
	outcome, ok := loaded.(scouting.ParseOutcome)
	if !ok {
		return scouting.ParseOutcome{}, fmt.Errorf("%w: unexpected cached value", scouting.ErrParse)
	}
	return outcome, nil
}

func (s *ParserService) parseUncached(ctx context.Context, text string) (scouting.ParseOutcome, error) {
	prompt, err := s.buildPrompt(ctx, text)
	if err != nil {
		return scouting.ParseOutcome{}, err
	}

	completion, err := s.llm.Complete(ctx, prompt, s.cfg.Temperature, s.cfg.MaxTokens)
	if err != nil {
		return scouting.ParseOutcome{}, fmt.Errorf("%w: %w", scouting.ErrLLMUnavailable, err)
	}

	raw := extractJSON(completion)
	var candidate llmQuery
	if err := sonic.Unmarshal([]byte(raw), &candidate); err != nil {
		return s.safeDefault(ctx, llmQuery{}, []string{"model output is not valid structured output"})
	}
	if err := s.validate.Struct(candidate); err != nil {
		return s.safeDefault(ctx, candidate, []string{fmt.Sprintf("model output failed schema check: %v", err)})
	}

	query, warnings, err := s.resolve(ctx, candidate)
	if err != nil {
		return scouting.ParseOutcome{}, err
	}
	if len(warnings) > 0 {
		return s.safeDefault(ctx, candidate, warnings)
	}

	if err := s.cat.ValidateQuery(query); err != nil {
		return s.safeDefault(ctx, candidate, []string{err.Error()})
	}

	return scouting.ParseOutcome{Query: query}, nil
}

// resolve maps every name the model produced onto catalogue and store
// entities. Unresolvable names are collected as warnings, never guessed at.
func (s *ParserService) resolve(ctx context.Context, candidate llmQuery) (scouting.StructuredQuery, []string, error) {
	var warnings []string

	query := scouting.StructuredQuery{
		Kind:  scouting.QueryKind(candidate.Kind),
		Limit: candidate.Limit,
	}
	if query.Limit == 0 {
		query.Limit = s.cfg.DefaultLimit
	}

	for _, name := range candidate.Metrics {
		id := s.cat.Resolve(name)
		if id == catalogue.Unknown {
			warnings = append(warnings, "unknown term: "+strings.TrimSpace(name))
			continue
		}
		query.MetricIDs = append(query.MetricIDs, id)
	}
	if candidate.SortMetric != "" {
		id := s.cat.Resolve(candidate.SortMetric)
		if id == catalogue.Unknown {
			warnings = append(warnings, "unknown term: "+strings.TrimSpace(candidate.SortMetric))
		} else {
			query.SortMetric = id
		}
	}
	if candidate.Preset != "" {
		presetID := strings.ToLower(strings.TrimSpace(candidate.Preset))
		if _, ok := s.cat.Preset(presetID); !ok {
			warnings = append(warnings, "unknown preset: "+candidate.Preset)
		} else {
			query.PresetID = presetID
		}
	}

	for _, code := range candidate.Positions {
		pos, ok := s.cat.Position(code)
		if !ok {
			warnings = append(warnings, "unknown position: "+code)
			continue
		}
		query.Cohort.Positions = append(query.Cohort.Positions, pos.Code)
	}

	leagues, err := s.playerRepo.ListLeagues(ctx)
	if err != nil {
		return scouting.StructuredQuery{}, nil, fmt.Errorf("list leagues: %w", err)
	}
	for _, name := range candidate.Leagues {
		id, ok := resolveLeague(leagues, name)
		if !ok {
			warnings = append(warnings, "unknown league: "+name)
			continue
		}
		query.Cohort.LeagueIDs = append(query.Cohort.LeagueIDs, id)
	}

	season, err := s.resolveSeason(ctx, candidate.Season)
	if err != nil {
		return scouting.StructuredQuery{}, nil, err
	}
	if season == "" {
		warnings = append(warnings, "unknown season: "+candidate.Season)
	}
	query.Cohort.Season = season
	query.Cohort.MinAge = candidate.MinAge
	query.Cohort.MaxAge = candidate.MaxAge
	query.Cohort.MinMinutes = candidate.MinMinutes

	if candidate.Player != "" {
		id, ok, err := s.resolvePlayer(ctx, candidate.Player)
		if err != nil {
			return scouting.StructuredQuery{}, nil, err
		}
		if !ok {
			warnings = append(warnings, "unknown player: "+candidate.Player)
		} else {
			query.ReferenceID = id
		}
	}
	for _, name := range candidate.Players {
		id, ok, err := s.resolvePlayer(ctx, name)
		if err != nil {
			return scouting.StructuredQuery{}, nil, err
		}
		if !ok {
			warnings = append(warnings, "unknown player: "+name)
			continue
		}
		query.PlayerIDs = append(query.PlayerIDs, id)
	}

	switch query.Kind {
	case scouting.KindSimilarity:
		if query.ReferenceID == "" {
			warnings = append(warnings, "similarity question without a resolvable reference player")
		}
	case scouting.KindLeaderboard:
		if query.SortMetric == "" && len(query.MetricIDs) > 0 {
			query.SortMetric = query.MetricIDs[0]
		}
		if query.SortMetric == "" {
			warnings = append(warnings, "leaderboard question without a resolvable metric")
		}
	case scouting.KindComparison:
		if len(query.PlayerIDs) < 2 {
			warnings = append(warnings, "comparison question needs at least two resolvable players")
		}
	}

	return query, warnings, nil
}

// safeDefault is defence layer four: on any rejection the parser does not
// guess. It falls back to the entity the text most plausibly references and
// that entity's position preset, flagged degraded.
func (s *ParserService) safeDefault(ctx context.Context, candidate llmQuery, warnings []string) (scouting.ParseOutcome, error) {
	season, err := s.resolveSeason(ctx, candidate.Season)
	if err != nil {
		return scouting.ParseOutcome{}, err
	}
	if season == "" {
		return scouting.ParseOutcome{}, fmt.Errorf("%w: %s", scouting.ErrParse, strings.Join(warnings, "; "))
	}

	outcome := scouting.ParseOutcome{
		Degraded: true,
		Warnings: warnings,
		Query: scouting.StructuredQuery{
			Kind:   scouting.KindFilter,
			Cohort: scouting.CohortFilters{Season: season},
			Limit:  s.cfg.DefaultLimit,
		},
	}

	if candidate.Player != "" {
		if id, ok, err := s.resolvePlayer(ctx, candidate.Player); err != nil {
			return scouting.ParseOutcome{}, err
		} else if ok {
			outcome.Query.Kind = scouting.KindSimilarity
			outcome.Query.ReferenceID = id
			if p, found, err := s.playerRepo.GetByID(ctx, id); err != nil {
				return scouting.ParseOutcome{}, err
			} else if found {
				if preset, ok := s.cat.PresetForPosition(p.Position); ok {
					outcome.Query.PresetID = preset.ID
				}
			}
		}
	}
	if outcome.Query.Kind == scouting.KindFilter && len(candidate.Positions) > 0 {
		if pos, ok := s.cat.Position(candidate.Positions[0]); ok {
			outcome.Query.Cohort.Positions = []string{pos.Code}
			if preset, found := s.cat.PresetForPosition(pos.Code); found {
				outcome.Query.PresetID = preset.ID
			}
		}
	}

	if err := s.cat.ValidateQuery(outcome.Query); err != nil {
		return scouting.ParseOutcome{}, fmt.Errorf("%w: %s", scouting.ErrParse, strings.Join(warnings, "; "))
	}

	return outcome, nil
}

func (s *ParserService) resolveSeason(ctx context.Context, label string) (string, error) {
	label = strings.TrimSpace(label)
	if label != "" {
		season, ok, err := s.playerRepo.GetSeasonByLabel(ctx, label)
		if err != nil {
			return "", fmt.Errorf("resolve season: %w", err)
		}
		if !ok {
			return "", nil
		}
		return season.ID, nil
	}

	seasons, err := s.playerRepo.ListSeasons(ctx)
	if err != nil {
		return "", fmt.Errorf("list seasons: %w", err)
	}
	if len(seasons) == 0 {
		return "", nil
	}

	latest := seasons[0]
	for _, season := range seasons[1:] {
		if season.StartAt.After(latest.StartAt) {
			latest = season
		}
	}
	return latest.ID, nil
}

func (s *ParserService) resolvePlayer(ctx context.Context, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, nil
	}

	// An exact id wins over a name search so direct callers can pass ids.
	if p, ok, err := s.playerRepo.GetByID(ctx, name); err != nil {
		return "", false, fmt.Errorf("resolve player: %w", err)
	} else if ok {
		return p.ID, true, nil
	}

	matches, err := s.playerRepo.SearchByName(ctx, name, 2)
	if err != nil {
		return "", false, fmt.Errorf("search player: %w", err)
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	return matches[0].ID, true, nil
}

func resolveLeague(leagues []player.League, name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	collapsed := strings.ReplaceAll(needle, " ", "")
	for _, l := range leagues {
		if strings.ToLower(l.ID) == needle || strings.ToLower(l.Name) == needle {
			return l.ID, true
		}
		if strings.ReplaceAll(strings.ToLower(l.Name), " ", "") == collapsed && collapsed != "" {
			return l.ID, true
		}
	}
	return "", false
}

func (s *ParserService) buildPrompt(ctx context.Context, text string) (string, error) {
	leagues, err := s.playerRepo.ListLeagues(ctx)
	if err != nil {
		return "", fmt.Errorf("list leagues for prompt: %w", err)
	}
	leagueNames := make([]string, 0, len(leagues))
	for _, l := range leagues {
		leagueNames = append(leagueNames, l.ID)
	}

	var b strings.Builder
	b.WriteString("You translate football scouting questions into one JSON object and nothing else.\n")
	b.WriteString("Use ONLY vocabulary from the lists below. If the question uses a term that is not listed, leave that field empty rather than substituting.\n\n")
	b.WriteString("JSON shape: {\"kind\": \"similarity|leaderboard|comparison|filter\", \"player\": \"\", \"players\": [], \"metrics\": [], \"preset\": \"\", \"sort_metric\": \"\", \"leagues\": [], \"season\": \"\", \"positions\": [], \"min_age\": 0, \"max_age\": 0, \"min_minutes\": 0, \"limit\": 0}\n\n")
	b.WriteString("Metric ids: ")
	b.WriteString(strings.Join(s.cat.MetricIDs(), ", "))
	b.WriteString("\nPreset ids: ")
	b.WriteString(strings.Join(s.cat.PresetIDs(), ", "))
	b.WriteString("\nPosition codes: ")
	b.WriteString(strings.Join(s.cat.PositionCodes(), ", "))
	b.WriteString("\nLeague ids: ")
	b.WriteString(strings.Join(leagueNames, ", "))
	b.WriteString("\n\nNever include numbers you computed yourself; the engine computes everything.\n")
	b.WriteString("Question: ")
	b.WriteString(text)
	b.WriteString("\nJSON:")

	return b.String(), nil
}

// extractJSON tolerates models that wrap the object in a code fence.
func extractJSON(completion string) string {
	completion = strings.TrimSpace(completion)
	if start := strings.Index(completion, "{"); start >= 0 {
		if end := strings.LastIndex(completion, "}"); end > start {
			return completion[start : end+1]
		}
	}
	return completion
}
