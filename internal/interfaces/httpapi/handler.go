package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	sonic "github.com/bytedance/sonic"

	"github.com/pitchlens/scoutcore/internal/catalogue"
	"github.com/pitchlens/scoutcore/internal/domain/player"
	"github.com/pitchlens/scoutcore/internal/domain/scouting"
	"github.com/pitchlens/scoutcore/internal/usecase"
)

// Handler is the thin presentation consumer of the query engine: decode,
// dispatch, encode. Every numeric answer comes out of the engines.
type Handler struct {
	cat        *catalogue.Catalogue
	playerRepo player.Repository
	executor   *usecase.ExecutorService
	parser     *usecase.ParserService
	metricSvc  *usecase.MetricService
	roleSvc    *usecase.RoleService
}

func NewHandler(
	cat *catalogue.Catalogue,
	playerRepo player.Repository,
	executor *usecase.ExecutorService,
	parser *usecase.ParserService,
	metricSvc *usecase.MetricService,
	roleSvc *usecase.RoleService,
) *Handler {
	return &Handler{
		cat:        cat,
		playerRepo: playerRepo,
		executor:   executor,
		parser:     parser,
		metricSvc:  metricSvc,
		roleSvc:    roleSvc,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(r.Context(), w, http.StatusOK, map[string]string{
		"status":            "ok",
		"catalogue_version": h.cat.Version(),
	})
}

func (h *Handler) ListCatalogueMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListCatalogueMetrics")
	defer span.End()

	type metricView struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Category  string   `json:"category"`
		Unit      string   `json:"unit"`
		Direction string   `json:"direction"`
		Positions []string `json:"positions,omitempty"`
		Aliases   []string `json:"aliases,omitempty"`
	}

	out := make([]metricView, 0)
	for _, id := range h.cat.MetricIDs() {
		m, _ := h.cat.Metric(id)
		out = append(out, metricView{
			ID:        m.ID,
			Name:      m.Name,
			Category:  string(m.Category),
			Unit:      string(m.Unit),
			Direction: string(m.Direction),
			Positions: m.Positions,
			Aliases:   m.Aliases,
		})
	}

	writeSuccess(ctx, w, http.StatusOK, out)
}

func (h *Handler) ListCataloguePresets(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListCataloguePresets")
	defer span.End()

	type presetView struct {
		ID      string             `json:"id"`
		Name    string             `json:"name"`
		Metrics map[string]float64 `json:"metrics"`
	}

	out := make([]presetView, 0)
	for _, id := range h.cat.PresetIDs() {
		p, _ := h.cat.Preset(id)
		weights := make(map[string]float64, len(p.Metrics))
		for _, pm := range p.Metrics {
			weights[pm.MetricID] = pm.Weight
		}
		out = append(out, presetView{ID: p.ID, Name: p.Name, Metrics: weights})
	}

	writeSuccess(ctx, w, http.StatusOK, out)
}

func (h *Handler) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ExecuteQuery")
	defer span.End()

	var query scouting.StructuredQuery
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&query); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: decode body: %v", usecase.ErrInvalidInput, err))
		return
	}

	result, err := h.executor.Execute(ctx, query)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}

type askRequest struct {
	Question string `json:"question"`
	Lenient  bool   `json:"lenient"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Ask")
	defer span.End()

	var req askRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: decode body: %v", usecase.ErrInvalidInput, err))
		return
	}

	if !req.Lenient {
		query, err := h.parser.Parse(ctx, req.Question)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		result, err := h.executor.Execute(ctx, query)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		writeSuccess(ctx, w, http.StatusOK, result)
		return
	}

	outcome, err := h.parser.ParseLenient(ctx, req.Question)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	result, err := h.executor.Execute(ctx, outcome.Query)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	result.Diagnostics.Degraded = result.Diagnostics.Degraded || outcome.Degraded
	result.Diagnostics.Warnings = append(result.Diagnostics.Warnings, outcome.Warnings...)

	writeSuccess(ctx, w, http.StatusOK, result)
}

func (h *Handler) SimilarPlayers(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SimilarPlayers")
	defer span.End()

	query := scouting.StructuredQuery{
		Kind:        scouting.KindSimilarity,
		ReferenceID: r.PathValue("playerID"),
		PresetID:    strings.TrimSpace(r.URL.Query().Get("preset")),
		Cohort: scouting.CohortFilters{
			Season:     strings.TrimSpace(r.URL.Query().Get("season")),
			LeagueIDs:  csvParam(r, "leagues"),
			Positions:  csvParam(r, "positions"),
			MinMinutes: intParam(r, "min_minutes", 0),
		},
		MetricIDs: csvParam(r, "metrics"),
		Limit:     intParam(r, "limit", 10),
	}

	result, err := h.executor.Execute(ctx, query)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Leaderboard")
	defer span.End()

	query := scouting.StructuredQuery{
		Kind:       scouting.KindLeaderboard,
		SortMetric: h.cat.Resolve(r.URL.Query().Get("metric")),
		Cohort: scouting.CohortFilters{
			Season:     strings.TrimSpace(r.URL.Query().Get("season")),
			LeagueIDs:  csvParam(r, "leagues"),
			Positions:  csvParam(r, "positions"),
			MinMinutes: intParam(r, "min_minutes", 0),
		},
		Limit: intParam(r, "limit", 20),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("metric")); raw != "" && query.SortMetric == catalogue.Unknown {
		writeError(ctx, w, fmt.Errorf("%w: %s", scouting.ErrUnknownMetric, raw))
		return
	}

	result, err := h.executor.Execute(ctx, query)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}

func (h *Handler) PlayerMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PlayerMetrics")
	defer span.End()

	playerID := r.PathValue("playerID")
	seasonID, err := h.resolveSeason(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	metricIDs := make([]string, 0)
	for _, name := range csvParam(r, "metrics") {
		id := h.cat.Resolve(name)
		if id == catalogue.Unknown {
			writeError(ctx, w, fmt.Errorf("%w: %s", scouting.ErrUnknownMetric, name))
			return
		}
		metricIDs = append(metricIDs, id)
	}
	if len(metricIDs) == 0 {
		metricIDs = h.cat.MetricIDs()
	}

	values, err := h.metricSvc.Values(ctx, playerID, seasonID, metricIDs)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	aligned := make([]scouting.MetricValue, 0, len(metricIDs))
	for _, id := range metricIDs {
		aligned = append(aligned, values[id])
	}

	writeSuccess(ctx, w, http.StatusOK, aligned)
}

func (h *Handler) PlayerRole(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PlayerRole")
	defer span.End()

	playerID := r.PathValue("playerID")
	seasonID, err := h.resolveSeason(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	vec, diag, err := h.roleSvc.RoleVector(ctx, playerID, seasonID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	type roleView struct {
		Vector     []float64                `json:"vector"`
		Sufficient bool                     `json:"sufficient"`
		EventCount int                      `json:"event_count"`
		Blocks     []usecase.RoleBlockShare `json:"blocks,omitempty"`
	}
	view := roleView{
		Vector:     vec,
		Sufficient: diag.Sufficient,
		EventCount: diag.EventCount,
	}
	if diag.Sufficient {
		view.Blocks = h.roleSvc.Explain(vec)
	}

	writeSuccess(ctx, w, http.StatusOK, view)
}

func (h *Handler) resolveSeason(r *http.Request) (string, error) {
	label := strings.TrimSpace(r.URL.Query().Get("season"))
	if label == "" {
		return "", fmt.Errorf("%w: season query parameter is required", usecase.ErrInvalidInput)
	}
	season, ok, err := h.playerRepo.GetSeasonByLabel(r.Context(), label)
	if err != nil {
		return "", fmt.Errorf("resolve season: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: season %s", usecase.ErrNotFound, label)
	}
	return season.ID, nil
}

func csvParam(r *http.Request, name string) []string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
