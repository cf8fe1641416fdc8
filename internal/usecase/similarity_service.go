package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/pitchlens/scoutcore/internal/catalogue"
	"github.com/pitchlens/scoutcore/internal/domain/playerseason"
	"github.com/pitchlens/scoutcore/internal/domain/scouting"
)

type SimilarityConfig struct {
	RoleWeight  float64
	StatsWeight float64
	// ClampNegative maps negative cosine components to zero. For these
	// vectors a negative correlation is not a meaningful similarity and
	// would break weight monotonicity when mixed with a positive component.
	ClampNegative bool
}

func (c SimilarityConfig) normalised() SimilarityConfig {
	if c.RoleWeight < 0 {
		c.RoleWeight = 0
	}
	if c.StatsWeight < 0 {
		c.StatsWeight = 0
	}
	if c.RoleWeight+c.StatsWeight <= 0 {
		c.RoleWeight, c.StatsWeight = 0.6, 0.4
	}
	return c
}

// SimilarityService ranks candidate players by the dual-component score
//
//	sim(R, C) = w_role * cos(role(R), role(C)) + w_stats * cos(stats(R), stats(C))
//
// with both vectors taken from the same cohort frame. Weights normalise to
// sum 1, components clamp to [0, 1] when ClampNegative is set (to [-1, 1]
// otherwise), and ties break on player id so a fixed
// snapshot always yields the same ranking.
type SimilarityService struct {
	metricSvc *MetricService
	roleSvc   *RoleService
	cat       *catalogue.Catalogue
	cfg       SimilarityConfig
}

func NewSimilarityService(cat *catalogue.Catalogue, metricSvc *MetricService, roleSvc *RoleService, cfg SimilarityConfig) *SimilarityService {
	return &SimilarityService{
		metricSvc: metricSvc,
		roleSvc:   roleSvc,
		cat:       cat,
		cfg:       cfg.normalised(),
	}
}

type SimilarityRequest struct {
	ReferenceID string
	SeasonID    string
	Filter      playerseason.CohortFilter
	MetricIDs   []string
	Weights     *scouting.Weights
	Limit       int
}

type SimilarityOutcome struct {
	Rows        []scouting.SimilarityRow
	CohortSize  int
	MetricIDs   []string
	Diagnostics scouting.Diagnostics
}

// SimilarTo builds the cohort, standardises the metric set within it, derives
// role vectors for every member, and returns the ranked candidates with
// component-level attribution. The reference is always a cohort member: if the
// filters exclude it, its stat line joins the frame so every candidate is
// standardised against the same population the reference is.
func (s *SimilarityService) SimilarTo(ctx context.Context, req SimilarityRequest) (SimilarityOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SimilarityService.SimilarTo")
	defer span.End()

	if strings.TrimSpace(req.ReferenceID) == "" {
		return SimilarityOutcome{}, fmt.Errorf("%w: reference player is required", ErrInvalidInput)
	}
	if len(req.MetricIDs) == 0 {
		return SimilarityOutcome{}, fmt.Errorf("%w: metric set is required", ErrInvalidInput)
	}
	if req.Limit < 1 {
		req.Limit = 10
	}

	cohort, err := s.metricSvc.Cohort(ctx, req.Filter)
	if err != nil {
		return SimilarityOutcome{}, err
	}

	refIdx := -1
	for i, line := range cohort {
		if line.PlayerID == req.ReferenceID {
			refIdx = i
			break
		}
	}
	if refIdx == -1 {
		refLine, exists, err := s.metricSvc.seasonRepo.GetByPlayerAndSeason(ctx, req.ReferenceID, req.Filter.SeasonID)
		if err != nil {
			return SimilarityOutcome{}, fmt.Errorf("get reference stat line: %w", err)
		}
		if !exists {
			return SimilarityOutcome{}, fmt.Errorf("%w: player=%s season=%s", scouting.ErrNoSeasonData, req.ReferenceID, req.Filter.SeasonID)
		}
		cohort = append(cohort, refLine)
		refIdx = len(cohort) - 1
	}

	refVec, refDiag := s.roleSvc.FromLine(cohort[refIdx])
	if !refDiag.Sufficient {
		return SimilarityOutcome{}, fmt.Errorf("%w: player=%s events=%d", scouting.ErrReferenceRoleInsufficient, req.ReferenceID, refDiag.EventCount)
	}

	frame, err := s.metricSvc.BuildStatsFrame(cohort, req.MetricIDs)
	if err != nil {
		return SimilarityOutcome{}, err
	}
	refStats, _ := frame.Vector(req.ReferenceID)
	refStatsNorm := floats.Norm(refStats, 2)

	wRole, wStats := s.weights(req.Weights)

	diagnostics := scouting.Diagnostics{}
	rows := make([]scouting.SimilarityRow, 0, len(cohort))
	for _, line := range cohort {
		candVec, candDiag := s.roleSvc.FromLine(line)
		if !candDiag.Sufficient {
			continue
		}

		roleCos := s.clamp(floats.Dot(refVec, candVec))

		candStats, ok := frame.Vector(line.PlayerID)
		if !ok {
			continue
		}
		statsCos := s.clamp(cosine(refStats, candStats, refStatsNorm))
		if len(frame.Insufficient(line.PlayerID)) > 0 {
			diagnostics.SomeInsufficientMinutes = true
		}

		total := wRole*roleCos + wStats*statsCos
		if total > 1 {
			total = 1
		}

		closest, diverging := attributeStats(frame.MetricIDs, refStats, candStats)
		rows = append(rows, scouting.SimilarityRow{
			PlayerID:         line.PlayerID,
			PlayerName:       line.PlayerName,
			Total:            total,
			RoleComponent:    roleCos,
			StatsComponent:   statsCos,
			ClosestMetrics:   closest,
			DivergingMetrics: diverging,
			RoleNotes:        s.roleNotes(refVec, candVec),
		})
	}

	if len(rows) == 0 {
		return SimilarityOutcome{}, fmt.Errorf("%w: every cohort member was role-insufficient", scouting.ErrNoCandidates)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}

	return SimilarityOutcome{
		Rows:        rows,
		CohortSize:  len(cohort),
		MetricIDs:   frame.MetricIDs,
		Diagnostics: diagnostics,
	}, nil
}

func (s *SimilarityService) weights(override *scouting.Weights) (float64, float64) {
	wRole, wStats := s.cfg.RoleWeight, s.cfg.StatsWeight
	if override != nil {
		wRole, wStats = override.Role, override.Stats
	}
	sum := wRole + wStats
	if sum <= 0 {
		wRole, wStats = s.cfg.RoleWeight, s.cfg.StatsWeight
		sum = wRole + wStats
	}
	return wRole / sum, wStats / sum
}

func (s *SimilarityService) clamp(v float64) float64 {
	if s.cfg.ClampNegative && v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// roleNotes names the role blocks where the candidate's squared mass is
// closest to the reference's, as a short human-readable attribution.
func (s *SimilarityService) roleNotes(ref, cand []float64) []string {
	refBlocks := s.roleSvc.Explain(ref)
	candShares := make(map[string]float64)
	for _, b := range s.roleSvc.Explain(cand) {
		candShares[b.Block] = b.Share
	}

	type blockDelta struct {
		name  string
		delta float64
	}
	deltas := make([]blockDelta, 0, len(refBlocks))
	for _, b := range refBlocks {
		d := b.Share - candShares[b.Block]
		if d < 0 {
			d = -d
		}
		deltas = append(deltas, blockDelta{name: b.Block, delta: d})
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].delta < deltas[j].delta })

	n := 2
	if len(deltas) < n {
		n = len(deltas)
	}
	out := make([]string, 0, n)
	for _, d := range deltas[:n] {
		out = append(out, "matching "+d.name)
	}
	return out
}

func cosine(ref, cand []float64, refNorm float64) float64 {
	candNorm := floats.Norm(cand, 2)
	if refNorm == 0 || candNorm == 0 {
		return 0
	}
	return floats.Dot(ref, cand) / (refNorm * candNorm)
}

// attributeStats ranks metric dimensions by their contribution to the stats
// dot product: the strongest positive contributions are where the candidate
// resembles the reference, the weakest are where they diverge.
func attributeStats(metricIDs []string, ref, cand []float64) (closest, diverging []string) {
	type contribution struct {
		metricID string
		value    float64
	}
	contribs := make([]contribution, 0, len(metricIDs))
	for i := range metricIDs {
		contribs = append(contribs, contribution{metricID: metricIDs[i], value: ref[i] * cand[i]})
	}
	sort.SliceStable(contribs, func(i, j int) bool { return contribs[i].value > contribs[j].value })

	top := 3
	if len(contribs) < top {
		top = len(contribs)
	}
	for _, c := range contribs[:top] {
		closest = append(closest, c.metricID)
	}
	for _, c := range contribs[len(contribs)-top:] {
		diverging = append(diverging, c.metricID)
	}
	return closest, diverging
}
