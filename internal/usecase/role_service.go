package usecase

import (
	"context"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/pitchlens/scoutcore/internal/catalogue"
	"github.com/pitchlens/scoutcore/internal/domain/playerseason"
	"github.com/pitchlens/scoutcore/internal/domain/scouting"
)

// RoleVectorDims is the fixed width of the spatial/behavioural fingerprint.
//
// Layout, in documented order:
//
//	 0..3   soft position-group encoding (GK, DF, MF, FW)
//	 4..7   positional spread: avg x, avg y, x dispersion, y dispersion in [0,1]
//	 8..10  vertical thirds: defensive, middle, attacking touch shares
//	11..13  lateral channels: left, centre, right touch shares
//	14..15  box presence: own box, opposition box shares
//	16..19  completed-pass mix: forward, backward, lateral, progressive
const RoleVectorDims = 20

// Named block boundaries into the vector.
const (
	roleBlockPosition = 0
	roleBlockSpread   = 4
	roleBlockThirds   = 8
	roleBlockChannels = 11
	roleBlockBoxes    = 14
	roleBlockPassing  = 16
)

type RoleConfig struct {
	// MinEvents is the positional-event floor under which a season yields the
	// canonical zero vector and is excluded from similarity cohorts.
	MinEvents int
}

func (c RoleConfig) normalised() RoleConfig {
	if c.MinEvents <= 0 {
		c.MinEvents = 150
	}
	return c
}

// RoleDiagnostics travels with every vector so callers can distinguish a real
// fingerprint from the zero vector of a data-starved season.
type RoleDiagnostics struct {
	EventCount int
	RawNorm    float64
	Sufficient bool
}

// RoleService derives the 20-dimensional role vector: where and how a player
// operates, independent of volume.
type RoleService struct {
	cat        *catalogue.Catalogue
	seasonRepo playerseason.Repository
	cfg        RoleConfig
}

func NewRoleService(cat *catalogue.Catalogue, seasonRepo playerseason.Repository, cfg RoleConfig) *RoleService {
	return &RoleService{
		cat:        cat,
		seasonRepo: seasonRepo,
		cfg:        cfg.normalised(),
	}
}

// RoleVector fetches the stat line and derives the vector. Computing the same
// player-season twice in one process is bit-identical: the derivation is pure
// arithmetic over the snapshot row.
func (s *RoleService) RoleVector(ctx context.Context, playerID, seasonID string) ([]float64, RoleDiagnostics, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.RoleService.RoleVector")
	defer span.End()

	playerID = strings.TrimSpace(playerID)
	seasonID = strings.TrimSpace(seasonID)
	if playerID == "" || seasonID == "" {
		return nil, RoleDiagnostics{}, fmt.Errorf("%w: player id and season id are required", ErrInvalidInput)
	}

	line, exists, err := s.seasonRepo.GetByPlayerAndSeason(ctx, playerID, seasonID)
	if err != nil {
		return nil, RoleDiagnostics{}, fmt.Errorf("get stat line: %w", err)
	}
	if !exists {
		return nil, RoleDiagnostics{}, fmt.Errorf("%w: player=%s season=%s", scouting.ErrNoSeasonData, playerID, seasonID)
	}

	vec, diag := s.FromLine(line)
	return vec, diag, nil
}

// FromLine derives the vector from an already-fetched stat line.
func (s *RoleService) FromLine(line playerseason.StatLine) ([]float64, RoleDiagnostics) {
	vec := make([]float64, RoleVectorDims)
	events := int(line.StatOrZero(playerseason.ColPositionalEvents))
	diag := RoleDiagnostics{EventCount: events}

	if events < s.cfg.MinEvents {
		return vec, diag
	}

	// Position encoding: the catalogue's soft group split for the declared
	// code. Unknown codes leave the block at zero rather than guessing.
	if pos, ok := s.cat.Position(line.Position); ok {
		vec[roleBlockPosition+0] = pos.GroupWeights.Goalkeeper
		vec[roleBlockPosition+1] = pos.GroupWeights.Defender
		vec[roleBlockPosition+2] = pos.GroupWeights.Midfielder
		vec[roleBlockPosition+3] = pos.GroupWeights.Forward
	}

	// Positional spread against the 0-100 pitch grid. Dispersions are scaled
	// against half a pitch length so a box-to-box profile approaches 1.
	vec[roleBlockSpread+0] = clamp01(line.StatOrZero(playerseason.ColAvgActionX) / 100)
	vec[roleBlockSpread+1] = clamp01(line.StatOrZero(playerseason.ColAvgActionY) / 100)
	vec[roleBlockSpread+2] = clamp01(line.StatOrZero(playerseason.ColStdActionX) / 50)
	vec[roleBlockSpread+3] = clamp01(line.StatOrZero(playerseason.ColStdActionY) / 50)

	// Zone shares. Thirds and channels are each normalised to sum to 1;
	// box indicators are shares of all positional events.
	thirds := [3]float64{
		line.StatOrZero(playerseason.ColTouchesDefThird),
		line.StatOrZero(playerseason.ColTouchesMidThird),
		line.StatOrZero(playerseason.ColTouchesAttThird),
	}
	writeShares(vec[roleBlockThirds:roleBlockThirds+3], thirds[:])

	channels := [3]float64{
		line.StatOrZero(playerseason.ColTouchesLeft),
		line.StatOrZero(playerseason.ColTouchesCentre),
		line.StatOrZero(playerseason.ColTouchesRight),
	}
	writeShares(vec[roleBlockChannels:roleBlockChannels+3], channels[:])

	vec[roleBlockBoxes+0] = clamp01(line.StatOrZero(playerseason.ColTouchesOwnBox) / float64(events))
	vec[roleBlockBoxes+1] = clamp01(line.StatOrZero(playerseason.ColTouchesOppBox) / float64(events))

	// Completed-pass mix. Progressive passes are carved out of the forward
	// count so the four buckets are exclusive and sum to 1.
	progressive := line.StatOrZero(playerseason.ColPassesProgressive)
	forward := line.StatOrZero(playerseason.ColPassesForward) - progressive
	if forward < 0 {
		forward = 0
	}
	mix := [4]float64{
		forward,
		line.StatOrZero(playerseason.ColPassesBackward),
		line.StatOrZero(playerseason.ColPassesLateral),
		progressive,
	}
	writeShares(vec[roleBlockPassing:roleBlockPassing+4], mix[:])

	diag.RawNorm = floats.Norm(vec, 2)
	if diag.RawNorm == 0 {
		return vec, diag
	}

	floats.Scale(1/diag.RawNorm, vec)
	diag.Sufficient = true
	return vec, diag
}

// RoleBlockShare is one named slice of the vector, for attribution and the
// explain surface.
type RoleBlockShare struct {
	Block string
	Share float64
}

// Explain reverses the block layout into named shares of the vector's squared
// mass, largest first.
func (s *RoleService) Explain(vec []float64) []RoleBlockShare {
	if len(vec) != RoleVectorDims {
		return nil
	}

	blocks := []struct {
		name       string
		start, end int
	}{
		{"position group", roleBlockPosition, roleBlockSpread},
		{"positional spread", roleBlockSpread, roleBlockThirds},
		{"vertical thirds", roleBlockThirds, roleBlockChannels},
		{"lateral channels", roleBlockChannels, roleBlockBoxes},
		{"box presence", roleBlockBoxes, roleBlockPassing},
		{"pass direction mix", roleBlockPassing, RoleVectorDims},
	}

	total := floats.Dot(vec, vec)
	out := make([]RoleBlockShare, 0, len(blocks))
	for _, b := range blocks {
		mass := 0.0
		for i := b.start; i < b.end; i++ {
			mass += vec[i] * vec[i]
		}
		share := 0.0
		if total > 0 {
			share = mass / total
		}
		out = append(out, RoleBlockShare{Block: b.name, Share: share})
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Share > out[i].Share {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// MinEvents exposes the configured floor for diagnostics.
func (s *RoleService) MinEvents() int { return s.cfg.MinEvents }

func writeShares(dst []float64, parts []float64) {
	total := 0.0
	for _, p := range parts {
		if p > 0 {
			total += p
		}
	}
	if total <= 0 {
		return
	}
	for i, p := range parts {
		if p > 0 {
			dst[i] = p / total
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
