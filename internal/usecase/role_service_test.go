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

func newRoleService(t *testing.T, lines []playerseason.StatLine) *RoleService {
	t.Helper()
	return NewRoleService(testCatalogue(t), memory.NewPlayerSeasonRepository(lines), RoleConfig{
		MinEvents: 100,
	})
}

func TestRoleVector(t *testing.T) {
	svc := newRoleService(t, testCohortLines(4))

	t.Run("sufficient vector is unit length", func(t *testing.T) {
		vec, diag, err := svc.RoleVector(context.Background(), "p01", testSeasonID)
		if err != nil {
			t.Fatalf("role vector: %v", err)
		}
		if !diag.Sufficient {
			t.Fatalf("expected sufficient vector, events=%d", diag.EventCount)
		}
		if len(vec) != RoleVectorDims {
			t.Fatalf("unexpected width: %d", len(vec))
		}

		norm := 0.0
		for _, v := range vec {
			norm += v * v
		}
		if math.Abs(math.Sqrt(norm)-1) > 1e-9 {
			t.Fatalf("norm not 1: %v", math.Sqrt(norm))
		}
	})

	t.Run("computation is bit-identical across calls", func(t *testing.T) {
		first, _, err := svc.RoleVector(context.Background(), "p02", testSeasonID)
		if err != nil {
			t.Fatalf("role vector: %v", err)
		}
		second, _, err := svc.RoleVector(context.Background(), "p02", testSeasonID)
		if err != nil {
			t.Fatalf("role vector: %v", err)
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("dimension %d differs: %v vs %v", i, first[i], second[i])
			}
		}
	})

	t.Run("starved season yields the canonical zero vector", func(t *testing.T) {
		line := testForwardLine(9)
		line.Stats[playerseason.ColPositionalEvents] = playerseason.Value{Float64: 40, Valid: true}
		svc := newRoleService(t, []playerseason.StatLine{line})

		vec, diag, err := svc.RoleVector(context.Background(), line.PlayerID, testSeasonID)
		if err != nil {
			t.Fatalf("role vector: %v", err)
		}
		if diag.Sufficient {
			t.Fatalf("expected insufficient")
		}
		for i, v := range vec {
			if v != 0 {
				t.Fatalf("dimension %d not zero: %v", i, v)
			}
		}
	})

	t.Run("missing season reports no data", func(t *testing.T) {
		_, _, err := svc.RoleVector(context.Background(), "p01", "s1999")
		if !errors.Is(err, scouting.ErrNoSeasonData) {
			t.Fatalf("expected ErrNoSeasonData, got %v", err)
		}
	})
}

func TestRoleVectorBlockSemantics(t *testing.T) {
	svc := newRoleService(t, nil)

	line := testForwardLine(0)
	vec, diag := svc.FromLine(line)
	if !diag.Sufficient {
		t.Fatalf("expected sufficient vector")
	}

	// Undo the L2 normalisation to inspect raw block values.
	raw := make([]float64, len(vec))
	for i := range vec {
		raw[i] = vec[i] * diag.RawNorm
	}

	t.Run("position block matches the soft group encoding", func(t *testing.T) {
		// CF encodes fully forward.
		if raw[0] != 0 || raw[1] != 0 || raw[2] != 0 {
			t.Fatalf("unexpected non-forward weight: %v", raw[:4])
		}
		if math.Abs(raw[3]-1) > 1e-9 {
			t.Fatalf("forward weight: got %v want 1", raw[3])
		}
	})

	t.Run("thirds and channels each sum to one", func(t *testing.T) {
		thirds := raw[8] + raw[9] + raw[10]
		if math.Abs(thirds-1) > 1e-9 {
			t.Fatalf("thirds sum: %v", thirds)
		}
		channels := raw[11] + raw[12] + raw[13]
		if math.Abs(channels-1) > 1e-9 {
			t.Fatalf("channels sum: %v", channels)
		}
	})

	t.Run("pass mix sums to one", func(t *testing.T) {
		mix := raw[16] + raw[17] + raw[18] + raw[19]
		if math.Abs(mix-1) > 1e-9 {
			t.Fatalf("pass mix sum: %v", mix)
		}
	})

	t.Run("hybrid position codes split across groups", func(t *testing.T) {
		wb := testForwardLine(1)
		wb.Position = "WB"
		vec, diag := svc.FromLine(wb)
		if !diag.Sufficient {
			t.Fatalf("expected sufficient vector")
		}
		defender := vec[1] * diag.RawNorm
		midfielder := vec[2] * diag.RawNorm
		if math.Abs(defender-0.6) > 1e-9 || math.Abs(midfielder-0.4) > 1e-9 {
			t.Fatalf("wing-back split: df=%v mf=%v", defender, midfielder)
		}
	})
}

func TestRoleExplain(t *testing.T) {
	svc := newRoleService(t, nil)

	vec, diag := svc.FromLine(testForwardLine(3))
	if !diag.Sufficient {
		t.Fatalf("expected sufficient vector")
	}

	blocks := svc.Explain(vec)
	if len(blocks) != 6 {
		t.Fatalf("unexpected block count: %d", len(blocks))
	}

	total := 0.0
	for _, b := range blocks {
		if b.Share < 0 || b.Share > 1 {
			t.Fatalf("block share out of bounds: %+v", b)
		}
		total += b.Share
	}
	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("block shares sum: %v", total)
	}

	for i := 1; i < len(blocks); i++ {
		if blocks[i].Share > blocks[i-1].Share {
			t.Fatalf("blocks not sorted by share")
		}
	}

	if svc.Explain([]float64{1, 2, 3}) != nil {
		t.Fatalf("expected nil for wrong width")
	}
}
