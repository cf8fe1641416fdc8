package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pitchlens/scoutcore/internal/domain/player"
	store "github.com/pitchlens/scoutcore/internal/infrastructure/store/postgres"
	qb "github.com/pitchlens/scoutcore/internal/platform/querybuilder"
)

type PlayerRepository struct {
	gateway *store.Gateway
}

var playerSelectColumns = []string{
	"public_id",
	"name",
	"date_of_birth",
	"nationality",
	"position",
	"preferred_foot",
}

func NewPlayerRepository(gateway *store.Gateway) *PlayerRepository {
	return &PlayerRepository{gateway: gateway}
}

func (r *PlayerRepository) GetByID(ctx context.Context, playerID string) (player.Player, bool, error) {
	query, args, err := qb.Select(playerSelectColumns...).From("players").
		Where(qb.Eq("public_id", playerID)).
		Limit(1).
		ToSQL()
	if err != nil {
		return player.Player{}, false, fmt.Errorf("build select player query: %w", err)
	}

	table, err := r.gateway.Fetch(ctx, query, args)
	if err != nil {
		return player.Player{}, false, fmt.Errorf("select player by id: %w", err)
	}
	if table.Len() == 0 {
		return player.Player{}, false, nil
	}

	return playerFromRow(table.RowMap(0)), true, nil
}

func (r *PlayerRepository) SearchByName(ctx context.Context, name string, limit int) ([]player.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []player.Player{}, nil
	}
	if limit < 1 {
		limit = 10
	}

	query, args, err := qb.Select(playerSelectColumns...).From("players").
		Where(qb.Expr("lower(name) LIKE ?", "%"+strings.ToLower(name)+"%")).
		OrderBy("name", "public_id").
		Limit(limit).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build search players query: %w", err)
	}

	table, err := r.gateway.Fetch(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("search players by name: %w", err)
	}

	out := make([]player.Player, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		out = append(out, playerFromRow(table.RowMap(i)))
	}
	return out, nil
}

func (r *PlayerRepository) ListLeagues(ctx context.Context) ([]player.League, error) {
	query, args, err := qb.Select("public_id", "name", "country").From("leagues").
		OrderBy("public_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select leagues query: %w", err)
	}

	table, err := r.gateway.Fetch(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("select leagues: %w", err)
	}

	out := make([]player.League, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		row := table.RowMap(i)
		out = append(out, player.League{
			ID:      toString(row["public_id"]),
			Name:    toString(row["name"]),
			Country: toString(row["country"]),
		})
	}
	return out, nil
}

func (r *PlayerRepository) GetLeagueByID(ctx context.Context, leagueID string) (player.League, bool, error) {
	query, args, err := qb.Select("public_id", "name", "country").From("leagues").
		Where(qb.Eq("public_id", leagueID)).
		Limit(1).
		ToSQL()
	if err != nil {
		return player.League{}, false, fmt.Errorf("build select league query: %w", err)
	}

	table, err := r.gateway.Fetch(ctx, query, args)
	if err != nil {
		return player.League{}, false, fmt.Errorf("select league by id: %w", err)
	}
	if table.Len() == 0 {
		return player.League{}, false, nil
	}

	row := table.RowMap(0)
	return player.League{
		ID:      toString(row["public_id"]),
		Name:    toString(row["name"]),
		Country: toString(row["country"]),
	}, true, nil
}

func (r *PlayerRepository) GetSeasonByLabel(ctx context.Context, label string) (player.Season, bool, error) {
	query, args, err := qb.Select("public_id", "label", "start_at", "end_at").From("seasons").
		Where(qb.Eq("label", label)).
		Limit(1).
		ToSQL()
	if err != nil {
		return player.Season{}, false, fmt.Errorf("build select season query: %w", err)
	}

	table, err := r.gateway.Fetch(ctx, query, args)
	if err != nil {
		return player.Season{}, false, fmt.Errorf("select season by label: %w", err)
	}
	if table.Len() == 0 {
		return player.Season{}, false, nil
	}

	return seasonFromRow(table.RowMap(0)), true, nil
}

func (r *PlayerRepository) ListSeasons(ctx context.Context) ([]player.Season, error) {
	query, args, err := qb.Select("public_id", "label", "start_at", "end_at").From("seasons").
		OrderBy("start_at DESC").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select seasons query: %w", err)
	}

	table, err := r.gateway.Fetch(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("select seasons: %w", err)
	}

	out := make([]player.Season, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		out = append(out, seasonFromRow(table.RowMap(i)))
	}
	return out, nil
}

func playerFromRow(row map[string]any) player.Player {
	return player.Player{
		ID:          toString(row["public_id"]),
		Name:        toString(row["name"]),
		DateOfBirth: toTime(row["date_of_birth"]),
		Nationality: toString(row["nationality"]),
		Position:    toString(row["position"]),
		Foot:        player.Foot(toString(row["preferred_foot"])),
	}
}

func seasonFromRow(row map[string]any) player.Season {
	return player.Season{
		ID:      toString(row["public_id"]),
		Label:   toString(row["label"]),
		StartAt: toTime(row["start_at"]),
		EndAt:   toTime(row["end_at"]),
	}
}
