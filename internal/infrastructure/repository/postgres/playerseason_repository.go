package postgres

import (
	"context"
	"fmt"

	"github.com/pitchlens/scoutcore/internal/domain/playerseason"
	store "github.com/pitchlens/scoutcore/internal/infrastructure/store/postgres"
	qb "github.com/pitchlens/scoutcore/internal/platform/querybuilder"
)

type PlayerSeasonRepository struct {
	gateway *store.Gateway
}

func NewPlayerSeasonRepository(gateway *store.Gateway) *PlayerSeasonRepository {
	return &PlayerSeasonRepository{gateway: gateway}
}

// Identifier and joined columns that never enter the StatLine stats map.
var statLineMetaColumns = map[string]bool{
	"id":               true,
	"player_public_id": true,
	"team_public_id":   true,
	"league_public_id": true,
	"season_public_id": true,
	"player_name":      true,
	"player_position":  true,
	"player_age":       true,
	"created_at":       true,
	"updated_at":       true,
}

var statLineSelectColumns = []string{
	"s.*",
	"p.name AS player_name",
	"p.position AS player_position",
	"date_part('year', age(se.start_at, p.date_of_birth))::int AS player_age",
}

func (r *PlayerSeasonRepository) GetByPlayerAndSeason(ctx context.Context, playerID, seasonID string) (playerseason.StatLine, bool, error) {
	builder := qb.Select(statLineSelectColumns...).From("player_season_stats s").
		Join("players p ON p.public_id = s.player_public_id").
		Join("seasons se ON se.public_id = s.season_public_id").
		Where(
			qb.Eq("s.player_public_id", playerID),
			qb.Eq("s.season_public_id", seasonID),
		).
		Limit(1)

	query, args, err := builder.ToSQL()
	if err != nil {
		return playerseason.StatLine{}, false, fmt.Errorf("build select stat line query: %w", err)
	}

	table, err := r.gateway.Fetch(ctx, query, args)
	if err != nil {
		return playerseason.StatLine{}, false, fmt.Errorf("select stat line: %w", err)
	}
	if table.Len() == 0 {
		return playerseason.StatLine{}, false, nil
	}

	return statLineFromRow(table.RowMap(0)), true, nil
}

func (r *PlayerSeasonRepository) ListCohort(ctx context.Context, filter playerseason.CohortFilter) ([]playerseason.StatLine, error) {
	conditions := []qb.Condition{
		qb.Eq("s.season_public_id", filter.SeasonID),
	}
	if len(filter.LeagueIDs) > 0 {
		conditions = append(conditions, qb.In("s.league_public_id", stringSliceToAny(filter.LeagueIDs)))
	}
	if len(filter.Positions) > 0 {
		conditions = append(conditions, qb.In("p.position", stringSliceToAny(filter.Positions)))
	}
	if filter.MinMinutes > 0 {
		conditions = append(conditions, qb.Gte("s.minutes_played", filter.MinMinutes))
	}
	if filter.MinAge > 0 {
		conditions = append(conditions, qb.Expr("date_part('year', age(se.start_at, p.date_of_birth))::int >= ?", filter.MinAge))
	}
	if filter.MaxAge > 0 {
		conditions = append(conditions, qb.Expr("date_part('year', age(se.start_at, p.date_of_birth))::int <= ?", filter.MaxAge))
	}

	query, args, err := qb.Select(statLineSelectColumns...).From("player_season_stats s").
		Join("players p ON p.public_id = s.player_public_id").
		Join("seasons se ON se.public_id = s.season_public_id").
		Where(conditions...).
		OrderBy("s.player_public_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build cohort query: %w", err)
	}

	out := make([]playerseason.StatLine, 0, 128)
	err = r.gateway.FetchEach(ctx, query, args, func(columns []string, row []any) error {
		rowMap := make(map[string]any, len(columns))
		for i, name := range columns {
			rowMap[name] = row[i]
		}
		out = append(out, statLineFromRow(rowMap))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select cohort: %w", err)
	}

	return out, nil
}

func statLineFromRow(row map[string]any) playerseason.StatLine {
	line := playerseason.StatLine{
		PlayerID:   toString(row["player_public_id"]),
		PlayerName: toString(row["player_name"]),
		TeamID:     toString(row["team_public_id"]),
		LeagueID:   toString(row["league_public_id"]),
		SeasonID:   toString(row["season_public_id"]),
		Position:   toString(row["player_position"]),
		Age:        toInt(row["player_age"]),
		Stats:      make(map[string]playerseason.Value, len(row)),
	}

	for column, raw := range row {
		if statLineMetaColumns[column] {
			continue
		}
		f, ok := toFloat(raw)
		line.Stats[column] = playerseason.Value{Float64: f, Valid: ok}
	}

	line.Minutes = int(line.StatOrZero(playerseason.ColMinutesPlayed))
	line.Matches = int(line.StatOrZero("matches_played"))

	return line
}

func stringSliceToAny(items []string) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
