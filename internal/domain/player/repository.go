package player

import "context"

type Repository interface {
	GetByID(ctx context.Context, playerID string) (Player, bool, error)
	SearchByName(ctx context.Context, name string, limit int) ([]Player, error)
	ListLeagues(ctx context.Context) ([]League, error)
	GetLeagueByID(ctx context.Context, leagueID string) (League, bool, error)
	GetSeasonByLabel(ctx context.Context, label string) (Season, bool, error)
	ListSeasons(ctx context.Context) ([]Season, error)
}
