package playerseason

import "context"

type Repository interface {
	GetByPlayerAndSeason(ctx context.Context, playerID, seasonID string) (StatLine, bool, error)
	ListCohort(ctx context.Context, filter CohortFilter) ([]StatLine, error)
}
