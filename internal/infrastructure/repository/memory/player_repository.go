package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/pitchlens/scoutcore/internal/domain/player"
)

type PlayerRepository struct {
	mu      sync.RWMutex
	players map[string]player.Player
	leagues map[string]player.League
	seasons map[string]player.Season
}

func NewPlayerRepository(players []player.Player, leagues []player.League, seasons []player.Season) *PlayerRepository {
	playerIndex := make(map[string]player.Player, len(players))
	for _, p := range players {
		playerIndex[p.ID] = p
	}
	leagueIndex := make(map[string]player.League, len(leagues))
	for _, l := range leagues {
		leagueIndex[l.ID] = l
	}
	seasonIndex := make(map[string]player.Season, len(seasons))
	for _, s := range seasons {
		seasonIndex[s.ID] = s
	}

	return &PlayerRepository{
		players: playerIndex,
		leagues: leagueIndex,
		seasons: seasonIndex,
	}
}

func (r *PlayerRepository) GetByID(_ context.Context, playerID string) (player.Player, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.players[playerID]
	return p, ok, nil
}

func (r *PlayerRepository) SearchByName(_ context.Context, name string, limit int) ([]player.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return []player.Player{}, nil
	}
	if limit < 1 {
		limit = 10
	}

	out := make([]player.Player, 0, limit)
	for _, p := range r.players {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, p)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *PlayerRepository) ListLeagues(_ context.Context) ([]player.League, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]player.League, 0, len(r.leagues))
	for _, l := range r.leagues {
		out = append(out, l)
	}
	return out, nil
}

func (r *PlayerRepository) GetLeagueByID(_ context.Context, leagueID string) (player.League, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.leagues[leagueID]
	return l, ok, nil
}

func (r *PlayerRepository) GetSeasonByLabel(_ context.Context, label string) (player.Season, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.seasons {
		if strings.EqualFold(s.Label, label) || s.ID == label {
			return s, true, nil
		}
	}
	return player.Season{}, false, nil
}

func (r *PlayerRepository) ListSeasons(_ context.Context) ([]player.Season, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]player.Season, 0, len(r.seasons))
	for _, s := range r.seasons {
		out = append(out, s)
	}
	return out, nil
}
