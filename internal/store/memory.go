package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pefman/hnefatafl-online/internal/match"
)

// Memory is a Store kept in maps, for tests and throwaway dev runs.
type Memory struct {
	mu     sync.RWMutex
	users  map[string]User         // by id
	names  map[string]string       // lowercase name -> id
	games  map[string]match.Result // by match id
	rated  map[string]bool         // match id -> rating applied
	byTime []string                // match ids, insertion order
}

func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]User),
		names: make(map[string]string),
		games: make(map[string]match.Result),
		rated: make(map[string]bool),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateUser(_ context.Context, name, passHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := m.names[key]; ok {
		return User{}, ErrNameTaken
	}
	u := User{
		ID:         uuid.NewString(),
		Name:       name,
		PassHash:   passHash,
		Rating:     1200,
		PeakRating: 1200,
		CreatedAt:  time.Now().UTC(),
	}
	m.users[u.ID] = u
	m.names[key] = u.ID
	return u, nil
}

func (m *Memory) UserByName(_ context.Context, name string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.names[strings.ToLower(name)]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) UserByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) Leaderboard(_ context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CommitResult(_ context.Context, res match.Result, rate RateFunc) (ResultCommit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[res.MatchID]; ok {
		return ResultCommit{}, nil
	}
	m.games[res.MatchID] = res
	m.byTime = append(m.byTime, res.MatchID)

	out := ResultCommit{Applied: true}
	if rate == nil || res.Attacker.AI || res.Defender.AI {
		return out, nil
	}
	att, okA := m.users[res.Attacker.PlayerID]
	def, okD := m.users[res.Defender.PlayerID]
	if !okA || !okD {
		return out, nil
	}
	da, dd := rate(att, def)
	ac := m.applyLocked(res, att, da)
	dc := m.applyLocked(res, def, dd)
	m.rated[res.MatchID] = true
	out.Attacker, out.Defender = &ac, &dc
	return out, nil
}

func (m *Memory) applyLocked(res match.Result, u User, delta int) RatingChange {
	u = advanceRecord(u, res, u.Rating+delta)
	m.users[u.ID] = u
	return RatingChange{PlayerID: u.ID, Delta: delta, Rating: u.Rating}
}

func (m *Memory) GameByID(_ context.Context, id string) (match.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.games[id]
	if !ok {
		return match.Result{}, ErrNotFound
	}
	return res, nil
}

func (m *Memory) RecentGames(_ context.Context, playerID string, limit int) ([]match.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]match.Result, 0, limit)
	for i := len(m.byTime) - 1; i >= 0 && len(out) < limit; i-- {
		res := m.games[m.byTime[i]]
		if res.Attacker.PlayerID == playerID || res.Defender.PlayerID == playerID {
			out = append(out, res)
		}
	}
	return out, nil
}
