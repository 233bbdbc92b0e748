package match

import "sync"

// Registry tracks the live sessions of one server process. It replaces
// nothing durable: finished matches are reported to the data API and
// removed from here.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Session
	byPlayer map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Session),
		byPlayer: make(map[string]string),
	}
}

func (r *Registry) Add(s *Session) {
	a, d := s.Seats()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID()] = s
	r.byPlayer[a.PlayerID] = s.ID()
	r.byPlayer[d.PlayerID] = s.ID()
}

func (r *Registry) Get(matchID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[matchID]
	return s, ok
}

// ForPlayer finds the live match a player is seated in, if any.
func (r *Registry) ForPlayer(playerID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) Remove(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[matchID]
	if !ok {
		return
	}
	delete(r.byID, matchID)
	a, d := s.Seats()
	if r.byPlayer[a.PlayerID] == matchID {
		delete(r.byPlayer, a.PlayerID)
	}
	if r.byPlayer[d.PlayerID] == matchID {
		delete(r.byPlayer, d.PlayerID)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshots lists the current state of every live session, for the
// lobby's spectator listing.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}
