package ws

import (
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pefman/hnefatafl-online/internal/match"
)

// Identity names the peer behind a connection. How it is derived (JWT,
// cookie, guest) is the caller's business.
type Identity struct {
	PlayerID string
	Name     string
}

// HubConfig wires the hub to the rest of the server.
type HubConfig struct {
	Registry  *match.Registry
	Heartbeat time.Duration

	// Identify resolves the connecting user. When nil the hub mints a
	// guest identity from query parameters.
	Identify func(r *http.Request) (Identity, error)

	// OnQueue hands a queue request to the matchmaker.
	OnQueue func(p *Peer, q QueuePayload)

	// OnDisconnect fires after a peer is dropped.
	OnDisconnect func(p *Peer)
}

// Peer is one connected client. Its exported surface is what the
// matchmaker needs: identity and a way to push frames.
type Peer struct {
	ID   string
	Name string

	hub *Hub
	ch  *Channel

	mu   sync.Mutex
	subs map[string]func() // matchID -> unsubscribe
}

// Send queues a frame to the peer, dropping the peer if it cannot keep
// up. Dropping instead of skipping keeps the per-peer stream gap free.
func (p *Peer) Send(f Frame) {
	if !p.ch.Send(f) {
		p.hub.drop(p, "send queue full")
	}
}

// Hub accepts websocket connections and routes frames between peers and
// match sessions.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader

	mu       sync.Mutex
	peers    map[string]*Peer
	watchers map[string]map[string]*Peer // matchID -> peerID -> peer
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		peers:    make(map[string]*Peer),
		watchers: make(map[string]map[string]*Peer),
	}
}

// ServeWS upgrades the request and runs the peer until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ident, err := h.identify(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	p := &Peer{
		ID:   ident.PlayerID,
		Name: ident.Name,
		hub:  h,
		ch:   NewChannel(conn, h.cfg.Heartbeat),
		subs: make(map[string]func()),
	}
	h.register(p)
	log.Info().Str("player", p.ID).Str("name", p.Name).Msg("peer connected")

	p.Send(NewFrame(TypeWelcome, WelcomePayload{PlayerID: p.ID, Name: p.Name}))

	readErr := p.ch.ReadLoop(func(f Frame) { h.handle(p, f) })
	h.drop(p, fmt.Sprintf("read loop ended: %v", readErr))
}

func (h *Hub) identify(r *http.Request) (Identity, error) {
	if h.cfg.Identify != nil {
		return h.cfg.Identify(r)
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		id = "guest_" + uuid.NewString()[:8]
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = guestName()
	}
	return Identity{PlayerID: id, Name: name}, nil
}

func (h *Hub) register(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.peers[p.ID]; ok {
		// Reconnect: the fresh socket replaces the stale one.
		go h.drop(old, "superseded by reconnect")
	}
	h.peers[p.ID] = p
}

func (h *Hub) drop(p *Peer, reason string) {
	h.mu.Lock()
	cur, ok := h.peers[p.ID]
	if !ok || cur != p {
		h.mu.Unlock()
		p.ch.Close()
		return
	}
	delete(h.peers, p.ID)
	for mid, set := range h.watchers {
		delete(set, p.ID)
		if len(set) == 0 {
			delete(h.watchers, mid)
		}
	}
	h.mu.Unlock()

	p.mu.Lock()
	for _, cancel := range p.subs {
		cancel()
	}
	p.subs = make(map[string]func())
	p.mu.Unlock()

	p.ch.Close()
	log.Info().Str("player", p.ID).Str("reason", reason).Msg("peer dropped")
	if h.cfg.OnDisconnect != nil {
		h.cfg.OnDisconnect(p)
	}
}

// PeerByID returns the currently registered connection for a player.
// After a reconnect this is the fresh peer, not the one that queued.
func (h *Hub) PeerByID(id string) (*Peer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[id]
	return p, ok
}

// PeerCount reports connected peers, for the lobby endpoint.
func (h *Hub) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// WatcherCount reports how many peers observe a match.
func (h *Hub) WatcherCount(matchID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[matchID])
}

// JoinMatch attaches a peer to a match as player or spectator and sends
// it the current snapshot. The matchmaker calls this directly when it
// seats two queued peers.
func (h *Hub) JoinMatch(p *Peer, matchID string) error {
	s, ok := h.cfg.Registry.Get(matchID)
	if !ok {
		return fmt.Errorf("unknown match %q", matchID)
	}
	h.watch(p, s)
	p.Send(NewFrame(TypeState, s.Snapshot()))
	return nil
}

func (h *Hub) watch(p *Peer, s *match.Session) {
	h.mu.Lock()
	set, ok := h.watchers[s.ID()]
	if !ok {
		set = make(map[string]*Peer)
		h.watchers[s.ID()] = set
	}
	set[p.ID] = p
	h.mu.Unlock()

	events, cancel := s.Subscribe()

	p.mu.Lock()
	if old, ok := p.subs[s.ID()]; ok {
		old()
	}
	p.subs[s.ID()] = cancel
	p.mu.Unlock()

	go h.forward(p, s.ID(), events)
}

func (h *Hub) unwatch(p *Peer, matchID string) {
	h.mu.Lock()
	if set, ok := h.watchers[matchID]; ok {
		delete(set, p.ID)
		if len(set) == 0 {
			delete(h.watchers, matchID)
		}
	}
	h.mu.Unlock()

	p.mu.Lock()
	if cancel, ok := p.subs[matchID]; ok {
		cancel()
		delete(p.subs, matchID)
	}
	p.mu.Unlock()
}

// forward pushes session events to one peer. At-least-once: the direct
// reply to a submitted move and the subscription may both carry the same
// snapshot, and the session dedupes any resent moves by seq.
func (h *Hub) forward(p *Peer, matchID string, events <-chan match.Event) {
	for ev := range events {
		p.Send(NewFrame(TypeState, ev.Snapshot))
		if ev.Ended != nil {
			p.Send(NewFrame(TypeEnded, EndedPayload{
				MatchID:      ev.Ended.MatchID,
				Status:       ev.Ended.Status,
				WinnerID:     ev.Ended.WinnerID,
				WinCondition: ev.Ended.WinCondition,
			}))
			h.unwatch(p, matchID)
			return
		}
	}
}

func (h *Hub) handle(p *Peer, f Frame) {
	switch f.Type {
	case TypePing:
		p.Send(Frame{Type: TypePong})

	case TypePong:
		// Liveness only; the read deadline was already pushed.

	case TypeJoin:
		var jp JoinPayload
		if err := f.Bind(&jp); err != nil {
			p.Send(errorFrame(CodeBadRequest, err))
			return
		}
		if err := h.JoinMatch(p, jp.MatchID); err != nil {
			p.Send(errorFrame(CodeUnknownMatch, err))
		}

	case TypeQueue:
		var qp QueuePayload
		if len(f.Data) > 0 {
			if err := f.Bind(&qp); err != nil {
				p.Send(errorFrame(CodeBadRequest, err))
				return
			}
		}
		if h.cfg.OnQueue != nil {
			h.cfg.OnQueue(p, qp)
		}

	case TypeMove:
		var mp MovePayload
		if err := f.Bind(&mp); err != nil {
			p.Send(errorFrame(CodeBadRequest, err))
			return
		}
		s, ok := h.cfg.Registry.Get(mp.MatchID)
		if !ok {
			p.Send(errorFrame(CodeUnknownMatch, fmt.Errorf("unknown match %q", mp.MatchID)))
			return
		}
		snap, err := s.SubmitMove(p.ID, mp.Move, mp.Seq)
		if err != nil {
			p.Send(errorFrame(CodeFor(err), err))
			return
		}
		p.Send(NewFrame(TypeState, snap))

	case TypeResign:
		var rp ResignPayload
		if err := f.Bind(&rp); err != nil {
			p.Send(errorFrame(CodeBadRequest, err))
			return
		}
		s, ok := h.cfg.Registry.Get(rp.MatchID)
		if !ok {
			p.Send(errorFrame(CodeUnknownMatch, fmt.Errorf("unknown match %q", rp.MatchID)))
			return
		}
		if _, err := s.Resign(p.ID); err != nil {
			p.Send(errorFrame(CodeFor(err), err))
		}

	case TypeChat:
		var cp ChatPayload
		if err := f.Bind(&cp); err != nil {
			p.Send(errorFrame(CodeBadRequest, err))
			return
		}
		h.relayChat(p, cp)

	default:
		p.Send(errorFrame(CodeBadRequest, fmt.Errorf("unknown frame type %q", f.Type)))
	}
}

// relayChat fans a chat line out to everyone watching the match. Chat
// never touches the session.
func (h *Hub) relayChat(p *Peer, cp ChatPayload) {
	h.mu.Lock()
	set, watching := h.watchers[cp.MatchID]
	if _, member := set[p.ID]; !member {
		watching = false
	}
	targets := make([]*Peer, 0, len(set))
	for _, t := range set {
		targets = append(targets, t)
	}
	h.mu.Unlock()

	if !watching {
		p.Send(errorFrame(CodeBadRequest, fmt.Errorf("not watching match %q", cp.MatchID)))
		return
	}
	cp.From = p.Name
	out := NewFrame(TypeChat, cp)
	for _, t := range targets {
		t.Send(out)
	}
}

var (
	guestAdjectives = []string{"Salty", "Frosty", "Grim", "Lucky", "Sly", "Bold", "Rowdy", "Quiet"}
	guestNouns      = []string{"Raven", "Longship", "Shieldmaiden", "Jarl", "Berserker", "Skald", "Drakkar", "Thane"}
)

func guestName() string {
	return fmt.Sprintf("%s %s #%d",
		guestAdjectives[rand.Intn(len(guestAdjectives))],
		guestNouns[rand.Intn(len(guestNouns))],
		rand.Intn(900)+100)
}
