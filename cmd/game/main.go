// The game server hosts live hnefatafl matches: the websocket hub, the
// matchmaking queue, in-memory sessions and result delivery to the data
// API. Accounts, ratings and the archive live behind the data API; this
// process holds no durable state.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pefman/hnefatafl-online/cmd/game/assets"
	"github.com/pefman/hnefatafl-online/internal/api"
	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/bot"
	"github.com/pefman/hnefatafl-online/internal/match"
	"github.com/pefman/hnefatafl-online/internal/ws"
)

// Build identifiers, set via -ldflags at release time.
var (
	buildVersion = "dev"
	buildTime    = "unknown"
)

var (
	gameListenAddr string
	dataAPIBase    string
	serviceKey     string
	defaultRuleset string
	defaultClock   string
	pairWait       time.Duration
	botThinkDelay  time.Duration
	selfWSURL      string

	indexHTML string
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func init() {
	_ = godotenv.Load()
	port := strings.TrimPrefix(getenv("GAME_PORT", getenv("PORT", "8081")), ":")
	gameListenAddr = ":" + port
	dataAPIBase = getenv("DATA_API_BASE", "http://localhost:8080")
	serviceKey = getenv("SERVICE_KEY", "")
	defaultRuleset = getenv("DEFAULT_RULESET", "copenhagen")
	defaultClock = getenv("DEFAULT_TIME_CONTROL", "15+10")
	pairWait = envDuration("PAIR_WAIT", 1200*time.Millisecond)
	botThinkDelay = envDuration("BOT_DELAY", 600*time.Millisecond)
	// The bot seats itself over the same websocket endpoint the players
	// use, so it exercises the real transport.
	selfWSURL = getenv("SELF_WS_URL", "ws://127.0.0.1"+gameListenAddr+"/ws")
}

// server owns the mutable pieces of one game node. Everything hangs off
// this struct instead of package globals so tests can build one per
// case.
type server struct {
	registry *match.Registry
	hub      *ws.Hub
	dataAPI  *api.Client
	wsURL    string
	aiWait   time.Duration
	botDelay time.Duration

	queue chan string // peer ids in arrival order

	mu      sync.Mutex
	waiting map[string]*ticket // peer id -> live queue entry

	results chan match.Result
}

// ticket is one player waiting for an opponent, preferences already
// validated.
type ticket struct {
	peer  *ws.Peer
	rules board.Ruleset
	clock match.TimeControl
	kind  string
	side  string
	vsAI  bool
	since time.Time
}

func newServer() *server {
	s := &server{
		registry: match.NewRegistry(),
		dataAPI:  api.NewClient(api.Config{BaseURL: dataAPIBase, ServiceKey: serviceKey}),
		wsURL:    selfWSURL,
		aiWait:   pairWait,
		botDelay: botThinkDelay,
		queue:    make(chan string, 64),
		waiting:  make(map[string]*ticket),
		results:  make(chan match.Result, 32),
	}
	s.hub = ws.NewHub(ws.HubConfig{
		Registry:     s.registry,
		OnQueue:      s.enqueue,
		OnDisconnect: func(p *ws.Peer) { s.cancelTicket(p.ID) },
	})
	return s
}

// enqueue validates a queue request and files the ticket. Queueing
// again while waiting just updates the preferences.
func (s *server) enqueue(p *ws.Peer, q ws.QueuePayload) {
	if sess, ok := s.registry.ForPlayer(p.ID); ok && !sess.Status().Terminal() {
		p.Send(ws.NewFrame(ws.TypeError, ws.ErrorPayload{Code: ws.CodeBadRequest, Message: "finish your current match first"}))
		return
	}
	rules, err := board.RulesetByName(pick(q.Ruleset, defaultRuleset))
	if err != nil {
		p.Send(ws.NewFrame(ws.TypeError, ws.ErrorPayload{Code: ws.CodeBadRequest, Message: err.Error()}))
		return
	}
	clock, err := match.ParseTimeControl(pick(q.TimeControl, defaultClock))
	if err != nil {
		p.Send(ws.NewFrame(ws.TypeError, ws.ErrorPayload{Code: ws.CodeBadRequest, Message: err.Error()}))
		return
	}
	kind := pick(q.Kind, "casual")
	switch kind {
	case "casual", "ranked", "tournament":
	default:
		p.Send(ws.NewFrame(ws.TypeError, ws.ErrorPayload{Code: ws.CodeBadRequest, Message: "unknown game kind " + strconv.Quote(kind)}))
		return
	}
	switch q.Side {
	case "", string(board.SideAttacker), string(board.SideDefender):
	default:
		p.Send(ws.NewFrame(ws.TypeError, ws.ErrorPayload{Code: ws.CodeBadRequest, Message: "side must be attacker or defender"}))
		return
	}

	t := &ticket{
		peer:  p,
		rules: rules,
		clock: clock,
		kind:  kind,
		side:  q.Side,
		vsAI:  q.VsAI,
		since: time.Now(),
	}
	s.mu.Lock()
	_, again := s.waiting[p.ID]
	s.waiting[p.ID] = t
	s.mu.Unlock()

	if !again {
		select {
		case s.queue <- p.ID:
		default:
			s.cancelTicket(p.ID)
			p.Send(ws.NewFrame(ws.TypeError, ws.ErrorPayload{Code: ws.CodeBadRequest, Message: "matchmaking queue is full, try again shortly"}))
			return
		}
	}
	log.Info().Str("player", p.ID).Str("rules", rules.Name).Str("kind", kind).Bool("vs_ai", q.VsAI).Msg("queued")
	p.Send(ws.NewFrame(ws.TypeQueue, ws.QueuePayload{
		Ruleset:     rules.Name,
		TimeControl: clock.String(),
		Kind:        kind,
		Side:        q.Side,
		VsAI:        q.VsAI,
	}))
}

func (s *server) cancelTicket(id string) {
	s.mu.Lock()
	delete(s.waiting, id)
	s.mu.Unlock()
}

// liveTicket claims a queued id if the ticket still stands and the peer
// is still connected. A reconnect swaps in the fresh peer.
func (s *server) liveTicket(id string) (*ticket, bool) {
	s.mu.Lock()
	t, ok := s.waiting[id]
	if ok {
		delete(s.waiting, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	p, connected := s.hub.PeerByID(id)
	if !connected {
		return nil, false
	}
	t.peer = p
	return t, true
}

// nextTicket blocks until a live ticket arrives. Returns nil only when
// the queue channel is closed.
func (s *server) nextTicket() *ticket {
	for id := range s.queue {
		if t, ok := s.liveTicket(id); ok {
			return t
		}
	}
	return nil
}

// requeue puts a ticket back after its opponent fell through.
func (s *server) requeue(t *ticket) {
	s.mu.Lock()
	s.waiting[t.peer.ID] = t
	s.mu.Unlock()
	select {
	case s.queue <- t.peer.ID:
	default:
		s.cancelTicket(t.peer.ID)
		log.Warn().Str("player", t.peer.ID).Msg("queue full, dropping requeued ticket")
	}
}

// matchmaker pairs tickets in arrival order. The earlier ticket's
// ruleset, clock and kind decide the game. When nobody else shows up
// within the wait window, a ticket that asked for it gets the AI.
func (s *server) matchmaker() {
	for {
		t1 := s.nextTicket()
		if t1 == nil {
			return
		}
		select {
		case id := <-s.queue:
			if t2, ok := s.liveTicket(id); ok {
				s.startMatch(t1, t2)
			} else {
				s.requeue(t1)
			}
		case <-time.After(s.aiWait):
			if t1.vsAI {
				s.startBotMatch(t1)
				continue
			}
			t2 := s.nextTicket()
			if t2 == nil {
				return
			}
			s.startMatch(t1, t2)
		}
	}
}

func (s *server) startMatch(t1, t2 *ticket) {
	if t1.peer.ID == t2.peer.ID {
		// The same player queued twice; keep one ticket waiting.
		s.requeue(t2)
		return
	}
	p1, ok1 := s.hub.PeerByID(t1.peer.ID)
	p2, ok2 := s.hub.PeerByID(t2.peer.ID)
	switch {
	case !ok1 && !ok2:
		return
	case !ok1:
		s.requeue(t2)
		return
	case !ok2:
		s.requeue(t1)
		return
	}
	t1.peer, t2.peer = p1, p2

	attacker, defender := assignSides(t1, t2)
	s.launch(t1, attacker, defender)
}

// assignSides honors the earlier ticket's side preference first, then
// the later one's, then flips a coin.
func assignSides(t1, t2 *ticket) (attacker, defender match.Seat) {
	first := t1.side
	if first == "" {
		switch {
		case t2.side == string(board.SideAttacker):
			first = string(board.SideDefender)
		case t2.side == string(board.SideDefender):
			first = string(board.SideAttacker)
		case rand.Intn(2) == 0:
			first = string(board.SideAttacker)
		default:
			first = string(board.SideDefender)
		}
	}
	if first == string(board.SideDefender) {
		return seatFor(t2, board.SideAttacker), seatFor(t1, board.SideDefender)
	}
	return seatFor(t1, board.SideAttacker), seatFor(t2, board.SideDefender)
}

func seatFor(t *ticket, side board.Side) match.Seat {
	return match.Seat{PlayerID: t.peer.ID, Name: t.peer.Name, Side: side}
}

func (s *server) startBotMatch(t *ticket) {
	p, ok := s.hub.PeerByID(t.peer.ID)
	if !ok {
		return
	}
	t.peer = p

	ai := match.Seat{
		PlayerID: fmt.Sprintf("ai_%d", time.Now().UnixNano()),
		Name:     "AI Opponent",
		AI:       true,
	}
	var attacker, defender match.Seat
	if t.side == string(board.SideDefender) {
		attacker, defender = ai, seatFor(t, board.SideDefender)
		attacker.Side = board.SideAttacker
	} else {
		attacker, defender = seatFor(t, board.SideAttacker), ai
		defender.Side = board.SideDefender
	}

	matchID := s.launch(t, attacker, defender)
	if matchID == "" {
		return
	}
	go func() {
		err := bot.Run(context.Background(), bot.RunnerConfig{
			ServerURL: s.wsURL,
			MatchID:   matchID,
			PlayerID:  ai.PlayerID,
			Name:      ai.Name,
			Ruleset:   t.rules,
			Seed:      time.Now().UnixNano(),
			Delay:     s.botDelay,
			Backoff:   ws.DefaultBackoff(),
		})
		if err != nil {
			log.Warn().Err(err).Str("match", matchID).Msg("bot runner exited")
		}
	}()
}

// launch creates the session under the owner ticket's preferences and
// seats every connected player as a watcher.
func (s *server) launch(owner *ticket, attacker, defender match.Seat) string {
	id := fmt.Sprintf("m_%d", time.Now().UnixNano())
	sess, err := match.NewSession(match.Config{
		MatchID:  id,
		Rules:    owner.rules,
		Attacker: attacker,
		Defender: defender,
		Clock:    owner.clock,
		Kind:     owner.kind,
		OnEnded:  s.queueResult,
	})
	if err != nil {
		log.Error().Err(err).Str("rules", owner.rules.Name).Msg("session create failed")
		return ""
	}
	s.registry.Add(sess)
	log.Info().Str("match", id).Str("rules", owner.rules.Name).Str("kind", owner.kind).
		Str("attacker", attacker.PlayerID).Str("defender", defender.PlayerID).Msg("match started")

	for _, pid := range []string{attacker.PlayerID, defender.PlayerID} {
		if p, ok := s.hub.PeerByID(pid); ok {
			if err := s.hub.JoinMatch(p, id); err != nil {
				log.Warn().Err(err).Str("player", pid).Str("match", id).Msg("join after pairing failed")
			}
		}
	}
	return id
}

// queueResult hands a finished match to the reporter. OnEnded fires
// from its own goroutine, so a blocking send is fine.
func (s *server) queueResult(res match.Result) {
	s.results <- res
}

// reporter delivers results to the data API on the reconnect backoff
// schedule. Delivery is at-least-once; the API applies each match at
// most once.
func (s *server) reporter() {
	for res := range s.results {
		s.registry.Remove(res.MatchID)
		bo := ws.DefaultBackoff()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			ack, err := s.dataAPI.ReportResult(ctx, res)
			cancel()
			if err == nil {
				log.Info().Str("match", res.MatchID).Bool("applied", ack.Applied).Msg("result reported")
				break
			}
			d, ok := bo.Next()
			if !ok {
				log.Error().Err(err).Str("match", res.MatchID).Msg("result delivery failed, giving up")
				break
			}
			log.Warn().Err(err).Str("match", res.MatchID).Dur("retry_in", d).Msg("result delivery failed")
			time.Sleep(d)
		}
	}
}

func pick(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
		"status":  code,
	})
}

func (s *server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, strings.ReplaceAll(indexHTML, "{{BUILD_VERSION}}", buildVersion))
}

// handleLobby lists waiting players and running matches.
func (s *server) handleLobby(w http.ResponseWriter, r *http.Request) {
	type waitEntry struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Ruleset     string `json:"ruleset"`
		TimeControl string `json:"time_control"`
		Kind        string `json:"kind"`
		Side        string `json:"side,omitempty"`
		VsAI        bool   `json:"vs_ai,omitempty"`
		Since       int64  `json:"since"`
	}
	s.mu.Lock()
	queue := make([]waitEntry, 0, len(s.waiting))
	for _, t := range s.waiting {
		queue = append(queue, waitEntry{
			ID:          t.peer.ID,
			Name:        t.peer.Name,
			Ruleset:     t.rules.Name,
			TimeControl: t.clock.String(),
			Kind:        t.kind,
			Side:        t.side,
			VsAI:        t.vsAI,
			Since:       t.since.Unix(),
		})
	}
	s.mu.Unlock()
	sort.Slice(queue, func(i, j int) bool { return queue[i].Since < queue[j].Since })

	type liveEntry struct {
		MatchID   string       `json:"match_id"`
		Ruleset   string       `json:"ruleset"`
		Kind      string       `json:"kind"`
		Attacker  string       `json:"attacker"`
		Defender  string       `json:"defender"`
		Turn      board.Side   `json:"turn"`
		MoveCount int          `json:"move_count"`
		Watchers  int          `json:"watchers"`
		Status    match.Status `json:"status"`
	}
	snaps := s.registry.Snapshots()
	live := make([]liveEntry, 0, len(snaps))
	for _, sn := range snaps {
		live = append(live, liveEntry{
			MatchID:   sn.MatchID,
			Ruleset:   sn.Ruleset.Name,
			Kind:      sn.Kind,
			Attacker:  sn.Attacker.Name,
			Defender:  sn.Defender.Name,
			Turn:      sn.Turn,
			MoveCount: sn.MoveCount,
			Watchers:  s.hub.WatcherCount(sn.MatchID),
			Status:    sn.Status,
		})
	}
	sort.Slice(live, func(i, j int) bool { return live[i].MatchID < live[j].MatchID })

	writeJSON(w, map[string]any{"waiting": queue, "matches": live})
}

func handleRulesets(w http.ResponseWriter, r *http.Request) {
	names := board.RulesetNames()
	out := make([]board.Ruleset, 0, len(names))
	for _, n := range names {
		if rs, err := board.RulesetByName(n); err == nil {
			out = append(out, rs)
		}
	}
	writeJSON(w, out)
}

func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	top, err := s.dataAPI.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, "data api unavailable")
		return
	}
	writeJSON(w, top)
}

func (s *server) handleProfile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	p, err := s.dataAPI.Profile(r.Context(), name)
	if errors.Is(err, api.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such player")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "data api unavailable")
		return
	}
	writeJSON(w, p)
}

func (s *server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	day, err := s.dataAPI.DailyStats(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadGateway, "data api unavailable")
		return
	}
	writeJSON(w, day)
}

// handleDebugMatches dumps full snapshots, for poking at a live server.
func (s *server) handleDebugMatches(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		match.Snapshot
		Watchers int `json:"watchers"`
	}
	snaps := s.registry.Snapshots()
	out := make([]entry, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, entry{Snapshot: sn, Watchers: s.hub.WatcherCount(sn.MatchID)})
	}
	writeJSON(w, out)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"matches": s.registry.Len(),
		"peers":   s.hub.PeerCount(),
	})
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": buildVersion, "time": buildTime})
}

func main() {
	if lvl, err := zerolog.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	raw, err := assets.FS.ReadFile("index.html")
	if err != nil {
		log.Fatal().Err(err).Msg("missing embedded index")
	}
	indexHTML = string(raw)

	s := newServer()
	go s.matchmaker()
	go s.reporter()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveIndex)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/lobby", s.handleLobby)
	mux.HandleFunc("/rulesets", handleRulesets)
	mux.HandleFunc("/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/profile", s.handleProfile)
	mux.HandleFunc("/stats/daily", s.handleDailyStats)
	mux.HandleFunc("/debug/matches", s.handleDebugMatches)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/version", handleVersion)

	log.Info().Str("addr", gameListenAddr).Str("data_api", dataAPIBase).
		Str("version", buildVersion).Msg("game server listening")
	log.Fatal().Err(http.ListenAndServe(gameListenAddr, mux)).Msg("game server exited")
}
