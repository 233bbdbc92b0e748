package bot

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/match"
	"github.com/pefman/hnefatafl-online/internal/ws"
)

// RunnerConfig seats a bot in one match.
type RunnerConfig struct {
	ServerURL string // ws endpoint, e.g. ws://localhost:8080/ws
	MatchID   string
	PlayerID  string
	Name      string
	Ruleset   board.Ruleset
	Seed      int64

	// Delay is the thinking pause before each move, so human opponents
	// see something resembling deliberation.
	Delay time.Duration

	// Backoff overrides the reconnect schedule in tests.
	Backoff ws.Backoff
}

// Run connects the bot and plays until the match ends, the context is
// cancelled or the reconnect budget is spent. It rejoins after every
// reconnect; the session's seq dedupe keeps replays harmless.
func Run(ctx context.Context, cfg RunnerConfig) error {
	mind, err := NewMind(cfg.Ruleset, cfg.Seed)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &runner{
		cfg:      cfg,
		mind:     mind,
		cancel:   cancel,
		lastSeen: -1,
	}
	r.client = &ws.Client{
		URL: fmt.Sprintf("%s?id=%s&name=%s",
			cfg.ServerURL, url.QueryEscape(cfg.PlayerID), url.QueryEscape(cfg.Name)),
		Backoff:   cfg.Backoff,
		OnConnect: r.onConnect,
		OnFrame:   r.onFrame,
	}
	err = r.client.Run(ctx)
	if ctx.Err() != nil && r.finished() {
		// The match ended; shutting down is success, not failure.
		return nil
	}
	return err
}

type runner struct {
	cfg    RunnerConfig
	mind   *Mind
	client *ws.Client
	cancel context.CancelFunc

	mu       sync.Mutex
	seq      uint64
	lastSeen int // move count we last acted on
	done     bool
}

func (r *runner) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *runner) onConnect(c *ws.Client) {
	// A fresh socket may mean our last move was lost in flight; forget
	// what we acted on and let the join snapshot decide.
	r.mu.Lock()
	r.lastSeen = -1
	r.mu.Unlock()
	if err := c.Send(ws.NewFrame(ws.TypeJoin, ws.JoinPayload{MatchID: r.cfg.MatchID})); err != nil {
		log.Warn().Err(err).Str("match", r.cfg.MatchID).Msg("bot join failed")
	}
}

func (r *runner) onFrame(f ws.Frame) {
	switch f.Type {
	case ws.TypeState:
		var snap match.Snapshot
		if err := f.Bind(&snap); err != nil {
			return
		}
		r.onState(snap)
	case ws.TypeEnded:
		r.mu.Lock()
		r.done = true
		r.mu.Unlock()
		r.cancel()
	case ws.TypeError:
		var ep ws.ErrorPayload
		if err := f.Bind(&ep); err == nil {
			log.Debug().Str("code", ep.Code).Str("msg", ep.Message).Msg("bot move rejected")
		}
	}
}

func (r *runner) onState(snap match.Snapshot) {
	if snap.Status.Terminal() {
		r.mu.Lock()
		r.done = true
		r.mu.Unlock()
		r.cancel()
		return
	}
	side := r.mySide(snap)
	if side == "" || snap.Turn != side {
		return
	}

	r.mu.Lock()
	if snap.MoveCount <= r.lastSeen {
		r.mu.Unlock()
		return
	}
	r.lastSeen = snap.MoveCount
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	go r.play(snap, side, seq)
}

func (r *runner) play(snap match.Snapshot, side board.Side, seq uint64) {
	if r.cfg.Delay > 0 {
		time.Sleep(r.cfg.Delay)
	}
	b, err := board.FromRows(snap.Board)
	if err != nil {
		log.Error().Err(err).Str("match", snap.MatchID).Msg("bot got an unreadable board")
		return
	}
	mv, ok := r.mind.Choose(b, side)
	if !ok {
		// Nothing to play; sit on the clock.
		return
	}
	err = r.client.Send(ws.NewFrame(ws.TypeMove, ws.MovePayload{
		MatchID: snap.MatchID,
		Move:    mv,
		Seq:     seq,
	}))
	if err != nil {
		log.Warn().Err(err).Str("match", snap.MatchID).Msg("bot send failed")
	}
}

func (r *runner) mySide(snap match.Snapshot) board.Side {
	switch r.cfg.PlayerID {
	case snap.Attacker.PlayerID:
		return board.SideAttacker
	case snap.Defender.PlayerID:
		return board.SideDefender
	default:
		return ""
	}
}
