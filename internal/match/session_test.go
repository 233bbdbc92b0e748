package match

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/rules"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func testConfig(clk *fakeClock) Config {
	return Config{
		MatchID:  "m-1",
		Rules:    board.Brandubh(),
		Attacker: Seat{PlayerID: "p1", Name: "astrid"},
		Defender: Seat{PlayerID: "p2", Name: "bjorn"},
		Kind:     "ranked",
		Now:      clk.now,
	}
}

func newTestSession(t *testing.T, mut func(*Config)) (*Session, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	cfg := testConfig(clk)
	if mut != nil {
		mut(&cfg)
	}
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s, clk
}

func mv(r1, c1, r2, c2 int) board.Move {
	return board.Move{
		From: board.Position{Row: r1, Col: c1},
		To:   board.Position{Row: r2, Col: c2},
	}
}

func TestSubmitMoveFlow(t *testing.T) {
	s, _ := newTestSession(t, nil)

	if _, err := s.SubmitMove("p2", mv(2, 3, 2, 5), 1); !errors.Is(err, rules.ErrOutOfTurn) {
		t.Fatalf("defender opening: got %v, want ErrOutOfTurn", err)
	}

	snap, err := s.SubmitMove("p1", mv(0, 3, 0, 5), 1)
	if err != nil {
		t.Fatalf("legal opening rejected: %v", err)
	}
	if snap.Turn != board.SideDefender {
		t.Errorf("turn = %s, want defender", snap.Turn)
	}
	if snap.MoveCount != 1 || snap.LastMove == nil || snap.LastMove.Move != mv(0, 3, 0, 5) {
		t.Errorf("move history wrong: %+v", snap)
	}
	if snap.Status != StatusActive {
		t.Errorf("status = %s, want active", snap.Status)
	}

	if _, err := s.SubmitMove("p1", mv(1, 3, 1, 5), 2); !errors.Is(err, rules.ErrOutOfTurn) {
		t.Fatalf("attacker moving twice: got %v, want ErrOutOfTurn", err)
	}
	if _, err := s.SubmitMove("p2", mv(2, 3, 3, 3), 1); !errors.Is(err, rules.ErrPathBlocked) {
		// d3 cannot land on the occupied throne square below it
		t.Fatalf("got %v, want ErrPathBlocked", err)
	}
}

func TestDuplicateSeqIsDropped(t *testing.T) {
	s, _ := newTestSession(t, nil)
	events, cancel := s.Subscribe()
	defer cancel()

	first, err := s.SubmitMove("p1", mv(0, 3, 0, 5), 1)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	<-events

	// the same frame redelivered over a reconnecting channel
	_, err = s.SubmitMove("p1", mv(0, 3, 0, 5), 1)
	if !errors.Is(err, ErrDuplicateSeq) {
		t.Fatalf("second delivery: got %v, want ErrDuplicateSeq", err)
	}
	if got := s.Snapshot(); !reflect.DeepEqual(got.Board, first.Board) {
		t.Error("redelivery mutated the board")
	}
	if got := s.Snapshot(); got.MoveCount != 1 {
		t.Errorf("move count = %d, want 1", got.MoveCount)
	}
	select {
	case ev := <-events:
		t.Fatalf("redelivery broadcast an event: %+v", ev)
	default:
	}

	// stale seq after a later accepted move is also dropped
	if _, err := s.SubmitMove("p2", mv(2, 3, 2, 5), 1); err != nil {
		t.Fatalf("defender reply: %v", err)
	}
	if _, err := s.SubmitMove("p1", mv(0, 5, 0, 4), 1); !errors.Is(err, ErrDuplicateSeq) {
		t.Fatalf("stale seq: got %v, want ErrDuplicateSeq", err)
	}
}

func TestSpectatorCannotMove(t *testing.T) {
	s, _ := newTestSession(t, nil)
	if _, err := s.SubmitMove("ghost", mv(0, 3, 0, 5), 1); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("got %v, want ErrNotAPlayer", err)
	}
	if _, err := s.Resign("ghost"); !errors.Is(err, ErrNotAPlayer) {
		t.Fatalf("resign: got %v, want ErrNotAPlayer", err)
	}
}

func TestResignation(t *testing.T) {
	var (
		mu      sync.Mutex
		results []Result
	)
	done := make(chan struct{}, 1)
	s, _ := newTestSession(t, func(c *Config) {
		c.OnEnded = func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			done <- struct{}{}
		}
	})

	snap, err := s.Resign("p2")
	if err != nil {
		t.Fatalf("resign: %v", err)
	}
	if snap.Status != StatusResigned || snap.WinnerID != "p1" || snap.WinCondition != WinResignation {
		t.Fatalf("bad terminal snapshot: %+v", snap)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEnded never fired")
	}
	mu.Lock()
	if len(results) != 1 || results[0].WinnerID != "p1" || results[0].LoserID != "p2" {
		t.Fatalf("results = %+v", results)
	}
	mu.Unlock()

	// the terminal state is absorbing
	if _, err := s.Resign("p1"); !errors.Is(err, ErrMatchNotActive) {
		t.Fatalf("second resign: got %v, want ErrMatchNotActive", err)
	}
	if _, err := s.SubmitMove("p1", mv(0, 3, 0, 5), 1); !errors.Is(err, ErrMatchNotActive) {
		t.Fatalf("move after end: got %v, want ErrMatchNotActive", err)
	}
	s.ExpireClock(board.SideAttacker)
	if got := s.Status(); got != StatusResigned {
		t.Fatalf("status drifted to %s", got)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if len(results) != 1 {
		t.Fatalf("OnEnded fired %d times", len(results))
	}
	mu.Unlock()
}

func TestClockChargesTheMover(t *testing.T) {
	s, clk := newTestSession(t, func(c *Config) {
		c.Clock = TimeControl{Initial: time.Minute, Increment: 2 * time.Second}
	})

	clk.advance(10 * time.Second)
	snap, err := s.SubmitMove("p1", mv(0, 3, 0, 5), 1)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := snap.Clocks.AttackerMs; got != (52 * time.Second).Milliseconds() {
		t.Errorf("attacker clock = %dms, want 52000", got)
	}
	if got := snap.Clocks.DefenderMs; got != time.Minute.Milliseconds() {
		t.Errorf("defender clock = %dms, want 60000", got)
	}
	if snap.Clocks.Running != board.SideDefender {
		t.Errorf("running = %q, want defender", snap.Clocks.Running)
	}

	// the defender's clock drains while thinking
	clk.advance(15 * time.Second)
	if got := s.Snapshot().Clocks.DefenderMs; got != (45 * time.Second).Milliseconds() {
		t.Errorf("defender clock = %dms, want 45000", got)
	}
}

func TestClockExpiry(t *testing.T) {
	s, clk := newTestSession(t, func(c *Config) {
		c.Clock = TimeControl{Initial: time.Minute}
	})

	// not the attacker's problem yet
	s.ExpireClock(board.SideDefender)
	if got := s.Status(); got != StatusActive {
		t.Fatalf("stale expiry flipped status to %s", got)
	}

	// attacker still has time: expiry re-arms instead of flagging
	clk.advance(30 * time.Second)
	s.ExpireClock(board.SideAttacker)
	if got := s.Status(); got != StatusActive {
		t.Fatalf("early expiry flipped status to %s", got)
	}

	clk.advance(31 * time.Second)
	s.ExpireClock(board.SideAttacker)
	snap := s.Snapshot()
	if snap.Status != StatusTimedOut || snap.WinnerID != "p2" || snap.WinCondition != WinTimeout {
		t.Fatalf("bad timeout result: %+v", snap)
	}
	if snap.Clocks.AttackerMs != 0 {
		t.Errorf("flagged clock = %dms, want 0", snap.Clocks.AttackerMs)
	}
}

func TestMoveBeatsClock(t *testing.T) {
	s, clk := newTestSession(t, func(c *Config) {
		c.Clock = TimeControl{Initial: time.Minute, Increment: 5 * time.Second}
	})

	// the move wins the race when it takes the session lock first, even
	// though the attacker's time is technically gone
	clk.advance(2 * time.Minute)
	snap, err := s.SubmitMove("p1", mv(0, 3, 0, 5), 1)
	if err != nil {
		t.Fatalf("move rejected: %v", err)
	}
	if snap.Status != StatusActive {
		t.Fatalf("status = %s, want active", snap.Status)
	}
	// overdraft clamps to zero before the increment lands
	if got := snap.Clocks.AttackerMs; got != (5 * time.Second).Milliseconds() {
		t.Errorf("attacker clock = %dms, want 5000", got)
	}

	// the late timer callback finds the turn flipped and backs off
	s.ExpireClock(board.SideAttacker)
	if got := s.Status(); got != StatusActive {
		t.Fatalf("late expiry flipped status to %s", got)
	}
}

func TestDrawByRepetition(t *testing.T) {
	s, _ := newTestSession(t, nil)
	events, cancel := s.Subscribe()
	defer cancel()

	shuffle := []struct {
		player string
		m      board.Move
		seq    uint64
	}{
		{"p1", mv(0, 3, 0, 4), 1},
		{"p2", mv(2, 3, 2, 4), 1},
		{"p1", mv(0, 4, 0, 3), 2},
		{"p2", mv(2, 4, 2, 3), 2}, // opening position, second time
		{"p1", mv(0, 3, 0, 4), 3},
		{"p2", mv(2, 3, 2, 4), 3},
		{"p1", mv(0, 4, 0, 3), 4},
		{"p2", mv(2, 4, 2, 3), 4}, // third time: draw
	}
	var last Snapshot
	for i, step := range shuffle {
		snap, err := s.SubmitMove(step.player, step.m, step.seq)
		if err != nil {
			t.Fatalf("ply %d (%s): %v", i+1, step.m, err)
		}
		last = snap
	}
	if last.Status != StatusDrawnByRepetition || last.WinCondition != WinDraw || last.WinnerID != "" {
		t.Fatalf("bad draw snapshot: %+v", last)
	}

	var ended int
	for len(events) > 0 {
		if ev := <-events; ev.Ended != nil {
			ended++
			if ev.Ended.Status != StatusDrawnByRepetition {
				t.Errorf("ended status = %s", ev.Ended.Status)
			}
		}
	}
	if ended != 1 {
		t.Fatalf("saw %d ended events, want exactly 1", ended)
	}
}

func TestKingEscapeWinsForDefender(t *testing.T) {
	s, _ := newTestSession(t, nil)
	events, cancel := s.Subscribe()
	defer cancel()

	script := []struct {
		player string
		m      board.Move
		seq    uint64
	}{
		{"p1", mv(0, 3, 0, 1), 1},
		{"p2", mv(2, 3, 2, 1), 1},
		{"p1", mv(1, 3, 1, 2), 2},
		{"p2", mv(3, 3, 1, 3), 2}, // king steps off the throne
		{"p1", mv(5, 3, 5, 1), 3},
		{"p2", mv(1, 3, 1, 6), 3},
		{"p1", mv(6, 3, 6, 2), 4},
		{"p2", mv(1, 6, 0, 6), 4}, // corner
	}
	var last Snapshot
	for i, step := range script {
		snap, err := s.SubmitMove(step.player, step.m, step.seq)
		if err != nil {
			t.Fatalf("ply %d (%s): %v", i+1, step.m, err)
		}
		last = snap
	}
	if last.Status != StatusKingEscaped || last.WinnerID != "p2" || last.WinCondition != WinKingEscaped {
		t.Fatalf("bad escape snapshot: %+v", last)
	}

	res, ok := s.Result()
	if !ok {
		t.Fatal("result should be available after the escape")
	}
	if res.WinnerID != "p2" || res.LoserID != "p1" || len(res.Moves) != 8 {
		t.Fatalf("bad result: %+v", res)
	}

	// the stored history replays to the stored final board
	eng, err := rules.New(res.Ruleset)
	if err != nil {
		t.Fatal(err)
	}
	moves := make([]board.Move, len(res.Moves))
	for i, r := range res.Moves {
		moves[i] = r.Move
	}
	final, err := eng.Replay(moves)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !reflect.DeepEqual(final.Rows(), res.FinalBoard) {
		t.Fatalf("replayed board differs:\n%v\nvs\n%v", final.Rows(), res.FinalBoard)
	}

	var ended int
	for len(events) > 0 {
		if ev := <-events; ev.Ended != nil {
			ended++
		}
	}
	if ended != 1 {
		t.Fatalf("saw %d ended events, want exactly 1", ended)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	s, _ := newTestSession(t, nil)
	events, cancel := s.Subscribe()

	if _, err := s.SubmitMove("p1", mv(0, 3, 0, 5), 1); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Snapshot.MoveCount != 1 {
			t.Errorf("event snapshot: %+v", ev.Snapshot)
		}
	default:
		t.Fatal("subscriber missed the transition")
	}

	cancel()
	cancel() // idempotent
	if _, open := <-events; open {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestNewSessionValidation(t *testing.T) {
	clk := newFakeClock()
	bad := []func(*Config){
		func(c *Config) { c.MatchID = "" },
		func(c *Config) { c.Attacker.PlayerID = "" },
		func(c *Config) { c.Defender.PlayerID = c.Attacker.PlayerID },
		func(c *Config) { c.Rules.BoardSize = 10 },
	}
	for i, mut := range bad {
		cfg := testConfig(clk)
		mut(&cfg)
		if _, err := NewSession(cfg); err == nil {
			t.Errorf("case %d: config should be rejected", i)
		}
	}
}
