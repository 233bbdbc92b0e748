package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/match"
	"github.com/pefman/hnefatafl-online/internal/ws"
)

func waitUntil(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunnerPlaysOverTheWire(t *testing.T) {
	reg := match.NewRegistry()
	session, err := match.NewSession(match.Config{
		MatchID:  "m-bot",
		Rules:    board.Brandubh(),
		Attacker: match.Seat{PlayerID: "p1", Name: "Astrid"},
		Defender: match.Seat{PlayerID: "bot-1", Name: "Bot", AI: true},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	reg.Add(session)

	hub := ws.NewHub(ws.HubConfig{Registry: reg})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, RunnerConfig{
			ServerURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
			MatchID:   "m-bot",
			PlayerID:  "bot-1",
			Name:      "Bot",
			Ruleset:   board.Brandubh(),
			Seed:      42,
			Backoff:   ws.Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, Attempts: 10},
		})
	}()

	waitUntil(t, 2*time.Second, "bot to join", func() bool {
		return hub.WatcherCount("m-bot") == 1
	})

	mv := board.Move{From: board.Position{Row: 0, Col: 3}, To: board.Position{Row: 0, Col: 4}}
	if _, err := session.SubmitMove("p1", mv, 1); err != nil {
		t.Fatalf("opening move: %v", err)
	}

	waitUntil(t, 5*time.Second, "bot to reply", func() bool {
		return session.Snapshot().MoveCount >= 2
	})
	snap := session.Snapshot()
	if snap.Turn != board.SideAttacker {
		t.Fatalf("after the bot's reply the attacker moves again, got %q", snap.Turn)
	}
	if snap.LastMove == nil || snap.LastMove.PlayerID != "bot-1" {
		t.Fatalf("last move should be the bot's: %+v", snap.LastMove)
	}

	// Ending the match shuts the runner down cleanly.
	if _, err := session.Resign("p1"); err != nil {
		t.Fatalf("resign: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v after the match ended, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after the match ended")
	}
}
