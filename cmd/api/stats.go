package main

import (
	"net/http"
	"time"

	"github.com/pefman/hnefatafl-online/internal/match"
	"github.com/pefman/hnefatafl-online/internal/store"
)

const statsKeepDays = 30

// recordDaily folds one applied result into the daily tracker. Only
// applied commits reach here, so duplicate reports never double count.
func (s *apiServer) recordDaily(res match.Result, commit store.ResultCommit) {
	gain := 0
	if res.WinnerID != "" {
		switch {
		case commit.Attacker != nil && res.WinnerID == commit.Attacker.PlayerID:
			gain = commit.Attacker.Delta
		case commit.Defender != nil && res.WinnerID == commit.Defender.PlayerID:
			gain = commit.Defender.Delta
		}
	}
	s.tracker.Record(res, gain)
	s.tracker.Prune(statsKeepDays)
}

// GET /api/stats/daily?date=2026-08-25
func (s *apiServer) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, s.tracker.Today())
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must look like 2006-01-02")
		return
	}
	writeJSON(w, s.tracker.Day(date))
}
