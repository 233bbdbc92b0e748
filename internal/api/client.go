// Package api is the game server's client for the data API, which owns
// accounts, ratings and the game archive.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pefman/hnefatafl-online/internal/match"
	"github.com/pefman/hnefatafl-online/internal/stats"
)

var httpClient = &http.Client{Timeout: 8 * time.Second}

// ErrNotFound reports a 404 from the data API.
var ErrNotFound = errors.New("api: not found")

// Config holds API configuration.
type Config struct {
	BaseURL string

	// ServiceKey authenticates server-to-server calls such as result
	// reporting.
	ServiceKey string
}

// Profile mirrors the data API's user document.
type Profile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Rating        int    `json:"rating"`
	PeakRating    int    `json:"peak_rating"`
	Games         int    `json:"games"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	Draws         int    `json:"draws"`
	WinStreak     int    `json:"win_streak"`
	LongestStreak int    `json:"longest_streak"`
	AttackerGames int    `json:"attacker_games"`
	AttackerWins  int    `json:"attacker_wins"`
	DefenderGames int    `json:"defender_games"`
	DefenderWins  int    `json:"defender_wins"`
}

// RatingChange mirrors one side of an applied rating update.
type RatingChange struct {
	PlayerID string `json:"player_id"`
	Delta    int    `json:"delta"`
	Rating   int    `json:"rating"`
}

// ResultAck is the data API's answer to a reported result. Applied is
// false when the match had been reported before.
type ResultAck struct {
	Applied  bool          `json:"applied"`
	Attacker *RatingChange `json:"attacker,omitempty"`
	Defender *RatingChange `json:"defender,omitempty"`
}

type cachedProfile struct {
	p  Profile
	at time.Time
}

type Client struct {
	config Config

	// Profiles barely move between games; a short TTL keeps the lobby
	// from hammering the data API.
	cacheMu  sync.RWMutex
	profiles map[string]cachedProfile
	cacheTTL time.Duration
}

func NewClient(cfg Config) *Client {
	return &Client{
		config:   cfg,
		profiles: make(map[string]cachedProfile),
		cacheTTL: 30 * time.Second,
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	base := strings.TrimRight(c.config.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	base := strings.TrimRight(c.config.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.ServiceKey != "" {
		req.Header.Set("X-Service-Key", c.config.ServiceKey)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("api status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Profile fetches a user by name, serving repeats from a short cache.
func (c *Client) Profile(ctx context.Context, name string) (Profile, error) {
	key := strings.ToLower(name)
	c.cacheMu.RLock()
	if hit, ok := c.profiles[key]; ok && time.Since(hit.at) < c.cacheTTL {
		c.cacheMu.RUnlock()
		return hit.p, nil
	}
	c.cacheMu.RUnlock()

	var p Profile
	if err := c.get(ctx, "/api/users/"+url.PathEscape(name), &p); err != nil {
		return Profile{}, err
	}

	c.cacheMu.Lock()
	c.profiles[key] = cachedProfile{p: p, at: time.Now()}
	c.cacheMu.Unlock()
	return p, nil
}

// Leaderboard fetches the current top players.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]Profile, error) {
	path := "/api/leaderboard"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out []Profile
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DailyStats fetches the aggregate for one UTC date, or for today when
// date is empty.
func (c *Client) DailyStats(ctx context.Context, date string) (stats.Day, error) {
	path := "/api/stats/daily"
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var out stats.Day
	if err := c.get(ctx, path, &out); err != nil {
		return stats.Day{}, err
	}
	return out, nil
}

// ReportResult delivers a finished match to the data API. Callers retry
// on error; the API applies each match at most once, so replays are
// safe.
func (c *Client) ReportResult(ctx context.Context, res match.Result) (ResultAck, error) {
	var ack ResultAck
	if err := c.post(ctx, "/api/results", res, &ack); err != nil {
		return ResultAck{}, err
	}
	c.invalidate()
	return ack, nil
}

// invalidate clears the profile cache after ratings moved.
func (c *Client) invalidate() {
	c.cacheMu.Lock()
	c.profiles = make(map[string]cachedProfile)
	c.cacheMu.Unlock()
}
