// The data API owns durable state: accounts, ratings, the game archive
// and daily aggregates. The game server reports finished matches here
// with a shared service key; account endpoints are JWT gated.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/match"
	"github.com/pefman/hnefatafl-online/internal/rating"
	"github.com/pefman/hnefatafl-online/internal/rules"
	"github.com/pefman/hnefatafl-online/internal/stats"
	"github.com/pefman/hnefatafl-online/internal/store"
)

// Build identifiers, set via -ldflags at release time.
var (
	buildVersion = "dev"
	buildTime    = "unknown"
)

var (
	apiListenAddr string
	dbPath        string
	jwtSecretEnv  string
	serviceKeyEnv string
	tokenDays     int
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func init() {
	_ = godotenv.Load()
	apiListenAddr = ":" + strings.TrimPrefix(getenv("PORT", "8080"), ":")
	dbPath = getenv("DB_PATH", "data/hnefatafl.db")
	jwtSecretEnv = getenv("JWT_SECRET", "")
	serviceKeyEnv = getenv("SERVICE_KEY", "")
	tokenDays = envInt("JWT_EXPIRES_DAYS", 14)
}

// apiServer bundles the handlers' dependencies: storage, the rating
// formula and the daily tracker.
type apiServer struct {
	store      store.Store
	rater      *rating.Engine
	tracker    *stats.Tracker
	jwtSecret  []byte
	serviceKey string
	tokenTTL   time.Duration
}

func newAPIServer(st store.Store, jwtSecret, serviceKey string) *apiServer {
	return &apiServer{
		store:      st,
		rater:      rating.New(rating.DefaultConfig()),
		tracker:    stats.NewTracker(),
		jwtSecret:  []byte(jwtSecret),
		serviceKey: serviceKey,
		tokenTTL:   time.Duration(tokenDays) * 24 * time.Hour,
	}
}

func (s *apiServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", handleVersion).Methods(http.MethodGet)

	r.HandleFunc("/api/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", handleLogout).Methods(http.MethodPost)
	r.Handle("/api/me", s.requireAuth(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	r.HandleFunc("/api/users/{name}", s.handleUserByName).Methods(http.MethodGet)
	r.HandleFunc("/api/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)

	r.Handle("/api/results", s.requireServiceKey(http.HandlerFunc(s.handleResults))).Methods(http.MethodPost)
	r.HandleFunc("/api/games/{id}", s.handleGame).Methods(http.MethodGet)
	r.HandleFunc("/api/games/{id}/replay", s.handleReplay).Methods(http.MethodGet)
	r.HandleFunc("/api/players/{id}/games", s.handlePlayerGames).Methods(http.MethodGet)
	r.HandleFunc("/api/stats/daily", s.handleDailyStats).Methods(http.MethodGet)
	return r
}

func (s *apiServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validateSignup(req.Name, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not hash password")
		return
	}
	u, err := s.store.CreateUser(r.Context(), req.Name, hash)
	if errors.Is(err, store.ErrNameTaken) {
		writeError(w, http.StatusConflict, "name already taken")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}
	log.Info().Str("user", u.ID).Str("name", u.Name).Msg("account created")
	s.issueToken(w, http.StatusCreated, u)
}

func (s *apiServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.store.UserByName(r.Context(), strings.TrimSpace(req.Name))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "wrong name or password")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !checkPassword(u.PassHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "wrong name or password")
		return
	}
	s.issueToken(w, http.StatusOK, u)
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	clearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) issueToken(w http.ResponseWriter, code int, u store.User) {
	token, exp, err := s.signJWT(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not sign token")
		return
	}
	setAuthCookie(w, token, exp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"token": token, "user": u})
}

func (s *apiServer) handleMe(w http.ResponseWriter, r *http.Request) {
	au, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no user in context")
		return
	}
	u, err := s.store.UserByID(r.Context(), au.ID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "account gone")
		return
	}
	writeJSON(w, u)
}

func (s *apiServer) handleUserByName(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.UserByName(r.Context(), mux.Vars(r)["name"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such player")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, u)
}

func (s *apiServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	top, err := s.store.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, top)
}

// handleResults archives a finished match and applies ratings at most
// once. The game server retries delivery, so replays of the same match
// id are expected and answered with applied=false.
func (s *apiServer) handleResults(w http.ResponseWriter, r *http.Request) {
	var res match.Result
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid result body")
		return
	}
	if res.MatchID == "" || !res.Status.Terminal() {
		writeError(w, http.StatusBadRequest, "result is incomplete")
		return
	}
	commit, err := s.store.CommitResult(r.Context(), res, s.rateFunc(res))
	if err != nil {
		log.Error().Err(err).Str("match", res.MatchID).Msg("result commit failed")
		writeError(w, http.StatusInternalServerError, "commit failed")
		return
	}
	if commit.Applied {
		s.recordDaily(res, commit)
		log.Info().Str("match", res.MatchID).Str("status", string(res.Status)).Msg("result committed")
	}
	writeJSON(w, commit)
}

// rateFunc adapts the pure rating engine to the store's commit hook.
// It runs inside the commit transaction with the users' current rows.
func (s *apiServer) rateFunc(res match.Result) store.RateFunc {
	return func(att, def store.User) (attackerDelta, defenderDelta int) {
		pa := rating.Player{Rating: att.Rating, GamesPlayed: att.Games}
		pd := rating.Player{Rating: def.Rating, GamesPlayed: def.Games}
		cond := rating.WinCondition(res.WinCondition)
		kind := rating.Kind(res.Kind)
		switch {
		case res.WinCondition == match.WinDraw:
			da, dd := s.rater.ComputeDelta(pa, pd, rating.RoleAttacker, rating.WinDraw, kind)
			return da, dd
		case res.WinnerID == att.ID:
			dw, dl := s.rater.ComputeDelta(pa, pd, rating.RoleAttacker, cond, kind)
			return dw, dl
		default:
			dw, dl := s.rater.ComputeDelta(pd, pa, rating.RoleDefender, cond, kind)
			return dl, dw
		}
	}
}

func (s *apiServer) handleGame(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.GameByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such game")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, res)
}

// handleReplay re-runs the archived move list through the rules engine
// and returns the board after every ply, flagging any divergence from
// the stored final position.
func (s *apiServer) handleReplay(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.GameByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such game")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	eng, err := rules.New(res.Ruleset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stored ruleset is invalid")
		return
	}
	b, err := board.Initial(res.Ruleset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stored ruleset is invalid")
		return
	}

	type ply struct {
		Number   int        `json:"number"`
		Side     board.Side `json:"side"`
		Notation string     `json:"notation"`
		Captures []string   `json:"captures,omitempty"`
		Board    []string   `json:"board"`
	}
	plies := make([]ply, 0, len(res.Moves))
	verified := true
	note := ""
	turn := rules.FirstMover
	for i, mv := range res.Moves {
		if mv.Side != turn {
			verified, note = false, fmt.Sprintf("move %d is out of turn order", i+1)
			break
		}
		if err := eng.Check(b, mv.Move, mv.Side); err != nil {
			verified, note = false, fmt.Sprintf("replay stopped at move %d: %v", i+1, err)
			break
		}
		nb, caps, err := eng.Apply(b, mv.Move)
		if err != nil {
			verified, note = false, fmt.Sprintf("replay stopped at move %d: %v", i+1, err)
			break
		}
		b = nb
		capNotes := make([]string, 0, len(caps))
		for _, c := range caps {
			capNotes = append(capNotes, c.String())
		}
		plies = append(plies, ply{
			Number:   mv.Number,
			Side:     mv.Side,
			Notation: mv.Move.String(),
			Captures: capNotes,
			Board:    b.Rows(),
		})
		turn = turn.Opponent()
	}
	if verified {
		final, err := board.FromRows(res.FinalBoard)
		if err != nil || !b.Equal(final) {
			verified, note = false, "final position does not match the stored board"
		}
	}

	out := map[string]any{
		"match_id": res.MatchID,
		"ruleset":  res.Ruleset,
		"plies":    plies,
		"verified": verified,
	}
	if note != "" {
		out["note"] = note
	}
	writeJSON(w, out)
}

func (s *apiServer) handlePlayerGames(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	games, err := s.store.RecentGames(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, games)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": buildVersion, "time": buildTime})
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

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Service-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	if lvl, err := zerolog.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	secret := jwtSecretEnv
	if secret == "" {
		secret = "dev-secret-change-me"
		log.Warn().Msg("JWT_SECRET is unset, using the dev default")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("store open failed")
	}
	defer st.Close()

	s := newAPIServer(st, secret, serviceKeyEnv)
	log.Info().Str("addr", apiListenAddr).Str("db", dbPath).
		Str("version", buildVersion).Msg("data api listening")
	log.Fatal().Err(http.ListenAndServe(apiListenAddr, withCORS(s.routes()))).Msg("data api exited")
}
