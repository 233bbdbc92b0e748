package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/pefman/hnefatafl-online/internal/board"
	"github.com/pefman/hnefatafl-online/internal/match"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is the production Store, one file plus WAL.
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the database file and applies pending
// migrations.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// migrate applies embedded *.sql files in lexical order, recording each
// in _migrations so reruns are no-ops.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, f := range files {
		var done int
		err := db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, f).Scan(&done)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}
		text, err := migrationsFS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(text)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", f, err)
		}
		log.Info().Str("migration", f).Msg("applied")
	}
	return nil
}

const userCols = `id, name, pass_hash, rating, peak_rating, games, wins, losses, draws,
	win_streak, longest_streak, attacker_games, attacker_wins, defender_games, defender_wins,
	created_at`

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) CreateUser(ctx context.Context, name, passHash string) (User, error) {
	if name == "" {
		return User{}, errors.New("store: empty user name")
	}
	u := User{
		ID:         uuid.NewString(),
		Name:       name,
		PassHash:   passHash,
		Rating:     1200,
		PeakRating: 1200,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, pass_hash, rating, peak_rating, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.PassHash, u.Rating, u.PeakRating, u.CreatedAt)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return User{}, ErrNameTaken
		}
		return User{}, err
	}
	return u, nil
}

func (s *SQLite) UserByName(ctx context.Context, name string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE name = ? COLLATE NOCASE`, name))
}

func (s *SQLite) UserByID(ctx context.Context, id string) (User, error) {
	return userByID(ctx, s.db, id)
}

func userByID(ctx context.Context, q rowQuerier, id string) (User, error) {
	return scanUser(q.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE id = ?`, id))
}

func scanUser(sc scanner) (User, error) {
	var u User
	err := sc.Scan(&u.ID, &u.Name, &u.PassHash, &u.Rating, &u.PeakRating,
		&u.Games, &u.Wins, &u.Losses, &u.Draws,
		&u.WinStreak, &u.LongestStreak,
		&u.AttackerGames, &u.AttackerWins, &u.DefenderGames, &u.DefenderWins,
		&u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *SQLite) Leaderboard(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users
		 ORDER BY rating DESC, games DESC, name COLLATE NOCASE ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLite) CommitResult(ctx context.Context, res match.Result, rate RateFunc) (ResultCommit, error) {
	if res.MatchID == "" {
		return ResultCommit{}, errors.New("store: result has no match id")
	}
	rulesJSON, err := json.Marshal(res.Ruleset)
	if err != nil {
		return ResultCommit{}, err
	}
	movesJSON, err := json.Marshal(res.Moves)
	if err != nil {
		return ResultCommit{}, err
	}
	boardJSON, err := json.Marshal(res.FinalBoard)
	if err != nil {
		return ResultCommit{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ResultCommit{}, err
	}
	defer tx.Rollback()

	ins, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO games
		 (id, kind, ruleset, status, win_condition,
		  attacker_id, attacker_name, attacker_ai,
		  defender_id, defender_name, defender_ai,
		  winner_id, moves, final_board, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.MatchID, res.Kind, string(rulesJSON), string(res.Status), string(res.WinCondition),
		res.Attacker.PlayerID, res.Attacker.Name, res.Attacker.AI,
		res.Defender.PlayerID, res.Defender.Name, res.Defender.AI,
		nullable(res.WinnerID), string(movesJSON), string(boardJSON),
		res.StartedAt, res.FinishedAt)
	if err != nil {
		return ResultCommit{}, err
	}
	if n, err := ins.RowsAffected(); err != nil {
		return ResultCommit{}, err
	} else if n == 0 {
		// Already committed; the reporter retried.
		return ResultCommit{}, nil
	}

	out := ResultCommit{Applied: true}
	if rate != nil && !res.Attacker.AI && !res.Defender.AI {
		att, errA := userByID(ctx, tx, res.Attacker.PlayerID)
		def, errD := userByID(ctx, tx, res.Defender.PlayerID)
		switch {
		case errA == nil && errD == nil:
			da, dd := rate(att, def)
			ac, err := applyRating(ctx, tx, res, att, da)
			if err != nil {
				return ResultCommit{}, err
			}
			dc, err := applyRating(ctx, tx, res, def, dd)
			if err != nil {
				return ResultCommit{}, err
			}
			out.Attacker, out.Defender = &ac, &dc
		case errA != nil && !errors.Is(errA, ErrNotFound):
			return ResultCommit{}, errA
		case errD != nil && !errors.Is(errD, ErrNotFound):
			return ResultCommit{}, errD
			// Guests stay unrated; the game is archived all the same.
		}
	}
	if err := tx.Commit(); err != nil {
		return ResultCommit{}, err
	}
	return out, nil
}

func applyRating(ctx context.Context, tx *sql.Tx, res match.Result, u User, delta int) (RatingChange, error) {
	newRating := u.Rating + delta
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rating_events (match_id, player_id, delta, rating, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		res.MatchID, u.ID, delta, newRating, time.Now().UTC()); err != nil {
		return RatingChange{}, err
	}

	next := advanceRecord(u, res, newRating)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET rating = ?, peak_rating = ?, games = ?,
		 wins = ?, losses = ?, draws = ?,
		 win_streak = ?, longest_streak = ?,
		 attacker_games = ?, attacker_wins = ?, defender_games = ?, defender_wins = ?
		 WHERE id = ?`,
		next.Rating, next.PeakRating, next.Games,
		next.Wins, next.Losses, next.Draws,
		next.WinStreak, next.LongestStreak,
		next.AttackerGames, next.AttackerWins, next.DefenderGames, next.DefenderWins,
		u.ID); err != nil {
		return RatingChange{}, err
	}
	return RatingChange{PlayerID: u.ID, Delta: delta, Rating: newRating}, nil
}

// advanceRecord folds one finished game into a user's rating record. A
// win extends the streak, anything else ends it; the peak only rises.
func advanceRecord(u User, res match.Result, newRating int) User {
	u.Rating = newRating
	if newRating > u.PeakRating {
		u.PeakRating = newRating
	}
	u.Games++

	won := res.WinCondition != match.WinDraw && res.WinnerID == u.ID
	switch {
	case res.WinCondition == match.WinDraw:
		u.Draws++
		u.WinStreak = 0
	case won:
		u.Wins++
		u.WinStreak++
		if u.WinStreak > u.LongestStreak {
			u.LongestStreak = u.WinStreak
		}
	default:
		u.Losses++
		u.WinStreak = 0
	}

	if res.Attacker.PlayerID == u.ID {
		u.AttackerGames++
		if won {
			u.AttackerWins++
		}
	} else {
		u.DefenderGames++
		if won {
			u.DefenderWins++
		}
	}
	return u
}

const gameCols = `id, kind, ruleset, status, win_condition,
	attacker_id, attacker_name, attacker_ai,
	defender_id, defender_name, defender_ai,
	winner_id, moves, final_board, started_at, finished_at`

func (s *SQLite) GameByID(ctx context.Context, id string) (match.Result, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+gameCols+` FROM games WHERE id = ?`, id)
	res, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return match.Result{}, ErrNotFound
	}
	return res, err
}

func (s *SQLite) RecentGames(ctx context.Context, playerID string, limit int) ([]match.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gameCols+` FROM games
		 WHERE attacker_id = ? OR defender_id = ?
		 ORDER BY finished_at DESC LIMIT ?`,
		playerID, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]match.Result, 0, limit)
	for rows.Next() {
		res, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(sc scanner) (match.Result, error) {
	var (
		res        match.Result
		rulesJSON  string
		status     string
		cond       string
		winnerID   sql.NullString
		movesJSON  string
		boardJSON  string
	)
	err := sc.Scan(&res.MatchID, &res.Kind, &rulesJSON, &status, &cond,
		&res.Attacker.PlayerID, &res.Attacker.Name, &res.Attacker.AI,
		&res.Defender.PlayerID, &res.Defender.Name, &res.Defender.AI,
		&winnerID, &movesJSON, &boardJSON, &res.StartedAt, &res.FinishedAt)
	if err != nil {
		return match.Result{}, err
	}
	res.Status = match.Status(status)
	res.WinCondition = match.WinCondition(cond)
	res.WinnerID = winnerID.String
	res.Attacker.Side = board.SideAttacker
	res.Defender.Side = board.SideDefender
	switch res.WinnerID {
	case "":
	case res.Attacker.PlayerID:
		res.LoserID = res.Defender.PlayerID
	default:
		res.LoserID = res.Attacker.PlayerID
	}
	if err := json.Unmarshal([]byte(rulesJSON), &res.Ruleset); err != nil {
		return match.Result{}, fmt.Errorf("game %s: bad ruleset: %w", res.MatchID, err)
	}
	if err := json.Unmarshal([]byte(movesJSON), &res.Moves); err != nil {
		return match.Result{}, fmt.Errorf("game %s: bad moves: %w", res.MatchID, err)
	}
	if err := json.Unmarshal([]byte(boardJSON), &res.FinalBoard); err != nil {
		return match.Result{}, fmt.Errorf("game %s: bad board: %w", res.MatchID, err)
	}
	return res, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
