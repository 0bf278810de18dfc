package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"PillarVote/internal/model"
)

const asOfLayout = "2006-01-02"

// SQLiteRecorder persists runs and votes to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_key     TEXT,
			created_at  TEXT NOT NULL DEFAULT (datetime('now')),
			ticker      TEXT NOT NULL,
			asof        TEXT NOT NULL,
			price_close REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ticker ON runs(ticker)`,

		`CREATE TABLE IF NOT EXISTS votes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     INTEGER NOT NULL,
			pillar     TEXT NOT NULL,
			tool       TEXT NOT NULL,
			vote       INTEGER NOT NULL,
			confidence REAL,
			signal     TEXT,
			reason     TEXT,
			payload    TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_run ON votes(run_id)`,

		`CREATE TABLE IF NOT EXISTS sentiment_comments (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id           INTEGER NOT NULL,
			ticker           TEXT NOT NULL,
			comment_id       TEXT NOT NULL,
			subreddit        TEXT,
			author           TEXT,
			body             TEXT,
			score            INTEGER,
			created_utc      REAL,
			sentiment        TEXT,
			sentiment_score  INTEGER,
			confidence_model REAL,
			weight           REAL,
			permalink        TEXT,
			created_at       TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sent_run ON sentiment_comments(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sent_ticker ON sentiment_comments(ticker)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sent_unique ON sentiment_comments(run_id, comment_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) CreateRun(ctx context.Context, run *model.Run) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO runs (run_key, created_at, ticker, asof, price_close)
		VALUES (?,?,?,?,?)`,
		run.Key, created.UTC().Format(time.RFC3339), run.Ticker, run.AsOf.Format(asOfLayout), run.Close,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}
	return id, nil
}

// RecordVotes writes every vote of a run in one transaction.
func (r *SQLiteRecorder) RecordVotes(ctx context.Context, runID int64, votes []model.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO votes
		(run_id, pillar, tool, vote, confidence, signal, reason, payload)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, v := range votes {
		if _, err := stmt.ExecContext(ctx, runID, string(v.Pillar), v.Tool, v.Vote, v.Confidence,
			string(v.Signal), v.Reason, encodePayload(v.Data)); err != nil {
			return fmt.Errorf("insert vote %s: %w", v.Tool, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordComments(ctx context.Context, runID int64, ticker string, rows []model.AuditedComment) error {
	if len(rows) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO sentiment_comments (
		run_id, ticker, comment_id, subreddit, author, body, score, created_utc,
		sentiment, sentiment_score, confidence_model, weight, permalink
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.ExecContext(ctx, runID, ticker, c.ID, c.Source, c.Author, c.Body, c.Score,
			float64(c.CreatedAt.Unix()), string(c.Label), c.SentimentScore, c.ModelConfidence,
			c.Weight, c.Permalink); err != nil {
			return fmt.Errorf("insert comment %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecentRuns(ctx context.Context, ticker string, limit int) ([]model.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT id, COALESCE(run_key, ''), created_at, ticker, asof, COALESCE(price_close, 0)
		FROM runs WHERE ticker = ? ORDER BY id DESC LIMIT ?`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var runs []model.Run
	for rows.Next() {
		var (
			run           model.Run
			created, asOf string
		)
		if err := rows.Scan(&run.ID, &run.Key, &created, &run.Ticker, &asOf, &run.Close); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.CreatedAt = parseTime(created)
		run.AsOf, _ = time.Parse(asOfLayout, asOf)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		votes, err := r.votesForRun(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Votes = votes
	}
	return runs, nil
}

func (r *SQLiteRecorder) votesForRun(ctx context.Context, runID int64) ([]model.Vote, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT pillar, tool, vote, COALESCE(confidence, 0), COALESCE(signal, ''),
		COALESCE(reason, ''), COALESCE(payload, '{}') FROM votes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var votes []model.Vote
	for rows.Next() {
		var (
			v              model.Vote
			pillar, signal string
			payload        string
		)
		if err := rows.Scan(&pillar, &v.Tool, &v.Vote, &v.Confidence, &signal, &v.Reason, &payload); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Pillar = model.Pillar(pillar)
		v.Signal = model.Signal(signal)
		if err := json.Unmarshal([]byte(payload), &v.Data); err != nil || v.Data == nil {
			v.Data = map[string]any{}
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

// encodePayload serialises vote data. Values JSON cannot carry (NaN, channels) are
// replaced by an error marker rather than failing the vote row.
func encodePayload(data map[string]any) string {
	if data == nil {
		return "{}"
	}
	b, err := json.Marshal(data)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"payload_error": err.Error()})
	}
	return string(b)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
