// Package archive exports finished sessions to PostgreSQL: the final
// leaderboard and every executed trade. It is write-only; live state is
// never restored from it.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/session-engine/internal/model"
)

// Recorder receives a session once it reaches FINISHED.
type Recorder interface {
	Record(ctx context.Context, sess model.Session, board []model.LeaderboardEntry) error
}

// Nop discards finished sessions.
type Nop struct{}

func (Nop) Record(context.Context, model.Session, []model.LeaderboardEntry) error { return nil }

// Schema creates the archive tables. Amounts are NUMERIC for exact decimals.
const Schema = `
CREATE TABLE IF NOT EXISTS archived_sessions (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	creator_id     TEXT NOT NULL,
	stocks         TEXT[] NOT NULL,
	per_user_coins NUMERIC NOT NULL,
	duration       INTEGER NOT NULL,
	ticks_played   INTEGER NOT NULL,
	started_at     TIMESTAMPTZ,
	ended_at       TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS archived_results (
	session_id      TEXT NOT NULL REFERENCES archived_sessions(id),
	rank            INTEGER NOT NULL,
	user_id         TEXT NOT NULL,
	user_name       TEXT NOT NULL,
	mtm             NUMERIC NOT NULL,
	available_coins NUMERIC NOT NULL,
	PRIMARY KEY (session_id, user_id)
);
CREATE TABLE IF NOT EXISTS archived_trades (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES archived_sessions(id),
	user_id    TEXT NOT NULL,
	stock      TEXT NOT NULL,
	direction  TEXT NOT NULL,
	quantity   BIGINT NOT NULL,
	price      NUMERIC NOT NULL,
	executed_at TIMESTAMPTZ NOT NULL
);`

// Connect opens a pool sized for the archive's light write load.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// PostgresRecorder writes finished sessions in one transaction each.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder creates a recorder over pool.
func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

// EnsureSchema creates the archive tables if they do not exist.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("archive schema: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Record(ctx context.Context, sess model.Session, board []model.LeaderboardEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("archive %s: begin: %w", sess.ID, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO archived_sessions (id, name, creator_id, stocks, per_user_coins, duration, ticks_played, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		sess.ID, sess.Name, sess.CreatorID, sess.Symbols, sess.PerUserCoins.String(),
		sess.Duration, sess.ActiveDuration, sess.StartedAt, sess.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("archive %s: session: %w", sess.ID, err)
	}

	batch := &pgx.Batch{}
	for _, row := range ResultRows(sess, board) {
		batch.Queue(
			`INSERT INTO archived_results (session_id, rank, user_id, user_name, mtm, available_coins)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC)
			 ON CONFLICT DO NOTHING`, row...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("archive %s: results: %w", sess.ID, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"archived_trades"},
		[]string{"id", "session_id", "user_id", "stock", "direction", "quantity", "price", "executed_at"},
		pgx.CopyFromRows(TradeRows(sess)),
	)
	if err != nil {
		return fmt.Errorf("archive %s: trades: %w", sess.ID, err)
	}
	return tx.Commit(ctx)
}

// ResultRows flattens the final ranking, rank starting at 1.
func ResultRows(sess model.Session, board []model.LeaderboardEntry) [][]any {
	rows := make([][]any, 0, len(board))
	for i, e := range board {
		coins := sess.Accounts[e.UserID].AvailableCoins
		rows = append(rows, []any{sess.ID, i + 1, e.UserID, e.UserName, e.MTM.String(), coins.String()})
	}
	return rows
}

// TradeRows flattens every account's trades in member order.
func TradeRows(sess model.Session) [][]any {
	var rows [][]any
	for _, uid := range sess.Members {
		for _, t := range sess.Accounts[uid].Trades {
			rows = append(rows, []any{t.ID, sess.ID, t.UserID, t.Symbol, string(t.Direction), t.Quantity, Numeric(t.Price), t.Timestamp})
		}
	}
	return rows
}

// Numeric converts d for the binary COPY protocol without losing precision.
func Numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
