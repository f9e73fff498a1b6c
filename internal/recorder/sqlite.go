package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"SignalSentinel/internal/model"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists signals and portfolio snapshots to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance (dashboards read while the bot writes).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

// DB returns the underlying handle for health checks.
func (r *SQLiteRecorder) DB() *sql.DB { return r.db }

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id    TEXT NOT NULL,
			timestamp   INTEGER NOT NULL,
			ticker      TEXT NOT NULL,
			signal      TEXT,
			buy         INTEGER,
			sell        INTEGER,
			at_time     TEXT,
			close_price REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ticker_ts ON signals(ticker, timestamp)`,

		`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id       TEXT NOT NULL,
			timestamp      INTEGER NOT NULL,
			ticker         TEXT NOT NULL,
			market_value   REAL,
			invested_value REAL,
			return_value   REAL,
			return_pct     REAL,
			weight         REAL,
			mean_return    REAL,
			std_return     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_portfolio_ts ON portfolio_snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSignals(ctx context.Context, cycleID string, records []model.SignalRecord) error {
	if len(records) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().Unix()
	return r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO signals
			(cycle_id, timestamp, ticker, signal, buy, sell, at_time, close_price)
			VALUES (?,?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx, cycleID, now, rec.Ticker, rec.Signal,
				rec.Buy, rec.Sell, rec.AtTime, finite(rec.ClosePrice)); err != nil {
				return fmt.Errorf("insert signal %s: %w", rec.Ticker, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRecorder) RecordPortfolio(ctx context.Context, cycleID string, v model.Valuations, metrics map[string]model.PortfolioMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().Unix()
	return r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO portfolio_snapshots
			(cycle_id, timestamp, ticker, market_value, invested_value, return_value,
			 return_pct, weight, mean_return, std_return)
			VALUES (?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, row := range portfolioRows(v, metrics) {
			if _, err := stmt.ExecContext(ctx, cycleID, now, row.Ticker,
				row.MarketValue, row.InvestedValue, row.Return, row.ReturnPct,
				row.Weight, row.Mean, row.Std); err != nil {
				return fmt.Errorf("insert portfolio row %s: %w", row.Ticker, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRecorder) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// RecentSignals returns the latest non-empty signals, newest first.
func (r *SQLiteRecorder) RecentSignals(ctx context.Context, limit int) ([]model.SignalRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ticker, signal, buy, sell, at_time, close_price
		FROM signals WHERE signal != '' ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []model.SignalRecord
	for rows.Next() {
		var rec model.SignalRecord
		var price sql.NullFloat64
		if err := rows.Scan(&rec.Ticker, &rec.Signal, &rec.Buy, &rec.Sell, &rec.AtTime, &price); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		rec.ClosePrice = price.Float64
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
