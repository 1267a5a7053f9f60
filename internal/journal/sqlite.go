package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betbot/jitbot/internal/events"
)

// SQLiteSink 把成交尝试写入 sqlite 表 fill_attempts
type SQLiteSink struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, errors.New("journal: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS fill_attempts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  request_id TEXT NOT NULL,
  signature TEXT NOT NULL,
  strategy TEXT NOT NULL,
  market TEXT NOT NULL,
  taker_key TEXT NOT NULL,
  order_id INTEGER NOT NULL,
  attempt INTEGER NOT NULL,
  slot INTEGER NOT NULL,
  bid INTEGER NOT NULL,
  ask INTEGER NOT NULL,
  post_only TEXT NOT NULL,
  pre_confirm INTEGER NOT NULL DEFAULT 0,
  tx_sig TEXT,
  error_class TEXT,
  error TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_fill_attempts_signature ON fill_attempts(signature);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) Record(ctx context.Context, ev events.FillAttemptEvent) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO fill_attempts (request_id, signature, strategy, market, taker_key, order_id, attempt, slot, bid, ask, post_only, pre_confirm, tx_sig, error_class, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID, ev.Signature, ev.Strategy, ev.Market, ev.TakerKey, int64(ev.OrderID), ev.Attempt, int64(ev.Slot),
		ev.Bid, ev.Ask, ev.PostOnly, boolToInt(ev.PreConfirm), ev.TxSig, ev.ErrorClass, ev.Error,
		ev.Timestamp.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]events.FillAttemptEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT request_id, signature, strategy, market, taker_key, order_id, attempt, slot, bid, ask, post_only, pre_confirm,
       COALESCE(tx_sig, ''), COALESCE(error_class, ''), COALESCE(error, ''), created_at
FROM fill_attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.FillAttemptEvent
	for rows.Next() {
		var (
			ev         events.FillAttemptEvent
			orderID    int64
			slot       int64
			preConfirm int
			createdAt  string
		)
		if err := rows.Scan(&ev.RequestID, &ev.Signature, &ev.Strategy, &ev.Market, &ev.TakerKey, &orderID, &ev.Attempt,
			&slot, &ev.Bid, &ev.Ask, &ev.PostOnly, &preConfirm, &ev.TxSig, &ev.ErrorClass, &ev.Error, &createdAt); err != nil {
			return nil, err
		}
		ev.OrderID = uint64(orderID)
		ev.Slot = uint64(slot)
		ev.PreConfirm = preConfirm != 0
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
