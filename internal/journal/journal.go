// Package journal keeps a durable record of replication outcomes: one
// row per follower per source order, success or permanent failure. It
// is the engine's own audit record — trades themselves stay in the
// brokerage's book and are never stored here.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	_ "github.com/mattn/go-sqlite3"
)

// Outcome status values.
const (
	StatusReplicated = "REPLICATED"
	StatusFailed     = "FAILED"
	StatusSkipped    = "SKIPPED"
)

// Entry is one replication outcome.
type Entry struct {
	ID            string    `json:"id"`
	SourceOrderID string    `json:"source_order_id"`
	AccountID     string    `json:"account_id"`
	PlacedOrderID string    `json:"placed_order_id,omitempty"`
	Symbol        string    `json:"symbol"`
	Quantity      int64     `json:"quantity"`
	Attempts      int       `json:"attempts"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Journal is a single-writer SQLite store.
type Journal struct {
	db *sql.DB
}

// Open creates the journal database with WAL mode and schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	log.Infof("[journal] opened database at %s", path)
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS replications (
			id              TEXT    PRIMARY KEY,
			source_order_id TEXT    NOT NULL,
			account_id      TEXT    NOT NULL,
			placed_order_id TEXT,
			symbol          TEXT    NOT NULL,
			quantity        INTEGER NOT NULL,
			attempts        INTEGER NOT NULL,
			status          TEXT    NOT NULL,
			reason          TEXT,
			created_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_replications_source
			ON replications (source_order_id);
	`)
	return err
}

// DB returns the underlying handle for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Record inserts one outcome. The entry id is assigned here if empty.
func (j *Journal) Record(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := j.db.Exec(`
		INSERT INTO replications
			(id, source_order_id, account_id, placed_order_id, symbol, quantity, attempts, status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceOrderID, e.AccountID, e.PlacedOrderID, e.Symbol,
		e.Quantity, e.Attempts, e.Status, e.Reason, e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, source_order_id, account_id, placed_order_id, symbol, quantity, attempts, status, reason, created_at
		FROM replications ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var placed, reason sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SourceOrderID, &e.AccountID, &placed, &e.Symbol,
			&e.Quantity, &e.Attempts, &e.Status, &reason, &createdAt); err != nil {
			return nil, err
		}
		e.PlacedOrderID = placed.String
		e.Reason = reason.String
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (j *Journal) Close() error { return j.db.Close() }
