package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// RefundEntry is one journaled refund outcome. Completed refunds are kept for
// audit; every other status is an open reconciliation item: money moved but
// could not be returned automatically.
type RefundEntry struct {
	ID             int64
	Reference      string
	OriginalTx     string
	RefundTx       string
	Payer          string
	AmountLamports string
	Status         string
	Reason         string
	Resolved       bool
	CreatedAt      time.Time
}

// RefundJournal persists refund outcomes for manual reconciliation
type RefundJournal struct {
	db     *sql.DB
	logger *utils.LogsManager
}

func NewRefundJournal(db *sql.DB, logger *utils.LogsManager) *RefundJournal {
	return &RefundJournal{db: db, logger: logger}
}

func (rj *RefundJournal) InitTable() error {
	_, err := rj.db.Exec(`
		CREATE TABLE IF NOT EXISTS refund_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT NOT NULL DEFAULT '',
			original_tx TEXT NOT NULL,
			refund_tx TEXT NOT NULL DEFAULT '',
			payer TEXT NOT NULL DEFAULT '',
			amount_lamports TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			resolved INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_refund_journal_status ON refund_journal(status, resolved);
	`)
	return err
}

// Record appends a refund outcome. Completed entries are marked resolved
// immediately, everything else stays open for an operator.
func (rj *RefundJournal) Record(entry RefundEntry) error {
	resolved := 0
	if entry.Status == "completed" {
		resolved = 1
	}

	_, err := rj.db.Exec(`
		INSERT INTO refund_journal (reference, original_tx, refund_tx, payer, amount_lamports, status, reason, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Reference, entry.OriginalTx, entry.RefundTx, entry.Payer,
		entry.AmountLamports, entry.Status, entry.Reason, resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to record refund entry: %v", err)
	}

	return nil
}

// ListOpen returns unresolved entries, oldest first
func (rj *RefundJournal) ListOpen() ([]RefundEntry, error) {
	rows, err := rj.db.Query(`
		SELECT id, reference, original_tx, refund_tx, payer, amount_lamports, status, reason, resolved, created_at
		FROM refund_journal WHERE resolved = 0 ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query refund journal: %v", err)
	}
	defer rows.Close()

	var entries []RefundEntry
	for rows.Next() {
		var e RefundEntry
		var resolved int
		if err := rows.Scan(&e.ID, &e.Reference, &e.OriginalTx, &e.RefundTx, &e.Payer,
			&e.AmountLamports, &e.Status, &e.Reason, &resolved, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan refund entry: %v", err)
		}
		e.Resolved = resolved != 0
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Resolve marks an entry as manually reconciled
func (rj *RefundJournal) Resolve(id int64) error {
	res, err := rj.db.Exec(`UPDATE refund_journal SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve refund entry %d: %v", id, err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("refund entry %d not found", id)
	}

	return nil
}
