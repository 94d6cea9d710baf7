package accountant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const ddlExchangeUsage = `
CREATE TABLE IF NOT EXISTS exchange_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	date TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exchange_usage_user_date ON exchange_usage (user_id, date);
`

// Ledger is the persistent record of exchanges, one row per completed
// exchange. Backed by SQLite (modernc.org/sqlite, driver name "sqlite").
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if needed) a ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_journal=WAL")
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY in WAL mode.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ddlExchangeUsage); err != nil {
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}

	return &Ledger{db: db}, nil
}

// RecordExchange appends one exchange row dated today (UTC).
func (l *Ledger) RecordExchange(ctx context.Context, userID, provider, model string, inputTokens, outputTokens int, costUSD float64) error {
	today := time.Now().UTC().Format("2006-01-02")
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO exchange_usage (user_id, provider, model, input_tokens, output_tokens, cost_usd, date)
		VALUES (?,?,?,?,?,?,?)`,
		userID, provider, model, inputTokens, outputTokens, costUSD, today,
	)
	if err != nil {
		return fmt.Errorf("ledger: record exchange: %w", err)
	}
	return nil
}

// DailyTotals returns the user's token and cost totals for a date
// (format 2006-01-02).
func (l *Ledger) DailyTotals(ctx context.Context, userID, date string) (tokens int, costUSD float64, err error) {
	err = l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens + output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM exchange_usage
		WHERE user_id=? AND date=?`, userID, date,
	).Scan(&tokens, &costUSD)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: daily totals: %w", err)
	}
	return tokens, costUSD, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
