package shield

import (
	"context"
	"database/sql"
)

// Schema creates the rate_limits table read by RateLimiter. Rows are keyed
// by "METHOD /path" exactly as chi sees it.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);
`

// Rule is one rate_limits row.
type Rule struct {
	Endpoint      string
	MaxRequests   int
	WindowSeconds int
}

// SeedRules inserts rules that are not present yet. Existing rows win, so
// operators can tune limits in the database without a redeploy.
func SeedRules(ctx context.Context, db *sql.DB, rules ...Rule) error {
	for _, r := range rules {
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES (?, ?, ?, 1)`,
			r.Endpoint, r.MaxRequests, r.WindowSeconds); err != nil {
			return err
		}
	}
	return nil
}
