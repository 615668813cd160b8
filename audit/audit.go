// Package audit keeps a trail of account and document actions in SQLite.
// Entries are queued and written in batches; Log writes synchronously.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/docsum/idgen"
)

const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id  TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    action    TEXT NOT NULL,
    user_id   TEXT NOT NULL DEFAULT '',
    ip        TEXT NOT NULL DEFAULT '',
    trace_id  TEXT NOT NULL DEFAULT '',
    status    TEXT NOT NULL,
    detail    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id, timestamp DESC);
`

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one recorded action. Detail is a short human-readable note,
// never a secret.
type Entry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Action  string    `json:"action"` // "login", "signup", "summarize", ...
	UserID  string    `json:"-"`
	IP      string    `json:"ip,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
	Status  string    `json:"status"`
	Detail  string    `json:"detail,omitempty"`
}

type Logger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *Entry
	stop   chan struct{}
	done   chan struct{}
	every  time.Duration
	once   sync.Once
}

// New starts the flush goroutine. Call Close to drain it.
func New(db *sql.DB, bufferSize int, logger *slog.Logger) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Logger{
		db:     db,
		newID:  idgen.Prefixed("audit_", idgen.Default),
		logger: logger,
		ch:     make(chan *Entry, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		every:  5 * time.Second,
	}
	go a.flushLoop()
	return a
}

func (a *Logger) fillDefaults(e *Entry) {
	if e.ID == "" {
		e.ID = a.newID()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Status == "" {
		e.Status = StatusSuccess
	}
}

// Log inserts an entry synchronously.
func (a *Logger) Log(ctx context.Context, e *Entry) error {
	a.fillDefaults(e)
	return a.insert(ctx, a.db, e)
}

// LogAsync queues an entry. A full buffer falls back to a synchronous insert.
func (a *Logger) LogAsync(e *Entry) {
	a.fillDefaults(e)
	select {
	case a.ch <- e:
	default:
		a.logger.Warn("audit: buffer full, sync fallback", "action", e.Action)
		if err := a.insert(context.Background(), a.db, e); err != nil {
			a.logger.Error("audit: sync fallback failed", "error", err)
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (a *Logger) insert(ctx context.Context, db execer, e *Entry) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (entry_id, timestamp, action, user_id, ip, trace_id, status, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UnixMilli(), e.Action, e.UserID, e.IP, e.TraceID, e.Status, e.Detail)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// ForUser returns the user's most recent entries, newest first.
func (a *Logger) ForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT entry_id, timestamp, action, user_id, ip, trace_id, status, detail
		 FROM audit_log WHERE user_id = ? ORDER BY timestamp DESC, entry_id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &ms, &e.Action, &e.UserID, &e.IP, &e.TraceID, &e.Status, &e.Detail); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Time = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retention.
func (a *Logger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < ?`,
		time.Now().Add(-retention).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes queued entries and stops the flush goroutine. Entries
// queued after Close are dropped.
func (a *Logger) Close() error {
	a.once.Do(func() { close(a.stop) })
	<-a.done
	return nil
}

func (a *Logger) flushLoop() {
	defer close(a.done)
	ticker := time.NewTicker(a.every)
	defer ticker.Stop()
	batch := make([]*Entry, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			a.logger.Error("audit: begin tx", "error", err)
			batch = batch[:0]
			return
		}
		for _, e := range batch {
			if err := a.insert(ctx, tx, e); err != nil {
				a.logger.Error("audit: batch insert", "error", err, "entry_id", e.ID)
			}
		}
		if err := tx.Commit(); err != nil {
			a.logger.Error("audit: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-a.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stop:
			for {
				select {
				case e := <-a.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}
