// Package sessions persists summarization sessions and their chat
// transcripts.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/docsum/dbopen"
)

const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id      TEXT NOT NULL,
    document_id  INTEGER,
    title        TEXT NOT NULL,
    summary_text TEXT NOT NULL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at);

CREATE TABLE IF NOT EXISTS messages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content    TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
`

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrNotFound = errors.New("sessions: session not found")

type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user"`
	DocumentID int64     `json:"document"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary_text"`
	CreatedAt  time.Time `json:"created_at"`
	Messages   []Message `json:"messages"`
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

func (s *Store) stamp() (time.Time, int64) {
	ms := s.now().UnixMilli()
	return time.UnixMilli(ms).UTC(), ms
}

// Create stores a session and its first assistant message, the summary,
// atomically.
func (s *Store) Create(ctx context.Context, userID string, documentID int64, title, summary string) (*Session, error) {
	created, ms := s.stamp()
	sess := &Session{UserID: userID, DocumentID: documentID, Title: title, Summary: summary, CreatedAt: created}

	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var doc any
		if documentID > 0 {
			doc = documentID
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (user_id, document_id, title, summary_text, created_at) VALUES (?, ?, ?, ?, ?)`,
			userID, doc, title, summary, ms)
		if err != nil {
			return err
		}
		if sess.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		msg, err := insertMessage(ctx, tx, sess.ID, RoleAssistant, summary, ms)
		if err != nil {
			return err
		}
		sess.Messages = []Message{msg}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sessions: create: %w", err)
	}
	s.logger.Info("sessions: created", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, sessionID int64, role, content string, ms int64) (Message, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, ms)
	if err != nil {
		return Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	return Message{ID: id, SessionID: sessionID, Role: role, Content: content, CreatedAt: time.UnixMilli(ms).UTC()}, nil
}

// Get returns a session with its messages if userID owns it.
func (s *Store) Get(ctx context.Context, userID string, id int64) (*Session, error) {
	var sess Session
	var doc sql.NullInt64
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, document_id, title, summary_text, created_at FROM sessions WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&sess.ID, &sess.UserID, &doc, &sess.Title, &sess.Summary, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	sess.DocumentID = doc.Int64
	sess.CreatedAt = time.UnixMilli(ms).UTC()

	msgs, err := s.messages(ctx, []int64{sess.ID})
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs[sess.ID]
	return &sess, nil
}

// List returns the user's sessions, newest first, each with its messages.
func (s *Store) List(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, document_id, title, summary_text, created_at FROM sessions
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}
	defer rows.Close()

	var out []Session
	var ids []int64
	for rows.Next() {
		var sess Session
		var doc sql.NullInt64
		var ms int64
		if err := rows.Scan(&sess.ID, &sess.UserID, &doc, &sess.Title, &sess.Summary, &ms); err != nil {
			return nil, fmt.Errorf("sessions: list: %w", err)
		}
		sess.DocumentID = doc.Int64
		sess.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, sess)
		ids = append(ids, sess.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}
	rows.Close()

	msgs, err := s.messages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Messages = msgs[out[i].ID]
	}
	return out, nil
}

func (s *Store) messages(ctx context.Context, ids []int64) (map[int64][]Message, error) {
	out := make(map[int64][]Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages
		 WHERE session_id IN (?`+strings.Repeat(",?", len(ids)-1)+`) ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("sessions: messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Message
		var ms int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &ms); err != nil {
			return nil, fmt.Errorf("sessions: messages: %w", err)
		}
		m.CreatedAt = time.UnixMilli(ms).UTC()
		out[m.SessionID] = append(out[m.SessionID], m)
	}
	return out, rows.Err()
}

// Exchange appends a user query and the assistant reply in one transaction.
func (s *Store) Exchange(ctx context.Context, sessionID int64, query, reply string) ([]Message, error) {
	_, ms := s.stamp()
	var out []Message
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		out = out[:0]
		for _, m := range [][2]string{{RoleUser, query}, {RoleAssistant, reply}} {
			msg, err := insertMessage(ctx, tx, sessionID, m[0], m[1], ms)
			if err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sessions: exchange: %w", err)
	}
	return out, nil
}
