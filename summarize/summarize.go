// Package summarize turns a user's uploaded documents into a stored
// summarization session and answers follow-up questions about it.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/docsum/docpipe"
	"github.com/hazyhaar/docsum/docstore"
	"github.com/hazyhaar/docsum/sessions"
)

// NoResponse replaces an empty chat reply.
const NoResponse = "⚠️ Gemini returned no response."

var (
	ErrNoDocuments  = errors.New("summarize: no documents found")
	ErrEmptySummary = errors.New("summarize: model returned no summary text")
	ErrEmptyQuery   = errors.New("summarize: empty query")
	// ErrGeneration wraps every failure of the Generator.
	ErrGeneration = errors.New("summarize: generation failed")
)

// Result is a completed summarization.
type Result struct {
	Summary   string    `json:"summary"`
	SessionID int64     `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Warnings  []string  `json:"warnings,omitempty"`
}

type Service struct {
	pipe     *docpipe.Pipeline
	docs     *docstore.Store
	sessions *sessions.Store
	gen      Generator
	logger   *slog.Logger
}

func NewService(pipe *docpipe.Pipeline, docs *docstore.Store, sess *sessions.Store, gen Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pipe: pipe, docs: docs, sessions: sess, gen: gen, logger: logger}
}

// Summarize extracts the caller's documents among ids, asks the model for a
// report and stores it as a new session titled after the first document.
func (s *Service) Summarize(ctx context.Context, userID string, ids []int64) (*Result, error) {
	docs, err := s.docs.Lookup(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	srcs, err := s.docs.Sources(ctx, docs)
	if err != nil {
		return nil, err
	}
	combined, err := s.pipe.ExtractAll(ctx, srcs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	summary, err := s.gen.Generate(ctx, SummaryPrompt(combined.Text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(summary) == "" {
		return nil, ErrEmptySummary
	}

	title := `Summarization "` + docs[0].Name + `"`
	sess, err := s.sessions.Create(ctx, userID, docs[0].ID, title, summary)
	if err != nil {
		return nil, err
	}
	s.logger.Info("summarize: done", "user_id", userID, "session_id", sess.ID,
		"documents", len(docs), "chars", len(combined.Text), "truncated", combined.Truncated,
		"duration_ms", time.Since(start).Milliseconds())
	return &Result{
		Summary:   summary,
		SessionID: sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		Warnings:  combined.Warnings(),
	}, nil
}

// Chat answers query from the session's summary and records both turns.
func (s *Service) Chat(ctx context.Context, userID string, sessionID int64, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	sess, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	reply, err := s.gen.Generate(ctx, ChatPrompt(sess.Summary, query))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(reply) == "" {
		reply = NoResponse
	}
	if _, err := s.sessions.Exchange(ctx, sess.ID, query, reply); err != nil {
		return "", err
	}
	return reply, nil
}
