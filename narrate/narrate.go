// Package narrate rewrites a stored summary as spoken prose and records it
// as an MP3 file.
package narrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/docsum/blob"
	"github.com/hazyhaar/docsum/sessions"
	"github.com/hazyhaar/docsum/summarize"
)

var (
	ErrUnsupportedLanguage = errors.New("narrate: unsupported language")
	ErrEmptyNarration      = errors.New("narrate: model returned no narration")
)

// Languages lists the narration languages.
var Languages = []string{"en", "hi"}

// Narration is the result of Narrate.
type Narration struct {
	AudioURL  string `json:"audio_url"`
	Narration string `json:"narration"`
}

type Service struct {
	gen      summarize.Generator
	sessions *sessions.Store
	tts      Synthesizer
	blobs    blob.Store
	logger   *slog.Logger
}

func NewService(gen summarize.Generator, sess *sessions.Store, tts Synthesizer, blobs blob.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gen: gen, sessions: sess, tts: tts, blobs: blobs, logger: logger}
}

// AudioKey is where the narration of a session in lang is stored.
func AudioKey(sessionID int64, lang string) string {
	return fmt.Sprintf("audio/summary_%d_%s.mp3", sessionID, lang)
}

// Narrate generates the narration text for a session, synthesizes it and
// stores the audio, replacing any earlier rendering. An empty lang means "en".
func (s *Service) Narrate(ctx context.Context, userID string, sessionID int64, lang string) (*Narration, error) {
	if lang == "" {
		lang = "en"
	}
	supported := false
	for _, l := range Languages {
		supported = supported || l == lang
	}
	if !supported {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}

	sess, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	text, err := s.gen.Generate(ctx, summarize.NarrationPrompt(sess.Summary, lang))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", summarize.ErrGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyNarration
	}

	audio, err := s.tts.Synthesize(ctx, text, lang)
	if err != nil {
		return nil, err
	}
	key := AudioKey(sess.ID, lang)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(audio), "audio/mpeg"); err != nil {
		return nil, err
	}
	s.logger.Info("narrate: done", "session_id", sess.ID, "lang", lang, "bytes", len(audio))
	return &Narration{AudioURL: s.blobs.URL(key), Narration: text}, nil
}
