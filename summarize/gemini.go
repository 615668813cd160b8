package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Generator sends one prompt to a text model and returns its reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini is a Generator backed by Vertex AI.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	logger *slog.Logger
}

// NewGemini connects to Vertex AI with application default credentials.
func NewGemini(ctx context.Context, project, region, model string, logger *slog.Logger) (*Gemini, error) {
	if project == "" || region == "" {
		return nil, errors.New("summarize: gcp project and region are required")
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, project, region)
	if err != nil {
		return nil, fmt.Errorf("summarize: genai.NewClient: %w", err)
	}
	return &Gemini{client: client, model: client.GenerativeModel(model), name: model, logger: logger}, nil
}

func (g *Gemini) Close() error { return g.client.Close() }

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		g.logger.Error("summarize: gemini call failed", "model", g.name, "error", err)
		return "", err
	}
	text := responseText(resp)
	g.logger.Debug("summarize: gemini call", "model", g.name,
		"prompt_chars", len(prompt), "reply_chars", len(text),
		"duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
