package narrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// MaxChunk is the longest text, in runes, sent in one synthesis request.
// The API caps input at 5000 bytes and Devanagari takes 3 bytes per rune.
const MaxChunk = 1500

// voices maps narration languages to Cloud TTS locale codes.
var voices = map[string]string{
	"en": "en-US",
	"hi": "hi-IN",
}

type synthesizeFunc func(context.Context, *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)

// CloudTTS speaks through Google Cloud Text-to-Speech, one request per
// chunk, concatenating the MP3 segments.
type CloudTTS struct {
	client *texttospeech.Client
	synth  synthesizeFunc
	logger *slog.Logger
}

// NewCloudTTS connects with application default credentials.
func NewCloudTTS(ctx context.Context, logger *slog.Logger) (*CloudTTS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("narrate: texttospeech.NewClient: %w", err)
	}
	synth := func(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
		return client.SynthesizeSpeech(ctx, req)
	}
	return &CloudTTS{client: client, synth: synth, logger: logger}, nil
}

func (c *CloudTTS) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *CloudTTS) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	locale, ok := voices[lang]
	if !ok {
		return nil, fmt.Errorf("narrate: no voice for %q", lang)
	}
	chunks := Chunk(text, MaxChunk)
	if len(chunks) == 0 {
		return nil, errors.New("narrate: nothing to speak")
	}
	start := time.Now()
	var out []byte
	for i, chunk := range chunks {
		resp, err := c.synth(ctx, &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice:       &texttospeechpb.VoiceSelectionParams{LanguageCode: locale},
			AudioConfig: &texttospeechpb.AudioConfig{AudioEncoding: texttospeechpb.AudioEncoding_MP3},
		})
		if err != nil {
			c.logger.Error("narrate: synthesis failed", "lang", lang, "chunk", i+1, "error", err)
			return nil, fmt.Errorf("narrate: tts chunk %d/%d: %w", i+1, len(chunks), err)
		}
		out = append(out, resp.GetAudioContent()...)
	}
	c.logger.Debug("narrate: synthesized", "lang", lang, "chunks", len(chunks),
		"bytes", len(out), "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// Chunk splits text into pieces of at most max runes, breaking at
// whitespace where possible. Words longer than max are cut. A max below 1
// means MaxChunk.
func Chunk(text string, max int) []string {
	if max < 1 {
		max = MaxChunk
	}
	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
		curLen = 0
	}
	for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
		n := utf8.RuneCountInString(word)
		for n > max {
			flush()
			r := []rune(word)
			out = append(out, string(r[:max]))
			word = string(r[max:])
			n -= max
		}
		if curLen > 0 && curLen+1+n > max {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += n
	}
	flush()
	return out
}
