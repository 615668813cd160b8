package narrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/docsum/blob"
	"github.com/hazyhaar/docsum/dbopen"
	"github.com/hazyhaar/docsum/sessions"
)

func TestChunk(t *testing.T) {
	text := strings.Repeat("word ", 60) + strings.Repeat("x", 230)
	chunks := Chunk(text, 100)
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 100 || n == 0 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
	}
	if got := strings.Join(chunks, ""); strings.ReplaceAll(got, " ", "") != strings.ReplaceAll(text, " ", "") {
		t.Error("chunks lost text")
	}
	if len(Chunk("  \n ", 100)) != 0 {
		t.Error("blank text should give no chunks")
	}
	if c := Chunk("नमस्ते दुनिया", 6); len(c) != 2 || c[0] != "नमस्ते" {
		t.Errorf("devanagari chunks = %q", c)
	}
}

func TestChunk_NonPositiveMax(t *testing.T) {
	c := Chunk("a b c", 0)
	if len(c) != 1 || c[0] != "a b c" {
		t.Errorf("Chunk(max 0) = %q", c)
	}
}

func TestCloudTTS(t *testing.T) {
	var reqs []*texttospeechpb.SynthesizeSpeechRequest
	c := &CloudTTS{logger: slog.Default(), synth: func(_ context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
		reqs = append(reqs, req)
		return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: []byte("MP3[" + req.GetInput().GetText() + "]")}, nil
	}}
	text := strings.Repeat("नमस्ते ", 300)
	audio, err := c.Synthesize(context.Background(), text, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	var want string
	for _, req := range reqs {
		if n := len(req.GetInput().GetText()); n > 5000 {
			t.Errorf("request text is %d bytes", n)
		}
		if req.GetVoice().GetLanguageCode() != "hi-IN" || req.GetAudioConfig().GetAudioEncoding() != texttospeechpb.AudioEncoding_MP3 {
			t.Errorf("request = %v", req)
		}
		want += "MP3[" + req.GetInput().GetText() + "]"
	}
	if string(audio) != want {
		t.Errorf("audio = %q", audio)
	}
}

func TestCloudTTS_Errors(t *testing.T) {
	c := &CloudTTS{logger: slog.Default(), synth: func(context.Context, *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
		return nil, errors.New("quota exceeded")
	}}
	if _, err := c.Synthesize(context.Background(), "hi", "en"); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v", err)
	}
	if _, err := c.Synthesize(context.Background(), "hi", "fr"); err == nil {
		t.Error("expected error for unknown language")
	}
	if _, err := c.Synthesize(context.Background(), "   ", "en"); err == nil {
		t.Error("expected error for blank text")
	}
}

type fakeGen struct {
	reply  string
	prompt string
}

func (f *fakeGen) Generate(_ context.Context, p string) (string, error) {
	f.prompt = p
	return f.reply, nil
}

type fakeTTS struct{ lang string }

func (f *fakeTTS) Synthesize(_ context.Context, text, lang string) ([]byte, error) {
	f.lang = lang
	return []byte("ID3" + text), nil
}

func TestNarrate(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(sessions.Schema))
	store := sessions.New(db, nil)
	blobs, _ := blob.NewLocal(t.TempDir(), "/media/")
	gen := &fakeGen{reply: "  Once upon a summary.  "}
	tts := &fakeTTS{}
	svc := NewService(gen, store, tts, blobs, nil)

	sess, _ := store.Create(ctx, "u1", 0, "t", "## Heading\n- point")

	n, err := svc.Narrate(ctx, "u1", sess.ID, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if n.Narration != "Once upon a summary." || tts.lang != "hi" {
		t.Errorf("narration = %+v lang=%s", n, tts.lang)
	}
	if !strings.Contains(gen.prompt, "Hindi") || !strings.Contains(gen.prompt, "## Heading") {
		t.Errorf("prompt = %q", gen.prompt)
	}
	key := fmt.Sprintf("audio/summary_%d_hi.mp3", sess.ID)
	if n.AudioURL != "/media/"+key {
		t.Errorf("url = %q", n.AudioURL)
	}
	data, err := blob.ReadAll(ctx, blobs, key, 1024)
	if err != nil || string(data) != "ID3Once upon a summary." {
		t.Errorf("stored audio = %q, %v", data, err)
	}

	if _, err := svc.Narrate(ctx, "u1", sess.ID, "fr"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("fr: err = %v", err)
	}
	if _, err := svc.Narrate(ctx, "u2", sess.ID, "en"); !errors.Is(err, sessions.ErrNotFound) {
		t.Errorf("foreign: err = %v", err)
	}
	gen.reply = " "
	if _, err := svc.Narrate(ctx, "u1", sess.ID, ""); !errors.Is(err, ErrEmptyNarration) {
		t.Errorf("empty: err = %v", err)
	}
}
