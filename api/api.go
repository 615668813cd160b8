// Package api is the docsum HTTP surface: account endpoints under
// /api/auth/ and document, summary, chat and narration endpoints under
// /api/documents/.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/oauth2"

	"github.com/hazyhaar/docsum/accounts"
	"github.com/hazyhaar/docsum/audit"
	"github.com/hazyhaar/docsum/auth"
	"github.com/hazyhaar/docsum/docpipe"
	"github.com/hazyhaar/docsum/docstore"
	"github.com/hazyhaar/docsum/kit"
	"github.com/hazyhaar/docsum/narrate"
	"github.com/hazyhaar/docsum/sessions"
	"github.com/hazyhaar/docsum/shield"
	"github.com/hazyhaar/docsum/summarize"
)

// Deps wires the services behind the routes. Google, OAuth, Limiter, Media
// and Audit are optional. Media is public, so it must only expose narration
// audio.
type Deps struct {
	Accounts   *accounts.Service
	Documents  *docstore.Store
	Sessions   *sessions.Store
	Summarizer *summarize.Service
	Narrator   *narrate.Service

	Google  auth.GoogleVerifier
	OAuth   *oauth2.Config
	Limiter *shield.RateLimiter
	Media   http.Handler
	Audit   *audit.Logger

	Secret       []byte
	TokenTTL     time.Duration
	CookieDomain string
	SecureCookie bool
	MaxBody      int64
	MaxUpload    int64
	Logger       *slog.Logger
}

type Server struct {
	d         Deps
	summarize *jsonschema.Schema
}

func New(d Deps) (*Server, error) {
	if d.TokenTTL <= 0 {
		d.TokenTTL = 7 * 24 * time.Hour
	}
	if d.MaxBody <= 0 {
		d.MaxBody = 1 << 20
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = docpipe.DefaultMaxFileSize
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	sch, err := compileSchema("summarize.json", summarizeSchema)
	if err != nil {
		return nil, err
	}
	return &Server{d: d, summarize: sch}, nil
}

// RateRules are the default limits for the unauthenticated account routes.
func RateRules() []shield.Rule {
	var rules []shield.Rule
	for _, p := range []string{"signup/", "verify-otp/", "resend-otp/", "login/"} {
		rules = append(rules, shield.Rule{Endpoint: "POST /api/auth/" + p, MaxRequests: 10, WindowSeconds: 60})
	}
	return rules
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.APIStack(s.d.MaxBody) {
		r.Use(mw)
	}
	r.Use(auth.Middleware(s.d.Secret, s.d.Accounts))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.d.Media != nil {
		r.Handle("/media/*", http.StripPrefix("/media/", s.d.Media))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.d.Limiter != nil {
				r.Use(s.d.Limiter.Middleware)
			}
			r.Post("/signup/", s.signup)
			r.Post("/verify-otp/", s.verifyOTP)
			r.Post("/resend-otp/", s.resendOTP)
			r.Post("/login/", s.login)
		})
		r.Post("/google-login/", s.googleLogin)
		if s.d.OAuth != nil {
			r.Get("/google/start", s.googleStart)
			r.Get("/google/callback", s.googleCallback)
		}
		r.With(auth.RequireAuth).Post("/logout/", s.logout)
		r.With(auth.RequireAuth).Get("/me/", s.me)
		r.With(auth.RequireAuth).Get("/activity/", s.activity)
	})

	r.Route("/api/documents", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/", s.listDocuments)
		r.Get("/{id}/file/", s.downloadDocument)
		r.Post("/upload/", s.upload)
		r.Post("/summarize/", s.summarizeDocs)
		r.Get("/summaries/", s.listSessions)
		r.Get("/summaries/{id}/", s.getSession)
		r.Get("/summaries/{id}/export.xlsx", s.exportSession)
		r.Post("/summaries/{id}/chat/", s.chat)
		r.Post("/summaries/{id}/audio/", s.audio)
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError renders a *kit.Error. Anything else is an internal failure: it
// is logged and answered with a fixed message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := kit.AsError(err)
	if e == nil {
		e = kit.Internal("internal error", err)
	}
	if e.Status >= 500 {
		ctx := r.Context()
		shield.GetLogger(ctx).Error("api: request failed", "code", e.Code,
			"user_id", kit.GetUserID(ctx), "email", kit.GetEmail(ctx), "transport", kit.GetTransport(ctx), "error", err)
	}
	writeJSON(w, e.Status, map[string]string{"error": e.Message, "code": e.Code})
}

// decodeJSON reads the request body into v. An empty body leaves v alone.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return kit.NewError(http.StatusRequestEntityTooLarge, "too_large", "Request body too large.", err)
	}
	return kit.BadRequest("Malformed JSON body.")
}

// record queues an audit entry when auditing is enabled. A non-nil err marks
// the entry as a failure.
func (s *Server) record(r *http.Request, action, user string, err error, detail string) {
	if s.d.Audit == nil {
		return
	}
	e := &audit.Entry{
		Action:  action,
		UserID:  user,
		IP:      shield.ClientIP(r),
		TraceID: kit.GetTraceID(r.Context()),
		Detail:  detail,
	}
	if err != nil {
		e.Status = audit.StatusFailure
	}
	s.d.Audit.LogAsync(e)
}

func userID(r *http.Request) string {
	return kit.GetUserID(r.Context())
}
