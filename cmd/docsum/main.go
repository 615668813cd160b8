// Command docsum serves the document summarization API. With -mcp it
// instead exposes the extraction pipeline as MCP tools over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/docsum/accounts"
	"github.com/hazyhaar/docsum/api"
	"github.com/hazyhaar/docsum/audit"
	"github.com/hazyhaar/docsum/auth"
	"github.com/hazyhaar/docsum/blob"
	"github.com/hazyhaar/docsum/config"
	"github.com/hazyhaar/docsum/dbopen"
	"github.com/hazyhaar/docsum/docpipe"
	"github.com/hazyhaar/docsum/docstore"
	"github.com/hazyhaar/docsum/mailer"
	"github.com/hazyhaar/docsum/narrate"
	"github.com/hazyhaar/docsum/sessions"
	"github.com/hazyhaar/docsum/shield"
	"github.com/hazyhaar/docsum/summarize"
)

func main() {
	configPath := flag.String("config", env("DOCSUM_CONFIG", ""), "YAML config file")
	mcpMode := flag.Bool("mcp", false, "serve the docpipe tools over stdio")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	// Logging. stdout carries the protocol in MCP mode.
	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	level := new(slog.LevelVar)
	level.Set(lvl)
	out := os.Stdout
	if *mcpMode {
		out = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipe := docpipe.New(docpipe.Config{
		MaxChars:    cfg.Pipeline.MaxChars,
		MaxFileSize: cfg.MaxFileBytes(),
		Parallelism: cfg.Pipeline.Parallelism,
		OCR: docpipe.OCRConfig{
			Command:     cfg.Pipeline.OCRCommand,
			Lang:        cfg.Pipeline.OCRLang,
			TessdataDir: cfg.Pipeline.TessdataDir,
		},
		Logger: logger,
	})

	if *mcpMode {
		srv := mcp.NewServer(&mcp.Implementation{Name: "docsum", Version: "1.0.0"}, nil)
		pipe.RegisterMCP(srv)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("mcp", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if err := run(ctx, cfg, *configPath, pipe, level, logger); err != nil {
		slog.Error("docsum", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string, pipe *docpipe.Pipeline, level *slog.LevelVar, logger *slog.Logger) error {
	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(accounts.Schema),
		dbopen.WithSchema(docstore.Schema),
		dbopen.WithSchema(sessions.Schema),
		dbopen.WithSchema(shield.Schema),
		dbopen.WithSchema(audit.Schema),
	)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// Blob storage.
	var blobs blob.Store
	var media http.Handler
	switch cfg.Storage.Backend {
	case "gcs":
		g, err := blob.NewGCS(ctx, cfg.Storage.Bucket, logger)
		if err != nil {
			return err
		}
		defer g.Close()
		blobs = g
	default:
		l, err := blob.NewLocal(cfg.Storage.LocalRoot, strings.TrimRight(cfg.PublicURL, "/")+"/media/")
		if err != nil {
			return err
		}
		blobs = l
		media = l.Handler("audio/")
	}

	var mail mailer.Sender = mailer.Log{Logger: logger}
	if cfg.FromAddress() != "" {
		s, err := mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.User,
			Password: cfg.Email.Password,
			From:     cfg.FromAddress(),
		}, logger)
		if err != nil {
			return err
		}
		mail = s
	} else {
		slog.Warn("no sender address configured, outgoing mail is only logged")
	}

	gen, err := summarize.NewGemini(ctx, cfg.Gemini.Project, cfg.Gemini.Region, cfg.Gemini.Model, logger)
	if err != nil {
		return err
	}
	defer gen.Close()

	tts, err := narrate.NewCloudTTS(ctx, logger)
	if err != nil {
		return err
	}
	defer tts.Close()

	trail := audit.New(db, 1000, logger)
	defer trail.Close()

	acc := accounts.New(db, accounts.Config{Mailer: mail, Logger: logger})
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	docs := docstore.New(db, blobs, docstore.Config{
		MaxFileSize: cfg.MaxFileBytes(),
		FileURL:     func(id int64) string { return fmt.Sprintf("%s/api/documents/%d/file/", publicURL, id) },
		Logger:      logger,
	})
	sess := sessions.New(db, logger)

	if err := shield.SeedRules(ctx, db, api.RateRules()...); err != nil {
		return fmt.Errorf("seed rate limits: %w", err)
	}
	limiter := shield.NewRateLimiter(db)
	limiter.StartReloader(ctx)

	deps := api.Deps{
		Accounts:     acc,
		Documents:    docs,
		Sessions:     sess,
		Summarizer:   summarize.NewService(pipe, docs, sess, gen, logger),
		Narrator:     narrate.NewService(gen, sess, tts, blobs, logger),
		Limiter:      limiter,
		Media:        media,
		Audit:        trail,
		Secret:       cfg.JWTSecret(),
		TokenTTL:     time.Duration(cfg.TokenTTLHours) * time.Hour,
		CookieDomain: cfg.CookieDomain,
		SecureCookie: cfg.SecureCookie,
		MaxUpload:    cfg.MaxFileBytes(),
		Logger:       logger,
	}
	if cfg.Google.ClientID != "" {
		deps.Google = auth.IDTokenVerifier{ClientID: cfg.Google.ClientID}
		if cfg.Google.ClientSecret != "" {
			redirect := cfg.Google.RedirectURL
			if redirect == "" {
				redirect = strings.TrimRight(cfg.PublicURL, "/") + "/api/auth/google/callback"
			}
			deps.OAuth = auth.NewGoogleProvider(auth.OAuthConfig{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				RedirectURL:  redirect,
			})
		}
	}
	server, err := api.New(deps)
	if err != nil {
		return err
	}

	go housekeeping(ctx, acc, trail)
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(c *config.Config) {
				if l, err := config.ParseLevel(c.LogLevel); err == nil {
					level.Set(l)
				}
			})
			if err != nil {
				slog.Warn("config watch disabled", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("docsum starting", "addr", cfg.Listen, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// auditRetention bounds how long the activity trail is kept.
const auditRetention = 90 * 24 * time.Hour

// housekeeping drops expired revocations and old audit entries once an hour.
func housekeeping(ctx context.Context, acc *accounts.Service, trail *audit.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := acc.PurgeRevoked(ctx); err != nil {
				slog.Warn("purge revoked tokens", "error", err)
			} else if n > 0 {
				slog.Debug("purged revoked tokens", "count", n)
			}
			if n, err := trail.Cleanup(ctx, auditRetention); err != nil {
				slog.Warn("audit cleanup", "error", err)
			} else if n > 0 {
				slog.Debug("audit entries removed", "count", n)
			}
		}
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
