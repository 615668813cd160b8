// Package config loads the docsum configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen        string         `yaml:"listen"`
	PublicURL     string         `yaml:"public_url"`
	DBPath        string         `yaml:"db_path"`
	LogLevel      string         `yaml:"log_level"`
	SessionSecret string         `yaml:"session_secret"`
	CookieDomain  string         `yaml:"cookie_domain"`
	SecureCookie  bool           `yaml:"secure_cookie"`
	TokenTTLHours int            `yaml:"token_ttl_hours"`
	Storage       StorageConfig  `yaml:"storage"`
	Pipeline      PipelineConfig `yaml:"pipeline"`
	Gemini        GeminiConfig   `yaml:"gemini"`
	Google        GoogleConfig   `yaml:"google"`
	Email         EmailConfig    `yaml:"email"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"` // local | gcs
	LocalRoot string `yaml:"local_root"`
	Bucket    string `yaml:"bucket"`
}

type PipelineConfig struct {
	MaxChars    int    `yaml:"max_chars"`
	MaxFileMB   int    `yaml:"max_file_mb"`
	Parallelism int    `yaml:"parallelism"`
	OCRCommand  string `yaml:"ocr_command"`
	OCRLang     string `yaml:"ocr_lang"`
	TessdataDir string `yaml:"tessdata_dir"`
}

type GeminiConfig struct {
	Project string `yaml:"project"`
	Region  string `yaml:"region"`
	Model   string `yaml:"model"`
}

type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

func Default() *Config {
	return &Config{
		Listen:        ":8000",
		PublicURL:     "http://localhost:8000",
		DBPath:        "data/docsum.db",
		LogLevel:      "info",
		TokenTTLHours: 24 * 7,
		Storage: StorageConfig{
			Backend:   "local",
			LocalRoot: "media",
		},
		Pipeline: PipelineConfig{
			MaxChars:    12000,
			MaxFileMB:   100,
			Parallelism: 4,
			OCRCommand:  "tesseract",
			OCRLang:     "eng",
		},
		Gemini: GeminiConfig{
			Region: "us-central1",
			Model:  "gemini-2.5-flash",
		},
		Email: EmailConfig{
			Host: "smtp.gmail.com",
			Port: 587,
		},
	}
}

// Load reads path over Default. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. Unset variables leave the
// current value alone.
func (c *Config) ApplyEnv() {
	str := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str(&c.Listen, "DOCSUM_LISTEN")
	str(&c.PublicURL, "DOCSUM_PUBLIC_URL")
	str(&c.SessionSecret, "SESSION_SECRET")
	str(&c.DBPath, "DATABASE_PATH")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	str(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	str(&c.Gemini.Project, "GCP_PROJECT")
	str(&c.Gemini.Region, "VERTEX_REGION")
	str(&c.Gemini.Model, "GEMINI_MODEL")
	str(&c.Storage.Backend, "STORAGE_BACKEND")
	str(&c.Storage.Bucket, "GCS_BUCKET")
	str(&c.Email.Host, "EMAIL_HOST")
	num(&c.Email.Port, "EMAIL_PORT")
	str(&c.Email.User, "EMAIL_HOST_USER")
	str(&c.Email.Password, "EMAIL_HOST_PASSWORD")
	str(&c.Email.From, "DEFAULT_FROM_EMAIL")
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("session_secret is required (or SESSION_SECRET)")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("storage.local_root is required for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unsupported storage.backend %q (use local or gcs)", c.Storage.Backend)
	}
	if c.Pipeline.MaxChars <= 0 {
		return fmt.Errorf("pipeline.max_chars must be > 0")
	}
	if c.Pipeline.MaxFileMB <= 0 {
		return fmt.Errorf("pipeline.max_file_mb must be > 0")
	}
	if c.Pipeline.Parallelism <= 0 {
		return fmt.Errorf("pipeline.parallelism must be > 0")
	}
	if c.TokenTTLHours <= 0 {
		return fmt.Errorf("token_ttl_hours must be > 0")
	}
	if c.Email.Port <= 0 || c.Email.Port > 65535 {
		return fmt.Errorf("email.port %d out of range", c.Email.Port)
	}
	return nil
}

// JWTSecret derives the 32-byte signing key from the session secret.
func (c *Config) JWTSecret() []byte {
	sum := sha256.Sum256([]byte(c.SessionSecret))
	return sum[:]
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.Pipeline.MaxFileMB) * 1024 * 1024 }

// FromAddress is the sender of outgoing mail, falling back to the SMTP user.
func (c *Config) FromAddress() string {
	if c.Email.From != "" {
		return c.Email.From
	}
	return c.Email.User
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unsupported log_level %q", s)
}
