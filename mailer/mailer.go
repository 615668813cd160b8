// Package mailer sends the plain-text account emails (OTP codes).
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jhillyerd/enmime"
)

// Sender delivers one plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// Timeout bounds one delivery, dial included (default 30s).
	Timeout time.Duration `yaml:"timeout"`
}

// SMTP submits messages to a relay through enmime's builder. The session
// upgrades with STARTTLS when the server offers it, and PLAIN auth is used
// when a username is set.
type SMTP struct {
	cfg    SMTPConfig
	logger *slog.Logger
	sender func(ctx context.Context) enmime.Sender
}

func NewSMTP(cfg SMTPConfig, logger *slog.Logger) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, errors.New("mailer: smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("mailer: from address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SMTP{cfg: cfg, logger: logger}
	s.sender = s.newSession
	return s, nil
}

func message(from, to, subject, body string, date time.Time) enmime.MailBuilder {
	return enmime.Builder().
		From("", from).
		To("", to).
		Subject(subject).
		Date(date).
		Text([]byte(body))
}

// Compose renders an RFC 5322 message.
func Compose(from, to, subject, body string, date time.Time) ([]byte, error) {
	part, err := message(from, to, subject, body, date).Build()
	if err != nil {
		return nil, fmt.Errorf("mailer: build: %w", err)
	}
	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("mailer: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	err := message(s.cfg.From, to, subject, body, time.Now()).Send(s.sender(ctx))
	if err != nil {
		s.logger.Error("mailer: send failed", "to", to, "subject", subject, "error", err)
		return fmt.Errorf("mailer: send: %w", err)
	}
	s.logger.Info("mailer: sent", "to", to, "subject", subject)
	return nil
}

// session is an enmime.Sender bound to one context. Unlike smtp.SendMail
// it dials with a timeout and aborts the exchange when ctx ends.
type session struct {
	ctx context.Context
	cfg SMTPConfig
}

func (s *SMTP) newSession(ctx context.Context) enmime.Sender {
	return &session{ctx: ctx, cfg: s.cfg}
}

func (c *session) Send(from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	d := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := d.DialContext(c.ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.cfg.Timeout)
	if dl, ok := c.ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)
	stop := context.AfterFunc(c.ctx, func() { conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		conn.Close()
		return c.cause(err)
	}
	defer client.Close()
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
			return c.cause(err)
		}
	}
	if c.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)); err != nil {
			return c.cause(err)
		}
	}
	if err := client.Mail(from); err != nil {
		return c.cause(err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return c.cause(err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return c.cause(err)
	}
	if _, err := w.Write(msg); err != nil {
		return c.cause(err)
	}
	if err := w.Close(); err != nil {
		return c.cause(err)
	}
	return client.Quit()
}

// cause prefers the context error over the i/o error it provoked.
func (c *session) cause(err error) error {
	if ctxErr := c.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var nerr net.Error
	if dl, ok := c.ctx.Deadline(); ok && errors.As(err, &nerr) && nerr.Timeout() && !time.Now().Before(dl) {
		return context.DeadlineExceeded
	}
	return err
}

// Log writes messages to the logger instead of sending them. It stands in
// when no SMTP host is configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Send(_ context.Context, to, subject, body string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mailer: not sent, no smtp host", "to", to, "subject", subject, "body", body)
	return nil
}
