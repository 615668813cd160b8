// Package accounts manages users: email signup confirmed by a one-time code,
// password login, Google sign-in, and revocation of issued tokens.
package accounts

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/docsum/dbopen"
	"github.com/hazyhaar/docsum/idgen"
	"github.com/hazyhaar/docsum/mailer"
)

const PurposeSignup = "signup"

var (
	ErrUserNotFound       = errors.New("accounts: user not found")
	ErrEmailTaken         = errors.New("accounts: email already registered")
	ErrEmailRequired      = errors.New("accounts: email required")
	ErrInvalidCredentials = errors.New("accounts: invalid email or password")
	ErrInactive           = errors.New("accounts: email not verified")
	ErrOTPInvalid         = errors.New("accounts: invalid otp")
	ErrOTPExpired         = errors.New("accounts: otp expired or used")
	ErrAlreadyVerified    = errors.New("accounts: user already verified")
)

// FieldError rejects one input field. Message is safe to show to the user.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Active    bool      `json:"-"`
	CreatedAt time.Time `json:"-"`
	hash      string
}

type Config struct {
	OTPTTL     time.Duration
	BcryptCost int
	Mailer     mailer.Sender
	IDs        idgen.Generator
	Logger     *slog.Logger
}

type Service struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	code   func() (string, error)
}

func New(db *sql.DB, cfg Config) *Service {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.IDs == nil {
		cfg.IDs = idgen.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mailer.Log{Logger: cfg.Logger}
	}
	return &Service{db: db, cfg: cfg, logger: cfg.Logger, now: time.Now, code: otpCode}
}

// otpCode draws a uniform six-digit code in [100000, 999999].
func otpCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

// NormalizeEmail trims the address and lowercases its domain.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func validEmail(email string) bool {
	a, err := mail.ParseAddress(email)
	return err == nil && a.Address == email && a.Name == ""
}

const userCols = `SELECT id, email, full_name, password_hash, is_active, created_at FROM users`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var active int
	var ms int64
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.hash, &active, &ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("accounts: scan user: %w", err)
	}
	u.Active = active == 1
	u.CreatedAt = time.UnixMilli(ms).UTC()
	return &u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, userCols+` WHERE id = ?`, id))
}

func (s *Service) UserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, userCols+` WHERE email = ?`, NormalizeEmail(email)))
}

type SignupInput struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Signup creates an inactive user and mails a verification code.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	email := NormalizeEmail(in.Email)
	switch {
	case email == "":
		return nil, &FieldError{"email", "This field is required."}
	case !validEmail(email):
		return nil, &FieldError{"email", "Enter a valid email address."}
	case in.Password != in.ConfirmPassword:
		return nil, &FieldError{"password", "Passwords do not match."}
	case len(in.Password) < 6:
		return nil, &FieldError{"password", "Password must be at least 6 characters long."}
	}
	if _, err := s.UserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("accounts: hash: %w", err)
	}
	now := s.now().UTC()
	u := &User{ID: s.cfg.IDs(), Email: email, FullName: strings.TrimSpace(in.FullName), CreatedAt: now, hash: string(hash)}

	var code string
	err = dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, full_name, password_hash, is_active, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
			u.ID, u.Email, u.FullName, u.hash, now.UnixMilli()); err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return ErrEmailTaken
			}
			return err
		}
		code, err = s.issueOTP(ctx, tx, u.ID, PurposeSignup)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("accounts: signup: %w", err)
	}
	s.logger.Info("accounts: signup", "user_id", u.ID)

	body := fmt.Sprintf("Your OTP is %s. It expires in %d minutes.", code, int(s.cfg.OTPTTL.Minutes()))
	if err := s.cfg.Mailer.Send(ctx, u.Email, "Verify your email", body); err != nil {
		return nil, err
	}
	return u, nil
}

// issueOTP retires the user's unused codes for purpose and stores a new one.
func (s *Service) issueOTP(ctx context.Context, tx *sql.Tx, userID, purpose string) (string, error) {
	code, err := s.code()
	if err != nil {
		return "", fmt.Errorf("accounts: otp: %w", err)
	}
	now := s.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE otps SET is_used = 1 WHERE user_id = ? AND purpose = ? AND is_used = 0`,
		userID, purpose); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO otps (id, user_id, code, purpose, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.cfg.IDs(), userID, code, purpose, now.UnixMilli(), now.Add(s.cfg.OTPTTL).UnixMilli()); err != nil {
		return "", err
	}
	return code, nil
}

// VerifyOTP checks the newest code matching for the user, marks it used and
// activates the account.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*User, error) {
	u, err := s.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	var id string
	var expires int64
	var used int
	err = s.db.QueryRowContext(ctx,
		`SELECT id, expires_at, is_used FROM otps WHERE user_id = ? AND code = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		u.ID, strings.TrimSpace(code)).Scan(&id, &expires, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOTPInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: otp lookup: %w", err)
	}
	if used == 1 || s.now().UnixMilli() > expires {
		return nil, ErrOTPExpired
	}

	err = dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE otps SET is_used = 1 WHERE id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE users SET is_active = 1 WHERE id = ?`, u.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("accounts: verify: %w", err)
	}
	u.Active = true
	s.logger.Info("accounts: verified", "user_id", u.ID)
	return u, nil
}

// ResendOTP mails a fresh code to a user who has not verified yet.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmailRequired
	}
	u, err := s.UserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.Active {
		return ErrAlreadyVerified
	}
	var code string
	err = dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		code, err = s.issueOTP(ctx, tx, u.ID, PurposeSignup)
		return err
	})
	if err != nil {
		return fmt.Errorf("accounts: resend: %w", err)
	}
	body := fmt.Sprintf("Your new OTP is %s. It expires in %d minutes.", code, int(s.cfg.OTPTTL.Minutes()))
	return s.cfg.Mailer.Send(ctx, u.Email, "Resend OTP - Verify your account", body)
}

// dummyHash keeps the cost of a login for an unknown email close to a
// real one.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("docsum-dummy-password"), bcrypt.DefaultCost)

// Login checks a password. Accounts without a usable password, such as
// those created by Google sign-in, never match.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.hash == "" || bcrypt.CompareHashAndPassword([]byte(u.hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrInactive
	}
	return u, nil
}

// GoogleIdentity is what a verified Google token says about its holder.
type GoogleIdentity struct {
	Email         string
	Name          string
	EmailVerified bool
}

// GoogleLogin fetches or creates the user for a Google identity. New users
// are active and have no password. An unverified local account is activated
// when Google vouches for the address.
func (s *Service) GoogleLogin(ctx context.Context, id GoogleIdentity) (*User, error) {
	email := NormalizeEmail(id.Email)
	if email == "" {
		return nil, &FieldError{"credential", "Google token missing email."}
	}
	u, err := s.UserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		now := s.now().UTC()
		u = &User{ID: s.cfg.IDs(), Email: email, FullName: id.Name, Active: true, CreatedAt: now}
		_, err = dbopen.Exec(ctx, s.db,
			`INSERT INTO users (id, email, full_name, password_hash, is_active, created_at) VALUES (?, ?, ?, '', 1, ?)`,
			u.ID, u.Email, u.FullName, now.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("accounts: google create: %w", err)
		}
		s.logger.Info("accounts: google signup", "user_id", u.ID)
	case err != nil:
		return nil, err
	case !u.Active && id.EmailVerified:
		if _, err := dbopen.Exec(ctx, s.db, `UPDATE users SET is_active = 1 WHERE id = ?`, u.ID); err != nil {
			return nil, fmt.Errorf("accounts: google activate: %w", err)
		}
		u.Active = true
	}
	return u, nil
}

// DisplayName is the name shown after Google sign-in: the stored full name,
// else the token's name, else the local part of the email.
func DisplayName(u *User, tokenName string) string {
	if u.FullName != "" {
		return u.FullName
	}
	if tokenName != "" {
		return tokenName
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Revoke blocks a token id until its expiry.
func (s *Service) Revoke(ctx context.Context, jti string, expires time.Time) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`, jti, expires.UnixMilli())
	if err != nil {
		return fmt.Errorf("accounts: revoke: %w", err)
	}
	return nil
}

func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM revoked_tokens WHERE jti = ?`, jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("accounts: revoked lookup: %w", err)
	}
	return true, nil
}

// PurgeRevoked drops revocations of tokens that have expired anyway.
func (s *Service) PurgeRevoked(ctx context.Context) (int64, error) {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM revoked_tokens WHERE expires_at < ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("accounts: purge: %w", err)
	}
	return res.RowsAffected()
}
