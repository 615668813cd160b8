package api

import (
	"errors"
	"net/http"

	"github.com/hazyhaar/docsum/accounts"
	"github.com/hazyhaar/docsum/audit"
	"github.com/hazyhaar/docsum/auth"
	"github.com/hazyhaar/docsum/idgen"
	"github.com/hazyhaar/docsum/kit"
	"github.com/hazyhaar/docsum/shield"
)

var newState = idgen.Token(16)

func (s *Server) secure(r *http.Request) bool {
	return s.d.SecureCookie || r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// issue signs a session token for u and sets it as the cookie.
func (s *Server) issue(w http.ResponseWriter, r *http.Request, u *accounts.User, provider string) (string, error) {
	tok, err := auth.GenerateToken(s.d.Secret, &auth.Claims{
		UserID:   u.ID,
		Email:    u.Email,
		Name:     u.FullName,
		Provider: provider,
	}, s.d.TokenTTL)
	if err != nil {
		return "", err
	}
	auth.SetTokenCookie(w, tok, s.d.CookieDomain, s.secure(r), s.d.TokenTTL)
	return tok, nil
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req accounts.SignupInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.d.Accounts.Signup(r.Context(), req)
	var fe *accounts.FieldError
	switch {
	case err == nil:
		s.record(r, "signup", u.ID, nil, "")
		writeJSON(w, http.StatusCreated, map[string]string{"message": "OTP sent to your email"})
	case errors.As(err, &fe):
		writeError(w, r, kit.BadRequest(fe.Message))
	case errors.Is(err, accounts.ErrEmailTaken):
		writeError(w, r, kit.BadRequest("An account with this email already exists."))
	default:
		writeError(w, r, kit.Internal("Could not complete signup.", err))
	}
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.d.Accounts.VerifyOTP(r.Context(), req.Email, req.Code)
	switch {
	case errors.Is(err, accounts.ErrUserNotFound):
		writeError(w, r, kit.BadRequest("No user found with this email."))
		return
	case errors.Is(err, accounts.ErrOTPInvalid):
		writeError(w, r, kit.BadRequest("Invalid OTP."))
		return
	case errors.Is(err, accounts.ErrOTPExpired):
		writeError(w, r, kit.BadRequest("OTP has expired or already used."))
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	tok, err := s.issue(w, r, u, auth.ProviderLocal)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.record(r, "verify_otp", u.ID, nil, "")
	writeJSON(w, http.StatusOK, map[string]any{
		"detail": "Email verified & logged in",
		"token":  tok,
		"user":   u,
	})
}

func (s *Server) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.d.Accounts.ResendOTP(r.Context(), req.Email)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"detail": "New OTP sent to email."})
	case errors.Is(err, accounts.ErrEmailRequired):
		writeError(w, r, kit.BadRequest("Email required."))
	case errors.Is(err, accounts.ErrUserNotFound):
		writeError(w, r, kit.NotFound("User not found."))
	case errors.Is(err, accounts.ErrAlreadyVerified):
		writeError(w, r, kit.BadRequest("User already verified."))
	default:
		writeError(w, r, err)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.d.Accounts.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, accounts.ErrInvalidCredentials):
		shield.GetLogger(r.Context()).Info("api: login failed", "ip", shield.ClientIP(r))
		s.record(r, "login", "", err, accounts.NormalizeEmail(req.Email))
		writeError(w, r, kit.BadRequest("Invalid email or password."))
		return
	case errors.Is(err, accounts.ErrInactive):
		writeError(w, r, kit.BadRequest("Please verify your email with the OTP before logging in."))
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	tok, err := s.issue(w, r, u, auth.ProviderLocal)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.record(r, "login", u.ID, nil, "")
	writeJSON(w, http.StatusOK, map[string]string{"token": tok, "username": u.FullName, "email": u.Email})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	c := auth.GetClaims(r.Context())
	if c.ExpiresAt != nil {
		if err := s.d.Accounts.Revoke(r.Context(), c.ID, c.ExpiresAt.Time); err != nil {
			writeError(w, r, err)
			return
		}
	}
	auth.ClearTokenCookie(w, s.d.CookieDomain)
	s.record(r, "logout", c.UserID, nil, "")
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Logged out successfully"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, err := s.d.Accounts.GetUser(r.Context(), userID(r))
	if errors.Is(err, accounts.ErrUserNotFound) {
		writeError(w, r, kit.NotFound("User not found."))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// googleSignIn logs in the holder of a verified Google profile.
func (s *Server) googleSignIn(w http.ResponseWriter, r *http.Request, p *auth.GoogleProfile) (*accounts.User, string, bool) {
	if p.Email == "" {
		writeError(w, r, kit.BadRequest("Google token missing email."))
		return nil, "", false
	}
	u, err := s.d.Accounts.GoogleLogin(r.Context(), accounts.GoogleIdentity{
		Email:         p.Email,
		Name:          p.Name,
		EmailVerified: p.EmailVerified,
	})
	if err != nil {
		writeError(w, r, err)
		return nil, "", false
	}
	tok, err := s.issue(w, r, u, auth.ProviderGoogle)
	if err != nil {
		writeError(w, r, err)
		return nil, "", false
	}
	s.record(r, "google_login", u.ID, nil, "")
	return u, tok, true
}

func (s *Server) googleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Credential == "" {
		writeError(w, r, kit.BadRequest("Missing credential (ID token)."))
		return
	}
	if s.d.Google == nil {
		writeError(w, r, kit.NewError(http.StatusNotImplemented, "unavailable", "Google sign-in is not configured.", nil))
		return
	}
	p, err := s.d.Google.Verify(r.Context(), req.Credential)
	if err != nil {
		shield.GetLogger(r.Context()).Info("api: google token rejected", "error", err)
		writeError(w, r, kit.BadRequest("Invalid Google token."))
		return
	}
	u, tok, ok := s.googleSignIn(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":    tok,
		"username": accounts.DisplayName(u, p.Name),
		"email":    u.Email,
	})
}

func (s *Server) googleStart(w http.ResponseWriter, r *http.Request) {
	state := newState()
	auth.SetStateCookie(w, state, s.secure(r))
	http.Redirect(w, r, s.d.OAuth.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) googleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !auth.ConsumeStateCookie(w, r, q.Get("state")) {
		writeError(w, r, kit.BadRequest("Invalid OAuth state."))
		return
	}
	if q.Get("code") == "" {
		writeError(w, r, kit.BadRequest("Missing authorization code."))
		return
	}
	p, err := auth.FetchGoogleUser(r.Context(), s.d.OAuth, q.Get("code"))
	if err != nil {
		shield.GetLogger(r.Context()).Warn("api: google oauth failed", "error", err)
		writeError(w, r, kit.BadRequest("Invalid Google token."))
		return
	}
	if _, _, ok := s.googleSignIn(w, r, p); ok {
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (s *Server) activity(w http.ResponseWriter, r *http.Request) {
	if s.d.Audit == nil {
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}
	list, err := s.d.Audit.ForUser(r.Context(), userID(r), 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, list)
}
