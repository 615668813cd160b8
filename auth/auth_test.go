package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/hazyhaar/docsum/kit"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestGenerateValidate(t *testing.T) {
	tok, err := GenerateToken(testSecret, &Claims{UserID: "u1", Email: "a@b.io", Provider: ProviderLocal}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c, err := ValidateToken(testSecret, tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.UserID != "u1" || c.Subject != "u1" || c.Email != "a@b.io" || c.ID == "" {
		t.Errorf("claims = %+v", c)
	}
}

func TestGenerateToken_ShortSecret(t *testing.T) {
	if _, err := GenerateToken([]byte("short"), &Claims{UserID: "u"}, time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	expired, _ := GenerateToken(testSecret, &Claims{UserID: "u"}, -time.Minute)
	other, _ := GenerateToken([]byte("ffffffffffffffffffffffffffffffff"), &Claims{UserID: "u"}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noUser, _ := GenerateToken(testSecret, &Claims{}, time.Hour)

	for name, tok := range map[string]string{
		"expired": expired, "wrong key": other, "alg none": none, "no user": noUser, "garbage": "a.b.c",
	} {
		if _, err := ValidateToken(testSecret, tok); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

type revokedSet map[string]bool

func (s revokedSet) IsRevoked(_ context.Context, jti string) (bool, error) { return s[jti], nil }

func serve(t *testing.T, h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware(t *testing.T) {
	tok, _ := GenerateToken(testSecret, &Claims{UserID: "u1", Email: "a@b.io", RegisteredClaims: jwt.RegisteredClaims{ID: "jti-ok"}}, time.Hour)
	gone, _ := GenerateToken(testSecret, &Claims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{ID: "jti-gone"}}, time.Hour)

	var seen string
	h := Middleware(testSecret, revokedSet{"jti-gone": true})(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = kit.GetUserID(r.Context()) + "|" + kit.GetEmail(r.Context())
	})))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: TokenCookie, Value: tok})
	if w := serve(t, h, r); w.Code != http.StatusOK || seen != "u1|a@b.io" {
		t.Fatalf("cookie: code %d, seen %q", w.Code, seen)
	}

	seen = ""
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	if w := serve(t, h, r); w.Code != http.StatusOK || seen != "u1|a@b.io" {
		t.Fatalf("bearer: code %d, seen %q", w.Code, seen)
	}

	seen = ""
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+gone)
	w := serve(t, h, r)
	if w.Code != http.StatusUnauthorized || seen != "" {
		t.Fatalf("revoked: code %d, seen %q", w.Code, seen)
	}
	if !strings.Contains(w.Body.String(), `"authentication required"`) {
		t.Errorf("body = %s", w.Body)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	if w := serve(t, h, r); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: code %d", w.Code)
	}
}

func TestMiddleware_InvalidCookieCleared(t *testing.T) {
	h := Middleware(testSecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r.Context()) != nil {
			t.Error("claims set for invalid token")
		}
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "junk"})
	w := serve(t, h, r)
	if sc := w.Header().Get("Set-Cookie"); !strings.Contains(sc, "token=") || !strings.Contains(sc, "Max-Age=0") {
		t.Errorf("Set-Cookie = %q", sc)
	}
}

func TestTokenCookie(t *testing.T) {
	w := httptest.NewRecorder()
	SetTokenCookie(w, "abc", "example.com", true, 2*time.Hour)
	sc := w.Header().Get("Set-Cookie")
	for _, want := range []string{"token=abc", "Max-Age=7200", "HttpOnly", "Secure", "Domain=example.com"} {
		if !strings.Contains(sc, want) {
			t.Errorf("Set-Cookie %q missing %q", sc, want)
		}
	}
}

func TestStateCookie(t *testing.T) {
	w := httptest.NewRecorder()
	SetStateCookie(w, "xyz", false)
	cookie := w.Result().Cookies()[0]

	r := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback", nil)
	r.AddCookie(cookie)
	if !ConsumeStateCookie(httptest.NewRecorder(), r, "xyz") {
		t.Error("matching state rejected")
	}
	if ConsumeStateCookie(httptest.NewRecorder(), r, "other") {
		t.Error("mismatched state accepted")
	}
	if ConsumeStateCookie(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), "") {
		t.Error("missing cookie accepted")
	}
}

func TestProfileFromClaims(t *testing.T) {
	p := profileFromClaims("sub-1", map[string]any{"email": "g@x.io", "name": "Grace", "email_verified": true})
	if p.Email != "g@x.io" || p.Name != "Grace" || !p.EmailVerified || p.Subject != "sub-1" {
		t.Errorf("profile = %+v", p)
	}
	p = profileFromClaims("s", map[string]any{"email_verified": "true"})
	if !p.EmailVerified || p.Email != "" {
		t.Errorf("profile = %+v", p)
	}
}

func TestIDTokenVerifier_NoClientID(t *testing.T) {
	_, err := IDTokenVerifier{}.Verify(context.Background(), "x")
	if !errors.Is(err, ErrInvalidGoogleToken) {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchGoogleUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer at" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"id":"42","email":"g@x.io","verified_email":true,"name":"Grace"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	old := GoogleUserInfoURL
	GoogleUserInfoURL = srv.URL + "/userinfo"
	defer func() { GoogleUserInfoURL = old }()

	cfg := NewGoogleProvider(OAuthConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"})
	cfg.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}

	p, err := FetchGoogleUser(context.Background(), cfg, "code")
	if err != nil {
		t.Fatal(err)
	}
	if p.Email != "g@x.io" || !p.EmailVerified || p.Name != "Grace" || p.Subject != "42" {
		t.Errorf("profile = %+v", p)
	}
}
