package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

var ErrInvalidGoogleToken = errors.New("auth: invalid google token")

// GoogleProfile is the identity a Google credential vouches for.
type GoogleProfile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// GoogleVerifier checks a Google Sign-In ID token.
type GoogleVerifier interface {
	Verify(ctx context.Context, credential string) (*GoogleProfile, error)
}

// GoogleVerifierFunc adapts a function to GoogleVerifier.
type GoogleVerifierFunc func(ctx context.Context, credential string) (*GoogleProfile, error)

func (f GoogleVerifierFunc) Verify(ctx context.Context, credential string) (*GoogleProfile, error) {
	return f(ctx, credential)
}

// IDTokenVerifier validates ID tokens against Google's public keys for one
// OAuth client.
type IDTokenVerifier struct {
	ClientID string
}

func (v IDTokenVerifier) Verify(ctx context.Context, credential string) (*GoogleProfile, error) {
	if v.ClientID == "" {
		return nil, fmt.Errorf("%w: no client id configured", ErrInvalidGoogleToken)
	}
	p, err := idtoken.Validate(ctx, credential, v.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoogleToken, err)
	}
	return profileFromClaims(p.Subject, p.Claims), nil
}

func profileFromClaims(sub string, claims map[string]any) *GoogleProfile {
	prof := &GoogleProfile{Subject: sub}
	prof.Email, _ = claims["email"].(string)
	prof.Name, _ = claims["name"].(string)
	switch v := claims["email_verified"].(type) {
	case bool:
		prof.EmailVerified = v
	case string:
		prof.EmailVerified = v == "true"
	}
	return prof
}
