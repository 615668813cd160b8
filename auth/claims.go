// Package auth issues and checks the HS256 session tokens, carries them in a
// cookie or Bearer header, and verifies Google identities.
package auth

import "github.com/golang-jwt/jwt/v5"

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// Claims is the docsum session token. RegisteredClaims.ID is the JTI used
// for revocation at logout.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"` // "local", "google"
}
