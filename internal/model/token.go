package model

import "time"

// TokenTypeBearer is the only token type the API issues.
const TokenTypeBearer = "Bearer"

// Tokens is the `tokens` object of the auth response envelope.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RefreshToken models an element of the `refreshTokens` array. The raw
// token is handed to the client once; only its SHA-256 hex digest is stored.
type RefreshToken struct {
	ID         string    `json:"id"`
	TokenHash  string    `json:"tokenHash"`
	UserID     uint64    `json:"userId"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// BlacklistEntry models an element of the `tokenBlacklist` array. It is keyed
// by the SHA-256 of the access token so live credentials are never stored.
type BlacklistEntry struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"tokenHash"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Active reports whether the entry still blocks its token at now.
func (e BlacklistEntry) Active(now time.Time) bool { return now.Before(e.ExpiresAt) }

// PasswordResetToken models an element of the `passwordResetTokens` array.
type PasswordResetToken struct {
	ID        string    `json:"id"`
	UserID    uint64    `json:"userId"`
	TokenHash string    `json:"tokenHash"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	Used      bool      `json:"used"`
}

// Valid reports whether the token is unused and unexpired at now.
func (t PasswordResetToken) Valid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
