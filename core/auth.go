package core

import "time"

// Challenge represents a sign-in challenge issued to a wallet holder.
type Challenge struct {
	AppName  string    // Application name embedded in the message
	Nonce    string    // Random nonce embedded in the message
	IssuedAt time.Time // When the challenge was created
	Message  string    // Full human-readable text to be signed
}

// Proof is a transient (publicKey, signature, message) triple presented
// by a client. It is validated once and never persisted.
type Proof struct {
	PublicKey string // Base58 encoding of a 32-byte ed25519 public key
	Signature string // Base58 encoding of a 64-byte signature
	Message   string // Exact bytes that were signed, as UTF-8 text
}

// Session binds a verified public key (and optionally a user id) to an
// opaque identifier with an expiry. Expiry is evaluated at read time: a
// session whose ExpiresAt is in the past reads as not found even if it
// is physically still stored.
type Session struct {
	ID        string         `json:"id"`
	PublicKey string         `json:"public_key"`
	UserID    string         `json:"user_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the session has passed its expiry at the
// given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// User is an application user record. At most one record holds a given
// WalletPublicKey at any time; the store's uniqueness constraint is the
// authority for that invariant.
type User struct {
	ID                string         `json:"id"`
	WalletPublicKey   string         `json:"wallet_public_key,omitempty"`
	Email             string         `json:"email,omitempty"`
	WalletConnectedAt *time.Time     `json:"wallet_connected_at,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// LinkRequest carries the inputs to the link-or-create resolution.
type LinkRequest struct {
	PublicKey      string
	ExistingUserID string
	Email          string
	Metadata       map[string]any
}

// UserUpdate is a partial update applied to a user record. Nil fields
// are left untouched; Metadata entries are merged over the existing
// map. A pointer to the empty string (or zero time) clears the field.
type UserUpdate struct {
	WalletPublicKey   *string
	WalletConnectedAt *time.Time
	Email             *string
	Metadata          map[string]any
}
