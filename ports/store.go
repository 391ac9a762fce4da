package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// SessionStore persists sessions keyed by their opaque identifier.
// Get returns (nil, nil) for a missing id; a miss is a routine state,
// not an error. Each call is atomic with respect to itself; no
// cross-call transactionality is assumed.
type SessionStore interface {
	Set(ctx context.Context, id string, session *core.Session) error
	Get(ctx context.Context, id string) (*core.Session, error)
	Delete(ctx context.Context, id string) error

	// Cleanup bulk-removes expired sessions. Advisory: read-time expiry
	// in the manager is the correctness guarantee, this is memory hygiene.
	Cleanup(ctx context.Context) error
}

// UserStore persists user records and enforces uniqueness of
// wallet_public_key at the storage layer. Find* methods return
// (nil, nil) when no record matches. Create and Update surface a
// uniqueness violation as core.ErrConflict; any other error is an I/O
// fault and propagates to the caller unmodified.
type UserStore interface {
	FindByPublicKey(ctx context.Context, publicKey string) (*core.User, error)
	FindByUserID(ctx context.Context, id string) (*core.User, error)
	FindByEmail(ctx context.Context, email string) (*core.User, error)
	Create(ctx context.Context, user *core.User) (*core.User, error)
	Update(ctx context.Context, id string, update core.UserUpdate) (*core.User, error)
}
