package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// DefaultSessionTTL is applied when CreateSessionOptions.TTL is unset.
const DefaultSessionTTL = 24 * time.Hour

// CreateSessionOptions carries the optional fields of a new session.
type CreateSessionOptions struct {
	UserID   string
	TTL      time.Duration
	Metadata map[string]any
}

// SessionManager issues, retrieves, refreshes and expires sessions
// bound to a verified public key. Expiry is enforced at read time;
// the background sweeper only reclaims memory.
type SessionManager struct {
	store      ports.SessionStore
	defaultTTL time.Duration
	log        *slog.Logger
}

// NewSessionManager creates a session manager on top of the given
// store. A non-positive defaultTTL falls back to DefaultSessionTTL.
func NewSessionManager(store ports.SessionStore, defaultTTL time.Duration, log *slog.Logger) *SessionManager {
	if defaultTTL <= 0 {
		defaultTTL = DefaultSessionTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		store:      store,
		defaultTTL: defaultTTL,
		log:        log,
	}
}

// CreateSession persists a new session for publicKey and returns its
// opaque identifier. Identifier collisions are cryptographically
// negligible and not checked.
func (m *SessionManager) CreateSession(ctx context.Context, publicKey string, opts CreateSessionOptions) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	now := time.Now()
	session := &core.Session{
		ID:        id,
		PublicKey: publicKey,
		UserID:    opts.UserID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Metadata:  opts.Metadata,
	}

	if err := m.store.Set(ctx, id, session); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	m.log.Debug("session created", "session_id", id, "public_key", publicKey, "expires_at", session.ExpiresAt)
	return id, nil
}

// GetSession returns the session for id, or nil when it is missing or
// expired. An expired session encountered here is opportunistically
// deleted from the store.
func (m *SessionManager) GetSession(ctx context.Context, id string) (*core.Session, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if session.Expired(time.Now()) {
		if err := m.store.Delete(ctx, id); err != nil {
			m.log.Warn("failed to delete expired session", "session_id", id, "error", err)
		}
		return nil, nil
	}

	return session, nil
}

// DeleteSession removes a session. Deleting a nonexistent session is
// not an error.
func (m *SessionManager) DeleteSession(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RefreshSession extends the session's expiry from now. It returns
// false when the session does not exist or has already expired.
func (m *SessionManager) RefreshSession(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	session, err := m.GetSession(ctx, id)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}

	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	session.ExpiresAt = time.Now().Add(ttl)

	if err := m.store.Set(ctx, id, session); err != nil {
		return false, fmt.Errorf("failed to store refreshed session: %w", err)
	}
	return true, nil
}

// StartSweeper runs the store's bulk-expiry cleanup on the given
// interval until ctx is done. It returns immediately; the sweep runs
// on its own goroutine.
func (m *SessionManager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.store.Cleanup(ctx); err != nil {
					m.log.Warn("session sweep failed", "error", err)
				}
			}
		}
	}()
}

// newSessionID returns 32 hex characters from a CSPRNG. Distinct from
// the public key by construction.
func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
