package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// MemorySessionStore is an in-memory implementation of the session
// store, primarily intended for tests and single-process deployments.
type MemorySessionStore struct {
	sessions map[string]*core.Session
	mu       sync.RWMutex
}

var _ ports.SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*core.Session),
	}
}

func (s *MemorySessionStore) Set(ctx context.Context, id string, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.sessions[id] = &copied
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Cleanup removes every session whose expiry has passed.
func (s *MemorySessionStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
		}
	}
	return nil
}

// Len reports the number of physically stored sessions, expired or not.
// Useful for asserting sweep behavior in tests.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// MemoryUserStore is an in-memory implementation of the user store. It
// enforces the wallet_public_key uniqueness invariant the same way a
// database index would: Create and Update fail with core.ErrConflict
// when another record already holds the key.
type MemoryUserStore struct {
	users    map[string]*core.User
	byWallet map[string]string // wallet public key -> user id
	byEmail  map[string]string // email -> user id
	mu       sync.RWMutex
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:    make(map[string]*core.User),
		byWallet: make(map[string]string),
		byEmail:  make(map[string]string),
	}
}

var _ ports.UserStore = (*MemoryUserStore)(nil)

func (s *MemoryUserStore) FindByPublicKey(ctx context.Context, publicKey string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byWallet[publicKey]
	if !ok {
		return nil, nil
	}
	return copyUser(s.users[id]), nil
}

func (s *MemoryUserStore) FindByUserID(ctx context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(user), nil
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	return copyUser(s.users[id]), nil
}

func (s *MemoryUserStore) Create(ctx context.Context, user *core.User) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.WalletPublicKey != "" {
		if _, taken := s.byWallet[user.WalletPublicKey]; taken {
			return nil, core.ErrConflict
		}
	}

	stored := copyUser(user)
	s.users[stored.ID] = stored
	if stored.WalletPublicKey != "" {
		s.byWallet[stored.WalletPublicKey] = stored.ID
	}
	if stored.Email != "" {
		s.byEmail[stored.Email] = stored.ID
	}
	return copyUser(stored), nil
}

func (s *MemoryUserStore) Update(ctx context.Context, id string, update core.UserUpdate) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}

	if update.WalletPublicKey != nil {
		next := *update.WalletPublicKey
		if next != "" {
			if owner, taken := s.byWallet[next]; taken && owner != id {
				return nil, core.ErrConflict
			}
		}
		if user.WalletPublicKey != "" {
			delete(s.byWallet, user.WalletPublicKey)
		}
		user.WalletPublicKey = next
		if next != "" {
			s.byWallet[next] = id
		}
	}

	if update.WalletConnectedAt != nil {
		if update.WalletConnectedAt.IsZero() {
			user.WalletConnectedAt = nil
		} else {
			t := *update.WalletConnectedAt
			user.WalletConnectedAt = &t
		}
	}

	if update.Email != nil {
		if user.Email != "" {
			delete(s.byEmail, user.Email)
		}
		user.Email = *update.Email
		if user.Email != "" {
			s.byEmail[user.Email] = id
		}
	}

	if len(update.Metadata) > 0 {
		if user.Metadata == nil {
			user.Metadata = make(map[string]any, len(update.Metadata))
		}
		for k, v := range update.Metadata {
			user.Metadata[k] = v
		}
	}

	return copyUser(user), nil
}

func copyUser(user *core.User) *core.User {
	copied := *user
	if user.WalletConnectedAt != nil {
		t := *user.WalletConnectedAt
		copied.WalletConnectedAt = &t
	}
	if user.Metadata != nil {
		copied.Metadata = make(map[string]any, len(user.Metadata))
		for k, v := range user.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}
