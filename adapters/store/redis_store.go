package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// RedisSessionStore is a Redis implementation of the session store.
// Sessions are stored as JSON with a native TTL, so Cleanup has nothing
// left to do.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

var _ ports.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a Redis session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: "walletauth:session:",
	}
}

func (s *RedisSessionStore) Set(ctx context.Context, id string, session *core.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		// Already expired; storing it would only create a read-time miss.
		return nil
	}

	if err := s.client.Set(ctx, s.prefix+id, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	payload, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session core.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Cleanup is a no-op: Redis expires session keys natively.
func (s *RedisSessionStore) Cleanup(ctx context.Context) error {
	return nil
}

// RedisUserStore is a Redis implementation of the user store. Records
// live as JSON under user keys; wallet and email lookups go through
// index keys. Wallet uniqueness is enforced with SETNX on the wallet
// index key, which makes the check-then-act race in the linking
// manager lose to exactly one writer.
type RedisUserStore struct {
	client *redis.Client
	prefix string
}

var _ ports.UserStore = (*RedisUserStore)(nil)

// NewRedisUserStore creates a Redis user store.
func NewRedisUserStore(client *redis.Client) *RedisUserStore {
	return &RedisUserStore{
		client: client,
		prefix: "walletauth:user:",
	}
}

func (s *RedisUserStore) userKey(id string) string     { return s.prefix + "id:" + id }
func (s *RedisUserStore) walletKey(pk string) string   { return s.prefix + "wallet:" + pk }
func (s *RedisUserStore) emailKey(email string) string { return s.prefix + "email:" + email }

func (s *RedisUserStore) FindByPublicKey(ctx context.Context, publicKey string) (*core.User, error) {
	return s.findByIndex(ctx, s.walletKey(publicKey))
}

func (s *RedisUserStore) FindByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.findByIndex(ctx, s.emailKey(email))
}

func (s *RedisUserStore) findByIndex(ctx context.Context, indexKey string) (*core.User, error) {
	id, err := s.client.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read user index: %w", err)
	}
	return s.FindByUserID(ctx, id)
}

func (s *RedisUserStore) FindByUserID(ctx context.Context, id string) (*core.User, error) {
	payload, err := s.client.Get(ctx, s.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var user core.User
	if err := json.Unmarshal(payload, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

func (s *RedisUserStore) Create(ctx context.Context, user *core.User) (*core.User, error) {
	if user.WalletPublicKey != "" {
		if err := s.claimWallet(ctx, user.WalletPublicKey, user.ID); err != nil {
			return nil, err
		}
	}
	if err := s.writeUser(ctx, user); err != nil {
		return nil, err
	}
	if user.Email != "" {
		if err := s.client.Set(ctx, s.emailKey(user.Email), user.ID, 0).Err(); err != nil {
			return nil, fmt.Errorf("failed to write email index: %w", err)
		}
	}
	return user, nil
}

func (s *RedisUserStore) Update(ctx context.Context, id string, update core.UserUpdate) (*core.User, error) {
	user, err := s.FindByUserID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}

	if update.WalletPublicKey != nil {
		next := *update.WalletPublicKey
		if next != "" && next != user.WalletPublicKey {
			if err := s.claimWallet(ctx, next, id); err != nil {
				return nil, err
			}
		}
		if user.WalletPublicKey != "" && user.WalletPublicKey != next {
			if err := s.client.Del(ctx, s.walletKey(user.WalletPublicKey)).Err(); err != nil {
				return nil, fmt.Errorf("failed to drop wallet index: %w", err)
			}
		}
		user.WalletPublicKey = next
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
		if user.Email != "" && user.Email != *update.Email {
			if err := s.client.Del(ctx, s.emailKey(user.Email)).Err(); err != nil {
				return nil, fmt.Errorf("failed to drop email index: %w", err)
			}
		}
		user.Email = *update.Email
		if user.Email != "" {
			if err := s.client.Set(ctx, s.emailKey(user.Email), id, 0).Err(); err != nil {
				return nil, fmt.Errorf("failed to write email index: %w", err)
			}
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

	if err := s.writeUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// claimWallet takes the wallet index key for id, failing with
// core.ErrConflict when another record already owns it.
func (s *RedisUserStore) claimWallet(ctx context.Context, publicKey, id string) error {
	ok, err := s.client.SetNX(ctx, s.walletKey(publicKey), id, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim wallet index: %w", err)
	}
	if !ok {
		owner, err := s.client.Get(ctx, s.walletKey(publicKey)).Result()
		if err == nil && owner == id {
			return nil
		}
		return core.ErrConflict
	}
	return nil
}

func (s *RedisUserStore) writeUser(ctx context.Context, user *core.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.client.Set(ctx, s.userKey(user.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}
