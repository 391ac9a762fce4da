package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// LinkingManager reconciles a verified wallet public key with zero, one
// or many existing user records. The uniqueness of wallet_public_key is
// enforced by the store; the manager treats a store conflict as "linked
// concurrently" and retries the read path once.
type LinkingManager struct {
	store  ports.UserStore
	events ports.EventPublisher
	log    *slog.Logger
}

// NewLinkingManager creates a linking manager. events may be nil when
// no cross-instance notification is wired.
func NewLinkingManager(store ports.UserStore, events ports.EventPublisher, log *slog.Logger) *LinkingManager {
	if log == nil {
		log = slog.Default()
	}
	return &LinkingManager{
		store:  store,
		events: events,
		log:    log,
	}
}

// LinkOrCreateUser resolves req.PublicKey to a user record, in order:
//
//  1. a record already bound to the key is returned unchanged, which
//     makes repeated authentication idempotent;
//  2. with ExistingUserID set, that record is loaded and linked —
//     core.ErrUserNotFound when absent, core.ErrWalletAlreadyLinked
//     when it carries a different wallet;
//  3. with Email set and a matching record found, same check and link
//     keyed by email, failing with core.ErrEmailAlreadyLinked;
//  4. otherwise a fresh record is created.
func (m *LinkingManager) LinkOrCreateUser(ctx context.Context, req core.LinkRequest) (*core.User, error) {
	existing, err := m.store.FindByPublicKey(ctx, req.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up wallet binding: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	if req.ExistingUserID != "" {
		return m.linkExisting(ctx, req, req.ExistingUserID)
	}

	if req.Email != "" {
		byEmail, err := m.store.FindByEmail(ctx, req.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user by email: %w", err)
		}
		if byEmail != nil {
			if byEmail.WalletPublicKey != "" && byEmail.WalletPublicKey != req.PublicKey {
				return nil, core.ErrEmailAlreadyLinked
			}
			return m.attachWallet(ctx, byEmail.ID, req)
		}
	}

	now := time.Now()
	created, err := m.store.Create(ctx, &core.User{
		ID:                uuid.NewString(),
		WalletPublicKey:   req.PublicKey,
		Email:             req.Email,
		WalletConnectedAt: &now,
		Metadata:          req.Metadata,
	})
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			return m.resolveConflict(ctx, req.PublicKey)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	m.publishLinked(ctx, req.PublicKey, created.ID)
	return created, nil
}

// linkExisting binds the wallet to a caller-named record.
func (m *LinkingManager) linkExisting(ctx context.Context, req core.LinkRequest, userID string) (*core.User, error) {
	user, err := m.store.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}
	if user.WalletPublicKey != "" && user.WalletPublicKey != req.PublicKey {
		return nil, core.ErrWalletAlreadyLinked
	}
	return m.attachWallet(ctx, user.ID, req)
}

// attachWallet writes the wallet binding onto a record, merging any
// request metadata over the stored map.
func (m *LinkingManager) attachWallet(ctx context.Context, userID string, req core.LinkRequest) (*core.User, error) {
	now := time.Now()
	updated, err := m.store.Update(ctx, userID, core.UserUpdate{
		WalletPublicKey:   &req.PublicKey,
		WalletConnectedAt: &now,
		Metadata:          req.Metadata,
	})
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			return m.resolveConflict(ctx, req.PublicKey)
		}
		return nil, fmt.Errorf("failed to link wallet: %w", err)
	}

	m.publishLinked(ctx, req.PublicKey, updated.ID)
	return updated, nil
}

// resolveConflict re-reads after a store uniqueness violation. Two
// concurrent requests with the same key may both observe "not found";
// the loser lands here and adopts the winner's record.
func (m *LinkingManager) resolveConflict(ctx context.Context, publicKey string) (*core.User, error) {
	winner, err := m.store.FindByPublicKey(ctx, publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read after conflict: %w", err)
	}
	if winner != nil {
		return winner, nil
	}
	return nil, core.ErrWalletAlreadyLinked
}

// UnlinkWallet clears the wallet binding from a user record.
func (m *LinkingManager) UnlinkWallet(ctx context.Context, userID string) (*core.User, error) {
	user, err := m.store.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}

	previousKey := user.WalletPublicKey
	cleared := ""
	updated, err := m.store.Update(ctx, userID, core.UserUpdate{
		WalletPublicKey:   &cleared,
		WalletConnectedAt: &time.Time{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unlink wallet: %w", err)
	}

	if m.events != nil && previousKey != "" {
		if err := m.events.PublishWalletUnlinked(ctx, previousKey, userID); err != nil {
			m.log.Warn("failed to publish wallet unlinked event", "user_id", userID, "error", err)
		}
	}
	return updated, nil
}

// GetUserByPublicKey returns the record bound to publicKey, or nil.
func (m *LinkingManager) GetUserByPublicKey(ctx context.Context, publicKey string) (*core.User, error) {
	user, err := m.store.FindByPublicKey(ctx, publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up wallet binding: %w", err)
	}
	return user, nil
}

// IsWalletLinked reports whether any record is bound to publicKey.
func (m *LinkingManager) IsWalletLinked(ctx context.Context, publicKey string) (bool, error) {
	user, err := m.GetUserByPublicKey(ctx, publicKey)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// publishLinked emits the wallet-linked event. Publishing is
// best-effort: the binding is already durable in the store.
func (m *LinkingManager) publishLinked(ctx context.Context, publicKey, userID string) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishWalletLinked(ctx, publicKey, userID); err != nil {
		m.log.Warn("failed to publish wallet linked event", "user_id", userID, "error", err)
	}
}
