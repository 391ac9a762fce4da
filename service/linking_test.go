package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	walletA = "4Nd1mY5wkhcfNkwUEwUriZNkhxMkRKyLnvvZye7Jq8rQ"
	walletB = "7cVfgArCheMR6Cs4t6vz5rfnqd56vZq4ndaBrY5xkxXy"
)

func newTestLinkingManager(t *testing.T) (*LinkingManager, *store.MemoryUserStore) {
	t.Helper()
	st := store.NewMemoryUserStore()
	return NewLinkingManager(st, nil, nil), st
}

func TestLinkOrCreateUserCreatesNewRecord(t *testing.T) {
	mgr, _ := newTestLinkingManager(t)
	ctx := context.Background()

	user, err := mgr.LinkOrCreateUser(ctx, core.LinkRequest{PublicKey: walletA, Email: "a@example.com"})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, walletA, user.WalletPublicKey)
	assert.Equal(t, "a@example.com", user.Email)
	require.NotNil(t, user.WalletConnectedAt)
	assert.WithinDuration(t, time.Now(), *user.WalletConnectedAt, 5*time.Second)
}

func TestLinkOrCreateUserIsIdempotent(t *testing.T) {
	mgr, _ := newTestLinkingManager(t)
	ctx := context.Background()

	first, err := mgr.LinkOrCreateUser(ctx, core.LinkRequest{PublicKey: walletA})
	require.NoError(t, err)

	second, err := mgr.LinkOrCreateUser(ctx, core.LinkRequest{PublicKey: walletA})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestLinkOrCreateUserLinksExistingByID(t *testing.T) {
	mgr, st := newTestLinkingManager(t)
	ctx := context.Background()

	existing, err := st.Create(ctx, &core.User{ID: uuid.NewString(), Email: "b@example.com"})
	require.NoError(t, err)

	user, err := mgr.LinkOrCreateUser(ctx, core.LinkRequest{
		PublicKey:      walletA,
		ExistingUserID: existing.ID,
		Metadata:       map[string]any{"source": "test"},
	})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, user.ID)
	assert.Equal(t, walletA, user.WalletPublicKey)
	assert.NotNil(t, user.WalletConnectedAt)
	assert.Equal(t, "test", user.Metadata["source"])
}

func TestLinkOrCreateUserUnknownID(t *testing.T) {
	mgr, _ := newTestLinkingManager(t)

	_, err := mgr.LinkOrCreateUser(context.Background(), core.LinkRequest{
		PublicKey:      walletA,
		ExistingUserID: "no-such-user",
	})
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestLinkOrCreateUserRejectsSecondWallet(t *testing.T) {
	mgr, _ := newTestLinkingManager(t)
	ctx := context.Background()

	first, err := mgr.LinkOrCreateUser(ctx, core.LinkRequest{PublicKey: walletA})
	require.NoError(t, err)

	_, err = mgr.LinkOrCreateUser(ctx, core.LinkRequest{
		PublicKey:      walletB,
		ExistingUserID: first.ID,
	})
	assert.ErrorIs(t, err, core.ErrWalletAlreadyLinked)
}

func TestLinkOrCreateUserLinksByEmail(t *testing.T) {
	mgr, st := newTestLinkingManager(t)
	ctx := context.Background()

	existing, err := st.Create(ctx, &core.User{ID: uuid.NewString(), Email: "c@example.com"})
	require.NoError(t, err)

	user, err := mgr.LinkOrCreateUser(ctx, core.LinkRequest{
		PublicKey: walletA,
		Email:     "c@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.Equal(t, walletA, user.WalletPublicKey)
}

func TestLinkOrCreateUserEmailAlreadyLinked(t *testing.T) {
	mgr, _ := newTestLinkingManager(t)
	ctx := context.Background()

	_, err := mgr.LinkOrCreateUser(ctx, core.LinkRequest{PublicKey: walletA, Email: "d@example.com"})
	require.NoError(t, err)

	_, err = mgr.LinkOrCreateUser(ctx, core.LinkRequest{PublicKey: walletB, Email: "d@example.com"})
	assert.ErrorIs(t, err, core.ErrEmailAlreadyLinked)
}

func TestUnlinkWallet(t *testing.T) {
	mgr, _ := newTestLinkingManager(t)
	ctx := context.Background()

	user, err := mgr.LinkOrCreateUser(ctx, core.LinkRequest{PublicKey: walletA})
	require.NoError(t, err)

	unlinked, err := mgr.UnlinkWallet(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, unlinked.WalletPublicKey)
	assert.Nil(t, unlinked.WalletConnectedAt)

	linked, err := mgr.IsWalletLinked(ctx, walletA)
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestUnlinkWalletUnknownUser(t *testing.T) {
	mgr, _ := newTestLinkingManager(t)

	_, err := mgr.UnlinkWallet(context.Background(), "no-such-user")
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestGetUserByPublicKey(t *testing.T) {
	mgr, _ := newTestLinkingManager(t)
	ctx := context.Background()

	missing, err := mgr.GetUserByPublicKey(ctx, walletA)
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := mgr.LinkOrCreateUser(ctx, core.LinkRequest{PublicKey: walletA})
	require.NoError(t, err)

	found, err := mgr.GetUserByPublicKey(ctx, walletA)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
}

// conflictingUserStore simulates two concurrent requests racing on the
// same public key: the store reports "not found" until Create fails
// with a uniqueness conflict, after which the winner's record appears.
type conflictingUserStore struct {
	ports.UserStore
	winner   *core.User
	conflict bool
}

func (s *conflictingUserStore) FindByPublicKey(ctx context.Context, publicKey string) (*core.User, error) {
	if s.conflict {
		return s.winner, nil
	}
	return nil, nil
}

func (s *conflictingUserStore) FindByEmail(ctx context.Context, email string) (*core.User, error) {
	return nil, nil
}

func (s *conflictingUserStore) Create(ctx context.Context, user *core.User) (*core.User, error) {
	s.conflict = true
	return nil, core.ErrConflict
}

func TestLinkOrCreateUserRetriesAfterConflict(t *testing.T) {
	winner := &core.User{ID: uuid.NewString(), WalletPublicKey: walletA}
	st := &conflictingUserStore{winner: winner}
	mgr := NewLinkingManager(st, nil, nil)

	user, err := mgr.LinkOrCreateUser(context.Background(), core.LinkRequest{PublicKey: walletA})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, user.ID)
}
