package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// userModel is the relational shape of a user record. The unique index
// on wallet_public_key is the storage-layer authority for the
// one-record-per-wallet invariant; NULLs do not collide, so unlinked
// records coexist freely.
type userModel struct {
	ID                string  `gorm:"type:uuid;primaryKey"`
	WalletPublicKey   *string `gorm:"type:text;uniqueIndex"`
	Email             *string `gorm:"type:text;uniqueIndex"`
	WalletConnectedAt *time.Time
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime"`
}

func (userModel) TableName() string { return "wallet_users" }

// sessionModel is the relational shape of a session. Expiry is still
// evaluated at read time by the manager; the expires_at index only
// serves the bulk sweep.
type sessionModel struct {
	ID        string `gorm:"type:text;primaryKey"`
	PublicKey string `gorm:"type:text;not null;index"`
	UserID    string `gorm:"type:text"`
	CreatedAt time.Time
	ExpiresAt time.Time         `gorm:"index"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
}

func (sessionModel) TableName() string { return "wallet_sessions" }

// OpenPostgres establishes a PostgreSQL-backed GORM session with the
// wallet auth schema migrated. TranslateError is required so unique
// violations surface as gorm.ErrDuplicatedKey.
func OpenPostgres(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := db.WithContext(ctx).AutoMigrate(&userModel{}, &sessionModel{}); err != nil {
		return nil, err
	}
	return db, nil
}

// GormUserStore is a relational implementation of the user store.
type GormUserStore struct {
	db *gorm.DB
}

var _ ports.UserStore = (*GormUserStore)(nil)

// NewGormUserStore creates a user store on an open GORM handle.
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) FindByPublicKey(ctx context.Context, publicKey string) (*core.User, error) {
	return s.findOne(ctx, "wallet_public_key = ?", publicKey)
}

func (s *GormUserStore) FindByUserID(ctx context.Context, id string) (*core.User, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *GormUserStore) FindByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.findOne(ctx, "email = ?", email)
}

func (s *GormUserStore) findOne(ctx context.Context, query string, arg any) (*core.User, error) {
	var model userModel
	err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return userFromModel(&model), nil
}

func (s *GormUserStore) Create(ctx context.Context, user *core.User) (*core.User, error) {
	model := userToModel(user)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, core.ErrConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return userFromModel(model), nil
}

func (s *GormUserStore) Update(ctx context.Context, id string, update core.UserUpdate) (*core.User, error) {
	var model userModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrUserNotFound
			}
			return err
		}

		if update.WalletPublicKey != nil {
			model.WalletPublicKey = nullable(*update.WalletPublicKey)
		}
		if update.WalletConnectedAt != nil {
			if update.WalletConnectedAt.IsZero() {
				model.WalletConnectedAt = nil
			} else {
				t := *update.WalletConnectedAt
				model.WalletConnectedAt = &t
			}
		}
		if update.Email != nil {
			model.Email = nullable(*update.Email)
		}
		if len(update.Metadata) > 0 {
			if model.Metadata == nil {
				model.Metadata = datatypes.JSONMap{}
			}
			for k, v := range update.Metadata {
				model.Metadata[k] = v
			}
		}

		return tx.Save(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, core.ErrConflict
		}
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return userFromModel(&model), nil
}

// GormSessionStore is a relational implementation of the session store.
type GormSessionStore struct {
	db *gorm.DB
}

var _ ports.SessionStore = (*GormSessionStore)(nil)

// NewGormSessionStore creates a session store on an open GORM handle.
func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) Set(ctx context.Context, id string, session *core.Session) error {
	model := sessionModel{
		ID:        id,
		PublicKey: session.PublicKey,
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
		Metadata:  datatypes.JSONMap(session.Metadata),
	}
	if err := s.db.WithContext(ctx).Save(&model).Error; err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *GormSessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	var model sessionModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &core.Session{
		ID:        model.ID,
		PublicKey: model.PublicKey,
		UserID:    model.UserID,
		CreatedAt: model.CreatedAt,
		ExpiresAt: model.ExpiresAt,
		Metadata:  map[string]any(model.Metadata),
	}, nil
}

func (s *GormSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&sessionModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Cleanup bulk-deletes sessions whose expiry has passed.
func (s *GormSessionStore) Cleanup(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Delete(&sessionModel{}, "expires_at <= ?", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return nil
}

func userToModel(user *core.User) *userModel {
	return &userModel{
		ID:                user.ID,
		WalletPublicKey:   nullable(user.WalletPublicKey),
		Email:             nullable(user.Email),
		WalletConnectedAt: user.WalletConnectedAt,
		Metadata:          datatypes.JSONMap(user.Metadata),
	}
}

func userFromModel(model *userModel) *core.User {
	user := &core.User{
		ID:                model.ID,
		WalletConnectedAt: model.WalletConnectedAt,
		Metadata:          map[string]any(model.Metadata),
	}
	if model.WalletPublicKey != nil {
		user.WalletPublicKey = *model.WalletPublicKey
	}
	if model.Email != nil {
		user.Email = *model.Email
	}
	return user
}

// nullable maps the empty string to NULL so unique indexes ignore
// unset values.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
