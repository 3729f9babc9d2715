package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"facturas/models"
)

// MinPasswordLen is the only password policy.
const MinPasswordLen = 6

// RegisterUser creates a regular user.
func (s *Store) RegisterUser(ctx context.Context, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, eris.New("username required")
	}
	if len(password) < MinPasswordLen {
		return models.User{}, eris.Errorf("password too short (min %d)", MinPasswordLen)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, eris.Wrap(err, "store: hash password")
	}
	role, err := s.role(ctx, models.RoleUser)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{Username: username, HashedPassword: hashed, RoleID: &role.ID, Role: role}
	if err := s.db.WithContext(ctx).Omit("Role").Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, eris.Wrap(err, "store: create user")
	}
	return user, nil
}

// Authenticate checks the password of username.
func (s *Store) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.UserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UserByUsername loads a user with its role.
func (s *Store) UserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Role").Where("username = ?", username).First(&user).Error; err != nil {
		return models.User{}, notFound(err, "store: user by username")
	}
	return user, nil
}

// UserByID loads a user with its role.
func (s *Store) UserByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Role").First(&user, id).Error; err != nil {
		return models.User{}, notFound(err, "store: user by id")
	}
	return user, nil
}

// SetPassword replaces the password of username.
func (s *Store) SetPassword(ctx context.Context, username, password string) error {
	if len(password) < MinPasswordLen {
		return eris.Errorf("password too short (min %d)", MinPasswordLen)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return eris.Wrap(err, "store: hash password")
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Update("hashed_password", hashed)
	if res.Error != nil {
		return eris.Wrap(res.Error, "store: update password")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// newToken returns 32 random bytes, hex encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", eris.Wrap(err, "store: random token")
	}
	return hex.EncodeToString(b), nil
}

// CreateRefreshToken stores the hash of a fresh random token and returns
// the raw token.
func (s *Store) CreateRefreshToken(ctx context.Context, userID uint, ttl time.Duration) (string, error) {
	raw, err := newToken()
	if err != nil {
		return "", err
	}
	rt := models.RefreshToken{UserID: userID, TokenHash: hashToken(raw), ExpiresAt: time.Now().Add(ttl)}
	if err := s.db.WithContext(ctx).Create(&rt).Error; err != nil {
		return "", eris.Wrap(err, "store: create refresh token")
	}
	return raw, nil
}

// RotateRefreshToken revokes raw and issues a replacement for the same user.
// Unknown, revoked and expired tokens return ErrInvalidCredentials.
func (s *Store) RotateRefreshToken(ctx context.Context, raw string, ttl time.Duration) (models.User, string, error) {
	var (
		user  models.User
		fresh string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rt models.RefreshToken
		if err := tx.Where("token_hash = ?", hashToken(raw)).First(&rt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCredentials
			}
			return eris.Wrap(err, "store: find refresh token")
		}
		if !rt.Usable(time.Now()) {
			return ErrInvalidCredentials
		}
		res := tx.Model(&models.RefreshToken{}).Where("id = ? AND revoked = ?", rt.ID, false).Update("revoked", true)
		if res.Error != nil {
			return eris.Wrap(res.Error, "store: revoke refresh token")
		}
		if res.RowsAffected == 0 {
			return ErrInvalidCredentials
		}
		if err := tx.Preload("Role").First(&user, rt.UserID).Error; err != nil {
			return notFound(err, "store: refresh token user")
		}
		var err error
		if fresh, err = newToken(); err != nil {
			return err
		}
		next := models.RefreshToken{UserID: user.ID, TokenHash: hashToken(fresh), ExpiresAt: time.Now().Add(ttl)}
		return eris.Wrap(tx.Create(&next).Error, "store: create refresh token")
	})
	if err != nil {
		return models.User{}, "", err
	}
	return user, fresh, nil
}

// RevokeRefreshToken marks raw as revoked.
func (s *Store) RevokeRefreshToken(ctx context.Context, raw string) error {
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", hashToken(raw)).Update("revoked", true)
	if res.Error != nil {
		return eris.Wrap(res.Error, "store: revoke refresh token")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRole moves a user to the named role.
func (s *Store) SetRole(ctx context.Context, userID uint, name string) error {
	role, err := s.role(ctx, name)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("role_id", role.ID)
	if res.Error != nil {
		return eris.Wrap(res.Error, "store: set role")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
