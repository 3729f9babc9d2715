// Package store persists users, refresh tokens and scan history in postgres
// through gorm.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"facturas/models"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned when registering a taken username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials hides whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Store wraps the gorm handle.
type Store struct {
	db *gorm.DB
}

// Open connects to postgres.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, eris.New("store: empty dsn")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return eris.Wrap(err, "store: sql handle")
	}
	return sqlDB.Close()
}

// Migrate creates or updates the tables one model at a time so a failure on
// one (usually permissions) does not block the others. Failures are logged.
func (s *Store) Migrate(ctx context.Context) {
	db := s.db.WithContext(ctx)
	// roles first: users carry a FK to them
	for _, m := range []struct {
		table string
		model any
	}{
		{"roles", &models.Role{}},
		{"users", &models.User{}},
		{"refresh_tokens", &models.RefreshToken{}},
		{"scans", &models.Scan{}},
	} {
		if err := db.AutoMigrate(m.model); err != nil {
			zap.L().Warn("migration warning", zap.String("table", m.table), zap.Error(err))
		}
	}
}

// Seed makes sure the master roles exist and creates the admin account with
// adminPassword when it is missing. An empty password skips the admin.
func (s *Store) Seed(ctx context.Context, adminPassword string) error {
	db := s.db.WithContext(ctx)
	for _, r := range models.DefaultRoles() {
		if err := db.Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return eris.Wrapf(err, "store: seed role %s", r.Name)
		}
	}
	if adminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", "admin").Count(&count).Error; err != nil {
		return eris.Wrap(err, "store: count admin")
	}
	if count > 0 {
		return nil
	}
	role, err := s.role(ctx, models.RoleAdministrator)
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return eris.Wrap(err, "store: hash admin password")
	}
	admin := models.User{Username: "admin", HashedPassword: hashed, RoleID: &role.ID}
	if err := db.Create(&admin).Error; err != nil {
		return eris.Wrap(err, "store: create admin")
	}
	zap.L().Info("seeded admin user", zap.String("username", admin.Username))
	return nil
}

func (s *Store) role(ctx context.Context, name string) (models.Role, error) {
	var role models.Role
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		role = models.Role{Name: name}
		err = s.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&role).Error
	}
	if err != nil {
		return models.Role{}, eris.Wrapf(err, "store: role %s", name)
	}
	return role, nil
}

// notFound maps gorm's sentinel onto ErrNotFound.
func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return eris.Wrap(err, msg)
}
