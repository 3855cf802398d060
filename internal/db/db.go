package db

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dolphinpod/internal/config"
)

// Connect opens a GORM database connection using database.url (PostgreSQL URL)
// and migrates the schema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open opens the connection without touching the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.Database.URL)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
}

// Migrate creates or updates every table, including the usage log dedup
// index that ingestion relies on.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

// EnsureBootstrapAdmin makes sure there is at least one admin
// corresponding to the bootstrap credentials in config. If an admin with
// that username already exists, it is left as-is.
func EnsureBootstrapAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.Admin.User == "" || cfg.Admin.Password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&Admin{}).Where("username = ?", cfg.Admin.User).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return db.Create(&Admin{
		Username:     cfg.Admin.User,
		PasswordHash: string(hash),
	}).Error
}

// AuthenticateAdmin checks username/password against the stored bcrypt hash.
func AuthenticateAdmin(db *gorm.DB, username, password string) (*Admin, bool, error) {
	var admin Admin
	err := db.Where("username = ?", username).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return nil, false, nil
	}
	return &admin, true, nil
}
