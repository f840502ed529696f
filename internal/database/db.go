package database

import (
	"portal/internal/logging"
	"portal/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate core models
	err = db.AutoMigrate(
		&model.Branch{},
		&model.Member{},
		&model.RefreshToken{},
		&model.Role{},
		&model.Permission{},
		&model.MemberRole{},
		&model.Activity{},
		&model.Authorization{},
		&model.AuthorizationApproval{},
		&model.AuditLog{},
	)
	if err != nil {
		logging.Warn("failed to auto-migrate models", zap.Error(err))
	}

	return db, nil
}
