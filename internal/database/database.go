package database

import (
	"reloop-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN (Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer, Supabase, Render).
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// AutoMigrate runs migrations for the core models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MainMaterial{},
		&models.Category{},
		&models.Material{},
		&models.TagGroup{},
		&models.Tag{},
		&models.TransactionRecord{},
		&models.Transaction{},
		&models.TransactionStatusHistory{},
		&models.OrganizationSetup{},
	)
}
