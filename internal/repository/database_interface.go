package repository

import (
	"context"

	"gorm.io/gorm"
)

// DatabaseProvider hides which SQL engine backs the repositories
type DatabaseProvider interface {
	GetDB() *gorm.DB
	Name() string
	Migrate(models ...interface{}) error
	Close() error
	Ping(ctx context.Context) error
}

type gormProvider struct {
	db *gorm.DB
}

func (p *gormProvider) GetDB() *gorm.DB {
	return p.db
}

func (p *gormProvider) Migrate(models ...interface{}) error {
	return p.db.AutoMigrate(models...)
}

func (p *gormProvider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *gormProvider) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SQLiteProvider implements DatabaseProvider for SQLite (pure Go driver)
type SQLiteProvider struct {
	gormProvider
}

func (p *SQLiteProvider) Name() string { return "sqlite" }

// PostgreSQLProvider implements DatabaseProvider for PostgreSQL
type PostgreSQLProvider struct {
	gormProvider
}

func (p *PostgreSQLProvider) Name() string { return "postgres" }

// NewProvider wraps an already opened connection
func NewProvider(db *gorm.DB) DatabaseProvider {
	if db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return &PostgreSQLProvider{gormProvider{db: db}}
	}
	return &SQLiteProvider{gormProvider{db: db}}
}
