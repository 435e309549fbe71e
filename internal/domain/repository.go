// Package domain defines the core interfaces and types for Shamba.
package domain

import (
	"context"
	"time"
)

// Repository persists farmer profiles and operator fraud rules. Scores are
// computed on demand and never stored.
type Repository interface {
	// Farmers are keyed by normalized phone number.
	SaveFarmer(ctx context.Context, farmer *Farmer) error
	GetFarmer(ctx context.Context, phone string) (*Farmer, error)
	ListFarmers(ctx context.Context, limit int) ([]*Farmer, error)

	SaveFraudRule(ctx context.Context, rule *FraudRuleConfig) error
	ListFraudRules(ctx context.Context) ([]*FraudRuleConfig, error)

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
