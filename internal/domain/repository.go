// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository stores the custom indicators a tenant layers on top of the
// built-in set. Every call is confined to one tenant; an empty tenantID is rejected.
type Repository interface {
	// SaveIndicator upserts by ID and keeps the original creation time.
	SaveIndicator(ctx context.Context, tenantID string, ind *Indicator) error

	// GetIndicator fails with the store's not-found error for unknown IDs.
	GetIndicator(ctx context.Context, tenantID string, id string) (*Indicator, error)

	// ListIndicators returns the tenant's indicators in evaluation order.
	ListIndicators(ctx context.Context, tenantID string) ([]*Indicator, error)

	DeleteIndicator(ctx context.Context, tenantID string, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig selects the indicator store. Driver is "sqlite" for the
// community tier or "postgres" for pro; only the matching fields are read.
type RepositoryConfig struct {
	Driver string `json:"driver"`

	SQLitePath string `json:"sqlitePath"`

	PostgresHost     string `json:"postgresHost"`
	PostgresPort     int    `json:"postgresPort"`
	PostgresUser     string `json:"postgresUser"`
	PostgresPassword string `json:"-"`
	PostgresDB       string `json:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode"` // disable when empty

	// Zero leaves the database/sql default in place.
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}
