// Package repository persists custom risk indicators in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var (
		dsn string
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		dsn, err = sqliteDSN(cfg.SQLitePath)
	case "postgres":
		dsn = postgresDSN(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	db, err := open(cfg, dsn)
	if err != nil {
		return nil, err
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.Driver, err)
	}
	return repo, nil
}

const openTimeout = 10 * time.Second

// open applies the pool settings and verifies the connection.
func open(cfg domain.RepositoryConfig, dsn string) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	// A private in-memory database exists only on its one connection.
	if cfg.Driver == "sqlite" && cfg.SQLitePath == memoryPath {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

func (r *SQLRepository) migrate() error {
	for i, stmt := range migrations {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// SaveIndicator inserts or replaces an indicator. CreatedAt is preserved on update.
func (r *SQLRepository) SaveIndicator(ctx context.Context, tenantID string, ind *domain.Indicator) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if ind == nil || strings.TrimSpace(ind.ID) == "" {
		return fmt.Errorf("%w: indicator id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(ind.Label) == "" || strings.TrimSpace(ind.Expression) == "" {
		return fmt.Errorf("%w: label and expression are required", ErrInvalidInput)
	}

	now := r.now()
	enabled := 0
	if ind.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO indicators (
			id, tenant_id, label, description, expression, position, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			label = excluded.label,
			description = excluded.description,
			expression = excluded.expression,
			position = excluded.position,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		ind.ID, tenantID, ind.Label, ind.Description, ind.Expression,
		ind.Position, enabled, now, now,
	)
	if err != nil {
		return fmt.Errorf("save indicator %s: %w", ind.ID, err)
	}

	ind.TenantID = tenantID
	if ind.CreatedAt.IsZero() {
		ind.CreatedAt = now
	}
	ind.UpdatedAt = now
	return nil
}

// GetIndicator retrieves an indicator by ID with tenant isolation.
func (r *SQLRepository) GetIndicator(ctx context.Context, tenantID string, id string) (*domain.Indicator, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, label, description, expression, position, enabled, created_at, updated_at
		FROM indicators
		WHERE tenant_id = ? AND id = ?
	`

	ind, err := scanIndicator(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ind, nil
}

// ListIndicators returns the tenant's indicators ordered by position, then ID.
// Disabled indicators are included.
func (r *SQLRepository) ListIndicators(ctx context.Context, tenantID string) ([]*domain.Indicator, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, label, description, expression, position, enabled, created_at, updated_at
		FROM indicators
		WHERE tenant_id = ?
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indicators := []*domain.Indicator{}
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, ind)
	}

	return indicators, rows.Err()
}

// DeleteIndicator removes an indicator.
func (r *SQLRepository) DeleteIndicator(ctx context.Context, tenantID string, id string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM indicators WHERE tenant_id = ? AND id = ?`), tenantID, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndicator(row rowScanner) (*domain.Indicator, error) {
	var ind domain.Indicator
	var enabled int
	if err := row.Scan(
		&ind.ID, &ind.TenantID, &ind.Label, &ind.Description, &ind.Expression,
		&ind.Position, &enabled, &ind.CreatedAt, &ind.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ind.Enabled = enabled == 1
	return &ind, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
		n++
	}
	return b.String()
}
