// Package repository persists farmer profiles and operator fraud rules.
// Scoring results are never stored.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/shamba/internal/domain"
)

// ErrNotFound is returned when a farmer or rule does not exist.
var ErrNotFound = errors.New("record not found")

// DefaultListLimit caps ListFarmers when no limit is given.
const DefaultListLimit = 100

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := repo.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// SaveFarmer inserts or updates a profile keyed by normalized phone.
// CreatedAt is preserved on update.
func (r *SQLRepository) SaveFarmer(ctx context.Context, farmer *domain.Farmer) error {
	if farmer == nil {
		return fmt.Errorf("%w: farmer is required", domain.ErrInvalidInput)
	}
	if err := farmer.Validate(); err != nil {
		return err
	}

	farmer.Phone = domain.NormalizeIdentity(farmer.Phone)
	farmer.CropType = domain.NormalizeCrop(farmer.CropType)

	now := r.now()
	if farmer.CreatedAt.IsZero() {
		farmer.CreatedAt = now
	}
	farmer.UpdatedAt = now

	query := `
		INSERT INTO farmers (
			phone, name, latitude, longitude, crop_type, farm_size_acres, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			crop_type = excluded.crop_type,
			farm_size_acres = excluded.farm_size_acres,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		farmer.Phone, farmer.Name,
		farmer.Location.Latitude, farmer.Location.Longitude,
		farmer.CropType, farmer.FarmSizeAcres,
		farmer.CreatedAt, farmer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save farmer %s: %w", farmer.Phone, err)
	}
	return nil
}

// GetFarmer retrieves a profile by phone. The phone is normalized first.
func (r *SQLRepository) GetFarmer(ctx context.Context, phone string) (*domain.Farmer, error) {
	phone = domain.NormalizeIdentity(phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT phone, name, latitude, longitude, crop_type, farm_size_acres, created_at, updated_at
		FROM farmers
		WHERE phone = ?
	`

	f, err := scanFarmer(r.db.QueryRowContext(ctx, r.rebind(query), phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListFarmers returns up to limit profiles ordered by phone.
func (r *SQLRepository) ListFarmers(ctx context.Context, limit int) ([]*domain.Farmer, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT phone, name, latitude, longitude, crop_type, farm_size_acres, created_at, updated_at
		FROM farmers
		ORDER BY phone
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var farmers []*domain.Farmer
	for rows.Next() {
		f, err := scanFarmer(rows)
		if err != nil {
			return nil, err
		}
		farmers = append(farmers, f)
	}
	return farmers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFarmer(row rowScanner) (*domain.Farmer, error) {
	var f domain.Farmer
	err := row.Scan(
		&f.Phone, &f.Name,
		&f.Location.Latitude, &f.Location.Longitude,
		&f.CropType, &f.FarmSizeAcres,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// SaveFraudRule inserts or replaces an operator rule by ID.
func (r *SQLRepository) SaveFraudRule(ctx context.Context, rule *domain.FraudRuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}
	if rule.Builtin {
		return fmt.Errorf("%w: built-in rules are not stored", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	version := rule.Version
	if version == "" {
		version = "1.0.0"
	}

	now := r.now()

	query := `
		INSERT INTO fraud_rules (
			id, name, description, version, expression, penalty, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			penalty = excluded.penalty,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, version,
		rule.Expression, rule.Penalty, enabled,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("save fraud rule %s: %w", rule.ID, err)
	}
	return nil
}

// ListFraudRules returns all stored rules ordered by ID, enabled or not.
func (r *SQLRepository) ListFraudRules(ctx context.Context) ([]*domain.FraudRuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, penalty, enabled
		FROM fraud_rules
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.FraudRuleConfig
	for rows.Next() {
		var rule domain.FraudRuleConfig
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Version,
			&rule.Expression, &rule.Penalty, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
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
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
