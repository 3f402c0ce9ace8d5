package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres raises 23P01 when an insert collides with the effective-window
// exclusion constraint.
const exclusionViolation = "23P01"

// Repository handles database operations for pricing config versions
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new pricing repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateVersion inserts a new config version. The insert fails with
// ErrOverlappingConfigs when the effective window overlaps an existing
// version. The pre-check gives concurrent writers a friendly error early;
// the effective-window exclusion constraint is what makes "exactly one
// active config per instant" a database guarantee.
func (r *Repository) CreateVersion(ctx context.Context, cfg *Config) error {
	oneWayJSON, err := json.Marshal(cfg.OneWay)
	if err != nil {
		return fmt.Errorf("failed to marshal one-way rates: %w", err)
	}
	roundtripJSON, err := json.Marshal(cfg.Roundtrip)
	if err != nil {
		return fmt.Errorf("failed to marshal roundtrip rates: %w", err)
	}
	hourlyJSON, err := json.Marshal(cfg.Hourly)
	if err != nil {
		return fmt.Errorf("failed to marshal hourly rates: %w", err)
	}
	surchargesJSON, err := json.Marshal(cfg.Surcharges)
	if err != nil {
		return fmt.Errorf("failed to marshal surcharge rates: %w", err)
	}
	discountsJSON, err := json.Marshal(cfg.Discounts)
	if err != nil {
		return fmt.Errorf("failed to marshal discount rates: %w", err)
	}
	taxesJSON, err := json.Marshal(cfg.Taxes)
	if err != nil {
		return fmt.Errorf("failed to marshal tax rates: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	overlapQuery := `
		SELECT EXISTS (
			SELECT 1 FROM pricing_config_versions
			WHERE effective_from < COALESCE($2::timestamptz, 'infinity'::timestamptz)
			  AND COALESCE(effective_to, 'infinity'::timestamptz) > $1
		)
	`
	var overlaps bool
	if err := tx.QueryRow(ctx, overlapQuery, cfg.EffectiveFrom, cfg.EffectiveTo).Scan(&overlaps); err != nil {
		return fmt.Errorf("failed to check config overlap: %w", err)
	}
	if overlaps {
		return ErrOverlappingConfigs
	}

	query := `
		INSERT INTO pricing_config_versions (
			id, version, one_way_rates, roundtrip_rates, hourly_rates,
			surcharge_rates, discount_rates, tax_rates, gratuity_rate,
			effective_from, effective_to, created_at
		)
		VALUES ($1, (SELECT COALESCE(MAX(version), 0) + 1 FROM pricing_config_versions),
		        $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING version, created_at
	`
	err = tx.QueryRow(ctx, query,
		cfg.ID, oneWayJSON, roundtripJSON, hourlyJSON,
		surchargesJSON, discountsJSON, taxesJSON, cfg.GratuityRate,
		cfg.EffectiveFrom, cfg.EffectiveTo,
	).Scan(&cfg.Version, &cfg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return ErrOverlappingConfigs
		}
		return fmt.Errorf("failed to insert pricing config version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pricing config version: %w", err)
	}
	return nil
}

// GetActiveAt returns the config version whose effective window contains the
// given instant. More than one covering row means the overlap invariant has
// been violated and the load fails with ErrOverlappingConfigs rather than
// silently picking a winner.
func (r *Repository) GetActiveAt(ctx context.Context, at time.Time) (*Config, error) {
	query := `
		SELECT id, version, one_way_rates, roundtrip_rates, hourly_rates,
		       surcharge_rates, discount_rates, tax_rates, gratuity_rate,
		       effective_from, effective_to, created_at
		FROM pricing_config_versions
		WHERE effective_from <= $1
		  AND (effective_to IS NULL OR effective_to > $1)
		ORDER BY effective_from DESC
	`
	rows, err := r.db.Query(ctx, query, at)
	if err != nil {
		return nil, fmt.Errorf("failed to get active pricing config: %w", err)
	}
	defer rows.Close()

	var covering []*Config
	for rows.Next() {
		cfg, err := r.scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pricing config: %w", err)
		}
		covering = append(covering, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get active pricing config: %w", err)
	}
	return activeAt(covering, at)
}

// GetByVersion returns a specific config version.
func (r *Repository) GetByVersion(ctx context.Context, version int) (*Config, error) {
	query := `
		SELECT id, version, one_way_rates, roundtrip_rates, hourly_rates,
		       surcharge_rates, discount_rates, tax_rates, gratuity_rate,
		       effective_from, effective_to, created_at
		FROM pricing_config_versions
		WHERE version = $1
	`
	cfg, err := r.scanConfig(r.db.QueryRow(ctx, query, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveConfig
		}
		return nil, fmt.Errorf("failed to get pricing config version %d: %w", version, err)
	}
	return cfg, nil
}

// ListVersions returns all config versions, newest first.
func (r *Repository) ListVersions(ctx context.Context) ([]*Config, error) {
	query := `
		SELECT id, version, one_way_rates, roundtrip_rates, hourly_rates,
		       surcharge_rates, discount_rates, tax_rates, gratuity_rate,
		       effective_from, effective_to, created_at
		FROM pricing_config_versions
		ORDER BY version DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing config versions: %w", err)
	}
	defer rows.Close()

	configs := make([]*Config, 0)
	for rows.Next() {
		cfg, err := r.scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pricing config version: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// EnsureDefault seeds the initial config version when the table is empty so
// a fresh deployment can quote immediately.
func (r *Repository) EnsureDefault(ctx context.Context) (*Config, error) {
	cfg, err := r.GetActiveAt(ctx, time.Now())
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrNoActiveConfig) {
		return nil, err
	}

	seed := DefaultConfig
	seed.ID = uuid.New()
	seed.EffectiveFrom = time.Now().UTC()
	if err := r.CreateVersion(ctx, &seed); err != nil {
		return nil, err
	}
	return &seed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanConfig(row rowScanner) (*Config, error) {
	cfg := &Config{}
	var oneWayJSON, roundtripJSON, hourlyJSON, surchargesJSON, discountsJSON, taxesJSON []byte

	err := row.Scan(
		&cfg.ID, &cfg.Version, &oneWayJSON, &roundtripJSON, &hourlyJSON,
		&surchargesJSON, &discountsJSON, &taxesJSON, &cfg.GratuityRate,
		&cfg.EffectiveFrom, &cfg.EffectiveTo, &cfg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(oneWayJSON, &cfg.OneWay); err != nil {
		return nil, fmt.Errorf("failed to unmarshal one-way rates: %w", err)
	}
	if err := json.Unmarshal(roundtripJSON, &cfg.Roundtrip); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roundtrip rates: %w", err)
	}
	if err := json.Unmarshal(hourlyJSON, &cfg.Hourly); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hourly rates: %w", err)
	}
	if err := json.Unmarshal(surchargesJSON, &cfg.Surcharges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal surcharge rates: %w", err)
	}
	if err := json.Unmarshal(discountsJSON, &cfg.Discounts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal discount rates: %w", err)
	}
	if err := json.Unmarshal(taxesJSON, &cfg.Taxes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tax rates: %w", err)
	}
	return cfg, nil
}
