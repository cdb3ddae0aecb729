package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements domain.CacheRepository with PostgreSQL.
// It exists for server-side deployments sharing one cache across processes.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates the repository and ensures its schema.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool) (*PostgresRepository, error) {
	schema := `
		CREATE TABLE IF NOT EXISTS purchaser_cache (
			app_user_id TEXT PRIMARY KEY,
			payload     JSONB NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS device_identity (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			app_user_id TEXT NOT NULL
		)
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, err
	}
	return &PostgresRepository{pool: pool}, nil
}

// PurchaserInfo returns the cached snapshot for the user, or nil.
func (r *PostgresRepository) PurchaserInfo(ctx context.Context, appUserID string) (*domain.PurchaserInfo, error) {
	var payload []byte
	query := `SELECT payload FROM purchaser_cache WHERE app_user_id = $1`
	if err := r.pool.QueryRow(ctx, query, appUserID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var info domain.PurchaserInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SavePurchaserInfo persists the snapshot for the user.
func (r *PostgresRepository) SavePurchaserInfo(ctx context.Context, appUserID string, info *domain.PurchaserInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO purchaser_cache (app_user_id, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (app_user_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`
	_, err = r.pool.Exec(ctx, query, appUserID, payload)
	return err
}

// DeletePurchaserInfo removes the snapshot for the user.
func (r *PostgresRepository) DeletePurchaserInfo(ctx context.Context, appUserID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM purchaser_cache WHERE app_user_id = $1`, appUserID)
	return err
}

// AppUserID returns the cached generated user ID, or "".
func (r *PostgresRepository) AppUserID(ctx context.Context) (string, error) {
	var appUserID string
	query := `SELECT app_user_id FROM device_identity WHERE id = 1`
	if err := r.pool.QueryRow(ctx, query).Scan(&appUserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return appUserID, nil
}

// SaveAppUserID persists a generated user ID.
func (r *PostgresRepository) SaveAppUserID(ctx context.Context, appUserID string) error {
	query := `
		INSERT INTO device_identity (id, app_user_id)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET app_user_id = EXCLUDED.app_user_id
	`
	_, err := r.pool.Exec(ctx, query, appUserID)
	return err
}

// DeleteAppUserID removes the cached generated user ID.
func (r *PostgresRepository) DeleteAppUserID(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM device_identity WHERE id = 1`)
	return err
}
