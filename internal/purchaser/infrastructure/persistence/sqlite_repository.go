package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS purchaser_cache (
	app_user_id TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS device_identity (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	app_user_id TEXT NOT NULL
);
`

// SQLiteRepository implements domain.CacheRepository with SQLite.
type SQLiteRepository struct {
	dbConn *sql.DB
}

// NewSQLiteRepository creates the repository and ensures its schema.
func NewSQLiteRepository(dbConn *sql.DB) (*SQLiteRepository, error) {
	if _, err := dbConn.Exec(sqliteSchema); err != nil {
		return nil, err
	}
	return &SQLiteRepository{dbConn: dbConn}, nil
}

// PurchaserInfo returns the cached snapshot for the user, or nil.
func (r *SQLiteRepository) PurchaserInfo(ctx context.Context, appUserID string) (*domain.PurchaserInfo, error) {
	var payload string
	query := `SELECT payload FROM purchaser_cache WHERE app_user_id = ?`
	if err := r.dbConn.QueryRowContext(ctx, query, appUserID).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var info domain.PurchaserInfo
	if err := json.Unmarshal([]byte(payload), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SavePurchaserInfo persists the snapshot for the user.
func (r *SQLiteRepository) SavePurchaserInfo(ctx context.Context, appUserID string, info *domain.PurchaserInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO purchaser_cache (app_user_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (app_user_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`
	_, err = r.dbConn.ExecContext(ctx, query, appUserID, string(payload), time.Now().UTC().Format(time.RFC3339))
	return err
}

// DeletePurchaserInfo removes the snapshot for the user.
func (r *SQLiteRepository) DeletePurchaserInfo(ctx context.Context, appUserID string) error {
	_, err := r.dbConn.ExecContext(ctx, `DELETE FROM purchaser_cache WHERE app_user_id = ?`, appUserID)
	return err
}

// AppUserID returns the cached generated user ID, or "".
func (r *SQLiteRepository) AppUserID(ctx context.Context) (string, error) {
	var appUserID string
	query := `SELECT app_user_id FROM device_identity WHERE id = 1`
	if err := r.dbConn.QueryRowContext(ctx, query).Scan(&appUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return appUserID, nil
}

// SaveAppUserID persists a generated user ID.
func (r *SQLiteRepository) SaveAppUserID(ctx context.Context, appUserID string) error {
	query := `
		INSERT INTO device_identity (id, app_user_id)
		VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET app_user_id = excluded.app_user_id
	`
	_, err := r.dbConn.ExecContext(ctx, query, appUserID)
	return err
}

// DeleteAppUserID removes the cached generated user ID.
func (r *SQLiteRepository) DeleteAppUserID(ctx context.Context) error {
	_, err := r.dbConn.ExecContext(ctx, `DELETE FROM device_identity WHERE id = 1`)
	return err
}
