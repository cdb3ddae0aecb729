package domain

import "context"

// CacheRepository is the device cache: simple key-value persistence for the
// purchaser info snapshot and the generated anonymous app user ID. Lookups
// that find nothing return nil (or "") with a nil error.
type CacheRepository interface {
	// PurchaserInfo returns the cached snapshot for the user, or nil.
	PurchaserInfo(ctx context.Context, appUserID string) (*PurchaserInfo, error)

	// SavePurchaserInfo persists the snapshot for the user.
	SavePurchaserInfo(ctx context.Context, appUserID string, info *PurchaserInfo) error

	// DeletePurchaserInfo removes the snapshot for the user.
	DeletePurchaserInfo(ctx context.Context, appUserID string) error

	// AppUserID returns the cached generated user ID, or "".
	AppUserID(ctx context.Context) (string, error)

	// SaveAppUserID persists a generated user ID.
	SaveAppUserID(ctx context.Context, appUserID string) error

	// DeleteAppUserID removes the cached generated user ID.
	DeleteAppUserID(ctx context.Context) error
}
