// Package persistence provides device cache implementations for the
// purchaser info snapshot and the generated app user ID.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
)

type cacheFile struct {
	AppUserID     string                           `json:"app_user_id,omitempty"`
	PurchaserInfo map[string]*domain.PurchaserInfo `json:"purchaser_info,omitempty"`
}

// FileRepository implements domain.CacheRepository using a single JSON file.
// It is the default device cache backend.
type FileRepository struct {
	filePath string
	mu       sync.RWMutex
}

// NewFileRepository creates a file-based device cache.
func NewFileRepository(filePath string) *FileRepository {
	return &FileRepository{filePath: filePath}
}

// PurchaserInfo returns the cached snapshot for the user, or nil.
func (r *FileRepository) PurchaserInfo(ctx context.Context, appUserID string) (*domain.PurchaserInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cache, err := r.load()
	if err != nil {
		return nil, err
	}
	return cache.PurchaserInfo[appUserID], nil
}

// SavePurchaserInfo persists the snapshot for the user.
func (r *FileRepository) SavePurchaserInfo(ctx context.Context, appUserID string, info *domain.PurchaserInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.update(func(cache *cacheFile) {
		if cache.PurchaserInfo == nil {
			cache.PurchaserInfo = make(map[string]*domain.PurchaserInfo)
		}
		cache.PurchaserInfo[appUserID] = info
	})
}

// DeletePurchaserInfo removes the snapshot for the user.
func (r *FileRepository) DeletePurchaserInfo(ctx context.Context, appUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.update(func(cache *cacheFile) {
		delete(cache.PurchaserInfo, appUserID)
	})
}

// AppUserID returns the cached generated user ID, or "".
func (r *FileRepository) AppUserID(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cache, err := r.load()
	if err != nil {
		return "", err
	}
	return cache.AppUserID, nil
}

// SaveAppUserID persists a generated user ID.
func (r *FileRepository) SaveAppUserID(ctx context.Context, appUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.update(func(cache *cacheFile) {
		cache.AppUserID = appUserID
	})
}

// DeleteAppUserID removes the cached generated user ID.
func (r *FileRepository) DeleteAppUserID(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.update(func(cache *cacheFile) {
		cache.AppUserID = ""
	})
}

func (r *FileRepository) load() (*cacheFile, error) {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cacheFile{}, nil
		}
		return nil, err
	}

	var cache cacheFile
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func (r *FileRepository) update(mutate func(cache *cacheFile)) error {
	cache, err := r.load()
	if err != nil {
		return err
	}
	mutate(cache)

	if err := os.MkdirAll(filepath.Dir(r.filePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}

	// Restrictive permissions: the cache carries entitlement state.
	return os.WriteFile(r.filePath, data, 0600)
}
