// Package application contains the purchase reconciliation core: it owns
// the app user identity, the cached purchaser info and its staleness
// policy, the pending-purchase registry and the receipt-posting flow tying
// the store's update stream to the backend gateway.
package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
	"github.com/felixgeelhaar/entitle/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/entitle/internal/store"
	"github.com/google/uuid"
)

// DefaultCacheRefreshPeriod is how long a purchaser info snapshot stays
// fresh before reads trigger a background refresh.
const DefaultCacheRefreshPeriod = time.Minute

// Backend is the gateway surface the core consumes.
type Backend interface {
	GetPurchaserInfo(appUserID string, completion domain.InfoCompletion)
	PostReceipt(token, appUserID, productID string, isRestore bool, completion domain.InfoCompletion)
	GetEntitlements(appUserID string, completion domain.EntitlementsCompletion)
	PostAttribution(appUserID string, network domain.AttributionNetwork, data map[string]any)
	CreateAlias(appUserID, newAppUserID string, completion func(err error))
	Close()
}

// Store is the billing connection manager surface the core consumes.
type Store interface {
	SetListener(listener store.UpdatedListener)
	QueryProductDetailsAsync(productType domain.ProductType, productIDs []string, onReceive domain.ProductDetailsCompletion)
	MakePurchaseAsync(params store.PurchaseParams)
	QueryPurchaseHistoryAsync(productType domain.ProductType, onReceive func(purchases []domain.Purchase), onError func(responseCode int, message string))
	ConsumePurchase(token string)
}

// Config configures a Client.
type Config struct {
	// APIKey authenticates against the backend. Must not be blank.
	APIKey string
	// AppUserID is the caller-supplied identity. Empty means anonymous: a
	// generated identity is cached and account sharing is allowed.
	AppUserID string
	// AllowSharingStoreAccount treats purchases as restores, merging
	// identities that share a store account. Forced true for anonymous
	// identities.
	AllowSharingStoreAccount bool
	// CacheRefreshPeriod overrides DefaultCacheRefreshPeriod when positive.
	CacheRefreshPeriod time.Duration

	Backend   Backend
	Store     Store
	Cache     domain.CacheRepository
	Publisher eventbus.Publisher
	Logger    *slog.Logger
}

// Client is the reconciliation core. Construct exactly one per identity
// scope with New and pass it by reference; there is no package-level
// instance.
type Client struct {
	backend       Backend
	store         Store
	cache         domain.CacheRepository
	publisher     eventbus.Publisher
	logger        *slog.Logger
	refreshPeriod time.Duration
	now           func() time.Time

	mu                  sync.Mutex
	appUserID           string
	allowSharing        bool
	cachesLastUpdated   time.Time
	cachedEntitlements  map[string]*domain.Entitlement
	purchaseCallbacks   map[string]domain.PurchaseCompletion
	updatedInfoListener func(info *domain.PurchaserInfo)
	lastSentInfo        *domain.PurchaserInfo
}

// New validates the configuration, resolves the active identity and
// triggers the initial cache refresh. Configuration errors are fatal and
// returned synchronously.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.ErrMissingAPIKey
	}
	if cfg.Backend == nil {
		return nil, domain.ErrMissingBackend
	}
	if cfg.Store == nil {
		return nil, domain.ErrMissingStore
	}
	if cfg.Cache == nil {
		return nil, domain.ErrMissingCache
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	refreshPeriod := cfg.CacheRefreshPeriod
	if refreshPeriod <= 0 {
		refreshPeriod = DefaultCacheRefreshPeriod
	}

	c := &Client{
		backend:           cfg.Backend,
		store:             cfg.Store,
		cache:             cfg.Cache,
		publisher:         cfg.Publisher,
		logger:            logger,
		refreshPeriod:     refreshPeriod,
		now:               time.Now,
		allowSharing:      cfg.AllowSharingStoreAccount,
		purchaseCallbacks: make(map[string]domain.PurchaseCompletion),
	}

	if cfg.AppUserID != "" {
		c.appUserID = cfg.AppUserID
	} else {
		c.appUserID = c.anonymousID()
		c.allowSharing = true
	}

	c.store.SetListener(c)
	c.updateCaches(nil)
	return c, nil
}

// AppUserID returns the active identity.
func (c *Client) AppUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appUserID
}

// AllowSharingStoreAccount reports whether purchases are posted as restores.
func (c *Client) AllowSharingStoreAccount() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowSharing
}

// SetAllowSharingStoreAccount toggles restore-style posting.
func (c *Client) SetAllowSharingStoreAccount(allow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowSharing = allow
}

// SetUpdatedInfoListener registers the process-wide purchaser info change
// listener. At most one is active; nil clears it.
func (c *Client) SetUpdatedInfoListener(listener func(info *domain.PurchaserInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updatedInfoListener = listener
}

// GetPurchaserInfo returns the cached snapshot immediately when one exists,
// refreshing it in the background if stale. Without a snapshot it fetches
// before completing.
func (c *Client) GetPurchaserInfo(completion domain.InfoCompletion) {
	c.mu.Lock()
	appUserID := c.appUserID
	stale := c.cachesAreStaleLocked()
	c.mu.Unlock()

	cached, err := c.cache.PurchaserInfo(context.Background(), appUserID)
	if err != nil {
		c.logger.Warn("device cache read failed", "error", err)
	}
	if cached != nil {
		completion(cached, nil)
		if stale {
			c.fetchAndCachePurchaserInfo(nil)
		}
		return
	}
	c.fetchAndCachePurchaserInfo(completion)
}

// GetEntitlements returns the in-memory entitlement cache immediately when
// populated, refreshing it in the background if stale. Offerings come back
// enriched with provider product metadata.
func (c *Client) GetEntitlements(completion domain.EntitlementsCompletion) {
	c.mu.Lock()
	cached := c.cachedEntitlements
	stale := c.cachesAreStaleLocked()
	c.mu.Unlock()

	if cached != nil {
		completion(cached, nil)
		if stale {
			c.fetchAndCacheEntitlements(nil)
		}
		return
	}
	c.fetchAndCacheEntitlements(completion)
}

// GetSubscriptionProducts fetches provider metadata for subscription
// products.
func (c *Client) GetSubscriptionProducts(productIDs []string, completion domain.ProductDetailsCompletion) {
	c.store.QueryProductDetailsAsync(domain.ProductTypeSubscription, productIDs, completion)
}

// GetNonSubscriptionProducts fetches provider metadata for one-time
// products.
func (c *Client) GetNonSubscriptionProducts(productIDs []string, completion domain.ProductDetailsCompletion) {
	c.store.QueryProductDetailsAsync(domain.ProductTypeInApp, productIDs, completion)
}

// MakePurchase launches a purchase flow. At most one purchase per product
// may be pending: a duplicate is rejected immediately with zero provider
// calls.
func (c *Client) MakePurchase(productID string, productType domain.ProductType, oldProductIDs []string, completion domain.PurchaseCompletion) {
	c.mu.Lock()
	if _, pending := c.purchaseCallbacks[productID]; pending {
		c.mu.Unlock()
		completion(productID, nil, domain.NewAPIError(domain.APIErrorDuplicatePurchase, "purchase already in progress for this product"))
		return
	}
	c.purchaseCallbacks[productID] = completion
	appUserID := c.appUserID
	c.mu.Unlock()

	c.store.MakePurchaseAsync(store.PurchaseParams{
		AccountID:     appUserID,
		ProductID:     productID,
		ProductType:   productType,
		OldProductIDs: oldProductIDs,
	})
}

// AddAttributionData posts attribution data from a supported network, fire
// and forget.
func (c *Client) AddAttributionData(data map[string]any, network domain.AttributionNetwork) {
	c.backend.PostAttribution(c.AppUserID(), network, data)
}

// AddAttributionStrings is a convenience wrapper over AddAttributionData.
func (c *Client) AddAttributionStrings(data map[string]string, network domain.AttributionNetwork) {
	converted := make(map[string]any, len(data))
	for key, value := range data {
		converted[key] = value
	}
	c.AddAttributionData(converted, network)
}

// CreateAlias links the current identity to newAppUserID server-side and,
// on success, continues the session under the linked identity.
func (c *Client) CreateAlias(newAppUserID string, completion domain.InfoCompletion) {
	c.backend.CreateAlias(c.AppUserID(), newAppUserID, func(err error) {
		if err != nil {
			if completion != nil {
				completion(nil, err)
			}
			return
		}
		c.Identify(newAppUserID, completion)
	})
}

// Identify switches the active identity. All caches for the old identity
// are cleared and pending purchase callbacks are failed explicitly; the
// completion fires once the fresh pull for the new identity resolves.
func (c *Client) Identify(newAppUserID string, completion domain.InfoCompletion) {
	c.switchIdentity(newAppUserID, false, completion)
}

// Reset behaves like Identify with a fresh generated identity and restores
// anonymous semantics (sharing allowed).
func (c *Client) Reset(completion domain.InfoCompletion) {
	c.switchIdentity(uuid.NewString(), true, completion)
}

// Close releases the client: pending purchase callbacks are dropped, the
// backend dispatcher closes and the store listener detaches.
func (c *Client) Close() {
	c.mu.Lock()
	c.purchaseCallbacks = make(map[string]domain.PurchaseCompletion)
	c.updatedInfoListener = nil
	c.mu.Unlock()

	c.backend.Close()
	c.store.SetListener(nil)
}

// OnPurchasesUpdated implements store.UpdatedListener: each completed
// purchase is posted as a receipt and reconciled.
func (c *Client) OnPurchasesUpdated(purchases []domain.Purchase) {
	c.mu.Lock()
	isRestore := c.allowSharing
	c.mu.Unlock()

	for _, purchase := range purchases {
		c.postPurchase(purchase, isRestore, func(productID string, info *domain.PurchaserInfo, err error) {
			callback := c.takePurchaseCallback(productID)
			if callback == nil {
				if err != nil {
					c.logger.Warn("purchase failed with no registered callback", "product_id", productID, "error", err)
				}
				return
			}
			callback(productID, info, err)
		})
	}
}

// OnPurchasesFailedToUpdate implements store.UpdatedListener: every
// matching pending callback fails with a store-domain error. Purchases
// without a callback are dropped.
func (c *Client) OnPurchasesFailedToUpdate(purchases []domain.Purchase, responseCode int, message string) {
	err := domain.NewStoreError(responseCode, message)
	for _, purchase := range purchases {
		callback := c.takePurchaseCallback(purchase.ProductID)
		if callback == nil {
			c.logger.Warn("dropping purchase failure with no registered callback", "product_id", purchase.ProductID, "response_code", responseCode)
			continue
		}
		callback(purchase.ProductID, nil, err)
	}
}

func (c *Client) switchIdentity(newAppUserID string, generated bool, completion domain.InfoCompletion) {
	c.mu.Lock()
	oldAppUserID := c.appUserID
	pending := c.purchaseCallbacks
	c.purchaseCallbacks = make(map[string]domain.PurchaseCompletion)
	c.appUserID = newAppUserID
	if generated {
		c.allowSharing = true
	}
	c.cachedEntitlements = nil
	c.cachesLastUpdated = time.Time{}
	c.lastSentInfo = nil
	c.mu.Unlock()

	ctx := context.Background()
	if err := c.cache.DeletePurchaserInfo(ctx, oldAppUserID); err != nil {
		c.logger.Warn("failed to clear cached purchaser info", "error", err)
	}
	if generated {
		if err := c.cache.SaveAppUserID(ctx, newAppUserID); err != nil {
			c.logger.Warn("failed to cache generated app user id", "error", err)
		}
	} else {
		if err := c.cache.DeleteAppUserID(ctx); err != nil {
			c.logger.Warn("failed to clear cached app user id", "error", err)
		}
	}

	identityErr := domain.NewAPIError(domain.APIErrorIdentityChanged, "pending purchase cancelled by identity change")
	for productID, callback := range pending {
		callback(productID, nil, identityErr)
	}

	c.updateCaches(completion)
}

func (c *Client) anonymousID() string {
	ctx := context.Background()
	cached, err := c.cache.AppUserID(ctx)
	if err != nil {
		c.logger.Warn("failed to read cached app user id", "error", err)
	}
	if cached != "" {
		return cached
	}

	generated := uuid.NewString()
	if err := c.cache.SaveAppUserID(ctx, generated); err != nil {
		c.logger.Warn("failed to cache generated app user id", "error", err)
	}
	return generated
}

func (c *Client) cachesAreStaleLocked() bool {
	return c.cachesLastUpdated.IsZero() || c.now().Sub(c.cachesLastUpdated) > c.refreshPeriod
}

func (c *Client) invalidateCaches() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachesLastUpdated = time.Time{}
}

func (c *Client) updateCaches(completion domain.InfoCompletion) {
	c.fetchAndCachePurchaserInfo(completion)
	c.fetchAndCacheEntitlements(nil)
}

func (c *Client) fetchAndCachePurchaserInfo(completion domain.InfoCompletion) {
	c.mu.Lock()
	appUserID := c.appUserID
	c.mu.Unlock()

	c.backend.GetPurchaserInfo(appUserID, func(info *domain.PurchaserInfo, err error) {
		if err != nil {
			c.logger.Error("error fetching subscriber data", "error", err)
			c.invalidateCaches()
			if completion != nil {
				completion(nil, err)
			}
			return
		}
		c.cachePurchaserInfo(appUserID, info)
		if completion != nil {
			completion(info, nil)
		}
	})
}

func (c *Client) fetchAndCacheEntitlements(completion domain.EntitlementsCompletion) {
	c.mu.Lock()
	appUserID := c.appUserID
	c.mu.Unlock()

	c.backend.GetEntitlements(appUserID, func(entitlements map[string]*domain.Entitlement, err error) {
		if err != nil {
			if completion != nil {
				var derr *domain.Error
				if errors.As(err, &derr) {
					err = domain.NewBackendError(derr.Code, "error fetching entitlements: "+derr.Message)
				}
				completion(nil, err)
			}
			return
		}
		c.populateProductDetails(appUserID, entitlements, completion)
	})
}

// populateProductDetails enriches every offering with provider metadata:
// first pass against the subscription catalog, second against the one-time
// catalog for the remainder. A product missing from both keeps a nil
// metadata field.
func (c *Client) populateProductDetails(appUserID string, entitlements map[string]*domain.Entitlement, completion domain.EntitlementsCompletion) {
	seen := make(map[string]struct{})
	productIDs := make([]string, 0)
	for _, entitlement := range entitlements {
		for _, offering := range entitlement.Offerings {
			if _, ok := seen[offering.ActiveProductIdentifier]; ok {
				continue
			}
			seen[offering.ActiveProductIdentifier] = struct{}{}
			productIDs = append(productIDs, offering.ActiveProductIdentifier)
		}
	}

	finish := func(detailsByID map[string]domain.ProductDetails) {
		for _, entitlement := range entitlements {
			for _, offering := range entitlement.Offerings {
				if details, ok := detailsByID[offering.ActiveProductIdentifier]; ok {
					product := details
					offering.Product = &product
				} else {
					c.logger.Error("failed to find product details for offering", "product_id", offering.ActiveProductIdentifier)
				}
			}
		}

		c.mu.Lock()
		if c.appUserID == appUserID {
			c.cachedEntitlements = entitlements
		}
		c.mu.Unlock()

		if completion != nil {
			completion(entitlements, nil)
		}
	}

	if len(productIDs) == 0 {
		finish(map[string]domain.ProductDetails{})
		return
	}

	c.store.QueryProductDetailsAsync(domain.ProductTypeSubscription, productIDs, func(subscriptions []domain.ProductDetails) {
		detailsByID := make(map[string]domain.ProductDetails, len(subscriptions))
		for _, details := range subscriptions {
			detailsByID[details.ProductID] = details
		}

		remainder := make([]string, 0)
		for _, productID := range productIDs {
			if _, ok := detailsByID[productID]; !ok {
				remainder = append(remainder, productID)
			}
		}
		if len(remainder) == 0 {
			finish(detailsByID)
			return
		}

		c.store.QueryProductDetailsAsync(domain.ProductTypeInApp, remainder, func(oneTime []domain.ProductDetails) {
			for _, details := range oneTime {
				detailsByID[details.ProductID] = details
			}
			finish(detailsByID)
		})
	})
}

// postPurchase submits one receipt and applies the consumption policy: on
// success, and on permanent rejections (HTTP status below 500), the token
// is consumed; transient failures leave it for provider redelivery.
func (c *Client) postPurchase(purchase domain.Purchase, isRestore bool, completion domain.PurchaseCompletion) {
	c.mu.Lock()
	appUserID := c.appUserID
	c.mu.Unlock()

	c.backend.PostReceipt(purchase.Token, appUserID, purchase.ProductID, isRestore, func(info *domain.PurchaserInfo, err error) {
		if err == nil {
			c.store.ConsumePurchase(purchase.Token)
			c.cachePurchaserInfo(appUserID, info)
			completion(purchase.ProductID, info, nil)
			return
		}

		var derr *domain.Error
		if errors.As(err, &derr) && derr.Code > 0 && derr.Code < 500 {
			c.store.ConsumePurchase(purchase.Token)
		}
		completion(purchase.ProductID, nil, err)
	})
}

// cachePurchaserInfo persists a fresh snapshot and notifies on change.
// Snapshots fetched for a no-longer-active identity are discarded.
func (c *Client) cachePurchaserInfo(appUserID string, info *domain.PurchaserInfo) {
	c.mu.Lock()
	if c.appUserID != appUserID {
		c.mu.Unlock()
		return
	}
	c.cachesLastUpdated = c.now()
	c.mu.Unlock()

	if err := c.cache.SavePurchaserInfo(context.Background(), appUserID, info); err != nil {
		c.logger.Warn("failed to persist purchaser info", "error", err)
	}
	c.notifyIfChanged(appUserID, info)
}

func (c *Client) notifyIfChanged(appUserID string, info *domain.PurchaserInfo) {
	c.mu.Lock()
	if info.Equal(c.lastSentInfo) {
		c.mu.Unlock()
		return
	}
	c.lastSentInfo = info
	listener := c.updatedInfoListener
	c.mu.Unlock()

	if listener != nil {
		listener(info)
	}
	if c.publisher != nil {
		event := domain.NewPurchaserInfoUpdated(appUserID, info)
		if err := eventbus.PublishDomainEvent(context.Background(), c.publisher, event); err != nil {
			c.logger.Warn("failed to publish purchaser info event", "error", err)
		}
	}
}

func (c *Client) takePurchaseCallback(productID string) domain.PurchaseCompletion {
	c.mu.Lock()
	defer c.mu.Unlock()
	callback := c.purchaseCallbacks[productID]
	delete(c.purchaseCallbacks, productID)
	return callback
}

var _ store.UpdatedListener = (*Client)(nil)
