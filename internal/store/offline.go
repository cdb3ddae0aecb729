package store

import (
	"sync"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
)

// OfflineClient is a provider client for local mode: it connects instantly
// and serves empty catalogs and history, so the rest of the stack can run
// without a real billing service. Purchase flows cannot be launched.
type OfflineClient struct {
	mu    sync.Mutex
	ready bool
}

// NewOfflineClientFactory returns a factory producing offline clients.
func NewOfflineClientFactory() ClientFactory {
	return func(onPurchasesUpdated UpdateHandler) Client {
		return &OfflineClient{}
	}
}

// StartConnection reports success asynchronously, as a real client would.
func (c *OfflineClient) StartConnection(listener ConnectionListener) {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	go listener.OnSetupFinished(ResponseOK)
}

// EndConnection marks the client as not ready.
func (c *OfflineClient) EndConnection() {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
}

// IsReady reports whether StartConnection has run.
func (c *OfflineClient) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// QueryProductDetails reports an empty catalog.
func (c *OfflineClient) QueryProductDetails(productType domain.ProductType, productIDs []string, onReceive domain.ProductDetailsCompletion) {
	go onReceive(nil)
}

// LaunchPurchaseFlow always fails: there is no store to purchase from.
func (c *OfflineClient) LaunchPurchaseFlow(params PurchaseParams) int {
	return ResponseServiceUnavailable
}

// QueryPurchaseHistory reports an empty history.
func (c *OfflineClient) QueryPurchaseHistory(productType domain.ProductType, onHistory func(responseCode int, purchases []domain.Purchase)) {
	go onHistory(ResponseOK, nil)
}

// ConsumePurchase acknowledges immediately.
func (c *OfflineClient) ConsumePurchase(token string, onConsumed func(responseCode int, token string)) {
	go onConsumed(ResponseOK, token)
}
