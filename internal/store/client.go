// Package store wraps the in-app billing provider's asynchronous,
// connection-gated API behind a FIFO request queue.
package store

import "github.com/felixgeelhaar/entitle/internal/purchaser/domain"

// Provider response codes.
const (
	// ResponseOK signals provider success.
	ResponseOK = 0
	// ResponseUserCanceled signals the user dismissed the purchase flow.
	ResponseUserCanceled = 1
	// ResponseServiceUnavailable signals the provider service is down.
	ResponseServiceUnavailable = 2
	// ResponseError is the provider's generic failure code.
	ResponseError = 6
	// ResponseItemAlreadyOwned signals a repeat purchase of an owned item.
	ResponseItemAlreadyOwned = 7
)

// PurchaseParams describes a purchase-flow launch.
type PurchaseParams struct {
	AccountID     string
	ProductID     string
	ProductType   domain.ProductType
	OldProductIDs []string
}

// ConnectionListener receives provider connection lifecycle callbacks.
type ConnectionListener interface {
	OnSetupFinished(responseCode int)
	OnDisconnected()
}

// UpdateHandler receives the provider's push-style purchase updates.
type UpdateHandler func(responseCode int, purchases []domain.Purchase)

// Client is the opaque provider connection. Implementations own whatever
// platform handle the purchase flow needs. Every call is asynchronous and
// must only be made while the connection is ready; the Wrapper enforces
// that gate.
type Client interface {
	// StartConnection begins connecting and reports the outcome to the
	// listener. Must not invoke the listener synchronously.
	StartConnection(listener ConnectionListener)

	// EndConnection tears the connection down.
	EndConnection()

	// IsReady reports whether the connection is usable.
	IsReady() bool

	// QueryProductDetails fetches catalog metadata for the given products.
	// Unknown products are absent from the result.
	QueryProductDetails(productType domain.ProductType, productIDs []string, onReceive domain.ProductDetailsCompletion)

	// LaunchPurchaseFlow starts the provider purchase UI and returns the
	// launch response code. The completed purchase arrives later through
	// the update handler.
	LaunchPurchaseFlow(params PurchaseParams) int

	// QueryPurchaseHistory fetches all historical purchases of one catalog.
	QueryPurchaseHistory(productType domain.ProductType, onHistory func(responseCode int, purchases []domain.Purchase))

	// ConsumePurchase marks a purchase token as consumed.
	ConsumePurchase(token string, onConsumed func(responseCode int, token string))
}

// ClientFactory builds a fresh provider client routing push updates to the
// given handler. The Wrapper builds a new client per connection attempt.
type ClientFactory func(onPurchasesUpdated UpdateHandler) Client

// UpdatedListener receives purchase updates after the Wrapper has sorted
// provider outcomes into success and failure.
type UpdatedListener interface {
	OnPurchasesUpdated(purchases []domain.Purchase)
	OnPurchasesFailedToUpdate(purchases []domain.Purchase, responseCode int, message string)
}
