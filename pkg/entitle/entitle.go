// Package entitle is the public embedding surface for the purchase client.
// Applications construct a client with app.NewContainer (or wire the
// pieces themselves) and use the aliases here without importing internal
// packages.
package entitle

import (
	"github.com/felixgeelhaar/entitle/internal/purchaser/application"
	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
	"github.com/felixgeelhaar/entitle/internal/store"
)

// Client is the purchase reconciliation client.
type Client = application.Client

// Config configures a Client.
type Config = application.Config

// New validates the configuration and builds a Client.
var New = application.New

// PurchaserInfo is the subscriber snapshot: active subscriptions, one-time
// purchases and expiration dates.
type PurchaserInfo = domain.PurchaserInfo

// Entitlement maps offering identifiers to purchasable products.
type Entitlement = domain.Entitlement

// Offering points an offering at its currently active product.
type Offering = domain.Offering

// ProductDetails is provider catalog metadata for one product.
type ProductDetails = domain.ProductDetails

// ProductType distinguishes subscriptions from one-time products.
type ProductType = domain.ProductType

const (
	ProductTypeSubscription = domain.ProductTypeSubscription
	ProductTypeInApp        = domain.ProductTypeInApp
)

// Purchase is a completed provider transaction.
type Purchase = domain.Purchase

// Error is the recoverable error type returned to completion callbacks.
type Error = domain.Error

// AttributionNetwork identifies a supported attribution provider.
type AttributionNetwork = domain.AttributionNetwork

const (
	AttributionAdjust    = domain.AttributionAdjust
	AttributionAppsFlyer = domain.AttributionAppsFlyer
	AttributionBranch    = domain.AttributionBranch
)

// Completion callback aliases.
type (
	InfoCompletion           = domain.InfoCompletion
	EntitlementsCompletion   = domain.EntitlementsCompletion
	PurchaseCompletion       = domain.PurchaseCompletion
	ProductDetailsCompletion = domain.ProductDetailsCompletion
)

// StoreClient is the provider billing client contract. Integrations supply
// a ClientFactory producing one per connection.
type StoreClient = store.Client

// ClientFactory builds provider billing clients.
type ClientFactory = store.ClientFactory

// PurchaseParams describes a purchase flow launch.
type PurchaseParams = store.PurchaseParams
