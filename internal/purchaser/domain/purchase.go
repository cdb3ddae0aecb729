package domain

import "time"

// Purchase is a completed provider transaction awaiting reconciliation.
type Purchase struct {
	Token        string
	ProductID    string
	PurchaseTime time.Time
}

// PurchaseCompletion receives the outcome of a purchase or restore for one
// product. Exactly one of info and err is non-nil.
type PurchaseCompletion func(productID string, info *PurchaserInfo, err error)

// InfoCompletion receives a purchaser info fetch outcome. Exactly one of
// info and err is non-nil.
type InfoCompletion func(info *PurchaserInfo, err error)

// EntitlementsCompletion receives an entitlements fetch outcome. Exactly one
// of entitlements and err is non-nil.
type EntitlementsCompletion func(entitlements map[string]*Entitlement, err error)

// ProductDetailsCompletion receives provider product metadata.
type ProductDetailsCompletion func(products []ProductDetails)
