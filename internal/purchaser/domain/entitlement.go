package domain

import "encoding/json"

// ProductType distinguishes the provider's catalogs.
type ProductType string

const (
	// ProductTypeSubscription is a renewing subscription product.
	ProductTypeSubscription ProductType = "subs"
	// ProductTypeInApp is a one-time product.
	ProductTypeInApp ProductType = "inapp"
)

// ProductDetails carries provider-side product metadata.
type ProductDetails struct {
	ProductID        string      `json:"product_id"`
	Type             ProductType `json:"type"`
	Price            string      `json:"price"`
	PriceAmountMicro int64       `json:"price_amount_micros"`
	CurrencyCode     string      `json:"currency_code"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
}

// Offering is a purchasable tier within an entitlement, bound to one catalog
// product. Product is populated from provider metadata after the entitlement
// fetch and stays nil when the product is missing from both catalogs.
type Offering struct {
	ActiveProductIdentifier string
	Product                 *ProductDetails
}

// Entitlement is a named bundle of offerings configured server-side.
// Entitlements are cached in memory only, never persisted.
type Entitlement struct {
	Offerings map[string]*Offering
}

type entitlementsResponse map[string]struct {
	Offerings map[string]struct {
		ActiveProductIdentifier string `json:"active_product_identifier"`
	} `json:"offerings"`
}

// ParseEntitlements builds the entitlement map from the backend
// `entitlements` object.
func ParseEntitlements(body []byte) (map[string]*Entitlement, error) {
	var resp entitlementsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	entitlements := make(map[string]*Entitlement, len(resp))
	for name, raw := range resp {
		entitlement := &Entitlement{Offerings: make(map[string]*Offering, len(raw.Offerings))}
		for offeringID, offering := range raw.Offerings {
			entitlement.Offerings[offeringID] = &Offering{
				ActiveProductIdentifier: offering.ActiveProductIdentifier,
			}
		}
		entitlements[name] = entitlement
	}
	return entitlements, nil
}
