package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// PurchaserInfo is an immutable snapshot of a user's entitlement state as
// reported by the backend. Two snapshots built from identical payloads
// compare equal, which drives listener change suppression.
type PurchaserInfo struct {
	// ActiveSubscriptions holds product identifiers of currently active
	// subscriptions, sorted.
	ActiveSubscriptions []string `json:"active_subscriptions"`

	// ExpirationDates maps each subscription product identifier to its
	// expiration instant. A nil expiration means the product never expires.
	ExpirationDates map[string]*time.Time `json:"expiration_dates"`

	// PurchasedProducts holds every product identifier the user has ever
	// purchased, subscriptions included, sorted.
	PurchasedProducts []string `json:"purchased_products"`
}

type subscriberResponse struct {
	Subscriber struct {
		Subscriptions map[string]struct {
			ExpiresDate *time.Time `json:"expires_date"`
		} `json:"subscriptions"`
		OtherPurchases map[string]struct {
			PurchaseDate *time.Time `json:"purchase_date"`
		} `json:"other_purchases"`
	} `json:"subscriber"`
}

// ParsePurchaserInfo builds a PurchaserInfo from a backend subscriber payload.
func ParsePurchaserInfo(body []byte) (*PurchaserInfo, error) {
	var resp subscriberResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	info := &PurchaserInfo{
		ActiveSubscriptions: []string{},
		ExpirationDates:     make(map[string]*time.Time),
		PurchasedProducts:   []string{},
	}

	now := time.Now()
	for productID, sub := range resp.Subscriber.Subscriptions {
		info.ExpirationDates[productID] = sub.ExpiresDate
		if sub.ExpiresDate == nil || sub.ExpiresDate.After(now) {
			info.ActiveSubscriptions = append(info.ActiveSubscriptions, productID)
		}
		info.PurchasedProducts = append(info.PurchasedProducts, productID)
	}
	for productID := range resp.Subscriber.OtherPurchases {
		info.PurchasedProducts = append(info.PurchasedProducts, productID)
	}

	sort.Strings(info.ActiveSubscriptions)
	sort.Strings(info.PurchasedProducts)
	return info, nil
}

// ExpirationDateFor returns the expiration for a product, or nil when the
// product is unknown or non-expiring.
func (p *PurchaserInfo) ExpirationDateFor(productID string) *time.Time {
	return p.ExpirationDates[productID]
}

// LatestExpirationDate returns the latest expiration across all
// subscriptions, or nil if none expires.
func (p *PurchaserInfo) LatestExpirationDate() *time.Time {
	var latest *time.Time
	for _, expires := range p.ExpirationDates {
		if expires == nil {
			continue
		}
		if latest == nil || expires.After(*latest) {
			latest = expires
		}
	}
	return latest
}

// Equal reports whether two snapshots carry the same entitlement state.
func (p *PurchaserInfo) Equal(other *PurchaserInfo) bool {
	if p == nil || other == nil {
		return p == other
	}
	if !equalStrings(p.ActiveSubscriptions, other.ActiveSubscriptions) {
		return false
	}
	if !equalStrings(p.PurchasedProducts, other.PurchasedProducts) {
		return false
	}
	if len(p.ExpirationDates) != len(other.ExpirationDates) {
		return false
	}
	for productID, expires := range p.ExpirationDates {
		otherExpires, ok := other.ExpirationDates[productID]
		if !ok {
			return false
		}
		if (expires == nil) != (otherExpires == nil) {
			return false
		}
		if expires != nil && !expires.Equal(*otherExpires) {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
