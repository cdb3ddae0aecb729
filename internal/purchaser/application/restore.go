package application

import (
	"sort"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
)

// RestorePurchases replays the provider's purchase history as restore
// receipts. The completion fires once, driven by the outcome of the most
// recent purchase; older entries are posted for their side effects only.
// An empty history falls back to a plain purchaser info fetch.
func (c *Client) RestorePurchases(completion domain.InfoCompletion) {
	c.queryAllPurchaseHistory(func(history []domain.Purchase) {
		if len(history) == 0 {
			c.GetPurchaserInfo(completion)
			return
		}

		sort.SliceStable(history, func(i, j int) bool {
			return history[i].PurchaseTime.Before(history[j].PurchaseTime)
		})

		last := len(history) - 1
		for i, purchase := range history {
			final := i == last
			c.postPurchase(purchase, true, func(_ string, info *domain.PurchaserInfo, err error) {
				if !final {
					if err != nil {
						c.logger.Warn("error restoring purchase", "product_id", purchase.ProductID, "error", err)
					}
					return
				}
				if completion == nil {
					return
				}
				if err != nil {
					completion(nil, err)
					return
				}
				completion(info, nil)
			})
		}
	}, func(responseCode int, message string) {
		if completion != nil {
			completion(nil, domain.NewStoreError(responseCode, message))
		}
	})
}

// queryAllPurchaseHistory merges the subscription and one-time purchase
// histories, subscriptions first.
func (c *Client) queryAllPurchaseHistory(onReceive func(history []domain.Purchase), onError func(responseCode int, message string)) {
	c.store.QueryPurchaseHistoryAsync(domain.ProductTypeSubscription, func(subscriptions []domain.Purchase) {
		c.store.QueryPurchaseHistoryAsync(domain.ProductTypeInApp, func(oneTime []domain.Purchase) {
			merged := make([]domain.Purchase, 0, len(subscriptions)+len(oneTime))
			merged = append(merged, subscriptions...)
			merged = append(merged, oneTime...)
			onReceive(merged)
		}, onError)
	}, onError)
}
