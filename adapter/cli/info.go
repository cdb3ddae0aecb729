package cli

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the current subscriber's purchases and subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}

		info, err := awaitInfo(func(completion domain.InfoCompletion) {
			c.GetPurchaserInfo(completion)
		})
		if err != nil {
			return err
		}

		fmt.Printf("App user: %s\n", c.AppUserID())
		if len(info.ActiveSubscriptions) == 0 && len(info.PurchasedProducts) == 0 {
			fmt.Println("No purchases on record.")
			return nil
		}

		if len(info.ActiveSubscriptions) > 0 {
			fmt.Println("Active subscriptions:")
			for _, productID := range info.ActiveSubscriptions {
				line := "  " + productID
				if expires := info.ExpirationDateFor(productID); expires != nil {
					line += " (expires " + expires.Format(time.RFC3339) + ")"
				}
				fmt.Println(line)
			}
		}
		if len(info.PurchasedProducts) > 0 {
			fmt.Println("Purchased products:")
			for _, productID := range info.PurchasedProducts {
				fmt.Println("  " + productID)
			}
		}
		return nil
	},
}

var entitlementsCmd = &cobra.Command{
	Use:   "entitlements",
	Short: "List configured entitlements and their offerings",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}

		done := make(chan struct{})
		var entitlements map[string]*domain.Entitlement
		var fetchErr error
		c.GetEntitlements(func(result map[string]*domain.Entitlement, err error) {
			entitlements, fetchErr = result, err
			close(done)
		})

		select {
		case <-done:
		case <-time.After(commandTimeout):
			return fmt.Errorf("timed out fetching entitlements")
		}
		if fetchErr != nil {
			return fetchErr
		}

		if len(entitlements) == 0 {
			fmt.Println("No entitlements configured.")
			return nil
		}
		for name, entitlement := range entitlements {
			fmt.Printf("%s:\n", name)
			for offeringID, offering := range entitlement.Offerings {
				line := fmt.Sprintf("  %s -> %s", offeringID, offering.ActiveProductIdentifier)
				if offering.Product != nil {
					line += fmt.Sprintf(" (%s %s)", offering.Product.Price, offering.Product.CurrencyCode)
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

// awaitInfo bridges a callback-style info operation into a blocking call.
func awaitInfo(start func(completion domain.InfoCompletion)) (*domain.PurchaserInfo, error) {
	done := make(chan struct{})
	var info *domain.PurchaserInfo
	var opErr error
	start(func(result *domain.PurchaserInfo, err error) {
		info, opErr = result, err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(commandTimeout):
		return nil, fmt.Errorf("timed out waiting for backend")
	}
	return info, opErr
}

func init() {
	AddCommand(infoCmd)
	AddCommand(entitlementsCmd)
}
