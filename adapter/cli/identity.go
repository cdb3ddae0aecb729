package cli

import (
	"fmt"

	"github.com/felixgeelhaar/entitle/internal/purchaser/domain"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <app-user-id>",
	Short: "Switch to a known app user id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}

		_, err = awaitInfo(func(completion domain.InfoCompletion) {
			c.Identify(args[0], completion)
		})
		if err != nil {
			return err
		}
		fmt.Printf("Now identified as %s\n", c.AppUserID())
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop the current identity and start over anonymously",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}

		_, err = awaitInfo(func(completion domain.InfoCompletion) {
			c.Reset(completion)
		})
		if err != nil {
			return err
		}
		fmt.Printf("Reset to anonymous user %s\n", c.AppUserID())
		return nil
	},
}

var aliasCmd = &cobra.Command{
	Use:   "alias <new-app-user-id>",
	Short: "Link the current identity to a new app user id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}

		_, err = awaitInfo(func(completion domain.InfoCompletion) {
			c.CreateAlias(args[0], completion)
		})
		if err != nil {
			return err
		}
		fmt.Printf("Aliased to %s\n", c.AppUserID())
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replay the store purchase history against the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireClient()
		if err != nil {
			return err
		}

		info, err := awaitInfo(func(completion domain.InfoCompletion) {
			c.RestorePurchases(completion)
		})
		if err != nil {
			return err
		}
		fmt.Printf("Restored: %d active subscriptions, %d purchased products\n",
			len(info.ActiveSubscriptions), len(info.PurchasedProducts))
		return nil
	},
}

func init() {
	AddCommand(identifyCmd)
	AddCommand(resetCmd)
	AddCommand(aliasCmd)
	AddCommand(restoreCmd)
}
