package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// subscriptionCmd represents the subscription command
var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Manage webhook subscriptions",
	Long:  `Propagate subscription lifecycle changes to the hooks engine.`,
}

// deactivateCmd represents the subscription deactivate command
var deactivateCmd = &cobra.Command{
	Use:   "deactivate [subscription-id]",
	Short: "Mark a subscription deactivated",
	Long: `Mark a subscription deactivated and cancel its pending deliveries.

Example:
  hookctl subscription deactivate sub_123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/v1/subscriptions/" + url.PathEscape(args[0]) + "/deactivated"
		resp, err := makeRequest("POST", path, nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		var result struct {
			Cancelled int `json:"cancelled"`
		}
		if err := decodeResponse(resp, &result); err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
		} else {
			fmt.Printf("Subscription %s deactivated\n", args[0])
			fmt.Printf("  Cancelled deliveries: %d\n", result.Cancelled)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subscriptionCmd)
	subscriptionCmd.AddCommand(deactivateCmd)
}
