package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// deliveryCmd represents the delivery command
var deliveryCmd = &cobra.Command{
	Use:   "delivery",
	Short: "Inspect webhook deliveries",
	Long:  `Inspect individual deliveries or list deliveries by subscription and status.`,
}

// deliveryGetCmd represents the delivery get command
var deliveryGetCmd = &cobra.Command{
	Use:   "get [delivery-id]",
	Short: "Get a delivery by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeRequest("GET", "/v1/deliveries/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		var result map[string]interface{}
		if err := decodeResponse(resp, &result); err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
		} else {
			fmt.Printf("Delivery: %v\n", result["id"])
			fmt.Printf("  Subscription: %v\n", result["subscription_id"])
			fmt.Printf("  Event:        %v (%v)\n", result["event_id"], result["event_type"])
			fmt.Printf("  Status:       %v\n", result["status"])
			fmt.Printf("  Attempts:     %v/%v\n", result["attempt_count"], result["max_attempts"])
			if next, ok := result["next_attempt_at"]; ok {
				fmt.Printf("  Next attempt: %v\n", next)
			}
		}
		return nil
	},
}

// deliveryListCmd represents the delivery list command
var deliveryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deliveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		subID, _ := cmd.Flags().GetString("subscription")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		if subID != "" {
			q.Set("subscription_id", subID)
		}
		if status != "" {
			q.Set("status", status)
		}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		path := "/v1/deliveries"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := makeRequest("GET", path, nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		var result struct {
			Deliveries []map[string]interface{} `json:"deliveries"`
		}
		if err := decodeResponse(resp, &result); err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
		} else {
			fmt.Printf("%d deliveries\n", len(result.Deliveries))
			for _, d := range result.Deliveries {
				fmt.Printf("  %v  %v  attempts=%v/%v  sub=%v\n",
					d["id"], d["status"], d["attempt_count"], d["max_attempts"], d["subscription_id"])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deliveryCmd)
	deliveryCmd.AddCommand(deliveryGetCmd)
	deliveryCmd.AddCommand(deliveryListCmd)

	// Flags for list
	deliveryListCmd.Flags().String("subscription", "", "filter by subscription id")
	deliveryListCmd.Flags().String("status", "", "filter by status (pending, in_flight, succeeded, retry_scheduled, failed_final, cancelled)")
	deliveryListCmd.Flags().Int("limit", 0, "maximum rows to return")
}
