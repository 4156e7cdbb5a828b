package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
	"github.com/betofilippi/plataforma-hooks/internal/ingest"
)

// eventCmd represents the event command
var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Publish domain events",
	Long:  `Publish domain events to the hooks engine for webhook fanout.`,
}

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish [event-type] [payload-json]",
	Short: "Publish a domain event",
	Long: `Publish a domain event with a JSON payload.

By default the event goes through the engine's HTTP API. With --nsq the
event is written straight to the events topic, the same way the ERP
modules emit.

Example:
  hookctl event publish order.created '{"order_id":"o-789","total":125.50}'
  hookctl event publish --nsq nsqd:4150 order.created '{"order_id":"o-789"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType := args[0]
		payloadJSON := args[1]

		eventID, _ := cmd.Flags().GetString("event-id")

		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return fmt.Errorf("invalid payload JSON: %w", err)
		}

		if nsqdAddr, _ := cmd.Flags().GetString("nsq"); nsqdAddr != "" {
			return publishToNSQ(cmd, nsqdAddr, eventID, eventType, payload)
		}

		resp, err := makeRequest("POST", "/v1/events", map[string]interface{}{
			"id":      eventID,
			"type":    eventType,
			"payload": payload,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		var result struct {
			EventID     string   `json:"event_id"`
			DeliveryIDs []string `json:"delivery_ids"`
		}
		if err := decodeResponse(resp, &result); err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
		} else {
			fmt.Printf("Published event: %s\n", result.EventID)
			fmt.Printf("  Fanout count: %d\n", len(result.DeliveryIDs))
			for _, id := range result.DeliveryIDs {
				fmt.Printf("  Delivery: %s\n", id)
			}
		}
		return nil
	},
}

// publishToNSQ emits the event on the events topic instead of the HTTP API.
// The engine's consumer drops envelopes without an id, so one is generated
// here when absent.
func publishToNSQ(cmd *cobra.Command, nsqdAddr, eventID, eventType string, payload map[string]interface{}) error {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	topic, _ := cmd.Flags().GetString("topic")

	pub, err := ingest.NewPublisher(nsqdAddr, topic)
	if err != nil {
		return fmt.Errorf("nsq producer: %w", err)
	}
	defer pub.Stop()

	ev := delivery.Event{
		ID:        eventID,
		Type:      eventType,
		Payload:   payload,
		EmittedAt: time.Now(),
	}
	if err := pub.Publish(cmd.Context(), ev); err != nil {
		return fmt.Errorf("nsq publish: %w", err)
	}

	if outputJSON {
		printOutput(map[string]string{"event_id": eventID, "topic": topic})
	} else {
		fmt.Printf("Published event: %s\n", eventID)
		fmt.Printf("  Topic: %s\n", topic)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(publishCmd)

	// Flags for publish
	publishCmd.Flags().String("event-id", "", "explicit event id (defaults to a generated UUID)")
	publishCmd.Flags().String("nsq", "", "publish directly to this nsqd TCP address instead of the HTTP API")
	publishCmd.Flags().String("topic", "events", "NSQ topic for --nsq publishing")
}
