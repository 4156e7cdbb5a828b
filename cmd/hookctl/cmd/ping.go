package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the hooks engine",
	Long:  `Send a ping request to verify the hooks engine is running and accessible.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeRequest("GET", "/v1/ping", nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if err := decodeResponse(resp, nil); err != nil {
			return err
		}
		fmt.Println("Pong! Engine is running")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
