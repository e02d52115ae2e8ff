package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// --- login ---

var loginCmd = &cobra.Command{
	Use:   "login <operator_id>",
	Short: "Obtain an API token pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/auth/login", map[string]string{
			"operator_id": args[0],
			"role":        role,
		})
		if err != nil {
			return err
		}

		var tokens map[string]string
		if err := decodeJSON(resp, &tokens); err != nil {
			return err
		}

		printSuccess("Logged in as %s (%s)", args[0], role)
		printStatus("export", "%s=%s", envToken, tokens["access_token"])
		return nil
	},
}

func init() {
	loginCmd.Flags().String("role", "viewer", "role to request (viewer or operator)")
}

// --- calls ---

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Inspect tracked call records",
}

var callsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tracked call as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/calls")
		if err != nil {
			return err
		}

		var out map[string]any
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		return printJSON(out["calls"])
	},
}

var callsGetCmd = &cobra.Command{
	Use:   "get <conversation_uuid>",
	Short: "Show one call record by conversation uuid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/calls/"+args[0])
		if err != nil {
			return err
		}

		var out json.RawMessage
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var callsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregated call outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/calls/summary")
		if err != nil {
			return err
		}

		var out json.RawMessage
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	callsCmd.AddCommand(callsListCmd)
	callsCmd.AddCommand(callsGetCmd)
	callsCmd.AddCommand(callsSummaryCmd)
}

// --- dial ---

var dialCmd = &cobra.Command{
	Use:   "dial <number>",
	Short: "Place one branded survey call",
	Long: `Place one branded survey call.

The command blocks while the server runs branding and creates the call,
then prints the correlation id to follow in the artifacts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/calls", map[string]string{
			"to_number": args[0],
		})
		if err != nil {
			return err
		}

		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Call placed")
		printStatus("correlation_id", "%s", out["correlation_id"])
		return nil
	},
}

// --- campaign ---

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Dial a target list with pacing",
	Long: `Dial a target list with pacing.

Examples:
  dialerctl campaign --numbers 15551230001,15551230002
  dialerctl campaign --file targets.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		numbersStr, _ := cmd.Flags().GetString("numbers")
		file, _ := cmd.Flags().GetString("file")

		var numbers []string
		switch {
		case numbersStr != "":
			for _, n := range strings.Split(numbersStr, ",") {
				if n = strings.TrimSpace(n); n != "" {
					numbers = append(numbers, n)
				}
			}
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			for _, line := range strings.Split(string(data), "\n") {
				if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
					numbers = append(numbers, line)
				}
			}
		default:
			return fmt.Errorf("one of --numbers or --file is required")
		}
		if len(numbers) == 0 {
			return fmt.Errorf("no dialable numbers found")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/campaigns", map[string]any{
			"numbers": numbers,
		})
		if err != nil {
			return err
		}

		var out map[string]int
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Campaign accepted with %d targets", out["accepted"])
		printWarning("Calls are paced; the run takes roughly %d minutes", len(numbers)*80/60)
		return nil
	},
}

func init() {
	campaignCmd.Flags().String("numbers", "", "comma-separated target numbers")
	campaignCmd.Flags().String("file", "", "file with one target number per line")
}

// --- downloads ---

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Manage recording downloads",
}

var downloadsRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Sweep the failed download list once",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/downloads/retry", nil)
		if err != nil {
			return err
		}

		var out map[string]int
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Sweep finished")
		printStatus("recovered", "%d", out["recovered"])
		printStatus("abandoned", "%d", out["abandoned"])
		printStatus("pending", "%d", out["pending"])
		return nil
	},
}

func init() {
	downloadsCmd.AddCommand(downloadsRetryCmd)
}

// --- surveys ---

var surveysCmd = &cobra.Command{
	Use:   "surveys",
	Short: "Survey response reporting",
}

var surveysSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Per-question answer tallies",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/surveys/summary")
		if err != nil {
			return err
		}

		var out json.RawMessage
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	surveysCmd.AddCommand(surveysSummaryCmd)
}
