// dialerctl is the operator's command line for the survey dialer API:
// dialing, campaign kickoff, call record inspection and download sweeps.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "dialerctl",
	Short:         "Control the branded survey dialer",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(dialCmd)
	rootCmd.AddCommand(campaignCmd)
	rootCmd.AddCommand(downloadsCmd)
	rootCmd.AddCommand(surveysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
