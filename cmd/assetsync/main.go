// assetsync reconciles asset assignee attributes with the identity
// directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "assetsync",
	Short: "Sync asset assignees from owner emails",
	Long: `assetsync keeps the assignee attribute of tracked assets in line with
the identity directory.

Each asset carries an owner email attribute maintained by procurement.
assetsync resolves that email to a directory account and writes it into
the assignee attribute, so every asset points at a real, active account.

Configuration comes from assetsync.yaml (see "assetsync config init") or
ASSETSYNC_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: ./assetsync.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
