package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hwops/assetsync/internal/config"
	"github.com/hwops/assetsync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter config file",
	Long: `Write an assetsync.yaml template with defaults and placeholders.

The template refuses to overwrite an existing file. Fill in the
placeholder values before running a sync; validation rejects them.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "assetsync.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		if err := config.WriteTemplate(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		fmt.Println("  Edit the placeholder values, then run \"assetsync config check\".")
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}

		fmt.Printf("%s Configuration valid\n\n", ui.RenderPass("✓"))
		fmt.Printf("  Site:        %s\n", cfg.BaseURL())
		fmt.Printf("  Workspace:   %s\n", cfg.WorkspaceID)
		fmt.Printf("  Auth:        %s\n", cfg.AuthMethod)
		fmt.Printf("  Schema:      %s / %s\n", cfg.SchemaName, cfg.ObjectTypeName)
		fmt.Printf("  Attributes:  %s -> %s\n", cfg.EmailAttribute, cfg.AssigneeAttribute)
		fmt.Printf("  Rate:        %d req/min (%s between calls)\n",
			cfg.RequestsPerMinute, cfg.MinRequestInterval())
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
