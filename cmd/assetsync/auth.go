package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hwops/assetsync/internal/logging"
	"github.com/hwops/assetsync/internal/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored credential",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run the interactive authorization flow",
	Long: `Authorize assetsync against the remote service.

Opens the authorization page in a browser and waits for the redirect on
the configured localhost callback. The resulting credential is stored
with owner-only permissions and refreshed automatically on later runs.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if cfg.AuthMethod != "oauth" {
			fmt.Fprintf(os.Stderr, "Error: auth login only applies to auth.method \"oauth\"\n")
			os.Exit(1)
		}

		logger := logging.Setup("[assetsync] ", cfg.LogFile)
		manager := newOAuthManager(cfg, logger)

		cred, err := manager.Authorize(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: authorization failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Authorized, credential saved to %s\n", ui.RenderPass("✓"), cfg.TokenFile)
		fmt.Printf("  Token expires: %s\n", cred.Expiry.Format(time.RFC1123))
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored credential state",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if cfg.AuthMethod != "oauth" {
			fmt.Printf("%s Using basic auth as %s\n", ui.RenderAccent("●"), cfg.UserEmail)
			return
		}

		logger := logging.Setup("[assetsync] ", cfg.LogFile)
		manager := newOAuthManager(cfg, logger)

		cred := manager.Current()
		if cred == nil {
			fmt.Printf("%s No stored credential; run \"assetsync auth login\"\n", ui.RenderWarn("⚠"))
			return
		}

		if cred.Valid() {
			fmt.Printf("%s Credential valid\n", ui.RenderPass("✓"))
		} else if cred.RefreshToken != "" {
			fmt.Printf("%s Access token expired; will refresh on next use\n", ui.RenderWarn("⚠"))
		} else {
			fmt.Printf("%s Credential expired; run \"assetsync auth login\"\n", ui.RenderFail("✗"))
		}
		fmt.Printf("  Expiry:   %s\n", cred.Expiry.Format(time.RFC1123))
		if cred.CloudID != "" {
			fmt.Printf("  Cloud id: %s\n", cred.CloudID)
		}
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored credential",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		logger := logging.Setup("[assetsync] ", cfg.LogFile)
		manager := newOAuthManager(cfg, logger)

		if err := manager.Reset(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Credential removed\n", ui.RenderPass("✓"))
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
