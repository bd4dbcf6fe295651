package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hwops/assetsync/internal/cache"
	"github.com/hwops/assetsync/internal/config"
	"github.com/hwops/assetsync/internal/logging"
	"github.com/hwops/assetsync/internal/ui"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the durable discovery cache",
}

// cacheStore builds a store from config without wiring the full app; cache
// commands must work offline.
func cacheStore() (*cache.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup("[assetsync] ", cfg.LogFile)
	return cache.New(cfg.CacheDir, cfg.CacheTTL, cfg.WorkspaceID, logging.Child(logger, "[cache] ")), cfg, nil
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cached discovery entries",
	Run: func(cmd *cobra.Command, args []string) {
		store, cfg, err := cacheStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		entries, err := store.Info()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Printf("%s Cache is empty (%s)\n", ui.RenderWarn("⚠"), cfg.CacheDir)
			return
		}

		fmt.Printf("%s Cache entries in %s (TTL %s)\n\n", ui.RenderAccent("📦"), cfg.CacheDir, cfg.CacheTTL)
		for _, entry := range entries {
			state := ui.RenderPass("fresh")
			if entry.Expired {
				state = ui.RenderWarn("expired")
			}
			fmt.Printf("  %-28s %s  %s\n", entry.Key, state,
				ui.RenderDim(fmt.Sprintf("(age %s, %d bytes)", entry.Age.Round(1e9), entry.Size)))
		}
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached discovery entries",
	Run: func(cmd *cobra.Command, args []string) {
		store, _, err := cacheStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		removed, err := store.InvalidateAll()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Removed %d cache entries\n", ui.RenderPass("✓"), removed)
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove only expired cache entries",
	Run: func(cmd *cobra.Command, args []string) {
		store, _, err := cacheStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		removed, err := store.CleanupExpired()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Removed %d expired entries\n", ui.RenderPass("✓"), removed)
	},
}

func init() {
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	rootCmd.AddCommand(cacheCmd)
}
