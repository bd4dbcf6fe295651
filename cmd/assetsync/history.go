package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hwops/assetsync/internal/history"
	"github.com/hwops/assetsync/internal/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past sync runs",
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		db, err := history.Open(cfg.HistoryPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		ctx := cmd.Context()
		if err := db.InitSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		runs, err := db.RecentRuns(ctx, historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(runs) == 0 {
			fmt.Printf("%s No runs recorded yet\n", ui.RenderWarn("⚠"))
			return
		}

		for _, run := range runs {
			mode := ""
			if run.DryRun {
				mode = ui.RenderDim(" [dry-run]")
			}
			status := ui.RenderPass("✓")
			if run.Errors > 0 {
				status = ui.RenderFail("✗")
			}
			fmt.Printf("%s #%-4d %-7s %s%s  %s\n",
				status, run.ID, run.Kind,
				run.StartedAt.Local().Format(time.DateTime), mode,
				ui.RenderDim(fmt.Sprintf("(%d total, %d updated, %d skipped, %d errors)",
					run.Total, run.Updated, run.Skipped, run.Errors)))
		}
	},
}

var historyAssetCmd = &cobra.Command{
	Use:   "asset <object-key>",
	Short: "Show past outcomes for one asset",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		db, err := history.Open(cfg.HistoryPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		ctx := cmd.Context()
		if err := db.InitSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		entries, err := db.HistoryForAsset(ctx, args[0], historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Printf("%s No history for %s\n", ui.RenderWarn("⚠"), args[0])
			return
		}

		fmt.Printf("History for %s:\n", ui.RenderAccent(args[0]))
		for _, entry := range entries {
			when := entry.StartedAt.Local().Format(time.DateTime)
			switch {
			case entry.Error != "":
				fmt.Printf("  %s %s  failed: %s\n", ui.RenderFail("✗"), when, entry.Error)
			case entry.Skipped:
				fmt.Printf("  %s %s  skipped: %s\n", ui.RenderWarn("⚠"), when, entry.SkipReason)
			case entry.Updated:
				fmt.Printf("  %s %s  updated\n", ui.RenderPass("✓"), when)
			default:
				fmt.Printf("  %s %s  no change\n", ui.RenderDim("•"), when)
			}
		}
	},
}

func init() {
	historyCmd.PersistentFlags().IntVar(&historyLimit, "limit", 20, "maximum entries to show")
	historyCmd.AddCommand(historyRunsCmd)
	historyCmd.AddCommand(historyAssetCmd)
	rootCmd.AddCommand(historyCmd)
}
