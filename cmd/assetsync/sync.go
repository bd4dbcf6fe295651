package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/hwops/assetsync/internal/daemon"
	"github.com/hwops/assetsync/internal/history"
	"github.com/hwops/assetsync/internal/logging"
	"github.com/hwops/assetsync/internal/syncer"
	"github.com/hwops/assetsync/internal/ui"
)

var (
	syncDryRun bool
	syncYes    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile asset assignees with the directory",
	Long: `Sync every asset of the configured type.

For each asset the owner email is resolved to a directory account and
written into the assignee attribute. Assets with no email, an
unresolvable email, an inactive account, or a matching assignee are
skipped with a reason. One asset's failure never stops the batch.

Results are written to the backups directory and recorded in the run
history database.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if !syncDryRun && !syncYes {
			var proceed bool
			confirm := huh.NewConfirm().
				Title(fmt.Sprintf("Sync assignees for all %q assets in %q?",
					a.cfg.ObjectTypeName, a.cfg.SchemaName)).
				Description("Assignee attributes will be overwritten. Use --dry-run to preview.").
				Value(&proceed)
			if err := confirm.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !proceed {
				fmt.Println("Aborted")
				return
			}
		}

		mode := ""
		if syncDryRun {
			mode = " (dry run)"
		}
		fmt.Printf("%s Syncing %q assets%s...\n", ui.RenderAccent("🔄"), a.cfg.ObjectTypeName, mode)

		started := time.Now()
		outcomes, runErr := a.engine.Run(ctx, syncDryRun)

		finishRun(a, "sync", started, syncDryRun, outcomes)

		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: run aborted: %v\n", runErr)
			os.Exit(1)
		}
	},
}

var retireCmd = &cobra.Command{
	Use:   "retire",
	Short: "Retire assets whose retirement date has passed",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		mode := ""
		if syncDryRun {
			mode = " (dry run)"
		}
		fmt.Printf("%s Processing retirements%s...\n", ui.RenderAccent("🔄"), mode)

		started := time.Now()
		outcomes, runErr := a.engine.RunRetirement(ctx, syncDryRun)

		finishRun(a, "retire", started, syncDryRun, outcomes)

		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: run aborted: %v\n", runErr)
			os.Exit(1)
		}
	},
}

var daemonInterval time.Duration

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run syncs continuously on an interval",
	Long: `Run the sync on a schedule until interrupted.

The daemon re-runs the full sync every interval and watches the config
file: an edit invalidates the discovery caches so renamed schemas or
attributes are picked up without a restart.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Starting sync daemon (interval %s)...\n", ui.RenderAccent("🚀"), daemonInterval)

		d, err := daemon.NewWithConfig(daemonRunner{a}, a.assets, configFile, &daemon.Config{
			Interval: daemonInterval,
			Logger:   logging.Child(a.logger, "[daemon] "),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// daemonRunner adapts a full sync-and-record cycle to the daemon's Runner.
type daemonRunner struct {
	a *app
}

func (r daemonRunner) RunOnce(ctx context.Context) error {
	started := time.Now()
	outcomes, err := r.a.engine.Run(ctx, false)
	recordRun(r.a, "sync", started, false, outcomes)
	return err
}

// finishRun prints the summary and persists artifacts for a completed run.
func finishRun(a *app, kind string, started time.Time, dryRun bool, outcomes []syncer.Outcome) {
	summary := syncer.Summarize(outcomes)
	printSummary(summary)

	if len(outcomes) == 0 {
		return
	}

	path, err := syncer.WriteResults(a.cfg.BackupsDir, outcomes, started)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write results: %v\n", err)
	} else {
		fmt.Printf("\n%s Results saved to %s\n", ui.RenderDim("→"), path)
	}

	recordRun(a, kind, started, dryRun, outcomes)
}

func recordRun(a *app, kind string, started time.Time, dryRun bool, outcomes []syncer.Outcome) {
	db, err := history.Open(a.cfg.HistoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open history: %v\n", err)
		return
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.InitSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to init history schema: %v\n", err)
		return
	}
	if _, err := db.RecordRun(ctx, kind, started, dryRun, outcomes); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record run: %v\n", err)
	}
}

func printSummary(s syncer.Summary) {
	fmt.Printf("\n%s Run summary\n\n", ui.RenderAccent("📊"))
	fmt.Printf("  Total:    %d\n", s.Total)
	fmt.Printf("  Updated:  %s\n", ui.RenderPass(fmt.Sprintf("%d", s.Updated)))
	fmt.Printf("  Skipped:  %d\n", s.Skipped)
	if s.Errors > 0 {
		fmt.Printf("  Errors:   %s\n", ui.RenderFail(fmt.Sprintf("%d", s.Errors)))
	} else {
		fmt.Printf("  Errors:   0\n")
	}
	fmt.Printf("  Success:  %.1f%%\n", s.SuccessRate)

	if len(s.SkipReasons) > 0 {
		fmt.Printf("\n  Skip reasons:\n")
		for _, reason := range sortedKeys(s.SkipReasons) {
			fmt.Printf("    %s %s (%d)\n", ui.RenderDim("•"), reason, s.SkipReasons[reason])
		}
	}
	if len(s.ErrorTypes) > 0 {
		fmt.Printf("\n  Error types:\n")
		for _, class := range sortedKeys(s.ErrorTypes) {
			fmt.Printf("    %s %s (%d)\n", ui.RenderDim("•"), class, s.ErrorTypes[class])
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report what would change without writing")
	syncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "skip the confirmation prompt")
	retireCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report what would change without writing")
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", time.Hour, "time between sync runs")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(retireCmd)
	rootCmd.AddCommand(daemonCmd)
}
