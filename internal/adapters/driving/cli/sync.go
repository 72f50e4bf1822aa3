package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	Long: `Triggers one synchronisation cycle against the configured content
source without waiting for the scheduler. Changed documents are
re-chunked, re-embedded, and re-indexed; deleted documents are removed
from every index.`,
	Args: cobra.NoArgs,
	RunE: runSyncCycle,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSyncCycle(cmd *cobra.Command, _ []string) error {
	if syncOrchestrator == nil {
		return errors.New("sync service not configured")
	}

	cmd.Println("Starting sync...")

	run, err := syncOrchestrator.RunCycle(cmd.Context(), domain.TriggerManual)
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			return errors.New("a sync cycle is already running")
		}
		if run != nil {
			printSyncRun(cmd, run)
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	printSyncRun(cmd, run)
	return nil
}

func printSyncRun(cmd *cobra.Command, run *domain.SyncRun) {
	cmd.Printf("Sync finished in %s.\n", run.Duration().Round(time.Millisecond))
	cmd.Printf("  Changes seen:      %d\n", run.DocumentsSeen)
	cmd.Printf("  Documents indexed: %d\n", run.DocumentsIndexed)
	cmd.Printf("  Documents deleted: %d\n", run.DocumentsDeleted)
	cmd.Printf("  Unchanged skipped: %d\n", run.DocumentsSkipped)
	if run.DocumentsFailed > 0 {
		cmd.Printf("  Failed:            %d (retried next cycle)\n", run.DocumentsFailed)
	}
	if !run.Watermark.IsZero() {
		cmd.Printf("Watermark: %s\n", run.Watermark.UTC().Format(time.RFC3339))
	}
}
