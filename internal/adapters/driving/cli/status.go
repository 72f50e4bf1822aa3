package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusHistory int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and index counts",
	Long: `Reports the sync engine's phase, the committed watermark, and how much
content is indexed. With --history, recent sync runs are listed too.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusHistory, "history", 0, "also list the last N sync runs")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if syncOrchestrator == nil {
		return errors.New("sync service not configured")
	}

	status, err := syncOrchestrator.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	cmd.Printf("Phase:           %s\n", status.Phase)
	if status.Watermark.IsZero() {
		cmd.Println("Watermark:       none (no completed sync yet)")
	} else {
		cmd.Printf("Watermark:       %s\n", status.Watermark.UTC().Format(time.RFC3339))
	}
	if !status.LastSync.IsZero() {
		cmd.Printf("Last sync:       %s\n", status.LastSync.UTC().Format(time.RFC3339))
	}
	cmd.Printf("Documents:       %d\n", status.Documents)
	cmd.Printf("Chunks:          %d\n", status.Chunks)
	if status.PendingRetries > 0 {
		cmd.Printf("Pending retries: %d\n", status.PendingRetries)
	}

	if statusHistory > 0 {
		runs, err := syncOrchestrator.History(cmd.Context(), statusHistory)
		if err != nil {
			return fmt.Errorf("history failed: %w", err)
		}

		cmd.Println()
		cmd.Println("Recent sync runs:")
		if len(runs) == 0 {
			cmd.Println("  (none)")
		}
		for _, run := range runs {
			outcome := "ok"
			if !run.Succeeded() {
				outcome = "failed: " + run.Error
			}
			cmd.Printf("  %s  %-9s  %d indexed, %d failed  %s\n",
				run.StartedAt.UTC().Format(time.RFC3339),
				run.Trigger, run.DocumentsIndexed, run.DocumentsFailed, outcome)
		}
	}

	return nil
}
