// Package cli implements the searchlight command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

var (
	cfgFile string
	version = "dev"
)

// Services behind the commands. Wired from configuration on first use;
// tests inject fakes directly.
var (
	searchService    driving.SearchService
	syncOrchestrator driving.SyncOrchestrator
)

var rootCmd = &cobra.Command{
	Use:   "searchlight",
	Short: "Hybrid search over a synced content corpus",
	Long: `Searchlight mirrors an external content source into local keyword and
vector indexes and serves permission-aware hybrid search over them.
Content stays fresh through periodic sync cycles; queries fuse vector
similarity, BM25 keyword relevance, and recency into one ranking.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		for c := cmd; c != nil; c = c.Parent() {
			switch c.Name() {
			case "version", "help", "completion":
				return nil
			}
		}
		if searchService != nil || syncOrchestrator != nil {
			return nil
		}
		return initApp()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ~/.searchlight/config.toml)")
}

// SetVersion stamps the build version shown by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and tears the application down afterwards.
func Execute() error {
	defer closeApp()
	return rootCmd.Execute()
}
