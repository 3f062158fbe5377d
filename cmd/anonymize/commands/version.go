// ABOUTME: Version command reporting the build and the configured inference setup
// ABOUTME: Prints version, commit, and build date, then the backend and model a run would use
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/anonymizer/internal/config"
)

var (
	versionInfo = VersionInfo{
		Version: "dev",
		Commit:  "none",
		Date:    "unknown",
	}
)

// VersionInfo contains build information
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// SetVersion sets the version information (called from main)
func SetVersion(version, commit, date string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.Date = date
}

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the build of the document anonymizer, followed by the
inference backend and model a run would use with the current
environment. No backend is contacted; use 'anonymize validate' for that.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Anonymizer %s\n", versionInfo.Version)
			fmt.Fprintf(out, "Commit:  %s\n", versionInfo.Commit)
			fmt.Fprintf(out, "Built:   %s\n", versionInfo.Date)

			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(out, "Backend: invalid configuration (%v)\n", err)
				return
			}
			fmt.Fprintf(out, "Backend: %s (%s)\n", cfg.Backend, cfg.ModelLabel())
		},
	}

	return cmd
}
