// ABOUTME: Root command and global flags for the anonymizer CLI
// ABOUTME: Loads .env and environment config, builds the shared logger
package commands

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harper/anonymizer/internal/config"
	"github.com/harper/anonymizer/internal/logging"
)

// Global flags
var (
	verbose bool
	quiet   bool
	format  string
)

const banner = `
 █████╗ ███╗   ██╗ ██████╗ ███╗   ██╗
██╔══██╗████╗  ██║██╔═══██╗████╗  ██║
███████║██╔██╗ ██║██║   ██║██╔██╗ ██║
██╔══██║██║╚██╗██║██║   ██║██║╚██╗██║
██║  ██║██║ ╚████║╚██████╔╝██║ ╚████║
╚═╝  ╚═╝╚═╝  ╚═══╝ ╚═════╝ ╚═╝  ╚═══╝`

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anonymize",
		Short: "Local LLM document anonymizer",
		Long: banner + `

Replace names, addresses, dates and other personal details in text
documents with placeholders, using a local language model guided by
a handful of original/de-identified example pairs.

Documents are split into sections on header lines and anonymized one
section at a time. A section the model fails on keeps its original
text and is reported, so always review the output.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors and suppress progress output")
	cmd.PersistentFlags().StringVar(&format, "format", "auto", "Output format: auto, text, json")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewExamplesCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewSyncCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads .env (if present) and the environment
func loadConfig() (*config.Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger honoring --verbose and --quiet
func newLogger(w io.Writer, cfg *config.Config) *log.Logger {
	return logging.New(w, logging.LevelFor(cfg.LogLevel, verbose, quiet))
}

// jsonOutput reports whether results should be printed as JSON
func jsonOutput() bool {
	return format == "json"
}
