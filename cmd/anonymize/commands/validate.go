// ABOUTME: Validate command checks the configured model is reachable and loaded
// ABOUTME: Gives a specific hint per failure kind before a long run is started
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/anonymizer/internal/llm"
)

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the inference backend and model are available",
		Long: `Check the configured inference backend is reachable and the model
is available, loading it into memory where the backend supports that.`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := llm.New(cfg.LLMOptions())
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", cfg.Backend, err)
	}

	out := cmd.OutOrStdout()
	pinger, ok := client.(llm.Pinger)
	if !ok {
		fmt.Fprintf(out, "Backend %s cannot be checked without running a document\n", cfg.Backend)
		return nil
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), cfg.Timeout)
	defer cancel()

	if err := pinger.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", validateHint(llm.KindOf(err)), err)
	}

	fmt.Fprintf(out, "Model %s is ready on %s\n", cfg.ModelLabel(), cfg.Backend)
	return nil
}

// validateHint turns a failure kind into the next thing to try
func validateHint(kind llm.ErrorKind) string {
	switch kind {
	case llm.KindUnreachable:
		return "backend unreachable (is the server running and ANONYMIZER_BASE_URL correct?)"
	case llm.KindInvalidModel:
		return "model not available (pull it or check ANONYMIZER_MODEL)"
	case llm.KindTimeout:
		return "backend timed out (raise ANONYMIZER_TIMEOUT for slow model loads)"
	default:
		return "backend check failed"
	}
}
