// ABOUTME: Examples commands manage the few-shot example pairs and instruction
// ABOUTME: Supports list, add, remove, instruction, reset, import, and export
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/anonymizer/internal/app"
	"github.com/harper/anonymizer/internal/charm"
	"github.com/harper/anonymizer/internal/config"
	"github.com/harper/anonymizer/internal/core"
	"github.com/harper/anonymizer/internal/models"
	"github.com/harper/anonymizer/internal/storage"
)

// NewExamplesCmd creates the examples command group
func NewExamplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Manage few-shot examples",
		Long: `Manage the original/de-identified example pairs shown to the model.

The examples teach the model which details to replace and how the
placeholders look. Edits take effect on the next run; a run in
progress keeps the examples it started with.`,
	}

	cmd.AddCommand(newExamplesListCmd())
	cmd.AddCommand(newExamplesAddCmd())
	cmd.AddCommand(newExamplesRemoveCmd())
	cmd.AddCommand(newExamplesInstructionCmd())
	cmd.AddCommand(newExamplesResetCmd())
	cmd.AddCommand(newExamplesImportCmd())
	cmd.AddCommand(newExamplesExportCmd())

	return cmd
}

// withSettings opens the configured settings store for the duration of fn
func withSettings(fn func(store storage.SettingsStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := app.OpenSettings(cfg)
	if err != nil {
		return err
	}
	if cfg.SettingsBackend == config.SettingsBackendCharm {
		defer charm.ResetGlobalClient()
	}

	return fn(store)
}

func newExamplesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the instruction and examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(func(store storage.SettingsStore) error {
				settings, err := store.Load()
				if err != nil {
					return err
				}
				return printExamples(cmd.OutOrStdout(), settings)
			})
		},
	}
}

func printExamples(w io.Writer, settings models.PromptSettings) error {
	if jsonOutput() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"instruction": settings.Instruction,
			"examples":    settings.Examples,
			"is_default":  settings.IsDefault(),
		})
	}

	source := "custom"
	if settings.IsDefault() {
		source = "built-in defaults"
	}
	fmt.Fprintf(w, "Instruction (%s):\n  %s\n\n", source, settings.Instruction)

	if len(settings.Examples) == 0 {
		fmt.Fprintln(w, "No examples (the model gets the instruction only)")
		return nil
	}
	for i, ex := range settings.Examples {
		fmt.Fprintf(w, "%d. Original:      %s\n", i+1, ex.Original)
		fmt.Fprintf(w, "   De-identified: %s\n", ex.Deidentified)
	}
	return nil
}

func newExamplesAddCmd() *cobra.Command {
	var original, deidentified string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an example pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(func(store storage.SettingsStore) error {
				settings, err := store.Load()
				if err != nil {
					return err
				}
				settings.Examples = append(settings.Examples, models.FewShotExample{
					Original:     strings.TrimSpace(original),
					Deidentified: strings.TrimSpace(deidentified),
				})
				if err := store.Save(settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added example %d\n", len(settings.Examples))
				return nil
			})
		},
		Example: `  anonymize examples add \
    --original "Maria met Tom in Lisbon in 2019." \
    --deidentified "*** met *** in *** in ***."`,
	}

	cmd.Flags().StringVar(&original, "original", "", "Original text")
	cmd.Flags().StringVar(&deidentified, "deidentified", "", "De-identified version of the original")
	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("deidentified")

	return cmd
}

func newExamplesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <number>",
		Short: "Remove an example by its number in 'examples list'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid example number %q", args[0])
			}
			if err := validatePositiveInt(n, "example number"); err != nil {
				return err
			}

			return withSettings(func(store storage.SettingsStore) error {
				settings, err := store.Load()
				if err != nil {
					return err
				}
				if n > len(settings.Examples) {
					return fmt.Errorf("example %d does not exist (have %d)", n, len(settings.Examples))
				}
				settings.Examples = append(settings.Examples[:n-1], settings.Examples[n:]...)
				if err := store.Save(settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed example %d, %d left\n", n, len(settings.Examples))
				return nil
			})
		},
	}
}

func newExamplesInstructionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instruction <text>",
		Short: "Replace the instruction placed before the examples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(args[0])
			if text == "" {
				return fmt.Errorf("instruction must not be empty")
			}

			return withSettings(func(store storage.SettingsStore) error {
				settings, err := store.Load()
				if err != nil {
					return err
				}
				settings.Instruction = text
				if err := store.Save(settings); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Instruction updated")
				return nil
			})
		},
	}
}

func newExamplesResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the built-in instruction and examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(func(store storage.SettingsStore) error {
				if err := store.Reset(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Examples reset to built-in defaults")
				return nil
			})
		},
	}
}

func newExamplesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the examples from a YAML export or a free-text example file",
		Long: `Replace the instruction and examples from a file.

YAML files (.yaml, .yml) are read as written by 'examples export'.
Any other file is read as free text with "Original:" and
"De-identified:" lines, one pair after another.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := readExamplesFile(args[0])
			if err != nil {
				return err
			}

			return withSettings(func(store storage.SettingsStore) error {
				if err := store.Save(settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d example(s) from %s\n", len(settings.Examples), args[0])
				return nil
			})
		},
	}
}

// readExamplesFile picks the YAML or free-text reader from the file extension
func readExamplesFile(path string) (models.PromptSettings, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.PromptSettings{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return storage.ImportExamples(f)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return models.PromptSettings{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(core.ParseExamples(string(data))) == 0 {
		return models.PromptSettings{}, fmt.Errorf("no Original:/De-identified: pairs found in %s", path)
	}
	return storage.FromLegacyText(string(data)), nil
}

func newExamplesExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the instruction and examples as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(func(store storage.SettingsStore) error {
				settings, err := store.Load()
				if err != nil {
					return err
				}

				if out == "" {
					return storage.ExportExamples(cmd.OutOrStdout(), settings)
				}

				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				if err := storage.ExportExamples(f, settings); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d example(s) to %s\n", len(settings.Examples), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")

	return cmd
}
