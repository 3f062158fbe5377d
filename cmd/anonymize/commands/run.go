// ABOUTME: Run command anonymizes a text or markdown document section by section
// ABOUTME: Streams progress to stderr and honors Ctrl+C as a between-section cancel
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harper/anonymizer/internal/app"
	"github.com/harper/anonymizer/internal/config"
	"github.com/harper/anonymizer/internal/core"
	"github.com/harper/anonymizer/internal/models"
)

// ErrUnsupportedFormat is returned for documents whose text cannot be read directly
var ErrUnsupportedFormat = errors.New("unsupported document format")

type runOptions struct {
	out       string
	backend   string
	model     string
	partial   bool
	preflight bool
	dryRun    bool
}

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Anonymize a document",
		Long: `Anonymize a plain text or markdown document.

The document is split into sections on header lines (lines starting
with the configured delimiter, "#" by default). Each section is sent to
the model together with the few-shot examples. Sections the model fails
on keep their original text and are listed as warnings.

Press Ctrl+C once to stop after the current section; press it again to
abort immediately.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
		Example: `  # Anonymize a file and print the result
  anonymize run notes.md

  # Read from stdin and write to a file
  cat notes.txt | anonymize run --out notes.anon.txt

  # Keep the sections finished so far when cancelled
  anonymize run --partial --out draft.md notes.md

  # Show how the document would be split without calling the model
  anonymize run --dry-run notes.md`,
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the anonymized text to this file instead of stdout")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Inference backend override (ollama, openai, llamacpp)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name override")
	cmd.Flags().BoolVar(&opts.partial, "partial", false, "On cancel, output the finished sections and omit the unprocessed ones")
	cmd.Flags().BoolVar(&opts.preflight, "preflight", false, "Check the model is available before starting")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the sections the document splits into and exit")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunOverrides(cfg, opts); err != nil {
		return err
	}

	doc, err := readDocument(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	if opts.dryRun {
		return printSections(cmd.OutOrStdout(), core.NewChunker(cfg.HeaderDelimiter), doc)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close", "error", err)
		}
	}()

	settings, err := a.RunSettings()
	if err != nil {
		return fmt.Errorf("failed to load examples: %w", err)
	}

	ctx, abort := context.WithCancel(commandContext(cmd))
	defer abort()

	stderr := cmd.ErrOrStderr()
	if !quiet {
		fmt.Fprintf(stderr, "Anonymizing %s (%s) with %s/%s\n", doc.Name, humanize.Bytes(uint64(len(doc.Text))), cfg.Backend, cfg.ModelLabel())
	}

	run := a.Pipeline.Start(ctx, doc, settings)
	done := watchRun(run, abort, stderr)

	return writeResult(cmd.OutOrStdout(), stderr, opts.out, done)
}

// applyRunOverrides layers command flags over the environment config
func applyRunOverrides(cfg *config.Config, opts *runOptions) error {
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.partial {
		cfg.PartialOutput = true
	}
	if opts.preflight {
		cfg.Preflight = true
	}
	return cfg.Validate()
}

// watchRun renders progress and translates interrupts until the run delivers its terminal event
func watchRun(run *core.Run, abort context.CancelFunc, stderr io.Writer) models.TerminalEvent {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	finished := make(chan struct{})
	var done models.TerminalEvent
	var g errgroup.Group

	g.Go(func() error {
		interrupts := 0
		for {
			select {
			case <-signals:
				interrupts++
				if interrupts == 1 {
					fmt.Fprintln(stderr, "\nStopping after the current section (Ctrl+C again to abort)...")
					run.RequestCancel()
					continue
				}
				abort()
				return nil
			case <-finished:
				return nil
			}
		}
	})

	g.Go(func() error {
		for ev := range run.Progress() {
			if quiet {
				continue
			}
			mark := "ok"
			if !ev.ChunkSucceeded {
				mark = "kept original"
			}
			fmt.Fprintf(stderr, "[%d/%d] section %d %s\n", ev.Completed, ev.Total, ev.ChunkIndex, mark)
		}
		return nil
	})

	g.Go(func() error {
		done = <-run.Done()
		close(finished)
		return nil
	})

	_ = g.Wait()
	return done
}

// writeResult reports the terminal event and writes any output text
func writeResult(stdout, stderr io.Writer, outPath string, done models.TerminalEvent) error {
	if done.Status == models.RunFailed {
		return fmt.Errorf("anonymization failed: %w", done.Err)
	}

	failed := lo.FilterMap(done.Results, func(r models.ChunkResult, _ int) (int, bool) {
		return r.Index, !r.Succeeded
	})

	if done.FinalText != "" {
		if outPath != "" {
			if err := os.WriteFile(outPath, []byte(done.FinalText), 0600); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		} else if !jsonOutput() {
			fmt.Fprint(stdout, done.FinalText)
			if !strings.HasSuffix(done.FinalText, "\n") {
				fmt.Fprintln(stdout)
			}
		}
	}

	if jsonOutput() {
		response := map[string]interface{}{
			"run_id":          done.RunID,
			"status":          done.Status,
			"processed":       len(done.Results),
			"failed_sections": failed,
		}
		if outPath == "" {
			response["text"] = done.FinalText
		} else {
			response["output"] = outPath
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			return err
		}
	}

	if len(failed) > 0 {
		fmt.Fprintf(stderr, "Warning: %d section(s) kept their original text and may contain personal information: %s\n",
			len(failed), strings.Join(lo.Map(failed, func(i int, _ int) string { return fmt.Sprint(i) }), ", "))
	}

	if done.Status == models.RunCancelled {
		if done.FinalText == "" {
			fmt.Fprintf(stderr, "Cancelled after %d section(s); no output written (use --partial to keep finished sections)\n", len(done.Results))
		} else {
			fmt.Fprintf(stderr, "Cancelled after %d section(s); output has only the finished sections, unprocessed sections were omitted\n", len(done.Results))
		}
		return nil
	}

	if !quiet && outPath != "" {
		fmt.Fprintf(stderr, "Wrote %s\n", outPath)
	}
	return nil
}

// readDocument reads the named file, or stdin when no file is given
func readDocument(args []string, stdin io.Reader) (models.Document, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return models.Document{}, fmt.Errorf("failed to read stdin: %w", err)
		}
		return models.NewDocument("stdin", string(data)), nil
	}

	path := args[0]
	if models.FormatFromPath(path) == models.FormatDocx {
		return models.Document{}, fmt.Errorf("%w: %s (convert to .txt or .md first)", ErrUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read document: %w", err)
	}
	return models.NewDocument(path, string(data)), nil
}

// printSections shows how a document splits, without inference
func printSections(w io.Writer, chunker *core.Chunker, doc models.Document) error {
	chunks, err := chunker.Split(doc.Text)
	if err != nil {
		return err
	}

	if jsonOutput() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)
	}

	for _, c := range chunks {
		header := c.HeaderText
		if header == "" {
			header = "(preamble)"
		}
		fmt.Fprintf(w, "%3d  %-40s %s\n", c.Index, truncate(header, 40), humanize.Comma(int64(len([]rune(c.Body)))))
	}
	fmt.Fprintf(w, "\n%d section(s)\n", len(chunks))
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
