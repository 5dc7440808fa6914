package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/fathom-etl/config"
	pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/batch"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/export"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/storage"
)

// parseOptions holds the parse command flags.
type parseOptions struct {
	roster      string
	out         string
	compress    bool
	concurrency int
	dryRun      bool
}

// apply overlays the flags onto a copy of cfg.
func (o parseOptions) apply(cfg *config.Config) *config.Config {
	c := *cfg
	if o.roster != "" {
		c.RosterPath = o.roster
	}
	if o.out != "" {
		c.OutputDir = o.out
	}
	if o.compress {
		c.Compress = true
	}
	if o.concurrency > 0 {
		c.Concurrency = o.concurrency
	}
	return &c
}

// NewParseCommand creates the 'parse' command.
func NewParseCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	var opts parseOptions

	cmd := &cobra.Command{
		Use:   "parse <path>",
		Short: "Parse Fathom transcript exports into JSONL messages",
		Long: `Parse Fathom transcript exports (.srt or .txt) into one JSONL file of
messages per recording.

<path> is a single export or a directory, which is searched recursively.
Hidden files and directories are skipped. A malformed export is reported and
skipped; the rest of the batch continues.

Messages are also upserted into every configured store (postgres, cassandra)
and announced on the redis channel when those sections are configured.

Examples:
  # Parse one export with a roster
  fathom-etl parse "Team Sync.srt" --roster speakers.yaml

  # Parse a folder into gzip JSONL, 8 files at a time
  fathom-etl parse ./exports --out ./jsonl --compress --concurrency 8

  # Check a folder for parse errors without writing anything
  fathom-etl parse ./exports --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd.Context(), deps, opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.roster, "roster", "", "Speaker roster file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output directory for JSONL files")
	cmd.Flags().BoolVar(&opts.compress, "compress", false, "Write gzip-compressed JSONL")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "Number of exports parsed at once")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Parse only; write, store and publish nothing")

	return cmd
}

func runParse(ctx context.Context, deps *CommandDeps, opts parseOptions, path string, stdout, stderr io.Writer) error {
	base, err := deps.config()
	if err != nil {
		return err
	}
	cfg := opts.apply(base)
	logger := deps.logger()

	ctx, cancel := newContext(ctx, cfg)
	defer cancel()

	var backends *Backends
	if !opts.dryRun {
		backends, err = deps.OpenBackends(ctx, cfg, deps.Secrets, logger)
		if err != nil {
			return err
		}
		defer backends.Close()
	}

	var repo *storage.Repository
	if backends != nil {
		repo = backends.Repository
	}
	dir, err := loadDirectory(ctx, cfg.RosterPath, repo, logger)
	if err != nil {
		return err
	}
	hopts, err := headerOptions(cfg, deps.Now)
	if err != nil {
		return err
	}

	bdeps := batch.Deps{
		Directory: dir,
		Sinks:     backends.Sinks(),
		Logger:    logger,
	}
	if !opts.dryRun {
		bdeps.Writer = export.NewWriter(cfg.OutputDir, cfg.Compress, logger)
	}
	if repo != nil {
		bdeps.Jobs = repo
	}
	if backends != nil && backends.Events != nil {
		bdeps.Events = backends.Events
	}

	bcfg := batch.Config{
		Concurrency:   cfg.Concurrency,
		DryRun:        opts.dryRun,
		HeaderOptions: hopts,
	}
	if cfg.OutputFormat == config.OutputFormatText && isTerminal(stderr) {
		bcfg.OnProgress = progressLine(stderr)
	}

	result, err := batch.NewProcessor(bcfg, bdeps).Process(ctx, path)
	if err != nil {
		return err
	}

	if cfg.OutputFormat == config.OutputFormatJSON {
		if err := outputJSON(stdout, result); err != nil {
			return err
		}
	} else {
		printParseSummary(stdout, result, bdeps.Writer)
	}

	if result.FailedCount > 0 {
		return fmt.Errorf("%s of %d failed", plural(result.FailedCount, "file", "files"), result.TotalFiles)
	}
	return nil
}

// progressLine renders progress on a single terminal line.
func progressLine(w io.Writer) func(batch.ProgressSnapshot) {
	var mu sync.Mutex
	return func(s batch.ProgressSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		switch s.Status {
		case batch.StatusCompleted, batch.StatusFailed, batch.StatusCancelled:
			fmt.Fprint(w, "\r\033[K")
		default:
			fmt.Fprintf(w, "\r\033[K[%d/%d] %3.0f%% %s",
				s.ProcessedCount, s.TotalFiles, s.PercentComplete(), truncate(filepath.Base(s.CurrentFile), 50))
		}
	}
}

func printParseSummary(w io.Writer, r *batch.Result, writer *export.Writer) {
	printer.Fprintf(w, "Parsed %s: %d imported, %d failed, %s\n",
		plural(r.TotalFiles, "file", "files"), r.ImportedCount, r.FailedCount, plural(r.MessageCount, "message", "messages"))
	if writer != nil && r.ImportedCount > 0 {
		fmt.Fprintf(w, "Output: %s\n", writer.Dir())
	}

	var unresolved []batch.FileResult
	for _, f := range r.Files {
		if len(f.Unresolved) > 0 {
			unresolved = append(unresolved, f)
		}
	}
	if len(unresolved) > 0 {
		fmt.Fprintln(w, "\nUnresolved speakers:")
		for _, f := range unresolved {
			fmt.Fprintf(w, "  %s: %v\n", filepath.Base(f.FilePath), f.Unresolved)
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nFailed:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n    %s: %s\n", e.FilePath, e.Code, e.Error)
			fmt.Fprintf(w, "    %s\n", pferrors.GetSuggestedAction(e.Code))
		}
	}
}
