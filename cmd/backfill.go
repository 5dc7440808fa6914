package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/batch"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/export"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// backfillOptions holds the backfill command flags.
type backfillOptions struct {
	out       string
	startID   int
	userName  string
	userEmail string
	team      string
}

// BackfillResult summarises a backfill run.
type BackfillResult struct {
	Written []BackfillFile  `json:"written"`
	Failed  []BackfillError `json:"failed"`
}

// BackfillFile is one replayable payload written to disk.
type BackfillFile struct {
	Source    string `json:"source"`
	Output    string `json:"output"`
	WebhookID int    `json:"webhook_id"`
}

// BackfillError is an export that could not be converted.
type BackfillError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// NewBackfillCommand creates the 'backfill' command.
func NewBackfillCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	opts := backfillOptions{userName: "fathom-etl-backfill"}

	cmd := &cobra.Command{
		Use:   "backfill <path>",
		Short: "Convert standalone exports into replayable webhook payloads",
		Long: `Convert standalone Fathom exports into webhook payloads so historical
recordings can be replayed through webhook intake.

Each export becomes one JSONL file named by a time-ordered UUID. Payload ids
are assigned in file order starting at --start-id.

Examples:
  fathom-etl backfill ./exports --out ./payloads --user-email ops@example.com
  fathom-etl backfill "Team Sync.srt" --out ./payloads --team devx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), deps, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output directory for payload files (default: output_dir)")
	cmd.Flags().IntVar(&opts.startID, "start-id", 0, "Webhook id of the first payload")
	cmd.Flags().StringVar(&opts.userName, "user-name", opts.userName, "fathom_user.name of every payload")
	cmd.Flags().StringVar(&opts.userEmail, "user-email", "", "fathom_user.email of every payload")
	cmd.Flags().StringVar(&opts.team, "team", "", "fathom_user.team of every payload")

	return cmd
}

func runBackfill(ctx context.Context, deps *CommandDeps, opts backfillOptions, path string, stdout io.Writer) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	logger := deps.logger().With(logging.F("command", "backfill"))

	files, err := batch.Discover(path)
	if err != nil {
		return err
	}
	hopts, err := headerOptions(cfg, deps.Now)
	if err != nil {
		return err
	}

	out := opts.out
	if out == "" {
		out = cfg.OutputDir
	}
	writer := export.NewWriter(out, cfg.Compress, logger)
	user := fathom.FathomUser{Name: opts.userName, Email: opts.userEmail, Team: opts.team}

	result := BackfillResult{Written: []BackfillFile{}, Failed: []BackfillError{}}
	id := opts.startID
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		written, err := backfillFile(writer, file, id, user, hopts)
		if err != nil {
			logger.Error("Failed to backfill export", logging.F("file", file), logging.Err(err))
			result.Failed = append(result.Failed, BackfillError{Source: file, Error: err.Error()})
			continue
		}
		result.Written = append(result.Written, written)
		id++
	}

	if cfg.OutputFormat == config.OutputFormatJSON {
		if err := outputJSON(stdout, result); err != nil {
			return err
		}
	} else {
		printer.Fprintf(stdout, "Wrote %s to %s\n", plural(len(result.Written), "payload", "payloads"), out)
		for _, f := range result.Failed {
			fmt.Fprintf(stdout, "  failed: %s: %s\n", f.Source, f.Error)
		}
	}

	if len(result.Failed) > 0 {
		return fmt.Errorf("%s of %d failed", plural(len(result.Failed), "export", "exports"), len(files))
	}
	return nil
}

// backfillFile converts one export. The export is parsed in full so only
// payloads that webhook intake can accept are written.
func backfillFile(writer *export.Writer, path string, id int, user fathom.FathomUser, opts []fathom.HeaderOption) (BackfillFile, error) {
	lines, err := fathom.ReadFile(path)
	if err != nil {
		return BackfillFile{}, err
	}
	doc, err := fathom.ParseDocument(path, lines, fathom.NewDirectory(nil), opts...)
	if err != nil {
		return BackfillFile{}, err
	}

	name, err := export.BackfillName()
	if err != nil {
		return BackfillFile{}, err
	}
	output, err := writer.WriteWebhooks(name, []*fathom.Webhook{doc.Webhook(id, user)})
	if err != nil {
		return BackfillFile{}, err
	}
	return BackfillFile{Source: path, Output: output, WebhookID: id}, nil
}
