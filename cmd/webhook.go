package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/export"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/intake"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/storage"
)

// webhookOptions holds the webhook command flags.
type webhookOptions struct {
	roster string
	out    string
	store  bool
}

// NewWebhookCommand creates the 'webhook' command.
func NewWebhookCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	var opts webhookOptions

	cmd := &cobra.Command{
		Use:   "webhook <payload.json>",
		Short: "Parse a saved Fathom webhook payload",
		Long: `Parse a saved Fathom webhook payload into JSONL messages.

Title, date and recording URL come from the payload; only the transcript
plaintext is parsed. A speaker roster is required. Use "-" to read the
payload from stdin.

Without --out, messages are written to stdout.

Examples:
  fathom-etl webhook payload.json --roster speakers.yaml
  fathom-etl webhook payload.json --out ./jsonl --store
  curl -s https://example.com/hook.json | fathom-etl webhook -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWebhook(cmd.Context(), deps, opts, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.roster, "roster", "", "Speaker roster file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output directory (default: stdout)")
	cmd.Flags().BoolVar(&opts.store, "store", false, "Also upsert into configured stores and publish events")

	return cmd
}

// readWebhook decodes a payload from path, or from stdin when path is "-".
func readWebhook(path string, stdin io.Reader) (*fathom.Webhook, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	var hook fathom.Webhook
	if err := json.Unmarshal(data, &hook); err != nil {
		return nil, fmt.Errorf("decoding payload %s: %w", path, err)
	}
	return &hook, nil
}

func runWebhook(ctx context.Context, deps *CommandDeps, opts webhookOptions, path string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	logger := deps.logger()

	ctx, cancel := newContext(ctx, cfg)
	defer cancel()

	hook, err := readWebhook(path, stdin)
	if err != nil {
		return err
	}

	var backends *Backends
	if opts.store {
		backends, err = deps.OpenBackends(ctx, cfg, deps.Secrets, logger)
		if err != nil {
			return err
		}
		defer backends.Close()
	}

	roster := opts.roster
	if roster == "" {
		roster = cfg.RosterPath
	}
	var repo *storage.Repository
	if backends != nil {
		repo = backends.Repository
	}
	dir, err := loadDirectory(ctx, roster, repo, logger)
	if err != nil {
		return err
	}

	ideps := intake.Deps{
		Directory: dir,
		Sinks:     backends.Sinks(),
		Logger:    logger,
	}
	if opts.out != "" {
		ideps.Writer = export.NewWriter(opts.out, cfg.Compress, logger)
	}
	if backends != nil && backends.Events != nil {
		ideps.Events = backends.Events
	}

	res, err := intake.NewService(ideps).Ingest(ctx, hook)
	if err != nil {
		return err
	}

	switch {
	case opts.out == "":
		return export.WriteJSONL(stdout, res.Messages)
	case cfg.OutputFormat == config.OutputFormatJSON:
		return outputJSON(stdout, res)
	default:
		printer.Fprintf(stdout, "Webhook %d: recording %s, %s\n", res.WebhookID, res.RecordingID, plural(res.MessageCount, "message", "messages"))
		fmt.Fprintf(stdout, "Output: %s\n", res.OutputPath)
		for _, name := range slices.Sorted(maps.Keys(res.Stored)) {
			printer.Fprintf(stdout, "Stored: %s (%d rows)\n", name, res.Stored[name])
		}
		if len(res.Unresolved) > 0 {
			fmt.Fprintf(stdout, "Unresolved speakers: %v\n", res.Unresolved)
		}
		return nil
	}
}
