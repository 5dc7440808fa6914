package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/pkg/db"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/storage"
)

// RosterReport describes a loaded roster.
type RosterReport struct {
	Path       string                 `json:"path"`
	Speakers   int                    `json:"speakers"`
	Keys       int                    `json:"keys"`
	Collisions map[string][]string    `json:"collisions"`
	Resolved   []fathom.SpeakerResult `json:"resolved,omitempty"`
}

// NewSpeakersCommand creates the 'speakers' command group.
func NewSpeakersCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "speakers",
		Short: "Inspect and import the speaker roster",
		Long: `Inspect and import the speaker roster used to resolve transcript speaker
labels to canonical email addresses.

A roster is YAML or JSON, either {"speakers_internal": [...]} or a bare list
of {name, email, aliases} entries. Names and aliases match case-insensitively.
When two entries claim the same name or alias, the later entry wins.`,
	}

	cmd.AddCommand(newSpeakersCheckCommand(deps))
	cmd.AddCommand(newSpeakersImportCommand(deps))
	return cmd
}

func newSpeakersCheckCommand(deps *CommandDeps) *cobra.Command {
	var labels []string
	cmd := &cobra.Command{
		Use:   "check <roster>",
		Short: "Validate a roster and report alias collisions",
		Long: `Validate a roster file and report names or aliases claimed by more than
one email. Use --resolve to see how given labels resolve.

Examples:
  fathom-etl speakers check speakers.yaml
  fathom-etl speakers check speakers.yaml --resolve "Alice" --resolve "bob"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpeakersCheck(deps, args[0], labels, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringArrayVar(&labels, "resolve", nil, "Speaker label to resolve (repeatable)")
	return cmd
}

func newSpeakersImportCommand(deps *CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "import <roster>",
		Short: "Replace the speakers table with a roster file",
		Long: `Replace the contents of the postgres speakers table with a roster file.
Runs that have no roster_path configured load speakers from this table.

Example:
  fathom-etl speakers import speakers.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpeakersImport(cmd.Context(), deps, args[0], cmd.OutOrStdout())
		},
	}
}

func checkRoster(path string, labels []string) (*RosterReport, error) {
	speakers, err := fathom.LoadRoster(path)
	if err != nil {
		return nil, err
	}
	dir := fathom.NewDirectory(speakers)
	report := &RosterReport{
		Path:       path,
		Speakers:   len(speakers),
		Keys:       dir.Len(),
		Collisions: fathom.Collisions(speakers),
	}
	if len(labels) > 0 {
		report.Resolved = dir.ResolveAll(labels)
	}
	return report, nil
}

func runSpeakersCheck(deps *CommandDeps, path string, labels []string, stdout io.Writer) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	report, err := checkRoster(path, labels)
	if err != nil {
		return err
	}

	if cfg.OutputFormat == config.OutputFormatJSON {
		return outputJSON(stdout, report)
	}

	printer.Fprintf(stdout, "%s: %s, %s\n", report.Path,
		plural(report.Speakers, "speaker", "speakers"), plural(report.Keys, "lookup key", "lookup keys"))

	if len(report.Collisions) == 0 {
		fmt.Fprintln(stdout, "No collisions.")
	} else {
		keys := make([]string, 0, len(report.Collisions))
		for k := range report.Collisions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(stdout, "\nCollisions (last entry wins):\n")
		for _, k := range keys {
			emails := report.Collisions[k]
			fmt.Fprintf(stdout, "  %-24s %s -> %s\n", truncate(k, 24), strings.Join(emails, ", "), emails[len(emails)-1])
		}
	}

	if len(report.Resolved) > 0 {
		fmt.Fprintln(stdout, "\nResolution:")
		for _, r := range report.Resolved {
			fmt.Fprintf(stdout, "  %-24s %-32s %s\n", truncate(r.Label, 24), r.Email, statusLabel(r.Resolved))
		}
	}
	return nil
}

func runSpeakersImport(ctx context.Context, deps *CommandDeps, path string, stdout io.Writer) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	speakers, err := fathom.LoadRoster(path)
	if err != nil {
		return err
	}

	ctx, cancel := newContext(ctx, cfg)
	defer cancel()

	pool, err := deps.ConnectDB(ctx, cfg, deps.Secrets)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	if err := storage.NewRepository(pool, deps.logger()).ReplaceSpeakers(ctx, speakers); err != nil {
		return err
	}
	printer.Fprintf(stdout, "Imported %s from %s\n", plural(len(speakers), "speaker", "speakers"), path)
	return nil
}
