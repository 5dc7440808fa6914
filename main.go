// Package main provides the fathom-etl CLI entry point.
// fathom-etl turns Fathom meeting transcripts into speaker-resolved JSONL
// messages and delivers them to the configured stores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/fathom-etl/cmd"
	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/pkg/buildinfo"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// Global flags and state.
var (
	cfgFile      string
	timeout      time.Duration
	outputFormat string
	debug        bool
	logJSON      bool

	// deps are shared by every subcommand; the root command fills in the
	// loaded config and logger.
	deps = cmd.DefaultDeps()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fathom-etl",
	Short: "Fathom transcript ETL",
	Long: `fathom-etl parses Fathom meeting transcripts into JSONL messages with
speakers resolved to email addresses.

Transcripts arrive as standalone exports (.srt/.txt with a title, date and
recording URL header) or as "recording ready" webhooks. Messages are written
to one JSONL file per transcript and optionally upserted into postgres and
cassandra, with progress published to redis.

COMMON WORKFLOWS:
  Parse exports:     fathom-etl parse ./exports --roster speakers.yaml
  Replay a webhook:  fathom-etl webhook payload.json --roster speakers.yaml
  Run intake:        fathom-etl serve
  Backfill history:  fathom-etl backfill ./exports --out ./payloads
  Prepare postgres:  fathom-etl db migrate  →  fathom-etl speakers import speakers.yaml

Use --output json for structured results.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var (
			cfg *config.Config
			err error
		)
		if cfgFile != "" {
			cfg, err = config.LoadConfigFrom(cfgFile)
		} else {
			cfg, err = config.LoadConfig()
		}
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Override with command-line flags.
		if timeout != 0 {
			cfg.Timeout = timeout
		}
		if outputFormat != "" {
			cfg.OutputFormat = config.OutputFormat(outputFormat)
			if !cfg.OutputFormat.IsValid() {
				return fmt.Errorf("invalid --output %q (must be text or json)", outputFormat)
			}
		}
		if debug {
			cfg.Debug = true
		}
		if logJSON {
			cfg.LogJSON = true
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		logging.SetGlobal(logger)

		deps.Config = cfg
		deps.Logger = logger
		return nil
	},
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	return logging.NewLogger(&logging.Config{
		Level:      level,
		JSONFormat: cfg.LogJSON,
		Output:     os.Stderr,
	}), nil
}

var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of fathom-etl.

Examples:
  fathom-etl version
  fathom-etl version --output-json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get(logging.ServiceName)
		out := cmd.OutOrStdout()
		if versionOutputJSON || outputFormat == string(config.OutputFormatJSON) {
			return writeJSON(out, info)
		}
		fmt.Fprintf(out, "fathom-etl version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
		return nil
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.fathom-etl/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Timeout for the whole command (default: timeout from config)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "O", "", "Output format: text, json")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON to stderr")

	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output version information as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cmd.NewParseCommand(deps))
	rootCmd.AddCommand(cmd.NewWebhookCommand(deps))
	rootCmd.AddCommand(cmd.NewServeCommand(deps))
	rootCmd.AddCommand(cmd.NewBackfillCommand(deps))
	rootCmd.AddCommand(cmd.NewSpeakersCommand(deps))
	rootCmd.AddCommand(cmd.NewDbCommand(deps))
	rootCmd.AddCommand(cmd.NewSecretsCommand(deps))
	rootCmd.AddCommand(cmd.NewConfigCommand(deps))
}

func main() {
	// Cancel the command context on interrupt; serve shuts down gracefully
	// and batch runs stop between files.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
