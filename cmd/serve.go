package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/credentials"
	"github.com/otherjamesbrown/fathom-etl/pkg/db"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/export"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/intake"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/observability"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// serveOptions holds the serve command flags.
type serveOptions struct {
	addr   string
	roster string
	out    string
}

// NewServeCommand creates the 'serve' command.
func NewServeCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive Fathom webhooks over HTTP",
		Long: `Run the webhook intake server.

Routes:
  POST /webhooks/fathom   Fathom "recording ready" webhook
  GET  /metrics           Prometheus metrics
  GET  /healthz           Liveness, including the postgres pool when configured
  GET  /version           Build information

Deliveries are verified against the webhook-secret credential when it is
set. Each transcript is written as JSONL to the output directory and upserted
into every configured store.

Examples:
  fathom-etl serve --roster speakers.yaml
  FATHOM_WEBHOOK_SECRET=whsec_... fathom-etl serve --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), deps, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default: http.listen_addr)")
	cmd.Flags().StringVar(&opts.roster, "roster", "", "Speaker roster file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output directory for JSONL files (default: output_dir)")

	return cmd
}

// serveParts are the wired components of the intake server.
type serveParts struct {
	config   intake.ServerConfig
	backends *Backends
}

func buildServer(ctx context.Context, deps *CommandDeps, cfg *config.Config, opts serveOptions, logger logging.Logger) (*serveParts, error) {
	backends, err := deps.OpenBackends(ctx, cfg, deps.Secrets, logger)
	if err != nil {
		return nil, err
	}

	roster := opts.roster
	if roster == "" {
		roster = cfg.RosterPath
	}
	dir, err := loadDirectory(ctx, roster, backends.Repository, logger)
	if err != nil {
		backends.Close()
		return nil, err
	}
	if dir.Len() == 0 {
		backends.Close()
		return nil, fmt.Errorf("serve requires a non-empty speaker roster: %w", fathom.ErrNoSpeakers)
	}

	var verifier *intake.Verifier
	secret, err := deps.Secrets.Lookup(credentials.WebhookSecret)
	if err != nil {
		backends.Close()
		return nil, err
	}
	if secret == "" {
		logger.Warn("No webhook secret configured; accepting unsigned deliveries")
	} else if verifier, err = intake.NewVerifier(secret); err != nil {
		backends.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewIngestMetrics(reg)
	if backends.Pool != nil {
		if _, err := db.RegisterPoolStatsCollector(reg, backends.Pool, observability.Namespace); err != nil {
			backends.Close()
			return nil, err
		}
	}

	out := opts.out
	if out == "" {
		out = cfg.OutputDir
	}
	ideps := intake.Deps{
		Directory: dir,
		Writer:    export.NewWriter(out, cfg.Compress, logger),
		Sinks:     backends.Sinks(),
		Metrics:   metrics,
		Logger:    logger,
	}
	if backends.Events != nil {
		ideps.Events = backends.Events
	}

	addr := opts.addr
	if addr == "" {
		addr = cfg.HTTP.ListenAddr
	}
	sc := intake.ServerConfig{
		Addr:     addr,
		Webhook:  intake.NewHandler(intake.NewService(ideps), verifier, cfg.HTTP.MaxBodyBytes, logger),
		Gatherer: reg,
	}
	if backends.Pool != nil {
		sc.Database = backends.Pool
	}
	return &serveParts{config: sc, backends: backends}, nil
}

func runServe(ctx context.Context, deps *CommandDeps, opts serveOptions) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	logger := deps.logger()

	parts, err := buildServer(ctx, deps, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer parts.backends.Close()

	// The server runs until interrupted; cfg.Timeout bounds batch commands only.
	return intake.Serve(ctx, intake.NewServer(parts.config), logger)
}
