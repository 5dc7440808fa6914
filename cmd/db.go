package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/pkg/db"
)

// dbOptions holds the db command flags.
type dbOptions struct {
	migrations string
	dryRun     bool
	target     string
	yes        bool
}

// migrationsFS returns the embedded migrations, or dir when set.
func (o dbOptions) migrationsFS() fs.FS {
	if o.migrations != "" {
		return os.DirFS(o.migrations)
	}
	return db.Migrations()
}

// NewDbCommand creates the 'db' command group.
func NewDbCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	var opts dbOptions

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the postgres message store schema",
		Long: `Manage the postgres schema that stores transcript messages, the speaker
roster and batch job records.

Migrations are embedded in the binary and tracked in the schema_migrations
table. The connection comes from the postgres section of the config and the
postgres-password secret.

Examples:
  fathom-etl db status
  fathom-etl db migrate
  fathom-etl db migrate --dry-run
  fathom-etl db migrate --target 002 --yes`,
		Aliases: []string{"database"},
	}

	cmd.PersistentFlags().StringVarP(&opts.migrations, "migrations", "m", "", "Read migrations from this directory instead of the embedded set")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Long: `Apply pending migrations in version order. Each migration runs in its own
transaction; the run stops at the first failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbMigrate(cmd.Context(), deps, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	migrate.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Show pending migrations without applying them")
	migrate.Flags().StringVarP(&opts.target, "target", "t", "", "Apply migrations up to and including this version")
	migrate.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Do not ask for confirmation")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied, pending and drifted migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbStatus(cmd.Context(), deps, opts, cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(migrate, status)
	return cmd
}

func runDbMigrate(ctx context.Context, deps *CommandDeps, opts dbOptions, stdin io.Reader, stdout io.Writer) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	ctx, cancel := newContext(ctx, cfg)
	defer cancel()

	pool, err := deps.ConnectDB(ctx, cfg, deps.Secrets)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close(pool)

	fsys := opts.migrationsFS()
	status, err := db.Status(ctx, pool, fsys)
	if err != nil {
		return err
	}
	if len(status.Pending) == 0 {
		fmt.Fprintln(stdout, "No pending migrations.")
		return nil
	}

	fmt.Fprintf(stdout, "Pending migrations (%d):\n", len(status.Pending))
	for _, m := range status.Pending {
		fmt.Fprintf(stdout, "  %s - %s\n", m.Version, m.Name)
	}

	if opts.dryRun {
		fmt.Fprintln(stdout, "\nDry run: no migrations applied.")
		return nil
	}
	if !opts.yes && !confirm(stdin, stdout, "Apply these migrations?") {
		fmt.Fprintln(stdout, "Migration cancelled.")
		return nil
	}

	result, err := db.Migrate(ctx, pool, fsys, opts.target)
	if result != nil {
		for _, v := range result.Applied {
			fmt.Fprintf(stdout, "  \033[32m✓\033[0m %s\n", v)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Applied %s.\n", plural(len(result.Applied), "migration", "migrations"))
	return nil
}

func runDbStatus(ctx context.Context, deps *CommandDeps, opts dbOptions, stdout io.Writer) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	ctx, cancel := newContext(ctx, cfg)
	defer cancel()

	pool, err := deps.ConnectDB(ctx, cfg, deps.Secrets)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close(pool)

	status, err := db.Status(ctx, pool, opts.migrationsFS())
	if err != nil {
		return err
	}
	if cfg.OutputFormat == config.OutputFormatJSON {
		return outputJSON(stdout, status)
	}
	printMigrationStatus(stdout, status)
	return nil
}

func printMigrationStatus(w io.Writer, status *db.MigrationStatus) {
	fmt.Fprintf(w, "Applied: %d  Pending: %d  Drift: %d\n", len(status.Applied), len(status.Pending), len(status.Drift))

	section := func(title string, entries []db.MigrationStatusEntry) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s:\n", title)
		for _, e := range entries {
			applied := ""
			if e.AppliedAt != nil {
				applied = e.AppliedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "  %-6s %-40s %s\n", e.Version, truncate(e.Name, 40), applied)
		}
	}
	section("Applied", status.Applied)
	section("Pending", status.Pending)
	section("Drift (applied, file missing)", status.Drift)
}

// confirm asks a yes/no question on stdout and reads the answer from stdin.
func confirm(stdin io.Reader, stdout io.Writer, question string) bool {
	fmt.Fprintf(stdout, "\n%s (y/N): ", question)
	answer, _ := bufio.NewReader(stdin).ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
