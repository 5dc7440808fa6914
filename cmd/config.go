package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/fathom-etl/config"
)

// NewConfigCommand creates the 'config' command group.
func NewConfigCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise the configuration file",
		Long: `Show or initialise the fathom-etl configuration.

Settings are read from ~/.fathom-etl/config.yaml (or $FATHOM_CONFIG_DIR), then
overridden by FATHOM_* environment variables and command-line flags. Passwords
are never stored here; see 'fathom-etl secrets'.`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(deps, cmd.OutOrStdout())
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(deps, force, cmd.OutOrStdout())
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")

	cmd.AddCommand(show, initCmd)
	return cmd
}

func runConfigShow(deps *CommandDeps, stdout io.Writer) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	if cfg.OutputFormat == config.OutputFormatJSON {
		return outputJSON(stdout, cfg)
	}

	if path, err := config.ConfigPath(); err == nil {
		fmt.Fprintf(stdout, "# %s\n", path)
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

func runConfigInit(deps *CommandDeps, force bool, stdout io.Writer) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := deps.SaveConfig(config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}
