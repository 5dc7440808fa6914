package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/credentials"
)

// SecretStatus reports whether a secret is available.
type SecretStatus struct {
	Name   string `json:"name"`
	EnvVar string `json:"env_var"`
	Set    bool   `json:"set"`
	Error  string `json:"error,omitempty"`
}

// NewSecretsCommand creates the 'secrets' command group.
func NewSecretsCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage stored backend credentials",
		Long: fmt.Sprintf(`Manage the secrets fathom-etl uses to reach its backends.

Secrets are stored in the %s. Each can be overridden by an
environment variable, which takes precedence over the keyring.

Known secrets: %s`, credentials.Description(), strings.Join(credentials.Names(), ", ")),
	}

	set := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret in the keyring",
		Long: `Store a secret in the keyring. The value is read without echo from the
terminal, or from stdin when it is not a terminal.

Examples:
  fathom-etl secrets set postgres-password
  echo "$SECRET" | fathom-etl secrets set webhook-secret`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSecretsSet(deps, args[0], cmd.InOrStdin(), cmd.ErrOrStderr(), cmd.OutOrStdout())
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a secret from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := credentials.ParseSecret(args[0])
			if err != nil {
				return err
			}
			if err := deps.Secrets.Delete(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show which secrets are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSecretsList(deps, cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(set, del, list)
	return cmd
}

// readSecret reads one value from in. A terminal is read without echo.
func readSecret(in io.Reader, prompt io.Writer, name credentials.Secret) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "Enter %s: ", name)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", name, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return strings.TrimSpace(line), nil
}

func runSecretsSet(deps *CommandDeps, arg string, stdin io.Reader, stderr, stdout io.Writer) error {
	name, err := credentials.ParseSecret(arg)
	if err != nil {
		return err
	}
	value, err := readSecret(stdin, stderr, name)
	if err != nil {
		return err
	}
	if err := deps.Secrets.Set(name, value); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Stored %s in %s\n", name, credentials.Description())
	return nil
}

func secretStatuses(store SecretStore) []SecretStatus {
	names := credentials.Names()
	statuses := make([]SecretStatus, 0, len(names))
	for _, n := range names {
		s := credentials.Secret(n)
		st := SecretStatus{Name: n, EnvVar: s.EnvVar()}
		v, err := store.Lookup(s)
		if err != nil {
			st.Error = err.Error()
		}
		st.Set = v != ""
		statuses = append(statuses, st)
	}
	return statuses
}

func runSecretsList(deps *CommandDeps, stdout io.Writer) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	statuses := secretStatuses(deps.Secrets)
	if cfg.OutputFormat == config.OutputFormatJSON {
		return outputJSON(stdout, statuses)
	}

	fmt.Fprintf(stdout, "Backend: %s\n\n", credentials.Description())
	for _, st := range statuses {
		state := "not set"
		if st.Set {
			state = "set"
		}
		if st.Error != "" {
			state = st.Error
		}
		fmt.Fprintf(stdout, "  %-20s %-26s %s\n", st.Name, st.EnvVar, state)
	}
	return nil
}
