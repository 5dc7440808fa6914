package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/storage"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// printer formats counts in summaries ("1,234 messages").
var printer = message.NewPrinter(language.English)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// headerOptions returns the ParseDocument options for cfg. now pins the
// clock used for year disambiguation.
func headerOptions(cfg *config.Config, now func() time.Time) ([]fathom.HeaderOption, error) {
	policy, err := cfg.HeaderPolicy()
	if err != nil {
		return nil, err
	}
	opts := []fathom.HeaderOption{fathom.WithYearPolicy(policy)}
	if now != nil {
		opts = append(opts, fathom.WithClock(now))
	}
	return opts, nil
}

// loadDirectory builds the speaker directory from the roster file, or from
// the speakers table when no file is configured and a repository is open.
func loadDirectory(ctx context.Context, path string, repo *storage.Repository, logger logging.Logger) (*fathom.Directory, error) {
	var (
		speakers []fathom.Speaker
		err      error
	)
	switch {
	case path != "":
		path, err = config.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		speakers, err = fathom.LoadRoster(path)
	case repo != nil:
		speakers, err = repo.LoadSpeakers(ctx)
	default:
		logger.Warn("No speaker roster configured; speakers will not be resolved")
	}
	if err != nil {
		return nil, err
	}
	return fathom.NewDirectory(speakers), nil
}

// newContext bounds a command run by the configured timeout.
func newContext(parent context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if cfg.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, cfg.Timeout)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return printer.Sprintf("%d %s", n, one)
	}
	return printer.Sprintf("%d %s", n, many)
}

func statusLabel(ok bool) string {
	if ok {
		return "\033[32mOK\033[0m"
	}
	return "\033[31mFAILED\033[0m"
}
