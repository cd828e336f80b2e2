package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"mycelica/notetree/internal/config"
	"mycelica/notetree/internal/db"
	"mycelica/notetree/internal/pg"
	"mycelica/notetree/internal/tree"
)

var (
	configPath string
	dbPath     string
	driverName string
	orgID      string
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "notetree",
	Short:         "Tenant-scoped ordered note trees",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a notetree YAML config file")
	pf.StringVar(&dbPath, "db", "", "SQLite path or Postgres DSN (overrides config)")
	pf.StringVar(&driverName, "driver", "", "Storage driver: sqlite or postgres (overrides config)")
	pf.StringVar(&orgID, "org", "", "Organization to operate on (overrides config)")
	pf.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

// LoadConfig resolves configuration: file and environment first, then the
// persistent flags on top.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	if driverName != "" {
		cfg.Driver = driverName
	}
	if orgID != "" {
		cfg.Organization = orgID
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// App bundles an opened store with the service running on it.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Store  tree.Store
	Refs   tree.RefStore
	Svc    *tree.Service
	close  func() error
}

// Org is the organization every command operates on.
func (a *App) Org() string {
	return a.Config.Organization
}

// Close releases the store.
func (a *App) Close() error {
	return a.close()
}

// OpenApp loads configuration and opens the configured store.
func OpenApp(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, os.Stderr)

	app := &App{Config: cfg, Logger: logger}
	var hook tree.SubtreeHook
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := pg.Open(ctx, cfg.Database, pg.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		app.Store, app.Refs, app.close = s, s, s.Close
		hook = pg.RefDetacher()
	default:
		d, err := db.OpenDB(cfg.Database, db.WithBusyTimeout(cfg.BusyTimeout()), db.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		app.Store, app.Refs, app.close = d, d, d.Close
		hook = db.RefDetacher()
	}
	logger.Debug("store opened", "driver", cfg.Driver, "org", cfg.Organization, "config", cfg.Source)

	app.Svc = tree.NewService(app.Store, tree.WithLogger(logger), tree.WithSubtreeHook(hook))
	return app, nil
}

// ResolveNote finds a note by full ID, ID prefix, or title search.
func ResolveNote(ctx context.Context, svc *tree.Service, org, reference string) (*tree.Note, error) {
	// 1. Exact ID match
	note, err := svc.Get(ctx, org, reference)
	if err == nil {
		return note, nil
	}
	if !errors.Is(err, tree.ErrNotFound) {
		return nil, err
	}

	// 2. ID prefix match (≥6 hex/dash chars)
	if len(reference) >= 6 && isHexDash(reference) {
		matches, err := svc.FindByIDPrefix(ctx, org, reference, 10)
		if err != nil {
			return nil, err
		}
		switch len(matches) {
		case 1:
			return &matches[0], nil
		case 0:
			// fall through to search
		default:
			return nil, ambiguous(reference, matches, "Use a full note ID instead.")
		}
	}

	// 3. Title search
	results, err := svc.Search(ctx, org, reference, 10)
	if err == nil {
		var exact []tree.Note
		for _, n := range results {
			if strings.EqualFold(n.Title, reference) {
				exact = append(exact, n)
			}
		}
		if len(exact) == 1 {
			return &exact[0], nil
		}
		switch len(results) {
		case 1:
			return &results[0], nil
		case 0:
			// fall through to not found
		default:
			return nil, ambiguous(reference, results, "Use a note ID instead.")
		}
	}

	return nil, fmt.Errorf("note not found: %s: %w", reference, tree.ErrNotFound)
}

func ambiguous(reference string, matches []tree.Note, hint string) error {
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("  %s %s", truncID(m.ID), m.Title)
	}
	return fmt.Errorf("ambiguous reference '%s'. %d matches:\n%s\n%s",
		reference, len(matches), strings.Join(lines, "\n"), hint)
}

func isHexDash(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') || c == '-') {
			return false
		}
	}
	return true
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncTitle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back off to the start of the rune that straddles max
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
