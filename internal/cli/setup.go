package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/molder-opina/pronto-static-sub000/internal/app"
	"github.com/molder-opina/pronto-static-sub000/internal/cart"
	"github.com/molder-opina/pronto-static-sub000/internal/config"
)

// newFormatter builds an OutputFormatter bound to the command's streams.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger configures slog for a command run. Diagnostics go to stderr so
// JSON output on stdout stays machine-readable.
func newLogger(opts *RootOptions) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the effective configuration for a command run.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if opts.Table != 0 {
		cfg.TableID = opts.Table
	}
	return cfg, nil
}

// buildApp constructs a wired App for a command run. Storage degradation
// warnings are routed through the formatter so the diner sees them once.
func buildApp(opts *RootOptions, f *OutputFormatter, appOpts app.Options) (*app.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if appOpts.Warn == nil {
		appOpts.Warn = func(w cart.Warning) {
			switch w {
			case cart.WarnQuota:
				f.Warn("local storage full; saved cart cleared")
			case cart.WarnBlocked:
				f.Warn("local storage unavailable; cart kept in memory for this run")
			}
		}
	}

	a, err := app.New(cfg, newLogger(opts), appOpts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize client", err)
	}
	return a, nil
}
