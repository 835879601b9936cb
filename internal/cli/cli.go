// Package cli provides the command-line interface for patchwatch.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/prostopil/patchwatch/internal/config"
	"github.com/prostopil/patchwatch/internal/engine"
	"github.com/prostopil/patchwatch/internal/logging"
	"github.com/prostopil/patchwatch/internal/remote"
	"github.com/prostopil/patchwatch/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// logRing captures recent log entries for the control surface.
var logRing = logging.NewRing(512)

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:    "patchwatch",
		Usage:   "Mirror a local drop folder into a GitLab repository",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			configureColors(cmd)
			return ctx, configureLogging(cmd)
		},
		Commands: []*cli.Command{
			versionCommand(),
			configCommand(),
			watchCommand(),
			scanCommand(),
			serveCommand(),
		},
	}
	return app.Run(ctx, args)
}

// configureColors sets up color output based on CLI flags.
func configureColors(cmd *cli.Command) {
	if cmd.Bool("no-color") {
		ui.DisableColors()
	}
}

// configureLogging sets up the logging level based on CLI flags.
func configureLogging(cmd *cli.Command) error {
	opts := logging.DefaultOptions()
	opts.Ring = logRing

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") {
		opts.Level = slog.LevelInfo
	} else {
		opts.Level = slog.LevelWarn
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))

	return nil
}

// loadConfig loads the configuration honoring the global --config flag.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if path := cmd.String("config"); path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// buildOrchestrator wires the configuration, transport and snapshot
// into a ready orchestrator.
func buildOrchestrator(cfg *config.Config) (*engine.Orchestrator, *config.Store, error) {
	store, err := config.NewStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	transport, err := remote.NewClient(remote.Options{
		BaseURL:     cfg.Remote.BaseURL,
		Token:       cfg.Remote.Token,
		ProjectID:   cfg.Remote.ProjectID,
		Branch:      cfg.Remote.Branch,
		AuthorName:  cfg.Remote.AuthorName,
		AuthorEmail: cfg.Remote.AuthorEmail,
		MaxRetries:  uint64(cfg.Watch.MaxRetries),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("remote client: %w", err)
	}

	o, err := engine.New(engine.Options{
		Root:        cfg.Watch.Root,
		StatePath:   cfg.Watch.StatePath,
		MirrorDir:   cfg.Watch.MirrorDir,
		QuietWindow: cfg.Watch.QuietWindow,
		Workers:     cfg.Watch.Workers,
		MaxRetries:  cfg.Watch.MaxRetries,
		RemoteURL:   cfg.Remote.BaseURL,
		Store:       store,
		Transport:   transport,
	})
	if err != nil {
		return nil, nil, err
	}
	return o, store, nil
}
