package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/luzzle/internal"
	pkgconfig "github.com/starford/luzzle/pkg/config"
)

// loadConfig reads the config file, applies flag overrides and validates.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("root") {
		cfg.Storage.Root = cmd.String("root")
	}
	if cmd.IsSet("concurrency") {
		cfg.Sync.Concurrency = int(cmd.Int("concurrency"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openWorkspace loads the config and opens the storage root for a
// one-shot command. Logs go to stderr so stdout stays command output.
func openWorkspace(cmd *cli.Command) (*internal.Workspace, *slog.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closer := internal.NewLogger(cfg.App, os.Stderr)
	ws, err := internal.OpenWorkspace(cfg, logger)
	if err != nil {
		_ = closer.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		_ = ws.Close()
		_ = closer.Close()
	}
	return ws, logger, cleanup, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func newApp(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "luzzle",
		Usage:  "Typed Markdown pieces with YAML frontmatter, indexed in SQLite",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("LUZZLE_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Storage root directory (overrides storage.root)",
				Sources: cli.EnvVars("LUZZLE_ROOT"),
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Documents processed at once during sync (0 = number of CPUs)",
			},
		},
		Commands: commands(stdout),
	}
}

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
