package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/chimera/pkg/config"
	"github.com/mchmarny/chimera/pkg/data"
	"github.com/mchmarny/chimera/pkg/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "chimera"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"

	debugFlagName  = "debug"
	dbFlagName     = "db"
	configFlagName = "config"
	formatFlagName = "format"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	DBPath       string
	ConfigPath   string
	Debug        bool
	OutputFormat string
	DB           *sql.DB
	Config       *config.Config
}

func getConfig(cmd *cli.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Fundraise prediction agent: serve, train and query the success model",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlagName,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:  dbFlagName,
				Usage: "Path to the Sqlite database file (default: $HOME/.chimera/data.db)",
			},
			&cli.StringFlag{
				Name:  configFlagName,
				Usage: "Path to the config file (default: $HOME/.chimera/config.yaml)",
			},
			&cli.StringFlag{
				Name:  formatFlagName,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
		},
		Commands: []*cli.Command{
			newServerCmd(),
			newTrainCmd(),
			newPredictCmd(),
			newRunsCmd(),
			newStatusCmd(),
		},
		Before: setup,
		After: func(_ context.Context, cmd *cli.Command) error {
			if cfg, ok := cmd.Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				return cfg.DB.Close()
			}
			return nil
		},
	}
}

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	debug := cmd.Bool(debugFlagName)

	dbPath := cmd.String(dbFlagName)
	cfgPath := cmd.String(configFlagName)
	if dbPath == "" || cfgPath == "" {
		home := getHomeDir()
		if dbPath == "" {
			dbPath = filepath.Join(home, data.DataFileName)
		}
		if cfgPath == "" {
			cfgPath = filepath.Join(home, config.FileName)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return ctx, fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	logging.SetDefault(cfg.Log.Level, cfg.Log.Format)

	format := formatJSON
	if f := cmd.String(formatFlagName); f == formatYAML || f == "yml" {
		format = formatYAML
	}

	if err := data.Init(dbPath); err != nil {
		return ctx, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(dbPath)
	if err != nil {
		return ctx, fmt.Errorf("opening database: %w", err)
	}

	cmd.Metadata[appConfigKey] = &appConfig{
		DBPath:       dbPath,
		ConfigPath:   cfgPath,
		Debug:        debug,
		OutputFormat: format,
		DB:           db,
		Config:       cfg,
	}
	slog.Debug("app configured", "db", dbPath, "config", cfgPath)
	return ctx, nil
}

func getHomeDir() string {
	dir, _, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	return dir
}

func encode(cmd *cli.Command, v any) error {
	return encodeTo(cmd.Root().Writer, getConfig(cmd).OutputFormat, v)
}

func encodeTo(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
