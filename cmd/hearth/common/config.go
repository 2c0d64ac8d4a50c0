package common

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/hearthvm/hearth"
	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/telemetry"
	"github.com/hearthvm/hearth/internal/types"
)

// Config carries the flags every subcommand shares.
type Config struct {
	DBPath   string
	GasLimit types.Gas
	Metrics  bool
	LogLevel string
}

const (
	dbFlag       = "db"
	gasLimitFlag = "gas-limit"
	metricsFlag  = "metrics"
	logLevelFlag = "log-level"
)

// SetFlags registers the shared flags. An empty --db keeps the state in
// memory for the life of the process.
func SetFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(
		&cfg.DBPath,
		dbFlag,
		"",
		"Path to the database directory; empty runs in memory",
	)
	cfg.GasLimit = hearth.DefaultGasLimit
	fs.Var(
		&cfg.GasLimit,
		gasLimitFlag,
		"Gas limit applied to every transaction",
	)
	fs.BoolVar(
		&cfg.Metrics,
		metricsFlag,
		false,
		"Export metrics to stdout",
	)
	fs.StringVar(
		&cfg.LogLevel,
		logLevelFlag,
		"info",
		"Log level (trace, debug, info, warn, error)",
	)
}

// OpenDB opens the database the flags name.
func OpenDB(path string) (db.DB, error) {
	if path == "" {
		return db.NewBadgerDbInMemory()
	}
	badger, err := db.NewBadgerDb(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	return badger, nil
}

// OpenEngine opens the database and builds an engine on top of it. The
// engine owns the database; closing the engine releases both.
func OpenEngine(ctx context.Context, cfg *Config) (*hearth.Engine, error) {
	database, err := OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	engineCfg := hearth.Config{GasLimit: cfg.GasLimit}
	if cfg.Metrics {
		engineCfg.Telemetry = &telemetry.Config{
			ServiceName:        "hearth",
			MetricExportOption: telemetry.ExportOptionStdout,
		}
	}

	engine, err := hearth.New(ctx, engineCfg, database)
	if err != nil {
		database.Close()
		return nil, err
	}

	// On-disk stores reclaim value log space in the background for as long
	// as the command runs.
	if badger, ok := database.(*db.BadgerDB); ok && cfg.DBPath != "" {
		go func() {
			_ = badger.LogGC(ctx, 0.5, time.Minute)
		}()
	}
	return engine, nil
}
