package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hearthvm/hearth/cmd/hearth/bench"
	"github.com/hearthvm/hearth/cmd/hearth/common"
	"github.com/hearthvm/hearth/cmd/hearth/events"
	"github.com/hearthvm/hearth/cmd/hearth/replay"
	"github.com/hearthvm/hearth/cmd/hearth/run"
	"github.com/hearthvm/hearth/cmd/hearth/storage"
	"github.com/hearthvm/hearth/common/concurrent"
	"github.com/hearthvm/hearth/common/logging"
)

type RootCommand struct {
	baseCmd *cobra.Command
	config  common.Config
}

var logger = logging.NewLogger("rootCommand")

func main() {
	logging.SetLogSeverityFromEnv()

	rootCmd := &RootCommand{
		baseCmd: &cobra.Command{
			Use:          "hearth",
			Short:        "Deterministic contract-execution engine",
			SilenceUsage: true,
		},
	}
	rootCmd.baseCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return logging.SetupGlobalLogger(rootCmd.config.LogLevel)
	}

	common.SetFlags(rootCmd.baseCmd.PersistentFlags(), &rootCmd.config)
	rootCmd.registerSubCommands()
	rootCmd.Execute()
}

// registerSubCommands adds all subcommands to the root command
func (rc *RootCommand) registerSubCommands() {
	rc.baseCmd.AddCommand(
		run.GetCommand(&rc.config),
		events.GetCommand(&rc.config),
		storage.GetCommand(&rc.config),
		replay.GetCommand(&rc.config),
		bench.GetCommand(&rc.config),
	)

	logger.Trace().Msg("Subcommands registered")
}

// Execute runs the root command under a signal-canceled context and handles
// any errors.
func (rc *RootCommand) Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go concurrent.OnSignal(ctx, cancel, syscall.SIGINT, syscall.SIGTERM)

	if err := rc.baseCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}
