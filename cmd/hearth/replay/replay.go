package replay

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/hearthvm/hearth/cmd/hearth/common"
	"github.com/hearthvm/hearth/common/logging"
)

var logger = logging.NewLogger("replayCommand")

var errMismatch = errors.New("commit log does not reproduce the stored state")

func GetCommand(cfg *common.Config) *cobra.Command {
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-execute the commit log and verify it reproduces the stored state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), cfg)
		},
	}

	return replayCmd
}

func runCommand(ctx context.Context, cfg *common.Config) error {
	engine, err := common.OpenEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.Replay(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Int("commits", report.Commits).
		Int("deploys", report.Deploys).
		Int("terminations", report.Terminations).
		Int("slots", report.Slots).
		Uint64("events", report.Events).
		Msg("Replay finished")

	if !report.OK() {
		for _, m := range report.Mismatches {
			logger.Error().Msg(m)
		}
		return errMismatch
	}
	return nil
}
