package run

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthvm/hearth/cmd/hearth/common"
	"github.com/hearthvm/hearth/common/logging"
	"github.com/hearthvm/hearth/internal/scenario"
)

var logger = logging.NewLogger("runCommand")

func GetCommand(cfg *common.Config) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario file against the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), cfg, args[0])
		},
	}

	setFlags(runCmd)

	return runCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(
		&params.json,
		jsonFlag,
		false,
		"Print every receipt as a JSON line",
	)
}

func runCommand(ctx context.Context, cfg *common.Config, path string) error {
	s, err := scenario.Load(path)
	if err != nil {
		return err
	}

	engine, err := common.OpenEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	runner := scenario.NewRunner(engine)
	results, runErr := runner.Run(ctx, s)

	if params.json {
		if err := printReceipts(results); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	logger.Info().
		Str(logging.FieldScenario, s.Name).
		Int("transactions", len(results)).
		Msg("Scenario completed")
	return nil
}

func printReceipts(results []scenario.Result) error {
	enc := json.NewEncoder(os.Stdout)
	for i := range results {
		if results[i].Receipt == nil {
			continue
		}
		if err := enc.Encode(results[i].Receipt); err != nil {
			return err
		}
	}
	return nil
}
