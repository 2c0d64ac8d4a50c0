package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthvm/hearth"
	"github.com/hearthvm/hearth/cmd/hearth/common"
	"github.com/hearthvm/hearth/common/concurrent"
	"github.com/hearthvm/hearth/common/logging"
	"github.com/hearthvm/hearth/internal/scenario"
	"github.com/hearthvm/hearth/internal/vm"
)

var logger = logging.NewLogger("benchCommand")

func GetCommand(cfg *common.Config) *cobra.Command {
	benchCmd := &cobra.Command{
		Use:     "bench",
		Short:   "Hammer the engine with concurrent counter calls",
		PreRunE: runPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), cfg)
		},
	}

	setFlags(benchCmd)

	return benchCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(
		&params.workers,
		workersFlag,
		4,
		"Number of concurrent callers",
	)
	cmd.Flags().IntVar(
		&params.rounds,
		roundsFlag,
		1000,
		"Number of calls per worker",
	)
}

// counterUnit is the workload: one storage bump per call.
func counterUnit() *vm.Unit {
	return &vm.Unit{
		Name: "Counter",
		Vars: []string{"hits"},
		Functions: []*vm.Function{{
			Name: "ping",
			Body: vm.Program{
				vm.Push(1),
				vm.Slot("hits"),
				vm.SLoad(),
				vm.Add(),
				vm.Slot("hits"),
				vm.SStore(),
			},
		}},
	}
}

func runCommand(ctx context.Context, cfg *common.Config) error {
	engine, err := common.OpenEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	deployer := scenario.DeriveAddress("bench")
	receipt, err := engine.Deploy(ctx, deployer, counterUnit(), nil, hearth.Value{})
	if err != nil {
		return err
	}
	if !receipt.Success {
		return fmt.Errorf("deploy failed: %s", receipt.Status)
	}
	counter := receipt.ContractAddress

	start := time.Now()
	workers := make([]concurrent.Func, params.workers)
	for w := range workers {
		caller := scenario.DeriveAddress(fmt.Sprintf("worker-%d", w))
		workers[w] = func(ctx context.Context) error {
			for range params.rounds {
				if err := ctx.Err(); err != nil {
					return err
				}
				receipt, err := engine.Call(ctx, caller, counter, "ping", nil, hearth.Value{}, 0)
				if err != nil {
					return err
				}
				if !receipt.Success {
					return fmt.Errorf("call failed: %s", receipt.Status)
				}
			}
			return nil
		}
	}
	if err := concurrent.Run(ctx, workers...); err != nil {
		return err
	}
	elapsed := time.Since(start)

	// Every call bumped the same slot; the final count proves that no
	// transaction was lost or applied twice.
	total := params.workers * params.rounds
	slot, err := engine.ResolveSlot(ctx, counter, "hits")
	if err != nil {
		return err
	}
	hits, err := engine.ReadStorage(ctx, counter, slot)
	if err != nil {
		return err
	}
	if hits.Uint64() != uint64(total) {
		return fmt.Errorf("expected %d hits, found %d", total, hits.Uint64())
	}

	logger.Info().Msgf("%d calls in %s (%.0f tx/s)",
		total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	return nil
}

func runPreRun(cmd *cobra.Command, _ []string) error { return params.initRawParams() }
