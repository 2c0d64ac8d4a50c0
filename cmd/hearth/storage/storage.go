package storage

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthvm/hearth/cmd/hearth/common"
	hearthcommon "github.com/hearthvm/hearth/common"
)

func GetCommand(cfg *common.Config) *cobra.Command {
	storageCmd := &cobra.Command{
		Use:     "storage",
		Short:   "Read one storage slot of a contract",
		PreRunE: runPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), cfg)
		},
	}

	setFlags(storageCmd)

	return storageCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().Var(
		&params.contract,
		contractFlag,
		"Address of the contract to read",
	)
	cmd.Flags().StringVar(
		&params.variable,
		varFlag,
		"",
		"Read the slot of a declared variable by name",
	)
	cmd.Flags().StringVar(
		&params.key,
		keyFlag,
		"",
		"Read a raw 0x-prefixed slot key",
	)
}

func runCommand(ctx context.Context, cfg *common.Config) error {
	engine, err := common.OpenEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	var key hearthcommon.Hash
	if params.variable != "" {
		key, err = engine.ResolveSlot(ctx, params.contract, params.variable)
		if err != nil {
			return err
		}
	} else if err := key.UnmarshalText([]byte(params.key)); err != nil {
		return fmt.Errorf("invalid --key: %w", err)
	}

	value, err := engine.ReadStorage(ctx, params.contract, key)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", key, value)
	return nil
}

func runPreRun(cmd *cobra.Command, _ []string) error { return params.initRawParams() }
