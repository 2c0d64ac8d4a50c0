package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/hearthvm/hearth"
	"github.com/hearthvm/hearth/cmd/hearth/common"
	"github.com/hearthvm/hearth/internal/types"
)

func GetCommand(cfg *common.Config) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:     "events",
		Short:   "Query the event log of a contract",
		PreRunE: runPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), cfg)
		},
	}

	setFlags(eventsCmd)

	return eventsCmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().Var(
		&params.contract,
		contractFlag,
		"Address of the contract to query",
	)
	cmd.Flags().StringVar(
		&params.event,
		eventFlag,
		"",
		"Name of the event to query",
	)
	cmd.Flags().StringArrayVar(
		&params.matches,
		matchFlag,
		nil,
		"Indexed-field match as field=value; repeatable",
	)
	cmd.Flags().Uint64Var(
		&params.from,
		fromFlag,
		0,
		"Lowest global sequence number to include",
	)
	cmd.Flags().Uint64Var(
		&params.to,
		toFlag,
		0,
		"Global sequence number to stop before; zero means unbounded",
	)
	cmd.Flags().IntVar(
		&params.limit,
		limitFlag,
		0,
		"Maximum number of events to return; zero means unbounded",
	)
}

func runCommand(ctx context.Context, cfg *common.Config) error {
	filter := &hearth.Filter{
		Contract: params.contract,
		Event:    params.event,
		From:     params.from,
		To:       params.to,
		Limit:    params.limit,
	}
	for _, raw := range params.matches {
		match, err := parseMatch(raw)
		if err != nil {
			return err
		}
		filter.Matches = append(filter.Matches, match)
	}

	engine, err := common.OpenEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	found, err := engine.QueryEvents(ctx, filter)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, ev := range found {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

// parseMatch splits a field=value pair. The value side accepts decimal
// numbers, 0x-prefixed words and addresses.
func parseMatch(raw string) (hearth.Match, error) {
	field, value, ok := strings.Cut(raw, "=")
	if !ok || field == "" {
		return hearth.Match{}, fmt.Errorf("match %q is not of the form field=value", raw)
	}

	var word *uint256.Int
	var err error
	if strings.HasPrefix(value, "0x") {
		word, err = uint256.FromHex(value)
	} else {
		word, err = uint256.FromDecimal(value)
	}
	if err != nil {
		return hearth.Match{}, fmt.Errorf("match %q: %w", raw, err)
	}
	return hearth.Match{Field: field, Value: types.NewValue(word)}, nil
}

func runPreRun(cmd *cobra.Command, _ []string) error { return params.initRawParams() }
