package hearth

import (
	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/telemetry"
	"github.com/hearthvm/hearth/internal/types"
)

// DefaultGasLimit bounds transactions that do not bring their own limit.
const DefaultGasLimit = types.Gas(10_000_000)

type Config struct {
	// GasLimit is the budget of deployments and of calls that pass zero gas.
	// Zero selects DefaultGasLimit.
	GasLimit types.Gas

	// Timer supplies transaction timestamps. Nil selects the wall clock.
	Timer common.Timer

	Telemetry *telemetry.Config
}

func (c Config) withDefaults() Config {
	if c.GasLimit == 0 {
		c.GasLimit = DefaultGasLimit
	}
	if c.Timer == nil {
		c.Timer = common.NewTimer()
	}
	return c
}
