package vm

import (
	"github.com/hearthvm/hearth/common/check"
	"github.com/hearthvm/hearth/internal/types"
)

// Step costs of the straight-line ops.
const (
	GasQuickStep   types.Gas = 2
	GasFastestStep types.Gas = 3
	GasFastStep    types.Gas = 5
	GasMidStep     types.Gas = 8
	GasSlowStep    types.Gas = 10
	GasExtStep     types.Gas = 20
)

// State access and call family costs.
const (
	SloadGas       types.Gas = 200
	SstoreSetGas   types.Gas = 20000
	SstoreResetGas types.Gas = 5000

	CallGas              types.Gas = 700
	CallStipend          types.Gas = 2300
	CallValueTransferGas types.Gas = 9000

	// KeccakGas covers hashing the two words of a derived mapping slot.
	KeccakGas types.Gas = 42

	LogGas      types.Gas = 375
	LogTopicGas types.Gas = 375
	LogDataGas  types.Gas = 8

	SelfdestructGas types.Gas = 5000

	// BaseTxGas is charged up front for every outermost call.
	BaseTxGas types.Gas = 21000
	// DeployBaseGas is charged on top of BaseTxGas when deploying.
	DeployBaseGas types.Gas = 32000
)

// Structural limits.
const (
	MaxCallDepth = 1024
	StackLimit   = 1024
)

// GasMeter tracks consumption against a fixed limit. A charge that does
// not fit consumes the whole remainder, so a failed op never executes
// partially metered.
type GasMeter struct {
	limit types.Gas
	used  types.Gas
}

func NewGasMeter(limit types.Gas) *GasMeter {
	return &GasMeter{limit: limit}
}

func (m *GasMeter) Limit() types.Gas     { return m.limit }
func (m *GasMeter) Used() types.Gas      { return m.used }
func (m *GasMeter) Remaining() types.Gas { return m.limit - m.used }

// Charge consumes gas, zeroing the meter on shortfall.
func (m *GasMeter) Charge(g types.Gas) error {
	if g > m.Remaining() {
		m.used = m.limit
		return ErrOutOfGas
	}
	m.used += g
	return nil
}

// Refund returns unused child gas to the meter.
func (m *GasMeter) Refund(g types.Gas) {
	check.PanicIfNotf(g <= m.used, "refund %v exceeds used %v", g, m.used)
	m.used -= g
}

// BurnRemaining consumes everything left on the meter.
func (m *GasMeter) BurnRemaining() {
	m.used = m.limit
}

// childCallGas is the budget handed to a child call: all but one 64th of
// what remains after the fixed call fee was charged.
func childCallGas(remaining types.Gas) types.Gas {
	return remaining - remaining/64
}

// emitGas is the cost of emitting an event: the base fee, one topic fee
// per indexed field and a per-word data fee for the rest.
func emitGas(def *EventDef) types.Gas {
	indexed := types.Gas(def.IndexedCount())
	plain := types.Gas(len(def.Fields)) - indexed
	return LogGas + indexed*LogTopicGas + plain*32*LogDataGas
}
