package vm

import (
	"github.com/hearthvm/hearth/internal/types"
)

// Shared immutable failure instances for the hot paths. Errors that carry
// context are built at the failure site instead.
var (
	ErrOutOfGas          = types.NewVmError(types.ErrorOutOfGas)
	ErrGasUintOverflow   = types.NewVmError(types.ErrorGasUintOverflow)
	ErrWriteProtection   = types.NewVmError(types.ErrorWriteProtection)
	ErrCallDepthExceeded = types.NewVmError(types.ErrorCallDepthExceeded)
	ErrExecutionReverted = types.NewVmError(types.ErrorExecutionReverted)
)
