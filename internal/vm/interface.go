package vm

import (
	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/types"
)

// StateDB is the mutable world the engine executes against. Every write
// is journaled by the implementation so RevertToSnapshot can undo it;
// read errors surface I/O problems of the backing store, never execution
// failures.
type StateDB interface {
	// Exists reports whether a live contract is deployed at addr.
	Exists(addr types.Address) (bool, error)
	// GetCode returns the flattened code of the contract at addr, or nil
	// if there is none.
	GetCode(addr types.Address) (*Code, error)

	GetState(addr types.Address, key common.Hash) (common.Hash, error)
	SetState(addr types.Address, key common.Hash, val common.Hash) error

	GetBalance(addr types.Address) (types.Value, error)
	AddBalance(addr types.Address, amount types.Value) error
	SubBalance(addr types.Address, amount types.Value) error

	// GuardHeld and SetGuard manage the per-contract reentrancy guard.
	// The guard is transient: it never persists across outermost calls.
	GuardHeld(addr types.Address) bool
	SetGuard(addr types.Address, held bool)

	// AddEvent appends an event to the pending set of the current call.
	// Reverted events never become visible.
	AddEvent(event *types.Event)

	// Terminate removes the contract at addr, moving its balance to the
	// beneficiary. The removal takes effect when the state commits.
	Terminate(addr types.Address, beneficiary types.Address) error

	// Snapshot marks the current state revision; RevertToSnapshot undoes
	// everything journaled after the mark.
	Snapshot() int
	RevertToSnapshot(revid int)
}
