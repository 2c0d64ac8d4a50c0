package execution

import (
	"fmt"
	"sort"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/common/check"
	"github.com/hearthvm/hearth/common/logging"
	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/types"
	"github.com/hearthvm/hearth/internal/vm"
)

var logger = logging.NewLogger("execution")

// ExecutionState is the mutable state of one transaction: touched accounts,
// emitted events and the reentrancy guards currently held. All changes are
// journalled; Snapshot and RevertToSnapshot unwind them exactly.
// It implements vm.StateDB. The transaction either commits whole through
// Commit or is dropped with the enclosing database transaction.
type ExecutionState struct {
	tx       db.RwTx
	accessor *StateAccessor

	Accounts map[types.Address]*AccountState
	Events   []*types.Event

	// guards is transient state: it lives and dies with the transaction and
	// is never persisted.
	guards map[types.Address]bool

	journal        *journal
	revisions      []revision
	nextRevisionID int
}

type revision struct {
	id           int
	journalIndex int
}

func NewExecutionState(tx db.RwTx, accessor *StateAccessor) *ExecutionState {
	return &ExecutionState{
		tx:       tx,
		accessor: accessor,
		Accounts: make(map[types.Address]*AccountState),
		guards:   make(map[types.Address]bool),
		journal:  newJournal(),
	}
}

func (s *ExecutionState) appendToJournal(entry journalEntry) {
	s.journal.append(entry)
}

// getAccount returns the in-transaction view of addr, loading the committed
// record on first touch. A nil result means the address was never written.
func (s *ExecutionState) getAccount(addr types.Address) (*AccountState, error) {
	if acct, ok := s.Accounts[addr]; ok {
		return acct, nil
	}
	rec, err := s.accessor.GetContract(s.tx, addr)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	acct, err := newAccountState(s, addr, rec)
	if err != nil {
		return nil, err
	}
	s.Accounts[addr] = acct
	return acct, nil
}

// getOrNewAccount returns the account, creating an empty balance-holder row
// for an address that has never been written.
func (s *ExecutionState) getOrNewAccount(addr types.Address) (*AccountState, error) {
	acct, err := s.getAccount(addr)
	if err != nil || acct != nil {
		return acct, err
	}
	s.journal.append(createAccountChange{account: addr})
	acct, err = newAccountState(s, addr, nil)
	if err != nil {
		return nil, err
	}
	s.Accounts[addr] = acct
	return acct, nil
}

// CreateContract registers freshly flattened code under addr. The address
// must not already carry code or a termination tombstone; a plain balance
// holder is upgraded in place and keeps its balance.
func (s *ExecutionState) CreateContract(addr types.Address, code *vm.Code) error {
	existing, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	if existing != nil && (existing.Terminated || existing.Code != nil) {
		return types.NewVerboseError(types.ErrorContractAlreadyExists, addr.Hex())
	}

	s.journal.append(createAccountChange{account: addr})
	acct, err := newAccountState(s, addr, nil)
	if err != nil {
		return err
	}
	if existing != nil {
		acct.Balance = existing.Balance
	}
	acct.Code = code
	acct.CodeHash = code.Hash
	acct.fresh = true
	acct.modified = true
	s.Accounts[addr] = acct

	logger.Debug().
		Stringer(logging.FieldContract, addr).
		Str("unit", code.UnitName).
		Msg("Registered contract")
	return nil
}

func (s *ExecutionState) Exists(addr types.Address) (bool, error) {
	acct, err := s.getAccount(addr)
	if err != nil {
		return false, err
	}
	return acct != nil && acct.Code != nil && !acct.Terminated, nil
}

func (s *ExecutionState) GetCode(addr types.Address) (*vm.Code, error) {
	acct, err := s.getAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Terminated {
		return nil, nil
	}
	return acct.Code, nil
}

func (s *ExecutionState) GetState(addr types.Address, key common.Hash) (common.Hash, error) {
	acct, err := s.getAccount(addr)
	if err != nil {
		return common.EmptyHash, err
	}
	if acct == nil || acct.Terminated {
		return common.EmptyHash, nil
	}
	return acct.GetState(key)
}

// GetCommittedState returns the slot's word as of the last commit, ignoring
// writes of the current transaction.
func (s *ExecutionState) GetCommittedState(addr types.Address, key common.Hash) (common.Hash, error) {
	acct, err := s.getAccount(addr)
	if err != nil {
		return common.EmptyHash, err
	}
	if acct == nil || acct.Terminated {
		return common.EmptyHash, nil
	}
	return acct.GetCommittedState(key)
}

func (s *ExecutionState) SetState(addr types.Address, key, val common.Hash) error {
	acct, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("storage write to unknown account %s", addr)
	}
	return acct.SetState(key, val)
}

func (s *ExecutionState) GetBalance(addr types.Address) (types.Value, error) {
	acct, err := s.getAccount(addr)
	if err != nil {
		return types.Value{}, err
	}
	if acct == nil {
		return types.Value{}, nil
	}
	return acct.Balance, nil
}

func (s *ExecutionState) AddBalance(addr types.Address, amount types.Value) error {
	if amount.IsZero() {
		return nil
	}
	acct, err := s.getOrNewAccount(addr)
	if err != nil {
		return err
	}
	return acct.AddBalance(amount)
}

func (s *ExecutionState) SubBalance(addr types.Address, amount types.Value) error {
	if amount.IsZero() {
		return nil
	}
	acct, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("balance underflow: debit of %s from empty account %s", amount, addr)
	}
	return acct.SubBalance(amount)
}

func (s *ExecutionState) GuardHeld(addr types.Address) bool {
	return s.guards[addr]
}

func (s *ExecutionState) SetGuard(addr types.Address, held bool) {
	s.journal.append(guardChange{account: addr, prev: s.guards[addr]})
	s.setGuard(addr, held)
}

func (s *ExecutionState) setGuard(addr types.Address, held bool) {
	if held {
		s.guards[addr] = true
	} else {
		delete(s.guards, addr)
	}
}

func (s *ExecutionState) AddEvent(event *types.Event) {
	s.journal.append(addEventChange{})
	s.Events = append(s.Events, event)
}

// Terminate tombstones addr and sweeps its balance to the beneficiary. A
// contract naming itself as beneficiary burns the balance.
func (s *ExecutionState) Terminate(addr, beneficiary types.Address) error {
	acct, err := s.getAccount(addr)
	if err != nil {
		return err
	}
	if acct == nil || acct.Terminated {
		return fmt.Errorf("terminate of missing account %s", addr)
	}

	swept := acct.Balance
	s.journal.append(terminateChange{
		account:     &acct.address,
		prev:        acct.Terminated,
		prevBalance: swept,
	})
	acct.Terminated = true
	acct.setBalance(types.Value{})
	acct.modified = true

	if beneficiary != addr && !swept.IsZero() {
		dst, err := s.getOrNewAccount(beneficiary)
		if err != nil {
			return err
		}
		if err := dst.AddBalance(swept); err != nil {
			return err
		}
	}

	logger.Debug().
		Stringer(logging.FieldContract, addr).
		Stringer("beneficiary", beneficiary).
		Stringer("swept", swept).
		Msg("Contract terminated")
	return nil
}

// Snapshot returns an identifier for the current revision of the state.
func (s *ExecutionState) Snapshot() int {
	id := s.nextRevisionID
	s.nextRevisionID++
	s.revisions = append(s.revisions, revision{id, s.journal.length()})
	return id
}

// RevertToSnapshot reverts all state changes made since the given revision.
func (s *ExecutionState) RevertToSnapshot(revid int) {
	// Find the snapshot in the stack of valid snapshots.
	idx := sort.Search(len(s.revisions), func(i int) bool {
		return s.revisions[i].id >= revid
	})
	check.PanicIfNotf(idx < len(s.revisions) && s.revisions[idx].id == revid,
		"revision id %v cannot be reverted", revid)
	snapshot := s.revisions[idx].journalIndex

	s.journal.revert(s, snapshot)
	s.revisions = s.revisions[:idx]
}
