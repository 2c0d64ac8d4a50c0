package execution

import (
	"fmt"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/types"
	"github.com/hearthvm/hearth/internal/vm"
)

// Storage maps slot keys to their current in-transaction words.
type Storage map[common.Hash]common.Hash

// AccountState is the in-transaction view of one address: committed values
// read through the accessor, uncommitted changes layered on top and tracked
// in the journal. Commit folds the dirty parts back into the tables.
type AccountState struct {
	es      *ExecutionState
	address types.Address

	Balance    types.Value
	Code       *vm.Code
	CodeHash   common.Hash
	Terminated bool

	// State caches every slot this transaction has touched, reads included.
	// dirty marks the subset that was written and must be persisted.
	State Storage
	dirty map[common.Hash]struct{}

	// fresh marks an account deployed in this transaction; its code record
	// does not exist in the database yet.
	fresh    bool
	modified bool
}

func newAccountState(es *ExecutionState, addr types.Address, record *types.ContractRecord) (*AccountState, error) {
	as := &AccountState{
		es:      es,
		address: addr,
		State:   make(Storage),
		dirty:   make(map[common.Hash]struct{}),
	}
	if record == nil {
		return as, nil
	}

	as.Balance = record.Balance
	as.CodeHash = record.CodeHash
	as.Terminated = record.Terminated
	if record.HasCode() && !record.Terminated {
		code, err := es.accessor.GetCode(es.tx, record.CodeHash)
		if err != nil {
			return nil, err
		}
		as.Code = code
	}
	return as, nil
}

// GetState returns the slot's current word, reading through to the committed
// value on first touch.
func (as *AccountState) GetState(key common.Hash) (common.Hash, error) {
	if val, ok := as.State[key]; ok {
		return val, nil
	}
	val, err := as.GetCommittedState(key)
	if err != nil {
		return common.EmptyHash, err
	}
	as.State[key] = val
	return val, nil
}

// GetCommittedState returns the slot's word as of the last commit, ignoring
// any writes of the current transaction.
func (as *AccountState) GetCommittedState(key common.Hash) (common.Hash, error) {
	return as.es.accessor.GetSlot(as.es.tx, as.address, key)
}

// SetState journals and applies one slot write. Writing the value a slot
// already holds is a no-op.
func (as *AccountState) SetState(key, value common.Hash) error {
	prev, err := as.GetState(key)
	if err != nil {
		return err
	}
	if prev == value {
		return nil
	}
	as.es.appendToJournal(storageChange{
		account: &as.address,
		key:     key,
		prev:    prev,
	})
	as.setState(key, value)
	as.dirty[key] = struct{}{}
	as.modified = true
	return nil
}

func (as *AccountState) setState(key, value common.Hash) {
	as.State[key] = value
}

// AddBalance credits the account, failing on wrap-around.
func (as *AccountState) AddBalance(amount types.Value) error {
	if amount.IsZero() {
		return nil
	}
	newBalance, overflow := as.Balance.AddOverflow(amount)
	if overflow {
		return fmt.Errorf("balance overflow: %s + %s", as.Balance, amount)
	}
	as.SetBalance(newBalance)
	return nil
}

// SubBalance debits the account, failing if the balance is insufficient.
func (as *AccountState) SubBalance(amount types.Value) error {
	if amount.IsZero() {
		return nil
	}
	newBalance, underflow := as.Balance.SubOverflow(amount)
	if underflow {
		return fmt.Errorf("balance underflow: %s - %s", as.Balance, amount)
	}
	as.SetBalance(newBalance)
	return nil
}

func (as *AccountState) SetBalance(amount types.Value) {
	as.es.appendToJournal(balanceChange{
		account: &as.address,
		prev:    as.Balance,
	})
	as.setBalance(amount)
	as.modified = true
}

func (as *AccountState) setBalance(amount types.Value) {
	as.Balance = amount
}

// record renders the account as its durable row.
func (as *AccountState) record() *types.ContractRecord {
	return &types.ContractRecord{
		Balance:    as.Balance,
		CodeHash:   as.CodeHash,
		Terminated: as.Terminated,
	}
}
