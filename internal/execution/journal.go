package execution

import (
	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/common/check"
	"github.com/hearthvm/hearth/internal/types"
)

// journalEntry is a modification entry in the state change journal that can be
// reverted on demand.
type journalEntry interface {
	// revert undoes the changes introduced by this journal entry.
	revert(*ExecutionState)
}

// journal contains the list of state modifications applied since the last
// commit. They are tracked so that a failed frame can be unwound to any
// earlier snapshot.
type journal struct {
	entries []journalEntry
}

func newJournal() *journal {
	return &journal{}
}

// append inserts a new modification entry to the end of the change journal.
func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

// revert undoes a batch of journalled modifications.
func (j *journal) revert(state *ExecutionState, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(state)
	}
	j.entries = j.entries[:snapshot]
}

// length returns the current number of entries in the journal.
func (j *journal) length() int {
	return len(j.entries)
}

type (
	// createAccountChange tracks a new in-transaction account, either a
	// deployment registration or a first-time balance credit, so that a
	// revert removes it again.
	createAccountChange struct {
		account types.Address
	}

	balanceChange struct {
		account *types.Address
		prev    types.Value
	}

	storageChange struct {
		account *types.Address
		key     common.Hash
		prev    common.Hash
	}

	// terminateChange records a SELFDESTRUCT. The flag and the swept balance
	// are restored together.
	terminateChange struct {
		account     *types.Address
		prev        bool
		prevBalance types.Value
	}

	// guardChange tracks the reentrancy lock. Journalling it keeps the
	// promise that a revert can never leave a contract locked or unlocked
	// differently from before the failed frame.
	guardChange struct {
		account types.Address
		prev    bool
	}

	addEventChange struct{}
)

func (ch createAccountChange) revert(s *ExecutionState) {
	delete(s.Accounts, ch.account)
}

func (ch balanceChange) revert(s *ExecutionState) {
	account, err := s.getAccount(*ch.account)
	check.PanicIfErr(err)
	if account != nil {
		account.setBalance(ch.prev)
	}
}

func (ch storageChange) revert(s *ExecutionState) {
	account, err := s.getAccount(*ch.account)
	check.PanicIfErr(err)
	if account != nil {
		account.setState(ch.key, ch.prev)
	}
}

func (ch terminateChange) revert(s *ExecutionState) {
	account, err := s.getAccount(*ch.account)
	check.PanicIfErr(err)
	if account != nil {
		account.Terminated = ch.prev
		account.setBalance(ch.prevBalance)
	}
}

func (ch guardChange) revert(s *ExecutionState) {
	s.setGuard(ch.account, ch.prev)
}

func (ch addEventChange) revert(s *ExecutionState) {
	check.PanicIfNot(len(s.Events) > 0)
	s.Events = s.Events[:len(s.Events)-1]
}
