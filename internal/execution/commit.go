package execution

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/common/check"
	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/eventlog"
	"github.com/hearthvm/hearth/internal/types"
	"github.com/hearthvm/hearth/internal/vm"
)

// The commit journal is self-contained: folding the records in order
// reproduces the contract, code and storage tables without reading them.
type (
	DeployDelta struct {
		Address types.Address
		// Code is the encoded unit; its hash is the CodeTable key.
		Code []byte
	}

	BalanceDelta struct {
		Address types.Address
		Balance types.Value
	}

	SlotDelta struct {
		Address types.Address
		Key     common.Hash
		Val     common.Hash
	}

	// CommitRecord is one transaction's worth of committed changes, stored
	// under its commit sequence number.
	CommitRecord struct {
		Deploys      []DeployDelta
		Terminations []types.Address
		Balances     []BalanceDelta
		Slots        []SlotDelta

		// Events are stored in the event tables; the record keeps the
		// assigned range so replay can verify the sequence is gapless.
		FirstEventSeq uint64
		EventCount    uint32
	}
)

// CommitResult summarizes one committed transaction.
type CommitResult struct {
	Seq           uint64
	FirstEventSeq uint64
	EventCount    int
}

func sortedAddresses(accounts map[types.Address]*AccountState) []types.Address {
	return slices.SortedFunc(maps.Keys(accounts), func(a, b types.Address) int {
		return bytes.Compare(a.Bytes(), b.Bytes())
	})
}

func sortedSlots(dirty map[common.Hash]struct{}) []common.Hash {
	return slices.SortedFunc(maps.Keys(dirty), func(a, b common.Hash) int {
		return bytes.Compare(a.Bytes(), b.Bytes())
	})
}

// Commit folds the transaction's changes into the durable tables, flushes
// the buffered events, and appends the commit record. The caller still owns
// the database transaction and must Commit it for any of this to stick.
func (s *ExecutionState) Commit() (*CommitResult, error) {
	for addr, held := range s.guards {
		check.PanicIfNotf(!held, "guard still held on %s at commit", addr)
	}

	record := &CommitRecord{}
	for _, addr := range sortedAddresses(s.Accounts) {
		acct := s.Accounts[addr]
		if !acct.modified {
			continue
		}

		if acct.fresh && !acct.Terminated {
			data, err := vm.EncodeCode(acct.Code)
			if err != nil {
				return nil, err
			}
			if err := s.tx.Put(db.CodeTable, acct.CodeHash.Bytes(), data); err != nil {
				return nil, err
			}
			s.accessor.PutCode(acct.CodeHash, acct.Code)
			record.Deploys = append(record.Deploys, DeployDelta{Address: addr, Code: data})
		}

		if acct.Terminated {
			if err := s.clearStorage(addr); err != nil {
				return nil, err
			}
			s.accessor.DropContract(addr)
			record.Terminations = append(record.Terminations, addr)
		} else {
			for _, key := range sortedSlots(acct.dirty) {
				val := acct.State[key]
				if err := s.tx.Put(db.StorageTable, db.StorageKey(addr, key), val.Bytes()); err != nil {
					return nil, err
				}
				s.accessor.PutSlot(addr, key, val)
				record.Slots = append(record.Slots, SlotDelta{Address: addr, Key: key, Val: val})
			}
		}

		row := acct.record()
		if acct.fresh && acct.Terminated {
			// The code was never persisted, so the tombstone must not
			// reference it.
			row.CodeHash = common.EmptyHash
		}
		data, err := row.MarshalRecord()
		if err != nil {
			return nil, err
		}
		if err := s.tx.Put(db.ContractTable, addr.Bytes(), data); err != nil {
			return nil, err
		}
		s.accessor.PutContract(addr, row)
		record.Balances = append(record.Balances, BalanceDelta{Address: addr, Balance: acct.Balance})
	}

	first, count, err := eventlog.Flush(s.tx, s.Events)
	if err != nil {
		return nil, err
	}
	record.FirstEventSeq = first
	record.EventCount = uint32(count)

	seq, err := db.GetUint64(s.tx, db.CommitSeqKey)
	if err != nil {
		return nil, err
	}
	data, err := rlp.EncodeToBytes(record)
	if err != nil {
		return nil, err
	}
	if err := s.tx.Put(db.CommitTable, db.SeqKey(seq), data); err != nil {
		return nil, err
	}
	if err := db.PutUint64(s.tx, db.CommitSeqKey, seq+1); err != nil {
		return nil, err
	}

	logger.Debug().
		Uint64("commit", seq).
		Int("accounts", len(record.Balances)).
		Int("slots", len(record.Slots)).
		Int("events", count).
		Msg("Committed transaction")
	return &CommitResult{Seq: seq, FirstEventSeq: first, EventCount: count}, nil
}

// clearStorage removes every committed slot of a terminated contract.
func (s *ExecutionState) clearStorage(addr types.Address) error {
	it, err := s.tx.Range(db.StorageTable, addr.Bytes(), storagePrefixEnd(addr))
	if err != nil {
		return err
	}
	var keys [][]byte
	for it.HasNext() {
		key, _, err := it.Next()
		if err != nil {
			it.Close()
			return err
		}
		keys = append(keys, key)
	}
	it.Close()

	for _, key := range keys {
		if err := s.tx.Delete(db.StorageTable, key); err != nil {
			return err
		}
	}
	return nil
}

// storagePrefixEnd returns the inclusive upper bound covering every storage
// key of addr.
func storagePrefixEnd(addr types.Address) []byte {
	end := make([]byte, 0, types.AddrSize+common.HashSize)
	end = append(end, addr.Bytes()...)
	for range common.HashSize {
		end = append(end, 0xff)
	}
	return end
}

func decodeCommitRecord(data []byte) (*CommitRecord, error) {
	record := new(CommitRecord)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, fmt.Errorf("corrupt commit record: %w", err)
	}
	return record, nil
}
