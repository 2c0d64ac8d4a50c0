package execution

import (
	"context"
	"fmt"
	"strings"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/types"
	"github.com/hearthvm/hearth/internal/vm"
)

// foldState is the in-memory reconstruction of the durable tables, built by
// applying commit records in order.
type foldState struct {
	accounts map[types.Address]*foldAccount
	slots    map[string]common.Hash
	codes    map[common.Hash][]byte
	eventSeq uint64
}

type foldAccount struct {
	balance    types.Value
	codeHash   common.Hash
	terminated bool
}

func (f *foldState) account(addr types.Address) *foldAccount {
	acct, ok := f.accounts[addr]
	if !ok {
		acct = &foldAccount{}
		f.accounts[addr] = acct
	}
	return acct
}

func (f *foldState) apply(record *CommitRecord) error {
	for _, d := range record.Deploys {
		code, err := vm.DecodeCode(d.Code)
		if err != nil {
			return err
		}
		f.codes[code.Hash] = d.Code
		f.account(d.Address).codeHash = code.Hash
	}
	for _, addr := range record.Terminations {
		f.account(addr).terminated = true
		prefix := string(addr.Bytes())
		for key := range f.slots {
			if strings.HasPrefix(key, prefix) {
				delete(f.slots, key)
			}
		}
	}
	for _, b := range record.Balances {
		f.account(b.Address).balance = b.Balance
	}
	for _, sl := range record.Slots {
		f.slots[string(db.StorageKey(sl.Address, sl.Key))] = sl.Val
	}
	return nil
}

// ReplayReport is the outcome of folding the commit journal and checking it
// against the materialized tables.
type ReplayReport struct {
	Commits      int
	Deploys      int
	Terminations int
	Slots        int
	Events       uint64
	Mismatches   []string
}

func (r *ReplayReport) OK() bool {
	return len(r.Mismatches) == 0
}

func (r *ReplayReport) mismatch(format string, args ...any) {
	r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
}

// Replay folds the commit journal from its beginning and verifies that the
// result matches the contract, code and storage tables exactly, and that the
// event sequence is gapless. It never writes; a failed report means the
// database cannot have been produced by this engine alone.
func Replay(ctx context.Context, database db.DB) (*ReplayReport, error) {
	tx, err := database.CreateRoTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	report := &ReplayReport{}
	fold := &foldState{
		accounts: make(map[types.Address]*foldAccount),
		slots:    make(map[string]common.Hash),
		codes:    make(map[common.Hash][]byte),
	}

	if err := foldJournal(tx, fold, report); err != nil {
		return nil, err
	}
	if err := verifyContracts(tx, fold, report); err != nil {
		return nil, err
	}
	if err := verifyStorage(tx, fold, report); err != nil {
		return nil, err
	}
	if err := verifyCodes(tx, fold, report); err != nil {
		return nil, err
	}
	if err := verifyCounters(tx, fold, report); err != nil {
		return nil, err
	}

	report.Events = fold.eventSeq
	return report, nil
}

func foldJournal(tx db.RoTx, fold *foldState, report *ReplayReport) error {
	it, err := tx.Range(db.CommitTable, nil, nil)
	if err != nil {
		return err
	}
	defer it.Close()

	var expect uint64
	for it.HasNext() {
		key, val, err := it.Next()
		if err != nil {
			return err
		}
		seq := db.ParseSeqKey(key)
		if seq != expect {
			report.mismatch("commit journal gap: have seq %d, want %d", seq, expect)
		}
		expect = seq + 1

		record, err := decodeCommitRecord(val)
		if err != nil {
			return err
		}
		if record.FirstEventSeq != fold.eventSeq {
			report.mismatch("commit %d: event sequence starts at %d, journal is at %d",
				seq, record.FirstEventSeq, fold.eventSeq)
		}
		fold.eventSeq = record.FirstEventSeq + uint64(record.EventCount)

		if err := fold.apply(record); err != nil {
			return fmt.Errorf("commit %d: %w", seq, err)
		}
		report.Commits++
		report.Deploys += len(record.Deploys)
		report.Terminations += len(record.Terminations)
	}
	return nil
}

func verifyContracts(tx db.RoTx, fold *foldState, report *ReplayReport) error {
	it, err := tx.Range(db.ContractTable, nil, nil)
	if err != nil {
		return err
	}
	defer it.Close()

	seen := make(map[types.Address]bool)
	for it.HasNext() {
		key, val, err := it.Next()
		if err != nil {
			return err
		}
		addr := types.BytesToAddress(key)
		row, err := types.UnmarshalRecord(val)
		if err != nil {
			return err
		}
		seen[addr] = true

		acct, ok := fold.accounts[addr]
		if !ok {
			report.mismatch("contract %s: present in table, absent from journal", addr)
			continue
		}
		if !row.Balance.Eq(acct.balance) {
			report.mismatch("contract %s: balance %s in table, %s from journal",
				addr, row.Balance, acct.balance)
		}
		if row.CodeHash != acct.codeHash {
			report.mismatch("contract %s: code hash %s in table, %s from journal",
				addr, row.CodeHash, acct.codeHash)
		}
		if row.Terminated != acct.terminated {
			report.mismatch("contract %s: terminated=%v in table, %v from journal",
				addr, row.Terminated, acct.terminated)
		}
	}

	for addr := range fold.accounts {
		if !seen[addr] {
			report.mismatch("contract %s: present in journal, absent from table", addr)
		}
	}
	return nil
}

func verifyStorage(tx db.RoTx, fold *foldState, report *ReplayReport) error {
	it, err := tx.Range(db.StorageTable, nil, nil)
	if err != nil {
		return err
	}
	defer it.Close()

	seen := make(map[string]bool)
	for it.HasNext() {
		key, val, err := it.Next()
		if err != nil {
			return err
		}
		seen[string(key)] = true
		report.Slots++

		want, ok := fold.slots[string(key)]
		if !ok {
			report.mismatch("slot %x: present in table, absent from journal", key)
			continue
		}
		if common.BytesToHash(val) != want {
			report.mismatch("slot %x: %x in table, %s from journal", key, val, want)
		}
	}

	for key := range fold.slots {
		if !seen[key] {
			report.mismatch("slot %x: present in journal, absent from table", key)
		}
	}
	return nil
}

func verifyCodes(tx db.RoTx, fold *foldState, report *ReplayReport) error {
	it, err := tx.Range(db.CodeTable, nil, nil)
	if err != nil {
		return err
	}
	defer it.Close()

	seen := make(map[common.Hash]bool)
	for it.HasNext() {
		key, val, err := it.Next()
		if err != nil {
			return err
		}
		hash := common.BytesToHash(key)
		seen[hash] = true

		want, ok := fold.codes[hash]
		if !ok {
			report.mismatch("code %s: present in table, absent from journal", hash)
			continue
		}
		if string(val) != string(want) {
			report.mismatch("code %s: stored bytes differ from journal", hash)
		}
	}

	for hash := range fold.codes {
		if !seen[hash] {
			report.mismatch("code %s: present in journal, absent from table", hash)
		}
	}
	return nil
}

func verifyCounters(tx db.RoTx, fold *foldState, report *ReplayReport) error {
	commitSeq, err := db.GetUint64(tx, db.CommitSeqKey)
	if err != nil {
		return err
	}
	if commitSeq != uint64(report.Commits) {
		report.mismatch("commit counter %d, journal has %d records", commitSeq, report.Commits)
	}

	eventSeq, err := db.GetUint64(tx, db.EventSeqKey)
	if err != nil {
		return err
	}
	if eventSeq != fold.eventSeq {
		report.mismatch("event counter %d, journal accounts for %d", eventSeq, fold.eventSeq)
	}

	it, err := tx.Range(db.EventTable, nil, nil)
	if err != nil {
		return err
	}
	defer it.Close()
	var stored uint64
	for it.HasNext() {
		if _, _, err := it.Next(); err != nil {
			return err
		}
		stored++
	}
	if stored != fold.eventSeq {
		report.mismatch("event table holds %d records, journal accounts for %d", stored, fold.eventSeq)
	}
	return nil
}
