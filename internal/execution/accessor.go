package execution

import (
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/common/check"
	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/types"
	"github.com/hearthvm/hearth/internal/vm"
)

const (
	codeCacheSize   = 1 << 10
	recordCacheSize = 1 << 12
	slotCacheSize   = 1 << 16
)

// StateAccessor is a read-through cache in front of the committed tables.
// Code is immutable and cached by hash forever; contract records and storage
// slots are refreshed write-through at commit time, so a cached entry always
// equals the committed one. Not safe for concurrent use without external
// locking.
type StateAccessor struct {
	codes   *lru.Cache[common.Hash, *vm.Code]
	records *lru.Cache[types.Address, types.ContractRecord]
	slots   *lru.Cache[string, common.Hash]
}

func NewStateAccessor() *StateAccessor {
	codes, err := lru.New[common.Hash, *vm.Code](codeCacheSize)
	check.PanicIfErr(err)
	records, err := lru.New[types.Address, types.ContractRecord](recordCacheSize)
	check.PanicIfErr(err)
	slots, err := lru.New[string, common.Hash](slotCacheSize)
	check.PanicIfErr(err)
	return &StateAccessor{codes: codes, records: records, slots: slots}
}

// GetContract returns the committed record of addr, or nil if the address has
// never been written.
func (a *StateAccessor) GetContract(tx db.RoTx, addr types.Address) (*types.ContractRecord, error) {
	if rec, ok := a.records.Get(addr); ok {
		return &rec, nil
	}
	data, err := tx.Get(db.ContractTable, addr.Bytes())
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := types.UnmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	a.records.Add(addr, *rec)
	return rec, nil
}

// GetCode returns the decoded code unit stored under hash.
func (a *StateAccessor) GetCode(tx db.RoTx, hash common.Hash) (*vm.Code, error) {
	if code, ok := a.codes.Get(hash); ok {
		return code, nil
	}
	data, err := tx.Get(db.CodeTable, hash.Bytes())
	if err != nil {
		return nil, err
	}
	code, err := vm.DecodeCode(data)
	if err != nil {
		return nil, err
	}
	a.codes.Add(hash, code)
	return code, nil
}

// GetSlot returns the committed word of one storage slot, zero for a slot
// that was never written.
func (a *StateAccessor) GetSlot(tx db.RoTx, addr types.Address, key common.Hash) (common.Hash, error) {
	cacheKey := string(db.StorageKey(addr, key))
	if val, ok := a.slots.Get(cacheKey); ok {
		return val, nil
	}
	data, err := tx.Get(db.StorageTable, db.StorageKey(addr, key))
	if errors.Is(err, db.ErrKeyNotFound) {
		a.slots.Add(cacheKey, common.EmptyHash)
		return common.EmptyHash, nil
	}
	if err != nil {
		return common.EmptyHash, err
	}
	val := common.BytesToHash(data)
	a.slots.Add(cacheKey, val)
	return val, nil
}

// PutContract refreshes the cached record after a commit.
func (a *StateAccessor) PutContract(addr types.Address, rec *types.ContractRecord) {
	a.records.Add(addr, *rec)
}

// PutCode caches a freshly deployed code unit.
func (a *StateAccessor) PutCode(hash common.Hash, code *vm.Code) {
	a.codes.Add(hash, code)
}

// PutSlot refreshes one cached slot after a commit.
func (a *StateAccessor) PutSlot(addr types.Address, key common.Hash, val common.Hash) {
	a.slots.Add(string(db.StorageKey(addr, key)), val)
}

// DropContract evicts the record and the cached slots of a terminated
// contract. Slots are keyed by address prefix, so eviction walks the keys.
func (a *StateAccessor) DropContract(addr types.Address) {
	a.records.Remove(addr)
	prefix := string(addr.Bytes())
	for _, key := range a.slots.Keys() {
		if strings.HasPrefix(key, prefix) {
			a.slots.Remove(key)
		}
	}
}

// Purge empties every cache. Used when the database is rebuilt underneath.
func (a *StateAccessor) Purge() {
	a.codes.Purge()
	a.records.Purge()
	a.slots.Purge()
}
