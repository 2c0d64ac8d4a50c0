package types

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/hearthvm/hearth/common"
)

// ContractRecord is the durable account row of one address: its balance, the
// hash of its deployed code, and the termination tombstone. Addresses that
// only hold a balance have a zero CodeHash.
type ContractRecord struct {
	Balance    Value
	CodeHash   common.Hash
	Terminated bool
}

// HasCode reports whether the record points at deployed code.
func (r *ContractRecord) HasCode() bool {
	return r.CodeHash != common.EmptyHash
}

func (r *ContractRecord) MarshalRecord() ([]byte, error) {
	return rlp.EncodeToBytes(r)
}

func UnmarshalRecord(data []byte) (*ContractRecord, error) {
	rec := new(ContractRecord)
	if err := rlp.DecodeBytes(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
