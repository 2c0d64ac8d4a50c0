package db

import (
	"encoding/binary"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/types"
)

const (
	// ContractTable maps address to the contract record (balance, seqno, code
	// hash, termination flag).
	ContractTable = TableName("Contract")

	// CodeTable maps code hash to the flattened code unit. Code is immutable,
	// so records are written once and shared between identical deployments.
	CodeTable = TableName("Code")

	// StorageTable maps address|slot to the committed 32-byte word.
	StorageTable = TableName("Storage")

	// EventTable maps the global event sequence number to the event record.
	EventTable = TableName("Event")

	// EventIndexTable maps address|event|field|valueHash|seq to nothing; it is
	// scanned by prefix to answer indexed-field queries in emission order.
	EventIndexTable = TableName("EventIndex")

	// CommitTable is the ordered journal of committed transactions: storage
	// deltas, balance updates, deploys, terminations and event counts. Folding
	// it from the start reproduces the other tables exactly.
	CommitTable = TableName("Commit")

	// MetaTable holds engine-wide counters and the scheme version.
	MetaTable = TableName("Meta")
)

const (
	SchemeVersionKey = "SchemeVersion"
	EventSeqKey      = "EventSeq"
	CommitSeqKey     = "CommitSeq"

	// DeploySeqKey is the registry nonce: the number of deployments ever
	// attempted through the host. Deployment addresses derive from it.
	DeploySeqKey = "DeploySeq"
)

// SchemeVersion guards against opening a database written by an incompatible
// layout of the tables above.
const SchemeVersion = uint64(1)

// StorageKey builds the StorageTable key for one slot of one contract.
func StorageKey(addr types.Address, slot common.Hash) []byte {
	key := make([]byte, 0, types.AddrSize+common.HashSize)
	key = append(key, addr.Bytes()...)
	return append(key, slot.Bytes()...)
}

// SeqKey renders a sequence number as a big-endian key so that badger's
// lexicographic iteration order equals numeric order.
func SeqKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}

func ParseSeqKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
