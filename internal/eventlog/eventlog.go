// Package eventlog persists committed events under a single global sequence
// and answers queries over them. Every emission gets two kinds of index rows:
// one for the (contract, event) pair and one per indexed field value, so both
// query shapes scan a key prefix in emission order.
package eventlog

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/types"
)

type wireField struct {
	Name    string
	Value   types.Value
	Indexed bool
}

type wireEvent struct {
	Address types.Address
	Name    string
	Seq     uint64
	Fields  []wireField
}

func marshalEvent(ev *types.Event) ([]byte, error) {
	we := wireEvent{Address: ev.Address, Name: ev.Name, Seq: ev.Seq}
	for _, f := range ev.Fields {
		we.Fields = append(we.Fields, wireField{Name: f.Name, Value: f.Value, Indexed: f.Indexed})
	}
	return rlp.EncodeToBytes(&we)
}

func unmarshalEvent(data []byte) (*types.Event, error) {
	var we wireEvent
	if err := rlp.DecodeBytes(data, &we); err != nil {
		return nil, err
	}
	ev := &types.Event{Address: we.Address, Name: we.Name, Seq: we.Seq}
	for _, f := range we.Fields {
		ev.Fields = append(ev.Fields, types.EventField{Name: f.Name, Value: f.Value, Indexed: f.Indexed})
	}
	return ev, nil
}

// indexKey builds one EventIndexTable key. Names are hashed to keep the key
// fixed-width; the trailing sequence number makes prefix iteration return
// matches in emission order. The (contract, event) row uses zero hashes in
// the field and value positions.
func indexKey(addr types.Address, event, field string, value common.Hash, seq uint64) []byte {
	key := make([]byte, 0, types.AddrSize+3*common.HashSize+8)
	key = append(key, addr.Bytes()...)
	key = append(key, common.KeccakHash([]byte(event)).Bytes()...)
	if field == "" {
		key = append(key, common.EmptyHash.Bytes()...)
		key = append(key, common.EmptyHash.Bytes()...)
	} else {
		key = append(key, common.KeccakHash([]byte(field)).Bytes()...)
		key = append(key, value.Bytes()...)
	}
	return append(key, db.SeqKey(seq)...)
}

// Flush assigns sequence numbers to the transaction's events and writes the
// event records plus their index rows. It returns the first assigned number
// and the count; the caller folds both into its commit record.
func Flush(tx db.RwTx, events []*types.Event) (first uint64, count int, err error) {
	seq, err := db.GetUint64(tx, db.EventSeqKey)
	if err != nil {
		return 0, 0, err
	}
	first = seq

	for _, ev := range events {
		ev.Seq = seq
		data, err := marshalEvent(ev)
		if err != nil {
			return 0, 0, err
		}
		if err := tx.Put(db.EventTable, db.SeqKey(seq), data); err != nil {
			return 0, 0, err
		}
		if err := tx.Put(db.EventIndexTable, indexKey(ev.Address, ev.Name, "", common.EmptyHash, seq), nil); err != nil {
			return 0, 0, err
		}
		for _, f := range ev.Fields {
			if !f.Indexed {
				continue
			}
			word := common.Hash(f.Value.Uint256().Bytes32())
			if err := tx.Put(db.EventIndexTable, indexKey(ev.Address, ev.Name, f.Name, word, seq), nil); err != nil {
				return 0, 0, err
			}
		}
		seq++
	}

	if err := db.PutUint64(tx, db.EventSeqKey, seq); err != nil {
		return 0, 0, err
	}
	return first, len(events), nil
}

// Load reads one persisted event by its global sequence number.
func Load(tx db.RoTx, seq uint64) (*types.Event, error) {
	data, err := tx.Get(db.EventTable, db.SeqKey(seq))
	if err != nil {
		return nil, err
	}
	return unmarshalEvent(data)
}

// Match constrains one indexed field to an exact value.
type Match struct {
	Field string
	Value types.Value
}

// Filter selects events of one contract and event name, optionally narrowed
// by indexed-field matches and a sequence window. The caller is responsible
// for checking that every matched field is declared indexed; the filter
// itself only sees values.
type Filter struct {
	Contract types.Address
	Event    string
	Matches  []Match

	// From and To bound the global sequence window: an event matches when
	// From <= Seq < To. A zero To leaves the window open-ended.
	From uint64
	To   uint64

	// Limit bounds the result length; zero means unbounded.
	Limit int
}

// Query returns the matching events in emission order. The first match (or
// the bare contract+event pair) drives an index prefix scan; any remaining
// matches are verified against the loaded events.
func Query(tx db.RoTx, filter *Filter) ([]*types.Event, error) {
	if filter.Event == "" {
		return nil, fmt.Errorf("event name must be set")
	}

	field, value := "", common.EmptyHash
	if len(filter.Matches) > 0 {
		field = filter.Matches[0].Field
		value = common.Hash(filter.Matches[0].Value.Uint256().Bytes32())
	}
	start := indexKey(filter.Contract, filter.Event, field, value, filter.From)
	prefix := start[:len(start)-8]

	it, err := tx.Range(db.EventIndexTable, start, prefixEnd(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []*types.Event
	for it.HasNext() {
		key, _, err := it.Next()
		if err != nil {
			return nil, err
		}
		seq := db.ParseSeqKey(key[len(key)-8:])
		if filter.To > 0 && seq >= filter.To {
			break
		}
		ev, err := Load(tx, seq)
		if err != nil {
			return nil, err
		}
		if !matches(ev, filter) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// matches re-checks the full filter against a loaded event. The index is a
// hash of the names, so the load is what makes the match exact.
func matches(ev *types.Event, filter *Filter) bool {
	if ev.Address != filter.Contract || ev.Name != filter.Event {
		return false
	}
	for _, m := range filter.Matches {
		val, ok := ev.IndexedField(m.Field)
		if !ok || !val.Eq(m.Value) {
			return false
		}
	}
	return true
}

// prefixEnd returns the smallest key greater than every key with the prefix,
// or nil when the prefix is all 0xff.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
