package db

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// GetUint64 reads a counter from MetaTable, returning 0 for a missing key.
func GetUint64(tx RoTx, key string) (uint64, error) {
	data, err := tx.Get(MetaTable, []byte(key))
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt counter %q: %d bytes", key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func PutUint64(tx RwTx, key string, value uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	return tx.Put(MetaTable, []byte(key), buf[:])
}

// EnsureSchemeVersion stamps a fresh database with the current scheme version
// and rejects databases written by an incompatible one.
func EnsureSchemeVersion(tx RwTx) error {
	stored, err := tx.Get(MetaTable, []byte(SchemeVersionKey))
	if errors.Is(err, ErrKeyNotFound) {
		return PutUint64(tx, SchemeVersionKey, SchemeVersion)
	}
	if err != nil {
		return err
	}
	if len(stored) != 8 || binary.BigEndian.Uint64(stored) != SchemeVersion {
		return fmt.Errorf("incompatible db scheme version: have %v, want %d", stored, SchemeVersion)
	}
	return nil
}
