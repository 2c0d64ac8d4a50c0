package db

import (
	"context"
)

type TableName string

// RoTx is a read-only transaction. Every transaction must be finished with
// Rollback (or Commit for RwTx); the assert build tag enables leak checking.
type RoTx interface {
	Get(table TableName, key []byte) ([]byte, error)
	Exists(table TableName, key []byte) (bool, error)
	Range(table TableName, from, to []byte) (Iter, error)

	// Rollback can't really fail, because it's not clear how to proceed.
	// It's better to just panic in this case and restart.
	Rollback()
}

type RwTx interface {
	RoTx

	Put(table TableName, key, value []byte) error
	Delete(table TableName, key []byte) error
	Commit() error
}

type DB interface {
	CreateRoTx(ctx context.Context) (RoTx, error)
	CreateRwTx(ctx context.Context) (RwTx, error)
	DropAll() error
	Close()
}

type Iter interface {
	HasNext() bool
	Next() ([]byte, []byte, error)
	Close()
}
