//go:build assert

package assert

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const Enable = true

// TxFinishCb marks a tracked transaction as finished.
type TxFinishCb func()

// TxLedger records every open db transaction together with the stack that
// opened it, so tests can fail loudly on leaked transactions.
type TxLedger interface {
	TxOnStart(stack []byte) TxFinishCb
	CheckLeakyTransactions()
}

type txLedger struct {
	runningTxs sync.Map
	txId       atomic.Uint64
}

func (l *txLedger) TxOnStart(stack []byte) TxFinishCb {
	uid := l.txId.Add(1)
	l.runningTxs.Store(uid, stack)

	return func() {
		l.runningTxs.Delete(uid)
	}
}

func (l *txLedger) CheckLeakyTransactions() {
	var leakyTxStack []byte
	l.runningTxs.Range(func(k, v any) bool {
		leakyTxStack = v.([]byte)
		return false
	})

	if len(leakyTxStack) > 0 {
		panic(fmt.Sprintf("Transaction wasn't terminated:\n%s", leakyTxStack))
	}
}

func NewTxLedger() TxLedger {
	return &txLedger{}
}
