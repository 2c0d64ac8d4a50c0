//go:build !assert

package assert

const Enable = false

// TxFinishCb marks a tracked transaction as finished.
type TxFinishCb func()

// TxLedger is a no-op unless the assert build tag is set.
type TxLedger interface {
	TxOnStart(stack []byte) TxFinishCb
	CheckLeakyTransactions()
}

type txLedger struct{}

func (l *txLedger) TxOnStart([]byte) TxFinishCb {
	return func() {}
}

func (l *txLedger) CheckLeakyTransactions() {}

func NewTxLedger() TxLedger {
	return &txLedger{}
}
