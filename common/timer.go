package common

import (
	"time"
)

// Timer is the engine's only source of time. Execution never reads the
// wall clock directly so that runs can be reproduced exactly.
type Timer interface {
	Now() uint64
}

type RealTimerImpl struct{}

var _ Timer = new(RealTimerImpl)

func (t *RealTimerImpl) Now() uint64 {
	return uint64(time.Now().Unix())
}

// TestTimerImpl reports a fixed time that tests advance by hand.
type TestTimerImpl struct {
	NowTime uint64
}

func (t *TestTimerImpl) Now() uint64 {
	return t.NowTime
}

func (t *TestTimerImpl) Advance(seconds uint64) {
	t.NowTime += seconds
}

var realTimer = RealTimerImpl{}

func NewTimer() *RealTimerImpl {
	return &realTimer
}

func NewTestTimer(nowTime uint64) *TestTimerImpl {
	return &TestTimerImpl{NowTime: nowTime}
}
