package vm

import (
	"sync"

	"github.com/holiman/uint256"
)

var stackPool = sync.Pool{
	New: func() any {
		return &stack{data: make([]uint256.Int, 0, 16)}
	},
}

// stack holds the operand words of one frame. Bounds are enforced by the
// dispatch loop through the jump table's pop and push counts, so the
// accessors themselves do not check.
type stack struct {
	data []uint256.Int
}

func newstack() *stack {
	return stackPool.Get().(*stack)
}

func returnStack(s *stack) {
	s.data = s.data[:0]
	stackPool.Put(s)
}

func (st *stack) push(d *uint256.Int) {
	st.data = append(st.data, *d)
}

func (st *stack) pop() (ret uint256.Int) {
	ret = st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return
}

func (st *stack) len() int {
	return len(st.data)
}

func (st *stack) swap(n int) {
	st.data[st.len()-n], st.data[st.len()-1] = st.data[st.len()-1], st.data[st.len()-n]
}

func (st *stack) dup(n int) {
	st.push(&st.data[st.len()-n])
}

func (st *stack) peek() *uint256.Int {
	return &st.data[st.len()-1]
}

// back returns the n'th item counted from the top without removing it.
func (st *stack) back(n int) *uint256.Int {
	return &st.data[st.len()-n-1]
}
