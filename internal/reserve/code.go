package reserve

import (
	"math/rand"
	"sync"
	"time"
)

// Pickup codes are read over a counter and typed into the redemption
// terminal, so the alphabet drops 0/1/I/L/O.
const (
	CodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	CodeLength   = 6
)

// CodeAllocator generates candidate pickup codes. Uniqueness is enforced by
// the CodeLock create in the checkout transaction, not here; the allocator
// only has to make collisions rare.
type CodeAllocator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCodeAllocator(seed int64) *CodeAllocator {
	return &CodeAllocator{rnd: rand.New(rand.NewSource(seed))}
}

func DefaultCodeAllocator() *CodeAllocator {
	return NewCodeAllocator(time.Now().UnixNano())
}

func (a *CodeAllocator) Generate() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = CodeAlphabet[a.rnd.Intn(len(CodeAlphabet))]
	}
	return string(b)
}
