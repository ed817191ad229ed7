package message

import (
	"errors"
	"sync"
)

// ErrOutOfMemory is returned by Create when the factory's bounded
// allocation budget (the budget passed to NewFactory) has been exhausted,
// and also for a type id outside the registered range. This is the one
// and only failure Factory ever reports — a factory never panics or
// aborts on allocation pressure.
var ErrOutOfMemory = errors.New("message: factory allocation budget exhausted")

// Constructor builds a fresh Body for a message type. Registered once per
// type id at factory construction; Factory itself knows nothing about any
// concrete Body type.
type Constructor func() Body

// Factory creates typed, reference-counted messages by integer type id and
// tracks outstanding allocations for leak detection. A Factory instance is
// meant to be owned by exactly one Connection (and, transitively, its
// channels), driven from a single goroutine — it performs no internal
// locking beyond the counters needed for allocation-budget bookkeeping
// under concurrent leak-check reads in tests.
type Factory struct {
	constructors []Constructor

	mu       sync.Mutex
	budget   int64 // remaining allocation budget; <0 means unlimited
	failed   bool
	outstand int64 // messages created but not yet released
}

// NewFactory registers constructors indexed by type id [0,len(constructors)).
// budget bounds the number of live messages this factory will allow at
// once (modeling a bounded per-peer memory pool); pass a negative
// budget for "unlimited" (suitable for tests).
func NewFactory(constructors []Constructor, budget int) *Factory {
	return &Factory{constructors: constructors, budget: int64(budget)}
}

// NumTypes returns the number of registered message types.
func (f *Factory) NumTypes() int { return len(f.constructors) }

// Failed reports whether this factory has ever failed to allocate. Once
// true, it stays true — callers are expected to treat this as a fatal
// condition on the owning connection.
func (f *Factory) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

// Create builds a fresh message of the given type id with refcount 1. It
// fails (and latches Failed) if typeID is out of range or the allocation
// budget is exhausted.
func (f *Factory) Create(typeID int) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if typeID < 0 || typeID >= len(f.constructors) {
		f.failed = true
		return nil, ErrOutOfMemory
	}
	if f.budget >= 0 && f.outstand >= f.budget {
		f.failed = true
		return nil, ErrOutOfMemory
	}

	var body Body
	if ctor := f.constructors[typeID]; ctor != nil {
		body = ctor()
	}

	f.outstand++
	return &Message{typeID: typeID, refs: 1, body: body}, nil
}

// Release decrements m's reference count, destroying it (and any attached
// block) at zero. Safe to call on a nil message.
func (f *Factory) Release(m *Message) {
	if m == nil {
		return
	}
	if m.Release() {
		f.mu.Lock()
		f.outstand--
		f.mu.Unlock()
		if m.block != nil {
			m.block.Data = nil
		}
	}
}

// Outstanding returns the number of messages created but not yet released
// — a leak-detection hook a test harness polls between scenarios to
// assert the factory returned to zero.
func (f *Factory) Outstanding() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outstand
}
