// Package sequencebuffer implements the fixed-capacity, sequence-indexed
// associative array used for send/receive queues and sent-packet tracking
// throughout the connection layer. Lookup, insert and evict are all O(1);
// eviction on wraparound is the only non-constant-per-call cost, and it is
// bounded by the buffer's own size.
//
// The wrap-aware ordering (what counts as "newer" across the 16-bit
// sequence space) mirrors the pattern other_examples/AhmadMuzakkir-reliable
// uses for its write/read queues (trackWrite/trackRead clearing the range
// between the old and new cursor on advance) generalized here to carry an
// arbitrary payload type per slot instead of just a occupancy marker.
package sequencebuffer

import "github.com/relaygrid/netchannel/bitstream"

const emptySequence = 0xFFFFFFFF

// Buffer is a sequence buffer of capacity len(entries), holding payloads of
// type T indexed by 16-bit sequence number.
type Buffer[T any] struct {
	currentSequence uint16
	entrySequence   []uint32
	entries         []T
}

// New allocates a buffer with the given fixed capacity.
func New[T any](size int) *Buffer[T] {
	if size <= 0 {
		panic("sequencebuffer: size must be positive")
	}
	b := &Buffer[T]{
		entrySequence: make([]uint32, size),
		entries:       make([]T, size),
	}
	b.Reset()
	return b
}

// Size returns the buffer's fixed capacity.
func (b *Buffer[T]) Size() int { return len(b.entries) }

func (b *Buffer[T]) index(seq uint16) int { return int(seq) % len(b.entries) }

// Reset empties every slot and resets the current sequence to zero.
func (b *Buffer[T]) Reset() {
	for i := range b.entrySequence {
		b.entrySequence[i] = emptySequence
	}
	var zero T
	for i := range b.entries {
		b.entries[i] = zero
	}
	b.currentSequence = 0
}

// removeRange marks slots empty for sequences in (start, end] — used by
// Insert's forward eviction.
func (b *Buffer[T]) removeRange(start, end uint16) {
	distance := uint32(end - start) // wraps mod 65536, the forward distance
	if distance >= uint32(len(b.entries)) {
		for i := range b.entrySequence {
			b.entrySequence[i] = emptySequence
		}
		return
	}
	for seq := start + 1; ; seq++ {
		b.entrySequence[b.index(seq)] = emptySequence
		if seq == end {
			break
		}
	}
}

// Insert occupies the slot for seq, evicting any sequences the advance
// skips over, and returns a pointer to the slot's payload along with
// whether the insert was accepted. Insert rejects seq if it is older than
// currentSequence - size (the slot would already have been evicted).
func (b *Buffer[T]) Insert(seq uint16) (*T, bool) {
	if bitstream.SequenceLessThan(seq, b.currentSequence-uint16(len(b.entries))) {
		return nil, false
	}
	if bitstream.SequenceGreaterThan(seq+1, b.currentSequence) {
		b.removeRange(b.currentSequence-1, seq)
		b.currentSequence = seq + 1
	}
	idx := b.index(seq)
	b.entrySequence[idx] = uint32(seq)
	var zero T
	b.entries[idx] = zero
	return &b.entries[idx], true
}

// Find returns the slot's payload iff it is currently occupied by seq.
func (b *Buffer[T]) Find(seq uint16) (*T, bool) {
	idx := b.index(seq)
	if b.entrySequence[idx] == uint32(seq) {
		return &b.entries[idx], true
	}
	return nil, false
}

// Remove empties the slot for seq, regardless of current occupant.
func (b *Buffer[T]) Remove(seq uint16) {
	b.entrySequence[b.index(seq)] = emptySequence
}

// Available reports whether seq's slot is currently empty.
func (b *Buffer[T]) Available(seq uint16) bool {
	return b.entrySequence[b.index(seq)] == emptySequence
}

// CurrentSequence returns the most recently advanced-to sequence (one past
// the newest seq ever inserted).
func (b *Buffer[T]) CurrentSequence() uint16 { return b.currentSequence }
