// Package message implements the reference-counted, factory-created
// message objects carried over netchannel's channels, and the block
// variant used for reliable fragmented transfer.
package message

import (
	"sync/atomic"

	"github.com/relaygrid/netchannel/bitstream"
)

// Body is the per-type payload a concrete message wraps. Implementations
// provide one Serialize method that must behave identically whether s is a
// *bitstream.Writer, *bitstream.Reader or *bitstream.Measurer — the
// "dual-use serialization" contract. Dispatch from a wire type id to the
// right Body happens through the Factory's registered constructors rather
// than a type switch, so new message types never touch Message/Factory.
type Body interface {
	Serialize(s bitstream.Stream) bool
}

// Message is a reference-counted, typed, wire-serializable object. It
// carries no back-pointer to its factory or owning channel; its lifetime
// is refcount-managed only.
type Message struct {
	id      uint16
	typeID  int
	isBlock bool
	refs    int32
	body    Body

	block *Block // non-nil iff isBlock
}

// ID returns the message id: on the sending side, the id assigned by the
// reliable channel that accepted it via send_message; on the receiving
// side, the id the receiving channel stamped on it. Zero until set.
func (m *Message) ID() uint16 { return m.id }

// SetID is called by the reliable channel's send_message, when the message
// is assigned its place in the send sequence, and by the receiving channels
// (the reliable channel with the sender's id, the unreliable channel with
// the datagram sequence the message arrived in).
func (m *Message) SetID(id uint16) { m.id = id }

// Type returns the integer type tag the factory created this message from.
func (m *Message) Type() int { return m.typeID }

// Body returns the application payload the factory constructed for this
// message, for the caller to type-assert and populate before SendMessage
// (or inspect after ReceiveMessage). Nil for a message type registered
// with a nil Constructor, or for a pure block message carrying no body
// fields of its own.
func (m *Message) Body() Body { return m.body }

// IsBlock reports whether this message carries an attached Block.
func (m *Message) IsBlock() bool { return m.isBlock }

// Block returns the attached block, or nil if IsBlock is false.
func (m *Message) Block() *Block { return m.block }

// AttachBlock gives the message ownership of an allocated byte block and
// marks it as a block message, whatever type it was created as; the
// block's lifetime is now exclusively tied to this message.
func (m *Message) AttachBlock(data []byte) {
	m.isBlock = true
	m.block = &Block{Data: data}
}

// Serialize runs the type's own Serialize method against s. Used uniformly
// for writing onto the wire, reading off it, and measuring bit cost.
func (m *Message) Serialize(s bitstream.Stream) bool {
	if m.body == nil {
		return true
	}
	return m.body.Serialize(s)
}

// Acquire increments the reference count. Paired with Release.
func (m *Message) Acquire() {
	atomic.AddInt32(&m.refs, 1)
}

// Release decrements the reference count and reports whether this call
// dropped it to zero (the caller, normally the Factory, is then
// responsible for actually destroying the message and freeing its block).
func (m *Message) Release() bool {
	return atomic.AddInt32(&m.refs, -1) == 0
}

// RefCount reports the current reference count, for leak-detection
// diagnostics only — never branch production logic on it besides the
// zero-check Release already performs.
func (m *Message) RefCount() int32 { return atomic.LoadInt32(&m.refs) }

// Block is the opaque byte buffer a block message carries. Ownership is
// exclusive to the owning Message; it is freed when the message is
// destroyed (refcount reaches zero).
type Block struct {
	Data []byte
	// MessageID and MessageType are stamped onto a receive-side block once
	// reassembly completes, letting the channel hand the block to the
	// factory-created message of the right concrete type.
	MessageID   uint16
	MessageType int
}

// Size returns the number of bytes in the block.
func (b *Block) Size() int { return len(b.Data) }
