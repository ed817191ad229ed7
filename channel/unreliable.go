package channel

import (
	"github.com/relaygrid/netchannel/bitstream"
	"github.com/relaygrid/netchannel/message"
	"github.com/relaygrid/netchannel/netmetrics"
)

// UnreliableUnorderedChannel is best-effort delivery with no resend, no
// ordering, and no fragmentation — a block message is sent inline as raw
// bytes in a single packet or not at all.
type UnreliableUnorderedChannel struct {
	errorLatch

	cfg  Config
	deps Dependencies

	sendQueue []*message.Message
	recvQueue []*message.Message
}

// NewUnreliableUnorderedChannel validates cfg and allocates a ready-to-use
// channel.
func NewUnreliableUnorderedChannel(cfg Config, deps Dependencies) (*UnreliableUnorderedChannel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &UnreliableUnorderedChannel{
		cfg:       cfg,
		deps:      deps,
		sendQueue: make([]*message.Message, 0, cfg.MessageSendQueueSize),
		recvQueue: make([]*message.Message, 0, cfg.MessageReceiveQueueSize),
	}, nil
}

// Reset releases every queued message back to the factory and empties
// both queues.
func (c *UnreliableUnorderedChannel) Reset() {
	for _, m := range c.sendQueue {
		c.deps.Factory.Release(m)
	}
	for _, m := range c.recvQueue {
		c.deps.Factory.Release(m)
	}
	c.sendQueue = c.sendQueue[:0]
	c.recvQueue = c.recvQueue[:0]
	c.errorLatch.reset()
}

// AdvanceTime is a no-op; this channel has no resend timers.
func (c *UnreliableUnorderedChannel) AdvanceTime(float64) {}

// fail latches level and, iff this call is the transition that actually
// latches it, emits the error_transitions metric.
func (c *UnreliableUnorderedChannel) fail(level ErrorLevel) bool {
	if !c.set(level) {
		return false
	}
	netmetrics.ErrorTransition(c.deps.Metrics, c.deps.Index, level.String())
	return true
}

// CanSendMessage reports whether a SendMessage call right now would be
// accepted.
func (c *UnreliableUnorderedChannel) CanSendMessage() bool {
	return c.Error() == ErrorNone && len(c.sendQueue) < c.cfg.MessageSendQueueSize
}

// SendMessage enqueues msg for the next packet. Returns false, releasing
// msg in every case, if: the channel is already latched into an error
// state; the queue is already at MessageSendQueueSize capacity (latches
// SEND_QUEUE_FULL — the application over-produced); or blocks are
// disabled and msg is a block.
func (c *UnreliableUnorderedChannel) SendMessage(msg *message.Message) bool {
	if c.Error() != ErrorNone {
		c.deps.Factory.Release(msg)
		return false
	}
	if msg.IsBlock() && c.cfg.DisableBlocks {
		c.fail(ErrorBlocksDisabled)
		c.deps.Factory.Release(msg)
		return false
	}
	if len(c.sendQueue) >= c.cfg.MessageSendQueueSize {
		c.fail(ErrorSendQueueFull)
		netmetrics.MessageDropped(c.deps.Metrics, c.deps.Index, "send_queue_full")
		c.deps.Factory.Release(msg)
		return false
	}
	msg.Acquire()
	c.sendQueue = append(c.sendQueue, msg)
	netmetrics.MessageSent(c.deps.Metrics, c.deps.Index)
	return true
}

// ReceiveMessage dequeues the oldest message the peer has delivered, or
// nil if none is waiting. Arrival order, not send order, since nothing
// here is resequenced.
func (c *UnreliableUnorderedChannel) ReceiveMessage() *message.Message {
	if len(c.recvQueue) == 0 {
		return nil
	}
	msg := c.recvQueue[0]
	c.recvQueue = c.recvQueue[1:]
	return msg
}

// WritePacketData dequeues messages one by one into one packet entry, up
// to MaxMessagesPerPacket. A dequeued message that doesn't fit the
// remaining budget is discarded, not requeued — delivery is not
// guaranteed on this channel, and requeueing would let one oversized
// message stall everything behind it. Messages never dequeued this call
// (past the per-packet cap) stay queued. With nothing to contribute it
// writes nothing and returns false; the connection's entry count covers
// absence.
func (c *UnreliableUnorderedChannel) WritePacketData(w *bitstream.Writer, budgetBits int, packetSequence uint16) bool {
	if c.Error() != ErrorNone || len(c.sendQueue) == 0 {
		return false
	}

	// Reserve the channel's own framing (channel index + block flag +
	// num_messages + the trailing check sentinel, with alignment slack)
	// out of the budget before admitting any message, so a full payload
	// can't push the framing past the writer's capacity.
	headerBits := c.deps.entryIndexBits() + 1 +
		bitstream.BitsRequired(1, int32(c.cfg.MaxMessagesPerPacket)) + 48
	messageBudget := budgetBits - headerBits

	var chosen []*message.Message
	usedBits := 0
	taken := 0
	for _, msg := range c.sendQueue {
		if len(chosen) >= c.cfg.MaxMessagesPerPacket {
			break
		}
		taken++
		m := bitstream.NewMeasurer()
		if !c.serializeMessage(m, msg) {
			netmetrics.MessageDropped(c.deps.Metrics, c.deps.Index, "oversized")
			c.deps.Factory.Release(msg)
			continue
		}
		// The measurer starts at bit offset zero, so any byte alignment
		// inside the message can pad up to 7 more bits at the actual
		// write offset; budget each message with that slack included.
		if usedBits+m.BitsWritten()+7 > messageBudget {
			netmetrics.MessageDropped(c.deps.Metrics, c.deps.Index, "over_budget")
			c.deps.Factory.Release(msg)
			continue
		}
		chosen = append(chosen, msg)
		usedBits += m.BitsWritten() + 7
	}
	c.sendQueue = append(c.sendQueue[:0], c.sendQueue[taken:]...)

	if len(chosen) == 0 {
		return false
	}

	// The entry-level block flag is always false here: this channel
	// never fragments, so a block rides inline within its message.
	isBlock := false
	numMessages := uint32(len(chosen))
	if !c.deps.writeEntryIndex(w) ||
		!bitstream.SerializeBool(w, &isBlock) ||
		!bitstream.SerializeUint32Range(w, &numMessages, 1, uint32(c.cfg.MaxMessagesPerPacket)) {
		c.fail(ErrorFailedToSerialize)
		return false
	}
	for _, msg := range chosen {
		if !c.serializeMessage(w, msg) {
			c.fail(ErrorFailedToSerialize)
			return false
		}
		c.deps.Factory.Release(msg)
	}
	if !bitstream.SerializeCheck(w) {
		c.fail(ErrorFailedToSerialize)
		return false
	}
	netmetrics.BytesSent(c.deps.Metrics, c.deps.Index, (usedBits+7)/8)
	return true
}

// serializeMessage runs one message's on-wire form against s — the same
// routine measures (against a Measurer) and writes (against a Writer),
// including the inline block bytes for a block message, so the budget
// check above sees the true cost of what gets written below.
func (c *UnreliableUnorderedChannel) serializeMessage(s bitstream.Stream, msg *message.Message) bool {
	isBlock := msg.IsBlock()
	typeField := uint32(msg.Type())
	if !bitstream.SerializeBool(s, &isBlock) {
		return false
	}
	if !bitstream.SerializeUint32Range(s, &typeField, 0, uint32(c.deps.Factory.NumTypes()-1)) {
		return false
	}
	if isBlock {
		n := uint32(msg.Block().Size())
		if n > uint32(c.cfg.MaxBlockSize) {
			return false
		}
		if !bitstream.SerializeUint32Range(s, &n, 0, uint32(c.cfg.MaxBlockSize)) {
			return false
		}
		return bitstream.SerializeBytes(s, msg.Block().Data, int(n))
	}
	return msg.Serialize(s)
}

// ReadPacketData reads this channel's contribution, enqueuing every
// message it carried subject to MessageReceiveQueueSize — once full, a
// newly arrived message is itself dropped rather than evicting anything
// already queued, matching this channel's general "new data is not
// favored over old" drop policy. Every delivered message's id is
// stamped with the datagram sequence it arrived in, not any
// sender-side ordinal.
func (c *UnreliableUnorderedChannel) ReadPacketData(r *bitstream.Reader, packetSequence uint16) bool {
	var isBlock bool
	if !bitstream.SerializeBool(r, &isBlock) {
		c.fail(ErrorFailedToSerialize)
		return false
	}
	if isBlock {
		// This channel never fragments; a fragment entry addressed to it
		// means the peer's channel stack disagrees with ours.
		c.fail(ErrorDesync)
		return false
	}
	var numMessages uint32
	if !bitstream.SerializeUint32Range(r, &numMessages, 1, uint32(c.cfg.MaxMessagesPerPacket)) {
		c.fail(ErrorFailedToSerialize)
		return false
	}
	for i := uint32(0); i < numMessages; i++ {
		var isBlock bool
		var typeField uint32
		if !bitstream.SerializeBool(r, &isBlock) {
			c.fail(ErrorFailedToSerialize)
			return false
		}
		if !bitstream.SerializeUint32Range(r, &typeField, 0, uint32(c.deps.Factory.NumTypes()-1)) {
			c.fail(ErrorFailedToSerialize)
			return false
		}
		msg, err := c.deps.Factory.Create(int(typeField))
		if err != nil {
			c.fail(ErrorOutOfMemory)
			return false
		}
		if isBlock {
			var n uint32
			if !bitstream.SerializeUint32Range(r, &n, 0, uint32(c.cfg.MaxBlockSize)) {
				c.deps.Factory.Release(msg)
				c.fail(ErrorFailedToSerialize)
				return false
			}
			buf := make([]byte, n)
			if !bitstream.SerializeBytes(r, buf, int(n)) {
				c.deps.Factory.Release(msg)
				c.fail(ErrorFailedToSerialize)
				return false
			}
			msg.AttachBlock(buf)
		} else if !msg.Serialize(r) {
			c.deps.Factory.Release(msg)
			c.fail(ErrorFailedToSerialize)
			return false
		}
		msg.SetID(packetSequence)
		c.enqueueReceived(msg)
	}
	if !bitstream.SerializeCheck(r) {
		c.fail(ErrorFailedToSerialize)
		return false
	}
	return true
}

func (c *UnreliableUnorderedChannel) enqueueReceived(msg *message.Message) {
	if len(c.recvQueue) >= c.cfg.MessageReceiveQueueSize {
		c.deps.Factory.Release(msg)
		netmetrics.MessageDropped(c.deps.Metrics, c.deps.Index, "receive_queue_full")
		return
	}
	c.recvQueue = append(c.recvQueue, msg)
	netmetrics.MessageReceived(c.deps.Metrics, c.deps.Index)
}

// ProcessAck is a no-op; this channel never retains state keyed by
// outgoing packet sequence.
func (c *UnreliableUnorderedChannel) ProcessAck(uint16) {}
