package channel

import (
	"github.com/relaygrid/netchannel/bitstream"
	"github.com/relaygrid/netchannel/message"
	"github.com/relaygrid/netchannel/netmetrics"
	"github.com/relaygrid/netchannel/sequencebuffer"
)

// sendSlot is one occupant of a ReliableOrderedChannel's send queue.
type sendSlot struct {
	msg      *message.Message
	sendTime float64 // -1 until first sent
}

// recvSlot is one occupant of a ReliableOrderedChannel's receive queue.
type recvSlot struct {
	msg *message.Message
}

// sentPacketEntry records what a single outgoing packet carried for this
// channel, looked up by packet sequence when an ack comes back. Without
// this, ProcessAck would have no way to know which message (or which block
// fragment) a given acked packet sequence actually delivered.
type sentPacketEntry struct {
	isBlock        bool
	messageIDs     []uint16 // message-mode
	blockMessageID uint16   // block-mode
	fragmentID     uint16   // block-mode
}

// ReliableOrderedChannel is strictly ordered, reliable delivery with
// single-block-in-flight fragmentation: per-message and per-fragment
// resend timers driven by an explicit sequence-buffer-backed state
// machine, rather than RakNet-style split-packet bookkeeping.
type ReliableOrderedChannel struct {
	errorLatch

	cfg  Config
	deps Dependencies
	time float64

	sendQueue   *sequencebuffer.Buffer[sendSlot]
	recvQueue   *sequencebuffer.Buffer[recvSlot]
	sentPackets *sequencebuffer.Buffer[sentPacketEntry]

	sendMessageID          uint16
	oldestUnackedMessageID uint16
	recvMessageID          uint16

	sendBlockActive        bool
	sendBlockID            uint16
	sendBlockNumFragments  int
	sendBlockFragmentAcked *sequencebuffer.BitArray
	sendBlockFragmentSent  []float64

	recvBlockActive       bool
	recvBlockMessageID    uint16
	recvBlockMessageType  int
	recvBlockNumFragments int
	recvBlockLastFragLen  int
	recvBlockReceived     *sequencebuffer.BitArray
	recvBlockData         []byte
}

// fail latches level and, iff this call is the transition that actually
// latches it, emits the error_transitions metric — so a channel stuck in
// one error doesn't spam the counter on every subsequent packet.
func (c *ReliableOrderedChannel) fail(level ErrorLevel) bool {
	if !c.set(level) {
		return false
	}
	netmetrics.ErrorTransition(c.deps.Metrics, c.deps.Index, level.String())
	return true
}

// NewReliableOrderedChannel validates cfg and allocates a ready-to-use
// channel.
func NewReliableOrderedChannel(cfg Config, deps Dependencies) (*ReliableOrderedChannel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &ReliableOrderedChannel{cfg: cfg, deps: deps}
	c.sendQueue = sequencebuffer.New[sendSlot](cfg.MessageSendQueueSize)
	c.recvQueue = sequencebuffer.New[recvSlot](cfg.MessageReceiveQueueSize)
	c.sentPackets = sequencebuffer.New[sentPacketEntry](cfg.SentPacketBufferSize)
	return c, nil
}

// Reset returns the channel to its newly-constructed state, releasing any
// messages still held in either queue back to the factory.
func (c *ReliableOrderedChannel) Reset() {
	for seq := c.oldestUnackedMessageID; bitstream.SequenceLessThan(seq, c.sendMessageID); seq++ {
		if slot, ok := c.sendQueue.Find(seq); ok && slot.msg != nil {
			c.deps.Factory.Release(slot.msg)
		}
	}
	for i := 0; i < c.cfg.MessageReceiveQueueSize; i++ {
		seq := c.recvMessageID + uint16(i)
		if slot, ok := c.recvQueue.Find(seq); ok && slot.msg != nil {
			c.deps.Factory.Release(slot.msg)
		}
	}
	c.sendQueue.Reset()
	c.recvQueue.Reset()
	c.sentPackets.Reset()
	c.sendMessageID = 0
	c.oldestUnackedMessageID = 0
	c.recvMessageID = 0
	c.sendBlockActive = false
	c.recvBlockActive = false
	c.time = 0
	c.errorLatch.reset()
}

// AdvanceTime moves the channel's clock forward by dt seconds, used to
// gate resend timers.
func (c *ReliableOrderedChannel) AdvanceTime(dt float64) { c.time += dt }

// OldestUnackedMessageID reports the id of the oldest message this
// channel is still waiting on an ack for. It is monotonic
// non-decreasing (in 16-bit sequence arithmetic) over the channel's
// life, which is exactly what advanceOldestUnacked enforces.
func (c *ReliableOrderedChannel) OldestUnackedMessageID() uint16 {
	return c.oldestUnackedMessageID
}

// SendMessageID reports the next message id this channel will assign on
// SendMessage — i.e., the count of messages ever sent on this channel.
func (c *ReliableOrderedChannel) SendMessageID() uint16 { return c.sendMessageID }

// CanSendMessage reports whether a SendMessage call right now would be
// accepted: the channel is healthy and the slot the next message id
// would occupy is free.
func (c *ReliableOrderedChannel) CanSendMessage() bool {
	return c.Error() == ErrorNone && c.sendQueue.Available(c.sendMessageID)
}

// SendMessage takes ownership of msg (acquiring a reference on success) and
// assigns it the next outgoing message id. Every rejection path releases
// the caller's reference instead of leaking it: a message the channel
// declines to queue is dropped outright, whether because the channel is
// already errored, blocks are disabled here, the block exceeds this
// channel's configured limit, or the send queue is full.
func (c *ReliableOrderedChannel) SendMessage(msg *message.Message) bool {
	if c.Error() != ErrorNone {
		c.deps.Factory.Release(msg)
		return false
	}
	if msg.IsBlock() && c.cfg.DisableBlocks {
		c.fail(ErrorBlocksDisabled)
		netmetrics.MessageDropped(c.deps.Metrics, c.deps.Index, "blocks_disabled")
		c.deps.Factory.Release(msg)
		return false
	}
	if msg.IsBlock() && msg.Block().Size() > c.cfg.MaxBlockSize {
		c.fail(ErrorBlocksDisabled)
		netmetrics.MessageDropped(c.deps.Metrics, c.deps.Index, "block_too_large")
		c.deps.Factory.Release(msg)
		return false
	}
	// Insert would accept any newer sequence by evicting the slot's
	// current occupant — here that occupant is an unacked message, so a
	// full queue has to be caught explicitly before inserting.
	if !c.sendQueue.Available(c.sendMessageID) {
		c.fail(ErrorSendQueueFull)
		netmetrics.MessageDropped(c.deps.Metrics, c.deps.Index, "send_queue_full")
		c.deps.Factory.Release(msg)
		return false
	}
	slot, ok := c.sendQueue.Insert(c.sendMessageID)
	if !ok {
		c.fail(ErrorSendQueueFull)
		netmetrics.MessageDropped(c.deps.Metrics, c.deps.Index, "send_queue_full")
		c.deps.Factory.Release(msg)
		return false
	}
	msg.Acquire()
	msg.SetID(c.sendMessageID)
	*slot = sendSlot{msg: msg, sendTime: -1}
	c.sendMessageID++
	netmetrics.MessageSent(c.deps.Metrics, c.deps.Index)
	return true
}

// ReceiveMessage dequeues the next message in order, or nil if it hasn't
// arrived (or been fully reassembled, for a block) yet.
func (c *ReliableOrderedChannel) ReceiveMessage() *message.Message {
	slot, ok := c.recvQueue.Find(c.recvMessageID)
	if !ok || slot.msg == nil {
		return nil
	}
	msg := slot.msg
	slot.msg = nil
	c.recvQueue.Remove(c.recvMessageID)
	c.recvMessageID++
	return msg
}

// WritePacketData writes this channel's packet entry (channel index when
// the connection has more than one channel, the block flag, then the
// message or fragment payload), consuming no more than budgetBits. When
// the channel has nothing to contribute it writes nothing at all and
// returns false — the connection counts entries and prefixes the packet
// with that count, so absence is encoded there, not per channel.
func (c *ReliableOrderedChannel) WritePacketData(w *bitstream.Writer, budgetBits int, packetSequence uint16) bool {
	if c.Error() != ErrorNone {
		return false
	}
	slot, ok := c.sendQueue.Find(c.oldestUnackedMessageID)
	if !ok || slot.msg == nil {
		return false
	}
	var wrote bool
	if slot.msg.IsBlock() {
		wrote = c.writeBlockFragment(w, slot, packetSequence, budgetBits)
	} else {
		wrote = c.writeMessages(w, packetSequence, budgetBits)
	}
	if w.Overflowed() {
		c.fail(ErrorFailedToSerialize)
		return false
	}
	return wrote
}

func (c *ReliableOrderedChannel) writeBlockFragment(w *bitstream.Writer, slot *sendSlot, packetSequence uint16, budgetBits int) bool {
	block := slot.msg.Block()
	numFragments := (block.Size() + c.cfg.BlockFragmentSize - 1) / c.cfg.BlockFragmentSize
	if numFragments == 0 {
		numFragments = 1
	}
	if !c.sendBlockActive || c.sendBlockID != slot.msg.ID() {
		c.sendBlockActive = true
		c.sendBlockID = slot.msg.ID()
		c.sendBlockNumFragments = numFragments
		c.sendBlockFragmentAcked = sequencebuffer.NewBitArray(numFragments)
		c.sendBlockFragmentSent = make([]float64, numFragments)
		for i := range c.sendBlockFragmentSent {
			c.sendBlockFragmentSent[i] = -1
		}
	}

	fragmentID := -1
	for i := 0; i < c.sendBlockNumFragments; i++ {
		if c.sendBlockFragmentAcked.Get(i) {
			continue
		}
		sent := c.sendBlockFragmentSent[i]
		if sent < 0 || c.time-sent >= c.cfg.BlockFragmentResendTime {
			fragmentID = i
			break
		}
	}
	if fragmentID < 0 {
		return false
	}

	start := fragmentID * c.cfg.BlockFragmentSize
	end := start + c.cfg.BlockFragmentSize
	if end > block.Size() {
		end = block.Size()
	}
	fragBytes := block.Data[start:end]

	headerBits := c.deps.entryIndexBits() + 1 + 16 +
		bitstream.BitsRequired(1, int32(c.cfg.MaxFragmentsPerBlock())) +
		bitstream.BitsRequired(0, int32(c.sendBlockNumFragments-1)) +
		bitstream.BitsRequired(0, int32(c.deps.Factory.NumTypes()-1)) +
		bitstream.BitsRequired(0, int32(c.cfg.BlockFragmentSize)) + 48
	if headerBits+len(fragBytes)*8 > budgetBits {
		return false
	}

	isBlock := true
	blockID := uint32(slot.msg.ID())
	numFrag := uint32(c.sendBlockNumFragments)
	fragID := uint32(fragmentID)
	fragLen := uint32(len(fragBytes))
	msgType := uint32(slot.msg.Type())

	ok := c.deps.writeEntryIndex(w) &&
		bitstream.SerializeBool(w, &isBlock) &&
		bitstream.SerializeUint32Range(w, &blockID, 0, 65535) &&
		bitstream.SerializeUint32Range(w, &numFrag, 1, uint32(c.cfg.MaxFragmentsPerBlock())) &&
		bitstream.SerializeUint32Range(w, &fragID, 0, numFrag-1) &&
		bitstream.SerializeUint32Range(w, &msgType, 0, uint32(c.deps.Factory.NumTypes()-1)) &&
		bitstream.SerializeUint32Range(w, &fragLen, 0, uint32(c.cfg.BlockFragmentSize)) &&
		bitstream.SerializeBytes(w, fragBytes, len(fragBytes)) &&
		bitstream.SerializeCheck(w)
	if !ok {
		return false
	}

	c.sendBlockFragmentSent[fragmentID] = c.time
	c.sentPackets.Insert(packetSequence)
	entry, _ := c.sentPackets.Find(packetSequence)
	*entry = sentPacketEntry{isBlock: true, blockMessageID: slot.msg.ID(), fragmentID: uint16(fragmentID)}
	netmetrics.BytesSent(c.deps.Metrics, c.deps.Index, len(fragBytes))
	return true
}

func (c *ReliableOrderedChannel) writeMessages(w *bitstream.Writer, packetSequence uint16, budgetBits int) bool {
	var ids []uint16
	usedBits := 0

	// Reserve the channel's own framing (channel index + block flag +
	// num_messages + the trailing check sentinel, with alignment slack)
	// out of the budget before admitting any message, so a full payload
	// can't push the framing past the writer's capacity.
	headerBits := c.deps.entryIndexBits() + 1 +
		bitstream.BitsRequired(1, int32(c.cfg.MaxMessagesPerPacket)) + 48
	budgetBits -= headerBits

	// Walk forward from the oldest unacked id, skipping (never stopping on)
	// entries that aren't ready yet, bounded by two independent limits: at
	// most min(send_queue_size, receive_queue_size) ids examined, and a
	// separate give-up counter, decremented only on a skip, equal to
	// send_queue_size — together they keep a long run of not-yet-resendable
	// or oversized entries from turning this into an unbounded scan while
	// still letting it reach newer messages behind a stalled old one.
	maxScan := c.cfg.MessageSendQueueSize
	if c.cfg.MessageReceiveQueueSize < maxScan {
		maxScan = c.cfg.MessageReceiveQueueSize
	}
	giveUp := c.cfg.MessageSendQueueSize

	id := c.oldestUnackedMessageID
	for scanned := 0; scanned < maxScan && giveUp > 0 && len(ids) < c.cfg.MaxMessagesPerPacket; scanned++ {
		slot, ok := c.sendQueue.Find(id)
		if !ok || slot.msg == nil || slot.msg.IsBlock() {
			id++
			giveUp--
			continue
		}
		if slot.sendTime >= 0 && c.time-slot.sendTime < c.cfg.MessageResendTime {
			id++
			giveUp--
			continue
		}
		// The first chosen message carries its id as a 16-bit absolute
		// field; every later one carries a sequence-relative delta from
		// the previously chosen id, so the measured cost depends on what
		// has been chosen so far.
		m := bitstream.NewMeasurer()
		if len(ids) == 0 {
			idField := uint32(id)
			bitstream.SerializeUint32Range(m, &idField, 0, 65535)
		} else {
			idCopy := id
			bitstream.SerializeSequenceRelative(m, ids[len(ids)-1], &idCopy)
		}
		typeField := uint32(slot.msg.Type())
		bitstream.SerializeUint32Range(m, &typeField, 0, uint32(c.deps.Factory.NumTypes()-1))
		slot.msg.Serialize(m)
		// The measurer starts at bit offset zero, so any byte alignment
		// inside the message can pad up to 7 more bits at the actual
		// write offset; budget each message with that slack included.
		if usedBits+m.BitsWritten()+7 > budgetBits {
			id++
			giveUp--
			continue
		}
		ids = append(ids, id)
		usedBits += m.BitsWritten() + 7
		id++
	}
	if len(ids) == 0 {
		return false
	}

	isBlock := false
	numMessages := uint32(len(ids))
	ok := c.deps.writeEntryIndex(w) &&
		bitstream.SerializeBool(w, &isBlock) &&
		bitstream.SerializeUint32Range(w, &numMessages, 1, uint32(c.cfg.MaxMessagesPerPacket))
	if !ok {
		return false
	}
	for i, id := range ids {
		slot, _ := c.sendQueue.Find(id)
		if i == 0 {
			idField := uint32(id)
			if !bitstream.SerializeUint32Range(w, &idField, 0, 65535) {
				return false
			}
		} else {
			idCopy := id
			if !bitstream.SerializeSequenceRelative(w, ids[i-1], &idCopy) {
				return false
			}
		}
		typeField := uint32(slot.msg.Type())
		if !bitstream.SerializeUint32Range(w, &typeField, 0, uint32(c.deps.Factory.NumTypes()-1)) {
			return false
		}
		if !slot.msg.Serialize(w) {
			return false
		}
		slot.sendTime = c.time
	}
	if !bitstream.SerializeCheck(w) {
		return false
	}

	c.sentPackets.Insert(packetSequence)
	entry, _ := c.sentPackets.Find(packetSequence)
	*entry = sentPacketEntry{isBlock: false, messageIDs: ids}
	netmetrics.BytesSent(c.deps.Metrics, c.deps.Index, (usedBits+7)/8)
	return true
}

// ReadPacketData reads this channel's packet entry (the connection has
// already consumed the channel-index field to dispatch here), queuing
// complete messages (and reassembling block fragments) into the receive
// queue. packetSequence is unused here — reliable message/block ids are
// assigned by the sender, not by the datagram that happened to carry
// them (that stamping is specific to the unreliable channel).
func (c *ReliableOrderedChannel) ReadPacketData(r *bitstream.Reader, packetSequence uint16) bool {
	// A read that fails on the bits themselves (short read, range
	// violation, check mismatch) latches FAILED_TO_SERIALIZE; the
	// protocol-level failures inside readBlockFragment/readMessages latch
	// their own, more specific level first, which this cannot override.
	var isBlock bool
	if !bitstream.SerializeBool(r, &isBlock) {
		c.fail(ErrorFailedToSerialize)
		return false
	}
	var ok bool
	if isBlock {
		ok = c.readBlockFragment(r)
	} else {
		ok = c.readMessages(r)
	}
	if !ok {
		c.fail(ErrorFailedToSerialize)
		return false
	}
	if !bitstream.SerializeCheck(r) {
		c.fail(ErrorFailedToSerialize)
		return false
	}
	return true
}

func (c *ReliableOrderedChannel) readBlockFragment(r *bitstream.Reader) bool {
	var blockID, numFrag, fragID, msgType, fragLen uint32
	if !bitstream.SerializeUint32Range(r, &blockID, 0, 65535) {
		return false
	}
	if !bitstream.SerializeUint32Range(r, &numFrag, 1, uint32(c.cfg.MaxFragmentsPerBlock())) {
		return false
	}
	if !bitstream.SerializeUint32Range(r, &fragID, 0, numFrag-1) {
		return false
	}
	if !bitstream.SerializeUint32Range(r, &msgType, 0, uint32(c.deps.Factory.NumTypes()-1)) {
		return false
	}
	if !bitstream.SerializeUint32Range(r, &fragLen, 0, uint32(c.cfg.BlockFragmentSize)) {
		return false
	}
	buf := make([]byte, fragLen)
	if !bitstream.SerializeBytes(r, buf, int(fragLen)) {
		return false
	}

	blockMessageID := uint16(blockID)
	if blockMessageID != c.recvMessageID {
		// Only the fragment at the head of the receive queue is ever
		// reassembled; older retransmits and fragments of a block that
		// hasn't become current yet are both ignored (not a desync —
		// the sender will keep retransmitting until it is current).
		return true
	}
	if _, ok := c.recvQueue.Find(blockMessageID); ok {
		// The block is already fully reassembled and sitting in the
		// receive queue waiting to be drained; this fragment is a
		// straggling retransmit.
		return true
	}
	if !c.recvBlockActive || c.recvBlockMessageID != blockMessageID {
		c.recvBlockActive = true
		c.recvBlockMessageID = blockMessageID
		c.recvBlockMessageType = int(msgType)
		c.recvBlockNumFragments = int(numFrag)
		c.recvBlockReceived = sequencebuffer.NewBitArray(int(numFrag))
		c.recvBlockData = make([]byte, int(numFrag)*c.cfg.BlockFragmentSize)
	} else if int(numFrag) != c.recvBlockNumFragments {
		// Same block id, disagreeing fragment count: the sender and
		// receiver have diverging state, not just a dropped packet.
		c.fail(ErrorDesync)
		return false
	}
	start := int(fragID) * c.cfg.BlockFragmentSize
	copy(c.recvBlockData[start:start+int(fragLen)], buf)
	if !c.recvBlockReceived.Get(int(fragID)) {
		c.recvBlockReceived.Set(int(fragID))
		if int(fragID) == c.recvBlockNumFragments-1 {
			c.recvBlockLastFragLen = int(fragLen)
		}
	}
	if c.recvBlockReceived.AllSet(c.recvBlockNumFragments) {
		total := (c.recvBlockNumFragments-1)*c.cfg.BlockFragmentSize + c.recvBlockLastFragLen
		if total > c.cfg.MaxBlockSize {
			c.fail(ErrorDesync)
			return false
		}
		data := c.recvBlockData[:total]
		msg, err := c.deps.Factory.Create(c.recvBlockMessageType)
		if err != nil {
			c.fail(ErrorOutOfMemory)
			return false
		}
		msg.AttachBlock(data)
		msg.Block().MessageID = blockMessageID
		msg.Block().MessageType = c.recvBlockMessageType
		msg.SetID(blockMessageID)
		if slot, ok := c.recvQueue.Insert(blockMessageID); ok {
			slot.msg = msg
			netmetrics.MessageReceived(c.deps.Metrics, c.deps.Index)
		} else {
			c.deps.Factory.Release(msg)
		}
		c.recvBlockActive = false
	}
	return true
}

func (c *ReliableOrderedChannel) readMessages(r *bitstream.Reader) bool {
	var numMessages uint32
	if !bitstream.SerializeUint32Range(r, &numMessages, 1, uint32(c.cfg.MaxMessagesPerPacket)) {
		return false
	}
	var prevID uint16
	for i := uint32(0); i < numMessages; i++ {
		// Mirror of the write side: the first id is a 16-bit absolute,
		// each later one a sequence-relative delta from its predecessor
		// in this same list.
		var id uint16
		if i == 0 {
			var idField uint32
			if !bitstream.SerializeUint32Range(r, &idField, 0, 65535) {
				return false
			}
			id = uint16(idField)
		} else if !bitstream.SerializeSequenceRelative(r, prevID, &id) {
			return false
		}
		prevID = id
		var typeField uint32
		if !bitstream.SerializeUint32Range(r, &typeField, 0, uint32(c.deps.Factory.NumTypes()-1)) {
			return false
		}
		msg, err := c.deps.Factory.Create(int(typeField))
		if err != nil {
			c.fail(ErrorOutOfMemory)
			return false
		}
		if !msg.Serialize(r) {
			c.deps.Factory.Release(msg)
			return false
		}
		msg.SetID(id)
		windowEnd := c.recvMessageID + uint16(c.cfg.MessageReceiveQueueSize) - 1
		if bitstream.SequenceLessThan(id, c.recvMessageID) {
			// Stale retransmit of a message already delivered; harmless.
			c.deps.Factory.Release(msg)
			continue
		}
		if bitstream.SequenceGreaterThan(id, windowEnd) {
			// The sender believes this id is in flight but it falls
			// outside the window the receiver can still buffer — the
			// two sides have diverged on how far the stream has
			// advanced. sequencebuffer.Buffer.Insert would silently
			// accept and slide its own window forward here, which is
			// wrong: the receive window's floor is receive_message_id,
			// advanced only by ReceiveMessage, not by what arrives.
			c.deps.Factory.Release(msg)
			c.fail(ErrorDesync)
			return false
		}
		if _, ok := c.recvQueue.Find(id); ok {
			// Duplicate of a message already buffered at this id; skip it
			// rather than re-inserting (Insert zeroes the slot, which
			// would drop the buffered copy's reference on the floor).
			c.deps.Factory.Release(msg)
			continue
		}
		if slot, ok := c.recvQueue.Insert(id); ok {
			slot.msg = msg
			netmetrics.MessageReceived(c.deps.Metrics, c.deps.Index)
		} else {
			c.deps.Factory.Release(msg)
		}
	}
	return true
}

// ProcessAck applies an acknowledgement for packetSequence, releasing any
// message (or block fragment) it carried once the whole block or message
// is confirmed delivered, and advancing oldestUnackedMessageID over any
// now-fully-acked contiguous prefix.
func (c *ReliableOrderedChannel) ProcessAck(packetSequence uint16) {
	entry, ok := c.sentPackets.Find(packetSequence)
	if !ok {
		return
	}
	if entry.isBlock {
		if c.sendBlockActive && c.sendBlockID == entry.blockMessageID {
			c.sendBlockFragmentAcked.Set(int(entry.fragmentID))
			if c.sendBlockFragmentAcked.AllSet(c.sendBlockNumFragments) {
				if slot, ok := c.sendQueue.Find(entry.blockMessageID); ok && slot.msg != nil {
					c.deps.Factory.Release(slot.msg)
					slot.msg = nil
				}
				c.sendQueue.Remove(entry.blockMessageID)
				c.sendBlockActive = false
				if entry.blockMessageID == c.oldestUnackedMessageID {
					c.oldestUnackedMessageID++
				}
			}
		}
	} else {
		for _, id := range entry.messageIDs {
			if slot, ok := c.sendQueue.Find(id); ok && slot.msg != nil {
				c.deps.Factory.Release(slot.msg)
				slot.msg = nil
				c.sendQueue.Remove(id)
			}
		}
	}
	c.sentPackets.Remove(packetSequence)
	c.advanceOldestUnacked()
}

// advanceOldestUnacked scans forward past slots already emptied by a prior
// ack — an out-of-order ack removes entries ahead of oldestUnackedMessageID
// immediately, before this ever reaches them — stopping at the first still
// occupied slot or at sendMessageID, whichever comes first.
func (c *ReliableOrderedChannel) advanceOldestUnacked() {
	for c.oldestUnackedMessageID != c.sendMessageID {
		if _, ok := c.sendQueue.Find(c.oldestUnackedMessageID); ok {
			return
		}
		c.oldestUnackedMessageID++
	}
}
