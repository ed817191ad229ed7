package connection

import (
	"errors"

	"github.com/google/uuid"

	"github.com/relaygrid/netchannel/bitstream"
	"github.com/relaygrid/netchannel/channel"
	"github.com/relaygrid/netchannel/message"
	"github.com/relaygrid/netchannel/netmetrics"
)

// ErrorLevel is the connection-wide rollup of its channels' and
// factory's failure states.
type ErrorLevel int

const (
	ErrorNone ErrorLevel = iota
	ErrorChannel
	ErrorAllocator
	ErrorMessageFactory
	ErrorReadPacketFailed
)

func (e ErrorLevel) String() string {
	switch e {
	case ErrorNone:
		return "none"
	case ErrorChannel:
		return "channel"
	case ErrorAllocator:
		return "allocator"
	case ErrorMessageFactory:
		return "message_factory"
	case ErrorReadPacketFailed:
		return "read_packet_failed"
	default:
		return "unknown"
	}
}

// ErrReadPacketFailed is returned by ProcessPacket when the packet could
// not be parsed: the entry count or a channel index didn't read, a
// channel rejected its entry (that channel has then also latched its own
// error level), or the connection-wide sentinel check failed.
var ErrReadPacketFailed = errors.New("connection: failed to read packet")

// Connection owns a fixed set of channels and drives packet assembly,
// parsing and ack dispatch across all of them. Datagram sequencing and
// delivery tracking belong to the transport layer below: the caller
// supplies each packet's datagram sequence to GeneratePacket and
// ProcessPacket, and reports delivered sequences through ProcessAcks.
// One Connection models one peer; nothing here is safe for concurrent
// use from multiple goroutines — callers drive one Connection from a
// single goroutine per peer, same as they would a per-player loop.
type Connection struct {
	cfg      Config
	id       uuid.UUID
	channels []channel.Channel

	time     float64
	writeBuf []byte

	factoryErr       bool
	allocErr         bool
	readPacketFailed bool
}

// New builds a Connection with one channel instance per entry in
// cfg.Channels, in order — channel index N here must match channel index
// N on the peer's Connection for the wire format to agree. Each Connection
// is stamped with a random correlation id (never serialized to the wire,
// never compared between peers) used only to tell this connection's log
// lines and diagnostics apart from its siblings in a process hosting many
// peers at once.
func New(cfg Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	cfg.Log = cfg.Log.With("connection_id", id.String())
	c := &Connection{cfg: cfg, id: id}

	// The packet write buffer lives as long as the connection, so it is
	// carved from the host's long-lived pool when one is injected. A
	// refused allocation is reported through the error level, never a
	// panic or an abort.
	bufSize := (cfg.MaxPacketSize + 3) / 4 * 4
	if cfg.Allocator != nil {
		c.writeBuf = cfg.Allocator.Allocate(bufSize)
		if len(c.writeBuf) < bufSize {
			c.writeBuf = nil
			c.allocErr = true
			cfg.Log.Error("allocator refused packet buffer", "bytes", bufSize)
		}
	} else {
		c.writeBuf = make([]byte, bufSize)
	}

	for i, cc := range cfg.Channels {
		deps := channel.Dependencies{
			Factory:     cfg.Factory,
			Log:         cfg.Log,
			Metrics:     cfg.Metrics,
			Index:       i,
			NumChannels: len(cfg.Channels),
		}
		var ch channel.Channel
		var err error
		switch cc.Type {
		case channel.TypeReliableOrdered:
			ch, err = channel.NewReliableOrderedChannel(cc, deps)
		case channel.TypeUnreliableUnordered:
			ch, err = channel.NewUnreliableUnorderedChannel(cc, deps)
		default:
			return nil, errors.New("connection: unknown channel type")
		}
		if err != nil {
			return nil, err
		}
		c.channels = append(c.channels, ch)
	}
	return c, nil
}

// ID returns this connection's correlation id, used for log/metric
// correlation across a process hosting many peers — never sent on the
// wire and never compared against a peer's id.
func (c *Connection) ID() uuid.UUID { return c.id }

// NumChannels returns the number of channels this connection owns.
func (c *Connection) NumChannels() int { return len(c.channels) }

// Channel returns the channel at index i, for sending/receiving messages
// on that specific channel directly.
func (c *Connection) Channel(i int) channel.Channel { return c.channels[i] }

// SendMessage is a convenience wrapper around Channel(i).SendMessage.
func (c *Connection) SendMessage(channelIndex int, msg *message.Message) bool {
	return c.channels[channelIndex].SendMessage(msg)
}

// ReceiveMessage is a convenience wrapper around Channel(i).ReceiveMessage.
func (c *Connection) ReceiveMessage(channelIndex int) *message.Message {
	return c.channels[channelIndex].ReceiveMessage()
}

// AdvanceTime moves the connection's clock (and every channel's) forward
// by dt seconds.
func (c *Connection) AdvanceTime(dt float64) {
	c.time += dt
	for _, ch := range c.channels {
		ch.AdvanceTime(dt)
	}
}

// Error reports the worst failure seen so far: a factory allocation
// failure outranks any individual channel's error level, since it can
// affect every channel at once; an unparseable packet is reported only
// when no channel has latched something more specific.
func (c *Connection) Error() ErrorLevel {
	if c.factoryErr || (c.cfg.Factory != nil && c.cfg.Factory.Failed()) {
		return ErrorMessageFactory
	}
	if c.allocErr {
		return ErrorAllocator
	}
	for _, ch := range c.channels {
		if ch.Error() != channel.ErrorNone {
			return ErrorChannel
		}
	}
	if c.readPacketFailed {
		return ErrorReadPacketFailed
	}
	return ErrorNone
}

// CanSendMessage is a convenience wrapper around Channel(i).CanSendMessage.
func (c *Connection) CanSendMessage(channelIndex int) bool {
	return c.channels[channelIndex].CanSendMessage()
}

// GeneratePacket assembles one outgoing packet from whatever the channels
// (in index order) have to send, splitting cfg.MaxPacketSize bytes of
// budget across them — a channel that doesn't use its full share lets
// the following channels draw on the remainder. datagramSeq is the
// sequence number the transport below has assigned to this datagram; it
// is handed through to the channels (the unreliable channel stamps
// received message ids with it) but never written into the packet — the
// transport carries it. Returns (nil, false) when there is nothing to
// send; the returned slice aliases an internal buffer and is valid until
// the next GeneratePacket call.
func (c *Connection) GeneratePacket(datagramSeq uint16) ([]byte, bool) {
	if c.Error() != ErrorNone {
		return nil, false
	}
	w := bitstream.NewWriterOver(c.writeBuf)

	// The entry count leads the packet in a fixed-width field sized to
	// the channel count. It isn't known until the channels have written,
	// so reserve zero bits now and patch the count into the low bits of
	// the first byte after the flush — the field never spans a byte,
	// since num_channels is capped at 64 (7 bits).
	countBits := bitstream.BitsRequired(0, int32(len(c.channels)))
	var countZero uint32
	if !w.SerializeBits(&countZero, countBits) {
		return nil, false
	}

	// Reserve the trailing connection-level check sentinel (plus its byte
	// alignment) out of the channels' budget, so a channel filling its
	// whole share can't push the sentinel past the buffer.
	totalBudgetBits := c.cfg.MaxPacketSize*8 - packetTrailerBits
	numEntries := 0
	for i, ch := range c.channels {
		remaining := totalBudgetBits - w.BitsWritten()
		if remaining < 0 {
			remaining = 0
		}
		channelBudget := remaining
		if budget := c.cfg.Channels[i].PacketBudget; budget != channel.NoPacketBudget {
			if b := budget * 8; b < channelBudget {
				channelBudget = b
			}
		}
		before := w.BitsWritten()
		wrote := ch.WritePacketData(w, channelBudget, datagramSeq)
		netmetrics.PacketBudgetBits(c.cfg.Metrics, i, w.BitsWritten()-before)
		if wrote {
			numEntries++
		}
		if err := ch.Error(); err != channel.ErrorNone {
			c.cfg.Log.Warn("channel error", "channel_index", i, "error", err.String())
		}
	}

	if numEntries == 0 {
		return nil, false
	}
	if !bitstream.SerializeCheck(w) {
		return nil, false
	}
	if !w.Flush() {
		return nil, false
	}
	data := w.GetData()
	data[0] |= byte(numEntries)
	return data, true
}

// ProcessPacket parses an incoming packet and hands each channel entry
// to its target channel. datagramSeq is the sequence the transport
// below observed on the datagram that carried these bytes; it is not
// read from the packet itself.
func (c *Connection) ProcessPacket(datagramSeq uint16, data []byte) error {
	if c.Error() != ErrorNone {
		// Latched errors are one-way; inbound payloads are no longer
		// processed, the host is expected to tear the session down.
		return nil
	}
	r := bitstream.NewReaderBytes(data)

	var numEntries uint32
	if !bitstream.SerializeUint32Range(r, &numEntries, 0, uint32(len(c.channels))) {
		return c.failRead()
	}
	for e := uint32(0); e < numEntries; e++ {
		var idx uint32
		if len(c.channels) > 1 {
			if !bitstream.SerializeUint32Range(r, &idx, 0, uint32(len(c.channels)-1)) {
				return c.failRead()
			}
		}
		if !c.channels[idx].ReadPacketData(r, datagramSeq) {
			// The channel has already latched its own error level, and
			// the bit cursor is misaligned for every entry after this
			// one — dispatching the rest would feed the remaining
			// channels garbage, so the whole packet is rejected here.
			return c.failRead()
		}
	}

	if !bitstream.SerializeCheck(r) {
		c.cfg.Log.Warn("packet failed connection-level check", "datagram_seq", datagramSeq)
		return c.failRead()
	}
	return nil
}

// failRead latches the connection-level read failure and returns the
// sentinel the caller hands back to the transport.
func (c *Connection) failRead() error {
	c.readPacketFailed = true
	return ErrReadPacketFailed
}

// ProcessAcks applies a batch of datagram-level acknowledgements, as
// reported by the reliable endpoint layer below, to every channel. This
// is the only way delivery confirmation enters the connection — packets
// themselves carry no ack state.
func (c *Connection) ProcessAcks(seqs []uint16) {
	for _, seq := range seqs {
		for _, ch := range c.channels {
			ch.ProcessAck(seq)
		}
	}
}

// Stats summarizes this connection's observable state, primarily for
// tests and diagnostics rather than anything load-bearing at runtime.
type Stats struct {
	ID           uuid.UUID
	Error        ErrorLevel
	ChannelError []channel.ErrorLevel
}

// Stats reports the current connection-level and per-channel error
// levels.
func (c *Connection) Stats() Stats {
	s := Stats{ID: c.id, Error: c.Error()}
	for _, ch := range c.channels {
		s.ChannelError = append(s.ChannelError, ch.Error())
	}
	return s
}

// Reset returns the connection and every channel it owns to a fresh
// state, as if newly constructed, without reallocating the channel slice.
func (c *Connection) Reset() {
	c.time = 0
	c.factoryErr = false
	c.readPacketFailed = false
	for _, ch := range c.channels {
		ch.Reset()
	}
}
