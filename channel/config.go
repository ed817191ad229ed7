// Package channel implements the per-channel send/receive state machines:
// ReliableOrdered (block-fragmenting, strictly ordered delivery) and
// UnreliableUnordered (best-effort, FIFO-bounded). Both satisfy the
// Channel interface a Connection drives uniformly.
package channel

import (
	"fmt"

	"github.com/relaygrid/netchannel/bitstream"
	"github.com/relaygrid/netchannel/message"
	"github.com/relaygrid/netchannel/netlog"
	"github.com/relaygrid/netchannel/netmetrics"
)

// Type distinguishes the two concrete channel kinds a ChannelConfig can
// describe.
type Type int

const (
	TypeReliableOrdered Type = iota
	TypeUnreliableUnordered
)

// NoPacketBudget is ChannelConfig.PacketBudget's sentinel for "no
// per-channel cap; use whatever budget the connection has left".
const NoPacketBudget = -1

// Config is an immutable-after-construction description of one channel.
// Values are validated by Validate, which connection.Config calls for
// every channel at construction time, rather than failing confusingly
// mid-session on a bad range.
type Config struct {
	Type          Type
	DisableBlocks bool

	SentPacketBufferSize    int
	MessageSendQueueSize    int
	MessageReceiveQueueSize int

	MaxMessagesPerPacket int
	PacketBudget         int // bytes; NoPacketBudget = all remaining

	MaxBlockSize      int
	BlockFragmentSize int

	MessageResendTime       float64 // seconds; reliable only
	BlockFragmentResendTime float64 // seconds; reliable only
}

// DefaultReliableOrderedConfig returns sane defaults for a reliable
// channel, matching the scale this system targets (small frequent
// packets, bounded block sizes).
func DefaultReliableOrderedConfig() Config {
	return Config{
		Type:                    TypeReliableOrdered,
		SentPacketBufferSize:    256,
		MessageSendQueueSize:    1024,
		MessageReceiveQueueSize: 1024,
		MaxMessagesPerPacket:    32,
		PacketBudget:            NoPacketBudget,
		MaxBlockSize:            256 * 1024,
		BlockFragmentSize:       1024,
		MessageResendTime:       0.1,
		BlockFragmentResendTime: 0.25,
	}
}

// DefaultUnreliableUnorderedConfig returns sane defaults for an
// unreliable channel.
func DefaultUnreliableUnorderedConfig() Config {
	return Config{
		Type:                    TypeUnreliableUnordered,
		SentPacketBufferSize:    256,
		MessageSendQueueSize:    256,
		MessageReceiveQueueSize: 256,
		MaxMessagesPerPacket:    32,
		PacketBudget:            NoPacketBudget,
		MaxBlockSize:            16 * 1024,
		BlockFragmentSize:       1024,
	}
}

// MaxFragmentsPerBlock returns ceil(MaxBlockSize/BlockFragmentSize). Floor
// division here would quietly underreport the legal range for
// num_fragments whenever MaxBlockSize isn't an exact multiple of
// BlockFragmentSize, so a trailing partial fragment is accounted for
// deliberately rather than silently dropped. A peer that computes this
// value with floor division can derive a different num_fragments field
// width for such a configuration, and then cannot parse this channel's
// fragment packets.
func (c Config) MaxFragmentsPerBlock() int {
	if c.BlockFragmentSize <= 0 {
		return 0
	}
	return (c.MaxBlockSize + c.BlockFragmentSize - 1) / c.BlockFragmentSize
}

// Validate checks that cfg describes a legal, self-consistent channel.
func (c Config) Validate() error {
	if c.SentPacketBufferSize <= 0 || 65536%c.SentPacketBufferSize != 0 {
		return fmt.Errorf("channel: sent_packet_buffer_size %d must divide 65536", c.SentPacketBufferSize)
	}
	if c.MessageSendQueueSize <= 0 || 65536%c.MessageSendQueueSize != 0 {
		return fmt.Errorf("channel: message_send_queue_size %d must divide 65536", c.MessageSendQueueSize)
	}
	if c.MessageReceiveQueueSize <= 0 || 65536%c.MessageReceiveQueueSize != 0 {
		return fmt.Errorf("channel: message_receive_queue_size %d must divide 65536", c.MessageReceiveQueueSize)
	}
	if c.MaxMessagesPerPacket <= 0 {
		return fmt.Errorf("channel: max_messages_per_packet must be positive")
	}
	if c.PacketBudget != NoPacketBudget && c.PacketBudget <= 0 {
		return fmt.Errorf("channel: packet_budget must be positive or NoPacketBudget")
	}
	if c.Type == TypeReliableOrdered && !c.DisableBlocks {
		if c.MaxBlockSize <= 0 {
			return fmt.Errorf("channel: max_block_size must be positive")
		}
		if c.BlockFragmentSize <= 0 {
			return fmt.Errorf("channel: block_fragment_size must be positive")
		}
		if c.MaxFragmentsPerBlock() > 0xFFFF {
			return fmt.Errorf("channel: max_fragments_per_block overflows 16 bits")
		}
	}
	return nil
}

// Dependencies bundles the collaborators every channel needs, factored
// out of Config because they're run-time objects, not configuration.
type Dependencies struct {
	Factory *message.Factory
	Log     *netlog.Logger
	Metrics *netmetrics.Metrics

	// Index is this channel's position within its connection. NumChannels
	// is the connection's channel count; a channel leads its packet entry
	// with Index (in BitsRequired(0, NumChannels-1) bits) iff NumChannels
	// is greater than one, matching the read side's dispatch.
	Index       int
	NumChannels int
}

// entryIndexBits returns the width of the channel-index field that leads
// a packet entry, zero when the connection has a single channel and the
// index is implicit.
func (d Dependencies) entryIndexBits() int {
	if d.NumChannels > 1 {
		return bitstream.BitsRequired(0, int32(d.NumChannels-1))
	}
	return 0
}

// writeEntryIndex writes the channel-index field, if any.
func (d Dependencies) writeEntryIndex(w *bitstream.Writer) bool {
	if d.NumChannels <= 1 {
		return true
	}
	idx := uint32(d.Index)
	return bitstream.SerializeUint32Range(w, &idx, 0, uint32(d.NumChannels-1))
}
