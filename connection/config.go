// Package connection assembles and parses whole packets out of the
// channels it owns, and is the thing a transport (a UDP socket, a test
// harness, anything that moves opaque byte slices between peers) actually
// talks to.
package connection

import (
	"fmt"

	"github.com/relaygrid/netchannel/channel"
	"github.com/relaygrid/netchannel/message"
	"github.com/relaygrid/netchannel/netlog"
	"github.com/relaygrid/netchannel/netmetrics"
)

// packetTrailerBits reserves room for the trailing connection-level
// check sentinel plus its byte alignment when budgeting channels.
const packetTrailerBits = 40

// Allocator carves long-lived buffers out of the host's global pool —
// the pool backing structures whose lifetime exceeds any single peer,
// as opposed to the per-peer pool the message factory models. Allocate
// returns nil when the pool refuses the request; the connection reports
// that through its error level rather than panicking.
type Allocator interface {
	Allocate(n int) []byte
}

// Config describes one Connection: its channel stack and the collaborators
// every channel needs. Two peers must construct a Connection with the
// same channel count and compatible per-channel Type for Connection's
// serialize routines to agree.
type Config struct {
	Channels      []channel.Config
	MaxPacketSize int // bytes available to generate_packet per call

	Factory *message.Factory
	Log     *netlog.Logger
	Metrics *netmetrics.Metrics

	// Allocator, when non-nil, supplies the connection's long-lived
	// packet buffer from the host's global pool. Nil means plain heap
	// allocation.
	Allocator Allocator
}

// Validate checks every channel config and the connection-wide settings.
func (c Config) Validate() error {
	if len(c.Channels) == 0 || len(c.Channels) > 64 {
		return fmt.Errorf("connection: num_channels must be in [1,64], got %d", len(c.Channels))
	}
	if c.MaxPacketSize <= 0 {
		return fmt.Errorf("connection: max_packet_size must be positive")
	}
	if c.Factory == nil {
		return fmt.Errorf("connection: factory is required")
	}
	for i, cc := range c.Channels {
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("connection: channel %d: %w", i, err)
		}
	}
	return nil
}
