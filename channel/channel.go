package channel

import (
	"github.com/relaygrid/netchannel/bitstream"
	"github.com/relaygrid/netchannel/message"
)

// Channel is the interface a Connection drives uniformly over whatever
// mix of ReliableOrderedChannel and UnreliableUnorderedChannel it owns.
type Channel interface {
	CanSendMessage() bool
	SendMessage(msg *message.Message) bool
	ReceiveMessage() *message.Message

	WritePacketData(w *bitstream.Writer, budgetBits int, packetSequence uint16) bool
	ReadPacketData(r *bitstream.Reader, packetSequence uint16) bool
	ProcessAck(packetSequence uint16)
	AdvanceTime(dt float64)

	Error() ErrorLevel
	Reset()
}

var (
	_ Channel = (*ReliableOrderedChannel)(nil)
	_ Channel = (*UnreliableUnorderedChannel)(nil)
)
