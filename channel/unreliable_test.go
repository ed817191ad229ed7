package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaygrid/netchannel/bitstream"
	"github.com/relaygrid/netchannel/message"
)

func newTestUnreliableChannel(t *testing.T) (*UnreliableUnorderedChannel, *message.Factory) {
	t.Helper()
	factory := message.NewFactory([]message.Constructor{
		func() message.Body { return &chatBody{} },
	}, -1)
	cfg := DefaultUnreliableUnorderedConfig()
	ch, err := NewUnreliableUnorderedChannel(cfg, Dependencies{Factory: factory, Index: 1})
	require.NoError(t, err)
	return ch, factory
}

func TestUnreliableUnorderedChannelRoundTrip(t *testing.T) {
	sender, senderFactory := newTestUnreliableChannel(t)
	receiver, _ := newTestUnreliableChannel(t)

	for i := 0; i < 3; i++ {
		m, err := senderFactory.Create(0)
		require.NoError(t, err)
		require.True(t, sender.SendMessage(m))
	}

	w := bitstream.NewWriter(2048)
	require.True(t, sender.WritePacketData(w, 16384, 0))
	require.True(t, w.Flush())

	r := bitstream.NewReaderBytes(w.GetData())
	require.True(t, receiver.ReadPacketData(r, 0))

	count := 0
	for receiver.ReceiveMessage() != nil {
		count++
	}
	require.Equal(t, 3, count)
}

func TestUnreliableUnorderedChannelInlineBlock(t *testing.T) {
	sender, senderFactory := newTestUnreliableChannel(t)
	receiver, _ := newTestUnreliableChannel(t)

	m, err := senderFactory.Create(0)
	require.NoError(t, err)
	m.AttachBlock([]byte("small inline block"))
	require.True(t, sender.SendMessage(m))

	w := bitstream.NewWriter(2048)
	require.True(t, sender.WritePacketData(w, 16384, 0))
	require.True(t, w.Flush())

	r := bitstream.NewReaderBytes(w.GetData())
	require.True(t, receiver.ReadPacketData(r, 7))

	got := receiver.ReceiveMessage()
	require.NotNil(t, got)
	require.True(t, got.IsBlock())
	require.Equal(t, "small inline block", string(got.Block().Data))
	require.Equal(t, uint16(7), got.ID())
}

func TestUnreliableUnorderedChannelStampsDatagramSequenceAsID(t *testing.T) {
	sender, senderFactory := newTestUnreliableChannel(t)
	receiver, _ := newTestUnreliableChannel(t)

	m, err := senderFactory.Create(0)
	require.NoError(t, err)
	require.True(t, sender.SendMessage(m))

	w := bitstream.NewWriter(2048)
	require.True(t, sender.WritePacketData(w, 16384, 0))
	require.True(t, w.Flush())

	r := bitstream.NewReaderBytes(w.GetData())
	require.True(t, receiver.ReadPacketData(r, 42))

	got := receiver.ReceiveMessage()
	require.NotNil(t, got)
	require.Equal(t, uint16(42), got.ID())
}

func TestUnreliableUnorderedChannelDropsOversizedBlock(t *testing.T) {
	sender, senderFactory := newTestUnreliableChannel(t)

	cfg := DefaultUnreliableUnorderedConfig()
	m, err := senderFactory.Create(0)
	require.NoError(t, err)
	m.AttachBlock(make([]byte, cfg.MaxBlockSize+1))
	require.True(t, sender.SendMessage(m))

	w := bitstream.NewWriter(2048)
	wrote := sender.WritePacketData(w, 1<<20, 0)
	require.False(t, wrote)
	require.Len(t, sender.sendQueue, 0)
}

func TestUnreliableUnorderedChannelSendQueueFullLatches(t *testing.T) {
	factory := message.NewFactory([]message.Constructor{
		func() message.Body { return &chatBody{} },
	}, -1)
	cfg := DefaultUnreliableUnorderedConfig()
	cfg.MessageSendQueueSize = 4
	ch, err := NewUnreliableUnorderedChannel(cfg, Dependencies{Factory: factory, Index: 0})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		m, err := factory.Create(0)
		require.NoError(t, err)
		require.True(t, ch.SendMessage(m))
	}
	require.False(t, ch.CanSendMessage())
	m, err := factory.Create(0)
	require.NoError(t, err)
	require.False(t, ch.SendMessage(m))
	require.Equal(t, ErrorSendQueueFull, ch.Error())
}

func TestUnreliableUnorderedChannelDiscardsOverBudgetMessages(t *testing.T) {
	sender, senderFactory := newTestUnreliableChannel(t)

	for i := 0; i < 3; i++ {
		m, err := senderFactory.Create(0)
		require.NoError(t, err)
		m.Body().(*chatBody).text = "some payload that takes a few dozen bits on the wire"
		require.True(t, sender.SendMessage(m))
	}

	// A budget too small for any message: everything dequeued this call
	// is discarded, not requeued.
	w := bitstream.NewWriter(2048)
	wrote := sender.WritePacketData(w, 128, 0)
	require.False(t, wrote)
	require.Empty(t, sender.sendQueue)
	require.Equal(t, ErrorNone, sender.Error())
}

func TestUnreliableUnorderedChannelBlocksDisabled(t *testing.T) {
	factory := message.NewFactory([]message.Constructor{
		func() message.Body { return &chatBody{} },
	}, -1)
	cfg := DefaultUnreliableUnorderedConfig()
	cfg.DisableBlocks = true
	ch, err := NewUnreliableUnorderedChannel(cfg, Dependencies{Factory: factory, Index: 0})
	require.NoError(t, err)

	m, err := factory.Create(0)
	require.NoError(t, err)
	m.AttachBlock([]byte("nope"))
	require.False(t, ch.SendMessage(m))
	require.Equal(t, ErrorBlocksDisabled, ch.Error())
}
