// Package netmetrics exposes optional Prometheus instrumentation for a
// Connection. Every method is nil-safe on a *Metrics created via the zero
// value's pointer (New always returns a usable value; a nil *Metrics
// passed in by a caller who doesn't want metrics is simply never touched,
// since Connection only calls through the injected instance it was given
// and treats a nil instance as "don't record").
package netmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters/histograms a host process can register
// against its own Prometheus registry. Labeled by channel_index so a
// single registration covers every channel of every connection the
// process owns.
type Metrics struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	BytesSent        *prometheus.CounterVec
	PacketBudgetBits *prometheus.HistogramVec
	ErrorTransitions *prometheus.CounterVec
}

// New constructs a Metrics bundle with the given namespace (e.g. the host
// process's service name) and registers it against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across parallel test binaries.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "netchannel", Name: "messages_sent_total",
			Help: "Messages accepted into a channel's send queue.",
		}, []string{"channel_index"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "netchannel", Name: "messages_received_total",
			Help: "Messages delivered to a channel's receive queue.",
		}, []string{"channel_index"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "netchannel", Name: "messages_dropped_total",
			Help: "Messages dropped (send queue full, over budget, blocks disabled).",
		}, []string{"channel_index", "reason"}),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "netchannel", Name: "bytes_sent_total",
			Help: "Bytes written into outbound packets.",
		}, []string{"channel_index"}),
		PacketBudgetBits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "netchannel", Name: "packet_budget_bits_used",
			Help:    "Bits consumed out of the budget offered to a channel in one generate_packet call.",
			Buckets: prometheus.ExponentialBuckets(8, 2, 12),
		}, []string{"channel_index"}),
		ErrorTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "netchannel", Name: "error_transitions_total",
			Help: "Channel error-level transitions (latched; each fires at most once).",
		}, []string{"channel_index", "level"}),
	}
	if reg != nil {
		reg.MustRegister(m.MessagesSent, m.MessagesReceived, m.MessagesDropped,
			m.BytesSent, m.PacketBudgetBits, m.ErrorTransitions)
	}
	return m
}

func (m *Metrics) messageSent(channel int) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) messageReceived(channel int) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) messageDropped(channel int, reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(label(channel), reason).Inc()
}

func (m *Metrics) bytesSent(channel, n int) {
	if m == nil {
		return
	}
	m.BytesSent.WithLabelValues(label(channel)).Add(float64(n))
}

func (m *Metrics) packetBudgetBits(channel, bits int) {
	if m == nil {
		return
	}
	m.PacketBudgetBits.WithLabelValues(label(channel)).Observe(float64(bits))
}

func (m *Metrics) errorTransition(channel int, level string) {
	if m == nil {
		return
	}
	m.ErrorTransitions.WithLabelValues(label(channel), level).Inc()
}

// Recorder is the subset of Metrics a channel depends on, expressed as
// pointer-receiver methods that check for nil, so passing a nil *Metrics
// through an interface still dispatches safely.
type Recorder interface {
	messageSent(channel int)
	messageReceived(channel int)
	messageDropped(channel int, reason string)
	bytesSent(channel, n int)
	packetBudgetBits(channel, bits int)
	errorTransition(channel int, level string)
}

var _ Recorder = (*Metrics)(nil)

// MessageSent, MessageReceived, ... are the package-level entry points
// channels call through; they accept a possibly-nil *Metrics.
func MessageSent(m *Metrics, channel int)                   { m.messageSent(channel) }
func MessageReceived(m *Metrics, channel int)               { m.messageReceived(channel) }
func MessageDropped(m *Metrics, channel int, reason string) { m.messageDropped(channel, reason) }
func BytesSent(m *Metrics, channel, n int)                  { m.bytesSent(channel, n) }
func PacketBudgetBits(m *Metrics, channel, bits int)        { m.packetBudgetBits(channel, bits) }
func ErrorTransition(m *Metrics, channel int, level string) { m.errorTransition(channel, level) }

func label(channel int) string {
	return strconv.Itoa(channel)
}
