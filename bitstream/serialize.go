package bitstream

import "math"

// checkValue is the fixed sentinel SerializeCheck writes/expects, used to
// catch desynced serialize routines between peers during development.
const checkValue uint32 = 0x12345678

// SerializeInteger serializes *value, constrained to [min,max], using
// exactly BitsRequired(min,max) bits. On read, a decoded value outside
// [min,max] is a failure — this is the main input-validation chokepoint
// for hostile or desynced peers.
func SerializeInteger(s Stream, value *int32, min, max int32) bool {
	bits := BitsRequired(min, max)
	if bits == 0 {
		// Only one legal value; nothing to transmit.
		if s.Mode() == ModeRead {
			*value = min
		}
		return true
	}
	if s.Mode() == ModeWrite || s.Mode() == ModeMeasure {
		if *value < min || *value > max {
			return false
		}
		u := uint32(*value - min)
		return s.SerializeBits(&u, bits)
	}
	var u uint32
	if !s.SerializeBits(&u, bits) {
		return false
	}
	decoded := int32(u) + min
	if decoded < min || decoded > max {
		return false
	}
	*value = decoded
	return true
}

// SerializeUint32Range is SerializeInteger's unsigned counterpart, for
// fields such as message ids and fragment ids that are naturally unsigned.
func SerializeUint32Range(s Stream, value *uint32, min, max uint32) bool {
	bits := BitsRequired(int32(min), int32(max))
	if bits == 0 {
		if s.Mode() == ModeRead {
			*value = min
		}
		return true
	}
	if s.Mode() == ModeWrite || s.Mode() == ModeMeasure {
		if *value < min || *value > max {
			return false
		}
		u := *value - min
		return s.SerializeBits(&u, bits)
	}
	var u uint32
	if !s.SerializeBits(&u, bits) {
		return false
	}
	decoded := u + min
	if decoded < min || decoded > max {
		return false
	}
	*value = decoded
	return true
}

// SerializeBool serializes a single bit.
func SerializeBool(s Stream, value *bool) bool {
	var u uint32
	if s.Mode() != ModeRead {
		if *value {
			u = 1
		}
	}
	if !s.SerializeBits(&u, 1) {
		return false
	}
	if s.Mode() == ModeRead {
		*value = u != 0
	}
	return true
}

// SerializeFloat bit-casts *value to/from its uint32 representation.
func SerializeFloat(s Stream, value *float32) bool {
	var u uint32
	if s.Mode() != ModeRead {
		u = math.Float32bits(*value)
	}
	if !s.SerializeBits(&u, 32) {
		return false
	}
	if s.Mode() == ModeRead {
		*value = math.Float32frombits(u)
	}
	return true
}

// SerializeDouble bit-casts *value to/from its two-word uint64 representation.
func SerializeDouble(s Stream, value *float64) bool {
	var hi, lo uint32
	if s.Mode() != ModeRead {
		bits := math.Float64bits(*value)
		lo = uint32(bits)
		hi = uint32(bits >> 32)
	}
	if !s.SerializeBits(&lo, 32) {
		return false
	}
	if !s.SerializeBits(&hi, 32) {
		return false
	}
	if s.Mode() == ModeRead {
		*value = math.Float64frombits(uint64(hi)<<32 | uint64(lo))
	}
	return true
}

// cursor exposes a stream's bit position so SerializeAlign can reason about
// byte alignment over the SerializeBits-only Stream interface. Since
// Writer/Reader/Measurer each track their own bit cursor, alignment is
// computed from that count via bitsSoFar.
type cursor interface {
	bitsSoFar() int
}

func (w *Writer) bitsSoFar() int   { return w.bitsWritten }
func (r *Reader) bitsSoFar() int   { return r.bitsRead }
func (m *Measurer) bitsSoFar() int { return m.bits }

// SerializeAlign pads with zero bits to the next byte boundary. On read, a
// nonzero pad bit is a failure — it means the two sides have desynced.
func SerializeAlign(s Stream) bool {
	c, ok := s.(cursor)
	if !ok {
		return false
	}
	bits := c.bitsSoFar()
	pad := (8 - bits%8) % 8
	for i := 0; i < pad; i++ {
		var zero uint32
		if s.Mode() == ModeRead {
			if !s.SerializeBits(&zero, 1) {
				return false
			}
			if zero != 0 {
				return false
			}
		} else {
			if !s.SerializeBits(&zero, 1) {
				return false
			}
		}
	}
	return true
}

// SerializeBytes byte-aligns the stream, then copies exactly n raw bytes.
func SerializeBytes(s Stream, buf []byte, n int) bool {
	if !SerializeAlign(s) {
		return false
	}
	if len(buf) < n {
		return false
	}
	for i := 0; i < n; i++ {
		var b uint32
		if s.Mode() != ModeRead {
			b = uint32(buf[i])
		}
		if !s.SerializeBits(&b, 8) {
			return false
		}
		if s.Mode() == ModeRead {
			buf[i] = byte(b)
		}
	}
	return true
}

// SerializeCheck aligns, then writes/expects the fixed sentinel word. A
// mismatch on read means the two sides' serialize routines have diverged —
// fatal: a channel reports it as FAILED_TO_SERIALIZE, the connection-level
// check as READ_PACKET_FAILED.
func SerializeCheck(s Stream) bool {
	if !SerializeAlign(s) {
		return false
	}
	v := checkValue
	if s.Mode() == ModeRead {
		var got uint32
		if !s.SerializeBits(&got, 32) {
			return false
		}
		return got == checkValue
	}
	return s.SerializeBits(&v, 32)
}

// SerializeString writes a byte-aligned, length-prefixed ASCII string whose
// length fits in [0,maxLen]. The length prefix itself is sized to maxLen
// and is followed by the payload via SerializeBytes.
func SerializeString(s Stream, value *string, maxLen int) bool {
	var length int32
	if s.Mode() != ModeRead {
		length = int32(len(*value))
		if int(length) > maxLen {
			return false
		}
	}
	if !SerializeInteger(s, &length, 0, int32(maxLen)) {
		return false
	}
	if !SerializeAlign(s) {
		return false
	}
	buf := make([]byte, length)
	if s.Mode() != ModeRead {
		copy(buf, *value)
	}
	if !SerializeBytes(s, buf, int(length)) {
		return false
	}
	if s.Mode() == ModeRead {
		*value = string(buf)
	}
	return true
}

// Variable-length integer relative to a baseline, cascading through
// 1/2/4/8/12/16-bit encodings before falling back to a full 32-bit value.
// Each stage is preceded by a single "fits in this width" marker bit,
// except the final 32-bit stage which has none (all six markers being
// zero implies it).
var varintStageBits = [...]int{1, 2, 4, 8, 12, 16}

// SerializeVarint32 encodes value (already relative to whatever baseline
// the caller chose) using the cascaded prefix scheme.
func SerializeVarint32(s Stream, value *uint32) bool {
	if s.Mode() != ModeRead {
		v := *value
		for _, stageBits := range varintStageBits {
			fits := v < (uint32(1) << uint(stageBits))
			marker := uint32(0)
			if fits {
				marker = 1
			}
			if !s.SerializeBits(&marker, 1) {
				return false
			}
			if fits {
				return s.SerializeBits(&v, stageBits)
			}
		}
		return s.SerializeBits(&v, 32)
	}
	for _, stageBits := range varintStageBits {
		var marker uint32
		if !s.SerializeBits(&marker, 1) {
			return false
		}
		if marker != 0 {
			var v uint32
			if !s.SerializeBits(&v, stageBits) {
				return false
			}
			*value = v
			return true
		}
	}
	var v uint32
	if !s.SerializeBits(&v, 32) {
		return false
	}
	*value = v
	return true
}

// SequenceGreaterThan implements the wrap-aware "newer than" relation used
// throughout the connection layer: sequences within half the 16-bit space
// of each other compare normally; farther apart, the wrapped direction is
// taken to be "greater". At distance exactly 32768 the numerically larger
// sequence is the greater one (ties never occur with a correctly advancing
// sender).
func SequenceGreaterThan(s1, s2 uint16) bool {
	return (s1 > s2 && s1-s2 <= 32768) || (s1 < s2 && s2-s1 > 32768)
}

// SequenceLessThan is the mirror of SequenceGreaterThan.
func SequenceLessThan(s1, s2 uint16) bool {
	return SequenceGreaterThan(s2, s1)
}

// SerializeSequenceRelative encodes sequence as a variable-length delta
// from baseline, wrapping through the 16-bit space. Deltas are always
// encoded as the forward (newer) distance from baseline, which is small
// in the overwhelmingly common case of contiguous sends.
func SerializeSequenceRelative(s Stream, baseline uint16, sequence *uint16) bool {
	if s.Mode() != ModeRead {
		delta := uint32(*sequence - baseline)
		return SerializeVarint32(s, &delta)
	}
	var delta uint32
	if !SerializeVarint32(s, &delta) {
		return false
	}
	*sequence = baseline + uint16(delta)
	return true
}

// SerializeAckRelative encodes an ack id relative to the current sequence,
// favouring small backward deltas (<=64) with a short code: one marker bit
// for "in range", then either a 6-bit backward delta or (when out of
// range) a 16-bit absolute value. The single-bit "in-range" marker is
// written in both branches, including the far branch, where it is
// redundant since the 16-bit absolute value that follows fully
// determines the ack id on its own. That redundancy is preserved here
// deliberately: dropping it would change the bit layout and break wire
// compatibility with any peer built against the same framing.
func SerializeAckRelative(s Stream, sequence uint16, ack *uint16) bool {
	const maxBackwardDelta = 64
	if s.Mode() != ModeRead {
		delta := uint32(sequence - *ack)
		inRange := delta >= 1 && delta <= maxBackwardDelta
		flag := uint32(0)
		if inRange {
			flag = 1
		}
		if !s.SerializeBits(&flag, 1) {
			return false
		}
		if inRange {
			d := delta - 1
			return s.SerializeBits(&d, 6)
		}
		a := uint32(*ack)
		return s.SerializeBits(&a, 16)
	}
	var flag uint32
	if !s.SerializeBits(&flag, 1) {
		return false
	}
	if flag != 0 {
		var d uint32
		if !s.SerializeBits(&d, 6) {
			return false
		}
		*ack = sequence - uint16(d+1)
		return true
	}
	var a uint32
	if !s.SerializeBits(&a, 16) {
		return false
	}
	*ack = uint16(a)
	return true
}
