package bitstream

import "testing"

func BenchmarkWriterSerializeBits(b *testing.B) {
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		w := NewWriter(256)
		for j := 0; j < 64; j++ {
			v := uint32(j)
			w.SerializeBits(&v, 11)
		}
		w.Flush()
	}
}

func BenchmarkReaderSerializeBits(b *testing.B) {
	w := NewWriter(256)
	for j := 0; j < 64; j++ {
		v := uint32(j)
		w.SerializeBits(&v, 11)
	}
	w.Flush()
	data := w.GetData()
	totalBits := w.BitsWritten()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		r := NewReader(data, totalBits)
		for j := 0; j < 64; j++ {
			var v uint32
			r.SerializeBits(&v, 11)
		}
	}
}

func BenchmarkSerializeIntegerRoundTrip(b *testing.B) {
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		w := NewWriter(64)
		v := int32(12345)
		SerializeInteger(w, &v, 0, 1<<20)
		SerializeCheck(w)
		w.Flush()

		r := NewReader(w.GetData(), w.BitsWritten())
		var got int32
		SerializeInteger(r, &got, 0, 1<<20)
		SerializeCheck(r)
	}
}

func BenchmarkMeasurer(b *testing.B) {
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m := NewMeasurer()
		for j := 0; j < 64; j++ {
			v := uint32(j)
			m.SerializeBits(&v, 11)
		}
	}
}
