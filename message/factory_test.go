package message

import (
	"testing"

	"github.com/relaygrid/netchannel/bitstream"
)

type testBody struct {
	value int32
}

func (b *testBody) Serialize(s bitstream.Stream) bool {
	return bitstream.SerializeInteger(s, &b.value, 0, 1000)
}

func newTestFactory(budget int) *Factory {
	return NewFactory([]Constructor{
		func() Body { return &testBody{} },
	}, budget)
}

func TestFactoryCreateAndRelease(t *testing.T) {
	f := newTestFactory(-1)
	m, err := f.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Outstanding() != 1 {
		t.Errorf("expected 1 outstanding, got %d", f.Outstanding())
	}
	f.Release(m)
	if f.Outstanding() != 0 {
		t.Errorf("expected 0 outstanding after release, got %d", f.Outstanding())
	}
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	f := newTestFactory(-1)
	if _, err := f.Create(5); err != ErrOutOfMemory {
		t.Errorf("expected ErrOutOfMemory for unknown type, got %v", err)
	}
	if !f.Failed() {
		t.Error("expected factory to latch Failed() on an unknown type")
	}
}

func TestFactoryEnforcesBudget(t *testing.T) {
	f := newTestFactory(2)
	m1, err := f.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m2, err := f.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.Create(0); err != ErrOutOfMemory {
		t.Errorf("expected budget exhaustion, got %v", err)
	}
	f.Release(m1)
	f.Release(m2)
}

func TestMessageRefCounting(t *testing.T) {
	f := newTestFactory(-1)
	m, _ := f.Create(0)
	m.Acquire()
	if m.RefCount() != 2 {
		t.Errorf("expected refcount 2, got %d", m.RefCount())
	}
	f.Release(m) // drops to 1, should not free
	if f.Outstanding() != 1 {
		t.Errorf("expected still outstanding with one ref left, got %d", f.Outstanding())
	}
	f.Release(m) // drops to 0, freed
	if f.Outstanding() != 0 {
		t.Errorf("expected 0 outstanding after final release, got %d", f.Outstanding())
	}
}

func TestMessageSerializeRoundTrip(t *testing.T) {
	f := newTestFactory(-1)
	m, _ := f.Create(0)
	body := m.body.(*testBody)
	body.value = 777

	w := bitstream.NewWriter(16)
	if !m.Serialize(w) {
		t.Fatal("write failed")
	}
	w.Flush()

	m2, _ := f.Create(0)
	r := bitstream.NewReader(w.GetData(), w.BitsWritten())
	if !m2.Serialize(r) {
		t.Fatal("read failed")
	}
	if m2.body.(*testBody).value != 777 {
		t.Errorf("got %d, want 777", m2.body.(*testBody).value)
	}
}
