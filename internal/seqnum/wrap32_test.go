package seqnum

import "testing"

func TestWrapUnwrapRoundTrip(t *testing.T) {
	cases := []struct {
		n uint64
		z Wrap32
	}{
		{0, Wrap32FromRaw(0)},
		{17, Wrap32FromRaw(0xFFFFFFF0)},
		{1 << 33, Wrap32FromRaw(0xFFFFFFF0)},
		{4294967295, Wrap32FromRaw(12345)},
		{4294967296, Wrap32FromRaw(12345)},
	}
	for _, c := range cases {
		w := Wrap(c.n, c.z)
		got := w.Unwrap(c.z, c.n)
		if got != c.n {
			t.Errorf("Unwrap(Wrap(%d, %v), %v, %d) = %d, want %d", c.n, c.z, c.z, c.n, got, c.n)
		}
	}
}

func TestUnwrapNearestToCheckpoint(t *testing.T) {
	cases := []struct {
		n          uint64
		checkpoint uint64
	}{
		{0, 0},
		{0, 1 << 31},
		{0, 1<<32 - 1},
		{1 << 32, 0},
		{5000, 1 << 40},
	}
	for _, c := range cases {
		z := Wrap32FromRaw(0x12345678)
		w := Wrap(c.n, z)
		got := w.Unwrap(z, c.checkpoint)
		var dist uint64
		if got > c.checkpoint {
			dist = got - c.checkpoint
		} else {
			dist = c.checkpoint - got
		}
		if dist > 1<<31 {
			t.Errorf("Unwrap distance from checkpoint exceeds 2^31: n=%d checkpoint=%d got=%d dist=%d", c.n, c.checkpoint, got, dist)
		}
	}
}

func TestWrapBoundary(t *testing.T) {
	isn := Wrap32FromRaw(0xFFFFFFF0)
	w := Wrap(17, isn)
	if w.Raw() != 0x00000001 {
		t.Fatalf("wrap(17, isn) = %08x, want 00000001", w.Raw())
	}
	if got := w.Unwrap(isn, 0); got != 17 {
		t.Fatalf("unwrap(checkpoint=0) = %d, want 17", got)
	}
	if got := w.Unwrap(isn, 1<<33); got != 8589934609 {
		t.Fatalf("unwrap(checkpoint=2^33) = %d, want 8589934609", got)
	}
}

func TestUnwrapNeverUnderflows(t *testing.T) {
	z := Wrap32FromRaw(0)
	w := Wrap32FromRaw(0xFFFFFFFF) // represents absolute index 2^32-1 near checkpoint 0
	got := w.Unwrap(z, 0)
	if int64(got) < 0 {
		t.Fatalf("unwrap underflowed: %d", got)
	}
}

func TestUnwrapTieBreaksToSmaller(t *testing.T) {
	z := Wrap32FromRaw(0)
	checkpoint := uint64(1) << 31
	w := Wrap32FromRaw(0) // candidates: 0 and 2^32, both distance 2^31 from checkpoint
	got := w.Unwrap(z, checkpoint)
	if got != 0 {
		t.Fatalf("tie-break: got %d, want 0 (the smaller candidate)", got)
	}
}
