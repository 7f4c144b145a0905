package encoding

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"testing"
)

func TestWidthFor(t *testing.T) {
	cases := []struct {
		max  uint64
		want uint8
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{255, 8},
		{256, 9},
		{1 << 40, 41},
		{^uint64(0), 64},
	}
	for _, c := range cases {
		if got := WidthFor(c.max); got != c.want {
			t.Fatalf("WidthFor(%d) = %d, want %d", c.max, got, c.want)
		}
	}
}

func TestIntVectorSetGet(t *testing.T) {
	// 37-bit entries straddle word boundaries.
	for _, width := range []uint8{1, 7, 8, 37, 63, 64} {
		rng := rand.New(rand.NewSource(int64(width)))
		iv := NewIntVector(200, width)
		ref := make([]uint64, 200)
		var mask uint64
		if width == 64 {
			mask = ^uint64(0)
		} else {
			mask = (1 << width) - 1
		}
		for i := uint64(0); i < 200; i++ {
			v := rng.Uint64() & mask
			iv.Set(i, v)
			ref[i] = v
		}
		for i := uint64(0); i < 200; i++ {
			if got := iv.Get(i); got != ref[i] {
				t.Fatalf("width %d: get(%d) = %d, want %d", width, i, got, ref[i])
			}
		}
		if iv.Len() != 200 || iv.Width() != width {
			t.Fatalf("width %d: len=%d width=%d", width, iv.Len(), iv.Width())
		}
	}
}

func TestIntVectorCompacted(t *testing.T) {
	iv := NewIntVector(50, 40)
	for i := uint64(0); i < 50; i++ {
		iv.Set(i, i%13)
	}
	c := iv.Compacted()
	if c.Width() != WidthFor(12) {
		t.Fatalf("compacted width = %d, want %d", c.Width(), WidthFor(12))
	}
	for i := uint64(0); i < 50; i++ {
		if c.Get(i) != iv.Get(i) {
			t.Fatalf("compacted value %d differs", i)
		}
	}
}

func TestIntVectorRoundTrip(t *testing.T) {
	iv := NewIntVector(301, 11)
	rng := rand.New(rand.NewSource(5))
	for i := uint64(0); i < 301; i++ {
		iv.Set(i, rng.Uint64()&((1<<11)-1))
	}

	var buf bytes.Buffer
	n, err := iv.WriteTo(&buf)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got := &IntVector{}
	m, err := got.ReadFrom(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if m != n {
		t.Fatalf("read %d bytes, wrote %d", m, n)
	}
	if !got.Equal(iv) {
		t.Fatalf("round trip mismatch")
	}

	data, err := json.Marshal(iv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got2 := &IntVector{}
	if err := json.Unmarshal(data, got2); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got2.Equal(iv) {
		t.Fatalf("json round trip mismatch")
	}
}
