package encoding

import (
	"bytes"
	"testing"
)

func TestRankSelectMatchesBitVector(t *testing.T) {
	for _, p := range []float64{0.01, 0.5, 0.99} {
		bv, _ := randomBitVector(t, 5000, p, 3)
		rs := NewRankSelect(bv)

		for i := uint64(0); i <= 5000; i += 7 {
			if rs.Rank1(i) != bv.Rank1(i) {
				t.Fatalf("p=%v rank1(%d) = %d, want %d", p, i, rs.Rank1(i), bv.Rank1(i))
			}
			if rs.Rank0(i) != bv.Rank0(i) {
				t.Fatalf("p=%v rank0(%d) = %d, want %d", p, i, rs.Rank0(i), bv.Rank0(i))
			}
		}
		ones := bv.PopCount()
		for k := uint64(1); k <= ones; k += 3 {
			if rs.Select1(k) != bv.Select1(k) {
				t.Fatalf("p=%v select1(%d) = %d, want %d", p, k, rs.Select1(k), bv.Select1(k))
			}
		}
		zeros := 5000 - ones
		for k := uint64(1); k <= zeros; k += 3 {
			if rs.Select0(k) != bv.Select0(k) {
				t.Fatalf("p=%v select0(%d) = %d, want %d", p, k, rs.Select0(k), bv.Select0(k))
			}
		}
	}
}

func TestRankSelectWordAlignedLength(t *testing.T) {
	bv := NewBitVector(128)
	for i := uint64(0); i < 128; i += 2 {
		bv.Set(i)
	}
	rs := NewRankSelect(bv)

	if got := rs.Rank1(128); got != 64 {
		t.Fatalf("rank1(128) = %d, want 64", got)
	}
	if got := rs.Rank0(128); got != 64 {
		t.Fatalf("rank0(128) = %d, want 64", got)
	}

	for _, p := range []float64{0.1, 0.9} {
		rv, _ := randomBitVector(t, 512, p, 9)
		rrs := NewRankSelect(rv)
		for i := uint64(0); i <= 512; i++ {
			if rrs.Rank1(i) != rv.Rank1(i) {
				t.Fatalf("p=%v rank1(%d) = %d, want %d", p, i, rrs.Rank1(i), rv.Rank1(i))
			}
		}
		if rrs.Rank1(512) != rv.PopCount() {
			t.Fatalf("p=%v rank1 at full length = %d, want %d", p, rrs.Rank1(512), rv.PopCount())
		}
	}
}

func TestRankSelectRewireAfterLoad(t *testing.T) {
	bv, _ := randomBitVector(t, 600, 0.4, 4)
	rs := NewRankSelect(bv)

	var buf bytes.Buffer
	if _, err := rs.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded := &RankSelect{}
	if _, err := loaded.ReadFrom(&buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if loaded.Vector() != nil {
		t.Fatalf("loaded view must not carry a vector")
	}
	loaded.SetVector(bv)

	for i := uint64(0); i <= 600; i++ {
		if loaded.Rank1(i) != rs.Rank1(i) {
			t.Fatalf("rank1(%d) diverges after reload", i)
		}
	}
	for k := uint64(1); k <= bv.PopCount(); k++ {
		if loaded.Select1(k) != rs.Select1(k) {
			t.Fatalf("select1(%d) diverges after reload", k)
		}
	}
	if !loaded.Equal(rs) {
		t.Fatalf("directories differ after reload")
	}
}
