package encoding

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/gosuffix/go-csa-sampling/internal/common"
)

func buildSparse(t *testing.T, n uint64, positions []uint64) *SparseBitVector {
	t.Helper()
	b, err := NewSparseBuilder(n, uint64(len(positions)))
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	for _, p := range positions {
		if err := b.Set(p); err != nil {
			t.Fatalf("set %d: %v", p, err)
		}
	}
	sv, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return sv
}

func TestSparseSmall(t *testing.T) {
	sv := buildSparse(t, 10, []uint64{1, 4, 9})

	if sv.Len() != 10 || sv.Ones() != 3 {
		t.Fatalf("len=%d ones=%d", sv.Len(), sv.Ones())
	}
	want := map[uint64]bool{1: true, 4: true, 9: true}
	for i := uint64(0); i < 10; i++ {
		if sv.Get(i) != want[i] {
			t.Fatalf("get(%d) = %v", i, sv.Get(i))
		}
	}
	ranks := []uint64{0, 0, 1, 1, 1, 2, 2, 2, 2, 2, 3}
	for i, want := range ranks {
		if got := sv.Rank(uint64(i)); got != want {
			t.Fatalf("rank(%d) = %d, want %d", i, got, want)
		}
	}
	for k, want := range map[uint64]uint64{1: 1, 2: 4, 3: 9} {
		if got := sv.Select(k); got != want {
			t.Fatalf("select(%d) = %d, want %d", k, got, want)
		}
	}
}

func TestSparseBuilderContract(t *testing.T) {
	if _, err := NewSparseBuilder(5, 7); !errors.Is(err, common.ErrBuilderCapacity) {
		t.Fatalf("m > n: got %v", err)
	}

	b, err := NewSparseBuilder(100, 3)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	if err := b.Set(10); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := b.Set(10); !errors.Is(err, common.ErrNonMonotonic) {
		t.Fatalf("repeated position: got %v", err)
	}
	if err := b.Set(5); !errors.Is(err, common.ErrNonMonotonic) {
		t.Fatalf("decreasing position: got %v", err)
	}
	if err := b.Set(100); !errors.Is(err, common.ErrOutOfBounds) {
		t.Fatalf("out of range: got %v", err)
	}
	if _, err := b.Finalize(); !errors.Is(err, common.ErrBuilderNotFull) {
		t.Fatalf("underfilled finalize: got %v", err)
	}

	if err := b.Set(20); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := b.Set(30); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := b.Set(40); !errors.Is(err, common.ErrBuilderFull) {
		t.Fatalf("overfill: got %v", err)
	}
	if _, err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// The builder is spent after finalization.
	if b.Capacity() != 0 || b.Items() != 0 {
		t.Fatalf("builder not reset: items=%d capacity=%d", b.Items(), b.Capacity())
	}
	if err := b.Set(0); !errors.Is(err, common.ErrBuilderFull) {
		t.Fatalf("set on spent builder: got %v", err)
	}
}

func TestSparseEdgeSizes(t *testing.T) {
	// No set bits at all.
	empty := buildSparse(t, 64, nil)
	for i := uint64(0); i < 64; i++ {
		if empty.Get(i) {
			t.Fatalf("bit %d set in empty vector", i)
		}
	}
	if empty.Rank(64) != 0 {
		t.Fatalf("rank over empty vector = %d", empty.Rank(64))
	}

	// Every bit set: the dense extreme still round-trips queries.
	n := uint64(130)
	all := make([]uint64, n)
	for i := range all {
		all[i] = uint64(i)
	}
	dense := buildSparse(t, n, all)
	for i := uint64(0); i < n; i++ {
		if !dense.Get(i) {
			t.Fatalf("bit %d missing in dense vector", i)
		}
		if dense.Rank(i) != i {
			t.Fatalf("rank(%d) = %d", i, dense.Rank(i))
		}
		if dense.Select(i+1) != i {
			t.Fatalf("select(%d) = %d", i+1, dense.Select(i+1))
		}
	}
}

func TestSparseAgainstReference(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	n := uint64(10000)
	bv := NewBitVector(n)
	var positions []uint64
	for i := uint64(0); i < n; i++ {
		if rng.Float64() < 0.02 {
			bv.Set(i)
			positions = append(positions, i)
		}
	}
	sv := buildSparse(t, n, positions)

	for i := uint64(0); i <= n; i += 11 {
		if i < n && sv.Get(i) != bv.Get(i) {
			t.Fatalf("get(%d) mismatch", i)
		}
		if sv.Rank(i) != bv.Rank1(i) {
			t.Fatalf("rank(%d) = %d, want %d", i, sv.Rank(i), bv.Rank1(i))
		}
	}
	for k := uint64(1); k <= uint64(len(positions)); k++ {
		if sv.Select(k) != positions[k-1] {
			t.Fatalf("select(%d) = %d, want %d", k, sv.Select(k), positions[k-1])
		}
	}

	// Same encoding from the plain-vector constructor.
	sv2, err := NewSparseFromBitVector(bv)
	if err != nil {
		t.Fatalf("from bit vector: %v", err)
	}
	if !sv2.Equal(sv) {
		t.Fatalf("constructors disagree")
	}
}

func TestSparseRoundTrip(t *testing.T) {
	sv := buildSparse(t, 5000, []uint64{0, 1, 63, 64, 100, 999, 2048, 4999})

	var buf bytes.Buffer
	n, err := sv.WriteTo(&buf)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got := &SparseBitVector{}
	m, err := got.ReadFrom(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if m != n {
		t.Fatalf("read %d bytes, wrote %d", m, n)
	}
	if !got.Equal(sv) {
		t.Fatalf("round trip mismatch")
	}
	// Queries exercise the re-wired rank/select view.
	for k := uint64(1); k <= sv.Ones(); k++ {
		if got.Select(k) != sv.Select(k) {
			t.Fatalf("select(%d) diverges after reload", k)
		}
	}
	for i := uint64(0); i <= 5000; i += 13 {
		if got.Rank(i) != sv.Rank(i) {
			t.Fatalf("rank(%d) diverges after reload", i)
		}
	}

	data, err := json.Marshal(sv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got2 := &SparseBitVector{}
	if err := json.Unmarshal(data, got2); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got2.Equal(sv) {
		t.Fatalf("json round trip mismatch")
	}
	if got2.Select(3) != sv.Select(3) {
		t.Fatalf("select diverges after json reload")
	}
}
