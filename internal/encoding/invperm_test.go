package encoding

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/gosuffix/go-csa-sampling/internal/common"
)

func permVector(t *testing.T, perm []uint64) *IntVector {
	t.Helper()
	iv := NewIntVector(uint64(len(perm)), WidthFor(uint64(len(perm))))
	for i, v := range perm {
		iv.Set(uint64(i), v)
	}
	return iv
}

func TestInvPermRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 2, 31, 32, 33, 500} {
		perm := rng.Perm(n)
		vals := make([]uint64, n)
		for i, v := range perm {
			vals[i] = uint64(v)
		}
		iv := permVector(t, vals)
		ip, err := NewInvPerm(iv)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if ip.Len() != uint64(n) {
			t.Fatalf("n=%d: len=%d", n, ip.Len())
		}
		for i := uint64(0); i < uint64(n); i++ {
			if ip.Get(i) != vals[i] {
				t.Fatalf("n=%d: get(%d) = %d, want %d", n, i, ip.Get(i), vals[i])
			}
			if got := ip.Inv(vals[i]); got != i {
				t.Fatalf("n=%d: inv(%d) = %d, want %d", n, vals[i], got, i)
			}
		}
	}
}

func TestInvPermSingleCycle(t *testing.T) {
	// One cycle covering the whole domain, longer than the stride.
	n := uint64(100)
	vals := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		vals[i] = (i + 1) % n
	}
	ip, err := NewInvPermStride(permVector(t, vals), 8)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for v := uint64(0); v < n; v++ {
		want := (v + n - 1) % n
		if got := ip.Inv(v); got != want {
			t.Fatalf("inv(%d) = %d, want %d", v, got, want)
		}
	}
}

func TestInvPermIdentity(t *testing.T) {
	n := uint64(64)
	vals := make([]uint64, n)
	for i := range vals {
		vals[i] = uint64(i)
	}
	ip, err := NewInvPerm(permVector(t, vals))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for v := uint64(0); v < n; v++ {
		if ip.Inv(v) != v {
			t.Fatalf("inv(%d) = %d", v, ip.Inv(v))
		}
	}
}

func TestInvPermRejectsNonPermutation(t *testing.T) {
	if _, err := NewInvPerm(permVector(t, []uint64{0, 2, 2})); !errors.Is(err, common.ErrNotPermutation) {
		t.Fatalf("duplicate values: got %v", err)
	}
	if _, err := NewInvPerm(permVector(t, []uint64{0, 3, 1})); !errors.Is(err, common.ErrNotPermutation) {
		t.Fatalf("value out of range: got %v", err)
	}
}

func TestInvPermRewireAfterLoad(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	perm := rng.Perm(300)
	vals := make([]uint64, len(perm))
	for i, v := range perm {
		vals[i] = uint64(v)
	}
	iv := permVector(t, vals)
	ip, err := NewInvPerm(iv)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var buf bytes.Buffer
	if _, err := ip.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded := &InvPerm{}
	if _, err := loaded.ReadFrom(&buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	loaded.SetPerm(iv)

	for v := uint64(0); v < 300; v++ {
		if loaded.Inv(v) != ip.Inv(v) {
			t.Fatalf("inv(%d) diverges after reload", v)
		}
	}
	if !loaded.Equal(ip) {
		t.Fatalf("auxiliary structures differ after reload")
	}
}
