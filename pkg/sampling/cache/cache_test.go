package cache

import (
	"errors"
	"os"
	"testing"

	"github.com/gosuffix/go-csa-sampling/internal/common"
)

func newTestCache(t *testing.T, compress bool) *Cache {
	t.Helper()
	c, err := New(Config{Dir: t.TempDir(), Compression: compress})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func TestWriteReadUint64s(t *testing.T) {
	for _, compress := range []bool{false, true} {
		c := newTestCache(t, compress)
		vals := []uint64{12, 6, 0, 7, 1, 8, 2, 9, 3, 10, 4, 11, 5}
		if err := c.WriteUint64s("vals", 5, vals); err != nil {
			t.Fatalf("compress=%v write: %v", compress, err)
		}
		if !c.Exists("vals") {
			t.Fatalf("compress=%v artifact missing", compress)
		}

		r, err := c.OpenReader("vals")
		if err != nil {
			t.Fatalf("compress=%v open: %v", compress, err)
		}
		if r.Size() != uint64(len(vals)) || r.Width() != 5 {
			t.Fatalf("compress=%v size=%d width=%d", compress, r.Size(), r.Width())
		}
		for i, want := range vals {
			got, ok := r.Next()
			if !ok || got != want {
				t.Fatalf("compress=%v next %d = %d,%v want %d", compress, i, got, ok, want)
			}
		}
		if _, ok := r.Next(); ok {
			t.Fatalf("compress=%v next past end succeeded", compress)
		}

		// Random access after the sequential scan.
		for _, i := range []uint64{12, 0, 7, 3} {
			if got := r.Get(i); got != vals[i] {
				t.Fatalf("compress=%v get(%d) = %d, want %d", compress, i, got, vals[i])
			}
		}
		if err := r.Close(); err != nil {
			t.Fatalf("compress=%v close: %v", compress, err)
		}
	}
}

func TestOpenReaderMissing(t *testing.T) {
	c := newTestCache(t, false)
	if _, err := c.OpenReader("nope"); !errors.Is(err, common.ErrArtifactNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	c := newTestCache(t, false)
	if err := c.WriteUint64s("vals", 8, []uint64{1, 2, 3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := os.OpenFile(c.Path("vals"), os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Flip one payload byte past the header.
	if _, err := f.WriteAt([]byte{0xFF}, 65); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	f.Close()

	if _, err := c.OpenReader("vals"); !errors.Is(err, common.ErrChecksumMismatch) {
		t.Fatalf("got %v", err)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	c := newTestCache(t, true)
	data := []byte("sampled character set payload")
	if err := c.WriteBlob("blob", data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := c.ReadBlob("blob")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("blob mismatch: %q", got)
	}
}

func TestConstructArtifacts(t *testing.T) {
	c := newTestCache(t, false)
	text := []byte("ABCDEFABCDEF$")
	if err := ConstructSA(c, text); err != nil {
		t.Fatalf("construct sa: %v", err)
	}

	sa, err := c.OpenReader(common.KeySA)
	if err != nil {
		t.Fatalf("open sa: %v", err)
	}
	defer sa.Close()
	wantSA := []uint64{12, 6, 0, 7, 1, 8, 2, 9, 3, 10, 4, 11, 5}
	for i, want := range wantSA {
		if got := sa.Get(uint64(i)); got != want {
			t.Fatalf("sa[%d] = %d, want %d", i, got, want)
		}
	}

	if c.Exists(common.KeyISA) {
		t.Fatalf("isa built eagerly")
	}
	if err := ConstructISA(c); err != nil {
		t.Fatalf("construct isa: %v", err)
	}
	isa, err := c.OpenReader(common.KeyISA)
	if err != nil {
		t.Fatalf("open isa: %v", err)
	}
	defer isa.Close()
	for i, p := range wantSA {
		if got := isa.Get(p); got != uint64(i) {
			t.Fatalf("isa[%d] = %d, want %d", p, got, i)
		}
	}
	// Second call is a no-op.
	if err := ConstructISA(c); err != nil {
		t.Fatalf("construct isa again: %v", err)
	}

	if err := ConstructBWT(c); err != nil {
		t.Fatalf("construct bwt: %v", err)
	}
	bwt, err := c.OpenReader(KeyBWT(8))
	if err != nil {
		t.Fatalf("open bwt: %v", err)
	}
	defer bwt.Close()
	wantBWT := "FF$AABBCCDDEE"
	for i := uint64(0); i < uint64(len(wantBWT)); i++ {
		if got := bwt.Get(i); got != uint64(wantBWT[i]) {
			t.Fatalf("bwt[%d] = %c, want %c", i, byte(got), wantBWT[i])
		}
	}
}

func TestSampleChars(t *testing.T) {
	c := newTestCache(t, false)

	bm, err := LoadSampleChars(c)
	if err != nil {
		t.Fatalf("load absent: %v", err)
	}
	if !bm.IsEmpty() {
		t.Fatalf("absent artifact must yield the empty set")
	}

	if err := StoreSampleChars(c, []byte("BE")); err != nil {
		t.Fatalf("store: %v", err)
	}
	bm, err = LoadSampleChars(c)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bm.Contains('B') || !bm.Contains('E') || bm.Contains('A') {
		t.Fatalf("unexpected set: %v", bm)
	}
}

func TestTempKeyAndRemove(t *testing.T) {
	c := newTestCache(t, false)
	k1, k2 := c.TempKey("stage"), c.TempKey("stage")
	if k1 == k2 {
		t.Fatalf("temp keys collide: %q", k1)
	}

	if err := c.WriteUint64s(k1, 4, []uint64{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !c.Exists(k1) {
		t.Fatalf("temp artifact missing")
	}
	if err := c.Remove(k1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if c.Exists(k1) {
		t.Fatalf("temp artifact survived removal")
	}
	// Removing an absent key is not an error.
	if err := c.Remove(k1); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func TestManifestPersistence(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.WriteUint64s("vals", 8, []uint64{9, 8, 7}); err != nil {
		t.Fatalf("write: %v", err)
	}

	c2, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r, err := c2.OpenReader("vals")
	if err != nil {
		t.Fatalf("open after reopen: %v", err)
	}
	defer r.Close()
	if got := r.Get(0); got != 9 {
		t.Fatalf("get(0) = %d, want 9", got)
	}
}
