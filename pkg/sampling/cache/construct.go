package cache

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/internal/encoding"
)

// ConstructSA builds and caches the text and suffix array artifacts for
// text. Intended for tooling and tests; production indexes are expected to
// arrive with the suffix array already cached.
func ConstructSA(c *Cache, text []byte) error {
	n := len(text)
	sa := make([]uint64, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return string(text[idx[a]:]) < string(text[idx[b]:])
	})
	for i, p := range idx {
		sa[i] = uint64(p)
	}

	textVals := make([]uint64, n)
	for i, ch := range text {
		textVals[i] = uint64(ch)
	}
	if err := c.WriteUint64s(common.KeyText, 8, textVals); err != nil {
		return fmt.Errorf("cache text: %w", err)
	}
	if err := c.WriteUint64s(common.KeySA, encoding.WidthFor(uint64(n)), sa); err != nil {
		return fmt.Errorf("cache suffix array: %w", err)
	}
	c.logger.Info("suffix array constructed", "n", n)
	return nil
}

// ConstructISA builds and caches the inverse suffix array from the cached
// suffix array. It is a no-op when the ISA artifact already exists.
func ConstructISA(c *Cache) error {
	if c.Exists(common.KeyISA) {
		return nil
	}
	r, err := c.OpenReader(common.KeySA)
	if err != nil {
		return fmt.Errorf("construct isa: %w", err)
	}
	defer r.Close()

	n := r.Size()
	isa := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		sa, ok := r.Next()
		if !ok || sa >= n {
			return fmt.Errorf("construct isa at %d: %w", i, common.ErrCorrupt)
		}
		isa[sa] = i
	}
	if err := c.WriteUint64s(common.KeyISA, r.Width(), isa); err != nil {
		return fmt.Errorf("cache inverse suffix array: %w", err)
	}
	c.logger.Info("inverse suffix array constructed", "n", n)
	return nil
}

// ConstructBWT builds and caches the BWT symbol sequence from the cached
// text and suffix array. The artifact is keyed by its symbol width.
func ConstructBWT(c *Cache) error {
	key := KeyBWT(8)
	if c.Exists(key) {
		return nil
	}
	tr, err := c.OpenReader(common.KeyText)
	if err != nil {
		return fmt.Errorf("construct bwt: %w", err)
	}
	defer tr.Close()
	sr, err := c.OpenReader(common.KeySA)
	if err != nil {
		return fmt.Errorf("construct bwt: %w", err)
	}
	defer sr.Close()

	n := sr.Size()
	if tr.Size() != n {
		return fmt.Errorf("construct bwt: text/suffix array size mismatch: %w", common.ErrCorrupt)
	}
	bwt := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		sa := sr.Get(i)
		bwt[i] = tr.Get((sa + n - 1) % n)
	}
	if err := c.WriteUint64s(key, 8, bwt); err != nil {
		return fmt.Errorf("cache bwt: %w", err)
	}
	c.logger.Info("bwt constructed", "n", n)
	return nil
}

// StoreSampleChars persists the sampled-character set as a roaring bitmap.
func StoreSampleChars(c *Cache, chars []byte) error {
	bm := roaring.New()
	for _, ch := range chars {
		bm.Add(uint32(ch))
	}
	data, err := bm.ToBytes()
	if err != nil {
		return fmt.Errorf("encode sample chars: %w", err)
	}
	return c.WriteBlob(common.KeySampleChars, data)
}

// LoadSampleChars loads the sampled-character set. An absent artifact
// yields the empty set.
func LoadSampleChars(c *Cache) (*roaring.Bitmap, error) {
	if !c.Exists(common.KeySampleChars) {
		return roaring.New(), nil
	}
	data, err := c.ReadBlob(common.KeySampleChars)
	if err != nil {
		return nil, fmt.Errorf("load sample chars: %w", err)
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode sample chars: %w", err)
	}
	return bm, nil
}
