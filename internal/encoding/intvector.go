package encoding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/bits"

	"github.com/gosuffix/go-csa-sampling/internal/common"
)

// IntVector is a fixed-width bit-packed integer array. Widths up to 64 bits
// are supported; values are truncated to the configured width on Set.
type IntVector struct {
	width uint8
	n     uint64
	words []uint64
}

// WidthFor returns the number of bits needed to represent maxVal.
func WidthFor(maxVal uint64) uint8 {
	w := bits.Len64(maxVal)
	if w == 0 {
		w = 1
	}
	return uint8(w)
}

// NewIntVector creates a zeroed vector of n entries of the given bit width.
func NewIntVector(n uint64, width uint8) *IntVector {
	if width == 0 {
		width = 1
	}
	if width > 64 {
		width = 64
	}
	numWords := (n*uint64(width) + 63) / 64
	return &IntVector{
		width: width,
		n:     n,
		words: make([]uint64, numWords),
	}
}

// NewIntVectorFromWords wraps an existing word array. The caller guarantees
// len(words) matches n entries of the given width.
func NewIntVectorFromWords(n uint64, width uint8, words []uint64) *IntVector {
	return &IntVector{width: width, n: n, words: words}
}

// Set stores val at index i, truncated to the vector width.
func (iv *IntVector) Set(i uint64, val uint64) {
	if i >= iv.n {
		return
	}
	w := uint64(iv.width)
	if w < 64 {
		val &= (uint64(1) << w) - 1
	}

	bitPos := i * w
	wordIdx := bitPos / 64
	bitOff := bitPos % 64

	mask := ^uint64(0)
	if w < 64 {
		mask = (uint64(1) << w) - 1
	}
	iv.words[wordIdx] &= ^(mask << bitOff)
	iv.words[wordIdx] |= val << bitOff

	// Straddle into the next word
	if bitOff+w > 64 {
		spill := bitOff + w - 64
		iv.words[wordIdx+1] &= ^((uint64(1) << spill) - 1)
		iv.words[wordIdx+1] |= val >> (w - spill)
	}
}

// Get returns the value at index i.
func (iv *IntVector) Get(i uint64) uint64 {
	if i >= iv.n {
		return 0
	}
	w := uint64(iv.width)
	bitPos := i * w
	wordIdx := bitPos / 64
	bitOff := bitPos % 64

	val := iv.words[wordIdx] >> bitOff
	if bitOff+w > 64 {
		spill := bitOff + w - 64
		val |= (iv.words[wordIdx+1] & ((uint64(1) << spill) - 1)) << (w - spill)
	}
	if w < 64 {
		val &= (uint64(1) << w) - 1
	}
	return val
}

// Len returns the number of entries.
func (iv *IntVector) Len() uint64 {
	return iv.n
}

// Width returns the bit width of each entry.
func (iv *IntVector) Width() uint8 {
	return iv.width
}

// Words exposes the packed word array for zero-copy persistence.
func (iv *IntVector) Words() []uint64 {
	return iv.words
}

// Max returns the largest stored value.
func (iv *IntVector) Max() uint64 {
	max := uint64(0)
	for i := uint64(0); i < iv.n; i++ {
		if v := iv.Get(i); v > max {
			max = v
		}
	}
	return max
}

// Compacted returns a copy re-packed to the minimum width that can hold the
// current maximum value.
func (iv *IntVector) Compacted() *IntVector {
	out := NewIntVector(iv.n, WidthFor(iv.Max()))
	for i := uint64(0); i < iv.n; i++ {
		out.Set(i, iv.Get(i))
	}
	return out
}

// Equal reports whether two vectors hold the same entries at the same width.
func (iv *IntVector) Equal(other *IntVector) bool {
	if iv.n != other.n || iv.width != other.width {
		return false
	}
	for i, w := range iv.words {
		if w != other.words[i] {
			return false
		}
	}
	return true
}

// WriteTo serializes the vector and reports the number of bytes written.
func (iv *IntVector) WriteTo(w io.Writer) (int64, error) {
	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[0:8], iv.n)
	hdr[8] = iv.width
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("write intvector header: %w", err)
	}
	written := int64(16)

	buf := make([]byte, 8)
	for _, word := range iv.words {
		binary.LittleEndian.PutUint64(buf, word)
		if _, err := w.Write(buf); err != nil {
			return written, fmt.Errorf("write intvector words: %w", err)
		}
		written += 8
	}
	return written, nil
}

// ReadFrom deserializes a vector previously written with WriteTo.
func (iv *IntVector) ReadFrom(r io.Reader) (int64, error) {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("read intvector header: %w", err)
	}
	read := int64(16)

	iv.n = binary.LittleEndian.Uint64(hdr[0:8])
	iv.width = hdr[8]
	if iv.width == 0 || iv.width > 64 {
		return read, fmt.Errorf("intvector width %d: %w", iv.width, common.ErrCorrupt)
	}
	iv.words = make([]uint64, (iv.n*uint64(iv.width)+63)/64)

	buf := make([]byte, 8)
	for i := range iv.words {
		if _, err := io.ReadFull(r, buf); err != nil {
			return read, fmt.Errorf("read intvector words: %w", err)
		}
		iv.words[i] = binary.LittleEndian.Uint64(buf)
		read += 8
	}
	return read, nil
}

type intVectorJSON struct {
	Len   uint64   `json:"len"`
	Width uint8    `json:"width"`
	Words []uint64 `json:"words"`
}

// MarshalJSON implements the named-field serialization form.
func (iv *IntVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(intVectorJSON{Len: iv.n, Width: iv.width, Words: iv.words})
}

// UnmarshalJSON implements the named-field deserialization form.
func (iv *IntVector) UnmarshalJSON(data []byte) error {
	var v intVectorJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Width == 0 || v.Width > 64 {
		return fmt.Errorf("intvector width %d: %w", v.Width, common.ErrCorrupt)
	}
	if uint64(len(v.Words)) != (v.Len*uint64(v.Width)+63)/64 {
		return fmt.Errorf("intvector words: %w", common.ErrCorrupt)
	}
	iv.n = v.Len
	iv.width = v.Width
	if v.Words == nil {
		v.Words = []uint64{}
	}
	iv.words = v.Words
	return nil
}
