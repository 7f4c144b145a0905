package encoding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/bits"

	"github.com/gosuffix/go-csa-sampling/internal/common"
)

// SparseBitVector is an immutable Elias-Fano encoding of a bit sequence
// with few set bits. Set-bit positions are split into low bits (packed) and
// high bits (unary in a plain bit vector); rank and select are answered in
// the encoded domain through a RankSelect view over the high array.
type SparseBitVector struct {
	size    uint64 // declared length n
	numOnes uint64 // set-bit count m
	wl      uint8  // low-bit width
	low     *IntVector
	high    *BitVector
	highSup *RankSelect
}

// SparseBuilder stages a SparseBitVector. Positions must be appended in
// strictly increasing order; the builder converts into a vector only when
// exactly the declared number of positions has been appended.
type SparseBuilder struct {
	size     uint64
	capacity uint64
	wl       uint8
	tail     uint64
	items    uint64
	lastHigh uint64
	highPos  uint64
	low      *IntVector
	high     *BitVector
}

// splitWidth derives the low-bit width for n total bits with m set. The
// high-bit estimate is decremented when equal to the total estimate so the
// split stays valid.
func splitWidth(n, m uint64) (uint8, uint64) {
	logm := bits.Len64(m)
	if logm == 0 {
		logm = 1
	}
	logn := bits.Len64(n)
	if logn == 0 {
		logn = 1
	}
	if logm == logn {
		logm--
	}
	return uint8(logn - logm), uint64(1) << logm
}

// NewSparseBuilder creates a builder for a vector of length n with exactly
// m set bits.
func NewSparseBuilder(n, m uint64) (*SparseBuilder, error) {
	if m > n {
		return nil, fmt.Errorf("sparse builder (n=%d, m=%d): %w", n, m, common.ErrBuilderCapacity)
	}
	wl, highSpan := splitWidth(n, m)
	return &SparseBuilder{
		size:     n,
		capacity: m,
		wl:       wl,
		low:      NewIntVector(m, wl),
		high:     NewBitVector(m + highSpan),
	}, nil
}

// Set appends position i. Positions must be strictly increasing and below
// the declared vector length.
func (b *SparseBuilder) Set(i uint64) error {
	if b.items >= b.capacity {
		return fmt.Errorf("sparse builder set %d: %w", i, common.ErrBuilderFull)
	}
	if i < b.tail {
		return fmt.Errorf("sparse builder set %d after %d: %w", i, b.tail-1, common.ErrNonMonotonic)
	}
	if i >= b.size {
		return fmt.Errorf("sparse builder set %d (size %d): %w", i, b.size, common.ErrOutOfBounds)
	}

	curHigh := i >> b.wl
	b.highPos += curHigh - b.lastHigh
	b.lastHigh = curHigh
	b.low.Set(b.items, i) // truncated to the low-bit width
	b.high.Set(b.highPos)
	b.highPos++
	b.items++
	b.tail = i + 1
	return nil
}

// Items returns the number of positions appended so far.
func (b *SparseBuilder) Items() uint64 {
	return b.items
}

// Capacity returns the declared number of set bits.
func (b *SparseBuilder) Capacity() uint64 {
	return b.capacity
}

// Finalize converts the builder into an immutable SparseBitVector. It fails
// unless exactly the declared number of positions was appended. On success
// the arrays are moved out and the builder is reset to an empty value.
func (b *SparseBuilder) Finalize() (*SparseBitVector, error) {
	if b.items != b.capacity {
		return nil, fmt.Errorf("sparse builder holds %d of %d positions: %w",
			b.items, b.capacity, common.ErrBuilderNotFull)
	}
	sv := &SparseBitVector{
		size:    b.size,
		numOnes: b.capacity,
		wl:      b.wl,
		low:     b.low,
		high:    b.high,
	}
	sv.highSup = NewRankSelect(sv.high)

	*b = SparseBuilder{}
	return sv, nil
}

// NewSparseFromBitVector encodes the set bits of a plain bit vector.
func NewSparseFromBitVector(bv *BitVector) (*SparseBitVector, error) {
	b, err := NewSparseBuilder(bv.Length(), bv.PopCount())
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < bv.Length(); i++ {
		if bv.Get(i) {
			if err := b.Set(i); err != nil {
				return nil, err
			}
		}
	}
	return b.Finalize()
}

// Len returns the declared length of the bit sequence.
func (sv *SparseBitVector) Len() uint64 {
	return sv.size
}

// Ones returns the number of set bits.
func (sv *SparseBitVector) Ones() uint64 {
	return sv.numOnes
}

// Get returns the bit at position i.
func (sv *SparseBitVector) Get(i uint64) bool {
	if i >= sv.size {
		return false
	}
	return sv.Rank(i+1) > sv.Rank(i)
}

// Rank returns the number of set bits strictly before position i.
func (sv *SparseBitVector) Rank(i uint64) uint64 {
	if i >= sv.size {
		return sv.numOnes
	}
	if sv.numOnes == 0 {
		return 0
	}

	highVal := i >> sv.wl
	selHigh := sv.highSup.Select0(highVal + 1)
	rankLow := selHigh - highVal
	if rankLow == 0 {
		return 0
	}
	valLow := i & ((uint64(1) << sv.wl) - 1)
	for rankLow > 0 && sv.high.Get(selHigh-1) && sv.low.Get(rankLow-1) >= valLow {
		selHigh--
		rankLow--
	}
	return rankLow
}

// Select returns the position of the k-th set bit (1-indexed). Out-of-range
// k returns the vector length.
func (sv *SparseBitVector) Select(k uint64) uint64 {
	if k == 0 || k > sv.numOnes {
		return sv.size // Not found
	}
	pos := sv.highSup.Select1(k)
	return ((pos - (k - 1)) << sv.wl) | sv.low.Get(k-1)
}

// Equal reports deep value equality.
func (sv *SparseBitVector) Equal(other *SparseBitVector) bool {
	return sv.size == other.size &&
		sv.numOnes == other.numOnes &&
		sv.wl == other.wl &&
		sv.low.Equal(other.low) &&
		sv.high.Equal(other.high)
}

// WriteTo serializes the vector and reports the number of bytes written.
func (sv *SparseBitVector) WriteTo(w io.Writer) (int64, error) {
	var hdr [32]byte
	binary.LittleEndian.PutUint32(hdr[0:4], common.MagicSparse)
	binary.LittleEndian.PutUint16(hdr[4:6], common.VersionSampling)
	hdr[6] = sv.wl
	binary.LittleEndian.PutUint64(hdr[8:16], sv.size)
	binary.LittleEndian.PutUint64(hdr[16:24], sv.numOnes)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("write sparse header: %w", err)
	}
	written := int64(len(hdr))

	n, err := sv.low.WriteTo(w)
	written += n
	if err != nil {
		return written, err
	}
	n, err = sv.high.WriteTo(w)
	written += n
	if err != nil {
		return written, err
	}
	n, err = sv.highSup.WriteTo(w)
	written += n
	return written, err
}

// ReadFrom deserializes a vector previously written with WriteTo and
// re-wires the rank/select view onto the loaded high array.
func (sv *SparseBitVector) ReadFrom(r io.Reader) (int64, error) {
	var hdr [32]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("read sparse header: %w", err)
	}
	read := int64(len(hdr))

	if binary.LittleEndian.Uint32(hdr[0:4]) != common.MagicSparse {
		return read, common.ErrInvalidMagic
	}
	if binary.LittleEndian.Uint16(hdr[4:6]) != common.VersionSampling {
		return read, common.ErrUnsupportedVersion
	}
	sv.wl = hdr[6]
	sv.size = binary.LittleEndian.Uint64(hdr[8:16])
	sv.numOnes = binary.LittleEndian.Uint64(hdr[16:24])

	sv.low = &IntVector{}
	n, err := sv.low.ReadFrom(r)
	read += n
	if err != nil {
		return read, err
	}
	sv.high = &BitVector{}
	n, err = sv.high.ReadFrom(r)
	read += n
	if err != nil {
		return read, err
	}
	sv.highSup = &RankSelect{}
	n, err = sv.highSup.ReadFrom(r)
	read += n
	if err != nil {
		return read, err
	}
	sv.highSup.SetVector(sv.high)
	return read, nil
}

type sparseJSON struct {
	Size    uint64      `json:"size"`
	Ones    uint64      `json:"ones"`
	LowBits uint8       `json:"lowBits"`
	Low     *IntVector  `json:"low"`
	High    *BitVector  `json:"high"`
	HighSup *RankSelect `json:"highSup"`
}

// MarshalJSON implements the named-field serialization form.
func (sv *SparseBitVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(sparseJSON{
		Size:    sv.size,
		Ones:    sv.numOnes,
		LowBits: sv.wl,
		Low:     sv.low,
		High:    sv.high,
		HighSup: sv.highSup,
	})
}

// UnmarshalJSON implements the named-field deserialization form and
// re-wires the rank/select view.
func (sv *SparseBitVector) UnmarshalJSON(data []byte) error {
	v := sparseJSON{Low: &IntVector{}, High: &BitVector{}, HighSup: &RankSelect{}}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Low == nil || v.High == nil || v.HighSup == nil {
		return fmt.Errorf("sparse vector fields: %w", common.ErrCorrupt)
	}
	sv.size = v.Size
	sv.numOnes = v.Ones
	sv.wl = v.LowBits
	sv.low = v.Low
	sv.high = v.High
	sv.highSup = v.HighSup
	sv.highSup.SetVector(sv.high)
	return nil
}
