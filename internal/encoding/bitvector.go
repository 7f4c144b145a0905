package encoding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/bits"

	"github.com/bits-and-blooms/bitset"

	"github.com/gosuffix/go-csa-sampling/internal/common"
)

// BitVector is a compact bit array. Rank/select acceleration lives in
// RankSelect, which holds a non-owning reference to its vector.
type BitVector struct {
	bits   []uint64
	length uint64
}

// NewBitVector creates a new bit vector with the given length.
func NewBitVector(length uint64) *BitVector {
	numWords := (length + 63) / 64
	return &BitVector{
		bits:   make([]uint64, numWords),
		length: length,
	}
}

// FromBitSet converts a temporary construction bitset into a BitVector of
// the given length.
func FromBitSet(bs *bitset.BitSet, length uint64) *BitVector {
	bv := NewBitVector(length)
	copy(bv.bits, bs.Bytes())
	return bv
}

// Set sets the bit at position i to 1.
func (bv *BitVector) Set(i uint64) {
	if i >= bv.length {
		return
	}
	bv.bits[i/64] |= uint64(1) << (i % 64)
}

// Clear sets the bit at position i to 0.
func (bv *BitVector) Clear(i uint64) {
	if i >= bv.length {
		return
	}
	bv.bits[i/64] &= ^(uint64(1) << (i % 64))
}

// Get returns the bit at position i.
func (bv *BitVector) Get(i uint64) bool {
	if i >= bv.length {
		return false
	}
	return (bv.bits[i/64] & (uint64(1) << (i % 64))) != 0
}

// Rank1 returns the number of 1-bits up to position i (exclusive).
func (bv *BitVector) Rank1(i uint64) uint64 {
	if i == 0 {
		return 0
	}
	if i > bv.length {
		i = bv.length
	}

	count := uint64(0)
	fullWords := i / 64
	for j := uint64(0); j < fullWords; j++ {
		count += uint64(bits.OnesCount64(bv.bits[j]))
	}

	remainder := i % 64
	if remainder > 0 && fullWords < uint64(len(bv.bits)) {
		mask := (uint64(1) << remainder) - 1
		count += uint64(bits.OnesCount64(bv.bits[fullWords] & mask))
	}

	return count
}

// Rank0 returns the number of 0-bits up to position i (exclusive).
func (bv *BitVector) Rank0(i uint64) uint64 {
	if i > bv.length {
		i = bv.length
	}
	return i - bv.Rank1(i)
}

// Select1 returns the position of the n-th 1-bit (1-indexed).
func (bv *BitVector) Select1(n uint64) uint64 {
	if n == 0 {
		return bv.length // Not found
	}

	count := uint64(0)
	for wordIdx, word := range bv.bits {
		wordCount := uint64(bits.OnesCount64(word))
		if count+wordCount >= n {
			for bitIdx := uint64(0); bitIdx < 64; bitIdx++ {
				if (word & (1 << bitIdx)) != 0 {
					count++
					if count == n {
						return uint64(wordIdx)*64 + bitIdx
					}
				}
			}
		}
		count += wordCount
	}

	return bv.length // Not found
}

// Select0 returns the position of the n-th 0-bit (1-indexed).
func (bv *BitVector) Select0(n uint64) uint64 {
	if n == 0 {
		return bv.length // Not found
	}

	count := uint64(0)
	for wordIdx, word := range bv.bits {
		wordCount := uint64(bits.OnesCount64(^word))
		if wordIdx == len(bv.bits)-1 {
			// Last word may be partial
			lastBits := bv.length % 64
			if lastBits > 0 {
				mask := (uint64(1) << lastBits) - 1
				wordCount = uint64(bits.OnesCount64((^word) & mask))
			}
		}

		if count+wordCount >= n {
			for bitIdx := uint64(0); bitIdx < 64; bitIdx++ {
				pos := uint64(wordIdx)*64 + bitIdx
				if pos >= bv.length {
					break
				}
				if (word & (1 << bitIdx)) == 0 {
					count++
					if count == n {
						return pos
					}
				}
			}
		}
		count += wordCount
	}

	return bv.length // Not found
}

// Length returns the length of the bit vector.
func (bv *BitVector) Length() uint64 {
	return bv.length
}

// PopCount returns the total number of 1-bits.
func (bv *BitVector) PopCount() uint64 {
	count := uint64(0)
	for _, word := range bv.bits {
		count += uint64(bits.OnesCount64(word))
	}
	return count
}

// Equal reports whether two bit vectors hold the same bits.
func (bv *BitVector) Equal(other *BitVector) bool {
	if bv.length != other.length {
		return false
	}
	for i, w := range bv.bits {
		if w != other.bits[i] {
			return false
		}
	}
	return true
}

// WriteTo serializes the bit vector and reports the number of bytes written.
func (bv *BitVector) WriteTo(w io.Writer) (int64, error) {
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], bv.length)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("write bitvector length: %w", err)
	}
	written := int64(8)

	buf := make([]byte, 8)
	for _, word := range bv.bits {
		binary.LittleEndian.PutUint64(buf, word)
		if _, err := w.Write(buf); err != nil {
			return written, fmt.Errorf("write bitvector words: %w", err)
		}
		written += 8
	}
	return written, nil
}

// ReadFrom deserializes a bit vector previously written with WriteTo.
func (bv *BitVector) ReadFrom(r io.Reader) (int64, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("read bitvector length: %w", err)
	}
	read := int64(8)

	bv.length = binary.LittleEndian.Uint64(hdr[:])
	bv.bits = make([]uint64, (bv.length+63)/64)

	buf := make([]byte, 8)
	for i := range bv.bits {
		if _, err := io.ReadFull(r, buf); err != nil {
			return read, fmt.Errorf("read bitvector words: %w", err)
		}
		bv.bits[i] = binary.LittleEndian.Uint64(buf)
		read += 8
	}
	return read, nil
}

type bitVectorJSON struct {
	Length uint64   `json:"length"`
	Words  []uint64 `json:"words"`
}

// MarshalJSON implements the named-field serialization form.
func (bv *BitVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(bitVectorJSON{Length: bv.length, Words: bv.bits})
}

// UnmarshalJSON implements the named-field deserialization form.
func (bv *BitVector) UnmarshalJSON(data []byte) error {
	var v bitVectorJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	numWords := (v.Length + 63) / 64
	if uint64(len(v.Words)) != numWords {
		return fmt.Errorf("bitvector words: %w", common.ErrCorrupt)
	}
	bv.length = v.Length
	if v.Words == nil {
		v.Words = []uint64{}
	}
	bv.bits = v.Words
	return nil
}
