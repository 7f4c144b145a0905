package encoding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/bits"
)

const (
	rankSuperBlockBits = 512
	rankBlockBits      = 64
	selectSampleRate   = 4096
)

// RankSelect provides accelerated rank/select operations over a BitVector.
// It is a view: it holds a non-owning reference to its vector and must be
// re-wired with SetVector whenever the vector is relocated or reloaded.
type RankSelect struct {
	bv          *BitVector
	rankSuper   []uint64 // Superblock ranks (every 512 bits)
	rankBlock   []uint16 // Block ranks (every 64 bits)
	select1Hint []uint64 // Hints for select1 (sampled positions)
	select0Hint []uint64 // Hints for select0 (sampled positions)
}

// NewRankSelect builds a RankSelect structure over the given bit vector.
func NewRankSelect(bv *BitVector) *RankSelect {
	rs := &RankSelect{bv: bv}
	rs.buildRankStructures()
	rs.buildSelectHints()
	return rs
}

// SetVector re-wires the view to point at bv. The auxiliary structures are
// only valid for a vector with identical contents.
func (rs *RankSelect) SetVector(bv *BitVector) {
	rs.bv = bv
}

// Vector returns the bit vector this view is wired to.
func (rs *RankSelect) Vector() *BitVector {
	return rs.bv
}

func (rs *RankSelect) buildRankStructures() {
	numSuperBlocks := (rs.bv.length + rankSuperBlockBits - 1) / rankSuperBlockBits
	numBlocks := (rs.bv.length + rankBlockBits - 1) / rankBlockBits

	rs.rankSuper = make([]uint64, numSuperBlocks)
	rs.rankBlock = make([]uint16, numBlocks)

	rank := uint64(0)
	for i := uint64(0); i < numBlocks; i++ {
		if i%8 == 0 {
			rs.rankSuper[i/8] = rank
		}
		rs.rankBlock[i] = uint16(rank - rs.rankSuper[i/8])
		if i < uint64(len(rs.bv.bits)) {
			rank += uint64(bits.OnesCount64(rs.bv.bits[i]))
		}
	}
}

func (rs *RankSelect) buildSelectHints() {
	ones := rs.bv.PopCount()
	numSamples1 := (ones + selectSampleRate - 1) / selectSampleRate
	rs.select1Hint = make([]uint64, numSamples1)

	zeros := rs.bv.length - ones
	numSamples0 := (zeros + selectSampleRate - 1) / selectSampleRate
	rs.select0Hint = make([]uint64, numSamples0)

	count1 := uint64(0)
	sample1 := uint64(0)
	for i := uint64(0); i < rs.bv.length && sample1 < numSamples1; i++ {
		if rs.bv.Get(i) {
			count1++
			if count1%selectSampleRate == 1 {
				rs.select1Hint[sample1] = i
				sample1++
			}
		}
	}

	count0 := uint64(0)
	sample0 := uint64(0)
	for i := uint64(0); i < rs.bv.length && sample0 < numSamples0; i++ {
		if !rs.bv.Get(i) {
			count0++
			if count0%selectSampleRate == 1 {
				rs.select0Hint[sample0] = i
				sample0++
			}
		}
	}
}

// Rank1 returns the number of 1-bits up to position i (exclusive).
func (rs *RankSelect) Rank1(i uint64) uint64 {
	if i == 0 {
		return 0
	}
	if i > rs.bv.length {
		i = rs.bv.length
	}

	blockIdx := i / 64
	if blockIdx >= uint64(len(rs.rankBlock)) {
		return rs.bv.PopCount()
	}
	superBlockIdx := blockIdx / 8

	rank := rs.rankSuper[superBlockIdx] + uint64(rs.rankBlock[blockIdx])

	remainder := i % 64
	if remainder > 0 && blockIdx < uint64(len(rs.bv.bits)) {
		mask := (uint64(1) << remainder) - 1
		rank += uint64(bits.OnesCount64(rs.bv.bits[blockIdx] & mask))
	}

	return rank
}

// Rank0 returns the number of 0-bits up to position i (exclusive).
func (rs *RankSelect) Rank0(i uint64) uint64 {
	if i > rs.bv.length {
		i = rs.bv.length
	}
	return i - rs.Rank1(i)
}

// Select1 returns the position of the n-th 1-bit (1-indexed).
func (rs *RankSelect) Select1(n uint64) uint64 {
	if n == 0 {
		return rs.bv.length // Not found
	}
	hintIdx := (n - 1) / selectSampleRate

	startPos := uint64(0)
	startRank := uint64(0)
	if hintIdx < uint64(len(rs.select1Hint)) {
		startPos = rs.select1Hint[hintIdx]
		startRank = hintIdx * selectSampleRate
	}

	for i := startPos; i < rs.bv.length; i++ {
		if rs.bv.Get(i) {
			startRank++
			if startRank == n {
				return i
			}
		}
	}

	return rs.bv.length // Not found
}

// Select0 returns the position of the n-th 0-bit (1-indexed).
func (rs *RankSelect) Select0(n uint64) uint64 {
	if n == 0 {
		return rs.bv.length // Not found
	}
	hintIdx := (n - 1) / selectSampleRate

	startPos := uint64(0)
	startRank := uint64(0)
	if hintIdx < uint64(len(rs.select0Hint)) {
		startPos = rs.select0Hint[hintIdx]
		startRank = hintIdx * selectSampleRate
	}

	for i := startPos; i < rs.bv.length; i++ {
		if !rs.bv.Get(i) {
			startRank++
			if startRank == n {
				return i
			}
		}
	}

	return rs.bv.length // Not found
}

// Equal reports whether two views carry identical auxiliary structures.
// The underlying vectors are compared by the caller.
func (rs *RankSelect) Equal(other *RankSelect) bool {
	if len(rs.rankSuper) != len(other.rankSuper) ||
		len(rs.rankBlock) != len(other.rankBlock) ||
		len(rs.select1Hint) != len(other.select1Hint) ||
		len(rs.select0Hint) != len(other.select0Hint) {
		return false
	}
	for i, v := range rs.rankSuper {
		if v != other.rankSuper[i] {
			return false
		}
	}
	for i, v := range rs.rankBlock {
		if v != other.rankBlock[i] {
			return false
		}
	}
	for i, v := range rs.select1Hint {
		if v != other.select1Hint[i] {
			return false
		}
	}
	for i, v := range rs.select0Hint {
		if v != other.select0Hint[i] {
			return false
		}
	}
	return true
}

// WriteTo serializes the auxiliary structures. The referenced bit vector is
// serialized by its owner.
func (rs *RankSelect) WriteTo(w io.Writer) (int64, error) {
	var hdr [32]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(len(rs.rankSuper)))
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(rs.rankBlock)))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(len(rs.select1Hint)))
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(len(rs.select0Hint)))
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("write rankselect header: %w", err)
	}
	written := int64(32)

	buf := make([]byte, 8)
	for _, v := range rs.rankSuper {
		binary.LittleEndian.PutUint64(buf, v)
		if _, err := w.Write(buf); err != nil {
			return written, err
		}
		written += 8
	}
	for _, v := range rs.rankBlock {
		binary.LittleEndian.PutUint16(buf[:2], v)
		if _, err := w.Write(buf[:2]); err != nil {
			return written, err
		}
		written += 2
	}
	for _, v := range rs.select1Hint {
		binary.LittleEndian.PutUint64(buf, v)
		if _, err := w.Write(buf); err != nil {
			return written, err
		}
		written += 8
	}
	for _, v := range rs.select0Hint {
		binary.LittleEndian.PutUint64(buf, v)
		if _, err := w.Write(buf); err != nil {
			return written, err
		}
		written += 8
	}
	return written, nil
}

// ReadFrom deserializes the auxiliary structures. The caller must re-wire
// the view with SetVector before use.
func (rs *RankSelect) ReadFrom(r io.Reader) (int64, error) {
	var hdr [32]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("read rankselect header: %w", err)
	}
	read := int64(32)

	rs.rankSuper = make([]uint64, binary.LittleEndian.Uint64(hdr[0:8]))
	rs.rankBlock = make([]uint16, binary.LittleEndian.Uint64(hdr[8:16]))
	rs.select1Hint = make([]uint64, binary.LittleEndian.Uint64(hdr[16:24]))
	rs.select0Hint = make([]uint64, binary.LittleEndian.Uint64(hdr[24:32]))

	buf := make([]byte, 8)
	for i := range rs.rankSuper {
		if _, err := io.ReadFull(r, buf); err != nil {
			return read, err
		}
		rs.rankSuper[i] = binary.LittleEndian.Uint64(buf)
		read += 8
	}
	for i := range rs.rankBlock {
		if _, err := io.ReadFull(r, buf[:2]); err != nil {
			return read, err
		}
		rs.rankBlock[i] = binary.LittleEndian.Uint16(buf[:2])
		read += 2
	}
	for i := range rs.select1Hint {
		if _, err := io.ReadFull(r, buf); err != nil {
			return read, err
		}
		rs.select1Hint[i] = binary.LittleEndian.Uint64(buf)
		read += 8
	}
	for i := range rs.select0Hint {
		if _, err := io.ReadFull(r, buf); err != nil {
			return read, err
		}
		rs.select0Hint[i] = binary.LittleEndian.Uint64(buf)
		read += 8
	}
	rs.bv = nil
	return read, nil
}

type rankSelectJSON struct {
	RankSuper   []uint64 `json:"rankSuper"`
	RankBlock   []uint16 `json:"rankBlock"`
	Select1Hint []uint64 `json:"select1Hint"`
	Select0Hint []uint64 `json:"select0Hint"`
}

// MarshalJSON implements the named-field serialization form.
func (rs *RankSelect) MarshalJSON() ([]byte, error) {
	return json.Marshal(rankSelectJSON{
		RankSuper:   rs.rankSuper,
		RankBlock:   rs.rankBlock,
		Select1Hint: rs.select1Hint,
		Select0Hint: rs.select0Hint,
	})
}

// UnmarshalJSON implements the named-field deserialization form. The caller
// must re-wire the view with SetVector before use.
func (rs *RankSelect) UnmarshalJSON(data []byte) error {
	var v rankSelectJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	rs.rankSuper = v.RankSuper
	rs.rankBlock = v.RankBlock
	rs.select1Hint = v.Select1Hint
	rs.select0Hint = v.Select0Hint
	rs.bv = nil
	return nil
}
