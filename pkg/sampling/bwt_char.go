package sampling

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/internal/encoding"
	"github.com/gosuffix/go-csa-sampling/pkg/sampling/cache"
)

// BWTSampling marks slots whose value is a multiple of the density, plus
// every slot whose co-indexed BWT symbol belongs to the cached
// sampled-character set. Marks are dense enough here that a plain bit
// vector with a rank directory beats the sparse encoding.
type BWTSampling struct {
	dens    uint64
	n       uint64
	samples *encoding.IntVector
	marked  *encoding.BitVector
	rank    *encoding.RankSelect
}

// NewBWTSampling builds the sampling in two passes over the cached suffix
// array. The first pass marks slots, the second re-reads the SA to fill
// the sample values in slot order.
func NewBWTSampling(c *cache.Cache, dens uint64) (*BWTSampling, error) {
	if dens == 0 {
		return nil, common.ErrInvalidDensity
	}
	if err := cache.ConstructBWT(c); err != nil {
		return nil, fmt.Errorf("bwt sampling: %w", err)
	}
	chars, err := cache.LoadSampleChars(c)
	if err != nil {
		return nil, fmt.Errorf("bwt sampling: %w", err)
	}

	sa, err := c.OpenReader(common.KeySA)
	if err != nil {
		return nil, fmt.Errorf("bwt sampling: %w", err)
	}
	defer sa.Close()
	bwt, err := c.OpenReader(cache.KeyBWT(8))
	if err != nil {
		return nil, fmt.Errorf("bwt sampling: %w", err)
	}
	defer bwt.Close()

	n := sa.Size()
	bs := &BWTSampling{
		dens:   dens,
		n:      n,
		marked: encoding.NewBitVector(n),
	}
	cnt := uint64(0)
	for i := uint64(0); i < n; i++ {
		v, ok := sa.Next()
		if !ok {
			return nil, fmt.Errorf("bwt sampling at %d: %w", i, common.ErrCorrupt)
		}
		ch, ok := bwt.Next()
		if !ok {
			return nil, fmt.Errorf("bwt sampling at %d: %w", i, common.ErrCorrupt)
		}
		if v%dens == 0 || chars.Contains(uint32(ch)) {
			bs.marked.Set(i)
			cnt++
		}
	}
	bs.rank = encoding.NewRankSelect(bs.marked)

	// Second pass fills samples with the raw SA values of marked slots.
	sa.Reset()
	bs.samples = encoding.NewIntVector(cnt, encoding.WidthFor(n))
	j := uint64(0)
	for i := uint64(0); i < n; i++ {
		v, ok := sa.Next()
		if !ok {
			return nil, fmt.Errorf("bwt sampling at %d: %w", i, common.ErrCorrupt)
		}
		if bs.marked.Get(i) {
			bs.samples.Set(j, v)
			j++
		}
	}
	return bs, nil
}

// IsSampled reports whether slot i is marked.
func (bs *BWTSampling) IsSampled(i uint64) bool {
	return bs.marked.Get(i)
}

// Value returns the SA entry at a marked slot i. Values are stored raw,
// so no density rescale applies.
func (bs *BWTSampling) Value(i uint64) uint64 {
	return bs.samples.Get(bs.rank.Rank1(i))
}

// Len returns the suffix array length.
func (bs *BWTSampling) Len() uint64 {
	return bs.n
}

// Samples returns the number of marked slots.
func (bs *BWTSampling) Samples() uint64 {
	return bs.samples.Len()
}

// Density returns the sampling density.
func (bs *BWTSampling) Density() uint64 {
	return bs.dens
}

// Strategy returns StrategyBWTChar.
func (bs *BWTSampling) Strategy() Strategy {
	return StrategyBWTChar
}

// Equal reports deep value equality.
func (bs *BWTSampling) Equal(other *BWTSampling) bool {
	return bs.dens == other.dens && bs.n == other.n &&
		bs.samples.Equal(other.samples) && bs.marked.Equal(other.marked)
}

// WriteTo serializes the sampling and reports the number of bytes written.
func (bs *BWTSampling) WriteTo(w io.Writer) (int64, error) {
	written, err := writeSamplingHeader(w, StrategyBWTChar, bs.dens, bs.n)
	if err != nil {
		return written, err
	}
	n, err := bs.samples.WriteTo(w)
	written += n
	if err != nil {
		return written, err
	}
	n, err = bs.marked.WriteTo(w)
	written += n
	if err != nil {
		return written, err
	}
	n, err = bs.rank.WriteTo(w)
	written += n
	return written, err
}

// ReadFrom deserializes a sampling previously written with WriteTo and
// re-wires the rank directory to the loaded bit vector.
func (bs *BWTSampling) ReadFrom(r io.Reader) (int64, error) {
	s, dens, n, read, err := readSamplingHeader(r)
	if err != nil {
		return read, err
	}
	if s != StrategyBWTChar {
		return read, fmt.Errorf("expected %v sampling, got %v: %w",
			StrategyBWTChar, s, common.ErrUnknownStrategy)
	}
	bs.dens = dens
	bs.n = n
	m, err := bs.readBody(r)
	read += m
	return read, err
}

func (bs *BWTSampling) readBody(r io.Reader) (int64, error) {
	bs.samples = &encoding.IntVector{}
	read, err := bs.samples.ReadFrom(r)
	if err != nil {
		return read, err
	}
	bs.marked = &encoding.BitVector{}
	m, err := bs.marked.ReadFrom(r)
	read += m
	if err != nil {
		return read, err
	}
	bs.rank = &encoding.RankSelect{}
	m, err = bs.rank.ReadFrom(r)
	read += m
	if err != nil {
		return read, err
	}
	bs.rank.SetVector(bs.marked)
	return read, nil
}

type bwtSamplingJSON struct {
	Strategy string               `json:"strategy"`
	Density  uint64               `json:"density"`
	Length   uint64               `json:"length"`
	Samples  *encoding.IntVector  `json:"samples"`
	Marked   *encoding.BitVector  `json:"marked"`
	Rank     *encoding.RankSelect `json:"rank"`
}

// MarshalJSON implements the named-field serialization form.
func (bs *BWTSampling) MarshalJSON() ([]byte, error) {
	return json.Marshal(bwtSamplingJSON{
		Strategy: StrategyBWTChar.String(),
		Density:  bs.dens,
		Length:   bs.n,
		Samples:  bs.samples,
		Marked:   bs.marked,
		Rank:     bs.rank,
	})
}

// UnmarshalJSON implements the named-field deserialization form and
// restores the rank back-reference.
func (bs *BWTSampling) UnmarshalJSON(data []byte) error {
	v := bwtSamplingJSON{
		Samples: &encoding.IntVector{},
		Marked:  &encoding.BitVector{},
		Rank:    &encoding.RankSelect{},
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Density == 0 {
		return common.ErrInvalidDensity
	}
	bs.dens = v.Density
	bs.n = v.Length
	bs.samples = v.Samples
	bs.marked = v.Marked
	bs.rank = v.Rank
	bs.rank.SetVector(bs.marked)
	return nil
}
