package sampling

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/internal/encoding"
	"github.com/gosuffix/go-csa-sampling/pkg/sampling/cache"
)

// Serialized-kind tags for the ISA-side structures. Disjoint from the SA
// strategy tags so a stream can never be loaded as the wrong side.
const (
	isaKindDirect Strategy = 0x80 + iota
	isaKindTextOrder
	isaKindFuzzy
)

// ISASampling stores, for every text position that is a multiple of the
// density, the SA slot at which that position occurs. Built independently
// of the paired SA sampling by one extra SA scan.
type ISASampling struct {
	dens    uint64
	n       uint64
	samples *encoding.IntVector
}

// NewISASampling scans the cached suffix array and records the slot index
// of every sampled text position.
func NewISASampling(c *cache.Cache, dens uint64) (*ISASampling, error) {
	if dens == 0 {
		return nil, common.ErrInvalidDensity
	}
	r, err := c.OpenReader(common.KeySA)
	if err != nil {
		return nil, fmt.Errorf("isa sampling: %w", err)
	}
	defer r.Close()

	n := r.Size()
	is := &ISASampling{dens: dens, n: n}
	var size uint64
	if n >= 1 {
		size = (n-1)/dens + 1
	}
	is.samples = encoding.NewIntVector(size, encoding.WidthFor(n))
	for i := uint64(0); i < n; i++ {
		sa, ok := r.Next()
		if !ok {
			return nil, fmt.Errorf("isa sampling at %d: %w", i, common.ErrCorrupt)
		}
		if sa%dens == 0 {
			is.samples.Set(sa/dens, i)
		}
	}
	return is, nil
}

// Value returns the ISA sample covering text position i.
func (is *ISASampling) Value(i uint64) uint64 {
	return is.samples.Get(i / is.dens)
}

// SampleLEQ returns the rightmost ISA sample at or before text position i
// and the position it covers.
func (is *ISASampling) SampleLEQ(i uint64) (uint64, uint64) {
	ci := i / is.dens
	return is.samples.Get(ci), ci * is.dens
}

// SampleGEQ returns the leftmost ISA sample strictly after i's covering
// sample, wrapping modulo the sample count, and the position it covers.
func (is *ISASampling) SampleGEQ(i uint64) (uint64, uint64) {
	ci := (i/is.dens + 1) % is.samples.Len()
	return is.samples.Get(ci), ci * is.dens
}

// Samples returns the number of stored ISA entries.
func (is *ISASampling) Samples() uint64 {
	return is.samples.Len()
}

// Density returns the sampling density.
func (is *ISASampling) Density() uint64 {
	return is.dens
}

// Equal reports deep value equality.
func (is *ISASampling) Equal(other *ISASampling) bool {
	return is.dens == other.dens && is.n == other.n &&
		is.samples.Equal(other.samples)
}

// WriteTo serializes the sampling and reports the number of bytes written.
func (is *ISASampling) WriteTo(w io.Writer) (int64, error) {
	written, err := writeSamplingHeader(w, isaKindDirect, is.dens, is.n)
	if err != nil {
		return written, err
	}
	n, err := is.samples.WriteTo(w)
	written += n
	return written, err
}

// ReadFrom deserializes a sampling previously written with WriteTo.
func (is *ISASampling) ReadFrom(r io.Reader) (int64, error) {
	s, dens, n, read, err := readSamplingHeader(r)
	if err != nil {
		return read, err
	}
	if s != isaKindDirect {
		return read, fmt.Errorf("expected direct isa sampling, got tag %#x: %w",
			uint8(s), common.ErrUnknownStrategy)
	}
	is.dens = dens
	is.n = n
	is.samples = &encoding.IntVector{}
	m, err := is.samples.ReadFrom(r)
	read += m
	return read, err
}

type isaSamplingJSON struct {
	Density uint64              `json:"density"`
	Length  uint64              `json:"length"`
	Samples *encoding.IntVector `json:"samples"`
}

// MarshalJSON implements the named-field serialization form.
func (is *ISASampling) MarshalJSON() ([]byte, error) {
	return json.Marshal(isaSamplingJSON{
		Density: is.dens,
		Length:  is.n,
		Samples: is.samples,
	})
}

// UnmarshalJSON implements the named-field deserialization form.
func (is *ISASampling) UnmarshalJSON(data []byte) error {
	v := isaSamplingJSON{Samples: &encoding.IntVector{}}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Density == 0 {
		return common.ErrInvalidDensity
	}
	is.dens = v.Density
	is.n = v.Length
	is.samples = v.Samples
	return nil
}
