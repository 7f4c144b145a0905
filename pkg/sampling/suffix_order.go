package sampling

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/internal/encoding"
	"github.com/gosuffix/go-csa-sampling/pkg/sampling/cache"
)

// SuffixOrderSampling retains every dens-th SA slot in suffix order.
// Whether a slot is sampled is a deterministic function of the slot index,
// so no marking vector is needed.
type SuffixOrderSampling struct {
	dens    uint64
	n       uint64
	samples *encoding.IntVector
}

// NewSuffixOrderSampling scans the cached suffix array once and retains
// every dens-th slot.
func NewSuffixOrderSampling(c *cache.Cache, dens uint64) (*SuffixOrderSampling, error) {
	if dens == 0 {
		return nil, common.ErrInvalidDensity
	}
	r, err := c.OpenReader(common.KeySA)
	if err != nil {
		return nil, fmt.Errorf("suffix-order sampling: %w", err)
	}
	defer r.Close()

	n := r.Size()
	so := &SuffixOrderSampling{
		dens:    dens,
		n:       n,
		samples: encoding.NewIntVector((n+dens-1)/dens, encoding.WidthFor(n)),
	}
	cnt := uint64(0)
	for i := uint64(0); i < n; i++ {
		sa, ok := r.Next()
		if !ok {
			return nil, fmt.Errorf("suffix-order sampling at %d: %w", i, common.ErrCorrupt)
		}
		if i%dens == 0 {
			so.samples.Set(cnt, sa)
			cnt++
		}
	}
	return so, nil
}

// IsSampled reports whether slot i is retained.
func (so *SuffixOrderSampling) IsSampled(i uint64) bool {
	return i%so.dens == 0
}

// Value returns the SA entry at a sampled slot i.
func (so *SuffixOrderSampling) Value(i uint64) uint64 {
	return so.samples.Get(i / so.dens)
}

// Len returns the suffix array length.
func (so *SuffixOrderSampling) Len() uint64 {
	return so.n
}

// Samples returns the number of retained entries.
func (so *SuffixOrderSampling) Samples() uint64 {
	return so.samples.Len()
}

// Density returns the sampling density.
func (so *SuffixOrderSampling) Density() uint64 {
	return so.dens
}

// Strategy returns StrategySuffixOrder.
func (so *SuffixOrderSampling) Strategy() Strategy {
	return StrategySuffixOrder
}

// WriteTo serializes the sampling and reports the number of bytes written.
func (so *SuffixOrderSampling) WriteTo(w io.Writer) (int64, error) {
	written, err := writeSamplingHeader(w, StrategySuffixOrder, so.dens, so.n)
	if err != nil {
		return written, err
	}
	n, err := so.samples.WriteTo(w)
	written += n
	return written, err
}

// ReadFrom deserializes a sampling previously written with WriteTo.
func (so *SuffixOrderSampling) ReadFrom(r io.Reader) (int64, error) {
	s, dens, n, read, err := readSamplingHeader(r)
	if err != nil {
		return read, err
	}
	if s != StrategySuffixOrder {
		return read, fmt.Errorf("expected %v sampling, got %v: %w",
			StrategySuffixOrder, s, common.ErrUnknownStrategy)
	}
	so.dens = dens
	so.n = n
	m, err := so.readBody(r)
	read += m
	return read, err
}

// Equal reports deep value equality.
func (so *SuffixOrderSampling) Equal(other *SuffixOrderSampling) bool {
	return so.dens == other.dens && so.n == other.n && so.samples.Equal(other.samples)
}

type suffixOrderJSON struct {
	Strategy string              `json:"strategy"`
	Density  uint64              `json:"density"`
	Length   uint64              `json:"length"`
	Samples  *encoding.IntVector `json:"samples"`
}

// MarshalJSON implements the named-field serialization form.
func (so *SuffixOrderSampling) MarshalJSON() ([]byte, error) {
	return json.Marshal(suffixOrderJSON{
		Strategy: StrategySuffixOrder.String(),
		Density:  so.dens,
		Length:   so.n,
		Samples:  so.samples,
	})
}

// UnmarshalJSON implements the named-field deserialization form.
func (so *SuffixOrderSampling) UnmarshalJSON(data []byte) error {
	v := suffixOrderJSON{Samples: &encoding.IntVector{}}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Density == 0 {
		return common.ErrInvalidDensity
	}
	so.dens = v.Density
	so.n = v.Length
	so.samples = v.Samples
	return nil
}

func (so *SuffixOrderSampling) readBody(r io.Reader) (int64, error) {
	so.samples = &encoding.IntVector{}
	return so.samples.ReadFrom(r)
}
