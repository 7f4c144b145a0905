package sampling

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/internal/encoding"
	"github.com/gosuffix/go-csa-sampling/pkg/sampling/cache"
)

// TextOrderSampling retains the SA slots whose value (the referenced text
// position) is a multiple of the density. Marked slots are encoded in a
// sparse bit vector owned by the sampling; stored samples keep the
// condensed value SA[i]/dens.
type TextOrderSampling struct {
	dens    uint64
	n       uint64
	samples *encoding.IntVector
	marked  *encoding.SparseBitVector
}

// NewTextOrderSampling scans the cached suffix array once, marking the
// slots whose value is a multiple of dens.
func NewTextOrderSampling(c *cache.Cache, dens uint64) (*TextOrderSampling, error) {
	if dens == 0 {
		return nil, common.ErrInvalidDensity
	}
	r, err := c.OpenReader(common.KeySA)
	if err != nil {
		return nil, fmt.Errorf("text-order sampling: %w", err)
	}
	defer r.Close()

	n := r.Size()
	numSamples := (n + dens - 1) / dens // one per multiple of dens in [0,n)
	builder, err := encoding.NewSparseBuilder(n, numSamples)
	if err != nil {
		return nil, fmt.Errorf("text-order sampling: %w", err)
	}

	to := &TextOrderSampling{
		dens:    dens,
		n:       n,
		samples: encoding.NewIntVector(numSamples, encoding.WidthFor(n/dens)),
	}
	cnt := uint64(0)
	for i := uint64(0); i < n; i++ {
		sa, ok := r.Next()
		if !ok {
			return nil, fmt.Errorf("text-order sampling at %d: %w", i, common.ErrCorrupt)
		}
		if sa%dens == 0 {
			if err := builder.Set(i); err != nil {
				return nil, fmt.Errorf("text-order sampling mark %d: %w", i, err)
			}
			to.samples.Set(cnt, sa/dens)
			cnt++
		}
	}
	to.marked, err = builder.Finalize()
	if err != nil {
		return nil, fmt.Errorf("text-order sampling: %w", err)
	}
	return to, nil
}

// IsSampled reports whether slot i is marked.
func (to *TextOrderSampling) IsSampled(i uint64) bool {
	return to.marked.Get(i)
}

// Value returns the SA entry at a marked slot i.
func (to *TextOrderSampling) Value(i uint64) uint64 {
	return to.samples.Get(to.marked.Rank(i)) * to.dens
}

// Condensed returns the stored sample at sample index i without the
// density rescale, for use by the paired ISA support.
func (to *TextOrderSampling) Condensed(i uint64) uint64 {
	return to.samples.Get(i)
}

// Len returns the suffix array length.
func (to *TextOrderSampling) Len() uint64 {
	return to.n
}

// Samples returns the number of marked slots.
func (to *TextOrderSampling) Samples() uint64 {
	return to.samples.Len()
}

// Density returns the sampling density.
func (to *TextOrderSampling) Density() uint64 {
	return to.dens
}

// Strategy returns StrategyTextOrder.
func (to *TextOrderSampling) Strategy() Strategy {
	return StrategyTextOrder
}

// Marked exposes the marking vector for the paired ISA support.
func (to *TextOrderSampling) Marked() *encoding.SparseBitVector {
	return to.marked
}

// Equal reports deep value equality.
func (to *TextOrderSampling) Equal(other *TextOrderSampling) bool {
	return to.dens == other.dens && to.n == other.n &&
		to.samples.Equal(other.samples) && to.marked.Equal(other.marked)
}

// WriteTo serializes the sampling and reports the number of bytes written.
func (to *TextOrderSampling) WriteTo(w io.Writer) (int64, error) {
	written, err := writeSamplingHeader(w, StrategyTextOrder, to.dens, to.n)
	if err != nil {
		return written, err
	}
	n, err := to.samples.WriteTo(w)
	written += n
	if err != nil {
		return written, err
	}
	n, err = to.marked.WriteTo(w)
	written += n
	return written, err
}

// ReadFrom deserializes a sampling previously written with WriteTo and
// re-wires the marking vector's internal views.
func (to *TextOrderSampling) ReadFrom(r io.Reader) (int64, error) {
	s, dens, n, read, err := readSamplingHeader(r)
	if err != nil {
		return read, err
	}
	if s != StrategyTextOrder {
		return read, fmt.Errorf("expected %v sampling, got %v: %w",
			StrategyTextOrder, s, common.ErrUnknownStrategy)
	}
	to.dens = dens
	to.n = n
	m, err := to.readBody(r)
	read += m
	return read, err
}

func (to *TextOrderSampling) readBody(r io.Reader) (int64, error) {
	to.samples = &encoding.IntVector{}
	read, err := to.samples.ReadFrom(r)
	if err != nil {
		return read, err
	}
	to.marked = &encoding.SparseBitVector{}
	m, err := to.marked.ReadFrom(r)
	read += m
	return read, err
}

type textOrderJSON struct {
	Strategy string                    `json:"strategy"`
	Density  uint64                    `json:"density"`
	Length   uint64                    `json:"length"`
	Samples  *encoding.IntVector       `json:"samples"`
	Marked   *encoding.SparseBitVector `json:"marked"`
}

// MarshalJSON implements the named-field serialization form.
func (to *TextOrderSampling) MarshalJSON() ([]byte, error) {
	return json.Marshal(textOrderJSON{
		Strategy: StrategyTextOrder.String(),
		Density:  to.dens,
		Length:   to.n,
		Samples:  to.samples,
		Marked:   to.marked,
	})
}

// UnmarshalJSON implements the named-field deserialization form.
func (to *TextOrderSampling) UnmarshalJSON(data []byte) error {
	v := textOrderJSON{Samples: &encoding.IntVector{}, Marked: &encoding.SparseBitVector{}}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Density == 0 {
		return common.ErrInvalidDensity
	}
	to.dens = v.Density
	to.n = v.Length
	to.samples = v.Samples
	to.marked = v.Marked
	return nil
}
