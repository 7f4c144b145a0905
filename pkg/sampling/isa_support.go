package sampling

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/internal/encoding"
)

// TextOrderISASupport answers ISA queries from a text-order SA sampling
// without storing ISA entries. The sampling's condensed values form a
// permutation of the sample indices; inverting it and selecting into the
// marking vector recovers the SA slot of any sampled text position.
type TextOrderISASupport struct {
	sa  *TextOrderSampling
	inv *encoding.InvPerm
}

// NewTextOrderISASupport builds inverse-permutation support over the
// sampling's condensed values. The support keeps a back-reference to sa.
func NewTextOrderISASupport(sa *TextOrderSampling) (*TextOrderISASupport, error) {
	inv, err := encoding.NewInvPerm(sa.samples)
	if err != nil {
		return nil, fmt.Errorf("text-order isa support: %w", err)
	}
	return &TextOrderISASupport{sa: sa, inv: inv}, nil
}

// SetSampling re-wires the back-reference after the sampling is relocated
// or reloaded.
func (ts *TextOrderISASupport) SetSampling(sa *TextOrderSampling) {
	ts.sa = sa
	ts.inv.SetPerm(sa.samples)
}

// Value returns the ISA sample covering text position i.
func (ts *TextOrderISASupport) Value(i uint64) uint64 {
	return ts.sa.marked.Select(ts.inv.Inv(i/ts.sa.dens) + 1)
}

// SampleLEQ returns the rightmost ISA sample at or before text position i
// and the position it covers.
func (ts *TextOrderISASupport) SampleLEQ(i uint64) (uint64, uint64) {
	ci := i / ts.sa.dens
	return ts.sa.marked.Select(ts.inv.Inv(ci) + 1), ci * ts.sa.dens
}

// SampleGEQ returns the leftmost ISA sample strictly after i's covering
// sample, wrapping modulo the sample count, and the position it covers.
func (ts *TextOrderISASupport) SampleGEQ(i uint64) (uint64, uint64) {
	ci := (i/ts.sa.dens + 1) % ts.inv.Len()
	return ts.sa.marked.Select(ts.inv.Inv(ci) + 1), ci * ts.sa.dens
}

// Density returns the paired sampling's density.
func (ts *TextOrderISASupport) Density() uint64 {
	return ts.sa.dens
}

// Equal reports whether the auxiliary structures match. The paired
// samplings are compared by the caller.
func (ts *TextOrderISASupport) Equal(other *TextOrderISASupport) bool {
	return ts.inv.Equal(other.inv)
}

// WriteTo serializes the auxiliary inverse-permutation support. The paired
// sampling is serialized by its owner.
func (ts *TextOrderISASupport) WriteTo(w io.Writer) (int64, error) {
	written, err := writeSamplingHeader(w, isaKindTextOrder, ts.sa.dens, ts.sa.n)
	if err != nil {
		return written, err
	}
	n, err := ts.inv.WriteTo(w)
	written += n
	return written, err
}

// Load deserializes support previously written with WriteTo and re-wires
// it against sa, which must be the sampling it was built from.
func (ts *TextOrderISASupport) Load(r io.Reader, sa *TextOrderSampling) (int64, error) {
	s, dens, n, read, err := readSamplingHeader(r)
	if err != nil {
		return read, err
	}
	if s != isaKindTextOrder {
		return read, fmt.Errorf("expected text-order isa support, got tag %#x: %w",
			uint8(s), common.ErrUnknownStrategy)
	}
	if dens != sa.dens || n != sa.n {
		return read, fmt.Errorf("support built for dens=%d n=%d, sampling has dens=%d n=%d: %w",
			dens, n, sa.dens, sa.n, common.ErrCorrupt)
	}
	ts.inv = &encoding.InvPerm{}
	m, err := ts.inv.ReadFrom(r)
	read += m
	if err != nil {
		return read, err
	}
	ts.SetSampling(sa)
	return read, nil
}

type textOrderISASupportJSON struct {
	Density uint64            `json:"density"`
	Length  uint64            `json:"length"`
	Inv     *encoding.InvPerm `json:"inv"`
}

// MarshalJSON implements the named-field serialization form. The paired
// sampling is serialized by its owner.
func (ts *TextOrderISASupport) MarshalJSON() ([]byte, error) {
	return json.Marshal(textOrderISASupportJSON{
		Density: ts.sa.dens,
		Length:  ts.sa.n,
		Inv:     ts.inv,
	})
}

// UnmarshalJSON implements the named-field deserialization form. The caller
// must re-wire the support with SetSampling before use.
func (ts *TextOrderISASupport) UnmarshalJSON(data []byte) error {
	v := textOrderISASupportJSON{Inv: &encoding.InvPerm{}}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Density == 0 {
		return common.ErrInvalidDensity
	}
	ts.inv = v.Inv
	ts.sa = nil
	return nil
}

// FuzzyISASupport answers ISA queries from a fuzzy SA sampling. All state
// lives in the sampling itself; the support only adds the nearest-sample
// adjustment that fuzzy marking needs because windows are not marked at an
// exact stride.
type FuzzyISASupport struct {
	sa *FuzzySampling
}

// NewFuzzyISASupport pairs the support with sa.
func NewFuzzyISASupport(sa *FuzzySampling) (*FuzzyISASupport, error) {
	return &FuzzyISASupport{sa: sa}, nil
}

// SetSampling re-wires the back-reference after the sampling is relocated
// or reloaded.
func (fsup *FuzzyISASupport) SetSampling(sa *FuzzySampling) {
	fsup.sa = sa
}

// Value returns the sample rank chosen for window i.
func (fsup *FuzzyISASupport) Value(i uint64) uint64 {
	return fsup.sa.Inv(i)
}

// SampleLEQ returns the rightmost ISA sample at or before text position i
// and the position it covers. The window's marked position may lie past i,
// in which case the previous window (wrapping) is taken.
func (fsup *FuzzyISASupport) SampleLEQ(i uint64) (uint64, uint64) {
	ci := i / fsup.sa.dens
	j := fsup.sa.markedISA.Select(ci + 1)
	if j > i {
		if ci > 0 {
			ci--
		} else {
			ci = fsup.sa.Windows() - 1
		}
		j = fsup.sa.markedISA.Select(ci + 1)
	}
	return fsup.sa.markedSA.Select(fsup.sa.Inv(ci) + 1), j
}

// SampleGEQ returns the leftmost ISA sample at or after text position i and
// the position it covers, stepping to the next window (wrapping) when the
// covering window's mark lies before i.
func (fsup *FuzzyISASupport) SampleGEQ(i uint64) (uint64, uint64) {
	ci := i / fsup.sa.dens
	j := fsup.sa.markedISA.Select(ci + 1)
	if j < i {
		if ci < fsup.sa.Windows()-1 {
			ci++
		} else {
			ci = 0
		}
		j = fsup.sa.markedISA.Select(ci + 1)
	}
	return fsup.sa.markedSA.Select(fsup.sa.Inv(ci) + 1), j
}

// Density returns the paired sampling's density.
func (fsup *FuzzyISASupport) Density() uint64 {
	return fsup.sa.dens
}

// Equal reports whether the supports are paired with equal samplings.
func (fsup *FuzzyISASupport) Equal(other *FuzzyISASupport) bool {
	return fsup.sa.Equal(other.sa)
}

// WriteTo serializes the support header. All recoverable state lives in
// the paired sampling.
func (fsup *FuzzyISASupport) WriteTo(w io.Writer) (int64, error) {
	return writeSamplingHeader(w, isaKindFuzzy, fsup.sa.dens, fsup.sa.n)
}

// Load deserializes support previously written with WriteTo and re-wires
// it against sa, which must be the sampling it was built from.
func (fsup *FuzzyISASupport) Load(r io.Reader, sa *FuzzySampling) (int64, error) {
	s, dens, n, read, err := readSamplingHeader(r)
	if err != nil {
		return read, err
	}
	if s != isaKindFuzzy {
		return read, fmt.Errorf("expected fuzzy isa support, got tag %#x: %w",
			uint8(s), common.ErrUnknownStrategy)
	}
	if dens != sa.dens || n != sa.n {
		return read, fmt.Errorf("support built for dens=%d n=%d, sampling has dens=%d n=%d: %w",
			dens, n, sa.dens, sa.n, common.ErrCorrupt)
	}
	fsup.SetSampling(sa)
	return read, nil
}

type fuzzyISASupportJSON struct {
	Density uint64 `json:"density"`
	Length  uint64 `json:"length"`
}

// MarshalJSON implements the named-field serialization form. All
// recoverable state lives in the paired sampling.
func (fsup *FuzzyISASupport) MarshalJSON() ([]byte, error) {
	return json.Marshal(fuzzyISASupportJSON{
		Density: fsup.sa.dens,
		Length:  fsup.sa.n,
	})
}

// UnmarshalJSON implements the named-field deserialization form. The caller
// must re-wire the support with SetSampling before use.
func (fsup *FuzzyISASupport) UnmarshalJSON(data []byte) error {
	var v fuzzyISASupportJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Density == 0 {
		return common.ErrInvalidDensity
	}
	fsup.sa = nil
	return nil
}
