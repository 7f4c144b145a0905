package sampling

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/internal/encoding"
	"github.com/gosuffix/go-csa-sampling/pkg/sampling/cache"
)

// FuzzySampling picks one representative per dens-sized window of text
// positions, preferring candidates that keep the chosen SA slots in
// increasing order. Both marking vectors are sparse encoded; the sample
// ranks are recovered through an inverse-permutation structure instead of
// stored SA values.
type FuzzySampling struct {
	dens      uint64
	n         uint64
	markedSA  *encoding.SparseBitVector
	markedISA *encoding.SparseBitVector
	invPerm   *encoding.IntVector
	invSup    *encoding.InvPerm
	runs      uint64
}

// NewFuzzySampling builds the sampling from the cached ISA, constructing
// the ISA first if it is absent. Per window the offset with the smallest
// ISA value at or above the previous window's choice is taken; when no
// offset qualifies the increasing run breaks and the window falls back to
// its overall minimum.
func NewFuzzySampling(c *cache.Cache, dens uint64) (*FuzzySampling, error) {
	if dens == 0 {
		return nil, common.ErrInvalidDensity
	}
	if err := cache.ConstructISA(c); err != nil {
		return nil, fmt.Errorf("fuzzy sampling: %w", err)
	}
	if err := c.Register(common.KeySA); err != nil {
		return nil, fmt.Errorf("fuzzy sampling: %w", err)
	}
	isa, err := c.OpenReader(common.KeyISA)
	if err != nil {
		return nil, fmt.Errorf("fuzzy sampling: %w", err)
	}
	defer isa.Close()

	n := isa.Size()
	windows := (n + dens - 1) / dens
	fs := &FuzzySampling{dens: dens, n: n, runs: 1}

	isaBuilder, err := encoding.NewSparseBuilder(n, windows)
	if err != nil {
		return nil, fmt.Errorf("fuzzy sampling: %w", err)
	}
	markedSA := bitset.New(uint(n))
	invPerm := encoding.NewIntVector(windows, encoding.WidthFor(n))

	window := make([]uint64, 0, dens)
	minPrevVal := uint64(0)
	cnt := uint64(0)
	for i := uint64(0); i < n; i += dens {
		window = window[:0]
		for j := i; j < i+dens && j < n; j++ {
			v, ok := isa.Next()
			if !ok {
				return nil, fmt.Errorf("fuzzy sampling at %d: %w", j, common.ErrCorrupt)
			}
			window = append(window, v)
		}
		posMin := uint64(0)
		posCnd := n
		if window[0] >= minPrevVal {
			posCnd = 0
		}
		for j := uint64(1); j < uint64(len(window)); j++ {
			if window[j] < window[posMin] {
				posMin = j
			}
			if window[j] >= minPrevVal && (posCnd == n || window[j] < window[posCnd]) {
				posCnd = j
			}
		}
		if posCnd == n {
			// increasing sequence can not be extended
			posCnd = posMin
			fs.runs++
		}
		minPrevVal = window[posCnd]
		if err := isaBuilder.Set(i + posCnd); err != nil {
			return nil, fmt.Errorf("fuzzy sampling mark %d: %w", i+posCnd, err)
		}
		invPerm.Set(cnt, minPrevVal)
		markedSA.Set(uint(minPrevVal))
		cnt++
	}
	fs.markedISA, err = isaBuilder.Finalize()
	if err != nil {
		return nil, fmt.Errorf("fuzzy sampling: %w", err)
	}

	// Rewrite staged values as sample ranks within the SA-side marks.
	markedSABits := encoding.FromBitSet(markedSA, n)
	rank := encoding.NewRankSelect(markedSABits)
	for i := uint64(0); i < invPerm.Len(); i++ {
		invPerm.Set(i, rank.Rank1(invPerm.Get(i)))
	}
	invPerm = invPerm.Compacted()

	fs.markedSA, err = encoding.NewSparseFromBitVector(markedSABits)
	if err != nil {
		return nil, fmt.Errorf("fuzzy sampling: %w", err)
	}

	// The inverse-permutation support is built from a materialized
	// artifact, round-tripped through a uniquely named cache slot.
	tmpKey := c.TempKey("fuzzyisasamples")
	if err := c.WriteIntVector(tmpKey, invPerm); err != nil {
		return nil, fmt.Errorf("fuzzy sampling: %w", err)
	}
	defer c.Remove(tmpKey)
	fs.invPerm, err = c.ReadIntVector(tmpKey)
	if err != nil {
		return nil, fmt.Errorf("fuzzy sampling: %w", err)
	}
	fs.invSup, err = encoding.NewInvPerm(fs.invPerm)
	if err != nil {
		return nil, fmt.Errorf("fuzzy sampling: %w", err)
	}
	return fs, nil
}

// IsSampled reports whether SA slot i is marked.
func (fs *FuzzySampling) IsSampled(i uint64) bool {
	return fs.markedSA.Get(i)
}

// Value returns the SA entry at a marked slot i: the slot's sample rank is
// mapped back to its window, whose marked text position is the answer.
func (fs *FuzzySampling) Value(i uint64) uint64 {
	return fs.markedISA.Select(fs.invSup.Inv(fs.markedSA.Rank(i)) + 1)
}

// Inv returns the sample rank chosen for window i.
func (fs *FuzzySampling) Inv(i uint64) uint64 {
	return fs.invPerm.Get(i)
}

// Len returns the suffix array length.
func (fs *FuzzySampling) Len() uint64 {
	return fs.n
}

// Samples returns the number of marked slots, one per window.
func (fs *FuzzySampling) Samples() uint64 {
	return fs.invPerm.Len()
}

// Windows returns the number of sampling windows.
func (fs *FuzzySampling) Windows() uint64 {
	return fs.invPerm.Len()
}

// Runs returns the number of increasing runs among the chosen SA slots.
// Diagnostic only.
func (fs *FuzzySampling) Runs() uint64 {
	return fs.runs
}

// Density returns the sampling density.
func (fs *FuzzySampling) Density() uint64 {
	return fs.dens
}

// Strategy returns StrategyFuzzy.
func (fs *FuzzySampling) Strategy() Strategy {
	return StrategyFuzzy
}

// MarkedISA exposes the ISA-side marking vector for the paired support.
func (fs *FuzzySampling) MarkedISA() *encoding.SparseBitVector {
	return fs.markedISA
}

// MarkedSA exposes the SA-side marking vector for the paired support.
func (fs *FuzzySampling) MarkedSA() *encoding.SparseBitVector {
	return fs.markedSA
}

// Equal reports deep value equality over all owned components.
func (fs *FuzzySampling) Equal(other *FuzzySampling) bool {
	return fs.dens == other.dens && fs.n == other.n &&
		fs.markedSA.Equal(other.markedSA) &&
		fs.markedISA.Equal(other.markedISA) &&
		fs.invPerm.Equal(other.invPerm) &&
		fs.invSup.Equal(other.invSup)
}

// WriteTo serializes the sampling and reports the number of bytes written.
// The runs counter is not persisted.
func (fs *FuzzySampling) WriteTo(w io.Writer) (int64, error) {
	written, err := writeSamplingHeader(w, StrategyFuzzy, fs.dens, fs.n)
	if err != nil {
		return written, err
	}
	for _, wt := range []io.WriterTo{fs.markedSA, fs.markedISA, fs.invPerm, fs.invSup} {
		n, err := wt.WriteTo(w)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// ReadFrom deserializes a sampling previously written with WriteTo and
// re-wires the inverse-permutation view.
func (fs *FuzzySampling) ReadFrom(r io.Reader) (int64, error) {
	s, dens, n, read, err := readSamplingHeader(r)
	if err != nil {
		return read, err
	}
	if s != StrategyFuzzy {
		return read, fmt.Errorf("expected %v sampling, got %v: %w",
			StrategyFuzzy, s, common.ErrUnknownStrategy)
	}
	fs.dens = dens
	fs.n = n
	m, err := fs.readBody(r)
	read += m
	return read, err
}

func (fs *FuzzySampling) readBody(r io.Reader) (int64, error) {
	fs.runs = 0
	fs.markedSA = &encoding.SparseBitVector{}
	read, err := fs.markedSA.ReadFrom(r)
	if err != nil {
		return read, err
	}
	fs.markedISA = &encoding.SparseBitVector{}
	m, err := fs.markedISA.ReadFrom(r)
	read += m
	if err != nil {
		return read, err
	}
	fs.invPerm = &encoding.IntVector{}
	m, err = fs.invPerm.ReadFrom(r)
	read += m
	if err != nil {
		return read, err
	}
	fs.invSup = &encoding.InvPerm{}
	m, err = fs.invSup.ReadFrom(r)
	read += m
	if err != nil {
		return read, err
	}
	fs.invSup.SetPerm(fs.invPerm)
	return read, nil
}

type fuzzyJSON struct {
	Strategy  string                    `json:"strategy"`
	Density   uint64                    `json:"density"`
	Length    uint64                    `json:"length"`
	MarkedSA  *encoding.SparseBitVector `json:"marked_sa"`
	MarkedISA *encoding.SparseBitVector `json:"marked_isa"`
	InvPerm   *encoding.IntVector       `json:"inv_perm"`
	InvSup    *encoding.InvPerm         `json:"inv_sup"`
}

// MarshalJSON implements the named-field serialization form.
func (fs *FuzzySampling) MarshalJSON() ([]byte, error) {
	return json.Marshal(fuzzyJSON{
		Strategy:  StrategyFuzzy.String(),
		Density:   fs.dens,
		Length:    fs.n,
		MarkedSA:  fs.markedSA,
		MarkedISA: fs.markedISA,
		InvPerm:   fs.invPerm,
		InvSup:    fs.invSup,
	})
}

// UnmarshalJSON implements the named-field deserialization form and
// restores the inverse-permutation back-reference.
func (fs *FuzzySampling) UnmarshalJSON(data []byte) error {
	v := fuzzyJSON{
		MarkedSA:  &encoding.SparseBitVector{},
		MarkedISA: &encoding.SparseBitVector{},
		InvPerm:   &encoding.IntVector{},
		InvSup:    &encoding.InvPerm{},
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Density == 0 {
		return common.ErrInvalidDensity
	}
	fs.dens = v.Density
	fs.n = v.Length
	fs.markedSA = v.MarkedSA
	fs.markedISA = v.MarkedISA
	fs.invPerm = v.InvPerm
	fs.invSup = v.InvSup
	fs.invSup.SetPerm(fs.invPerm)
	fs.runs = 0
	return nil
}
