// Package sampling provides the space/time-tradeoff machinery of a
// compressed suffix-array index: strategies that retain a sparse subset of
// SA and ISA entries so that any entry can be recovered by bounded
// navigation between samples.
//
// Four interchangeable SA strategies share one contract (suffix-order,
// text-order, BWT-character and fuzzy marking), each paired with an ISA
// sampling variant that answers nearest-sample queries. Construction reads
// previously cached artifacts once; queries are read-only and safe for
// concurrent readers.
package sampling

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/pkg/sampling/cache"
)

// Strategy identifies an SA sampling variant. The set is closed: pairing
// with ISA support is decided by a static table over these tags.
type Strategy uint8

const (
	// StrategySuffixOrder retains every dens-th SA slot.
	StrategySuffixOrder Strategy = iota
	// StrategyTextOrder retains SA slots whose value is a multiple of the
	// density.
	StrategyTextOrder
	// StrategyBWTChar extends text-order marking with a sampled-character
	// set over the co-indexed BWT symbols.
	StrategyBWTChar
	// StrategyFuzzy retains one approximately order-preserving sample per
	// density-sized window of ISA positions.
	StrategyFuzzy
)

func (s Strategy) String() string {
	switch s {
	case StrategySuffixOrder:
		return "suffix-order"
	case StrategyTextOrder:
		return "text-order"
	case StrategyBWTChar:
		return "bwt-char"
	case StrategyFuzzy:
		return "fuzzy"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// SASampler is the contract shared by the SA sampling strategies.
type SASampler interface {
	// IsSampled reports whether SA slot i is retained.
	IsSampled(i uint64) bool
	// Value returns the SA entry at a sampled slot i.
	Value(i uint64) uint64
	// Len returns the length n of the underlying suffix array.
	Len() uint64
	// Samples returns the number of retained entries.
	Samples() uint64
	// Density returns the sampling density.
	Density() uint64
	// Strategy returns the variant tag.
	Strategy() Strategy

	io.WriterTo
}

// ISASampler answers inverse-suffix-array queries between samples.
type ISASampler interface {
	// Value returns the ISA sample covering text position i.
	Value(i uint64) uint64
	// SampleLEQ returns the rightmost ISA sample at or before i and its
	// text position.
	SampleLEQ(i uint64) (uint64, uint64)
	// SampleGEQ returns the leftmost ISA sample at or after i (wrapping
	// modulo the sample count) and its text position.
	SampleGEQ(i uint64) (uint64, uint64)
	// Density returns the sampling density, always equal to the paired SA
	// sampling's density.
	Density() uint64

	io.WriterTo
}

// samplingHeaderSize is the common serialized header for all strategies.
const samplingHeaderSize = 24

func writeSamplingHeader(w io.Writer, s Strategy, dens, n uint64) (int64, error) {
	var hdr [samplingHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], common.MagicSampling)
	binary.LittleEndian.PutUint16(hdr[4:6], common.VersionSampling)
	hdr[6] = uint8(s)
	binary.LittleEndian.PutUint64(hdr[8:16], dens)
	binary.LittleEndian.PutUint64(hdr[16:24], n)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("write sampling header: %w", err)
	}
	return samplingHeaderSize, nil
}

func readSamplingHeader(r io.Reader) (Strategy, uint64, uint64, int64, error) {
	var hdr [samplingHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("read sampling header: %w", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != common.MagicSampling {
		return 0, 0, 0, samplingHeaderSize, common.ErrInvalidMagic
	}
	if binary.LittleEndian.Uint16(hdr[4:6]) != common.VersionSampling {
		return 0, 0, 0, samplingHeaderSize, common.ErrUnsupportedVersion
	}
	s := Strategy(hdr[6])
	dens := binary.LittleEndian.Uint64(hdr[8:16])
	n := binary.LittleEndian.Uint64(hdr[16:24])
	if dens == 0 {
		return 0, 0, 0, samplingHeaderSize, common.ErrInvalidDensity
	}
	return s, dens, n, samplingHeaderSize, nil
}

// ReadSASampler deserializes any SA sampling previously written with its
// WriteTo, dispatching on the strategy tag.
func ReadSASampler(r io.Reader) (SASampler, error) {
	s, dens, n, _, err := readSamplingHeader(r)
	if err != nil {
		return nil, err
	}
	switch s {
	case StrategySuffixOrder:
		so := &SuffixOrderSampling{dens: dens, n: n}
		if _, err := so.readBody(r); err != nil {
			return nil, err
		}
		return so, nil
	case StrategyTextOrder:
		to := &TextOrderSampling{dens: dens, n: n}
		if _, err := to.readBody(r); err != nil {
			return nil, err
		}
		return to, nil
	case StrategyBWTChar:
		bs := &BWTSampling{dens: dens, n: n}
		if _, err := bs.readBody(r); err != nil {
			return nil, err
		}
		return bs, nil
	case StrategyFuzzy:
		fz := &FuzzySampling{dens: dens, n: n}
		if _, err := fz.readBody(r); err != nil {
			return nil, err
		}
		return fz, nil
	default:
		return nil, common.ErrUnknownStrategy
	}
}

// NewISASupport builds the ISA sampling paired with sa. Suffix-order and
// BWT-character marking pair with the direct ISA sampling (built from the
// cache at the same density); text-order and fuzzy marking pair with
// support structures deriving ISA values from the SA sampling itself.
// Densities on the two sides are equal by construction.
func NewISASupport(c *cache.Cache, sa SASampler) (ISASampler, error) {
	switch v := sa.(type) {
	case *SuffixOrderSampling:
		return NewISASampling(c, v.Density())
	case *BWTSampling:
		return NewISASampling(c, v.Density())
	case *TextOrderSampling:
		return NewTextOrderISASupport(v)
	case *FuzzySampling:
		return NewFuzzyISASupport(v)
	default:
		return nil, common.ErrUnknownStrategy
	}
}
