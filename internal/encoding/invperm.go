package encoding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/gosuffix/go-csa-sampling/internal/common"
)

// DefaultInvPermStride is the cycle-sampling stride for InvPerm.
const DefaultInvPermStride = 32

// InvPerm answers inverse lookups over a bit-packed permutation without
// storing the inverse explicitly. Every stride-th element of each long
// cycle is marked and keeps a pointer stride steps back, so a query walks
// at most two strides along the cycle.
//
// InvPerm is a view: it holds a non-owning reference to the permutation and
// must be re-wired with SetPerm whenever the permutation is relocated or
// reloaded.
type InvPerm struct {
	perm   *IntVector
	stride uint64
	marked *BitVector
	rank   *RankSelect
	back   *IntVector
}

// NewInvPerm builds inverse-lookup support with the default stride.
func NewInvPerm(perm *IntVector) (*InvPerm, error) {
	return NewInvPermStride(perm, DefaultInvPermStride)
}

// NewInvPermStride builds inverse-lookup support over perm, which must be a
// permutation of [0, perm.Len()).
func NewInvPermStride(perm *IntVector, stride uint64) (*InvPerm, error) {
	if stride == 0 {
		stride = DefaultInvPermStride
	}
	n := perm.Len()

	seen := bitset.New(uint(n))
	for i := uint64(0); i < n; i++ {
		v := perm.Get(i)
		if v >= n || seen.Test(uint(v)) {
			return nil, fmt.Errorf("invperm value %d at %d: %w", v, i, common.ErrNotPermutation)
		}
		seen.Set(uint(v))
	}

	ip := &InvPerm{
		perm:   perm,
		stride: stride,
		marked: NewBitVector(n),
	}

	// Walk each cycle; on cycles longer than the stride, mark every
	// stride-th element and remember the element stride steps back.
	backAt := make(map[uint64]uint64)
	visited := bitset.New(uint(n))
	cycle := make([]uint64, 0, stride*2)
	for start := uint64(0); start < n; start++ {
		if visited.Test(uint(start)) {
			continue
		}
		cycle = cycle[:0]
		for j := start; !visited.Test(uint(j)); j = perm.Get(j) {
			visited.Set(uint(j))
			cycle = append(cycle, j)
		}
		clen := uint64(len(cycle))
		if clen <= stride {
			continue
		}
		for k := uint64(0); k < clen; k += stride {
			ip.marked.Set(cycle[k])
			backAt[cycle[k]] = cycle[(k+clen-stride)%clen]
		}
	}

	ip.rank = NewRankSelect(ip.marked)
	ip.back = NewIntVector(uint64(len(backAt)), WidthFor(n))
	for pos, b := range backAt {
		ip.back.Set(ip.rank.Rank1(pos), b)
	}
	return ip, nil
}

// SetPerm re-wires the view to point at perm. The auxiliary structures are
// only valid for a permutation with identical contents.
func (ip *InvPerm) SetPerm(perm *IntVector) {
	ip.perm = perm
}

// Len returns the permutation length.
func (ip *InvPerm) Len() uint64 {
	return ip.perm.Len()
}

// Get returns the forward permutation value at i.
func (ip *InvPerm) Get(i uint64) uint64 {
	return ip.perm.Get(i)
}

// Inv returns the position j with perm[j] == v.
func (ip *InvPerm) Inv(v uint64) uint64 {
	j := v
	if ip.marked.Get(v) {
		// Jump stride steps back on the cycle, then walk forward.
		j = ip.back.Get(ip.rank.Rank1(v))
	}
	for {
		next := ip.perm.Get(j)
		if next == v {
			return j
		}
		if ip.marked.Get(next) {
			j = ip.back.Get(ip.rank.Rank1(next))
			for ip.perm.Get(j) != v {
				j = ip.perm.Get(j)
			}
			return j
		}
		j = next
	}
}

// Equal reports whether two views carry identical auxiliary structures. The
// referenced permutations are compared by the caller.
func (ip *InvPerm) Equal(other *InvPerm) bool {
	return ip.stride == other.stride &&
		ip.marked.Equal(other.marked) &&
		ip.back.Equal(other.back)
}

// WriteTo serializes the auxiliary structures. The referenced permutation
// is serialized by its owner.
func (ip *InvPerm) WriteTo(w io.Writer) (int64, error) {
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], ip.stride)
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("write invperm stride: %w", err)
	}
	written := int64(8)

	n, err := ip.marked.WriteTo(w)
	written += n
	if err != nil {
		return written, err
	}
	n, err = ip.rank.WriteTo(w)
	written += n
	if err != nil {
		return written, err
	}
	n, err = ip.back.WriteTo(w)
	written += n
	return written, err
}

// ReadFrom deserializes the auxiliary structures. The caller must re-wire
// the view with SetPerm before use.
func (ip *InvPerm) ReadFrom(r io.Reader) (int64, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("read invperm stride: %w", err)
	}
	read := int64(8)
	ip.stride = binary.LittleEndian.Uint64(hdr[:])

	ip.marked = &BitVector{}
	n, err := ip.marked.ReadFrom(r)
	read += n
	if err != nil {
		return read, err
	}
	ip.rank = &RankSelect{}
	n, err = ip.rank.ReadFrom(r)
	read += n
	if err != nil {
		return read, err
	}
	ip.rank.SetVector(ip.marked)
	ip.back = &IntVector{}
	n, err = ip.back.ReadFrom(r)
	read += n
	if err != nil {
		return read, err
	}
	ip.perm = nil
	return read, nil
}

type invPermJSON struct {
	Stride uint64      `json:"stride"`
	Marked *BitVector  `json:"marked"`
	Rank   *RankSelect `json:"rank"`
	Back   *IntVector  `json:"back"`
}

// MarshalJSON implements the named-field serialization form.
func (ip *InvPerm) MarshalJSON() ([]byte, error) {
	return json.Marshal(invPermJSON{
		Stride: ip.stride,
		Marked: ip.marked,
		Rank:   ip.rank,
		Back:   ip.back,
	})
}

// UnmarshalJSON implements the named-field deserialization form. The caller
// must re-wire the view with SetPerm before use.
func (ip *InvPerm) UnmarshalJSON(data []byte) error {
	v := invPermJSON{Marked: &BitVector{}, Rank: &RankSelect{}, Back: &IntVector{}}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Marked == nil || v.Rank == nil || v.Back == nil {
		return fmt.Errorf("invperm fields: %w", common.ErrCorrupt)
	}
	ip.stride = v.Stride
	ip.marked = v.Marked
	ip.rank = v.Rank
	ip.back = v.Back
	ip.rank.SetVector(ip.marked)
	ip.perm = nil
	return nil
}
