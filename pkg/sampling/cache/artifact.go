package cache

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"

	"github.com/gosuffix/go-csa-sampling/internal/common"
	"github.com/gosuffix/go-csa-sampling/internal/encoding"
)

// Artifact file layout (little-endian, 64-byte header):
//
//	0  magic       uint32
//	4  version     uint16
//	6  flags       uint16
//	8  width       uint8   (0 = raw byte blob)
//	16 count       uint64  (entries; bytes when width == 0)
//	24 payloadLen  uint64  (stored payload bytes)
//	32 blake3      [32]byte (sum of the stored payload)
//	64 payload
const artifactHeaderSize = 64

func packWords(words []uint64) []byte {
	buf := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return buf
}

func (c *Cache) writeArtifact(key string, width uint8, count uint64, raw []byte) error {
	payload := raw
	flags := uint16(0)
	if c.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		payload = enc.EncodeAll(raw, nil)
		_ = enc.Close()
		flags |= common.FlagZstd
	}
	sum := computeBLAKE3(payload)

	hdr := make([]byte, artifactHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], common.MagicArtifact)
	binary.LittleEndian.PutUint16(hdr[4:6], common.VersionArtifact)
	binary.LittleEndian.PutUint16(hdr[6:8], flags)
	hdr[8] = width
	binary.LittleEndian.PutUint64(hdr[16:24], count)
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(len(payload)))
	copy(hdr[32:32+common.ChecksumSize], sum[:])

	af, err := newAtomicFile(c.Path(key))
	if err != nil {
		return err
	}
	if _, err := af.Write(hdr); err != nil {
		_ = af.Abort()
		return fmt.Errorf("write artifact header: %w", err)
	}
	if _, err := af.Write(payload); err != nil {
		_ = af.Abort()
		return fmt.Errorf("write artifact payload: %w", err)
	}
	if err := af.Commit(); err != nil {
		return err
	}

	c.logger.Debug("artifact written", "key", key, "entries", count,
		"bytes", artifactHeaderSize+len(payload), "compressed", c.compress)
	return c.register(key, int64(artifactHeaderSize+len(payload)), sum)
}

// WriteUint64s stores values as a bit-packed artifact of the given width.
func (c *Cache) WriteUint64s(key string, width uint8, values []uint64) error {
	iv := encoding.NewIntVector(uint64(len(values)), width)
	for i, v := range values {
		iv.Set(uint64(i), v)
	}
	return c.WriteIntVector(key, iv)
}

// WriteIntVector stores a bit-packed vector as an artifact.
func (c *Cache) WriteIntVector(key string, iv *encoding.IntVector) error {
	return c.writeArtifact(key, iv.Width(), iv.Len(), packWords(iv.Words()))
}

// WriteBlob stores raw bytes as an artifact.
func (c *Cache) WriteBlob(key string, data []byte) error {
	return c.writeArtifact(key, 0, uint64(len(data)), data)
}

// ReadBlob loads a raw-byte artifact.
func (c *Cache) ReadBlob(key string) ([]byte, error) {
	r, err := c.OpenReader(key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if r.width != 0 {
		return nil, fmt.Errorf("artifact %q is not a blob: %w", key, common.ErrCorrupt)
	}
	out := make([]byte, r.count)
	copy(out, r.payload)
	return out, nil
}

// ReadIntVector loads a bit-packed artifact fully into memory.
func (c *Cache) ReadIntVector(key string) (*encoding.IntVector, error) {
	r, err := c.OpenReader(key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	iv := encoding.NewIntVector(r.count, r.width)
	for i := uint64(0); i < r.count; i++ {
		iv.Set(i, r.Get(i))
	}
	return iv, nil
}

// Reader provides sequential and random access to a bit-packed artifact.
// Uncompressed artifacts are memory-mapped; compressed ones are inflated
// into memory on open.
type Reader struct {
	f       *os.File
	mapped  []byte
	payload []byte
	width   uint8
	count   uint64
	pos     uint64
}

// OpenReader opens the artifact for key and verifies its checksum.
func (c *Cache) OpenReader(key string) (*Reader, error) {
	f, err := os.Open(c.Path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("open artifact %q: %w", key, common.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact %q: %w", key, err)
	}

	hdr := make([]byte, artifactHeaderSize)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read artifact header %q: %w", key, err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != common.MagicArtifact {
		_ = f.Close()
		return nil, fmt.Errorf("artifact %q: %w", key, common.ErrInvalidMagic)
	}
	if binary.LittleEndian.Uint16(hdr[4:6]) != common.VersionArtifact {
		_ = f.Close()
		return nil, fmt.Errorf("artifact %q: %w", key, common.ErrUnsupportedVersion)
	}
	flags := binary.LittleEndian.Uint16(hdr[6:8])
	r := &Reader{
		f:     f,
		width: hdr[8],
		count: binary.LittleEndian.Uint64(hdr[16:24]),
	}
	payloadLen := binary.LittleEndian.Uint64(hdr[24:32])
	var want [common.ChecksumSize]byte
	copy(want[:], hdr[32:32+common.ChecksumSize])

	var stored []byte
	if flags&common.FlagZstd == 0 {
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("stat artifact %q: %w", key, err)
		}
		if uint64(fi.Size()) < artifactHeaderSize+payloadLen {
			_ = f.Close()
			return nil, fmt.Errorf("artifact %q truncated: %w", key, common.ErrCorrupt)
		}
		mapped, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("mmap artifact %q: %w", key, err)
		}
		r.mapped = mapped
		stored = mapped[artifactHeaderSize : artifactHeaderSize+payloadLen]
		r.payload = stored
	} else {
		stored = make([]byte, payloadLen)
		if _, err := f.ReadAt(stored, artifactHeaderSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("read artifact payload %q: %w", key, err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		raw, err := dec.DecodeAll(stored, nil)
		dec.Close()
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("decompress artifact %q: %w", key, err)
		}
		r.payload = raw
	}

	if computeBLAKE3(stored) != want {
		_ = r.Close()
		return nil, fmt.Errorf("artifact %q: %w", key, common.ErrChecksumMismatch)
	}
	return r, nil
}

// Size returns the number of entries.
func (r *Reader) Size() uint64 {
	return r.count
}

// Width returns the entry bit width.
func (r *Reader) Width() uint8 {
	return r.width
}

// Get returns the i-th entry.
func (r *Reader) Get(i uint64) uint64 {
	w := uint64(r.width)
	bitPos := i * w
	byteIdx := (bitPos / 64) * 8
	bitOff := bitPos % 64

	val := r.word(byteIdx) >> bitOff
	if bitOff+w > 64 {
		spill := bitOff + w - 64
		val |= (r.word(byteIdx+8) & ((uint64(1) << spill) - 1)) << (w - spill)
	}
	if w < 64 {
		val &= (uint64(1) << w) - 1
	}
	return val
}

func (r *Reader) word(byteIdx uint64) uint64 {
	if byteIdx+8 <= uint64(len(r.payload)) {
		return binary.LittleEndian.Uint64(r.payload[byteIdx:])
	}
	var buf [8]byte
	if byteIdx < uint64(len(r.payload)) {
		copy(buf[:], r.payload[byteIdx:])
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// Next returns the next entry in sequence, or false when exhausted.
func (r *Reader) Next() (uint64, bool) {
	if r.pos >= r.count {
		return 0, false
	}
	v := r.Get(r.pos)
	r.pos++
	return v, true
}

// Reset rewinds the sequential cursor.
func (r *Reader) Reset() {
	r.pos = 0
}

// ReadAll returns every entry.
func (r *Reader) ReadAll() []uint64 {
	out := make([]uint64, r.count)
	for i := uint64(0); i < r.count; i++ {
		out[i] = r.Get(i)
	}
	return out
}

// Close releases the mapping and file handle.
func (r *Reader) Close() error {
	var err error
	if r.mapped != nil {
		err = unix.Munmap(r.mapped)
		r.mapped = nil
	}
	if r.f != nil {
		if cerr := r.f.Close(); err == nil {
			err = cerr
		}
		r.f = nil
	}
	r.payload = nil
	return err
}
