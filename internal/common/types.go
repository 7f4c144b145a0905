package common

import (
	"errors"
)

// File format magic numbers (little-endian)
const (
	MagicArtifact uint32 = 0x46524153 // "SARF" in little-endian
	MagicSampling uint32 = 0x504D4153 // "SAMP" in little-endian
	MagicSparse   uint32 = 0x56445053 // "SPDV" in little-endian
)

// File format versions
const (
	VersionArtifact uint16 = 0x0100
	VersionSampling uint16 = 0x0100
)

// Artifact flags
const (
	FlagZstd uint16 = 1 << 0 // payload is zstd-compressed
)

// Cache keys for the artifacts consumed by the sampling strategies.
const (
	KeySA          = "sa"
	KeyISA         = "isa"
	KeySampleChars = "samplechars"
	KeyText        = "text"
)

// Cache layout
const (
	FileManifest  = "manifest.json"
	ArtifactExt   = ".art"
	TempKeyPrefix = "tmp."
)

// ChecksumSize is the size of the BLAKE3 payload sum stored in artifact headers.
const ChecksumSize = 32

// Common errors
var (
	ErrCorrupt            = errors.New("data corruption detected")
	ErrInvalidMagic       = errors.New("invalid file magic number")
	ErrUnsupportedVersion = errors.New("unsupported file version")
	ErrChecksumMismatch   = errors.New("BLAKE3 checksum mismatch")
	ErrArtifactNotFound   = errors.New("artifact not found in cache")

	// Builder misuse
	ErrBuilderCapacity = errors.New("builder capacity is larger than vector size")
	ErrBuilderFull     = errors.New("builder already holds its declared number of positions")
	ErrBuilderNotFull  = errors.New("builder has fewer positions than declared")
	ErrNonMonotonic    = errors.New("positions must be strictly increasing")
	ErrOutOfBounds     = errors.New("position out of bounds")

	// Sampling
	ErrInvalidDensity  = errors.New("sampling density must be positive")
	ErrNotPermutation  = errors.New("values do not form a permutation")
	ErrUnknownStrategy = errors.New("unknown sampling strategy")
)

// Logger provides structured logging.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)
