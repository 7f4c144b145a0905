// Package cache manages the persisted artifacts (suffix array, inverse
// suffix array, BWT, sampled-character set) that the sampling strategies
// consume. Artifacts are bit-packed integer sequences stored one per file
// under a cache directory, checksummed with BLAKE3 and registered in a JSON
// manifest.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosuffix/go-csa-sampling/internal/common"
)

// Config controls a cache directory.
type Config struct {
	// Dir is the cache directory. Required.
	Dir string

	// Compression enables zstd compression of artifact payloads.
	Compression bool

	// Logger receives structured construction logs. Defaults to a null
	// logger.
	Logger common.Logger
}

// Cache is a directory-backed artifact store.
type Cache struct {
	dir      string
	compress bool
	logger   common.Logger

	mu       sync.Mutex
	manifest manifest
	tempSeq  atomic.Uint64
}

type artifactInfo struct {
	Size    int64  `json:"size"`
	Blake3  string `json:"blake3"`
	Created int64  `json:"created"`
}

type manifest struct {
	Artifacts map[string]artifactInfo `json:"artifacts"`
}

// New opens (or creates) a cache directory.
func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache: directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = common.NewNullLogger()
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	c := &Cache{
		dir:      cfg.Dir,
		compress: cfg.Compression,
		logger:   cfg.Logger,
		manifest: manifest{Artifacts: make(map[string]artifactInfo)},
	}
	if err := c.loadManifest(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file path holding the artifact for key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key+common.ArtifactExt)
}

// Exists reports whether an artifact for key is present.
func (c *Cache) Exists(key string) bool {
	_, err := os.Stat(c.Path(key))
	return err == nil
}

// Remove deletes the artifact for key and drops its registration.
func (c *Cache) Remove(key string) error {
	if err := os.Remove(c.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact %q: %w", key, err)
	}
	c.mu.Lock()
	delete(c.manifest.Artifacts, key)
	err := c.saveManifestLocked()
	c.mu.Unlock()
	return err
}

// TempKey returns a unique key for a temporary artifact.
func (c *Cache) TempKey(name string) string {
	return fmt.Sprintf("%s%s.%d.%d", common.TempKeyPrefix, name, os.Getpid(), c.tempSeq.Add(1))
}

// Register records an existing artifact in the manifest.
func (c *Cache) Register(key string) error {
	fi, err := os.Stat(c.Path(key))
	if err != nil {
		return fmt.Errorf("register %q: %w", key, common.ErrArtifactNotFound)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.manifest.Artifacts[key]; ok {
		return nil
	}
	c.manifest.Artifacts[key] = artifactInfo{
		Size:    fi.Size(),
		Created: time.Now().Unix(),
	}
	return c.saveManifestLocked()
}

func (c *Cache) register(key string, size int64, sum [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifest.Artifacts[key] = artifactInfo{
		Size:    size,
		Blake3:  hex.EncodeToString(sum[:]),
		Created: time.Now().Unix(),
	}
	return c.saveManifestLocked()
}

func (c *Cache) manifestPath() string {
	return filepath.Join(c.dir, common.FileManifest)
}

func (c *Cache) loadManifest() error {
	data, err := os.ReadFile(c.manifestPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &c.manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if c.manifest.Artifacts == nil {
		c.manifest.Artifacts = make(map[string]artifactInfo)
	}
	return nil
}

func (c *Cache) saveManifestLocked() error {
	data, err := json.MarshalIndent(&c.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	af, err := newAtomicFile(c.manifestPath())
	if err != nil {
		return err
	}
	if _, err := af.Write(data); err != nil {
		_ = af.Abort()
		return fmt.Errorf("write manifest: %w", err)
	}
	return af.Commit()
}

// KeyBWT returns the cache key for a BWT artifact of the given symbol width.
func KeyBWT(width uint8) string {
	return fmt.Sprintf("bwt.%d", width)
}
