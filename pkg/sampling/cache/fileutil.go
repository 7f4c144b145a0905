package cache

import (
	"fmt"
	"os"
	"path/filepath"

	blake3 "lukechampine.com/blake3"
)

// atomicFile writes a file through a temp path and an atomic rename.
type atomicFile struct {
	path     string
	tempPath string
	file     *os.File
}

func newAtomicFile(path string) (*atomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tempPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &atomicFile{path: path, tempPath: tempPath, file: file}, nil
}

func (af *atomicFile) Write(p []byte) (int, error) {
	if af.file == nil {
		return 0, fmt.Errorf("file is closed")
	}
	return af.file.Write(p)
}

// Commit syncs and atomically renames the temp file to the final path.
func (af *atomicFile) Commit() error {
	if af.file == nil {
		return fmt.Errorf("file is closed")
	}
	if err := af.file.Sync(); err != nil {
		return fmt.Errorf("sync file: %w", err)
	}
	if err := af.file.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	af.file = nil

	if err := os.Rename(af.tempPath, af.path); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}

	// Sync directory so the rename is persisted
	if dir, err := os.Open(filepath.Dir(af.path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

// Abort removes the temp file without committing.
func (af *atomicFile) Abort() error {
	if af.file != nil {
		_ = af.file.Close()
		af.file = nil
	}
	return os.Remove(af.tempPath)
}

// computeBLAKE3 returns the BLAKE3 sum of data.
func computeBLAKE3(data []byte) [32]byte {
	return blake3.Sum256(data)
}
