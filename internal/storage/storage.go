// Package storage persists named transciphering artifacts (keys, round keys,
// encrypted bit lists) per parameter size.
package storage

import (
	"bytes"
	"context"
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Common errors.
var (
	ErrNotFound    = errors.New("artifact not found")
	ErrStorageFull = errors.New("storage capacity exceeded")
	ErrInvalidKey  = errors.New("invalid artifact key")
	ErrCorrupt     = errors.New("artifact digest mismatch")
)

// Well-known artifact names.
const (
	SecretKeyName     = "secret_key.bin"
	EvaluationKeyName = "evaluation_key.bin"
	RoundKeysName     = "round_keys.bin"
	AESKeyName        = "aes_key.hex"
	BlockName         = "block.hex"
	ResultName        = "result.bin"
)

// Key identifies an artifact: a name inside the namespace of a parameter size.
type Key struct {
	Size string
	Name string
}

func (k Key) String() string {
	return k.Size + "/" + k.Name
}

func (k Key) validate() error {
	for _, s := range []string{k.Size, k.Name} {
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
		}
	}
	return nil
}

// Digest returns the hex blake3 digest of data.
func Digest(data []byte) string {
	h := blake3.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Storage defines the interface for artifact storage.
type Storage interface {
	// Store saves an artifact, replacing any previous version.
	Store(ctx context.Context, key Key, data []byte) error
	// Load retrieves an artifact.
	Load(ctx context.Context, key Key) ([]byte, error)
	// Delete removes an artifact.
	Delete(ctx context.Context, key Key) error
	// Exists checks if an artifact exists.
	Exists(ctx context.Context, key Key) (bool, error)
	// Close closes the storage.
	Close() error
}

// MemoryStorage implements in-memory artifact storage.
type MemoryStorage struct {
	mu       sync.RWMutex
	data     map[Key][]byte
	capacity int64
	size     int64
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage(capacityMB int64) *MemoryStorage {
	return &MemoryStorage{
		data:     make(map[Key][]byte),
		capacity: capacityMB * 1024 * 1024,
	}
}

func (s *MemoryStorage) Store(ctx context.Context, key Key, data []byte) error {
	if err := key.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := int64(len(s.data[key]))
	if s.size-old+int64(len(data)) > s.capacity {
		return ErrStorageFull
	}

	s.data[key] = append([]byte(nil), data...)
	s.size += int64(len(data)) - old

	return nil
}

func (s *MemoryStorage) Load(ctx context.Context, key Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, exists := s.data[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	s.size -= int64(len(data))
	delete(s.data, key)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, key Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[key]
	return exists, nil
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = nil
	s.size = 0
	return nil
}

// FileStorage implements file-based artifact storage laid out as
// <baseDir>/<size>/<name>, each file next to a <name>.b3 digest sidecar.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	return &FileStorage{baseDir: baseDir}, nil
}

// Path returns the file holding key.
func (s *FileStorage) Path(key Key) string {
	return filepath.Join(s.baseDir, key.Size, key.Name)
}

func digestPath(path string) string {
	return path + ".b3"
}

// writeAtomic writes via a temp file and a rename.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (s *FileStorage) Store(ctx context.Context, key Key, data []byte) error {
	if err := key.validate(); err != nil {
		return err
	}
	path := s.Path(key)

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create size dir: %w", err)
	}

	if err := writeAtomic(path, data); err != nil {
		return err
	}
	return writeAtomic(digestPath(path), []byte(Digest(data)+"\n"))
}

func (s *FileStorage) Load(ctx context.Context, key Key) ([]byte, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	path := s.Path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	want, err := os.ReadFile(digestPath(path))
	switch {
	case os.IsNotExist(err):
		// Artifacts copied in by hand carry no digest.
		return data, nil
	case err != nil:
		return nil, fmt.Errorf("read digest: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(want), []byte(Digest(data))) {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}
	return data, nil
}

func (s *FileStorage) Delete(ctx context.Context, key Key) error {
	if err := key.validate(); err != nil {
		return err
	}
	path := s.Path(key)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("remove file: %w", err)
	}
	if err := os.Remove(digestPath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove digest: %w", err)
	}
	return nil
}

func (s *FileStorage) Exists(ctx context.Context, key Key) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat file: %w", err)
}

func (s *FileStorage) Close() error {
	return nil
}

// StoreBinary marshals m and stores it under key.
func StoreBinary(ctx context.Context, s Storage, key Key, m encoding.BinaryMarshaler) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Store(ctx, key, data)
}

// LoadBinary loads the artifact at key into u.
func LoadBinary(ctx context.Context, s Storage, key Key, u encoding.BinaryUnmarshaler) error {
	data, err := s.Load(ctx, key)
	if err != nil {
		return err
	}
	if err := u.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
