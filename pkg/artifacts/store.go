// Package artifacts provides content-addressed storage for certificate
// documents and other ledger attachments. Objects are retrieved by an
// identifier derived from their bytes, so putting identical content twice
// is idempotent by construction.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Store is the contract for content-addressed storage.
type Store interface {
	// Put persists data and returns its content identifier
	// ("sha256:<hex>"). Idempotent for identical bytes.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by its content identifier.
	Get(ctx context.Context, id string) ([]byte, error)
	// Exists checks whether content is already stored.
	Exists(ctx context.Context, id string) (bool, error)
	// Delete removes content by its identifier.
	Delete(ctx context.Context, id string) error
}

// ContentID computes the content identifier for a byte sequence.
func ContentID(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// rawHex strips and validates the "sha256:" prefix of a content id.
func rawHex(id string) (string, error) {
	if len(id) < 8 || id[:7] != "sha256:" {
		return "", fmt.Errorf("invalid content id format: %s", id)
	}
	raw := id[7:]
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid content id hex: %w", err)
	}
	return raw, nil
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a content-addressed store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure artifact dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ContentID(data)
	raw, _ := rawHex(id)
	path := filepath.Join(s.baseDir, raw+".json")

	if _, err := os.Stat(path); err == nil {
		return id, nil // already stored
	}

	// Write to temp, then rename, so readers never observe partial bytes.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("commit artifact: %w", err)
	}
	return id, nil
}

func (s *FileStore) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHex(id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.baseDir, raw+".json")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found: %s", id)
		}
		return nil, err
	}
	defer f.Close() //nolint:errcheck // best-effort close

	return io.ReadAll(f)
}

func (s *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHex(id)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.baseDir, raw+".json"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := rawHex(id)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.baseDir, raw+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}
