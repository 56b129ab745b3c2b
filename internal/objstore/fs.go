package objstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FSBucket is a file-backed Bucket for dev and testing. Versions are content
// hashes; the conditional-write check and the write happen under one process
// mutex, which is good enough for the single-process dev deployments it
// serves.
type FSBucket struct {
	mu  sync.Mutex
	dir string
}

// NewFSBucket returns an FSBucket rooted at dir and ensures dir exists.
func NewFSBucket(dir string) *FSBucket {
	_ = os.MkdirAll(dir, 0o755)
	return &FSBucket{dir: dir}
}

func (b *FSBucket) path(key string) string {
	return filepath.Join(b.dir, filepath.FromSlash(key))
}

func hashVersion(data []byte) Version {
	sum := sha256.Sum256(data)
	return Version(hex.EncodeToString(sum[:]))
}

func (b *FSBucket) Get(ctx context.Context, key string) ([]byte, Version, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotExist
		}
		return nil, "", fmt.Errorf("fs get %s: %w", key, err)
	}
	return data, hashVersion(data), nil
}

func (b *FSBucket) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.path(key)
	current, err := os.ReadFile(p)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("fs put %s: %w", key, err)
	}

	if opts.IfAbsent && exists {
		return ErrPreconditionFailed
	}
	if opts.ExpectedVersion != "" {
		if !exists || hashVersion(current) != opts.ExpectedVersion {
			return ErrPreconditionFailed
		}
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("fs put %s: %w", key, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("fs put %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("fs put %s: %w", key, err)
	}
	return nil
}
