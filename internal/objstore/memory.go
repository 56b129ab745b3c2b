package objstore

import (
	"context"
	"fmt"
	"sync"
)

type memObject struct {
	data    []byte
	version Version
}

// MemoryBucket is an in-memory Bucket for tests. Versions are monotonically
// increasing per key so conflicting writers are detected deterministically.
type MemoryBucket struct {
	mu      sync.Mutex
	objects map[string]memObject
	seq     int
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{objects: map[string]memObject{}}
}

func (b *MemoryBucket) Get(ctx context.Context, key string) ([]byte, Version, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	if !ok {
		return nil, "", ErrNotExist
	}
	data := append([]byte(nil), obj.data...)
	return data, obj.version, nil
}

func (b *MemoryBucket) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, exists := b.objects[key]
	if opts.IfAbsent && exists {
		return ErrPreconditionFailed
	}
	if opts.ExpectedVersion != "" && (!exists || obj.version != opts.ExpectedVersion) {
		return ErrPreconditionFailed
	}
	b.seq++
	b.objects[key] = memObject{
		data:    append([]byte(nil), data...),
		version: Version(fmt.Sprintf("v%d", b.seq)),
	}
	return nil
}

// Keys returns the stored keys; test helper.
func (b *MemoryBucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	return keys
}
