// Package objstore provides a small versioned object-bucket contract used for
// the deal ledger, the subscriber list and blast trigger artifacts. Every Get
// returns a version token for the object generation it read; conditional Puts
// against that token are the basis for optimistic concurrency on
// whole-document state.
package objstore

import (
	"context"
	"errors"
)

var (
	// ErrNotExist is returned by Get when the key has never been written.
	ErrNotExist = errors.New("objstore: object does not exist")

	// ErrPreconditionFailed is returned by a conditional Put when the object
	// moved past the expected version, or already exists for an IfAbsent put.
	ErrPreconditionFailed = errors.New("objstore: precondition failed")
)

// Version identifies one generation of an object (S3 ETag, content hash, ...).
// The empty version means "no expectation".
type Version string

// PutOptions controls conditional-write behavior.
type PutOptions struct {
	// ExpectedVersion makes the put succeed only while the object is still at
	// that generation.
	ExpectedVersion Version

	// IfAbsent makes the put succeed only when the key does not exist yet.
	IfAbsent bool

	ContentType string
}

// Bucket is the storage contract shared by all persisted documents.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, Version, error)
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
}
