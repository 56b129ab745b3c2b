// Package ledger owns the authoritative deal document: a single JSON array of
// deals read and written as a whole. Writers never save over a generation they
// did not load, so concurrent mutations surface as version conflicts and are
// retried instead of silently clobbering each other.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cyberhound/colony-proxy/internal/objstore"
)

// DefaultObjectKey matches the document the ledger builder publishes.
const DefaultObjectKey = "latest_deals.json"

// DefaultUpdateAttempts bounds the read-modify-write retry loop.
const DefaultUpdateAttempts = 5

var (
	// ErrDealNotFound reports an id with no matching deal in the document.
	ErrDealNotFound = errors.New("ledger: deal not found")

	// ErrTooManyConflicts reports an Update that kept losing the version race.
	ErrTooManyConflicts = errors.New("ledger: too many version conflicts")
)

// Store reads and writes the whole ledger document through a versioned bucket.
type Store struct {
	bucket objstore.Bucket
	key    string
}

func NewStore(bucket objstore.Bucket, key string) *Store {
	if key == "" {
		key = DefaultObjectKey
	}
	return &Store{bucket: bucket, key: key}
}

// Load returns the deals and the version token to pass back to Save.
// A missing document is reported as objstore.ErrNotExist.
func (s *Store) Load(ctx context.Context) ([]Deal, objstore.Version, error) {
	data, version, err := s.bucket.Get(ctx, s.key)
	if err != nil {
		return nil, "", err
	}
	var deals []Deal
	if err := json.Unmarshal(data, &deals); err != nil {
		return nil, "", fmt.Errorf("ledger: decode %s: %w", s.key, err)
	}
	return deals, version, nil
}

// Save writes the whole document conditionally on the version it was loaded
// at. An empty version means the document is being created and must not
// already exist. Returns objstore.ErrPreconditionFailed on a lost race.
func (s *Store) Save(ctx context.Context, deals []Deal, version objstore.Version) error {
	data, err := json.MarshalIndent(deals, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode: %w", err)
	}
	opts := objstore.PutOptions{ContentType: "application/json"}
	if version == "" {
		opts.IfAbsent = true
	} else {
		opts.ExpectedVersion = version
	}
	return s.bucket.Put(ctx, s.key, data, opts)
}

// Update runs fn over a freshly loaded document and saves the result,
// retrying the whole load-mutate-save cycle while other writers win the
// version race. fn sees a nil slice when the document does not exist yet;
// an error from fn aborts without writing.
func (s *Store) Update(ctx context.Context, attempts int, fn func(deals []Deal) ([]Deal, error)) ([]Deal, error) {
	if attempts <= 0 {
		attempts = DefaultUpdateAttempts
	}
	for i := 0; i < attempts; i++ {
		deals, version, err := s.Load(ctx)
		if errors.Is(err, objstore.ErrNotExist) {
			deals, version = nil, ""
		} else if err != nil {
			return nil, err
		}

		mutated, err := fn(deals)
		if err != nil {
			return nil, err
		}

		err = s.Save(ctx, mutated, version)
		if errors.Is(err, objstore.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return mutated, nil
	}
	return nil, ErrTooManyConflicts
}

// Find returns the index of the deal whose id matches under normalization,
// or -1.
func Find(deals []Deal, id string) int {
	want := NormalizeID(id)
	for i := range deals {
		if NormalizeID(deals[i].ID) == want {
			return i
		}
	}
	return -1
}
