package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cyberhound/colony-proxy/internal/objstore"
)

// SubscribersObjectKey is where the sniper list document lives in the bucket.
const SubscribersObjectKey = "snipers_list.json"

var errSubscriberConflicts = errors.New("service: subscriber list contended, gave up")

// SubscriberStore keeps the sniper email list as a single JSON array in the
// bucket, updated with the same conditional-write loop as the deal ledger.
type SubscriberStore struct {
	bucket   objstore.Bucket
	key      string
	attempts int
}

func NewSubscriberStore(bucket objstore.Bucket) *SubscriberStore {
	return &SubscriberStore{bucket: bucket, key: SubscribersObjectKey, attempts: 5}
}

// Add inserts the email if absent. Returns false when it was already on the
// list. Emails are lower-cased and trimmed before comparison.
func (s *SubscriberStore) Add(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
		return false, fmt.Errorf("%w: malformed email", ErrInvalidRequest)
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		data, version, err := s.bucket.Get(ctx, s.key)
		var list []string
		switch {
		case errors.Is(err, objstore.ErrNotExist):
			version = ""
		case err != nil:
			return false, fmt.Errorf("load subscriber list: %w", err)
		default:
			if err := json.Unmarshal(data, &list); err != nil {
				return false, fmt.Errorf("decode subscriber list: %w", err)
			}
		}

		for _, existing := range list {
			if existing == email {
				return false, nil
			}
		}
		list = append(list, email)

		out, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return false, fmt.Errorf("encode subscriber list: %w", err)
		}
		err = s.bucket.Put(ctx, s.key, out, objstore.PutOptions{
			ExpectedVersion: version,
			IfAbsent:        version == "",
			ContentType:     "application/json",
		})
		if errors.Is(err, objstore.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("store subscriber list: %w", err)
		}
		return true, nil
	}
	return false, errSubscriberConflicts
}
