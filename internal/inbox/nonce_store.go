/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultNonceKeyPrefix = "inbox:seen:"

// NonceStore implements the seen-request-identity set replay protection
// relies on (§4.6). TryMark is the replay check: it atomically reports
// whether id was unseen and, if so, marks it seen for ttl — a single
// round trip, so two concurrent Receive calls for the same identity can
// never both observe "unseen". Size reports how many identities are held,
// for metrics.
type NonceStore interface {
	TryMark(ctx context.Context, id string, ttl time.Duration) (fresh bool, err error)
	Size(ctx context.Context) (int, error)
}

// inProcessNonceStore backs replay detection with a mutex-guarded map, for
// single-instance deployments with no Redis configured. Expired entries are
// pruned lazily, on the next TryMark/Size call that encounters them.
type inProcessNonceStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func newInProcessNonceStore() *inProcessNonceStore {
	return &inProcessNonceStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *inProcessNonceStore) TryMark(_ context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expires[id]; ok {
		if now.Before(exp) {
			return false, nil
		}
		delete(s.expires, id)
	}
	s.expires[id] = now.Add(ttl)
	return true, nil
}

func (s *inProcessNonceStore) Size(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, id)
		}
	}
	return len(s.expires), nil
}

// redisNonceStore backs replay detection with Redis, so a replay of the
// same request identity is caught even when it arrives at a different
// inbox instance behind the same Redis deployment (§4.6's InboxOptions.
// RedisAddr doc).
type redisNonceStore struct {
	client    goredis.UniversalClient
	keyPrefix string
}

// newRedisNonceStore wraps an existing client. The caller retains
// ownership of the client's lifecycle.
func newRedisNonceStore(client goredis.UniversalClient, keyPrefix string) *redisNonceStore {
	if keyPrefix == "" {
		keyPrefix = defaultNonceKeyPrefix
	}
	return &redisNonceStore{client: client, keyPrefix: keyPrefix}
}

func (s *redisNonceStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *redisNonceStore) TryMark(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(id), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("inbox: redis nonce mark: %w", err)
	}
	return ok, nil
}

func (s *redisNonceStore) Size(ctx context.Context) (int, error) {
	var count int64
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("inbox: redis nonce scan: %w", err)
	}
	return int(count), nil
}
