package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// KeySet caches verification keys by kid and fills itself lazily from a
// KeySource. Every refresh merges the fetched keys into the cache and starts
// a new generation. A published kid is never evicted, even after it drops
// out of the source. A kid that is still absent after a refresh is
// remembered as missing for that generation, so repeated lookups of an
// unknown kid cost one fetch, not one per request.
type KeySet struct {
	source KeySource
	group  singleflight.Group

	mu         sync.RWMutex
	keys       map[string]Key
	generation uint64
	missing    map[string]uint64
}

func NewKeySet(source KeySource) *KeySet {
	return &KeySet{
		source:  source,
		keys:    make(map[string]Key),
		missing: make(map[string]uint64),
	}
}

// Lookup returns the key for kid, refreshing the set at most once.
func (s *KeySet) Lookup(ctx context.Context, kid string) (Key, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	gen := s.generation
	missGen, missed := s.missing[kid]
	s.mu.RUnlock()

	if ok {
		return key, nil
	}
	if missed && missGen == gen {
		return Key{}, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	if err := s.refresh(ctx, gen); err != nil {
		return Key{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok = s.keys[kid]; ok {
		return key, nil
	}
	s.missing[kid] = s.generation
	return Key{}, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// refresh fetches a new key set unless one newer than seen has already
// been installed. Concurrent callers share the in-flight fetch.
func (s *KeySet) refresh(ctx context.Context, seen uint64) error {
	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		s.mu.RLock()
		current := s.generation
		s.mu.RUnlock()
		if current != seen {
			return nil, nil
		}

		// the fetch is shared, so one caller giving up must not cancel it
		keys, err := s.source.FetchKeys(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		for kid, key := range keys {
			s.keys[kid] = key
		}
		s.generation++
		s.missing = make(map[string]uint64)
		s.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %w", ErrKeySourceUnavailable, res.Err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrKeySourceUnavailable, ctx.Err())
	}
}

// Len reports the number of cached keys.
func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
