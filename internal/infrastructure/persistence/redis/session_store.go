package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SessionStore implements practice.SessionStore on Redis. One key per
// (student, vocabulary set) holds the JSON session pointer with a sliding
// TTL. The store is read-through only: callers always validate the pointer
// against the durable attempt before trusting it.
type SessionStore struct {
	cache *Cache
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(cache *Cache) *SessionStore {
	return &SessionStore{cache: cache}
}

// Get returns the pointer for the pair. A miss surfaces as a domain
// not-found error so callers fall through to the durable tier.
func (s *SessionStore) Get(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) (*practice.SessionPointer, error) {
	key := SessionKey(studentID.String(), vocabSetID.String())

	var pointer practice.SessionPointer
	if err := s.cache.Get(ctx, key, &pointer); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.NewDomainError("practice", "GetSession", shared.ErrNotFound, "no session pointer cached")
		}
		return nil, fmt.Errorf("failed to read session pointer: %w", err)
	}
	return &pointer, nil
}

// Put writes the pointer and resets its TTL.
func (s *SessionStore) Put(ctx context.Context, pointer practice.SessionPointer) error {
	key := SessionKey(pointer.StudentID.String(), pointer.VocabSetID.String())

	if err := s.cache.Set(ctx, key, pointer, TTLSession); err != nil {
		return fmt.Errorf("failed to write session pointer: %w", err)
	}
	return nil
}

// Touch extends the TTL of an existing pointer without rewriting it. A
// missing key is not an error; the next Put recreates it.
func (s *SessionStore) Touch(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) error {
	key := SessionKey(studentID.String(), vocabSetID.String())

	err := s.cache.Expire(ctx, key, TTLSession)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return fmt.Errorf("failed to touch session pointer: %w", err)
	}
	return nil
}

// Clear removes every cache entry for the pair.
func (s *SessionStore) Clear(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) error {
	key := SessionKey(studentID.String(), vocabSetID.String())

	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to clear session pointer: %w", err)
	}
	return nil
}
