// Package drafts persists in-progress assessment records to a key-value
// store and batches rapid edits behind a debounce timer.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chata-intake/internal/domain"
	"chata-intake/internal/store"

	"go.uber.org/zap"
)

// KeyPrefix namespace of draft keys
const KeyPrefix = "chata:draft:"

// Key draft key for a session identifier
func Key(chataID string) string {
	return KeyPrefix + chataID
}

// IDFromKey inverse of Key; "" for foreign keys
func IDFromKey(key string) string {
	if !strings.HasPrefix(key, KeyPrefix) {
		return ""
	}
	return strings.TrimPrefix(key, KeyPrefix)
}

// Store JSON-encodes FormState records into a store.KV
type Store struct {
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewStore(kv store.KV, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{kv: kv, ttl: ttl, logger: logger}
}

// Save writes the record under Key(state.ChataID)
func (s *Store) Save(ctx context.Context, state *domain.FormState) error {
	if state == nil || state.ChataID == "" {
		return fmt.Errorf("%w: draft without chata id", domain.ErrValidation)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode draft %s: %w", state.ChataID, err)
	}
	if err := s.kv.Set(ctx, Key(state.ChataID), string(raw), s.ttl); err != nil {
		return fmt.Errorf("failed to save draft %s: %w", state.ChataID, err)
	}
	return nil
}

// Load reads a draft; domain.ErrNotFound when absent
func (s *Store) Load(ctx context.Context, chataID string) (*domain.FormState, error) {
	raw, err := s.kv.Get(ctx, Key(chataID))
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, fmt.Errorf("draft %s: %w", chataID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load draft %s: %w", chataID, err)
	}
	var state domain.FormState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode draft %s: %w", chataID, err)
	}
	return &state, nil
}

// Delete removes a draft; missing drafts are not an error
func (s *Store) Delete(ctx context.Context, chataID string) error {
	if err := s.kv.Delete(ctx, Key(chataID)); err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", chataID, err)
	}
	return nil
}

// List sorted session identifiers of all stored drafts
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.ScanKeys(ctx, KeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan drafts: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id := IDFromKey(k); id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
