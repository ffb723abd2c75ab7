package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/memory"
)

// envelope is the stored form of a memory item. The KV revision is the version.
type envelope struct {
	Namespace memory.Namespace `json:"namespace"`
	Key       string           `json:"key"`
	Value     json.RawMessage  `json:"value"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store implements memorystore.Store on a JetStream KV bucket.
// Keys are "<ns>.<key>" with both parts base64url encoded.
type Store struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// NewStore creates a KV-backed memory store.
func NewStore(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv, now: time.Now}
}

func nsPrefix(ns memory.Namespace) string {
	return base64.RawURLEncoding.EncodeToString([]byte(ns.String()))
}

func itemKey(ns memory.Namespace, key string) string {
	return nsPrefix(ns) + "." + base64.RawURLEncoding.EncodeToString([]byte(key))
}

// isRevisionConflict reports a failed optimistic write.
func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

func (s *Store) load(ctx context.Context, kvKey string) (*memory.Item, error) {
	entry, err := s.kv.Get(ctx, kvKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("kv get: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return nil, fmt.Errorf("decode kv item %s: %w", kvKey, err)
	}
	return &memory.Item{
		Namespace: env.Namespace,
		Key:       env.Key,
		Value:     env.Value,
		Version:   int64(entry.Revision()),
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
	}, nil
}

// Get implements memorystore.Store.
func (s *Store) Get(ctx context.Context, ns memory.Namespace, key string) (*memory.Item, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	return s.load(ctx, itemKey(ns, key))
}

func (s *Store) encode(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage) ([]byte, error) {
	now := s.now().UTC()
	env := envelope{Namespace: ns, Key: key, Value: value, CreatedAt: now, UpdatedAt: now}
	if prev, err := s.load(ctx, itemKey(ns, key)); err == nil {
		env.CreatedAt = prev.CreatedAt
	}
	return json.Marshal(env)
}

// Put implements memorystore.Store.
func (s *Store) Put(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	data, err := s.encode(ctx, ns, key, value)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, itemKey(ns, key), data); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

// CompareAndPut implements memorystore.Store using KV Create and Update revisions.
func (s *Store) CompareAndPut(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage, expected int64) (int64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	data, err := s.encode(ctx, ns, key, value)
	if err != nil {
		return 0, err
	}
	var rev uint64
	if expected == 0 {
		rev, err = s.kv.Create(ctx, itemKey(ns, key), data)
	} else {
		rev, err = s.kv.Update(ctx, itemKey(ns, key), data, uint64(expected))
	}
	if err != nil {
		if isRevisionConflict(err) {
			return 0, fmt.Errorf("item %s/%s at version %d: %w", ns, key, expected, domain.ErrConflict)
		}
		return 0, fmt.Errorf("kv write: %w", err)
	}
	return int64(rev), nil
}

// Search implements memorystore.Store by scanning the namespace and ranking lexically.
func (s *Store) Search(ctx context.Context, ns memory.Namespace, query string, limit int) ([]memory.Item, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	lister, err := s.kv.ListKeysFiltered(ctx, nsPrefix(ns)+".*")
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv list: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var items []memory.Item
	for k := range lister.Keys() {
		if !strings.HasPrefix(k, nsPrefix(ns)+".") {
			continue
		}
		it, err := s.load(ctx, k)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return memory.Rank(items, query, limit), nil
}
