package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/LLManager/internal/domain/memory"
)

// Store implements memorystore.Store on the memory_items table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const memoryColumns = `namespace, key, value, version, created_at, updated_at`

func scanItem(row scannable) (memory.Item, error) {
	var it memory.Item
	var ns []string
	var value []byte
	if err := row.Scan(&ns, &it.Key, &value, &it.Version, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return it, err
	}
	it.Namespace = memory.Namespace(ns)
	it.Value = json.RawMessage(value)
	return it, nil
}

// Get implements memorystore.Store.
func (s *Store) Get(ctx context.Context, ns memory.Namespace, key string) (*memory.Item, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+memoryColumns+` FROM memory_items WHERE namespace = $1 AND key = $2`,
		[]string(ns), key)
	it, err := scanItem(row)
	if err != nil {
		return nil, notFoundWrap(err, "get memory item %s/%s", ns, key)
	}
	return &it, nil
}

// Put implements memorystore.Store.
func (s *Store) Put(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_items (namespace, key, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = EXCLUDED.value, version = memory_items.version + 1, updated_at = now()`,
		[]string(ns), key, []byte(value))
	if err != nil {
		return fmt.Errorf("put memory item %s/%s: %w", ns, key, err)
	}
	return nil
}

// CompareAndPut implements memorystore.Store.
func (s *Store) CompareAndPut(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage, expected int64) (int64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	var version int64
	var err error
	if expected == 0 {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO memory_items (namespace, key, value)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (namespace, key) DO NOTHING
			 RETURNING version`,
			[]string(ns), key, []byte(value)).Scan(&version)
	} else {
		err = s.pool.QueryRow(ctx,
			`UPDATE memory_items
			 SET value = $3, version = version + 1, updated_at = now()
			 WHERE namespace = $1 AND key = $2 AND version = $4
			 RETURNING version`,
			[]string(ns), key, []byte(value), expected).Scan(&version)
	}
	if err != nil {
		return 0, conflictWrap(err, "compare-and-put %s/%s at version %d", ns, key, expected)
	}
	return version, nil
}

// Search ranks the namespace's items with ts_rank over the generated
// search_vector column. Items without matching terms stay in the result with
// a zero score, ordered by recency.
func (s *Store) Search(ctx context.Context, ns memory.Namespace, query string, limit int) ([]memory.Item, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryColumns+`,
		        CASE WHEN $2 = '' THEN 0
		             ELSE ts_rank(search_vector, to_tsquery('english', $2)) END AS score
		 FROM memory_items
		 WHERE namespace = $1
		 ORDER BY score DESC, updated_at DESC, key ASC
		 LIMIT $3`,
		[]string(ns), orQuery(query), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("search memory %s: %w", ns, err)
	}
	defer rows.Close()

	var items []memory.Item
	for rows.Next() {
		var it memory.Item
		var nsCol []string
		var value []byte
		var score float32
		if err := rows.Scan(&nsCol, &it.Key, &value, &it.Version, &it.CreatedAt, &it.UpdatedAt, &score); err != nil {
			return nil, fmt.Errorf("scan memory item: %w", err)
		}
		it.Namespace = memory.Namespace(nsCol)
		it.Value = json.RawMessage(value)
		it.Score = float64(score)
		items = append(items, it)
	}
	return items, rows.Err()
}
