// Package memory provides the namespaced key/value item model shared by the
// example and reflection stores, plus the lexical relevance scoring used by
// backends without a native full-text index.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/Strob0t/LLManager/internal/domain"
)

// Namespace prefixes.
const (
	PrefixFewShot    = "few-shot"
	PrefixReflection = "reflection"
)

// ReflectionsKey is the single key holding a tenant's reflection list.
const ReflectionsKey = "reflections"

// Namespace is a hierarchical partition such as ["few-shot", tenant].
type Namespace []string

// String joins the namespace segments with "/".
func (n Namespace) String() string { return strings.Join(n, "/") }

// Validate rejects empty namespaces and empty segments.
func (n Namespace) Validate() error {
	if len(n) == 0 {
		return errors.New("namespace is required")
	}
	for _, s := range n {
		if s == "" {
			return fmt.Errorf("namespace %q has an empty segment", n.String())
		}
	}
	return nil
}

// FewShot returns the example namespace for a tenant.
func FewShot(tenantID string) (Namespace, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	return Namespace{PrefixFewShot, tenantID}, nil
}

// Reflection returns the reflection namespace for a tenant.
func Reflection(tenantID string) (Namespace, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	return Namespace{PrefixReflection, tenantID}, nil
}

// Item is one stored value. Version increases on every write of the key.
type Item struct {
	Namespace Namespace       `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Score     float64         `json:"score,omitempty"`
}

// ReflectionList is the stored shape of a tenant's reflections.
type ReflectionList struct {
	Reflections []string `json:"reflections"`
}

// Tokenize lowercases s and splits it into letter/digit runs.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '$'
	})
}

// Relevance scores value against query as the fraction of distinct query
// tokens present in value. An empty query scores every value zero.
func Relevance(query string, value []byte) float64 {
	q := Tokenize(query)
	if len(q) == 0 {
		return 0
	}
	have := make(map[string]struct{})
	for _, t := range Tokenize(string(value)) {
		have[t] = struct{}{}
	}
	seen := make(map[string]struct{}, len(q))
	hits := 0
	for _, t := range q {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := have[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(seen))
}

// Rank scores items against query, orders them by score then recency then
// key, and truncates to limit (limit <= 0 keeps all).
func Rank(items []Item, query string, limit int) []Item {
	for i := range items {
		items[i].Score = Relevance(query, items[i].Value)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.Key < b.Key
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// NormalizeLesson folds case and whitespace for exact-duplicate detection.
func NormalizeLesson(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
