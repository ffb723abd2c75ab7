package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/memory"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// notFoundWrap maps pgx.ErrNoRows to domain.ErrNotFound and wraps anything
// else with the given message.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// conflictWrap maps pgx.ErrNoRows to domain.ErrConflict. Conditional writes
// that match no row lost an optimistic-lock race.
func conflictWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// orQuery turns free text into a to_tsquery expression that matches any of
// its terms. Only letters and digits survive so the expression always parses.
func orQuery(text string) string {
	var terms []string
	for _, tok := range memory.Tokenize(text) {
		tok = strings.Map(func(r rune) rune {
			if r == '$' {
				return -1
			}
			return r
		}, tok)
		if tok != "" {
			terms = append(terms, tok)
		}
	}
	return strings.Join(terms, " | ")
}

// limitArg maps a non-positive limit to SQL NULL, which LIMIT treats as ALL.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
