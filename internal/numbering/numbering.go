// Package numbering issues human-readable document numbers such as INV-2026-0007.
//
// Numbers are scoped to (document type, calendar year). The sequence behind a
// scope must be an atomic increment-and-read that only ever moves forward; the
// Postgres implementation lives next to the document repository so it can run
// inside the creation transaction.
package numbering

import (
	"context"
	"fmt"

	"contractor-backend/internal/models"
)

// Scope is one independent counter
type Scope struct {
	Type models.DocumentType
	Year int
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%d", s.Type, s.Year)
}

// Sequence atomically increments the counter for a scope and returns the new value.
// The first value for a scope is 1.
type Sequence interface {
	NextValue(ctx context.Context, scope Scope) (int64, error)
}

// Format renders a number as {PREFIX}-{year}-{seq:04d}
func Format(t models.DocumentType, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", t.Prefix(), year, seq)
}

// Next allocates the next number for (t, year) from seq.
func Next(ctx context.Context, seq Sequence, t models.DocumentType, year int) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("numbering: unknown document type %q", t)
	}
	scope := Scope{Type: t, Year: year}
	n, err := seq.NextValue(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("numbering: allocate %s: %w", scope, err)
	}
	if n < 1 {
		return "", fmt.Errorf("numbering: counter for %s returned %d", scope, n)
	}
	return Format(t, year, n), nil
}
