package numbering

import (
	"context"
	"errors"
	"sync"
	"testing"

	"contractor-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySequence struct {
	mu     sync.Mutex
	values map[Scope]int64
	err    error
}

func (m *memorySequence) NextValue(_ context.Context, scope Scope) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.values == nil {
		m.values = map[Scope]int64{}
	}
	m.values[scope]++
	return m.values[scope], nil
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "EST-2026-0001", Format(models.DocumentTypeEstimate, 2026, 1))
	assert.Equal(t, "INV-2024-0007", Format(models.DocumentTypeInvoice, 2024, 7))
	assert.Equal(t, "CO-2025-0123", Format(models.DocumentTypeChangeOrder, 2025, 123))
	assert.Equal(t, "INV-2025-12345", Format(models.DocumentTypeInvoice, 2025, 12345))
}

func TestNextScopesByTypeAndYear(t *testing.T) {
	ctx := context.Background()
	seq := &memorySequence{}

	n, err := Next(ctx, seq, models.DocumentTypeInvoice, 2026)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-0001", n)

	n, _ = Next(ctx, seq, models.DocumentTypeInvoice, 2026)
	assert.Equal(t, "INV-2026-0002", n)

	n, _ = Next(ctx, seq, models.DocumentTypeEstimate, 2026)
	assert.Equal(t, "EST-2026-0001", n)

	n, _ = Next(ctx, seq, models.DocumentTypeInvoice, 2027)
	assert.Equal(t, "INV-2027-0001", n)
}

func TestNextConcurrentAllocationsAreContiguous(t *testing.T) {
	ctx := context.Background()
	seq := &memorySequence{}
	const workers = 50

	var wg sync.WaitGroup
	results := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := Next(ctx, seq, models.DocumentTypeChangeOrder, 2026)
			if err == nil {
				results <- n
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for n := range results {
		assert.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	require.Len(t, seen, workers)
	for i := int64(1); i <= workers; i++ {
		assert.True(t, seen[Format(models.DocumentTypeChangeOrder, 2026, i)])
	}
}

func TestNextFailsWhenCounterUnavailable(t *testing.T) {
	down := errors.New("connection refused")
	_, err := Next(context.Background(), &memorySequence{err: down}, models.DocumentTypeInvoice, 2026)
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
}

func TestNextRejectsUnknownType(t *testing.T) {
	_, err := Next(context.Background(), &memorySequence{}, models.DocumentType("receipt"), 2026)
	assert.Error(t, err)
}
