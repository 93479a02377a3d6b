package repositories

import (
	"testing"
	"time"

	"contractor-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestStatusFilterUsesEffectiveOverdue(t *testing.T) {
	today := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	args := []any{"invoice", int64(7)}
	where := statusFilter(models.DocumentFilter{Type: models.DocumentTypeInvoice, Status: models.StatusOverdue, Today: &today}, &args)
	assert.Equal(t, " AND (status = 'overdue' OR (status IN ('draft', 'sent') AND due_date < $3))", where)
	assert.Equal(t, []any{"invoice", int64(7), today}, args)

	args = []any{"invoice", int64(7)}
	where = statusFilter(models.DocumentFilter{Type: models.DocumentTypeInvoice, Status: models.StatusSent, Today: &today}, &args)
	assert.Equal(t, " AND status = $3 AND (due_date IS NULL OR due_date >= $4)", where)
	assert.Equal(t, []any{"invoice", int64(7), "sent", today}, args)
}

func TestStatusFilterStoredStatus(t *testing.T) {
	today := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	// estimates never become overdue
	args := []any{"estimate", int64(7)}
	where := statusFilter(models.DocumentFilter{Type: models.DocumentTypeEstimate, Status: models.StatusDraft, Today: &today}, &args)
	assert.Equal(t, " AND status = $3", where)
	assert.Equal(t, []any{"estimate", int64(7), "draft"}, args)

	args = []any{"invoice", int64(7)}
	where = statusFilter(models.DocumentFilter{Type: models.DocumentTypeInvoice, Status: models.StatusPaid, Today: &today}, &args)
	assert.Equal(t, " AND status = $3", where)

	args = []any{"invoice", int64(7)}
	where = statusFilter(models.DocumentFilter{Type: models.DocumentTypeInvoice, Status: models.StatusDraft}, &args)
	assert.Equal(t, " AND status = $3", where)
}
