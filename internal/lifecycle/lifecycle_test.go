package lifecycle

import (
	"errors"
	"testing"
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)

func doc(t models.DocumentType, s models.Status) *models.Document {
	return &models.Document{ID: 1, Type: t, Number: "X-2026-0001", Status: s}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		typ      models.DocumentType
		from, to models.Status
		ok       bool
	}{
		{models.DocumentTypeEstimate, models.StatusDraft, models.StatusSent, true},
		{models.DocumentTypeEstimate, models.StatusApproved, models.StatusSent, false},
		{models.DocumentTypeEstimate, models.StatusRejected, models.StatusApproved, true},
		{models.DocumentTypeEstimate, models.StatusApproved, models.StatusRejected, true},
		{models.DocumentTypeEstimate, models.StatusSent, models.StatusDraft, false},
		{models.DocumentTypeInvoice, models.StatusCancelled, models.StatusPaid, true},
		{models.DocumentTypeInvoice, models.StatusSent, models.StatusOverdue, true},
		{models.DocumentTypeInvoice, models.StatusPaid, models.StatusOverdue, false},
		{models.DocumentTypeInvoice, models.StatusPaid, models.StatusCancelled, false},
		{models.DocumentTypeInvoice, models.StatusOverdue, models.StatusCancelled, true},
		{models.DocumentTypeInvoice, models.StatusPaid, models.StatusSent, false},
		{models.DocumentTypeChangeOrder, models.StatusDraft, models.StatusSent, true},
		{models.DocumentTypeChangeOrder, models.StatusRejected, models.StatusApproved, true},
		{models.DocumentTypeChangeOrder, models.StatusApproved, models.StatusRejected, false},
		{models.DocumentTypeChangeOrder, models.StatusApproved, models.StatusCancelled, true},
	}

	for _, tt := range tests {
		name := string(tt.typ) + ":" + string(tt.from) + "->" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			d := doc(tt.typ, tt.from)
			changed, err := Transition(d, tt.to, now)
			if tt.ok {
				require.NoError(t, err)
				assert.True(t, changed)
				assert.Equal(t, tt.to, d.Status)
				assert.Equal(t, now, d.StatusChangedAt)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrConflict))
			assert.Equal(t, tt.from, d.Status)
		})
	}
}

func TestTransitionRejectsStatusOutsideEnum(t *testing.T) {
	_, err := Transition(doc(models.DocumentTypeEstimate, models.StatusDraft), models.StatusPaid, now)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = Transition(doc(models.DocumentTypeInvoice, models.StatusDraft), models.Status("archived"), now)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestPaidSideEffectAppliedOnce(t *testing.T) {
	d := doc(models.DocumentTypeInvoice, models.StatusSent)

	changed, err := Transition(d, models.StatusPaid, now)
	require.NoError(t, err)
	require.True(t, changed)
	require.NotNil(t, d.PaidDate)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), *d.PaidDate)

	changed, err = Transition(d, models.StatusPaid, now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 14, d.PaidDate.Day())
}

func TestPaidKeepsExistingPaidDate(t *testing.T) {
	earlier := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	d := doc(models.DocumentTypeInvoice, models.StatusCancelled)
	d.PaidDate = &earlier

	_, err := Transition(d, models.StatusPaid, now)
	require.NoError(t, err)
	assert.Equal(t, earlier, *d.PaidDate)
}

func TestChangeOrderApprovalStampsDate(t *testing.T) {
	d := doc(models.DocumentTypeChangeOrder, models.StatusSent)
	_, err := Transition(d, models.StatusApproved, now)
	require.NoError(t, err)
	require.NotNil(t, d.ApprovedDate)
	assert.Nil(t, d.PaidDate)
}

func TestMarkSentOnlyFromDraft(t *testing.T) {
	d := doc(models.DocumentTypeEstimate, models.StatusDraft)
	assert.True(t, MarkSent(d, now))
	assert.Equal(t, models.StatusSent, d.Status)
	require.NotNil(t, d.SentDate)

	approved := doc(models.DocumentTypeEstimate, models.StatusApproved)
	assert.False(t, MarkSent(approved, now))
	assert.Equal(t, models.StatusApproved, approved.Status)
}

func TestEffectiveStatusOverdue(t *testing.T) {
	yesterday := now.AddDate(0, 0, -1)
	today := now

	d := doc(models.DocumentTypeInvoice, models.StatusSent)
	d.DueDate = &yesterday
	assert.Equal(t, models.StatusOverdue, EffectiveStatus(d, now))

	d.DueDate = &today
	assert.Equal(t, models.StatusSent, EffectiveStatus(d, now))

	paid := doc(models.DocumentTypeInvoice, models.StatusPaid)
	paid.DueDate = &yesterday
	assert.Equal(t, models.StatusPaid, EffectiveStatus(paid, now))

	est := doc(models.DocumentTypeEstimate, models.StatusSent)
	est.DueDate = &yesterday
	assert.Equal(t, models.StatusSent, EffectiveStatus(est, now))
}

func TestRequireConvertible(t *testing.T) {
	assert.NoError(t, RequireConvertible(doc(models.DocumentTypeEstimate, models.StatusApproved)))
	assert.True(t, errors.Is(RequireConvertible(doc(models.DocumentTypeEstimate, models.StatusSent)), apperr.ErrConflict))
	assert.True(t, errors.Is(RequireConvertible(doc(models.DocumentTypeInvoice, models.StatusApproved)), apperr.ErrNotFound))
}
