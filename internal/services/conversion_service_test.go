package services

import (
	"context"
	"errors"
	"testing"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedEstimate(t *testing.T, f *fixture) *models.Document {
	t.Helper()
	ctx := context.Background()
	est, err := f.documents.Create(ctx, models.DocumentTypeEstimate, testUser, createRequest())
	require.NoError(t, err)

	approved := models.StatusApproved
	upd := &models.EstimateUpdate{}
	upd.Status = &approved
	est, err = f.documents.Update(ctx, models.DocumentTypeEstimate, testUser, est.ID, upd)
	require.NoError(t, err)
	return est
}

func TestConvertApprovedEstimateToInvoice(t *testing.T) {
	f := newFixture()
	est := approvedEstimate(t, f)
	before := f.docs.stored(est.ID)

	inv, err := f.convert.CreateInvoiceFromEstimate(context.Background(), testUser, est.ID)
	require.NoError(t, err)

	assert.Equal(t, "INV-2026-0001", inv.Number)
	assert.Equal(t, models.DocumentTypeInvoice, inv.Type)
	assert.Equal(t, models.StatusDraft, inv.Status)
	require.NotNil(t, inv.SourceDocumentID)
	assert.Equal(t, est.ID, *inv.SourceDocumentID)
	assert.Equal(t, est.Customer, inv.Customer)
	assert.True(t, est.Subtotal.Equal(inv.Subtotal))
	assert.True(t, est.TaxAmount.Equal(inv.TaxAmount))
	assert.True(t, est.TotalAmount.Equal(inv.TotalAmount))
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, "2026-04-09", inv.DueDate.Format("2006-01-02"))

	require.Len(t, inv.Items, len(est.Items))
	for i := range est.Items {
		assert.Equal(t, est.Items[i].Description, inv.Items[i].Description)
		assert.True(t, est.Items[i].TotalPrice.Equal(inv.Items[i].TotalPrice))
		assert.Equal(t, inv.ID, inv.Items[i].DocumentID)
	}

	after := f.docs.stored(est.ID)
	assert.Equal(t, before.Revision, after.Revision, "estimate untouched")
	assert.Equal(t, models.StatusApproved, after.Status)
}

func TestConvertRequiresApproval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	est, err := f.documents.Create(ctx, models.DocumentTypeEstimate, testUser, createRequest())
	require.NoError(t, err)

	_, err = f.convert.CreateInvoiceFromEstimate(ctx, testUser, est.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = f.convert.CreateProjectFromEstimate(ctx, testUser, est.ID, models.ProjectFields{})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	// no number was consumed
	inv, err := f.documents.Create(ctx, models.DocumentTypeInvoice, testUser, createRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-0001", inv.Number)
}

func TestConvertRejectsNonEstimatesAndOtherUsers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	est := approvedEstimate(t, f)

	_, err := f.convert.CreateInvoiceFromEstimate(ctx, 2, est.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	inv, err := f.documents.Create(ctx, models.DocumentTypeInvoice, testUser, createRequest())
	require.NoError(t, err)
	_, err = f.convert.CreateInvoiceFromEstimate(ctx, testUser, inv.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestConvertEmptyEstimateFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := createRequest()
	req.Items = nil
	est, err := f.documents.Create(ctx, models.DocumentTypeEstimate, testUser, req)
	require.NoError(t, err)
	approved := models.StatusApproved
	upd := &models.EstimateUpdate{}
	upd.Status = &approved
	_, err = f.documents.Update(ctx, models.DocumentTypeEstimate, testUser, est.ID, upd)
	require.NoError(t, err)

	_, err = f.convert.CreateInvoiceFromEstimate(ctx, testUser, est.ID)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestConvertTwiceGivesTwoInvoices(t *testing.T) {
	f := newFixture()
	est := approvedEstimate(t, f)

	first, err := f.convert.CreateInvoiceFromEstimate(context.Background(), testUser, est.ID)
	require.NoError(t, err)
	second, err := f.convert.CreateInvoiceFromEstimate(context.Background(), testUser, est.ID)
	require.NoError(t, err)

	assert.Equal(t, "INV-2026-0001", first.Number)
	assert.Equal(t, "INV-2026-0002", second.Number)
}

func TestCreateProjectFromEstimate(t *testing.T) {
	f := newFixture()
	est := approvedEstimate(t, f)

	p, err := f.convert.CreateProjectFromEstimate(context.Background(), testUser, est.ID, models.ProjectFields{})
	require.NoError(t, err)

	assert.Equal(t, "Panel upgrade", p.Name)
	assert.Equal(t, "12 Elm St", p.Address)
	assert.Equal(t, "275.00", p.Budget.StringFixed(2))
	assert.Equal(t, models.ProjectStatusActive, p.Status)
	require.NotNil(t, p.SourceEstimateID)
	assert.Equal(t, est.ID, *p.SourceEstimateID)

	require.Len(t, p.Folders, 8)
	names := make([]string, len(p.Folders))
	for i, folder := range p.Folders {
		names[i] = folder.Name
	}
	assert.Equal(t, models.DefaultProjectFolders, names)
}

func TestProjectLookupIsScopedToOwner(t *testing.T) {
	f := newFixture()
	est := approvedEstimate(t, f)
	ctx := context.Background()

	created, err := f.convert.CreateProjectFromEstimate(ctx, testUser, est.ID, models.ProjectFields{})
	require.NoError(t, err)

	p, err := f.convert.Project(ctx, testUser, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, p.Name)
	assert.Len(t, p.Folders, 8)

	_, err = f.convert.Project(ctx, testUser+1, created.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.convert.Project(ctx, testUser, 999)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCreateProjectUsesSuppliedFields(t *testing.T) {
	f := newFixture()
	est := approvedEstimate(t, f)

	p, err := f.convert.CreateProjectFromEstimate(context.Background(), testUser, est.ID, models.ProjectFields{
		Name:    "  Reyes residence  ",
		Address: "14 Elm St",
	})
	require.NoError(t, err)
	assert.Equal(t, "Reyes residence", p.Name)
	assert.Equal(t, "14 Elm St", p.Address)
}
