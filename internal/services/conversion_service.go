package services

import (
	"context"
	"strings"
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/events"
	"contractor-backend/internal/lifecycle"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/metrics"
	"contractor-backend/internal/models"
	"contractor-backend/internal/pricing"
	"contractor-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

type ProjectRepository interface {
	CreateWithFolders(ctx context.Context, p *models.Project, folders []string) error
	GetProject(ctx context.Context, id int64) (*models.Project, error)
}

// ConversionService turns approved estimates into invoices and projects.
// The estimate itself is never modified.
type ConversionService struct {
	docs     DocumentRepository
	projects ProjectRepository
	events   EventPublisher
	warmer   ArtifactWarmer

	paymentTermsDays int
	now              func() time.Time
	log              zerolog.Logger
}

func NewConversionService(docs DocumentRepository, projects ProjectRepository, publisher EventPublisher, paymentTermsDays int) *ConversionService {
	return &ConversionService{
		docs:             docs,
		projects:         projects,
		events:           publisher,
		paymentTermsDays: paymentTermsDays,
		now:              timeutil.Now,
		log:              logger.WithComponent("conversion"),
	}
}

func (s *ConversionService) WithWarmer(w ArtifactWarmer) *ConversionService {
	s.warmer = w
	return s
}

func (s *ConversionService) WithClock(now func() time.Time) *ConversionService {
	s.now = now
	return s
}

func (s *ConversionService) approvedEstimate(ctx context.Context, userID, estimateID int64) (*models.Document, error) {
	est, err := s.docs.Get(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	if est.UserID != userID {
		return nil, apperr.NotFound("conversion", "estimate %d not found", estimateID)
	}
	if err := lifecycle.RequireConvertible(est); err != nil {
		return nil, err
	}
	return est, nil
}

// CreateInvoiceFromEstimate copies the estimate's customer, totals and items
// into a new draft invoice with its own number. Totals are copied, not
// recomputed, so the invoice matches what the customer approved.
func (s *ConversionService) CreateInvoiceFromEstimate(ctx context.Context, userID, estimateID int64) (*models.Document, error) {
	est, err := s.approvedEstimate(ctx, userID, estimateID)
	if err != nil {
		return nil, err
	}
	if len(est.Items) == 0 && pricing.RequiresItems(models.DocumentTypeInvoice) {
		return nil, apperr.Validation("conversion.Invoice", "estimate %s has no line items to invoice", est.Number)
	}

	now := s.now()
	due := timeutil.StartOfDay(now).AddDate(0, 0, s.paymentTermsDays)
	sourceID := est.ID

	inv := &models.Document{
		Type:             models.DocumentTypeInvoice,
		Title:            est.Title,
		Description:      est.Description,
		Customer:         est.Customer,
		CustomerID:       est.CustomerID,
		ProjectID:        est.ProjectID,
		SourceDocumentID: &sourceID,
		Status:           models.StatusDraft,
		Subtotal:         est.Subtotal,
		TaxRate:          est.TaxRate,
		TaxAmount:        est.TaxAmount,
		TotalAmount:      est.TotalAmount,
		DueDate:          &due,
		StatusChangedAt:  now,
		Notes:            est.Notes,
		UserID:           est.UserID,
		Items:            copyItems(est.Items),
	}

	if err := s.docs.Create(ctx, inv, now.Year()); err != nil {
		return nil, err
	}

	metrics.DocumentsCreated.WithLabelValues(string(models.DocumentTypeInvoice), "conversion").Inc()
	s.log.Info().
		Str("estimate", est.Number).
		Str("invoice", inv.Number).
		Str("total", inv.TotalAmount.StringFixed(2)).
		Msg("Invoice created from estimate")

	if s.warmer != nil {
		s.warmer.Enqueue(inv.ID)
	}
	if s.events != nil {
		s.events.Publish(events.DocumentEvent(events.DocumentCreated, inv))
	}
	return inv, nil
}

func copyItems(items []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, len(items))
	for i, item := range items {
		out[i] = models.LineItem{
			Position:    i + 1,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		}
	}
	return out
}

// CreateProjectFromEstimate opens a project for an approved estimate and
// seeds its default folders in the same transaction.
func (s *ConversionService) CreateProjectFromEstimate(ctx context.Context, userID, estimateID int64, fields models.ProjectFields) (*models.Project, error) {
	est, err := s.approvedEstimate(ctx, userID, estimateID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(fields.Name)
	if name == "" {
		name = est.Title
	}
	if name == "" {
		name = est.Number
	}
	address := strings.TrimSpace(fields.Address)
	if address == "" {
		address = est.Customer.Address
	}
	description := fields.Description
	if description == "" {
		description = est.Description
	}
	sourceID := est.ID

	p := &models.Project{
		Name:             name,
		Description:      description,
		Address:          address,
		Customer:         est.Customer,
		Budget:           est.TotalAmount,
		StartDate:        fields.StartDate,
		Status:           models.ProjectStatusActive,
		SourceEstimateID: &sourceID,
		UserID:           est.UserID,
	}
	if err := s.projects.CreateWithFolders(ctx, p, models.DefaultProjectFolders); err != nil {
		return nil, err
	}

	s.log.Info().Str("estimate", est.Number).Int64("project_id", p.ID).Msg("Project created from estimate")
	return p, nil
}

// Project returns one of the caller's projects with its folders
func (s *ConversionService) Project(ctx context.Context, userID, projectID int64) (*models.Project, error) {
	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperr.NotFound("conversion.Project", "project %d not found", projectID)
	}
	return p, nil
}
