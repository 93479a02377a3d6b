package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/events"
	"contractor-backend/internal/lifecycle"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/metrics"
	"contractor-backend/internal/models"
	"contractor-backend/internal/notify"
	"contractor-backend/internal/pricing"
	"contractor-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// DocumentRepository is the persistence used by the document services
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document, year int) error
	Get(ctx context.Context, id int64) (*models.Document, error)
	List(ctx context.Context, f models.DocumentFilter) ([]*models.Document, int, error)
	Update(ctx context.Context, doc *models.Document, replaceItems bool) error
	Delete(ctx context.Context, id int64) (string, error)
}

// ArtifactCache is the rendered-artifact collaborator
type ArtifactCache interface {
	Get(ctx context.Context, id int64) ([]byte, error)
	Refresh(ctx context.Context, id int64) ([]byte, error)
	Invalidate(ctx context.Context, key string)
}

type ArtifactWarmer interface {
	Enqueue(id int64)
}

type Mailer interface {
	Available() bool
	Send(ctx context.Context, msg notify.Message) notify.Result
}

type EventPublisher interface {
	Publish(e events.Event)
}

type ProfileProvider interface {
	Profile(ctx context.Context, userID int64) (models.BusinessProfile, error)
}

// DocumentList is one page of documents
type DocumentList struct {
	Documents []*models.Document `json:"documents"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	PageSize  int                `json:"page_size"`
}

type DocumentService struct {
	docs      DocumentRepository
	artifacts ArtifactCache
	mailer    Mailer
	profiles  ProfileProvider
	events    EventPublisher
	warmer    ArtifactWarmer

	paymentTermsDays int
	now              func() time.Time
	log              zerolog.Logger
}

func NewDocumentService(docs DocumentRepository, artifacts ArtifactCache, mailer Mailer, profiles ProfileProvider, publisher EventPublisher, paymentTermsDays int) *DocumentService {
	return &DocumentService{
		docs:             docs,
		artifacts:        artifacts,
		mailer:           mailer,
		profiles:         profiles,
		events:           publisher,
		paymentTermsDays: paymentTermsDays,
		now:              timeutil.Now,
		log:              logger.WithComponent("documents"),
	}
}

// WithWarmer enables background rendering after writes
func (s *DocumentService) WithWarmer(w ArtifactWarmer) *DocumentService {
	s.warmer = w
	return s
}

func (s *DocumentService) WithClock(now func() time.Time) *DocumentService {
	s.now = now
	return s
}

// Create prices the items and persists a new draft with a freshly allocated
// number. Rendering is never part of creation.
func (s *DocumentService) Create(ctx context.Context, t models.DocumentType, userID int64, req *models.CreateDocumentRequest) (*models.Document, error) {
	if !t.Valid() {
		return nil, apperr.Validation("documents.Create", "unknown document type %q", t)
	}
	if req == nil {
		return nil, apperr.Validation("documents.Create", "request body is required")
	}

	totals, err := pricing.Compute(t, req.Items, req.TaxRate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	doc := &models.Document{
		Type:            t,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Customer:        req.Customer,
		CustomerID:      req.CustomerID,
		ProjectID:       req.ProjectID,
		Status:          models.StatusDraft,
		StatusChangedAt: now,
		Notes:           req.Notes,
		UserID:          userID,
	}
	totals.Apply(doc)

	switch t {
	case models.DocumentTypeEstimate:
		doc.DueDate = req.DueDate
		doc.OriginalFileKey = req.OriginalFileKey
	case models.DocumentTypeInvoice:
		doc.DueDate = req.DueDate
		if doc.DueDate == nil {
			due := s.defaultDueDate(now)
			doc.DueDate = &due
		}
	}

	if err := s.docs.Create(ctx, doc, now.Year()); err != nil {
		return nil, err
	}

	metrics.DocumentsCreated.WithLabelValues(string(t), "direct").Inc()
	s.log.Info().
		Int64("document_id", doc.ID).
		Str("number", doc.Number).
		Str("total", doc.TotalAmount.StringFixed(2)).
		Msg("Document created")

	s.afterWrite(doc, events.DocumentCreated)
	return s.present(doc), nil
}

func (s *DocumentService) defaultDueDate(now time.Time) time.Time {
	return timeutil.StartOfDay(now).AddDate(0, 0, s.paymentTermsDays)
}

// Get returns a document of type t owned by userID
func (s *DocumentService) Get(ctx context.Context, t models.DocumentType, userID, id int64) (*models.Document, error) {
	doc, err := s.load(ctx, t, userID, id)
	if err != nil {
		return nil, err
	}
	return s.present(doc), nil
}

// load fetches and checks ownership; documents of other types or users read as missing
func (s *DocumentService) load(ctx context.Context, t models.DocumentType, userID, id int64) (*models.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Type != t || doc.UserID != userID {
		return nil, apperr.NotFound("documents.Get", "%s %d not found", strings.ToLower(t.Label()), id)
	}
	return doc, nil
}

// present sets the status a reader sees, which for past-due invoices is overdue
func (s *DocumentService) present(doc *models.Document) *models.Document {
	doc.Status = lifecycle.EffectiveStatus(doc, s.now())
	return doc
}

func (s *DocumentService) List(ctx context.Context, t models.DocumentType, userID int64, status models.Status, page, pageSize int) (*DocumentList, error) {
	if status != "" && !lifecycle.ValidStatus(t, status) {
		return nil, apperr.Validation("documents.List", "%q is not a valid %s status", status, t.Label())
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	today := timeutil.StartOfDay(s.now())
	docs, total, err := s.docs.List(ctx, models.DocumentFilter{
		Type:   t,
		Status: status,
		UserID: userID,
		Today:  &today,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		s.present(d)
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return &DocumentList{Documents: docs, Total: total, Page: page, PageSize: pageSize}, nil
}

// Update applies a per-type update. Status changes go through the status
// machine; item or tax changes reprice the document in the same write.
func (s *DocumentService) Update(ctx context.Context, t models.DocumentType, userID, id int64, upd models.DocumentUpdate) (*models.Document, error) {
	if upd == nil || upd.DocumentType() != t {
		return nil, apperr.Validation("documents.Update", "update does not match document type %s", t)
	}

	doc, err := s.load(ctx, t, userID, id)
	if err != nil {
		return nil, err
	}
	staleKey := doc.ArtifactKey
	base := upd.Base()
	now := s.now()

	upd.ApplyTo(doc)
	if base.Status != nil {
		if _, err := lifecycle.Transition(doc, *base.Status, now); err != nil {
			return nil, err
		}
	}

	reprice := base.RepricesDocument()
	if reprice {
		items := pricing.Inputs(doc.Items)
		if base.Items != nil {
			items = *base.Items
		}
		rate := doc.TaxRate
		if base.TaxRate != nil {
			rate = *base.TaxRate
		}
		totals, err := pricing.Compute(t, items, rate)
		if err != nil {
			return nil, err
		}
		totals.Apply(doc)
	}

	if err := s.docs.Update(ctx, doc, reprice); err != nil {
		return nil, err
	}
	s.artifacts.Invalidate(ctx, staleKey)

	s.log.Info().Int64("document_id", doc.ID).Str("status", string(doc.Status)).Bool("repriced", reprice).Msg("Document updated")
	s.afterWrite(doc, events.DocumentUpdated)
	return s.present(doc), nil
}

// Delete removes the document and its items; the artifact object goes best-effort
func (s *DocumentService) Delete(ctx context.Context, t models.DocumentType, userID, id int64) error {
	doc, err := s.load(ctx, t, userID, id)
	if err != nil {
		return err
	}
	key, err := s.docs.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.artifacts.Invalidate(ctx, key)

	s.log.Info().Int64("document_id", id).Str("number", doc.Number).Msg("Document deleted")
	s.publish(events.DocumentEvent(events.DocumentDeleted, doc))
	return nil
}

// Artifact returns the rendered document, or the uploaded original for estimates
func (s *DocumentService) Artifact(ctx context.Context, t models.DocumentType, userID, id int64) ([]byte, *models.Document, error) {
	doc, err := s.load(ctx, t, userID, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.artifacts.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return data, doc, nil
}

// RegenerateArtifact discards the cached artifact and renders a new one
func (s *DocumentService) RegenerateArtifact(ctx context.Context, t models.DocumentType, userID, id int64) ([]byte, *models.Document, error) {
	doc, err := s.load(ctx, t, userID, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.artifacts.Refresh(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return data, doc, nil
}

// Send emails the document to its customer with the artifact attached. A
// successful send moves a draft to sent. Mail being unavailable is reported
// in the result, never as an error.
func (s *DocumentService) Send(ctx context.Context, t models.DocumentType, userID, id int64, req *models.SendDocumentRequest) (*models.SendDocumentResult, error) {
	doc, err := s.load(ctx, t, userID, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		req = &models.SendDocumentRequest{}
	}

	recipient := strings.TrimSpace(req.RecipientEmail)
	if recipient == "" {
		recipient = strings.TrimSpace(doc.Customer.Email)
	}
	if recipient == "" {
		return nil, apperr.Validation("documents.Send", "recipient email is required")
	}

	if s.mailer == nil || !s.mailer.Available() {
		metrics.EmailsSent.WithLabelValues("unavailable").Inc()
		return &models.SendDocumentResult{
			Unavailable: true,
			Error:       "email service is not configured",
			Document:    s.present(doc),
		}, nil
	}

	profile := s.profile(ctx, userID)
	senderName := strings.TrimSpace(req.SenderName)
	if senderName == "" {
		senderName = profile.Name
	}

	msg := notify.Message{
		To:       recipient,
		FromName: senderName,
		ReplyTo:  profile.Email,
		Subject:  fmt.Sprintf("%s %s from %s", t.Label(), doc.Number, senderName),
		Body:     sendBody(doc, req.Message, senderName),
	}

	// the email still goes out without an attachment when rendering is down
	if data, err := s.artifacts.Get(ctx, id); err == nil {
		msg.Attach = append(msg.Attach, notify.Attachment{
			Filename:    doc.Number + ".pdf",
			ContentType: "application/pdf",
			Data:        data,
		})
	} else {
		s.log.Warn().Err(err).Int64("document_id", id).Msg("Sending without artifact attachment")
	}

	res := s.mailer.Send(ctx, msg)
	if !res.Success {
		result := "failed"
		if res.Unavailable {
			result = "unavailable"
		}
		metrics.EmailsSent.WithLabelValues(result).Inc()
		return &models.SendDocumentResult{
			Unavailable: res.Unavailable,
			Error:       res.Error,
			Document:    s.present(doc),
		}, nil
	}
	metrics.EmailsSent.WithLabelValues("sent").Inc()

	sent, err := s.markSent(ctx, id)
	if err != nil {
		// the email is out; report the send and surface the status problem in the log
		s.log.Error().Err(err).Int64("document_id", id).Msg("Email sent but status update failed")
		sent = doc
	}
	return &models.SendDocumentResult{Success: true, Document: s.present(sent)}, nil
}

// markSent re-reads the document so the artifact handle written by the
// attachment render is the one invalidated.
func (s *DocumentService) markSent(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	staleKey := doc.ArtifactKey
	if !lifecycle.MarkSent(doc, s.now()) {
		return doc, nil
	}
	if err := s.docs.Update(ctx, doc, false); err != nil {
		return nil, err
	}
	s.artifacts.Invalidate(ctx, staleKey)
	s.afterWrite(doc, events.DocumentSent)
	return doc, nil
}

func sendBody(doc *models.Document, message, sender string) string {
	var b strings.Builder
	if message = strings.TrimSpace(message); message != "" {
		b.WriteString(message)
		b.WriteString("\n\n")
	} else {
		name := doc.Customer.Name
		if name == "" {
			name = "there"
		}
		fmt.Fprintf(&b, "Hi %s,\n\nPlease find %s %s attached.\n\n", name, strings.ToLower(doc.Type.Label()), doc.Number)
	}
	fmt.Fprintf(&b, "Total: %s\n", doc.TotalAmount.StringFixed(2))
	if doc.Type == models.DocumentTypeInvoice && doc.DueDate != nil {
		fmt.Fprintf(&b, "Due: %s\n", timeutil.Format(*doc.DueDate, timeutil.DisplayLayout))
	}
	if sender != "" {
		fmt.Fprintf(&b, "\nThank you,\n%s\n", sender)
	}
	return b.String()
}

func (s *DocumentService) profile(ctx context.Context, userID int64) models.BusinessProfile {
	if s.profiles == nil {
		return models.BusinessProfile{UserID: userID}
	}
	p, err := s.profiles.Profile(ctx, userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("Business profile lookup failed")
	}
	return p
}

func (s *DocumentService) afterWrite(doc *models.Document, kind string) {
	if s.warmer != nil {
		s.warmer.Enqueue(doc.ID)
	}
	s.publish(events.DocumentEvent(kind, doc))
}

func (s *DocumentService) publish(e events.Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}
