package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/auth"
	"contractor-backend/internal/events"
	"contractor-backend/internal/handlers"
	"contractor-backend/internal/health"
	apphttp "contractor-backend/internal/http"
	"contractor-backend/internal/middleware"
	"contractor-backend/internal/models"
	"contractor-backend/internal/payments"
	"contractor-backend/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "handler-test-secret"

type call struct {
	typ    models.DocumentType
	userID int64
	id     int64
	update models.DocumentUpdate
	send   *models.SendDocumentRequest
}

type fakeDocuments struct {
	calls    []call
	err      error
	artifact []byte
	send     *models.SendDocumentResult
}

func (f *fakeDocuments) doc(t models.DocumentType, id int64) *models.Document {
	return &models.Document{ID: id, Type: t, Number: "INV-2026-0007", Status: models.StatusDraft, TotalAmount: decimal.RequireFromString("275")}
}

func (f *fakeDocuments) Create(_ context.Context, t models.DocumentType, userID int64, _ *models.CreateDocumentRequest) (*models.Document, error) {
	f.calls = append(f.calls, call{typ: t, userID: userID})
	if f.err != nil {
		return nil, f.err
	}
	return f.doc(t, 1), nil
}

func (f *fakeDocuments) Get(_ context.Context, t models.DocumentType, userID, id int64) (*models.Document, error) {
	f.calls = append(f.calls, call{typ: t, userID: userID, id: id})
	if f.err != nil {
		return nil, f.err
	}
	return f.doc(t, id), nil
}

func (f *fakeDocuments) List(_ context.Context, t models.DocumentType, userID int64, _ models.Status, page, pageSize int) (*services.DocumentList, error) {
	f.calls = append(f.calls, call{typ: t, userID: userID})
	if f.err != nil {
		return nil, f.err
	}
	return &services.DocumentList{Documents: []*models.Document{f.doc(t, 1)}, Total: 1, Page: page, PageSize: pageSize}, nil
}

func (f *fakeDocuments) Update(_ context.Context, t models.DocumentType, userID, id int64, upd models.DocumentUpdate) (*models.Document, error) {
	f.calls = append(f.calls, call{typ: t, userID: userID, id: id, update: upd})
	if f.err != nil {
		return nil, f.err
	}
	return f.doc(t, id), nil
}

func (f *fakeDocuments) Delete(_ context.Context, t models.DocumentType, userID, id int64) error {
	f.calls = append(f.calls, call{typ: t, userID: userID, id: id})
	return f.err
}

func (f *fakeDocuments) Artifact(_ context.Context, t models.DocumentType, userID, id int64) ([]byte, *models.Document, error) {
	f.calls = append(f.calls, call{typ: t, userID: userID, id: id})
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.artifact, f.doc(t, id), nil
}

func (f *fakeDocuments) RegenerateArtifact(ctx context.Context, t models.DocumentType, userID, id int64) ([]byte, *models.Document, error) {
	return f.Artifact(ctx, t, userID, id)
}

func (f *fakeDocuments) Send(_ context.Context, t models.DocumentType, userID, id int64, req *models.SendDocumentRequest) (*models.SendDocumentResult, error) {
	f.calls = append(f.calls, call{typ: t, userID: userID, id: id, send: req})
	if f.err != nil {
		return nil, f.err
	}
	return f.send, nil
}

type fakeConversion struct {
	err    error
	fields models.ProjectFields
}

func (f *fakeConversion) CreateInvoiceFromEstimate(_ context.Context, _, estimateID int64) (*models.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	src := estimateID
	return &models.Document{ID: 9, Type: models.DocumentTypeInvoice, Number: "INV-2026-0001", SourceDocumentID: &src}, nil
}

func (f *fakeConversion) CreateProjectFromEstimate(_ context.Context, _, _ int64, fields models.ProjectFields) (*models.Project, error) {
	f.fields = fields
	if f.err != nil {
		return nil, f.err
	}
	return &models.Project{ID: 3, Name: fields.Name}, nil
}

func (f *fakeConversion) Project(_ context.Context, userID, projectID int64) (*models.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Project{ID: projectID, Name: "Reyes residence", UserID: userID}, nil
}

type fakeCheckout struct{ err error }

func (f *fakeCheckout) CreateCheckout(_ context.Context, _, invoiceID int64) (*models.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.CheckoutSession{InvoiceID: invoiceID, Provider: "razorpay", Reference: "order_1", Amount: 27500, Currency: "INR"}, nil
}

type fakeWebhooks struct {
	err       error
	signature string
	body      string
}

func (f *fakeWebhooks) HandleWebhook(_ context.Context, provider string, body []byte, signature string) (*models.PaymentEvent, error) {
	f.signature = signature
	f.body = string(body)
	if f.err != nil {
		return nil, f.err
	}
	return &models.PaymentEvent{Provider: provider, EventID: "payment.captured:pay_1", Outcome: models.OutcomeApplied}, nil
}

type fakeProfiles struct{ saved *models.BusinessProfile }

func (f *fakeProfiles) Profile(_ context.Context, userID int64) (models.BusinessProfile, error) {
	return models.BusinessProfile{UserID: userID, Name: "Bright Spark Electric"}, nil
}

func (f *fakeProfiles) Save(_ context.Context, p *models.BusinessProfile) error {
	f.saved = p
	return nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type server struct {
	handler    http.Handler
	docs       *fakeDocuments
	conversion *fakeConversion
	checkout   *fakeCheckout
	webhooks   *fakeWebhooks
	profiles   *fakeProfiles
	token      string
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{
		docs:       &fakeDocuments{},
		conversion: &fakeConversion{},
		checkout:   &fakeCheckout{},
		webhooks:   &fakeWebhooks{},
		profiles:   &fakeProfiles{},
	}

	jwt := auth.NewJWTManager(secret, "contractor-backend")
	token, err := jwt.GenerateToken(7, "owner@brightspark.test", time.Hour)
	require.NoError(t, err)
	s.token = token

	registry := payments.NewRegistry(payments.ProviderRazorpay, payments.NewRazorpayProvider(payments.RazorpayOptions{WebhookSecret: "x"}))

	router := apphttp.NewRouter(
		handlers.NewDocumentHandler(s.docs, models.DocumentTypeEstimate),
		handlers.NewDocumentHandler(s.docs, models.DocumentTypeInvoice),
		handlers.NewDocumentHandler(s.docs, models.DocumentTypeChangeOrder),
		handlers.NewConversionHandler(s.conversion),
		handlers.NewPaymentHandler(s.checkout, s.webhooks, registry),
		handlers.NewProfileHandler(s.profiles),
		handlers.NewEventsHandler(events.NewHub()),
		handlers.NewHealthHandler(health.NewHealthChecker(okPinger{}, nil, nil)),
		middleware.NewAuthMiddleware(jwt),
	)
	s.handler = apphttp.Wrap(router, func(h http.Handler) http.Handler { return h })
	return s
}

func (s *server) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func TestRequiresToken(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, s.docs.calls)
}

func TestCreateRoutesByDocumentType(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/api/change-orders", `{"title":"Add circuit","items":[{"description":"Breaker","quantity":"1","unit_price":"40"}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, s.docs.calls, 1)
	assert.Equal(t, models.DocumentTypeChangeOrder, s.docs.calls[0].typ)
	assert.Equal(t, int64(7), s.docs.calls[0].userID)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{apperr.Validation("op", "invoice requires at least one line item"), http.StatusBadRequest},
		{apperr.NotFound("op", "invoice 5 not found"), http.StatusNotFound},
		{apperr.Conflict("op", "cannot move Estimate from approved to sent"), http.StatusConflict},
		{apperr.Unavailable("op", "document renderer", nil), http.StatusServiceUnavailable},
		{apperr.RenderFailure("op", errors.New("timeout")), http.StatusBadGateway},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		s := newServer(t)
		s.docs.err = tt.err
		w := s.do(http.MethodGet, "/api/invoices/5", "")
		assert.Equal(t, tt.code, w.Code, tt.err.Error())
	}
}

func TestUpdateDecodesPerTypeVariant(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPut, "/api/invoices/5", `{"status":"sent","due_date":"2026-05-01T00:00:00Z","valid_until":"2026-06-01T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, s.docs.calls, 1)
	upd, ok := s.docs.calls[0].update.(*models.InvoiceUpdate)
	require.True(t, ok)
	require.NotNil(t, upd.Status)
	assert.Equal(t, models.StatusSent, *upd.Status)
	require.NotNil(t, upd.DueDate)
	assert.Equal(t, 5, int(upd.DueDate.Month()))
	assert.Equal(t, int64(5), s.docs.calls[0].id)
}

func TestListPassesPaging(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/api/estimates?page=2&page_size=5&status=draft", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list services.DocumentList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Page)
	assert.Equal(t, 5, list.PageSize)
}

func TestArtifactHeaders(t *testing.T) {
	s := newServer(t)
	s.docs.artifact = []byte("%PDF-1.3\n%test")

	w := s.do(http.MethodGet, "/api/invoices/5/pdf?download=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="INV-2026-0007.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3\n%test", w.Body.String())

	w = s.do(http.MethodGet, "/api/invoices/5/pdf", "")
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "inline"))
}

func TestSendOutcomes(t *testing.T) {
	s := newServer(t)

	s.docs.send = &models.SendDocumentResult{Success: true}
	w := s.do(http.MethodPost, "/api/estimates/5/send", "")
	assert.Equal(t, http.StatusOK, w.Code)

	s.docs.send = &models.SendDocumentResult{Unavailable: true, Error: "email service is not configured"}
	w = s.do(http.MethodPost, "/api/estimates/5/send", `{"recipient_email":"gc@example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "email service is not configured")
	assert.Equal(t, "gc@example.com", s.docs.calls[1].send.RecipientEmail)

	s.docs.send = &models.SendDocumentResult{Error: "smtp timeout"}
	w = s.do(http.MethodPost, "/api/estimates/5/send", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestConversionRoutes(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/api/estimates/4/convert/invoice", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"source_document_id":4`)

	w = s.do(http.MethodPost, "/api/estimates/4/convert/project", `{"name":"Reyes residence"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Reyes residence", s.conversion.fields.Name)

	w = s.do(http.MethodGet, "/api/projects/3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":3`)
	assert.Contains(t, w.Body.String(), `"user_id":7`)

	s.conversion.err = apperr.Conflict("convert", "estimate EST-2026-0001 must be approved")
	w = s.do(http.MethodPost, "/api/estimates/4/convert/invoice", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckout(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/api/invoices/5/checkout", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"reference":"order_1"`)

	s.checkout.err = apperr.Unavailable("checkout", "payments", payments.ErrNotConfigured)
	w = s.do(http.MethodPost, "/api/invoices/5/checkout", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func webhook(s *server, provider, sig, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", sig)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func TestWebhookAcknowledgesAndPassesSignature(t *testing.T) {
	s := newServer(t)

	w := webhook(s, "razorpay", "abc123", `{"event":"payment.captured"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123", s.webhooks.signature)
	assert.Equal(t, `{"event":"payment.captured"}`, s.webhooks.body)
	assert.Contains(t, w.Body.String(), `"outcome":"applied"`)
}

func TestWebhookFailures(t *testing.T) {
	s := newServer(t)

	w := webhook(s, "paypal", "sig", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.webhooks.err = apperr.Rejected("webhook", payments.ErrInvalidSignature)
	w = webhook(s, "razorpay", "bad", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s.webhooks.body = ""
	big := `{"event":"payment.captured","pad":"` + strings.Repeat("x", 70<<10) + `"}`
	w = webhook(s, "razorpay", "sig", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, s.webhooks.body, "oversized delivery never reaches verification")

	s.webhooks.err = errors.New("database is down")
	w = webhook(s, "razorpay", "sig", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBusinessProfile(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPut, "/api/business-profile", `{"user_id":99,"name":"Bright Spark Electric","license_number":"EC-4411"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.profiles.saved)
	assert.Equal(t, int64(7), s.profiles.saved.UserID, "user comes from the token")

	w = s.do(http.MethodGet, "/api/business-profile", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bright Spark Electric")
}

func TestHealthIsPublic(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}
