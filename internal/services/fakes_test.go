package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/artifacts"
	"contractor-backend/internal/events"
	"contractor-backend/internal/lifecycle"
	"contractor-backend/internal/models"
	"contractor-backend/internal/notify"
	"contractor-backend/internal/numbering"
	"contractor-backend/internal/render"
	"contractor-backend/internal/storage"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// memoryDocs mirrors the Postgres repository: numbers come from a per-scope
// counter, and every mutation bumps the revision and clears the artifact handle.
type memoryDocs struct {
	mu       sync.Mutex
	nextID   int64
	counters map[numbering.Scope]int64
	docs     map[int64]*models.Document
	projects []*models.Project
	// failCreate simulates the counter or insert failing mid-transaction
	failCreate error
}

func newMemoryDocs() *memoryDocs {
	return &memoryDocs{
		counters: map[numbering.Scope]int64{},
		docs:     map[int64]*models.Document{},
	}
}

func clone(d *models.Document) *models.Document {
	cp := *d
	cp.Items = append([]models.LineItem(nil), d.Items...)
	if d.Payment != nil {
		p := *d.Payment
		cp.Payment = &p
	}
	return &cp
}

type lockedSequence struct{ m *memoryDocs }

func (s lockedSequence) NextValue(_ context.Context, scope numbering.Scope) (int64, error) {
	s.m.counters[scope]++
	return s.m.counters[scope], nil
}

func (m *memoryDocs) Create(ctx context.Context, doc *models.Document, year int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}

	before := m.counters[numbering.Scope{Type: doc.Type, Year: year}]
	number, err := numbering.Next(ctx, lockedSequence{m}, doc.Type, year)
	if err != nil {
		m.counters[numbering.Scope{Type: doc.Type, Year: year}] = before
		return err
	}

	m.nextID++
	doc.ID = m.nextID
	doc.Number = number
	doc.Revision = 1
	doc.CreatedAt = testNow
	doc.UpdatedAt = testNow
	if doc.Type == models.DocumentTypeInvoice && doc.Payment == nil {
		doc.Payment = &models.PaymentRecord{}
	}
	for i := range doc.Items {
		doc.Items[i].ID = doc.ID*100 + int64(i)
		doc.Items[i].DocumentID = doc.ID
	}
	stored := clone(doc)
	stored.TaxRate = stored.TaxRate.Round(4) // NUMERIC(7,4)
	m.docs[doc.ID] = stored
	return nil
}

func (m *memoryDocs) Get(_ context.Context, id int64) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("memory.Get", "document %d not found", id)
	}
	return clone(d), nil
}

func (m *memoryDocs) List(_ context.Context, f models.DocumentFilter) ([]*models.Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Document
	for _, d := range m.docs {
		if d.Type != f.Type || d.UserID != f.UserID {
			continue
		}
		status := d.Status
		if f.Today != nil {
			status = lifecycle.EffectiveStatus(d, *f.Today)
		}
		if f.Status != "" && status != f.Status {
			continue
		}
		all = append(all, clone(d))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *memoryDocs) Update(_ context.Context, doc *models.Document, replaceItems bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[doc.ID]
	if !ok {
		return apperr.NotFound("memory.Update", "document %d not found", doc.ID)
	}
	next := clone(doc)
	next.Payment = cur.Payment
	if !replaceItems {
		next.Items = cur.Items
	}
	next.Revision = cur.Revision + 1
	next.ArtifactKey = ""
	next.ArtifactRevision = 0
	next.TaxRate = next.TaxRate.Round(4)
	m.docs[doc.ID] = next

	doc.Revision = next.Revision
	doc.ArtifactKey = ""
	doc.ArtifactRevision = 0
	return nil
}

func (m *memoryDocs) Delete(_ context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return "", apperr.NotFound("memory.Delete", "document %d not found", id)
	}
	delete(m.docs, id)
	return d.ArtifactKey, nil
}

func (m *memoryDocs) SetArtifact(_ context.Context, id int64, key string, revision int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.Revision != revision {
		return false, nil
	}
	d.ArtifactKey = key
	d.ArtifactRevision = revision
	return true, nil
}

func (m *memoryDocs) FindByPaymentReference(_ context.Context, reference string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.Type == models.DocumentTypeInvoice && d.Payment != nil && d.Payment.ProviderReference == reference {
			return clone(d), nil
		}
	}
	return nil, apperr.NotFound("memory.FindByPaymentReference", "no invoice for %s", reference)
}

func (m *memoryDocs) MarkPaymentSucceeded(_ context.Context, id int64, reference, eventID string, today time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.Type != models.DocumentTypeInvoice || d.Payment.Status == models.PaymentStatusSucceeded {
		return "", false, nil
	}
	stale := d.ArtifactKey
	d.Status = models.StatusPaid
	d.Payment.Status = models.PaymentStatusSucceeded
	d.Payment.Method = models.PaymentMethodCard
	d.Payment.LastEventID = eventID
	if reference != "" {
		d.Payment.ProviderReference = reference
	}
	if d.PaidDate == nil {
		t := today
		d.PaidDate = &t
	}
	d.Revision++
	d.ArtifactKey = ""
	d.ArtifactRevision = 0
	return stale, true, nil
}

func (m *memoryDocs) MarkPaymentFailed(_ context.Context, id int64, reference, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.Type != models.DocumentTypeInvoice || d.Payment.Status == models.PaymentStatusSucceeded {
		return false, nil
	}
	d.Payment.Status = models.PaymentStatusFailed
	d.Payment.LastEventID = eventID
	if reference != "" {
		d.Payment.ProviderReference = reference
	}
	return true, nil
}

func (m *memoryDocs) SetPaymentReference(_ context.Context, id int64, provider, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docs[id]
	if d.Payment.Status == models.PaymentStatusSucceeded {
		return apperr.Conflict("memory.SetPaymentReference", "already paid")
	}
	d.Payment.Provider = provider
	d.Payment.ProviderReference = reference
	d.Payment.Status = models.PaymentStatusPending
	return nil
}

func (m *memoryDocs) MarkOverdue(_ context.Context, today time.Time) (map[int64]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	moved := map[int64]string{}
	for id, d := range m.docs {
		if d.Type != models.DocumentTypeInvoice || d.DueDate == nil || !d.DueDate.Before(today) {
			continue
		}
		if d.Status != models.StatusDraft && d.Status != models.StatusSent {
			continue
		}
		moved[id] = d.ArtifactKey
		d.Status = models.StatusOverdue
		d.Revision++
		d.ArtifactKey = ""
	}
	return moved, nil
}

func (m *memoryDocs) CreateWithFolders(_ context.Context, p *models.Project, folders []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = int64(len(m.projects) + 1)
	p.CreatedAt = testNow
	for i, name := range folders {
		p.Folders = append(p.Folders, models.ProjectFolder{ID: int64(i + 1), ProjectID: p.ID, Name: name, Position: i + 1})
	}
	m.projects = append(m.projects, p)
	return nil
}

func (m *memoryDocs) GetProject(_ context.Context, id int64) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("memory.GetProject", "project %d not found", id)
}

func (m *memoryDocs) stored(id int64) *models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.docs[id])
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects { return &memObjects{objects: map[string][]byte{}} }

func (s *memObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *memObjects) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return d, nil
}

func (s *memObjects) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memObjects) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

type textRenderer struct {
	unavailable bool
	calls       atomic.Int32
}

func (r *textRenderer) Available() bool { return !r.unavailable }

func (r *textRenderer) Render(_ context.Context, in render.Input) ([]byte, error) {
	r.calls.Add(1)
	return []byte(fmt.Sprintf("%s status=%s total=%s", in.Document.Number, in.Document.Status, in.Document.TotalAmount.StringFixed(2))), nil
}

type fakeMailer struct {
	available bool
	fail      string
	sent      []notify.Message
}

func (m *fakeMailer) Available() bool { return m.available }

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) notify.Result {
	if m.fail != "" {
		return notify.Result{Error: m.fail}
	}
	m.sent = append(m.sent, msg)
	return notify.Result{Success: true}
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type staticProfiles struct{}

func (staticProfiles) Profile(_ context.Context, userID int64) (models.BusinessProfile, error) {
	return models.BusinessProfile{UserID: userID, Name: "Bright Spark Electric", Email: "office@brightspark.test"}, nil
}

type fixture struct {
	docs      *memoryDocs
	objects   *memObjects
	renderer  *textRenderer
	mailer    *fakeMailer
	events    *recordedEvents
	artifacts *artifacts.Service
	documents *DocumentService
	convert   *ConversionService
}

const testUser int64 = 1

func newFixture() *fixture {
	f := &fixture{
		docs:     newMemoryDocs(),
		objects:  newMemObjects(),
		renderer: &textRenderer{},
		mailer:   &fakeMailer{available: true},
		events:   &recordedEvents{},
	}
	f.artifacts = artifacts.NewService(f.docs, f.objects, f.renderer, staticProfiles{}, nil, time.Second)
	f.documents = NewDocumentService(f.docs, f.artifacts, f.mailer, staticProfiles{}, f.events, 30).WithClock(fixedClock(testNow))
	f.convert = NewConversionService(f.docs, f.docs, f.events, 30).WithClock(fixedClock(testNow))
	return f
}
