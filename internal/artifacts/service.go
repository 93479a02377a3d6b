// Package artifacts serves rendered PDFs of documents, caching them in object
// storage until the document changes.
//
// A document row carries a revision that every mutation bumps, plus the key
// and revision of its last rendered artifact. A cached artifact is served only
// when the two revisions match, so a mutation committed in the database can
// never be followed by a stale read, even if deleting the old object failed.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/cache"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/metrics"
	"contractor-backend/internal/models"
	"contractor-backend/internal/render"
	"contractor-backend/internal/storage"

	"github.com/rs/zerolog"
)

const contentTypePDF = "application/pdf"

// DocumentStore is the persistence the cache needs
type DocumentStore interface {
	Get(ctx context.Context, id int64) (*models.Document, error)
	// SetArtifact records key as the artifact of revision, unless the document
	// has moved past that revision. It reports whether the handle was stored.
	SetArtifact(ctx context.Context, id int64, key string, revision int) (bool, error)
}

type Renderer interface {
	Available() bool
	Render(ctx context.Context, in render.Input) ([]byte, error)
}

type ProfileProvider interface {
	Profile(ctx context.Context, userID int64) (models.BusinessProfile, error)
}

type Service struct {
	docs     DocumentStore
	objects  storage.ObjectStore
	renderer Renderer
	profiles ProfileProvider
	locks    *cache.Client
	timeout  time.Duration
	log      zerolog.Logger
}

// NewService wires the cache. locks may be nil when Redis is not configured.
func NewService(docs DocumentStore, objects storage.ObjectStore, renderer Renderer, profiles ProfileProvider, locks *cache.Client, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		docs:     docs,
		objects:  objects,
		renderer: renderer,
		profiles: profiles,
		locks:    locks,
		timeout:  timeout,
		log:      logger.WithComponent("artifacts"),
	}
}

// ObjectKey is where the artifact of a document revision is stored
func ObjectKey(doc *models.Document) string {
	return fmt.Sprintf("documents/%s/%d/%s-r%d.pdf", doc.Type, doc.ID, doc.Number, doc.Revision)
}

// Get returns the artifact for the document's current state, rendering it on a miss.
func (s *Service) Get(ctx context.Context, id int64) ([]byte, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, ok := s.original(ctx, doc); ok {
		metrics.ArtifactRequests.WithLabelValues("original").Inc()
		return data, nil
	}

	if data, ok := s.cached(ctx, doc); ok {
		metrics.ArtifactRequests.WithLabelValues("hit").Inc()
		return data, nil
	}

	metrics.ArtifactRequests.WithLabelValues("miss").Inc()
	return s.render(ctx, doc, false)
}

// Refresh discards any cached artifact and renders a new one
func (s *Service) Refresh(ctx context.Context, id int64) ([]byte, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.ArtifactKey != "" {
		s.Invalidate(ctx, doc.ArtifactKey)
	}
	return s.render(ctx, doc, true)
}

// Invalidate deletes a stale artifact object. The handle itself is cleared by
// the mutating statement, so failures here only leave an orphaned object.
func (s *Service) Invalidate(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.objects.Delete(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to delete stale artifact")
	}
}

// original returns an estimate's uploaded document, which is preferred over a rendered one
func (s *Service) original(ctx context.Context, doc *models.Document) ([]byte, bool) {
	if doc.Type != models.DocumentTypeEstimate || doc.OriginalFileKey == "" {
		return nil, false
	}
	data, err := s.objects.Get(ctx, doc.OriginalFileKey)
	if err != nil || len(data) == 0 {
		s.log.Warn().Err(err).Int64("document_id", doc.ID).Msg("Original estimate file unreadable, rendering instead")
		return nil, false
	}
	return data, true
}

func (s *Service) cached(ctx context.Context, doc *models.Document) ([]byte, bool) {
	if !doc.HasFreshArtifact() {
		return nil, false
	}
	data, err := s.objects.Get(ctx, doc.ArtifactKey)
	if err != nil || len(data) == 0 {
		s.log.Warn().Err(err).Int64("document_id", doc.ID).Str("key", doc.ArtifactKey).Msg("Cached artifact missing or empty, regenerating")
		return nil, false
	}
	return data, true
}

func (s *Service) render(ctx context.Context, doc *models.Document, force bool) ([]byte, error) {
	const op = "artifacts.Render"

	if s.renderer == nil || !s.renderer.Available() {
		metrics.RenderFailures.WithLabelValues("unavailable").Inc()
		return nil, apperr.Unavailable(op, "document renderer", nil)
	}

	lock, ok := s.locks.TryRenderLock(ctx, doc.ID, doc.Revision, s.timeout)
	if !ok && !force {
		// another replica is rendering this revision; take its result if it lands
		waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
		s.locks.WaitRenderLock(waitCtx, doc.ID, doc.Revision)
		cancel()
		if fresh, err := s.docs.Get(ctx, doc.ID); err == nil {
			if data, ok := s.cached(ctx, fresh); ok {
				return data, nil
			}
			doc = fresh
		}
	}
	defer lock.Release(context.WithoutCancel(ctx))

	in := render.Input{Document: doc}
	in.Profile, in.Logo = s.profile(ctx, doc.UserID)

	renderCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	data, err := s.renderer.Render(renderCtx, in)
	metrics.RenderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.RenderFailures.WithLabelValues(reason).Inc()
		s.log.Error().Err(err).Int64("document_id", doc.ID).Str("reason", reason).Msg("Render failed")
		return nil, apperr.RenderFailure(op, err)
	}
	if len(data) == 0 {
		metrics.RenderFailures.WithLabelValues("error").Inc()
		return nil, apperr.RenderFailure(op, errors.New("renderer returned no data"))
	}

	key := ObjectKey(doc)
	if err := s.objects.Put(ctx, key, data, contentTypePDF); err != nil {
		// the bytes are good; the next read simply renders again
		metrics.RenderFailures.WithLabelValues("storage").Inc()
		s.log.Error().Err(err).Int64("document_id", doc.ID).Msg("Failed to store artifact")
		return data, nil
	}

	stored, err := s.docs.SetArtifact(ctx, doc.ID, key, doc.Revision)
	switch {
	case err != nil:
		s.log.Error().Err(err).Int64("document_id", doc.ID).Msg("Failed to record artifact handle")
	case !stored:
		// document changed while rendering; this object describes an old revision
		s.Invalidate(ctx, key)
	case doc.ArtifactKey != "" && doc.ArtifactKey != key:
		s.Invalidate(ctx, doc.ArtifactKey)
	}

	s.log.Debug().Int64("document_id", doc.ID).Str("key", key).Int("bytes", len(data)).Msg("Artifact rendered")
	return data, nil
}

func (s *Service) profile(ctx context.Context, userID int64) (models.BusinessProfile, []byte) {
	if s.profiles == nil {
		return models.BusinessProfile{}, nil
	}
	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("Business profile unavailable, rendering without it")
		return models.BusinessProfile{}, nil
	}
	if profile.LogoKey == "" {
		return profile, nil
	}
	logo, err := s.objects.Get(ctx, profile.LogoKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", profile.LogoKey).Msg("Logo unavailable")
		return profile, nil
	}
	return profile, logo
}
