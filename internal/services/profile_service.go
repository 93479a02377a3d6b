package services

import (
	"context"
	"encoding/json"
	"errors"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/cache"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/models"

	"github.com/rs/zerolog"
)

type BusinessProfileRepository interface {
	Get(ctx context.Context, userID int64) (*models.BusinessProfile, error)
	Upsert(ctx context.Context, p *models.BusinessProfile) error
}

// ProfileService resolves the business profile printed on documents: the
// user's stored profile, else the configured default. Reads go through Redis
// when it is enabled.
type ProfileService struct {
	repo     BusinessProfileRepository
	cache    *cache.Client
	fallback models.BusinessProfile
	log      zerolog.Logger
}

func NewProfileService(repo BusinessProfileRepository, c *cache.Client, fallback models.BusinessProfile) *ProfileService {
	return &ProfileService{
		repo:     repo,
		cache:    c,
		fallback: fallback,
		log:      logger.WithComponent("profiles"),
	}
}

func (s *ProfileService) Profile(ctx context.Context, userID int64) (models.BusinessProfile, error) {
	if data, ok := s.cache.GetCachedProfile(ctx, userID); ok {
		var p models.BusinessProfile
		if err := json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
	}

	stored, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		p := s.fallback
		p.UserID = userID
		return p, nil
	case err != nil:
		p := s.fallback
		p.UserID = userID
		return p, err
	}

	p := s.withDefaults(*stored)
	if data, err := json.Marshal(p); err == nil {
		s.cache.CacheProfile(ctx, userID, data)
	}
	return p, nil
}

// withDefaults fills blank fields from the configured profile
func (s *ProfileService) withDefaults(p models.BusinessProfile) models.BusinessProfile {
	if p.Name == "" {
		p.Name = s.fallback.Name
	}
	if p.Address == "" {
		p.Address = s.fallback.Address
	}
	if p.Phone == "" {
		p.Phone = s.fallback.Phone
	}
	if p.Email == "" {
		p.Email = s.fallback.Email
	}
	if p.LicenseNumber == "" {
		p.LicenseNumber = s.fallback.LicenseNumber
	}
	return p
}

// Save stores the profile and drops the cached copy
func (s *ProfileService) Save(ctx context.Context, p *models.BusinessProfile) error {
	if err := s.repo.Upsert(ctx, p); err != nil {
		return err
	}
	s.cache.InvalidateKeys(ctx, cache.ProfileKey(p.UserID))
	s.log.Info().Int64("user_id", p.UserID).Msg("Business profile saved")
	return nil
}
