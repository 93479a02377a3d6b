package services

import (
	"context"
	"time"

	"contractor-backend/internal/logger"
	"contractor-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

type OverdueRepository interface {
	MarkOverdue(ctx context.Context, today time.Time) (map[int64]string, error)
}

// OverdueService persists the overdue status that readers already see lazily,
// so reports and filters by stored status agree.
type OverdueService struct {
	docs      OverdueRepository
	artifacts ArtifactInvalidator
	now       func() time.Time
	log       zerolog.Logger
}

func NewOverdueService(docs OverdueRepository, artifacts ArtifactInvalidator) *OverdueService {
	return &OverdueService{
		docs:      docs,
		artifacts: artifacts,
		now:       timeutil.Now,
		log:       logger.WithComponent("overdue"),
	}
}

func (s *OverdueService) WithClock(now func() time.Time) *OverdueService {
	s.now = now
	return s
}

// Sweep moves open invoices past their due date to overdue and returns how many moved
func (s *OverdueService) Sweep(ctx context.Context) (int, error) {
	today := timeutil.StartOfDay(s.now())
	moved, err := s.docs.MarkOverdue(ctx, today)
	if err != nil {
		return 0, err
	}
	for _, key := range moved {
		if s.artifacts != nil {
			s.artifacts.Invalidate(ctx, key)
		}
	}
	s.log.Info().Int("count", len(moved)).Time("today", today).Msg("Overdue sweep finished")
	return len(moved), nil
}
