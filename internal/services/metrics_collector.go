package services

import (
	"context"
	"sync"
	"time"

	"contractor-backend/internal/logger"
	"contractor-backend/internal/metrics"
	"contractor-backend/internal/models"

	"github.com/rs/zerolog"
)

type StatusCounter interface {
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
}

// Sweeper is implemented by OverdueService
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// MetricsCollector runs the in-process background loops: document gauges
// for Prometheus and the periodic overdue sweep.
type MetricsCollector struct {
	counter         StatusCounter
	sweeper         Sweeper
	collectInterval time.Duration
	sweepInterval   time.Duration
	stopChan        chan struct{}
	wg              sync.WaitGroup
	log             zerolog.Logger

	// series reported last round, so vanished combinations are zeroed
	mu       sync.Mutex
	lastSeen map[[2]string]bool
}

func NewMetricsCollector(counter StatusCounter, sweeper Sweeper, collectInterval, sweepInterval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		counter:         counter,
		sweeper:         sweeper,
		collectInterval: collectInterval,
		sweepInterval:   sweepInterval,
		stopChan:        make(chan struct{}),
		log:             logger.WithComponent("collector"),
		lastSeen:        map[[2]string]bool{},
	}
}

// Start launches the enabled loops; each also runs once immediately
func (c *MetricsCollector) Start(ctx context.Context) {
	if c.counter != nil && c.collectInterval > 0 {
		c.loop(ctx, "metrics", c.collectInterval, func(ctx context.Context) {
			if err := c.Collect(ctx); err != nil {
				c.log.Warn().Err(err).Msg("Document metrics collection failed")
			}
		})
	}
	if c.sweeper != nil && c.sweepInterval > 0 {
		c.loop(ctx, "overdue", c.sweepInterval, func(ctx context.Context) {
			moved, err := c.sweeper.Sweep(ctx)
			if err != nil {
				c.log.Error().Err(err).Msg("Overdue sweep failed")
				return
			}
			metrics.OverdueSwept.Add(float64(moved))
		})
	}
}

func (c *MetricsCollector) loop(ctx context.Context, name string, every time.Duration, run func(context.Context)) {
	c.log.Info().Str("job", name).Dur("interval", every).Msg("Starting background job")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		run(ctx)

		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run(ctx)
			case <-c.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends all loops and waits for a running round to finish
func (c *MetricsCollector) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	c.log.Info().Msg("Background jobs stopped")
}

// Collect samples document counts and totals into the Prometheus gauges
func (c *MetricsCollector) Collect(ctx context.Context) error {
	counts, err := c.counter.CountByStatus(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[[2]string]bool, len(counts))
	for _, sc := range counts {
		labels := [2]string{string(sc.Type), string(sc.Status)}
		seen[labels] = true
		metrics.DocumentsByStatus.WithLabelValues(labels[0], labels[1]).Set(float64(sc.Count))
		metrics.DocumentValue.WithLabelValues(labels[0], labels[1]).Set(sc.Total.InexactFloat64())
	}
	for labels := range c.lastSeen {
		if !seen[labels] {
			metrics.DocumentsByStatus.WithLabelValues(labels[0], labels[1]).Set(0)
			metrics.DocumentValue.WithLabelValues(labels[0], labels[1]).Set(0)
		}
	}
	c.lastSeen = seen
	return nil
}
