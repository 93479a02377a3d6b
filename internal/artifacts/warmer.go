package artifacts

import (
	"context"
	"errors"
	"sync"
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/logger"

	"github.com/rs/zerolog"
)

// Warmer renders artifacts in the background after documents are written, so
// the first download is usually a cache hit. It is best-effort: a full queue
// drops the request and failures are only logged.
type Warmer struct {
	svc     *Service
	queue   chan int64
	timeout time.Duration
	wg      sync.WaitGroup
	log     zerolog.Logger

	// mu guards closed; senders hold it shared so Close cannot close the queue under them
	mu     sync.RWMutex
	closed bool
}

func NewWarmer(svc *Service, workers, buffer int) *Warmer {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 100
	}
	w := &Warmer{
		svc:     svc,
		queue:   make(chan int64, buffer),
		timeout: svc.timeout + 10*time.Second,
		log:     logger.WithComponent("artifact-warmer"),
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	return w
}

// Enqueue schedules a render of the document. Safe on a nil or closed Warmer.
func (w *Warmer) Enqueue(id int64) {
	if w == nil {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.log.Debug().Int64("document_id", id).Msg("Warmer closed, skipping")
		return
	}
	select {
	case w.queue <- id:
	default:
		w.log.Debug().Int64("document_id", id).Msg("Warm queue full, skipping")
	}
}

// Close stops accepting work and waits for queued renders to finish
func (w *Warmer) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Warmer) run() {
	defer w.wg.Done()
	for id := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		_, err := w.svc.Get(ctx, id)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrUnavailable), errors.Is(err, apperr.ErrNotFound):
			w.log.Debug().Err(err).Int64("document_id", id).Msg("Skipped warm render")
		default:
			w.log.Warn().Err(err).Int64("document_id", id).Msg("Warm render failed")
		}
	}
}
