package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analyticsEventsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_events_enqueued_total",
			Help: "Total analytics events accepted into the ingest queue",
		},
	)

	analyticsEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_events_dropped_total",
			Help: "Total analytics events dropped because the ingest queue was full",
		},
	)

	analyticsEventsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_events_flushed_total",
			Help: "Total analytics events written to the database",
		},
	)

	analyticsQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analytics_queue_depth",
			Help: "Current number of analytics events waiting to be flushed",
		},
	)
)

const (
	defaultAnalyticsQueueSize  = 4096
	defaultAnalyticsBatchSize  = 100
	defaultAnalyticsFlushEvery = 2 * time.Second
)

// AnalyticsQueue buffers analytics events and writes them to the database in
// batches. The queue is bounded; when full, the oldest buffered event is
// dropped to make room so ingest never blocks a request.
type AnalyticsQueue interface {
	Enqueue(event *models.AnalyticsEvent)
	Start(ctx context.Context) func()
	Depth() int
}

// AnalyticsQueueImpl implements AnalyticsQueue.
type AnalyticsQueueImpl struct {
	repo       repository.AnalyticsEventRepository
	mu         sync.Mutex
	buf        []*models.AnalyticsEvent
	maxSize    int
	batchSize  int
	flushEvery time.Duration
	wake       chan struct{}
}

// NewAnalyticsQueue creates a queue. Zero values select defaults.
func NewAnalyticsQueue(repo repository.AnalyticsEventRepository, maxSize, batchSize int, flushEvery time.Duration) AnalyticsQueue {
	if maxSize <= 0 {
		maxSize = defaultAnalyticsQueueSize
	}
	if batchSize <= 0 {
		batchSize = defaultAnalyticsBatchSize
	}
	if flushEvery <= 0 {
		flushEvery = defaultAnalyticsFlushEvery
	}
	return &AnalyticsQueueImpl{
		repo:       repo,
		buf:        make([]*models.AnalyticsEvent, 0, maxSize),
		maxSize:    maxSize,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue adds one event. Never blocks; drops the oldest buffered event when
// the queue is at capacity.
func (q *AnalyticsQueueImpl) Enqueue(event *models.AnalyticsEvent) {
	if event == nil {
		return
	}

	q.mu.Lock()
	if len(q.buf) >= q.maxSize {
		copy(q.buf, q.buf[1:])
		q.buf = q.buf[:len(q.buf)-1]
		analyticsEventsDropped.Inc()
	}
	q.buf = append(q.buf, event)
	depth := len(q.buf)
	q.mu.Unlock()

	analyticsEventsEnqueued.Inc()
	analyticsQueueDepth.Set(float64(depth))

	if depth >= q.batchSize {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

// Depth returns the number of buffered events.
func (q *AnalyticsQueueImpl) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Start launches the flush worker and returns a stop function. Stop drains
// whatever is still buffered before returning.
func (q *AnalyticsQueueImpl) Start(ctx context.Context) func() {
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(q.flushEvery)
		defer ticker.Stop()

		for {
			select {
			case <-workerCtx.Done():
				q.drain()
				return
			case <-ticker.C:
				q.flushOnce(workerCtx)
			case <-q.wake:
				q.flushOnce(workerCtx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// flushOnce writes up to one batch.
func (q *AnalyticsQueueImpl) flushOnce(ctx context.Context) {
	batch := q.takeBatch()
	if len(batch) == 0 {
		return
	}
	if err := q.repo.SaveBatch(ctx, batch); err != nil {
		log.Printf("failed to flush %d analytics events: %v", len(batch), err)
		return
	}
	analyticsEventsFlushed.Add(float64(len(batch)))
}

// drain flushes everything left, used during shutdown. Uses a short
// independent context since the worker context is already cancelled.
func (q *AnalyticsQueueImpl) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		batch := q.takeBatch()
		if len(batch) == 0 {
			return
		}
		if err := q.repo.SaveBatch(ctx, batch); err != nil {
			log.Printf("failed to drain %d analytics events: %v", len(batch), err)
			return
		}
		analyticsEventsFlushed.Add(float64(len(batch)))
	}
}

func (q *AnalyticsQueueImpl) takeBatch() []*models.AnalyticsEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.buf)
	if n == 0 {
		analyticsQueueDepth.Set(0)
		return nil
	}
	if n > q.batchSize {
		n = q.batchSize
	}
	batch := make([]*models.AnalyticsEvent, n)
	copy(batch, q.buf[:n])
	q.buf = append(q.buf[:0], q.buf[n:]...)
	analyticsQueueDepth.Set(float64(len(q.buf)))
	return batch
}
