package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/audioform/audioform/repository"
	"github.com/audioform/audioform/utils"
	"github.com/redis/go-redis/v9"
)

// CounterState describes the health of one survey's live counter.
type CounterState string

const (
	CounterStateLive         CounterState = "live"
	CounterStateReconnecting CounterState = "reconnecting"
	// CounterStateDegraded is terminal until Refresh is called. Counts are
	// still served but may be stale.
	CounterStateDegraded CounterState = "degraded"
)

const (
	counterBackoffBase = 5 * time.Second
	counterBackoffMax  = 80 * time.Second
	counterMaxRetries  = 6
)

// CounterCounts is one survey's live response tally.
type CounterCounts struct {
	Total    int64 `json:"total"`
	Today    int64 `json:"today"`
	ThisHour int64 `json:"this_hour"`
}

// CounterService maintains live response counts per survey. Counts are seeded
// from the database and kept current via redis pub/sub; publishers call
// PublishResponse after each successful submission.
type CounterService interface {
	Watch(ctx context.Context, surveyID uint, surveyUUID string) error
	Unwatch(surveyUUID string)
	Counts(surveyUUID string) (CounterCounts, CounterState, bool)
	PublishResponse(ctx context.Context, surveyUUID, responseUUID string, createdAt time.Time) error
	Refresh(ctx context.Context, surveyID uint, surveyUUID string) error
	Close() error
}

// ResponseChannel returns the pub/sub channel name for one survey.
func ResponseChannel(surveyUUID string) string {
	return "audioform:responses:" + surveyUUID
}

// ResponseNotification is the message published on a survey's response
// channel after each stored response.
type ResponseNotification struct {
	ResponseUUID string    `json:"response_uuid"`
	SurveyUUID   string    `json:"survey_uuid"`
	CreatedAt    time.Time `json:"created_at"`
}

// notificationTime extracts the row timestamp from a published payload. The
// receive time stands in for payloads that cannot be parsed.
func notificationTime(payload string) time.Time {
	var n ResponseNotification
	if err := json.Unmarshal([]byte(payload), &n); err != nil || n.CreatedAt.IsZero() {
		return utils.UTCNow()
	}
	return n.CreatedAt.UTC()
}

type surveyCounter struct {
	mu         sync.Mutex
	counts     CounterCounts
	seededDay  time.Time
	seededHour time.Time
	state      CounterState
	cancel     context.CancelFunc
}

// increment applies one submission notification. Day and hour windows reset
// when the notification lands past the boundary they were seeded in.
func (sc *surveyCounter) increment(now time.Time) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	day := utils.StartOfDay(now)
	hour := utils.StartOfHour(now)
	if !day.Equal(sc.seededDay) {
		sc.counts.Today = 0
		sc.seededDay = day
	}
	if !hour.Equal(sc.seededHour) {
		sc.counts.ThisHour = 0
		sc.seededHour = hour
	}
	sc.counts.Total++
	sc.counts.Today++
	sc.counts.ThisHour++
}

// CounterServiceImpl implements CounterService on top of go-redis.
type CounterServiceImpl struct {
	rdb          *redis.Client
	responseRepo repository.ResponseRepository

	mu       sync.RWMutex
	counters map[string]*surveyCounter
}

// NewCounterService creates a counter service. rdb may be nil; Watch then
// seeds once and immediately reports the counter as degraded.
func NewCounterService(rdb *redis.Client, responseRepo repository.ResponseRepository) CounterService {
	return &CounterServiceImpl{
		rdb:          rdb,
		responseRepo: responseRepo,
		counters:     make(map[string]*surveyCounter),
	}
}

// Watch seeds the counters for a survey from the database and starts a
// subscriber that applies increments published by submitters. Calling Watch
// for a survey already being watched is a no-op.
func (s *CounterServiceImpl) Watch(ctx context.Context, surveyID uint, surveyUUID string) error {
	s.mu.Lock()
	if _, ok := s.counters[surveyUUID]; ok {
		s.mu.Unlock()
		return nil
	}
	sc := &surveyCounter{state: CounterStateReconnecting}
	s.counters[surveyUUID] = sc
	s.mu.Unlock()

	if err := s.seed(ctx, surveyID, sc); err != nil {
		s.mu.Lock()
		delete(s.counters, surveyUUID)
		s.mu.Unlock()
		return fmt.Errorf("failed to seed counter for survey %s: %w", surveyUUID, err)
	}

	if s.rdb == nil {
		sc.mu.Lock()
		sc.state = CounterStateDegraded
		sc.mu.Unlock()
		return nil
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sc.mu.Lock()
	sc.cancel = cancel
	sc.mu.Unlock()

	go s.subscribeLoop(subCtx, surveyUUID, sc)
	return nil
}

// seed loads total, today, and this-hour counts with three count queries.
func (s *CounterServiceImpl) seed(ctx context.Context, surveyID uint, sc *surveyCounter) error {
	now := utils.UTCNow()
	day := utils.StartOfDay(now)
	hour := utils.StartOfHour(now)

	total, err := s.responseRepo.CountBySurvey(ctx, surveyID)
	if err != nil {
		return err
	}
	today, err := s.responseRepo.CountBySurveySince(ctx, surveyID, day)
	if err != nil {
		return err
	}
	thisHour, err := s.responseRepo.CountBySurveySince(ctx, surveyID, hour)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	sc.counts = CounterCounts{Total: total, Today: today, ThisHour: thisHour}
	sc.seededDay = day
	sc.seededHour = hour
	sc.mu.Unlock()
	return nil
}

// subscribeLoop keeps one survey's subscription alive. Reconnects use
// exponential backoff; after the retry ceiling the counter goes degraded and
// the loop exits. Refresh restarts it.
func (s *CounterServiceImpl) subscribeLoop(ctx context.Context, surveyUUID string, sc *surveyCounter) {
	channel := ResponseChannel(surveyUUID)
	retries := 0
	backoff := counterBackoffBase

	for {
		if ctx.Err() != nil {
			return
		}

		sub := s.rdb.Subscribe(ctx, channel)
		_, err := sub.Receive(ctx)
		if err == nil {
			retries = 0
			backoff = counterBackoffBase
			sc.mu.Lock()
			sc.state = CounterStateLive
			sc.mu.Unlock()

			s.consume(ctx, sub, sc)
		}
		_ = sub.Close()

		if ctx.Err() != nil {
			return
		}

		retries++
		if retries > counterMaxRetries {
			sc.mu.Lock()
			sc.state = CounterStateDegraded
			sc.mu.Unlock()
			log.Printf("live counter for survey %s degraded after %d reconnect attempts", surveyUUID, counterMaxRetries)
			return
		}

		sc.mu.Lock()
		sc.state = CounterStateReconnecting
		sc.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > counterBackoffMax {
			backoff = counterBackoffMax
		}
	}
}

// consume drains messages until the subscription drops or ctx is cancelled.
func (s *CounterServiceImpl) consume(ctx context.Context, sub *redis.PubSub, sc *surveyCounter) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			sc.increment(notificationTime(m.Payload))
		}
	}
}

// Unwatch stops the subscriber for a survey and drops its counters.
func (s *CounterServiceImpl) Unwatch(surveyUUID string) {
	s.mu.Lock()
	sc, ok := s.counters[surveyUUID]
	if ok {
		delete(s.counters, surveyUUID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	sc.mu.Lock()
	if sc.cancel != nil {
		sc.cancel()
	}
	sc.mu.Unlock()
}

// Counts returns the current counts and state for a watched survey. The third
// return is false when the survey is not watched.
func (s *CounterServiceImpl) Counts(surveyUUID string) (CounterCounts, CounterState, bool) {
	s.mu.RLock()
	sc, ok := s.counters[surveyUUID]
	s.mu.RUnlock()
	if !ok {
		return CounterCounts{}, "", false
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.counts, sc.state, true
}

// PublishResponse notifies watchers that one response landed for a survey.
// The payload carries the row's created_at so subscribers bucket the count
// into the day and hour the response was actually stored in.
func (s *CounterServiceImpl) PublishResponse(ctx context.Context, surveyUUID, responseUUID string, createdAt time.Time) error {
	if s.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ResponseNotification{
		ResponseUUID: responseUUID,
		SurveyUUID:   surveyUUID,
		CreatedAt:    createdAt.UTC(),
	})
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, ResponseChannel(surveyUUID), payload).Err()
}

// Refresh re-seeds the counts from the database and restarts a subscriber
// that went degraded.
func (s *CounterServiceImpl) Refresh(ctx context.Context, surveyID uint, surveyUUID string) error {
	s.Unwatch(surveyUUID)
	return s.Watch(ctx, surveyID, surveyUUID)
}

// Close stops all subscribers.
func (s *CounterServiceImpl) Close() error {
	s.mu.Lock()
	counters := s.counters
	s.counters = make(map[string]*surveyCounter)
	s.mu.Unlock()

	for _, sc := range counters {
		sc.mu.Lock()
		if sc.cancel != nil {
			sc.cancel()
		}
		sc.mu.Unlock()
	}
	return nil
}
