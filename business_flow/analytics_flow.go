package businessflow

import (
	"context"
	"log"
	"strings"

	"github.com/audioform/audioform/app/dto"
	"github.com/audioform/audioform/app/services"
	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/repository"
)

// AnalyticsFlow handles event ingest and funnel reporting.
type AnalyticsFlow interface {
	TrackEvent(ctx context.Context, req *dto.TrackEventRequest, metadata *ClientMetadata) (*dto.TrackEventResponse, error)
	FunnelReport(ctx context.Context, funnelName string) (*dto.FunnelReportResponse, error)
	EnsureFunnels(ctx context.Context) error
}

// AnalyticsFlowImpl implements the analytics business flow
type AnalyticsFlowImpl struct {
	funnelRepo repository.FunnelRepository
	queue      services.AnalyticsQueue
}

// NewAnalyticsFlow creates a new analytics flow instance
func NewAnalyticsFlow(funnelRepo repository.FunnelRepository, queue services.AnalyticsQueue) AnalyticsFlow {
	return &AnalyticsFlowImpl{
		funnelRepo: funnelRepo,
		queue:      queue,
	}
}

// Funnels measured out of the box.
var defaultFunnels = []models.Funnel{
	{
		Name:  "demo_to_waitlist",
		Steps: models.StringList{models.EventDemoPageView, models.EventDemoCreated, models.EventFirstResponse, models.EventWaitlistSignup},
	},
	{
		Name:  "demo_to_results",
		Steps: models.StringList{models.EventDemoCreated, models.EventFirstResponse, models.EventResultsViewed},
	},
}

// EnsureFunnels creates the built-in funnels when missing. Called at startup.
func (f *AnalyticsFlowImpl) EnsureFunnels(ctx context.Context) error {
	for i := range defaultFunnels {
		existing, err := f.funnelRepo.ByName(ctx, defaultFunnels[i].Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		funnel := defaultFunnels[i]
		if err := f.funnelRepo.Save(ctx, &funnel); err != nil {
			return err
		}
	}
	return nil
}

// TrackEvent accepts one event into the ingest queue and advances any funnel
// the event belongs to. Funnel advancement is synchronous because it is one
// upsert; the raw event write is deferred to the queue worker.
func (f *AnalyticsFlowImpl) TrackEvent(ctx context.Context, req *dto.TrackEventRequest, metadata *ClientMetadata) (*dto.TrackEventResponse, error) {
	eventName := strings.TrimSpace(req.EventName)
	if eventName == "" {
		return nil, NewBusinessError("INVALID_INPUT", "Event name is required", ErrEventNameRequired)
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, NewBusinessError("INVALID_INPUT", "Session ID is required", nil)
	}

	f.queue.Enqueue(&models.AnalyticsEvent{
		EventName:  eventName,
		SessionID:  sessionID,
		Properties: req.Properties,
	})

	f.advanceFunnels(ctx, eventName, sessionID)

	return &dto.TrackEventResponse{Message: "Event accepted"}, nil
}

// FunnelReport returns per-step completion counts for a named funnel.
func (f *AnalyticsFlowImpl) FunnelReport(ctx context.Context, funnelName string) (*dto.FunnelReportResponse, error) {
	funnel, err := f.funnelRepo.ByName(ctx, funnelName)
	if err != nil {
		return nil, NewBusinessError("FUNNEL_REPORT_FAILED", "Failed to fetch funnel", err)
	}
	if funnel == nil {
		return nil, NewBusinessError("NOT_FOUND", "Funnel not found", ErrFunnelNotFound)
	}

	sessions, err := f.funnelRepo.CountConversions(ctx, funnel.ID, 1)
	if err != nil {
		return nil, NewBusinessError("FUNNEL_REPORT_FAILED", "Failed to count conversions", err)
	}

	steps := make([]dto.FunnelStepDTO, 0, len(funnel.Steps))
	for i, step := range funnel.Steps {
		completed, err := f.funnelRepo.CountConversions(ctx, funnel.ID, i+1)
		if err != nil {
			return nil, NewBusinessError("FUNNEL_REPORT_FAILED", "Failed to count conversions", err)
		}
		rate := 0.0
		if sessions > 0 {
			rate = float64(completed) / float64(sessions)
		}
		steps = append(steps, dto.FunnelStepDTO{Step: step, Completed: completed, Rate: rate})
	}

	return &dto.FunnelReportResponse{
		Funnel:   funnel.Name,
		Sessions: sessions,
		Steps:    steps,
	}, nil
}

// advanceFunnels upserts a conversion row for every funnel that contains the
// event as a step. Failures are logged and swallowed: funnel bookkeeping must
// never fail event ingest.
func (f *AnalyticsFlowImpl) advanceFunnels(ctx context.Context, eventName, sessionID string) {
	for i := range defaultFunnels {
		funnel, err := f.funnelRepo.ByName(ctx, defaultFunnels[i].Name)
		if err != nil || funnel == nil {
			continue
		}
		idx := funnel.Steps.IndexOf(eventName)
		if idx < 0 {
			continue
		}
		conv := &models.FunnelConversion{
			FunnelID:       funnel.ID,
			SessionID:      sessionID,
			StepsCompleted: idx + 1,
		}
		if err := f.funnelRepo.UpsertConversion(ctx, conv); err != nil {
			log.Printf("failed to advance funnel %s for session %s: %v", funnel.Name, sessionID, err)
		}
	}
}
