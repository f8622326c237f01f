// Package scheduler
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/audioform/audioform/app/services"
	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/repository"
	"github.com/audioform/audioform/utils"
	"gorm.io/gorm"
)

// ExpirySweepBatchSize caps how many demo sessions a single sweep handles.
const ExpirySweepBatchSize = 200

// ExpiryScheduler periodically sweeps demo sessions whose surveys have passed
// their expiry, deactivates the surveys, and sends each creator a one-time
// expiry email.
type ExpiryScheduler struct {
	demoRepo   repository.DemoSessionRepository
	surveyRepo repository.SurveyRepository
	auditRepo  repository.AuditLogRepository
	notifier   services.NotificationService
	logger     *log.Logger
	interval   time.Duration

	db *gorm.DB
}

func NewExpiryScheduler(
	demoRepo repository.DemoSessionRepository,
	surveyRepo repository.SurveyRepository,
	auditRepo repository.AuditLogRepository,
	notifier services.NotificationService,
	db *gorm.DB,
	logger *log.Logger,
	interval time.Duration,
) *ExpiryScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}

	return &ExpiryScheduler{
		demoRepo:   demoRepo,
		surveyRepo: surveyRepo,
		auditRepo:  auditRepo,
		notifier:   notifier,
		db:         db,
		logger:     logger,
		interval:   interval,
	}
}

// Start launches the sweep loop and returns a cancel func that stops it.
func (s *ExpiryScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *ExpiryScheduler) runOnce(ctx context.Context) {
	now := utils.UTCNow()
	sessions, err := s.demoRepo.ListExpiredUnnotified(ctx, now, ExpirySweepBatchSize)
	if err != nil {
		s.logger.Printf("scheduler: list expired demo sessions failed: %v", err)
		return
	}
	if len(sessions) == 0 {
		return
	}
	s.logger.Printf("scheduler: sweeping %d expired demo sessions", len(sessions))

	for _, session := range sessions {
		if ctx.Err() != nil {
			return
		}
		if err := s.processSession(ctx, session); err != nil {
			s.logger.Printf("scheduler: demo session id=%d sweep failed: %v", session.ID, err)
		}
	}
}

// processSession deactivates the survey and sends the expiry email at most
// once. MarkNotified is a conditional update, so when two sweeps race only
// one of them wins the flip and sends the email.
func (s *ExpiryScheduler) processSession(ctx context.Context, session *models.DemoSession) error {
	var won bool
	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		won, err = s.demoRepo.MarkNotified(txCtx, session.ID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		return s.surveyRepo.Deactivate(txCtx, session.SurveyID)
	})
	if err != nil {
		return fmt.Errorf("expiry transaction: %w", err)
	}
	if !won {
		return nil
	}

	s.logger.Printf("scheduler: demo session id=%d survey_id=%d expired and deactivated", session.ID, session.SurveyID)

	if session.Email != nil && *session.Email != "" {
		if err := s.notifier.SendEmail(*session.Email,
			"Your demo survey has expired",
			s.expiryMessage(session),
		); err != nil {
			// The notified flag stays set; a failed send is logged, not retried.
			s.logger.Printf("scheduler: expiry email for demo session id=%d failed: %v", session.ID, err)
		}
	}

	s.audit(ctx, session)
	return nil
}

func (s *ExpiryScheduler) expiryMessage(session *models.DemoSession) string {
	return fmt.Sprintf(
		"Your demo survey expired at %s. Responses collected during the demo are kept. Sign up to create permanent surveys.",
		session.ExpiresAt.UTC().Format(time.RFC1123),
	)
}

func (s *ExpiryScheduler) audit(ctx context.Context, session *models.DemoSession) {
	description := fmt.Sprintf("demo session %s expired, survey %d deactivated", session.UUID, session.SurveyID)
	entry := &models.AuditLog{
		Action:      models.AuditActionDemoExpiredNotified,
		Description: &description,
		Success:     utils.ToPtr(true),
	}
	if err := s.auditRepo.Save(ctx, entry); err != nil {
		s.logger.Printf("scheduler: audit write failed for demo session id=%d: %v", session.ID, err)
	}
}
