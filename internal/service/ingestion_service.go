package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/metrics"
	"pageinbox/internal/models"
	"pageinbox/internal/privacy"
	"pageinbox/internal/tracing"
)

// IngestResult summarizes one webhook delivery.
type IngestResult struct {
	Stored         int
	Ignored        int
	Failed         int
	ThreadsCreated int
}

// IngestionService turns validated webhook deliveries into threads and
// messages.
type IngestionService struct {
	store    Store
	contacts ContactServiceInterface
	logger   *logrus.Logger
	now      func() time.Time
}

func NewIngestionService(store Store, contacts ContactServiceInterface, logger *logrus.Logger) *IngestionService {
	return &IngestionService{store: store, contacts: contacts, logger: logger, now: time.Now}
}

// Ingest processes every event of an already sanitized and validated
// payload. Events for pages nobody connected are ignored. A failing event is
// logged and does not stop the rest of the batch.
func (s *IngestionService) Ingest(ctx context.Context, payload *models.WebhookPayload) IngestResult {
	events := payload.Events()
	ctx, span := tracing.StartSpan(ctx, "ingestion.ingest", tracing.AttrEvents.Int(len(events)))
	defer span.End()

	var result IngestResult
	for _, event := range events {
		created, ignored, err := s.ingestEvent(ctx, event)
		switch {
		case err != nil:
			result.Failed++
			tracing.RecordError(ctx, err)
			s.logger.WithFields(logrus.Fields{
				LogFieldPageID:    privacy.MaskExternalID(event.RecipientID),
				LogFieldSenderID:  privacy.MaskExternalID(event.SenderID),
				LogFieldMessageID: privacy.MaskExternalID(event.MessageID),
			}).WithError(err).Error("Failed to ingest webhook event")
			metrics.IncrementCounter(metrics.WebhookEvents, map[string]string{"result": "failed"}, "Webhook events processed")
		case ignored:
			result.Ignored++
			metrics.IncrementCounter(metrics.WebhookEvents, map[string]string{"result": "ignored"}, "Webhook events processed")
		default:
			result.Stored++
			if created {
				result.ThreadsCreated++
			}
			metrics.IncrementCounter(metrics.WebhookEvents, map[string]string{"result": "stored"}, "Webhook events processed")
		}
	}
	return result
}

func (s *IngestionService) ingestEvent(ctx context.Context, event models.InboundEvent) (created, ignored bool, err error) {
	account, err := s.store.GetAccountByExternalID(ctx, models.NetworkFacebookPages, event.RecipientID)
	if err != nil {
		return false, false, fmt.Errorf("resolve account: %w", err)
	}
	if account == nil {
		s.logger.WithField(LogFieldPageID, privacy.MaskExternalID(event.RecipientID)).
			Debug("Skipping webhook event: page is not connected")
		return false, true, nil
	}

	thread, created, err := s.resolveThread(ctx, account, event)
	if err != nil {
		return false, false, err
	}

	msg := &models.Message{
		UserID:            account.UserID,
		ThreadID:          thread.ID,
		ExternalMessageID: event.MessageID,
		Body:              []byte(event.Text),
		IsOutbound:        false,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return created, false, fmt.Errorf("append message: %w", err)
	}

	if err := s.store.MarkThreadUnread(ctx, thread.ID); err != nil {
		return created, false, fmt.Errorf("mark thread unread: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldThreadID:  thread.ID,
		LogFieldMessageID: privacy.MaskExternalID(event.MessageID),
		LogFieldDirection: "inbound",
		LogFieldBody:      privacy.PreviewBody(event.Text),
	}).Debug("Stored inbound message")
	return created, false, nil
}

// resolveThread finds the thread for (account, sender) or creates it. When
// two deliveries race, the store's unique key makes the loser read back the
// winner's thread.
func (s *IngestionService) resolveThread(ctx context.Context, account *models.Account, event models.InboundEvent) (*models.Thread, bool, error) {
	thread, err := s.store.GetThreadBySender(ctx, account.ID, event.SenderID)
	if err != nil {
		return nil, false, fmt.Errorf("resolve thread: %w", err)
	}
	if thread != nil {
		return thread, false, nil
	}

	name := s.contacts.GetContactDisplayName(ctx, account.ExternalID, event.SenderID, account.AccessToken)
	now := s.now().UTC()
	thread, created, err := s.store.CreateThreadIfAbsent(ctx, &models.Thread{
		UserID:            account.UserID,
		AccountID:         account.ID,
		ExternalSenderID:  event.SenderID,
		DisplayLabel:      event.EntryID,
		SenderDisplayName: name,
		HasUnread:         false,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create thread: %w", err)
	}

	if created {
		metrics.IncrementCounter(metrics.ThreadsCreated, nil, "Threads created on first contact")
		s.logger.WithFields(logrus.Fields{
			LogFieldAccountID: account.ID,
			LogFieldThreadID:  thread.ID,
			LogFieldSenderID:  privacy.MaskExternalID(event.SenderID),
		}).Info("Created thread for new sender")
	}
	return thread, created, nil
}
