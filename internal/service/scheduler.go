package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/constants"
	"pageinbox/internal/metrics"
)

// RetentionStore deletes expired messages.
type RetentionStore interface {
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler periodically purges messages older than the retention window
// and expired contact cache entries.
type Scheduler struct {
	store         RetentionStore
	contacts      ContactServiceInterface
	retentionDays int
	intervalHours int
	logger        *logrus.Logger
	now           func() time.Time
	stopCh        chan struct{}
	stopOnce      sync.Once
}

func NewScheduler(store RetentionStore, contacts ContactServiceInterface, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if intervalHours <= 0 {
		intervalHours = constants.DefaultCleanupIntervalHours
	}
	return &Scheduler{
		store:         store,
		contacts:      contacts,
		retentionDays: retentionDays,
		intervalHours: intervalHours,
		logger:        logger,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.intervalHours) * time.Hour)
	defer ticker.Stop()

	s.logger.WithField("retentionDays", s.retentionDays).Info("Starting cleanup scheduler")

	s.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if s.contacts != nil {
		if n := s.contacts.CleanupExpired(); n > 0 {
			s.logger.WithField(LogFieldCount, n).Debug("Expired cached contacts")
		}
	}

	if s.retentionDays <= 0 {
		return
	}

	cutoff := s.now().UTC().Add(-time.Duration(s.retentionDays) * 24 * time.Hour)
	deleted, err := s.store.DeleteMessagesOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge expired messages")
		return
	}

	metrics.AddToCounter(metrics.MessagesPurged, float64(deleted), nil, "Messages removed by retention")
	s.logger.WithFields(logrus.Fields{
		LogFieldCount: deleted,
		"cutoff":      cutoff.Format(time.RFC3339),
	}).Info("Successfully completed cleanup")
}
