package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/constants"
	"pageinbox/internal/i18n"
	"pageinbox/internal/metrics"
	"pageinbox/internal/validation"
)

// FrameSender writes one text frame to a live channel client.
type FrameSender func(ctx context.Context, frame string) error

// LiveUpdateService reports to connected clients whether their open thread
// has unread content.
type LiveUpdateService struct {
	store    ThreadStore
	tr       *i18n.Translator
	logger   *logrus.Logger
	interval time.Duration
}

func NewLiveUpdateService(store ThreadStore, tr *i18n.Translator, logger *logrus.Logger, interval time.Duration) *LiveUpdateService {
	if interval <= 0 {
		interval = time.Duration(constants.DefaultLiveIntervalSec) * time.Second
	}
	return &LiveUpdateService{store: store, tr: tr, logger: logger, interval: interval}
}

// Evaluate claims the thread's unread flag. It returns the fresh frame when
// this call cleared the flag and the stale frame otherwise, including when
// the thread is missing or the store fails.
func (s *LiveUpdateService) Evaluate(ctx context.Context, userID, threadID string) string {
	claimed, err := s.store.ClaimUnread(ctx, userID, threadID)
	if err != nil {
		s.logger.WithField(LogFieldThreadID, threadID).WithError(err).Warn("Failed to check thread for unread messages")
		return constants.LiveFrameStale
	}
	if claimed {
		return constants.LiveFrameFresh
	}
	return constants.LiveFrameStale
}

// LiveSession is the state of one connection: idle until a thread id
// arrives, then bound to the most recent valid id.
type LiveSession struct {
	svc    *LiveUpdateService
	userID string
	send   FrameSender
	sendMu sync.Mutex
	bind   chan string
}

// NewSession starts an idle session for userID.
func (s *LiveUpdateService) NewSession(userID string, send FrameSender) *LiveSession {
	return &LiveSession{
		svc:    s,
		userID: userID,
		send:   send,
		bind:   make(chan string, 1),
	}
}

func (ls *LiveSession) write(ctx context.Context, frame string) error {
	ls.sendMu.Lock()
	defer ls.sendMu.Unlock()
	metrics.IncrementCounter(metrics.LiveFrames, map[string]string{"frame": frame}, "Frames sent on the live channel")
	return ls.send(ctx, frame)
}

// HandleFrame processes one client frame carrying a hex-encoded thread id.
// An invalid frame is answered with the invalid format message and leaves
// the current binding unchanged. Only one goroutine may call HandleFrame.
func (ls *LiveSession) HandleFrame(ctx context.Context, frame string) error {
	invalid := ls.svc.tr.T(i18n.KeyInvalidThreadIDFormat)

	decoded, err := validation.DecodeHexFrame(frame)
	if err != nil {
		return ls.write(ctx, invalid)
	}
	threadID, err := validation.ValidateID(decoded, "thread_id", invalid)
	if err != nil {
		return ls.write(ctx, invalid)
	}

	// Keep only the latest pending id.
	select {
	case ls.bind <- threadID:
	default:
		select {
		case <-ls.bind:
		default:
		}
		ls.bind <- threadID
	}
	return nil
}

// Run evaluates the bound thread immediately on every bind and then on each
// interval tick. It returns when ctx is cancelled or a frame cannot be
// written; the ticker is stopped on return.
func (ls *LiveSession) Run(ctx context.Context) error {
	var (
		ticker   *time.Ticker
		tick     <-chan time.Time
		threadID string
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	evaluate := func() error {
		frame := ls.svc.Evaluate(ctx, ls.userID, threadID)
		ls.svc.logger.WithFields(logrus.Fields{
			LogFieldThreadID: threadID,
			LogFieldFrame:    frame,
		}).Debug("Live channel tick")
		return ls.write(ctx, frame)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case threadID = <-ls.bind:
			if ticker == nil {
				ticker = time.NewTicker(ls.svc.interval)
				tick = ticker.C
			} else {
				ticker.Reset(ls.svc.interval)
			}
			if err := evaluate(); err != nil {
				return err
			}
		case <-tick:
			if err := evaluate(); err != nil {
				return err
			}
		}
	}
}
