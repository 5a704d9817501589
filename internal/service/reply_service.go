package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/constants"
	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
	"pageinbox/internal/metrics"
	"pageinbox/internal/models"
	"pageinbox/internal/privacy"
	"pageinbox/internal/tracing"
	"pageinbox/internal/validation"
)

// ReplyService sends page replies through Graph and records them.
type ReplyService struct {
	store   Store
	graph   Graph
	tr      *i18n.Translator
	logger  *logrus.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewReplyService(store Store, graph Graph, tr *i18n.Translator, logger *logrus.Logger, timeout time.Duration) *ReplyService {
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultGraphTimeoutSec) * time.Second
	}
	return &ReplyService{store: store, graph: graph, tr: tr, logger: logger, timeout: timeout, now: time.Now}
}

// SendReply posts text to the thread's sender and stores the outbound
// message. Nothing is stored unless Graph confirmed delivery with a message
// id; a failed send is returned as an upstream error.
func (s *ReplyService) SendReply(ctx context.Context, userID, threadID, text string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "reply.send", tracing.AttrThreadID.String(threadID))
	defer span.End()

	id, err := validation.ValidateID(threadID, "thread_id", s.tr.T(i18n.KeyInvalidThreadID))
	if err != nil {
		return nil, err
	}

	text = validation.Sanitize(text)
	if text == "" {
		return nil, errors.Validation("reply", s.tr.T(i18n.KeyReplyRequired))
	}
	if err := validation.ValidateStringLength(text, "reply", 1, constants.MaxReplyLength, s.tr.T(i18n.KeyReplyTooLong)); err != nil {
		return nil, err
	}

	resolved, err := s.store.GetThreadForUser(ctx, userID, id)
	if err != nil {
		return nil, storageError(s.tr, "get thread", err)
	}
	if resolved == nil || resolved.Account == nil {
		return nil, errors.NotFound("thread", id, s.tr.T(i18n.KeyThreadNotFound))
	}
	thread, account := resolved.Thread, resolved.Account

	fields := logrus.Fields{
		LogFieldUserID:    privacy.MaskUserID(userID),
		LogFieldThreadID:  thread.ID,
		LogFieldPageID:    privacy.MaskExternalID(account.ExternalID),
		LogFieldDirection: "outbound",
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.graph.SendMessage(sendCtx, thread.ExternalSenderID, text, account.AccessToken)
	if err == nil && (resp == nil || resp.MessageID == "") {
		err = fmt.Errorf("send response has no message id")
	}
	if err != nil && stderrors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		err = errors.NewTimeoutError("graph send", s.timeout.String())
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.WithFields(fields).WithError(err).Error("Failed to send reply")
		metrics.IncrementCounter(metrics.RepliesSent, map[string]string{"result": "failed"}, "Replies sent to Graph")
		return nil, upstreamErrorWithMessage(err, s.tr.T(i18n.KeyReplyNotSent))
	}

	msg := &models.Message{
		UserID:            userID,
		ThreadID:          thread.ID,
		ExternalMessageID: resp.MessageID,
		Body:              []byte(text),
		IsOutbound:        true,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		tracing.RecordError(ctx, err)
		s.logger.WithFields(fields).WithError(err).Error("Failed to store sent reply")
		metrics.IncrementCounter(metrics.RepliesSent, map[string]string{"result": "unrecorded"}, "Replies sent to Graph")
		return nil, storageError(s.tr, "create message", err)
	}

	metrics.IncrementCounter(metrics.RepliesSent, map[string]string{"result": "sent"}, "Replies sent to Graph")
	s.logger.WithFields(fields).WithField(LogFieldMessageID, privacy.MaskExternalID(resp.MessageID)).Info("Reply sent")
	return msg, nil
}
