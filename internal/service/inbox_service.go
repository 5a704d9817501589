package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/constants"
	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
	"pageinbox/internal/models"
	"pageinbox/internal/validation"
)

// ThreadPage is one page of a user's threads.
type ThreadPage struct {
	Threads []*models.Thread `json:"threads"`
	Total   int              `json:"total"`
	Time    string           `json:"time"`
}

// MessagePage is one page of a thread's messages, newest first.
type MessagePage struct {
	Messages []*models.Message `json:"messages"`
	Total    int               `json:"total"`
	Time     string            `json:"time"`
}

// InboxService serves the read side of the inbox.
type InboxService struct {
	store  Store
	tr     *i18n.Translator
	logger *logrus.Logger
	now    func() time.Time
}

func NewInboxService(store Store, tr *i18n.Translator, logger *logrus.Logger) *InboxService {
	return &InboxService{store: store, tr: tr, logger: logger, now: time.Now}
}

func pageOffset(page int) int {
	return (validation.NormalizePage(page) - 1) * constants.PageSize
}

// ListThreads returns a page of the user's threads, most recently updated
// first. A non-empty search keeps threads with a message containing it.
func (s *InboxService) ListThreads(ctx context.Context, userID, search string, page int) (*ThreadPage, error) {
	search = validation.Sanitize(search)
	if utf8.RuneCountInString(search) > constants.MaxSearchLength {
		search = string([]rune(search)[:constants.MaxSearchLength])
	}

	threads, total, err := s.store.ListThreads(ctx, models.ThreadQuery{
		UserID: userID,
		Search: search,
		Offset: pageOffset(page),
		Limit:  constants.PageSize,
	})
	if err != nil {
		return nil, storageError(s.tr, "list threads", err)
	}
	if len(threads) == 0 {
		return nil, errors.NotFound("threads", userID, s.tr.T(i18n.KeyNoThreadsFound))
	}

	return &ThreadPage{Threads: threads, Total: total, Time: s.now().UTC().Format(time.RFC3339)}, nil
}

// ListMessages returns a page of one of the user's threads.
func (s *InboxService) ListMessages(ctx context.Context, userID, threadID string, page int) (*MessagePage, error) {
	id, err := validation.ValidateID(threadID, "thread_id", s.tr.T(i18n.KeyInvalidThreadID))
	if err != nil {
		return nil, err
	}

	thread, err := s.store.GetThreadForUser(ctx, userID, id)
	if err != nil {
		return nil, storageError(s.tr, "get thread", err)
	}
	if thread == nil {
		return nil, errors.NotFound("thread", id, s.tr.T(i18n.KeyThreadNotFound))
	}

	messages, total, err := s.store.ListMessages(ctx, models.MessageQuery{
		UserID:   userID,
		ThreadID: id,
		Offset:   pageOffset(page),
		Limit:    constants.PageSize,
	})
	if err != nil {
		return nil, storageError(s.tr, "list messages", err)
	}
	if len(messages) == 0 {
		return nil, errors.NotFound("messages", id, s.tr.T(i18n.KeyNoMessagesFound))
	}

	return &MessagePage{Messages: messages, Total: total, Time: s.now().UTC().Format(time.RFC3339)}, nil
}
