package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"pageinbox/internal/models"
	"pageinbox/pkg/facebook"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	args := m.Called(ctx, account)
	if a := args.Get(0); a != nil {
		return a.(*models.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListAccounts(ctx context.Context, userID string) ([]*models.Account, error) {
	args := m.Called(ctx, userID)
	if a := args.Get(0); a != nil {
		return a.([]*models.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetAccountByExternalID(ctx context.Context, networkKind, externalID string) (*models.Account, error) {
	args := m.Called(ctx, networkKind, externalID)
	if a := args.Get(0); a != nil {
		return a.(*models.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetAccount(ctx context.Context, userID, accountID string) (*models.Account, error) {
	args := m.Called(ctx, userID, accountID)
	if a := args.Get(0); a != nil {
		return a.(*models.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) DeleteAccount(ctx context.Context, userID, accountID string) (bool, error) {
	args := m.Called(ctx, userID, accountID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) GetThreadBySender(ctx context.Context, accountID, senderID string) (*models.Thread, error) {
	args := m.Called(ctx, accountID, senderID)
	if t := args.Get(0); t != nil {
		return t.(*models.Thread), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) CreateThreadIfAbsent(ctx context.Context, thread *models.Thread) (*models.Thread, bool, error) {
	args := m.Called(ctx, thread)
	if t := args.Get(0); t != nil {
		return t.(*models.Thread), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *mockStore) GetThreadForUser(ctx context.Context, userID, threadID string) (*models.ThreadWithAccount, error) {
	args := m.Called(ctx, userID, threadID)
	if t := args.Get(0); t != nil {
		return t.(*models.ThreadWithAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) MarkThreadUnread(ctx context.Context, threadID string) error {
	return m.Called(ctx, threadID).Error(0)
}

func (m *mockStore) ClaimUnread(ctx context.Context, userID, threadID string) (bool, error) {
	args := m.Called(ctx, userID, threadID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ListThreads(ctx context.Context, q models.ThreadQuery) ([]*models.Thread, int, error) {
	args := m.Called(ctx, q)
	if t := args.Get(0); t != nil {
		return t.([]*models.Thread), args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

func (m *mockStore) DeleteThreadsByAccount(ctx context.Context, accountID string) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockStore) ListMessages(ctx context.Context, q models.MessageQuery) ([]*models.Message, int, error) {
	args := m.Called(ctx, q)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]*models.Message), args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

func (m *mockStore) DeleteMessagesByAccount(ctx context.Context, accountID string) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type mockGraph struct {
	mock.Mock
}

func (m *mockGraph) GetProfile(ctx context.Context, userID, accessToken string) (*facebook.Profile, error) {
	args := m.Called(ctx, userID, accessToken)
	if p := args.Get(0); p != nil {
		return p.(*facebook.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGraph) SendMessage(ctx context.Context, recipientID, text, accessToken string) (*facebook.SendResponse, error) {
	args := m.Called(ctx, recipientID, text, accessToken)
	if r := args.Get(0); r != nil {
		return r.(*facebook.SendResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGraph) SubscribePage(ctx context.Context, pageID, accessToken string) error {
	return m.Called(ctx, pageID, accessToken).Error(0)
}

func (m *mockGraph) UnsubscribePage(ctx context.Context, pageID, accessToken string) error {
	return m.Called(ctx, pageID, accessToken).Error(0)
}

func (m *mockGraph) ExchangeCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *mockGraph) ListPages(ctx context.Context, userAccessToken string) ([]models.ExternalAccount, error) {
	args := m.Called(ctx, userAccessToken)
	if p := args.Get(0); p != nil {
		return p.([]models.ExternalAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockContacts struct {
	mock.Mock
}

func (m *mockContacts) GetContactDisplayName(ctx context.Context, pageID, senderID, accessToken string) string {
	return m.Called(ctx, pageID, senderID, accessToken).String(0)
}

func (m *mockContacts) CleanupExpired() int {
	return m.Called().Int(0)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}
