package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pageinbox/internal/errors"
	"pageinbox/internal/models"
)

func TestUpsertAccounts_SkipsFailedItems(t *testing.T) {
	store := &mockStore{}
	svc := NewAccountService(store, &mockGraph{}, newTranslator(), quietLogger())
	ctx := context.Background()

	store.On("UpsertAccount", ctx, mock.MatchedBy(func(a *models.Account) bool { return a.ExternalID == "ok" })).
		Return(&models.Account{ID: "a1"}, nil).Once()
	store.On("UpsertAccount", ctx, mock.MatchedBy(func(a *models.Account) bool { return a.ExternalID == "taken" })).
		Return(nil, models.ErrAccountTaken).Once()
	store.On("UpsertAccount", ctx, mock.MatchedBy(func(a *models.Account) bool { return a.ExternalID == "broken" })).
		Return(nil, assert.AnError).Once()

	count, err := svc.UpsertAccounts(ctx, "u1", models.NetworkFacebookPages, []models.ExternalAccount{
		{ExternalID: "ok", DisplayName: "Ok", AccessToken: "t1"},
		{ExternalID: "taken", DisplayName: "Taken", AccessToken: "t2"},
		{ExternalID: "", DisplayName: "Empty", AccessToken: "t3"},
		{ExternalID: "broken", DisplayName: "Broken", AccessToken: "t4"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	store.AssertExpectations(t)
}

func TestUpsertAccounts_RotatesToken(t *testing.T) {
	store := newTestStore(t)
	svc := NewAccountService(store, &mockGraph{}, newTranslator(), quietLogger())
	ctx := context.Background()

	_, err := svc.UpsertAccounts(ctx, "u1", models.NetworkFacebookPages, []models.ExternalAccount{
		{ExternalID: "ACC1", DisplayName: "Old", AccessToken: "old-token"},
	})
	require.NoError(t, err)
	count, err := svc.UpsertAccounts(ctx, "u1", models.NetworkFacebookPages, []models.ExternalAccount{
		{ExternalID: "ACC1", DisplayName: "New", AccessToken: "new-token"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	accounts, err := svc.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "New", accounts[0].DisplayName)
	assert.Equal(t, "new-token", accounts[0].AccessToken)
}

func TestListAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("empty is not found", func(t *testing.T) {
		store := &mockStore{}
		svc := NewAccountService(store, &mockGraph{}, newTranslator(), quietLogger())
		store.On("ListAccounts", ctx, "u1").Return([]*models.Account{}, nil)

		_, err := svc.ListAccounts(ctx, "u1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.KindNotFound))
		assert.Equal(t, "No accounts were found.", errors.GetUserMessage(err))
	})

	t.Run("storage failure", func(t *testing.T) {
		store := &mockStore{}
		svc := NewAccountService(store, &mockGraph{}, newTranslator(), quietLogger())
		store.On("ListAccounts", ctx, "u1").Return(nil, assert.AnError)

		_, err := svc.ListAccounts(ctx, "u1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.KindStorage))
	})
}

func TestDeleteAccount_CascadesWithoutOrphans(t *testing.T) {
	store := newTestStore(t)
	graph := &mockGraph{}
	contacts := &mockContacts{}
	contacts.On("GetContactDisplayName", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("Someone")

	accounts := NewAccountService(store, graph, newTranslator(), quietLogger())
	ingest := NewIngestionService(store, contacts, quietLogger())
	ctx := context.Background()

	doomed := connectPage(t, store, "u1", "PAGE-A")
	kept := connectPage(t, store, "u1", "PAGE-B")

	ingest.Ingest(ctx, webhookPayload("PAGE-A",
		inbound("S1", "PAGE-A", "m1", "one"),
		inbound("S2", "PAGE-A", "m2", "two"),
		inbound("S1", "PAGE-B", "m3", "three"),
	))

	graph.On("UnsubscribePage", ctx, "PAGE-A", "page-token-PAGE-A").Return(assert.AnError).Once()

	deleted, err := accounts.DeleteAccount(ctx, "u1", doomed.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	graph.AssertExpectations(t)

	threads, total, err := store.ListThreads(ctx, models.ThreadQuery{UserID: "u1", Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, threads, 1)
	assert.Equal(t, kept.ID, threads[0].AccountID)
	assert.Len(t, allMessages(t, store, "u1", threads[0].ID), 1)

	gone, err := store.GetAccount(ctx, "u1", doomed.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDeleteAccount_Errors(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	graph := &mockGraph{}
	svc := NewAccountService(store, graph, newTranslator(), quietLogger())

	_, err := svc.DeleteAccount(ctx, "u1", "not-an-id")
	assert.True(t, errors.Is(err, errors.KindValidation))

	id := "65a1b2c3d4e5f60718293a4b"
	store.On("GetAccount", ctx, "u1", id).Return(nil, nil).Once()
	_, err = svc.DeleteAccount(ctx, "u1", id)
	assert.True(t, errors.Is(err, errors.KindNotFound))

	graph.AssertNotCalled(t, "UnsubscribePage", mock.Anything, mock.Anything, mock.Anything)
}

func TestCascadeDeleteAccount_StopsOnFailure(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	svc := NewAccountService(store, &mockGraph{}, newTranslator(), quietLogger())

	store.On("DeleteMessagesByAccount", ctx, "a1").Return(int64(3), nil).Once()
	store.On("DeleteThreadsByAccount", ctx, "a1").Return(int64(0), assert.AnError).Once()

	deleted, err := svc.CascadeDeleteAccount(ctx, "u1", "a1")
	require.Error(t, err)
	assert.False(t, deleted)
	assert.True(t, errors.Is(err, errors.KindStorage))
	store.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything, mock.Anything)
}

func TestConnectAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("subscribes and stores pages", func(t *testing.T) {
		store := newTestStore(t)
		graph := &mockGraph{}
		svc := NewAccountService(store, graph, newTranslator(), quietLogger())

		graph.On("ExchangeCode", ctx, "the-code").Return("user-token", nil)
		graph.On("ListPages", ctx, "user-token").Return([]models.ExternalAccount{
			{ExternalID: "P1", DisplayName: "One", AccessToken: "pt1"},
			{ExternalID: "P2", DisplayName: "Two", AccessToken: "pt2"},
		}, nil)
		graph.On("SubscribePage", ctx, "P1", "pt1").Return(nil)
		graph.On("SubscribePage", ctx, "P2", "pt2").Return(assert.AnError)

		count, err := svc.ConnectAccounts(ctx, "u1", "the-code")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		accounts, err := svc.ListAccounts(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, "P1", accounts[0].ExternalID)
		assert.Equal(t, "pt1", accounts[0].AccessToken)
	})

	t.Run("empty code", func(t *testing.T) {
		svc := NewAccountService(&mockStore{}, &mockGraph{}, newTranslator(), quietLogger())
		_, err := svc.ConnectAccounts(ctx, "u1", "  ")
		assert.True(t, errors.Is(err, errors.KindValidation))
	})

	t.Run("exchange failure is upstream", func(t *testing.T) {
		graph := &mockGraph{}
		svc := NewAccountService(&mockStore{}, graph, newTranslator(), quietLogger())
		graph.On("ExchangeCode", ctx, "bad").Return("", errors.Upstream("graph", "oauth", 400, assert.AnError))

		_, err := svc.ConnectAccounts(ctx, "u1", "bad")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.KindUpstream))
		assert.Equal(t, "The request to the platform failed.", errors.GetUserMessage(err))
	})

	t.Run("no pages", func(t *testing.T) {
		graph := &mockGraph{}
		svc := NewAccountService(&mockStore{}, graph, newTranslator(), quietLogger())
		graph.On("ExchangeCode", ctx, "c").Return("user-token", nil)
		graph.On("ListPages", ctx, "user-token").Return([]models.ExternalAccount{}, nil)

		_, err := svc.ConnectAccounts(ctx, "u1", "c")
		assert.True(t, errors.Is(err, errors.KindNotFound))
	})
}
