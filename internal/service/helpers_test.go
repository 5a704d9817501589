package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pageinbox/internal/database"
	"pageinbox/internal/i18n"
	"pageinbox/internal/models"
	"pageinbox/internal/secrets"
)

func newTestStore(t *testing.T) *database.Database {
	t.Helper()
	enc, err := secrets.NewEncryptor("service-tests-secret-0123456789abcdef")
	require.NoError(t, err)

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "inbox.db"), enc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTranslator() *i18n.Translator {
	return i18n.New("en")
}

func connectPage(t *testing.T, store Store, userID, pageID string) *models.Account {
	t.Helper()
	account, err := store.UpsertAccount(context.Background(), &models.Account{
		UserID:      userID,
		NetworkKind: models.NetworkFacebookPages,
		ExternalID:  pageID,
		DisplayName: "Page " + pageID,
		AccessToken: "page-token-" + pageID,
	})
	require.NoError(t, err)
	return account
}

func webhookPayload(entryID string, events ...models.WebhookMessaging) *models.WebhookPayload {
	return &models.WebhookPayload{
		Object: models.WebhookObjectPage,
		Entry:  []models.WebhookEntry{{ID: entryID, Messaging: events}},
	}
}

func inbound(senderID, pageID, mid, text string) models.WebhookMessaging {
	return models.WebhookMessaging{
		Sender:    models.WebhookParty{ID: senderID},
		Recipient: models.WebhookParty{ID: pageID},
		Message:   models.WebhookMessage{MID: mid, Text: text},
	}
}

func allMessages(t *testing.T, store Store, userID, threadID string) []*models.Message {
	t.Helper()
	msgs, _, err := store.ListMessages(context.Background(), models.MessageQuery{
		UserID: userID, ThreadID: threadID, Limit: 1000,
	})
	require.NoError(t, err)
	return msgs
}
