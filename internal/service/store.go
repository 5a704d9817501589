package service

import (
	"context"
	"time"

	"pageinbox/internal/models"
	"pageinbox/pkg/facebook"
)

// AccountStore is the persistence the account registry needs.
type AccountStore interface {
	UpsertAccount(ctx context.Context, account *models.Account) (*models.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]*models.Account, error)
	GetAccountByExternalID(ctx context.Context, networkKind, externalID string) (*models.Account, error)
	GetAccount(ctx context.Context, userID, accountID string) (*models.Account, error)
	DeleteAccount(ctx context.Context, userID, accountID string) (bool, error)
}

// ThreadStore holds threads. Lookups return nil, nil when nothing matches.
type ThreadStore interface {
	GetThreadBySender(ctx context.Context, accountID, senderID string) (*models.Thread, error)
	CreateThreadIfAbsent(ctx context.Context, thread *models.Thread) (*models.Thread, bool, error)
	GetThreadForUser(ctx context.Context, userID, threadID string) (*models.ThreadWithAccount, error)
	MarkThreadUnread(ctx context.Context, threadID string) error
	ClaimUnread(ctx context.Context, userID, threadID string) (bool, error)
	ListThreads(ctx context.Context, q models.ThreadQuery) ([]*models.Thread, int, error)
	DeleteThreadsByAccount(ctx context.Context, accountID string) (int64, error)
}

// MessageStore holds append-only messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, q models.MessageQuery) ([]*models.Message, int, error)
	DeleteMessagesByAccount(ctx context.Context, accountID string) (int64, error)
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is implemented by internal/database and internal/mongostore.
type Store interface {
	AccountStore
	ThreadStore
	MessageStore
	Ping(ctx context.Context) error
	Close() error
}

// Graph is the Graph API surface the services call.
type Graph = facebook.Client
