// Package mongostore is the MongoDB implementation of the inbox store.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"pageinbox/internal/secrets"
)

const (
	accountsCollection = "accounts"
	threadsCollection  = "threads"
	messagesCollection = "messages"
)

type Store struct {
	client    *mongo.Client
	accounts  *mongo.Collection
	threads   *mongo.Collection
	messages  *mongo.Collection
	encryptor *secrets.Encryptor
	newID     func() primitive.ObjectID
}

// New connects to uri, selects database and creates the indexes the store
// relies on for uniqueness.
func New(ctx context.Context, uri, database string, encryptor *secrets.Encryptor) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetAppName("pageinbox").
		SetMaxPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second).
		SetTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := newStore(client, client.Database(database), encryptor)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func newStore(client *mongo.Client, db *mongo.Database, encryptor *secrets.Encryptor) *Store {
	if encryptor == nil {
		encryptor = &secrets.Encryptor{}
	}
	return &Store{
		client:    client,
		accounts:  db.Collection(accountsCollection),
		threads:   db.Collection(threadsCollection),
		messages:  db.Collection(messagesCollection),
		encryptor: encryptor,
		newID:     primitive.NewObjectID,
	}
}

// ensureIndexes is idempotent; New runs it once per connection.
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.accounts, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "network_kind", Value: 1}, {Key: "external_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_network_external"),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		}},
		{s.threads, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "external_sender_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_account_sender"),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		}},
		{s.messages, []mongo.IndexModel{
			{Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		}},
	}

	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
