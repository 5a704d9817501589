package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pageinbox/internal/models"
)

func (s *Store) accountModel(d *accountDoc) (*models.Account, error) {
	token, err := s.encryptor.Decrypt(d.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	return &models.Account{
		ID:          d.ID.Hex(),
		UserID:      d.UserID,
		NetworkKind: d.NetworkKind,
		ExternalID:  d.ExternalID,
		DisplayName: d.DisplayName,
		AccessToken: token,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// UpsertAccount mirrors the SQLite store: the unique (network_kind,
// external_id) index turns an upsert by a second user into
// models.ErrAccountTaken.
func (s *Store) UpsertAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	token, err := s.encryptor.Encrypt(account.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	now := time.Now().UTC()
	filter := bson.M{
		"user_id":      account.UserID,
		"network_kind": account.NetworkKind,
		"external_id":  account.ExternalID,
	}
	update := bson.M{
		"$set": bson.M{
			"display_name": account.DisplayName,
			"access_token": token,
			"updated_at":   now,
		},
		"$setOnInsert": bson.M{
			"_id":        s.newID(),
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc accountDoc
	err = s.accounts.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil, models.ErrAccountTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return s.accountModel(&doc)
}

func (s *Store) ListAccounts(ctx context.Context, userID string) ([]*models.Account, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.accounts.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}

	accounts := make([]*models.Account, 0, len(docs))
	for i := range docs {
		a, err := s.accountModel(&docs[i])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (*models.Account, error) {
	var doc accountDoc
	err := s.accounts.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return s.accountModel(&doc)
}

func (s *Store) GetAccountByExternalID(ctx context.Context, networkKind, externalID string) (*models.Account, error) {
	return s.findAccount(ctx, bson.M{"network_kind": networkKind, "external_id": externalID})
}

func (s *Store) GetAccount(ctx context.Context, userID, accountID string) (*models.Account, error) {
	oid, ok := objectID(accountID)
	if !ok {
		return nil, nil
	}
	return s.findAccount(ctx, bson.M{"_id": oid, "user_id": userID})
}

func (s *Store) DeleteAccount(ctx context.Context, userID, accountID string) (bool, error) {
	oid, ok := objectID(accountID)
	if !ok {
		return false, nil
	}
	res, err := s.accounts.DeleteOne(ctx, bson.M{"_id": oid, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %w", err)
	}
	return res.DeletedCount > 0, nil
}
