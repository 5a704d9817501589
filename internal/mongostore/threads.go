package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pageinbox/internal/models"
)

func (s *Store) GetThreadBySender(ctx context.Context, accountID, senderID string) (*models.Thread, error) {
	oid, ok := objectID(accountID)
	if !ok {
		return nil, nil
	}

	var doc threadDoc
	err := s.threads.FindOne(ctx, bson.M{"account_id": oid, "external_sender_id": senderID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return doc.toModel(), nil
}

// CreateThreadIfAbsent upserts on the (account_id, external_sender_id) pair
// with $setOnInsert only, so an existing thread is returned untouched.
func (s *Store) CreateThreadIfAbsent(ctx context.Context, thread *models.Thread) (*models.Thread, bool, error) {
	accountOID, ok := objectID(thread.AccountID)
	if !ok {
		return nil, false, fmt.Errorf("invalid account id %q", thread.AccountID)
	}

	now := time.Now().UTC()
	newID := s.newID()
	filter := bson.M{"account_id": accountOID, "external_sender_id": thread.ExternalSenderID}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":                 newID,
		"user_id":             thread.UserID,
		"display_label":       thread.DisplayLabel,
		"sender_display_name": thread.SenderDisplayName,
		"has_unread":          thread.HasUnread,
		"created_at":          now,
		"updated_at":          now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc threadDoc
	err := s.threads.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Lost a concurrent upsert race; the winner's document exists now.
		existing, getErr := s.GetThreadBySender(ctx, thread.AccountID, thread.ExternalSenderID)
		if getErr != nil {
			return nil, false, getErr
		}
		if existing == nil {
			return nil, false, fmt.Errorf("thread for account %s vanished after conflict", thread.AccountID)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create thread: %w", err)
	}
	return doc.toModel(), doc.ID == newID, nil
}

func (s *Store) GetThreadForUser(ctx context.Context, userID, threadID string) (*models.ThreadWithAccount, error) {
	oid, ok := objectID(threadID)
	if !ok {
		return nil, nil
	}

	var doc threadDoc
	err := s.threads.FindOne(ctx, bson.M{"_id": oid, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	account, err := s.findAccount(ctx, bson.M{"_id": doc.AccountID})
	if err != nil || account == nil {
		return nil, err
	}
	return &models.ThreadWithAccount{Thread: doc.toModel(), Account: account}, nil
}

func (s *Store) MarkThreadUnread(ctx context.Context, threadID string) error {
	oid, ok := objectID(threadID)
	if !ok {
		return fmt.Errorf("invalid thread id %q", threadID)
	}
	_, err := s.threads.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$set": bson.M{"has_unread": true, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to mark thread unread: %w", err)
	}
	return nil
}

// ClaimUnread relies on the single-document atomicity of UpdateOne: only
// one caller can match has_unread=true.
func (s *Store) ClaimUnread(ctx context.Context, userID, threadID string) (bool, error) {
	oid, ok := objectID(threadID)
	if !ok {
		return false, nil
	}
	res, err := s.threads.UpdateOne(ctx,
		bson.M{"_id": oid, "user_id": userID, "has_unread": true},
		bson.M{"$set": bson.M{"has_unread": false}})
	if err != nil {
		return false, fmt.Errorf("failed to claim unread: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) ListThreads(ctx context.Context, q models.ThreadQuery) ([]*models.Thread, int, error) {
	filter := bson.M{"user_id": q.UserID}
	if q.Search != "" {
		ids, err := s.messages.Distinct(ctx, "thread_id", bson.M{
			"user_id": q.UserID,
			"body":    primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"},
		})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to search messages: %w", err)
		}
		if len(ids) == 0 {
			return nil, 0, nil
		}
		filter["_id"] = bson.M{"$in": ids}
	}

	total, err := s.threads.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count threads: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Offset)).
		SetLimit(int64(q.Limit))
	cursor, err := s.threads.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list threads: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []threadDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode threads: %w", err)
	}

	threads := make([]*models.Thread, 0, len(docs))
	for i := range docs {
		threads = append(threads, docs[i].toModel())
	}
	return threads, int(total), nil
}

func (s *Store) DeleteThreadsByAccount(ctx context.Context, accountID string) (int64, error) {
	oid, ok := objectID(accountID)
	if !ok {
		return 0, nil
	}
	res, err := s.threads.DeleteMany(ctx, bson.M{"account_id": oid})
	if err != nil {
		return 0, fmt.Errorf("failed to delete threads: %w", err)
	}
	return res.DeletedCount, nil
}
