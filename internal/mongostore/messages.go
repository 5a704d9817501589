package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pageinbox/internal/models"
)

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	threadOID, ok := objectID(msg.ThreadID)
	if !ok {
		return fmt.Errorf("invalid thread id %q", msg.ThreadID)
	}

	oid := s.newID()
	if msg.ID != "" {
		if parsed, ok := objectID(msg.ID); ok {
			oid = parsed
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	doc := messageDoc{
		ID:                oid,
		UserID:            msg.UserID,
		ThreadID:          threadOID,
		ExternalMessageID: msg.ExternalMessageID,
		Body:              string(msg.Body),
		IsOutbound:        msg.IsOutbound,
		CreatedAt:         msg.CreatedAt.UTC(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	msg.ID = oid.Hex()
	return nil
}

func (s *Store) ListMessages(ctx context.Context, q models.MessageQuery) ([]*models.Message, int, error) {
	threadOID, ok := objectID(q.ThreadID)
	if !ok {
		return nil, 0, nil
	}
	filter := bson.M{"thread_id": threadOID, "user_id": q.UserID}

	total, err := s.messages.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Offset)).
		SetLimit(int64(q.Limit))
	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode messages: %w", err)
	}

	messages := make([]*models.Message, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].toModel())
	}
	return messages, int(total), nil
}

func (s *Store) DeleteMessagesByAccount(ctx context.Context, accountID string) (int64, error) {
	oid, ok := objectID(accountID)
	if !ok {
		return 0, nil
	}

	threadIDs, err := s.threads.Distinct(ctx, "_id", bson.M{"account_id": oid})
	if err != nil {
		return 0, fmt.Errorf("failed to list account threads: %w", err)
	}
	if len(threadIDs) == 0 {
		return 0, nil
	}

	res, err := s.messages.DeleteMany(ctx, bson.M{"thread_id": bson.M{"$in": threadIDs}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.messages.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}
	return res.DeletedCount, nil
}
