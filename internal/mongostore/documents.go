package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"pageinbox/internal/models"
)

type accountDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	UserID      string             `bson:"user_id"`
	NetworkKind string             `bson:"network_kind"`
	ExternalID  string             `bson:"external_id"`
	DisplayName string             `bson:"display_name"`
	AccessToken string             `bson:"access_token"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

type threadDoc struct {
	ID                primitive.ObjectID `bson:"_id"`
	UserID            string             `bson:"user_id"`
	AccountID         primitive.ObjectID `bson:"account_id"`
	ExternalSenderID  string             `bson:"external_sender_id"`
	DisplayLabel      string             `bson:"display_label"`
	SenderDisplayName string             `bson:"sender_display_name"`
	HasUnread         bool               `bson:"has_unread"`
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
}

// messageDoc keeps the body as a string so $regex search can reach it.
type messageDoc struct {
	ID                primitive.ObjectID `bson:"_id"`
	UserID            string             `bson:"user_id"`
	ThreadID          primitive.ObjectID `bson:"thread_id"`
	ExternalMessageID string             `bson:"external_message_id"`
	Body              string             `bson:"body"`
	IsOutbound        bool               `bson:"is_outbound"`
	CreatedAt         time.Time          `bson:"created_at"`
}

// objectID parses a hex id. ok is false for anything that is not a valid
// ObjectID, which callers treat as "no such document".
func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func (d *threadDoc) toModel() *models.Thread {
	return &models.Thread{
		ID:                d.ID.Hex(),
		UserID:            d.UserID,
		AccountID:         d.AccountID.Hex(),
		ExternalSenderID:  d.ExternalSenderID,
		DisplayLabel:      d.DisplayLabel,
		SenderDisplayName: d.SenderDisplayName,
		HasUnread:         d.HasUnread,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func (d *messageDoc) toModel() *models.Message {
	return &models.Message{
		ID:                d.ID.Hex(),
		UserID:            d.UserID,
		ThreadID:          d.ThreadID.Hex(),
		ExternalMessageID: d.ExternalMessageID,
		Body:              []byte(d.Body),
		IsOutbound:        d.IsOutbound,
		CreatedAt:         d.CreatedAt,
	}
}
