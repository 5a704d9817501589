package models

import (
	"encoding/json"
	"time"
)

// Message is one inbound or outbound message within a Thread. Messages are
// never mutated after creation.
type Message struct {
	ID                string
	UserID            string
	ThreadID          string
	ExternalMessageID string
	Body              []byte
	IsOutbound        bool
	CreatedAt         time.Time
}

type messageJSON struct {
	ID                string    `json:"id"`
	ThreadID          string    `json:"thread_id"`
	ExternalMessageID string    `json:"external_message_id"`
	Body              string    `json:"body"`
	IsOutbound        bool      `json:"is_outbound"`
	CreatedAt         time.Time `json:"created_at"`
}

// MarshalJSON renders the body as text rather than base64.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:                m.ID,
		ThreadID:          m.ThreadID,
		ExternalMessageID: m.ExternalMessageID,
		Body:              string(m.Body),
		IsOutbound:        m.IsOutbound,
		CreatedAt:         m.CreatedAt,
	})
}

// MessageQuery selects a page of one thread's messages.
type MessageQuery struct {
	UserID   string
	ThreadID string
	Offset   int
	Limit    int
}
