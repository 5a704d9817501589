package models

import "time"

// Thread is one conversation between an Account and one external contact.
type Thread struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	AccountID         string    `json:"account_id"`
	ExternalSenderID  string    `json:"external_sender_id"`
	DisplayLabel      string    `json:"display_label"`
	SenderDisplayName string    `json:"sender_display_name"`
	HasUnread         bool      `json:"has_unread"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ThreadWithAccount carries the owning account alongside a thread, as needed
// by the reply path.
type ThreadWithAccount struct {
	Thread  *Thread
	Account *Account
}

// ThreadQuery selects a page of a user's threads.
type ThreadQuery struct {
	UserID string
	Search string
	Offset int
	Limit  int
}
