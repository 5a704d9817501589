package models

import (
	"errors"
	"time"
)

// NetworkFacebookPages is the only network kind currently supported.
const NetworkFacebookPages = "facebook_pages"

// Account is an external page connected by a user.
type Account struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	NetworkKind string    `json:"network_kind"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExternalAccount is a page as reported by the platform during connect.
type ExternalAccount struct {
	ExternalID  string
	DisplayName string
	AccessToken string
}

// ErrAccountTaken is returned by stores when an upsert targets an external
// account already connected by a different user.
var ErrAccountTaken = errors.New("account is connected by another user")
