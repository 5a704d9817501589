// Package i18n holds the user-facing message catalog. A Translator is
// passed explicitly to whichever component renders text for API callers.
package i18n

import (
	"strings"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/de"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/es"
	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"
)

// Message keys.
const (
	KeyOK                    = "ok"
	KeyGuest                 = "guest"
	KeyThreadNotFound        = "thread_was_not_found"
	KeyNoThreadsFound        = "no_threads_were_found"
	KeyNoMessagesFound       = "no_messages_were_found"
	KeyNoAccountsFound       = "no_accounts_were_found"
	KeyAccountNotFound       = "account_was_not_found"
	KeyAccountDeleted        = "account_was_deleted_successfully"
	KeyAccountNotDeleted     = "account_was_not_deleted"
	KeyAccountsConnected     = "accounts_were_connected_successfully"
	KeyNoPagesFound          = "no_pages_were_found"
	KeyReplyCreated          = "reply_was_created_successfully"
	KeyReplyRequired         = "reply_is_required"
	KeyReplyTooLong          = "reply_is_too_long"
	KeyReplyNotSent          = "reply_was_not_sent"
	KeyInvalidThreadID       = "invalid_thread_id_provided"
	KeyInvalidThreadIDFormat = "invalid_thread_id_format"
	KeyInvalidAccountID      = "invalid_account_id_provided"
	KeyInvalidCode           = "invalid_code_provided"
	KeyInvalidObjectType     = "invalid_object_type"
	KeyEntryMustBeArray      = "entry_must_be_an_array"
	KeyMessagingMustBeArray  = "messaging_must_be_an_array"
	KeySenderIDRequired      = "sender_id_is_required"
	KeyRecipientIDRequired   = "recipient_id_is_required"
	KeyMessageIDRequired     = "message_id_is_required"
	KeyInvalidPayload        = "invalid_payload"
	KeyInvalidSignature      = "invalid_signature"
	KeyAccessTokenMissing    = "access_token_missing"
	KeyAccessTokenInvalid    = "access_token_invalid"
	KeyUpstreamFailure       = "platform_request_failed"
	KeyStorageFailure        = "storage_request_failed"
	KeyInternalError         = "an_error_occurred"
	KeyTooManyRequests       = "too_many_requests"
	KeyVerificationFailed    = "webhook_verification_failed"
)

var english = map[string]string{
	KeyOK:                    "ok",
	KeyGuest:                 "Guest",
	KeyThreadNotFound:        "The thread was not found.",
	KeyNoThreadsFound:        "No threads were found.",
	KeyNoMessagesFound:       "No messages were found.",
	KeyNoAccountsFound:       "No accounts were found.",
	KeyAccountNotFound:       "The account was not found.",
	KeyAccountDeleted:        "The account was deleted successfully.",
	KeyAccountNotDeleted:     "The account was not deleted.",
	KeyAccountsConnected:     "The accounts were connected successfully.",
	KeyNoPagesFound:          "No pages were found for this profile.",
	KeyReplyCreated:          "The reply was created successfully.",
	KeyReplyRequired:         "The reply is required.",
	KeyReplyTooLong:          "The reply is too long.",
	KeyReplyNotSent:          "The reply was not sent.",
	KeyInvalidThreadID:       "The thread id is not valid.",
	KeyInvalidThreadIDFormat: "Invalid thread id format",
	KeyInvalidAccountID:      "The account id is not valid.",
	KeyInvalidCode:           "The authorization code is not valid.",
	KeyInvalidObjectType:     "Invalid object type.",
	KeyEntryMustBeArray:      "Entry must be an array.",
	KeyMessagingMustBeArray:  "Messaging must be an array.",
	KeySenderIDRequired:      "Sender id is required.",
	KeyRecipientIDRequired:   "Recipient id is required.",
	KeyMessageIDRequired:     "Message id is required.",
	KeyInvalidPayload:        "The payload is not valid.",
	KeyInvalidSignature:      "The request signature is not valid.",
	KeyAccessTokenMissing:    "Access token is missing.",
	KeyAccessTokenInvalid:    "Access token is not valid.",
	KeyUpstreamFailure:       "The request to the platform failed.",
	KeyStorageFailure:        "The request could not be saved.",
	KeyInternalError:         "An error occurred.",
	KeyTooManyRequests:       "Too many requests.",
	KeyVerificationFailed:    "Webhook verification failed.",
}

// catalogs lists the locales that ship a full message table.
var catalogs = map[string]map[string]string{
	"en": english,
}

// cldr maps the locales a table may be loaded for to their CLDR rules.
var cldr = map[string]func() locales.Translator{
	"de": de.New,
	"en": en.New,
	"es": es.New,
	"fr": fr.New,
}

// Translator resolves message keys for one locale.
type Translator struct {
	trans  ut.Translator
	params map[string]int
}

// New returns a translator for locale. Unknown locales fall back to English,
// and locales without a catalog use the English text.
func New(locale string) *Translator {
	return NewFromTable(locale, catalogs[locale])
}

// NewFromTable builds a translator over an explicit table for callers that
// load their own catalog. Missing keys fall back to English.
func NewFromTable(locale string, table map[string]string) *Translator {
	if _, ok := cldr[locale]; !ok {
		locale = "en"
	}
	uni := ut.New(en.New(), cldr[locale]())
	trans, _ := uni.GetTranslator(locale)
	t := &Translator{trans: trans, params: make(map[string]int, len(english))}
	for key, text := range english {
		t.add(key, text)
	}
	for key, text := range table {
		t.add(key, text)
	}
	return t
}

// add keeps the previous text when text has malformed placeholders.
func (t *Translator) add(key, text string) {
	if err := t.trans.Add(key, text, true); err == nil {
		t.params[key] = strings.Count(text, "{")
	}
}

// Locale returns the locale the translator serves.
func (t *Translator) Locale() string {
	return t.trans.Locale()
}

// T returns the text for key with {0}, {1}... replaced by params, or the key
// itself when it is unknown.
func (t *Translator) T(key string, params ...string) string {
	if n := t.params[key]; len(params) < n {
		params = append(params, make([]string, n-len(params))...)
	}
	msg, err := t.trans.T(key, params...)
	if err != nil {
		return key
	}
	return msg
}

// Locales lists the locales with a built-in catalog.
func Locales() []string {
	out := make([]string, 0, len(catalogs))
	for l := range catalogs {
		out = append(out, l)
	}
	return out
}
