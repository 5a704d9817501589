package validation

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
	"pageinbox/internal/models"
)

// WebhookValidator decodes and validates Messenger webhook deliveries,
// reporting the first problem as a translated ValidationError.
type WebhookValidator struct {
	validate *validator.Validate
	tr       *i18n.Translator
}

// NewWebhookValidator creates a validator that renders messages with tr.
func NewWebhookValidator(tr *i18n.Translator) *WebhookValidator {
	return &WebhookValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tr:       tr,
	}
}

// Decode parses body, sanitizes every string and validates the result.
func (v *WebhookValidator) Decode(body []byte) (*models.WebhookPayload, error) {
	var payload models.WebhookPayload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		return nil, v.decodeError(err)
	}

	sanitizePayload(&payload)
	if err := v.Validate(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

// Validate checks an already decoded payload.
func (v *WebhookValidator) Validate(payload *models.WebhookPayload) error {
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Validation("payload", v.tr.T(i18n.KeyInvalidPayload))
	}

	fe := fieldErrs[0]
	field, key := keyForNamespace(fe.StructNamespace())
	return errors.Validation(field, v.tr.T(key))
}

func (v *WebhookValidator) decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		switch typeErr.Field {
		case "object":
			return errors.Validation("object", v.tr.T(i18n.KeyInvalidObjectType))
		case "entry":
			return errors.Validation("entry", v.tr.T(i18n.KeyEntryMustBeArray))
		case "entry.messaging":
			return errors.Validation("messaging", v.tr.T(i18n.KeyMessagingMustBeArray))
		case "entry.messaging.sender.id", "entry.messaging.sender":
			return errors.Validation("sender.id", v.tr.T(i18n.KeySenderIDRequired))
		case "entry.messaging.recipient.id", "entry.messaging.recipient":
			return errors.Validation("recipient.id", v.tr.T(i18n.KeyRecipientIDRequired))
		case "entry.messaging.message.mid", "entry.messaging.message":
			return errors.Validation("message.mid", v.tr.T(i18n.KeyMessageIDRequired))
		}
	}
	return errors.Validation("payload", v.tr.T(i18n.KeyInvalidPayload))
}

func keyForNamespace(ns string) (string, string) {
	switch {
	case strings.HasSuffix(ns, ".Object"):
		return "object", i18n.KeyInvalidObjectType
	case strings.HasSuffix(ns, ".Entry"):
		return "entry", i18n.KeyEntryMustBeArray
	case strings.HasSuffix(ns, ".Messaging"):
		return "messaging", i18n.KeyMessagingMustBeArray
	case strings.HasSuffix(ns, ".Sender.ID"):
		return "sender.id", i18n.KeySenderIDRequired
	case strings.HasSuffix(ns, ".Recipient.ID"):
		return "recipient.id", i18n.KeyRecipientIDRequired
	case strings.HasSuffix(ns, ".Message.MID"):
		return "message.mid", i18n.KeyMessageIDRequired
	default:
		return "payload", i18n.KeyInvalidPayload
	}
}

func sanitizePayload(p *models.WebhookPayload) {
	p.Object = Sanitize(p.Object)
	for i := range p.Entry {
		entry := &p.Entry[i]
		entry.ID = Sanitize(entry.ID)
		for j := range entry.Messaging {
			m := &entry.Messaging[j]
			m.Sender.ID = Sanitize(m.Sender.ID)
			m.Recipient.ID = Sanitize(m.Recipient.ID)
			m.Message.MID = Sanitize(m.Message.MID)
			m.Message.Text = Sanitize(m.Message.Text)
		}
	}
}
