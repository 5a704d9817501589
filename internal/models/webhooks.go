package models

// WebhookObjectPage is the only object type accepted on the webhook.
const WebhookObjectPage = "page"

// WebhookPayload is a Messenger Platform webhook delivery.
type WebhookPayload struct {
	Object string         `json:"object" validate:"required,eq=page"`
	Entry  []WebhookEntry `json:"entry" validate:"required,dive"`
}

type WebhookEntry struct {
	ID        string             `json:"id"`
	Time      int64              `json:"time"`
	Messaging []WebhookMessaging `json:"messaging" validate:"required,dive"`
}

type WebhookMessaging struct {
	Sender    WebhookParty   `json:"sender"`
	Recipient WebhookParty   `json:"recipient"`
	Timestamp int64          `json:"timestamp"`
	Message   WebhookMessage `json:"message"`
}

type WebhookParty struct {
	ID string `json:"id" validate:"required"`
}

type WebhookMessage struct {
	MID  string `json:"mid" validate:"required"`
	Text string `json:"text"`
}

// InboundEvent is one flattened messaging event of a webhook delivery.
type InboundEvent struct {
	EntryID     string
	SenderID    string
	RecipientID string
	MessageID   string
	Text        string
}

// Events flattens the payload in delivery order.
func (p *WebhookPayload) Events() []InboundEvent {
	var events []InboundEvent
	for _, entry := range p.Entry {
		for _, m := range entry.Messaging {
			events = append(events, InboundEvent{
				EntryID:     entry.ID,
				SenderID:    m.Sender.ID,
				RecipientID: m.Recipient.ID,
				MessageID:   m.Message.MID,
				Text:        m.Message.Text,
			})
		}
	}
	return events
}
