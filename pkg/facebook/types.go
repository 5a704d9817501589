package facebook

// SendRequest is the body of the Send API call.
type SendRequest struct {
	Recipient     Recipient   `json:"recipient"`
	MessagingType string      `json:"messaging_type"`
	Message       MessageText `json:"message"`
}

type Recipient struct {
	ID string `json:"id"`
}

type MessageText struct {
	Text string `json:"text"`
}

// MessagingTypeResponse marks a reply to a user-initiated conversation.
const MessagingTypeResponse = "RESPONSE"

type SendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// Profile is the subset of a Messenger user profile the inbox uses.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type pagesResponse struct {
	Data []page `json:"data"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// graphError is the error envelope returned by the Graph API.
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}
