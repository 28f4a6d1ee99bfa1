package line

import "time"

// WebhookEvent is the top-level structure received from the LINE platform.
type WebhookEvent struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event represents a single webhook event.
type Event struct {
	Type           string   `json:"type"`
	Mode           string   `json:"mode"`
	Timestamp      int64    `json:"timestamp"`
	Source         Source   `json:"source"`
	WebhookEventID string   `json:"webhookEventId"`
	ReplyToken     string   `json:"replyToken,omitempty"`
	Message        *Message `json:"message,omitempty"`
}

// Source identifies who or where the event came from.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// Message contains the message content.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ReplyRequest is the payload sent to the Messaging API reply endpoint.
type ReplyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []TextMessage `json:"messages"`
}

// PushRequest is the payload sent to the Messaging API push endpoint.
type PushRequest struct {
	To       string        `json:"to"`
	Messages []TextMessage `json:"messages"`
}

// TextMessage is a plain text outbound message.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// APIError is the error body returned by the Messaging API.
type APIError struct {
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail points at the offending property of a rejected request.
type ErrorDetail struct {
	Message  string `json:"message"`
	Property string `json:"property"`
}

// ParsedInboundMessage is the normalized result of parsing a webhook event.
type ParsedInboundMessage struct {
	ReplyToken     string
	UserID         string
	Text           string
	Timestamp      time.Time
	WebhookEventID string
}
