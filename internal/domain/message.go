package domain

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DeliveryStatus tracks the optimistic lifecycle of a message. A user
// message transitions sending -> (delivered | error) exactly once.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusError     DeliveryStatus = "error"
)

// WelcomeMessageID is the reserved identifier for the welcome/offline entry.
// The entry carrying it is always superseded in place and re-pinned to
// position 0 of the sequence.
const WelcomeMessageID = "welcome"

// Message is one entry in the append-only chat sequence.
type Message struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Role      Role           `json:"role"`
	Timestamp time.Time      `json:"timestamp"`
	Status    DeliveryStatus `json:"status"`
}

// IsWelcome reports whether the message is the pinned welcome/offline entry.
func (m Message) IsWelcome() bool {
	return m.ID == WelcomeMessageID
}

// ChatSession correlates a sequence of messages for one embedding instance.
// It is created lazily on the first outgoing message and never recreated
// within the same document lifetime.
type ChatSession struct {
	SessionID string `json:"session_id"`
	VisitorID string `json:"visitor_id"`
}
