// Package ai provides the assistant responder used by the widget backend
// to answer visitor messages.
package ai

import "context"

// Message is the dialog format handed to a responder.
type Message struct {
	Role string // "user" | "assistant" | "system"
	Text string
}

// Responder produces an assistant reply for the latest visitor message,
// given the prior conversation.
type Responder interface {
	Reply(ctx context.Context, history []Message, userText string) (string, error)
}
