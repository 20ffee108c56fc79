package ai

import "context"

// StaticResponder is the canned fallback used when no AI backend is
// configured. It keeps the development service answering end to end.
type StaticResponder struct{}

// NewStaticResponder returns the canned responder.
func NewStaticResponder() *StaticResponder {
	return &StaticResponder{}
}

// Reply acknowledges the visitor message with a static text.
func (*StaticResponder) Reply(_ context.Context, _ []Message, _ string) (string, error) {
	return "Thanks for your message! A member of our team will get back to you shortly.", nil
}
