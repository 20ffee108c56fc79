// Package chat manages the visitor chat session and the optimistic message
// exchange with the widget backend.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/gamersumit/chatlite-widget/internal/backend"
	"github.com/gamersumit/chatlite-widget/internal/domain"
)

// FailureReply is the synthetic assistant message appended when a send
// fails. Visitors see a friendly static text, never a raw error.
const FailureReply = "Sorry, I encountered an error. Please try again."

// PageContext describes the hosting page, forwarded with session and
// message calls.
type PageContext struct {
	URL       string
	Title     string
	UserAgent string
	Referrer  string
}

// Exchange owns the chat session and the append-only message sequence for
// one embedding instance. A session is created lazily on the first send and
// never recreated within the same document lifetime. All methods are safe
// for concurrent use; state mutations are applied atomically relative to
// each other.
type Exchange struct {
	client    *backend.Client
	widgetID  string
	visitorID string
	page      PageContext

	mu       sync.Mutex
	session  *domain.ChatSession
	messages []domain.Message

	// Concurrent first sends share one session-create call.
	createGroup singleflight.Group

	now   func() time.Time
	newID func() string
}

// NewExchange returns an exchange for the given widget and visitor.
func NewExchange(client *backend.Client, widgetID, visitorID string, page PageContext) *Exchange {
	return &Exchange{
		client:    client,
		widgetID:  widgetID,
		visitorID: visitorID,
		page:      page,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// VisitorID returns the visitor identifier the exchange was built with.
func (x *Exchange) VisitorID() string {
	return x.visitorID
}

// Session returns the established session, or nil before the first
// successful send.
func (x *Exchange) Session() *domain.ChatSession {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.session == nil {
		return nil
	}
	s := *x.session
	return &s
}

// Messages returns a snapshot of the message sequence in insertion order.
func (x *Exchange) Messages() []domain.Message {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]domain.Message, len(x.messages))
	copy(out, x.messages)
	return out
}

// SetWelcome replaces the pinned welcome/offline entry with content and
// re-pins it to position 0, preserving every other message. An empty
// content removes nothing and adds nothing.
func (x *Exchange) SetWelcome(content string) {
	if content == "" {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	entry := domain.Message{
		ID:        domain.WelcomeMessageID,
		Content:   content,
		Role:      domain.RoleAssistant,
		Timestamp: x.now(),
		Status:    domain.StatusDelivered,
	}

	rest := x.messages[:0:0]
	for _, m := range x.messages {
		if !m.IsWelcome() {
			rest = append(rest, m)
		}
	}
	x.messages = append([]domain.Message{entry}, rest...)
}

// Send delivers a visitor message. Blank input or a missing visitor
// identity is a no-op with no network traffic. The user message is
// appended with status "sending" and ends in "delivered" or "error"
// exactly once; the assistant reply (or a synthetic failure notice) is
// appended after it. Concurrent sends run independently.
func (x *Exchange) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || x.visitorID == "" {
		return nil
	}

	userMsg := domain.Message{
		ID:        x.newID(),
		Content:   text,
		Role:      domain.RoleUser,
		Timestamp: x.now(),
		Status:    domain.StatusSending,
	}
	x.append(userMsg)

	sessionID, err := x.ensureSession(ctx)
	if err != nil {
		slog.Warn("Chat session creation failed", "widget_id", x.widgetID, "error", err)
		x.failSend(userMsg.ID)
		return err
	}

	resp, err := x.client.SendMessage(ctx, backend.MessageRequest{
		Message:   text,
		SessionID: sessionID,
		VisitorID: x.visitorID,
		PageURL:   x.page.URL,
		PageTitle: x.page.Title,
		UserAgent: x.page.UserAgent,
	})
	if err != nil {
		slog.Warn("Message send failed", "widget_id", x.widgetID, "error", err)
		x.failSend(userMsg.ID)
		return err
	}

	replyID := resp.MessageID
	if replyID == "" {
		replyID = x.newID()
	}
	x.mu.Lock()
	x.setStatus(userMsg.ID, domain.StatusDelivered)
	x.messages = append(x.messages, domain.Message{
		ID:        replyID,
		Content:   resp.Response,
		Role:      domain.RoleAssistant,
		Timestamp: x.now(),
		Status:    domain.StatusDelivered,
	})
	x.mu.Unlock()

	return nil
}

// ensureSession returns the established session id, creating it through a
// single-flight guard so overlapping first sends issue one create call.
func (x *Exchange) ensureSession(ctx context.Context) (string, error) {
	x.mu.Lock()
	if x.session != nil {
		id := x.session.SessionID
		x.mu.Unlock()
		return id, nil
	}
	x.mu.Unlock()

	v, err, _ := x.createGroup.Do("create", func() (any, error) {
		resp, err := x.client.CreateSession(ctx, backend.SessionRequest{
			WidgetID:  x.widgetID,
			VisitorID: x.visitorID,
			PageURL:   x.page.URL,
			PageTitle: x.page.Title,
			UserAgent: x.page.UserAgent,
			Referrer:  x.page.Referrer,
		})
		if err != nil {
			return nil, err
		}

		x.mu.Lock()
		x.session = &domain.ChatSession{SessionID: resp.SessionID, VisitorID: x.visitorID}
		x.mu.Unlock()
		return resp.SessionID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (x *Exchange) append(m domain.Message) {
	x.mu.Lock()
	x.messages = append(x.messages, m)
	x.mu.Unlock()
}

// failSend marks the originating user message as errored and appends the
// synthetic assistant failure notice, atomically.
func (x *Exchange) failSend(userMsgID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.setStatus(userMsgID, domain.StatusError)
	x.messages = append(x.messages, domain.Message{
		ID:        x.newID(),
		Content:   FailureReply,
		Role:      domain.RoleAssistant,
		Timestamp: x.now(),
		Status:    domain.StatusError,
	})
}

// setStatus mutates one message's delivery status in place. Caller holds mu.
func (x *Exchange) setStatus(id string, status domain.DeliveryStatus) {
	for i := range x.messages {
		if x.messages[i].ID == id {
			x.messages[i].Status = status
			return
		}
	}
}
