package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gamersumit/chatlite-widget/internal/backend"
	"github.com/gamersumit/chatlite-widget/internal/domain"
)

// fakeBackend records session and message calls in arrival order.
type fakeBackend struct {
	mu           sync.Mutex
	calls        []string
	failMessages bool
	sessionDelay time.Duration
}

func (f *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.URL.Path)
		fail := f.failMessages
		delay := f.sessionDelay
		f.mu.Unlock()

		switch r.URL.Path {
		case "/widget/session":
			time.Sleep(delay)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
		case "/widget/message":
			if fail {
				http.Error(w, `{"error":"processing error"}`, http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"message_id": "reply-1",
				"response":   "Hello from support",
			})
		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == path {
			n++
		}
	}
	return n
}

func (f *fakeBackend) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestExchange(t *testing.T, fb *fakeBackend) *Exchange {
	t.Helper()
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)
	client := backend.NewClient(srv.URL, time.Second)
	return NewExchange(client, "wgt_1", "visitor_0123456789abcdef0123456789abcdef", PageContext{
		URL:   "https://host.example/page",
		Title: "Host Page",
	})
}

func TestSend_BlankInputIsNoop(t *testing.T) {
	fb := &fakeBackend{}
	x := newTestExchange(t, fb)

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := x.Send(context.Background(), text); err != nil {
			t.Errorf("Send(%q) returned error: %v", text, err)
		}
	}

	if got := len(x.Messages()); got != 0 {
		t.Errorf("Expected no messages, got %d", got)
	}
	if got := len(fb.callOrder()); got != 0 {
		t.Errorf("Expected no network calls, got %v", fb.callOrder())
	}
}

func TestSend_MissingVisitorIdentityIsNoop(t *testing.T) {
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)
	x := NewExchange(backend.NewClient(srv.URL, time.Second), "wgt_1", "", PageContext{})

	if err := x.Send(context.Background(), "hello"); err != nil {
		t.Errorf("Send returned error: %v", err)
	}
	if got := len(x.Messages()); got != 0 {
		t.Errorf("Expected no messages, got %d", got)
	}
}

func TestSend_FirstSendCreatesSessionThenDelivers(t *testing.T) {
	fb := &fakeBackend{}
	x := newTestExchange(t, fb)
	x.SetWelcome("Welcome!")

	if err := x.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	order := fb.callOrder()
	want := []string{"/widget/session", "/widget/message"}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Errorf("Expected call order %v, got %v", want, order)
	}

	msgs := x.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	if !msgs[0].IsWelcome() {
		t.Errorf("Expected welcome entry first, got %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleUser || msgs[1].Status != domain.StatusDelivered {
		t.Errorf("Expected delivered user message, got %+v", msgs[1])
	}
	if msgs[2].Role != domain.RoleAssistant || msgs[2].Content != "Hello from support" {
		t.Errorf("Expected assistant reply, got %+v", msgs[2])
	}

	sess := x.Session()
	if sess == nil || sess.SessionID != "sess-1" {
		t.Errorf("Expected established session sess-1, got %+v", sess)
	}
}

func TestSend_FailureMarksUserMessageAndAppendsNotice(t *testing.T) {
	fb := &fakeBackend{failMessages: true}
	x := newTestExchange(t, fb)
	x.SetWelcome("Welcome!")

	if err := x.Send(context.Background(), "hello"); err == nil {
		t.Fatal("Expected error from failed send")
	}

	msgs := x.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "Welcome!" || msgs[0].Status != domain.StatusDelivered {
		t.Errorf("Welcome entry mutated: %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleUser || msgs[1].Status != domain.StatusError {
		t.Errorf("Expected errored user message, got %+v", msgs[1])
	}
	if msgs[2].Role != domain.RoleAssistant || msgs[2].Status != domain.StatusError || msgs[2].Content != FailureReply {
		t.Errorf("Expected synthetic failure notice, got %+v", msgs[2])
	}
}

func TestSend_SessionSurvivesLaterFailures(t *testing.T) {
	fb := &fakeBackend{}
	x := newTestExchange(t, fb)

	if err := x.Send(context.Background(), "first"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	fb.mu.Lock()
	fb.failMessages = true
	fb.mu.Unlock()

	if err := x.Send(context.Background(), "second"); err == nil {
		t.Fatal("Expected error from failed send")
	}

	// The session is never recreated, even after a failed send.
	if got := fb.count("/widget/session"); got != 1 {
		t.Errorf("Expected 1 session create, got %d", got)
	}
}

func TestSend_ConcurrentFirstSendsShareOneSessionCreate(t *testing.T) {
	fb := &fakeBackend{sessionDelay: 50 * time.Millisecond}
	x := newTestExchange(t, fb)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = x.Send(context.Background(), "hello")
		}()
	}
	wg.Wait()

	if got := fb.count("/widget/session"); got != 1 {
		t.Errorf("Expected single-flighted session create, got %d", got)
	}
	if got := fb.count("/widget/message"); got != 4 {
		t.Errorf("Expected 4 message sends, got %d", got)
	}
}
