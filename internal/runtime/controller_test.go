package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gamersumit/chatlite-widget/internal/backend"
	"github.com/gamersumit/chatlite-widget/internal/channel"
	"github.com/gamersumit/chatlite-widget/internal/chat"
	"github.com/gamersumit/chatlite-widget/internal/domain"
	"github.com/gamersumit/chatlite-widget/internal/identity"
)

const (
	hostOrigin  = "https://host.example"
	embedOrigin = "https://widget.example"
)

// countingServer serves the widget backend surface and records every path.
type countingServer struct {
	mu    sync.Mutex
	paths []string
	fail  bool
}

func (s *countingServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		fail := s.fail
		s.mu.Unlock()

		if fail {
			http.Error(w, `{"error":"unavailable"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/widget/config/wgt_1":
			json.NewEncoder(w).Encode(map[string]any{
				"is_verified": true,
				"is_active":   true,
				"config": domain.WidgetConfig{
					WidgetColor:    "#a08831",
					WelcomeMessage: "Hi! Ask your queries?",
					CompanyName:    "Acme Support",
				},
			})
		case "/widget/session":
			json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
		case "/widget/message":
			json.NewEncoder(w).Encode(map[string]string{"message_id": "m-1", "response": "ok"})
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *countingServer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// newEmbeddedController wires a controller to a pipe channel and a
// counting backend, returning the host-side endpoint as well.
func newEmbeddedController(t *testing.T, srv *countingServer) (*Controller, *channel.Endpoint) {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	hostConn, embedConn := channel.Pipe(hostOrigin, embedOrigin)
	t.Cleanup(func() {
		hostConn.Close()
		embedConn.Close()
	})

	c := New(Config{
		WidgetID: "wgt_1",
		Mode:     ModeEmbedded,
		Client:   backend.NewClient(ts.URL, time.Second),
		Endpoint: channel.NewEndpoint(embedConn, hostOrigin),
		Identity: &identity.MemStore{},
		Page:     chat.PageContext{URL: "https://host.example/page"},
	})
	return c, channel.NewEndpoint(hostConn, embedOrigin)
}

func TestStartEmbedded_SkipsBackendConfigFetch(t *testing.T) {
	srv := &countingServer{}
	c, _ := newEmbeddedController(t, srv)

	c.Start(context.Background())

	if got := srv.callCount(); got != 0 {
		t.Errorf("Embedded mount must not call the backend, got %d calls", got)
	}
	if c.Phase() != PhaseAwaitingConfig {
		t.Errorf("Expected awaiting-config phase, got %s", c.Phase())
	}
	state := c.State()
	if state.IsLoading || state.IsConnected {
		t.Errorf("Expected loaded, not-connected state, got %+v", state)
	}
}

func TestStartEmbedded_SeedsOfflineMessageByDefault(t *testing.T) {
	c, _ := newEmbeddedController(t, &countingServer{})
	c.Start(context.Background())

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected one seeded message, got %d", len(msgs))
	}
	if msgs[0].Content != domain.DefaultOfflineMessage {
		t.Errorf("Expected offline text %q, got %q", domain.DefaultOfflineMessage, msgs[0].Content)
	}
}

func TestHandleMessage_ForeignWidgetConfigIgnored(t *testing.T) {
	c, _ := newEmbeddedController(t, &countingServer{})
	c.Start(context.Background())

	before, _ := c.Settings()
	c.HandleMessage(context.Background(), channel.Config{Config: channel.EmbedConfig{
		WidgetID:       "wgt_other",
		PrimaryColor:   "#123456",
		WelcomeMessage: "Should never appear",
		InternalStatus: &domain.VerificationStatus{Verified: true, Active: true},
	}})

	after, hasConfig := c.Settings()
	if before != after {
		t.Errorf("Settings mutated by foreign config:\nbefore %+v\nafter  %+v", before, after)
	}
	if hasConfig {
		t.Error("Foreign config must not count as an authoritative source")
	}
	if c.Phase() != PhaseAwaitingConfig {
		t.Errorf("Expected awaiting-config phase, got %s", c.Phase())
	}
}

func TestHandleMessage_ConfigConnectsAndSelectsGreeting(t *testing.T) {
	c, _ := newEmbeddedController(t, &countingServer{})
	c.Start(context.Background())

	// An unverified push keeps the widget offline and seeds the offline text.
	c.HandleMessage(context.Background(), channel.Config{Config: channel.EmbedConfig{
		WidgetID:       "wgt_1",
		WelcomeMessage: "Hi there!",
		OfflineMessage: "We are away",
		InternalStatus: &domain.VerificationStatus{Verified: false, Active: false},
	}})

	if got := c.Messages()[0].Content; got != "We are away" {
		t.Errorf("Expected offline text, got %q", got)
	}
	if c.State().IsConnected {
		t.Error("Unverified widget must not be connected")
	}

	// Chat history written before the flip must survive it.
	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	c.HandleMessage(context.Background(), channel.Config{Config: channel.EmbedConfig{
		WidgetID:       "wgt_1",
		WelcomeMessage: "Hi there!",
		OfflineMessage: "We are away",
		InternalStatus: &domain.VerificationStatus{Verified: true, Active: true},
	}})

	msgs := c.Messages()
	if msgs[0].Content != "Hi there!" {
		t.Errorf("Expected welcome text after flip, got %q", msgs[0].Content)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected welcome + user + assistant, got %d messages", len(msgs))
	}
	if msgs[1].Content != "hello" || msgs[2].Content != "ok" {
		t.Errorf("Prior messages not preserved: %+v", msgs[1:])
	}
	if c.Phase() != PhaseConnected || !c.State().IsConnected {
		t.Errorf("Expected connected, got phase %s state %+v", c.Phase(), c.State())
	}
}

func TestHandleMessage_UpdateDroppedBeforeConnected(t *testing.T) {
	c, _ := newEmbeddedController(t, &countingServer{})
	ctx := context.Background()
	c.Start(ctx)

	c.HandleMessage(ctx, channel.ConfigUpdate{
		PrimaryColor:   "#123456",
		WelcomeMessage: "Should never appear",
	})

	settings, _ := c.Settings()
	if settings.PrimaryColor == "#123456" {
		t.Error("Patch applied while still awaiting config")
	}
	if got := c.Messages()[0].Content; got != domain.DefaultOfflineMessage {
		t.Errorf("Greeting reseeded by a pre-config patch, got %q", got)
	}

	// The same patch lands once a full config has connected the widget.
	c.HandleMessage(ctx, channel.Config{Config: channel.EmbedConfig{
		WidgetID:       "wgt_1",
		InternalStatus: &domain.VerificationStatus{Verified: true, Active: true},
	}})
	c.HandleMessage(ctx, channel.ConfigUpdate{PrimaryColor: "#123456"})

	settings, _ = c.Settings()
	if settings.PrimaryColor != "#123456" {
		t.Errorf("Patch not applied after connect, got %q", settings.PrimaryColor)
	}
}

func TestToggle_EmitsAlternatingToggleEvents(t *testing.T) {
	c, host := newEmbeddedController(t, &countingServer{})
	ctx := context.Background()
	c.Start(ctx)

	// Mount announces readiness first.
	p, err := host.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if _, ok := p.(channel.Ready); !ok {
		t.Fatalf("Expected Ready, got %T", p)
	}

	wasOpen := c.State().IsOpen
	c.Toggle(ctx)
	c.Toggle(ctx)
	if got := c.State().IsOpen; got != wasOpen {
		t.Errorf("Double toggle changed isOpen: %v -> %v", wasOpen, got)
	}

	for i, want := range []bool{!wasOpen, wasOpen} {
		p, err := host.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		toggle, ok := p.(channel.Toggle)
		if !ok {
			t.Fatalf("Expected Toggle, got %T", p)
		}
		if toggle.IsOpen != want {
			t.Errorf("Toggle %d: expected isOpen=%v, got %v", i, want, toggle.IsOpen)
		}
	}
}

func TestStartStandalone_FetchesConfigAndConnects(t *testing.T) {
	srv := &countingServer{}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	c := New(Config{
		WidgetID: "wgt_1",
		Mode:     ModeStandalone,
		Client:   backend.NewClient(ts.URL, time.Second),
		Identity: &identity.MemStore{},
	})
	c.Start(context.Background())

	if c.Phase() != PhaseConnected {
		t.Fatalf("Expected connected phase, got %s", c.Phase())
	}
	settings, hasConfig := c.Settings()
	if !hasConfig {
		t.Fatal("Expected resolved settings")
	}
	if settings.Title != "Acme Support" || settings.PrimaryColor != "#a08831" {
		t.Errorf("Backend config not applied: %+v", settings)
	}
	if got := c.Messages()[0].Content; got != "Hi! Ask your queries?" {
		t.Errorf("Expected fetched welcome text, got %q", got)
	}
	if !c.State().IsConnected {
		t.Error("Expected connected state")
	}
}

func TestStartStandalone_FetchFailureIsTerminal(t *testing.T) {
	srv := &countingServer{fail: true}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	c := New(Config{
		WidgetID: "wgt_1",
		Mode:     ModeStandalone,
		Client:   backend.NewClient(ts.URL, time.Second),
		Identity: &identity.MemStore{},
	})
	c.Start(context.Background())

	if c.Phase() != PhaseError {
		t.Fatalf("Expected error phase, got %s", c.Phase())
	}
	state := c.State()
	if !state.HasError || state.ErrorMessage == "" {
		t.Errorf("Expected friendly error state, got %+v", state)
	}
	if _, hasConfig := c.Settings(); hasConfig {
		t.Error("Error phase must keep a null config")
	}

	// Standalone without resolved settings never sends.
	calls := srv.callCount()
	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Errorf("Send should be a no-op, got %v", err)
	}
	if srv.callCount() != calls {
		t.Error("Send in error phase must not reach the network")
	}
}
