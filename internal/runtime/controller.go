// Package runtime drives the widget lifecycle inside the embedded document.
//
// The controller reconciles backend-fetched configuration (standalone mode)
// with host-pushed configuration (embedded mode) and exposes the resulting
// runtime state to the rendering layer. The two sources are never mixed:
// embedded mode skips the backend config fetch entirely, making the
// cross-document channel the sole config source in that mode.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gamersumit/chatlite-widget/internal/backend"
	"github.com/gamersumit/chatlite-widget/internal/channel"
	"github.com/gamersumit/chatlite-widget/internal/chat"
	"github.com/gamersumit/chatlite-widget/internal/domain"
	"github.com/gamersumit/chatlite-widget/internal/identity"
)

// Mode selects the configuration source for the embedded runtime.
type Mode string

const (
	// ModeStandalone self-fetches config from the backend (full-page test
	// harness).
	ModeStandalone Mode = "standalone"

	// ModeEmbedded receives config only via the cross-document channel.
	ModeEmbedded Mode = "embedded"
)

// Phase is the lifecycle state of the controller.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseAwaitingConfig
	PhaseConnected
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseAwaitingConfig:
		return "awaiting-config"
	case PhaseConnected:
		return "connected"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// initErrorMessage is the friendly text surfaced when initialization fails.
const initErrorMessage = "Failed to initialize widget"

// Config wires a controller.
type Config struct {
	WidgetID string
	Mode     Mode

	// Client reaches the widget backend. Standalone mode uses it for the
	// config fetch; both modes use it for the message exchange.
	Client *backend.Client

	// Endpoint is the channel to the host document. Required in embedded
	// mode; nil in standalone mode.
	Endpoint *channel.Endpoint

	// Identity is the durable visitor identity storage.
	Identity identity.Store

	// Page describes the hosting page for session/message calls.
	Page chat.PageContext
}

// Controller owns WidgetSettings, VerificationStatus and RuntimeState for
// one embedded document. Only the controller's own methods mutate them.
type Controller struct {
	cfg Config

	mu        sync.Mutex
	phase     Phase
	settings  domain.WidgetSettings
	hasConfig bool
	status    domain.VerificationStatus
	state     domain.RuntimeState
	exchange  *chat.Exchange
}

// New returns a controller in the Initializing phase.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:      cfg,
		phase:    PhaseInitializing,
		settings: domain.DefaultSettings(cfg.WidgetID),
		state:    domain.RuntimeState{IsLoading: true},
	}
}

// Start runs the mount branch for the configured mode. Failures are
// contained: the controller lands in the Error phase instead of returning
// a fault to the caller.
func (c *Controller) Start(ctx context.Context) {
	switch c.cfg.Mode {
	case ModeEmbedded:
		c.startEmbedded(ctx)
	default:
		c.startStandalone(ctx)
	}
}

func (c *Controller) startEmbedded(ctx context.Context) {
	visitorID := c.resolveVisitor()

	c.mu.Lock()
	c.exchange = chat.NewExchange(c.cfg.Client, c.cfg.WidgetID, visitorID, c.cfg.Page)
	c.phase = PhaseAwaitingConfig
	c.state.IsLoading = false
	c.state.IsConnected = c.status.Online()
	verified := c.status.Verified
	c.mu.Unlock()

	c.reseedWelcome()

	c.post(ctx, channel.Ready{
		WidgetID: c.cfg.WidgetID,
		Verified: verified,
		Status:   "loaded",
	})
}

func (c *Controller) startStandalone(ctx context.Context) {
	resp, err := c.cfg.Client.WidgetConfig(ctx, c.cfg.WidgetID)
	if err != nil {
		slog.Warn("Widget config fetch failed", "widget_id", c.cfg.WidgetID, "error", err)
		c.mu.Lock()
		c.phase = PhaseError
		c.state.IsLoading = false
		c.state.HasError = true
		c.state.ErrorMessage = initErrorMessage
		c.mu.Unlock()
		return
	}

	visitorID := c.resolveVisitor()

	c.mu.Lock()
	c.exchange = chat.NewExchange(c.cfg.Client, c.cfg.WidgetID, visitorID, c.cfg.Page)
	c.status = domain.VerificationStatus{Verified: resp.IsVerified, Active: resp.IsActive}
	c.settings = settingsFromBackend(c.cfg.WidgetID, resp.Config)
	c.hasConfig = true
	c.phase = PhaseConnected
	c.state.IsLoading = false
	c.state.IsConnected = c.status.Online()
	c.mu.Unlock()

	c.reseedWelcome()
}

func (c *Controller) resolveVisitor() string {
	if c.cfg.Identity == nil {
		return ""
	}
	visitorID, err := identity.Resolve(c.cfg.Identity)
	if err != nil {
		slog.Warn("Visitor identity resolution failed", "error", err)
		return ""
	}
	return visitorID
}

// Run processes channel messages until the context is cancelled or the
// channel closes. Embedded mode only.
func (c *Controller) Run(ctx context.Context) {
	if c.cfg.Endpoint == nil {
		return
	}
	for {
		p, err := c.cfg.Endpoint.Next(ctx)
		if err != nil {
			return
		}
		c.HandleMessage(ctx, p)
	}
}

// HandleMessage dispatches one channel payload. Payload types the embedded
// side does not consume are ignored.
func (c *Controller) HandleMessage(_ context.Context, p channel.Payload) {
	switch m := p.(type) {
	case channel.Config:
		c.applyChannelConfig(m.Config)
	case channel.ConfigUpdate:
		c.applyUpdate(m)
	}
}

// applyChannelConfig replaces settings wholesale from a host config push.
// Pushes carrying a foreign widget id are dropped silently; they protect
// against stale cross-widget races when multiple embeds exist.
func (c *Controller) applyChannelConfig(cfg channel.EmbedConfig) {
	c.mu.Lock()
	if cfg.WidgetID != c.cfg.WidgetID || c.phase == PhaseError {
		c.mu.Unlock()
		return
	}

	c.settings = settingsFromEmbed(cfg)
	if cfg.InternalStatus != nil {
		c.status = *cfg.InternalStatus
	}
	c.hasConfig = true
	c.phase = PhaseConnected
	c.state.IsConnected = c.status.Online()
	c.mu.Unlock()

	c.reseedWelcome()
}

// applyUpdate shallow-merges a cosmetic patch; no phase transition.
// Patches are post-mount tweaks: a controller still awaiting its full
// config, or in the Error phase, drops them.
func (c *Controller) applyUpdate(patch channel.ConfigUpdate) {
	c.mu.Lock()
	if c.phase != PhaseConnected {
		c.mu.Unlock()
		return
	}
	if patch.Position != "" {
		c.settings.Position = patch.Position
	}
	if patch.PrimaryColor != "" {
		c.settings.PrimaryColor = patch.PrimaryColor
	}
	if patch.BorderRadius != "" {
		c.settings.BorderRadius = patch.BorderRadius
	}
	if patch.FontFamily != "" {
		c.settings.FontFamily = patch.FontFamily
	}
	if patch.Theme != "" {
		c.settings.Theme = patch.Theme
	}
	if patch.CompanyName != "" {
		c.settings.Title = patch.CompanyName
	}
	if patch.WelcomeMessage != "" {
		c.settings.WelcomeMessage = patch.WelcomeMessage
	}
	if patch.PlaceholderText != "" {
		c.settings.Placeholder = patch.PlaceholderText
	}
	if patch.OfflineMessage != "" {
		c.settings.OfflineMessage = patch.OfflineMessage
	}
	changedGreeting := patch.WelcomeMessage != "" || patch.OfflineMessage != ""
	c.mu.Unlock()

	if changedGreeting {
		c.reseedWelcome()
	}
}

// reseedWelcome re-evaluates the welcome/offline selection rule: offline
// text unless the widget is verified and active. The result supersedes the
// reserved welcome entry at position 0.
func (c *Controller) reseedWelcome() {
	c.mu.Lock()
	exchange := c.exchange
	content := c.settings.WelcomeMessage
	if !c.status.Online() {
		content = c.settings.OfflineMessage
	}
	c.mu.Unlock()

	if exchange != nil {
		exchange.SetWelcome(content)
	}
}

// Send delivers a visitor message through the exchange. Standalone mode
// without resolved settings is a no-op, as is a controller that has not
// started.
func (c *Controller) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	exchange := c.exchange
	blocked := c.cfg.Mode == ModeStandalone && !c.hasConfig
	c.mu.Unlock()

	if exchange == nil || blocked {
		return nil
	}
	return exchange.Send(ctx, text)
}

// Toggle flips the open flag and notifies the host so it can switch the
// container chrome.
func (c *Controller) Toggle(ctx context.Context) bool {
	c.mu.Lock()
	c.state.IsOpen = !c.state.IsOpen
	isOpen := c.state.IsOpen
	c.mu.Unlock()

	c.post(ctx, channel.Toggle{IsOpen: isOpen})
	return isOpen
}

// Open opens the chat surface, notifying the host on change.
func (c *Controller) Open(ctx context.Context) {
	c.setOpen(ctx, true)
}

// Close closes the chat surface, notifying the host on change.
func (c *Controller) Close(ctx context.Context) {
	c.setOpen(ctx, false)
}

func (c *Controller) setOpen(ctx context.Context, open bool) {
	c.mu.Lock()
	changed := c.state.IsOpen != open
	c.state.IsOpen = open
	c.mu.Unlock()

	if changed {
		c.post(ctx, channel.Toggle{IsOpen: open})
	}
}

// ToggleMinimize flips the minimized flag. Purely local; the host chrome
// only tracks open/closed.
func (c *Controller) ToggleMinimize() {
	c.mu.Lock()
	c.state.IsMinimized = !c.state.IsMinimized
	c.mu.Unlock()
}

// ReportHeight asks the host to resize the embedded element.
func (c *Controller) ReportHeight(ctx context.Context, px int) {
	c.post(ctx, channel.Resize{Height: px})
}

// ReportFault forwards a contained rendering fault to the host,
// best-effort. It never propagates the fault back to the caller.
func (c *Controller) ReportFault(ctx context.Context, message string) {
	c.post(ctx, channel.Error{Message: message, Timestamp: time.Now()})
}

// post dispatches a channel payload best-effort. Delivery failures must
// not crash the embedded document.
func (c *Controller) post(ctx context.Context, p channel.Payload) {
	if c.cfg.Endpoint == nil {
		return
	}
	if err := c.cfg.Endpoint.Post(ctx, p); err != nil {
		slog.Debug("Channel dispatch failed", "error", err)
	}
}

// State returns a snapshot of the runtime state.
func (c *Controller) State() domain.RuntimeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Settings returns the current settings and whether an authoritative
// source has delivered them. The rendering layer suppresses rendering
// entirely in the Error phase with no config.
func (c *Controller) Settings() (domain.WidgetSettings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings, c.hasConfig
}

// Status returns the effective verification status.
func (c *Controller) Status() domain.VerificationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Phase returns the lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Messages returns a snapshot of the chat sequence, empty before Start.
func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	exchange := c.exchange
	c.mu.Unlock()
	if exchange == nil {
		return nil
	}
	return exchange.Messages()
}

func settingsFromEmbed(cfg channel.EmbedConfig) domain.WidgetSettings {
	s := domain.DefaultSettings(cfg.WidgetID)
	if cfg.Position != "" {
		s.Position = cfg.Position
	}
	if cfg.PrimaryColor != "" {
		s.PrimaryColor = cfg.PrimaryColor
	}
	if cfg.Size != "" {
		s.Size = cfg.Size
	}
	if cfg.BorderRadius != "" {
		s.BorderRadius = cfg.BorderRadius
	}
	if cfg.FontFamily != "" {
		s.FontFamily = cfg.FontFamily
	}
	if cfg.Theme != "" {
		s.Theme = cfg.Theme
	}
	if cfg.CompanyName != "" {
		s.Title = cfg.CompanyName
	}
	if cfg.WelcomeMessage != "" {
		s.WelcomeMessage = cfg.WelcomeMessage
	}
	if cfg.PlaceholderText != "" {
		s.Placeholder = cfg.PlaceholderText
	}
	if cfg.OfflineMessage != "" {
		s.OfflineMessage = cfg.OfflineMessage
	}
	if cfg.APIBase != "" {
		s.APIBase = cfg.APIBase
	}
	return s
}

func settingsFromBackend(widgetID string, cfg *domain.WidgetConfig) domain.WidgetSettings {
	s := domain.DefaultSettings(widgetID)
	if cfg == nil {
		return s
	}
	if cfg.WidgetPosition != "" {
		s.Position = cfg.WidgetPosition
	}
	if cfg.WidgetColor != "" {
		s.PrimaryColor = cfg.WidgetColor
	}
	if cfg.WelcomeMessage != "" {
		s.WelcomeMessage = cfg.WelcomeMessage
	}
	if cfg.PlaceholderText != "" {
		s.Placeholder = cfg.PlaceholderText
	}
	if cfg.CompanyName != "" {
		s.Title = cfg.CompanyName
	}
	if cfg.OfflineMessage != "" {
		s.OfflineMessage = cfg.OfflineMessage
	}
	return s
}
