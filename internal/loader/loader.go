// Package loader implements the host-side bootstrap: the verification
// pre-flight, the embedded document mount, and the container chrome that
// reacts to widget events from the cross-document channel.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gamersumit/chatlite-widget/internal/backend"
	"github.com/gamersumit/chatlite-widget/internal/channel"
	"github.com/gamersumit/chatlite-widget/internal/domain"
)

// ErrMissingWidgetID rejects an Init without a widget identifier.
var ErrMissingWidgetID = errors.New("loader: widget id is required")

// embeddingMode marks verification attempts issued for iframe embeddings.
const embeddingMode = "embedded"

// Page describes the hosting page. The loader forwards it with
// verification attempts.
type Page struct {
	Domain    string
	URL       string
	Title     string
	UserAgent string
	Referrer  string
}

// Config is the host-supplied configuration bag.
type Config struct {
	WidgetID       string
	FrontendBase   string
	APIBase        string
	Position       string
	Size           string
	PrimaryColor   string
	BorderRadius   string
	FontFamily     string
	Theme          string
	CompanyName    string
	WelcomeMessage string
	Placeholder    string
	OfflineMessage string

	// internalStatus is stamped by Init with the pre-flight outcome
	// before the embedded document can observe any config push.
	internalStatus *domain.VerificationStatus
}

// Chrome is the visual skin of the embedded element: transparent and
// borderless while the chat is closed, framed while it is open.
type Chrome string

const (
	ChromeChromeless Chrome = "chromeless"
	ChromeFramed     Chrome = "framed"
)

// Dimensions is a fixed container size.
type Dimensions struct {
	Width  int
	Height int
}

var sizeTable = map[string]Dimensions{
	domain.SizeSmall:  {Width: 320, Height: 500},
	domain.SizeMedium: {Width: 380, Height: 600},
	domain.SizeLarge:  {Width: 420, Height: 650},
}

func dimensionsFor(size string) Dimensions {
	if d, ok := sizeTable[size]; ok {
		return d
	}
	return sizeTable[domain.SizeMedium]
}

// Embed is the handle for one mounted embedded document. Mount returns it
// explicitly instead of registering it under a document-wide well-known
// identifier, so multiple independent embeds stay possible.
type Embed struct {
	mu      sync.Mutex
	url     string
	dims    Dimensions
	height  int
	chrome  Chrome
	visible bool
}

// URL is the embedded document address, carrying the widget id and the
// mode=embedded marker.
func (e *Embed) URL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url
}

// Size returns the container dimensions. Height reflects any resize the
// embedded runtime has requested.
func (e *Embed) Size() Dimensions {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.dims
	if e.height > 0 {
		d.Height = e.height
	}
	return d
}

// Chrome returns the current visual skin.
func (e *Embed) Chrome() Chrome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chrome
}

// Visible reports whether the host currently shows the container.
func (e *Embed) Visible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible
}

func (e *Embed) setChrome(c Chrome) {
	e.mu.Lock()
	e.chrome = c
	e.mu.Unlock()
}

func (e *Embed) setHeight(px int) {
	e.mu.Lock()
	e.height = px
	e.mu.Unlock()
}

func (e *Embed) setVisible(v bool) {
	e.mu.Lock()
	e.visible = v
	e.mu.Unlock()
}

// Offline is the static affordance shown when the widget cannot come up.
type Offline struct {
	Position string
	Message  string
}

// Loader is the host-side bootstrap for one embedding instance.
type Loader struct {
	client   *backend.Client
	endpoint *channel.Endpoint
	page     Page

	mu       sync.Mutex
	cfg      Config
	embed    *Embed
	offline  *Offline
	verified bool
}

// New returns a dormant loader. Call Init to perform the pre-flight and
// mount the widget.
func New(client *backend.Client, endpoint *channel.Endpoint, page Page) *Loader {
	return &Loader{client: client, endpoint: endpoint, page: page}
}

// Auto returns a loader that self-initializes when the ambient config
// already names a widget; otherwise it stays dormant until Init is called
// explicitly.
func Auto(ctx context.Context, client *backend.Client, endpoint *channel.Endpoint, page Page, ambient Config) *Loader {
	l := New(client, endpoint, page)
	if ambient.WidgetID != "" {
		if err := l.Init(ctx, ambient); err != nil {
			slog.Warn("Widget auto-initialization failed", "error", err)
		}
	}
	return l
}

// Init performs the verification pre-flight, mounts the embedded document
// and pushes the first config over the channel. Idempotent: a second call
// while mounted is a no-op. A failed pre-flight is non-fatal — the
// embedding proceeds and an offline affordance is shown, so the visible
// surface is never entirely absent.
func (l *Loader) Init(ctx context.Context, cfg Config) error {
	if cfg.WidgetID == "" {
		return ErrMissingWidgetID
	}

	l.mu.Lock()
	if l.embed != nil {
		l.mu.Unlock()
		return nil
	}
	l.cfg = cfg
	l.mu.Unlock()

	ready := l.CheckStatus(ctx, cfg.WidgetID)
	status := domain.VerificationStatus{Verified: ready, Active: ready}
	slog.Info("Widget pre-flight completed", "widget_id", cfg.WidgetID, "ready", ready)

	l.mu.Lock()
	l.cfg.internalStatus = &status
	cfg = l.cfg
	l.mu.Unlock()

	l.Mount(cfg)
	if !ready {
		l.ShowOffline("")
	}

	l.pushConfig(ctx)
	return nil
}

// CheckStatus issues the status pre-flight. An unverified widget triggers
// one verification attempt; a successful verify short-circuits to ready
// without re-reading status, and later calls never verify again within
// this loader's lifetime. Any transport failure or inactive status yields
// false.
func (l *Loader) CheckStatus(ctx context.Context, widgetID string) bool {
	resp, err := l.client.WidgetStatus(ctx, widgetID)
	if err != nil {
		slog.Warn("Widget status check failed", "widget_id", widgetID, "error", err)
		return false
	}

	if resp.Ready() {
		return true
	}

	if resp.VerificationStatus != domain.VerificationVerified {
		l.mu.Lock()
		already := l.verified
		l.mu.Unlock()
		if already {
			return true
		}
		return l.Verify(ctx, widgetID)
	}

	// Verified but inactive.
	slog.Warn("Widget is inactive", "widget_id", widgetID)
	return false
}

// Verify submits a verification attempt carrying the host origin,
// embedding mode, page URL and user agent. True only when the backend
// explicitly marks the attempt verified.
func (l *Loader) Verify(ctx context.Context, widgetID string) bool {
	resp, err := l.client.VerifyWidget(ctx, widgetID, backend.VerifyRequest{
		Domain:    l.page.Domain,
		Mode:      embeddingMode,
		PageURL:   l.page.URL,
		UserAgent: l.page.UserAgent,
	})
	if err != nil {
		slog.Warn("Widget verification failed", "widget_id", widgetID, "error", err)
		return false
	}
	if !resp.Verified {
		slog.Warn("Widget verification rejected", "widget_id", widgetID)
		return false
	}

	l.mu.Lock()
	l.verified = true
	l.mu.Unlock()
	return true
}

// Mount creates the embedded document container. Idempotent: an existing
// embed is returned unchanged. The container starts chromeless; chrome
// switches only in response to widget-toggle channel events.
func (l *Loader) Mount(cfg Config) *Embed {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.embed != nil {
		return l.embed
	}

	theme := cfg.Theme
	if theme == "" {
		theme = domain.DefaultTheme
	}
	l.embed = &Embed{
		url: fmt.Sprintf("%s/widget?id=%s&mode=embedded&theme=%s",
			cfg.FrontendBase, url.QueryEscape(cfg.WidgetID), url.QueryEscape(theme)),
		dims:    dimensionsFor(cfg.Size),
		chrome:  ChromeChromeless,
		visible: true,
	}
	return l.embed
}

// pushConfig sends the full settings object, including the stamped
// internal status, to the embedded document.
func (l *Loader) pushConfig(ctx context.Context) {
	if l.endpoint == nil {
		return
	}

	l.mu.Lock()
	cfg := l.cfg
	l.mu.Unlock()

	msg := channel.Config{Config: channel.EmbedConfig{
		WidgetID:        cfg.WidgetID,
		Position:        cfg.Position,
		PrimaryColor:    cfg.PrimaryColor,
		Size:            cfg.Size,
		BorderRadius:    cfg.BorderRadius,
		FontFamily:      cfg.FontFamily,
		Theme:           cfg.Theme,
		CompanyName:     cfg.CompanyName,
		WelcomeMessage:  cfg.WelcomeMessage,
		PlaceholderText: cfg.Placeholder,
		OfflineMessage:  cfg.OfflineMessage,
		APIBase:         cfg.APIBase,
		InternalStatus:  cfg.internalStatus,
	}}
	if err := l.endpoint.Post(ctx, msg); err != nil {
		slog.Debug("Config push failed", "error", err)
	}
}

// Run processes widget events from the embedded document until the
// context is cancelled or the channel closes.
func (l *Loader) Run(ctx context.Context) {
	if l.endpoint == nil {
		return
	}
	for {
		p, err := l.endpoint.Next(ctx)
		if err != nil {
			return
		}
		l.HandleMessage(p)
	}
}

// HandleMessage reacts to one widget event.
func (l *Loader) HandleMessage(p channel.Payload) {
	l.mu.Lock()
	embed := l.embed
	l.mu.Unlock()

	switch m := p.(type) {
	case channel.Toggle:
		if embed == nil {
			return
		}
		if m.IsOpen {
			embed.setChrome(ChromeFramed)
		} else {
			embed.setChrome(ChromeChromeless)
		}
	case channel.Resize:
		if embed != nil && m.Height > 0 {
			embed.setHeight(m.Height)
		}
	case channel.Ready:
		slog.Info("Widget ready", "widget_id", m.WidgetID, "verified", m.Verified, "status", m.Status)
	case channel.Error:
		slog.Warn("Widget reported error", "message", m.Message, "timestamp", m.Timestamp)
	}
}

// ShowOffline displays the static offline affordance. Idempotent; the
// message falls back to the configured offline text, then the default.
func (l *Loader) ShowOffline(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline != nil {
		return
	}

	if message == "" {
		message = l.cfg.OfflineMessage
	}
	if message == "" {
		message = domain.DefaultOfflineMessage
	}
	position := l.cfg.Position
	if position == "" {
		position = domain.DefaultPosition
	}
	l.offline = &Offline{Position: position, Message: message}
}

// Offline returns the offline affordance, or nil if none is shown.
func (l *Loader) Offline() *Offline {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offline
}

// Embed returns the mounted embed handle, or nil before Init.
func (l *Loader) Embed() *Embed {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.embed
}

// Destroy removes the widget container and any offline affordance.
func (l *Loader) Destroy() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.embed = nil
	l.offline = nil
}

// Open makes the widget container visible.
func (l *Loader) Open() {
	if e := l.Embed(); e != nil {
		e.setVisible(true)
	}
}

// Close hides the widget container.
func (l *Loader) Close() {
	if e := l.Embed(); e != nil {
		e.setVisible(false)
	}
}

// Toggle flips the container visibility.
func (l *Loader) Toggle() {
	if e := l.Embed(); e != nil {
		e.setVisible(!e.Visible())
	}
}
