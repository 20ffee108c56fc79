// Package relay pairs the host-side loader and the embedded widget runtime
// over WebSockets when the two halves run in separate processes. Frames
// are forwarded verbatim; a missing counterpart drops the frame, matching
// the channel's at-most-once contract.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Role identifies which half of the channel a connection serves.
const (
	RoleHost  = "host"
	RoleEmbed = "embed"
)

// Handler relays channel frames between paired connections.
type Handler struct {
	allowedOrigin string
	isDev         bool

	mu    sync.Mutex
	pairs map[string]*pair
}

type pair struct {
	host  *websocket.Conn
	embed *websocket.Conn
}

// NewHandler creates a relay. allowedOrigin "*" or "" accepts any origin.
func NewHandler(allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		pairs:         make(map[string]*pair),
	}
}

// ServeHTTP upgrades a channel connection. Query parameters: widget (the
// widget id pairing the two halves) and role (host or embed).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	widgetID := r.URL.Query().Get("widget")
	role := r.URL.Query().Get("role")
	if widgetID == "" || (role != RoleHost && role != RoleEmbed) {
		http.Error(w, "missing widget or role", http.StatusBadRequest)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept channel connection", "error", err, "widget_id", widgetID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "channel closed"); closeErr != nil {
			slog.Debug("Failed to close channel connection", "error", closeErr, "widget_id", widgetID)
		}
	}()

	h.register(widgetID, role, ws)
	defer h.unregister(widgetID, role, ws)
	slog.Info("Channel connection established", "widget_id", widgetID, "role", role)

	h.forwardLoop(r.Context(), widgetID, role, ws)
	slog.Info("Channel connection ended", "widget_id", widgetID, "role", role)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || h.allowedOrigin == "" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Channel origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) register(widgetID, role string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pairs[widgetID]
	if p == nil {
		p = &pair{}
		h.pairs[widgetID] = p
	}
	if role == RoleHost {
		p.host = ws
	} else {
		p.embed = ws
	}
}

// unregister drops the slot only if it still holds this connection, so a
// reconnect that replaced it is not torn down.
func (h *Handler) unregister(widgetID, role string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pairs[widgetID]
	if p == nil {
		return
	}
	if role == RoleHost && p.host == ws {
		p.host = nil
	}
	if role == RoleEmbed && p.embed == ws {
		p.embed = nil
	}
	if p.host == nil && p.embed == nil {
		delete(h.pairs, widgetID)
	}
}

func (h *Handler) counterpart(widgetID, role string) *websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pairs[widgetID]
	if p == nil {
		return nil
	}
	if role == RoleHost {
		return p.embed
	}
	return p.host
}

func (h *Handler) forwardLoop(ctx context.Context, widgetID, role string, ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Channel closed by client", "widget_id", widgetID, "role", role)
			} else {
				slog.Debug("Channel read error", "error", err, "widget_id", widgetID, "role", role)
			}
			return
		}

		peer := h.counterpart(widgetID, role)
		if peer == nil {
			// No counterpart yet; fire-and-forget permits the drop.
			continue
		}
		if err := peer.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("Channel forward error", "error", err, "widget_id", widgetID)
		}
	}
}
