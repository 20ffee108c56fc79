// Package store provides data persistence interfaces and implementations
// for the widget backend service.
package store

import (
	"context"

	"github.com/gamersumit/chatlite-widget/internal/domain"
)

// Repository defines the interface for persisting widgets, chat sessions
// and chat messages.
type Repository interface {
	// GetWidget retrieves a widget record, or nil if it does not exist.
	GetWidget(ctx context.Context, widgetID string) (*domain.Widget, error)

	// UpsertWidget creates or updates a widget record.
	UpsertWidget(ctx context.Context, w *domain.Widget) error

	// MarkVerified records a successful domain verification, activating
	// the widget.
	MarkVerified(ctx context.Context, widgetID, domainName string) error

	// CreateSession persists a new chat session.
	CreateSession(ctx context.Context, s *domain.StoredSession) error

	// GetSession retrieves a chat session, or nil if it does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.StoredSession, error)

	// SaveMessage appends a chat message to a session.
	SaveMessage(ctx context.Context, m *domain.StoredMessage) error

	// GetHistory returns the most recent messages of a session in
	// chronological order, at most limit entries.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*domain.StoredMessage, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
