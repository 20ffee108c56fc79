package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gamersumit/chatlite-widget/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS widgets (
		widget_id TEXT PRIMARY KEY,
		domain TEXT,
		verification_status TEXT NOT NULL,
		status TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id TEXT PRIMARY KEY,
		widget_id TEXT NOT NULL,
		visitor_id TEXT NOT NULL,
		page_url TEXT,
		page_title TEXT,
		user_agent TEXT,
		referrer TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_widget ON chat_sessions(widget_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_visitor ON chat_sessions(visitor_id);

	CREATE TABLE IF NOT EXISTS chat_messages (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetWidget retrieves a widget record, or nil if it does not exist.
func (s *SQLiteStore) GetWidget(ctx context.Context, widgetID string) (*domain.Widget, error) {
	query := `
		SELECT widget_id, domain, verification_status, status, config_json,
		       created_at, updated_at
		FROM widgets WHERE widget_id = ?`

	row := s.db.QueryRowContext(ctx, query, widgetID)

	var w domain.Widget
	var domainName sql.NullString
	var configJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&w.WidgetID, &domainName, &w.VerificationStatus, &w.Status,
		&configJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan widget row: %w", err)
	}

	if err := json.Unmarshal([]byte(configJSON), &w.Config); err != nil {
		return nil, fmt.Errorf("decode widget config: %w", err)
	}
	w.Domain = domainName.String
	w.CreatedAt = time.Unix(createdAt, 0)
	w.UpdatedAt = time.Unix(updatedAt, 0)

	return &w, nil
}

// UpsertWidget creates or updates a widget record.
func (s *SQLiteStore) UpsertWidget(ctx context.Context, w *domain.Widget) error {
	configJSON, err := json.Marshal(w.Config)
	if err != nil {
		return fmt.Errorf("encode widget config: %w", err)
	}

	query := `
		INSERT INTO widgets (widget_id, domain, verification_status, status,
		                     config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(widget_id) DO UPDATE SET
			domain = excluded.domain,
			verification_status = excluded.verification_status,
			status = excluded.status,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		w.WidgetID, w.Domain, w.VerificationStatus, w.Status,
		string(configJSON), w.CreatedAt.Unix(), w.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert widget: %w", err)
	}
	return nil
}

// MarkVerified records a successful domain verification and activates the
// widget.
func (s *SQLiteStore) MarkVerified(ctx context.Context, widgetID, domainName string) error {
	query := `
		UPDATE widgets
		SET domain = ?, verification_status = ?, status = ?, updated_at = ?
		WHERE widget_id = ?`

	res, err := s.db.ExecContext(ctx, query,
		domainName, domain.VerificationVerified, domain.WidgetActive,
		time.Now().Unix(), widgetID,
	)
	if err != nil {
		return fmt.Errorf("mark widget verified: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark widget verified: widget %s not found", widgetID)
	}
	return nil
}

// CreateSession persists a new chat session.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.StoredSession) error {
	query := `
		INSERT INTO chat_sessions (session_id, widget_id, visitor_id,
		                           page_url, page_title, user_agent, referrer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sess.SessionID, sess.WidgetID, sess.VisitorID,
		sess.PageURL, sess.PageTitle, sess.UserAgent, sess.Referrer,
		sess.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a chat session, or nil if it does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.StoredSession, error) {
	query := `
		SELECT session_id, widget_id, visitor_id, page_url, page_title,
		       user_agent, referrer, created_at
		FROM chat_sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var sess domain.StoredSession
	var pageURL, pageTitle, userAgent, referrer sql.NullString
	var createdAt int64

	err := row.Scan(
		&sess.SessionID, &sess.WidgetID, &sess.VisitorID,
		&pageURL, &pageTitle, &userAgent, &referrer, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.PageURL = pageURL.String
	sess.PageTitle = pageTitle.String
	sess.UserAgent = userAgent.String
	sess.Referrer = referrer.String
	sess.CreatedAt = time.Unix(createdAt, 0)

	return &sess, nil
}

// SaveMessage appends a chat message, retrying once on an SQLite
// concurrency conflict. Timestamps are stored at nanosecond precision so
// a user message and its same-second reply keep their insertion order.
func (s *SQLiteStore) SaveMessage(ctx context.Context, m *domain.StoredMessage) error {
	query := `
		INSERT INTO chat_messages (message_id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		m.MessageID, m.SessionID, string(m.Role), m.Content, m.CreatedAt.UnixNano(),
	)
	if isSQLiteConflictError(err) {
		_, err = s.db.ExecContext(ctx, query,
			m.MessageID, m.SessionID, string(m.Role), m.Content, m.CreatedAt.UnixNano(),
		)
	}
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// GetHistory returns the most recent messages of a session in
// chronological order.
func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*domain.StoredMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT message_id, session_id, role, content, created_at
		FROM (
			SELECT message_id, session_id, role, content, created_at
			FROM chat_messages
			WHERE session_id = ?
			ORDER BY created_at DESC, message_id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, message_id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*domain.StoredMessage
	for rows.Next() {
		var m domain.StoredMessage
		var role string
		var createdAt int64
		if err := rows.Scan(&m.MessageID, &m.SessionID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = domain.Role(role)
		m.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
