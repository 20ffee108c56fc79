package domain

import "time"

// Widget verification and activation states as stored by the backend.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"

	WidgetActive   = "active"
	WidgetInactive = "inactive"
)

// WidgetConfig is the backend-stored presentation configuration, returned
// by the config endpoint.
type WidgetConfig struct {
	WidgetPosition  string `json:"widget_position"`
	WidgetColor     string `json:"widget_color"`
	WelcomeMessage  string `json:"welcome_message"`
	PlaceholderText string `json:"placeholder_text"`
	CompanyName     string `json:"company_name"`
	OfflineMessage  string `json:"offline_message"`
	IsActive        bool   `json:"is_active"`
}

// Widget is a backend widget record.
type Widget struct {
	WidgetID           string       `json:"widget_id"`
	Domain             string       `json:"domain,omitempty"`
	VerificationStatus string       `json:"verification_status"`
	Status             string       `json:"status"`
	Config             WidgetConfig `json:"config"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// IsVerified reports whether the widget has completed domain verification.
func (w *Widget) IsVerified() bool {
	return w.VerificationStatus == VerificationVerified
}

// IsActive reports whether the widget is enabled for serving.
func (w *Widget) IsActive() bool {
	return w.Status == WidgetActive
}

// StoredSession is a backend chat session record.
type StoredSession struct {
	SessionID string    `json:"session_id"`
	WidgetID  string    `json:"widget_id"`
	VisitorID string    `json:"visitor_id"`
	PageURL   string    `json:"page_url,omitempty"`
	PageTitle string    `json:"page_title,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredMessage is a backend chat message record.
type StoredMessage struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
