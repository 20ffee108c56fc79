// Package domain contains core domain types for the ChatLite widget.
package domain

// Widget size presets. Each maps to a fixed container dimension.
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
)

// WidgetSettings is the full configuration bag driving the embedded widget.
// It is replaced wholesale whenever an authoritative source delivers a new
// settings object; sources of different authority are never merged.
type WidgetSettings struct {
	WidgetID       string `json:"widgetId"`
	Position       string `json:"position"`
	PrimaryColor   string `json:"primaryColor"`
	Size           string `json:"size"`
	BorderRadius   string `json:"borderRadius"`
	FontFamily     string `json:"fontFamily"`
	Theme          string `json:"theme"`
	Title          string `json:"title"`
	WelcomeMessage string `json:"welcomeMessage"`
	Placeholder    string `json:"placeholder"`
	OfflineMessage string `json:"offlineMessage"`
	APIBase        string `json:"apiBase"`
}

// Built-in defaults, used until an authoritative config source delivers a
// full settings object.
const (
	DefaultPosition       = "bottom-right"
	DefaultPrimaryColor   = "#0066CC"
	DefaultBorderRadius   = "12px"
	DefaultFontFamily     = "-apple-system,BlinkMacSystemFont,Segoe UI,sans-serif"
	DefaultTheme          = "auto"
	DefaultTitle          = "Support"
	DefaultWelcomeMessage = "Hello! How can I help you today?"
	DefaultPlaceholder    = "Type your message..."
	DefaultOfflineMessage = "We're currently offline. Please try again later."
)

// DefaultSettings returns the settings a widget mounts with before any
// authoritative source has delivered configuration.
func DefaultSettings(widgetID string) WidgetSettings {
	return WidgetSettings{
		WidgetID:       widgetID,
		Position:       DefaultPosition,
		PrimaryColor:   DefaultPrimaryColor,
		Size:           SizeMedium,
		BorderRadius:   DefaultBorderRadius,
		FontFamily:     DefaultFontFamily,
		Theme:          DefaultTheme,
		Title:          DefaultTitle,
		WelcomeMessage: DefaultWelcomeMessage,
		Placeholder:    DefaultPlaceholder,
		OfflineMessage: DefaultOfflineMessage,
	}
}

// VerificationStatus is the joint verification/activation outcome for a
// widget. Active is only meaningful when Verified is true.
type VerificationStatus struct {
	Verified bool `json:"verified"`
	Active   bool `json:"active"`
}

// Online reports whether the widget should behave as connected.
func (v VerificationStatus) Online() bool {
	return v.Verified && v.Active
}

// RuntimeState holds the widget-visible lifecycle flags. It is the single
// source driving what the rendering layer shows.
type RuntimeState struct {
	IsOpen       bool   `json:"isOpen"`
	IsMinimized  bool   `json:"isMinimized"`
	IsLoading    bool   `json:"isLoading"`
	IsConnected  bool   `json:"isConnected"`
	HasError     bool   `json:"hasError"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}
