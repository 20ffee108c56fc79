// Package channel implements the typed cross-document message protocol
// shared by the host-side loader and the embedded widget runtime.
//
// The protocol is fire-and-forget: at-most-once delivery per dispatch, no
// retry, and no ordering guarantee across independent dispatches. The wire
// format is a JSON envelope {"type": ..., ...payload} and is the bit-exact
// compatibility surface between the two independently-deployable halves.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gamersumit/chatlite-widget/internal/domain"
)

// Type discriminates envelope payloads. The set is closed: anything not
// matching a known variant is rejected on receipt.
type Type string

const (
	TypeConfig       Type = "widget-config"
	TypeConfigUpdate Type = "widget-config-update"
	TypeReady        Type = "widget-ready"
	TypeToggle       Type = "widget-toggle"
	TypeResize       Type = "widget-resize"
	TypeError        Type = "widget-error"
)

// ErrUnknownType is returned by Decode for envelopes whose type is not part
// of the closed message catalogue.
var ErrUnknownType = errors.New("channel: unknown message type")

// Payload is one variant of the closed message union.
type Payload interface {
	channelType() Type
}

// EmbedConfig is the full settings bag pushed host -> embedded. The loader
// stamps InternalStatus with its verification outcome before the embedded
// document can observe any config push, so the very first push already
// carries correct status.
type EmbedConfig struct {
	WidgetID        string                     `json:"widgetId"`
	Position        string                     `json:"position,omitempty"`
	PrimaryColor    string                     `json:"primaryColor,omitempty"`
	Size            string                     `json:"size,omitempty"`
	BorderRadius    string                     `json:"borderRadius,omitempty"`
	FontFamily      string                     `json:"fontFamily,omitempty"`
	Theme           string                     `json:"theme,omitempty"`
	CompanyName     string                     `json:"companyName,omitempty"`
	WelcomeMessage  string                     `json:"welcomeMessage,omitempty"`
	PlaceholderText string                     `json:"placeholderText,omitempty"`
	OfflineMessage  string                     `json:"offlineMessage,omitempty"`
	APIBase         string                     `json:"apiBase,omitempty"`
	InternalStatus  *domain.VerificationStatus `json:"_internalStatus,omitempty"`
}

// Config delivers a full settings object. The embedded side replaces its
// settings wholesale iff Config.WidgetID matches its own widget id.
type Config struct {
	Config EmbedConfig `json:"config"`
}

func (Config) channelType() Type { return TypeConfig }

// ConfigUpdate shallow-merges a partial settings patch into the current
// settings. Empty fields are left untouched. Identity-bearing fields
// (widget id, API base) are not part of the patch.
type ConfigUpdate struct {
	Position        string `json:"position,omitempty"`
	PrimaryColor    string `json:"primaryColor,omitempty"`
	BorderRadius    string `json:"borderRadius,omitempty"`
	FontFamily      string `json:"fontFamily,omitempty"`
	Theme           string `json:"theme,omitempty"`
	CompanyName     string `json:"companyName,omitempty"`
	WelcomeMessage  string `json:"welcomeMessage,omitempty"`
	PlaceholderText string `json:"placeholderText,omitempty"`
	OfflineMessage  string `json:"offlineMessage,omitempty"`
}

func (ConfigUpdate) channelType() Type { return TypeConfigUpdate }

// Ready announces that the embedded runtime has mounted. Informational
// only; the host may log it.
type Ready struct {
	WidgetID string `json:"widgetId"`
	Verified bool   `json:"verified"`
	Status   string `json:"status"`
}

func (Ready) channelType() Type { return TypeReady }

// Toggle reports the open/closed state of the chat surface. The host
// switches the container chrome skin in response.
type Toggle struct {
	IsOpen bool `json:"isOpen"`
}

func (Toggle) channelType() Type { return TypeToggle }

// Resize asks the host to apply a new pixel height to the embedded element.
type Resize struct {
	Height int `json:"height"`
}

func (Resize) channelType() Type { return TypeResize }

// Error is a best-effort fault notification from the embedded document.
type Error struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (Error) channelType() Type { return TypeError }

// envelope shapes used for encoding; each flattens the payload next to the
// type tag.
type envelope struct {
	Type Type `json:"type"`
}

// Encode wraps a payload into its wire envelope.
func Encode(p Payload) ([]byte, error) {
	var v any
	switch m := p.(type) {
	case Config:
		v = struct {
			Type Type `json:"type"`
			Config
		}{TypeConfig, m}
	case ConfigUpdate:
		v = struct {
			Type Type `json:"type"`
			ConfigUpdate
		}{TypeConfigUpdate, m}
	case Ready:
		v = struct {
			Type Type `json:"type"`
			Ready
		}{TypeReady, m}
	case Toggle:
		v = struct {
			Type Type `json:"type"`
			Toggle
		}{TypeToggle, m}
	case Resize:
		v = struct {
			Type Type `json:"type"`
			Resize
		}{TypeResize, m}
	case Error:
		v = struct {
			Type Type `json:"type"`
			Error
		}{TypeError, m}
	default:
		return nil, fmt.Errorf("channel: cannot encode %T", p)
	}
	return json.Marshal(v)
}

// Decode parses a wire envelope into its concrete payload. Envelopes with
// an unrecognized type return ErrUnknownType; malformed JSON returns the
// unmarshal error. Callers drop both silently.
func Decode(raw []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("channel: decode envelope: %w", err)
	}

	switch env.Type {
	case TypeConfig:
		var m Config
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("channel: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeConfigUpdate:
		var m ConfigUpdate
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("channel: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeReady:
		var m Ready
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("channel: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeToggle:
		var m Toggle
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("channel: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeResize:
		var m Resize
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("channel: decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeError:
		var m Error
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("channel: decode %s: %w", env.Type, err)
		}
		return m, nil
	default:
		return nil, ErrUnknownType
	}
}
