package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gamersumit/chatlite-widget/internal/domain"
)

func TestDecode_UnknownTypeRejected(t *testing.T) {
	_, err := Decode([]byte(`{"type":"widget-selfdestruct","armed":true}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Expected ErrUnknownType, got %v", err)
	}
}

func TestDecode_MalformedJSONRejected(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	if err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestEncodeDecode_ConfigCarriesInternalStatus(t *testing.T) {
	in := Config{Config: EmbedConfig{
		WidgetID:       "wgt_1",
		PrimaryColor:   "#ff0000",
		WelcomeMessage: "Hi!",
		InternalStatus: &domain.VerificationStatus{Verified: true, Active: true},
	}}

	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	out, ok := p.(Config)
	if !ok {
		t.Fatalf("Expected Config, got %T", p)
	}
	if out.Config.WidgetID != "wgt_1" || out.Config.WelcomeMessage != "Hi!" {
		t.Errorf("Config fields lost: %+v", out.Config)
	}
	if out.Config.InternalStatus == nil || !out.Config.InternalStatus.Verified || !out.Config.InternalStatus.Active {
		t.Errorf("Internal status lost: %+v", out.Config.InternalStatus)
	}
}

func TestEndpoint_DropsForeignOrigin(t *testing.T) {
	host, embed := Pipe("https://host.example", "https://widget.example")
	defer host.Close()
	defer embed.Close()

	// The embed endpoint only trusts the host origin.
	endpoint := NewEndpoint(embed, "https://host.example")

	// A frame attributed to the wrong origin must be dropped silently.
	evil := &PipeConn{origin: "https://evil.example", in: make(chan Frame, 1)}
	evil.peer = embed
	data, err := Encode(Toggle{IsOpen: true})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := evil.Post(context.Background(), data); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	// A legitimate frame posted afterwards is the one that surfaces.
	if err := host.Post(context.Background(), data); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := endpoint.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if _, ok := p.(Toggle); !ok {
		t.Errorf("Expected Toggle, got %T", p)
	}

	// Nothing else should be pending: the foreign frame was consumed and
	// discarded, not queued behind the valid one.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	if _, err := endpoint.Next(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestPipe_FullBufferDropsFrame(t *testing.T) {
	host, embed := Pipe("h", "e")
	defer host.Close()
	defer embed.Close()

	data, err := Encode(Resize{Height: 480})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Overfill the peer buffer; Post must never block or fail.
	for i := 0; i < defaultPipeBuffer+10; i++ {
		if err := host.Post(context.Background(), data); err != nil {
			t.Fatalf("Post %d failed: %v", i, err)
		}
	}

	drained := 0
	for {
		select {
		case <-embed.Frames():
			drained++
			continue
		default:
		}
		break
	}
	if drained != defaultPipeBuffer {
		t.Errorf("Expected %d buffered frames, got %d", defaultPipeBuffer, drained)
	}
}

func TestPipe_PostAfterPeerCloseIsNoop(t *testing.T) {
	host, embed := Pipe("h", "e")
	if err := embed.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := Encode(Toggle{IsOpen: false})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := host.Post(context.Background(), data); err != nil {
		t.Errorf("Post after peer close should be silent, got %v", err)
	}
}

func TestEndpoint_NextAfterCloseReturnsErrClosed(t *testing.T) {
	host, embed := Pipe("h", "e")
	defer host.Close()

	endpoint := NewEndpoint(embed, "h")
	if err := embed.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := endpoint.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
