package event

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultForwardEvent is the socket.io event name used by Forwarder.
const DefaultForwardEvent = "pipeline_event"

// ForwarderConfig configures a socket.io event forwarder.
type ForwarderConfig struct {
	URL                string
	Namespace          string
	EventName          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// Forwarder publishes pipeline events to a socket.io server.
type Forwarder struct {
	client    *socket.Socket
	eventName string
}

// DialForwarder connects to the socket.io server and waits for the
// connection to be established.
func DialForwarder(ctx context.Context, cfg ForwarderConfig) (*Forwarder, error) {
	logger := ctxlog.FromContext(ctx).With("component", "event_forwarder", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse events URL: %w", err)
	}
	if cfg.EventName == "" {
		cfg.EventName = DefaultForwardEvent
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Event forwarder connected.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &Forwarder{client: io, eventName: cfg.EventName}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(cfg.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", cfg.ConnectTimeout)
	}
}

// Observe implements Observer by emitting the event as a JSON object.
func (f *Forwarder) Observe(_ context.Context, ev Event) error {
	if !f.client.Connected() {
		return fmt.Errorf("socket.io client is not connected")
	}
	payload, err := encodePayload(ev)
	if err != nil {
		return err
	}
	return f.client.Emit(f.eventName, payload)
}

// Close disconnects the client.
func (f *Forwarder) Close() {
	f.client.Disconnect()
}

// encodePayload turns ev into the generic map shape socket.io serializes.
func encodePayload(ev Event) (map[string]any, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", ev.Type, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
