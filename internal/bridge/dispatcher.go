package bridge

import (
	"fmt"
	"log/slog"

	"github.com/texelworks/painterlink/internal/protocol"
)

// Sender is the outbound half of the transport the dispatcher answers on.
type Sender interface {
	Send(data []byte) error
}

// Dispatcher routes decoded inbound requests to registered handlers and sends
// back correlated responses. Handlers run synchronously and are expected to
// be fast; long operations must report progress through the Notifier instead
// of blocking a round-trip.
type Dispatcher struct {
	registry *Registry
	sender   Sender
	traffic  *TrafficBroadcaster
}

func NewDispatcher(registry *Registry, sender Sender, traffic *TrafficBroadcaster) *Dispatcher {
	return &Dispatcher{registry: registry, sender: sender, traffic: traffic}
}

// HandleMessage processes one raw inbound frame. Every failure path degrades
// to "log and continue"; nothing propagates back into the transport's read
// loop.
func (d *Dispatcher) HandleMessage(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		// Malformed frame: drop it, the connection stays usable
		slog.Warn("Dropping undecodable message", "error", err)
		return
	}

	if env.Kind == protocol.KindResponse {
		// The bridge never awaits replies to its notifications
		slog.Debug("Ignoring inbound response envelope", "id", env.ID)
		return
	}

	slog.Debug("Request received", "method", env.Method, "id", env.ID, "params", env.Params)

	if d.traffic != nil {
		d.traffic.Publish(TrafficEvent{Method: env.Method, Params: env.Params})
	}

	handler, ok := d.registry.Resolve(env.Method)
	if !ok {
		// Deliberate compatibility policy: unknown commands from a newer peer
		// are dropped without an error response
		slog.Debug("No handler registered, dropping request", "method", env.Method, "id", env.ID)
		return
	}

	result, err := handler(env.Params)
	if err != nil {
		slog.Error("Handler failed", "method", env.Method, "id", env.ID, "error", err)
		d.sendError(env, err)
		return
	}

	d.send(protocol.NewResponse(env.ID, result), env.Method)
}

func (d *Dispatcher) send(resp *protocol.Response, method string) {
	data, err := protocol.Encode(resp)
	if err != nil {
		slog.Error("Failed to encode response", "method", method, "id", resp.ID, "error", err)
		return
	}
	if err := d.sender.Send(data); err != nil {
		// Best effort: the connection manager handles transport state
		slog.Warn("Failed to send response", "method", method, "id", resp.ID, "error", err)
	}
}

// sendError answers a failed handler. If sending the error response itself
// fails, one simplified fallback envelope is attempted; a second failure is
// dropped.
func (d *Dispatcher) sendError(env *protocol.Envelope, herr error) {
	resp := protocol.NewErrorResponse(env.ID, fmt.Sprintf("%s failed: %v", env.Method, herr))
	data, err := protocol.Encode(resp)
	if err == nil {
		err = d.sender.Send(data)
		if err == nil {
			return
		}
	}
	slog.Warn("Failed to send error response, retrying with simplified envelope",
		"method", env.Method, "id", env.ID, "error", err)

	fallback, err := protocol.Encode(protocol.NewErrorResponse(env.ID, "command failed"))
	if err != nil {
		return
	}
	if err := d.sender.Send(fallback); err != nil {
		slog.Warn("Failed to send fallback error response, dropping",
			"method", env.Method, "id", env.ID, "error", err)
	}
}
