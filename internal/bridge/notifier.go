package bridge

import (
	"log/slog"
	"sync/atomic"

	"github.com/texelworks/painterlink/internal/protocol"
)

// Notifier pushes fire-and-forget commands from the host application to the
// connected peer. Notifications are best-effort and lossy: with no peer
// attached they are dropped, never queued, and no reply is ever awaited.
type Notifier struct {
	server *Server
	seq    atomic.Int64 // pre-incremented, so the first sent id is seed+1
}

// notifierSeed is the initial counter value; ids exist purely for log
// correlation across host and peer.
const notifierSeed = 1

func NewNotifier(server *Server) *Notifier {
	n := &Notifier{server: server}
	n.seq.Store(notifierSeed)
	return n
}

// Notify sends one outbound command envelope. It never blocks waiting for a
// peer and swallows transport errors; clearing connection state is the
// connection manager's job.
func (n *Notifier) Notify(method string, params protocol.Params) {
	if !n.server.Connected() {
		slog.Warn("No peer connected, dropping notification", "method", method)
		return
	}

	id := n.seq.Add(1)
	env := protocol.NewNotification(id, method, params)

	data, err := protocol.Encode(env)
	if err != nil {
		slog.Error("Failed to encode notification", "method", method, "id", id, "error", err)
		return
	}

	slog.Debug("Notification sent", "method", method, "id", id)
	if err := n.server.Send(data); err != nil {
		slog.Warn("Failed to send notification", "method", method, "id", id, "error", err)
	}
}

// LastID returns the most recently assigned notification id.
func (n *Notifier) LastID() int64 {
	return n.seq.Load()
}
