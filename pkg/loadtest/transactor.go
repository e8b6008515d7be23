package loadtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/informalsystems/wsproxy-load-test/internal/logging"
	"github.com/informalsystems/wsproxy-load-test/pkg/transport"
)

// Grace period, on top of the transport's own close timeout, that a transactor
// waits for its connection to report that it has closed.
const transactorCloseGrace = time.Second

// Transactor drives a single connection to the proxy under test. Once the
// connection opens it sends the request payload, and sends it again every time
// a message comes back, until its measurement window elapses.
type Transactor struct {
	proxyURL       string
	payload        []byte // Shared by all transactors; never modified.
	window         time.Duration
	connectTimeout time.Duration
	closeTimeout   time.Duration
	factory        transport.Factory
	logger         logging.Logger
	metrics        *Metrics

	mtx      sync.Mutex
	conn     transport.Conn
	sent     int       // Requests handed to the transport during the window.
	received int       // Messages received during the window.
	openedAt time.Time // When the connection reached the open state.
	stopped  bool      // Set once the window is over; counters are frozen from then on.
	wasOpen  bool

	opened    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

var _ transport.Handler = (*Transactor)(nil)

// NewTransactor creates a transactor that will connect to the configured proxy
// using the given transport factory.
func NewTransactor(cfg Config, payload []byte, factory transport.Factory, logger logging.Logger, metrics *Metrics) *Transactor {
	return &Transactor{
		proxyURL:       cfg.ProxyURL,
		payload:        payload,
		window:         cfg.Window.Duration(),
		connectTimeout: cfg.ConnectTimeout.Duration(),
		closeTimeout:   cfg.CloseTimeout.Duration(),
		factory:        factory,
		logger:         logger,
		metrics:        metrics,
		opened:         make(chan struct{}),
		closed:         make(chan struct{}),
	}
}

// Run connects, sends for the duration of the measurement window and then
// closes the connection, returning how many requests were sent and how many
// messages were received. Connection failures are logged and result in
// whatever had been counted so far.
func (t *Transactor) Run(ctx context.Context) Result {
	conn, err := t.factory(t.proxyURL, t)
	if err != nil {
		t.logger.Error("Failed to create connection", "err", err)
		t.metrics.connectFailed()
		return Result{}
	}
	t.mtx.Lock()
	t.conn = conn
	t.mtx.Unlock()

	t.logger.SetField("state", "connecting")
	t.logger.Debug("Connecting")
	conn.Connect()

	connectTimer := time.NewTimer(t.connectTimeout)
	defer connectTimer.Stop()

	select {
	case <-t.opened:

	case <-t.closed:
		t.logger.Debug("Connection closed before it opened")
		t.metrics.connectFailed()
		return t.stop()

	case <-connectTimer.C:
		t.logger.Error("Timed out waiting for connection to open", "timeout", t.connectTimeout.String(), "connState", conn.ReadyState())
		t.metrics.connectFailed()
		return t.shutdown(conn)

	case <-ctx.Done():
		t.logger.Debug("Cancelled while connecting")
		return t.shutdown(conn)
	}

	t.mtx.Lock()
	deadline := t.openedAt.Add(t.window)
	t.mtx.Unlock()
	windowTimer := time.NewTimer(time.Until(deadline))
	defer windowTimer.Stop()

	select {
	case <-windowTimer.C:
		t.logger.Debug("Measurement window elapsed")
	case <-t.closed:
		t.logger.Warn("Connection closed during measurement window")
	case <-ctx.Done():
		t.logger.Debug("Cancelled during measurement window")
	}
	return t.shutdown(conn)
}

// shutdown freezes the counters, requests that the connection be closed and
// waits a bounded amount of time for it to close.
func (t *Transactor) shutdown(conn transport.Conn) Result {
	r := t.stop()
	conn.Close()
	select {
	case <-t.closed:
	case <-time.After(t.closeTimeout + transactorCloseGrace):
		t.logger.Warn("Timed out waiting for connection to close", "connState", conn.ReadyState())
	}
	t.logger.Debug("Finished", "sent", r.Sent, "received", r.Received)
	return r
}

func (t *Transactor) stop() Result {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if !t.stopped {
		t.stopped = true
		t.logger.SetField("state", "stopped")
	}
	return Result{Sent: t.sent, Received: t.received}
}

// OnOpen sends the first request. It always counts as sent, even if the
// transport rejects it.
func (t *Transactor) OnOpen() {
	t.mtx.Lock()
	t.wasOpen = true
	t.metrics.connectionOpened()
	if t.stopped {
		t.mtx.Unlock()
		return
	}
	t.openedAt = time.Now()
	t.sent++
	conn := t.conn
	t.logger.SetField("state", "open")
	t.mtx.Unlock()

	t.metrics.requestSent()
	close(t.opened)
	if err := conn.Send(t.payload); err != nil {
		t.logger.Debug("Failed to send initial request", "err", err)
	}
}

// OnMessage counts the reply and immediately sends another request. The lock
// is not held during the send, which only counts if the window is still open
// once it completes.
func (t *Transactor) OnMessage(_ transport.MessageType, _ []byte) {
	t.mtx.Lock()
	if t.stopped {
		t.mtx.Unlock()
		return
	}
	t.received++
	conn := t.conn
	t.mtx.Unlock()
	t.metrics.messageReceived()

	err := conn.Send(t.payload)
	switch {
	case err == nil:
		t.mtx.Lock()
		counted := !t.stopped
		if counted {
			t.sent++
		}
		t.mtx.Unlock()
		if counted {
			t.metrics.requestSent()
		}
	case errors.Is(err, transport.ErrNotConnected):
		// the connection is going away; nothing to count
	default:
		t.logger.Error("Failed to send request", "err", err, "connState", conn.ReadyState())
	}
}

func (t *Transactor) OnClose(code int, reason string, remote bool) {
	t.mtx.Lock()
	if t.wasOpen {
		t.metrics.connectionClosed()
	}
	t.mtx.Unlock()
	t.logger.SetField("state", "closed")
	t.logger.Debug("Connection closed", "code", code, "reason", reason, "remote", remote)
	t.closeOnce.Do(func() { close(t.closed) })
}

func (t *Transactor) OnError(err error) {
	t.mtx.Lock()
	sent, received := t.sent, t.received
	var state transport.ReadyState
	if t.conn != nil {
		state = t.conn.ReadyState()
	}
	t.mtx.Unlock()
	t.logger.Error("Transport error", "err", err, "connState", state, "sent", sent, "received", received)
}
