package loadtest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/informalsystems/wsproxy-load-test/pkg/transport"
)

type mockMode int

const (
	mockEcho        mockMode = iota // Every successful send is answered with one message.
	mockReject                      // Opens, but every send fails with ErrNotConnected.
	mockRemoteClose                 // Opens, then is immediately closed by the remote end.
	mockRefuse                      // Fails to connect straight away.
	mockHang                        // Never opens, and never reports having closed.
	mockSlowSend                    // Like mockEcho, but every send after the first blocks for slowSendDelay.
)

const slowSendDelay = time.Second

var (
	errMockQueueFull = errors.New("mock: event queue full")
	errMockRefused   = errors.New("mock: connection refused")
)

// mockConn delivers all of its events from a single goroutine, and never from
// within Send, just like the real transports.
type mockConn struct {
	mode    mockMode
	handler transport.Handler

	state     int32
	events    chan func()
	done      chan struct{}
	closeOnce sync.Once

	mtx      sync.Mutex
	payloads [][]byte
	sends    int
}

var _ transport.Conn = (*mockConn)(nil)

func newMockConn(mode mockMode, h transport.Handler) *mockConn {
	return &mockConn{
		mode:    mode,
		handler: h,
		state:   int32(transport.Connecting),
		events:  make(chan func(), 16),
		done:    make(chan struct{}),
	}
}

// mockFactory builds connections of the given mode, recording each one so
// that tests can inspect them afterwards.
type mockFactory struct {
	mode mockMode

	mtx   sync.Mutex
	conns []*mockConn
}

func (f *mockFactory) build(_ string, h transport.Handler) (transport.Conn, error) {
	c := newMockConn(f.mode, h)
	f.mtx.Lock()
	f.conns = append(f.conns, c)
	f.mtx.Unlock()
	return c, nil
}

func (f *mockFactory) connections() []*mockConn {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]*mockConn(nil), f.conns...)
}

func (c *mockConn) setState(s transport.ReadyState) {
	atomic.StoreInt32(&c.state, int32(s))
}

func (c *mockConn) ReadyState() transport.ReadyState {
	return transport.ReadyState(atomic.LoadInt32(&c.state))
}

func (c *mockConn) Connect() {
	switch c.mode {
	case mockRefuse:
		c.events <- func() {
			c.handler.OnError(errMockRefused)
			c.closeOnce.Do(func() { close(c.done) })
		}
		go c.loop()
	case mockHang:
		return
	default:
		c.events <- func() {
			c.setState(transport.Open)
			c.handler.OnOpen()
			if c.mode == mockRemoteClose {
				c.closeOnce.Do(func() { close(c.done) })
			}
		}
		go c.loop()
	}
}

func (c *mockConn) loop() {
	for {
		select {
		case ev := <-c.events:
			ev()
		case <-c.done:
			remote := c.mode == mockRemoteClose
			c.setState(transport.Closed)
			c.handler.OnClose(1000, "", remote)
			return
		}
	}
}

func (c *mockConn) Send(data []byte) error {
	if c.ReadyState() != transport.Open || c.mode == mockReject {
		return transport.ErrNotConnected
	}
	c.mtx.Lock()
	if len(c.payloads) == 0 {
		c.payloads = append(c.payloads, data)
	}
	c.sends++
	slow := c.mode == mockSlowSend && c.sends > 1
	c.mtx.Unlock()
	if slow {
		time.Sleep(slowSendDelay)
	}
	select {
	case c.events <- func() { c.handler.OnMessage(transport.BinaryMessage, data) }:
		return nil
	default:
		return errMockQueueFull
	}
}

func (c *mockConn) Close() {
	if c.mode == mockHang {
		return
	}
	if c.ReadyState() == transport.Open {
		c.setState(transport.Closing)
	}
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *mockConn) firstPayload() []byte {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.payloads) == 0 {
		return nil
	}
	return c.payloads[0]
}
