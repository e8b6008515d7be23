package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultCloseTimeout     = 5 * time.Second
	defaultReadLimit        = 64 * 1024
)

// WebSocket is a Conn backed by a gorilla/websocket client connection. All of
// its events are delivered from a single goroutine that first dials and then
// reads from the socket.
type WebSocket struct {
	uri     string
	handler Handler
	cfg     *webSocketConfig

	state int32 // A ReadyState, accessed atomically.

	mtx        sync.Mutex
	started    bool
	conn       *websocket.Conn
	cancelDial context.CancelFunc

	writeMtx sync.Mutex // gorilla permits only one concurrent writer.

	closeOnce sync.Once
	done      chan struct{} // Closed once the connection reaches Closed.
}

var _ Conn = (*WebSocket)(nil)

type webSocketConfig struct {
	dialer           *websocket.Dialer
	header           http.Header
	handshakeTimeout time.Duration // Maximum time for TCP connect plus the opening handshake.
	writeTimeout     time.Duration // Deadline for each outbound message.
	closeTimeout     time.Duration // How long to wait for the peer to acknowledge our close frame.
	readLimit        int64         // Maximum inbound message size.
}

func defaultWebSocketConfig() *webSocketConfig {
	return &webSocketConfig{
		dialer:           websocket.DefaultDialer,
		handshakeTimeout: defaultHandshakeTimeout,
		writeTimeout:     defaultWriteTimeout,
		closeTimeout:     defaultCloseTimeout,
		readLimit:        defaultReadLimit,
	}
}

// Option overrides part of a WebSocket's default configuration.
type Option func(cfg *webSocketConfig)

// WithDialer replaces gorilla's default dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(cfg *webSocketConfig) {
		cfg.dialer = d
	}
}

// WithHeader supplies additional HTTP headers for the opening handshake.
func WithHeader(h http.Header) Option {
	return func(cfg *webSocketConfig) {
		cfg.header = h
	}
}

func HandshakeTimeout(d time.Duration) Option {
	return func(cfg *webSocketConfig) {
		cfg.handshakeTimeout = d
	}
}

func WriteTimeout(d time.Duration) Option {
	return func(cfg *webSocketConfig) {
		cfg.writeTimeout = d
	}
}

func CloseTimeout(d time.Duration) Option {
	return func(cfg *webSocketConfig) {
		cfg.closeTimeout = d
	}
}

func ReadLimit(n int64) Option {
	return func(cfg *webSocketConfig) {
		cfg.readLimit = n
	}
}

// NewWebSocket creates an unconnected WebSocket to the given ws:// or wss://
// URL.
func NewWebSocket(uri string, h Handler, opts ...Option) (*WebSocket, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported protocol: %s (only ws:// and wss:// are supported)", u.Scheme)
	}
	if h == nil {
		return nil, fmt.Errorf("a handler is required")
	}
	cfg := defaultWebSocketConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	// gorilla refuses URLs with credentials in them, so send them as basic
	// auth instead
	if u.User != nil {
		header := cfg.header.Clone()
		if header == nil {
			header = http.Header{}
		}
		password, _ := u.User.Password()
		creds := base64.StdEncoding.EncodeToString([]byte(u.User.Username() + ":" + password))
		header.Set("Authorization", "Basic "+creds)
		cfg.header = header
		u.User = nil
	}
	return &WebSocket{
		uri:     u.String(),
		handler: h,
		cfg:     cfg,
		state:   int32(Connecting),
		done:    make(chan struct{}),
	}, nil
}

// WebSocketFactory returns a Factory producing WebSockets with the given
// options.
func WebSocketFactory(opts ...Option) Factory {
	return func(uri string, h Handler) (Conn, error) {
		return NewWebSocket(uri, h, opts...)
	}
}

func (s *WebSocket) ReadyState() ReadyState {
	return ReadyState(atomic.LoadInt32(&s.state))
}

// Done is closed once the connection has reached the Closed state.
func (s *WebSocket) Done() <-chan struct{} {
	return s.done
}

func (s *WebSocket) setState(state ReadyState) {
	atomic.StoreInt32(&s.state, int32(state))
}

// Connect dials in a separate goroutine. Calling it more than once, or after
// Close, has no effect.
func (s *WebSocket) Connect() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.started || s.ReadyState() != Connecting {
		return
	}
	s.started = true
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.handshakeTimeout)
	s.cancelDial = cancel
	go s.run(ctx, cancel)
}

func (s *WebSocket) run(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	conn, resp, err := s.cfg.dialer.DialContext(ctx, s.uri, s.cfg.header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("failed to connect to %s: %w (status code %d)", s.uri, err, resp.StatusCode)
		} else {
			err = fmt.Errorf("failed to connect to %s: %w", s.uri, err)
		}
		if s.ReadyState() == Connecting {
			s.handler.OnError(err)
		}
		s.finish(websocket.CloseAbnormalClosure, err.Error(), false)
		return
	}

	s.mtx.Lock()
	if s.ReadyState() != Connecting {
		// Close was called while we were still dialing.
		s.mtx.Unlock()
		_ = conn.Close()
		s.finish(websocket.CloseNormalClosure, "closed before open", false)
		return
	}
	s.conn = conn
	s.setState(Open)
	s.mtx.Unlock()

	conn.SetReadLimit(s.cfg.readLimit)
	s.handler.OnOpen()
	s.readLoop(conn)
}

func (s *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			s.handleReadError(conn, err)
			return
		}
		switch mt {
		case websocket.TextMessage:
			s.handler.OnMessage(TextMessage, data)
		case websocket.BinaryMessage:
			s.handler.OnMessage(BinaryMessage, data)
		}
	}
}

func (s *WebSocket) handleReadError(conn *websocket.Conn, err error) {
	localClose := s.ReadyState() == Closing
	code, reason := websocket.CloseAbnormalClosure, err.Error()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	} else if !localClose {
		s.handler.OnError(fmt.Errorf("failed to read from %s: %w", s.uri, err))
	}
	_ = conn.Close()
	s.finish(code, reason, !localClose)
}

// Send writes a single binary message, blocking for at most the configured
// write timeout.
func (s *WebSocket) Send(data []byte) error {
	if s.ReadyState() != Open {
		return ErrNotConnected
	}
	s.writeMtx.Lock()
	defer s.writeMtx.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.writeTimeout))
	err := s.conn.WriteMessage(websocket.BinaryMessage, data)
	if err != nil && (errors.Is(err, websocket.ErrCloseSent) || s.ReadyState() != Open) {
		return ErrNotConnected
	}
	return err
}

// Close sends a close frame and lets the read loop finish the close handshake.
// If the peer does not acknowledge within the close timeout, the underlying
// socket is torn down anyway.
func (s *WebSocket) Close() {
	s.mtx.Lock()
	switch s.ReadyState() {
	case Connecting:
		s.setState(Closing)
		started, cancel := s.started, s.cancelDial
		s.mtx.Unlock()
		if started {
			cancel()
		} else {
			s.finish(websocket.CloseNormalClosure, "closed before connect", false)
		}
		return

	case Open:
		s.setState(Closing)
		conn := s.conn
		s.mtx.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.writeTimeout)); err != nil {
			_ = conn.Close()
			return
		}
		go func() {
			select {
			case <-s.done:
			case <-time.After(s.cfg.closeTimeout):
				_ = conn.Close()
			}
		}()
		return
	}
	s.mtx.Unlock()
}

func (s *WebSocket) finish(code int, reason string, remote bool) {
	s.closeOnce.Do(func() {
		s.setState(Closed)
		close(s.done)
		s.handler.OnClose(code, reason, remote)
	})
}
