// Package echoproxy provides a stand-in for a WebSockets-to-CoAP proxy. It
// answers every CoAP request it receives over a WebSockets connection
// immediately, which makes it useful for dry runs of the load tester and for
// testing the load tester itself.
package echoproxy

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/informalsystems/wsproxy-load-test/internal/logging"
	"github.com/informalsystems/wsproxy-load-test/pkg/coap"
	"golang.org/x/crypto/bcrypt"
)

// Server upgrades incoming HTTP requests to WebSockets connections and
// answers the CoAP requests sent over them.
type Server struct {
	username     string
	passwordHash string
	delay        time.Duration
	upgrader     websocket.Upgrader
	logger       logging.Logger

	connections int64 // Total connections accepted, accessed atomically.
	requests    int64 // Total CoAP requests answered, accessed atomically.
}

var _ http.Handler = (*Server)(nil)

// Option configures a Server.
type Option func(s *Server)

// WithDelay makes the server wait for the given duration before replying to
// each message.
func WithDelay(d time.Duration) Option {
	return func(s *Server) {
		s.delay = d
	}
}

// WithBasicAuth requires clients to authenticate with HTTP basic auth before
// upgrading. The password is checked against the given bcrypt hash.
func WithBasicAuth(username, passwordHash string) Option {
	return func(s *Server) {
		s.username = username
		s.passwordHash = passwordHash
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an echo proxy with the given options.
func NewServer(opts ...Option) *Server {
	s := &Server{
		logger: logging.NewNoopLogger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connections returns the total number of connections accepted so far.
func (s *Server) Connections() int64 {
	return atomic.LoadInt64(&s.connections)
}

// Requests returns the total number of CoAP requests answered so far.
func (s *Server) Requests() int64 {
	return atomic.LoadInt64(&s.requests)
}

func respond(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	fmt.Fprint(w, msg+"\n")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(s.passwordHash) > 0 {
		if err := s.authenticate(r); err != nil {
			s.logger.Info("Failed authentication attempt", "remote", r.RemoteAddr)
			respond(w, http.StatusUnauthorized, fmt.Sprintf("Error: %v", err))
			return
		}
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already responded
		s.logger.Error("Failed to upgrade connection", "remote", r.RemoteAddr, "err", err)
		return
	}
	atomic.AddInt64(&s.connections, 1)
	s.logger.Debug("Accepted connection", "remote", r.RemoteAddr)
	s.serveConn(conn)
}

func (s *Server) authenticate(req *http.Request) error {
	u, p, ok := req.BasicAuth()
	if !ok {
		return fmt.Errorf("missing username and/or password in request")
	}
	if u != s.username {
		return fmt.Errorf("invalid username and/or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(p)); err != nil {
		return fmt.Errorf("invalid username and/or password")
	}
	return nil
}

func (s *Server) serveConn(conn *websocket.Conn) {
	defer conn.Close()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Connection terminated", "remote", conn.RemoteAddr().String(), "err", err)
			}
			return
		}
		replyType, reply := s.reply(mt, data)
		if reply == nil {
			continue
		}
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		if err := conn.WriteMessage(replyType, reply); err != nil {
			s.logger.Debug("Failed to write reply", "remote", conn.RemoteAddr().String(), "err", err)
			return
		}
	}
}

// reply works out how to answer a single inbound message. A nil reply means
// the message is dropped.
func (s *Server) reply(mt int, data []byte) (int, []byte) {
	if mt == websocket.TextMessage {
		return websocket.TextMessage, data
	}

	req, err := coap.Decode(data)
	if err != nil {
		if len(data) < 4 {
			s.logger.Info("Dropping undecodable message", "len", len(data), "err", err)
			return 0, nil
		}
		s.logger.Info("Rejecting undecodable message", "err", err)
		return s.encode(coap.NewReset(binary.BigEndian.Uint16(data[2:4])))
	}

	switch {
	case coap.IsRequest(req.Code):
		atomic.AddInt64(&s.requests, 1)
		resp := coap.NewResponse(req, coap.Content, []byte(coap.Path(req)))
		if req.Type == coap.NonConfirmable {
			resp.Type = coap.NonConfirmable
		}
		return s.encode(resp)

	case req.Type == coap.Confirmable && req.Code == coap.Empty:
		// CoAP ping
		return s.encode(coap.NewReset(req.MessageID))
	}
	return 0, nil
}

func (s *Server) encode(m *coap.Message) (int, []byte) {
	b, err := m.MarshalBinary()
	if err != nil {
		s.logger.Error("Failed to encode reply", "err", err)
		return 0, nil
	}
	return websocket.BinaryMessage, b
}
