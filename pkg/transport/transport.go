// Package transport defines the bidirectional message transport that load
// testing connections are driven over, along with a WebSockets implementation.
package transport

import "errors"

// ErrNotConnected is returned by Conn.Send when the connection is not open.
var ErrNotConnected = errors.New("transport: connection is not open")

// ReadyState models the life cycle of a connection.
type ReadyState int32

// Connection states. A connection only ever moves forward through these.
const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// MessageType distinguishes text from binary frames.
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

// Handler receives a connection's asynchronous events. Events for one
// connection are delivered sequentially from a goroutine owned by that
// connection, and never from within a call to Send.
type Handler interface {
	// OnOpen is called once the connection has been established.
	OnOpen()

	// OnMessage is called for every text or binary message received.
	OnMessage(mt MessageType, data []byte)

	// OnClose is called exactly once when the connection reaches the Closed
	// state, including when it never opened.
	OnClose(code int, reason string, remote bool)

	// OnError is called for transport-level errors. It does not imply that the
	// connection has closed.
	OnError(err error)
}

// Conn is a single persistent connection.
type Conn interface {
	// Connect starts establishing the connection in the background.
	Connect()

	// Send transmits a single binary message. It returns ErrNotConnected if the
	// connection is not open.
	Send(data []byte) error

	// Close requests that the connection be closed. It does not block waiting
	// for the remote end to acknowledge the close.
	Close()

	// ReadyState reports the connection's current state.
	ReadyState() ReadyState
}

// Factory builds an unconnected Conn to the given URI that delivers its events
// to the given handler.
type Factory func(uri string, h Handler) (Conn, error)
