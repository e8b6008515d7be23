// Package coap builds and parses the CoAP messages exchanged with the proxy
// under test. Wire encoding is done by github.com/dustin/go-coap.
package coap

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	gocoap "github.com/dustin/go-coap"
)

// DefaultPort is the registered UDP port for the coap:// scheme.
const DefaultPort = 5683

type Message = gocoap.Message

const (
	Confirmable     = gocoap.Confirmable
	NonConfirmable  = gocoap.NonConfirmable
	Acknowledgement = gocoap.Acknowledgement
	Reset           = gocoap.Reset

	Empty   gocoap.COAPCode = 0
	GET                     = gocoap.GET
	POST                    = gocoap.POST
	Content                 = gocoap.Content

	URIHost  = gocoap.URIHost
	URIPort  = gocoap.URIPort
	URIPath  = gocoap.URIPath
	URIQuery = gocoap.URIQuery
)

type ErrUnsupportedScheme struct {
	Scheme string
}

func (e ErrUnsupportedScheme) Error() string {
	return fmt.Sprintf("unsupported URI scheme: %q (only coap:// is supported)", e.Scheme)
}

// NewRequest builds a request of the given method and type addressed to the
// given coap:// URI. The URI is broken down into Uri-Host, Uri-Port, Uri-Path
// and Uri-Query options. Uri-Host is omitted for IP literals and Uri-Port is
// omitted for the default port.
func NewRequest(method gocoap.COAPCode, typ gocoap.COAPType, rawURI string) (*Message, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "coap" {
		return nil, ErrUnsupportedScheme{Scheme: u.Scheme}
	}
	m := &Message{Type: typ, Code: method}

	if host := u.Hostname(); len(host) > 0 && net.ParseIP(host) == nil {
		m.SetOption(URIHost, strings.ToLower(host))
	}
	if p := u.Port(); len(p) > 0 {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, err
		}
		if port != DefaultPort {
			m.SetOption(URIPort, uint32(port))
		}
	}
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if len(seg) > 0 {
			m.AddOption(URIPath, seg)
		}
	}
	for _, q := range strings.Split(u.RawQuery, "&") {
		if len(q) == 0 {
			continue
		}
		if unescaped, err := url.QueryUnescape(q); err == nil {
			q = unescaped
		}
		m.AddOption(URIQuery, q)
	}
	return m, nil
}

// EncodeRequest produces the wire form of a Confirmable request with the given
// method, target, token and message ID.
func EncodeRequest(method gocoap.COAPCode, uri string, token []byte, mid uint16) ([]byte, error) {
	m, err := NewRequest(method, Confirmable, uri)
	if err != nil {
		return nil, err
	}
	m.Token = token
	m.MessageID = mid
	return m.MarshalBinary()
}

// Decode parses a single CoAP message.
func Decode(data []byte) (*Message, error) {
	m, err := gocoap.ParseMessage(data)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// NewResponse builds a piggybacked acknowledgement for the given request,
// carrying the request's message ID and token.
func NewResponse(req *Message, code gocoap.COAPCode, payload []byte) *Message {
	return &Message{
		Type:      Acknowledgement,
		Code:      code,
		MessageID: req.MessageID,
		Token:     append([]byte(nil), req.Token...),
		Payload:   payload,
	}
}

// NewReset builds an empty Reset message rejecting the given message ID.
func NewReset(mid uint16) *Message {
	return &Message{Type: Reset, Code: Empty, MessageID: mid}
}

// IsRequest reports whether the code is a method code (class 0, non-empty).
func IsRequest(c gocoap.COAPCode) bool {
	return c > Empty && c < 32
}

// Path reassembles the message's Uri-Path options into a slash-separated path.
func Path(m *Message) string {
	return "/" + m.PathString()
}
