package loadtest

import (
	"encoding/binary"

	"github.com/informalsystems/wsproxy-load-test/pkg/coap"
)

// RequestTokenLength is the length, in bytes, of the token carried by every
// load testing request.
const RequestTokenLength = 4

// BuildRequest produces the binary CoAP request that every connection in a
// load test sends: a confirmable GET for the given coap:// URI. A single random
// 16-bit value is used both as the message ID and, widened to 4 big-endian
// bytes, as the token.
func BuildRequest(targetURI string) ([]byte, error) {
	id, err := randUint16()
	if err != nil {
		return nil, NewError(ErrFailedToBuildRequest, err)
	}
	return buildRequestWithID(targetURI, id)
}

func buildRequestWithID(targetURI string, id uint16) ([]byte, error) {
	token := make([]byte, RequestTokenLength)
	binary.BigEndian.PutUint32(token, uint32(id))
	b, err := coap.EncodeRequest(coap.GET, targetURI, token, id)
	if err != nil {
		return nil, NewError(ErrFailedToBuildRequest, err, targetURI)
	}
	return b, nil
}
