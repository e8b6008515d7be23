package loadtest

import (
	"encoding/binary"
	"testing"

	"github.com/informalsystems/wsproxy-load-test/pkg/coap"
	"github.com/stretchr/testify/require"
)

func decodeRequest(t *testing.T, b []byte) *coap.Message {
	t.Helper()
	m, err := coap.Decode(b)
	require.NoError(t, err)
	return m
}

func TestBuildRequestWithID(t *testing.T) {
	for _, id := range []uint16{0, 1, 0x1234, 0xffff} {
		b, err := buildRequestWithID(DefaultTargetURI, id)
		require.NoError(t, err)

		m := decodeRequest(t, b)
		require.Equal(t, coap.Confirmable, m.Type)
		require.Equal(t, coap.GET, m.Code)
		require.Equal(t, id, m.MessageID)
		require.Len(t, m.Token, RequestTokenLength)
		require.Equal(t, uint32(id), binary.BigEndian.Uint32(m.Token))
		require.Equal(t, "/target", coap.Path(m))
		require.Empty(t, m.Payload)
	}
}

func TestBuildRequestIsSelfConsistent(t *testing.T) {
	seen := make(map[uint16]bool)
	for i := 0; i < 20; i++ {
		b, err := BuildRequest("coap://localhost:5683/target")
		require.NoError(t, err)
		m := decodeRequest(t, b)
		require.Equal(t, uint32(m.MessageID), binary.BigEndian.Uint32(m.Token))
		require.Equal(t, "localhost", m.Option(coap.URIHost))
		seen[m.MessageID] = true
	}
	// identifiers are drawn at random for every build
	require.Greater(t, len(seen), 1)
}

func TestBuildRequestInvalidTarget(t *testing.T) {
	for _, uri := range []string{"http://localhost/target", "://bad"} {
		_, err := BuildRequest(uri)
		require.True(t, IsErrorCode(err, ErrFailedToBuildRequest), "expected ErrFailedToBuildRequest for %q, but got %v", uri, err)
	}
}
