package sipua

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		addr      string
		transport string
		hostPort  string
		path      string
	}{
		{"wss://pbx.example.com:7443/ws", "WSS", "pbx.example.com:7443", "/ws"},
		{"ws://10.0.0.1", "WS", "10.0.0.1:80", ""},
		{"wss://pbx.example.com", "WSS", "pbx.example.com:443", ""},
		{"udp://sip.example.com", "UDP", "sip.example.com:5060", ""},
		{"tls://sip.example.com", "TLS", "sip.example.com:5061", ""},
		{"sip.example.com:5080", "UDP", "sip.example.com:5080", ""},
		{"tcp://[::1]:5070", "TCP", "[::1]:5070", ""},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			ep, err := parseEndpoint(tt.addr)
			require.NoError(t, err)
			assert.Equal(t, tt.transport, ep.Transport)
			assert.Equal(t, tt.hostPort, ep.HostPort)
			assert.Equal(t, tt.path, ep.Path)
		})
	}
}

func TestParseEndpointErrors(t *testing.T) {
	for _, addr := range []string{"", "http://pbx.example.com", "wss://", "wss://pbx.example.com:99999"} {
		_, err := parseEndpoint(addr)
		assert.Error(t, err, addr)
	}
}

func TestEndpointIsWebSocket(t *testing.T) {
	ws, _ := parseEndpoint("ws://a")
	wss, _ := parseEndpoint("wss://a")
	udp, _ := parseEndpoint("udp://a")
	assert.True(t, ws.IsWebSocket())
	assert.True(t, wss.IsWebSocket())
	assert.False(t, udp.IsWebSocket())
}

func TestParseIdentity(t *testing.T) {
	uri, err := parseIdentity("sip:100@example.com")
	require.NoError(t, err)
	assert.Equal(t, "100", uri.User)
	assert.Equal(t, "example.com", uri.Host)

	_, err = parseIdentity("sip:example.com")
	assert.Error(t, err, "user is required")
}

func TestTargetURI(t *testing.T) {
	identity, err := parseIdentity("sip:100@example.com")
	require.NoError(t, err)

	tests := map[string]struct{ user, host string }{
		"5551234":           {"5551234", "example.com"},
		"200@other.org":     {"200", "other.org"},
		"sip:300@third.net": {"300", "third.net"},
		"  5551234  ":       {"5551234", "example.com"},
	}
	for in, want := range tests {
		uri, err := targetURI(in, identity)
		require.NoError(t, err, in)
		assert.Equal(t, want.user, uri.User, in)
		assert.Equal(t, want.host, uri.Host, in)
	}

	_, err = targetURI("", identity)
	assert.Error(t, err)
}

func TestRegistrarURI(t *testing.T) {
	identity := sip.Uri{User: "100", Host: "example.com"}

	uri, err := registrarURI("", identity)
	require.NoError(t, err)
	assert.Equal(t, "example.com", uri.Host)
	assert.Empty(t, uri.User)

	uri, err = registrarURI("registrar.example.com", identity)
	require.NoError(t, err)
	assert.Equal(t, "registrar.example.com", uri.Host)
}

func TestContactURI(t *testing.T) {
	ep, err := parseEndpoint("wss://pbx.example.com")
	require.NoError(t, err)
	uri, err := contactURI("100", "abcd1234", ep)
	require.NoError(t, err)
	assert.Equal(t, "100", uri.User)
	assert.Equal(t, "abcd1234.invalid", uri.Host)
	tp, ok := uri.UriParams.Get("transport")
	assert.True(t, ok)
	assert.Equal(t, "wss", tp)
}
