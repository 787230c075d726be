package sipua

import (
	"context"
	"testing"
	"time"

	"github.com/arzzra/web_phone/pkg/transport"
	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() transport.Config {
	return transport.Config{
		TransportAddress: "wss://pbx.example.com:7443/ws",
		IdentityURI:      "sip:100@example.com",
		CredentialSecret: "secret",
		DisplayName:      "Reception",
	}
}

func TestNewAgent(t *testing.T) {
	a, err := New(testConfig(), Options{})
	require.NoError(t, err)
	defer a.Stop()

	assert.Equal(t, "WSS", a.endpoint.Transport)
	assert.Equal(t, "example.com", a.registrar.Host)
	assert.Equal(t, "100", a.authUser())
	assert.Equal(t, 600*time.Second, a.opts.RegisterExpiry)
	assert.False(t, a.IsConnected())
	assert.False(t, a.IsRegistered())
}

func TestNewAgentRejectsBadConfig(t *testing.T) {
	_, err := New(transport.Config{}, Options{})
	assert.ErrorIs(t, err, transport.ErrInvalidConfig)

	cfg := testConfig()
	cfg.TransportAddress = "ftp://pbx.example.com"
	_, err = New(cfg, Options{})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.IdentityURI = "sip:example.com"
	_, err = New(cfg, Options{})
	assert.Error(t, err)
}

func TestAuthUserOverride(t *testing.T) {
	cfg := testConfig()
	cfg.AuthUser = "auth100"
	a, err := New(cfg, Options{})
	require.NoError(t, err)
	defer a.Stop()
	assert.Equal(t, "auth100", a.authUser())
}

func TestCallBeforeStart(t *testing.T) {
	a, err := New(testConfig(), Options{})
	require.NoError(t, err)
	defer a.Stop()

	_, err = a.Call("200", transport.CallOptions{Audio: true})
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestTerminateEarlyOutgoingCancelsDial(t *testing.T) {
	a, err := New(testConfig(), Options{})
	require.NoError(t, err)
	defer a.Stop()

	var events []transport.SessionEvent
	ctx, s := a.newOutgoing("call-1", transport.Identity{User: "200"}, func(ev transport.SessionEvent) {
		events = append(events, ev)
	})
	require.Len(t, a.sessions, 1)

	require.NoError(t, s.Terminate(transport.TerminateOptions{}))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	s.finish(transport.SessionFailed, failureCause(ctx, "", ctx.Err()))
	assert.Empty(t, a.sessions)
	require.Len(t, events, 1)
	assert.Equal(t, transport.SessionFailed, events[0].Type)
	assert.Equal(t, "Canceled", events[0].Cause)
}

func TestStartAfterStop(t *testing.T) {
	a, err := New(testConfig(), Options{})
	require.NoError(t, err)
	require.NoError(t, a.Stop())
	assert.NoError(t, a.Stop(), "second stop is a no-op")
	assert.ErrorIs(t, a.Start(), ErrStopped)
}

func TestNewRegisterRequest(t *testing.T) {
	a, err := New(testConfig(), Options{})
	require.NoError(t, err)
	defer a.Stop()

	req := a.newRegister(600)
	assert.Equal(t, sip.REGISTER, req.Method)
	assert.Equal(t, "600", req.GetHeader("Expires").Value())
	assert.Equal(t, "WSS", req.Transport())
	assert.Equal(t, "pbx.example.com:7443", req.Destination())

	from := req.From()
	require.NotNil(t, from)
	assert.Equal(t, "100", from.Address.User)
	tag, ok := from.Params.Get("tag")
	assert.True(t, ok)
	assert.NotEmpty(t, tag)

	contact := req.Contact()
	require.NotNil(t, contact)
	assert.Equal(t, "100", contact.Address.User)
}

func TestFactoryBuildsAgents(t *testing.T) {
	f := Factory(Options{UserAgent: "test"})
	ua, err := f(testConfig())
	require.NoError(t, err)
	defer ua.Stop()
	a, ok := ua.(*Agent)
	require.True(t, ok)
	assert.Equal(t, "test", a.opts.UserAgent)
}

func TestGrantedExpiry(t *testing.T) {
	res := sip.NewResponse(sip.StatusOK, "OK")
	assert.Equal(t, 600*time.Second, grantedExpiry(res, 600*time.Second))

	res.AppendHeader(sip.NewHeader("Expires", "120"))
	assert.Equal(t, 120*time.Second, grantedExpiry(res, 600*time.Second))
	assert.Equal(t, 60*time.Second, grantedExpiry(res, 60*time.Second), "never more than requested")
}

func TestResponseCause(t *testing.T) {
	res := sip.NewResponse(sip.StatusForbidden, "Forbidden")
	assert.Equal(t, "403 Forbidden", responseCause(res))
	assert.Empty(t, responseCause(nil))
}
