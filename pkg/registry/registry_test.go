package registry_test

import (
	"errors"
	"testing"

	"github.com/arzzra/web_phone/pkg/registry"
	"github.com/arzzra/web_phone/pkg/transport"
	"github.com/arzzra/web_phone/pkg/transport/mockTransport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg(user string) transport.Config {
	return transport.Config{
		TransportAddress: "wss://pbx.example.com:7443",
		IdentityURI:      "sip:" + user + "@example.com",
		AuthUser:         user,
		CredentialSecret: "secret",
	}
}

func TestAcquireSameFingerprintSharesTransport(t *testing.T) {
	f := mockTransport.NewFactory()
	r := registry.New(f.New)

	a, err := r.Acquire(cfg("100"))
	require.NoError(t, err)

	other := cfg("100")
	other.CredentialSecret = "changed"
	other.DisplayName = "Second tab"
	b, err := r.Acquire(other)
	require.NoError(t, err)

	assert.Same(t, a, b, "same fingerprint must return the same connection")
	assert.Len(t, f.Agents(), 1, "transport must not be recreated")
	assert.Equal(t, 2, a.Refs())
}

func TestAcquireDifferentFingerprintReplaces(t *testing.T) {
	f := mockTransport.NewFactory()
	r := registry.New(f.New)

	first, err := r.Acquire(cfg("100"))
	require.NoError(t, err)
	require.NoError(t, r.Start(first))
	oldUA := f.Last()
	oldUA.SetStopError(errors.New("socket already closed"))

	second, err := r.Acquire(cfg("200"))
	require.NoError(t, err, "stop error of the old transport must be swallowed")

	assert.NotSame(t, first, second)
	assert.Equal(t, 1, oldUA.StopCount(), "old transport must be stopped exactly once")
	assert.True(t, first.Closed())
	assert.Same(t, second, r.Current())
	assert.False(t, second.IsStarted())
}

func TestReplacedConnectionStopsDispatching(t *testing.T) {
	f := mockTransport.NewFactory()
	r := registry.New(f.New)

	first, _ := r.Acquire(cfg("100"))
	oldUA := f.Last()
	var oldEvents int
	first.AddListener(&registry.Listener{OnRegistered: func() { oldEvents++ }})

	second, _ := r.Acquire(cfg("200"))
	newUA := f.Last()
	var newEvents int
	second.AddListener(&registry.Listener{OnRegistered: func() { newEvents++ }})

	newUA.EmitRegistered()
	oldUA.EmitRegistered()

	assert.Equal(t, 0, oldEvents, "listener of the replaced connection must not see events")
	assert.Equal(t, 1, newEvents)
}

func TestReplacedConnectionNotifiesDisconnected(t *testing.T) {
	f := mockTransport.NewFactory()
	r := registry.New(f.New)

	first, _ := r.Acquire(cfg("100"))
	var disconnected []string
	first.AddListener(&registry.Listener{OnDisconnected: func() {
		assert.NotNil(t, r.Current(), "listeners run outside the registry lock")
		disconnected = append(disconnected, "a")
	}})
	first.AddListener(&registry.Listener{OnDisconnected: func() { disconnected = append(disconnected, "b") }})

	second, _ := r.Acquire(cfg("200"))
	assert.Equal(t, []string{"a", "b"}, disconnected)

	second.AddListener(&registry.Listener{OnDisconnected: func() { disconnected = append(disconnected, "c") }})
	r.Release(second)
	assert.Equal(t, []string{"a", "b", "c"}, disconnected)
}

func TestStartIsIdempotent(t *testing.T) {
	f := mockTransport.NewFactory()
	r := registry.New(f.New)

	conn, _ := r.Acquire(cfg("100"))
	require.NoError(t, r.Start(conn))
	require.NoError(t, r.Start(conn))
	assert.Equal(t, 1, f.Last().StartCount())
	assert.True(t, conn.IsStarted())
}

func TestStartErrorLeavesNotStarted(t *testing.T) {
	f := mockTransport.NewFactory()
	f.Prepare = func(ua *mockTransport.UserAgent) { ua.SetStartError(errors.New("bad url")) }
	r := registry.New(f.New)

	conn, _ := r.Acquire(cfg("100"))
	assert.Error(t, r.Start(conn))
	assert.False(t, conn.IsStarted())
}

func TestListenerOrderAndRemoval(t *testing.T) {
	f := mockTransport.NewFactory()
	r := registry.New(f.New)
	conn, _ := r.Acquire(cfg("100"))

	var order []string
	var second *registry.Listener
	first := &registry.Listener{OnConnected: func() {
		order = append(order, "first")
		conn.RemoveListener(second)
	}}
	second = &registry.Listener{OnConnected: func() { order = append(order, "second") }}
	third := &registry.Listener{
		OnConnected:          func() { order = append(order, "third") },
		OnRegistrationFailed: func(cause string) { order = append(order, "failed:"+cause) },
	}

	conn.AddListener(first)
	conn.AddListener(second)
	conn.AddListener(third)
	conn.AddListener(third)
	assert.Equal(t, 3, conn.ListenerCount(), "duplicate add is ignored")

	f.Last().EmitConnected()
	assert.Equal(t, []string{"first", "third"}, order, "listener removed mid-dispatch must not be called")

	f.Last().EmitRegistrationFailed("Forbidden")
	assert.Equal(t, "failed:Forbidden", order[len(order)-1])

	conn.RemoveListener(first)
	conn.RemoveListener(first)
	assert.Equal(t, 1, conn.ListenerCount())
}

func TestNewSessionFanOut(t *testing.T) {
	f := mockTransport.NewFactory()
	r := registry.New(f.New)
	conn, _ := r.Acquire(cfg("100"))

	var got []transport.Session
	conn.AddListener(&registry.Listener{OnNewSession: func(s transport.Session) { got = append(got, s) }})
	conn.AddListener(&registry.Listener{})

	s := f.Last().Incoming("300", "Carol")
	require.Len(t, got, 1)
	assert.Equal(t, s.ID(), got[0].ID())
}

func TestReleaseRefCounting(t *testing.T) {
	f := mockTransport.NewFactory()
	r := registry.New(f.New)

	a, _ := r.Acquire(cfg("100"))
	b, _ := r.Acquire(cfg("100"))
	ua := f.Last()

	r.Release(a)
	assert.Equal(t, 0, ua.StopCount(), "transport stays while another owner holds it")
	assert.Same(t, b, r.Current())

	r.Release(b)
	assert.Equal(t, 1, ua.StopCount())
	assert.Nil(t, r.Current())

	r.Release(b)
	assert.Equal(t, 1, ua.StopCount(), "double release is a no-op")
}

func TestReleaseStaleConnectionIsNoop(t *testing.T) {
	f := mockTransport.NewFactory()
	r := registry.New(f.New)

	old, _ := r.Acquire(cfg("100"))
	cur, _ := r.Acquire(cfg("200"))

	r.Release(old)
	assert.Same(t, cur, r.Current())
	assert.Equal(t, 0, f.Last().StopCount())
}

func TestFactoryErrors(t *testing.T) {
	_, err := registry.New(nil).Acquire(cfg("100"))
	assert.ErrorIs(t, err, registry.ErrNoFactory)

	f := mockTransport.NewFactory()
	r := registry.New(f.New)
	_, _ = r.Acquire(cfg("100"))
	oldUA := f.Last()

	f.SetError(errors.New("invalid uri"))
	_, err = r.Acquire(cfg("200"))
	assert.Error(t, err)
	assert.Nil(t, r.Current(), "failed replacement leaves the slot empty")
	assert.Equal(t, 1, oldUA.StopCount())
}

func TestRegistryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := mockTransport.NewFactory()
	r := registry.New(f.New, registry.WithMetrics(reg))

	a, _ := r.Acquire(cfg("100"))
	a.AddListener(&registry.Listener{})
	a.AddListener(&registry.Listener{})
	_, _ = r.Acquire(cfg("200"))

	count, err := testutil.GatherAndCount(reg,
		"webphone_registry_connections_created_total",
		"webphone_registry_connections_replaced_total",
		"webphone_registry_connection_listeners")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
