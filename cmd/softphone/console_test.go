package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/arzzra/web_phone/pkg/history"
	"github.com/arzzra/web_phone/pkg/phone"
	"github.com/arzzra/web_phone/pkg/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePhone struct {
	calls    []string
	ended    int
	answered int
	rejected int
	cleared  int
	state    phone.State
	callErr  error
}

func (f *fakePhone) StartCall(number string) error {
	f.calls = append(f.calls, number)
	return f.callErr
}
func (f *fakePhone) EndCall()           { f.ended++ }
func (f *fakePhone) AnswerCall() error  { f.answered++; return nil }
func (f *fakePhone) RejectCall() error  { f.rejected++; return phone.ErrNoIncomingCall }
func (f *fakePhone) ClearHistory()      { f.cleared++ }
func (f *fakePhone) State() phone.State { return f.state }

func runConsole(t *testing.T, p *fakePhone, hub *signal.Hub, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := &console{phone: p, hub: hub, out: &out}
	require.NoError(t, c.run(context.Background(), strings.NewReader(input)))
	return out.String()
}

func TestConsoleCommands(t *testing.T) {
	p := &fakePhone{state: phone.State{
		Status:           phone.StatusConfirmed,
		ConnectionStatus: phone.ConnectionConnected,
		IsReady:          true,
		CallNumber:       "100",
		CallHistory: []history.Entry{
			{Number: "100", Timestamp: 1700000000000, Duration: 5, Status: history.StatusCompleted},
		},
	}}
	out := runConsole(t, p, signal.NewHub(), "call 100\n\nhangup\nanswer\nreject\nclear\nstatus\nhistory\nquit\ncall 200\n")

	assert.Equal(t, []string{"100"}, p.calls, "commands after quit are not executed")
	assert.Equal(t, 1, p.ended)
	assert.Equal(t, 1, p.answered)
	assert.Equal(t, 1, p.rejected)
	assert.Equal(t, 1, p.cleared)
	assert.Contains(t, out, "reject:")
	assert.Contains(t, out, "status=confirmed connection=connected ready=true")
	assert.Contains(t, out, "completed")
}

func TestConsoleReportsRefusal(t *testing.T) {
	p := &fakePhone{callErr: phone.ErrNotReady}
	out := runConsole(t, p, signal.NewHub(), "call 1\nbogus\n")
	assert.Contains(t, out, "call refused")
	assert.Contains(t, out, `unknown command "bogus"`)
}

func TestConsoleDialUsesSignal(t *testing.T) {
	hub := signal.NewHub()
	var got []string
	hub.Subscribe(signal.StartCallEvent, func(detail any) {
		if d, ok := detail.(signal.StartCallDetail); ok {
			got = append(got, d.Number)
		}
	})

	out := runConsole(t, &fakePhone{}, hub, "dial 555\n")
	assert.Equal(t, []string{"555"}, got)
	assert.NotContains(t, out, "nobody")

	out = runConsole(t, &fakePhone{}, signal.NewHub(), "dial 555\n")
	assert.Contains(t, out, "nobody is listening")
}

func TestConsoleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &console{phone: &fakePhone{}, hub: signal.NewHub(), out: &bytes.Buffer{}}
	r, w := io.Pipe()
	defer w.Close()
	assert.NoError(t, c.run(ctx, r))
}
