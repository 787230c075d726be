package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeEmitCancel(t *testing.T) {
	h := NewHub()

	var got []string
	cancelA := h.Subscribe(StartCallEvent, func(d any) { got = append(got, "a:"+d.(StartCallDetail).Number) })
	cancelB := h.Subscribe(StartCallEvent, func(d any) { got = append(got, "b:"+d.(StartCallDetail).Number) })

	assert.Equal(t, 2, h.RequestStartCall("100"))
	assert.Equal(t, []string{"a:100", "b:100"}, got)

	cancelA()
	cancelA()
	assert.Equal(t, 1, h.RequestStartCall("200"))
	assert.Equal(t, "b:200", got[len(got)-1])

	cancelB()
	assert.Equal(t, 0, h.RequestStartCall("300"))
}

func TestEventsAreIsolatedByName(t *testing.T) {
	h := NewHub()
	called := false
	h.Subscribe("other", func(any) { called = true })

	h.RequestStartCall("100")
	assert.False(t, called)
	assert.Equal(t, 0, h.Emit("nobody", nil))
}

func TestNilHandler(t *testing.T) {
	h := NewHub()
	cancel := h.Subscribe(StartCallEvent, nil)
	assert.NotPanics(t, cancel)
	assert.Equal(t, 0, h.RequestStartCall("1"))
}
