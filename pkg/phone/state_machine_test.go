package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		want   Status
	}{
		{"outgoing completed", []string{evCall, evProgress, evConfirm, evEnd}, StatusEnded},
		{"outgoing failed early", []string{evCall, evFail}, StatusFailed},
		{"failed after confirm", []string{evCall, evConfirm, evFail}, StatusFailed},
		{"revert after end", []string{evCall, evEnd, evReset}, StatusDisconnected},
		{"call again from failed", []string{evCall, evFail, evCall}, StatusProgress},
		{"call again from ended", []string{evCall, evEnd, evCall}, StatusProgress},
		{"incoming answered", []string{evRing, evConfirm}, StatusConfirmed},
		{"incoming rejected", []string{evRing, evReset}, StatusDisconnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := newCallStateMachine()
			for _, ev := range tt.events {
				_, err := sm.Fire(ev)
				require.NoError(t, err, "event %s from %s", ev, sm.Current())
			}
			assert.Equal(t, tt.want, sm.Current())
		})
	}
}

func TestCallStateMachineRejectsInvalidEvents(t *testing.T) {
	sm := newCallStateMachine()
	for _, ev := range []string{evConfirm, evEnd, evFail, evReset, evProgress} {
		_, err := sm.Fire(ev)
		assert.Error(t, err, "event %s from disconnected", ev)
	}
	assert.Equal(t, StatusDisconnected, sm.Current())

	_, err := sm.Fire(evCall)
	require.NoError(t, err)
	assert.False(t, sm.Can(evCall), "no second call while in progress")
	assert.False(t, sm.Can(evRing))
	_, err = sm.Fire(evReset)
	assert.Error(t, err, "progress is left only by a session event")
}

func TestCallStateMachineSelfTransition(t *testing.T) {
	sm := newCallStateMachine()
	_, err := sm.Fire(evCall)
	require.NoError(t, err)

	changed, err := sm.Fire(evProgress)
	assert.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusProgress, sm.Current())
}

func TestStatusIsIdle(t *testing.T) {
	assert.True(t, StatusDisconnected.IsIdle())
	assert.True(t, StatusFailed.IsIdle())
	assert.True(t, StatusEnded.IsIdle())
	assert.False(t, StatusProgress.IsIdle())
	assert.False(t, StatusConfirmed.IsIdle())
	assert.False(t, StatusRinging.IsIdle())
}
