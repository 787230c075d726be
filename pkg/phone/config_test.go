package phone

import (
	"testing"
	"time"

	"github.com/arzzra/web_phone/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, 3000*time.Millisecond, o.FailedRevertDelay)
	assert.Equal(t, 2000*time.Millisecond, o.EndedRevertDelay)
	assert.Equal(t, 1000*time.Millisecond, o.DurationInterval)
	assert.False(t, o.DisablePersist)
	assert.Equal(t, history.DefaultKey, o.HistoryKey)
	assert.Equal(t, 50, o.MaxHistoryItems)
}

func TestValidateFillsZeroOptions(t *testing.T) {
	o := &Options{}
	require.NoError(t, o.Validate())

	assert.Equal(t, DefaultFailedRevertDelay, o.FailedRevertDelay)
	assert.Equal(t, DefaultEndedRevertDelay, o.EndedRevertDelay)
	assert.Equal(t, DefaultDurationInterval, o.DurationInterval)
	assert.False(t, o.DisablePersist)
	assert.NotNil(t, o.Storage)
	assert.NotNil(t, o.Registry)
	assert.NotNil(t, o.Signals)
	assert.NotNil(t, o.Logger)
	assert.NotNil(t, o.Clock)
	assert.NotEmpty(t, o.IDGenerator())
}
