package sipua

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff()
	b.JitterFactor = 0

	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(3))
	assert.Equal(t, 16*time.Second, b.Delay(4))
	assert.Equal(t, 30*time.Second, b.Delay(5), "capped at max delay")
	assert.Equal(t, 30*time.Second, b.Delay(50))
	assert.Equal(t, 2*time.Second, b.Delay(0))
}

func TestBackoffJitterBounds(t *testing.T) {
	b := DefaultBackoff()
	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestRefreshInterval(t *testing.T) {
	assert.Equal(t, 570*time.Second, refreshInterval(600*time.Second))
	assert.Equal(t, 54*time.Second, refreshInterval(60*time.Second))
	assert.Equal(t, 5*time.Second, refreshInterval(3*time.Second))
	assert.Equal(t, 30*time.Second, refreshInterval(0))
}
