package phone

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhoneErrorMatchesByCode(t *testing.T) {
	err := errCallInProgress(StatusConfirmed, "100")
	assert.ErrorIs(t, err, ErrCallInProgress)
	assert.NotErrorIs(t, err, ErrNotReady)
	assert.Equal(t, "confirmed", err.Fields["status"])

	wrapped := fmt.Errorf("dial: %w", errNotReady(ConnectionFailed))
	assert.ErrorIs(t, wrapped, ErrNotReady)

	var perr *PhoneError
	assert.True(t, errors.As(wrapped, &perr))
	assert.Equal(t, ErrorCategoryAdmission, perr.Category)
}

func TestPhoneErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := errTransport("start", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "TRANSPORT:TRANSPORT_FAILURE")
	assert.Contains(t, err.Error(), "socket closed")
	assert.Equal(t, "TRANSPORT_FAILURE", err.ErrorCode())
	assert.Equal(t, "TRANSPORT", err.ErrorCategory())
}
