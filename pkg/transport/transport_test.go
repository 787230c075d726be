package transport_test

import (
	"testing"

	"github.com/arzzra/web_phone/pkg/transport"
	"github.com/stretchr/testify/assert"
)

func TestFingerprintIgnoresSecretAndDisplayName(t *testing.T) {
	a := transport.Config{
		TransportAddress: "wss://pbx.example.com:7443",
		IdentityURI:      "sip:100@example.com",
		AuthUser:         "100",
		CredentialSecret: "one",
		DisplayName:      "Alice",
	}
	b := a
	b.CredentialSecret = "two"
	b.DisplayName = "Bob"

	assert.Equal(t, "wss://pbx.example.com:7443|sip:100@example.com|100", a.Fingerprint())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.AuthUser = "200"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, transport.Config{}.Validate(), transport.ErrInvalidConfig)
	assert.ErrorIs(t, transport.Config{TransportAddress: "udp://x:5060"}.Validate(), transport.ErrInvalidConfig)
	assert.NoError(t, transport.Config{TransportAddress: "udp://x:5060", IdentityURI: "sip:1@x"}.Validate())
}

func TestEventTypeNames(t *testing.T) {
	assert.Equal(t, "registrationFailed", transport.EventRegistrationFailed.String())
	assert.Equal(t, "incoming", transport.DirectionIncoming.String())
	assert.Equal(t, "confirmed", transport.SessionConfirmed.String())
}
