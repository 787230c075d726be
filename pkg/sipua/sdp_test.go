package sipua

import (
	"testing"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOfferAudio(t *testing.T) {
	now := func() time.Time { return time.Unix(1700000000, 0) }
	body, err := BuildOffer(OfferConfig{Host: "192.0.2.10", AudioPort: 5004, Audio: true, Now: now})
	require.NoError(t, err)

	var desc sdp.SessionDescription
	require.NoError(t, desc.Unmarshal(body))

	assert.Equal(t, uint64(1700000000), desc.Origin.SessionID)
	assert.Equal(t, "192.0.2.10", desc.ConnectionInformation.Address.Address)
	require.Len(t, desc.MediaDescriptions, 1)

	audio := desc.MediaDescriptions[0]
	assert.Equal(t, "audio", audio.MediaName.Media)
	assert.Equal(t, 5004, audio.MediaName.Port.Value)
	assert.Equal(t, []string{"0", "8", "101"}, audio.MediaName.Formats)

	rtpmap, ok := audio.Attribute("rtpmap")
	assert.True(t, ok)
	assert.Equal(t, "0 PCMU/8000", rtpmap)
	_, ok = audio.Attribute("sendrecv")
	assert.True(t, ok)
}

func TestBuildOfferVideo(t *testing.T) {
	body, err := BuildOffer(OfferConfig{Audio: true, Video: true})
	require.NoError(t, err)

	var desc sdp.SessionDescription
	require.NoError(t, desc.Unmarshal(body))
	require.Len(t, desc.MediaDescriptions, 2)
	assert.Equal(t, "video", desc.MediaDescriptions[1].MediaName.Media)
	assert.Equal(t, "127.0.0.1", desc.Origin.UnicastAddress)
	assert.Equal(t, "audio:4000,video:4002", mediaSummary(body))
}

func TestBuildOfferWithoutMedia(t *testing.T) {
	_, err := BuildOffer(OfferConfig{})
	assert.Error(t, err)
}

func TestMediaSummaryInvalid(t *testing.T) {
	assert.Empty(t, mediaSummary(nil))
	assert.Equal(t, "invalid sdp", mediaSummary([]byte("garbage")))
}
