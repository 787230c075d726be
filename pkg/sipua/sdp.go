package sipua

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
)

// Кодек для описания медиа в SDP
type codec struct {
	payloadType uint8
	name        string
	clockRate   int
}

var (
	audioCodecs = []codec{
		{0, "PCMU", 8000},
		{8, "PCMA", 8000},
	}
	videoCodecs = []codec{
		{96, "VP8", 90000},
	}
	telephoneEventPT uint8 = 101
)

// OfferConfig параметры SDP offer
type OfferConfig struct {
	Host      string
	AudioPort int
	VideoPort int
	Audio     bool
	Video     bool
	Now       func() time.Time
}

// BuildOffer создает SDP offer. Медиа не передается, адрес и порты
// нужны только для корректного согласования с АТС.
func BuildOffer(cfg OfferConfig) ([]byte, error) {
	if !cfg.Audio && !cfg.Video {
		return nil, fmt.Errorf("sipua: offer without media")
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	id := uint64(now().Unix())

	offer := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      id,
			SessionVersion: id,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: "webphone",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	if cfg.Audio {
		md := mediaDescription("audio", portOrDefault(cfg.AudioPort, 4000), audioCodecs)
		md.MediaName.Formats = append(md.MediaName.Formats, strconv.Itoa(int(telephoneEventPT)))
		md.Attributes = append(md.Attributes,
			sdp.NewAttribute("rtpmap", fmt.Sprintf("%d telephone-event/8000", telephoneEventPT)),
			sdp.NewAttribute("fmtp", fmt.Sprintf("%d 0-15", telephoneEventPT)),
			sdp.NewAttribute("ptime", "20"),
		)
		offer.MediaDescriptions = append(offer.MediaDescriptions, md)
	}
	if cfg.Video {
		offer.MediaDescriptions = append(offer.MediaDescriptions,
			mediaDescription("video", portOrDefault(cfg.VideoPort, 4002), videoCodecs))
	}

	return offer.Marshal()
}

func mediaDescription(media string, port int, codecs []codec) *sdp.MediaDescription {
	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  media,
			Port:   sdp.RangedPort{Value: port},
			Protos: []string{"RTP", "AVP"},
		},
	}
	for _, c := range codecs {
		md.MediaName.Formats = append(md.MediaName.Formats, strconv.Itoa(int(c.payloadType)))
		md.Attributes = append(md.Attributes,
			sdp.NewAttribute("rtpmap", fmt.Sprintf("%d %s/%d", c.payloadType, c.name, c.clockRate)))
	}
	md.Attributes = append(md.Attributes, sdp.NewPropertyAttribute("sendrecv"))
	return md
}

func portOrDefault(port, def int) int {
	if port > 0 {
		return port
	}
	return def
}

// mediaSummary кратко описывает медиа из SDP ответа для логов
func mediaSummary(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return "invalid sdp"
	}
	out := ""
	for i, md := range desc.MediaDescriptions {
		if i > 0 {
			out += ","
		}
		out += md.MediaName.Media + ":" + strconv.Itoa(md.MediaName.Port.Value)
	}
	return out
}
