package sipua

import (
	"errors"
	"fmt"

	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
)

var ErrNoCredentials = errors.New("sipua: server requires auth, but no credentials configured")

// authorize добавляет в req ответ на digest challenge из res и готовит
// запрос к повторной отправке в той же транзакции диалога
func authorize(req *sip.Request, res *sip.Response, uri, user, password string) error {
	challengeHeader, credentialsHeader := "WWW-Authenticate", "Authorization"
	if res.StatusCode == sip.StatusProxyAuthRequired {
		challengeHeader, credentialsHeader = "Proxy-Authenticate", "Proxy-Authorization"
	}
	if user == "" || password == "" {
		return ErrNoCredentials
	}

	h := res.GetHeader(challengeHeader)
	if h == nil {
		return fmt.Errorf("sipua: %d response without %s", res.StatusCode, challengeHeader)
	}
	chal, err := digest.ParseChallenge(h.Value())
	if err != nil {
		return fmt.Errorf("sipua: parse challenge: %w", err)
	}
	cred, err := digest.Digest(chal, digest.Options{
		Method:   string(req.Method),
		URI:      uri,
		Username: user,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("sipua: compute digest: %w", err)
	}

	req.RemoveHeader(credentialsHeader)
	req.AppendHeader(sip.NewHeader(credentialsHeader, cred.String()))
	if cseq := req.CSeq(); cseq != nil {
		cseq.SeqNo++
	}
	// новая ветка Via для новой транзакции
	req.RemoveHeader("Via")
	return nil
}
