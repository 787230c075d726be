package sipua

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/emiago/sipgo/sip"
)

// endpoint адрес сигнального транспорта
type endpoint struct {
	// Transport значение для sip.Request.SetTransport: UDP, TCP, TLS, WS, WSS
	Transport string
	// HostPort адрес назначения запросов
	HostPort string
	// Path путь WebSocket, для остальных транспортов пуст
	Path string
}

var defaultPorts = map[string]int{
	"udp": 5060,
	"tcp": 5060,
	"tls": 5061,
	"ws":  80,
	"wss": 443,
}

// parseEndpoint разбирает адрес вида wss://pbx.example.com:7443/ws.
// Без схемы адрес считается UDP.
func parseEndpoint(addr string) (endpoint, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return endpoint{}, fmt.Errorf("sipua: empty transport address")
	}
	if !strings.Contains(addr, "://") {
		addr = "udp://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return endpoint{}, fmt.Errorf("sipua: parse transport address %q: %w", addr, err)
	}
	scheme := strings.ToLower(u.Scheme)
	def, ok := defaultPorts[scheme]
	if !ok {
		return endpoint{}, fmt.Errorf("sipua: unsupported transport %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return endpoint{}, fmt.Errorf("sipua: transport address %q has no host", addr)
	}
	port := def
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return endpoint{}, fmt.Errorf("sipua: invalid port in %q", addr)
		}
	}
	ep := endpoint{
		Transport: strings.ToUpper(scheme),
		HostPort:  net.JoinHostPort(host, strconv.Itoa(port)),
	}
	if scheme == "ws" || scheme == "wss" {
		ep.Path = u.Path
	}
	return ep, nil
}

// IsWebSocket true для ws и wss
func (e endpoint) IsWebSocket() bool {
	return e.Transport == "WS" || e.Transport == "WSS"
}

// parseIdentity разбирает адрес абонента sip:user@domain
func parseIdentity(identity string) (sip.Uri, error) {
	var uri sip.Uri
	if err := sip.ParseUri(strings.TrimSpace(identity), &uri); err != nil {
		return sip.Uri{}, fmt.Errorf("sipua: parse identity %q: %w", identity, err)
	}
	if uri.User == "" || uri.Host == "" {
		return sip.Uri{}, fmt.Errorf("sipua: identity %q must contain user and domain", identity)
	}
	return uri, nil
}

// targetURI адрес вызываемого абонента. Номер без домена дополняется
// доменом identity.
func targetURI(target string, identity sip.Uri) (sip.Uri, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return sip.Uri{}, fmt.Errorf("sipua: empty target")
	}
	raw := target
	switch {
	case strings.HasPrefix(target, "sip:"), strings.HasPrefix(target, "sips:"):
	case strings.Contains(target, "@"):
		raw = "sip:" + target
	default:
		raw = "sip:" + target + "@" + identity.Host
	}
	var uri sip.Uri
	if err := sip.ParseUri(raw, &uri); err != nil {
		return sip.Uri{}, fmt.Errorf("sipua: parse target %q: %w", target, err)
	}
	return uri, nil
}

// registrarURI адрес регистратора. По умолчанию домен identity.
func registrarURI(registrar string, identity sip.Uri) (sip.Uri, error) {
	raw := strings.TrimSpace(registrar)
	if raw == "" {
		raw = "sip:" + identity.Host
	} else if !strings.HasPrefix(raw, "sip:") && !strings.HasPrefix(raw, "sips:") {
		raw = "sip:" + raw
	}
	var uri sip.Uri
	if err := sip.ParseUri(raw, &uri); err != nil {
		return sip.Uri{}, fmt.Errorf("sipua: parse registrar %q: %w", registrar, err)
	}
	return uri, nil
}

// contactURI адрес Contact. Для WebSocket используется случайный домен
// .invalid, как у браузерных клиентов.
func contactURI(user, instance string, ep endpoint) (sip.Uri, error) {
	raw := "sip:" + user + "@" + instance + ".invalid"
	if ep.Transport != "UDP" {
		raw += ";transport=" + strings.ToLower(ep.Transport)
	}
	var uri sip.Uri
	if err := sip.ParseUri(raw, &uri); err != nil {
		return sip.Uri{}, fmt.Errorf("sipua: build contact: %w", err)
	}
	return uri, nil
}
