// Package sipua реализует transport.UserAgent поверх sipgo: регистрация с
// digest аутентификацией, исходящие и входящие INVITE диалоги.
//
// Медиа не передается. SDP offer содержит только описание кодеков, чтобы
// АТС могла согласовать звонок.
package sipua

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/arzzra/web_phone/pkg/logger"
	"github.com/arzzra/web_phone/pkg/transport"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
)

var (
	ErrNotStarted = errors.New("sipua: user agent is not started")
	ErrStopped    = errors.New("sipua: user agent is stopped")
)

// Options параметры SIP агента, общие для всех подключений процесса
type Options struct {
	// UserAgent - значение заголовка User-Agent
	UserAgent string
	// Hostname - имя хоста для Via
	Hostname string
	// RegisterExpiry - запрашиваемое время жизни регистрации
	RegisterExpiry time.Duration
	// RequestTimeout - таймаут одного REGISTER
	RequestTimeout time.Duration
	// MediaHost - адрес в SDP
	MediaHost string
	Backoff   Backoff
	Logger    logger.StructuredLogger
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		UserAgent:      "WebPhone/1.0",
		RegisterExpiry: 600 * time.Second,
		RequestTimeout: 10 * time.Second,
		Backoff:        DefaultBackoff(),
	}
}

// Factory фабрика транспорта для registry.New
func Factory(opts Options) transport.Factory {
	return func(cfg transport.Config) (transport.UserAgent, error) {
		return New(cfg, opts)
	}
}

// Agent SIP агент одного подключения
type Agent struct {
	cfg  transport.Config
	opts Options
	log  logger.StructuredLogger

	endpoint  endpoint
	identity  sip.Uri
	registrar sip.Uri
	contact   sip.ContactHeader

	ua        *sipgo.UserAgent
	client    *sipgo.Client
	server    *sipgo.Server
	dialogCli *sipgo.DialogClientCache
	dialogSrv *sipgo.DialogServerCache

	mu         sync.Mutex
	handler    func(transport.Event)
	started    bool
	stopped    bool
	connected  bool
	registered bool
	cancel     context.CancelFunc
	done       chan struct{}
	sessions   map[string]*session
}

// New создает агент. Сетевые соединения открываются в Start.
func New(cfg transport.Config, opts Options) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	def := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.RegisterExpiry <= 0 {
		opts.RegisterExpiry = def.RegisterExpiry
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.Backoff.InitialDelay <= 0 {
		opts.Backoff = def.Backoff
	}

	ep, err := parseEndpoint(cfg.TransportAddress)
	if err != nil {
		return nil, err
	}
	identity, err := parseIdentity(cfg.IdentityURI)
	if err != nil {
		return nil, err
	}
	registrar, err := registrarURI(cfg.RegistrarAddress, identity)
	if err != nil {
		return nil, err
	}
	contact, err := contactURI(identity.User, uuid.NewString()[:8], ep)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:       cfg,
		opts:      opts,
		log:       logger.OrDefault(opts.Logger).WithComponent("sipua").WithFields(logger.String("identity", cfg.IdentityURI)),
		endpoint:  ep,
		identity:  identity,
		registrar: registrar,
		contact:   sip.ContactHeader{DisplayName: cfg.DisplayName, Address: contact},
		sessions:  make(map[string]*session),
	}

	if a.ua, err = sipgo.NewUA(sipgo.WithUserAgent(opts.UserAgent)); err != nil {
		return nil, fmt.Errorf("sipua: create user agent: %w", err)
	}
	clientOpts := []sipgo.ClientOption{}
	if opts.Hostname != "" {
		clientOpts = append(clientOpts, sipgo.WithClientHostname(opts.Hostname))
	}
	if a.client, err = sipgo.NewClient(a.ua, clientOpts...); err != nil {
		_ = a.ua.Close()
		return nil, fmt.Errorf("sipua: create client: %w", err)
	}
	if a.server, err = sipgo.NewServer(a.ua); err != nil {
		_ = a.ua.Close()
		return nil, fmt.Errorf("sipua: create server: %w", err)
	}
	a.dialogCli = sipgo.NewDialogClientCache(a.client, a.contact)
	a.dialogSrv = sipgo.NewDialogServerCache(a.client, a.contact)
	a.registerHandlers()

	return a, nil
}

func (a *Agent) registerHandlers() {
	a.server.OnInvite(a.handleInvite)
	a.server.OnAck(a.handleAck)
	a.server.OnBye(a.handleBye)
}

// Start запускает цикл регистрации
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.stopped:
		return ErrStopped
	case a.started:
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.started = true
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(ctx)
	a.log.Info(ctx, "user agent started",
		logger.String("transport", a.endpoint.Transport),
		logger.String("destination", a.endpoint.HostPort))
	return nil
}

// Stop завершает звонки, снимает регистрацию и закрывает транспорт
func (a *Agent) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	cancel, done := a.cancel, a.done
	wasRegistered := a.registered
	sessions := make([]*session, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, s := range sessions {
		_ = s.Terminate(transport.TerminateOptions{})
	}

	if wasRegistered {
		ctx, cancelUnreg := context.WithTimeout(context.Background(), a.opts.RequestTimeout)
		if _, err := a.register(ctx, 0); err != nil {
			a.log.Debug(ctx, "unregister failed", logger.Err(err))
		}
		cancelUnreg()
	}
	a.setRegistered(false)
	a.setConnected(false)

	a.log.Info(context.Background(), "user agent stopped")
	return a.ua.Close()
}

func (a *Agent) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *Agent) IsRegistered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registered
}

func (a *Agent) OnEvent(h func(transport.Event)) {
	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()
}

func (a *Agent) emit(ev transport.Event) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// setConnected меняет флаг и генерирует событие при изменении
func (a *Agent) setConnected(v bool) {
	a.mu.Lock()
	changed := a.connected != v
	a.connected = v
	a.mu.Unlock()
	if !changed {
		return
	}
	if v {
		a.emit(transport.Event{Type: transport.EventConnected})
	} else {
		a.emit(transport.Event{Type: transport.EventDisconnected})
	}
}

func (a *Agent) setRegistered(v bool) {
	a.mu.Lock()
	changed := a.registered != v
	a.registered = v
	a.mu.Unlock()
	if !changed {
		return
	}
	if v {
		a.emit(transport.Event{Type: transport.EventRegistered})
	} else {
		a.emit(transport.Event{Type: transport.EventUnregistered})
	}
}

// run цикл регистрации. Ошибка транспорта означает потерю соединения,
// отказ регистратора означает registrationFailed; в обоих случаях попытка
// повторяется с экспоненциальной задержкой.
func (a *Agent) run(ctx context.Context) {
	defer close(a.done)

	failures := 0
	for {
		if !a.IsConnected() {
			a.emit(transport.Event{Type: transport.EventConnecting})
		}

		rctx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
		res, err := a.register(rctx, int(a.opts.RegisterExpiry/time.Second))
		cancel()
		if ctx.Err() != nil {
			return
		}

		var wait time.Duration
		switch {
		case err != nil:
			failures++
			wait = a.opts.Backoff.Delay(failures)
			a.log.Warn(ctx, "register request failed",
				logger.Err(err),
				logger.Int("attempt", failures),
				logger.Duration("retry_in", wait))
			a.setRegistered(false)
			a.setConnected(false)

		case res.StatusCode >= 200 && res.StatusCode < 300:
			failures = 0
			a.setConnected(true)
			a.setRegistered(true)
			wait = refreshInterval(grantedExpiry(res, a.opts.RegisterExpiry))
			a.log.Debug(ctx, "registered", logger.Duration("refresh_in", wait))

		default:
			failures++
			wait = a.opts.Backoff.Delay(failures)
			cause := responseCause(res)
			a.setConnected(true)
			a.mu.Lock()
			a.registered = false
			a.mu.Unlock()
			a.log.Warn(ctx, "registration rejected",
				logger.String("cause", cause),
				logger.Duration("retry_in", wait))
			a.emit(transport.Event{Type: transport.EventRegistrationFailed, Cause: cause})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// register отправляет REGISTER и при необходимости повторяет его с
// digest авторизацией
func (a *Agent) register(ctx context.Context, expires int) (*sip.Response, error) {
	req := a.newRegister(expires)
	res, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != sip.StatusUnauthorized && res.StatusCode != sip.StatusProxyAuthRequired {
		return res, nil
	}
	if err := authorize(req, res, a.registrar.String(), a.authUser(), a.cfg.CredentialSecret); err != nil {
		return nil, err
	}
	return a.client.Do(ctx, req)
}

func (a *Agent) newRegister(expires int) *sip.Request {
	req := sip.NewRequest(sip.REGISTER, a.registrar)

	from := &sip.FromHeader{
		DisplayName: a.cfg.DisplayName,
		Address:     a.identity,
		Params:      sip.NewParams(),
	}
	from.Params.Add("tag", sip.GenerateTagN(16))
	req.AppendHeader(from)
	req.AppendHeader(&sip.ToHeader{Address: a.identity, Params: sip.NewParams()})

	contact := a.contact
	req.AppendHeader(&contact)
	req.AppendHeader(sip.NewHeader("Expires", strconv.Itoa(expires)))
	a.route(req)
	return req
}

// route направляет запрос в сигнальный транспорт
func (a *Agent) route(req *sip.Request) {
	req.SetTransport(a.endpoint.Transport)
	req.SetDestination(a.endpoint.HostPort)
}

func (a *Agent) authUser() string {
	if a.cfg.AuthUser != "" {
		return a.cfg.AuthUser
	}
	return a.identity.User
}

// grantedExpiry время регистрации из ответа, не больше запрошенного
func grantedExpiry(res *sip.Response, requested time.Duration) time.Duration {
	h := res.GetHeader("Expires")
	if h == nil {
		return requested
	}
	sec, err := strconv.Atoi(h.Value())
	if err != nil || sec <= 0 {
		return requested
	}
	granted := time.Duration(sec) * time.Second
	if granted > requested {
		return requested
	}
	return granted
}

func responseCause(res *sip.Response) string {
	if res == nil {
		return ""
	}
	if res.Reason == "" {
		return strconv.Itoa(int(res.StatusCode))
	}
	return strconv.Itoa(int(res.StatusCode)) + " " + res.Reason
}

// Call отправляет INVITE. Ответы приходят событиями сессии.
func (a *Agent) Call(target string, opts transport.CallOptions) (transport.Session, error) {
	a.mu.Lock()
	running := a.started && !a.stopped
	a.mu.Unlock()
	if !running {
		return nil, ErrNotStarted
	}

	uri, err := targetURI(target, a.identity)
	if err != nil {
		return nil, err
	}
	if !opts.Audio && !opts.Video {
		opts.Audio = true
	}
	offer, err := BuildOffer(OfferConfig{Host: a.opts.MediaHost, Audio: opts.Audio, Video: opts.Video})
	if err != nil {
		return nil, err
	}

	req := sip.NewRequest(sip.INVITE, uri)
	from := &sip.FromHeader{
		DisplayName: a.cfg.DisplayName,
		Address:     a.identity,
		Params:      sip.NewParams(),
	}
	from.Params.Add("tag", sip.GenerateTagN(16))
	req.AppendHeader(from)
	req.AppendHeader(&sip.ToHeader{Address: uri, Params: sip.NewParams()})
	callID := sip.CallIDHeader(uuid.NewString())
	req.AppendHeader(&callID)
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	for name, value := range opts.Headers {
		req.AppendHeader(sip.NewHeader(name, value))
	}
	req.SetBody(offer)
	a.route(req)

	ctx, s := a.newOutgoing(string(callID), transport.Identity{User: uri.User}, opts.Handler)
	go s.dial(ctx, req)

	a.log.Info(ctx, "outgoing call", logger.String("target", uri.String()), logger.String("call_id", s.id))
	a.emit(transport.Event{Type: transport.EventNewSession, Session: s})
	return s, nil
}

// newOutgoing создает и регистрирует исходящую сессию. Отмена ctx
// прерывает ожидание ответа на INVITE.
func (a *Agent) newOutgoing(callID string, remote transport.Identity, h transport.SessionHandler) (context.Context, *session) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSession(a, callID, transport.DirectionOutgoing, remote)
	s.cancelDial = cancel
	s.OnEvent(h)
	a.track(s)
	return ctx, s
}

func (a *Agent) track(s *session) {
	a.mu.Lock()
	a.sessions[s.id] = s
	a.mu.Unlock()
}

func (a *Agent) untrack(id string) {
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}

func (a *Agent) lookup(req *sip.Request) *session {
	cid := req.CallID()
	if cid == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[cid.Value()]
}

func (a *Agent) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	ctx := context.Background()

	a.mu.Lock()
	running := a.started && !a.stopped
	a.mu.Unlock()
	if !running {
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusTemporarilyUnavailable, "Temporarily Unavailable", nil))
		return
	}
	if s := a.lookup(req); s != nil {
		// re-INVITE существующего диалога: медиа не меняем
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
		return
	}

	dss, err := a.dialogSrv.ReadInvite(req, tx)
	if err != nil {
		a.log.Warn(ctx, "bad incoming invite", logger.Err(err))
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusBadRequest, "Bad Request", nil))
		return
	}

	from := req.From()
	remote := transport.Identity{}
	if from != nil {
		remote.User = from.Address.User
		remote.DisplayName = from.DisplayName
	}
	s := newSession(a, req.CallID().Value(), transport.DirectionIncoming, remote)
	s.server = dss
	a.track(s)

	if err := dss.Respond(sip.StatusRinging, "Ringing", nil); err != nil {
		a.log.Warn(ctx, "failed to send ringing", logger.Err(err))
	}
	a.log.Info(ctx, "incoming call",
		logger.String("from", remote.User),
		logger.String("call_id", s.id),
		logger.String("media", mediaSummary(req.Body())))
	a.emit(transport.Event{Type: transport.EventNewSession, Session: s})

	// CANCEL завершает серверную транзакцию до ответа
	go func() {
		<-tx.Done()
		s.inviteDone()
	}()
}

func (a *Agent) handleAck(req *sip.Request, tx sip.ServerTransaction) {
	s := a.lookup(req)
	if s == nil || s.direction != transport.DirectionIncoming {
		return
	}
	if err := a.dialogSrv.ReadAck(req, tx); err != nil {
		a.log.Debug(context.Background(), "ack without dialog", logger.Err(err))
		return
	}
	s.acked()
}

func (a *Agent) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	s := a.lookup(req)
	if s == nil {
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist", nil))
		return
	}
	var err error
	if s.direction == transport.DirectionOutgoing {
		err = a.dialogCli.ReadBye(req, tx)
	} else {
		err = a.dialogSrv.ReadBye(req, tx)
	}
	if err != nil {
		a.log.Debug(context.Background(), "bye for unknown dialog", logger.Err(err))
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist", nil))
	}
	s.remoteBye()
}
