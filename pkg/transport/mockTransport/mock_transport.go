package mockTransport

import (
	"sync"

	"github.com/arzzra/web_phone/pkg/transport"
	"github.com/google/uuid"
)

// UserAgent управляемый из теста транспорт. События генерируются
// синхронно в горутине, вызвавшей Emit*.
type UserAgent struct {
	mu         sync.Mutex
	cfg        transport.Config
	handler    func(transport.Event)
	started    bool
	connected  bool
	registered bool
	startCount int
	stopCount  int
	startErr   error
	stopErr    error
	callErr    error
	sessions   []*Session
}

// NewUserAgent создает mock транспорт для конфигурации
func NewUserAgent(cfg transport.Config) *UserAgent {
	return &UserAgent{cfg: cfg}
}

// Config возвращает конфигурацию, с которой создан транспорт
func (u *UserAgent) Config() transport.Config {
	return u.cfg
}

func (u *UserAgent) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.startCount++
	if u.startErr != nil {
		return u.startErr
	}
	u.started = true
	return nil
}

func (u *UserAgent) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopCount++
	u.started = false
	u.connected = false
	u.registered = false
	return u.stopErr
}

func (u *UserAgent) IsConnected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.connected
}

func (u *UserAgent) IsRegistered() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.registered
}

func (u *UserAgent) Call(target string, opts transport.CallOptions) (transport.Session, error) {
	u.mu.Lock()
	if u.callErr != nil {
		err := u.callErr
		u.mu.Unlock()
		return nil, err
	}
	s := newSession(transport.DirectionOutgoing, transport.Identity{User: target})
	s.target = target
	s.callOpts = opts
	if opts.Handler != nil {
		s.handlers = append(s.handlers, opts.Handler)
	}
	u.sessions = append(u.sessions, s)
	u.mu.Unlock()

	u.Emit(transport.Event{Type: transport.EventNewSession, Session: s})
	return s, nil
}

func (u *UserAgent) OnEvent(h func(transport.Event)) {
	u.mu.Lock()
	u.handler = h
	u.mu.Unlock()
}

// SetStartError задает ошибку, которую вернет Start
func (u *UserAgent) SetStartError(err error) {
	u.mu.Lock()
	u.startErr = err
	u.mu.Unlock()
}

// SetStopError задает ошибку, которую вернет Stop
func (u *UserAgent) SetStopError(err error) {
	u.mu.Lock()
	u.stopErr = err
	u.mu.Unlock()
}

// SetCallError задает синхронную ошибку Call
func (u *UserAgent) SetCallError(err error) {
	u.mu.Lock()
	u.callErr = err
	u.mu.Unlock()
}

// SetState задает флаги подключения без генерации событий
func (u *UserAgent) SetState(connected, registered bool) {
	u.mu.Lock()
	u.connected = connected
	u.registered = registered
	u.mu.Unlock()
}

func (u *UserAgent) StartCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.startCount
}

func (u *UserAgent) StopCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stopCount
}

func (u *UserAgent) IsStarted() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.started
}

// Sessions все созданные сессии в порядке создания
func (u *UserAgent) Sessions() []*Session {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*Session, len(u.sessions))
	copy(out, u.sessions)
	return out
}

// LastSession последняя созданная сессия или nil
func (u *UserAgent) LastSession() *Session {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.sessions) == 0 {
		return nil
	}
	return u.sessions[len(u.sessions)-1]
}

// Emit доставляет событие обработчику транспорта
func (u *UserAgent) Emit(ev transport.Event) {
	u.mu.Lock()
	h := u.handler
	u.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (u *UserAgent) EmitConnecting() {
	u.Emit(transport.Event{Type: transport.EventConnecting})
}

func (u *UserAgent) EmitConnected() {
	u.mu.Lock()
	u.connected = true
	u.mu.Unlock()
	u.Emit(transport.Event{Type: transport.EventConnected})
}

func (u *UserAgent) EmitDisconnected() {
	u.mu.Lock()
	u.connected = false
	u.registered = false
	u.mu.Unlock()
	u.Emit(transport.Event{Type: transport.EventDisconnected})
}

func (u *UserAgent) EmitRegistered() {
	u.mu.Lock()
	u.connected = true
	u.registered = true
	u.mu.Unlock()
	u.Emit(transport.Event{Type: transport.EventRegistered})
}

func (u *UserAgent) EmitUnregistered() {
	u.mu.Lock()
	u.registered = false
	u.mu.Unlock()
	u.Emit(transport.Event{Type: transport.EventUnregistered})
}

func (u *UserAgent) EmitRegistrationFailed(cause string) {
	u.mu.Lock()
	u.registered = false
	u.mu.Unlock()
	u.Emit(transport.Event{Type: transport.EventRegistrationFailed, Cause: cause})
}

// Connect полный цикл подключения: connecting, connected, registered
func (u *UserAgent) Connect() {
	u.EmitConnecting()
	u.EmitConnected()
	u.EmitRegistered()
}

// Incoming имитирует входящий звонок
func (u *UserAgent) Incoming(user, displayName string) *Session {
	s := newSession(transport.DirectionIncoming, transport.Identity{User: user, DisplayName: displayName})
	u.mu.Lock()
	u.sessions = append(u.sessions, s)
	u.mu.Unlock()
	u.Emit(transport.Event{Type: transport.EventNewSession, Session: s})
	return s
}

// Session управляемая из теста сессия
type Session struct {
	mu         sync.Mutex
	id         string
	direction  transport.Direction
	remote     transport.Identity
	target     string
	callOpts   transport.CallOptions
	handlers   []transport.SessionHandler
	answered   bool
	terminated bool
	termOpts   transport.TerminateOptions
	answerErr  error
	termErr    error
}

func newSession(dir transport.Direction, remote transport.Identity) *Session {
	return &Session{id: uuid.NewString(), direction: dir, remote: remote}
}

func (s *Session) ID() string                         { return s.id }
func (s *Session) Direction() transport.Direction     { return s.direction }
func (s *Session) RemoteIdentity() transport.Identity { return s.remote }

// Target номер, переданный в Call
func (s *Session) Target() string { return s.target }

// CallOptions параметры, переданные в Call
func (s *Session) CallOptions() transport.CallOptions { return s.callOpts }

func (s *Session) OnEvent(h transport.SessionHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

func (s *Session) Answer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answerErr != nil {
		return s.answerErr
	}
	s.answered = true
	return nil
}

func (s *Session) Terminate(opts transport.TerminateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
	s.termOpts = opts
	return s.termErr
}

func (s *Session) SetAnswerError(err error) {
	s.mu.Lock()
	s.answerErr = err
	s.mu.Unlock()
}

func (s *Session) SetTerminateError(err error) {
	s.mu.Lock()
	s.termErr = err
	s.mu.Unlock()
}

func (s *Session) Answered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered
}

func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

func (s *Session) TerminateOptions() transport.TerminateOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termOpts
}

// Emit доставляет событие всем обработчикам сессии
func (s *Session) Emit(ev transport.SessionEvent) {
	s.mu.Lock()
	hs := make([]transport.SessionHandler, len(s.handlers))
	copy(hs, s.handlers)
	s.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (s *Session) Progress() { s.Emit(transport.SessionEvent{Type: transport.SessionProgress}) }
func (s *Session) Confirm()  { s.Emit(transport.SessionEvent{Type: transport.SessionConfirmed}) }
func (s *Session) End() {
	s.Emit(transport.SessionEvent{Type: transport.SessionEnded, Cause: "Terminated"})
}

func (s *Session) Fail(cause string) {
	s.Emit(transport.SessionEvent{Type: transport.SessionFailed, Cause: cause})
}
