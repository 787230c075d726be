package phone

import (
	"context"
	"strings"
	"time"

	"github.com/arzzra/web_phone/pkg/history"
	"github.com/arzzra/web_phone/pkg/logger"
	"github.com/arzzra/web_phone/pkg/registry"
	"github.com/arzzra/web_phone/pkg/signal"
	"github.com/arzzra/web_phone/pkg/transport"
)

// newListener подписчик менеджера на события общего подключения
func (m *Manager) newListener() *registry.Listener {
	return &registry.Listener{
		OnConnecting: func() {
			m.onConnectionEvent("connecting", func(n *notifications) {
				m.setConnStatusLocked(n, ConnectionConnecting)
				n.add(m.events.OnConnecting)
			})
		},
		OnConnected: func() {
			m.onConnectionEvent("connected", func(n *notifications) {
				m.setConnStatusLocked(n, ConnectionConnected)
				n.add(m.events.OnConnected)
			})
		},
		OnDisconnected: func() {
			m.onConnectionEvent("disconnected", func(n *notifications) {
				m.ready = false
				m.setConnStatusLocked(n, ConnectionDisconnected)
				n.add(m.events.OnDisconnected)
			})
		},
		OnRegistered: m.onRegistered,
		OnUnregistered: func() {
			m.onConnectionEvent("unregistered", func(n *notifications) {
				m.ready = false
				n.add(m.events.OnUnregistered)
			})
		},
		OnRegistrationFailed: func(cause string) {
			m.log.Warn(context.Background(), "registration failed", logger.String("cause", cause))
			m.onConnectionEvent("registrationFailed", func(n *notifications) {
				m.ready = false
				m.setConnStatusLocked(n, ConnectionFailed)
				if m.pendingNumber != "" {
					m.log.Info(context.Background(), "dropping pending call", logger.String("number", m.pendingNumber))
					m.pendingNumber = ""
				}
				if cb := m.events.OnRegistrationFailed; cb != nil {
					n.add(func() { cb(cause) })
				}
			})
		},
		OnNewSession: m.onNewSession,
	}
}

// onConnectionEvent применяет изменение под блокировкой и вызывает колбэки
func (m *Manager) onConnectionEvent(event string, apply func(n *notifications)) {
	var n notifications
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	apply(&n)
	m.mu.Unlock()

	m.metrics.connectionEvent(event)
	m.log.Debug(context.Background(), "connection event", logger.String("event", event))
	n.fire()
}

func (m *Manager) onRegistered() {
	var pending string
	m.onConnectionEvent("registered", func(n *notifications) {
		m.ready = true
		m.setConnStatusLocked(n, ConnectionConnected)
		n.add(m.events.OnRegistered)
		pending = m.pendingNumber
		m.pendingNumber = ""
	})
	if pending != "" {
		m.log.Info(context.Background(), "registered, dialing pending call", logger.String("number", pending))
		_ = m.StartCall(pending)
	}
}

// handleStartCallSignal внешний запрос звонка. Выполняется только в
// disconnected; без регистрации номер откладывается до события registered.
func (m *Manager) handleStartCallSignal(detail any) {
	ctx := context.Background()

	var number string
	switch d := detail.(type) {
	case signal.StartCallDetail:
		number = d.Number
	case *signal.StartCallDetail:
		if d != nil {
			number = d.Number
		}
	case string:
		number = d
	}
	number = strings.TrimSpace(number)
	if number == "" {
		m.log.Warn(ctx, "start call signal without number")
		return
	}

	m.mu.Lock()
	if m.destroyed || m.sm.Current() != StatusDisconnected || m.session != nil {
		status := m.sm.Current()
		m.mu.Unlock()
		m.log.Debug(ctx, "start call signal ignored", logger.String("status", string(status)))
		return
	}
	if m.ready && m.conn != nil {
		m.mu.Unlock()
		_ = m.StartCall(number)
		return
	}
	m.pendingNumber = number
	m.callNumber = number
	needConnect := m.conn == nil
	m.mu.Unlock()

	m.log.Info(ctx, "not registered yet, call deferred", logger.String("number", number))
	if needConnect {
		m.connect()
	}
}

// onNewSession входящий звонок. Исходящие сессии менеджер получает из Call.
func (m *Manager) onNewSession(s transport.Session) {
	if s.Direction() != transport.DirectionIncoming {
		return
	}
	ctx := context.Background()
	remote := s.RemoteIdentity()

	var n notifications
	m.mu.Lock()
	if m.destroyed || m.session != nil || !m.sm.Can(evRing) {
		status := m.sm.Current()
		m.mu.Unlock()
		m.log.Info(ctx, "incoming call while busy, leaving it to other consumers",
			logger.String("from", remote.User),
			logger.String("status", string(status)))
		return
	}
	if _, err := m.sm.Fire(evRing); err != nil {
		m.mu.Unlock()
		return
	}
	m.stopRevertLocked()
	m.attempt++
	attempt := m.attempt
	m.session = s
	m.direction = transport.DirectionIncoming
	m.callNumber = remote.User
	m.confirmedAt = time.Time{}
	m.duration = 0

	m.statusChangedLocked(&n, StatusRinging)
	if cb := m.events.OnIncomingCall; cb != nil {
		n.add(func() { cb(remote.User, remote.DisplayName) })
	}
	m.mu.Unlock()

	s.OnEvent(m.sessionHandler(attempt, remote.User))
	m.log.Info(ctx, "incoming call", logger.String("from", remote.User), logger.String("name", remote.DisplayName))
	n.fire()
}

// AnswerCall принимает входящий звонок в статусе ringing
func (m *Manager) AnswerCall() error {
	ctx := context.Background()

	m.mu.Lock()
	if m.destroyed || m.sm.Current() != StatusRinging || m.session == nil {
		m.mu.Unlock()
		return ErrNoIncomingCall
	}
	s := m.session
	attempt := m.attempt
	number := m.callNumber
	startCb := m.events.OnCallStart
	m.mu.Unlock()

	if err := s.Answer(); err != nil {
		m.onFailed(attempt, number, err.Error())
		return nil
	}
	m.metrics.callStarted()
	m.log.Info(ctx, "incoming call answered", logger.String("from", number))
	if startCb != nil {
		startCb(number)
	}
	return nil
}

// RejectCall отклоняет входящий звонок (603 Decline) и записывает его как пропущенный
func (m *Manager) RejectCall() error {
	ctx := context.Background()
	var n notifications

	m.mu.Lock()
	if m.destroyed || m.sm.Current() != StatusRinging || m.session == nil {
		m.mu.Unlock()
		return ErrNoIncomingCall
	}
	if _, err := m.sm.Fire(evReset); err != nil {
		m.mu.Unlock()
		return ErrNoIncomingCall
	}
	s := m.session
	m.session = nil
	number := m.callNumber
	m.statusChangedLocked(&n, StatusDisconnected)
	m.recordLocked(&n, number, 0, history.StatusMissed)
	m.mu.Unlock()

	if err := s.Terminate(transport.TerminateOptions{StatusCode: 603, Reason: "Decline"}); err != nil {
		m.log.LogError(ctx, errTransport("reject", err), "failed to reject incoming call")
	}
	m.metrics.callFinished(history.StatusMissed, 0)
	m.log.Info(ctx, "incoming call rejected", logger.String("from", number))
	n.fire()
	return nil
}
