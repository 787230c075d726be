// Package phone управляет жизненным циклом звонка поверх общего SIP подключения.
//
// Manager принимает или отклоняет новые звонки в зависимости от регистрации,
// ведет статус звонка (disconnected, progress, confirmed, failed, ended,
// ringing), считает длительность и пишет историю. Несколько менеджеров с
// одной конфигурацией разделяют одно подключение через registry.Registry.
//
// Пример:
//
//	m := phone.NewManager(cfg, phone.Events{
//		OnStatusChange: func(s phone.Status) { fmt.Println(s) },
//	}, nil)
//	m.Initialize()
//	defer m.Destroy()
//	_ = m.StartCall("5551234")
package phone

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arzzra/web_phone/pkg/history"
	"github.com/arzzra/web_phone/pkg/logger"
	"github.com/arzzra/web_phone/pkg/registry"
	"github.com/arzzra/web_phone/pkg/signal"
	"github.com/arzzra/web_phone/pkg/transport"
)

// Manager координатор звонков одного потребителя
type Manager struct {
	mu sync.Mutex

	cfg     transport.Config
	opts    *Options
	events  Events
	log     logger.StructuredLogger
	metrics *Metrics

	sm      *callStateMachine
	history *history.Store

	callNumber  string
	duration    int
	ready       bool
	connStatus  ConnectionStatus
	confirmedAt time.Time

	conn      *registry.Connection
	listener  *registry.Listener
	session   transport.Session
	direction transport.Direction
	// attempt номер текущей попытки; таймеры и события старых попыток игнорируются
	attempt uint64
	ticker  chan struct{}
	revert  *time.Timer

	pendingNumber string
	cancelSignal  func()

	initialized bool
	destroyed   bool
}

// NewManager создает менеджер. opts == nil означает DefaultOptions().
func NewManager(cfg transport.Config, events Events, opts *Options) *Manager {
	if opts == nil {
		opts = DefaultOptions()
	} else {
		cp := *opts
		opts = &cp
	}
	_ = opts.Validate()

	log := opts.Logger.WithComponent("phone").WithFields(logger.String("identity", cfg.IdentityURI))
	m := &Manager{
		cfg:     cfg,
		opts:    opts,
		events:  events,
		log:     log,
		metrics: opts.Metrics,
		sm:      newCallStateMachine(),
		history: history.NewStore(opts.Storage, history.Config{
			Key:      opts.HistoryKey,
			MaxItems: opts.MaxHistoryItems,
			Persist:  !opts.DisablePersist,
			Logger:   opts.Logger,
		}),
		connStatus: ConnectionConnecting,
	}
	m.listener = m.newListener()
	return m
}

// notifications колбэки, собранные под блокировкой и вызываемые после нее
type notifications []func()

func (n *notifications) add(f func()) {
	if f != nil {
		*n = append(*n, f)
	}
}

func (n notifications) fire() {
	for _, f := range n {
		f()
	}
}

// Initialize подключается к общему транспорту, загружает историю и
// подписывается на внешний запрос звонка. Повторный вызов игнорируется.
func (m *Manager) Initialize() {
	ctx := context.Background()

	m.mu.Lock()
	if m.initialized || m.destroyed {
		m.mu.Unlock()
		m.log.Warn(ctx, "initialize called twice, ignoring")
		return
	}
	m.initialized = true
	m.mu.Unlock()

	entries := m.history.Load()
	m.log.Debug(ctx, "history loaded", logger.Int("entries", len(entries)))

	cancel := m.opts.Signals.Subscribe(signal.StartCallEvent, m.handleStartCallSignal)
	m.mu.Lock()
	m.cancelSignal = cancel
	m.mu.Unlock()

	m.connect()
}

// connect получает подключение из реестра и запускает его
func (m *Manager) connect() bool {
	ctx := context.Background()

	if err := m.cfg.Validate(); err != nil {
		m.connectionFailed(errTransport("validate", err))
		return false
	}
	conn, err := m.opts.Registry.Acquire(m.cfg)
	if err != nil {
		m.connectionFailed(errTransport("acquire", err))
		return false
	}

	var n notifications
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		m.opts.Registry.Release(conn)
		return false
	}
	m.conn = conn
	ua := conn.UA()
	switch {
	case ua.IsRegistered():
		m.ready = true
		m.setConnStatusLocked(&n, ConnectionConnected)
	case ua.IsConnected():
		m.setConnStatusLocked(&n, ConnectionConnected)
	}
	m.mu.Unlock()
	n.fire()

	conn.AddListener(m.listener)
	if err := m.opts.Registry.Start(conn); err != nil {
		m.connectionFailed(errTransport("start", err))
		return false
	}
	m.log.Info(ctx, "phone initialized", logger.String("transport", m.cfg.TransportAddress))
	return true
}

func (m *Manager) connectionFailed(err *PhoneError) {
	m.log.LogError(context.Background(), err, "transport initialization failed")

	var n notifications
	m.mu.Lock()
	m.ready = false
	m.setConnStatusLocked(&n, ConnectionFailed)
	m.mu.Unlock()
	n.fire()
}

// Destroy отписывается от подключения и внешних событий, останавливает
// таймеры. Активный звонок не завершается. Безопасен до Initialize и повторно.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if !m.initialized || m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.stopTickerLocked()
	m.stopRevertLocked()
	m.pendingNumber = ""
	cancel := m.cancelSignal
	m.cancelSignal = nil
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.RemoveListener(m.listener)
		m.opts.Registry.Release(conn)
	}
	m.log.Info(context.Background(), "phone destroyed")
}

// State снимок текущего состояния
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Status:              m.sm.Current(),
		CallNumber:          m.callNumber,
		CallHistory:         m.history.Entries(),
		CurrentCallDuration: m.duration,
		IsReady:             m.ready,
		ConnectionStatus:    m.connStatus,
	}
}

// UA транспорт общего подключения или nil до Initialize
func (m *Manager) UA() transport.UserAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	return m.conn.UA()
}

// SetCallNumber обновляет набираемый номер
func (m *Manager) SetCallNumber(number string) {
	m.mu.Lock()
	m.callNumber = number
	m.mu.Unlock()
}

// SetEvents накладывает непустые обработчики поверх текущих
func (m *Manager) SetEvents(events Events) {
	m.mu.Lock()
	m.events = m.events.merge(events)
	m.mu.Unlock()
}

// ClearHistory очищает историю в памяти и в хранилище
func (m *Manager) ClearHistory() {
	m.history.Clear()

	m.mu.Lock()
	cb := m.events.OnHistoryUpdate
	m.mu.Unlock()
	if cb != nil {
		cb([]history.Entry{})
	}
}

// StartCall начинает исходящий звонок. Ошибка означает отказ: статус не
// меняется, транспорт не вызывается. Сбой самого транспорта приходит
// статусом failed, а не ошибкой.
func (m *Manager) StartCall(number string) error {
	ctx := context.Background()
	number = strings.TrimSpace(number)

	var n notifications
	m.mu.Lock()
	if err := m.admitLocked(number); err != nil {
		m.mu.Unlock()
		m.metrics.callRejected(err)
		m.log.Warn(ctx, "call refused",
			logger.String("number", number),
			logger.String("reason", err.Code))
		return err
	}

	if _, err := m.sm.Fire(evCall); err != nil {
		status := m.sm.Current()
		m.mu.Unlock()
		perr := errCallInProgress(status, number).WithCause(err)
		m.metrics.callRejected(perr)
		return perr
	}
	m.stopRevertLocked()
	m.attempt++
	attempt := m.attempt
	m.direction = transport.DirectionOutgoing
	m.callNumber = number
	m.confirmedAt = time.Time{}
	m.duration = 0
	ua := m.conn.UA()

	if cb := m.events.OnCallStart; cb != nil {
		n.add(func() { cb(number) })
	}
	m.statusChangedLocked(&n, StatusProgress)
	m.mu.Unlock()

	m.metrics.callStarted()
	m.log.Info(ctx, "starting call", logger.String("number", number))
	n.fire()

	s, err := ua.Call(number, transport.CallOptions{
		Handler: m.sessionHandler(attempt, number),
		Audio:   true,
	})
	if err != nil {
		m.onFailed(attempt, number, err.Error())
		return nil
	}

	m.mu.Lock()
	// сессия могла завершиться синхронно внутри Call
	if m.attempt == attempt && !m.destroyed && !m.sm.Current().IsIdle() {
		m.session = s
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) admitLocked(number string) *PhoneError {
	switch {
	case !m.initialized || m.destroyed || m.conn == nil:
		return ErrNotInitialized
	case number == "":
		return ErrEmptyNumber
	case !m.ready:
		return errNotReady(m.connStatus)
	case m.session != nil || !m.sm.Current().IsIdle():
		return errCallInProgress(m.sm.Current(), number)
	}
	return nil
}

// EndCall просит транспорт завершить текущую сессию. Статус меняется
// последующим событием ended или failed.
func (m *Manager) EndCall() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return
	}
	if err := s.Terminate(transport.TerminateOptions{}); err != nil {
		m.log.LogError(context.Background(), errTransport("terminate", err), "failed to terminate session")
	}
}

// sessionHandler обработчик событий сессии одной попытки
func (m *Manager) sessionHandler(attempt uint64, number string) transport.SessionHandler {
	return func(ev transport.SessionEvent) {
		switch ev.Type {
		case transport.SessionProgress:
			m.onProgress(attempt)
		case transport.SessionConfirmed:
			m.onConfirmed(attempt)
		case transport.SessionEnded:
			m.onEnded(attempt, number)
		case transport.SessionFailed:
			m.onFailed(attempt, number, ev.Cause)
		}
	}
}

// currentLocked true, если событие относится к текущей попытке
func (m *Manager) currentLocked(attempt uint64) bool {
	return !m.destroyed && m.attempt == attempt
}

func (m *Manager) onProgress(attempt uint64) {
	var n notifications
	m.mu.Lock()
	if !m.currentLocked(attempt) {
		m.mu.Unlock()
		return
	}
	changed, err := m.sm.Fire(evProgress)
	if err == nil && changed {
		m.statusChangedLocked(&n, StatusProgress)
	}
	m.mu.Unlock()
	n.fire()
}

func (m *Manager) onConfirmed(attempt uint64) {
	ctx := context.Background()
	var n notifications
	m.mu.Lock()
	if !m.currentLocked(attempt) {
		m.mu.Unlock()
		return
	}
	if _, err := m.sm.Fire(evConfirm); err != nil {
		status := m.sm.Current()
		m.mu.Unlock()
		m.log.Debug(ctx, "confirmed event ignored", logger.String("status", string(status)))
		return
	}
	m.confirmedAt = m.opts.Clock()
	m.duration = 0
	m.statusChangedLocked(&n, StatusConfirmed)
	m.startTickerLocked(attempt)
	m.mu.Unlock()

	m.log.Info(ctx, "call confirmed")
	n.fire()
}

func (m *Manager) onEnded(attempt uint64, number string) {
	ctx := context.Background()
	var n notifications
	m.mu.Lock()
	if !m.currentLocked(attempt) {
		m.mu.Unlock()
		return
	}
	if m.sm.Current() == StatusRinging {
		// BYE до ACK: входящий звонок так и не установился
		m.failLocked(ctx, &n, attempt, number, "ended before confirm")
		return
	}
	if _, err := m.sm.Fire(evEnd); err != nil {
		m.mu.Unlock()
		m.log.Debug(ctx, "ended event ignored", logger.Err(err))
		return
	}

	duration := 0
	if !m.confirmedAt.IsZero() {
		duration = int(m.opts.Clock().Sub(m.confirmedAt) / time.Second)
		if duration < 0 {
			duration = 0
		}
	}
	m.stopTickerLocked()
	m.duration = 0
	m.session = nil

	m.statusChangedLocked(&n, StatusEnded)
	m.recordLocked(&n, number, duration, history.StatusCompleted)
	m.scheduleRevertLocked(attempt, m.opts.EndedRevertDelay)
	m.mu.Unlock()

	m.metrics.callFinished(history.StatusCompleted, duration)
	m.log.Info(ctx, "call ended", logger.String("number", number), logger.Int("duration", duration))
	n.fire()
}

func (m *Manager) onFailed(attempt uint64, number, cause string) {
	var n notifications
	m.mu.Lock()
	if !m.currentLocked(attempt) {
		m.mu.Unlock()
		return
	}
	m.failLocked(context.Background(), &n, attempt, number, cause)
}

// failLocked переводит попытку в failed и снимает блокировку.
// Сорвавшийся входящий звонок записывается как пропущенный.
func (m *Manager) failLocked(ctx context.Context, n *notifications, attempt uint64, number, cause string) {
	wasRinging := m.sm.Current() == StatusRinging
	if _, err := m.sm.Fire(evFail); err != nil {
		m.mu.Unlock()
		m.log.Debug(ctx, "failed event ignored", logger.String("cause", cause), logger.Err(err))
		return
	}

	outcome := history.StatusFailed
	if wasRinging {
		outcome = history.StatusMissed
	}
	m.stopTickerLocked()
	m.duration = 0
	m.session = nil

	m.statusChangedLocked(n, StatusFailed)
	m.recordLocked(n, number, 0, outcome)
	m.scheduleRevertLocked(attempt, m.opts.FailedRevertDelay)
	m.mu.Unlock()

	m.metrics.callFinished(outcome, 0)
	m.log.LogError(ctx, errCallFailed(number, cause), "call failed")
	n.fire()
}

// recordLocked пишет запись истории и готовит OnHistoryUpdate и OnCallEnd
func (m *Manager) recordLocked(n *notifications, number string, duration int, outcome history.Status) {
	entries := m.history.Append(history.Entry{
		ID:        m.opts.IDGenerator(),
		Number:    number,
		Timestamp: m.opts.Clock().UnixMilli(),
		Duration:  duration,
		Status:    outcome,
	})
	if cb := m.events.OnHistoryUpdate; cb != nil {
		n.add(func() { cb(entries) })
	}
	if cb := m.events.OnCallEnd; cb != nil {
		n.add(func() { cb(number, duration, outcome) })
	}
}

func (m *Manager) statusChangedLocked(n *notifications, status Status) {
	m.metrics.transition(status)
	if cb := m.events.OnStatusChange; cb != nil {
		n.add(func() { cb(status) })
	}
}

func (m *Manager) setConnStatusLocked(n *notifications, status ConnectionStatus) {
	m.connStatus = status
	if cb := m.events.OnConnectionChange; cb != nil {
		n.add(func() { cb(status) })
	}
}

// scheduleRevertLocked через delay возвращает статус в disconnected,
// если за это время не началась новая попытка
func (m *Manager) scheduleRevertLocked(attempt uint64, delay time.Duration) {
	m.stopRevertLocked()
	m.revert = time.AfterFunc(delay, func() { m.revertToIdle(attempt) })
}

func (m *Manager) stopRevertLocked() {
	if m.revert != nil {
		m.revert.Stop()
		m.revert = nil
	}
}

func (m *Manager) revertToIdle(attempt uint64) {
	var n notifications
	m.mu.Lock()
	if !m.currentLocked(attempt) {
		m.mu.Unlock()
		return
	}
	status := m.sm.Current()
	if status != StatusFailed && status != StatusEnded {
		m.mu.Unlock()
		return
	}
	if _, err := m.sm.Fire(evReset); err != nil {
		m.mu.Unlock()
		return
	}
	m.revert = nil
	m.confirmedAt = time.Time{}
	m.duration = 0
	m.statusChangedLocked(&n, StatusDisconnected)
	m.mu.Unlock()
	n.fire()
}

// startTickerLocked каждые DurationInterval пересчитывает длительность
func (m *Manager) startTickerLocked(attempt uint64) {
	m.stopTickerLocked()
	stop := make(chan struct{})
	m.ticker = stop
	interval := m.opts.DurationInterval

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				m.tick(attempt)
			}
		}
	}()
}

func (m *Manager) stopTickerLocked() {
	if m.ticker != nil {
		close(m.ticker)
		m.ticker = nil
	}
}

func (m *Manager) tick(attempt uint64) {
	m.mu.Lock()
	if !m.currentLocked(attempt) || m.sm.Current() != StatusConfirmed || m.confirmedAt.IsZero() {
		m.mu.Unlock()
		return
	}
	seconds := int(m.opts.Clock().Sub(m.confirmedAt) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	m.duration = seconds
	cb := m.events.OnDurationUpdate
	m.mu.Unlock()

	if cb != nil {
		cb(seconds)
	}
}
