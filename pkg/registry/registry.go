// Package registry держит одно общее подключение к SIP серверу на процесс.
//
// Менеджеры звонков с одинаковым отпечатком конфигурации
// (адрес транспорта, идентичность, пользователь аутентификации) получают
// один и тот же транспорт. Конфигурация с другим отпечатком заменяет
// подключение: старый транспорт останавливается, его подписчики больше
// не получают событий.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arzzra/web_phone/pkg/logger"
	"github.com/arzzra/web_phone/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoFactory реестр создан без фабрики транспорта
var ErrNoFactory = errors.New("registry: no transport factory configured")

// ErrForeignConnection подключение создано другим реестром
var ErrForeignConnection = errors.New("registry: connection does not belong to this registry")

// Registry слот не более чем для одного подключения
type Registry struct {
	mu      sync.Mutex
	factory transport.Factory
	current *Connection
	log     logger.StructuredLogger
	metrics *connMetrics
}

// Option настройка реестра
type Option func(*Registry)

func WithLogger(l logger.StructuredLogger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l.WithComponent("registry")
		}
	}
}

// WithMetrics регистрирует метрики реестра в reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		r.metrics = newConnMetrics(reg)
	}
}

// New создает реестр с фабрикой транспорта
func New(factory transport.Factory, opts ...Option) *Registry {
	r := &Registry{
		factory: factory,
		log:     logger.Default().WithComponent("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire возвращает подключение для cfg. При совпадении отпечатка
// возвращается текущее подключение, транспорт не пересоздается.
// Подписчики замененного подключения получают OnDisconnected.
func (r *Registry) Acquire(cfg transport.Config) (*Connection, error) {
	r.mu.Lock()
	conn, dropped, err := r.acquireLocked(cfg)
	r.mu.Unlock()

	notifyDisconnected(dropped)
	return conn, err
}

func (r *Registry) acquireLocked(cfg transport.Config) (*Connection, []*Listener, error) {
	ctx := context.Background()
	fp := cfg.Fingerprint()

	if cur := r.current; cur != nil && cur.fingerprint == fp {
		cur.mu.Lock()
		cur.refs++
		cur.mu.Unlock()
		return cur, nil, nil
	}

	var dropped []*Listener
	if old := r.current; old != nil {
		r.log.Info(ctx, "connection config changed, replacing transport",
			logger.String("old", old.fingerprint),
			logger.String("new", fp))
		r.current = nil
		dropped = r.teardown(old)
		r.metrics.replaced()
	}

	if r.factory == nil {
		return nil, dropped, ErrNoFactory
	}
	ua, err := r.factory(cfg)
	if err != nil {
		return nil, dropped, fmt.Errorf("registry: create transport: %w", err)
	}

	conn := newConnection(ua, fp, r.log, r.metrics)
	conn.refs = 1
	r.current = conn
	r.metrics.created()
	r.log.Debug(ctx, "transport created", logger.String("fingerprint", fp))
	return conn, dropped, nil
}

// Start запускает транспорт подключения один раз
func (r *Registry) Start(conn *Connection) error {
	if conn == nil {
		return ErrForeignConnection
	}
	conn.mu.Lock()
	if conn.started {
		conn.mu.Unlock()
		return nil
	}
	if conn.closed {
		conn.mu.Unlock()
		return fmt.Errorf("registry: start closed connection %s", conn.fingerprint)
	}
	conn.mu.Unlock()

	// Start транспорта может синхронно генерировать события, поэтому
	// вызывается без блокировки подключения
	if err := conn.ua.Start(); err != nil {
		return fmt.Errorf("registry: start transport: %w", err)
	}

	conn.mu.Lock()
	conn.started = true
	conn.mu.Unlock()
	return nil
}

// Release освобождает подключение. Последний владелец останавливает транспорт.
// Освобождение уже замененного подключения ничего не делает.
func (r *Registry) Release(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	if r.current != conn {
		r.mu.Unlock()
		return
	}
	conn.mu.Lock()
	conn.refs--
	left := conn.refs
	conn.mu.Unlock()
	if left > 0 {
		r.mu.Unlock()
		return
	}

	r.current = nil
	dropped := r.teardown(conn)
	r.mu.Unlock()

	notifyDisconnected(dropped)
	r.log.Debug(context.Background(), "last owner released connection", logger.String("fingerprint", conn.fingerprint))
}

// Current текущее подключение или nil
func (r *Registry) Current() *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// teardown закрывает подключение и останавливает транспорт. Ошибка
// остановки только логируется. Возвращает подписчиков, оставшихся на
// подключении; их уведомляют после снятия блокировки реестра.
func (r *Registry) teardown(conn *Connection) []*Listener {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return nil
	}
	dropped := conn.listenersLocked()
	conn.closed = true
	conn.mu.Unlock()
	r.metrics.listenersDropped(len(dropped))

	if err := conn.ua.Stop(); err != nil {
		r.log.Debug(context.Background(), "transport stop failed, ignoring",
			logger.String("fingerprint", conn.fingerprint), logger.Err(err))
	}
	return dropped
}

func notifyDisconnected(listeners []*Listener) {
	for _, l := range listeners {
		if l.OnDisconnected != nil {
			l.OnDisconnected()
		}
	}
}

var (
	defaultMu       sync.Mutex
	defaultRegistry = New(nil)
)

// Default общий для процесса реестр. До SetDefault у него нет фабрики
// транспорта и Acquire возвращает ErrNoFactory.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultRegistry
}

// SetDefault заменяет общий реестр
func SetDefault(r *Registry) {
	if r == nil {
		return
	}
	defaultMu.Lock()
	defaultRegistry = r
	defaultMu.Unlock()
}
