package registry

import (
	"container/list"
	"context"
	"sync"

	"github.com/arzzra/web_phone/pkg/logger"
	"github.com/arzzra/web_phone/pkg/transport"
)

// Listener подписчик на события общего подключения. Любое поле может быть nil.
// Идентичность подписчика определяется указателем.
type Listener struct {
	OnConnecting         func()
	OnConnected          func()
	OnDisconnected       func()
	OnRegistered         func()
	OnUnregistered       func()
	OnRegistrationFailed func(cause string)
	OnNewSession         func(s transport.Session)
}

// Connection общее подключение: один транспорт на все менеджеры
// с одинаковым отпечатком конфигурации.
type Connection struct {
	mu          sync.Mutex
	ua          transport.UserAgent
	fingerprint string
	started     bool
	closed      bool
	refs        int

	// упорядоченное множество подписчиков
	listeners *list.List
	index     map[*Listener]*list.Element

	log     logger.StructuredLogger
	metrics *connMetrics
}

func newConnection(ua transport.UserAgent, fingerprint string, log logger.StructuredLogger, m *connMetrics) *Connection {
	c := &Connection{
		ua:          ua,
		fingerprint: fingerprint,
		listeners:   list.New(),
		index:       make(map[*Listener]*list.Element),
		log:         log,
		metrics:     m,
	}
	ua.OnEvent(c.dispatch)
	return c
}

// UA транспорт подключения
func (c *Connection) UA() transport.UserAgent { return c.ua }

func (c *Connection) Fingerprint() string { return c.fingerprint }

func (c *Connection) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Closed true после замены или освобождения подключения
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Refs количество владельцев подключения
func (c *Connection) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// AddListener добавляет подписчика в конец. Повторное добавление игнорируется.
func (c *Connection) AddListener(l *Listener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[l]; ok {
		return
	}
	c.index[l] = c.listeners.PushBack(l)
	c.metrics.listenerAdded()
}

// RemoveListener удаляет подписчика. Удаление отсутствующего подписчика ничего не делает.
func (c *Connection) RemoveListener(l *Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[l]
	if !ok {
		return
	}
	c.listeners.Remove(el)
	delete(c.index, l)
	if !c.closed {
		c.metrics.listenerRemoved()
	}
}

// ListenerCount количество подписчиков
func (c *Connection) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listeners.Len()
}

// snapshot подписчики в порядке регистрации. Подписчик, удаленный во время
// рассылки, больше ничего не получает.
func (c *Connection) snapshot() []*Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.listenersLocked()
}

func (c *Connection) listenersLocked() []*Listener {
	out := make([]*Listener, 0, c.listeners.Len())
	for el := c.listeners.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Listener))
	}
	return out
}

func (c *Connection) stillListening(l *Listener) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	_, ok := c.index[l]
	return ok
}

func (c *Connection) dispatch(ev transport.Event) {
	listeners := c.snapshot()
	c.log.Debug(context.Background(), "transport event",
		logger.String("event", ev.Type.String()),
		logger.Int("listeners", len(listeners)))

	for _, l := range listeners {
		if !c.stillListening(l) {
			continue
		}
		switch ev.Type {
		case transport.EventConnecting:
			if l.OnConnecting != nil {
				l.OnConnecting()
			}
		case transport.EventConnected:
			if l.OnConnected != nil {
				l.OnConnected()
			}
		case transport.EventDisconnected:
			if l.OnDisconnected != nil {
				l.OnDisconnected()
			}
		case transport.EventRegistered:
			if l.OnRegistered != nil {
				l.OnRegistered()
			}
		case transport.EventUnregistered:
			if l.OnUnregistered != nil {
				l.OnUnregistered()
			}
		case transport.EventRegistrationFailed:
			if l.OnRegistrationFailed != nil {
				l.OnRegistrationFailed(ev.Cause)
			}
		case transport.EventNewSession:
			if l.OnNewSession != nil && ev.Session != nil {
				l.OnNewSession(ev.Session)
			}
		}
	}
}
