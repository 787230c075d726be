// Package signal именованные события процесса: внешние компоненты просят
// менеджер позвонить, не имея ссылки на него.
package signal

import (
	"container/list"
	"sync"
)

// StartCallEvent имя события "позвонить на номер"
const StartCallEvent = "StartCallEvent"

// StartCallDetail данные события StartCallEvent
type StartCallDetail struct {
	Number string
}

// Handler обработчик события
type Handler func(detail any)

// Hub шина именованных событий
type Hub struct {
	mu   sync.Mutex
	subs map[string]*list.List
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*list.List)}
}

// Subscribe подписывает h на событие name. Возвращаемая функция отменяет
// подписку, повторный вызов безопасен.
func (h *Hub) Subscribe(name string, fn Handler) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	l, ok := h.subs[name]
	if !ok {
		l = list.New()
		h.subs[name] = l
	}
	el := l.PushBack(fn)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			l.Remove(el)
			if l.Len() == 0 && h.subs[name] == l {
				delete(h.subs, name)
			}
			h.mu.Unlock()
		})
	}
}

// Emit доставляет detail всем подписчикам name и возвращает их количество
func (h *Hub) Emit(name string, detail any) int {
	h.mu.Lock()
	var handlers []Handler
	if l, ok := h.subs[name]; ok {
		for el := l.Front(); el != nil; el = el.Next() {
			handlers = append(handlers, el.Value.(Handler))
		}
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(detail)
	}
	return len(handlers)
}

// RequestStartCall генерирует StartCallEvent
func (h *Hub) RequestStartCall(number string) int {
	return h.Emit(StartCallEvent, StartCallDetail{Number: number})
}

var defaultHub = NewHub()

// Default общая шина процесса
func Default() *Hub {
	return defaultHub
}
