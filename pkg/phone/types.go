package phone

import (
	"github.com/arzzra/web_phone/pkg/history"
)

// Status состояние звонка
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusProgress     Status = "progress"
	StatusConfirmed    Status = "confirmed"
	StatusFailed       Status = "failed"
	StatusEnded        Status = "ended"
	// StatusRinging входящий звонок ожидает ответа
	StatusRinging Status = "ringing"
)

// IsIdle true, если можно начать новый звонок
func (s Status) IsIdle() bool {
	return s == StatusDisconnected || s == StatusFailed || s == StatusEnded
}

// ConnectionStatus состояние подключения к серверу
type ConnectionStatus string

const (
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionFailed       ConnectionStatus = "failed"
)

// State снимок состояния менеджера
type State struct {
	Status              Status
	CallNumber          string
	CallHistory         []history.Entry
	CurrentCallDuration int
	IsReady             bool
	ConnectionStatus    ConnectionStatus
}

// Events обработчики событий менеджера. Любое поле может быть nil.
// Обработчики вызываются без внутренних блокировок, из них можно
// вызывать методы менеджера.
type Events struct {
	OnConnecting         func()
	OnConnected          func()
	OnDisconnected       func()
	OnRegistered         func()
	OnUnregistered       func()
	OnRegistrationFailed func(cause string)

	OnStatusChange     func(status Status)
	OnConnectionChange func(status ConnectionStatus)

	OnCallStart      func(number string)
	OnCallEnd        func(number string, duration int, outcome history.Status)
	OnDurationUpdate func(seconds int)
	OnHistoryUpdate  func(entries []history.Entry)

	OnIncomingCall func(number, displayName string)
}

// merge накладывает непустые обработчики other поверх e
func (e Events) merge(other Events) Events {
	if other.OnConnecting != nil {
		e.OnConnecting = other.OnConnecting
	}
	if other.OnConnected != nil {
		e.OnConnected = other.OnConnected
	}
	if other.OnDisconnected != nil {
		e.OnDisconnected = other.OnDisconnected
	}
	if other.OnRegistered != nil {
		e.OnRegistered = other.OnRegistered
	}
	if other.OnUnregistered != nil {
		e.OnUnregistered = other.OnUnregistered
	}
	if other.OnRegistrationFailed != nil {
		e.OnRegistrationFailed = other.OnRegistrationFailed
	}
	if other.OnStatusChange != nil {
		e.OnStatusChange = other.OnStatusChange
	}
	if other.OnConnectionChange != nil {
		e.OnConnectionChange = other.OnConnectionChange
	}
	if other.OnCallStart != nil {
		e.OnCallStart = other.OnCallStart
	}
	if other.OnCallEnd != nil {
		e.OnCallEnd = other.OnCallEnd
	}
	if other.OnDurationUpdate != nil {
		e.OnDurationUpdate = other.OnDurationUpdate
	}
	if other.OnHistoryUpdate != nil {
		e.OnHistoryUpdate = other.OnHistoryUpdate
	}
	if other.OnIncomingCall != nil {
		e.OnIncomingCall = other.OnIncomingCall
	}
	return e
}
