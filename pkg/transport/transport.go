// Package transport описывает возможности SIP/WebRTC транспорта, которыми
// пользуется менеджер звонков: регистрация, исходящие и входящие сессии.
//
// Пакет содержит только контракты. Реализация поверх sipgo находится в
// pkg/sipua, тестовый двойник в pkg/transport/mockTransport.
package transport

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig неполная конфигурация подключения
var ErrInvalidConfig = errors.New("transport: invalid connection config")

// Config параметры подключения к SIP серверу
type Config struct {
	// TransportAddress адрес сигнального транспорта (wss://host:port, udp://host:port)
	TransportAddress string `mapstructure:"transport_address" json:"transportAddress"`
	// IdentityURI SIP идентичность пользователя (sip:user@domain)
	IdentityURI string `mapstructure:"identity_uri" json:"identityUri"`
	// CredentialSecret пароль для digest аутентификации
	CredentialSecret string `mapstructure:"password" json:"-"`
	// RegistrarAddress адрес регистратора, по умолчанию домен из IdentityURI
	RegistrarAddress string `mapstructure:"registrar" json:"registrarAddress"`
	DisplayName      string `mapstructure:"display_name" json:"displayName"`
	// AuthUser имя для аутентификации, если отличается от пользователя в IdentityURI
	AuthUser string `mapstructure:"auth_user" json:"authUser"`
}

// Fingerprint идентификатор конфигурации: два конфига с одинаковым
// отпечатком разделяют одно подключение.
func (c Config) Fingerprint() string {
	return c.TransportAddress + "|" + c.IdentityURI + "|" + c.AuthUser
}

// Validate проверяет обязательные поля
func (c Config) Validate() error {
	if strings.TrimSpace(c.TransportAddress) == "" {
		return fmt.Errorf("%w: transport address is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.IdentityURI) == "" {
		return fmt.Errorf("%w: identity uri is required", ErrInvalidConfig)
	}
	return nil
}

// EventType тип события транспорта
type EventType int

const (
	EventConnecting EventType = iota
	EventConnected
	EventDisconnected
	EventRegistered
	EventUnregistered
	EventRegistrationFailed
	EventNewSession
)

var eventTypeNames = map[EventType]string{
	EventConnecting:         "connecting",
	EventConnected:          "connected",
	EventDisconnected:       "disconnected",
	EventRegistered:         "registered",
	EventUnregistered:       "unregistered",
	EventRegistrationFailed: "registrationFailed",
	EventNewSession:         "newSession",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event событие транспорта. Cause заполняется для EventRegistrationFailed,
// Session для EventNewSession.
type Event struct {
	Type    EventType
	Cause   string
	Session Session
}

// Direction направление сессии
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
)

func (d Direction) String() string {
	if d == DirectionIncoming {
		return "incoming"
	}
	return "outgoing"
}

// SessionEventType тип события сессии
type SessionEventType int

const (
	SessionProgress SessionEventType = iota
	SessionConfirmed
	SessionEnded
	SessionFailed
)

func (t SessionEventType) String() string {
	switch t {
	case SessionProgress:
		return "progress"
	case SessionConfirmed:
		return "confirmed"
	case SessionEnded:
		return "ended"
	case SessionFailed:
		return "failed"
	}
	return "unknown"
}

// SessionEvent событие жизненного цикла сессии
type SessionEvent struct {
	Type  SessionEventType
	Cause string
}

// SessionHandler обработчик событий сессии
type SessionHandler func(SessionEvent)

// Identity удаленная сторона звонка
type Identity struct {
	User        string
	DisplayName string
}

// CallOptions параметры исходящего звонка
type CallOptions struct {
	// Handler подписывается на события сессии до отправки INVITE
	Handler SessionHandler
	Audio   bool
	Video   bool
	Headers map[string]string
}

// TerminateOptions параметры завершения сессии. Нулевой StatusCode
// означает выбор кода транспортом (CANCEL, BYE или 480).
type TerminateOptions struct {
	StatusCode int
	Reason     string
}

// Session активная или предлагаемая медиасессия
type Session interface {
	ID() string
	Direction() Direction
	RemoteIdentity() Identity
	// OnEvent добавляет обработчик событий сессии
	OnEvent(h SessionHandler)
	// Answer принимает входящую сессию
	Answer() error
	Terminate(opts TerminateOptions) error
}

// UserAgent транспорт с регистрацией. Все методы неблокирующие,
// результаты приходят событиями.
type UserAgent interface {
	Start() error
	Stop() error
	IsConnected() bool
	IsRegistered() bool
	// Call запускает исходящий звонок. Синхронная ошибка означает, что
	// звонок не был начат.
	Call(target string, opts CallOptions) (Session, error)
	// OnEvent устанавливает обработчик событий транспорта
	OnEvent(h func(Event))
}

// Factory создает транспорт для конфигурации
type Factory func(cfg Config) (UserAgent, error)
