package phone

import (
	"fmt"
	"time"
)

// ErrorCategory категории ошибок менеджера
type ErrorCategory string

const (
	// Отказ в приеме звонка
	ErrorCategoryAdmission ErrorCategory = "ADMISSION"
	// Транспорт и регистрация
	ErrorCategoryTransport    ErrorCategory = "TRANSPORT"
	ErrorCategoryRegistration ErrorCategory = "REGISTRATION"
	// Сессия звонка
	ErrorCategoryCall ErrorCategory = "CALL"
	// Хранилище истории
	ErrorCategoryPersistence ErrorCategory = "PERSISTENCE"
)

func (ec ErrorCategory) String() string {
	return string(ec)
}

// PhoneError структурированная ошибка с контекстом
type PhoneError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Category  ErrorCategory          `json:"category"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Cause     error                  `json:"cause,omitempty"`
}

// Error реализует интерфейс error
func (e *PhoneError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *PhoneError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду: errors.Is(err, ErrNotReady)
func (e *PhoneError) Is(target error) bool {
	t, ok := target.(*PhoneError)
	return ok && t.Code == e.Code
}

func (e *PhoneError) ErrorCode() string     { return e.Code }
func (e *PhoneError) ErrorCategory() string { return string(e.Category) }

// WithField добавляет дополнительное поле к ошибке
func (e *PhoneError) WithField(key string, value interface{}) *PhoneError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithCause добавляет исходную ошибку
func (e *PhoneError) WithCause(cause error) *PhoneError {
	e.Cause = cause
	return e
}

// NewPhoneError создает новую структурированную ошибку
func NewPhoneError(code, message string, category ErrorCategory) *PhoneError {
	return &PhoneError{
		Code:      code,
		Message:   message,
		Category:  category,
		Timestamp: time.Now(),
	}
}

// Образцы для errors.Is. Функции ниже возвращают новые экземпляры с контекстом.
var (
	ErrEmptyNumber    = &PhoneError{Code: "EMPTY_NUMBER", Message: "Номер не указан", Category: ErrorCategoryAdmission}
	ErrNotReady       = &PhoneError{Code: "NOT_READY", Message: "Телефон не зарегистрирован", Category: ErrorCategoryAdmission}
	ErrCallInProgress = &PhoneError{Code: "CALL_IN_PROGRESS", Message: "Звонок уже идет", Category: ErrorCategoryAdmission}
	ErrNotInitialized = &PhoneError{Code: "NOT_INITIALIZED", Message: "Менеджер не инициализирован или уничтожен", Category: ErrorCategoryAdmission}
	ErrNoIncomingCall = &PhoneError{Code: "NO_INCOMING_CALL", Message: "Нет входящего звонка", Category: ErrorCategoryCall}
)

func errCallInProgress(status Status, number string) *PhoneError {
	return NewPhoneError(ErrCallInProgress.Code, fmt.Sprintf("Звонок уже идет (%s)", status), ErrorCategoryAdmission).
		WithField("status", string(status)).
		WithField("number", number)
}

func errNotReady(conn ConnectionStatus) *PhoneError {
	return NewPhoneError(ErrNotReady.Code, ErrNotReady.Message, ErrorCategoryAdmission).
		WithField("connection_status", string(conn))
}

func errTransport(operation string, cause error) *PhoneError {
	return NewPhoneError("TRANSPORT_FAILURE", fmt.Sprintf("Ошибка транспорта при операции %s", operation), ErrorCategoryTransport).
		WithField("operation", operation).
		WithCause(cause)
}

func errCallFailed(number string, cause string) *PhoneError {
	return NewPhoneError("CALL_FAILED", fmt.Sprintf("Звонок на %s не состоялся: %s", number, cause), ErrorCategoryCall).
		WithField("number", number).
		WithField("cause", cause)
}
