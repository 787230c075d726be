package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level уровни логирования
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel разбирает имя уровня из конфигурации ("debug", "INFO", ...)
func ParseLevel(s string) (Level, bool) {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return LevelInfo, false
	}
	switch lvl {
	case zerolog.TraceLevel:
		return LevelTrace, true
	case zerolog.DebugLevel:
		return LevelDebug, true
	case zerolog.InfoLevel, zerolog.NoLevel:
		return LevelInfo, true
	case zerolog.WarnLevel:
		return LevelWarn, true
	default:
		return LevelError, true
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelTrace:
		return zerolog.TraceLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// StructuredLogger интерфейс для структурированного логирования
type StructuredLogger interface {
	// Основные методы логирования
	Trace(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// LogError логирует ошибку вместе с ее кодом и категорией
	LogError(ctx context.Context, err error, msg string, fields ...Field)

	// Контекстные логгеры
	WithComponent(component string) StructuredLogger
	WithFields(fields ...Field) StructuredLogger

	// Управление уровнем
	SetLevel(level Level)
	IsEnabled(level Level) bool
}

// Field поле структурированного лога
type Field struct {
	Key   string
	Value interface{}
}

// Удобные функции для создания полей
func String(key, value string) Field                 { return Field{key, value} }
func Int(key string, value int) Field                { return Field{key, value} }
func Int64(key string, value int64) Field            { return Field{key, value} }
func Bool(key string, value bool) Field              { return Field{key, value} }
func Duration(key string, value time.Duration) Field { return Field{key, value} }
func Time(key string, value time.Time) Field         { return Field{key, value} }
func Any(key string, value interface{}) Field        { return Field{key, value} }
func Err(err error) Field                            { return Field{"error", err} }

// codedError ошибка с кодом и категорией (например phone.PhoneError)
type codedError interface {
	error
	ErrorCode() string
	ErrorCategory() string
}

type ctxKey string

const callIDKey ctxKey = "call_id"

// WithCallID кладет идентификатор звонка в контекст, логгер добавит его в запись
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey, id)
}

// ZeroLogger реализация StructuredLogger поверх zerolog
type ZeroLogger struct {
	zl    zerolog.Logger
	level *levelHolder
}

type levelHolder struct {
	mu    sync.RWMutex
	level Level
}

func (h *levelHolder) get() Level {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.level
}

func (h *levelHolder) set(l Level) {
	h.mu.Lock()
	h.level = l
	h.mu.Unlock()
}

// New создает JSON логгер, пишущий в w
func New(w io.Writer) *ZeroLogger {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	return &ZeroLogger{zl: zl, level: &levelHolder{level: LevelInfo}}
}

// NewConsole создает логгер с человекочитаемым выводом для CLI
func NewConsole(w io.Writer) *ZeroLogger {
	if w == nil {
		w = os.Stderr
	}
	return New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"})
}

func (l *ZeroLogger) SetLevel(level Level) {
	l.level.set(level)
}

func (l *ZeroLogger) IsEnabled(level Level) bool {
	return level >= l.level.get()
}

func (l *ZeroLogger) WithComponent(component string) StructuredLogger {
	return &ZeroLogger{
		zl:    l.zl.With().Str("component", component).Logger(),
		level: l.level,
	}
}

func (l *ZeroLogger) WithFields(fields ...Field) StructuredLogger {
	c := l.zl.With()
	for _, f := range fields {
		c = c.Interface(f.Key, f.Value)
	}
	return &ZeroLogger{zl: c.Logger(), level: l.level}
}

func (l *ZeroLogger) Trace(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelTrace, msg, nil, fields)
}

func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelDebug, msg, nil, fields)
}

func (l *ZeroLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelInfo, msg, nil, fields)
}

func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelWarn, msg, nil, fields)
}

func (l *ZeroLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelError, msg, nil, fields)
}

// LogError логирует ошибку с дополнительной информацией
func (l *ZeroLogger) LogError(ctx context.Context, err error, msg string, fields ...Field) {
	if ce, ok := err.(codedError); ok {
		fields = append(fields,
			String("error_code", ce.ErrorCode()),
			String("error_category", ce.ErrorCategory()),
		)
	}
	l.log(ctx, LevelError, msg, err, fields)
}

func (l *ZeroLogger) log(ctx context.Context, level Level, msg string, err error, fields []Field) {
	if !l.IsEnabled(level) {
		return
	}

	ev := l.zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	if ctx != nil {
		if id, ok := ctx.Value(callIDKey).(string); ok && id != "" {
			ev = ev.Str("call_id", id)
		}
	}
	for _, f := range fields {
		if e, ok := f.Value.(error); ok {
			ev = ev.AnErr(f.Key, e)
			continue
		}
		ev = ev.Interface(f.Key, f.Value)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

// NoOpLogger логгер который ничего не делает
type NoOpLogger struct{}

func (NoOpLogger) Trace(context.Context, string, ...Field)           {}
func (NoOpLogger) Debug(context.Context, string, ...Field)           {}
func (NoOpLogger) Info(context.Context, string, ...Field)            {}
func (NoOpLogger) Warn(context.Context, string, ...Field)            {}
func (NoOpLogger) Error(context.Context, string, ...Field)           {}
func (NoOpLogger) LogError(context.Context, error, string, ...Field) {}
func (n NoOpLogger) WithComponent(string) StructuredLogger           { return n }
func (n NoOpLogger) WithFields(...Field) StructuredLogger            { return n }
func (NoOpLogger) SetLevel(Level)                                    {}
func (NoOpLogger) IsEnabled(Level) bool                              { return false }

var (
	defaultMu     sync.RWMutex
	defaultLogger StructuredLogger = NoOpLogger{}
)

// SetDefault устанавливает логгер по умолчанию для всех пакетов
func SetDefault(l StructuredLogger) {
	if l == nil {
		l = NoOpLogger{}
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default возвращает логгер по умолчанию
func Default() StructuredLogger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// OrDefault возвращает l или логгер по умолчанию, если l == nil
func OrDefault(l StructuredLogger) StructuredLogger {
	if l != nil {
		return l
	}
	return Default()
}
