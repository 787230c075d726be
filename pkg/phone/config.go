package phone

import (
	"strconv"
	"time"

	"github.com/arzzra/web_phone/pkg/history"
	"github.com/arzzra/web_phone/pkg/logger"
	"github.com/arzzra/web_phone/pkg/registry"
	"github.com/arzzra/web_phone/pkg/signal"
	"github.com/arzzra/web_phone/pkg/storage"
	"github.com/google/uuid"
)

const (
	DefaultFailedRevertDelay = 3000 * time.Millisecond
	DefaultEndedRevertDelay  = 2000 * time.Millisecond
	DefaultDurationInterval  = time.Second
)

// Options настройки менеджера звонков
type Options struct {
	// DisablePersist - не сохранять историю в Storage, только в памяти
	DisablePersist bool

	// HistoryKey - ключ истории в хранилище
	HistoryKey string

	// MaxHistoryItems - максимальное количество записей истории
	MaxHistoryItems int

	// Storage - долговременное хранилище истории (по умолчанию общее в памяти процесса)
	Storage storage.KV

	// Registry - реестр общего подключения (по умолчанию registry.Default())
	Registry *registry.Registry

	// Signals - шина внешних событий (по умолчанию signal.Default())
	Signals *signal.Hub

	Logger  logger.StructuredLogger
	Metrics *Metrics

	// Задержки возврата в disconnected и период счетчика длительности
	FailedRevertDelay time.Duration
	EndedRevertDelay  time.Duration
	DurationInterval  time.Duration

	// Clock - источник времени (для тестов)
	Clock func() time.Time

	// IDGenerator - генератор идентификаторов записей истории
	IDGenerator func() string
}

// DefaultOptions возвращает настройки по умолчанию
func DefaultOptions() *Options {
	return &Options{
		HistoryKey:        history.DefaultKey,
		MaxHistoryItems:   history.DefaultMaxItems,
		FailedRevertDelay: DefaultFailedRevertDelay,
		EndedRevertDelay:  DefaultEndedRevertDelay,
		DurationInterval:  DefaultDurationInterval,
	}
}

// Validate заполняет незаданные поля значениями по умолчанию
func (o *Options) Validate() error {
	if o.HistoryKey == "" {
		o.HistoryKey = history.DefaultKey
	}
	if o.MaxHistoryItems <= 0 {
		o.MaxHistoryItems = history.DefaultMaxItems
	}
	if o.Storage == nil {
		o.Storage = storage.Default()
	}
	if o.Registry == nil {
		o.Registry = registry.Default()
	}
	if o.Signals == nil {
		o.Signals = signal.Default()
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	if o.FailedRevertDelay <= 0 {
		o.FailedRevertDelay = DefaultFailedRevertDelay
	}
	if o.EndedRevertDelay <= 0 {
		o.EndedRevertDelay = DefaultEndedRevertDelay
	}
	if o.DurationInterval <= 0 {
		o.DurationInterval = DefaultDurationInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.IDGenerator == nil {
		clock := o.Clock
		o.IDGenerator = func() string { return newEntryID(clock) }
	}
	return nil
}

// newEntryID UUIDv7 упорядочен по времени; при ошибке генератора берем epoch ms
func newEntryID(clock func() time.Time) string {
	id, err := uuid.NewV7()
	if err != nil {
		return strconv.FormatInt(clock().UnixMilli(), 10)
	}
	return id.String()
}
