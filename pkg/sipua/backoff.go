package sipua

import (
	"math"
	"math/rand"
	"time"
)

// Backoff задержки между попытками регистрации
type Backoff struct {
	InitialDelay time.Duration // Начальная задержка
	MaxDelay     time.Duration // Максимальная задержка
	Multiplier   float64       // Множитель для экспоненциального отката
	JitterFactor float64       // Фактор случайности (0.0 - 1.0)
}

// DefaultBackoff возвращает конфигурацию по умолчанию
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Delay задержка перед попыткой номер attempt (с 1)
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = DefaultBackoff().InitialDelay
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}

	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.JitterFactor > 0 {
		jitter := delay * b.JitterFactor
		delay += jitter * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// refreshInterval через сколько обновлять регистрацию с выданным expires
func refreshInterval(expires time.Duration) time.Duration {
	if expires <= 0 {
		return DefaultBackoff().MaxDelay
	}
	// обновляем заранее, но не чаще раза в пять секунд
	refresh := expires * 9 / 10
	if expires-refresh > 30*time.Second {
		refresh = expires - 30*time.Second
	}
	if refresh < 5*time.Second {
		refresh = 5 * time.Second
	}
	return refresh
}
