package mockTransport

import (
	"sync"

	"github.com/arzzra/web_phone/pkg/transport"
)

// Factory запоминает все созданные транспорты. Метод New подходит как
// transport.Factory.
type Factory struct {
	mu     sync.Mutex
	agents []*UserAgent
	err    error
	// Prepare вызывается для каждого нового транспорта до возврата
	Prepare func(ua *UserAgent)
}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) New(cfg transport.Config) (transport.UserAgent, error) {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	ua := NewUserAgent(cfg)
	f.agents = append(f.agents, ua)
	prepare := f.Prepare
	f.mu.Unlock()

	if prepare != nil {
		prepare(ua)
	}
	return ua, nil
}

// SetError задает ошибку создания транспорта
func (f *Factory) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *Factory) Agents() []*UserAgent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*UserAgent, len(f.agents))
	copy(out, f.agents)
	return out
}

// Last последний созданный транспорт или nil
func (f *Factory) Last() *UserAgent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.agents) == 0 {
		return nil
	}
	return f.agents[len(f.agents)-1]
}
