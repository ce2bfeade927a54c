package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/prohmpiriya/botfleet/internal/bot"
	botmocks "github.com/prohmpiriya/botfleet/internal/bot/mocks"
	"github.com/prohmpiriya/botfleet/internal/lifecycle"
)

// ErrRejected is returned by the factory for credentials marked bad
var ErrRejected = errors.New("credential rejected")

// MockTransport is an in-process lifecycle.Transport. Updates pushed with
// Push are delivered to the running loop.
type MockTransport struct {
	*botmocks.MockSender
	Credential string
	updates    chan *bot.Update
	stopped    chan struct{}
	once       sync.Once
}

// NewMockTransport creates a transport for credential
func NewMockTransport(credential string) *MockTransport {
	return &MockTransport{
		MockSender: &botmocks.MockSender{},
		Credential: credential,
		updates:    make(chan *bot.Update, 16),
		stopped:    make(chan struct{}),
	}
}

// Run delivers pushed updates until ctx is cancelled
func (t *MockTransport) Run(ctx context.Context, handle func(*bot.Update)) error {
	defer t.once.Do(func() { close(t.stopped) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd := <-t.updates:
			handle(upd)
		}
	}
}

// Push queues an update for delivery
func (t *MockTransport) Push(upd *bot.Update) {
	t.updates <- upd
}

// Stopped is closed once Run has returned
func (t *MockTransport) Stopped() <-chan struct{} {
	return t.stopped
}

// Factory hands out MockTransports and remembers them by credential
type Factory struct {
	mu         sync.Mutex
	Reject     map[string]bool
	transports []*MockTransport
}

// NewFactory creates a factory that rejects the listed credentials
func NewFactory(reject ...string) *Factory {
	f := &Factory{Reject: make(map[string]bool)}
	for _, c := range reject {
		f.Reject[c] = true
	}
	return f
}

// Connect implements lifecycle.TransportFactory
func (f *Factory) Connect(ctx context.Context, credential string) (lifecycle.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Reject[credential] {
		return nil, ErrRejected
	}
	t := NewMockTransport(credential)
	f.transports = append(f.transports, t)
	return t, nil
}

// All returns every transport created so far
func (f *Factory) All() []*MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockTransport, len(f.transports))
	copy(out, f.transports)
	return out
}

// Last returns the most recently created transport
func (f *Factory) Last() *MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}
