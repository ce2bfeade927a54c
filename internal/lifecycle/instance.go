package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/gate"
	"github.com/prohmpiriya/botfleet/internal/metrics"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"go.uber.org/zap"
)

// ErrNoOwner is returned by Notify for tenants without an owner chat
var ErrNoOwner = errors.New("tenant has no owner configured")

// Transport is the chat connection of one bot credential
type Transport interface {
	bot.Sender
	// Run delivers updates until ctx is cancelled
	Run(ctx context.Context, handle func(*bot.Update)) error
}

// TransportFactory connects a credential, verifying it before returning
type TransportFactory func(ctx context.Context, credential string) (Transport, error)

// Instance is one running tenant bot
type Instance struct {
	mu        sync.RWMutex
	tenant    *domain.Tenant
	counter   *gate.UserCounter
	transport Transport
	router    *bot.Router
	startedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

func newInstance(tenant *domain.Tenant, transport Transport, users int) *Instance {
	return &Instance{
		tenant:    tenant.Clone(),
		counter:   gate.NewUserCounter(users),
		transport: transport,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID returns the tenant id
func (i *Instance) ID() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.tenant.ID
}

// Tenant returns a snapshot of the tenant record the instance serves
func (i *Instance) Tenant() *domain.Tenant {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.tenant.Clone()
}

// Counter returns the live admitted-user counter
func (i *Instance) Counter() *gate.UserCounter {
	return i.counter
}

// Sender returns the outbound side of the transport
func (i *Instance) Sender() bot.Sender {
	return i.transport
}

// StartedAt returns when the instance was started
func (i *Instance) StartedAt() time.Time {
	return i.startedAt
}

// Apply merges a freshly read tenant record over the snapshot. The
// connection is kept; the credential change only takes effect on restart.
func (i *Instance) Apply(fresh *domain.Tenant) {
	if fresh == nil {
		return
	}
	merged := fresh.Clone()
	i.mu.Lock()
	defer i.mu.Unlock()
	merged.ID = i.tenant.ID
	i.tenant = merged
}

// Notify sends text to the owner's chat
func (i *Instance) Notify(ctx context.Context, text string) error {
	owner := i.Tenant().OwnerID
	if owner == "" {
		return ErrNoOwner
	}
	return i.transport.SendMessage(ctx, owner, text, nil)
}

// Done is closed once the transport loop has returned
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Err returns the error the transport loop ended with, if any
func (i *Instance) Err() error {
	select {
	case <-i.done:
		return i.runErr
	default:
		return nil
	}
}

func (i *Instance) run(ctx context.Context, log *logger.Logger, m *metrics.Metrics) {
	defer close(i.done)
	i.runErr = Serve(ctx, i.transport, i.router, log, m)
}

// Serve runs the transport loop, dispatching each update on its own
// goroutine, and waits for in-flight handlers before returning.
func Serve(ctx context.Context, transport Transport, router *bot.Router, log *logger.Logger, m *metrics.Metrics) error {
	if m == nil {
		m = metrics.NewNop()
	}
	var inflight sync.WaitGroup
	err := transport.Run(ctx, func(upd *bot.Update) {
		m.UpdatesHandled.WithLabelValues(router.Kind(upd)).Inc()
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			// handler errors are already logged by the Logging middleware
			_ = router.Dispatch(ctx, upd, transport)
		}()
	})
	inflight.Wait()
	if err != nil {
		log.Error("Transport loop ended", zap.Error(err))
	}
	return err
}
