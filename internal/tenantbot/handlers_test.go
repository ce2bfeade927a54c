package tenantbot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/botfleet/internal/bot"
	botmocks "github.com/prohmpiriya/botfleet/internal/bot/mocks"
	"github.com/prohmpiriya/botfleet/internal/client/llm"
	"github.com/prohmpiriya/botfleet/internal/client/messaging"
	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/gate"
	"github.com/prohmpiriya/botfleet/internal/gateway"
	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/prohmpiriya/botfleet/internal/session"
	"github.com/prohmpiriya/botfleet/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ownerID = "900"

type fakeTarget struct {
	mu      sync.Mutex
	tenant  *domain.Tenant
	counter *gate.UserCounter
}

func (f *fakeTarget) Tenant() *domain.Tenant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tenant.Clone()
}

func (f *fakeTarget) Counter() *gate.UserCounter { return f.counter }

func (f *fakeTarget) apply(change func(t *domain.Tenant)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	change(f.tenant)
}

// fakeUpdater applies changes straight to the target, like a reload would
type fakeUpdater struct {
	target *fakeTarget
	price  float64
	err    error
	calls  []string
}

func (f *fakeUpdater) UpdatePaymentCredentials(ctx context.Context, id int64, gatewayID, secret string) (*domain.Tenant, error) {
	f.calls = append(f.calls, "payment")
	if f.err != nil {
		return nil, f.err
	}
	f.target.apply(func(t *domain.Tenant) { t.PaymentGatewayID, t.PaymentGatewaySecret = gatewayID, secret })
	return f.target.Tenant(), nil
}

func (f *fakeUpdater) UpdateAISettings(ctx context.Context, id int64, key, model string) (*domain.Tenant, error) {
	f.calls = append(f.calls, "ai")
	if f.err != nil {
		return nil, f.err
	}
	f.target.apply(func(t *domain.Tenant) { t.AICredential, t.AIModel = key, model })
	return f.target.Tenant(), nil
}

func (f *fakeUpdater) UpdateSystemPrompt(ctx context.Context, id int64, prompt string) (*domain.Tenant, error) {
	f.calls = append(f.calls, "prompt")
	if f.err != nil {
		return nil, f.err
	}
	f.target.apply(func(t *domain.Tenant) { t.SystemPrompt = prompt })
	return f.target.Tenant(), nil
}

func (f *fakeUpdater) EffectivePrice(ctx context.Context, tenant *domain.Tenant) (float64, error) {
	return f.price, f.err
}

type fakeMessaging struct {
	connectErr error
	connected  bool
	created    []string
}

func (f *fakeMessaging) CreateInstance(ctx context.Context, name string) (*messaging.Instance, error) {
	f.created = append(f.created, name)
	return &messaging.Instance{ID: "inst-1", Token: "tok-1", Name: name}, nil
}

func (f *fakeMessaging) Connect(ctx context.Context, token string) (string, error) {
	if f.connectErr != nil {
		return "", f.connectErr
	}
	return "data:image/png;base64,QR", nil
}

func (f *fakeMessaging) Status(ctx context.Context, token string) (bool, error) {
	return f.connected, nil
}

func (f *fakeMessaging) Disconnect(ctx context.Context, token string) error { return nil }

type fakeCompleter struct {
	answer string
	err    error
	last   *llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req *llm.Request) (string, error) {
	f.last = req
	return f.answer, f.err
}

type fakePayments struct {
	last *gateway.CheckoutRequest
}

func (f *fakePayments) CreateCheckout(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.CheckoutResponse, error) {
	f.last = req
	return &gateway.CheckoutResponse{SessionID: "cs_1", URL: "https://pay.example/cs_1"}, nil
}

func (f *fakePayments) Name() string { return "fake" }

type harness struct {
	target    *fakeTarget
	updater   *fakeUpdater
	messaging *fakeMessaging
	llm       *fakeCompleter
	payments  *fakePayments
	handlers  *Handlers
	store     *session.Store
	router    *bot.Router
	sender    *botmocks.MockSender
}

func newHarness(t *testing.T, payments gateway.PaymentGateway) *harness {
	t.Helper()
	exp := time.Now().Add(domain.SubscriptionPeriod)
	target := &fakeTarget{
		tenant: &domain.Tenant{ID: 7, Name: "Acme", OwnerID: ownerID, IsActive: true,
			ExpirationDate: &exp, MaxUsers: 5, AIModel: "gpt-4o-mini"},
		counter: gate.NewUserCounter(0),
	}
	h := &harness{
		target:    target,
		updater:   &fakeUpdater{target: target, price: 49.9},
		messaging: &fakeMessaging{connected: true},
		llm:       &fakeCompleter{answer: "hello from ai"},
		payments:  &fakePayments{},
		sender:    &botmocks.MockSender{},
	}
	if payments == nil {
		payments = h.payments
	}
	h.handlers = NewHandlers(Config{Models: []string{"gpt-4o-mini", "gpt-4o"}}, h.messaging, h.llm, payments, nil)
	h.handlers.SetTenantService(h.updater)

	h.store = session.NewStore(session.NewMemoryCache(session.DefaultTTL), repository.NewMemorySessionRepository(), nil, nil)
	h.router = bot.NewRouter()
	h.router.Use(gate.New(h.store, nil, nil).Middleware(target), h.handlers.Engine().Middleware(nil))
	h.handlers.register(h.router, target)
	return h
}

func (h *harness) send(t *testing.T, userID, text string) string {
	t.Helper()
	h.sender.Reset()
	require.NoError(t, h.router.Dispatch(context.Background(), &bot.Update{ChatID: userID, UserID: userID, Text: text}, h.sender))
	return h.sender.Last().Text
}

func (h *harness) press(t *testing.T, userID, data string) botmocks.SentMessage {
	t.Helper()
	h.sender.Reset()
	require.NoError(t, h.router.Dispatch(context.Background(),
		&bot.Update{ChatID: userID, UserID: userID, CallbackID: "cb", CallbackData: data}, h.sender))
	return h.sender.Last()
}

func (h *harness) session(t *testing.T, userID string) *domain.Session {
	t.Helper()
	sess, err := h.store.Get(context.Background(), 7, userID)
	require.NoError(t, err)
	return sess
}

func TestOwnerCommands_RejectNonOwners(t *testing.T) {
	h := newHarness(t, nil)

	for _, cmd := range []string{"/status", "/menu", "/ai", "/payment", "/prompt", "/connect", "/instances", "/renew"} {
		t.Run(cmd, func(t *testing.T) {
			assert.Equal(t, OwnerOnlyReply, h.send(t, "42", cmd))
		})
	}
	assert.Equal(t, WelcomeReply, h.send(t, "42", "/start"))
	assert.Equal(t, WelcomeReply, h.send(t, "42", "/help"))
	assert.Equal(t, domain.StageStart, h.session(t, "42").Stage)
}

func TestStart_OwnerGetsMenu(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, ownerID, "/start")
	last := h.sender.Last()
	assert.Contains(t, last.Text, "Acme control panel")
	require.NotNil(t, last.Keyboard)
	assert.Equal(t, "m:status", last.Keyboard.Rows[0][0].Data)

	msg := h.press(t, ownerID, "m:status")
	assert.Contains(t, msg.Text, "Max users: 5")
	assert.Contains(t, msg.Text, "AI: off")
	assert.Contains(t, msg.Text, "Payment gateway: not configured")
}

func TestAIFlow(t *testing.T) {
	h := newHarness(t, nil)

	assert.Contains(t, h.send(t, ownerID, "/ai"), "starts with sk-")
	assert.Equal(t, domain.StageAwaitKey, h.session(t, ownerID).Stage)

	assert.Contains(t, h.send(t, ownerID, "pk-123"), "must start with sk-")
	assert.Equal(t, domain.StageAwaitKey, h.session(t, ownerID).Stage)

	h.send(t, ownerID, "sk-test")
	last := h.sender.Last()
	assert.Contains(t, last.Text, "Choose the model")
	require.NotNil(t, last.Keyboard)
	assert.Equal(t, wizard.ChoicePrefix+"gpt-4o-mini", last.Keyboard.Rows[0][0].Data)

	msg := h.press(t, ownerID, wizard.ChoicePrefix+"gpt-4o")
	assert.Contains(t, msg.Text, "AI enabled with gpt-4o")

	tenant := h.target.Tenant()
	assert.Equal(t, "sk-test", tenant.AICredential)
	assert.Equal(t, "gpt-4o", tenant.AIModel)
	sess := h.session(t, ownerID)
	assert.Equal(t, domain.StageReady, sess.Stage)
	assert.Empty(t, sess.Temp)
}

func TestPaymentAndPromptFlows(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, ownerID, "/payment")
	assert.Equal(t, domain.StageAwaitID, h.session(t, ownerID).Stage)
	h.send(t, ownerID, "acct_123")
	assert.Equal(t, domain.StageAwaitSecret, h.session(t, ownerID).Stage)
	assert.Equal(t, "Payment credentials saved.", h.send(t, ownerID, "sec_456"))
	assert.True(t, h.target.Tenant().HasPaymentCredentials())

	h.send(t, ownerID, "/prompt")
	assert.Equal(t, "Instructions saved.", h.send(t, ownerID, "Answer in Portuguese."))
	assert.Equal(t, "Answer in Portuguese.", h.target.Tenant().SystemPrompt)
	assert.Equal(t, []string{"payment", "prompt"}, h.updater.calls)
}

func TestFlow_CommitFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.updater.err = errors.New("db down")

	h.send(t, ownerID, "/prompt")
	assert.Equal(t, wizard.FailureReply, h.send(t, ownerID, "Be brief."))
	assert.Equal(t, domain.StageReady, h.session(t, ownerID).Stage)
}

func TestFlow_CommandInterrupts(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, ownerID, "/ai")
	h.send(t, ownerID, "sk-abc")
	assert.Contains(t, h.send(t, ownerID, "/status"), "Plan: active until")

	sess := h.session(t, ownerID)
	assert.Equal(t, domain.StageReady, sess.Stage)
	assert.Empty(t, sess.Temp)
	assert.Empty(t, h.updater.calls)
}

func TestConnectAndInstances(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, "No linked accounts yet. Send /connect to add one.", h.send(t, ownerID, "/instances"))

	h.send(t, ownerID, "/connect")
	reply := h.send(t, ownerID, "Store phone")
	assert.Contains(t, reply, `Connection "Store phone" created`)
	assert.Contains(t, reply, "data:image/png;base64,QR")
	assert.Equal(t, []string{"Store phone"}, h.messaging.created)

	sess := h.session(t, ownerID)
	require.Len(t, sess.MessagingInstances, 1)
	assert.Equal(t, "tok-1", sess.MessagingInstances[0].Token)
	assert.False(t, sess.MessagingInstances[0].Connected)

	assert.Contains(t, h.send(t, ownerID, "/instances"), "1. Store phone: connected")
	assert.True(t, h.session(t, ownerID).MessagingInstances[0].Connected)
}

func TestConnect_QRUnavailableKeepsInstance(t *testing.T) {
	h := newHarness(t, nil)
	h.messaging.connectErr = errors.New("gateway timeout")

	h.send(t, ownerID, "/connect")
	assert.Contains(t, h.send(t, ownerID, "Backup"), "QR code is not ready yet")
	assert.Len(t, h.session(t, ownerID).MessagingInstances, 1)
}

func TestRenew(t *testing.T) {
	h := newHarness(t, nil)

	reply := h.send(t, ownerID, "/renew")
	assert.Contains(t, reply, "49.90")
	assert.Contains(t, reply, "https://pay.example/cs_1")
	require.NotNil(t, h.payments.last)
	assert.Equal(t, int64(7), h.payments.last.TenantID)
	assert.Equal(t, 49.9, h.payments.last.Amount)

	noop := newHarness(t, gateway.NewNoopGateway())
	assert.Contains(t, noop.send(t, ownerID, "/renew"), "Online renewal is not available")
}

func TestContent(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, DefaultAutoReply, h.send(t, "42", "hi"))
	h.send(t, "42", "hello again")
	report := h.session(t, "42").Report
	assert.EqualValues(t, 2, report[ReportMessages])
	assert.NotEmpty(t, report[ReportLastSeen])
	assert.Nil(t, h.llm.last)

	h.target.apply(func(tn *domain.Tenant) {
		tn.AICredential = "sk-live"
		tn.AIModel = "gpt-4o"
		tn.SystemPrompt = "Be nice."
	})
	assert.Equal(t, "hello from ai", h.send(t, "42", "price?"))
	require.NotNil(t, h.llm.last)
	assert.Equal(t, "sk-live", h.llm.last.APIKey)
	assert.Equal(t, "gpt-4o", h.llm.last.Model)
	assert.Equal(t, "Be nice.", h.llm.last.SystemPrompt)
	assert.Equal(t, "price?", h.llm.last.UserMessage)

	h.llm.err = errors.New("rate limited")
	assert.Equal(t, UnavailableReply, h.send(t, "42", "again"))
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, UnknownReply, h.send(t, ownerID, "/nope"))
}

func TestTouch_CountsFromJSON(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := &domain.Session{Report: map[string]any{ReportMessages: float64(4)}}
	touch(sess, now)
	assert.Equal(t, int64(5), sess.Report[ReportMessages])
	assert.Equal(t, "2026-03-01T12:00:00Z", sess.Report[ReportLastSeen])

	empty := &domain.Session{}
	touch(empty, now)
	assert.Equal(t, int64(1), empty.Report[ReportMessages])
}
