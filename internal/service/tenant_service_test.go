package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/dto"
	"github.com/prohmpiriya/botfleet/internal/lifecycle"
	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLifecycle struct {
	mu       sync.Mutex
	running  map[int64]bool
	startErr error
	started  []int64
	stopped  []int64
	reloaded []int64
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{running: map[int64]bool{}}
}

func (f *fakeLifecycle) Start(ctx context.Context, t *domain.Tenant) (*lifecycle.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, t.ID)
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.running[t.ID] = true
	return nil, nil
}

func (f *fakeLifecycle) Stop(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[id] {
		return lifecycle.ErrNotRunning
	}
	delete(f.running, id)
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeLifecycle) Reload(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloaded = append(f.reloaded, id)
	return nil
}

func (f *fakeLifecycle) IsRunning(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[id]
}

type testEnv struct {
	repo     *repository.MemoryTenantRepository
	settings SettingsService
	lc       *fakeLifecycle
	svc      *tenantService
	now      time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     repository.NewMemoryTenantRepository(),
		settings: NewSettingsService(repository.NewMemorySettingsRepository(), 49.90),
		lc:       newFakeLifecycle(),
		now:      time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC),
	}
	svc := NewTenantService(TenantConfig{Models: []string{"gpt-4o-mini", "gpt-4o"}}, env.repo, env.lc, env.settings, nil, nil).(*tenantService)
	svc.now = func() time.Time { return env.now }
	env.svc = svc
	return env
}

func TestProvision_Defaults(t *testing.T) {
	env := newTestEnv()

	tenant, err := env.svc.Provision(context.Background(), &dto.CreateTenantRequest{
		Name: " Acme ", BotCredential: "123:abc", OwnerID: "5001",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", tenant.Name)
	assert.True(t, tenant.IsActive)
	assert.Equal(t, domain.DefaultMaxUsers, tenant.MaxUsers)
	assert.Equal(t, domain.DefaultAIModel, tenant.AIModel)
	require.NotNil(t, tenant.ExpirationDate)
	assert.Equal(t, env.now.Add(30*24*time.Hour), *tenant.ExpirationDate)
	assert.Equal(t, []int64{tenant.ID}, env.lc.started)

	stored, err := env.svc.Get(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "5001", stored.OwnerID)
}

func TestProvision_StartFailureKeepsTenant(t *testing.T) {
	env := newTestEnv()
	env.lc.startErr = errors.New("401 Unauthorized")

	tenant, err := env.svc.Provision(context.Background(), &dto.CreateTenantRequest{Name: "a", BotCredential: "bad", MaxUsers: 3})
	require.ErrorIs(t, err, ErrInstanceStart)
	assert.Contains(t, err.Error(), "401 Unauthorized")
	require.NotNil(t, tenant)
	assert.Equal(t, 3, tenant.MaxUsers)

	_, err = env.svc.Get(context.Background(), tenant.ID)
	assert.NoError(t, err)
}

func TestProvision_RequiresNameAndCredential(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Provision(context.Background(), &dto.CreateTenantRequest{Name: "  ", BotCredential: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, env.lc.started)
}

func TestSetActive_StopsAndStartsSynchronously(t *testing.T) {
	env := newTestEnv()
	tenant, err := env.svc.Provision(context.Background(), &dto.CreateTenantRequest{Name: "a", BotCredential: "c"})
	require.NoError(t, err)

	off, err := env.svc.Toggle(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	assert.Equal(t, []int64{tenant.ID}, env.lc.stopped)
	assert.False(t, env.lc.IsRunning(tenant.ID))

	on, err := env.svc.Toggle(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.True(t, on.IsActive)
	assert.True(t, env.lc.IsRunning(tenant.ID))

	// deactivating a tenant that is not running is fine
	env.lc.running = map[int64]bool{}
	_, err = env.svc.SetActive(context.Background(), tenant.ID, false)
	assert.NoError(t, err)

	_, err = env.svc.Toggle(context.Background(), 999)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestRenew_ExtendsAndReloads(t *testing.T) {
	env := newTestEnv()
	tenant, err := env.svc.Provision(context.Background(), &dto.CreateTenantRequest{Name: "a", BotCredential: "c"})
	require.NoError(t, err)

	exp, err := env.svc.Renew(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, env.now.Add(60*24*time.Hour), exp)
	assert.Equal(t, []int64{tenant.ID}, env.lc.reloaded)

	_, err = env.svc.Renew(context.Background(), 999)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestRenew_StartsStoppedBot(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenant, err := env.svc.Provision(ctx, &dto.CreateTenantRequest{Name: "a", BotCredential: "c"})
	require.NoError(t, err)
	_, err = env.svc.SetActive(ctx, tenant.ID, false)
	require.NoError(t, err)

	_, err = env.svc.Renew(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, env.lc.IsRunning(tenant.ID))
	assert.Equal(t, []int64{tenant.ID, tenant.ID}, env.lc.started)
	stored, err := env.svc.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)

	_, err = env.svc.SetActive(ctx, tenant.ID, false)
	require.NoError(t, err)
	env.lc.startErr = errors.New("401 Unauthorized")
	exp, err := env.svc.Renew(ctx, tenant.ID)
	assert.ErrorIs(t, err, ErrInstanceStart)
	assert.False(t, exp.IsZero(), "the renewal is kept when the bot fails to start")
}

// renewingRepo renews the tenant right after the service has read it
type renewingRepo struct {
	*repository.MemoryTenantRepository
	now    time.Time
	period time.Duration
	once   sync.Once
}

func (r *renewingRepo) GetByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	tenant, err := r.MemoryTenantRepository.GetByID(ctx, id)
	if err != nil || tenant == nil {
		return tenant, err
	}
	r.once.Do(func() {
		_, err = r.MemoryTenantRepository.Renew(ctx, id, r.now, r.period)
	})
	return tenant, err
}

func TestMutationsKeepConcurrentRenewal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	expired := now.Add(-24 * time.Hour)
	base := repository.NewMemoryTenantRepository()
	tenant := &domain.Tenant{Name: "a", BotCredential: "c", IsActive: false, ExpirationDate: &expired, MaxUsers: 5}
	require.NoError(t, base.Create(ctx, tenant))

	repo := &renewingRepo{MemoryTenantRepository: base, now: now, period: domain.SubscriptionPeriod}
	settings := NewSettingsService(repository.NewMemorySettingsRepository(), 49.90)
	svc := NewTenantService(TenantConfig{}, repo, newFakeLifecycle(), settings, nil, nil)

	updated, err := svc.UpdateSystemPrompt(ctx, tenant.ID, "Be brief.")
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", updated.SystemPrompt)

	stored, err := base.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	require.NotNil(t, stored.ExpirationDate)
	assert.Equal(t, now.Add(domain.SubscriptionPeriod), *stored.ExpirationDate)
	assert.Equal(t, "Be brief.", stored.SystemPrompt)
}

func TestMutations(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenant, err := env.svc.Provision(ctx, &dto.CreateTenantRequest{Name: "a", BotCredential: "c"})
	require.NoError(t, err)

	_, err = env.svc.SetMaxUsers(ctx, tenant.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuota)
	updated, err := env.svc.SetMaxUsers(ctx, tenant.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, updated.MaxUsers)

	price := 19.9
	updated, err = env.svc.SetPrice(ctx, tenant.ID, &price)
	require.NoError(t, err)
	assert.Equal(t, 19.9, *updated.SubscriptionPrice)
	p, err := env.svc.EffectivePrice(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, 19.9, p)

	updated, err = env.svc.SetPrice(ctx, tenant.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, updated.SubscriptionPrice)
	p, err = env.svc.EffectivePrice(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, 49.90, p)

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = env.svc.SetPrice(ctx, tenant.ID, &bad)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	}
	stored, err := env.svc.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.SubscriptionPrice)

	_, err = env.svc.UpdateAISettings(ctx, tenant.ID, "pk-123", "gpt-4o")
	assert.ErrorIs(t, err, ErrInvalidAIKey)
	_, err = env.svc.UpdateAISettings(ctx, tenant.ID, "sk-123", "llama")
	assert.ErrorIs(t, err, ErrUnsupportedModel)
	updated, err = env.svc.UpdateAISettings(ctx, tenant.ID, "sk-123", "gpt-4o")
	require.NoError(t, err)
	assert.True(t, updated.HasAI())

	updated, err = env.svc.UpdatePaymentCredentials(ctx, tenant.ID, "gw", "secret")
	require.NoError(t, err)
	assert.True(t, updated.HasPaymentCredentials())

	updated, err = env.svc.UpdateSystemPrompt(ctx, tenant.ID, "  Be kind. ")
	require.NoError(t, err)
	assert.Equal(t, "Be kind.", updated.SystemPrompt)

	assert.Len(t, env.lc.reloaded, 6, "every successful mutation reloads the running bot")
}

func TestSettingsService(t *testing.T) {
	repo := repository.NewMemorySettingsRepository()
	svc := NewSettingsService(repo, 49.90)
	ctx := context.Background()

	p, err := svc.DefaultPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, 49.90, p)

	require.NoError(t, svc.SetDefaultPrice(ctx, 59))
	p, err = svc.DefaultPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, 59.0, p)

	assert.ErrorIs(t, svc.SetDefaultPrice(ctx, -3), ErrInvalidPrice)
	assert.ErrorIs(t, svc.SetDefaultPrice(ctx, math.NaN()), ErrInvalidPrice)
	assert.ErrorIs(t, svc.SetDefaultPrice(ctx, math.Inf(1)), ErrInvalidPrice)

	require.NoError(t, repo.Set(ctx, KeyDefaultPrice, "abc"))
	_, err = svc.DefaultPrice(ctx)
	assert.Error(t, err)
}
