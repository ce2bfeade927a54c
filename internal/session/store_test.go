package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRepo wraps the memory repository with injectable failures
type flakyRepo struct {
	*repository.MemorySessionRepository
	mu        sync.Mutex
	GetErr    error
	UpsertErr error
	ExistsErr error
	gets      int
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{MemorySessionRepository: repository.NewMemorySessionRepository()}
}

func (r *flakyRepo) Get(ctx context.Context, tenantID int64, userID string) (*domain.SessionRecord, error) {
	r.mu.Lock()
	r.gets++
	err := r.GetErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.MemorySessionRepository.Get(ctx, tenantID, userID)
}

func (r *flakyRepo) Upsert(ctx context.Context, rec *domain.SessionRecord) error {
	r.mu.Lock()
	err := r.UpsertErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemorySessionRepository.Upsert(ctx, rec)
}

func (r *flakyRepo) Exists(ctx context.Context, tenantID int64, userID string) (bool, error) {
	if r.ExistsErr != nil {
		return false, r.ExistsErr
	}
	return r.MemorySessionRepository.Exists(ctx, tenantID, userID)
}

func (r *flakyRepo) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

func TestStore_GetFreshPairPersistsDefault(t *testing.T) {
	ctx := context.Background()
	repo := newFlakyRepo()
	store := NewStore(NewMemoryCache(DefaultTTL), repo, nil, nil)

	sess, err := store.Get(ctx, 1, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageStart, sess.Stage)
	assert.NotNil(t, sess.MessagingInstances)
	assert.NotNil(t, sess.Temp)
	assert.NotNil(t, sess.Report)

	exists, err := repo.MemorySessionRepository.Exists(ctx, 1, "u1")
	require.NoError(t, err)
	assert.True(t, exists, "default session is written through")
}

func TestStore_SaveThenGetRoundTripsFromCache(t *testing.T) {
	ctx := context.Background()
	repo := newFlakyRepo()
	store := NewStore(NewMemoryCache(DefaultTTL), repo, nil, nil)

	sess := domain.NewSession()
	sess.Stage = domain.StageAwaitSecret
	sess.Temp["payment_gateway_id"] = "pk_1"
	sess.MessagingInstances = []domain.MessagingInstance{{InstanceID: "i1", DisplayName: "Sales"}}
	store.Save(ctx, 1, "u1", sess)

	got, err := store.Get(ctx, 1, "u1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)
	assert.Equal(t, 0, repo.getCount(), "cache hit short-circuits the durable read")

	// mutating the returned copy does not touch the cache
	got.Temp["payment_gateway_id"] = "changed"
	again, _ := store.Get(ctx, 1, "u1")
	assert.Equal(t, "pk_1", again.Temp["payment_gateway_id"])
}

func TestStore_ExpiredCacheReadsDurable(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cache := NewMemoryCache(time.Minute)
	cache.now = func() time.Time { return now }

	repo := newFlakyRepo()
	store := NewStore(cache, repo, nil, nil)

	sess := domain.NewSession()
	sess.Stage = domain.StageReady
	store.Save(ctx, 1, "u1", sess)

	now = now.Add(time.Minute)
	got, err := store.Get(ctx, 1, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageReady, got.Stage)
	assert.Equal(t, 1, repo.getCount())
}

func TestStore_DurableReadErrorPropagates(t *testing.T) {
	repo := newFlakyRepo()
	repo.GetErr = errors.New("connection reset")
	store := NewStore(NewMemoryCache(DefaultTTL), repo, nil, nil)

	_, err := store.Get(context.Background(), 1, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.GetErr)
}

func TestStore_DurableWriteErrorIsSwallowed(t *testing.T) {
	ctx := context.Background()
	repo := newFlakyRepo()
	repo.UpsertErr = errors.New("disk full")
	store := NewStore(NewMemoryCache(DefaultTTL), repo, nil, nil)

	sess := domain.NewSession()
	sess.Stage = domain.StageAwaitKey
	assert.NotPanics(t, func() { store.Save(ctx, 1, "u1", sess) })

	got, err := store.Get(ctx, 1, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageAwaitKey, got.Stage, "cache reflects the intended value")
}

func TestStore_GetHealsStoredRows(t *testing.T) {
	ctx := context.Background()
	repo := newFlakyRepo()
	require.NoError(t, repo.Upsert(ctx, &domain.SessionRecord{TenantID: 3, UserID: "old", Data: []byte(`{"report":{"messages":4}}`)}))
	store := NewStore(NewMemoryCache(DefaultTTL), repo, nil, nil)

	sess, err := store.Get(ctx, 3, "old")
	require.NoError(t, err)
	assert.Equal(t, domain.StageReady, sess.Stage)
	assert.Equal(t, domain.SessionVersion, sess.Version)
	assert.Equal(t, float64(4), sess.Report["messages"])
	assert.NotNil(t, sess.MessagingInstances)
	assert.NotNil(t, sess.Temp)
}

func TestStore_KnownChecksCacheThenDurable(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cache := NewMemoryCache(time.Minute)
	cache.now = func() time.Time { return now }
	repo := newFlakyRepo()
	store := NewStore(cache, repo, nil, nil)

	known, err := store.Known(ctx, 1, "nobody")
	require.NoError(t, err)
	assert.False(t, known)

	store.Save(ctx, 1, "u1", domain.NewSession())
	known, _ = store.Known(ctx, 1, "u1")
	assert.True(t, known)

	// cache entry expired, durable row still counts
	now = now.Add(2 * time.Minute)
	known, err = store.Known(ctx, 1, "u1")
	require.NoError(t, err)
	assert.True(t, known)

	repo.ExistsErr = errors.New("timeout")
	_, err = store.Known(ctx, 1, "other")
	assert.Error(t, err)
}

func TestStore_CountUsers(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryCache(DefaultTTL), newFlakyRepo(), nil, nil)
	for _, u := range []string{"a", "b", "c"} {
		_, err := store.Get(ctx, 9, u)
		require.NoError(t, err)
	}
	_, _ = store.Get(ctx, 10, "a")

	count, err := store.CountUsers(ctx, 9, "")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	count, err = store.CountUsers(ctx, 9, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
