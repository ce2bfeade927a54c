package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/internal/metrics"
	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"github.com/prohmpiriya/botfleet/pkg/telemetry"
	"go.uber.org/zap"
)

// Store is the only path through which handlers read and write sessions
type Store struct {
	cache   Cache
	repo    repository.SessionRepository
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewStore creates a cache-aside store over repo
func NewStore(cache Cache, repo repository.SessionRepository, log *logger.Logger, m *metrics.Metrics) *Store {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Store{
		cache:   cache,
		repo:    repo,
		log:     log.Named("session"),
		metrics: m,
		now:     time.Now,
	}
}

// Get returns a fully populated session. Absent rows yield a persisted default session.
func (s *Store) Get(ctx context.Context, tenantID int64, userID string) (*domain.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "session.get")
	defer span.End()
	span.SetAttributes(telemetry.TenantIDAttr(tenantID))

	if sess, ok := s.fromCache(ctx, tenantID, userID); ok {
		return sess, nil
	}

	rec, err := s.repo.Get(ctx, tenantID, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to read session %d/%s: %w", tenantID, userID, err)
	}

	if rec == nil {
		sess := domain.NewSession()
		s.Save(ctx, tenantID, userID, sess)
		return sess, nil
	}

	sess, err := Decode(rec.Data)
	if err != nil {
		s.log.WithContext(ctx).Warn("Stored session unreadable, resetting",
			zap.Int64("tenant_id", tenantID), zap.String("user_id", userID), zap.Error(err))
		sess = &domain.Session{}
		Heal(sess)
	}

	if err := s.cache.Set(ctx, tenantID, userID, sess); err != nil {
		s.log.WithContext(ctx).Warn("Failed to cache session", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
	return sess, nil
}

// Save refreshes the cache synchronously and upserts the durable row.
// Durable write errors are logged; the cache already holds the new state.
func (s *Store) Save(ctx context.Context, tenantID int64, userID string, sess *domain.Session) {
	ctx, span := telemetry.StartSpan(ctx, "session.save")
	defer span.End()

	Heal(sess)
	if err := s.cache.Set(ctx, tenantID, userID, sess); err != nil {
		s.log.WithContext(ctx).Warn("Failed to cache session", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}

	data, err := json.Marshal(sess)
	if err != nil {
		telemetry.RecordError(span, err)
		s.log.WithContext(ctx).Error("Failed to encode session", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return
	}

	err = s.repo.Upsert(ctx, &domain.SessionRecord{
		TenantID:  tenantID,
		UserID:    userID,
		Data:      data,
		UpdatedAt: s.now(),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.log.WithContext(ctx).Error("Failed to persist session",
			zap.Int64("tenant_id", tenantID), zap.String("user_id", userID), zap.Error(err))
	}
}

// Known reports whether the pair is cached or stored
func (s *Store) Known(ctx context.Context, tenantID int64, userID string) (bool, error) {
	if _, ok := s.fromCache(ctx, tenantID, userID); ok {
		return true, nil
	}
	exists, err := s.repo.Exists(ctx, tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check session %d/%s: %w", tenantID, userID, err)
	}
	return exists, nil
}

// CountUsers returns the number of stored users of a tenant, leaving out
// exceptUserID (the owner, who never takes a quota slot)
func (s *Store) CountUsers(ctx context.Context, tenantID int64, exceptUserID string) (int, error) {
	count, err := s.repo.CountByTenant(ctx, tenantID, exceptUserID)
	if err != nil {
		return 0, fmt.Errorf("failed to count users of tenant %d: %w", tenantID, err)
	}
	return count, nil
}

func (s *Store) fromCache(ctx context.Context, tenantID int64, userID string) (*domain.Session, bool) {
	sess, ok, err := s.cache.Get(ctx, tenantID, userID)
	if err != nil {
		s.log.WithContext(ctx).Warn("Session cache read failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
	if ok {
		s.metrics.SessionCache.WithLabelValues("hit").Inc()
		return sess, true
	}
	s.metrics.SessionCache.WithLabelValues("miss").Inc()
	return nil, false
}
