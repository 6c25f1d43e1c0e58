package rbac

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/keyfold/keyfold/internal/authz"
)

// RepositoryPort defines data access needed by the aggregator.
type RepositoryPort interface {
	RoleFor(ctx context.Context, userID, orgID string) (Role, error)
}

// Service flattens role flags and org-scoped tuple grants into an
// EffectivePermissions snapshot per (user, org) pair.
type Service struct {
	repo   RepositoryPort
	tuples authz.TupleStore
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs the aggregator. The cache may be nil, in which case
// every call recomputes.
func NewService(repo RepositoryPort, tuples authz.TupleStore, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tuples: tuples, cache: cache, logger: logger, now: time.Now}
}

// Effective returns the snapshot for the pair, computing and caching it on
// a miss. Concurrent misses for the same pair collapse into one compute.
func (s *Service) Effective(ctx context.Context, userID, orgID string) (EffectivePermissions, error) {
	if snapshot, ok, err := s.cache.Get(ctx, userID, orgID); err == nil && ok {
		return snapshot, nil
	} else if err != nil {
		s.logger.Warn("effective permissions cache read", slog.Any("error", err))
	}

	v, err, _ := s.group.Do(orgID+"/"+userID, func() (any, error) {
		snapshot, err := s.compute(ctx, userID, orgID)
		if err != nil {
			return EffectivePermissions{}, err
		}
		if err := s.cache.Set(ctx, userID, orgID, snapshot); err != nil {
			s.logger.Warn("effective permissions cache write", slog.Any("error", err))
		}
		return snapshot, nil
	})
	if err != nil {
		return EffectivePermissions{}, err
	}
	return v.(EffectivePermissions), nil
}

// Invalidate drops the cached snapshot after a role or tuple mutation
// affecting the pair. The next Effective call recomputes from scratch.
func (s *Service) Invalidate(ctx context.Context, userID, orgID string) {
	if err := s.cache.Delete(ctx, userID, orgID); err != nil {
		s.logger.Warn("effective permissions invalidate", slog.Any("error", err))
	}
}

// compute always rebuilds the full snapshot; incremental patching would
// drift when role and tuple sources change independently.
func (s *Service) compute(ctx context.Context, userID, orgID string) (EffectivePermissions, error) {
	capabilities := make(map[Capability]bool, len(Capabilities()))
	for _, cap := range Capabilities() {
		capabilities[cap] = false
	}

	role, err := s.repo.RoleFor(ctx, userID, orgID)
	switch {
	case err == nil:
		for cap, on := range role.Capabilities {
			if on {
				capabilities[cap] = true
			}
		}
	case errors.Is(err, ErrNoMembership):
		// Tuple grants may still apply to non-members.
	default:
		return EffectivePermissions{}, err
	}

	tuples, err := s.tuples.BySubject(ctx, authz.UserSubject(userID))
	if err != nil {
		return EffectivePermissions{}, err
	}
	for _, t := range tuples {
		if t.Object.Type != authz.ObjectOrg || t.Object.ID != orgID {
			continue
		}
		for _, cap := range relationGrants[t.Relation] {
			capabilities[cap] = true
		}
	}

	return EffectivePermissions{Capabilities: capabilities, ComputedAt: s.now()}, nil
}
