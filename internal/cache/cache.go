package cache

import (
	"context"
	"time"

	"stockledger/backend/internal/domain"
)

// ReorderPlanCache holds computed reorder plans per owner. Plans are cheap
// to rebuild, so every stock-changing write simply deletes the owner's entry.
type ReorderPlanCache interface {
	Get(ctx context.Context, key string) (*domain.ReorderPlan, bool, error)
	Set(ctx context.Context, key string, value *domain.ReorderPlan, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopReorderPlanCache struct{}

func (NoopReorderPlanCache) Get(_ context.Context, _ string) (*domain.ReorderPlan, bool, error) {
	return nil, false, nil
}

func (NoopReorderPlanCache) Set(_ context.Context, _ string, _ *domain.ReorderPlan, _ time.Duration) error {
	return nil
}

func (NoopReorderPlanCache) Delete(_ context.Context, _ string) error {
	return nil
}
