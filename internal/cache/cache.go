package cache

import (
	"context"
	"time"

	"kantina/backend/internal/domain"
)

// CatalogCache holds the slow-moving lookup data (branches, menu catalog) and
// the latest report snapshot so the dashboard does not re-read them from the
// store on every request.
type CatalogCache interface {
	GetBranches(ctx context.Context) ([]domain.Branch, bool, error)
	SetBranches(ctx context.Context, branches []domain.Branch, ttl time.Duration) error
	GetMenu(ctx context.Context) ([]domain.MenuItem, bool, error)
	SetMenu(ctx context.Context, items []domain.MenuItem, ttl time.Duration) error
	GetSummary(ctx context.Context, key string) (*domain.ReportSummary, bool, error)
	SetSummary(ctx context.Context, key string, summary *domain.ReportSummary, ttl time.Duration) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) GetBranches(_ context.Context) ([]domain.Branch, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetBranches(_ context.Context, _ []domain.Branch, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) GetMenu(_ context.Context) ([]domain.MenuItem, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetMenu(_ context.Context, _ []domain.MenuItem, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) GetSummary(_ context.Context, _ string) (*domain.ReportSummary, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetSummary(_ context.Context, _ string, _ *domain.ReportSummary, _ time.Duration) error {
	return nil
}
