package ports

import (
	"context"
	"time"

	"quotelayout/internal/domain"
)

// LayoutCache stores resolved layouts keyed by the identifier callers used.
type LayoutCache interface {
	Get(ctx context.Context, identifier string) (domain.ResolvedLayout, bool)
	Set(ctx context.Context, identifier string, layout domain.ResolvedLayout)
	Invalidate(ctx context.Context, identifier string) error
}

// Change names a company whose layout inputs changed. Identifiers holds every
// alias the cache may be keyed by.
type Change struct {
	Identifiers []string
	ChangedAt   time.Time
}

// ChangeFeed reports layout-affecting writes since a point in time.
type ChangeFeed interface {
	ChangedSince(ctx context.Context, since time.Time) ([]Change, error)
}

// Invalidator evicts a cached resolution on every node.
type Invalidator interface {
	Publish(ctx context.Context, identifier string) error
}
