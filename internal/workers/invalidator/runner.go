// Package invalidator evicts cached layouts whose inputs changed in the
// database, for writes that bypassed the application's write path.
package invalidator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"quotelayout/internal/ports"
)

const (
	defaultInterval    = 10 * time.Second
	defaultConcurrency = 4
)

// Evictor drops one cached identifier.
type Evictor interface {
	Invalidate(ctx context.Context, identifier string) error
}

type Runner struct {
	feed        ports.ChangeFeed
	cache       Evictor
	clock       clockwork.Clock
	logger      *slog.Logger
	interval    time.Duration
	concurrency int

	mu    sync.Mutex
	since time.Time
}

type Option func(*Runner)

func WithClock(c clockwork.Clock) Option { return func(r *Runner) { r.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSince sets the initial watermark. By default only changes made after
// New returns are picked up.
func WithSince(t time.Time) Option { return func(r *Runner) { r.since = t } }

func New(feed ports.ChangeFeed, cache Evictor, opts ...Option) *Runner {
	r := &Runner{
		feed:        feed,
		cache:       cache,
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		interval:    defaultInterval,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.since.IsZero() {
		r.since = r.clock.Now()
	}
	return r
}

// Since returns the current watermark.
func (r *Runner) Since() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.since
}

// Run polls the change feed every interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n, err := r.PollOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.WarnContext(ctx, "Change feed poll failed", "error", err)
				}
				continue
			}
			if n > 0 {
				r.logger.DebugContext(ctx, "Invalidated changed layouts", "identifiers", n)
			}
		}
	}
}

// PollOnce evicts every identifier changed since the watermark and returns
// how many were evicted. The watermark only advances when every eviction
// succeeded, so failures are retried on the next poll.
func (r *Runner) PollOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changes, err := r.feed.ChangedSince(ctx, r.since)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	seen := make(map[string]bool)
	var ids []string
	latest := r.since
	for _, ch := range changes {
		for _, id := range ch.Identifiers {
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if ch.ChangedAt.After(latest) {
			latest = ch.ChangedAt
		}
	}

	failed := r.evict(ctx, ids)
	if failed > 0 {
		return len(ids) - failed, nil
	}
	r.since = latest
	return len(ids), nil
}

// evict fans ids out over the worker pool and returns the failure count.
func (r *Runner) evict(ctx context.Context, ids []string) int {
	idCh := make(chan string, len(ids))
	for _, id := range ids {
		idCh <- id
	}
	close(idCh)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	workers := min(r.concurrency, len(ids))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for id := range idCh {
				if err := r.cache.Invalidate(ctx, id); err != nil {
					r.logger.WarnContext(ctx, "Cache invalidation failed", "worker", idx, "identifier", id, "error", err)
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}
		}(i)
	}
	wg.Wait()
	return failed
}
