package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Budget enforces a local daily request limit and a minimum spacing between
// requests in front of another provider
type Budget struct {
	inner   Provider
	limit   int
	limiter *rate.Limiter
	now     func() time.Time

	mu   sync.Mutex
	day  string
	used int
}

// NewBudget wraps inner. dailyLimit <= 0 disables the daily cap;
// perSecond <= 0 disables spacing.
func NewBudget(inner Provider, dailyLimit int, perSecond float64) *Budget {
	lim := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &Budget{
		inner:   inner,
		limit:   dailyLimit,
		limiter: lim,
		now:     time.Now,
	}
}

// Search forwards q unless the daily budget is spent
func (b *Budget) Search(ctx context.Context, q Query) ([]string, error) {
	if err := b.reserve(); err != nil {
		return nil, err
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return b.inner.Search(ctx, q)
}

func (b *Budget) reserve() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if today := b.now().Format(time.DateOnly); today != b.day {
		b.day = today
		b.used = 0
	}
	if b.limit > 0 && b.used >= b.limit {
		return fmt.Errorf("local daily limit of %d requests reached: %w", b.limit, ErrQuotaExceeded)
	}
	b.used++
	return nil
}

// Used returns the number of requests spent today
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}
