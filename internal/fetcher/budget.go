package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RequestBudget gates GitHub API calls for one scan run.
//
// Two mechanisms are combined:
//   - pacing: a token bucket (x/time/rate) spaces calls by a fixed interval
//   - quota: X-RateLimit-* and Retry-After headers observed on responses block
//     callers until the quota resets or the cooldown ends
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	now       func() time.Time
	probed    bool
	cooldown  time.Time
	notifyCh  chan struct{}
	limiter   *rate.Limiter
	backoff   time.Duration
}

type BudgetOption func(*RequestBudget)

// WithPacing enforces at most burst calls at once and one new call per interval.
// A non-positive interval disables pacing.
func WithPacing(interval time.Duration, burst int) BudgetOption {
	return func(b *RequestBudget) {
		if interval <= 0 {
			b.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// WithBackoffBase sets the first cooldown used when a rate-limit response
// carries no usable headers. Each further attempt doubles it.
func WithBackoffBase(d time.Duration) BudgetOption {
	return func(b *RequestBudget) {
		if d > 0 {
			b.backoff = d
		}
	}
}

func NewRequestBudget(opts ...BudgetOption) *RequestBudget {
	b := &RequestBudget{
		remaining: 5000, // Default conservative start
		reset:     time.Now().Add(1 * time.Hour),
		now:       time.Now,
		notifyCh:  make(chan struct{}),
		backoff:   2 * time.Second,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(b)
		}
	}
	return b
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// CooldownUntil returns the end of the current cooldown (zero if none was set).
func (b *RequestBudget) CooldownUntil() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooldown
}

func (b *RequestBudget) Acquire(ctx context.Context, n int) error {
	if ctx == nil {
		return fmt.Errorf("Acquire: nil context")
	}
	if n <= 0 {
		return fmt.Errorf("Acquire: n must be > 0 (got %d)", n)
	}
	if b == nil {
		return fmt.Errorf("Acquire: nil RequestBudget")
	}
	if b.now == nil {
		return fmt.Errorf("Acquire: RequestBudget.now is nil (use NewRequestBudget)")
	}
	if b.notifyCh == nil {
		return fmt.Errorf("Acquire: RequestBudget.notifyCh is nil (use NewRequestBudget)")
	}

	for i := 0; i < n; i++ {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := b.acquireOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *RequestBudget) acquireOne(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()

		if now.Before(b.cooldown) {
			until := b.cooldown
			ch := b.notifyCh
			b.mu.Unlock()
			if err := waitUntil(ctx, until.Sub(now), ch); err != nil {
				return err
			}
			continue
		}

		if b.remaining > 0 {
			b.remaining--
			b.mu.Unlock()
			return nil
		}

		// If reset has passed but we haven't observed a refreshed budget yet,
		// allow exactly one probe request and then block until UpdateFromResponse.
		if !now.Before(b.reset) {
			if !b.probed {
				b.probed = true
				b.mu.Unlock()
				return nil
			}
			ch := b.notifyCh
			b.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ch:
				continue
			}
		}

		// Wait until reset time or until UpdateFromResponse signals budget changes.
		reset := b.reset
		ch := b.notifyCh
		b.mu.Unlock()
		if err := waitUntil(ctx, reset.Sub(now), ch); err != nil {
			return err
		}
	}
}

// waitUntil blocks for d, until ch is closed, or until ctx is done.
func waitUntil(ctx context.Context, d time.Duration, ch <-chan struct{}) error {
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	}
}

func (b *RequestBudget) signalLocked() {
	if b.notifyCh == nil {
		b.notifyCh = make(chan struct{})
		return
	}
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
}

func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}
	if b == nil {
		return
	}
	if b.now == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			if seconds > 0 {
				changed = b.extendCooldownLocked(b.now().Add(time.Duration(seconds)*time.Second)) || changed
			}
		}
	}

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			if val >= 0 {
				if b.remaining != val {
					b.remaining = val
					changed = true
				}
			}
		}
	}

	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if val > 0 {
				newReset := time.Unix(val, 0)
				if !b.reset.Equal(newReset) {
					b.reset = newReset
					changed = true
				}
			}
		}
	}

	if changed {
		b.probed = false
		b.signalLocked()
	}
}

// Backoff registers a rate-limit response that carried no Retry-After header.
// The cooldown grows exponentially with attempt (0-based) and never shrinks an
// existing cooldown.
func (b *RequestBudget) Backoff(attempt int) time.Duration {
	if b == nil || b.now == nil {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 6 {
		attempt = 6
	}
	d := b.backoff << attempt

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.extendCooldownLocked(b.now().Add(d)) {
		b.signalLocked()
	}
	return d
}

func (b *RequestBudget) extendCooldownLocked(until time.Time) bool {
	if until.After(b.cooldown) {
		b.cooldown = until
		return true
	}
	return false
}

// WaitEstimate returns how long the next Acquire would block on quota alone
// (pacing excluded).
func (b *RequestBudget) WaitEstimate() time.Duration {
	if b == nil || b.now == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	var wait time.Duration
	if now.Before(b.cooldown) {
		wait = b.cooldown.Sub(now)
	}
	if b.remaining <= 0 && now.Before(b.reset) {
		if d := b.reset.Sub(now); d > wait {
			wait = d
		}
	}
	return wait
}

// exhaustUntil records an exhausted quota that resets at reset.
func (b *RequestBudget) exhaustUntil(reset time.Time) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = 0
	if !reset.IsZero() {
		b.reset = reset
	}
	b.probed = false
	b.signalLocked()
}

// coolDownFor extends the cooldown by d from now.
func (b *RequestBudget) coolDownFor(d time.Duration) {
	if b == nil || b.now == nil || d <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.extendCooldownLocked(b.now().Add(d)) {
		b.signalLocked()
	}
}
