package browser

import (
	"context"
	"sync"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// Waiter paces requests to the host of a URL.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Throttle wraps a driver so that every navigation and click waits on the
// waiter first. Clicks are charged to the host of the last navigated URL.
func Throttle(d Driver, w Waiter) Driver {
	if w == nil {
		return d
	}
	return &throttled{Driver: d, waiter: w}
}

type throttled struct {
	Driver
	waiter Waiter
}

func (t *throttled) NewPage(ctx context.Context) (analysis.Page, error) {
	page, err := t.Driver.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return &throttledPage{Page: page, waiter: t.waiter}, nil
}

type throttledPage struct {
	analysis.Page
	waiter Waiter

	mu   sync.Mutex
	last string
}

func (p *throttledPage) Navigate(ctx context.Context, url string) error {
	if err := p.waiter.Wait(ctx, url); err != nil {
		return err
	}
	p.mu.Lock()
	p.last = url
	p.mu.Unlock()
	return p.Page.Navigate(ctx, url)
}

func (p *throttledPage) Click(ctx context.Context, loc analysis.Locator) error {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if err := p.waiter.Wait(ctx, last); err != nil {
		return err
	}
	return p.Page.Click(ctx, loc)
}
