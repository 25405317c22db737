package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	hideWebdriverScript      = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`
)

// runFunc executes chromedp actions; chromedp.Run outside tests.
type runFunc func(ctx context.Context, actions ...chromedp.Action) error

// Chromedp opens tabs in a shared Chrome process.
type Chromedp struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	run         runFunc
	logger      *zap.Logger

	mu            sync.Mutex
	browser       context.Context
	browserCancel context.CancelFunc
}

// NewChromedp creates a chromedp-backed driver. Chrome starts lazily with the first page.
func NewChromedp(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)

	return &Chromedp{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		run:         chromedp.Run,
		logger:      logger.Named("chromedp"),
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// Close shuts down the Chrome process.
func (c *Chromedp) Close() {
	c.mu.Lock()
	if c.browserCancel != nil {
		c.browserCancel()
		c.browser, c.browserCancel = nil, nil
	}
	c.mu.Unlock()
	c.allocCancel()
}

// NewPage opens a tab and applies the session setup. The caller must Close it.
func (c *Chromedp) NewPage(ctx context.Context) (analysis.Page, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	parent, err := c.browserContext(ctx)
	if err != nil {
		c.release()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	tab, cancel := chromedp.NewContext(parent)
	if err := c.allocate(ctx, tab, cancel); err != nil {
		c.release()
		return nil, fmt.Errorf("open browser tab: %w", err)
	}
	p := &chromedpPage{
		tab:        tab,
		cancel:     cancel,
		release:    c.release,
		exec:       c.run,
		navTimeout: c.cfg.NavigationTimeout,
	}
	if err := p.run(ctx, c.cfg.NavigationTimeout, c.setupAction()); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("start browser tab: %w", err)
	}
	return p, nil
}

// browserContext returns the context owning the Chrome process, launching
// Chrome on first use.
func (c *Chromedp) browserContext(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil && c.browser.Err() == nil {
		return c.browser, nil
	}
	if err := c.allocator.Err(); err != nil {
		return nil, ErrClosed
	}
	browserCtx, cancel := chromedp.NewContext(c.allocator,
		chromedp.WithErrorf(c.logger.Sugar().Debugf),
	)
	if err := c.allocate(ctx, browserCtx, cancel); err != nil {
		return nil, err
	}
	c.browser, c.browserCancel = browserCtx, cancel
	c.logger.Info("chrome started")
	return browserCtx, nil
}

// allocate performs the first Run on a chromedp context. That Run binds the
// browser or target to the context it receives, so it runs on target itself
// with no deadline. The caller's ctx and the navigation timeout abort the
// attempt by canceling target. On success target stays open and cancel is
// left to the owner.
func (c *Chromedp) allocate(ctx, target context.Context, cancel context.CancelFunc) error {
	cancelOnce := sync.OnceFunc(cancel)
	timer := time.AfterFunc(c.cfg.NavigationTimeout, cancelOnce)
	stop := context.AfterFunc(ctx, cancelOnce)
	err := c.run(target)
	timedOut := !timer.Stop()
	aborted := !stop()
	switch {
	case aborted:
		cancelOnce()
		return fmt.Errorf("chromedp allocate: %w", context.Cause(ctx))
	case timedOut:
		cancelOnce()
		return fmt.Errorf("chromedp allocate: %w", context.DeadlineExceeded)
	case err != nil:
		cancelOnce()
		return fmt.Errorf("chromedp allocate: %w", err)
	}
	return nil
}

func (c *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx); err != nil {
			return fmt.Errorf("install webdriver mask: %w", err)
		}
		return nil
	})
}

func (c *Chromedp) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (c *Chromedp) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}

type chromedpPage struct {
	tab        context.Context
	cancel     context.CancelFunc
	release    func()
	exec       runFunc
	navTimeout time.Duration
	closeOnce  sync.Once
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx, p.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: navigate %s: %w", analysis.ErrPageFetch, url, err)
	}
	return nil
}

func (p *chromedpPage) Snapshot(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.navTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("%w: snapshot: %w", analysis.ErrPageFetch, err)
	}
	return html, nil
}

func (p *chromedpPage) Click(ctx context.Context, loc analysis.Locator) error {
	sel, by := locatorQuery(loc)
	if err := p.run(ctx, p.navTimeout, chromedp.Click(sel, by)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (p *chromedpPage) WaitClickable(ctx context.Context, loc analysis.Locator, timeout time.Duration) error {
	sel, by := locatorQuery(loc)
	err := p.run(ctx, timeout,
		chromedp.WaitVisible(sel, by),
		chromedp.WaitEnabled(sel, by),
	)
	if err != nil {
		return fmt.Errorf("%w: wait %s: %w", ErrElementNotFound, loc, err)
	}
	return nil
}

func (p *chromedpPage) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.release()
	})
	return nil
}

// run executes actions on an allocated tab bounded by timeout and by the
// caller's ctx.
func (p *chromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if p.tab.Err() != nil {
		return ErrClosed
	}
	if timeout <= 0 {
		timeout = p.navTimeout
	}
	runCtx, cancel := context.WithTimeout(p.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	exec := p.exec
	if exec == nil {
		exec = chromedp.Run
	}
	if err := exec(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func locatorQuery(loc analysis.Locator) (string, chromedp.QueryOption) {
	if loc.XPath != "" {
		return loc.XPath, chromedp.BySearch
	}
	return loc.CSS, chromedp.ByQuery
}
