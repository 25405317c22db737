package browser

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

const defaultStaticTimeout = 15 * time.Second

// Static drives pages over plain HTTP with colly. Clicking follows the
// element's href, so it only handles server-rendered pagination.
type Static struct {
	base   *colly.Collector
	logger *zap.Logger
}

// NewStatic builds a colly-backed driver.
func NewStatic(cfg Config, logger *zap.Logger) *Static {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	timeout := cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultStaticTimeout
	}
	c.SetRequestTimeout(timeout)
	return &Static{base: c, logger: logger.Named("static")}
}

// Close implements Driver; the static driver holds no process resources.
func (s *Static) Close() {}

// NewPage returns an empty session.
func (s *Static) NewPage(ctx context.Context) (analysis.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open static page: %w", err)
	}
	return &staticPage{base: s.base, logger: s.logger}, nil
}

type staticPage struct {
	base   *colly.Collector
	logger *zap.Logger

	mu      sync.Mutex
	current *url.URL
	html    string
	closed  bool
}

func (p *staticPage) Navigate(ctx context.Context, rawURL string) error {
	if p.isClosed() {
		return ErrClosed
	}
	body, final, err := p.visit(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("%w: navigate %s: %w", analysis.ErrPageFetch, rawURL, err)
	}
	p.mu.Lock()
	p.html = body
	p.current = final
	p.mu.Unlock()
	return nil
}

func (p *staticPage) Snapshot(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	if p.current == nil {
		return "", fmt.Errorf("%w: no page loaded", analysis.ErrPageFetch)
	}
	return p.html, nil
}

// Click follows href or data-href on the matched element. In-page fragment
// links succeed without a request.
func (p *staticPage) Click(ctx context.Context, loc analysis.Locator) error {
	sel, base, err := p.find(loc)
	if err != nil {
		return err
	}
	href, ok := sel.Attr("href")
	if !ok {
		href, ok = sel.Attr("data-href")
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return fmt.Errorf("%w: %s", ErrNotNavigable, loc)
	}
	if strings.HasPrefix(href, "#") {
		return nil
	}
	target, err := base.Parse(href)
	if err != nil {
		return fmt.Errorf("resolve href %q: %w", href, err)
	}
	return p.Navigate(ctx, target.String())
}

// WaitClickable succeeds when the element exists in the current document.
// A static document never changes, so there is nothing to wait for.
func (p *staticPage) WaitClickable(_ context.Context, loc analysis.Locator, _ time.Duration) error {
	_, _, err := p.find(loc)
	return err
}

func (p *staticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.html = ""
	return nil
}

func (p *staticPage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *staticPage) find(loc analysis.Locator) (*goquery.Selection, *url.URL, error) {
	if loc.CSS == "" {
		return nil, nil, fmt.Errorf("locator %s has no css selector", loc)
	}
	p.mu.Lock()
	html, current, closed := p.html, p.current, p.closed
	p.mu.Unlock()
	if closed {
		return nil, nil, ErrClosed
	}
	if current == nil {
		return nil, nil, fmt.Errorf("%w: no page loaded", analysis.ErrPageFetch)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parse snapshot: %w", err)
	}
	sel := doc.Find(loc.CSS).First()
	if sel.Length() == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	return sel, current, nil
}

func (p *staticPage) visit(ctx context.Context, rawURL string) (string, *url.URL, error) {
	var (
		body     string
		final    *url.URL
		fetchErr error
	)
	collector := p.base.Clone()
	collector.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
		final = r.Request.URL
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return "", nil, fmt.Errorf("static visit canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return "", nil, fetchErr
		}
		if err != nil {
			return "", nil, fmt.Errorf("colly visit: %w", err)
		}
		if final == nil {
			return "", nil, fmt.Errorf("no response for %s", rawURL)
		}
		p.logger.Debug("static page loaded", zap.String("url", final.String()), zap.Int("bytes", len(body)))
		return body, final, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
