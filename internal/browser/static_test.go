package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

func newListingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/reviews/1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a class="tab" href="#sdpReview">상품리뷰</a>
			<article>first page</article>
			<a class="next" href="/reviews/2">다음</a>
			<button class="js-only">more</button>
		</body></html>`)
	})
	mux.HandleFunc("/reviews/2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><article>second page</article><span class="next" data-href="/reviews/1">처음</span></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStaticPageNavigateAndClick(t *testing.T) {
	t.Parallel()

	srv := newListingServer(t)
	driver := NewStatic(Config{UserAgent: "review-bot/test", NavigationTimeout: time.Second}, zap.NewNop())
	defer driver.Close()

	ctx := context.Background()
	page, err := driver.NewPage(ctx)
	require.NoError(t, err)
	defer func() { require.NoError(t, page.Close()) }()

	_, err = page.Snapshot(ctx)
	require.ErrorIs(t, err, analysis.ErrPageFetch, "nothing loaded yet")

	require.NoError(t, page.Navigate(ctx, srv.URL+"/reviews/1"))
	html, err := page.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, html, "first page")

	tab := analysis.Locator{CSS: "a:contains('상품리뷰')", XPath: "//a[contains(text(), '상품리뷰')]"}
	require.NoError(t, page.WaitClickable(ctx, tab, time.Second))
	require.NoError(t, page.Click(ctx, tab), "fragment links stay on the page")

	next := analysis.Locator{CSS: ".next"}
	require.NoError(t, page.Click(ctx, next))
	html, err = page.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, html, "second page")

	require.NoError(t, page.Click(ctx, next), "data-href is followed too")
	html, err = page.Snapshot(ctx)
	require.NoError(t, err)
	require.Contains(t, html, "first page")
}

func TestStaticPageClickErrors(t *testing.T) {
	t.Parallel()

	srv := newListingServer(t)
	page, err := NewStatic(Config{}, nil).NewPage(context.Background())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, srv.URL+"/reviews/1"))

	require.ErrorIs(t, page.Click(ctx, analysis.Locator{CSS: "button.js-only"}), ErrNotNavigable)
	require.ErrorIs(t, page.Click(ctx, analysis.Locator{CSS: ".missing"}), ErrElementNotFound)
	require.ErrorIs(t, page.WaitClickable(ctx, analysis.Locator{CSS: ".missing"}, time.Millisecond), ErrElementNotFound)
	require.Error(t, page.Click(ctx, analysis.Locator{XPath: "//a"}), "xpath-only locators need a css fallback")

	require.NoError(t, page.Close())
	require.NoError(t, page.Close())
	require.ErrorIs(t, page.Navigate(ctx, srv.URL+"/reviews/1"), ErrClosed)
	_, err = page.Snapshot(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestStaticPageNavigateFailures(t *testing.T) {
	t.Parallel()

	srv := newListingServer(t)
	page, err := NewStatic(Config{}, nil).NewPage(context.Background())
	require.NoError(t, err)

	err = page.Navigate(context.Background(), srv.URL+"/missing")
	require.ErrorIs(t, err, analysis.ErrPageFetch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewStatic(Config{}, nil).NewPage(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewSelectsDriver(t *testing.T) {
	t.Parallel()

	d, err := New(Config{Driver: DriverStatic}, nil)
	require.NoError(t, err)
	require.IsType(t, &Static{}, d)

	d, err = New(Config{Driver: DriverChromedp, MaxParallel: 1}, nil)
	require.NoError(t, err)
	require.IsType(t, &Chromedp{}, d)
	d.Close()

	_, err = New(Config{Driver: "selenium"}, nil)
	require.ErrorContains(t, err, "unknown browser driver")
}
