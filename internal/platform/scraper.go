package platform

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
	"github.com/JakeFAU/review-analyzer/internal/hash/sha256"
)

// Field fallbacks.
const (
	UnknownTitle = "상품명을 가져올 수 없습니다"
	NoPrice      = "가격 정보 없음"
)

// crawlBand is the share of the 0-100 progress scale owned by the page walk.
const crawlBand = 70

// Scraper reads one marketplace's product page and review listing.
type Scraper interface {
	Platform() analysis.Platform
	// FetchProductInfo reads the product summary from an already loaded page.
	FetchProductInfo(ctx context.Context, page analysis.Page) (analysis.ProductInfo, error)
	// CrawlReviews walks the review listing until maxReviews are collected or
	// pagination ends. Fewer reviews than requested is not an error.
	CrawlReviews(ctx context.Context, page analysis.Page, maxReviews int, report analysis.ProgressFunc) ([]analysis.Review, error)
}

// FieldHasher digests review fields into a page fingerprint.
type FieldHasher interface {
	HashFields(fields ...string) (string, error)
}

// Options tunes scraper timing and collaborators.
type Options struct {
	WaitTimeout time.Duration
	Settle      time.Duration
	Hasher      FieldHasher
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 10 * time.Second
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	if o.Hasher == nil {
		o.Hasher = sha256.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// PlaceholderProductInfo is substituted when the product page cannot be read.
func PlaceholderProductInfo() analysis.ProductInfo {
	return analysis.ProductInfo{
		Title: UnknownTitle,
		Price: NoPrice,
	}
}

// Registry maps platforms to scrapers.
type Registry struct {
	scrapers map[analysis.Platform]Scraper
}

// NewRegistry builds the scrapers for every supported platform.
func NewRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	return NewRegistryWith(
		NewCoupang(opts),
		NewAliExpress(),
		NewAmazon(),
	)
}

// NewRegistryWith builds a registry from explicit scrapers.
func NewRegistryWith(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[analysis.Platform]Scraper, len(scrapers))}
	for _, s := range scrapers {
		r.scrapers[s.Platform()] = s
	}
	return r
}

// Lookup returns the scraper for p.
func (r *Registry) Lookup(p analysis.Platform) (Scraper, error) {
	s, ok := r.scrapers[p]
	if !ok {
		return nil, fmt.Errorf("%w: no scraper for %q", analysis.ErrUnsupportedPlatform, p)
	}
	return s, nil
}

// ForURL detects the platform of rawURL and returns its scraper.
func (r *Registry) ForURL(rawURL string) (Scraper, error) {
	p, err := Detect(rawURL)
	if err != nil {
		return nil, err
	}
	return r.Lookup(p)
}

// Settle pauses for d or until ctx ends.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

func snapshotDocument(ctx context.Context, page analysis.Page) (*goquery.Document, error) {
	html, err := page.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse snapshot: %w", analysis.ErrPageFetch, err)
	}
	return doc, nil
}

// cleanText returns the selection text with whitespace runs collapsed.
func cleanText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func textOrFallback(sel *goquery.Selection, fallback string) string {
	if text := cleanText(sel.First()); text != "" {
		return text
	}
	return fallback
}

var digitsPattern = regexp.MustCompile(`\d[\d,]*`)

// firstInt parses the first digit run in s, ignoring thousands separators.
func firstInt(s string) (int, bool) {
	m := digitsPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

func crawlProgress(collected, target int) int {
	if target <= 0 {
		return 0
	}
	return min(collected*crawlBand/target, crawlBand)
}
