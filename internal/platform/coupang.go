package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// Selectors locates the product and review fields on a storefront page.
type Selectors struct {
	Title       string
	Rating      string
	ReviewCount string
	Price       string
	Image       string

	ReviewTab     analysis.Locator
	ReviewArticle string
	ReviewStars   string
	StarFull      string
	ReviewText    string
	ReviewDate    string
	HelpfulCount  string
	NextPage      analysis.Locator
}

// CoupangSelectors matches the Coupang product detail page.
var CoupangSelectors = Selectors{
	Title:       "h1.prod-buy-header__title",
	Rating:      ".rating-star-num",
	ReviewCount: ".rating-total-review-count",
	Price:       ".total-price strong",
	Image:       ".prod-image__detail img",

	ReviewTab: analysis.Locator{
		XPath: "//a[contains(text(), '상품리뷰')]",
		CSS:   "a:contains('상품리뷰')",
	},
	ReviewArticle: "article.sdp-review__article",
	ReviewStars:   ".sdp-review__rating__star",
	StarFull:      ".icon--star-full",
	ReviewText:    ".sdp-review__article__review",
	ReviewDate:    ".sdp-review__article__date",
	HelpfulCount:  ".sdp-review__article__helpful__count",
	NextPage:      analysis.Locator{CSS: ".sdp-review__article__page__next"},
}

// Coupang scrapes coupang.com product pages.
type Coupang struct {
	sel    Selectors
	opts   Options
	logger *zap.Logger
}

// NewCoupang constructs a Coupang scraper using CoupangSelectors.
func NewCoupang(opts Options) *Coupang {
	return NewCoupangWithSelectors(CoupangSelectors, opts)
}

// NewCoupangWithSelectors constructs a Coupang scraper with custom selectors.
func NewCoupangWithSelectors(sel Selectors, opts Options) *Coupang {
	opts = opts.withDefaults()
	return &Coupang{
		sel:    sel,
		opts:   opts,
		logger: opts.Logger.Named("coupang"),
	}
}

// Platform implements Scraper.
func (c *Coupang) Platform() analysis.Platform {
	return analysis.PlatformCoupang
}

// FetchProductInfo reads the title strictly and every other field best-effort.
func (c *Coupang) FetchProductInfo(ctx context.Context, page analysis.Page) (analysis.ProductInfo, error) {
	doc, err := snapshotDocument(ctx, page)
	if err != nil {
		return analysis.ProductInfo{}, fmt.Errorf("fetch product info: %w", err)
	}
	title := cleanText(doc.Find(c.sel.Title).First())
	if title == "" {
		return analysis.ProductInfo{}, fmt.Errorf("%w: title %q", analysis.ErrFieldExtraction, c.sel.Title)
	}

	info := analysis.ProductInfo{
		Title: title,
		Price: textOrFallback(doc.Find(c.sel.Price), NoPrice),
	}
	if v, err := strconv.ParseFloat(cleanText(doc.Find(c.sel.Rating).First()), 64); err == nil {
		info.Rating = v
	}
	if n, ok := firstInt(cleanText(doc.Find(c.sel.ReviewCount).First())); ok {
		info.ReviewCount = n
	}
	if src, ok := doc.Find(c.sel.Image).First().Attr("src"); ok && src != "" {
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		info.Image = &src
	}
	return info, nil
}

// CrawlReviews opens the review tab and walks the pager.
func (c *Coupang) CrawlReviews(
	ctx context.Context,
	page analysis.Page,
	maxReviews int,
	report analysis.ProgressFunc,
) ([]analysis.Review, error) {
	if report == nil {
		report = func(int, string) {}
	}
	if maxReviews <= 0 {
		return nil, nil
	}
	if err := c.openReviewTab(ctx, page); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("crawl reviews: %w", ctx.Err())
		}
		c.logger.Warn("review tab unavailable", zap.Error(err))
		return nil, nil
	}

	var (
		reviews  []analysis.Review
		lastPage string
	)
	for pageNo := 1; len(reviews) < maxReviews; pageNo++ {
		doc, err := snapshotDocument(ctx, page)
		if err != nil {
			c.logger.Warn("review page unreadable", zap.Int("page", pageNo), zap.Error(err))
			break
		}
		listed := c.parsePage(doc.Find(c.sel.ReviewArticle), pageNo)
		if len(listed) == 0 {
			break
		}
		fingerprint := c.pageFingerprint(listed)
		if fingerprint != "" && fingerprint == lastPage {
			c.logger.Debug("pager did not advance", zap.Int("page", pageNo))
			break
		}
		lastPage = fingerprint

		for _, review := range listed {
			if len(reviews) >= maxReviews {
				break
			}
			review.ID = fmt.Sprintf("review_%d", len(reviews))
			reviews = append(reviews, review)
		}
		report(crawlProgress(len(reviews), maxReviews),
			fmt.Sprintf("리뷰 수집 중... (%d/%d)", len(reviews), maxReviews))

		if len(reviews) >= maxReviews {
			break
		}
		next := doc.Find(c.sel.NextPage.CSS).First()
		if next.Length() == 0 || isDisabled(next) {
			break
		}
		if err := page.Click(ctx, c.sel.NextPage); err != nil {
			c.logger.Debug("pager click failed", zap.Int("page", pageNo), zap.Error(err))
			break
		}
		if err := Settle(ctx, c.opts.Settle); err != nil {
			return reviews, fmt.Errorf("crawl reviews: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return reviews, fmt.Errorf("crawl reviews: %w", err)
	}
	return reviews, nil
}

func (c *Coupang) openReviewTab(ctx context.Context, page analysis.Page) error {
	if err := page.WaitClickable(ctx, c.sel.ReviewTab, c.opts.WaitTimeout); err != nil {
		return err
	}
	if err := page.Click(ctx, c.sel.ReviewTab); err != nil {
		return err
	}
	return Settle(ctx, c.opts.Settle)
}

// parseReview reads one article. Rating, text and date are required; a
// missing helpful count reads as 0.
func (c *Coupang) parseReview(s *goquery.Selection) (analysis.Review, error) {
	stars := s.Find(c.sel.ReviewStars).First()
	if stars.Length() == 0 {
		return analysis.Review{}, fmt.Errorf("%w: rating", analysis.ErrFieldExtraction)
	}
	textSel := s.Find(c.sel.ReviewText).First()
	if textSel.Length() == 0 {
		return analysis.Review{}, fmt.Errorf("%w: text", analysis.ErrFieldExtraction)
	}
	dateSel := s.Find(c.sel.ReviewDate).First()
	if dateSel.Length() == 0 {
		return analysis.Review{}, fmt.Errorf("%w: date", analysis.ErrFieldExtraction)
	}
	helpful, _ := firstInt(cleanText(s.Find(c.sel.HelpfulCount).First()))
	return analysis.Review{
		Rating:       min(stars.Find(c.sel.StarFull).Length(), 5),
		Text:         cleanText(textSel),
		Date:         cleanText(dateSel),
		HelpfulCount: helpful,
		Platform:     analysis.PlatformCoupang,
	}, nil
}

// parsePage reads every well-formed article on the current page. Identical
// records are distinct reviews and all of them are kept.
func (c *Coupang) parsePage(articles *goquery.Selection, pageNo int) []analysis.Review {
	listed := make([]analysis.Review, 0, articles.Length())
	articles.Each(func(_ int, s *goquery.Selection) {
		review, err := c.parseReview(s)
		if err != nil {
			c.logger.Warn("skipping review", zap.Int("page", pageNo), zap.Error(err))
			return
		}
		listed = append(listed, review)
	})
	return listed
}

// pageFingerprint digests every record on a page. Two consecutive pages with
// the same fingerprint mean the pager click did not load a new page.
func (c *Coupang) pageFingerprint(listed []analysis.Review) string {
	fields := make([]string, 0, len(listed)*4)
	for _, r := range listed {
		fields = append(fields, r.Text, r.Date, strconv.Itoa(r.Rating), strconv.Itoa(r.HelpfulCount))
	}
	key, err := c.opts.Hasher.HashFields(fields...)
	if err != nil {
		return ""
	}
	return key
}

func isDisabled(sel *goquery.Selection) bool {
	if strings.Contains(sel.AttrOr("class", ""), "disabled") {
		return true
	}
	_, ok := sel.Attr("disabled")
	return ok
}
