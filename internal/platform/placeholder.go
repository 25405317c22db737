package platform

import (
	"context"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// fixedScraper serves storefronts whose page structure is not mapped yet. It
// reports a fixed product summary and an empty review listing.
type fixedScraper struct {
	platform analysis.Platform
	info     analysis.ProductInfo
}

// NewAliExpress returns the AliExpress scraper.
func NewAliExpress() Scraper {
	return &fixedScraper{
		platform: analysis.PlatformAliExpress,
		info: analysis.ProductInfo{
			Title:       "AliExpress 상품",
			Rating:      4.5,
			ReviewCount: 100,
			Price:       "$19.99",
		},
	}
}

// NewAmazon returns the Amazon scraper.
func NewAmazon() Scraper {
	return &fixedScraper{
		platform: analysis.PlatformAmazon,
		info: analysis.ProductInfo{
			Title:       "Amazon 상품",
			Rating:      4.2,
			ReviewCount: 200,
			Price:       "$29.99",
		},
	}
}

func (f *fixedScraper) Platform() analysis.Platform {
	return f.platform
}

func (f *fixedScraper) FetchProductInfo(ctx context.Context, _ analysis.Page) (analysis.ProductInfo, error) {
	if err := ctx.Err(); err != nil {
		return analysis.ProductInfo{}, err
	}
	return f.info, nil
}

func (f *fixedScraper) CrawlReviews(
	ctx context.Context,
	_ analysis.Page,
	_ int,
	_ analysis.ProgressFunc,
) ([]analysis.Review, error) {
	return nil, ctx.Err()
}
