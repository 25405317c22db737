// Package platform detects marketplaces from product URLs and scrapes their
// product pages and review listings.
package platform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// domainMatchers is checked in order; the first substring hit wins.
var domainMatchers = []struct {
	platform analysis.Platform
	needles  []string
}{
	{analysis.PlatformCoupang, []string{"coupang.com"}},
	{analysis.PlatformAliExpress, []string{"aliexpress.com"}},
	{analysis.PlatformAmazon, []string{"amazon.com", "amazon.co.kr"}},
}

var productIDPatterns = map[analysis.Platform]*regexp.Regexp{
	analysis.PlatformCoupang:    regexp.MustCompile(`products/(\d+)`),
	analysis.PlatformAliExpress: regexp.MustCompile(`item/(\d+)`),
	analysis.PlatformAmazon:     regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`),
}

// Detect classifies a product URL by domain substring.
func Detect(rawURL string) (analysis.Platform, error) {
	for _, m := range domainMatchers {
		for _, needle := range m.needles {
			if strings.Contains(rawURL, needle) {
				return m.platform, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", analysis.ErrUnsupportedPlatform, rawURL)
}

// Preview describes a URL without loading it.
type Preview struct {
	URL       string            `json:"url"`
	Platform  analysis.Platform `json:"platform"`
	ProductID string            `json:"product_id"`
}

// PreviewURL detects the platform and extracts the product id when the URL
// carries one. A missing id is not an error.
func PreviewURL(rawURL string) (Preview, error) {
	p, err := Detect(rawURL)
	if err != nil {
		return Preview{}, err
	}
	out := Preview{URL: rawURL, Platform: p}
	if re, ok := productIDPatterns[p]; ok {
		if m := re.FindStringSubmatch(rawURL); len(m) == 2 {
			out.ProductID = m[1]
		}
	}
	return out, nil
}
