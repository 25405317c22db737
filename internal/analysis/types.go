// Package analysis defines the core types shared by the review analyzer subsystems.
package analysis

import (
	"time"
)

// Platform identifies a supported marketplace.
type Platform string

// Supported marketplaces.
const (
	PlatformCoupang    Platform = "coupang"
	PlatformAliExpress Platform = "aliexpress"
	PlatformAmazon     Platform = "amazon"
)

// Status represents the lifecycle state of an analysis.
type Status string

// Status values in lifecycle order.
const (
	StatusStarting  Status = "starting"
	StatusCrawling  Status = "crawling"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle forward-only.
// Re-entering the current state is allowed so progress can be updated in place.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	return next.rank() >= s.rank()
}

func (s Status) rank() int {
	switch s {
	case StatusStarting:
		return 0
	case StatusCrawling:
		return 1
	case StatusAnalyzing:
		return 2
	case StatusCompleted, StatusError:
		return 3
	default:
		return -1
	}
}

// Sentiment is the coarse polarity bucket of a text.
type Sentiment string

// Sentiment buckets.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Review is one scraped review record. It is not modified after the page walk.
type Review struct {
	ID           string   `json:"id"`
	Rating       int      `json:"rating"`
	Text         string   `json:"text"`
	Date         string   `json:"date"`
	HelpfulCount int      `json:"helpful_count"`
	Platform     Platform `json:"platform"`
}

// ProductInfo summarizes the product page.
type ProductInfo struct {
	Title       string  `json:"title"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
	Price       string  `json:"price"`
	Image       *string `json:"image"`
}

// ReviewSentiment is the per-review scoring detail.
type ReviewSentiment struct {
	Sentiment Sentiment `json:"sentiment"`
	Polarity  float64   `json:"polarity"`
}

// SentimentSummary aggregates polarity over a review set.
type SentimentSummary struct {
	Positive float64           `json:"positive"`
	Negative float64           `json:"negative"`
	Neutral  float64           `json:"neutral"`
	Score    float64           `json:"score"`
	Details  []ReviewSentiment `json:"details"`
}

// KeywordEntry is one ranked keyword.
type KeywordEntry struct {
	Word      string    `json:"word"`
	Count     int       `json:"count"`
	Sentiment Sentiment `json:"sentiment"`
}

// Statistics holds the rating and length aggregates.
type Statistics struct {
	TotalReviews       int         `json:"total_reviews"`
	AvgRating          float64     `json:"avg_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
	AvgReviewLength    int         `json:"avg_review_length"`
}

// Result is the terminal output of a completed analysis.
type Result struct {
	ID          string           `json:"id"`
	ProductInfo ProductInfo      `json:"product_info"`
	Statistics  Statistics       `json:"statistics"`
	Sentiment   SentimentSummary `json:"sentiment"`
	Keywords    []KeywordEntry   `json:"keywords"`
	RawReviews  []Review         `json:"raw_reviews"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Request captures the client-supplied analysis parameters.
type Request struct {
	URL          string `json:"url"`
	MaxReviews   int    `json:"max_reviews"`
	AnalysisType string `json:"analysis_type"`
}

// Task is the registry entry tracking one analysis.
type Task struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Request   Request   `json:"request"`
	Result    *Result   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EstimateRemaining extrapolates the seconds left from elapsed time and progress.
// It returns nil when no meaningful estimate exists.
func (t Task) EstimateRemaining(now time.Time) *int {
	if t.Status.Terminal() || t.Progress <= 0 || t.Progress >= 100 {
		return nil
	}
	elapsed := now.Sub(t.CreatedAt)
	if elapsed <= 0 {
		return nil
	}
	remaining := elapsed * time.Duration(100-t.Progress) / time.Duration(t.Progress)
	secs := int(remaining.Round(time.Second) / time.Second)
	return &secs
}

// Job is the unit handed from the orchestrator to the worker pool.
type Job struct {
	AnalysisID string
	Request    Request
	Submitted  time.Time
}

// ProgressFunc receives stage progress on the 0-100 scale.
type ProgressFunc func(progress int, message string)

// Locator addresses an element on a page. XPath is preferred by drivers that
// support it; CSS must be a selector understood by both the browser and goquery.
type Locator struct {
	CSS   string
	XPath string
}

// String renders the locator for logs.
func (l Locator) String() string {
	if l.XPath != "" {
		return l.XPath
	}
	return l.CSS
}
