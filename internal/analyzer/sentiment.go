// Package analyzer computes sentiment, keyword and rating aggregates over a
// scraped review set.
package analyzer

import (
	"fmt"
	"math"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// Scorer assigns a polarity in [-1, 1] to a text.
type Scorer interface {
	Polarity(text string) float64
}

// neutralBand is the half-width of the neutral bucket; boundaries are neutral.
const neutralBand = 0.1

// Sentiment band of the overall progress scale.
const (
	sentimentBandStart = 70
	sentimentBandWidth = 20
)

// Classify buckets a polarity.
func Classify(polarity float64) analysis.Sentiment {
	switch {
	case polarity > neutralBand:
		return analysis.SentimentPositive
	case polarity < -neutralBand:
		return analysis.SentimentNegative
	default:
		return analysis.SentimentNeutral
	}
}

// AnalyzeSentiment scores every review and aggregates bucket percentages and
// the mean polarity. report, when set, is called before each review with a
// value in the 70-90 band.
func AnalyzeSentiment(reviews []analysis.Review, scorer Scorer, report analysis.ProgressFunc) analysis.SentimentSummary {
	summary := analysis.SentimentSummary{Details: make([]analysis.ReviewSentiment, 0, len(reviews))}
	n := len(reviews)
	if n == 0 {
		return summary
	}

	var (
		total                       float64
		positive, negative, neutral int
	)
	for i, review := range reviews {
		if report != nil {
			report(sentimentBandStart+i*sentimentBandWidth/n,
				fmt.Sprintf("AI 감정 분석 중... (%d/%d)", i+1, n))
		}
		polarity := scorer.Polarity(review.Text)
		bucket := Classify(polarity)
		switch bucket {
		case analysis.SentimentPositive:
			positive++
		case analysis.SentimentNegative:
			negative++
		default:
			neutral++
		}
		summary.Details = append(summary.Details, analysis.ReviewSentiment{Sentiment: bucket, Polarity: polarity})
		total += polarity
	}

	summary.Positive = percent(positive, n)
	summary.Negative = percent(negative, n)
	summary.Neutral = percent(neutral, n)
	summary.Score = round(total/float64(n), 3)
	return summary
}

func percent(part, whole int) float64 {
	return round(float64(part)/float64(whole)*100, 1)
}

// round rounds half away from zero at the given decimal places.
func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
