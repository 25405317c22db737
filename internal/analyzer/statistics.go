package analyzer

import (
	"math"
	"unicode/utf8"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// BuildStatistics aggregates ratings and text lengths. Lengths count runes.
func BuildStatistics(reviews []analysis.Review) analysis.Statistics {
	stats := analysis.Statistics{RatingDistribution: make(map[int]int)}
	if len(reviews) == 0 {
		return stats
	}
	var ratingSum, lengthSum int
	for _, r := range reviews {
		ratingSum += r.Rating
		lengthSum += utf8.RuneCountInString(r.Text)
		stats.RatingDistribution[r.Rating]++
	}
	n := float64(len(reviews))
	stats.TotalReviews = len(reviews)
	stats.AvgRating = round(float64(ratingSum)/n, 2)
	stats.AvgReviewLength = int(math.Round(float64(lengthSum) / n))
	return stats
}
