package analyzer

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// DefaultTopKeywords is used when ExtractKeywords is asked for a non-positive count.
const DefaultTopKeywords = 20

var stopwords = map[string]struct{}{
	"이": {}, "그": {}, "저": {}, "것": {}, "수": {}, "때": {},
	"곳": {}, "더": {}, "잘": {}, "좀": {}, "진짜": {}, "정말": {},
}

// ExtractKeywords ranks Hangul words across all review texts by frequency and
// returns at most topN entries. Ties keep first-occurrence order. Each
// keyword's sentiment is the bucket of the mean polarity of reviews whose
// text contains it.
func ExtractKeywords(reviews []analysis.Review, scorer Scorer, topN int) []analysis.KeywordEntry {
	if topN <= 0 {
		topN = DefaultTopKeywords
	}
	texts := make([]string, len(reviews))
	for i, r := range reviews {
		texts[i] = norm.NFC.String(r.Text)
	}

	counts := make(map[string]int)
	var order []string
	for _, word := range strings.Fields(hangulOnly(strings.Join(texts, " "))) {
		if utf8.RuneCountInString(word) <= 1 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})
	if len(order) > topN {
		order = order[:topN]
	}

	polarities := make([]float64, len(texts))
	for i, text := range texts {
		polarities[i] = scorer.Polarity(text)
	}

	entries := make([]analysis.KeywordEntry, 0, len(order))
	for _, word := range order {
		entries = append(entries, analysis.KeywordEntry{
			Word:      word,
			Count:     counts[word],
			Sentiment: keywordSentiment(word, texts, polarities),
		})
	}
	return entries
}

func keywordSentiment(word string, texts []string, polarities []float64) analysis.Sentiment {
	var (
		sum float64
		n   int
	)
	for i, text := range texts {
		if strings.Contains(text, word) {
			sum += polarities[i]
			n++
		}
	}
	if n == 0 {
		return analysis.SentimentNeutral
	}
	return Classify(sum / float64(n))
}

// hangulOnly replaces every rune other than a precomposed Hangul syllable or
// whitespace with a space.
func hangulOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '가' && r <= '힣') || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
}
