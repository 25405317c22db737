package analyzer

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Lexicon is a term polarity table. Terms match review tokens by prefix so a
// stem such as "좋" covers "좋아요" and "좋은".
type Lexicon struct {
	Terms    map[string]float64 `yaml:"terms"`
	Negators []string           `yaml:"negators"`
}

var (
	defaultOnce    sync.Once
	defaultLexicon Lexicon
)

// DefaultLexicon returns the built-in Korean/English lexicon.
func DefaultLexicon() Lexicon {
	defaultOnce.Do(func() {
		lex, err := ParseLexicon(defaultLexiconYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded lexicon: %v", err))
		}
		defaultLexicon = lex
	})
	return defaultLexicon
}

// LoadLexicon reads a YAML lexicon file.
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	lex, err := ParseLexicon(data)
	if err != nil {
		return Lexicon{}, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lex, nil
}

// ParseLexicon decodes YAML lexicon data and normalizes its terms.
func ParseLexicon(data []byte) (Lexicon, error) {
	var raw Lexicon
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Lexicon{}, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(raw.Terms) == 0 {
		return Lexicon{}, fmt.Errorf("parse lexicon: no terms")
	}
	lex := Lexicon{Terms: make(map[string]float64, len(raw.Terms))}
	for term, score := range raw.Terms {
		term = normalize(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if score < -1 || score > 1 {
			return Lexicon{}, fmt.Errorf("parse lexicon: term %q score %v outside [-1, 1]", term, score)
		}
		lex.Terms[term] = score
	}
	for _, neg := range raw.Negators {
		if neg = normalize(strings.TrimSpace(neg)); neg != "" {
			lex.Negators = append(lex.Negators, neg)
		}
	}
	return lex, nil
}

// LexiconScorer scores text as the mean polarity of its matched terms.
type LexiconScorer struct {
	terms    []string
	scores   map[string]float64
	negators map[string]struct{}
}

// NewLexiconScorer builds a scorer over lex.
func NewLexiconScorer(lex Lexicon) *LexiconScorer {
	s := &LexiconScorer{
		scores:   lex.Terms,
		negators: make(map[string]struct{}, len(lex.Negators)),
	}
	for term := range lex.Terms {
		s.terms = append(s.terms, term)
	}
	// Longest term first so "최고" wins over "최".
	slices.SortFunc(s.terms, func(a, b string) int {
		if d := len(b) - len(a); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	for _, neg := range lex.Negators {
		s.negators[neg] = struct{}{}
	}
	return s
}

// Polarity implements Scorer. A negator token flips the sign of the next
// matched term. Text without any matched term scores 0.
func (s *LexiconScorer) Polarity(text string) float64 {
	var (
		sum     float64
		matched int
		negate  bool
	)
	for _, tok := range tokenize(text) {
		if _, ok := s.negators[tok]; ok {
			negate = true
			continue
		}
		score, ok := s.match(tok)
		if !ok {
			negate = false
			continue
		}
		if negate {
			score = -score
			negate = false
		}
		sum += score
		matched++
	}
	if matched == 0 {
		return 0
	}
	return clamp(sum/float64(matched), -1, 1)
}

func (s *LexiconScorer) match(tok string) (float64, bool) {
	for _, term := range s.terms {
		if strings.HasPrefix(tok, term) {
			return s.scores[term], true
		}
	}
	return 0, false
}

func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// tokenize lowercases text and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	s = normalize(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
