// Package matching scores how well a product name matches a query.
// It is shared by the in-memory catalog (fuzzy name search) and the external
// database clients (confidence of a lookup hit).
package matching

import (
	"regexp"
	"strings"
)

var punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// Scoring weights
const (
	queryCoverageWeight     = 0.60
	candidateCoverageWeight = 0.20
	jaccardWeight           = 0.20
	fuzzyWeightFactor       = 0.8 // fuzzy token hits count 80% of an exact hit
	brandMatchBonus         = 15.0
	substringMatchBonus     = 10.0
)

// stopWords are dropped during tokenization
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "with": true, "for": true,
	"de": true, "la": true, "le": true, "et": true, "du": true,
	// Size/quantity units
	"oz": true, "fl": true, "lb": true, "lbs": true, "ml": true, "cl": true,
	"kg": true, "gram": true, "grams": true, "liter": true, "litre": true,
	// Packaging
	"pack": true, "count": true, "ct": true, "box": true, "bag": true,
	"bottle": true, "can": true, "jar": true,
}

// Config configures a Matcher
type Config struct {
	// EnableFuzzy lets tokens within EditDistance count as partial hits
	EnableFuzzy bool
	// EditDistance is the maximum Levenshtein distance for a fuzzy hit
	EditDistance int
	// MinFuzzyScore is the score a non-substring match needs for Matches to accept it
	MinFuzzyScore float64
}

// Matcher scores and filters product names against queries
type Matcher struct {
	fuzzy         bool
	editDistance  int
	minFuzzyScore float64
}

// New creates a matcher with the given configuration
func New(cfg Config) *Matcher {
	dist := cfg.EditDistance
	if dist <= 0 {
		dist = 1
	}
	minScore := cfg.MinFuzzyScore
	if minScore <= 0 {
		minScore = 60
	}
	return &Matcher{
		fuzzy:         cfg.EnableFuzzy,
		editDistance:  dist,
		minFuzzyScore: minScore,
	}
}

// Matches reports whether candidate answers query: a case-insensitive
// substring hit, or a fuzzy score at or above the configured minimum.
func (m *Matcher) Matches(query, candidate string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	if strings.Contains(strings.ToLower(candidate), q) {
		return true
	}
	if !m.fuzzy {
		return false
	}
	score, _ := m.Score(query, "", candidate)
	return score >= m.minFuzzyScore
}

// Score computes similarity between a query and a candidate name on a 0-100 scale.
// Uses a weighted combination of query token coverage, candidate token
// coverage and Jaccard overlap, plus bonuses for brand and substring hits.
// Returns the score and the list of matched query tokens.
func (m *Matcher) Score(query, brand, candidate string) (float64, []string) {
	cleanedQuery := CleanQuery(query)
	queryTokens := Tokenize(cleanedQuery)
	candidateTokens := Tokenize(candidate)

	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return 0, nil
	}

	queryHits, matched := m.intersect(queryTokens, candidateTokens)
	queryCoverage := queryHits / float64(len(queryTokens))

	candidateHits, _ := m.intersect(candidateTokens, queryTokens)
	candidateCoverage := candidateHits / float64(len(candidateTokens))

	union := unionSize(queryTokens, candidateTokens)
	jaccard := queryHits / float64(union)
	if jaccard > 1 {
		jaccard = 1
	}

	score := (queryCoverage*queryCoverageWeight + candidateCoverage*candidateCoverageWeight + jaccard*jaccardWeight) * 100

	queryLower := strings.ToLower(cleanedQuery)
	candidateLower := strings.ToLower(candidate)

	if brand != "" && strings.Contains(candidateLower, strings.ToLower(brand)) {
		score += brandMatchBonus
	}

	if len(queryLower) > 3 && (strings.Contains(candidateLower, queryLower) || strings.Contains(queryLower, candidateLower)) {
		score += substringMatchBonus
	}

	if score > 100 {
		score = 100
	}

	return score, matched
}

// BestMatch returns the index and score of the best scoring candidate, or -1
// when candidates is empty
func (m *Matcher) BestMatch(query, brand string, candidates []string) (int, float64) {
	best := -1
	highest := -1.0
	for i, c := range candidates {
		score, _ := m.Score(query, brand, c)
		if score > highest {
			highest = score
			best = i
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, highest
}

// intersect counts tokens of a that appear in b. Exact hits count 1, fuzzy
// hits count fuzzyWeightFactor when fuzzy matching is enabled.
func (m *Matcher) intersect(a, b []string) (float64, []string) {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}

	var hits float64
	var matched []string
	seen := make(map[string]bool)
	for _, t := range a {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			hits++
			matched = append(matched, t)
			continue
		}
		if !m.fuzzy {
			continue
		}
		for _, other := range b {
			if fuzzyTokenMatch(t, other, m.editDistance) {
				hits += fuzzyWeightFactor
				matched = append(matched, t)
				break
			}
		}
	}
	return hits, matched
}

// Tokenize splits a string into normalized lowercase tokens, dropping
// punctuation, stop words, single characters and pure numbers
func Tokenize(s string) []string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		if len([]rune(word)) <= 1 {
			continue
		}
		if stopWords[word] {
			continue
		}
		if isNumeric(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// fuzzyTokenMatch checks if two tokens are within the edit distance threshold.
// Tokens shorter than 4 characters never fuzzy match.
func fuzzyTokenMatch(a, b string, threshold int) bool {
	if a == b {
		return true
	}
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > threshold {
		return false
	}
	return Levenshtein(a, b) <= threshold
}

// Levenshtein calculates the edit distance between two strings
func Levenshtein(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}

func unionSize(a, b []string) int {
	set := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		set[t] = true
	}
	return len(set)
}
