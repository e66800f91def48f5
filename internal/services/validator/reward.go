package validator

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/neto007/HRM-pipeline/internal/models"
)

// patternDetectors recognise recommended patterns in Go output
var patternDetectors = map[string]*regexp.Regexp{
	"error-returns":           regexp.MustCompile(`\berror\)|\)\s*error\b|errors\.New|fmt\.Errorf`),
	"struct-based":            regexp.MustCompile(`\btype\s+\w+\s+struct\b`),
	"struct-embedding":        regexp.MustCompile(`(?m)^\s+\*?[A-Z]\w*(?:\.[A-Z]\w*)?\s*$`),
	"interface-driven":        regexp.MustCompile(`\btype\s+\w+\s+interface\b`),
	"sync-mutex":              regexp.MustCompile(`\bsync\.(?:RW)?Mutex\b|\batomic\.`),
	"goroutines-channels":     regexp.MustCompile(`\bgo\s+\w|\bchan\b`),
	"type-parameters":         regexp.MustCompile(`\[\s*\w+\s+(?:any|comparable|[a-z]\w*\.\w+|~?\w+)\s*(?:,[^\]]*)?\]\s*[({]`),
	"explicit-loops":          regexp.MustCompile(`\bfor\b[^{]*\brange\b`),
	"struct-tags":             regexp.MustCompile("`\\w+:\""),
	"zero-values":             regexp.MustCompile(`[!=]=\s*nil\b`),
	"package-level-singleton": regexp.MustCompile(`\bsync\.Once\b|(?m)^var\s+\w+`),
	"builtin-maps-slices":     regexp.MustCompile(`\bmap\[|\[\]\w`),
	"typed-constants":         regexp.MustCompile(`\biota\b`),
}

// Combine turns raw dimension scores into a RewardScore. Raw scores are
// clamped to [0,1] and multiplied by their weight; the total is clamped to
// [0, MaxRewardTotal]. With non-negative weights the total never decreases
// when a dimension score increases.
func Combine(weights map[string]float64, raw map[string]float64) *models.RewardScore {
	score := &models.RewardScore{
		DimensionScores: make(map[string]float64, len(raw)),
		MaxTotal:        models.MaxRewardTotal,
	}

	dims := make([]string, 0, len(raw))
	for d := range raw {
		dims = append(dims, d)
	}
	sort.Strings(dims)

	total := 0.0
	for _, d := range dims {
		w := weights[d]
		if w < 0 {
			w = 0
		}
		points := w * clamp(raw[d], 0, 1)
		score.DimensionScores[d] = points
		total += points
	}
	score.Total = clamp(total, 0, models.MaxRewardTotal)
	return score
}

// guidanceCompliance is the fraction of recommended patterns visible in output,
// with the patterns that were not. Unknown patterns match when their words
// appear in the code.
func guidanceCompliance(output string, guidance *models.Guidance) (float64, []string) {
	if guidance == nil || len(guidance.RecommendedPatterns) == 0 {
		return 1, nil
	}

	lower := strings.ToLower(output)
	var unmet []string
	for _, p := range guidance.RecommendedPatterns {
		if re, ok := patternDetectors[p]; ok {
			if !re.MatchString(output) {
				unmet = append(unmet, p)
			}
			continue
		}
		if !strings.Contains(lower, strings.ReplaceAll(p, "-", " ")) && !strings.Contains(lower, strings.ReplaceAll(p, "-", "")) {
			unmet = append(unmet, p)
		}
	}
	n := len(guidance.RecommendedPatterns)
	return float64(n-len(unmet)) / float64(n), unmet
}

// contextSnippets and contextAnchors bound how much of the retrieval context
// is compared against output.
const (
	contextSnippets = 3
	contextAnchors  = 10
)

// javaVocabulary is too common to signal that output follows a snippet.
var javaVocabulary = map[string]bool{
	"String": true, "Object": true, "Integer": true, "Long": true, "Boolean": true,
	"List": true, "Map": true, "Set": true, "Exception": true, "System": true, "Override": true,
}

// contextSimilarity is the fraction of the leading retrieved snippets that
// share at least one of their first capitalised identifiers with output. An
// empty context scores 1.
func contextSimilarity(output string, rctx *models.RetrievalContext) (score float64, shared, total int) {
	if rctx == nil || len(rctx.Snippets) == 0 {
		return 1, 0, 0
	}

	present := make(map[string]bool)
	for _, id := range goIdentifier.FindAllString(output, -1) {
		present[id] = true
	}

	snippets := rctx.Snippets
	if len(snippets) > contextSnippets {
		snippets = snippets[:contextSnippets]
	}
	for _, snippet := range snippets {
		if sharesAnchor(snippet, present) {
			shared++
		}
	}
	return float64(shared) / float64(len(snippets)), shared, len(snippets)
}

func sharesAnchor(snippet string, present map[string]bool) bool {
	seen := 0
	for _, id := range goIdentifier.FindAllString(snippet, -1) {
		if len(id) < 3 || !unicode.IsUpper(rune(id[0])) || javaVocabulary[id] {
			continue
		}
		if present[id] {
			return true
		}
		if seen++; seen >= contextAnchors {
			return false
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
