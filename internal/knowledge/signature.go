package knowledge

import (
	"strings"
	"unicode"

	"github.com/cloud-shuttle/sherpa/pkg/types"
)

const (
	// maxSignatureWords caps how many message words feed the signature
	maxSignatureWords = 5
	// minWordLen filters out short filler words
	minWordLen = 4
)

// Signature derives the coarse deduplication key for an error record:
// the error type joined with up to 5 distinct meaningful words from the
// message, in first-seen order. Records of the same type with
// overlapping significant words intentionally collide.
func Signature(rec types.ErrorRecord) string {
	words := meaningfulWords(rec.Message, maxSignatureWords)
	if len(words) == 0 {
		return rec.Type
	}
	return rec.Type + "_" + strings.Join(words, "_")
}

// meaningfulWords extracts up to max distinct lowercase alphanumeric
// words of at least minWordLen characters, preserving first-seen order.
func meaningfulWords(message string, max int) []string {
	tokens := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var words []string
	for _, tok := range tokens {
		if len(tok) < minWordLen || seen[tok] {
			continue
		}
		seen[tok] = true
		words = append(words, tok)
		if len(words) == max {
			break
		}
	}
	return words
}

// Similarity is the Jaccard index of the two messages' lowercase
// whitespace-tokenized word sets: intersection size over union size.
// Returns 0 if either message is absent.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}
