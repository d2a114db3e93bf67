package matcher

import (
	"strings"
	"unicode"
)

// negationTokens flip the polarity of a question. "Will X win?" and
// "Will X not win?" describe the same event with opposite YES sides.
var negationTokens = map[string]bool{
	"not":    true,
	"no":     true,
	"wont":   true,
	"cant":   true,
	"fail":   true,
	"fails":  true,
	"lose":   true,
	"loses":  true,
	"miss":   true,
	"misses": true,
}

// stopTokens carry no event identity and only dilute similarity scores.
var stopTokens = map[string]bool{
	"will": true,
	"the":  true,
	"a":    true,
	"an":   true,
	"be":   true,
	"is":   true,
	"in":   true,
	"on":   true,
	"at":   true,
	"by":   true,
	"of":   true,
	"to":   true,
	"for":  true,
}

// normalized is the canonical form of a market question used for matching.
type normalized struct {
	tokens  []string
	bigrams map[string]int
	negated bool
}

// normalize lowercases, strips punctuation, removes stop words and pulls
// negation tokens out into a polarity flag.
func normalize(question string) normalized {
	var b strings.Builder
	for _, r := range strings.ToLower(question) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	n := normalized{bigrams: make(map[string]int)}
	for _, tok := range strings.Fields(b.String()) {
		if stopTokens[tok] {
			continue
		}
		if negationTokens[tok] {
			n.negated = !n.negated
			continue
		}
		n.tokens = append(n.tokens, tok)
	}

	for i := 0; i+1 < len(n.tokens); i++ {
		n.bigrams[n.tokens[i]+" "+n.tokens[i+1]]++
	}
	return n
}

// similarity computes the Sorensen-Dice coefficient over token bigrams,
// falling back to unigram overlap for very short questions. Returns a
// score in [0, 1].
func similarity(a, b normalized) float64 {
	if len(a.bigrams) == 0 || len(b.bigrams) == 0 {
		return unigramOverlap(a.tokens, b.tokens)
	}

	shared := 0
	totalA := 0
	for bg, ca := range a.bigrams {
		totalA += ca
		if cb, ok := b.bigrams[bg]; ok {
			shared += min(ca, cb)
		}
	}
	totalB := 0
	for _, cb := range b.bigrams {
		totalB += cb
	}

	return 2.0 * float64(shared) / float64(totalA+totalB)
}

func unigramOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	shared := 0
	for _, t := range b {
		if set[t] {
			shared++
		}
	}
	return 2.0 * float64(shared) / float64(len(a)+len(b))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
