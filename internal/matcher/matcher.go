// Package matcher pairs markets across venues that settle on the same
// real-world event. Matching is a pure computation over market metadata;
// the matcher holds no connections and performs no I/O.
package matcher

import (
	"math"
	"sort"
	"time"

	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// MatchedPair links one market per venue covering the same event.
//
// Inverted means the two questions have opposite polarity: YES on the
// first market corresponds to NO on the second. Downstream leg-side
// selection must honor this.
type MatchedPair struct {
	First    types.Market
	Second   types.Market
	Score    float64
	Inverted bool
}

// Key identifies a pair independent of match ordering.
func (p MatchedPair) Key() string {
	return string(p.First.Venue) + ":" + p.First.ID + "|" + string(p.Second.Venue) + ":" + p.Second.ID
}

// Config holds matcher thresholds.
type Config struct {
	// SimilarityThreshold is the minimum question similarity, in [0, 1],
	// required to accept a pair.
	SimilarityThreshold float64

	// ExpiryTolerance bounds how far apart the two markets' expiry
	// timestamps may be.
	ExpiryTolerance time.Duration

	Logger *zap.Logger
}

// Matcher computes cross-venue market pairs.
type Matcher struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Matcher.
func New(cfg Config) *Matcher {
	return &Matcher{cfg: cfg, logger: cfg.Logger}
}

// candidate is a scored potential pairing used during greedy selection.
type candidate struct {
	i, j     int
	score    float64
	inverted bool
}

// Match pairs markets from two venues. Each market joins at most one
// pair; when several candidates clear the threshold the highest-scoring
// pairing wins. Only tradable markets participate.
func (m *Matcher) Match(first, second []types.Market) []MatchedPair {
	normFirst := make([]normalized, len(first))
	for i, mk := range first {
		normFirst[i] = normalize(mk.Question)
	}
	normSecond := make([]normalized, len(second))
	for j, mk := range second {
		normSecond[j] = normalize(mk.Question)
	}

	var candidates []candidate
	for i, a := range first {
		if !a.Tradable() {
			continue
		}
		for j, b := range second {
			if !b.Tradable() {
				continue
			}
			if !m.expiryAligned(a.ExpiresAt, b.ExpiresAt) {
				continue
			}
			score := similarity(normFirst[i], normSecond[j])
			if score < m.cfg.SimilarityThreshold {
				continue
			}
			candidates = append(candidates, candidate{
				i:        i,
				j:        j,
				score:    score,
				inverted: normFirst[i].negated != normSecond[j].negated,
			})
		}
	}

	// Greedy assignment by descending score. Ties break on index order
	// so repeated runs over the same input produce the same pairs.
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		if candidates[a].i != candidates[b].i {
			return candidates[a].i < candidates[b].i
		}
		return candidates[a].j < candidates[b].j
	})

	usedFirst := make(map[int]bool)
	usedSecond := make(map[int]bool)
	var pairs []MatchedPair

	for _, c := range candidates {
		if usedFirst[c.i] || usedSecond[c.j] {
			continue
		}
		usedFirst[c.i] = true
		usedSecond[c.j] = true
		pairs = append(pairs, MatchedPair{
			First:    first[c.i],
			Second:   second[c.j],
			Score:    c.score,
			Inverted: c.inverted,
		})
	}

	PairsMatched.Set(float64(len(pairs)))
	if m.logger != nil {
		m.logger.Debug("matcher-pass-complete",
			zap.Int("first-markets", len(first)),
			zap.Int("second-markets", len(second)),
			zap.Int("candidates", len(candidates)),
			zap.Int("pairs", len(pairs)))
	}
	return pairs
}

// Revalidate reports whether a previously matched pair still holds
// against the current market records. A pair is retracted when either
// market stopped being tradable or the expiry drifted out of tolerance.
func (m *Matcher) Revalidate(p MatchedPair, first, second types.Market) bool {
	if !first.Tradable() || !second.Tradable() {
		return false
	}
	if !m.expiryAligned(first.ExpiresAt, second.ExpiresAt) {
		return false
	}
	score := similarity(normalize(first.Question), normalize(second.Question))
	return score >= m.cfg.SimilarityThreshold
}

func (m *Matcher) expiryAligned(a, b time.Time) bool {
	diff := math.Abs(a.Sub(b).Seconds())
	return diff <= m.cfg.ExpiryTolerance.Seconds()
}
