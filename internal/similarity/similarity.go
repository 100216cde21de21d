// Package similarity scores candidate texts against already published quotes.
package similarity

import (
	"github.com/adrg/strutil/metrics"
)

// Candidate is one published quote a candidate text is scored against.
type Candidate struct {
	ID   int
	Text string
}

// Match is the closest candidate and its score.
type Match struct {
	ID    int
	Text  string
	Score float64
}

// dice is shared across calls; Compare does not mutate it.
var dice = metrics.NewSorensenDice()

// Score returns the case-sensitive Sorensen-Dice bigram similarity of two
// texts in [0,1]. Identical texts score 1 even when shorter than one bigram.
func Score(a, b string) float64 {
	if a == b {
		return 1
	}
	return dice.Compare(a, b)
}

// BestMatch scans the full population and returns the single highest-scoring
// candidate. The caller decides what score counts as a duplicate.
func BestMatch(text string, population []Candidate) (Match, bool) {
	best := Match{Score: -1}
	for _, candidate := range population {
		score := Score(text, candidate.Text)
		if score > best.Score {
			best = Match{ID: candidate.ID, Text: candidate.Text, Score: score}
		}
	}
	if best.Score < 0 {
		return Match{}, false
	}
	return best, true
}
