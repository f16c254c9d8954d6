// Package board classifies the texture of the community cards.
package board

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
)

// ErrTooFewCards is returned for boards shorter than the flop.
var ErrTooFewCards = errors.New("board texture needs at least 3 cards")

// Texture flags. Monotone and Rainbow are never both set.
type Texture struct {
	Monotone      bool `json:"monotone"`
	TwoTone       bool `json:"two_tone"`
	Rainbow       bool `json:"rainbow"`
	Paired        bool `json:"paired"`
	Coordinated   bool `json:"coordinated"`
	StraightDraws int  `json:"straight_draws"`
	FlushDraw     bool `json:"flush_draw"`
	Dry           bool `json:"dry"`
}

// AnalyzeTexture computes the texture flags for a board of 3 to 5 cards.
func AnalyzeTexture(board []cards.Card) (Texture, error) {
	if len(board) < 3 {
		return Texture{}, fmt.Errorf("%w: got %d", ErrTooFewCards, len(board))
	}

	suitCounts := make(map[cards.Suit]int, 4)
	var rankCounts [15]int
	values := make([]int, 0, len(board))
	for _, c := range board {
		suitCounts[c.Suit()]++
		rankCounts[c.Value()]++
		values = append(values, c.Value())
	}

	maxSuit, suitsWithTwo := 0, 0
	for _, n := range suitCounts {
		maxSuit = max(maxSuit, n)
		if n >= 2 {
			suitsWithTwo++
		}
	}

	var t Texture
	t.Monotone = maxSuit >= 3
	t.TwoTone = suitsWithTwo >= 2
	t.Rainbow = len(suitCounts) >= 3 && !t.Monotone
	t.FlushDraw = maxSuit == 2

	for _, n := range rankCounts {
		if n >= 2 {
			t.Paired = true
			break
		}
	}

	sort.Ints(values)
	for i := 1; i < len(values); i++ {
		if values[i]-values[i-1] <= 2 {
			t.Coordinated = true
			break
		}
	}

	t.StraightDraws = straightWindows(rankCounts)
	t.Dry = maxSuit == 1 && !t.Coordinated
	return t, nil
}

// straightWindows counts the five-rank runs, the wheel included, that hold
// at least three distinct board ranks.
func straightWindows(rankCounts [15]int) int {
	inWindow := func(vs ...int) int {
		n := 0
		for _, v := range vs {
			if rankCounts[v] > 0 {
				n++
			}
		}
		return n
	}
	draws := 0
	if inWindow(14, 2, 3, 4, 5) >= 3 {
		draws++
	}
	for lo := 2; lo <= 10; lo++ {
		if inWindow(lo, lo+1, lo+2, lo+3, lo+4) >= 3 {
			draws++
		}
	}
	return draws
}
