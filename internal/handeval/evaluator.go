// Package handeval ranks poker hands of two to seven cards, names their
// category and builds the preflop hand key.
package handeval

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
)

// DefaultCacheSize bounds the memo cache of evaluated five-card sets.
const DefaultCacheSize = 4096

// Evaluator ranks hands. It is safe for concurrent use; the memo cache is
// an internally locked LRU.
type Evaluator struct {
	cache *lru.Cache[string, HandRank]
}

// NewEvaluator creates an evaluator whose cache holds at most cacheSize
// entries. Non-positive sizes fall back to DefaultCacheSize.
func NewEvaluator(cacheSize int) *Evaluator {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, HandRank](cacheSize)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Evaluator{cache: cache}
}

// BestHand returns the strongest five-card subset and its rank. Inputs of
// five cards or fewer are ranked as given; fewer than two cards rank 0.
func (e *Evaluator) BestHand(cs []cards.Card) ([]cards.Card, HandRank) {
	n := len(cs)
	if n < 2 {
		return append([]cards.Card(nil), cs...), 0
	}
	if n <= 5 {
		return append([]cards.Card(nil), cs...), e.strength(cs)
	}

	var (
		best     [5]cards.Card
		bestRank HandRank = -1
		five     [5]cards.Card
	)
	for a := 0; a < n-4; a++ {
		for b := a + 1; b < n-3; b++ {
			for c := b + 1; c < n-2; c++ {
				for d := c + 1; d < n-1; d++ {
					for f := d + 1; f < n; f++ {
						five = [5]cards.Card{cs[a], cs[b], cs[c], cs[d], cs[f]}
						if r := e.strength(five[:]); r > bestRank {
							bestRank = r
							best = five
						}
					}
				}
			}
		}
	}
	return best[:], bestRank
}

// Describe names the category of the best hand within cs.
func (e *Evaluator) Describe(cs []cards.Card) Category {
	if len(cs) < 2 {
		return HighCard
	}
	_, r := e.BestHand(cs)
	return r.Category()
}

// PreflopKey encodes two hole cards as "AA", "AKs" or "AKo". Any other
// card count yields "".
func PreflopKey(hole []cards.Card) string {
	if len(hole) != 2 {
		return ""
	}
	hi, lo := hole[0], hole[1]
	if lo.Rank() > hi.Rank() {
		hi, lo = lo, hi
	}
	if hi.Rank() == lo.Rank() {
		return hi.Rank().String() + lo.Rank().String()
	}
	suffix := "o"
	if hi.Suit() == lo.Suit() {
		suffix = "s"
	}
	return hi.Rank().String() + lo.Rank().String() + suffix
}

func (e *Evaluator) strength(cs []cards.Card) HandRank {
	key := cacheKey(cs)
	if r, ok := e.cache.Get(key); ok {
		return r
	}
	r := evaluate(cs)
	e.cache.Add(key, r)
	return r
}

// cacheKey is the sorted card indices, so any ordering of the same cards
// shares an entry.
func cacheKey(cs []cards.Card) string {
	b := make([]byte, len(cs))
	for i, c := range cs {
		b[i] = byte(c.Index())
	}
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	return string(b)
}

type rankGroup struct {
	value int
	count int
}

// evaluate ranks at most five cards directly.
func evaluate(cs []cards.Card) HandRank {
	var counts [15]int
	for _, c := range cs {
		counts[c.Value()]++
	}

	groups := make([]rankGroup, 0, len(cs))
	for v := 14; v >= 2; v-- {
		if counts[v] > 0 {
			groups = append(groups, rankGroup{value: v, count: counts[v]})
		}
	}
	// Larger groups first; equal sizes stay high rank first.
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].count > groups[j].count })

	flush := isFlush(cs)
	straightHigh := straightHighCard(counts)

	switch {
	case straightHigh > 0 && flush:
		return makeRank(StraightFlush, straightHigh)
	case groups[0].count == 4:
		return makeRank(FourOfAKind, groupValues(groups)...)
	case groups[0].count == 3 && len(groups) > 1 && groups[1].count >= 2:
		return makeRank(FullHouse, groups[0].value, groups[1].value)
	case flush:
		return makeRank(Flush, groupValues(groups)...)
	case straightHigh > 0:
		return makeRank(Straight, straightHigh)
	case groups[0].count == 3:
		return makeRank(ThreeOfAKind, groupValues(groups)...)
	case groups[0].count == 2 && len(groups) > 1 && groups[1].count == 2:
		return makeRank(TwoPair, groupValues(groups)...)
	case groups[0].count == 2:
		return makeRank(OnePair, groupValues(groups)...)
	default:
		return makeRank(HighCard, groupValues(groups)...)
	}
}

func groupValues(groups []rankGroup) []int {
	out := make([]int, len(groups))
	for i, g := range groups {
		out[i] = g.value
	}
	return out
}

func isFlush(cs []cards.Card) bool {
	if len(cs) < 5 {
		return false
	}
	set := cards.SetOf(cs...)
	for _, s := range cards.Suits {
		if set.OfSuit(s).Len() >= 5 {
			return true
		}
	}
	return false
}

// straightHighCard returns the top card of the best straight in counts, 5
// for the wheel, or 0.
func straightHighCard(counts [15]int) int {
	for hi := 14; hi >= 6; hi-- {
		if counts[hi] > 0 && counts[hi-1] > 0 && counts[hi-2] > 0 && counts[hi-3] > 0 && counts[hi-4] > 0 {
			return hi
		}
	}
	if counts[14] > 0 && counts[2] > 0 && counts[3] > 0 && counts[4] > 0 && counts[5] > 0 {
		return 5
	}
	return 0
}
