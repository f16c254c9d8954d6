package cards

import "math/bits"

// Set is a bitset over the 52-card deck, one bit per Card.Index.
type Set uint64

const fullDeck Set = 1<<52 - 1

// NewDeck returns all 52 cards.
func NewDeck() Set { return fullDeck }

// SetOf collects cards into a set; invalid cards are ignored.
func SetOf(cs ...Card) Set {
	var s Set
	for _, c := range cs {
		s = s.Add(c)
	}
	return s
}

func (s Set) Add(c Card) Set {
	i := c.Index()
	if i < 0 {
		return s
	}
	return s | 1<<uint(i)
}

func (s Set) Has(c Card) bool {
	i := c.Index()
	return i >= 0 && s&(1<<uint(i)) != 0
}

func (s Set) Len() int             { return bits.OnesCount64(uint64(s)) }
func (s Set) Union(o Set) Set      { return s | o }
func (s Set) Minus(o Set) Set      { return s &^ o }
func (s Set) Intersect(o Set) Set  { return s & o }
func (s Set) IsEmpty() bool        { return s == 0 }
func (s Set) Disjoint(o Set) bool  { return s&o == 0 }
func (s Set) OfSuit(suit Suit) Set { return s & suitMask(suit) }
func (s Set) OfRank(rank Rank) Set { return s & rankMask(rank) }

// Cards lists the members in index order.
func (s Set) Cards() []Card {
	out := make([]Card, 0, s.Len())
	for v := uint64(s); v != 0; v &= v - 1 {
		out = append(out, FromIndex(bits.TrailingZeros64(v)))
	}
	return out
}

func suitMask(suit Suit) Set {
	i := suit.index()
	if i < 0 {
		return 0
	}
	return Set(uint64(1<<13-1) << uint(i*13))
}

func rankMask(rank Rank) Set {
	if rank < Two || rank > Ace {
		return 0
	}
	var m Set
	for i := 0; i < 4; i++ {
		m |= 1 << uint(i*13+int(rank-Two))
	}
	return m
}
