package handeval

// Category is the poker hand class, ordered weakest to strongest.
type Category int

const (
	HighCard Category = iota
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

func (c Category) String() string {
	switch c {
	case HighCard:
		return "High card"
	case OnePair:
		return "One pair"
	case TwoPair:
		return "Two pair"
	case ThreeOfAKind:
		return "Three of a kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full house"
	case FourOfAKind:
		return "Four of a kind"
	case StraightFlush:
		return "Straight flush"
	default:
		return "Unknown"
	}
}

// categoryBase separates categories; the kicker term never reaches it
// (15^5-1 < 10^7).
const categoryBase = 10_000_000

// HandRank is a totally ordered hand strength: a higher value beats a lower
// one, equal values split.
type HandRank int

// Category extracts the hand class from the rank.
func (r HandRank) Category() Category {
	return Category(int(r) / categoryBase)
}

// makeRank encodes the significant rank values most significant first in
// base 15, left aligned to five digits so shorter lists compare correctly.
func makeRank(cat Category, values ...int) HandRank {
	score := 0
	for i := 0; i < 5; i++ {
		score *= 15
		if i < len(values) {
			score += values[i]
		}
	}
	return HandRank(int(cat)*categoryBase + score)
}
