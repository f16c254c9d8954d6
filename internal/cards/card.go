// Package cards holds the playing card value type shared by every analysis
// package, plus the two-character text format used at all boundaries.
package cards

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCard = errors.New("invalid card")

// Suit is one of 'c', 'd', 'h', 's'.
type Suit byte

const (
	Clubs    Suit = 'c'
	Diamonds Suit = 'd'
	Hearts   Suit = 'h'
	Spades   Suit = 's'
)

// Suits lists every suit in index order.
var Suits = [4]Suit{Clubs, Diamonds, Hearts, Spades}

func (s Suit) index() int {
	switch s {
	case Clubs:
		return 0
	case Diamonds:
		return 1
	case Hearts:
		return 2
	case Spades:
		return 3
	default:
		return -1
	}
}

// Rank is the numeric card rank, 2..14 with the Ace high.
type Rank int

const (
	Two   Rank = 2
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

const rankChars = "23456789TJQKA"

func (r Rank) String() string {
	if r < Two || r > Ace {
		return "?"
	}
	return string(rankChars[r-Two])
}

// Card is an immutable rank/suit pair. The zero value is not a valid card.
type Card struct {
	rank Rank
	suit Suit
}

// New builds a card, rejecting ranks outside 2..14 and unknown suits.
func New(rank Rank, suit Suit) (Card, error) {
	if rank < Two || rank > Ace {
		return Card{}, fmt.Errorf("%w: rank %d", ErrInvalidCard, rank)
	}
	if suit.index() < 0 {
		return Card{}, fmt.Errorf("%w: suit %q", ErrInvalidCard, rune(suit))
	}
	return Card{rank: rank, suit: suit}, nil
}

// Parse reads the two-character form ("As", "td", "KH"). Input is
// case-insensitive; the result is canonical (rank upper, suit lower).
func Parse(s string) (Card, error) {
	t := strings.TrimSpace(s)
	if len(t) != 2 {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidCard, s)
	}
	ri := strings.IndexByte(rankChars, upper(t[0]))
	if ri < 0 {
		return Card{}, fmt.Errorf("%w: rank in %q", ErrInvalidCard, s)
	}
	suit := Suit(lower(t[1]))
	if suit.index() < 0 {
		return Card{}, fmt.Errorf("%w: suit in %q", ErrInvalidCard, s)
	}
	return Card{rank: Two + Rank(ri), suit: suit}, nil
}

// MustParse is Parse for literals; it panics on bad input.
func MustParse(s string) Card {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// MustParseList parses a space or comma separated list of literals.
func MustParseList(s string) []Card {
	cs, err := ParseList(s)
	if err != nil {
		panic(err)
	}
	return cs
}

// ParseList accepts comma and/or whitespace separated cards. An empty string
// yields an empty list.
func ParseList(s string) ([]Card, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := Parse(f)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// FormatList renders cards comma separated, the form the simulator expects.
func FormatList(cs []Card) string {
	var b strings.Builder
	for i, c := range cs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c.String())
	}
	return b.String()
}

func (c Card) Rank() Rank { return c.rank }
func (c Card) Suit() Suit { return c.suit }

// Value returns the numeric rank 2..14.
func (c Card) Value() int { return int(c.rank) }

// IsValid reports whether c was built through New or Parse.
func (c Card) IsValid() bool { return c.rank >= Two && c.rank <= Ace && c.suit.index() >= 0 }

// Index maps the card to 0..51 (suit major). Invalid cards return -1.
func (c Card) Index() int {
	if !c.IsValid() {
		return -1
	}
	return c.suit.index()*13 + int(c.rank-Two)
}

// FromIndex is the inverse of Index.
func FromIndex(i int) Card {
	return Card{rank: Two + Rank(i%13), suit: Suits[i/13]}
}

func (c Card) String() string {
	if !c.IsValid() {
		return "??"
	}
	return c.rank.String() + string(c.suit)
}

// MarshalText lets cards appear as "As" in JSON.
func (c Card) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: zero card", ErrInvalidCard)
	}
	return []byte(c.String()), nil
}

func (c *Card) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// HasDuplicates returns the first card that appears more than once.
func HasDuplicates(cs ...Card) (Card, bool) {
	var seen Set
	for _, c := range cs {
		if seen.Has(c) {
			return c, true
		}
		seen = seen.Add(c)
	}
	return Card{}, false
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}
