package handeval

import "github.com/AkatukiSora/vrpoker-advisor/internal/cards"

// PocketCategory is a descriptive class of a two-card starting hand.
type PocketCategory int

const (
	PocketPremium         PocketCategory = iota // AA, KK, QQ, AK
	PocketSecondPremium                         // JJ, TT, AQ, AJs, KQ
	PocketPair                                  // any pocket pair
	PocketSuitedConnector                       // suited, one rank apart
	PocketSuitedOneGapper                       // suited, two ranks apart
	PocketSuited                                // any suited hand
	PocketAx                                    // holds an Ace
	PocketKx                                    // holds a King
	PocketBroadwayOffsuit                       // two unpaired T+ cards, offsuit
	PocketConnector                             // one rank apart, any suits
)

type pocket struct {
	hi, lo int
	suited bool
}

func (p pocket) pair() bool       { return p.hi == p.lo }
func (p pocket) gap() int         { return p.hi - p.lo }
func (p pocket) is(a, b int) bool { return p.hi == a && p.lo == b }

// pocketRules are evaluated in display order; a hand can match several.
var pocketRules = []struct {
	cat   PocketCategory
	label string
	match func(p pocket) bool
}{
	{PocketPremium, "Premium", func(p pocket) bool {
		return (p.pair() && p.hi >= 12) || p.is(14, 13)
	}},
	{PocketSecondPremium, "2nd Premium", func(p pocket) bool {
		return (p.pair() && (p.hi == 11 || p.hi == 10)) || p.is(14, 12) || p.is(13, 12) || (p.suited && p.is(14, 11))
	}},
	{PocketPair, "Pocket Pair", func(p pocket) bool { return p.pair() }},
	{PocketSuitedConnector, "Suited Connector", func(p pocket) bool { return p.suited && p.gap() == 1 }},
	{PocketSuitedOneGapper, "Suited 1-Gap", func(p pocket) bool { return p.suited && p.gap() == 2 }},
	{PocketSuited, "Suited", func(p pocket) bool { return p.suited }},
	{PocketAx, "Ax", func(p pocket) bool { return p.hi == 14 }},
	{PocketKx, "Kx", func(p pocket) bool { return p.hi == 13 || p.lo == 13 }},
	{PocketBroadwayOffsuit, "Broadway Offsuit", func(p pocket) bool {
		return p.lo >= 10 && !p.suited && !p.pair()
	}},
	{PocketConnector, "Connector", func(p pocket) bool { return p.gap() == 1 }},
}

// ClassifyPocket returns every category the two hole cards fall into.
func ClassifyPocket(c1, c2 cards.Card) []PocketCategory {
	p := pocket{hi: c1.Value(), lo: c2.Value(), suited: c1.Suit() == c2.Suit()}
	if p.lo > p.hi {
		p.hi, p.lo = p.lo, p.hi
	}
	var out []PocketCategory
	for _, r := range pocketRules {
		if r.match(p) {
			out = append(out, r.cat)
		}
	}
	return out
}

func (c PocketCategory) String() string {
	for _, r := range pocketRules {
		if r.cat == c {
			return r.label
		}
	}
	return ""
}

// PocketLabels maps categories to their display labels.
func PocketLabels(cats []PocketCategory) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.String()
	}
	return out
}
