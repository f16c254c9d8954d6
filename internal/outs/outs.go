// Package outs counts the undealt cards that improve the hero's hand,
// split into disjoint draw buckets.
package outs

import "github.com/AkatukiSora/vrpoker-advisor/internal/cards"

// Breakdown holds the four out buckets. The sets are pairwise disjoint: a
// card is claimed by the first bucket in flush, straight, set/trips,
// overcard order.
type Breakdown struct {
	Flush    cards.Set
	Straight cards.Set
	SetTrips cards.Set
	Overcard cards.Set
}

// Counts is the JSON-facing view of a Breakdown.
type Counts struct {
	Flush    int `json:"flush"`
	Straight int `json:"straight"`
	SetTrips int `json:"set_trips"`
	Overcard int `json:"overcard"`
}

func (b Breakdown) Counts() Counts {
	return Counts{
		Flush:    b.Flush.Len(),
		Straight: b.Straight.Len(),
		SetTrips: b.SetTrips.Len(),
		Overcard: b.Overcard.Len(),
	}
}

// All is the union of every bucket.
func (b Breakdown) All() cards.Set {
	return b.Flush.Union(b.Straight).Union(b.SetTrips).Union(b.Overcard)
}

// Total is the number of distinct improving cards.
func (b Breakdown) Total() int { return b.All().Len() }

// Calculate counts outs for the hero. Once the board is complete there is
// nothing left to draw and the result is empty.
func Calculate(hole, board []cards.Card) Breakdown {
	if len(board) >= 5 {
		return Breakdown{}
	}

	all := make([]cards.Card, 0, len(hole)+len(board))
	all = append(all, hole...)
	all = append(all, board...)

	t := table{
		remaining: cards.NewDeck().Minus(cards.SetOf(all...)),
		all:       cards.SetOf(all...),
		hole:      cards.SetOf(hole...),
	}
	for _, c := range all {
		t.rankCounts[c.Value()]++
	}
	for _, c := range hole {
		t.holeRanks[c.Value()] = true
	}

	var b Breakdown
	b.Flush = t.flushOuts()
	claimed := b.Flush
	b.Straight = t.straightOuts().Minus(claimed)
	claimed = claimed.Union(b.Straight)
	b.SetTrips = t.setOuts().Minus(claimed)
	claimed = claimed.Union(b.SetTrips)
	b.Overcard = t.overcardOuts(board).Minus(claimed)
	return b
}

type table struct {
	remaining  cards.Set
	all        cards.Set
	hole       cards.Set
	rankCounts [15]int
	holeRanks  [15]bool
}

func (t table) remainingOfRank(v int) cards.Set {
	return t.remaining.OfRank(cards.Rank(v))
}

// flushOuts: a suit with exactly four known cards, at least one in the hole.
func (t table) flushOuts() cards.Set {
	var out cards.Set
	for _, s := range cards.Suits {
		if t.all.OfSuit(s).Len() == 4 && !t.hole.OfSuit(s).IsEmpty() {
			out = out.Union(t.remaining.OfSuit(s))
		}
	}
	return out
}

// straightWindows lists every five-rank run, the wheel included.
var straightWindows = func() [][5]int {
	w := [][5]int{{14, 2, 3, 4, 5}}
	for lo := 2; lo <= 10; lo++ {
		w = append(w, [5]int{lo, lo + 1, lo + 2, lo + 3, lo + 4})
	}
	return w
}()

// straightOuts: a window missing exactly one rank where the hole cards
// contribute to the four present.
func (t table) straightOuts() cards.Set {
	var out cards.Set
	for _, w := range straightWindows {
		present, missing, heroIn := 0, 0, false
		for _, v := range w {
			if t.rankCounts[v] > 0 {
				present++
				if t.holeRanks[v] {
					heroIn = true
				}
			} else {
				missing = v
			}
		}
		if present == 4 && heroIn {
			out = out.Union(t.remainingOfRank(missing))
		}
	}
	return out
}

// setOuts: trips improve to quads or a full house; a pair built with a hole
// card improves to trips.
func (t table) setOuts() cards.Set {
	var out cards.Set
	for v := 2; v <= 14; v++ {
		if !t.holeRanks[v] {
			continue
		}
		switch t.rankCounts[v] {
		case 3:
			out = out.Union(t.remainingOfRank(v))
			for other := 2; other <= 14; other++ {
				if other != v && t.rankCounts[other] > 0 {
					out = out.Union(t.remainingOfRank(other))
				}
			}
		case 2:
			out = out.Union(t.remainingOfRank(v))
		}
	}
	return out
}

// overcardOuts: hole cards above every board card.
func (t table) overcardOuts(board []cards.Card) cards.Set {
	if len(board) == 0 {
		return 0
	}
	high := 0
	for _, c := range board {
		if c.Value() > high {
			high = c.Value()
		}
	}
	var out cards.Set
	for v := high + 1; v <= 14; v++ {
		if t.holeRanks[v] {
			out = out.Union(t.remainingOfRank(v))
		}
	}
	return out
}
