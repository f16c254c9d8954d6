// Command simref is a reference equity simulator speaking the same daemon and
// legacy command-line protocols as the native simulator. It lets the advisor
// run end to end without the native binary.
//
//	simref --daemon                    line protocol on stdin/stdout
//	simref <board> <hole> <opponents>  one legacy run
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulhankin/poker"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
)

const (
	legacyIterations = 10000
	marker           = "simref"
)

func main() {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	args := os.Args[1:]
	if len(args) == 1 && args[0] == "--daemon" {
		if err := serve(os.Stdin, os.Stdout, rng); err != nil {
			fmt.Fprintln(os.Stderr, "simref:", err)
			os.Exit(1)
		}
		return
	}
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: simref --daemon | simref <board> <hole> <opponents>")
		os.Exit(2)
	}
	if err := legacy(os.Stdout, args, rng); err != nil {
		fmt.Fprintln(os.Stderr, "simref:", err)
		os.Exit(1)
	}
}

type request struct {
	board      []cards.Card
	hole       []cards.Card
	opponents  int
	iterations int
}

type outcome struct {
	Win  float64 `json:"win_rate"`
	Tie  float64 `json:"tie_rate"`
	Lose float64 `json:"lose_rate"`
}

// serve runs the daemon loop until EXIT or end of input.
func serve(r io.Reader, w io.Writer, rng *rand.Rand) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	if _, err := bw.WriteString("READY\n"); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	sentMarker := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "EXIT":
			return bw.Flush()
		case strings.HasPrefix(line, "CALC "):
			req, err := parseCalc(strings.TrimPrefix(line, "CALC "))
			if err != nil {
				if err := enc.Encode(map[string]string{"error": err.Error()}); err != nil {
					return err
				}
				break
			}
			if !sentMarker {
				if err := enc.Encode(map[string]string{"marker": marker}); err != nil {
					return err
				}
				sentMarker = true
			}
			if err := enc.Encode(simulate(req, rng)); err != nil {
				return err
			}
		default:
			if err := enc.Encode(map[string]string{"error": "unknown command"}); err != nil {
				return err
			}
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

func parseCalc(payload string) (request, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 4 {
		return request{}, fmt.Errorf("expected board|hole|opponents|iterations, got %d fields", len(parts))
	}
	req, err := parseArgs(parts[0], parts[1], parts[2])
	if err != nil {
		return request{}, err
	}
	req.iterations, err = strconv.Atoi(parts[3])
	if err != nil || req.iterations <= 0 {
		return request{}, fmt.Errorf("bad iterations %q", parts[3])
	}
	return req, nil
}

func parseArgs(board, hole, opp string) (request, error) {
	var req request
	var err error
	if req.board, err = cards.ParseList(board); err != nil {
		return request{}, fmt.Errorf("board: %w", err)
	}
	if req.hole, err = cards.ParseList(hole); err != nil {
		return request{}, fmt.Errorf("hole: %w", err)
	}
	if len(req.hole) != 2 {
		return request{}, errors.New("need exactly two hole cards")
	}
	if n := len(req.board); n != 0 && (n < 3 || n > 5) {
		return request{}, fmt.Errorf("board must have 0 or 3-5 cards, got %d", n)
	}
	if c, dup := cards.HasDuplicates(append(append([]cards.Card{}, req.board...), req.hole...)...); dup {
		return request{}, fmt.Errorf("duplicate card %s", c)
	}
	if req.opponents, err = strconv.Atoi(opp); err != nil || req.opponents < 1 || req.opponents > 8 {
		return request{}, fmt.Errorf("bad opponent count %q", opp)
	}
	return req, nil
}

// legacy prints a header and one result row, the layout of the native
// simulator's command-line mode.
func legacy(w io.Writer, args []string, rng *rand.Rand) error {
	req, err := parseArgs(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	req.iterations = legacyIterations
	o := simulate(req, rng)
	_, err = fmt.Fprintf(w, "Hand      Win %%    Tie %%\n%-8s %7.3f  %7.3f\n",
		cards.FormatList(req.hole), o.Win, o.Tie)
	return err
}

// simulate deals the unknown cards at random and scores hero against every
// opponent. Hero wins only when strictly ahead of all of them.
func simulate(req request, rng *rand.Rand) outcome {
	known := cards.SetOf(append(append([]cards.Card{}, req.board...), req.hole...)...)
	deck := cards.NewDeck().Minus(known).Cards()

	var hero, opp [7]poker.Card
	for i, c := range req.hole {
		hero[i] = toPoker(c)
	}
	var board [5]poker.Card
	for i, c := range req.board {
		board[i] = toPoker(c)
	}
	missing := 5 - len(req.board)
	need := missing + 2*req.opponents

	var wins, ties int
	for it := 0; it < req.iterations; it++ {
		for i := 0; i < need; i++ {
			j := i + rng.IntN(len(deck)-i)
			deck[i], deck[j] = deck[j], deck[i]
		}
		drawn := deck[:need]

		for i, c := range drawn[:missing] {
			board[len(req.board)+i] = toPoker(c)
		}
		copy(hero[2:], board[:])
		heroScore := poker.Eval7(&hero)

		best := int16(-1 << 15)
		rest := drawn[missing:]
		for o := 0; o < req.opponents; o++ {
			opp[0] = toPoker(rest[2*o])
			opp[1] = toPoker(rest[2*o+1])
			copy(opp[2:], board[:])
			best = max(best, poker.Eval7(&opp))
		}
		switch {
		case heroScore > best:
			wins++
		case heroScore == best:
			ties++
		}
	}

	n := float64(req.iterations)
	win := 100 * float64(wins) / n
	tie := 100 * float64(ties) / n
	return outcome{Win: win, Tie: tie, Lose: 100 - win - tie}
}

func toPoker(c cards.Card) poker.Card {
	var s poker.Suit
	switch c.Suit() {
	case cards.Clubs:
		s = poker.Club
	case cards.Diamonds:
		s = poker.Diamond
	case cards.Hearts:
		s = poker.Heart
	default:
		s = poker.Spade
	}
	r := poker.Rank(c.Value())
	if c.Rank() == cards.Ace {
		r = poker.Rank(1)
	}
	pc, err := poker.MakeCard(s, r)
	if err != nil {
		panic(fmt.Sprintf("card %s: %v", c, err))
	}
	return pc
}
