// gen_feed writes synthetic game-state feed lines for exercising the advisor
// without the detection pipeline.
//
// Each generated hand deals hole cards and a full board, then emits one
// snapshot per street (Preflop, Flop, Turn, River) with a fresh frame hash.
// Optional noise lines imitate a detector writing partial or garbled output.
//
// Usage:
//
//	go run ./tools/gen_feed [flags]
//
// Flags:
//
//	--output  feed file to append to (default: "state.jsonl")
//	--hands   number of hands to generate (default: 20)
//	--noise   probability of a garbage line between snapshots (default: 0.05)
//	--delay   pause between snapshots, 0 writes everything at once (default: 0)
//	--seed    random seed; 0 = use current time (default: 0)
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
	"github.com/AkatukiSora/vrpoker-advisor/internal/gamestate"
)

var tableSizes = []gamestate.TableSize{
	gamestate.HeadsUp, gamestate.ThreeMax, gamestate.FourMax, gamestate.FiveMax,
	gamestate.SixMax, gamestate.SevenMax, gamestate.EightMax, gamestate.NineMax,
}

var noiseTemplates = []string{
	`{"table_size":"6max","stage":"Flop","hole":["As"`,
	`{"table_size":"6max","stage":"Flop","hole":["??","Kd"],"board":["Ah","Kh","2c"]}`,
	`detector: frame dropped`,
	``,
}

// hand generates the four street snapshots of one dealt hand.
func hand(rng *rand.Rand) []gamestate.GameState {
	deck := cards.NewDeck().Cards()
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	size := tableSizes[rng.Intn(len(tableSizes))]
	gameType := gamestate.Cash
	if rng.Float64() < 0.3 {
		gameType = gamestate.Tournament
	}
	hole := deck[:2]
	board := deck[2:7]

	streets := []struct {
		stage gamestate.Stage
		n     int
	}{
		{gamestate.Preflop, 0},
		{gamestate.Flop, 3},
		{gamestate.Turn, 4},
		{gamestate.River, 5},
	}
	out := make([]gamestate.GameState, 0, len(streets))
	for _, s := range streets {
		out = append(out, gamestate.GameState{
			TableSize:  size,
			GameType:   gameType,
			Stage:      s.stage,
			HoleCards:  append([]cards.Card(nil), hole...),
			BoardCards: append([]cards.Card{}, board[:s.n]...),
			FrameHash:  fmt.Sprintf("%016x", rng.Uint64()),
		})
	}
	return out
}

func writeLine(w *bufio.Writer, line []byte, delay time.Duration) error {
	if _, err := w.Write(line); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}
	time.Sleep(delay)
	return nil
}

func generate(w *bufio.Writer, hands int, noise float64, delay time.Duration, rng *rand.Rand) (int, error) {
	written := 0
	for h := 0; h < hands; h++ {
		for _, g := range hand(rng) {
			if rng.Float64() < noise {
				tmpl := noiseTemplates[rng.Intn(len(noiseTemplates))]
				if err := writeLine(w, []byte(tmpl), 0); err != nil {
					return written, err
				}
			}
			data, err := json.Marshal(g)
			if err != nil {
				return written, err
			}
			if err := writeLine(w, data, delay); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, w.Flush()
}

func main() {
	output := flag.String("output", "state.jsonl", "feed file to append to")
	hands := flag.Int("hands", 20, "number of hands to generate")
	noise := flag.Float64("noise", 0.05, "probability of a garbage line between snapshots")
	delay := flag.Duration("delay", 0, "pause between snapshots (0 = write everything at once)")
	seed := flag.Int64("seed", 0, "random seed (0 = use current Unix time)")
	flag.Parse()

	if *hands < 1 {
		fmt.Fprintln(os.Stderr, "error: --hands must be >= 1")
		os.Exit(1)
	}
	if *noise < 0 || *noise > 1 {
		fmt.Fprintln(os.Stderr, "error: --noise must be within [0, 1]")
		os.Exit(1)
	}

	actualSeed := *seed
	if actualSeed == 0 {
		actualSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(actualSeed))
	fmt.Printf("seed: %d\n", actualSeed)

	f, err := os.OpenFile(*output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open %q: %v\n", *output, err)
		os.Exit(1)
	}
	defer f.Close()

	n, err := generate(bufio.NewWriter(f), *hands, *noise, *delay, rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: write %q: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("done: %d snapshots from %d hands appended to %s\n", n, *hands, *output)
}
