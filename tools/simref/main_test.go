package main

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
)

func testRand() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func TestSimulateKnownSpots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		board  string
		hole   string
		opp    int
		win    float64
		margin float64
	}{
		{name: "royal flush on the river", board: "Qs Js Ts 2c 3d", hole: "As Ks", opp: 3, win: 100, margin: 0},
		{name: "aces preflop heads up", board: "", hole: "Ah Ad", opp: 1, win: 85, margin: 2.5},
		{name: "seven deuce preflop heads up", board: "", hole: "7c 2d", opp: 1, win: 33, margin: 3},
	}
	for _, tt := range tests {
		req := request{board: cards.MustParseList(tt.board), hole: cards.MustParseList(tt.hole), opponents: tt.opp, iterations: 20000}
		got := simulate(req, testRand())
		if math.Abs(got.Win-tt.win) > tt.margin {
			t.Errorf("%s: win = %.2f, want %.1f±%.1f", tt.name, got.Win, tt.win, tt.margin)
		}
		if sum := got.Win + got.Tie + got.Lose; math.Abs(sum-100) > 1e-9 {
			t.Errorf("%s: rates sum to %f", tt.name, sum)
		}
	}
}

func TestServeProtocol(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("CALC Ah,Kh,2c|As,Kd|2|500\nCALC bogus|As|1|10\nHELLO\nCALC |As,Ad|1|200\nEXIT\nCALC |As,Ad|1|200\n")
	var out bytes.Buffer
	if err := serve(in, &out, testRand()); err != nil {
		t.Fatalf("serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 6 || lines[0] != "READY" {
		t.Fatalf("output lines = %q", lines)
	}
	wantKeys := []string{"marker", "win_rate", "error", "error", "win_rate"}
	for i, key := range wantKeys {
		var m map[string]any
		if err := json.Unmarshal([]byte(lines[i+1]), &m); err != nil {
			t.Fatalf("line %d %q: %v", i+1, lines[i+1], err)
		}
		if _, ok := m[key]; !ok {
			t.Errorf("line %d %q missing %q", i+1, lines[i+1], key)
		}
	}
}

func TestParseCalcRejects(t *testing.T) {
	t.Parallel()

	bad := []string{
		"Ah,Kh|As,Kd|2",
		"Ah,Kh,2c|As|2|100",
		"Ah,Kh|As,Kd|2|100",
		"Ah,Kh,2c|Ah,Kd|2|100",
		"Ah,Kh,2c|As,Kd|9|100",
		"Ah,Kh,2c|As,Kd|2|0",
	}
	for _, p := range bad {
		if _, err := parseCalc(p); err == nil {
			t.Errorf("parseCalc(%q) succeeded", p)
		}
	}
}

func TestLegacyOutput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := legacy(&out, []string{"Qs,Js,Ts,2c,3d", "As,Ks", "2"}, testRand()); err != nil {
		t.Fatalf("legacy: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "Win %") {
		t.Fatalf("output = %q", out.String())
	}
	if fields := strings.Fields(lines[1]); len(fields) != 3 || fields[1] != "100.000" || fields[2] != "0.000" {
		t.Fatalf("result row = %q", lines[1])
	}
}
