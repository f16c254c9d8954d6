package main

import (
	"bufio"
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/AkatukiSora/vrpoker-advisor/internal/gamestate"
)

func TestGeneratedSnapshotsDecode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	n, err := generate(w, 5, 0, 0, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if n != 20 {
		t.Fatalf("snapshots = %d, want 20", n)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("lines = %d", len(lines))
	}
	wantStages := []gamestate.Stage{gamestate.Preflop, gamestate.Flop, gamestate.Turn, gamestate.River}
	for i, line := range lines {
		g, err := gamestate.Decode([]byte(line))
		if err != nil {
			t.Fatalf("line %d %q: %v", i, line, err)
		}
		if g.Stage != wantStages[i%4] {
			t.Fatalf("line %d stage = %s, want %s", i, g.Stage, wantStages[i%4])
		}
		if g.FrameHash == "" {
			t.Fatalf("line %d has no frame hash", i)
		}
	}
}

func TestNoiseLinesAreRejected(t *testing.T) {
	t.Parallel()

	for _, tmpl := range noiseTemplates {
		if tmpl == "" {
			continue
		}
		if _, err := gamestate.Decode([]byte(tmpl)); err == nil {
			t.Errorf("noise line %q decoded", tmpl)
		}
	}
}
