// Package gamestate holds the table snapshot produced by the card detection
// pipeline and decodes it from the JSON feed.
package gamestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
)

var ErrInvalidState = errors.New("invalid game state")

type TableSize string

const (
	HeadsUp  TableSize = "heads_up"
	ThreeMax TableSize = "3max"
	FourMax  TableSize = "4max"
	FiveMax  TableSize = "5max"
	SixMax   TableSize = "6max"
	SevenMax TableSize = "7max"
	EightMax TableSize = "8max"
	NineMax  TableSize = "9max"
)

var opponentsBySize = map[TableSize]int{
	HeadsUp:  1,
	ThreeMax: 2,
	FourMax:  3,
	FiveMax:  4,
	SixMax:   5,
	SevenMax: 6,
	EightMax: 7,
	NineMax:  8,
}

func (t TableSize) Valid() bool {
	_, ok := opponentsBySize[t]
	return ok
}

// Opponents at a full table of this size; unknown sizes count as heads up.
func (t TableSize) Opponents() int {
	if n, ok := opponentsBySize[t]; ok {
		return n
	}
	return 1
}

func (t TableSize) Players() int { return t.Opponents() + 1 }

type GameType string

const (
	Cash       GameType = "Cash"
	Tournament GameType = "TTM"
)

type Stage string

const (
	Preflop Stage = "Preflop"
	Flop    Stage = "Flop"
	Turn    Stage = "Turn"
	River   Stage = "River"
)

// BoardSize is the number of community cards dealt by this stage, or -1.
func (s Stage) BoardSize() int {
	switch s {
	case Preflop:
		return 0
	case Flop:
		return 3
	case Turn:
		return 4
	case River:
		return 5
	default:
		return -1
	}
}

// StageForBoard maps a board size back to its stage.
func StageForBoard(n int) (Stage, bool) {
	for _, s := range []Stage{Preflop, Flop, Turn, River} {
		if s.BoardSize() == n {
			return s, true
		}
	}
	return "", false
}

type GameState struct {
	TableSize  TableSize    `json:"table_size"`
	GameType   GameType     `json:"game_type,omitempty"`
	Stage      Stage        `json:"stage"`
	HoleCards  []cards.Card `json:"hole"`
	BoardCards []cards.Card `json:"board"`
	FrameHash  string       `json:"frame_hash,omitempty"`
}

// Decode parses one feed line. Missing game type defaults to cash; a missing
// stage is inferred from the board size.
func Decode(line []byte) (GameState, error) {
	var g GameState
	if err := json.Unmarshal(line, &g); err != nil {
		return GameState{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if g.GameType == "" {
		g.GameType = Cash
	}
	if g.Stage == "" {
		if s, ok := StageForBoard(len(g.BoardCards)); ok {
			g.Stage = s
		}
	}
	if err := g.Validate(); err != nil {
		return GameState{}, err
	}
	return g, nil
}

func (g GameState) Validate() error {
	if !g.TableSize.Valid() {
		return fmt.Errorf("%w: unknown table size %q", ErrInvalidState, g.TableSize)
	}
	if g.GameType != Cash && g.GameType != Tournament {
		return fmt.Errorf("%w: unknown game type %q", ErrInvalidState, g.GameType)
	}
	want := g.Stage.BoardSize()
	if want < 0 {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidState, g.Stage)
	}
	if len(g.HoleCards) != 2 {
		return fmt.Errorf("%w: need exactly 2 hole cards, got %d", ErrInvalidState, len(g.HoleCards))
	}
	if len(g.BoardCards) != want {
		return fmt.Errorf("%w: %s needs %d board cards, got %d", ErrInvalidState, g.Stage, want, len(g.BoardCards))
	}
	if dup, ok := cards.HasDuplicates(g.AllCards()...); ok {
		return fmt.Errorf("%w: duplicate card %s", ErrInvalidState, dup)
	}
	return nil
}

func (g GameState) Opponents() int { return g.TableSize.Opponents() }

// AllCards is hole then board, in a fresh slice.
func (g GameState) AllCards() []cards.Card {
	out := make([]cards.Card, 0, len(g.HoleCards)+len(g.BoardCards))
	out = append(out, g.HoleCards...)
	return append(out, g.BoardCards...)
}

// Key identifies the snapshot for caching: the frame hash when the detector
// supplied one, otherwise the table contents.
func (g GameState) Key() string {
	if g.FrameHash != "" {
		return g.FrameHash
	}
	return strings.Join([]string{
		string(g.TableSize),
		string(g.Stage),
		cards.FormatList(g.HoleCards),
		cards.FormatList(g.BoardCards),
	}, "|")
}
