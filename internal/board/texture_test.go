package board

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
)

func TestAnalyzeTexture(t *testing.T) {
	t.Parallel()

	tests := []struct {
		board string
		want  Texture
	}{
		{"Ah Kh Qh", Texture{Monotone: true, Coordinated: true, StraightDraws: 1}},
		{"As 7d 2c", Texture{Rainbow: true, Dry: true}},
		{"Ks Kd 5h", Texture{Rainbow: true, Paired: true, Coordinated: true}},
		{"9h 8h 2c", Texture{FlushDraw: true, Coordinated: true}},
		{"9c Tc Jd", Texture{FlushDraw: true, Coordinated: true, StraightDraws: 3}},
		{"9h 8h 2c 2d", Texture{Rainbow: true, Paired: true, FlushDraw: true, Coordinated: true}},
		{"Ac 2d 4h", Texture{Rainbow: true, Coordinated: true, StraightDraws: 1}},
		{"Jc 9d 2c 3h Kh", Texture{TwoTone: true, Rainbow: true, FlushDraw: true, Coordinated: true, StraightDraws: 1}},
	}
	for _, tt := range tests {
		got, err := AnalyzeTexture(cards.MustParseList(tt.board))
		if err != nil {
			t.Fatalf("AnalyzeTexture(%s): %v", tt.board, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("AnalyzeTexture(%s) mismatch (-want +got):\n%s", tt.board, diff)
		}
	}
}

func TestAnalyzeTextureTooFewCards(t *testing.T) {
	t.Parallel()

	for _, b := range []string{"", "As", "As Kd"} {
		if _, err := AnalyzeTexture(cards.MustParseList(b)); !errors.Is(err, ErrTooFewCards) {
			t.Fatalf("AnalyzeTexture(%q) err = %v, want ErrTooFewCards", b, err)
		}
	}
}

func TestMonotoneAndRainbowExclusive(t *testing.T) {
	t.Parallel()

	deck := cards.NewDeck().Cards()
	for i := 0; i < len(deck); i++ {
		b := []cards.Card{deck[i], deck[(i+13)%52], deck[(i+1)%52], deck[(i+26)%52]}
		tex, err := AnalyzeTexture(b)
		if err != nil {
			t.Fatalf("AnalyzeTexture(%v): %v", b, err)
		}
		if tex.Monotone && tex.Rainbow {
			t.Fatalf("%v: monotone and rainbow both set", b)
		}
	}

	tex, err := AnalyzeTexture(cards.MustParseList("2h 5h 9h Kc"))
	if err != nil {
		t.Fatalf("AnalyzeTexture: %v", err)
	}
	if !tex.Monotone || tex.Rainbow {
		t.Fatalf("three hearts plus a club: %+v", tex)
	}
}
