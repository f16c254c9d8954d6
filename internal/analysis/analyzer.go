// Package analysis assembles the per-snapshot result bundle: hand strength,
// outs, board texture and simulated equity.
package analysis

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AkatukiSora/vrpoker-advisor/internal/board"
	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
	"github.com/AkatukiSora/vrpoker-advisor/internal/equity"
	"github.com/AkatukiSora/vrpoker-advisor/internal/gamestate"
	"github.com/AkatukiSora/vrpoker-advisor/internal/handeval"
	"github.com/AkatukiSora/vrpoker-advisor/internal/outs"
)

// DefaultIterations for postflop equity.
const DefaultIterations = 50000

// EquityCalculator is satisfied by *equity.Calculator.
type EquityCalculator interface {
	Calculate(ctx context.Context, req equity.Request) (equity.Result, error)
}

type Result struct {
	Stage     gamestate.Stage `json:"stage"`
	Opponents int             `json:"num_opponents"`

	// Preflop
	HandKey          string   `json:"hand_key,omitempty"`
	PocketCategories []string `json:"pocket_categories,omitempty"`
	CardsDisplay     string   `json:"cards_display,omitempty"`

	// Postflop
	CurrentHand string            `json:"current_hand,omitempty"`
	Strength    handeval.HandRank `json:"hand_strength_numeric,omitempty"`
	Best5       []cards.Card      `json:"best_5_cards,omitempty"`
	Outs        *outs.Counts      `json:"outs_analysis,omitempty"`
	TotalOuts   int               `json:"total_outs"`
	Texture     *board.Texture    `json:"board_texture,omitempty"`
	Equity      *equity.Result    `json:"equity,omitempty"`
	EquityError string            `json:"equity_error,omitempty"`
}

func (r Result) Preflop() bool { return r.Stage == gamestate.Preflop }

type Analyzer struct {
	evaluator  *handeval.Evaluator
	calculator EquityCalculator
	iterations int
}

// NewAnalyzer builds an analyzer. A nil calculator leaves equity out of the
// results; iterations <= 0 selects DefaultIterations.
func NewAnalyzer(evaluator *handeval.Evaluator, calculator EquityCalculator, iterations int) *Analyzer {
	if evaluator == nil {
		evaluator = handeval.NewEvaluator(handeval.DefaultCacheSize)
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Analyzer{evaluator: evaluator, calculator: calculator, iterations: iterations}
}

// Analyze validates the snapshot and builds its result. Equity failures are
// reported inside the result, not as an error.
func (a *Analyzer) Analyze(ctx context.Context, g gamestate.GameState) (Result, error) {
	if err := g.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{Stage: g.Stage, Opponents: g.Opponents()}
	if g.Stage == gamestate.Preflop {
		a.preflop(g, &res)
		return res, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	var eq *equity.Result
	var eqErr error
	if len(g.BoardCards) >= 3 {
		eg.Go(func() error {
			eq, eqErr = a.equity(egCtx, g)
			return nil
		})
	}
	eg.Go(func() error {
		a.postflop(g, &res)
		return nil
	})
	_ = eg.Wait()

	switch {
	case eqErr != nil:
		slog.Warn("equity unavailable for snapshot", "error", eqErr)
		res.EquityError = eqErr.Error()
	case eq != nil:
		res.Equity = eq
	}
	return res, nil
}

func (a *Analyzer) preflop(g gamestate.GameState, res *Result) {
	res.HandKey = handeval.PreflopKey(g.HoleCards)
	res.PocketCategories = handeval.PocketLabels(handeval.ClassifyPocket(g.HoleCards[0], g.HoleCards[1]))
	parts := make([]string, len(g.HoleCards))
	for i, c := range g.HoleCards {
		parts[i] = c.String()
	}
	res.CardsDisplay = strings.Join(parts, " ")
}

func (a *Analyzer) postflop(g gamestate.GameState, res *Result) {
	best, rank := a.evaluator.BestHand(g.AllCards())
	res.CurrentHand = rank.Category().String()
	res.Strength = rank
	res.Best5 = best

	if len(g.BoardCards) < 5 {
		b := outs.Calculate(g.HoleCards, g.BoardCards)
		counts := b.Counts()
		res.Outs = &counts
		res.TotalOuts = b.Total()
	}
	if tex, err := board.AnalyzeTexture(g.BoardCards); err == nil {
		res.Texture = &tex
	}
}

func (a *Analyzer) equity(ctx context.Context, g gamestate.GameState) (*equity.Result, error) {
	if a.calculator == nil {
		return nil, equity.ErrBackendUnavailable
	}
	r, err := a.calculator.Calculate(ctx, equity.Request{
		Hole:       g.HoleCards,
		Board:      g.BoardCards,
		Opponents:  g.Opponents(),
		Iterations: a.iterations,
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}
