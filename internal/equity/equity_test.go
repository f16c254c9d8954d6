package equity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
)

func req(hole, board string, opp, iter int) Request {
	return Request{
		Hole:       cards.MustParseList(hole),
		Board:      cards.MustParseList(board),
		Opponents:  opp,
		Iterations: iter,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"ok preflop", req("As Kd", "", 1, 10000), nil},
		{"ok river", req("As Kd", "2c 3c 4c 5c 6c", 8, 100), nil},
		{"one hole card", req("As", "", 1, 10000), ErrHoleCards},
		{"three hole cards", req("As Kd Qh", "", 1, 10000), ErrHoleCards},
		{"six board cards", req("As Kd", "2c 3c 4c 5c 6c 7c", 1, 10000), ErrBoardSize},
		{"zero opponents", req("As Kd", "", 0, 10000), ErrOpponents},
		{"nine opponents", req("As Kd", "", 9, 10000), ErrOpponents},
		{"too few iterations", req("As Kd", "", 1, 99), ErrIterations},
		{"too many iterations", req("As Kd", "", 1, 1_000_001), ErrIterations},
		{"duplicate in hole", req("As As", "", 1, 10000), ErrDuplicateCard},
		{"duplicate across board", req("As Kd", "Kd 2c 3c", 1, 10000), ErrDuplicateCard},
		{"zero value card", Request{Hole: []cards.Card{{}, cards.MustParse("As")}, Opponents: 1, Iterations: 100}, cards.ErrInvalidCard},
	}
	for _, tt := range tests {
		err := Validate(tt.req)
		if tt.want == nil {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", tt.name, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: %T is not a *ValidationError", tt.name, err)
		}
	}
}

func TestValidationErrorDetail(t *testing.T) {
	t.Parallel()

	err := Validate(req("As Kd", "Kd 2c 3c", 1, 10000))
	if got, want := err.Error(), "duplicate card: Kd"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestNormalizeRates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		win, tie, lose float64
		want           Result
		wantErr        bool
	}{
		{name: "plain", win: 60, tie: 5, lose: 35, want: Result{WinRate: 60, TieRate: 5, LoseRate: 35}},
		{name: "clamps tiny negative", win: 100, tie: -0.005, lose: -0.01, want: Result{WinRate: 100}},
		{name: "rounding slack", win: 33.4, tie: 33.4, lose: 33.4, want: Result{WinRate: 33.4, TieRate: 33.4, LoseRate: 33.4}},
		{name: "negative beyond epsilon", win: 100.5, tie: 0.5, lose: -0.02, wantErr: true},
		{name: "above hundred", win: 100.5, tie: 0, lose: 0, wantErr: true},
		{name: "sum too low", win: 50, tie: 10, lose: 30, wantErr: true},
		{name: "sum too high", win: 60, tie: 10, lose: 32, wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeRates(tt.win, tt.tie, tt.lose)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidResult) {
				t.Errorf("%s: err = %v, want ErrInvalidResult", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

type recordingBackend struct {
	calls []Request
}

func (b *recordingBackend) CalculateEquity(_ context.Context, r Request) (Result, error) {
	b.calls = append(b.calls, r)
	return Result{WinRate: 50, TieRate: 0, LoseRate: 50, SimulationsCompleted: r.Iterations, Mode: ModeDaemon}, nil
}

func TestCalculatorDefaultsAndDelegation(t *testing.T) {
	t.Parallel()

	b := &recordingBackend{}
	c := NewCalculator(b)
	res, err := c.Calculate(context.Background(), req("As Kd", "2c 3d 4h", 0, 0))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(b.calls) != 1 {
		t.Fatalf("backend called %d times", len(b.calls))
	}
	if got := b.calls[0]; got.Opponents != DefaultOpponents || got.Iterations != DefaultIterations {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if res.SimulationsCompleted != DefaultIterations {
		t.Fatalf("simulations = %d", res.SimulationsCompleted)
	}
}

func TestCalculatorValidatesBeforeBackend(t *testing.T) {
	t.Parallel()

	b := &recordingBackend{}
	c := NewCalculator(b)
	if _, err := c.Calculate(context.Background(), req("As", "", 1, 1000)); !errors.Is(err, ErrHoleCards) {
		t.Fatalf("err = %v, want ErrHoleCards", err)
	}
	if len(b.calls) != 0 {
		t.Fatalf("backend reached with an invalid request")
	}
}

func TestCalculatorWithoutBackend(t *testing.T) {
	t.Parallel()

	c := NewCalculator(nil)
	if _, err := c.Calculate(context.Background(), req("As Kd", "", 1, 1000)); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
	var nilCalc *Calculator
	if _, err := nilCalc.Calculate(context.Background(), req("As Kd", "", 1, 1000)); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("nil calculator err = %v", err)
	}
}
