package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
	"github.com/AkatukiSora/vrpoker-advisor/internal/equity"
)

const (
	readyLine   = "READY"
	exitCommand = "EXIT\n"
)

func encodeCalc(req equity.Request) string {
	return fmt.Sprintf("CALC %s|%s|%d|%d\n",
		cards.FormatList(req.Board), cards.FormatList(req.Hole), req.Opponents, req.Iterations)
}

type responseKind int

const (
	kindResult responseKind = iota
	kindError
	kindMarker
	kindUnknown
	kindMalformed
)

func (k responseKind) String() string {
	switch k {
	case kindResult:
		return "result"
	case kindError:
		return "error"
	case kindMarker:
		return "marker"
	case kindUnknown:
		return "unknown"
	default:
		return "malformed"
	}
}

// conforming reports whether the line answers a request.
func (k responseKind) conforming() bool { return k == kindResult || k == kindError }

type response struct {
	kind   responseKind
	fields map[string]json.RawMessage
	raw    string
}

func classify(line string) response {
	line = strings.TrimSpace(line)
	r := response{kind: kindMalformed, raw: line}
	if err := json.Unmarshal([]byte(line), &r.fields); err != nil || r.fields == nil {
		return r
	}
	_, hasWin := r.fields["win_rate"]
	_, hasErr := r.fields["error"]
	_, hasMarker := r.fields["marker"]
	switch {
	case hasErr:
		r.kind = kindError
	case hasWin:
		r.kind = kindResult
	case hasMarker:
		r.kind = kindMarker
	default:
		r.kind = kindUnknown
	}
	return r
}

func (r response) errorMessage() string {
	var msg string
	if err := json.Unmarshal(r.fields["error"], &msg); err != nil {
		return string(r.fields["error"])
	}
	return msg
}

func (r response) rate(name string) (float64, error) {
	raw, ok := r.fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrProtocol, name)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %q is not a number: %s", ErrProtocol, name, raw)
	}
	return v, nil
}

// result validates a result-shaped response.
func (r response) result(req equity.Request) (equity.Result, error) {
	win, err := r.rate("win_rate")
	if err != nil {
		return equity.Result{}, err
	}
	tie, err := r.rate("tie_rate")
	if err != nil {
		return equity.Result{}, err
	}
	lose, err := r.rate("lose_rate")
	if err != nil {
		return equity.Result{}, err
	}
	res, err := equity.NormalizeRates(win, tie, lose)
	if err != nil {
		return equity.Result{}, err
	}
	res.SimulationsCompleted = req.Iterations
	res.Mode = equity.ModeDaemon
	return res, nil
}
