// Package render formats analysis results and engine statistics for the
// terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"github.com/AkatukiSora/vrpoker-advisor/internal/analysis"
	"github.com/AkatukiSora/vrpoker-advisor/internal/board"
	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
	"github.com/AkatukiSora/vrpoker-advisor/internal/engine"
	"github.com/AkatukiSora/vrpoker-advisor/internal/gamestate"
	"github.com/AkatukiSora/vrpoker-advisor/internal/persistence"
)

// Analysis returns a boxed summary of one snapshot's result.
func Analysis(g gamestate.GameState, res analysis.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s (%d opponents)\n", g.TableSize, res.Opponents)
	fmt.Fprintf(&b, "Hole:  %s\n", pterm.LightCyan(joinCards(g.HoleCards)))
	if len(g.BoardCards) > 0 {
		fmt.Fprintf(&b, "Board: %s\n", joinCards(g.BoardCards))
	}

	if res.Preflop() {
		fmt.Fprintf(&b, "\nHand:  %s\n", pterm.LightYellow(res.HandKey))
		if len(res.PocketCategories) > 0 {
			fmt.Fprintf(&b, "Type:  %s\n", strings.Join(res.PocketCategories, ", "))
		}
		return box(string(res.Stage), b.String())
	}

	fmt.Fprintf(&b, "\nMade:  %s  [%s]\n", pterm.LightYellow(res.CurrentHand), joinCards(res.Best5))
	if res.Outs != nil {
		o := res.Outs
		fmt.Fprintf(&b, "Outs:  %d (flush %d, straight %d, set/trips %d, overcard %d)\n",
			res.TotalOuts, o.Flush, o.Straight, o.SetTrips, o.Overcard)
	}
	if res.Texture != nil {
		fmt.Fprintf(&b, "Board: %s\n", Texture(*res.Texture))
	}
	switch {
	case res.Equity != nil:
		e := res.Equity
		fmt.Fprintf(&b, "\nWin %s  Tie %s  Lose %s\n",
			pterm.LightGreen(fmt.Sprintf("%.2f%%", e.WinRate)),
			fmt.Sprintf("%.2f%%", e.TieRate),
			pterm.LightRed(fmt.Sprintf("%.2f%%", e.LoseRate)))
		fmt.Fprintf(&b, "%s simulations via %s\n", humanize.Comma(int64(e.SimulationsCompleted)), e.Mode)
	case res.EquityError != "":
		fmt.Fprintf(&b, "\n%s %s\n", pterm.LightRed("Equity unavailable:"), res.EquityError)
	}
	return box(string(res.Stage), b.String())
}

// Texture lists the board features that are set, or "-" if none.
func Texture(t board.Texture) string {
	var parts []string
	flags := []struct {
		on   bool
		name string
	}{
		{t.Monotone, "monotone"},
		{t.TwoTone, "two-tone"},
		{t.Rainbow, "rainbow"},
		{t.Paired, "paired"},
		{t.Coordinated, "coordinated"},
		{t.FlushDraw, "flush draw"},
		{t.Dry, "dry"},
	}
	for _, f := range flags {
		if f.on {
			parts = append(parts, f.name)
		}
	}
	if t.StraightDraws > 0 {
		parts = append(parts, fmt.Sprintf("%d straight window(s)", t.StraightDraws))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

// EngineStats renders the counters of the running engine.
func EngineStats(st engine.Stats) string {
	rows := pterm.TableData{
		{"Mode", "Calls", "Daemon", "Legacy", "Failures", "Avg latency"},
		{
			string(st.Mode),
			humanize.Comma(st.TotalCalls),
			humanize.Comma(st.DaemonCalls),
			humanize.Comma(st.LegacyFallbacks),
			humanize.Comma(st.Failures),
			st.AvgLatency.Round(time.Millisecond).String(),
		},
	}
	return table(rows)
}

// History renders stored engine sessions, newest first, plus totals.
func History(sessions []persistence.EngineSession, totals persistence.SessionTotals, now time.Time) string {
	rows := pterm.TableData{{"Session", "Started", "Duration", "Mode", "Calls", "Fallbacks", "Failures", "Avg latency"}}
	for _, s := range sessions {
		dur := "running"
		if s.EndedAt != nil {
			dur = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		rows = append(rows, []string{
			shortID(s.ID),
			humanize.RelTime(s.StartedAt, now, "ago", "from now"),
			dur,
			s.FinalMode,
			humanize.Comma(s.TotalCalls),
			humanize.Comma(s.LegacyFallbacks),
			humanize.Comma(s.Failures),
			s.AvgLatency.String(),
		})
	}
	summary := fmt.Sprintf("%s sessions, %s calls, %s legacy fallbacks, avg latency %s",
		humanize.Comma(int64(totals.Sessions)),
		humanize.Comma(totals.TotalCalls),
		humanize.Comma(totals.LegacyFallbacks),
		totals.AvgLatency().Round(time.Millisecond))
	return table(rows) + "\n" + summary + "\n"
}

func table(rows pterm.TableData) string {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		var b strings.Builder
		for _, r := range rows {
			b.WriteString(strings.Join(r, "\t"))
			b.WriteByte('\n')
		}
		return b.String()
	}
	return out
}

func box(title, body string) string {
	return pterm.DefaultBox.
		WithTitle(pterm.LightYellow(title)).
		WithTitleTopLeft().
		WithHorizontalPadding(2).
		Sprint(strings.TrimRight(body, "\n"))
}

func joinCards(cs []cards.Card) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
