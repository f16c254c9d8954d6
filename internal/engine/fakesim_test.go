package engine

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// fakeModeEnv switches the test binary into a fake simulator.
const fakeModeEnv = "VRPOKER_FAKE_SIM_MODE"

// Fake daemon modes. Results report win = opponents*10 so tests can tell
// which request a response belongs to.
const (
	modeOK         = "ok"          // marker before the first result, like the real binary
	modePlain      = "plain"       // results only
	modeUnknown    = "unknown"     // an unrecognized JSON object before every result
	modeNoise      = "noise"       // tiny negative lose rate
	modeInvalid    = "invalid"     // rates summing to 150
	modeError      = "error"       // {"error": ...} replies
	modeEmpty      = "empty"       // three empty lines instead of a result
	modeDieAfter   = "die-after"   // answers once, then exits
	modeNoReady    = "noready"     // exits before READY
	modeHangStart  = "hang-start"  // never sends READY
	modeSlowFirst  = "slow-first"  // first answer arrives late
	modeHang       = "hang"        // never answers
	modeIgnoreExit = "ignore-exit" // ignores EXIT and stdin EOF
)

// Legacy-only modes: the daemon never comes up.
const (
	modeLegacyGarbage = "legacy-garbage"
	modeLegacySilent  = "legacy-silent"
	modeLegacyHang    = "legacy-hang"
)

const slowFirstDelay = 600 * time.Millisecond

func runFakeSimulator(mode string, args []string) int {
	if len(args) > 0 && args[0] == "--daemon" {
		return fakeDaemon(mode)
	}
	return fakeLegacy(mode, args)
}

func fakeDaemon(mode string) int {
	fmt.Fprintln(os.Stderr, "Loading lookup table...")
	switch mode {
	case modeNoReady, modeLegacyGarbage, modeLegacySilent, modeLegacyHang:
		fmt.Println("Loading...")
		return 1
	case modeHangStart:
		fmt.Println("Loading...")
		time.Sleep(time.Minute)
		return 0
	}
	fmt.Println("Loading lookup table done")
	fmt.Println(readyLine)

	in := bufio.NewScanner(os.Stdin)
	calls := 0
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "EXIT" {
			if mode == modeIgnoreExit {
				continue
			}
			fmt.Fprintln(os.Stderr, "Received EXIT command")
			return 0
		}
		if !strings.HasPrefix(line, "CALC ") {
			fmt.Printf("{\"error\": \"Unknown command: %s\"}\n", line)
			continue
		}
		calls++
		parts := strings.Split(strings.TrimPrefix(line, "CALC "), "|")
		if len(parts) != 4 {
			fmt.Println(`{"error": "Invalid command format. Expected: CALC board|hole|opponents|iterations"}`)
			continue
		}
		opp, _ := strconv.Atoi(parts[2])
		iters, _ := strconv.Atoi(parts[3])
		win := float64(opp) * 10
		result := fmt.Sprintf(`{"win_rate": %g, "tie_rate": 0, "lose_rate": %g, "simulations_completed": %d}`, win, 100-win, iters)

		switch mode {
		case modeOK:
			if calls == 1 {
				fmt.Println(`{"marker": "daemon-control"}`)
			}
			fmt.Println(result)
		case modeUnknown:
			fmt.Println(`{"status": "warming"}`)
			fmt.Println(result)
		case modeNoise:
			fmt.Println(`{"win_rate": 97.5, "tie_rate": 2.505, "lose_rate": -0.005}`)
		case modeInvalid:
			fmt.Println(`{"win_rate": 100, "tie_rate": 25, "lose_rate": 25}`)
		case modeError:
			fmt.Println(`{"error": "Duplicate cards detected"}`)
		case modeEmpty:
			fmt.Print("\n\n\n")
		case modeDieAfter:
			fmt.Println(result)
			if calls == 1 {
				return 0
			}
		case modeSlowFirst:
			if calls == 1 {
				go func(r string) {
					time.Sleep(slowFirstDelay)
					fmt.Println(r)
				}(result)
				continue
			}
			fmt.Println(result)
		case modeHang:
		default:
			fmt.Println(result)
		}
	}
	if mode == modeIgnoreExit {
		time.Sleep(time.Minute)
	}
	return 0
}

func fakeLegacy(mode string, args []string) int {
	switch mode {
	case modeLegacySilent:
		fmt.Fprintln(os.Stderr, "Error: lookup table missing")
		return 3
	case modeLegacyHang:
		time.Sleep(time.Minute)
		return 0
	case modeLegacyGarbage:
		fmt.Println("Simulating...")
		fmt.Println("no numbers here")
		return 0
	}
	if len(args) != 3 {
		fmt.Println("Usage: ./poker_test <board_cards> <known_hands> <opponents>")
		return 1
	}
	fmt.Printf("Board: %s\n", args[0])
	fmt.Printf("Known hands: %s\n", args[1])
	fmt.Printf("Opponents: %s\n", args[2])
	fmt.Println("Simulating...")
	fmt.Println("Hand      Win %    Tie %")
	fmt.Println("?? ?? 40.000   5.000 (x1 random hands)")
	fmt.Println("61.234   3.210")
	return 0
}
