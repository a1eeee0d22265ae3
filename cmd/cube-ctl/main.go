package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// cube-ctl - Command-line IPC Client
// ============================================================================
// Sends gestures to the cocktailcube daemon via IPC.
//
// Usage:
//   cube-ctl adjust 2 +
//   cube-ctl shift 1 -15
//   cube-ctl timespan 600
//   cube-ctl reload
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/cocktailcube.sock)
// ============================================================================

// EventEnvelope wraps events for JSON (same wire form as the daemon)
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Event  string `json:"event,omitempty"`
	Error  string `json:"error,omitempty"`
}

func main() {
	socketPath := "/tmp/cocktailcube.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		os.Exit(0)
	}

	lines, err := buildCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	if err := sendEvents(socketPath, lines); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

// buildCommand turns command line arguments into the event lines to send.
// Multi-step gestures (shift, timespan) expand into several events.
func buildCommand(args []string) ([][]byte, error) {
	switch args[0] {
	case "adjust":
		if len(args) < 3 {
			return nil, fmt.Errorf("adjust requires <segment 1-3> <+|->")
		}
		index, err := parseSegment(args[1])
		if err != nil {
			return nil, err
		}
		var dir int
		switch args[2] {
		case "+", "up", "1", "+1":
			dir = 1
		case "-", "down", "-1":
			dir = -1
		default:
			return nil, fmt.Errorf("invalid direction %q (use + or -)", args[2])
		}
		return envelopes(event("adjust", map[string]int{"index": index, "direction": dir}))

	case "shift":
		if len(args) < 3 {
			return nil, fmt.Errorf("shift requires <segment 1-3> <degrees>")
		}
		index, err := parseSegment(args[1])
		if err != nil {
			return nil, err
		}
		delta, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid degrees: %v", err)
		}
		return envelopes(
			event("drag_begin", map[string]int{"index": index}),
			event("drag_move", map[string]float64{"delta": delta}),
			event("drag_end", nil),
		)

	case "timespan", "set-timespan":
		if len(args) < 2 {
			return nil, fmt.Errorf("timespan requires a value in ms")
		}
		ms, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid timespan: %v", err)
		}
		return envelopes(
			event("slider_press", nil),
			event("slider_commit", map[string]int{"value": ms}),
			event("pointer_release", nil),
		)

	case "dial":
		if len(args) < 2 {
			return nil, fmt.Errorf("dial requires a step count")
		}
		steps, err := strconv.Atoi(args[1])
		if err != nil || steps == 0 {
			return nil, fmt.Errorf("invalid step count %q", args[1])
		}
		return envelopes(event("dial_turn", map[string]int{"steps": steps}))

	case "next", "prev":
		delta := 1
		if args[0] == "prev" {
			delta = -1
		}
		return envelopes(event("select_segment", map[string]int{"delta": delta}))

	case "release":
		return envelopes(event("pointer_release", nil))

	case "reload":
		return envelopes(event("reload", nil))

	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

type pendingEvent struct {
	typ  string
	data any
}

func event(typ string, data any) pendingEvent { return pendingEvent{typ: typ, data: data} }

func envelopes(evs ...pendingEvent) ([][]byte, error) {
	out := make([][]byte, 0, len(evs))
	for _, ev := range evs {
		env := EventEnvelope{Type: ev.typ}
		if ev.data != nil {
			data, err := json.Marshal(ev.data)
			if err != nil {
				return nil, fmt.Errorf("marshal %s: %w", ev.typ, err)
			}
			env.Data = data
		}
		line, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", ev.typ, err)
		}
		out = append(out, line)
	}
	return out, nil
}

// parseSegment converts a 1-based segment number (as printed on the device)
// into the daemon's 0-based index.
func parseSegment(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 3 {
		return 0, fmt.Errorf("invalid segment %q (use 1, 2 or 3)", s)
	}
	return n - 1, nil
}

func sendEvents(socketPath string, lines [][]byte) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	for _, line := range lines {
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			return fmt.Errorf("send event: %w", err)
		}

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var response IPCResponse
		if err := decoder.Decode(&response); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if response.Status == "error" {
			return fmt.Errorf("daemon error: %s", response.Error)
		}
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cube-ctl - Control the cocktailcube daemon via IPC

Usage:
  cube-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/cocktailcube.sock)

Commands:
  adjust <1-3> <+|->       Press a +/- button of a segment
  shift <1-3> <degrees>    Drag a segment boundary by degrees (one write)
  timespan <ms>            Set the cycle timespan (200-1000, snapped to 20)
  dial <steps>             Turn the dial (negative = counter-clockwise)
  next, prev               Move the dial to the next/previous segment
  release                  Release any held slider or drag
  reload                   Re-sync everything from the device
  help, -h, --help         Show this help message

Examples:
  cube-ctl adjust 1 +
  cube-ctl shift 3 -20
  cube-ctl -socket /run/cocktailcube.sock timespan 640
`)
}
