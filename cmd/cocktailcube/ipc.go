package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Scripts and cube-ctl inject gestures into the running daemon.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "event_name", "data": {...}}
//   - Server responds: {"status": "ok", "event": "event_name"} or
//     {"status": "error", "error": "msg"}
// ============================================================================

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Event  string `json:"event,omitempty"` // echoed event type on success
	Error  string `json:"error,omitempty"` // error message if status == "error"
}

// ipcEnqueueTimeout bounds how long a client waits when the daemon is busy
// with a slow device round-trip.
const ipcEnqueueTimeout = 250 * time.Millisecond

// maxIPCLine bounds a single request line.
const maxIPCLine = 16 << 10

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, events, logger)
	}
}

// handleIPCConnection serves one client until it disconnects.
func handleIPCConnection(ctx context.Context, conn net.Conn, events chan<- Event, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), maxIPCLine)
	encoder := json.NewEncoder(conn)

	respond := func(resp IPCResponse) {
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "status", resp.Status, "error", err)
		}
	}

	// A press or drag_begin whose release never arrives would hold off
	// polling; release it when the connection ends.
	var gestures gestureTracker
	defer func() {
		if !gestures.open() {
			return
		}
		if err := enqueueEvent(ctx, events, PointerRelease{}, gestureReleaseTimeout); err != nil {
			logger.Error("IPC gesture release lost", "error", err)
			return
		}
		logger.Info("IPC client left a gesture open, released")
	}()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		ev, err := UnmarshalEvent([]byte(line))
		if err != nil {
			respond(IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)})
			continue
		}

		if err := enqueueEvent(ctx, events, ev, ipcEnqueueTimeout); err != nil {
			respond(IPCResponse{Status: "error", Error: err.Error()})
			continue
		}
		gestures.observe(ev)

		var env EventEnvelope
		_ = json.Unmarshal([]byte(line), &env)
		respond(IPCResponse{Status: "ok", Event: env.Type})
	}

	if err := scanner.Err(); err != nil {
		logger.Debug("IPC connection read error", "error", err)
	}
	logger.Debug("IPC connection closed")
}

// enqueueEvent hands ev to the daemon loop, waiting at most timeout.
func enqueueEvent(ctx context.Context, events chan<- Event, ev Event, timeout time.Duration) error {
	select {
	case events <- ev:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return errors.New("daemon shutting down")
	case <-timer.C:
		return errors.New("event queue full")
	}
}
