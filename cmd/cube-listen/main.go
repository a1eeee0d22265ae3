package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// cube-listen prints the cocktailcube state feed as it changes. With -send it
// sends one gesture envelope first, e.g.
//
//	cube-listen -send '{"type":"adjust","data":{"index":0,"direction":1}}'
func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8080/ws/state", "cocktailcube state feed URL")
		send  = flag.String("send", "", "Send one gesture envelope after connecting")
		raw   = flag.Bool("raw", false, "Print frames as received instead of summarizing them")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The daemon pings every 20s.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	if *send != "" {
		if !json.Valid([]byte(*send)) {
			log.Fatalf("-send is not valid JSON")
		}
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, []byte(*send))
		writeMu.Unlock()
		if err != nil {
			log.Fatalf("failed to send gesture: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			fmt.Println(describeFrame(message))
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type controlView struct {
	Angles      [3]float64 `json:"angles"`
	Percentages [3]float64 `json:"percentages"`
	Labels      [3]string  `json:"labels"`
	Selected    int        `json:"selected"`
}

// describeFrame renders one state feed frame as a single line.
func describeFrame(message []byte) string {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		return "[TEXT] " + string(message)
	}

	switch f.Type {
	case "state_init":
		var d struct {
			Settings *struct {
				MixerName string `json:"mixer_name"`
			} `json:"settings"`
			IsMixer    bool        `json:"is_mixer"`
			Control    controlView `json:"control"`
			TimespanMS int         `json:"timespan_ms"`
			Online     bool        `json:"online"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		name := "(settings unknown)"
		if d.Settings != nil {
			name = d.Settings.MixerName
		}
		return fmt.Sprintf("[INIT] %s mixer=%v online=%v timespan=%dms %s",
			name, d.IsMixer, d.Online, d.TimespanMS, describeSlices(d.Control))

	case "slices_changed":
		var d struct {
			controlView
			FromUser bool `json:"from_user"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		src := "device"
		if d.FromUser {
			src = "user"
		}
		return fmt.Sprintf("[SLICES] %s (%s)", describeSlices(d.controlView), src)

	case "timespan_changed":
		var d struct {
			TimespanMS int  `json:"timespan_ms"`
			FromUser   bool `json:"from_user"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		return fmt.Sprintf("[TIMESPAN] %dms from_user=%v", d.TimespanMS, d.FromUser)

	case "online_changed":
		var d struct {
			Online bool `json:"online"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		if d.Online {
			return "[ONLINE]"
		}
		return "[OFFLINE]"

	case "write_failed":
		var d struct {
			Field string `json:"field"`
			Value int    `json:"value"`
			Kind  string `json:"kind"`
			Error string `json:"error"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		return fmt.Sprintf("[WRITE FAILED] %s=%d (%s): %s; send a reload to re-sync", d.Field, d.Value, d.Kind, d.Error)

	case "notice", "error":
		var d struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		return fmt.Sprintf("[%s] %s", strings.ToUpper(f.Type), d.Message)
	}

	return fmt.Sprintf("[%s] %s", strings.ToUpper(f.Type), f.Data)
}

func describeSlices(v controlView) string {
	parts := make([]string, 0, len(v.Percentages))
	for i, p := range v.Percentages {
		label := v.Labels[i]
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		marker := ""
		if i == v.Selected {
			marker = "*"
		}
		parts = append(parts, fmt.Sprintf("%s%s %.0f%%", marker, label, p))
	}
	return strings.Join(parts, " | ")
}
