// Package main implements meshtail, a small CLI that connects to a running
// gateway's websocket feed and prints events as they arrive. Useful for
// checking a deployment without a dashboard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

var version = "0.1.0"

type cliFlags struct {
	url         string
	types       string
	raw         bool
	showVersion bool
}

// envelope mirrors the gateway's wsfeed frame.
type envelope struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func main() {
	flags := parseCommandLineFlags()

	if flags.showVersion {
		fmt.Printf("meshtail version %s\n", version)
		return
	}

	if err := run(flags); err != nil {
		fmt.Fprintln(os.Stderr, "meshtail:", err)
		os.Exit(1)
	}
}

func parseCommandLineFlags() *cliFlags {
	flags := &cliFlags{}

	flag.StringVar(&flags.url, "url", "ws://localhost:8090/ws",
		"Gateway websocket feed endpoint")
	flag.StringVar(&flags.types, "types", "",
		"Comma-separated event types to show (message,node,channels,adapter); empty shows all")
	flag.BoolVar(&flags.raw, "raw", false, "Print raw JSON frames")
	flag.BoolVar(&flags.showVersion, "version", false, "Show version information")

	if envURL := os.Getenv("MESHBRIDGE_WS_URL"); envURL != "" {
		flags.url = envURL
	}

	flag.Parse()
	return flags
}

func run(flags *cliFlags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wanted []string
	if flags.types != "" {
		for _, t := range strings.Split(flags.types, ",") {
			wanted = append(wanted, strings.TrimSpace(t))
		}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, flags.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", flags.url, err)
	}
	defer func() { _ = conn.Close() }()

	fmt.Fprintf(os.Stderr, "connected to %s\n", flags.url)

	// Unblock the read loop when a signal arrives.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if flags.raw {
			fmt.Println(string(frame))
			continue
		}

		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			fmt.Fprintf(os.Stderr, "unparseable frame: %v\n", err)
			continue
		}
		if len(wanted) > 0 && !slices.Contains(wanted, env.Type) {
			continue
		}
		printEvent(env)
	}
}

func printEvent(env envelope) {
	ts := time.UnixMilli(env.Timestamp).Format("15:04:05.000")

	var payload map[string]any
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		fmt.Printf("%s  %-8s %s\n", ts, env.Type, string(env.Payload))
		return
	}

	switch env.Type {
	case "message":
		msg, _ := payload["message"].(map[string]any)
		fmt.Printf("%s  %-8s [%v] ch=%v %v: %v\n", ts, env.Type,
			payload["adapterId"], field(msg, "channel"), field(msg, "sender"), field(msg, "text"))
	case "adapter":
		fmt.Printf("%s  %-8s %v (%v) -> %v\n", ts, env.Type,
			payload["adapterId"], payload["protocol"], payload["state"])
	case "node":
		node, _ := payload["node"].(map[string]any)
		fmt.Printf("%s  %-8s [%v] %v %v\n", ts, env.Type,
			payload["adapterId"], field(node, "id"), field(node, "long_name"))
	default:
		compact, _ := json.Marshal(payload)
		fmt.Printf("%s  %-8s %s\n", ts, env.Type, compact)
	}
}

func field(m map[string]any, key string) any {
	if m == nil {
		return ""
	}
	return m[key]
}
