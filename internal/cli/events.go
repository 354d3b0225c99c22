package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var lobby, me bool

	cmd := &cobra.Command{
		Use:   "events [room]",
		Short: "Stream real-time events",
		Long: `Connect to an SSE endpoint and stream events in real-time.

With a room argument the room's events are streamed. Use --lobby for room
directory changes or --me for your own notifications.

Events include:
  - new_message: A message was posted
  - user_update: Room membership or presence changed
  - room_update: Room settings changed or the room closed
  - notifications_update: A mention or event was addressed to you
  - heartbeat: Keep-alive
  - reconnect: The server asked the client to reconnect

Press Ctrl+C to disconnect.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := eventsPath(args, lobby, me)
			if err != nil {
				return err
			}
			return streamEvents(path, cfg.Output == "json")
		},
	}

	cmd.Flags().BoolVar(&lobby, "lobby", false, "Stream room directory events")
	cmd.Flags().BoolVar(&me, "me", false, "Stream notifications for the current identity")

	return cmd
}

func eventsPath(args []string, lobby, me bool) (string, error) {
	switch {
	case len(args) == 1 && !lobby && !me:
		return roomPath(args[0], "events"), nil
	case len(args) == 0 && lobby && !me:
		return "/api/v1/lobby/events", nil
	case len(args) == 0 && me && !lobby:
		return "/api/v1/identity/me/events", nil
	default:
		return "", fmt.Errorf("specify exactly one of a room, --lobby or --me")
	}
}

// StreamEvent is an event as printed by the events command
type StreamEvent struct {
	Time time.Time       `json:"time"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func streamEvents(path string, jsonOutput bool) error {
	url := strings.TrimSuffix(cfg.ServerURL, "/") + path

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	req = req.WithContext(ctx)

	httpClient := &http.Client{
		Timeout: 0, // No timeout for SSE
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if !jsonOutput {
		fmt.Printf("Connected to %s\n", path)
	}

	err = readEvents(resp.Body, func(ev StreamEvent) {
		printEvent(os.Stdout, ev, jsonOutput)
	})
	if err != nil {
		// Context cancellation is expected
		if ctx.Err() != nil {
			if !jsonOutput {
				fmt.Println("\nDisconnected")
			}
			return nil
		}
		return fmt.Errorf("stream error: %w", err)
	}

	if !jsonOutput {
		fmt.Println("Disconnected")
	}
	return nil
}

// readEvents parses an SSE stream whose data lines carry JSON events with a
// "type" field, calling fn once per event
func readEvents(r io.Reader, fn func(StreamEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var dataLines []string

	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			envelope.Type = "unknown"
		}
		fn(StreamEvent{Time: time.Now(), Type: envelope.Type, Data: json.RawMessage(data)})
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			flush()
		}
	}
	flush()
	return scanner.Err()
}

func printEvent(w io.Writer, ev StreamEvent, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.Marshal(ev)
		fmt.Fprintln(w, string(data))
		return
	}

	timestamp := ev.Time.Format("2006-01-02 15:04:05")
	display := string(ev.Data)
	if len(display) > 100 {
		display = display[:100] + "..."
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, ev.Type, display)
}
