// roomchat client.
//
// Modes
// -----
//   default – Bubbletea TUI: a login form (username + room), then a
//             full-screen chat with a scrollable message viewport
//   -plain  – line mode: stdin is sent to the server, server lines are
//             printed to stdout
//
// Concurrency
// -----------
//   A client.Strategy owns the TCP connection and bridges it to two channels:
//   outbound (UI → server) and inbound (server → UI).  -poll swaps the
//   default reader/writer goroutine pair for a single polling loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"roomchat/internal/client"
)

const (
	dialTimeout  = 5 * time.Second
	drainTimeout = 2 * time.Second
)

func main() {
	addr  := flag.String("addr", "localhost:8080", "server address")
	name  := flag.String("name", "", "username to join with")
	room  := flag.String("room", "", "room to join")
	plain := flag.Bool("plain", false, "line mode instead of the TUI")
	poll  := flag.Bool("poll", false, "use the single-loop polling strategy")
	flag.Parse()

	conn, err := client.Dial(*addr, dialTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	var strat client.Strategy = client.Concurrent{}
	if *poll {
		strat = client.Polling{Interval: client.DefaultPollInterval}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// outbound / inbound bridge the strategy and the UI.
	outbound := make(chan string, 64)
	inbound := make(chan string, 64)
	runErr := make(chan error, 1)
	go func() { runErr <- strat.Run(ctx, conn, outbound, inbound) }()

	hs := &client.Handshake{Name: *name, Room: *room}

	var uiErr error
	if *plain {
		uiErr = runPlain(ctx, os.Stdin, os.Stdout, hs, outbound, inbound)
	} else {
		p := tea.NewProgram(
			newModel(hs, outbound, inbound),
			tea.WithAltScreen(),
			tea.WithMouseCellMotion(),
		)
		_, uiErr = p.Run()
	}

	// Let queued lines (a final /quit) reach the server before hanging up.
	close(outbound)
	select {
	case err = <-runErr:
	case <-time.After(drainTimeout):
		cancel()
		err = <-runErr
	}
	conn.Close()

	if uiErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", uiErr)
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(os.Stderr, "connection: %v\n", err)
		os.Exit(1)
	}
}
