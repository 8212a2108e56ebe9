package main

import (
	"context"
	"fmt"
	"io"

	"roomchat/internal/client"
)

// runPlain relays stdin to the server and server lines to stdout until the
// server hangs up.  Prompts are answered from hs when it already holds the
// value; otherwise the next typed line answers them.  End of input sends
// /quit.
func runPlain(ctx context.Context, in io.Reader, out io.Writer, hs *client.Handshake, outbound chan<- string, inbound <-chan string) error {
	input := make(chan string)
	go client.ReadLines(ctx, in, input)

	send := func(lines ...string) bool {
		for _, l := range lines {
			select {
			case outbound <- l:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-inbound:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, line)
			if hs.Done() {
				continue
			}
			reply, _, err := hs.Feed(line)
			if err != nil {
				// The offending value is cleared, so the re-prompt waits for
				// typed input.
				continue
			}
			if !send(reply...) {
				return nil
			}

		case text, ok := <-input:
			if !ok {
				input = nil
				if !send("/quit") {
					return nil
				}
				continue
			}
			if !hs.Done() {
				if reply, ok := hs.Answer(text); ok {
					text = reply[0]
				}
			}
			if !send(text) {
				return nil
			}
		}
	}
}
