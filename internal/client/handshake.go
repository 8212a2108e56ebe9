package client

import (
	"errors"
	"fmt"
	"strings"

	"roomchat/internal/protocol"
)

var (
	ErrNameTaken = errors.New("name taken")
	ErrRejected  = errors.New("server rejected handshake input")
)

// Handshake answers the server's username and room prompts.
//
// Each value is sent only in reply to its own prompt.  A prompt that arrives
// before the matching value is known is remembered and answered by the next
// Submit.
type Handshake struct {
	Name string
	Room string

	prompt string // last unanswered prompt
	done   bool
}

// Feed processes one server line.  It returns the lines to send in reply and
// whether the handshake has completed.  A rejected name or room is reported
// as ErrNameTaken or ErrRejected and the offending value is cleared; the
// server re-prompts, and the caller supplies a new value with Submit.
func (h *Handshake) Feed(line string) ([]string, bool, error) {
	if h.done {
		return nil, true, nil
	}

	sl := protocol.ParseServerLine(line)
	switch sl.Kind {
	case protocol.KindPrompt:
		h.prompt = sl.Text
		return h.answer(), false, nil

	case protocol.KindOK:
		if room, name, ok := protocol.ParseWelcome(sl.Text); ok {
			h.Room, h.Name = room, name
		}
		h.done = true
		return nil, true, nil

	case protocol.KindError:
		if protocol.IsNameTaken(sl.Text) {
			h.Name = ""
			return nil, false, fmt.Errorf("%w: %s", ErrNameTaken, strings.TrimPrefix(sl.Text, "name taken: "))
		}
		if strings.Contains(sl.Text, "username") {
			h.Name = ""
		} else if strings.Contains(sl.Text, "room") {
			h.Room = ""
		}
		return nil, false, fmt.Errorf("%w: %s", ErrRejected, sl.Text)
	}
	return nil, false, nil
}

// Submit sets the name and room (empty values keep the current ones) and
// returns the reply to any prompt still waiting for them.
func (h *Handshake) Submit(name, room string) []string {
	if name != "" {
		h.Name = name
	}
	if room != "" {
		h.Room = room
	}
	return h.answer()
}

// Answer uses v as the value for whichever prompt is pending.  It reports
// false, leaving the handshake untouched, when no prompt is waiting.
func (h *Handshake) Answer(v string) ([]string, bool) {
	switch h.prompt {
	case protocol.PromptUsername:
		h.Name = v
	case protocol.PromptRoom:
		h.Room = v
	default:
		return nil, false
	}
	h.prompt = ""
	return []string{v}, true
}

// Done reports whether the server has acknowledged the join.
func (h *Handshake) Done() bool { return h.done }

func (h *Handshake) answer() []string {
	var v string
	switch h.prompt {
	case protocol.PromptUsername:
		v = h.Name
	case protocol.PromptRoom:
		v = h.Room
	}
	if v == "" {
		return nil
	}
	h.prompt = ""
	return []string{v}
}
