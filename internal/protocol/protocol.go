// Package protocol defines the wire format for all client-server communication.
// Every message is a single UTF-8 text line terminated by a newline (\n).
//
// Handshake
// ---------
//
//	S: enter username
//	C: alice
//	S: enter room            (or "ERR name taken: alice" followed by a new prompt)
//	C: lobby
//	S: OK joined lobby as alice
//	S: * you are alone in lobby
//
// Steady state
// ------------
//
// Client lines are either chat text or one of the slash commands below.  Server
// lines are chat ("bob: hi"), notices ("* bob joined"), errors ("ERR ...") or
// acknowledgements ("OK ...").
package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	PromptUsername = "enter username"
	PromptRoom     = "enter room"

	PrefixOK     = "OK "
	PrefixError  = "ERR "
	PrefixNotice = "* "

	// MaxNameLen and MaxRoomLen are measured in runes.
	MaxNameLen = 32
	MaxRoomLen = 32

	nameTakenText = "name taken"
)

// CommandType identifies what kind of line a client sent.
type CommandType string

const (
	TypeChat  CommandType = "chat"
	TypeQuit  CommandType = "quit"
	TypeRoom  CommandType = "room"
	TypeWho   CommandType = "who"
	TypeRooms CommandType = "rooms"
	TypeHelp  CommandType = "help"
)

// Command is one parsed client line.  For TypeChat, Arg is the message text;
// for TypeRoom it is the target room.
type Command struct {
	Type CommandType
	Arg  string
}

var (
	ErrEmptyLine       = errors.New("empty line")
	ErrMalformedLine   = errors.New("malformed line")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing argument")
	ErrInvalidName     = errors.New("invalid username")
	ErrInvalidRoom     = errors.New("invalid room name")
)

// ParseCommand interprets one client line received after the handshake.
//
// A leading "//" escapes a literal slash, so "//shrug" is sent as the chat text
// "/shrug".  Blank lines return ErrEmptyLine and should be ignored by callers.
func ParseCommand(line string) (Command, error) {
	if !utf8.ValidString(line) {
		return Command{}, ErrMalformedLine
	}
	if strings.TrimSpace(line) == "" {
		return Command{}, ErrEmptyLine
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Type: TypeChat, Arg: line}, nil
	}
	if strings.HasPrefix(line, "//") {
		return Command{Type: TypeChat, Arg: line[1:]}, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch t := CommandType(strings.ToLower(name)); t {
	case TypeQuit, TypeWho, TypeRooms, TypeHelp:
		return Command{Type: t}, nil
	case TypeRoom:
		if arg == "" {
			return Command{}, fmt.Errorf("/room: %w", ErrMissingArgument)
		}
		return Command{Type: TypeRoom, Arg: arg}, nil
	}
	return Command{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
}

// ValidateName reports whether s may be used as a display name.  Names are
// case-sensitive; they may not contain whitespace or ':' and may not start
// with a character the protocol reserves for commands or notices.
func ValidateName(s string) error {
	if err := validateIdent(s, MaxNameLen); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if strings.ContainsRune(s, ':') {
		return fmt.Errorf("%w: must not contain ':'", ErrInvalidName)
	}
	return nil
}

// ValidateRoom reports whether s may be used as a room name.
func ValidateRoom(s string) error {
	if err := validateIdent(s, MaxRoomLen); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoom, err)
	}
	return nil
}

func validateIdent(s string, max int) error {
	if s == "" {
		return errors.New("must not be empty")
	}
	if !utf8.ValidString(s) {
		return errors.New("must be valid UTF-8")
	}
	if utf8.RuneCountInString(s) > max {
		return fmt.Errorf("must be at most %d characters", max)
	}
	if strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return errors.New("must not contain whitespace")
	}
	if s[0] == '/' || s[0] == '*' {
		return fmt.Errorf("must not start with %q", s[0])
	}
	return nil
}

// ---------------------------------------------------------------------------
// Server → Client lines
// ---------------------------------------------------------------------------

// Chat formats a broadcast line as seen by the recipients.
func Chat(from, text string) string { return from + ": " + text }

func Joined(name string) string { return PrefixNotice + name + " joined" }

func Left(name string) string { return PrefixNotice + name + " left" }

func Bye() string { return PrefixNotice + "bye" }

// Welcome acknowledges a successful handshake or room switch.
func Welcome(room, name string) string {
	return fmt.Sprintf("%sjoined %s as %s", PrefixOK, room, name)
}

// Roster lists the other occupants of room.
func Roster(room string, names []string) string {
	if len(names) == 0 {
		return PrefixNotice + "you are alone in " + room
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return PrefixNotice + "in " + room + ": " + strings.Join(sorted, ", ")
}

// RoomInfo describes one live room for /rooms.
type RoomInfo struct {
	Name    string
	Members int
}

func RoomList(rooms []RoomInfo) string {
	if len(rooms) == 0 {
		return PrefixNotice + "no rooms"
	}
	parts := make([]string, len(rooms))
	for i, r := range rooms {
		parts[i] = fmt.Sprintf("%s (%d)", r.Name, r.Members)
	}
	return PrefixNotice + "rooms: " + strings.Join(parts, ", ")
}

func Help() string {
	return PrefixNotice + "commands: /room <name>, /who, /rooms, /quit; start a message with // to send a leading /"
}

// Error formats an error line.
func Error(msg string) string { return PrefixError + msg }

func Errorf(format string, args ...any) string { return Error(fmt.Sprintf(format, args...)) }

func NameTaken(name string) string { return Error(nameTakenText + ": " + name) }

// ---------------------------------------------------------------------------
// Client-side parsing of server lines
// ---------------------------------------------------------------------------

// LineKind classifies a line received from the server.
type LineKind int

const (
	KindChat LineKind = iota
	KindNotice
	KindError
	KindOK
	KindPrompt
)

func (k LineKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindNotice:
		return "notice"
	case KindError:
		return "error"
	case KindOK:
		return "ok"
	case KindPrompt:
		return "prompt"
	}
	return fmt.Sprintf("LineKind(%d)", int(k))
}

// ServerLine is a parsed server line.  From is only set for KindChat.
type ServerLine struct {
	Kind LineKind
	From string
	Text string
}

// ParseServerLine classifies a server line.  Lines that fit no other shape are
// reported as notices so clients can still display them.
func ParseServerLine(line string) ServerLine {
	switch {
	case line == PromptUsername || line == PromptRoom:
		return ServerLine{Kind: KindPrompt, Text: line}
	case strings.HasPrefix(line, PrefixOK):
		return ServerLine{Kind: KindOK, Text: strings.TrimPrefix(line, PrefixOK)}
	case strings.HasPrefix(line, PrefixError):
		return ServerLine{Kind: KindError, Text: strings.TrimPrefix(line, PrefixError)}
	case strings.HasPrefix(line, PrefixNotice):
		return ServerLine{Kind: KindNotice, Text: strings.TrimPrefix(line, PrefixNotice)}
	}
	if from, text, ok := strings.Cut(line, ": "); ok && ValidateName(from) == nil {
		return ServerLine{Kind: KindChat, From: from, Text: text}
	}
	return ServerLine{Kind: KindNotice, Text: line}
}

// IsNameTaken reports whether an error line text rejects a username.
func IsNameTaken(errText string) bool {
	return strings.HasPrefix(errText, nameTakenText)
}

// ParseWelcome extracts the room and name from a Welcome line's text
// (without the "OK " prefix).
func ParseWelcome(text string) (room, name string, ok bool) {
	rest, found := strings.CutPrefix(text, "joined ")
	if !found {
		return "", "", false
	}
	room, name, ok = strings.Cut(rest, " as ")
	return room, name, ok
}
