package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"roomchat/internal/client"
	"roomchat/internal/protocol"
)

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	green  = lipgloss.Color("82")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(gray).
			Width(10)

	focusedLabelStyle = lipgloss.NewStyle().
				Foreground(cyan).
				Width(10)

	hintStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	sysStyle     = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	tsStyle      = lipgloss.NewStyle().Foreground(gray)
	myNameStyle  = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle    = lipgloss.NewStyle().Bold(true).Foreground(blue)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverLineMsg string     // a line arrived from the server
type disconnectedMsg struct{} // server closed the connection

// ---------------------------------------------------------------------------
// Application state
// ---------------------------------------------------------------------------

type appState int

const (
	stateLogin appState = iota
	stateChat
)

const (
	fieldName = iota
	fieldRoom
)

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type model struct {
	hs       *client.Handshake
	outbound chan<- string
	inbound  <-chan string

	state appState
	me    string // acknowledged username
	room  string // current room

	// Login
	loginFocus  int
	loginFields [2]textinput.Model // [0]=username  [1]=room
	statusMsg   string
	joining     bool

	// Chat
	ready     bool
	viewport  viewport.Model
	chatInput textinput.Model
	chatLines []string // rendered lines shown in the viewport

	width, height int
	now           func() time.Time
}

func newModel(hs *client.Handshake, outbound chan<- string, inbound <-chan string) model {
	uf := textinput.New()
	uf.Placeholder = "username"
	uf.SetValue(hs.Name)
	uf.Focus()
	uf.CharLimit = protocol.MaxNameLen
	uf.Width = 32

	rf := textinput.New()
	rf.Placeholder = "room"
	rf.SetValue(hs.Room)
	rf.CharLimit = protocol.MaxRoomLen
	rf.Width = 32

	ci := textinput.New()
	ci.Placeholder = "Type a message or /help…"
	ci.CharLimit = 500

	return model{
		hs:          hs,
		outbound:    outbound,
		inbound:     inbound,
		state:       stateLogin,
		loginFields: [2]textinput.Model{uf, rf},
		chatInput:   ci,
		now:         time.Now,
	}
}

// ---------------------------------------------------------------------------
// Tea interface – Init
// ---------------------------------------------------------------------------

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForLine(m.inbound))
}

// ---------------------------------------------------------------------------
// Tea interface – Update
// ---------------------------------------------------------------------------

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case serverLineMsg:
		m = m.handleServerLine(string(msg))
		return m, waitForLine(m.inbound)

	case disconnectedMsg:
		m.statusMsg = "disconnected from server"
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.state {
		case stateLogin:
			return m.handleLoginKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		}
	}
	return m, nil
}

// vpHeight returns the number of lines available for the chat viewport.
func (m model) vpHeight() int {
	// header (1) + footer border (1) + footer input (1) = 3 lines reserved
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

// ---------------------------------------------------------------------------
// Key handlers
// ---------------------------------------------------------------------------

func (m model) handleLoginKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyTab, tea.KeyShiftTab:
		m.loginFocus = (m.loginFocus + 1) % 2 // only 2 fields, same either way
		m.focusLogin()
		return m, textinput.Blink

	case tea.KeyEnter:
		name := strings.TrimSpace(m.loginFields[fieldName].Value())
		room := strings.TrimSpace(m.loginFields[fieldRoom].Value())
		if name == "" || room == "" {
			m.statusMsg = "username and room are required"
			return m, nil
		}
		if err := protocol.ValidateName(name); err != nil {
			m.statusMsg = err.Error()
			return m, nil
		}
		if err := protocol.ValidateRoom(room); err != nil {
			m.statusMsg = err.Error()
			return m, nil
		}
		m.send(m.hs.Submit(name, room)...)
		m.joining = true
		m.statusMsg = "Joining…"
		return m, nil
	}

	// Forward keystroke to the focused login field.
	var cmd tea.Cmd
	m.loginFields[m.loginFocus], cmd = m.loginFields[m.loginFocus].Update(msg)
	return m, cmd
}

func (m *model) focusLogin() {
	for i := range m.loginFields {
		if i == m.loginFocus {
			m.loginFields[i].Focus()
		} else {
			m.loginFields[i].Blur()
		}
	}
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		m.send("/quit")
		return m, tea.Quit

	case tea.KeyEnter:
		text := m.chatInput.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.chatInput.Reset()
		m.send(text)
		// The server does not echo chat back to its sender.
		if cmd, err := protocol.ParseCommand(text); err == nil && cmd.Type == protocol.TypeChat {
			m.appendChat(m.renderChat(m.me, cmd.Arg))
		}
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

// ---------------------------------------------------------------------------
// Server line handler
// ---------------------------------------------------------------------------

func (m model) handleServerLine(line string) model {
	if m.state == stateLogin {
		return m.handleHandshakeLine(line)
	}

	sl := protocol.ParseServerLine(line)
	switch sl.Kind {
	case protocol.KindChat:
		m.appendChat(m.renderChat(sl.From, sl.Text))

	case protocol.KindOK:
		if room, _, ok := protocol.ParseWelcome(sl.Text); ok {
			m.room = room
		}
		m.appendChat(successStyle.Render("✔ " + sl.Text))

	case protocol.KindError:
		m.appendChat(errorStyle.Render("⚠ " + sl.Text))

	default:
		m.appendChat(sysStyle.Render("⚡ " + sl.Text))
	}
	return m
}

func (m model) handleHandshakeLine(line string) model {
	reply, done, err := m.hs.Feed(line)
	m.send(reply...)

	switch {
	case done:
		m.me = m.hs.Name
		m.room = m.hs.Room
		m.state = stateChat
		m.joining = false
		m.statusMsg = ""
		m.chatInput.Focus()
		m.appendChat(successStyle.Render("✔ " + protocol.ParseServerLine(line).Text))

	case errors.Is(err, client.ErrNameTaken):
		m.statusMsg = err.Error()
		m.loginFocus = fieldName
		m.loginFields[fieldName].SetValue("")
		m.focusLogin()

	case err != nil:
		m.statusMsg = err.Error()
		if m.hs.Name == "" {
			m.loginFocus = fieldName
		} else {
			m.loginFocus = fieldRoom
		}
		m.focusLogin()
	}
	return m
}

// send queues lines for the server.  A full queue is reported in the chat
// rather than blocking the event loop.
func (m *model) send(lines ...string) {
	for _, l := range lines {
		select {
		case m.outbound <- l:
		default:
			m.appendChat(errorStyle.Render("⚠ send queue full, line dropped"))
		}
	}
}

func (m model) renderChat(from, text string) string {
	ts := tsStyle.Render("[" + m.now().Format("15:04:05") + "]")
	var name string
	if from == m.me {
		name = myNameStyle.Render(from)
	} else {
		name = peerStyle.Render(from)
	}
	return ts + " " + name + ": " + text
}

// appendChat adds a rendered line and scrolls the viewport to the bottom.
func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	if m.ready {
		m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
		m.viewport.GotoBottom()
	}
}

// ---------------------------------------------------------------------------
// Tea interface – View
// ---------------------------------------------------------------------------

func (m model) View() string {
	switch m.state {
	case stateLogin:
		return m.viewLogin()
	case stateChat:
		return m.viewChat()
	}
	return ""
}

func (m model) viewLogin() string {
	if m.width == 0 {
		return "\n  Connecting to server…"
	}

	title := titleStyle.Render("  roomchat  ")

	renderField := func(label string, f textinput.Model, focused bool) string {
		var lbl string
		if focused {
			lbl = focusedLabelStyle.Render(label)
		} else {
			lbl = labelStyle.Render(label)
		}
		return lbl + "  " + f.View()
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		renderField("Username", m.loginFields[fieldName], m.loginFocus == fieldName),
		renderField("Room", m.loginFields[fieldRoom], m.loginFocus == fieldRoom),
		"",
		hintStyle.Render("Tab: switch field   Enter: join   Ctrl+C: quit"),
		"",
		m.renderStatus(),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}

	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" roomchat  ·  %s in #%s  ·  PgUp/Dn: Scroll  Ctrl+C: Quit", m.me, m.room))

	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(m.chatInput.View())

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

// renderStatus renders the login status line with appropriate colour.
func (m model) renderStatus() string {
	if m.statusMsg == "" {
		return ""
	}
	if m.joining && m.statusMsg == "Joining…" {
		return hintStyle.Render(m.statusMsg)
	}
	return errorStyle.Render(m.statusMsg)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// waitForLine returns a tea.Cmd that blocks until the next line arrives on ch.
// When ch is closed (server disconnected), it returns disconnectedMsg.
func waitForLine(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverLineMsg(line)
	}
}
