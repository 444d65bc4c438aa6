// Package ui renders the terminal room view: roster with media-state
// glyphs, chat transcript, and keybindings for the local controls. It
// is a thin observer of the session layer.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sFinOe/Video-Conference-App/internal/session"
)

// refreshMsg is sent whenever the session layer reports a change.
type refreshMsg struct{}

// RoomModel is the bubbletea model for one joined room.
type RoomModel struct {
	roomID string
	name   string
	ctrl   *session.Controller

	updates chan struct{}

	chatView  viewport.Model
	chatInput textinput.Model
	width     int
	height    int
	errLine   string
}

// NewRoomModel builds the room view around a joined controller.
func NewRoomModel(roomID, name string, ctrl *session.Controller) *RoomModel {
	input := textinput.New()
	input.Placeholder = "Type a message and press enter"
	input.CharLimit = 500
	input.Focus()

	m := &RoomModel{
		roomID:    roomID,
		name:      name,
		ctrl:      ctrl,
		updates:   make(chan struct{}, 1),
		chatView:  viewport.New(60, 12),
		chatInput: input,
	}

	notify := func() {
		select {
		case m.updates <- struct{}{}:
		default:
		}
	}
	ctrl.OnChange(notify)
	ctrl.Chat().OnUpdate(notify)
	return m
}

func (m *RoomModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		<-m.updates
		return refreshMsg{}
	}
}

// Init implements tea.Model.
func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForUpdate())
}

// Update implements tea.Model.
func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		m.chatView.SetContent(m.renderChat())
		m.chatView.GotoBottom()
		return m, m.waitForUpdate()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatView.Width = max(40, msg.Width-4)
		m.chatView.Height = max(6, msg.Height-14)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.ctrl.Leave()
			return m, tea.Quit

		case tea.KeyEnter:
			content := strings.TrimSpace(m.chatInput.Value())
			m.chatInput.Reset()
			if content == "" {
				return m, nil
			}
			if err := m.ctrl.SendChat(content); err != nil {
				m.errLine = err.Error()
			}
			m.chatView.SetContent(m.renderChat())
			m.chatView.GotoBottom()
			return m, nil

		case tea.KeyCtrlA:
			if _, err := m.ctrl.ToggleAudio(); err != nil {
				m.errLine = err.Error()
			}
			return m, nil

		case tea.KeyCtrlV:
			if _, err := m.ctrl.ToggleVideo(); err != nil {
				m.errLine = err.Error()
			}
			return m, nil

		case tea.KeyCtrlS:
			_, _, sharing := m.ctrl.Tracker().Snapshot()
			var err error
			if sharing {
				err = m.ctrl.StopScreenShare()
			} else {
				err = m.ctrl.StartScreenShare(context.Background())
			}
			if err != nil {
				m.errLine = err.Error()
			}
			return m, nil
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	cmds = append(cmds, cmd)
	m.chatView, cmd = m.chatView.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m *RoomModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(fmt.Sprintf("Room %s", m.roomID)))
	b.WriteString(MutedStyle.Render(fmt.Sprintf("  %d connection(s), state %s", m.ctrl.ConnectionCount(), m.ctrl.State())))
	b.WriteString("\n\n")

	b.WriteString(RosterBoxStyle.Render(m.renderRoster()))
	b.WriteString("\n")
	b.WriteString(ChatBoxStyle.Render(m.chatView.View()))
	b.WriteString("\n")
	b.WriteString(m.chatInput.View())
	b.WriteString("\n")

	if m.errLine != "" {
		b.WriteString(ErrorStyle.Render(m.errLine))
		b.WriteString("\n")
	}
	b.WriteString(HelpStyle.Render("ctrl+a mute - ctrl+v camera - ctrl+s share screen - esc leave"))
	return b.String()
}

func (m *RoomModel) renderRoster() string {
	video, audio, sharing := m.ctrl.Tracker().Snapshot()
	lines := []string{
		SelfStyle.Render(m.name+" (you) ") + mediaGlyphs(video, audio, sharing),
	}
	for _, p := range m.ctrl.Roster() {
		lines = append(lines, PeerStyle.Render(p.Name+" ")+mediaGlyphs(p.VideoEnabled, p.AudioEnabled, p.IsScreenSharing))
	}
	return strings.Join(lines, "\n")
}

func mediaGlyphs(video, audio, sharing bool) string {
	var parts []string
	if audio {
		parts = append(parts, GlyphMicOn)
	} else {
		parts = append(parts, GlyphMicOff)
	}
	if video {
		parts = append(parts, GlyphCamOn)
	} else {
		parts = append(parts, GlyphCamOff)
	}
	if sharing {
		parts = append(parts, SharingStyle.Render(GlyphSharing))
	}
	return MutedStyle.Render(strings.Join(parts, " "))
}

func (m *RoomModel) renderChat() string {
	var lines []string
	for _, e := range m.ctrl.Chat().Entries() {
		ts := e.At.Format("15:04")
		if e.System {
			lines = append(lines, SystemStyle.Render(fmt.Sprintf("%s -- %s", ts, e.Content)))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", MutedStyle.Render(ts), SelfStyle.Render(e.SenderName), e.Content))
	}
	if len(lines) == 0 {
		return MutedStyle.Render("No messages yet.")
	}
	return strings.Join(lines, "\n")
}
