package ui

import (
	"fmt"
	"strings"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/service"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func stateStyle(s domain.SessionState) lipgloss.Style {
	switch s {
	case domain.StateConnected:
		return SuccessStyle
	case domain.StateDisconnected, domain.StateClosed:
		return ErrorStyle
	default:
		return WarningStyle
	}
}

// RoomBanner is printed once signaling has started.
func RoomBanner(room domain.RoomID, self domain.ParticipantID, relay string, tracks int) string {
	content := fmt.Sprintf("%s Room:   %s\n%s You:    %s\n%s Relay:  %s\n%s Tracks: %d",
		IconRoom, BoldStyle.Foreground(Primary).Render(room.String()),
		IconPeer, BoldStyle.Render(self.String()),
		IconConnect, MutedStyle.Render(relay),
		IconMedia, tracks,
	)
	return BoxStyle.Render(content)
}

// EventLine renders one peer event as a single terminal line.
func EventLine(ev domain.PeerEvent) string {
	peer := BoldStyle.Render(ev.PeerID.String())
	switch ev.Type {
	case domain.PeerConnected:
		if ev.Stream == nil {
			return fmt.Sprintf("%s %s is sending media", IconMedia, peer)
		}
		return fmt.Sprintf("%s %s is sending %s (%s)", IconMedia, peer,
			MutedStyle.Render(ev.Stream.ID), describeTracks(ev.Stream.Tracks))
	case domain.PeerDisconnected:
		return fmt.Sprintf("%s %s %s", IconLeave, peer, MutedStyle.Render("left"))
	default:
		return fmt.Sprintf("%s %s %s", IconConnect, peer, stateStyle(ev.State).Render(ev.State.String()))
	}
}

func describeTracks(tracks []domain.RemoteTrack) string {
	if len(tracks) == 0 {
		return "no tracks"
	}
	kinds := make([]string, 0, len(tracks))
	for _, t := range tracks {
		kinds = append(kinds, string(t.Kind))
	}
	return strings.Join(kinds, "+")
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

// MeshTableView lists the sessions self holds toward the rest of the room.
func MeshTableView(self domain.ParticipantID, sessions []service.SessionInfo) string {
	title := TitleStyle.Render(fmt.Sprintf("Mesh of %s", self))
	if len(sessions) == 0 {
		return title + "\n" + MutedStyle.Render("No peers")
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		media := "-"
		if s.RemoteStream != nil {
			media = describeTracks(s.RemoteStream.Tracks)
		}
		rows = append(rows, []string{
			s.RemoteID.String(),
			s.Role.String(),
			s.State.String(),
			media,
			fmt.Sprintf("%d", s.PendingCandidates),
		})
	}
	return title + "\n" + renderTable([]string{"Peer", "Role", "State", "Receiving", "Pending"}, rows)
}

// StatsView lists the non-zero drop counters.
func StatsView(st service.Stats) string {
	counters := []struct {
		name string
		n    int64
	}{
		{"self echo", st.SelfEcho},
		{"not addressed", st.NotAddressed},
		{"malformed", st.Malformed},
		{"duplicate join", st.DuplicateJoin},
		{"unknown session", st.UnknownSession},
		{"unexpected answer", st.UnexpectedReply},
		{"glare", st.Glare},
		{"departed peer", st.DepartedPeer},
		{"peer limit", st.PeerLimit},
		{"transport errors", st.TransportErrors},
		{"events dropped", st.EventsDropped},
	}

	var rows [][]string
	for _, c := range counters {
		if c.n != 0 {
			rows = append(rows, []string{c.name, fmt.Sprintf("%d", c.n)})
		}
	}
	if len(rows) == 0 {
		return MutedStyle.Render("No dropped signals")
	}
	return renderTable([]string{"Dropped", "Count"}, rows)
}
