package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/example/rider-client/internal/coordinator"
	"github.com/example/rider-client/internal/geo"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/panel"
)

const barWidth = 30

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	labelStyle    = lipgloss.NewStyle().Width(13).Foreground(lipgloss.Color("245"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	barFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	b.WriteString(m.locations())
	b.WriteString("\n")
	b.WriteString(m.positionLine())
	if line := m.routeLine(); line != "" {
		b.WriteString("\n" + line)
	}
	if body := m.panelBody(); body != "" {
		b.WriteString("\n\n")
		b.WriteString(panelStyle.Render(body))
	}
	if m.snap.Notice != "" {
		b.WriteString("\n\n" + noticeStyle.Render(m.snap.Notice))
	}
	if m.snap.InputError != "" {
		b.WriteString("\n\n" + warnStyle.Render(m.snap.InputError))
	}
	b.WriteString("\n\n" + dimStyle.Render(m.helpLine()) + "\n")
	return b.String()
}

func (m Model) header() string {
	conn := dimStyle.Render("○ offline")
	if m.snap.Connected {
		conn = okStyle.Render("● connected")
	}
	return titleStyle.Render("Rider") + "  " + conn + "  " + dimStyle.Render(m.snap.Phase.String())
}

func (m Model) locations() string {
	row := func(label string, f coordinator.Field, text string) string {
		marker := "  "
		if m.field == f && !m.snap.Panels.Confirmed {
			marker = activeStyle.Render("› ")
			text += "▏"
		}
		return marker + labelStyle.Render(label) + text
	}
	return row("Pickup", coordinator.FieldPickup, m.pickup.String()) + "\n" +
		row("Destination", coordinator.FieldDestination, m.destination.String())
}

func (m Model) positionLine() string {
	switch m.position.State {
	case geo.StateAvailable:
		l := m.position.Fix.Location
		return dimStyle.Render(fmt.Sprintf("  You are at %.5f, %.5f", l.Lat, l.Lng))
	case geo.StateFailed:
		return warnStyle.Render("  Location unavailable: " + errText(m.position.Err))
	default:
		return dimStyle.Render("  Locating…")
	}
}

func (m Model) routeLine() string {
	if !m.snap.ShowRoute {
		return ""
	}
	if m.route.Err != nil {
		return warnStyle.Render("  Route unavailable: " + m.route.Err.Error())
	}
	if m.route.Empty() {
		return dimStyle.Render("  Fetching route…")
	}
	return dimStyle.Render(fmt.Sprintf("  Route %.1f km · about %s · %d points",
		m.route.Meters/1000, m.route.ETA.Round(time.Minute), len(m.route.Waypoints)))
}

func (m Model) panelBody() string {
	if m.snap.Panels.Confirmed {
		return m.confirmedBody()
	}
	active, _ := panel.Parse(m.snap.ActivePanel)
	switch active {
	case panel.Search:
		return m.searchBody()
	case panel.VehicleChoice:
		return m.vehicleBody()
	case panel.Confirm:
		return m.confirmBody()
	case panel.PooledMatching:
		return m.matchingBody()
	case panel.SearchingDriver:
		return "Looking for a driver…\n" + dimStyle.Render("We are calling drivers near your pickup.")
	}
	return ""
}

func (m Model) searchBody() string {
	if len(m.snap.Suggestions) == 0 {
		return dimStyle.Render("Type at least 3 characters to search")
	}
	lines := make([]string, 0, len(m.snap.Suggestions))
	for i, s := range m.snap.Suggestions {
		if i == m.cursor {
			lines = append(lines, activeStyle.Render("› "+s.Description))
			continue
		}
		lines = append(lines, "  "+s.Description)
	}
	return strings.Join(lines, "\n")
}

func (m Model) vehicleBody() string {
	if len(m.snap.Fare) == 0 {
		return dimStyle.Render("Fetching fares…")
	}
	var cols []string
	for i, v := range models.VehicleTypes {
		cell := fmt.Sprintf("%s\n₹%.0f", v, m.snap.Fare[v])
		if i == m.vehicle {
			cell = activeStyle.Render(cell)
		}
		cols = append(cols, lipgloss.NewStyle().Width(12).Render(cell))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...) + "\n\nPassengers: " + string(m.seats) + "▏"
}

func (m Model) confirmBody() string {
	fare := m.snap.Fare[m.snap.Vehicle]
	return fmt.Sprintf("%s → %s\n%s for %d · ₹%.0f\n\n%s",
		m.snap.Pickup, m.snap.Destination, m.snap.Vehicle, m.snap.PassengerCount, fare,
		activeStyle.Render("Press enter to confirm"))
}

func (m Model) matchingBody() string {
	var b strings.Builder
	b.WriteString(m.snap.StatusMessage)
	b.WriteString("\n")
	b.WriteString(progressBar(m.snap.Progress))
	if m.snap.Countdown != "" {
		b.WriteString("  " + m.snap.Countdown)
	}
	if t := m.snap.Trip; t != nil {
		b.WriteString(fmt.Sprintf("\n%d/%d seats", t.SeatsFilled, t.Capacity))
		for _, p := range t.Passengers {
			name := p.Name
			if name == "" {
				name = p.UserID
			}
			b.WriteString(fmt.Sprintf("\n  %s (%d)", name, p.PassengerCount))
		}
	}
	if m.snap.YourFare != nil {
		b.WriteString(fmt.Sprintf("\nYour fare: ₹%.2f", *m.snap.YourFare))
	}
	return b.String()
}

func (m Model) confirmedBody() string {
	r := m.snap.Ride
	if r == nil {
		return okStyle.Render("Ride confirmed")
	}
	return okStyle.Render("Ride confirmed") + fmt.Sprintf("\n%s → %s\n%s · %d passenger(s)", r.Pickup, r.Destination, r.VehicleType, r.PassengerCount)
}

func progressBar(frac float64) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	full := int(frac*barWidth + 0.5)
	return barFullStyle.Render(strings.Repeat("█", full)) + barEmptyStyle.Render(strings.Repeat("░", barWidth-full))
}

func (m Model) helpLine() string {
	k := m.keys
	if m.snap.Panels.Confirmed {
		return k.help(k.Submit, k.Quit)
	}
	switch active, _ := panel.Parse(m.snap.ActivePanel); active {
	case panel.VehicleChoice:
		return k.help(k.Left, k.Right, k.Submit, k.Back, k.Quit)
	case panel.Confirm, panel.SearchingDriver, panel.PooledMatching:
		return k.help(k.Submit, k.Back, k.Quit)
	default:
		return k.help(k.Field, k.Up, k.Down, k.Submit, k.Quit)
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func joinDots(parts []string) string { return strings.Join(parts, " · ") }
