// Package tui is the terminal front end of the rider client. It renders
// coordinator snapshots and turns key presses into coordinator calls; it
// holds no booking state of its own beyond the text being typed.
package tui

import (
	"unicode"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/example/rider-client/internal/coordinator"
	"github.com/example/rider-client/internal/geo"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/panel"
	"github.com/example/rider-client/internal/route"
)

// Controller is the part of the coordinator the UI drives.
type Controller interface {
	SetPickupText(text string)
	SetDestinationText(text string)
	OpenSearch(f coordinator.Field)
	ChooseSuggestion(s models.Suggestion)
	FindTrip()
	SelectVehicle(v models.VehicleType, countInput string)
	ConfirmRide()
	ClosePanel(p panel.Panel)
	DismissConfirmation()
	ClearNotice()
}

type SnapshotMsg coordinator.Snapshot

// PositionMsg reports the device position or why there is none.
type PositionMsg struct {
	Fix   geo.Fix
	State geo.State
	Err   error
}

type RouteMsg route.Result

// Sources are the streams the model listens to. Any may be nil.
type Sources struct {
	Snapshots <-chan coordinator.Snapshot
	Fixes     <-chan geo.Fix
	Routes    <-chan route.Result
}

type Model struct {
	ctl  Controller
	src  Sources
	keys KeyMap

	snap        coordinator.Snapshot
	pickup      echoBuffer
	destination echoBuffer
	field       coordinator.Field
	cursor      int
	vehicle     int
	seats       []rune

	position PositionMsg
	route    route.Result
	width    int
}

func NewModel(ctl Controller, src Sources, initial coordinator.Snapshot) Model {
	m := Model{ctl: ctl, src: src, keys: DefaultKeyMap, seats: []rune("1")}
	m.applySnapshot(initial)
	return m
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.src.Snapshots != nil {
		cmds = append(cmds, listen(m.src.Snapshots, func(s coordinator.Snapshot) tea.Msg { return SnapshotMsg(s) }))
	}
	if m.src.Fixes != nil {
		cmds = append(cmds, listen(m.src.Fixes, func(f geo.Fix) tea.Msg {
			return PositionMsg{Fix: f, State: geo.StateAvailable}
		}))
	}
	if m.src.Routes != nil {
		cmds = append(cmds, listen(m.src.Routes, func(r route.Result) tea.Msg { return RouteMsg(r) }))
	}
	return tea.Batch(cmds...)
}

// listen waits for one value; the handler re-arms it. A closed channel
// ends the subscription.
func listen[T any](ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return wrap(v)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case SnapshotMsg:
		m.applySnapshot(coordinator.Snapshot(msg))
		if m.src.Snapshots == nil {
			return m, nil
		}
		return m, listen(m.src.Snapshots, func(s coordinator.Snapshot) tea.Msg { return SnapshotMsg(s) })

	case PositionMsg:
		m.position = msg
		if m.src.Fixes == nil || msg.State == geo.StateFailed {
			return m, nil
		}
		return m, listen(m.src.Fixes, func(f geo.Fix) tea.Msg {
			return PositionMsg{Fix: f, State: geo.StateAvailable}
		})

	case RouteMsg:
		m.route = route.Result(msg)
		if m.src.Routes == nil {
			return m, nil
		}
		return m, listen(m.src.Routes, func(r route.Result) tea.Msg { return RouteMsg(r) })

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) applySnapshot(s coordinator.Snapshot) {
	m.snap = s
	m.pickup.sync(s.Pickup)
	m.destination.sync(s.Destination)
	if s.Panels.Search {
		m.field = s.ActiveField
	}
	if m.cursor >= len(s.Suggestions) {
		m.cursor = 0
	}
	if s.Vehicle != "" {
		for i, v := range models.VehicleTypes {
			if v == s.Vehicle {
				m.vehicle = i
			}
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if key.Matches(msg, m.keys.Back) {
		m.back()
		return m, nil
	}
	if m.snap.Panels.Confirmed {
		if key.Matches(msg, m.keys.Submit) {
			m.ctl.DismissConfirmation()
		}
		return m, nil
	}

	switch active, _ := panel.Parse(m.snap.ActivePanel); active {
	case panel.None, panel.Search:
		m.keySearch(msg)
	case panel.VehicleChoice:
		m.keyVehicle(msg)
	case panel.Confirm:
		if key.Matches(msg, m.keys.Submit) {
			m.ctl.ConfirmRide()
		}
	}
	return m, nil
}

func (m *Model) back() {
	if m.snap.Notice != "" || m.snap.InputError != "" {
		m.ctl.ClearNotice()
		return
	}
	if m.snap.Panels.Confirmed {
		m.ctl.DismissConfirmation()
		return
	}
	if active, ok := panel.Parse(m.snap.ActivePanel); ok && active != panel.None {
		m.ctl.ClosePanel(active)
	}
}

func (m *Model) keySearch(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, m.keys.Field):
		if m.field == coordinator.FieldPickup {
			m.field = coordinator.FieldDestination
		} else {
			m.field = coordinator.FieldPickup
		}
		m.cursor = 0
		m.ctl.OpenSearch(m.field)
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Suggestions)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Submit):
		if m.snap.Panels.Search && m.cursor < len(m.snap.Suggestions) {
			m.ctl.ChooseSuggestion(m.snap.Suggestions[m.cursor])
			return
		}
		m.ctl.FindTrip()
	case msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace:
		runes := msg.Runes
		if msg.Type == tea.KeySpace {
			runes = []rune{' '}
		}
		m.edit(func(b *echoBuffer) (string, bool) { return b.insert(runes), true })
	case msg.Type == tea.KeyBackspace:
		m.edit((*echoBuffer).backspace)
	}
}

func (m *Model) edit(fn func(*echoBuffer) (string, bool)) {
	if !m.snap.Panels.Search {
		m.ctl.OpenSearch(m.field)
	}
	buf, set := &m.pickup, m.ctl.SetPickupText
	if m.field == coordinator.FieldDestination {
		buf, set = &m.destination, m.ctl.SetDestinationText
	}
	if text, changed := fn(buf); changed {
		m.cursor = 0
		set(text)
	}
}

func (m *Model) keyVehicle(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, m.keys.Left):
		if m.vehicle > 0 {
			m.vehicle--
		}
	case key.Matches(msg, m.keys.Right):
		if m.vehicle < len(models.VehicleTypes)-1 {
			m.vehicle++
		}
	case key.Matches(msg, m.keys.Submit):
		m.ctl.SelectVehicle(models.VehicleTypes[m.vehicle], string(m.seats))
	case msg.Type == tea.KeyRunes:
		for _, r := range msg.Runes {
			if unicode.IsDigit(r) {
				m.seats = append(m.seats, r)
			}
		}
	case msg.Type == tea.KeyBackspace:
		if len(m.seats) > 0 {
			m.seats = m.seats[:len(m.seats)-1]
		}
	}
}
