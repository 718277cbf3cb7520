package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/example/rider-client/internal/coordinator"
	"github.com/example/rider-client/internal/geo"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/panel"
	"github.com/example/rider-client/internal/route"
	"github.com/example/rider-client/internal/trip"
)

// fakeController records the calls the model makes.
type fakeController struct {
	calls []string
}

func (f *fakeController) record(s string) { f.calls = append(f.calls, s) }

func (f *fakeController) SetPickupText(text string)      { f.record("pickup:" + text) }
func (f *fakeController) SetDestinationText(text string) { f.record("destination:" + text) }
func (f *fakeController) OpenSearch(fl coordinator.Field) {
	f.record("open:" + fl.String())
}
func (f *fakeController) ChooseSuggestion(s models.Suggestion) { f.record("choose:" + s.PlaceID) }
func (f *fakeController) FindTrip()                            { f.record("find") }
func (f *fakeController) SelectVehicle(v models.VehicleType, count string) {
	f.record("vehicle:" + string(v) + ":" + count)
}
func (f *fakeController) ConfirmRide()             { f.record("confirm") }
func (f *fakeController) ClosePanel(p panel.Panel) { f.record("close:" + p.String()) }
func (f *fakeController) DismissConfirmation()     { f.record("dismiss") }
func (f *fakeController) ClearNotice()             { f.record("clear") }

func (f *fakeController) last() string {
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func press(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func searchSnap(pickup string, sugg ...models.Suggestion) coordinator.Snapshot {
	return coordinator.Snapshot{
		ActivePanel: panel.Search.String(),
		Panels:      panel.Flags{Search: true},
		Pickup:      pickup,
		Suggestions: sugg,
	}
}

func TestTypingOpensSearchAndSendsText(t *testing.T) {
	ctl := &fakeController{}
	m := NewModel(ctl, Sources{}, coordinator.Snapshot{ActivePanel: panel.None.String()})

	m = press(m, runes("mg"), tea.KeyMsg{Type: tea.KeySpace}, runes("r"))
	want := []string{"open:pickup", "pickup:mg", "open:pickup", "pickup:mg ", "open:pickup", "pickup:mg r"}
	if strings.Join(ctl.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", ctl.calls, want)
	}
	if m.pickup.String() != "mg r" {
		t.Fatalf("buffer = %q", m.pickup.String())
	}
}

func TestStaleSnapshotDoesNotEraseTyping(t *testing.T) {
	ctl := &fakeController{}
	m := NewModel(ctl, Sources{}, searchSnap(""))
	m = press(m, runes("a"), runes("b"), runes("c"))

	m = press(m, SnapshotMsg(searchSnap("a")))
	if m.pickup.String() != "abc" {
		t.Fatalf("stale echo overwrote buffer: %q", m.pickup.String())
	}
	m = press(m, SnapshotMsg(searchSnap("abc")))
	if m.pickup.String() != "abc" {
		t.Fatalf("buffer = %q", m.pickup.String())
	}

	// the coordinator replacing the text (a chosen suggestion) wins
	m = press(m, SnapshotMsg(searchSnap("Cubbon Park")))
	if m.pickup.String() != "Cubbon Park" {
		t.Fatalf("buffer = %q, want coordinator text", m.pickup.String())
	}
}

func TestEchoBufferKeepsBaseWhileInflight(t *testing.T) {
	var b echoBuffer
	b.sync("MG")
	b.insert([]rune("x"))
	b.sync("MG")
	if b.String() != "MGx" {
		t.Fatalf("buffer = %q", b.String())
	}
	b.sync("MGx")
	b.sync("")
	if b.String() != "" {
		t.Fatalf("reset should clear the buffer, got %q", b.String())
	}
}

func TestSuggestionNavigationAndChoice(t *testing.T) {
	ctl := &fakeController{}
	sugg := []models.Suggestion{{PlaceID: "a", Description: "A"}, {PlaceID: "b", Description: "B"}}
	m := NewModel(ctl, Sources{}, searchSnap("abc", sugg...))

	m = press(m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter})
	if ctl.last() != "choose:b" {
		t.Fatalf("last call = %q", ctl.last())
	}
	if !strings.Contains(m.View(), "› B") {
		t.Fatalf("cursor not rendered on B:\n%s", m.View())
	}
}

func TestTabSwitchesField(t *testing.T) {
	ctl := &fakeController{}
	m := NewModel(ctl, Sources{}, searchSnap(""))
	m = press(m, tea.KeyMsg{Type: tea.KeyTab}, runes("x"))
	if m.field != coordinator.FieldDestination || ctl.last() != "destination:x" {
		t.Fatalf("field=%v calls=%v", m.field, ctl.calls)
	}
}

func TestEnterWithoutSuggestionsFindsTrip(t *testing.T) {
	ctl := &fakeController{}
	m := NewModel(ctl, Sources{}, coordinator.Snapshot{ActivePanel: panel.None.String()})
	press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if ctl.last() != "find" {
		t.Fatalf("last call = %q", ctl.last())
	}
}

func TestVehicleChoice(t *testing.T) {
	ctl := &fakeController{}
	snap := coordinator.Snapshot{
		ActivePanel: panel.VehicleChoice.String(),
		Panels:      panel.Flags{VehicleChoice: true},
		Fare:        models.FareTable{models.VehicleAuto: 100, models.VehicleCar: 150, models.VehicleMoto: 70},
	}
	m := NewModel(ctl, Sources{}, snap)
	m = press(m, tea.KeyMsg{Type: tea.KeyRight}, tea.KeyMsg{Type: tea.KeyBackspace}, runes("3x"), tea.KeyMsg{Type: tea.KeyEnter})
	if ctl.last() != "vehicle:car:3" {
		t.Fatalf("last call = %q", ctl.last())
	}
	if !strings.Contains(m.View(), "₹150") {
		t.Fatalf("fares not rendered:\n%s", m.View())
	}
}

func TestConfirmAndDismiss(t *testing.T) {
	ctl := &fakeController{}
	m := NewModel(ctl, Sources{}, coordinator.Snapshot{ActivePanel: panel.Confirm.String(), Panels: panel.Flags{Confirm: true}})
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if ctl.last() != "confirm" {
		t.Fatalf("last call = %q", ctl.last())
	}

	ride := &models.Ride{ID: "r1", Pickup: "MG Road", Destination: "Airport", VehicleType: models.VehicleAuto, PassengerCount: 1}
	m = press(m, SnapshotMsg(coordinator.Snapshot{ActivePanel: panel.None.String(), Panels: panel.Flags{Confirmed: true}, Ride: ride}))
	if !strings.Contains(m.View(), "Ride confirmed") {
		t.Fatalf("confirmation not rendered:\n%s", m.View())
	}
	press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if ctl.last() != "dismiss" {
		t.Fatalf("last call = %q", ctl.last())
	}
}

func TestEscClearsNoticeBeforeClosingPanel(t *testing.T) {
	ctl := &fakeController{}
	snap := coordinator.Snapshot{ActivePanel: panel.Confirm.String(), Panels: panel.Flags{Confirm: true}, Notice: "Failed to confirm ride."}
	m := NewModel(ctl, Sources{}, snap)
	if !strings.Contains(m.View(), "Failed to confirm ride.") {
		t.Fatalf("notice not rendered")
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if ctl.last() != "clear" {
		t.Fatalf("last call = %q", ctl.last())
	}
	snap.Notice = ""
	m = press(m, SnapshotMsg(snap), tea.KeyMsg{Type: tea.KeyEsc})
	if ctl.last() != "close:confirm" {
		t.Fatalf("last call = %q", ctl.last())
	}
}

func TestPooledMatchingView(t *testing.T) {
	fare := 75.0
	tr := &trip.SharedTrip{
		Passengers:  []trip.Passenger{{UserID: "u1", Name: "Asha", PassengerCount: 1}, {UserID: "u2", PassengerCount: 2}},
		Capacity:    4,
		SeatsFilled: 3,
		Status:      trip.StatusOpen,
	}
	snap := coordinator.Snapshot{
		ActivePanel:   panel.PooledMatching.String(),
		Panels:        panel.Flags{PooledMatching: true},
		Trip:          tr,
		YourFare:      &fare,
		Progress:      tr.Progress(),
		StatusMessage: tr.StatusMessage(),
		Countdown:     "9:59",
	}
	view := NewModel(&fakeController{}, Sources{}, snap).View()
	for _, want := range []string{"Finding other passengers...", "9:59", "3/4 seats", "Asha (1)", "u2 (2)", "Your fare: ₹75.00"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestPositionAndRouteLines(t *testing.T) {
	m := NewModel(&fakeController{}, Sources{}, coordinator.Snapshot{ShowRoute: true})
	if !strings.Contains(m.View(), "Locating") {
		t.Fatalf("expected pending position")
	}
	m = press(m,
		PositionMsg{State: geo.StateFailed, Err: geo.ErrPermissionDenied},
		RouteMsg(route.Result{Waypoints: []models.Location{{}, {}}, Meters: 4200}),
	)
	view := m.View()
	if !strings.Contains(view, "Location unavailable: geolocation permission denied") {
		t.Errorf("missing geo error:\n%s", view)
	}
	if !strings.Contains(view, "Route 4.2 km") {
		t.Errorf("missing route summary:\n%s", view)
	}

	m = press(m, RouteMsg(route.Result{Err: errors.New("timeout")}))
	if !strings.Contains(m.View(), "Route unavailable: timeout") {
		t.Errorf("missing route error:\n%s", m.View())
	}
}

func TestSnapshotSourceIsRearmed(t *testing.T) {
	ch := make(chan coordinator.Snapshot, 1)
	m := NewModel(&fakeController{}, Sources{Snapshots: ch}, coordinator.Snapshot{})
	updated, cmd := m.Update(SnapshotMsg{})
	if cmd == nil {
		t.Fatalf("expected the listener to be re-armed")
	}
	ch <- coordinator.Snapshot{Connected: true}
	updated, cmd = updated.Update(cmd())
	if !updated.(Model).snap.Connected {
		t.Fatalf("snapshot not applied")
	}
	close(ch)
	if got := cmd(); got != nil {
		t.Fatalf("closed source should yield nil, got %T", got)
	}
}

func TestQuit(t *testing.T) {
	m := NewModel(&fakeController{}, Sources{}, coordinator.Snapshot{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected QuitMsg")
	}
}
