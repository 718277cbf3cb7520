// Package panel models the mutually exclusive surfaces of the booking
// flow. State is a value; Show and Hide return the next state and never
// mutate the receiver.
package panel

type Panel int

const (
	None Panel = iota
	Search
	VehicleChoice
	Confirm
	SearchingDriver
	PooledMatching
	Confirmed
)

var names = [...]string{"none", "search", "vehicle_choice", "confirm", "searching_driver", "pooled_matching", "confirmed"}

func (p Panel) String() string {
	if p < 0 || int(p) >= len(names) {
		return "unknown"
	}
	return names[p]
}

// Parse maps a panel name back to its value.
func Parse(s string) (Panel, bool) {
	for i, n := range names {
		if n == s {
			return Panel(i), true
		}
	}
	return None, false
}

// State holds the single in-progress panel plus the Confirmed overlay,
// which represents a completed flow and may stay up while the rest are
// forced closed.
type State struct {
	Active    Panel
	Confirmed bool
}

// Show makes p visible. Every in-progress sibling closes; showing
// Confirmed also forces the in-progress panel closed.
func (s State) Show(p Panel) State {
	switch p {
	case None:
		return s
	case Confirmed:
		return State{Active: None, Confirmed: true}
	default:
		s.Active = p
		return s
	}
}

// Hide closes p if it is visible.
func (s State) Hide(p Panel) State {
	switch {
	case p == Confirmed:
		s.Confirmed = false
	case p != None && s.Active == p:
		s.Active = None
	}
	return s
}

func (s State) Visible(p Panel) bool {
	if p == Confirmed {
		return s.Confirmed
	}
	return p != None && s.Active == p
}

// Flags is the per-panel visibility view consumed by renderers.
type Flags struct {
	Search          bool `json:"search"`
	VehicleChoice   bool `json:"vehicleChoice"`
	Confirm         bool `json:"confirm"`
	SearchingDriver bool `json:"searchingDriver"`
	PooledMatching  bool `json:"pooledMatching"`
	Confirmed       bool `json:"confirmed"`
}

func (s State) Flags() Flags {
	return Flags{
		Search:          s.Visible(Search),
		VehicleChoice:   s.Visible(VehicleChoice),
		Confirm:         s.Visible(Confirm),
		SearchingDriver: s.Visible(SearchingDriver),
		PooledMatching:  s.Visible(PooledMatching),
		Confirmed:       s.Confirmed,
	}
}

// InProgressCount is the number of visible non-Confirmed panels. It is
// never more than one.
func (f Flags) InProgressCount() int {
	n := 0
	for _, v := range []bool{f.Search, f.VehicleChoice, f.Confirm, f.SearchingDriver, f.PooledMatching} {
		if v {
			n++
		}
	}
	return n
}
