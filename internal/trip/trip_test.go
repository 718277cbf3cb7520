package trip

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func sampleTrip() *SharedTrip {
	return &SharedTrip{
		Passengers: []Passenger{
			{UserID: "u1", RideID: "r1", PassengerCount: 2, Name: "Asha"},
			{UserID: "u2", RideID: "r2", PassengerCount: 1, Name: "Ben"},
		},
		Capacity:    4,
		SeatsFilled: 3,
		Pickup:      "Main Gate",
		Destination: "Library",
		Status:      StatusOpen,
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestValidate(t *testing.T) {
	if err := sampleTrip().Validate(); err != nil {
		t.Fatalf("expected valid trip, got %v", err)
	}

	cases := map[string]func(*SharedTrip){
		"sum mismatch":    func(s *SharedTrip) { s.SeatsFilled = 2 },
		"over capacity":   func(s *SharedTrip) { s.Capacity = 2 },
		"full not full":   func(s *SharedTrip) { s.Status = StatusFull },
		"unknown status":  func(s *SharedTrip) { s.Status = "PENDING" },
		"zero capacity":   func(s *SharedTrip) { s.Capacity = 0 },
		"empty passenger": func(s *SharedTrip) { s.Passengers[1].PassengerCount = 0; s.SeatsFilled = 2 },
		"no passengers":   func(s *SharedTrip) { s.Passengers = nil; s.SeatsFilled = 0 },
	}
	for name, mutate := range cases {
		s := sampleTrip()
		mutate(s)
		if err := s.Validate(); !errors.Is(err, ErrInvariant) {
			t.Fatalf("%s: expected ErrInvariant, got %v", name, err)
		}
	}

	full := sampleTrip()
	full.Passengers = append(full.Passengers, Passenger{UserID: "u3", RideID: "r3", PassengerCount: 1})
	full.SeatsFilled = 4
	full.Status = StatusFull
	if err := full.Validate(); err != nil {
		t.Fatalf("full trip should be valid: %v", err)
	}
	if full.Progress() != 1 {
		t.Fatalf("expected 100%% progress, got %v", full.Progress())
	}
}

func TestInitiatorAndKey(t *testing.T) {
	s := sampleTrip()
	p, ok := s.Initiator()
	if !ok || p.UserID != "u1" {
		t.Fatalf("expected u1 as initiator, got %+v", p)
	}
	if s.Key() != "r1" {
		t.Fatalf("expected key from first ride, got %q", s.Key())
	}
	s.PrimaryRideID = "primary"
	if s.Key() != "primary" {
		t.Fatalf("expected primary ride id key, got %q", s.Key())
	}
	if !s.HasRide("r2") || s.HasRide("r9") {
		t.Fatalf("HasRide mismatch")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := sampleTrip()
	c := s.Clone()
	c.Passengers[0].Name = "changed"
	if s.Passengers[0].Name != "Asha" {
		t.Fatalf("clone shares passenger storage")
	}
}

func TestDecodeServerPayload(t *testing.T) {
	raw := `{"trip":{"primaryRideId":"r1","passengers":[{"userId":"u1","rideId":"r1","passengerCount":1,"name":"A"}],
	"capacity":4,"seatsFilled":1,"pickup":"P","destination":"D","status":"OPEN","createdAt":"2026-03-01T10:00:00Z"},"yourFare":42.5}`
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Trip == nil || u.YourFare == nil || *u.YourFare != 42.5 {
		t.Fatalf("unexpected update %+v", u)
	}
	if !u.Trip.CreatedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("createdAt not parsed: %v", u.Trip.CreatedAt)
	}
	if err := u.Trip.Validate(); err != nil {
		t.Fatalf("payload should validate: %v", err)
	}
}

func TestStatusMessage(t *testing.T) {
	s := sampleTrip()
	if s.StatusMessage() != "Finding other passengers..." {
		t.Fatalf("open message: %q", s.StatusMessage())
	}
	s.Status = StatusClosed
	if s.StatusMessage() != "Matching window closed. Your ride is starting!" {
		t.Fatalf("closed message: %q", s.StatusMessage())
	}
	var none *SharedTrip
	if none.Matching() {
		t.Fatalf("nil trip cannot be matching")
	}
}

func TestCountdown(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	window := 10 * time.Minute

	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, "10:00"},
		{1500 * time.Millisecond, "09:58"},
		{9*time.Minute + 59*time.Second, "00:01"},
		{10 * time.Minute, "00:00"},
		{15 * time.Minute, "00:00"},
	}
	for _, tc := range cases {
		got := FormatCountdown(Remaining(created, created.Add(tc.elapsed), window))
		if got != tc.want {
			t.Fatalf("elapsed %v: got %s want %s", tc.elapsed, got, tc.want)
		}
	}
	if Remaining(created, created.Add(-time.Minute), window) != 11*time.Minute {
		t.Fatalf("client clock behind server should extend the remaining time")
	}
}
