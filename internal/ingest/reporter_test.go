package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/rider-client/internal/geo"
	"github.com/example/rider-client/internal/logging"
	"github.com/example/rider-client/internal/models"
)

type recordingSink struct {
	name string
	err  error
	got  []models.RiderPosition
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Report(_ context.Context, p models.RiderPosition) error {
	s.got = append(s.got, p)
	return s.err
}

func TestReporterFansOutAndSurvivesSinkErrors(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("down")}
	good := &recordingSink{name: "good"}
	r := NewReporter(func() string { return "u1" }, logging.Discard(), bad, good)

	fixes := make(chan geo.Fix, 2)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fixes <- geo.Fix{Location: models.Location{Lat: 1, Lng: 2}, At: at}
	fixes <- geo.Fix{Location: models.Location{Lat: 3, Lng: 4}, At: at.Add(3 * time.Second)}
	close(fixes)
	r.Run(context.Background(), fixes)

	if len(good.got) != 2 || len(bad.got) != 2 {
		t.Fatalf("expected both sinks to see both fixes, got good=%d bad=%d", len(good.got), len(bad.got))
	}
	want := models.RiderPosition{UserID: "u1", Lat: 3, Lng: 4, At: at.Add(3 * time.Second)}
	if good.got[1] != want {
		t.Fatalf("unexpected position %+v", good.got[1])
	}
}

func TestReporterSkipsWithoutUser(t *testing.T) {
	s := &recordingSink{name: "s"}
	r := NewReporter(func() string { return "" }, logging.Discard(), s)
	r.Report(context.Background(), geo.Fix{})
	if len(s.got) != 0 {
		t.Fatalf("expected nothing reported without a user id")
	}
}
