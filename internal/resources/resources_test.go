package resources

import (
	"testing"
	"time"
)

func TestCollectionNames(t *testing.T) {
	for _, rt := range Watched() {
		if rt.Collection() == "" {
			t.Fatalf("expected collection for %s", rt)
		}
	}
	if Dashboard.Collection() != "" {
		t.Fatal("dashboard has no backing collection")
	}
}

func TestValid(t *testing.T) {
	if !Valid(Vehicles) {
		t.Fatal("vehicles should be valid")
	}
	if Valid(ResourceType("bogus")) {
		t.Fatal("bogus should be invalid")
	}
}

func TestEventNames(t *testing.T) {
	if got := Vehicles.UpdateEvent(); got != "vehiclesUpdate" {
		t.Fatalf("unexpected update event: %s", got)
	}
	if got := Rides.ChangeEvent("insert"); got != "rides:insert" {
		t.Fatalf("unexpected change event: %s", got)
	}
	if got := Earnings.DataEvent(); got != "earningsData" {
		t.Fatalf("unexpected data event: %s", got)
	}
	if got := DriverPerformance.RequestEvent(); got != "requestDriverPerformance" {
		t.Fatalf("unexpected request event: %s", got)
	}
}

func TestEnvelopes(t *testing.T) {
	env := NewEnvelope(Drivers, []string{"a"})
	if !env.Success || env.Event != "driversUpdate" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Fatalf("timestamp must be an ISO string, got %q", env.Timestamp)
	}

	empty := NewEmptyEnvelope(Drivers, "no data available")
	if empty.Success {
		t.Fatal("placeholder envelope must not claim success")
	}
	if empty.Message == "" {
		t.Fatal("placeholder envelope carries a message")
	}
}
