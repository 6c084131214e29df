package domain

import (
	"testing"
	"time"
)

func businessHours(t *testing.T) BusinessHours {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return BusinessHours{StartHour: 8, EndHour: 21, Location: loc}
}

func TestBusinessHoursContains(t *testing.T) {
	bh := businessHours(t)

	daytime := time.Date(2026, 3, 10, 14, 30, 0, 0, bh.Location)
	if !bh.Contains(daytime) {
		t.Fatalf("expected 14:30 to be inside business hours")
	}

	lateNight := time.Date(2026, 3, 10, 23, 0, 0, 0, bh.Location)
	if bh.Contains(lateNight) {
		t.Fatalf("expected 23:00 to be outside business hours")
	}

	earlyMorning := time.Date(2026, 3, 10, 7, 59, 0, 0, bh.Location)
	if bh.Contains(earlyMorning) {
		t.Fatalf("expected 07:59 to be outside business hours")
	}

	closing := time.Date(2026, 3, 10, 21, 0, 0, 0, bh.Location)
	if bh.Contains(closing) {
		t.Fatalf("expected 21:00 to be outside business hours")
	}
}

func TestNextOpeningLateEvening(t *testing.T) {
	bh := businessHours(t)

	evening := time.Date(2026, 3, 10, 22, 15, 0, 0, bh.Location)
	release := bh.NextOpening(evening)

	want := time.Date(2026, 3, 11, 8, 0, 0, 0, bh.Location)
	if !release.Equal(want) {
		t.Fatalf("expected release at %v, got %v", want, release)
	}
}

func TestNextOpeningEarlyMorningSameDay(t *testing.T) {
	bh := businessHours(t)

	night := time.Date(2026, 3, 10, 3, 45, 0, 0, bh.Location)
	release := bh.NextOpening(night)

	want := time.Date(2026, 3, 10, 8, 0, 0, 0, bh.Location)
	if !release.Equal(want) {
		t.Fatalf("expected release at %v, got %v", want, release)
	}
}

func TestNextOpeningInsideWindowIsIdentity(t *testing.T) {
	bh := businessHours(t)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, bh.Location)
	if got := bh.NextOpening(now); !got.Equal(now) {
		t.Fatalf("expected identity inside window, got %v", got)
	}
}

func TestClaimableStates(t *testing.T) {
	lead := &Lead{Status: StatusBroadcast}
	if !lead.Claimable() {
		t.Fatalf("broadcast lead without claimant must be claimable")
	}

	lead.Status = StatusNew
	if !lead.Claimable() {
		t.Fatalf("new lead must be claimable")
	}

	agent := newUUID(t)
	lead.ClaimedBy = &agent
	if lead.Claimable() {
		t.Fatalf("claimed lead must not be claimable")
	}

	lead.ClaimedBy = nil
	lead.Status = StatusArchived
	if lead.Claimable() {
		t.Fatalf("archived lead must not be claimable")
	}
}
