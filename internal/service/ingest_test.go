package service

import (
	"testing"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/alerts"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/socket"
	"cauldronwatch/internal/store"
)

func newIngestFixture() (*IngestService, *store.Store, *eventRepoStub) {
	st := store.New(logger.Nop())
	st.ReplaceCauldrons([]cauldronwatch.Cauldron{
		{ID: "c1", Name: "North", Capacity: 1000},
		{ID: "c2", Name: "South", Capacity: 500},
	})
	events := &eventRepoStub{}
	svc := NewIngestService(st, alerts.NewDeriver(), events, logger.Nop())
	return svc, st, events
}

func alertIDs(st *store.Store) map[string]bool {
	ids := make(map[string]bool)
	for _, a := range st.Alerts() {
		ids[a.ID] = true
	}
	return ids
}

func TestIngest_LevelsUpdate_ConvertsAndStores(t *testing.T) {
	t.Parallel()

	svc, st, _ := newIngestFixture()

	svc.Handle(socket.Event{Type: socket.EventLevelsUpdate, Levels: []socket.LevelItem{
		{CauldronID: "c1", Level: 500, Capacity: 1000},
		{CauldronID: "c2", Level: 125, Capacity: 500},
	}})

	c1, _ := st.Cauldron("c1")
	if c1.Level != 50 {
		t.Fatalf("c1 level: want 50, got %d", c1.Level)
	}
	c2, _ := st.Cauldron("c2")
	if c2.Level != 25 {
		t.Fatalf("c2 level: want 25, got %d", c2.Level)
	}
	if len(st.Alerts()) != 0 {
		t.Fatalf("normal levels should not raise alerts, got %+v", st.Alerts())
	}
}

func TestIngest_LevelsUpdate_OverfillThenUnderfillSwapsAlerts(t *testing.T) {
	t.Parallel()

	svc, st, _ := newIngestFixture()

	// 970/1000 -> 97% -> overfill.
	svc.Handle(socket.Event{Type: socket.EventLevelsUpdate, Levels: []socket.LevelItem{
		{CauldronID: "c1", Level: 970, Capacity: 1000},
	}})
	ids := alertIDs(st)
	if !ids["overfill_c1"] {
		t.Fatalf("expected overfill_c1 alert, got %+v", st.Alerts())
	}

	// 100/1000 -> 10% -> underfill replaces overfill.
	svc.Handle(socket.Event{Type: socket.EventLevelsUpdate, Levels: []socket.LevelItem{
		{CauldronID: "c1", Level: 100, Capacity: 1000},
	}})
	ids = alertIDs(st)
	if ids["overfill_c1"] {
		t.Fatalf("overfill_c1 should be removed after dropping to 10%%")
	}
	if !ids["underfill_c1"] {
		t.Fatalf("expected underfill_c1 alert, got %+v", st.Alerts())
	}

	// Back to 50% clears both.
	svc.Handle(socket.Event{Type: socket.EventLevelsUpdate, Levels: []socket.LevelItem{
		{CauldronID: "c1", Level: 500, Capacity: 1000},
	}})
	if len(st.Alerts()) != 0 {
		t.Fatalf("normal level should clear threshold alerts, got %+v", st.Alerts())
	}
}

func TestIngest_LevelsUpdate_InvalidCapacityRetainsPriorLevel(t *testing.T) {
	t.Parallel()

	svc, st, _ := newIngestFixture()

	svc.Handle(socket.Event{Type: socket.EventLevelsUpdate, Levels: []socket.LevelItem{
		{CauldronID: "c1", Level: 600, Capacity: 1000},
	}})
	before := st.LastUpdate()

	svc.Handle(socket.Event{Type: socket.EventLevelsUpdate, Levels: []socket.LevelItem{
		{CauldronID: "c1", Level: 700, Capacity: 0},
	}})

	c1, _ := st.Cauldron("c1")
	if c1.Level != 60 {
		t.Fatalf("invalid capacity must retain prior level 60, got %d", c1.Level)
	}
	if st.LastUpdate() != before {
		t.Fatalf("skipped batch should not advance the update token")
	}
}

func TestIngest_Drain_AddsAlertAndLogsEvent(t *testing.T) {
	t.Parallel()

	svc, st, events := newIngestFixture()

	start := time.Date(2026, 7, 31, 8, 30, 0, 0, time.UTC)
	svc.Handle(socket.Event{Type: socket.EventDrain, Drain: &cauldronwatch.DrainEvent{
		CauldronID:    "c1",
		StartTime:     start,
		VolumeDrained: 42.5,
	}})

	ids := alertIDs(st)
	if !ids["drain_c1_1785486600000"] {
		t.Fatalf("expected drain alert keyed by start millis, got %+v", st.Alerts())
	}
	if len(events.appended) != 1 || events.appended[0].Type != "DRAIN" {
		t.Fatalf("expected one DRAIN sync event, got %+v", events.appended)
	}

	// Duplicate delivery collapses to the same alert.
	svc.Handle(socket.Event{Type: socket.EventDrain, Drain: &cauldronwatch.DrainEvent{
		CauldronID:    "c1",
		StartTime:     start,
		VolumeDrained: 42.5,
	}})
	if len(st.Alerts()) != 1 {
		t.Fatalf("duplicate drain must upsert, got %d alerts", len(st.Alerts()))
	}
}

func TestIngest_Discrepancy_AddsAlert(t *testing.T) {
	t.Parallel()

	svc, st, events := newIngestFixture()

	svc.Handle(socket.Event{Type: socket.EventDiscrepancy, Discrepancy: &cauldronwatch.Discrepancy{
		TicketID:           "t-9",
		CauldronID:         "c2",
		DiscrepancyPercent: 12.5,
		Severity:           "bogus",
	}})

	al := st.Alerts()
	if len(al) != 1 || al[0].ID != "discrepancy_c2_t-9" {
		t.Fatalf("expected discrepancy_c2_t-9 alert, got %+v", al)
	}
	if al[0].Severity != cauldronwatch.SeverityWarning {
		t.Fatalf("unknown severity must fall back to warning, got %q", al[0].Severity)
	}
	if len(events.appended) != 1 || events.appended[0].Type != "DISCREPANCY" {
		t.Fatalf("expected one DISCREPANCY sync event, got %+v", events.appended)
	}
}

func TestIngest_Discrepancy_MissingCauldronDropped(t *testing.T) {
	t.Parallel()

	svc, st, events := newIngestFixture()

	svc.Handle(socket.Event{Type: socket.EventDiscrepancy, Discrepancy: &cauldronwatch.Discrepancy{
		TicketID: "t-1",
	}})

	if len(st.Alerts()) != 0 {
		t.Fatalf("discrepancy without cauldron id must be dropped, got %+v", st.Alerts())
	}
	if len(events.appended) != 0 {
		t.Fatalf("dropped discrepancy must not be logged, got %+v", events.appended)
	}
}

func TestIngest_Connected_ClearsDegraded(t *testing.T) {
	t.Parallel()

	svc, st, events := newIngestFixture()
	st.SetDegraded(true)

	svc.Handle(socket.Event{Type: socket.EventConnected})

	if st.Degraded() {
		t.Fatalf("connected event must clear the degraded flag")
	}
	if len(events.appended) != 1 || events.appended[0].Type != "CONNECTED" {
		t.Fatalf("expected one CONNECTED sync event, got %+v", events.appended)
	}
}
