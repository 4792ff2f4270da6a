package service

import (
	"context"
	"errors"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/alerts"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/repository"
	"cauldronwatch/internal/socket"
	"cauldronwatch/internal/store"
	"cauldronwatch/internal/units"
)

// eventAppendTimeout bounds best-effort sync-log writes from the socket
// path so a slow disk never stalls event handling.
const eventAppendTimeout = 2 * time.Second

// IngestService applies parsed socket events to the store: conversion to
// percentages, batch level updates, and alert derivation.
type IngestService struct {
	store   *store.Store
	deriver *alerts.Deriver
	events  repository.EventRepo
	log     *logger.Logger
}

func NewIngestService(st *store.Store, deriver *alerts.Deriver, events repository.EventRepo, log *logger.Logger) *IngestService {
	return &IngestService{store: st, deriver: deriver, events: events, log: log}
}

// Handle processes one socket event. Events are handled strictly in
// arrival order by the socket client's read loop.
func (s *IngestService) Handle(ev socket.Event) {
	switch ev.Type {
	case socket.EventLevelsUpdate:
		s.handleLevels(ev.Levels)
	case socket.EventDrain:
		s.handleDrain(ev.Drain)
	case socket.EventDiscrepancy:
		s.handleDiscrepancy(ev.Discrepancy)
	case socket.EventConnected:
		s.store.SetDegraded(false)
		s.appendEvent("CONNECTED", "live feed connected", nil)
	}
}

func (s *IngestService) handleLevels(items []socket.LevelItem) {
	batch := make([]cauldronwatch.LevelUpdate, 0, len(items))
	for _, item := range items {
		pct, err := units.ToPercentage(item.Level, item.Capacity)
		if err != nil {
			if errors.Is(err, units.ErrInvalidCapacity) {
				// Prior level is retained rather than corrupted to 0%.
				s.log.Warnw("level_invalid_capacity_skipped", "cauldron", item.CauldronID, "capacity", item.Capacity)
				continue
			}
			s.log.Warnw("level_conversion_failed", "cauldron", item.CauldronID, "err", err)
			continue
		}
		batch = append(batch, cauldronwatch.LevelUpdate{ID: item.CauldronID, Level: pct})
	}
	if len(batch) == 0 {
		return
	}

	s.store.BatchUpdateLevels(batch)
	for _, u := range batch {
		s.apply(s.deriver.EvaluateLevel(u.ID, u.Level))
	}
}

func (s *IngestService) handleDrain(ev *cauldronwatch.DrainEvent) {
	if ev == nil {
		return
	}
	alert, ok := s.deriver.FromDrain(*ev)
	if !ok {
		s.log.Warnw("drain_event_missing_id_dropped")
		return
	}
	s.store.AddAlert(alert)
	s.appendEvent("DRAIN", alert.Message, map[string]any{
		"cauldron_id": ev.CauldronID,
		"volume":      ev.VolumeDrained,
	})
}

func (s *IngestService) handleDiscrepancy(dc *cauldronwatch.Discrepancy) {
	if dc == nil {
		return
	}
	alert, ok := s.deriver.FromDiscrepancy(*dc)
	if !ok {
		s.log.Warnw("discrepancy_missing_id_dropped", "ticket", dc.TicketID)
		return
	}
	s.store.AddAlert(alert)
	s.appendEvent("DISCREPANCY", alert.Message, map[string]any{
		"ticket_id":   dc.TicketID,
		"cauldron_id": dc.CauldronID,
		"severity":    dc.Severity,
	})
}

func (s *IngestService) apply(acts alerts.Actions) {
	for _, a := range acts.Upserts {
		s.store.AddAlert(a)
	}
	for _, id := range acts.Removals {
		s.store.RemoveAlert(id)
	}
}

func (s *IngestService) appendEvent(typ, message string, meta any) {
	ctx, cancel := context.WithTimeout(context.Background(), eventAppendTimeout)
	defer cancel()
	if err := s.events.Append(ctx, cauldronwatch.SyncEvent{Type: typ, Description: message, Metadata: meta}); err != nil {
		s.log.Warnw("sync_event_append_failed", "type", typ, "err", err)
	}
}
