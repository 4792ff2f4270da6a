package service

import (
	"context"

	"cauldronwatch"
	"cauldronwatch/internal/alerts"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/store"
)

// DiscrepancyService fronts the backend's discrepancy endpoints. Detection
// results also feed the alert panel, matching what the live socket does for
// discrepancies pushed mid-session.
type DiscrepancyService struct {
	backend Backend
	store   *store.Store
	deriver *alerts.Deriver
	log     *logger.Logger
}

func NewDiscrepancyService(backend Backend, st *store.Store, deriver *alerts.Deriver, log *logger.Logger) *DiscrepancyService {
	return &DiscrepancyService{backend: backend, store: st, deriver: deriver, log: log}
}

// Report returns the stored discrepancy report, optionally filtered.
func (s *DiscrepancyService) Report(ctx context.Context, severity, cauldronID string) (cauldronwatch.DiscrepancyReport, error) {
	return s.backend.Discrepancies(ctx, severity, cauldronID)
}

// Detect triggers backend-side detection over a date window and raises an
// alert for every discrepancy found.
func (s *DiscrepancyService) Detect(ctx context.Context, startDate, endDate string) (cauldronwatch.DiscrepancyReport, error) {
	report, err := s.backend.DetectDiscrepancies(ctx, startDate, endDate)
	if err != nil {
		return cauldronwatch.DiscrepancyReport{}, err
	}

	for _, dc := range report.Discrepancies {
		alert, ok := s.deriver.FromDiscrepancy(dc)
		if !ok {
			s.log.Warnw("discrepancy_missing_id_dropped", "ticket", dc.TicketID)
			continue
		}
		s.store.AddAlert(alert)
	}
	return report, nil
}

// Drains lists recorded drain events for a date window.
func (s *DiscrepancyService) Drains(ctx context.Context, startDate, endDate string) ([]cauldronwatch.DrainEvent, error) {
	return s.backend.Drains(ctx, startDate, endDate)
}
