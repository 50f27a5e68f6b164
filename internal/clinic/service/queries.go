package service

import (
	"context"

	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/journey"
)

// VisitDetail is a visit with its patient, orders and charges
type VisitDetail struct {
	*domain.Visit
	Patient      *domain.Patient       `json:"patient"`
	Orders       []*domain.Order       `json:"orders"`
	BillingItems []*domain.BillingItem `json:"billing_items"`
	NextStatuses []journey.Status      `json:"next_statuses"`
}

// GetVisit loads a visit with everything hanging off it
func (s *JourneyService) GetVisit(ctx context.Context, id string) (*VisitDetail, error) {
	v, err := s.repos.Visits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patient, err := s.repos.Patients.GetByID(ctx, v.PatientID)
	if err != nil {
		return nil, err
	}
	orders, err := s.repos.Orders.ListByVisit(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	items, err := s.repos.Billing.ListByVisit(ctx, v.ID)
	if err != nil {
		return nil, err
	}

	return &VisitDetail{
		Visit:        v,
		Patient:      patient,
		Orders:       orders,
		BillingItems: items,
		NextStatuses: journey.NextStatuses(v.Status),
	}, nil
}

// ListVisits lists visits with filtering
func (s *JourneyService) ListVisits(ctx context.Context, filter domain.VisitFilter, page, perPage int) ([]*domain.VisitSummary, int64, error) {
	return s.repos.Visits.List(ctx, filter, page, perPage)
}

// Timeline returns a visit's journey timeline
func (s *JourneyService) Timeline(ctx context.Context, visitID string) (journey.Timeline, error) {
	v, err := s.repos.Visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	return v.Timeline, nil
}

// GetPatient gets a patient by ID
func (s *JourneyService) GetPatient(ctx context.Context, id string) (*domain.Patient, error) {
	return s.repos.Patients.GetByID(ctx, id)
}

// SearchPatients searches patients by name, MRN, phone or national ID
func (s *JourneyService) SearchPatients(ctx context.Context, term string, page, perPage int) ([]*domain.Patient, int64, error) {
	return s.repos.Patients.Search(ctx, term, page, perPage)
}

// ListServices lists the active service catalog
func (s *JourneyService) ListServices(ctx context.Context, category string) ([]*domain.Service, error) {
	return s.repos.Services.List(ctx, category)
}
