package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/clinic/events"
	"github.com/medflow/medflow-clinic/internal/clinic/repository"
	"github.com/medflow/medflow-clinic/internal/journey"
	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/config"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/tenant"
)

// Registration warnings
const (
	WarnPatientReused        = "existing patient record reused (national ID match)"
	WarnNoPhone              = "no phone number on file"
	WarnConsultationUnbilled = "consultation billing item could not be created"
)

// JourneyService registers patients and moves visits through the journey
type JourneyService struct {
	db        *database.DB
	repos     *repository.Repositories
	publisher *events.ClinicEventPublisher
	cfg       config.ClinicConfig
	logger    *logger.Logger
}

// NewJourneyService creates a new journey service
func NewJourneyService(
	db *database.DB,
	repos *repository.Repositories,
	publisher *events.ClinicEventPublisher,
	cfg config.ClinicConfig,
	log *logger.Logger,
) *JourneyService {
	return &JourneyService{
		db:        db,
		repos:     repos,
		publisher: publisher,
		cfg:       cfg,
		logger:    log.WithComponent("journey"),
	}
}

func (s *JourneyService) validNationalID(id string) bool {
	min, max := s.cfg.NationalIDMinDigits, s.cfg.NationalIDMaxDigits
	if min <= 0 {
		min = 8
	}
	if max < min {
		max = 20
	}
	if len(id) < min || len(id) > max {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s *JourneyService) checkRegistration(in *domain.RegisterPatientInput) error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.NationalID = strings.TrimSpace(in.NationalID)
	in.Phone = strings.TrimSpace(in.Phone)

	details := map[string]string{}
	if in.FirstName == "" {
		details["first_name"] = "is required"
	}
	if in.LastName == "" {
		details["last_name"] = "is required"
	}
	if in.NationalID != "" && !s.validNationalID(in.NationalID) {
		details["national_id"] = "malformed national ID"
	}
	switch in.PaymentMode {
	case "":
		in.PaymentMode = domain.PaymentModeCash
	case domain.PaymentModeCash, domain.PaymentModeInsurance:
	default:
		details["payment_mode"] = "must be one of: cash, insurance"
	}
	if in.DateOfBirth != "" {
		if _, err := time.Parse("2006-01-02", in.DateOfBirth); err != nil {
			details["date_of_birth"] = "must be a date (YYYY-MM-DD)"
		}
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	if in.ConsultationServiceID == "" {
		return errors.BadRequest("consultation service is required")
	}
	return nil
}

// RegisterPatientWithVisit opens a visit for a new or returning patient and
// bills the consultation. Cash visits with a priced consultation start at
// the cashier; everything else goes straight to triage.
func (s *JourneyService) RegisterPatientWithVisit(ctx context.Context, in domain.RegisterPatientInput) (*domain.RegistrationResult, error) {
	a, err := requireRole(ctx, "register patients", journey.RoleReceptionist)
	if err != nil {
		return nil, err
	}
	if err := s.checkRegistration(&in); err != nil {
		return nil, err
	}

	var result *domain.RegistrationResult
	err = inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, batch *events.Batch) error {
		facility, err := s.resolveFacility(ctx, a, in.FacilityID)
		if err != nil {
			return err
		}

		consultation, err := s.consultationService(ctx, in.ConsultationServiceID)
		if err != nil {
			return err
		}

		warnings := []string{}
		patient, reused, err := s.findOrCreatePatient(ctx, a, facility, &in)
		if err != nil {
			return err
		}
		if reused {
			warnings = append(warnings, WarnPatientReused)
		}
		if patient.Phone == nil || *patient.Phone == "" {
			warnings = append(warnings, WarnNoPhone)
		}

		visit, err := s.openVisit(ctx, a, facility, patient, consultation, &in)
		if err != nil {
			return err
		}

		billed, err := s.billConsultation(ctx, visit, consultation)
		if err != nil {
			s.logger.Warn().Err(err).Str("visit_id", visit.ID).Msg("consultation billing failed, visit continues unbilled")
			warnings = append(warnings, WarnConsultationUnbilled)
		}

		next := journey.StatusAtTriage
		if billed != nil && billed.TotalAmount > 0 && in.PaymentMode == domain.PaymentModeCash {
			next = journey.StatusPayingConsultation
		}
		if err := s.move(ctx, visit, next, a, ""); err != nil {
			return err
		}

		batch.VisitRegistered(visit, reused, warnings)
		batch.VisitStatusChanged(visit, journey.StatusRegistered, true, "")

		result = &domain.RegistrationResult{
			PatientID:   patient.ID,
			VisitID:     visit.ID,
			VisitNumber: visit.VisitNumber,
			FullName:    patient.FullName(),
			Status:      visit.Status,
			Warnings:    warnings,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithVisit(result.VisitID).Info().
		Str("visit_number", result.VisitNumber).
		Str("status", string(result.Status)).
		Int("warnings", len(result.Warnings)).
		Msg("patient registered")
	return result, nil
}

func (s *JourneyService) resolveFacility(ctx context.Context, a *actor.Actor, requested string) (*domain.Facility, error) {
	id := requested
	if id == "" {
		id = a.FacilityID
	}
	if id == "" {
		id = tenant.FacilityID(ctx)
	}
	if id == "" {
		return nil, errors.BadRequest("facility_id is required")
	}

	facility, err := s.repos.Facilities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.BadRequest("unknown facility")
		}
		return nil, err
	}
	if !facility.IsActive {
		return nil, errors.BadRequest("facility is inactive")
	}
	return facility, nil
}

func (s *JourneyService) consultationService(ctx context.Context, id string) (*domain.Service, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.BadRequest("consultation service is required")
	}
	svc, err := s.repos.Services.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.BadRequest("consultation service is required")
		}
		return nil, err
	}
	if !svc.IsActive || svc.Category != domain.CategoryConsultation {
		return nil, errors.BadRequest("consultation service is required")
	}
	return svc, nil
}

func (s *JourneyService) findOrCreatePatient(ctx context.Context, a *actor.Actor, facility *domain.Facility, in *domain.RegisterPatientInput) (*domain.Patient, bool, error) {
	if in.NationalID != "" {
		existing, err := s.repos.Patients.FindByNationalID(ctx, in.NationalID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			active, err := s.repos.Visits.FindActiveForPatient(ctx, existing.ID)
			if err != nil {
				return nil, false, err
			}
			if active != nil {
				return nil, false, errors.Conflict("patient already has an active visit").
					WithDetails(map[string]string{"visit_id": active.ID, "visit_number": active.VisitNumber})
			}
			return existing, true, nil
		}
	}

	p := &domain.Patient{
		ID:         uuid.New().String(),
		FacilityID: facility.ID,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Sex:        strPtr(in.Sex),
		Phone:      strPtr(in.Phone),
		NationalID: strPtr(in.NationalID),
		CreatedBy:  strPtr(a.ID),
	}
	p.MedicalRecordNumber = medicalRecordNumber(facility.Code, p.ID)
	if in.DateOfBirth != "" {
		dob, _ := time.Parse("2006-01-02", in.DateOfBirth)
		p.DateOfBirth = &dob
	}

	if err := s.repos.Patients.Create(ctx, p); err != nil {
		return nil, false, err
	}
	return p, false, nil
}

// medicalRecordNumber derives an MRN from the facility code and patient ID
func medicalRecordNumber(facilityCode, patientID string) string {
	compact := strings.ReplaceAll(patientID, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return fmt.Sprintf("%s-%s", strings.ToUpper(facilityCode), strings.ToUpper(compact))
}

func (s *JourneyService) openVisit(ctx context.Context, a *actor.Actor, facility *domain.Facility, patient *domain.Patient, consultation *domain.Service, in *domain.RegisterPatientInput) (*domain.Visit, error) {
	opened := now()
	number, err := s.repos.Visits.NextVisitNumber(ctx, strings.ToUpper(facility.Code), opened)
	if err != nil {
		return nil, err
	}

	v := &domain.Visit{
		ID:                    uuid.New().String(),
		FacilityID:            facility.ID,
		PatientID:             patient.ID,
		VisitNumber:           number,
		Status:                journey.StatusRegistered,
		RoutingStatus:         journey.RoutingNone,
		ConsultationServiceID: &consultation.ID,
		PaymentMode:           in.PaymentMode,
		Notes:                 in.Notes,
		CreatedBy:             strPtr(a.ID),
	}
	v.Timeline = journey.Timeline{}.Append(journey.Entry{
		Stage:     journey.StatusRegistered,
		EnteredAt: opened,
		ActorID:   a.ID,
		ActorRole: a.Role,
	})

	if err := s.repos.Visits.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// billConsultation creates the consultation charge under a savepoint so a
// failure leaves the registration intact
func (s *JourneyService) billConsultation(ctx context.Context, v *domain.Visit, consultation *domain.Service) (*domain.BillingItem, error) {
	item := &domain.BillingItem{
		VisitID:     v.ID,
		SourceType:  domain.SourceConsultation,
		SourceID:    v.ID,
		Description: consultation.Name,
		Quantity:    1,
		UnitPrice:   consultation.Price,
		Status:      domain.PayStatusPending,
	}
	if consultation.Price == 0 {
		item.Status = domain.PayStatusPaid
	}

	err := s.db.Savepoint(ctx, "consultation_billing", func(ctx context.Context) error {
		return s.repos.Billing.Create(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// move applies a transition to a locked visit and persists it. Validation is
// the caller's job.
func (s *JourneyService) move(ctx context.Context, v *domain.Visit, to journey.Status, a *actor.Actor, notes string) error {
	at := now()
	from := v.Status

	v.Timeline = v.Timeline.Append(journey.Entry{
		Stage:     to,
		EnteredAt: at,
		ActorID:   a.ID,
		ActorRole: a.Role,
		Notes:     notes,
	})
	v.RoutingStatus = journey.RoutingFor(from, to, v.RoutingStatus)
	v.Status = to
	if to.IsTerminal() {
		v.ClosedAt = &at
	}

	return s.repos.Visits.UpdateJourney(ctx, v)
}

// AdvancePatientStage moves a visit to another journey stage. Leaving a
// paying stage with pending charges is refused unless the actor is admin.
func (s *JourneyService) AdvancePatientStage(ctx context.Context, in domain.AdvanceStageInput) (*domain.Visit, error) {
	a, role, err := currentActor(ctx)
	if err != nil {
		return nil, err
	}
	to, err := journey.ParseStatus(in.ToStatus)
	if err != nil {
		return nil, err
	}

	var visit *domain.Visit
	err = inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, batch *events.Batch) error {
		v, err := s.repos.Visits.GetForUpdate(ctx, in.VisitID)
		if err != nil {
			return err
		}
		from := v.Status

		if err := journey.ValidateTransition(role, from, to); err != nil {
			return err
		}

		// cancelling releases the charges instead of settling them
		if from.IsPaying() && to != journey.StatusCancelled && role != journey.RoleAdmin {
			pending, err := s.repos.Billing.CountPending(ctx, v.ID)
			if err != nil {
				return err
			}
			if pending > 0 {
				return errors.OutstandingBalance(pending)
			}
		}

		if err := s.move(ctx, v, to, a, in.Notes); err != nil {
			return err
		}

		if to == journey.StatusCancelled {
			if err := s.releaseCharges(ctx, v.ID); err != nil {
				return err
			}
		}

		batch.VisitStatusChanged(v, from, false, in.Notes)
		visit = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithVisit(visit.ID).Info().
		Str("to", string(visit.Status)).
		Str("actor_role", a.Role).
		Msg("visit advanced")
	return visit, nil
}

// releaseCharges drops what a cancelled visit still owes
func (s *JourneyService) releaseCharges(ctx context.Context, visitID string) error {
	if err := s.repos.Payments.CancelOpenForVisit(ctx, visitID); err != nil {
		return err
	}
	if err := s.repos.Billing.CancelPendingForVisit(ctx, visitID); err != nil {
		return err
	}
	return s.repos.Orders.CancelOpenForVisit(ctx, visitID)
}

// AppendJourneyStage adds an annotation entry to the timeline without a
// transition check. The visit status does not change.
func (s *JourneyService) AppendJourneyStage(ctx context.Context, in domain.AppendStageInput) (*domain.Visit, error) {
	a, _, err := currentActor(ctx)
	if err != nil {
		return nil, err
	}
	stage, err := journey.ParseStatus(in.Stage)
	if err != nil {
		return nil, err
	}

	var visit *domain.Visit
	err = inTenantTx(ctx, s.db, s.publisher, func(ctx context.Context, _ *events.Batch) error {
		v, err := s.repos.Visits.GetForUpdate(ctx, in.VisitID)
		if err != nil {
			return err
		}
		if v.Status.IsTerminal() {
			return errors.InvalidTransition(string(v.Status), string(stage)).
				WithDetails(map[string]string{"reason": "visit is closed"})
		}

		v.Timeline = v.Timeline.Annotate(journey.Entry{
			Stage:     stage,
			EnteredAt: now(),
			ActorID:   a.ID,
			ActorRole: a.Role,
			Notes:     in.Notes,
		})
		if err := s.repos.Visits.UpdateJourney(ctx, v); err != nil {
			return err
		}
		visit = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return visit, nil
}

// AutoUpdateAfterPayment moves a visit out of its paying stage once nothing
// is pending. It must run inside the settling transaction; the bool reports
// whether the visit moved.
func (s *JourneyService) AutoUpdateAfterPayment(ctx context.Context, visitID string, a *actor.Actor, batch *events.Batch) (bool, error) {
	v, err := s.repos.Visits.GetForUpdate(ctx, visitID)
	if err != nil {
		return false, err
	}
	if !v.Status.IsPaying() {
		return false, nil
	}

	pending, err := s.repos.Billing.CountPending(ctx, v.ID)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}

	work, err := s.repos.Orders.PendingWork(ctx, v.ID)
	if err != nil {
		return false, err
	}
	from := v.Status
	next, ok := journey.NextAfterPayment(from, work)
	if !ok || !journey.CanTransition(from, next) {
		return false, nil
	}

	const notes = "payment cleared"
	if err := s.move(ctx, v, next, a, notes); err != nil {
		return false, err
	}
	batch.VisitStatusChanged(v, from, true, notes)

	s.logger.WithVisit(v.ID).Info().
		Str("from", string(from)).
		Str("to", string(next)).
		Msg("visit routed after payment")
	return true, nil
}
