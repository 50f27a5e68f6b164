package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/internal/journey"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

// VisitRepository handles visit persistence
type VisitRepository struct {
	db *database.DB
}

// NewVisitRepository creates a new visit repository
func NewVisitRepository(db *database.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// NextVisitNumber issues the next number for a facility and day, formatted
// CODE-YYYYMMDD-NNNN. It takes a transaction-scoped advisory lock on the
// prefix so concurrent registrations at one facility are serialised.
func (r *VisitRepository) NextVisitNumber(ctx context.Context, facilityCode string, day time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%s", facilityCode, day.Format("20060102"))
	var seq int
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID+":"+prefix); err != nil {
			return err
		}
		query := `SELECT COUNT(*) FROM visits WHERE tenant_id = $1 AND starts_with(visit_number, $2 || '-')`
		return r.db.GetContext(ctx, &seq, query, tenantID, prefix)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, seq+1), nil
}

// Create inserts a visit
func (r *VisitRepository) Create(ctx context.Context, v *domain.Visit) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		v.TenantID = tenantID
		query := `
			INSERT INTO visits (
				id, tenant_id, facility_id, patient_id, visit_number, status, routing_status,
				journey_timeline, consultation_service_id, payment_mode, notes, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING opened_at, created_at, updated_at
		`
		err := r.db.QueryRowxContext(ctx, query,
			v.ID, v.TenantID, v.FacilityID, v.PatientID, v.VisitNumber, v.Status, v.RoutingStatus,
			v.Timeline, v.ConsultationServiceID, v.PaymentMode, v.Notes, v.CreatedBy,
		).Scan(&v.OpenedAt, &v.CreatedAt, &v.UpdatedAt)
		return database.Translate(err)
	})
}

// GetByID gets a visit by ID
func (r *VisitRepository) GetByID(ctx context.Context, id string) (*domain.Visit, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate gets a visit and locks its row until the transaction ends
func (r *VisitRepository) GetForUpdate(ctx context.Context, id string) (*domain.Visit, error) {
	return r.get(ctx, id, true)
}

func (r *VisitRepository) get(ctx context.Context, id string, lock bool) (*domain.Visit, error) {
	var v domain.Visit
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT * FROM visits WHERE id = $1 AND tenant_id = $2`
		if lock {
			query += ` FOR UPDATE`
		}
		if err := r.db.GetContext(ctx, &v, query, id, tenantID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("visit")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindActiveForPatient returns the patient's open visit, or nil
func (r *VisitRepository) FindActiveForPatient(ctx context.Context, patientID string) (*domain.Visit, error) {
	var v domain.Visit
	found := true
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			SELECT * FROM visits
			WHERE tenant_id = $1 AND patient_id = $2 AND status NOT IN ('discharged', 'cancelled')
			ORDER BY opened_at DESC
			LIMIT 1
		`
		if err := r.db.GetContext(ctx, &v, query, tenantID, patientID); err != nil {
			if err == sql.ErrNoRows {
				found = false
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// UpdateJourney persists the status, routing, timeline and closed_at of v
func (r *VisitRepository) UpdateJourney(ctx context.Context, v *domain.Visit) error {
	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			UPDATE visits
			SET status = $3, routing_status = $4, journey_timeline = $5, closed_at = $6
			WHERE id = $1 AND tenant_id = $2
			RETURNING updated_at
		`
		err := r.db.QueryRowxContext(ctx, query,
			v.ID, tenantID, v.Status, v.RoutingStatus, v.Timeline, v.ClosedAt,
		).Scan(&v.UpdatedAt)
		if err == sql.ErrNoRows {
			return errors.NotFound("visit")
		}
		return database.Translate(err)
	})
}

// List lists visits with filtering
func (r *VisitRepository) List(ctx context.Context, filter domain.VisitFilter, page, perPage int) ([]*domain.VisitSummary, int64, error) {
	var (
		visits []*domain.VisitSummary
		total  int64
	)
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		args := []interface{}{tenantID}
		where := ` WHERE v.tenant_id = $1`

		if filter.FacilityID != "" {
			args = append(args, filter.FacilityID)
			where += fmt.Sprintf(` AND v.facility_id = $%d`, len(args))
		}
		if filter.Status != "" {
			args = append(args, filter.Status)
			where += fmt.Sprintf(` AND v.status = $%d`, len(args))
		}
		if filter.PatientID != "" {
			args = append(args, filter.PatientID)
			where += fmt.Sprintf(` AND v.patient_id = $%d`, len(args))
		}
		if filter.OpenOnly {
			where += ` AND v.closed_at IS NULL`
		}
		if filter.Since != nil {
			args = append(args, *filter.Since)
			where += fmt.Sprintf(` AND v.opened_at >= $%d`, len(args))
		}

		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM visits v`+where, args...); err != nil {
			return err
		}

		query := `
			SELECT v.*, p.first_name || ' ' || p.last_name AS patient_name
			FROM visits v
			JOIN patients p ON p.id = v.patient_id
		` + where + fmt.Sprintf(` ORDER BY v.opened_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, perPage, (page-1)*perPage)

		return r.db.SelectContext(ctx, &visits, query, args...)
	})
	if err != nil {
		return nil, 0, err
	}
	return visits, total, nil
}

// CashierQueue lists visits waiting for payment with their outstanding
// totals, longest waiting first. The wait starts when the visit entered its
// current stage; timeline annotations do not reset it.
func (r *VisitRepository) CashierQueue(ctx context.Context, facilityID string, limit int) ([]*domain.CashierQueueEntry, error) {
	var out []*domain.CashierQueueEntry
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `
			SELECT v.id AS visit_id, v.visit_number, v.patient_id,
			       p.first_name || ' ' || p.last_name AS patient_name,
			       v.status, v.payment_mode,
			       COUNT(b.id) AS pending_items,
			       COALESCE(SUM(b.total_amount), 0) AS outstanding_due,
			       COALESCE((
			           SELECT (e ->> 'entered_at')::timestamptz
			           FROM jsonb_array_elements(v.journey_timeline) WITH ORDINALITY AS t(e, n)
			           WHERE e ->> 'stage' = v.status
			             AND NOT COALESCE((e ->> 'annotation')::boolean, false)
			           ORDER BY n DESC
			           LIMIT 1
			       ), v.updated_at) AS waiting_since
			FROM visits v
			JOIN patients p ON p.id = v.patient_id
			LEFT JOIN billing_items b ON b.visit_id = v.id AND b.status = 'pending'
			WHERE v.tenant_id = $1
			  AND v.routing_status = $2
			  AND ($3::text = '' OR v.facility_id::text = $3::text)
			GROUP BY v.id, p.first_name, p.last_name
			ORDER BY waiting_since ASC
			LIMIT $4
		`
		return r.db.SelectContext(ctx, &out, query, tenantID, journey.RoutingPendingPayment, facilityID, limit)
	})
	return out, err
}
