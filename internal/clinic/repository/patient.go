package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/medflow/medflow-clinic/internal/clinic/domain"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

// PatientRepository handles patient persistence
type PatientRepository struct {
	db *database.DB
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db *database.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// Create inserts a patient
func (r *PatientRepository) Create(ctx context.Context, p *domain.Patient) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	return scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		p.TenantID = tenantID
		query := `
			INSERT INTO patients (
				id, tenant_id, facility_id, medical_record_number, first_name, last_name,
				date_of_birth, sex, phone, national_id, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at
		`
		err := r.db.QueryRowxContext(ctx, query,
			p.ID, p.TenantID, p.FacilityID, p.MedicalRecordNumber, p.FirstName, p.LastName,
			p.DateOfBirth, p.Sex, p.Phone, p.NationalID, p.CreatedBy,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		return database.Translate(err)
	})
}

// GetByID gets a patient by ID
func (r *PatientRepository) GetByID(ctx context.Context, id string) (*domain.Patient, error) {
	var p domain.Patient
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT * FROM patients WHERE id = $1 AND tenant_id = $2`
		if err := r.db.GetContext(ctx, &p, query, id, tenantID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("patient")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByNationalID returns the patient holding a national ID, or nil
func (r *PatientRepository) FindByNationalID(ctx context.Context, nationalID string) (*domain.Patient, error) {
	var p domain.Patient
	found := true
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		query := `SELECT * FROM patients WHERE tenant_id = $1 AND national_id = $2 FOR UPDATE`
		if err := r.db.GetContext(ctx, &p, query, tenantID, nationalID); err != nil {
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
	return &p, nil
}

// Search lists patients whose name, MRN, phone or national ID matches term
func (r *PatientRepository) Search(ctx context.Context, term string, page, perPage int) ([]*domain.Patient, int64, error) {
	var (
		patients []*domain.Patient
		total    int64
	)
	err := scoped(ctx, r.db, func(ctx context.Context, tenantID string) error {
		where := `
			WHERE tenant_id = $1 AND (
				$2::text = ''
				OR first_name ILIKE '%' || $2 || '%'
				OR last_name ILIKE '%' || $2 || '%'
				OR medical_record_number ILIKE '%' || $2 || '%'
				OR phone ILIKE '%' || $2 || '%'
				OR national_id = $2
			)`
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM patients`+where, tenantID, term); err != nil {
			return err
		}

		query := `SELECT * FROM patients` + where + ` ORDER BY last_name, first_name LIMIT $3 OFFSET $4`
		return r.db.SelectContext(ctx, &patients, query, tenantID, term, perPage, (page-1)*perPage)
	})
	if err != nil {
		return nil, 0, err
	}
	return patients, total, nil
}
