// Package journey is the patient-journey state machine: which stage a visit
// may move to next, which staff role may move it, and where a visit goes
// once its bill is settled. Everything here is pure so the clinic service
// can evaluate it under a row lock.
package journey

import (
	"fmt"

	"github.com/medflow/medflow-clinic/pkg/errors"
)

// Status is a visit's journey stage
type Status string

const (
	StatusRegistered         Status = "registered"
	StatusPayingConsultation Status = "paying_consultation"
	StatusAtTriage           Status = "at_triage"
	StatusVitalsTaken        Status = "vitals_taken"
	StatusWithDoctor         Status = "with_doctor"
	StatusPayingDiagnosis    Status = "paying_diagnosis"
	StatusAtLab              Status = "at_lab"
	StatusAtImaging          Status = "at_imaging"
	StatusPayingPharmacy     Status = "paying_pharmacy"
	StatusAtPharmacy         Status = "at_pharmacy"
	StatusAdmitted           Status = "admitted"
	StatusDischarged         Status = "discharged"
	StatusCancelled          Status = "cancelled"
)

// AllStatuses lists every stage in journey order
var AllStatuses = []Status{
	StatusRegistered,
	StatusPayingConsultation,
	StatusAtTriage,
	StatusVitalsTaken,
	StatusWithDoctor,
	StatusPayingDiagnosis,
	StatusAtLab,
	StatusAtImaging,
	StatusPayingPharmacy,
	StatusAtPharmacy,
	StatusAdmitted,
	StatusDischarged,
	StatusCancelled,
}

// IsValid reports whether s is a known stage
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the visit is closed
func (s Status) IsTerminal() bool {
	return s == StatusDischarged || s == StatusCancelled
}

// IsPaying reports whether the visit is waiting at the cashier
func (s Status) IsPaying() bool {
	switch s {
	case StatusPayingConsultation, StatusPayingDiagnosis, StatusPayingPharmacy:
		return true
	}
	return false
}

// ParseStatus validates a stage name
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", errors.Validation(map[string]string{"status": fmt.Sprintf("unknown journey stage %q", s)})
	}
	return status, nil
}

// Role is a staff role
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleReceptionist  Role = "receptionist"
	RoleNurse         Role = "nurse"
	RoleDoctor        Role = "doctor"
	RoleCashier       Role = "cashier"
	RoleLabTechnician Role = "lab_technician"
	RoleRadiologist   Role = "radiologist"
	RolePharmacist    Role = "pharmacist"
)

// AllRoles lists the staff roles
var AllRoles = []Role{
	RoleAdmin,
	RoleReceptionist,
	RoleNurse,
	RoleDoctor,
	RoleCashier,
	RoleLabTechnician,
	RoleRadiologist,
	RolePharmacist,
}

// IsValid reports whether r is a known staff role
func (r Role) IsValid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

type rule struct {
	next  []Status
	roles []Role
}

var transitions = map[Status]rule{
	StatusRegistered: {
		next:  []Status{StatusPayingConsultation, StatusAtTriage, StatusCancelled},
		roles: []Role{RoleReceptionist},
	},
	StatusPayingConsultation: {
		next:  []Status{StatusAtTriage, StatusCancelled},
		roles: []Role{RoleCashier},
	},
	StatusAtTriage: {
		next:  []Status{StatusVitalsTaken, StatusCancelled},
		roles: []Role{RoleNurse},
	},
	StatusVitalsTaken: {
		next:  []Status{StatusWithDoctor},
		roles: []Role{RoleNurse},
	},
	StatusWithDoctor: {
		next: []Status{
			StatusPayingDiagnosis, StatusPayingPharmacy, StatusAtLab, StatusAtImaging,
			StatusAtPharmacy, StatusAdmitted, StatusDischarged,
		},
		roles: []Role{RoleDoctor},
	},
	StatusPayingDiagnosis: {
		next: []Status{
			StatusAtLab, StatusAtImaging, StatusPayingPharmacy, StatusAtPharmacy,
			StatusWithDoctor, StatusCancelled,
		},
		roles: []Role{RoleCashier},
	},
	StatusAtLab: {
		next:  []Status{StatusAtImaging, StatusPayingPharmacy, StatusAtPharmacy, StatusWithDoctor},
		roles: []Role{RoleLabTechnician},
	},
	StatusAtImaging: {
		next:  []Status{StatusAtLab, StatusPayingPharmacy, StatusAtPharmacy, StatusWithDoctor},
		roles: []Role{RoleRadiologist},
	},
	StatusPayingPharmacy: {
		next:  []Status{StatusAtPharmacy},
		roles: []Role{RoleCashier},
	},
	StatusAtPharmacy: {
		next:  []Status{StatusWithDoctor, StatusDischarged},
		roles: []Role{RolePharmacist},
	},
	StatusAdmitted: {
		next:  []Status{StatusDischarged},
		roles: []Role{RoleDoctor, RoleNurse},
	},
}

// NextStatuses returns the stages reachable from from
func NextStatuses(from Status) []Status {
	next := transitions[from].next
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether to is an allowed next stage of from
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from].next {
		if next == to {
			return true
		}
	}
	return false
}

// CanLeave reports whether role may move a visit out of from. Admin may
// leave any non-terminal stage.
func CanLeave(role Role, from Status) bool {
	r, ok := transitions[from]
	if !ok {
		return false
	}
	if role == RoleAdmin {
		return true
	}
	for _, allowed := range r.roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// ValidateTransition checks both the next-stage gate and the role gate.
func ValidateTransition(role Role, from, to Status) error {
	if !to.IsValid() {
		return errors.Validation(map[string]string{"to_status": fmt.Sprintf("unknown journey stage %q", to)})
	}
	if from.IsTerminal() {
		return errors.InvalidTransition(string(from), string(to)).
			WithDetails(map[string]string{"from": string(from), "to": string(to), "reason": "visit is closed"})
	}
	if !CanTransition(from, to) {
		return errors.InvalidTransition(string(from), string(to))
	}
	if !CanLeave(role, from) {
		return errors.Forbidden(fmt.Sprintf("role %s cannot move a visit out of %s", role, from))
	}
	return nil
}

// OrderWork describes the paid clinical work still waiting on a visit.
type OrderWork struct {
	Lab      bool
	Imaging  bool
	Pharmacy bool
}

// NextAfterPayment returns where a visit goes once every pending billing
// item in its paying stage is settled. Diagnosis payments route to lab,
// then imaging, then pharmacy, and otherwise back to the doctor. The
// boolean is false when from is not a paying stage.
func NextAfterPayment(from Status, pending OrderWork) (Status, bool) {
	switch from {
	case StatusPayingConsultation:
		return StatusAtTriage, true
	case StatusPayingPharmacy:
		return StatusAtPharmacy, true
	case StatusPayingDiagnosis:
		switch {
		case pending.Lab:
			return StatusAtLab, true
		case pending.Imaging:
			return StatusAtImaging, true
		case pending.Pharmacy:
			return StatusAtPharmacy, true
		default:
			return StatusWithDoctor, true
		}
	}
	return "", false
}
