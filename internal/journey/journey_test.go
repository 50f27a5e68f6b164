package journey

import (
	"testing"

	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// edges mirrors the transition table row by row.
var edges = map[Status]struct {
	next  []Status
	roles []Role
}{
	StatusRegistered:         {[]Status{StatusPayingConsultation, StatusAtTriage, StatusCancelled}, []Role{RoleReceptionist}},
	StatusPayingConsultation: {[]Status{StatusAtTriage, StatusCancelled}, []Role{RoleCashier}},
	StatusAtTriage:           {[]Status{StatusVitalsTaken, StatusCancelled}, []Role{RoleNurse}},
	StatusVitalsTaken:        {[]Status{StatusWithDoctor}, []Role{RoleNurse}},
	StatusWithDoctor: {[]Status{
		StatusPayingDiagnosis, StatusPayingPharmacy, StatusAtLab, StatusAtImaging,
		StatusAtPharmacy, StatusAdmitted, StatusDischarged,
	}, []Role{RoleDoctor}},
	StatusPayingDiagnosis: {[]Status{
		StatusAtLab, StatusAtImaging, StatusPayingPharmacy, StatusAtPharmacy,
		StatusWithDoctor, StatusCancelled,
	}, []Role{RoleCashier}},
	StatusAtLab:          {[]Status{StatusAtImaging, StatusPayingPharmacy, StatusAtPharmacy, StatusWithDoctor}, []Role{RoleLabTechnician}},
	StatusAtImaging:      {[]Status{StatusAtLab, StatusPayingPharmacy, StatusAtPharmacy, StatusWithDoctor}, []Role{RoleRadiologist}},
	StatusPayingPharmacy: {[]Status{StatusAtPharmacy}, []Role{RoleCashier}},
	StatusAtPharmacy:     {[]Status{StatusWithDoctor, StatusDischarged}, []Role{RolePharmacist}},
	StatusAdmitted:       {[]Status{StatusDischarged}, []Role{RoleDoctor, RoleNurse}},
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func TestValidateTransition_FullGrid(t *testing.T) {
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			for _, role := range AllRoles {
				row, listed := edges[from]
				edgeOK := listed && contains(row.next, to)
				roleOK := listed && (role == RoleAdmin || contains(row.roles, role))

				assert.Equal(t, edgeOK, CanTransition(from, to), "CanTransition(%s, %s)", from, to)

				err := ValidateTransition(role, from, to)
				switch {
				case edgeOK && roleOK:
					assert.NoError(t, err, "%s: %s -> %s", role, from, to)
				case !edgeOK:
					assert.ErrorIs(t, err, errors.ErrInvalidTransition, "%s: %s -> %s", role, from, to)
				default:
					assert.ErrorIs(t, err, errors.ErrForbidden, "%s: %s -> %s", role, from, to)
				}
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []Status{StatusDischarged, StatusCancelled} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, NextStatuses(s))
		assert.False(t, CanLeave(RoleAdmin, s), "admin cannot reopen %s", s)

		err := ValidateTransition(RoleAdmin, s, StatusWithDoctor)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	}
}

func TestAdminBypassesOnlyRoleGate(t *testing.T) {
	assert.NoError(t, ValidateTransition(RoleAdmin, StatusAtLab, StatusWithDoctor))
	assert.ErrorIs(t, ValidateTransition(RoleAdmin, StatusRegistered, StatusDischarged), errors.ErrInvalidTransition)
}

func TestValidateTransition_UnknownTarget(t *testing.T) {
	err := ValidateTransition(RoleDoctor, StatusWithDoctor, Status("teleported"))
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("at_lab")
	require.NoError(t, err)
	assert.Equal(t, StatusAtLab, s)

	_, err = ParseStatus("AT_LAB")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestStatusClassification(t *testing.T) {
	paying := []Status{StatusPayingConsultation, StatusPayingDiagnosis, StatusPayingPharmacy}
	for _, s := range AllStatuses {
		assert.Equal(t, contains(paying, s), s.IsPaying(), s)
	}
	assert.True(t, RolePharmacist.IsValid())
	assert.False(t, Role("janitor").IsValid())
}

func TestNextAfterPayment(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		pending OrderWork
		want    Status
		ok      bool
	}{
		{"consultation clears to triage", StatusPayingConsultation, OrderWork{}, StatusAtTriage, true},
		{"pharmacy clears to pharmacy", StatusPayingPharmacy, OrderWork{Lab: true}, StatusAtPharmacy, true},
		{"lab before everything", StatusPayingDiagnosis, OrderWork{Lab: true, Imaging: true, Pharmacy: true}, StatusAtLab, true},
		{"imaging before pharmacy", StatusPayingDiagnosis, OrderWork{Imaging: true, Pharmacy: true}, StatusAtImaging, true},
		{"pharmacy only", StatusPayingDiagnosis, OrderWork{Pharmacy: true}, StatusAtPharmacy, true},
		{"nothing pending returns to doctor", StatusPayingDiagnosis, OrderWork{}, StatusWithDoctor, true},
		{"not a paying stage", StatusWithDoctor, OrderWork{Lab: true}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextAfterPayment(tt.from, tt.pending)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.True(t, CanTransition(tt.from, got), "auto route %s -> %s must be a table edge", tt.from, got)
			}
		})
	}
}

func TestRoutingFor(t *testing.T) {
	tests := []struct {
		from, to Status
		current  RoutingStatus
		want     RoutingStatus
	}{
		{StatusRegistered, StatusPayingConsultation, RoutingNone, RoutingPendingPayment},
		{StatusPayingConsultation, StatusAtTriage, RoutingPendingPayment, RoutingPaymentCleared},
		{StatusAtTriage, StatusVitalsTaken, RoutingPaymentCleared, RoutingPaymentCleared},
		{StatusRegistered, StatusAtTriage, RoutingNone, RoutingNone},
		{StatusWithDoctor, StatusPayingDiagnosis, RoutingPaymentCleared, RoutingPendingPayment},
		{StatusPayingDiagnosis, StatusCancelled, RoutingPendingPayment, RoutingNone},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoutingFor(tt.from, tt.to, tt.current), "%s -> %s", tt.from, tt.to)
	}
}
