package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scope"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

func resolve(t *testing.T, actor types.Actor) *scope.Scope {
	t.Helper()
	sc, err := scope.NewResolver(logger.NewNop()).Resolve(actor)
	require.NoError(t, err)
	return sc
}

func adminScope(t *testing.T) *scope.Scope {
	return resolve(t, types.Actor{ID: "a1", Role: types.RoleAdmin})
}

func TestBuild_UnknownFilterRejected(t *testing.T) {
	b := NewBuilder(logger.NewNop())

	_, err := b.Build(types.EntityPatient, map[string]string{"favourite_color": "blue"}, adminScope(t), 1, 10)
	assert.True(t, types.IsValidation(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeInvalidFilter, ce.Code)
}

func TestBuild_PageSizeOutsideSet(t *testing.T) {
	b := NewBuilder(logger.NewNop())

	_, err := b.Build(types.EntityPatient, nil, adminScope(t), 1, 33)
	assert.True(t, types.IsValidation(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeInvalidPageSize, ce.Code)
}

func TestBuild_EnumFilterRejectsUnknownValue(t *testing.T) {
	b := NewBuilder(logger.NewNop())

	_, err := b.Build(types.EntityConsultation, map[string]string{"status": "ARCHIVED"}, adminScope(t), 1, 10)
	assert.True(t, types.IsValidation(err))

	spec, err := b.Build(types.EntityConsultation, map[string]string{"status": "DONE"}, adminScope(t), 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, spec)
}

func TestBuild_ScopeAlwaysANDed(t *testing.T) {
	b := NewBuilder(logger.NewNop())
	sc := resolve(t, types.Actor{ID: "n1", Role: types.RoleNurse, CentreIDs: []string{"c1"}})

	spec, err := b.Build(types.EntityPatient, map[string]string{"centre_id": "c9"}, sc, 1, 10)
	require.NoError(t, err)

	// The user's centre filter narrows the scope predicate, never replaces it.
	require.Equal(t, types.OpAnd, spec.Predicate.Op)
	assert.Equal(t, types.OpIn, spec.Predicate.Sub[0].Op)
	assert.Equal(t, []string{"c1"}, spec.Predicate.Sub[0].Values)
}

func TestBuild_FreeTextSearchesAllFields(t *testing.T) {
	b := NewBuilder(logger.NewNop())

	spec, err := b.Build(types.EntityPatient, map[string]string{"q": "078"}, adminScope(t), 1, 10)
	require.NoError(t, err)

	// Admin scope is unrestricted, so the whole predicate is the OR.
	require.Equal(t, types.OpOr, spec.Predicate.Op)
	fields := make(map[string]bool)
	for _, sub := range spec.Predicate.Sub {
		assert.Equal(t, types.OpContains, sub.Op)
		assert.Equal(t, "078", sub.Value)
		fields[sub.Field] = true
	}
	for _, want := range []string{"first_name", "postname", "last_name", "phone", "id"} {
		assert.True(t, fields[want], "free text should search %s", want)
	}
}

func TestBuild_EmptyFreeTextMatchesEverything(t *testing.T) {
	b := NewBuilder(logger.NewNop())

	spec, err := b.Build(types.EntityPatient, map[string]string{"q": ""}, adminScope(t), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, types.OpTrue, spec.Predicate.Op)
}

func TestBuild_FixedOrderings(t *testing.T) {
	b := NewBuilder(logger.NewNop())

	patients, err := b.Build(types.EntityPatient, nil, adminScope(t), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []types.Ordering{{Field: "last_name"}, {Field: "first_name"}}, patients.OrderBy)

	consults, err := b.Build(types.EntityConsultation, nil, adminScope(t), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []types.Ordering{{Field: "date", Desc: true}, {Field: "id"}}, consults.OrderBy)
}

func TestBuild_NurseHospitalisationDefault(t *testing.T) {
	b := NewBuilder(logger.NewNop())
	nurse := resolve(t, types.Actor{ID: "n1", Role: types.RoleNurse, CentreIDs: []string{"c1"}})

	// Without an explicit flag the listing pins to active stays.
	spec, err := b.Build(types.EntityHospitalisation, nil, nurse, 1, 10)
	require.NoError(t, err)
	assert.True(t, hasIsNull(spec.Predicate, "discharge_date"))

	// include_discharged=true lifts the default.
	spec, err = b.Build(types.EntityHospitalisation, map[string]string{"include_discharged": "true"}, nurse, 1, 10)
	require.NoError(t, err)
	assert.False(t, hasIsNull(spec.Predicate, "discharge_date"))

	// Other roles see everything unless they ask otherwise.
	spec, err = b.Build(types.EntityHospitalisation, nil, adminScope(t), 1, 10)
	require.NoError(t, err)
	assert.False(t, hasIsNull(spec.Predicate, "discharge_date"))
}

func hasIsNull(p *types.Predicate, field string) bool {
	if p == nil {
		return false
	}
	if p.Op == types.OpIsNull && p.Field == field {
		return true
	}
	for _, sub := range p.Sub {
		if hasIsNull(sub, field) {
			return true
		}
	}
	return false
}

func TestBuild_UpcomingAppointments(t *testing.T) {
	b := NewBuilder(logger.NewNop())
	fixed := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	spec, err := b.Build(types.EntityAppointment, map[string]string{"upcoming": "true"}, adminScope(t), 1, 10)
	require.NoError(t, err)
	assert.True(t, hasGte(spec.Predicate, "start_time", "2026-04-01T09:00:00Z"))
}

func hasGte(p *types.Predicate, field, value string) bool {
	if p == nil {
		return false
	}
	if p.Op == types.OpGte && p.Field == field && p.Value == value {
		return true
	}
	for _, sub := range p.Sub {
		if hasGte(sub, field, value) {
			return true
		}
	}
	return false
}

func TestFingerprint_StableAcrossOrder(t *testing.T) {
	a := Fingerprint(map[string]string{"q": "malaria", "centre_id": "c1"})
	b := Fingerprint(map[string]string{"centre_id": "c1", "q": "malaria"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestFingerprint_DistinctFiltersDistinctKeys(t *testing.T) {
	a := Fingerprint(map[string]string{"q": "malaria"})
	b := Fingerprint(map[string]string{"q": "measles"})
	c := Fingerprint(map[string]string{"gender": "M"})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestFingerprint_EmptyIsNone(t *testing.T) {
	assert.Equal(t, "none", Fingerprint(nil))
	assert.Equal(t, "none", Fingerprint(map[string]string{}))
}
