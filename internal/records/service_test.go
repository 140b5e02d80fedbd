package records

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JUNIORUSENI/system-gestion-hopital/internal/cache"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scheduler"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scope"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/store"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/monitoring"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

var (
	admin     = types.Actor{ID: "adm", Role: types.RoleAdmin}
	doctor    = types.Actor{ID: "doc1", Role: types.RoleDoctor}
	nurse     = types.Actor{ID: "nrs", Role: types.RoleNurse, CentreIDs: []string{"c1"}}
	secretary = types.Actor{ID: "sec", Role: types.RoleSecretary, CentreIDs: []string{"c1"}}
)

func setup(t *testing.T) (*Service, *store.MemoryStore, *cache.MemoryCache) {
	t.Helper()
	log := logger.NewNop()
	ms := store.NewMemoryStore()
	mc := cache.NewMemoryCache(log)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	svc := NewService(scope.NewResolver(log), scheduler.New(log), ms, mc, metrics, log)
	require.NoError(t, ms.CreateProfile(context.Background(), &types.Profile{
		ID: "doc1", Username: "doc.one", Role: types.RoleDoctor,
	}))
	return svc, ms, mc
}

func validPatient(centreID string) *types.Patient {
	return &types.Patient{
		FirstName:   "Alice",
		LastName:    "Kanza",
		Gender:      types.GenderFemale,
		DateOfBirth: time.Date(1990, 5, 12, 0, 0, 0, 0, time.UTC),
		Phone:       "+243812345678",
		CentreID:    centreID,
	}
}

func TestCreatePatient_Valid(t *testing.T) {
	svc, ms, _ := setup(t)

	created, err := svc.CreatePatient(context.Background(), secretary, validPatient("c1"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	stored, err := ms.GetPatient(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kanza", stored.LastName)
}

func TestCreatePatient_ImplausibleBirthDate(t *testing.T) {
	svc, _, _ := setup(t)

	p := validPatient("c1")
	p.DateOfBirth = time.Now().AddDate(-200, 0, 0)
	_, err := svc.CreatePatient(context.Background(), admin, p)

	assert.True(t, types.IsValidation(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeInvalidBirthDate, ce.Code)
}

func TestCreatePatient_MalformedPhone(t *testing.T) {
	svc, _, _ := setup(t)

	p := validPatient("c1")
	p.Phone = "123456789"
	_, err := svc.CreatePatient(context.Background(), admin, p)

	assert.True(t, types.IsValidation(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeInvalidPhone, ce.Code)
}

func TestCreatePatient_NurseRejected(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.CreatePatient(context.Background(), nurse, validPatient("c1"))
	assert.True(t, types.IsPermissionDenied(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeRoleNotAllowed, ce.Code)
}

func TestCreatePatient_OutsideCentreScope(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.CreatePatient(context.Background(), secretary, validPatient("c2"))
	assert.True(t, types.IsPermissionDenied(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeOutOfScope, ce.Code)
}

func TestCreatePatient_SecretaryMedicalFieldsStripped(t *testing.T) {
	svc, ms, _ := setup(t)

	p := validPatient("c1")
	p.MedicalHistory = "diabetes"
	p.Allergies = "penicillin"
	created, err := svc.CreatePatient(context.Background(), secretary, p)
	require.NoError(t, err)

	stored, err := ms.GetPatient(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.MedicalHistory)
	assert.Empty(t, stored.Allergies)
}

func TestUpdatePatient_SecretaryKeepsStoredMedicalFields(t *testing.T) {
	svc, ms, _ := setup(t)
	ctx := context.Background()

	p := validPatient("c1")
	p.MedicalHistory = "asthma"
	created, err := svc.CreatePatient(ctx, doctor, p)
	require.NoError(t, err)

	update := *created
	update.MedicalHistory = "wiped"
	update.Address = "12 Avenue Kasa-Vubu"
	_, err = svc.UpdatePatient(ctx, secretary, &update)
	require.NoError(t, err)

	stored, err := ms.GetPatient(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "asthma", stored.MedicalHistory)
	assert.Equal(t, "12 Avenue Kasa-Vubu", stored.Address)
}

func TestDeletePatient_AdminOnly(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	created, err := svc.CreatePatient(ctx, admin, validPatient(""))
	require.NoError(t, err)

	err = svc.DeletePatient(ctx, secretary, created.ID)
	assert.True(t, types.IsPermissionDenied(err))

	require.NoError(t, svc.DeletePatient(ctx, admin, created.ID))
	err = svc.DeletePatient(ctx, admin, created.ID)
	assert.True(t, types.IsNotFound(err))
}

func TestWrite_SweepsCallerCache(t *testing.T) {
	svc, _, mc := setup(t)
	ctx := context.Background()

	k := types.CacheKey{
		Entity: types.EntityPatient, CallerID: admin.ID, Role: admin.Role,
		Page: 1, PageSize: 10, Fingerprint: "none",
	}
	require.NoError(t, mc.Put(ctx, k, &types.CachedPage{TotalCount: 1, Page: 1, PageSize: 10}))

	_, err := svc.CreatePatient(ctx, admin, validPatient(""))
	require.NoError(t, err)

	_, hit, err := mc.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, hit, "committed write must sweep the caller's pages")
}

// sweepFailCache simulates a cache whose invalidation sweeps always fail.
type sweepFailCache struct {
	*cache.MemoryCache
}

func (c *sweepFailCache) Invalidate(ctx context.Context, entity types.EntityType, callerID string, role types.Role) error {
	return types.NewCacheInconsistency("invalidation sweep failed", errors.New("connection refused"))
}

// The record is durable before the sweep runs, so a sweep failure degrades
// the cache instead of failing the write.
func TestWrite_SweepFailureDoesNotFailCommittedWrite(t *testing.T) {
	log := logger.NewNop()
	ms := store.NewMemoryStore()
	svc := NewService(scope.NewResolver(log), scheduler.New(log), ms,
		&sweepFailCache{cache.NewMemoryCache(log)}, monitoring.NewMetrics(prometheus.NewRegistry()), log)
	ctx := context.Background()

	created, err := svc.CreatePatient(ctx, admin, validPatient(""))
	require.NoError(t, err)

	stored, err := ms.GetPatient(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored.ID)
}

func TestConsultation_TerminalStatus(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	c, err := svc.CreateConsultation(ctx, doctor, &types.Consultation{
		PatientID: "p1", CentreID: "c1", Reason: "fever",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ConsultationPending, c.Status)
	assert.Equal(t, doctor.ID, c.DoctorID)

	c.Status = types.ConsultationDone
	_, err = svc.UpdateConsultation(ctx, doctor, c)
	require.NoError(t, err)

	c.Status = types.ConsultationInProgress
	_, err = svc.UpdateConsultation(ctx, doctor, c)
	assert.True(t, types.IsValidation(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeInvalidTransition, ce.Code)
}

func TestConsultation_OtherDoctorRejected(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	c, err := svc.CreateConsultation(ctx, doctor, &types.Consultation{
		PatientID: "p1", CentreID: "c1", Reason: "fever",
	})
	require.NoError(t, err)

	rival := types.Actor{ID: "doc2", Role: types.RoleDoctor}
	c.Status = types.ConsultationDone
	_, err = svc.UpdateConsultation(ctx, rival, c)
	assert.True(t, types.IsPermissionDenied(err))
}

func TestNursingNotes_AppendOnly(t *testing.T) {
	svc, ms, _ := setup(t)
	ctx := context.Background()

	h, err := svc.CreateHospitalisation(ctx, doctor, &types.Hospitalisation{
		PatientID: "p1", DoctorID: doctor.ID, CentreID: "c1",
		Service: "medicine", AdmissionReason: "observation",
	})
	require.NoError(t, err)

	_, err = svc.AppendNursingNote(ctx, nurse, h.ID, "vitals stable")
	require.NoError(t, err)
	_, err = svc.AppendNursingNote(ctx, doctor, h.ID, "adjust dosage")
	require.NoError(t, err)

	// A plain update cannot rewrite the note trail.
	update, err := ms.GetHospitalisation(ctx, h.ID)
	require.NoError(t, err)
	update.NursingNotes = nil
	update.MedicalNotes = "updated"
	_, err = svc.UpdateHospitalisation(ctx, doctor, update)
	require.NoError(t, err)

	stored, err := ms.GetHospitalisation(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, stored.NursingNotes, 2)
	assert.Equal(t, nurse.ID, stored.NursingNotes[0].AuthorID)
	assert.Equal(t, types.RoleNurse, stored.NursingNotes[0].AuthorRole)
	assert.Equal(t, "vitals stable", stored.NursingNotes[0].Text)
	assert.Equal(t, "adjust dosage", stored.NursingNotes[1].Text)
}

func TestNursingNote_EmptyTextRejected(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	h, err := svc.CreateHospitalisation(ctx, doctor, &types.Hospitalisation{
		PatientID: "p1", DoctorID: doctor.ID, CentreID: "c1",
		Service: "medicine", AdmissionReason: "observation",
	})
	require.NoError(t, err)

	_, err = svc.AppendNursingNote(ctx, nurse, h.ID, "")
	assert.True(t, types.IsValidation(err))
}

func TestEmergency_OrientationNeedsMedicalRole(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	e, err := svc.CreateEmergency(ctx, nurse, &types.Emergency{
		PatientID: "p1", CentreID: "c1", Reason: "trauma", TriageLevel: types.TriageSevere,
	})
	require.NoError(t, err)

	admit := types.OrientationAdmit
	e.Orientation = &admit
	_, err = svc.UpdateEmergency(ctx, nurse, e)
	assert.True(t, types.IsPermissionDenied(err))

	medAdmin := types.Actor{ID: "ma", Role: types.RoleMedicalAdmin}
	_, err = svc.UpdateEmergency(ctx, medAdmin, e)
	require.NoError(t, err)
}

func validAppointment(start time.Time) *types.Appointment {
	return &types.Appointment{
		PatientID:       "p1",
		DoctorID:        "doc1",
		CentreID:        "c1",
		Start:           start,
		DurationMinutes: 30,
	}
}

func TestCreateAppointment_DurationRejected(t *testing.T) {
	svc, _, _ := setup(t)

	a := validAppointment(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	a.DurationMinutes = 10
	_, err := svc.CreateAppointment(context.Background(), secretary, a)

	assert.True(t, types.IsValidation(err))
	assert.False(t, types.IsSchedulingConflict(err))
}

func TestCreateAppointment_ConflictCarriesIDs(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	first, err := svc.CreateAppointment(ctx, secretary, validAppointment(start))
	require.NoError(t, err)

	_, err = svc.CreateAppointment(ctx, secretary, validAppointment(start.Add(15*time.Minute)))
	require.True(t, types.IsSchedulingConflict(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, []string{first.ID}, ce.ConflictIDs)
}

func TestCreateAppointment_ConcurrentDoubleBooking(t *testing.T) {
	svc, ms, _ := setup(t)
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateAppointment(context.Background(), secretary, validAppointment(start))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
		} else if types.IsSchedulingConflict(err) {
			conflicts++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)

	apts, err := ms.AppointmentsForDoctor(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Len(t, apts, 1)
}

func TestUpdateAppointment_TerminalAndBackwards(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	a, err := svc.CreateAppointment(ctx, secretary, validAppointment(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	a.Status = types.AppointmentConfirmed
	_, err = svc.UpdateAppointment(ctx, secretary, a)
	require.NoError(t, err)

	a.Status = types.AppointmentPlanned
	_, err = svc.UpdateAppointment(ctx, secretary, a)
	assert.True(t, types.IsValidation(err))

	a.Status = types.AppointmentDone
	_, err = svc.UpdateAppointment(ctx, secretary, a)
	require.NoError(t, err)

	a.Status = types.AppointmentCancelled
	_, err = svc.UpdateAppointment(ctx, secretary, a)
	assert.True(t, types.IsValidation(err))
}

func TestUpdateAppointment_CancelFreesSlot(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	a, err := svc.CreateAppointment(ctx, secretary, validAppointment(start))
	require.NoError(t, err)

	a.Status = types.AppointmentCancelled
	_, err = svc.UpdateAppointment(ctx, secretary, a)
	require.NoError(t, err)

	_, err = svc.CreateAppointment(ctx, secretary, validAppointment(start))
	require.NoError(t, err)
}

func TestProfile_NurseWithoutCentresRejected(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.CreateProfile(context.Background(), admin, &types.Profile{
		Username: "nurse.k", Role: types.RoleNurse,
	})
	assert.True(t, types.IsValidation(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeCentresRequired, ce.Code)
}

func TestCentre_AdministrativeRolesOnly(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.CreateCentre(ctx, secretary, &types.Centre{
		Name: "Centre Sud", Address: "Lubumbashi",
	})
	assert.True(t, types.IsPermissionDenied(err))

	_, err = svc.CreateCentre(ctx, doctor, &types.Centre{
		Name: "Centre Sud", Address: "Lubumbashi",
	})
	assert.True(t, types.IsPermissionDenied(err))

	created, err := svc.CreateCentre(ctx, admin, &types.Centre{
		Name: "Centre Sud", Address: "Lubumbashi",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestReferenceData_MedicalAdminMayMutate(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	medAdmin := types.Actor{ID: "ma", Role: types.RoleMedicalAdmin}

	centre, err := svc.CreateCentre(ctx, medAdmin, &types.Centre{
		Name: "Centre Est", Address: "Goma",
	})
	require.NoError(t, err)

	centre.Address = "Goma, Avenue du Lac"
	_, err = svc.UpdateCentre(ctx, medAdmin, centre)
	require.NoError(t, err)

	profile, err := svc.CreateProfile(ctx, medAdmin, &types.Profile{
		Username: "nurse.k", Role: types.RoleNurse, CentreIDs: []string{centre.ID},
	})
	require.NoError(t, err)

	profile.CentreIDs = append(profile.CentreIDs, "c1")
	_, err = svc.UpdateProfile(ctx, medAdmin, profile)
	require.NoError(t, err)
}

func TestCreateConsultation_DoctorReferenceMustBeMedical(t *testing.T) {
	svc, ms, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, ms.CreateProfile(ctx, &types.Profile{
		ID: "sec-1", Username: "sec.one", Role: types.RoleSecretary, CentreIDs: []string{"c1"},
	}))

	_, err := svc.CreateConsultation(ctx, admin, &types.Consultation{
		PatientID: "p1", DoctorID: "sec-1", CentreID: "c1", Reason: "fever",
	})
	require.True(t, types.IsValidation(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeInvalidDoctor, ce.Code)

	_, err = svc.CreateConsultation(ctx, admin, &types.Consultation{
		PatientID: "p1", DoctorID: "ghost", CentreID: "c1", Reason: "fever",
	})
	assert.True(t, types.IsValidation(err))
}

func TestCreateAppointment_DoctorReferenceValidated(t *testing.T) {
	svc, ms, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, ms.CreateProfile(ctx, &types.Profile{
		ID: "ma-1", Username: "ma.one", Role: types.RoleMedicalAdmin,
	}))

	a := validAppointment(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	a.DoctorID = "ma-1"
	_, err := svc.CreateAppointment(ctx, secretary, a)
	require.NoError(t, err)

	b := validAppointment(time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	b.DoctorID = "ghost"
	_, err = svc.CreateAppointment(ctx, secretary, b)
	require.True(t, types.IsValidation(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, types.ErrCodeInvalidDoctor, ce.Code)
}
