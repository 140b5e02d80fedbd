package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

func seedPatients(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()

	patients := []*types.Patient{
		{ID: "pat-001", FirstName: "Alice", LastName: "Kanza", Gender: types.GenderFemale, Phone: "0789000000", CentreID: "c1"},
		{ID: "pat-002", FirstName: "Benoit", LastName: "Mbala", Gender: types.GenderMale, Phone: "+243781234567", CentreID: "c1"},
		{ID: "pat-004", FirstName: "David", LastName: "Ngoy", Gender: types.GenderMale, Phone: "+243812345678", CentreID: "c2"},
		{ID: "pat-078", FirstName: "Chantal", LastName: "Ilunga", Gender: types.GenderFemale, CentreID: "c2"},
	}
	for _, p := range patients {
		require.NoError(t, s.CreatePatient(ctx, p))
	}
	return s
}

func list(t *testing.T, s *MemoryStore, spec *types.QuerySpec) ([]types.Summary, int) {
	t.Helper()
	items, total, err := s.List(context.Background(), spec)
	require.NoError(t, err)
	return items, total
}

func TestList_FreeTextMatchesPhoneAndPartialID(t *testing.T) {
	s := seedPatients(t)

	search := types.Or(
		types.Contains("first_name", "078"),
		types.Contains("postname", "078"),
		types.Contains("last_name", "078"),
		types.Contains("phone", "078"),
		types.Contains("id", "078"),
	)
	items, total := list(t, s, &types.QuerySpec{
		Entity: types.EntityPatient, Predicate: search, Page: 1, PageSize: 10,
	})

	// "078" hits the local number 0789000000, the international number
	// +243781234567 through its local form 0781234567, and the partial
	// record id. +243812345678 stays out.
	assert.Equal(t, 3, total)
	ids := map[string]bool{}
	for _, it := range items {
		ids[it.ID] = true
	}
	assert.Equal(t, map[string]bool{"pat-001": true, "pat-002": true, "pat-078": true}, ids)
}

func TestList_InternationalPhoneMatchesLocalQuery(t *testing.T) {
	s := seedPatients(t)

	items, total := list(t, s, &types.QuerySpec{
		Entity:    types.EntityPatient,
		Predicate: types.Contains("phone", "0781234"),
		Page:      1, PageSize: 10,
	})
	require.Equal(t, 1, total)
	assert.Equal(t, "pat-002", items[0].ID)
}

func TestList_ContainsIsCaseInsensitive(t *testing.T) {
	s := seedPatients(t)

	_, total := list(t, s, &types.QuerySpec{
		Entity:    types.EntityPatient,
		Predicate: types.Contains("last_name", "kAnZa"),
		Page:      1, PageSize: 10,
	})
	assert.Equal(t, 1, total)
}

func TestList_PatientOrdering(t *testing.T) {
	s := seedPatients(t)

	items, _ := list(t, s, &types.QuerySpec{
		Entity:    types.EntityPatient,
		Predicate: types.True(),
		OrderBy:   []types.Ordering{{Field: "last_name"}, {Field: "first_name"}},
		Page:      1, PageSize: 10,
	})

	require.Len(t, items, 4)
	assert.Equal(t, "pat-078", items[0].ID) // Ilunga
	assert.Equal(t, "pat-001", items[1].ID) // Kanza
	assert.Equal(t, "pat-002", items[2].ID) // Mbala
	assert.Equal(t, "pat-004", items[3].ID) // Ngoy
}

// Ordering compares (last_name, first_name) on the record itself; a postname
// in the display label must not shift a patient's position.
func TestList_PatientOrderingIgnoresPostname(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, p := range []*types.Patient{
		{ID: "p2", FirstName: "Bob", Postname: "ALPHA", LastName: "Kasa", Gender: types.GenderMale},
		{ID: "p1", FirstName: "Anna-Zola", LastName: "Kasa", Gender: types.GenderFemale},
	} {
		require.NoError(t, s.CreatePatient(ctx, p))
	}

	items, _ := list(t, s, &types.QuerySpec{
		Entity:    types.EntityPatient,
		Predicate: types.True(),
		OrderBy:   []types.Ordering{{Field: "last_name"}, {Field: "first_name"}},
		Page:      1, PageSize: 10,
	})

	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ID)
	assert.Equal(t, "p2", items[1].ID)
}

func TestList_IdenticalNamesBreakTiesByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"pb", "pa", "pc"} {
		require.NoError(t, s.CreatePatient(ctx, &types.Patient{
			ID: id, FirstName: "Jean", LastName: "Kasa", Gender: types.GenderMale,
		}))
	}

	items, _ := list(t, s, &types.QuerySpec{
		Entity:    types.EntityPatient,
		Predicate: types.True(),
		OrderBy:   []types.Ordering{{Field: "last_name"}, {Field: "first_name"}},
		Page:      1, PageSize: 10,
	})

	require.Len(t, items, 3)
	assert.Equal(t, "pa", items[0].ID)
	assert.Equal(t, "pb", items[1].ID)
	assert.Equal(t, "pc", items[2].ID)
}

func TestList_DateDescendingWithIDTieBreaker(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	day := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	for _, c := range []*types.Consultation{
		{ID: "co-b", PatientID: "p1", DoctorID: "d1", CentreID: "c1", Date: day, Status: types.ConsultationPending, Reason: "x"},
		{ID: "co-a", PatientID: "p1", DoctorID: "d1", CentreID: "c1", Date: day, Status: types.ConsultationPending, Reason: "y"},
		{ID: "co-c", PatientID: "p1", DoctorID: "d1", CentreID: "c1", Date: day.Add(time.Hour), Status: types.ConsultationPending, Reason: "z"},
	} {
		require.NoError(t, s.CreateConsultation(ctx, c))
	}

	items, _ := list(t, s, &types.QuerySpec{
		Entity:    types.EntityConsultation,
		Predicate: types.True(),
		OrderBy:   []types.Ordering{{Field: "date", Desc: true}, {Field: "id"}},
		Page:      1, PageSize: 10,
	})

	require.Len(t, items, 3)
	assert.Equal(t, "co-c", items[0].ID)
	assert.Equal(t, "co-a", items[1].ID)
	assert.Equal(t, "co-b", items[2].ID)
}

func TestList_Pagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.CreatePatient(ctx, &types.Patient{
			ID:        string(rune('a'+i/5)) + string(rune('a'+i%5)),
			FirstName: "F", LastName: "L", Gender: types.GenderMale,
		}))
	}

	spec := &types.QuerySpec{
		Entity: types.EntityPatient, Predicate: types.True(),
		OrderBy: []types.Ordering{{Field: "id"}}, Page: 3, PageSize: 10,
	}
	items, total := list(t, s, spec)
	assert.Equal(t, 25, total)
	assert.Len(t, items, 5)

	spec.Page = 4
	items, total = list(t, s, spec)
	assert.Equal(t, 25, total)
	assert.Empty(t, items)
}

func TestList_EncounterWith(t *testing.T) {
	ctx := context.Background()
	s := seedPatients(t)

	require.NoError(t, s.CreateConsultation(ctx, &types.Consultation{
		ID: "co1", PatientID: "pat-001", DoctorID: "doc1", CentreID: "c1",
		Date: time.Now(), Status: types.ConsultationDone, Reason: "fever",
	}))
	discharge := time.Now()
	require.NoError(t, s.CreateHospitalisation(ctx, &types.Hospitalisation{
		ID: "h1", PatientID: "pat-078", DoctorID: "doc1", CentreID: "c2",
		AdmissionDate: time.Now().AddDate(0, 0, -3), DischargeDate: &discharge,
		Service: "cardio", AdmissionReason: "chest pain",
	}))

	items, total := list(t, s, &types.QuerySpec{
		Entity: types.EntityPatient, Predicate: types.EncounterWith("doc1"),
		Page: 1, PageSize: 10,
	})

	// Encounters of any kind qualify, including ended ones; pat-002 never
	// saw doc1.
	assert.Equal(t, 2, total)
	ids := map[string]bool{}
	for _, it := range items {
		ids[it.ID] = true
	}
	assert.Equal(t, map[string]bool{"pat-001": true, "pat-078": true}, ids)
}

func TestList_NullChecks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	discharge := time.Now()
	require.NoError(t, s.CreateHospitalisation(ctx, &types.Hospitalisation{
		ID: "h-active", PatientID: "p1", DoctorID: "d1", CentreID: "c1",
		AdmissionDate: time.Now(), Service: "medicine", AdmissionReason: "obs",
	}))
	require.NoError(t, s.CreateHospitalisation(ctx, &types.Hospitalisation{
		ID: "h-done", PatientID: "p2", DoctorID: "d1", CentreID: "c1",
		AdmissionDate: time.Now().AddDate(0, 0, -7), DischargeDate: &discharge,
		Service: "medicine", AdmissionReason: "obs",
	}))

	items, total := list(t, s, &types.QuerySpec{
		Entity: types.EntityHospitalisation, Predicate: types.IsNull("discharge_date"),
		Page: 1, PageSize: 10,
	})
	assert.Equal(t, 1, total)
	assert.Equal(t, "h-active", items[0].ID)
	assert.Equal(t, "ACTIVE", items[0].Status)

	items, total = list(t, s, &types.QuerySpec{
		Entity: types.EntityHospitalisation, Predicate: types.NotNull("discharge_date"),
		Page: 1, PageSize: 10,
	})
	assert.Equal(t, 1, total)
	assert.Equal(t, "h-done", items[0].ID)
	assert.Equal(t, "DISCHARGED", items[0].Status)
}

func TestList_GteOnTimes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, s.CreateAppointment(ctx, &types.Appointment{
			ID: id, PatientID: "p1", DoctorID: "d1", CentreID: "c1",
			Start: base.Add(time.Duration(i) * time.Hour), DurationMinutes: 30,
			Status: types.AppointmentPlanned,
		}))
	}

	_, total := list(t, s, &types.QuerySpec{
		Entity:    types.EntityAppointment,
		Predicate: types.Gte("start_time", base.Add(time.Hour).Format(time.RFC3339)),
		Page:      1, PageSize: 10,
	})
	assert.Equal(t, 2, total)
}

func TestGetPatient_CopiesNotAliases(t *testing.T) {
	ctx := context.Background()
	s := seedPatients(t)

	p1, err := s.GetPatient(ctx, "pat-001")
	require.NoError(t, err)
	p1.LastName = "Mutated"

	p2, err := s.GetPatient(ctx, "pat-001")
	require.NoError(t, err)
	assert.Equal(t, "Kanza", p2.LastName)
}

func TestUpdate_MissingRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.UpdatePatient(ctx, &types.Patient{ID: "ghost"})
	assert.True(t, types.IsNotFound(err))

	_, err = s.GetAppointment(ctx, "ghost")
	assert.True(t, types.IsNotFound(err))
}

func TestAppointmentsForDoctor_SortedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateAppointment(ctx, &types.Appointment{
		ID: "late", PatientID: "p1", DoctorID: "d1", CentreID: "c1",
		Start: base.Add(2 * time.Hour), DurationMinutes: 30, Status: types.AppointmentPlanned,
	}))
	require.NoError(t, s.CreateAppointment(ctx, &types.Appointment{
		ID: "early", PatientID: "p2", DoctorID: "d1", CentreID: "c1",
		Start: base, DurationMinutes: 30, Status: types.AppointmentPlanned,
	}))
	require.NoError(t, s.CreateAppointment(ctx, &types.Appointment{
		ID: "other", PatientID: "p3", DoctorID: "d2", CentreID: "c1",
		Start: base, DurationMinutes: 30, Status: types.AppointmentPlanned,
	}))

	apts, err := s.AppointmentsForDoctor(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, apts, 2)
	assert.Equal(t, "early", apts[0].ID)
	assert.Equal(t, "late", apts[1].ID)
}
