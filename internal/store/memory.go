package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// MemoryStore is the map-backed RecordStore. It is the reference evaluator
// for predicate trees and doubles as the test double for every service that
// depends on storage. Safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	centres          map[string]*types.Centre
	profiles         map[string]*types.Profile
	patients         map[string]*types.Patient
	consultations    map[string]*types.Consultation
	hospitalisations map[string]*types.Hospitalisation
	emergencies      map[string]*types.Emergency
	appointments     map[string]*types.Appointment
}

// NewMemoryStore creates an empty in-memory record store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		centres:          make(map[string]*types.Centre),
		profiles:         make(map[string]*types.Profile),
		patients:         make(map[string]*types.Patient),
		consultations:    make(map[string]*types.Consultation),
		hospitalisations: make(map[string]*types.Hospitalisation),
		emergencies:      make(map[string]*types.Emergency),
		appointments:     make(map[string]*types.Appointment),
	}
}

// sortTimeLayout is fixed-width UTC, so formatted times order
// lexicographically the same way the instants order.
const sortTimeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sortTimeLayout)
}

// List evaluates the query spec against the live record set: filter by
// predicate, sort by the spec's ordering, then slice out the requested page.
func (s *MemoryStore) List(ctx context.Context, spec *types.QuerySpec) ([]types.Summary, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []interface{}
	for _, rec := range s.recordsOf(spec.Entity) {
		if s.eval(spec.Predicate, spec.Entity, rec) {
			matched = append(matched, rec)
		}
	}

	s.sortRecords(spec.Entity, matched, spec.OrderBy)

	total := len(matched)
	start := spec.Offset()
	if start >= total {
		return []types.Summary{}, total, nil
	}
	end := start + spec.PageSize
	if end > total {
		end = total
	}
	page := make([]types.Summary, 0, end-start)
	for _, rec := range matched[start:end] {
		page = append(page, s.summarize(spec.Entity, rec))
	}
	return page, total, nil
}

// recordsOf returns the raw record values for an entity type. Caller holds
// the read lock.
func (s *MemoryStore) recordsOf(entity types.EntityType) []interface{} {
	var out []interface{}
	switch entity {
	case types.EntityCentre:
		for _, r := range s.centres {
			out = append(out, r)
		}
	case types.EntityProfile:
		for _, r := range s.profiles {
			out = append(out, r)
		}
	case types.EntityPatient:
		for _, r := range s.patients {
			out = append(out, r)
		}
	case types.EntityConsultation:
		for _, r := range s.consultations {
			out = append(out, r)
		}
	case types.EntityHospitalisation:
		for _, r := range s.hospitalisations {
			out = append(out, r)
		}
	case types.EntityEmergency:
		for _, r := range s.emergencies {
			out = append(out, r)
		}
	case types.EntityAppointment:
		for _, r := range s.appointments {
			out = append(out, r)
		}
	}
	return out
}

// fieldFn resolves a named field of a record to its comparable string form.
// The second return is false when the field is null for this record.
type fieldFn func(rec interface{}, field string) (string, bool)

func (s *MemoryStore) fieldOf(entity types.EntityType) fieldFn {
	switch entity {
	case types.EntityCentre:
		return centreField
	case types.EntityProfile:
		return profileField
	case types.EntityPatient:
		return patientField
	case types.EntityConsultation:
		return consultationField
	case types.EntityHospitalisation:
		return hospitalisationField
	case types.EntityEmergency:
		return emergencyField
	case types.EntityAppointment:
		return appointmentField
	}
	return func(interface{}, string) (string, bool) { return "", false }
}

func centreField(rec interface{}, field string) (string, bool) {
	c := rec.(*types.Centre)
	switch field {
	case "id":
		return c.ID, true
	case "name":
		return c.Name, true
	case "address":
		return c.Address, true
	case "phone":
		return c.Phone, c.Phone != ""
	}
	return "", false
}

func profileField(rec interface{}, field string) (string, bool) {
	p := rec.(*types.Profile)
	switch field {
	case "id":
		return p.ID, true
	case "username":
		return p.Username, true
	case "role":
		return string(p.Role), true
	case "created_at":
		return formatTime(p.CreatedAt), true
	}
	return "", false
}

func patientField(rec interface{}, field string) (string, bool) {
	p := rec.(*types.Patient)
	switch field {
	case "id":
		return p.ID, true
	case "first_name":
		return p.FirstName, true
	case "postname":
		return p.Postname, p.Postname != ""
	case "last_name":
		return p.LastName, true
	case "phone":
		return p.Phone, p.Phone != ""
	case "gender":
		return string(p.Gender), true
	case "is_subscriber":
		return boolString(p.IsSubscriber), true
	case "centre_id":
		return p.CentreID, p.CentreID != ""
	case "created_at":
		return formatTime(p.CreatedAt), true
	}
	return "", false
}

func consultationField(rec interface{}, field string) (string, bool) {
	c := rec.(*types.Consultation)
	switch field {
	case "id":
		return c.ID, true
	case "patient_id":
		return c.PatientID, true
	case "doctor_id":
		return c.DoctorID, true
	case "centre_id":
		return c.CentreID, true
	case "date":
		return formatTime(c.Date), true
	case "status":
		return string(c.Status), true
	case "reason":
		return c.Reason, true
	}
	return "", false
}

func hospitalisationField(rec interface{}, field string) (string, bool) {
	h := rec.(*types.Hospitalisation)
	switch field {
	case "id":
		return h.ID, true
	case "patient_id":
		return h.PatientID, true
	case "doctor_id":
		return h.DoctorID, true
	case "centre_id":
		return h.CentreID, true
	case "admission_date":
		return formatTime(h.AdmissionDate), true
	case "discharge_date":
		if h.DischargeDate == nil {
			return "", false
		}
		return formatTime(*h.DischargeDate), true
	case "service":
		return h.Service, true
	case "room":
		return h.Room, h.Room != ""
	}
	return "", false
}

func emergencyField(rec interface{}, field string) (string, bool) {
	e := rec.(*types.Emergency)
	switch field {
	case "id":
		return e.ID, true
	case "patient_id":
		return e.PatientID, true
	case "doctor_id":
		return e.DoctorID, e.DoctorID != ""
	case "centre_id":
		return e.CentreID, true
	case "admission_time":
		return formatTime(e.AdmissionTime), true
	case "reason":
		return e.Reason, true
	case "triage_level":
		return string(e.TriageLevel), true
	case "orientation":
		if e.Orientation == nil {
			return "", false
		}
		return string(*e.Orientation), true
	}
	return "", false
}

func appointmentField(rec interface{}, field string) (string, bool) {
	a := rec.(*types.Appointment)
	switch field {
	case "id":
		return a.ID, true
	case "patient_id":
		return a.PatientID, true
	case "doctor_id":
		return a.DoctorID, true
	case "centre_id":
		return a.CentreID, true
	case "start_time":
		return formatTime(a.Start), true
	case "status":
		return string(a.Status), true
	case "reason":
		return a.Reason, a.Reason != ""
	}
	return "", false
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// eval walks the predicate tree over one record. Caller holds the read lock.
func (s *MemoryStore) eval(p *types.Predicate, entity types.EntityType, rec interface{}) bool {
	if p == nil {
		return true
	}
	field := s.fieldOf(entity)

	switch p.Op {
	case types.OpTrue:
		return true
	case types.OpFalse:
		return false

	case types.OpAnd:
		for _, sub := range p.Sub {
			if !s.eval(sub, entity, rec) {
				return false
			}
		}
		return true

	case types.OpOr:
		for _, sub := range p.Sub {
			if s.eval(sub, entity, rec) {
				return true
			}
		}
		return false

	case types.OpEquals:
		v, ok := field(rec, p.Field)
		return ok && v == p.Value

	case types.OpContains:
		v, ok := field(rec, p.Field)
		if !ok {
			return false
		}
		q := strings.ToLower(p.Value)
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
		// Phone numbers match under either notation: a search for the local
		// prefix must find the +<cc> form of the same number and vice versa.
		return p.Field == "phone" && strings.Contains(localPhone(v), q)

	case types.OpIn:
		v, ok := field(rec, p.Field)
		if !ok {
			return false
		}
		for _, want := range p.Values {
			if v == want {
				return true
			}
		}
		return false

	case types.OpIsNull:
		_, ok := field(rec, p.Field)
		return !ok

	case types.OpNotNull:
		_, ok := field(rec, p.Field)
		return ok

	case types.OpGte:
		v, ok := field(rec, p.Field)
		if !ok {
			return false
		}
		return compareGte(v, p.Value)

	case types.OpEncounterWith:
		patient, ok := rec.(*types.Patient)
		if !ok {
			return false
		}
		return s.hasEncounter(patient.ID, p.Value)
	}
	return false
}

// localPhone rewrites an international +<cc>XXXXXXXXX number to its local
// 0XXXXXXXXX form. Local numbers pass through unchanged.
func localPhone(phone string) string {
	if strings.HasPrefix(phone, "+") && len(phone) > 9 {
		return "0" + phone[len(phone)-9:]
	}
	return phone
}

// compareGte compares two values as instants when both parse as times,
// falling back to string order otherwise.
func compareGte(have, want string) bool {
	ht, herr := parseAnyTime(have)
	wt, werr := parseAnyTime(want)
	if herr == nil && werr == nil {
		return !ht.Before(wt)
	}
	return have >= want
}

func parseAnyTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(sortTimeLayout, v)
}

// hasEncounter reports whether the patient has at least one consultation,
// hospitalisation or emergency with the doctor. Caller holds the read lock.
func (s *MemoryStore) hasEncounter(patientID, doctorID string) bool {
	for _, c := range s.consultations {
		if c.PatientID == patientID && c.DoctorID == doctorID {
			return true
		}
	}
	for _, h := range s.hospitalisations {
		if h.PatientID == patientID && h.DoctorID == doctorID {
			return true
		}
	}
	for _, e := range s.emergencies {
		if e.PatientID == patientID && e.DoctorID == doctorID {
			return true
		}
	}
	return false
}

// summarize projects a record into its listing row.
func (s *MemoryStore) summarize(entity types.EntityType, rec interface{}) types.Summary {
	switch entity {
	case types.EntityCentre:
		c := rec.(*types.Centre)
		return types.Summary{ID: c.ID, Entity: entity, Label: c.Name}
	case types.EntityProfile:
		p := rec.(*types.Profile)
		return types.Summary{ID: p.ID, Entity: entity, Label: p.Username, Date: p.CreatedAt, Status: string(p.Role)}
	case types.EntityPatient:
		p := rec.(*types.Patient)
		return types.Summary{ID: p.ID, Entity: entity, Label: p.FullName(), Date: p.CreatedAt, CentreID: p.CentreID}
	case types.EntityConsultation:
		c := rec.(*types.Consultation)
		return types.Summary{ID: c.ID, Entity: entity, Label: c.Reason, Date: c.Date, Status: string(c.Status), CentreID: c.CentreID}
	case types.EntityHospitalisation:
		h := rec.(*types.Hospitalisation)
		status := "ACTIVE"
		if !h.IsActive() {
			status = "DISCHARGED"
		}
		return types.Summary{ID: h.ID, Entity: entity, Label: h.Service, Date: h.AdmissionDate, Status: status, CentreID: h.CentreID}
	case types.EntityEmergency:
		e := rec.(*types.Emergency)
		return types.Summary{ID: e.ID, Entity: entity, Label: e.Reason, Date: e.AdmissionTime, Status: string(e.TriageLevel), CentreID: e.CentreID}
	case types.EntityAppointment:
		a := rec.(*types.Appointment)
		return types.Summary{ID: a.ID, Entity: entity, Label: a.Reason, Date: a.Start, Status: string(a.Status), CentreID: a.CentreID}
	}
	return types.Summary{}
}

// sortRecords orders matched records by the spec's ordering fields, read
// straight off the record the way the SQL store orders by columns. Ties fall
// back to id so page contents are deterministic. Caller holds the read lock.
func (s *MemoryStore) sortRecords(entity types.EntityType, recs []interface{}, keys []types.Ordering) {
	field := s.fieldOf(entity)
	sort.SliceStable(recs, func(i, j int) bool {
		for _, k := range keys {
			a, _ := field(recs[i], k.Field)
			b, _ := field(recs[j], k.Field)
			la, lb := strings.ToLower(a), strings.ToLower(b)
			if la == lb {
				continue
			}
			if k.Desc {
				return la > lb
			}
			return la < lb
		}
		ai, _ := field(recs[i], "id")
		bi, _ := field(recs[j], "id")
		return ai < bi
	})
}

func (s *MemoryStore) GetCentre(ctx context.Context, id string) (*types.Centre, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.centres[id]
	if !ok {
		return nil, types.NewNotFound(types.EntityCentre, id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) CreateCentre(ctx context.Context, c *types.Centre) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.centres[c.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateCentre(ctx context.Context, c *types.Centre) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.centres[c.ID]; !ok {
		return types.NewNotFound(types.EntityCentre, c.ID)
	}
	cp := *c
	s.centres[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, id string) (*types.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, types.NewNotFound(types.EntityProfile, id)
	}
	cp := *p
	cp.CentreIDs = append([]string(nil), p.CentreIDs...)
	return &cp, nil
}

func (s *MemoryStore) CreateProfile(ctx context.Context, p *types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.CentreIDs = append([]string(nil), p.CentreIDs...)
	s.profiles[p.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, p *types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; !ok {
		return types.NewNotFound(types.EntityProfile, p.ID)
	}
	cp := *p
	cp.CentreIDs = append([]string(nil), p.CentreIDs...)
	s.profiles[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPatient(ctx context.Context, id string) (*types.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, types.NewNotFound(types.EntityPatient, id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) CreatePatient(ctx context.Context, p *types.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdatePatient(ctx context.Context, p *types.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.ID]; !ok {
		return types.NewNotFound(types.EntityPatient, p.ID)
	}
	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

func (s *MemoryStore) DeletePatient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[id]; !ok {
		return types.NewNotFound(types.EntityPatient, id)
	}
	delete(s.patients, id)
	return nil
}

func (s *MemoryStore) GetConsultation(ctx context.Context, id string) (*types.Consultation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consultations[id]
	if !ok {
		return nil, types.NewNotFound(types.EntityConsultation, id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) CreateConsultation(ctx context.Context, c *types.Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.consultations[c.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateConsultation(ctx context.Context, c *types.Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consultations[c.ID]; !ok {
		return types.NewNotFound(types.EntityConsultation, c.ID)
	}
	cp := *c
	s.consultations[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetHospitalisation(ctx context.Context, id string) (*types.Hospitalisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hospitalisations[id]
	if !ok {
		return nil, types.NewNotFound(types.EntityHospitalisation, id)
	}
	return copyHospitalisation(h), nil
}

func (s *MemoryStore) CreateHospitalisation(ctx context.Context, h *types.Hospitalisation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hospitalisations[h.ID] = copyHospitalisation(h)
	return nil
}

func (s *MemoryStore) UpdateHospitalisation(ctx context.Context, h *types.Hospitalisation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hospitalisations[h.ID]; !ok {
		return types.NewNotFound(types.EntityHospitalisation, h.ID)
	}
	s.hospitalisations[h.ID] = copyHospitalisation(h)
	return nil
}

func copyHospitalisation(h *types.Hospitalisation) *types.Hospitalisation {
	cp := *h
	cp.NursingNotes = append([]types.NursingNote(nil), h.NursingNotes...)
	cp.Interventions = append([]string(nil), h.Interventions...)
	if h.DischargeDate != nil {
		d := *h.DischargeDate
		cp.DischargeDate = &d
	}
	return &cp
}

func (s *MemoryStore) GetEmergency(ctx context.Context, id string) (*types.Emergency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.emergencies[id]
	if !ok {
		return nil, types.NewNotFound(types.EntityEmergency, id)
	}
	return copyEmergency(e), nil
}

func (s *MemoryStore) CreateEmergency(ctx context.Context, e *types.Emergency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergencies[e.ID] = copyEmergency(e)
	return nil
}

func (s *MemoryStore) UpdateEmergency(ctx context.Context, e *types.Emergency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emergencies[e.ID]; !ok {
		return types.NewNotFound(types.EntityEmergency, e.ID)
	}
	s.emergencies[e.ID] = copyEmergency(e)
	return nil
}

func copyEmergency(e *types.Emergency) *types.Emergency {
	cp := *e
	if e.Orientation != nil {
		o := *e.Orientation
		cp.Orientation = &o
	}
	return &cp
}

func (s *MemoryStore) GetAppointment(ctx context.Context, id string) (*types.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, types.NewNotFound(types.EntityAppointment, id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) CreateAppointment(ctx context.Context, a *types.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.appointments[a.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateAppointment(ctx context.Context, a *types.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[a.ID]; !ok {
		return types.NewNotFound(types.EntityAppointment, a.ID)
	}
	cp := *a
	s.appointments[a.ID] = &cp
	return nil
}

func (s *MemoryStore) AppointmentsForDoctor(ctx context.Context, doctorID string) ([]*types.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Appointment
	for _, a := range s.appointments {
		if a.DoctorID == doctorID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
