package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/database"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// PostgresStore is the production RecordStore. Predicate trees compile to
// parameterized WHERE clauses; the derived patient-of-doctor membership
// compiles to EXISTS subqueries over the encounter tables.
type PostgresStore struct {
	db     *database.DB
	logger *logger.Logger
}

// NewPostgresStore creates a PostgreSQL-backed record store
func NewPostgresStore(db *database.DB, log *logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: log}
}

// tables maps entity types to their backing tables.
var tables = map[types.EntityType]string{
	types.EntityCentre:          "centres",
	types.EntityProfile:         "profiles",
	types.EntityPatient:         "patients",
	types.EntityConsultation:    "consultations",
	types.EntityHospitalisation: "hospitalisations",
	types.EntityEmergency:       "emergencies",
	types.EntityAppointment:     "appointments",
}

// queryColumns whitelists the columns a predicate or ordering may name per
// entity. The query builder only emits these, but the compiler re-checks so
// a malformed spec can never reach SQL as raw text.
var queryColumns = map[types.EntityType]map[string]bool{
	types.EntityCentre: {
		"id": true, "name": true, "address": true, "phone": true,
	},
	types.EntityProfile: {
		"id": true, "username": true, "role": true, "created_at": true,
	},
	types.EntityPatient: {
		"id": true, "first_name": true, "postname": true, "last_name": true,
		"phone": true, "gender": true, "is_subscriber": true, "centre_id": true,
		"created_at": true,
	},
	types.EntityConsultation: {
		"id": true, "patient_id": true, "doctor_id": true, "centre_id": true,
		"date": true, "status": true, "reason": true,
	},
	types.EntityHospitalisation: {
		"id": true, "patient_id": true, "doctor_id": true, "centre_id": true,
		"admission_date": true, "discharge_date": true, "service": true, "room": true,
	},
	types.EntityEmergency: {
		"id": true, "patient_id": true, "doctor_id": true, "centre_id": true,
		"admission_time": true, "reason": true, "triage_level": true, "orientation": true,
	},
	types.EntityAppointment: {
		"id": true, "patient_id": true, "doctor_id": true, "centre_id": true,
		"start_time": true, "status": true, "reason": true,
	},
}

// sqlCompiler accumulates the parameterized WHERE clause of one query.
type sqlCompiler struct {
	entity types.EntityType
	args   []interface{}
}

func (c *sqlCompiler) placeholder(v interface{}) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

func (c *sqlCompiler) column(field string) (string, error) {
	if !queryColumns[c.entity][field] {
		return "", types.NewInternalError(
			fmt.Sprintf("field %q is not queryable on %s", field, c.entity), nil)
	}
	return field, nil
}

// compile renders a predicate node to SQL.
func (c *sqlCompiler) compile(p *types.Predicate) (string, error) {
	if p == nil {
		return "TRUE", nil
	}

	switch p.Op {
	case types.OpTrue:
		return "TRUE", nil
	case types.OpFalse:
		return "FALSE", nil

	case types.OpAnd, types.OpOr:
		joiner := " AND "
		if p.Op == types.OpOr {
			joiner = " OR "
		}
		parts := make([]string, 0, len(p.Sub))
		for _, sub := range p.Sub {
			s, err := c.compile(sub)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, joiner) + ")", nil

	case types.OpEquals:
		col, err := c.column(p.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s::text = %s", col, c.placeholder(p.Value)), nil

	case types.OpContains:
		col, err := c.column(p.Field)
		if err != nil {
			return "", err
		}
		pat := c.placeholder("%" + escapeLike(p.Value) + "%")
		if p.Field == "phone" {
			// Match either notation of the same number: RIGHT(...,9) keeps
			// the subscriber digits whether the stored form is +<cc>... or
			// 0..., and the prepended 0 rebuilds the local form.
			return fmt.Sprintf("(%s::text ILIKE %s OR ('0' || RIGHT(%s::text, 9)) ILIKE %s)",
				col, pat, col, pat), nil
		}
		return fmt.Sprintf("%s::text ILIKE %s", col, pat), nil

	case types.OpIn:
		col, err := c.column(p.Field)
		if err != nil {
			return "", err
		}
		if len(p.Values) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s::text = ANY(%s)", col, c.placeholder(pq.Array(p.Values))), nil

	case types.OpIsNull:
		col, err := c.column(p.Field)
		if err != nil {
			return "", err
		}
		return col + " IS NULL", nil

	case types.OpNotNull:
		col, err := c.column(p.Field)
		if err != nil {
			return "", err
		}
		return col + " IS NOT NULL", nil

	case types.OpGte:
		col, err := c.column(p.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s >= %s::timestamptz", col, c.placeholder(p.Value)), nil

	case types.OpEncounterWith:
		if c.entity != types.EntityPatient {
			return "", types.NewInternalError(
				fmt.Sprintf("encounter predicate is only valid on patients, got %s", c.entity), nil)
		}
		doc := c.placeholder(p.Value)
		return fmt.Sprintf(`(
			EXISTS (SELECT 1 FROM consultations co WHERE co.patient_id = patients.id AND co.doctor_id::text = %s)
			OR EXISTS (SELECT 1 FROM hospitalisations ho WHERE ho.patient_id = patients.id AND ho.doctor_id::text = %s)
			OR EXISTS (SELECT 1 FROM emergencies em WHERE em.patient_id = patients.id AND em.doctor_id::text = %s)
		)`, doc, doc, doc), nil
	}

	return "", types.NewInternalError(fmt.Sprintf("unknown predicate op %q", p.Op), nil)
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}

// orderClause renders the spec's ordering against the column whitelist.
func orderClause(entity types.EntityType, keys []types.Ordering) (string, error) {
	if len(keys) == 0 {
		return "id", nil
	}
	parts := make([]string, 0, len(keys)+1)
	hasID := false
	for _, k := range keys {
		if !queryColumns[entity][k.Field] {
			return "", types.NewInternalError(
				fmt.Sprintf("field %q is not orderable on %s", k.Field, entity), nil)
		}
		if k.Field == "id" {
			hasID = true
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, k.Field+" "+dir)
	}
	// id tiebreak keeps page contents deterministic for identical sort keys.
	if !hasID {
		parts = append(parts, "id ASC")
	}
	return strings.Join(parts, ", "), nil
}

// List compiles and runs a query spec: one COUNT for the total, one page
// SELECT projecting straight into summaries.
func (s *PostgresStore) List(ctx context.Context, spec *types.QuerySpec) ([]types.Summary, int, error) {
	table, ok := tables[spec.Entity]
	if !ok {
		return nil, 0, types.NewInternalError(fmt.Sprintf("unknown entity %q", spec.Entity), nil)
	}

	comp := &sqlCompiler{entity: spec.Entity}
	where, err := comp.compile(spec.Predicate)
	if err != nil {
		return nil, 0, err
	}

	var total int
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where)
	if err := s.db.QueryRowContext(ctx, countSQL, comp.args...).Scan(&total); err != nil {
		return nil, 0, types.NewInternalError("count query failed", err)
	}

	order, err := orderClause(spec.Entity, spec.OrderBy)
	if err != nil {
		return nil, 0, err
	}

	pageSQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT %s OFFSET %s",
		summaryColumns(spec.Entity), table, where, order,
		comp.placeholder(spec.PageSize), comp.placeholder(spec.Offset()))

	rows, err := s.db.QueryContext(ctx, pageSQL, comp.args...)
	if err != nil {
		return nil, 0, types.NewInternalError("page query failed", err)
	}
	defer rows.Close()

	items := []types.Summary{}
	for rows.Next() {
		sum, err := scanSummary(spec.Entity, rows)
		if err != nil {
			return nil, 0, types.NewInternalError("summary scan failed", err)
		}
		items = append(items, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, types.NewInternalError("page iteration failed", err)
	}
	return items, total, nil
}

// summaryColumns is the projection each entity's listing row needs.
func summaryColumns(entity types.EntityType) string {
	switch entity {
	case types.EntityCentre:
		return "id, name"
	case types.EntityProfile:
		return "id, username, role, created_at"
	case types.EntityPatient:
		return "id, first_name, COALESCE(postname, ''), last_name, COALESCE(centre_id::text, ''), created_at"
	case types.EntityConsultation:
		return "id, reason, date, status, centre_id"
	case types.EntityHospitalisation:
		return "id, service, admission_date, discharge_date, centre_id"
	case types.EntityEmergency:
		return "id, reason, admission_time, triage_level, centre_id"
	case types.EntityAppointment:
		return "id, COALESCE(reason, ''), start_time, status, centre_id"
	}
	return "id"
}

func scanSummary(entity types.EntityType, rows *sql.Rows) (types.Summary, error) {
	sum := types.Summary{Entity: entity}
	switch entity {
	case types.EntityCentre:
		return sum, rows.Scan(&sum.ID, &sum.Label)

	case types.EntityProfile:
		return sum, rows.Scan(&sum.ID, &sum.Label, &sum.Status, &sum.Date)

	case types.EntityPatient:
		var p types.Patient
		if err := rows.Scan(&p.ID, &p.FirstName, &p.Postname, &p.LastName, &p.CentreID, &p.CreatedAt); err != nil {
			return sum, err
		}
		sum.ID = p.ID
		sum.Label = p.FullName()
		sum.Date = p.CreatedAt
		sum.CentreID = p.CentreID
		return sum, nil

	case types.EntityHospitalisation:
		var discharge sql.NullTime
		if err := rows.Scan(&sum.ID, &sum.Label, &sum.Date, &discharge, &sum.CentreID); err != nil {
			return sum, err
		}
		sum.Status = "ACTIVE"
		if discharge.Valid {
			sum.Status = "DISCHARGED"
		}
		return sum, nil

	default:
		return sum, rows.Scan(&sum.ID, &sum.Label, &sum.Date, &sum.Status, &sum.CentreID)
	}
}

func (s *PostgresStore) GetCentre(ctx context.Context, id string) (*types.Centre, error) {
	var c types.Centre
	var phone sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, phone FROM centres WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Address, &phone)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFound(types.EntityCentre, id)
	}
	if err != nil {
		return nil, types.NewInternalError("centre lookup failed", err)
	}
	c.Phone = phone.String
	return &c, nil
}

func (s *PostgresStore) CreateCentre(ctx context.Context, c *types.Centre) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO centres (id, name, address, phone) VALUES ($1, $2, $3, NULLIF($4, ''))`,
		c.ID, c.Name, c.Address, c.Phone)
	if err != nil {
		return types.NewInternalError("centre insert failed", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCentre(ctx context.Context, c *types.Centre) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE centres SET name = $2, address = $3, phone = NULLIF($4, '') WHERE id = $1`,
		c.ID, c.Name, c.Address, c.Phone)
	if err != nil {
		return types.NewInternalError("centre update failed", err)
	}
	return requireRow(res, types.EntityCentre, c.ID)
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*types.Profile, error) {
	var p types.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, created_at FROM profiles WHERE id = $1`, id).
		Scan(&p.ID, &p.Username, &p.Role, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFound(types.EntityProfile, id)
	}
	if err != nil {
		return nil, types.NewInternalError("profile lookup failed", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT centre_id FROM profile_centres WHERE profile_id = $1 ORDER BY centre_id`, id)
	if err != nil {
		return nil, types.NewInternalError("profile centres lookup failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		var centreID string
		if err := rows.Scan(&centreID); err != nil {
			return nil, types.NewInternalError("profile centres scan failed", err)
		}
		p.CentreIDs = append(p.CentreIDs, centreID)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewInternalError("profile centres iteration failed", err)
	}
	return &p, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p *types.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewInternalError("profile insert failed", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (id, username, role, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Username, p.Role, p.CreatedAt); err != nil {
		return types.NewInternalError("profile insert failed", err)
	}
	if err := replaceProfileCentres(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.NewInternalError("profile insert commit failed", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p *types.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewInternalError("profile update failed", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE profiles SET username = $2, role = $3 WHERE id = $1`,
		p.ID, p.Username, p.Role)
	if err != nil {
		return types.NewInternalError("profile update failed", err)
	}
	if err := requireRow(res, types.EntityProfile, p.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM profile_centres WHERE profile_id = $1`, p.ID); err != nil {
		return types.NewInternalError("profile centres clear failed", err)
	}
	if err := replaceProfileCentres(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.NewInternalError("profile update commit failed", err)
	}
	return nil
}

func replaceProfileCentres(ctx context.Context, tx *sql.Tx, p *types.Profile) error {
	for _, centreID := range p.CentreIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profile_centres (profile_id, centre_id) VALUES ($1, $2)`,
			p.ID, centreID); err != nil {
			return types.NewInternalError("profile centre link failed", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetPatient(ctx context.Context, id string) (*types.Patient, error) {
	var p types.Patient
	var postname, phone, address, contact, centreID sql.NullString
	var history, allergies, vaccinations, lifestyle sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, postname, last_name, date_of_birth, gender, phone,
			address, emergency_contact, is_subscriber, centre_id,
			medical_history, allergies, vaccinations, lifestyle, created_at
		 FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &postname, &p.LastName, &p.DateOfBirth, &p.Gender, &phone,
			&address, &contact, &p.IsSubscriber, &centreID,
			&history, &allergies, &vaccinations, &lifestyle, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFound(types.EntityPatient, id)
	}
	if err != nil {
		return nil, types.NewInternalError("patient lookup failed", err)
	}
	p.Postname = postname.String
	p.Phone = phone.String
	p.Address = address.String
	p.EmergencyContact = contact.String
	p.CentreID = centreID.String
	p.MedicalHistory = history.String
	p.Allergies = allergies.String
	p.Vaccinations = vaccinations.String
	p.Lifestyle = lifestyle.String
	return &p, nil
}

func (s *PostgresStore) CreatePatient(ctx context.Context, p *types.Patient) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (id, first_name, postname, last_name, date_of_birth, gender,
			phone, address, emergency_contact, is_subscriber, centre_id,
			medical_history, allergies, vaccinations, lifestyle, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''),
			NULLIF($9, ''), $10, NULLIF($11, '')::uuid, NULLIF($12, ''), NULLIF($13, ''),
			NULLIF($14, ''), NULLIF($15, ''), $16)`,
		p.ID, p.FirstName, p.Postname, p.LastName, p.DateOfBirth, p.Gender,
		p.Phone, p.Address, p.EmergencyContact, p.IsSubscriber, p.CentreID,
		p.MedicalHistory, p.Allergies, p.Vaccinations, p.Lifestyle, p.CreatedAt)
	if err != nil {
		return types.NewInternalError("patient insert failed", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePatient(ctx context.Context, p *types.Patient) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE patients SET first_name = $2, postname = NULLIF($3, ''), last_name = $4,
			date_of_birth = $5, gender = $6, phone = NULLIF($7, ''), address = NULLIF($8, ''),
			emergency_contact = NULLIF($9, ''), is_subscriber = $10,
			centre_id = NULLIF($11, '')::uuid, medical_history = NULLIF($12, ''),
			allergies = NULLIF($13, ''), vaccinations = NULLIF($14, ''), lifestyle = NULLIF($15, '')
		 WHERE id = $1`,
		p.ID, p.FirstName, p.Postname, p.LastName, p.DateOfBirth, p.Gender,
		p.Phone, p.Address, p.EmergencyContact, p.IsSubscriber, p.CentreID,
		p.MedicalHistory, p.Allergies, p.Vaccinations, p.Lifestyle)
	if err != nil {
		return types.NewInternalError("patient update failed", err)
	}
	return requireRow(res, types.EntityPatient, p.ID)
}

func (s *PostgresStore) DeletePatient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return types.NewInternalError("patient delete failed", err)
	}
	return requireRow(res, types.EntityPatient, id)
}

func (s *PostgresStore) GetConsultation(ctx context.Context, id string) (*types.Consultation, error) {
	var c types.Consultation
	var apptDate, followUp sql.NullTime
	var exam, diagnosis, prescription sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, doctor_id, centre_id, date, appointment_date, status,
			reason, clinical_exam, diagnosis, prescription, follow_up_date
		 FROM consultations WHERE id = $1`, id).
		Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.CentreID, &c.Date, &apptDate, &c.Status,
			&c.Reason, &exam, &diagnosis, &prescription, &followUp)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFound(types.EntityConsultation, id)
	}
	if err != nil {
		return nil, types.NewInternalError("consultation lookup failed", err)
	}
	if apptDate.Valid {
		c.AppointmentDate = &apptDate.Time
	}
	if followUp.Valid {
		c.FollowUpDate = &followUp.Time
	}
	c.ClinicalExam = exam.String
	c.Diagnosis = diagnosis.String
	c.Prescription = prescription.String
	return &c, nil
}

func (s *PostgresStore) CreateConsultation(ctx context.Context, c *types.Consultation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consultations (id, patient_id, doctor_id, centre_id, date,
			appointment_date, status, reason, clinical_exam, diagnosis, prescription, follow_up_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12)`,
		c.ID, c.PatientID, c.DoctorID, c.CentreID, c.Date,
		c.AppointmentDate, c.Status, c.Reason, c.ClinicalExam, c.Diagnosis, c.Prescription, c.FollowUpDate)
	if err != nil {
		return types.NewInternalError("consultation insert failed", err)
	}
	return nil
}

func (s *PostgresStore) UpdateConsultation(ctx context.Context, c *types.Consultation) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE consultations SET date = $2, appointment_date = $3, status = $4, reason = $5,
			clinical_exam = NULLIF($6, ''), diagnosis = NULLIF($7, ''),
			prescription = NULLIF($8, ''), follow_up_date = $9
		 WHERE id = $1`,
		c.ID, c.Date, c.AppointmentDate, c.Status, c.Reason,
		c.ClinicalExam, c.Diagnosis, c.Prescription, c.FollowUpDate)
	if err != nil {
		return types.NewInternalError("consultation update failed", err)
	}
	return requireRow(res, types.EntityConsultation, c.ID)
}

func (s *PostgresStore) GetHospitalisation(ctx context.Context, id string) (*types.Hospitalisation, error) {
	var h types.Hospitalisation
	var discharge sql.NullTime
	var room, bed, medicalNotes, dischargeSummary sql.NullString
	var nursingRaw, interventionsRaw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, doctor_id, centre_id, admission_date, discharge_date,
			service, room, bed, admission_reason, medical_notes, nursing_notes,
			interventions, discharge_summary
		 FROM hospitalisations WHERE id = $1`, id).
		Scan(&h.ID, &h.PatientID, &h.DoctorID, &h.CentreID, &h.AdmissionDate, &discharge,
			&h.Service, &room, &bed, &h.AdmissionReason, &medicalNotes, &nursingRaw,
			&interventionsRaw, &dischargeSummary)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFound(types.EntityHospitalisation, id)
	}
	if err != nil {
		return nil, types.NewInternalError("hospitalisation lookup failed", err)
	}
	if discharge.Valid {
		h.DischargeDate = &discharge.Time
	}
	h.Room = room.String
	h.Bed = bed.String
	h.MedicalNotes = medicalNotes.String
	h.DischargeSummary = dischargeSummary.String
	if err := json.Unmarshal(nursingRaw, &h.NursingNotes); err != nil {
		return nil, types.NewInternalError("nursing notes decode failed", err)
	}
	if err := json.Unmarshal(interventionsRaw, &h.Interventions); err != nil {
		return nil, types.NewInternalError("interventions decode failed", err)
	}
	return &h, nil
}

func (s *PostgresStore) CreateHospitalisation(ctx context.Context, h *types.Hospitalisation) error {
	nursingRaw, interventionsRaw, err := encodeHospitalisationNotes(h)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO hospitalisations (id, patient_id, doctor_id, centre_id, admission_date,
			discharge_date, service, room, bed, admission_reason, medical_notes,
			nursing_notes, interventions, discharge_summary)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10,
			NULLIF($11, ''), $12, $13, NULLIF($14, ''))`,
		h.ID, h.PatientID, h.DoctorID, h.CentreID, h.AdmissionDate,
		h.DischargeDate, h.Service, h.Room, h.Bed, h.AdmissionReason, h.MedicalNotes,
		nursingRaw, interventionsRaw, h.DischargeSummary)
	if err != nil {
		return types.NewInternalError("hospitalisation insert failed", err)
	}
	return nil
}

func (s *PostgresStore) UpdateHospitalisation(ctx context.Context, h *types.Hospitalisation) error {
	nursingRaw, interventionsRaw, err := encodeHospitalisationNotes(h)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE hospitalisations SET discharge_date = $2, service = $3, room = NULLIF($4, ''),
			bed = NULLIF($5, ''), admission_reason = $6, medical_notes = NULLIF($7, ''),
			nursing_notes = $8, interventions = $9, discharge_summary = NULLIF($10, '')
		 WHERE id = $1`,
		h.ID, h.DischargeDate, h.Service, h.Room,
		h.Bed, h.AdmissionReason, h.MedicalNotes,
		nursingRaw, interventionsRaw, h.DischargeSummary)
	if err != nil {
		return types.NewInternalError("hospitalisation update failed", err)
	}
	return requireRow(res, types.EntityHospitalisation, h.ID)
}

func encodeHospitalisationNotes(h *types.Hospitalisation) ([]byte, []byte, error) {
	notes := h.NursingNotes
	if notes == nil {
		notes = []types.NursingNote{}
	}
	interventions := h.Interventions
	if interventions == nil {
		interventions = []string{}
	}
	nursingRaw, err := json.Marshal(notes)
	if err != nil {
		return nil, nil, types.NewInternalError("nursing notes encode failed", err)
	}
	interventionsRaw, err := json.Marshal(interventions)
	if err != nil {
		return nil, nil, types.NewInternalError("interventions encode failed", err)
	}
	return nursingRaw, interventionsRaw, nil
}

func (s *PostgresStore) GetEmergency(ctx context.Context, id string) (*types.Emergency, error) {
	var e types.Emergency
	var doctorID, vitals, firstAid, diagnosis, orientation sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, doctor_id, centre_id, admission_time, reason, triage_level,
			vital_signs, first_aid, initial_diagnosis, orientation
		 FROM emergencies WHERE id = $1`, id).
		Scan(&e.ID, &e.PatientID, &doctorID, &e.CentreID, &e.AdmissionTime, &e.Reason, &e.TriageLevel,
			&vitals, &firstAid, &diagnosis, &orientation)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFound(types.EntityEmergency, id)
	}
	if err != nil {
		return nil, types.NewInternalError("emergency lookup failed", err)
	}
	e.DoctorID = doctorID.String
	e.VitalSigns = vitals.String
	e.FirstAid = firstAid.String
	e.InitialDiagnosis = diagnosis.String
	if orientation.Valid {
		o := types.Orientation(orientation.String)
		e.Orientation = &o
	}
	return &e, nil
}

func (s *PostgresStore) CreateEmergency(ctx context.Context, e *types.Emergency) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emergencies (id, patient_id, doctor_id, centre_id, admission_time,
			reason, triage_level, vital_signs, first_aid, initial_diagnosis, orientation)
		 VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''),
			NULLIF($10, ''), $11)`,
		e.ID, e.PatientID, e.DoctorID, e.CentreID, e.AdmissionTime,
		e.Reason, e.TriageLevel, e.VitalSigns, e.FirstAid, e.InitialDiagnosis, orientationValue(e))
	if err != nil {
		return types.NewInternalError("emergency insert failed", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEmergency(ctx context.Context, e *types.Emergency) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE emergencies SET doctor_id = NULLIF($2, '')::uuid, reason = $3, triage_level = $4,
			vital_signs = NULLIF($5, ''), first_aid = NULLIF($6, ''),
			initial_diagnosis = NULLIF($7, ''), orientation = $8
		 WHERE id = $1`,
		e.ID, e.DoctorID, e.Reason, e.TriageLevel,
		e.VitalSigns, e.FirstAid, e.InitialDiagnosis, orientationValue(e))
	if err != nil {
		return types.NewInternalError("emergency update failed", err)
	}
	return requireRow(res, types.EntityEmergency, e.ID)
}

func orientationValue(e *types.Emergency) interface{} {
	if e.Orientation == nil {
		return nil
	}
	return string(*e.Orientation)
}

func (s *PostgresStore) GetAppointment(ctx context.Context, id string) (*types.Appointment, error) {
	var a types.Appointment
	var reason, notes sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, doctor_id, centre_id, start_time, duration_minutes,
			status, reason, notes, created_at, updated_at
		 FROM appointments WHERE id = $1`, id).
		Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.CentreID, &a.Start, &a.DurationMinutes,
			&a.Status, &reason, &notes, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFound(types.EntityAppointment, id)
	}
	if err != nil {
		return nil, types.NewInternalError("appointment lookup failed", err)
	}
	a.Reason = reason.String
	a.Notes = notes.String
	return &a, nil
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, a *types.Appointment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments (id, patient_id, doctor_id, centre_id, start_time,
			duration_minutes, status, reason, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)`,
		a.ID, a.PatientID, a.DoctorID, a.CentreID, a.Start,
		a.DurationMinutes, a.Status, a.Reason, a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// The (doctor, start) backstop index fired under a race the
			// in-process lock did not cover.
			return types.NewSchedulingConflict(nil)
		}
		return types.NewInternalError("appointment insert failed", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAppointment(ctx context.Context, a *types.Appointment) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET start_time = $2, duration_minutes = $3, status = $4,
			reason = NULLIF($5, ''), notes = NULLIF($6, ''), updated_at = $7
		 WHERE id = $1`,
		a.ID, a.Start, a.DurationMinutes, a.Status, a.Reason, a.Notes, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewSchedulingConflict(nil)
		}
		return types.NewInternalError("appointment update failed", err)
	}
	return requireRow(res, types.EntityAppointment, a.ID)
}

func (s *PostgresStore) AppointmentsForDoctor(ctx context.Context, doctorID string) ([]*types.Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, doctor_id, centre_id, start_time, duration_minutes,
			status, COALESCE(reason, ''), COALESCE(notes, ''), created_at, updated_at
		 FROM appointments WHERE doctor_id = $1 ORDER BY start_time`, doctorID)
	if err != nil {
		return nil, types.NewInternalError("doctor appointments query failed", err)
	}
	defer rows.Close()

	var out []*types.Appointment
	for rows.Next() {
		var a types.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.CentreID, &a.Start,
			&a.DurationMinutes, &a.Status, &a.Reason, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, types.NewInternalError("doctor appointments scan failed", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewInternalError("doctor appointments iteration failed", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

func requireRow(res sql.Result, entity types.EntityType, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return types.NewInternalError("rows affected unavailable", err)
	}
	if n == 0 {
		return types.NewNotFound(entity, id)
	}
	return nil
}
