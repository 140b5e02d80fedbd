package types

import (
	"strings"
	"time"
)

// Role represents the staff roles in the system
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleMedicalAdmin Role = "MEDICAL_ADMIN"
	RoleDoctor       Role = "DOCTOR"
	RoleNurse        Role = "NURSE"
	RoleSecretary    Role = "SECRETARY"
)

// IsValid reports whether the role is one of the five known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleMedicalAdmin, RoleDoctor, RoleNurse, RoleSecretary:
		return true
	}
	return false
}

// RequiresCentres reports whether the role must have at least one assigned centre.
func (r Role) RequiresCentres() bool {
	return r == RoleNurse || r == RoleSecretary
}

// CanAuthorMedicalNotes reports whether the role may write doctor-level medical notes.
func (r Role) CanAuthorMedicalNotes() bool {
	return r == RoleDoctor || r == RoleMedicalAdmin
}

// EntityType identifies the record families managed by the core
type EntityType string

const (
	EntityCentre          EntityType = "centre"
	EntityProfile         EntityType = "profile"
	EntityPatient         EntityType = "patient"
	EntityConsultation    EntityType = "consultation"
	EntityHospitalisation EntityType = "hospitalisation"
	EntityEmergency       EntityType = "emergency"
	EntityAppointment     EntityType = "appointment"
)

// IsValid reports whether the entity type is known.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityCentre, EntityProfile, EntityPatient, EntityConsultation,
		EntityHospitalisation, EntityEmergency, EntityAppointment:
		return true
	}
	return false
}

// Centre represents a healthcare centre
type Centre struct {
	ID      string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Address string `json:"address" db:"address"`
	Phone   string `json:"phone,omitempty" db:"phone"`
}

// Profile represents a staff account's role and centre assignments
type Profile struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Role      Role      `json:"role" db:"role"`
	CentreIDs []string  `json:"centre_ids" db:"centre_ids"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Gender of a patient
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Patient represents a patient record. Administrative fields are managed by
// the secretariat; the medical fields are writable by medical roles only.
type Patient struct {
	ID               string    `json:"id" db:"id"`
	FirstName        string    `json:"first_name" db:"first_name"`
	Postname         string    `json:"postname,omitempty" db:"postname"`
	LastName         string    `json:"last_name" db:"last_name"`
	DateOfBirth      time.Time `json:"date_of_birth" db:"date_of_birth"`
	Gender           Gender    `json:"gender" db:"gender"`
	Phone            string    `json:"phone,omitempty" db:"phone"`
	Address          string    `json:"address,omitempty" db:"address"`
	EmergencyContact string    `json:"emergency_contact,omitempty" db:"emergency_contact"`
	IsSubscriber     bool      `json:"is_subscriber" db:"is_subscriber"`
	CentreID         string    `json:"centre_id,omitempty" db:"centre_id"`

	MedicalHistory string `json:"medical_history,omitempty" db:"medical_history"`
	Allergies      string `json:"allergies,omitempty" db:"allergies"`
	Vaccinations   string `json:"vaccinations,omitempty" db:"vaccinations"`
	Lifestyle      string `json:"lifestyle,omitempty" db:"lifestyle"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Age returns the patient's age in full years at the given instant.
// Derived, never stored.
func (p *Patient) Age(at time.Time) int {
	years := at.Year() - p.DateOfBirth.Year()
	anniversary := p.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// FullName renders "LASTNAME POSTNAME Firstname" the way listings display patients.
func (p *Patient) FullName() string {
	parts := []string{strings.ToUpper(p.LastName)}
	if p.Postname != "" {
		parts = append(parts, strings.ToUpper(p.Postname))
	}
	parts = append(parts, p.FirstName)
	return strings.Join(parts, " ")
}

// ConsultationStatus of a consultation
type ConsultationStatus string

const (
	ConsultationPending    ConsultationStatus = "PENDING"
	ConsultationInProgress ConsultationStatus = "IN_PROGRESS"
	ConsultationDone       ConsultationStatus = "DONE"
	ConsultationCancelled  ConsultationStatus = "CANCELLED"
)

// IsValid reports whether the status is known.
func (s ConsultationStatus) IsValid() bool {
	switch s {
	case ConsultationPending, ConsultationInProgress, ConsultationDone, ConsultationCancelled:
		return true
	}
	return false
}

// Consultation represents a clinical consultation
type Consultation struct {
	ID              string             `json:"id" db:"id"`
	PatientID       string             `json:"patient_id" db:"patient_id"`
	DoctorID        string             `json:"doctor_id" db:"doctor_id"`
	CentreID        string             `json:"centre_id" db:"centre_id"`
	Date            time.Time          `json:"date" db:"date"`
	AppointmentDate *time.Time         `json:"appointment_date,omitempty" db:"appointment_date"`
	Status          ConsultationStatus `json:"status" db:"status"`
	Reason          string             `json:"reason" db:"reason"`
	ClinicalExam    string             `json:"clinical_exam,omitempty" db:"clinical_exam"`
	Diagnosis       string             `json:"diagnosis,omitempty" db:"diagnosis"`
	Prescription    string             `json:"prescription,omitempty" db:"prescription"`
	FollowUpDate    *time.Time         `json:"follow_up_date,omitempty" db:"follow_up_date"`
}

// NursingNote is a single append-only nursing note entry
type NursingNote struct {
	AuthorID   string    `json:"author_id"`
	AuthorRole Role      `json:"author_role"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
}

// Hospitalisation represents an inpatient stay. A nil discharge date means
// the stay is still active.
type Hospitalisation struct {
	ID               string        `json:"id" db:"id"`
	PatientID        string        `json:"patient_id" db:"patient_id"`
	DoctorID         string        `json:"doctor_id" db:"doctor_id"`
	CentreID         string        `json:"centre_id" db:"centre_id"`
	AdmissionDate    time.Time     `json:"admission_date" db:"admission_date"`
	DischargeDate    *time.Time    `json:"discharge_date,omitempty" db:"discharge_date"`
	Service          string        `json:"service" db:"service"`
	Room             string        `json:"room,omitempty" db:"room"`
	Bed              string        `json:"bed,omitempty" db:"bed"`
	AdmissionReason  string        `json:"admission_reason" db:"admission_reason"`
	MedicalNotes     string        `json:"medical_notes,omitempty" db:"medical_notes"`
	NursingNotes     []NursingNote `json:"nursing_notes,omitempty" db:"nursing_notes"`
	Interventions    []string      `json:"interventions,omitempty" db:"interventions"`
	DischargeSummary string        `json:"discharge_summary,omitempty" db:"discharge_summary"`
}

// IsActive reports whether the stay has no discharge date yet.
func (h *Hospitalisation) IsActive() bool {
	return h.DischargeDate == nil
}

// TriageLevel is the emergency severity classification
type TriageLevel string

const (
	TriageMinor    TriageLevel = "MINOR"
	TriageModerate TriageLevel = "MODERATE"
	TriageSevere   TriageLevel = "SEVERE"
	TriageCritical TriageLevel = "CRITICAL"
)

// IsValid reports whether the triage level is known.
func (t TriageLevel) IsValid() bool {
	switch t {
	case TriageMinor, TriageModerate, TriageSevere, TriageCritical:
		return true
	}
	return false
}

// Orientation is the disposition decision for an emergency case
type Orientation string

const (
	OrientationDischarge Orientation = "DISCHARGE"
	OrientationAdmit     Orientation = "ADMIT"
	OrientationTransfer  Orientation = "TRANSFER"
)

// IsValid reports whether the orientation is known.
func (o Orientation) IsValid() bool {
	switch o {
	case OrientationDischarge, OrientationAdmit, OrientationTransfer:
		return true
	}
	return false
}

// Emergency represents an emergency admission. Orientation stays nil until
// the case has been triaged and a disposition decided.
type Emergency struct {
	ID               string       `json:"id" db:"id"`
	PatientID        string       `json:"patient_id" db:"patient_id"`
	DoctorID         string       `json:"doctor_id,omitempty" db:"doctor_id"`
	CentreID         string       `json:"centre_id" db:"centre_id"`
	AdmissionTime    time.Time    `json:"admission_time" db:"admission_time"`
	Reason           string       `json:"reason" db:"reason"`
	TriageLevel      TriageLevel  `json:"triage_level" db:"triage_level"`
	VitalSigns       string       `json:"vital_signs,omitempty" db:"vital_signs"`
	FirstAid         string       `json:"first_aid,omitempty" db:"first_aid"`
	InitialDiagnosis string       `json:"initial_diagnosis,omitempty" db:"initial_diagnosis"`
	Orientation      *Orientation `json:"orientation,omitempty" db:"orientation"`
}

// AppointmentStatus of an appointment
type AppointmentStatus string

const (
	AppointmentPlanned   AppointmentStatus = "PLANNED"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentDone      AppointmentStatus = "DONE"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

// IsValid reports whether the status is known.
func (s AppointmentStatus) IsValid() bool {
	switch s {
	case AppointmentPlanned, AppointmentConfirmed, AppointmentDone, AppointmentCancelled:
		return true
	}
	return false
}

// Appointment duration bounds, in minutes.
const (
	MinAppointmentDuration = 15
	MaxAppointmentDuration = 180
)

// Appointment represents a scheduled appointment with a doctor
type Appointment struct {
	ID              string            `json:"id" db:"id"`
	PatientID       string            `json:"patient_id" db:"patient_id"`
	DoctorID        string            `json:"doctor_id" db:"doctor_id"`
	CentreID        string            `json:"centre_id" db:"centre_id"`
	Start           time.Time         `json:"start" db:"start_time"`
	DurationMinutes int               `json:"duration_minutes" db:"duration_minutes"`
	Status          AppointmentStatus `json:"status" db:"status"`
	Reason          string            `json:"reason,omitempty" db:"reason"`
	Notes           string            `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// End returns the exclusive end of the appointment's [start, start+duration) interval.
func (a *Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether two appointments occupy intersecting half-open intervals.
func (a *Appointment) Overlaps(other *Appointment) bool {
	return a.Start.Before(other.End()) && other.Start.Before(a.End())
}

// CanTransitionTo reports whether the appointment status may move to next.
// Transitions run forward only; cancelling is always legal from PLANNED or
// CONFIRMED; DONE and CANCELLED are terminal.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case AppointmentPlanned:
		return next == AppointmentConfirmed || next == AppointmentDone || next == AppointmentCancelled
	case AppointmentConfirmed:
		return next == AppointmentDone || next == AppointmentCancelled
	}
	return false
}
