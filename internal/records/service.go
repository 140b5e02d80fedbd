package records

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scheduler"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scope"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/interfaces"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/monitoring"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// Service runs the validated write paths: role gate, scope check, field-level
// filtering, validation, then store write followed by a full cache sweep for
// the entity type. A failed sweep degrades the scope to store reads; it never
// fails a write that already committed.
type Service struct {
	resolver  *scope.Resolver
	scheduler *scheduler.Scheduler
	store     interfaces.RecordStore
	cache     interfaces.PageCache
	metrics   *monitoring.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

// NewService creates a records service
func NewService(resolver *scope.Resolver, sched *scheduler.Scheduler, store interfaces.RecordStore,
	cache interfaces.PageCache, metrics *monitoring.Metrics, log *logger.Logger) *Service {
	return &Service{
		resolver:  resolver,
		scheduler: sched,
		store:     store,
		cache:     cache,
		metrics:   metrics,
		logger:    log,
		now:       time.Now,
	}
}

// gate rejects the write unless the actor holds one of the allowed roles.
func (s *Service) gate(actor types.Actor, entity types.EntityType, allowed ...types.Role) error {
	for _, role := range allowed {
		if actor.Role == role {
			return nil
		}
	}
	s.logger.AccessDenied(actor, entity, "role not allowed to write")
	return types.NewPermissionDenied(types.ErrCodeRoleNotAllowed,
		fmt.Sprintf("role %s may not write %s records", actor.Role, entity))
}

// inScope rejects the write when the record's centre is outside the actor's
// assignments.
func (s *Service) inScope(sc *scope.Scope, entity types.EntityType, centreID string) error {
	if centreID == "" || sc.AllowsCentre(centreID) {
		return nil
	}
	s.logger.AccessDenied(sc.Actor, entity, "record centre outside assignments")
	return types.NewPermissionDenied(types.ErrCodeOutOfScope,
		fmt.Sprintf("centre %s is outside the caller's scope", centreID))
}

// committed sweeps the caller's cached pages for the entity type and counts
// the write. The record is already durable at this point, so a failed sweep
// never fails the request: the cache marks the scope bypassed until a sweep
// succeeds, and reads degrade to the store in the meantime.
func (s *Service) committed(ctx context.Context, actor types.Actor, entity types.EntityType) {
	s.metrics.WriteRequests.WithLabelValues(string(entity), "ok").Inc()
	s.metrics.CacheInvalidations.WithLabelValues(string(entity)).Inc()
	if err := s.cache.Invalidate(ctx, entity, actor.ID, actor.Role); err != nil {
		s.metrics.CacheDegradations.Inc()
		s.logger.WithActor(actor).WithError(err).Warn("Cache sweep failed after write, scope bypassed")
	}
}

func (s *Service) rejected(entity types.EntityType, err error) error {
	s.metrics.WriteRequests.WithLabelValues(string(entity), "rejected").Inc()
	return err
}

// canWriteMedicalFields reports whether the role may set doctor-level medical
// data on a patient record.
func canWriteMedicalFields(role types.Role) bool {
	return role == types.RoleAdmin || role == types.RoleMedicalAdmin || role == types.RoleDoctor
}

// requireDoctor verifies the referenced doctor id resolves to a profile
// holding a medical role. A doctor authoring under their own identity skips
// the lookup: the caller's credentials already attest the role.
func (s *Service) requireDoctor(ctx context.Context, actor types.Actor, doctorID string) error {
	if actor.Role == types.RoleDoctor && actor.ID == doctorID {
		return nil
	}
	prof, err := s.store.GetProfile(ctx, doctorID)
	if err != nil {
		if types.IsNotFound(err) {
			return types.NewValidationError(types.ErrCodeInvalidDoctor,
				fmt.Sprintf("doctor %s is not a known profile", doctorID))
		}
		return err
	}
	if prof.Role != types.RoleDoctor && prof.Role != types.RoleMedicalAdmin {
		return types.NewValidationError(types.ErrCodeInvalidDoctor,
			fmt.Sprintf("profile %s holds role %s, not a medical role", doctorID, prof.Role))
	}
	return nil
}

// CreatePatient registers a patient. Secretaries may create the
// administrative record but medical fields are stripped from their input.
func (s *Service) CreatePatient(ctx context.Context, actor types.Actor, p *types.Patient) (*types.Patient, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityPatient,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor, types.RoleSecretary); err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}
	if err := s.inScope(sc, types.EntityPatient, p.CentreID); err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}

	if !canWriteMedicalFields(actor.Role) {
		p.MedicalHistory, p.Allergies, p.Vaccinations, p.Lifestyle = "", "", "", ""
	}
	if err := types.ValidatePatient(p, s.now()); err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now().UTC()

	if err := s.store.CreatePatient(ctx, p); err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}
	s.committed(ctx, actor, types.EntityPatient)
	return p, nil
}

// UpdatePatient modifies a patient. Roles without medical-data rights keep
// the stored medical fields untouched regardless of what they submit.
func (s *Service) UpdatePatient(ctx context.Context, actor types.Actor, p *types.Patient) (*types.Patient, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityPatient,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor, types.RoleSecretary); err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}

	existing, err := s.store.GetPatient(ctx, p.ID)
	if err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}
	if err := s.inScope(sc, types.EntityPatient, existing.CentreID); err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}
	if err := s.inScope(sc, types.EntityPatient, p.CentreID); err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}

	if !canWriteMedicalFields(actor.Role) {
		p.MedicalHistory = existing.MedicalHistory
		p.Allergies = existing.Allergies
		p.Vaccinations = existing.Vaccinations
		p.Lifestyle = existing.Lifestyle
	}
	if err := types.ValidatePatient(p, s.now()); err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}
	p.CreatedAt = existing.CreatedAt

	if err := s.store.UpdatePatient(ctx, p); err != nil {
		return nil, s.rejected(types.EntityPatient, err)
	}
	s.committed(ctx, actor, types.EntityPatient)
	return p, nil
}

// DeletePatient removes a patient record. ADMIN only.
func (s *Service) DeletePatient(ctx context.Context, actor types.Actor, id string) error {
	if _, err := s.resolver.Resolve(actor); err != nil {
		return err
	}
	if err := s.gate(actor, types.EntityPatient, types.RoleAdmin); err != nil {
		return s.rejected(types.EntityPatient, err)
	}
	if err := s.store.DeletePatient(ctx, id); err != nil {
		return s.rejected(types.EntityPatient, err)
	}
	s.committed(ctx, actor, types.EntityPatient)
	return nil
}

// consultationTransitionAllowed: forward-only lifecycle, cancellation legal
// until the consultation is done, DONE and CANCELLED terminal.
func consultationTransitionAllowed(from, to types.ConsultationStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case types.ConsultationPending:
		return to == types.ConsultationInProgress || to == types.ConsultationDone || to == types.ConsultationCancelled
	case types.ConsultationInProgress:
		return to == types.ConsultationDone || to == types.ConsultationCancelled
	}
	return false
}

// CreateConsultation records a consultation authored by a medical role.
func (s *Service) CreateConsultation(ctx context.Context, actor types.Actor, c *types.Consultation) (*types.Consultation, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityConsultation,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor); err != nil {
		return nil, s.rejected(types.EntityConsultation, err)
	}
	if err := s.inScope(sc, types.EntityConsultation, c.CentreID); err != nil {
		return nil, s.rejected(types.EntityConsultation, err)
	}
	if c.Reason == "" {
		return nil, s.rejected(types.EntityConsultation,
			types.NewValidationError(types.ErrCodeMissingField, "consultation reason is required"))
	}
	if c.Status == "" {
		c.Status = types.ConsultationPending
	}
	if !c.Status.IsValid() {
		return nil, s.rejected(types.EntityConsultation,
			types.NewValidationError(types.ErrCodeInvalidStatus, fmt.Sprintf("unknown status %q", c.Status)))
	}
	// Doctors always author under their own identity.
	if actor.Role == types.RoleDoctor {
		c.DoctorID = actor.ID
	}
	if err := s.requireDoctor(ctx, actor, c.DoctorID); err != nil {
		return nil, s.rejected(types.EntityConsultation, err)
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Date.IsZero() {
		c.Date = s.now().UTC()
	}

	if err := s.store.CreateConsultation(ctx, c); err != nil {
		return nil, s.rejected(types.EntityConsultation, err)
	}
	s.committed(ctx, actor, types.EntityConsultation)
	return c, nil
}

// UpdateConsultation modifies a consultation, enforcing the forward-only
// status lifecycle.
func (s *Service) UpdateConsultation(ctx context.Context, actor types.Actor, c *types.Consultation) (*types.Consultation, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityConsultation,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor); err != nil {
		return nil, s.rejected(types.EntityConsultation, err)
	}

	existing, err := s.store.GetConsultation(ctx, c.ID)
	if err != nil {
		return nil, s.rejected(types.EntityConsultation, err)
	}
	if actor.Role == types.RoleDoctor && existing.DoctorID != actor.ID {
		return nil, s.rejected(types.EntityConsultation,
			types.NewPermissionDenied(types.ErrCodeOutOfScope, "consultation belongs to another doctor"))
	}
	if err := s.inScope(sc, types.EntityConsultation, existing.CentreID); err != nil {
		return nil, s.rejected(types.EntityConsultation, err)
	}
	if !c.Status.IsValid() {
		return nil, s.rejected(types.EntityConsultation,
			types.NewValidationError(types.ErrCodeInvalidStatus, fmt.Sprintf("unknown status %q", c.Status)))
	}
	if !consultationTransitionAllowed(existing.Status, c.Status) {
		return nil, s.rejected(types.EntityConsultation,
			types.NewValidationError(types.ErrCodeInvalidTransition,
				fmt.Sprintf("consultation cannot move from %s to %s", existing.Status, c.Status)))
	}

	// Ownership and routing are fixed at creation.
	c.PatientID = existing.PatientID
	c.DoctorID = existing.DoctorID
	c.CentreID = existing.CentreID

	if err := s.store.UpdateConsultation(ctx, c); err != nil {
		return nil, s.rejected(types.EntityConsultation, err)
	}
	s.committed(ctx, actor, types.EntityConsultation)
	return c, nil
}

// CreateHospitalisation admits a patient under a treating doctor.
func (s *Service) CreateHospitalisation(ctx context.Context, actor types.Actor, h *types.Hospitalisation) (*types.Hospitalisation, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityHospitalisation,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor); err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}
	if err := s.inScope(sc, types.EntityHospitalisation, h.CentreID); err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}
	if h.Service == "" || h.AdmissionReason == "" {
		return nil, s.rejected(types.EntityHospitalisation,
			types.NewValidationError(types.ErrCodeMissingField, "service and admission reason are required"))
	}
	if h.DischargeDate != nil && h.DischargeDate.Before(h.AdmissionDate) {
		return nil, s.rejected(types.EntityHospitalisation,
			types.NewValidationError(types.ErrCodeInvalidStatus, "discharge date precedes admission"))
	}

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.AdmissionDate.IsZero() {
		h.AdmissionDate = s.now().UTC()
	}
	// Notes start empty and only grow through AppendNursingNote.
	h.NursingNotes = nil

	if err := s.store.CreateHospitalisation(ctx, h); err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}
	s.committed(ctx, actor, types.EntityHospitalisation)
	return h, nil
}

// UpdateHospitalisation modifies a stay. Nursing notes are append-only and
// never replaced through this path; discharge must not precede admission.
func (s *Service) UpdateHospitalisation(ctx context.Context, actor types.Actor, h *types.Hospitalisation) (*types.Hospitalisation, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityHospitalisation,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor); err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}

	existing, err := s.store.GetHospitalisation(ctx, h.ID)
	if err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}
	if actor.Role == types.RoleDoctor && existing.DoctorID != actor.ID {
		return nil, s.rejected(types.EntityHospitalisation,
			types.NewPermissionDenied(types.ErrCodeOutOfScope, "hospitalisation belongs to another doctor"))
	}
	if err := s.inScope(sc, types.EntityHospitalisation, existing.CentreID); err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}
	if h.DischargeDate != nil && h.DischargeDate.Before(existing.AdmissionDate) {
		return nil, s.rejected(types.EntityHospitalisation,
			types.NewValidationError(types.ErrCodeInvalidStatus, "discharge date precedes admission"))
	}

	h.PatientID = existing.PatientID
	h.DoctorID = existing.DoctorID
	h.CentreID = existing.CentreID
	h.AdmissionDate = existing.AdmissionDate
	h.NursingNotes = existing.NursingNotes

	if err := s.store.UpdateHospitalisation(ctx, h); err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}
	s.committed(ctx, actor, types.EntityHospitalisation)
	return h, nil
}

// AppendNursingNote adds one note to a stay's append-only note list. Nurses
// may write notes only for stays in their assigned centres.
func (s *Service) AppendNursingNote(ctx context.Context, actor types.Actor, hospitalisationID, text string) (*types.Hospitalisation, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityHospitalisation,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor, types.RoleNurse); err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}
	if text == "" {
		return nil, s.rejected(types.EntityHospitalisation,
			types.NewValidationError(types.ErrCodeMissingField, "note text is required"))
	}

	existing, err := s.store.GetHospitalisation(ctx, hospitalisationID)
	if err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}
	if err := s.inScope(sc, types.EntityHospitalisation, existing.CentreID); err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}

	existing.NursingNotes = append(existing.NursingNotes, types.NursingNote{
		AuthorID:   actor.ID,
		AuthorRole: actor.Role,
		Timestamp:  s.now().UTC(),
		Text:       text,
	})

	if err := s.store.UpdateHospitalisation(ctx, existing); err != nil {
		return nil, s.rejected(types.EntityHospitalisation, err)
	}
	s.committed(ctx, actor, types.EntityHospitalisation)
	return existing, nil
}

// CreateEmergency registers an emergency admission. Nurses triage, so they
// may create alongside the medical roles.
func (s *Service) CreateEmergency(ctx context.Context, actor types.Actor, e *types.Emergency) (*types.Emergency, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityEmergency,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor, types.RoleNurse); err != nil {
		return nil, s.rejected(types.EntityEmergency, err)
	}
	if err := s.inScope(sc, types.EntityEmergency, e.CentreID); err != nil {
		return nil, s.rejected(types.EntityEmergency, err)
	}
	if e.Reason == "" {
		return nil, s.rejected(types.EntityEmergency,
			types.NewValidationError(types.ErrCodeMissingField, "emergency reason is required"))
	}
	if !e.TriageLevel.IsValid() {
		return nil, s.rejected(types.EntityEmergency,
			types.NewValidationError(types.ErrCodeInvalidStatus, fmt.Sprintf("unknown triage level %q", e.TriageLevel)))
	}
	if e.Orientation != nil && !e.Orientation.IsValid() {
		return nil, s.rejected(types.EntityEmergency,
			types.NewValidationError(types.ErrCodeInvalidStatus, fmt.Sprintf("unknown orientation %q", *e.Orientation)))
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.AdmissionTime.IsZero() {
		e.AdmissionTime = s.now().UTC()
	}

	if err := s.store.CreateEmergency(ctx, e); err != nil {
		return nil, s.rejected(types.EntityEmergency, err)
	}
	s.committed(ctx, actor, types.EntityEmergency)
	return e, nil
}

// UpdateEmergency modifies an emergency case. Setting the orientation
// (the disposition decision) requires a medical role.
func (s *Service) UpdateEmergency(ctx context.Context, actor types.Actor, e *types.Emergency) (*types.Emergency, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityEmergency,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor, types.RoleNurse); err != nil {
		return nil, s.rejected(types.EntityEmergency, err)
	}

	existing, err := s.store.GetEmergency(ctx, e.ID)
	if err != nil {
		return nil, s.rejected(types.EntityEmergency, err)
	}
	if err := s.inScope(sc, types.EntityEmergency, existing.CentreID); err != nil {
		return nil, s.rejected(types.EntityEmergency, err)
	}
	if !e.TriageLevel.IsValid() {
		return nil, s.rejected(types.EntityEmergency,
			types.NewValidationError(types.ErrCodeInvalidStatus, fmt.Sprintf("unknown triage level %q", e.TriageLevel)))
	}
	if e.Orientation != nil {
		if !e.Orientation.IsValid() {
			return nil, s.rejected(types.EntityEmergency,
				types.NewValidationError(types.ErrCodeInvalidStatus, fmt.Sprintf("unknown orientation %q", *e.Orientation)))
		}
		orientationChanged := existing.Orientation == nil || *existing.Orientation != *e.Orientation
		if orientationChanged && !canWriteMedicalFields(actor.Role) {
			return nil, s.rejected(types.EntityEmergency,
				types.NewPermissionDenied(types.ErrCodeRoleNotAllowed,
					"orientation decisions require a medical role"))
		}
	}

	e.PatientID = existing.PatientID
	e.CentreID = existing.CentreID
	e.AdmissionTime = existing.AdmissionTime

	if err := s.store.UpdateEmergency(ctx, e); err != nil {
		return nil, s.rejected(types.EntityEmergency, err)
	}
	s.committed(ctx, actor, types.EntityEmergency)
	return e, nil
}

// CreateAppointment books a slot with a doctor. The conflict check and the
// insert run under the doctor's serialization lock; the store's unique
// (doctor, start) index backstops races the lock cannot see.
func (s *Service) CreateAppointment(ctx context.Context, actor types.Actor, a *types.Appointment) (*types.Appointment, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityAppointment,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor, types.RoleSecretary); err != nil {
		return nil, s.rejected(types.EntityAppointment, err)
	}
	if err := s.inScope(sc, types.EntityAppointment, a.CentreID); err != nil {
		return nil, s.rejected(types.EntityAppointment, err)
	}
	if a.DoctorID == "" {
		return nil, s.rejected(types.EntityAppointment,
			types.NewValidationError(types.ErrCodeMissingField, "doctor is required"))
	}
	if err := s.requireDoctor(ctx, actor, a.DoctorID); err != nil {
		return nil, s.rejected(types.EntityAppointment, err)
	}
	if a.Status == "" {
		a.Status = types.AppointmentPlanned
	}
	if !a.Status.IsValid() {
		return nil, s.rejected(types.EntityAppointment,
			types.NewValidationError(types.ErrCodeInvalidStatus, fmt.Sprintf("unknown status %q", a.Status)))
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	unlock := s.scheduler.LockDoctor(a.DoctorID)
	defer unlock()

	existing, err := s.store.AppointmentsForDoctor(ctx, a.DoctorID)
	if err != nil {
		return nil, s.rejected(types.EntityAppointment, err)
	}
	if err := s.scheduler.Validate(a, existing); err != nil {
		if types.IsSchedulingConflict(err) {
			s.metrics.SchedulingConflicts.Inc()
		}
		return nil, s.rejected(types.EntityAppointment, err)
	}

	if err := s.store.CreateAppointment(ctx, a); err != nil {
		if types.IsSchedulingConflict(err) {
			s.metrics.SchedulingConflicts.Inc()
		}
		return nil, s.rejected(types.EntityAppointment, err)
	}
	s.committed(ctx, actor, types.EntityAppointment)
	return a, nil
}

// UpdateAppointment reschedules or transitions an appointment. Rescheduling
// re-runs the conflict check under the doctor lock; the slot being updated
// never conflicts with itself.
func (s *Service) UpdateAppointment(ctx context.Context, actor types.Actor, a *types.Appointment) (*types.Appointment, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityAppointment,
		types.RoleAdmin, types.RoleMedicalAdmin, types.RoleDoctor, types.RoleSecretary); err != nil {
		return nil, s.rejected(types.EntityAppointment, err)
	}

	existing, err := s.store.GetAppointment(ctx, a.ID)
	if err != nil {
		return nil, s.rejected(types.EntityAppointment, err)
	}
	if actor.Role == types.RoleDoctor && existing.DoctorID != actor.ID {
		return nil, s.rejected(types.EntityAppointment,
			types.NewPermissionDenied(types.ErrCodeOutOfScope, "appointment belongs to another doctor"))
	}
	if err := s.inScope(sc, types.EntityAppointment, existing.CentreID); err != nil {
		return nil, s.rejected(types.EntityAppointment, err)
	}
	if !a.Status.IsValid() {
		return nil, s.rejected(types.EntityAppointment,
			types.NewValidationError(types.ErrCodeInvalidStatus, fmt.Sprintf("unknown status %q", a.Status)))
	}
	if !existing.Status.CanTransitionTo(a.Status) {
		return nil, s.rejected(types.EntityAppointment,
			types.NewValidationError(types.ErrCodeInvalidTransition,
				fmt.Sprintf("appointment cannot move from %s to %s", existing.Status, a.Status)))
	}

	a.PatientID = existing.PatientID
	a.DoctorID = existing.DoctorID
	a.CentreID = existing.CentreID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = s.now().UTC()

	unlock := s.scheduler.LockDoctor(a.DoctorID)
	defer unlock()

	// Cancelled slots free their interval, so only live target states are
	// checked for overlap.
	if a.Status != types.AppointmentCancelled {
		others, err := s.store.AppointmentsForDoctor(ctx, a.DoctorID)
		if err != nil {
			return nil, s.rejected(types.EntityAppointment, err)
		}
		if err := s.scheduler.Validate(a, others); err != nil {
			if types.IsSchedulingConflict(err) {
				s.metrics.SchedulingConflicts.Inc()
			}
			return nil, s.rejected(types.EntityAppointment, err)
		}
	}

	if err := s.store.UpdateAppointment(ctx, a); err != nil {
		if types.IsSchedulingConflict(err) {
			s.metrics.SchedulingConflicts.Inc()
		}
		return nil, s.rejected(types.EntityAppointment, err)
	}
	s.committed(ctx, actor, types.EntityAppointment)
	return a, nil
}

// CreateCentre registers a healthcare centre. Reference data is mutated by
// the administrative roles only.
func (s *Service) CreateCentre(ctx context.Context, actor types.Actor, c *types.Centre) (*types.Centre, error) {
	if _, err := s.resolver.Resolve(actor); err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityCentre, types.RoleAdmin, types.RoleMedicalAdmin); err != nil {
		return nil, s.rejected(types.EntityCentre, err)
	}
	if c.Name == "" || c.Address == "" {
		return nil, s.rejected(types.EntityCentre,
			types.NewValidationError(types.ErrCodeMissingField, "centre name and address are required"))
	}
	if err := types.ValidatePhone(c.Phone); err != nil {
		return nil, s.rejected(types.EntityCentre, err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.store.CreateCentre(ctx, c); err != nil {
		return nil, s.rejected(types.EntityCentre, err)
	}
	s.committed(ctx, actor, types.EntityCentre)
	return c, nil
}

// UpdateCentre modifies a centre.
func (s *Service) UpdateCentre(ctx context.Context, actor types.Actor, c *types.Centre) (*types.Centre, error) {
	if _, err := s.resolver.Resolve(actor); err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityCentre, types.RoleAdmin, types.RoleMedicalAdmin); err != nil {
		return nil, s.rejected(types.EntityCentre, err)
	}
	if c.Name == "" || c.Address == "" {
		return nil, s.rejected(types.EntityCentre,
			types.NewValidationError(types.ErrCodeMissingField, "centre name and address are required"))
	}
	if err := types.ValidatePhone(c.Phone); err != nil {
		return nil, s.rejected(types.EntityCentre, err)
	}
	if err := s.store.UpdateCentre(ctx, c); err != nil {
		return nil, s.rejected(types.EntityCentre, err)
	}
	s.committed(ctx, actor, types.EntityCentre)
	return c, nil
}

// CreateProfile registers a staff account; the centre-assignment invariant
// for NURSE and SECRETARY is enforced at this boundary.
func (s *Service) CreateProfile(ctx context.Context, actor types.Actor, p *types.Profile) (*types.Profile, error) {
	if _, err := s.resolver.Resolve(actor); err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityProfile, types.RoleAdmin, types.RoleMedicalAdmin); err != nil {
		return nil, s.rejected(types.EntityProfile, err)
	}
	if p.Username == "" {
		return nil, s.rejected(types.EntityProfile,
			types.NewValidationError(types.ErrCodeMissingField, "username is required"))
	}
	if err := types.ValidateProfile(p); err != nil {
		return nil, s.rejected(types.EntityProfile, err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now().UTC()
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return nil, s.rejected(types.EntityProfile, err)
	}
	s.committed(ctx, actor, types.EntityProfile)
	return p, nil
}

// UpdateProfile modifies a staff account.
func (s *Service) UpdateProfile(ctx context.Context, actor types.Actor, p *types.Profile) (*types.Profile, error) {
	if _, err := s.resolver.Resolve(actor); err != nil {
		return nil, err
	}
	if err := s.gate(actor, types.EntityProfile, types.RoleAdmin, types.RoleMedicalAdmin); err != nil {
		return nil, s.rejected(types.EntityProfile, err)
	}
	if err := types.ValidateProfile(p); err != nil {
		return nil, s.rejected(types.EntityProfile, err)
	}
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, s.rejected(types.EntityProfile, err)
	}
	s.committed(ctx, actor, types.EntityProfile)
	return p, nil
}

// Get reads route through the same scope machinery as listings: a record a
// caller could not list is a record they cannot fetch by id either.

// GetPatient fetches one patient visible to the actor.
func (s *Service) GetPatient(ctx context.Context, actor types.Actor, id string) (*types.Patient, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == types.RoleDoctor {
		if !s.doctorHasEncounter(ctx, actor.ID, p.ID) {
			return nil, types.NewNotFound(types.EntityPatient, id)
		}
		return p, nil
	}
	if p.CentreID != "" && !sc.AllowsCentre(p.CentreID) {
		// Out-of-scope reads are indistinguishable from absent records.
		return nil, types.NewNotFound(types.EntityPatient, id)
	}
	return p, nil
}

// doctorHasEncounter checks the derived patient-of-doctor relation by
// listing the doctor's patient scope for the exact id.
func (s *Service) doctorHasEncounter(ctx context.Context, doctorID, patientID string) bool {
	spec := &types.QuerySpec{
		Entity:    types.EntityPatient,
		Predicate: types.And(types.EncounterWith(doctorID), types.Equals("id", patientID)),
		Page:      1,
		PageSize:  types.AllowedPageSizes[0],
	}
	_, total, err := s.store.List(ctx, spec)
	return err == nil && total > 0
}
