package scheduler

import (
	"hash/fnv"
	"sync"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// Scheduler validates candidate appointments against a doctor's existing
// bookings and serializes the check-then-persist sequence per doctor
type Scheduler struct {
	logger *logger.Logger
	locks  doctorLocks
}

// New creates a scheduler
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{logger: log}
}

// Validate checks the candidate against the doctor's existing appointments.
// Duration bounds are checked first and reported as a validation error,
// distinct from a conflict. On overlap the error carries every conflicting
// appointment id, not just the first.
func (s *Scheduler) Validate(candidate *types.Appointment, existing []*types.Appointment) error {
	if err := types.ValidateAppointmentDuration(candidate.DurationMinutes); err != nil {
		return err
	}

	var conflicts []string
	for _, apt := range existing {
		if apt.ID == candidate.ID {
			// Updates never conflict with themselves.
			continue
		}
		if apt.Status == types.AppointmentCancelled {
			continue
		}
		if apt.DoctorID != candidate.DoctorID {
			continue
		}
		if candidate.Overlaps(apt) {
			conflicts = append(conflicts, apt.ID)
		}
	}

	if len(conflicts) > 0 {
		s.logger.WithFields(map[string]interface{}{
			"doctor_id": candidate.DoctorID,
			"conflicts": conflicts,
		}).Info("Appointment rejected for overlap")
		return types.NewSchedulingConflict(conflicts)
	}

	return nil
}

// LockDoctor acquires the doctor's serialization lock and returns the
// release func. Two concurrent bookings for the same doctor run their
// conflict check and persist strictly one after the other; the storage
// layer's unique (doctor, start) index is the backstop.
func (s *Scheduler) LockDoctor(doctorID string) func() {
	return s.locks.lock(doctorID)
}

// doctorLocks is a striped mutex set keyed by doctor id. Striping bounds
// memory while keeping contention between distinct doctors unlikely.
type doctorLocks struct {
	stripes [64]sync.Mutex
}

func (d *doctorLocks) lock(doctorID string) func() {
	h := fnv.New32a()
	h.Write([]byte(doctorID))
	mu := &d.stripes[h.Sum32()%uint32(len(d.stripes))]
	mu.Lock()
	return mu.Unlock
}
