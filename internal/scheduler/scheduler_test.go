package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

func apt(id, doctorID string, start time.Time, minutes int, status types.AppointmentStatus) *types.Appointment {
	return &types.Appointment{
		ID:              id,
		DoctorID:        doctorID,
		Start:           start,
		DurationMinutes: minutes,
		Status:          status,
	}
}

var t0 = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func TestValidate_DurationCheckedFirst(t *testing.T) {
	s := New(logger.NewNop())

	// Even with a guaranteed overlap, a bad duration reports as validation.
	existing := []*types.Appointment{apt("a1", "doc1", t0, 60, types.AppointmentPlanned)}
	err := s.Validate(apt("a2", "doc1", t0, 5, types.AppointmentPlanned), existing)

	assert.True(t, types.IsValidation(err))
	assert.False(t, types.IsSchedulingConflict(err))
}

func TestValidate_OverlapSameDoctor(t *testing.T) {
	s := New(logger.NewNop())

	existing := []*types.Appointment{apt("a1", "doc1", t0, 30, types.AppointmentPlanned)}
	err := s.Validate(apt("a2", "doc1", t0.Add(15*time.Minute), 30, types.AppointmentPlanned), existing)

	assert.True(t, types.IsSchedulingConflict(err))
	ce, _ := types.AsCoreError(err)
	assert.Equal(t, []string{"a1"}, ce.ConflictIDs)
}

func TestValidate_SameSlotDifferentDoctor(t *testing.T) {
	s := New(logger.NewNop())

	existing := []*types.Appointment{apt("a1", "doc1", t0, 30, types.AppointmentPlanned)}
	err := s.Validate(apt("a2", "doc2", t0.Add(15*time.Minute), 30, types.AppointmentPlanned), existing)

	assert.NoError(t, err)
}

func TestValidate_BackToBackSlots(t *testing.T) {
	s := New(logger.NewNop())

	existing := []*types.Appointment{apt("a1", "doc1", t0, 30, types.AppointmentPlanned)}
	err := s.Validate(apt("a2", "doc1", t0.Add(30*time.Minute), 30, types.AppointmentPlanned), existing)

	assert.NoError(t, err)
}

func TestValidate_CancelledSlotFreesInterval(t *testing.T) {
	s := New(logger.NewNop())

	existing := []*types.Appointment{apt("a1", "doc1", t0, 30, types.AppointmentCancelled)}
	err := s.Validate(apt("a2", "doc1", t0, 30, types.AppointmentPlanned), existing)

	assert.NoError(t, err)
}

func TestValidate_UpdateSkipsSelf(t *testing.T) {
	s := New(logger.NewNop())

	existing := []*types.Appointment{apt("a1", "doc1", t0, 30, types.AppointmentPlanned)}
	// Rescheduling a1 within its own interval conflicts with nothing.
	err := s.Validate(apt("a1", "doc1", t0.Add(10*time.Minute), 30, types.AppointmentPlanned), existing)

	assert.NoError(t, err)
}

func TestValidate_ReportsAllConflicts(t *testing.T) {
	s := New(logger.NewNop())

	existing := []*types.Appointment{
		apt("a1", "doc1", t0, 30, types.AppointmentPlanned),
		apt("a2", "doc1", t0.Add(30*time.Minute), 30, types.AppointmentConfirmed),
		apt("a3", "doc1", t0.Add(2*time.Hour), 30, types.AppointmentPlanned),
	}
	// [10:15, 11:15) overlaps a1 and a2 but not a3.
	err := s.Validate(apt("new", "doc1", t0.Add(15*time.Minute), 60, types.AppointmentPlanned), existing)

	assert.True(t, types.IsSchedulingConflict(err))
	ce, _ := types.AsCoreError(err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ce.ConflictIDs)
}

func TestLockDoctor_SerializesSameDoctor(t *testing.T) {
	s := New(logger.NewNop())

	var inCritical int
	var maxInCritical int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.LockDoctor("doc1")
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical)
}
