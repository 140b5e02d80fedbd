package types

import (
	"fmt"
	"regexp"
	"time"
)

// Recognized phone formats: international +<country code><9 digits> or
// local 0<9 digits>. Country codes are 1-3 digits.
var phonePattern = regexp.MustCompile(`^(\+[1-9]\d{0,2}\d{9}|0\d{9})$`)

// MaxPatientAge is the upper bound on a derived patient age, in years.
const MaxPatientAge = 120

// ValidatePhone checks the phone number against the recognized national
// formats. Empty phones are allowed; the field is optional.
func ValidatePhone(phone string) *CoreError {
	if phone == "" {
		return nil
	}
	if !phonePattern.MatchString(phone) {
		return NewValidationError(ErrCodeInvalidPhone,
			fmt.Sprintf("phone %q must be +<country code><9 digits> or 0<9 digits>", phone))
	}
	return nil
}

// ValidateDateOfBirth rejects future birth dates and derived ages above 120.
func ValidateDateOfBirth(dob time.Time, now time.Time) *CoreError {
	if dob.After(now) {
		return NewValidationError(ErrCodeInvalidBirthDate, "date of birth cannot be in the future")
	}
	p := Patient{DateOfBirth: dob}
	if p.Age(now) > MaxPatientAge {
		return NewValidationError(ErrCodeInvalidBirthDate,
			fmt.Sprintf("derived age exceeds %d years", MaxPatientAge))
	}
	return nil
}

// ValidateAppointmentDuration enforces the 15-180 minute bound. Reported as
// a validation error, distinct from a scheduling conflict.
func ValidateAppointmentDuration(minutes int) *CoreError {
	if minutes < MinAppointmentDuration || minutes > MaxAppointmentDuration {
		return NewValidationError(ErrCodeInvalidDuration,
			fmt.Sprintf("duration %d min is outside [%d, %d]", minutes, MinAppointmentDuration, MaxAppointmentDuration))
	}
	return nil
}

// ValidatePagination enforces page >= 1 and the closed page size set.
func ValidatePagination(page, pageSize int) *CoreError {
	if page < 1 {
		return NewValidationError(ErrCodeInvalidPage, fmt.Sprintf("page %d must be >= 1", page))
	}
	if !IsAllowedPageSize(pageSize) {
		return NewValidationError(ErrCodeInvalidPageSize,
			fmt.Sprintf("page size %d must be one of %v", pageSize, AllowedPageSizes))
	}
	return nil
}

// ValidatePatient runs the model-boundary checks on a patient record.
func ValidatePatient(p *Patient, now time.Time) *CoreError {
	if p.FirstName == "" || p.LastName == "" {
		return NewValidationError(ErrCodeMissingField, "first and last name are required")
	}
	if p.Gender != GenderMale && p.Gender != GenderFemale {
		return NewValidationError(ErrCodeInvalidFilter, fmt.Sprintf("unknown gender %q", p.Gender))
	}
	if err := ValidateDateOfBirth(p.DateOfBirth, now); err != nil {
		return err
	}
	return ValidatePhone(p.Phone)
}

// ValidateProfile enforces the centre-assignment invariant: NURSE and
// SECRETARY must have at least one assigned centre.
func ValidateProfile(p *Profile) *CoreError {
	if !p.Role.IsValid() {
		return NewValidationError(ErrCodeInvalidStatus, fmt.Sprintf("unknown role %q", p.Role))
	}
	if p.Role.RequiresCentres() && len(p.CentreIDs) == 0 {
		return NewValidationError(ErrCodeCentresRequired,
			fmt.Sprintf("role %s requires at least one assigned centre", p.Role))
	}
	return nil
}
