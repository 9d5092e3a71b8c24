package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")

	ErrForbidden                = errors.New("not authorized for this appointment")
	ErrInvalidInput             = errors.New("invalid input")
	ErrDoctorUnavailable        = errors.New("doctor is not available for appointments")
	ErrInvalidSchedule          = errors.New("appointment must be scheduled in the future")
	ErrSlotConflict             = errors.New("time slot is already booked")
	ErrAlreadyTerminal          = errors.New("appointment is already in a terminal state")
	ErrCancellationWindowClosed = errors.New("cannot cancel appointment within the cancellation window")
	ErrAlreadyRated             = errors.New("appointment already rated")
	ErrInvalidStatusTransition  = errors.New("invalid status transition")
	ErrDoctorHasActiveBookings  = errors.New("doctor has pending or confirmed appointments")
	ErrDoctorProfileExists      = errors.New("doctor profile already exists for this user")

	// ErrStorage marks infrastructure failures so callers can tell them apart from domain errors.
	ErrStorage = errors.New("storage failure")
)

// ValidationError is an ErrInvalidInput carrying the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrDoctorNotFound)
}
