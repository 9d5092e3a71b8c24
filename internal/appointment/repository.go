package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows appointment listings. Nil/zero fields do not filter.
type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    AppointmentStatus
	Date      *time.Time
	Limit     int
	Offset    int
}

// Repository contains all appointment storage interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error)

	// For slot computation and conflict checks
	ListActiveForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	FindActiveInSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, hhmm string, exclude *uuid.UUID) (*Appointment, error)

	// CreateAppointment must reject a second active appointment in the same slot with ErrSlotConflict,
	// and a booking against a retired doctor with ErrDoctorUnavailable.
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	// UpdateAppointment persists the mutable fields of a, only if the stored status still equals expected.
	UpdateAppointment(ctx context.Context, a *Appointment, expected AppointmentStatus) (*Appointment, error)
	// Reschedule flips the original (successor.RescheduledFrom) from expected to rescheduled and
	// inserts successor, atomically.
	Reschedule(ctx context.Context, expected AppointmentStatus, successor *Appointment) error

	// SetRating stores r only if the appointment is completed and unrated, else ErrAlreadyRated.
	SetRating(ctx context.Context, id uuid.UUID, r Rating) (*Appointment, error)
	ClearRating(ctx context.Context, id uuid.UUID) error

	// ListUpcoming returns appointments with status whose date lies in [fromDate, toDate], ordered by date and time.
	ListUpcoming(ctx context.Context, status AppointmentStatus, fromDate, toDate time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// DoctorFilter narrows the public doctor directory. Text filters match case-insensitively
// anywhere in the field.
type DoctorFilter struct {
	Specialization string
	City           string
	Limit          int
	Offset         int
}

// DoctorRepository is the doctor profile provider.
type DoctorRepository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	// ListDoctors returns active, verified doctors, best rated first, and the unpaged total.
	ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, int, error)
	// Specializations returns the distinct specializations of active, verified doctors, sorted.
	Specializations(ctx context.Context) ([]string, error)

	// CreateDoctor fails with ErrDoctorProfileExists when the user already has a live profile.
	CreateDoctor(ctx context.Context, d *Doctor) error
	// UpdateProfile persists the editable profile fields of d (not availability or rating).
	UpdateProfile(ctx context.Context, d *Doctor) (*Doctor, error)
	UpdateAvailability(ctx context.Context, id uuid.UUID, entries []AvailabilityEntry) (*Doctor, error)
	// ApplyRating folds score into the doctor's aggregate as one atomic step. It also applies
	// to retired doctors, whose completed appointments can still be rated.
	ApplyRating(ctx context.Context, id uuid.UUID, score int) (RatingAggregate, error)
	// DeleteDoctor retires the profile. The active-appointment check (ErrDoctorHasActiveBookings)
	// and the write are one atomic step. Appointment history keeps referring to the profile.
	DeleteDoctor(ctx context.Context, id uuid.UUID) error
}
