package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusCompleted   AppointmentStatus = "completed"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// Active statuses block reuse of a (doctor, date, time) slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusRescheduled
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRescheduled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentPending || p == PaymentPaid || p == PaymentRefunded
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Actor is the caller identity supplied by the session provider. It is trusted as-is.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

const (
	DefaultDurationMinutes = 30
	MinDurationMinutes     = 15
	MaxDurationMinutes     = 120
)

type Rating struct {
	Score   int
	Review  string
	RatedAt time.Time
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	Date            time.Time // midnight UTC, only the calendar date is meaningful
	Time            string    // HH:MM, clinic-local
	DurationMinutes int
	Status          AppointmentStatus
	Reason          string
	Symptoms        string

	Notes            string
	Diagnosis        string
	Prescription     string
	FollowUpRequired bool
	FollowUpDate     *time.Time

	ConsultationFee float64
	PaymentStatus   PaymentStatus

	CancellationReason string
	CancelledBy        *uuid.UUID
	CancelledAt        *time.Time

	RescheduledFrom *uuid.UUID
	Rating          *Rating

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduledAt resolves the appointment's date and time in the clinic's location.
func (a *Appointment) ScheduledAt(loc *time.Location) time.Time {
	at, err := scheduledAt(a.Date, a.Time, loc)
	if err != nil {
		return a.Date
	}
	return at
}

func (a *Appointment) Rated() bool {
	return a.Rating != nil && a.Rating.Score > 0
}

// Weekday names as stored in availability templates.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdays = map[time.Weekday]Weekday{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

func WeekdayOf(d time.Time) Weekday {
	return weekdays[d.Weekday()]
}

func (w Weekday) Valid() bool {
	for _, v := range weekdays {
		if v == w {
			return true
		}
	}
	return false
}

type AvailabilityEntry struct {
	DayOfWeek   Weekday `json:"dayOfWeek"`
	StartTime   string  `json:"startTime"`
	EndTime     string  `json:"endTime"`
	IsAvailable bool    `json:"isAvailable"`
}

type RatingAggregate struct {
	Average float64
	Count   int
}

type Doctor struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Name            string
	Specialization  string
	City            string
	Bio             string
	ConsultationFee float64
	IsActive        bool
	IsVerified      bool
	Availability    []AvailabilityEntry
	Rating          RatingAggregate
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Bookable reports whether new appointments may be created against the doctor.
func (d *Doctor) Bookable() bool {
	return d.IsActive && d.IsVerified
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
