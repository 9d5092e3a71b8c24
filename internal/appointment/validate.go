package appointment

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	reasonMin             = 10
	reasonMax             = 200
	symptomsMax           = 500
	notesMax              = 1000
	diagnosisMax          = 500
	prescriptionMax       = 1000
	cancellationReasonMax = 200
	reviewMax             = 500
)

type CreateInput struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
	Reason   string
	Symptoms string
}

type RescheduleInput struct {
	Date string
	Time string
}

type CancelInput struct {
	Reason string
}

type ClinicalInput struct {
	Notes            string
	Diagnosis        string
	Prescription     string
	FollowUpRequired bool
	FollowUpDate     *time.Time
}

type RateInput struct {
	Score  int
	Review string
}

// UpdateInput is a partial update. Nil fields are left untouched.
type UpdateInput struct {
	Status           *AppointmentStatus
	Symptoms         *string
	DurationMinutes  *int
	Notes            *string
	Diagnosis        *string
	Prescription     *string
	FollowUpRequired *bool
	FollowUpDate     *time.Time
	PaymentStatus    *PaymentStatus
	ConsultationFee  *float64
}

func (in UpdateInput) touchesClinical() bool {
	return in.Notes != nil || in.Diagnosis != nil || in.Prescription != nil ||
		in.FollowUpRequired != nil || in.FollowUpDate != nil
}

type slotInput struct {
	date time.Time
	time string
}

func parseSlot(date, hhmm string) (slotInput, error) {
	d, err := ParseDate(date)
	if err != nil {
		return slotInput{}, err
	}
	t, err := ParseTimeOfDay(hhmm)
	if err != nil {
		return slotInput{}, err
	}
	return slotInput{date: d, time: t}, nil
}

func maxLen(field, v string, n int) error {
	if utf8.RuneCountInString(v) > n {
		return invalid(field, "must be at most %d characters", n)
	}
	return nil
}

func (in *CreateInput) normalize() (slotInput, error) {
	if in.DoctorID == uuid.Nil {
		return slotInput{}, invalid("doctorId", "is required")
	}
	in.Reason = strings.TrimSpace(in.Reason)
	in.Symptoms = strings.TrimSpace(in.Symptoms)
	if n := utf8.RuneCountInString(in.Reason); n < reasonMin || n > reasonMax {
		return slotInput{}, invalid("reason", "must be between %d and %d characters", reasonMin, reasonMax)
	}
	if err := maxLen("symptoms", in.Symptoms, symptomsMax); err != nil {
		return slotInput{}, err
	}
	return parseSlot(in.Date, in.Time)
}

func (in *ClinicalInput) validate() error {
	if err := maxLen("notes", in.Notes, notesMax); err != nil {
		return err
	}
	if err := maxLen("diagnosis", in.Diagnosis, diagnosisMax); err != nil {
		return err
	}
	return maxLen("prescription", in.Prescription, prescriptionMax)
}

func (in *RateInput) validate() error {
	if in.Score < MinScore || in.Score > MaxScore {
		return invalid("score", "must be between %d and %d", MinScore, MaxScore)
	}
	in.Review = strings.TrimSpace(in.Review)
	return maxLen("review", in.Review, reviewMax)
}

func (in UpdateInput) validate() error {
	if in.ConsultationFee != nil {
		return invalid("consultationFee", "cannot be changed after booking")
	}
	if in.DurationMinutes != nil && (*in.DurationMinutes < MinDurationMinutes || *in.DurationMinutes > MaxDurationMinutes) {
		return invalid("durationMinutes", "must be between %d and %d", MinDurationMinutes, MaxDurationMinutes)
	}
	if in.Symptoms != nil {
		if err := maxLen("symptoms", *in.Symptoms, symptomsMax); err != nil {
			return err
		}
	}
	if in.Notes != nil {
		if err := maxLen("notes", *in.Notes, notesMax); err != nil {
			return err
		}
	}
	if in.Diagnosis != nil {
		if err := maxLen("diagnosis", *in.Diagnosis, diagnosisMax); err != nil {
			return err
		}
	}
	if in.Prescription != nil {
		if err := maxLen("prescription", *in.Prescription, prescriptionMax); err != nil {
			return err
		}
	}
	if in.PaymentStatus != nil && !in.PaymentStatus.Valid() {
		return invalid("paymentStatus", "%q is not a payment status", *in.PaymentStatus)
	}
	if in.Status != nil && *in.Status != StatusConfirmed && *in.Status != StatusCompleted {
		return invalid("status", "only confirmed or completed can be set through update")
	}
	return nil
}

// ValidateAvailability checks a weekly template before it is stored.
func ValidateAvailability(entries []AvailabilityEntry) ([]AvailabilityEntry, error) {
	out := make([]AvailabilityEntry, 0, len(entries))
	for i, e := range entries {
		e.DayOfWeek = Weekday(strings.ToLower(string(e.DayOfWeek)))
		if !e.DayOfWeek.Valid() {
			return nil, invalid("availability", "entry %d: unknown day %q", i, e.DayOfWeek)
		}
		start, err := ParseTimeOfDay(e.StartTime)
		if err != nil {
			return nil, invalid("availability", "entry %d: bad startTime %q", i, e.StartTime)
		}
		end, err := ParseTimeOfDay(e.EndTime)
		if err != nil {
			return nil, invalid("availability", "entry %d: bad endTime %q", i, e.EndTime)
		}
		if e.IsAvailable && start >= end {
			return nil, invalid("availability", "entry %d: startTime must be before endTime", i)
		}
		e.StartTime, e.EndTime = start, end
		out = append(out, e)
	}
	return out, nil
}

const (
	doctorNameMax  = 100
	doctorFieldMax = 100
	bioMax         = 500
)

// DoctorProfileInput creates a doctor profile. UserID is only honoured for admins; a doctor
// always creates the profile for their own account.
type DoctorProfileInput struct {
	UserID          *uuid.UUID
	Name            string
	Specialization  string
	City            string
	Bio             string
	ConsultationFee float64
	Availability    []AvailabilityEntry
}

// DoctorProfileUpdate edits a profile. Nil fields are left alone. IsActive and IsVerified are
// admin-only.
type DoctorProfileUpdate struct {
	Name            *string
	Specialization  *string
	City            *string
	Bio             *string
	ConsultationFee *float64
	IsActive        *bool
	IsVerified      *bool
}

func validateProfile(name, specialization, city, bio string, fee float64) error {
	if name == "" {
		return invalid("name", "is required")
	}
	if err := maxLen("name", name, doctorNameMax); err != nil {
		return err
	}
	if specialization == "" {
		return invalid("specialization", "is required")
	}
	if err := maxLen("specialization", specialization, doctorFieldMax); err != nil {
		return err
	}
	if err := maxLen("city", city, doctorFieldMax); err != nil {
		return err
	}
	if err := maxLen("bio", bio, bioMax); err != nil {
		return err
	}
	if fee < 0 {
		return invalid("consultationFee", "cannot be negative")
	}
	return nil
}

func (in *DoctorProfileInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Specialization = strings.TrimSpace(in.Specialization)
	in.City = strings.TrimSpace(in.City)
	in.Bio = strings.TrimSpace(in.Bio)
	if err := validateProfile(in.Name, in.Specialization, in.City, in.Bio, in.ConsultationFee); err != nil {
		return err
	}
	availability, err := ValidateAvailability(in.Availability)
	if err != nil {
		return err
	}
	in.Availability = availability
	return nil
}

// applyTo merges the update into d and validates the result.
func (in DoctorProfileUpdate) applyTo(d *Doctor) error {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&d.Name, in.Name)
	set(&d.Specialization, in.Specialization)
	set(&d.City, in.City)
	set(&d.Bio, in.Bio)
	if in.ConsultationFee != nil {
		d.ConsultationFee = *in.ConsultationFee
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if in.IsVerified != nil {
		d.IsVerified = *in.IsVerified
	}
	return validateProfile(d.Name, d.Specialization, d.City, d.Bio, d.ConsultationFee)
}
