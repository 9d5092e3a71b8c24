package appointment

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type ListQuery struct {
	Status    AppointmentStatus
	PatientID *uuid.UUID // admin only
	DoctorID  *uuid.UUID // admin only
	Date      *time.Time
	Page      int
	Limit     int
}

type Page struct {
	Items []Appointment
	Total int
	Page  int
	Pages int
	Limit int
}

// GetAppointment returns one appointment the actor is allowed to see.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, actor, ActionView, id)
}

// ListAppointments lists appointments visible to actor, newest date and time first.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, q ListQuery) (Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return Page{}, invalid("status", "%q is not an appointment status", q.Status)
	}
	var offset int
	q.Page, q.Limit, offset = paginate(q.Page, q.Limit)

	f := ListFilter{
		PatientID: q.PatientID,
		DoctorID:  q.DoctorID,
		Status:    q.Status,
		Date:      q.Date,
		Limit:     q.Limit,
		Offset:    offset,
	}
	f, ok, err := s.gate.Scope(ctx, actor, f)
	if err != nil {
		return Page{}, err
	}
	page := Page{Items: []Appointment{}, Page: q.Page, Limit: q.Limit}
	if !ok {
		return page, nil
	}

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return Page{}, storageErr("list appointments", err)
	}
	page.Items = items
	page.Total = total
	page.Pages = pageCount(total, q.Limit)
	return page, nil
}

// paginate applies the default and maximum page size and returns the row offset. The page is
// capped so that (page-1)*limit cannot overflow into a negative offset.
func paginate(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}
	return page, limit, (page - 1) * limit
}

func pageCount(total, limit int) int {
	return (total + limit - 1) / limit
}

// AvailableSlots returns the free slot start times for a doctor on date.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	doctor, err := s.doctors.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, storageErr("load doctor", err)
	}

	day := DateOnly(date)
	booked, err := s.repo.ListActiveForDoctorOnDate(ctx, doctor.ID, day)
	if err != nil {
		return nil, storageErr("list booked appointments", err)
	}
	return ComputeSlots(doctor.Availability, booked, day), nil
}

// UpcomingConfirmed returns confirmed appointments starting within the next lead duration.
func (s *Service) UpcomingConfirmed(ctx context.Context, lead time.Duration) ([]Appointment, error) {
	now := s.now()
	until := now.Add(lead)
	loc := s.location()

	candidates, err := s.repo.ListUpcoming(ctx, StatusConfirmed, DateOnly(now.In(loc)), DateOnly(until.In(loc)))
	if err != nil {
		return nil, storageErr("list upcoming appointments", err)
	}

	due := make([]Appointment, 0, len(candidates))
	for _, a := range candidates {
		at := a.ScheduledAt(loc)
		if at.After(now) && !at.After(until) {
			due = append(due, a)
		}
	}
	return due, nil
}

// RecordReminder writes the reminder event for an appointment to the event log.
func (s *Service) RecordReminder(ctx context.Context, a Appointment) {
	s.logEvent(ctx, a.ID, EventReminderSent, map[string]any{
		"patient_id": a.PatientID.String(),
		"doctor_id":  a.DoctorID.String(),
	})
}
