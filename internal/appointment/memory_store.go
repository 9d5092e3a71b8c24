package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a map-backed Repository and DoctorRepository. It enforces the same
// one-active-appointment-per-slot rule as the Postgres partial unique index.
type MemoryStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	doctors      map[uuid.UUID]*Doctor
	retired      map[uuid.UUID]bool
	events       []EventLog
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: make(map[uuid.UUID]*Appointment),
		doctors:      make(map[uuid.UUID]*Doctor),
		retired:      make(map[uuid.UUID]bool),
		now:          time.Now,
	}
}

var (
	_ Repository       = (*MemoryStore)(nil)
	_ DoctorRepository = (*MemoryStore)(nil)
)

func cloneAppointment(a *Appointment) Appointment {
	c := *a
	if a.Rating != nil {
		r := *a.Rating
		c.Rating = &r
	}
	return c
}

func cloneDoctor(d *Doctor) *Doctor {
	c := *d
	c.Availability = append([]AvailabilityEntry(nil), d.Availability...)
	return &c
}

func sameSlot(a *Appointment, doctorID uuid.UUID, date time.Time, hhmm string) bool {
	return a.DoctorID == doctorID && a.Date.Equal(date) && a.Time == hhmm
}

// slotTakenLocked reports whether an active appointment other than exclude holds the slot.
func (m *MemoryStore) slotTakenLocked(doctorID uuid.UUID, date time.Time, hhmm string, exclude uuid.UUID) *Appointment {
	for _, a := range m.appointments {
		if a.ID != exclude && a.Status.Active() && sameSlot(a, doctorID, date, hhmm) {
			return a
		}
	}
	return nil
}

func (m *MemoryStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	c := cloneAppointment(a)
	return &c, nil
}

func (m *MemoryStore) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Appointment
	for _, a := range m.appointments {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Date != nil && !a.Date.Equal(DateOnly(*f.Date)) {
			continue
		}
		matched = append(matched, cloneAppointment(a))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		if matched[i].Time != matched[j].Time {
			return matched[i].Time > matched[j].Time
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if f.Offset < 0 || f.Offset >= total {
		return []Appointment{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (m *MemoryStore) ListActiveForDoctorOnDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Appointment{}
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status.Active() && a.Date.Equal(date) {
			out = append(out, cloneAppointment(a))
		}
	}
	return out, nil
}

func (m *MemoryStore) FindActiveInSlot(_ context.Context, doctorID uuid.UUID, date time.Time, hhmm string, exclude *uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	skip := uuid.Nil
	if exclude != nil {
		skip = *exclude
	}
	a := m.slotTakenLocked(doctorID, date, hhmm, skip)
	if a == nil {
		return nil, ErrAppointmentNotFound
	}
	c := cloneAppointment(a)
	return &c, nil
}

func (m *MemoryStore) activeForDoctorLocked(doctorID uuid.UUID) int {
	n := 0
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status.Active() {
			n++
		}
	}
	return n
}

func (m *MemoryStore) CreateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(a)
}

func (m *MemoryStore) insertLocked(a *Appointment) error {
	if m.retired[a.DoctorID] {
		return ErrDoctorUnavailable
	}
	if a.Status.Active() && m.slotTakenLocked(a.DoctorID, a.Date, a.Time, uuid.Nil) != nil {
		return ErrSlotConflict
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := m.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	c := cloneAppointment(a)
	m.appointments[a.ID] = &c
	return nil
}

func (m *MemoryStore) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = m.now()
	c := cloneAppointment(a)
	return &c, nil
}

func (m *MemoryStore) UpdateAppointment(_ context.Context, a *Appointment, expected AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appointments[a.ID]
	if !ok || cur.Status != expected {
		return nil, ErrAppointmentNotFound
	}

	cur.Status = a.Status
	cur.Symptoms = a.Symptoms
	cur.DurationMinutes = a.DurationMinutes
	cur.Notes = a.Notes
	cur.Diagnosis = a.Diagnosis
	cur.Prescription = a.Prescription
	cur.FollowUpRequired = a.FollowUpRequired
	cur.FollowUpDate = a.FollowUpDate
	cur.PaymentStatus = a.PaymentStatus
	cur.CancellationReason = a.CancellationReason
	cur.CancelledBy = a.CancelledBy
	cur.CancelledAt = a.CancelledAt
	cur.UpdatedAt = m.now()

	c := cloneAppointment(cur)
	return &c, nil
}

func (m *MemoryStore) Reschedule(_ context.Context, expected AppointmentStatus, successor *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if successor.RescheduledFrom == nil {
		return ErrAppointmentNotFound
	}
	orig, ok := m.appointments[*successor.RescheduledFrom]
	if !ok || orig.Status != expected {
		return ErrAppointmentNotFound
	}

	prev := *orig
	orig.Status = StatusRescheduled
	orig.UpdatedAt = m.now()
	if err := m.insertLocked(successor); err != nil {
		*orig = prev
		return err
	}
	return nil
}

func (m *MemoryStore) SetRating(_ context.Context, id uuid.UUID, r Rating) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusCompleted || a.Rated() {
		return nil, ErrAlreadyRated
	}
	a.Rating = &r
	a.UpdatedAt = m.now()
	c := cloneAppointment(a)
	return &c, nil
}

func (m *MemoryStore) ClearRating(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Rating = nil
	return nil
}

func (m *MemoryStore) ListUpcoming(_ context.Context, status AppointmentStatus, fromDate, toDate time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Appointment{}
	for _, a := range m.appointments {
		if a.Status != status || a.Date.Before(fromDate) || a.Date.After(toDate) {
			continue
		}
		out = append(out, cloneAppointment(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (m *MemoryStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (m *MemoryStore) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EventLog(nil), m.events...)
}

// liveDoctorLocked returns the doctor unless it is unknown or retired.
func (m *MemoryStore) liveDoctorLocked(id uuid.UUID) (*Doctor, bool) {
	d, ok := m.doctors[id]
	if !ok || m.retired[id] {
		return nil, false
	}
	return d, true
}

func (m *MemoryStore) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.liveDoctorLocked(id)
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return cloneDoctor(d), nil
}

func (m *MemoryStore) GetDoctorByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.doctors {
		if d.UserID == userID && !m.retired[id] {
			return cloneDoctor(d), nil
		}
	}
	return nil, ErrDoctorNotFound
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (m *MemoryStore) listedLocked() []Doctor {
	var out []Doctor
	for id, d := range m.doctors {
		if !m.retired[id] && d.Bookable() {
			out = append(out, *cloneDoctor(d))
		}
	}
	return out
}

func (m *MemoryStore) ListDoctors(_ context.Context, f DoctorFilter) ([]Doctor, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Doctor
	for _, d := range m.listedLocked() {
		if f.Specialization != "" && !containsFold(d.Specialization, f.Specialization) {
			continue
		}
		if f.City != "" && !containsFold(d.City, f.City) {
			continue
		}
		matched = append(matched, d)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Rating.Average != matched[j].Rating.Average {
			return matched[i].Rating.Average > matched[j].Rating.Average
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if f.Offset < 0 || f.Offset >= total {
		return []Doctor{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (m *MemoryStore) Specializations(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	out := []string{}
	for _, d := range m.listedLocked() {
		if d.Specialization == "" || seen[d.Specialization] {
			continue
		}
		seen[d.Specialization] = true
		out = append(out, d.Specialization)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) CreateDoctor(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.doctors {
		if other.UserID == d.UserID && !m.retired[id] {
			return ErrDoctorProfileExists
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := m.now()
	d.CreatedAt = now
	d.UpdatedAt = now
	m.doctors[d.ID] = cloneDoctor(d)
	return nil
}

func (m *MemoryStore) UpdateProfile(_ context.Context, d *Doctor) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.liveDoctorLocked(d.ID)
	if !ok {
		return nil, ErrDoctorNotFound
	}
	stored.Name = d.Name
	stored.Specialization = d.Specialization
	stored.City = d.City
	stored.Bio = d.Bio
	stored.ConsultationFee = d.ConsultationFee
	stored.IsActive = d.IsActive
	stored.IsVerified = d.IsVerified
	stored.UpdatedAt = m.now()
	return cloneDoctor(stored), nil
}

func (m *MemoryStore) UpdateAvailability(_ context.Context, id uuid.UUID, entries []AvailabilityEntry) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.liveDoctorLocked(id)
	if !ok {
		return nil, ErrDoctorNotFound
	}
	d.Availability = append([]AvailabilityEntry(nil), entries...)
	d.UpdatedAt = m.now()
	return cloneDoctor(d), nil
}

func (m *MemoryStore) ApplyRating(_ context.Context, id uuid.UUID, score int) (RatingAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return RatingAggregate{}, ErrDoctorNotFound
	}
	d.Rating = d.Rating.With(score)
	d.UpdatedAt = m.now()
	return d.Rating, nil
}

// DeleteDoctor retires the doctor like the Postgres soft delete: it disappears from lookups
// but keeps receiving ratings for past appointments.
func (m *MemoryStore) DeleteDoctor(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.liveDoctorLocked(id)
	if !ok {
		return ErrDoctorNotFound
	}
	if m.activeForDoctorLocked(id) > 0 {
		return ErrDoctorHasActiveBookings
	}
	m.retired[id] = true
	d.IsActive = false
	d.UpdatedAt = m.now()
	return nil
}
