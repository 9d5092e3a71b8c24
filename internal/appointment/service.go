package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
	EventAppointmentRated       = "APPOINTMENT_RATED"
	EventReminderSent           = "APPOINTMENT_REMINDER_SENT"
)

const DefaultCancellationWindow = 24 * time.Hour

type Service struct {
	repo    Repository
	doctors DoctorRepository
	locker  redisclient.Locker
	gate    *Gate
	cfg     config.Config
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, doctors DoctorRepository, locker redisclient.Locker, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		doctors: doctors,
		locker:  locker,
		gate:    NewGate(doctors),
		cfg:     cfg,
		log:     logger.With().Str("component", "appointment").Logger(),
		now:     time.Now,
	}
}

func (s *Service) location() *time.Location {
	if s.cfg.Location != nil {
		return s.cfg.Location
	}
	return time.UTC
}

func (s *Service) cancellationWindow() time.Duration {
	if s.cfg.CancellationWindow > 0 {
		return s.cfg.CancellationWindow
	}
	return DefaultCancellationWindow
}

// SlotKey names the lock guarding one (doctor, date, time) slot.
func SlotKey(doctorID uuid.UUID, date time.Time, hhmm string) string {
	return "slot:" + doctorID.String() + ":" + date.Format(DateLayout) + ":" + hhmm
}

// CanBeCancelled is the display flag for confirmed appointments a patient may still cancel.
// It uses the same boundary as CancelAppointment: exactly the window ahead is still allowed.
func (s *Service) CanBeCancelled(a *Appointment) bool {
	if a.Status != StatusConfirmed {
		return false
	}
	return a.ScheduledAt(s.location()).Sub(s.now()) >= s.cancellationWindow()
}

func (s *Service) IsPast(a *Appointment) bool {
	return a.ScheduledAt(s.location()).Before(s.now())
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}

// load fetches an appointment and runs the gate for action.
func (s *Service) load(ctx context.Context, actor Actor, action Action, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, storageErr("load appointment", err)
	}
	if err := s.gate.Authorize(ctx, actor, action, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// staleWrite explains a failed compare-and-set on appointment id. Repositories report a status
// mismatch as ErrAppointmentNotFound, so the current row is re-read to pick the domain error.
func (s *Service) staleWrite(ctx context.Context, id uuid.UUID, op string, err error) error {
	if !errors.Is(err, ErrAppointmentNotFound) {
		return storageErr(op, err)
	}
	cur, gerr := s.repo.GetAppointmentByID(ctx, id)
	if gerr != nil {
		if errors.Is(gerr, ErrAppointmentNotFound) {
			return gerr
		}
		return storageErr(op, gerr)
	}
	if cur.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	return ErrInvalidStatusTransition
}
