package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

// CreateAppointment books a pending appointment for the calling patient.
// Preconditions are checked in order: doctor bookable, time in the future, slot free.
// The slot check and insert run under a per-slot lock, and the store rejects a second
// active booking on its own, so concurrent requests for one slot yield a single winner.
func (s *Service) CreateAppointment(ctx context.Context, actor Actor, in CreateInput) (*Appointment, error) {
	slot, err := in.normalize()
	if err != nil {
		return nil, err
	}

	proposed := &Appointment{PatientID: actor.ID, DoctorID: in.DoctorID}
	if err := s.gate.Authorize(ctx, actor, ActionCreate, proposed); err != nil {
		return nil, err
	}

	doctor, err := s.doctors.GetDoctorByID(ctx, in.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrDoctorUnavailable, err)
		}
		return nil, storageErr("load doctor", err)
	}
	if !doctor.Bookable() {
		return nil, ErrDoctorUnavailable
	}

	if err := s.requireFuture(slot); err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.withSlotLock(ctx, doctor.ID, slot, func(lockCtx context.Context) error {
		if err := s.ensureSlotFree(lockCtx, doctor.ID, slot, nil); err != nil {
			return err
		}

		appt := &Appointment{
			ID:              uuid.New(),
			PatientID:       actor.ID,
			DoctorID:        doctor.ID,
			Date:            slot.date,
			Time:            slot.time,
			DurationMinutes: DefaultDurationMinutes,
			Status:          StatusPending,
			Reason:          in.Reason,
			Symptoms:        in.Symptoms,
			ConsultationFee: doctor.ConsultationFee,
			PaymentStatus:   PaymentPending,
		}
		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			if errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrDoctorUnavailable) {
				return err
			}
			return storageErr("create appointment", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"doctor_id":  doctor.ID.String(),
			"patient_id": actor.ID.String(),
			"date":       slot.date.Format(DateLayout),
			"time":       slot.time,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", doctor.ID.String()).
		Msg("appointment created")

	return created, nil
}

func (s *Service) requireFuture(slot slotInput) error {
	at, err := scheduledAt(slot.date, slot.time, s.location())
	if err != nil {
		return err
	}
	if !at.After(s.now()) {
		return ErrInvalidSchedule
	}
	return nil
}

// ensureSlotFree fails with ErrSlotConflict when another active appointment holds the slot.
// exclude skips one appointment id, used when the holder is the one being rescheduled.
func (s *Service) ensureSlotFree(ctx context.Context, doctorID uuid.UUID, slot slotInput, exclude *uuid.UUID) error {
	existing, err := s.repo.FindActiveInSlot(ctx, doctorID, slot.date, slot.time, exclude)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return storageErr("check slot", err)
	}
	if existing != nil {
		return ErrSlotConflict
	}
	return nil
}

func (s *Service) withSlotLock(ctx context.Context, doctorID uuid.UUID, slot slotInput, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, SlotKey(doctorID, slot.date, slot.time), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotConflict
	}
	return err
}
