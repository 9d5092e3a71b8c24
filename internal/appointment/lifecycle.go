package appointment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// checkTransition guards the status moves reachable from confirm, complete and update.
//
//	pending   -> confirmed
//	confirmed -> completed
//
// Cancellation and rescheduling have their own entry points.
func checkTransition(from, to AppointmentStatus) error {
	switch {
	case to == StatusConfirmed && from == StatusPending:
		return nil
	case to == StatusCompleted && from == StatusConfirmed:
		return nil
	case from.Terminal():
		return ErrAlreadyTerminal
	}
	return ErrInvalidStatusTransition
}

// ConfirmAppointment moves a pending appointment to confirmed.
func (s *Service) ConfirmAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, actor, ActionConfirm, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, StatusConfirmed); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusConfirmed)
	if err != nil {
		return nil, s.staleWrite(ctx, appt.ID, "confirm appointment", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{
		"confirmed_by": actor.ID.String(),
	})
	return updated, nil
}

// CancelAppointment cancels a pending or confirmed appointment. Patients cannot cancel once the
// appointment is inside the cancellation window; doctors and admins can.
func (s *Service) CancelAppointment(ctx context.Context, actor Actor, id uuid.UUID, in CancelInput) (*Appointment, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if err := maxLen("cancellationReason", in.Reason, cancellationReasonMax); err != nil {
		return nil, err
	}

	appt, err := s.load(ctx, actor, ActionCancel, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	now := s.now()
	if actor.Role == RolePatient && appt.ScheduledAt(s.location()).Sub(now) < s.cancellationWindow() {
		return nil, ErrCancellationWindowClosed
	}

	expected := appt.Status
	by := actor.ID
	appt.Status = StatusCancelled
	appt.CancellationReason = in.Reason
	appt.CancelledBy = &by
	appt.CancelledAt = &now

	updated, err := s.repo.UpdateAppointment(ctx, appt, expected)
	if err != nil {
		return nil, s.staleWrite(ctx, appt.ID, "cancel appointment", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"cancelled_by": actor.ID.String(),
		"role":         string(actor.Role),
		"reason":       in.Reason,
	})
	return updated, nil
}

// RescheduleAppointment books a linked successor at the new slot and retires the original as
// rescheduled. Both writes happen in one repository call.
func (s *Service) RescheduleAppointment(ctx context.Context, actor Actor, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	slot, err := parseSlot(in.Date, in.Time)
	if err != nil {
		return nil, err
	}

	appt, err := s.load(ctx, actor, ActionReschedule, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	if err := s.requireFuture(slot); err != nil {
		return nil, err
	}

	var successor *Appointment

	err = s.withSlotLock(ctx, appt.DoctorID, slot, func(lockCtx context.Context) error {
		if err := s.ensureSlotFree(lockCtx, appt.DoctorID, slot, &appt.ID); err != nil {
			return err
		}

		from := appt.ID
		next := &Appointment{
			ID:              uuid.New(),
			PatientID:       appt.PatientID,
			DoctorID:        appt.DoctorID,
			Date:            slot.date,
			Time:            slot.time,
			DurationMinutes: appt.DurationMinutes,
			Status:          StatusPending,
			Reason:          appt.Reason,
			Symptoms:        appt.Symptoms,
			ConsultationFee: appt.ConsultationFee,
			PaymentStatus:   PaymentPending,
			RescheduledFrom: &from,
		}
		if err := s.repo.Reschedule(lockCtx, appt.Status, next); err != nil {
			if errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrDoctorUnavailable) {
				return err
			}
			return s.staleWrite(lockCtx, appt.ID, "reschedule appointment", err)
		}
		successor = next

		s.logEvent(lockCtx, appt.ID, EventAppointmentRescheduled, map[string]any{
			"successor_id": next.ID.String(),
			"date":         slot.date.Format(DateLayout),
			"time":         slot.time,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("successor_id", successor.ID.String()).
		Msg("appointment rescheduled")

	return successor, nil
}

// CompleteAppointment closes a confirmed appointment and records the clinical outcome.
func (s *Service) CompleteAppointment(ctx context.Context, actor Actor, id uuid.UUID, in ClinicalInput) (*Appointment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	appt, err := s.load(ctx, actor, ActionComplete, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(appt.Status, StatusCompleted); err != nil {
		return nil, err
	}

	appt.Status = StatusCompleted
	appt.Notes = strings.TrimSpace(in.Notes)
	appt.Diagnosis = strings.TrimSpace(in.Diagnosis)
	appt.Prescription = strings.TrimSpace(in.Prescription)
	appt.FollowUpRequired = in.FollowUpRequired
	appt.FollowUpDate = in.FollowUpDate

	updated, err := s.repo.UpdateAppointment(ctx, appt, StatusConfirmed)
	if err != nil {
		return nil, s.staleWrite(ctx, appt.ID, "complete appointment", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{
		"completed_by":       actor.ID.String(),
		"follow_up_required": in.FollowUpRequired,
	})
	return updated, nil
}

// UpdateAppointment applies a partial update. Any party may edit symptoms and duration. Clinical
// fields and payment status are reserved to doctors and admins, and clinical fields only stick
// to completed appointments. A status change goes through the same guards as confirm/complete.
func (s *Service) UpdateAppointment(ctx context.Context, actor Actor, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	appt, err := s.load(ctx, actor, ActionUpdate, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled || appt.Status == StatusRescheduled {
		return nil, ErrAlreadyTerminal
	}
	if (in.touchesClinical() || in.PaymentStatus != nil) && actor.Role == RolePatient {
		return nil, ErrForbidden
	}

	expected := appt.Status
	next := appt.Status
	if in.Status != nil && *in.Status != appt.Status {
		action := ActionConfirm
		if *in.Status == StatusCompleted {
			action = ActionComplete
		}
		if err := s.gate.Authorize(ctx, actor, action, appt); err != nil {
			return nil, err
		}
		if err := checkTransition(appt.Status, *in.Status); err != nil {
			return nil, err
		}
		next = *in.Status
	}
	if in.touchesClinical() && next != StatusCompleted {
		return nil, invalid("status", "clinical fields can only be recorded on completed appointments")
	}

	appt.Status = next
	if in.Symptoms != nil {
		appt.Symptoms = strings.TrimSpace(*in.Symptoms)
	}
	if in.DurationMinutes != nil {
		appt.DurationMinutes = *in.DurationMinutes
	}
	if in.Notes != nil {
		appt.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.Diagnosis != nil {
		appt.Diagnosis = strings.TrimSpace(*in.Diagnosis)
	}
	if in.Prescription != nil {
		appt.Prescription = strings.TrimSpace(*in.Prescription)
	}
	if in.FollowUpRequired != nil {
		appt.FollowUpRequired = *in.FollowUpRequired
	}
	if in.FollowUpDate != nil {
		appt.FollowUpDate = in.FollowUpDate
	}
	if in.PaymentStatus != nil {
		appt.PaymentStatus = *in.PaymentStatus
	}

	updated, err := s.repo.UpdateAppointment(ctx, appt, expected)
	if err != nil {
		return nil, s.staleWrite(ctx, appt.ID, "update appointment", err)
	}

	event := EventAppointmentUpdated
	switch {
	case next == expected:
	case next == StatusConfirmed:
		event = EventAppointmentConfirmed
	case next == StatusCompleted:
		event = EventAppointmentCompleted
	}
	s.logEvent(ctx, updated.ID, event, map[string]any{
		"updated_by": actor.ID.String(),
	})
	return updated, nil
}

// RateAppointment stores the patient's one-time rating and folds the score into the doctor's
// aggregate. If the aggregate cannot be updated the rating is withdrawn so the pair stays in step.
func (s *Service) RateAppointment(ctx context.Context, actor Actor, id uuid.UUID, in RateInput) (*Appointment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	appt, err := s.load(ctx, actor, ActionRate, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusCompleted {
		return nil, ErrInvalidStatusTransition
	}
	if appt.Rated() {
		return nil, ErrAlreadyRated
	}

	rated, err := s.repo.SetRating(ctx, appt.ID, Rating{
		Score:   in.Score,
		Review:  in.Review,
		RatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRated) {
			return nil, err
		}
		return nil, storageErr("set rating", err)
	}

	agg, err := s.doctors.ApplyRating(ctx, appt.DoctorID, in.Score)
	if err != nil {
		if cerr := s.repo.ClearRating(ctx, appt.ID); cerr != nil {
			s.log.Error().Err(cerr).Str("appointment_id", appt.ID.String()).Msg("withdraw rating after aggregate failure")
		}
		return nil, storageErr("apply doctor rating", err)
	}

	s.logEvent(ctx, appt.ID, EventAppointmentRated, map[string]any{
		"doctor_id": appt.DoctorID.String(),
		"score":     in.Score,
		"average":   agg.Average,
		"count":     agg.Count,
	})
	return rated, nil
}
