package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

// Source yields appointments that are due for a reminder.
type Source interface {
	UpcomingConfirmed(ctx context.Context, lead time.Duration) ([]appointment.Appointment, error)
	RecordReminder(ctx context.Context, a appointment.Appointment)
}

// Notifier publishes a reminder at most once per id.
type Notifier interface {
	PublishOnce(ctx context.Context, id string, fields map[string]any) (bool, error)
}

type Result struct {
	Due     int
	Sent    int
	Skipped int
	Failed  int
}

type Job struct {
	src      Source
	notifier Notifier
	lead     time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

func NewJob(src Source, notifier Notifier, lead time.Duration, logger zerolog.Logger) *Job {
	return &Job{
		src:      src,
		notifier: notifier,
		lead:     lead,
		timeout:  20 * time.Second,
		log:      logger.With().Str("component", "reminder").Logger(),
	}
}

// Run publishes one reminder for every confirmed appointment starting within the lead time.
// A failed publish is logged and retried on the next run.
func (j *Job) Run(ctx context.Context) (Result, error) {
	due, err := j.src.UpcomingConfirmed(ctx, j.lead)
	if err != nil {
		return Result{}, fmt.Errorf("load upcoming appointments: %w", err)
	}

	res := Result{Due: len(due)}
	for _, a := range due {
		sent, err := j.notifier.PublishOnce(ctx, a.ID.String(), map[string]any{
			"appointment_id": a.ID.String(),
			"patient_id":     a.PatientID.String(),
			"doctor_id":      a.DoctorID.String(),
			"date":           a.Date.Format(appointment.DateLayout),
			"time":           a.Time,
		})
		switch {
		case err != nil:
			res.Failed++
			j.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("publish reminder")
		case sent:
			res.Sent++
			j.src.RecordReminder(ctx, a)
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// Schedule registers the job on c under spec. Each tick runs with its own timeout.
func (j *Job) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, j.timeout)
		defer cancel()

		start := time.Now()
		res, err := j.Run(runCtx)
		if err != nil {
			j.log.Error().Err(err).Msg("reminder run failed")
			return
		}
		j.log.Info().
			Int("due", res.Due).
			Int("sent", res.Sent).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Dur("took", time.Since(start)).
			Msg("reminder run complete")
	})
}
