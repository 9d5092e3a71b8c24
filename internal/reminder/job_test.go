package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

type fakeSource struct {
	due      []appointment.Appointment
	err      error
	recorded []uuid.UUID
}

func (f *fakeSource) UpcomingConfirmed(context.Context, time.Duration) ([]appointment.Appointment, error) {
	return f.due, f.err
}

func (f *fakeSource) RecordReminder(_ context.Context, a appointment.Appointment) {
	f.recorded = append(f.recorded, a.ID)
}

type fakeNotifier struct {
	mu     sync.Mutex
	seen   map[string]bool
	failOn string
}

func (n *fakeNotifier) PublishOnce(_ context.Context, id string, fields map[string]any) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if id == n.failOn {
		return false, errors.New("stream unavailable")
	}
	if n.seen[id] {
		return false, nil
	}
	n.seen[id] = true
	return true, nil
}

func appt() appointment.Appointment {
	return appointment.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		Date:      time.Date(2030, 1, 8, 0, 0, 0, 0, time.UTC),
		Time:      "09:00",
		Status:    appointment.StatusConfirmed,
	}
}

func TestJobRun_PublishesEachAppointmentOnce(t *testing.T) {
	a, b := appt(), appt()
	src := &fakeSource{due: []appointment.Appointment{a, b}}
	n := &fakeNotifier{seen: map[string]bool{}}
	job := NewJob(src, n, 24*time.Hour, zerolog.Nop())

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Due: 2, Sent: 2}, res)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, src.recorded)

	res, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Due: 2, Skipped: 2}, res)
	assert.Len(t, src.recorded, 2)
}

func TestJobRun_CountsFailures(t *testing.T) {
	a, b := appt(), appt()
	src := &fakeSource{due: []appointment.Appointment{a, b}}
	n := &fakeNotifier{seen: map[string]bool{}, failOn: a.ID.String()}
	job := NewJob(src, n, time.Hour, zerolog.Nop())

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []uuid.UUID{b.ID}, src.recorded)
}

func TestJobRun_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	job := NewJob(src, &fakeNotifier{seen: map[string]bool{}}, time.Hour, zerolog.Nop())

	_, err := job.Run(context.Background())
	require.Error(t, err)
}

func TestJobSchedule_RejectsBadSpec(t *testing.T) {
	job := NewJob(&fakeSource{}, &fakeNotifier{seen: map[string]bool{}}, time.Hour, zerolog.Nop())

	_, err := job.Schedule(context.Background(), cron.New(), "not a cron spec")
	require.Error(t, err)

	_, err = job.Schedule(context.Background(), cron.New(), "*/5 * * * *")
	require.NoError(t, err)
}
