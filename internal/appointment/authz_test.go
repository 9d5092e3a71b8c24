package appointment

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateAuthorize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := newPatient()
	appt := &Appointment{ID: uuid.New(), PatientID: owner.ID, DoctorID: f.doctor.ID}

	otherDocUser := Actor{ID: uuid.New(), Role: RoleDoctor}
	require.NoError(t, f.store.CreateDoctor(ctx, &Doctor{UserID: otherDocUser.ID, IsActive: true, IsVerified: true}))
	noProfile := Actor{ID: uuid.New(), Role: RoleDoctor}

	tests := []struct {
		name   string
		actor  Actor
		action Action
		allow  bool
	}{
		{"owner views", owner, ActionView, true},
		{"stranger views", newPatient(), ActionView, false},
		{"owner reschedules", owner, ActionReschedule, true},
		{"owner rates", owner, ActionRate, true},
		{"owner cannot complete", owner, ActionComplete, false},
		{"assigned doctor confirms", f.docUser, ActionConfirm, true},
		{"assigned doctor completes", f.docUser, ActionComplete, true},
		{"assigned doctor cannot reschedule", f.docUser, ActionReschedule, false},
		{"assigned doctor cannot rate", f.docUser, ActionRate, false},
		{"other doctor", otherDocUser, ActionView, false},
		{"doctor without profile", noProfile, ActionView, false},
		{"admin cancels", f.admin, ActionCancel, true},
		{"admin completes", f.admin, ActionComplete, true},
		{"admin cannot create", f.admin, ActionCreate, false},
		{"unknown role", Actor{ID: owner.ID, Role: "nurse"}, ActionView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.gate.Authorize(ctx, tt.actor, tt.action, appt)
			if tt.allow {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestListAppointments_Scoped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := &Doctor{UserID: uuid.New(), IsActive: true, IsVerified: true}
	require.NoError(t, f.store.CreateDoctor(ctx, other))

	alice, bob := newPatient(), newPatient()
	f.book(t, alice, "2030-01-08", "10:00")
	f.book(t, alice, "2030-01-09", "10:00")
	f.book(t, bob, "2030-01-08", "11:00")
	_, err := f.svc.CreateAppointment(ctx, bob, CreateInput{
		DoctorID: other.ID, Date: "2030-01-08", Time: "10:00", Reason: "Annual physical",
	})
	require.NoError(t, err)

	t.Run("patient sees only own", func(t *testing.T) {
		page, err := f.svc.ListAppointments(ctx, alice, ListQuery{PatientID: &bob.ID})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
		for _, a := range page.Items {
			assert.Equal(t, alice.ID, a.PatientID)
		}
		assert.Equal(t, "2030-01-09", page.Items[0].Date.Format(DateLayout))
	})

	t.Run("doctor sees own profile", func(t *testing.T) {
		page, err := f.svc.ListAppointments(ctx, f.docUser, ListQuery{DoctorID: &other.ID})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		for _, a := range page.Items {
			assert.Equal(t, f.doctor.ID, a.DoctorID)
		}
	})

	t.Run("doctor without profile sees nothing", func(t *testing.T) {
		page, err := f.svc.ListAppointments(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, ListQuery{})
		require.NoError(t, err)
		assert.Equal(t, 0, page.Total)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
	})

	t.Run("admin filters freely", func(t *testing.T) {
		page, err := f.svc.ListAppointments(ctx, f.admin, ListQuery{})
		require.NoError(t, err)
		assert.Equal(t, 4, page.Total)

		page, err = f.svc.ListAppointments(ctx, f.admin, ListQuery{DoctorID: &other.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)

		day := mustDate(t, "2030-01-08")
		page, err = f.svc.ListAppointments(ctx, f.admin, ListQuery{Date: &day, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 2, page.Pages)
		assert.Len(t, page.Items, 2)
	})

	t.Run("status filter", func(t *testing.T) {
		page, err := f.svc.ListAppointments(ctx, f.admin, ListQuery{Status: StatusConfirmed})
		require.NoError(t, err)
		assert.Equal(t, 0, page.Total)

		_, err = f.svc.ListAppointments(ctx, f.admin, ListQuery{Status: "lost"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("limit is capped", func(t *testing.T) {
		page, err := f.svc.ListAppointments(ctx, f.admin, ListQuery{Limit: 1000, Page: -3})
		require.NoError(t, err)
		assert.Equal(t, MaxPageSize, page.Limit)
		assert.Equal(t, 1, page.Page)
	})

	t.Run("huge page is empty", func(t *testing.T) {
		page, err := f.svc.ListAppointments(ctx, f.admin, ListQuery{Page: math.MaxInt64 / 50, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 4, page.Total)
		assert.Empty(t, page.Items)
		assert.Positive(t, page.Page)
	})
}

func TestMemoryStore_NegativeOffset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateAppointment(ctx, &Appointment{
		PatientID: uuid.New(), DoctorID: uuid.New(), Date: mustDate(t, "2030-01-08"), Time: "10:00", Status: StatusPending,
	}))

	items, total, err := store.ListAppointments(ctx, ListFilter{Offset: -16, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Empty(t, items)
}

func TestDoctorProfileAdministration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	week := []AvailabilityEntry{{DayOfWeek: "Friday", StartTime: "8:00", EndTime: "12:00", IsAvailable: true}}

	_, err := f.svc.UpdateAvailability(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, f.doctor.ID, week)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateAvailability(ctx, newPatient(), f.doctor.ID, week)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateAvailability(ctx, f.admin, uuid.New(), week)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	doc, err := f.svc.UpdateAvailability(ctx, f.docUser, f.doctor.ID, week)
	require.NoError(t, err)
	assert.Equal(t, []AvailabilityEntry{{DayOfWeek: Friday, StartTime: "08:00", EndTime: "12:00", IsAvailable: true}}, doc.Availability)

	appt := f.book(t, newPatient(), "2030-01-11", "08:00")

	assert.ErrorIs(t, f.svc.DeleteDoctor(ctx, f.docUser, f.doctor.ID), ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteDoctor(ctx, f.admin, f.doctor.ID), ErrDoctorHasActiveBookings)

	_, err = f.svc.CancelAppointment(ctx, f.admin, appt.ID, CancelInput{Reason: "doctor leaving"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteDoctor(ctx, f.admin, f.doctor.ID))
	_, err = f.svc.GetDoctor(ctx, f.doctor.ID)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.ErrorIs(t, f.svc.DeleteDoctor(ctx, f.admin, f.doctor.ID), ErrDoctorNotFound)
}
