package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) addDoctor(t *testing.T, d *Doctor) *Doctor {
	t.Helper()
	if d.UserID == uuid.Nil {
		d.UserID = uuid.New()
	}
	require.NoError(t, f.store.CreateDoctor(context.Background(), d))
	return d
}

func doctorIDs(ds []Doctor) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}

func TestListDoctors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	heart := f.addDoctor(t, &Doctor{Name: "Dr. Beat", Specialization: "Cardiology", City: "Berlin",
		IsActive: true, IsVerified: true, Rating: RatingAggregate{Average: 4.8, Count: 10}})
	child := f.addDoctor(t, &Doctor{Name: "Dr. Small", Specialization: "Pediatric Cardiology", City: "Hamburg",
		IsActive: true, IsVerified: true, Rating: RatingAggregate{Average: 3.9, Count: 4}})
	f.addDoctor(t, &Doctor{Name: "Dr. New", Specialization: "Cardiology", City: "Berlin", IsActive: true})
	f.addDoctor(t, &Doctor{Name: "Dr. Away", Specialization: "Dermatology", IsVerified: true})

	t.Run("only bookable doctors, best rated first", func(t *testing.T) {
		page, err := f.svc.ListDoctors(ctx, DoctorQuery{})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, []uuid.UUID{heart.ID, child.ID, f.doctor.ID}, doctorIDs(page.Items))
		assert.Equal(t, DefaultPageSize, page.Limit)
		assert.Equal(t, 1, page.Pages)
	})

	t.Run("specialization matches case-insensitively", func(t *testing.T) {
		page, err := f.svc.ListDoctors(ctx, DoctorQuery{Specialization: "CARDIO"})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{heart.ID, child.ID}, doctorIDs(page.Items))
	})

	t.Run("city filter", func(t *testing.T) {
		page, err := f.svc.ListDoctors(ctx, DoctorQuery{City: "hamb"})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{child.ID}, doctorIDs(page.Items))
	})

	t.Run("paging", func(t *testing.T) {
		page, err := f.svc.ListDoctors(ctx, DoctorQuery{Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 2, page.Pages)
		assert.Equal(t, []uuid.UUID{f.doctor.ID}, doctorIDs(page.Items))

		page, err = f.svc.ListDoctors(ctx, DoctorQuery{Page: 1 << 62, Limit: 2})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})

	t.Run("retired doctors drop out", func(t *testing.T) {
		require.NoError(t, f.svc.DeleteDoctor(ctx, f.admin, child.ID))
		page, err := f.svc.ListDoctors(ctx, DoctorQuery{Specialization: "cardio"})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{heart.ID}, doctorIDs(page.Items))
	})
}

func TestSpecializations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addDoctor(t, &Doctor{Specialization: "cardiology", IsActive: true, IsVerified: true})
	f.addDoctor(t, &Doctor{Specialization: "cardiology", IsActive: true, IsVerified: true})
	f.addDoctor(t, &Doctor{Specialization: "oncology", IsActive: true})

	got, err := f.svc.Specializations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cardiology", "diagnostics"}, got)
}

func TestCreateDoctorProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	valid := DoctorProfileInput{
		Name:            "  Dr. Grey ",
		Specialization:  "Surgery",
		City:            "Seattle",
		ConsultationFee: 90,
		Availability:    []AvailabilityEntry{{DayOfWeek: "Tuesday", StartTime: "9:00", EndTime: "12:00", IsAvailable: true}},
	}

	t.Run("doctor creates own unverified profile", func(t *testing.T) {
		user := Actor{ID: uuid.New(), Role: RoleDoctor}
		d, err := f.svc.CreateDoctorProfile(ctx, user, valid)
		require.NoError(t, err)
		assert.Equal(t, user.ID, d.UserID)
		assert.Equal(t, "Dr. Grey", d.Name)
		assert.True(t, d.IsActive)
		assert.False(t, d.IsVerified)
		assert.Equal(t, "09:00", d.Availability[0].StartTime)

		_, err = f.svc.CreateAppointment(ctx, newPatient(), CreateInput{
			DoctorID: d.ID, Date: "2030-01-08", Time: "10:00", Reason: "Recurring headaches",
		})
		assert.ErrorIs(t, err, ErrDoctorUnavailable)

		_, err = f.svc.CreateDoctorProfile(ctx, user, valid)
		assert.ErrorIs(t, err, ErrDoctorProfileExists)
	})

	t.Run("admin creates for a named account", func(t *testing.T) {
		_, err := f.svc.CreateDoctorProfile(ctx, f.admin, valid)
		assert.ErrorIs(t, err, ErrInvalidInput)

		owner := uuid.New()
		in := valid
		in.UserID = &owner
		d, err := f.svc.CreateDoctorProfile(ctx, f.admin, in)
		require.NoError(t, err)
		assert.Equal(t, owner, d.UserID)
	})

	t.Run("rejected", func(t *testing.T) {
		_, err := f.svc.CreateDoctorProfile(ctx, newPatient(), valid)
		assert.ErrorIs(t, err, ErrForbidden)

		someoneElse := uuid.New()
		in := valid
		in.UserID = &someoneElse
		_, err = f.svc.CreateDoctorProfile(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, in)
		assert.ErrorIs(t, err, ErrForbidden)

		in = valid
		in.ConsultationFee = -1
		_, err = f.svc.CreateDoctorProfile(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, in)
		assert.ErrorIs(t, err, ErrInvalidInput)

		in = valid
		in.Specialization = " "
		_, err = f.svc.CreateDoctorProfile(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, in)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "specialization", verr.Field)
	})
}

func TestUpdateDoctorProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	fee := func(v float64) *float64 { return &v }
	yes := true

	booked := f.book(t, newPatient(), "2030-01-08", "10:00")

	d, err := f.svc.UpdateDoctorProfile(ctx, f.docUser, f.doctor.ID, DoctorProfileUpdate{ConsultationFee: fee(150)})
	require.NoError(t, err)
	assert.Equal(t, 150.0, d.ConsultationFee)
	assert.Equal(t, "Dr. House", d.Name)

	kept, err := f.svc.GetAppointment(ctx, f.admin, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.0, kept.ConsultationFee, "booked appointments keep their fee")
	assert.Equal(t, 150.0, f.book(t, newPatient(), "2030-01-08", "11:00").ConsultationFee)

	_, err = f.svc.UpdateDoctorProfile(ctx, f.docUser, f.doctor.ID, DoctorProfileUpdate{IsVerified: &yes})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateDoctorProfile(ctx, Actor{ID: uuid.New(), Role: RoleDoctor}, f.doctor.ID, DoctorProfileUpdate{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateDoctorProfile(ctx, f.docUser, f.doctor.ID, DoctorProfileUpdate{ConsultationFee: fee(-5)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.UpdateDoctorProfile(ctx, f.admin, uuid.New(), DoctorProfileUpdate{})
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	fresh := f.addDoctor(t, &Doctor{Name: "Dr. Pending", Specialization: "Surgery", IsActive: true})
	d, err = f.svc.UpdateDoctorProfile(ctx, f.admin, fresh.ID, DoctorProfileUpdate{IsVerified: &yes})
	require.NoError(t, err)
	assert.True(t, d.Bookable())
}

func TestDeleteDoctor_RetiredDoctorKeepsRatings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := newPatient()
	appt := f.completed(t, p, "2030-01-08", "10:00")

	require.NoError(t, f.svc.DeleteDoctor(ctx, f.admin, f.doctor.ID))

	_, err := f.svc.GetDoctor(ctx, f.doctor.ID)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	_, err = f.svc.CreateAppointment(ctx, newPatient(), CreateInput{
		DoctorID: f.doctor.ID, Date: "2030-01-08", Time: "11:00", Reason: "Recurring headaches",
	})
	assert.ErrorIs(t, err, ErrDoctorUnavailable)

	rated, err := f.svc.RateAppointment(ctx, p, appt.ID, RateInput{Score: 5})
	require.NoError(t, err)
	assert.True(t, rated.Rated())
}

func TestDeleteDoctor_RacesBooking(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx := context.Background()
		f := newFixture(t)

		var (
			wg        sync.WaitGroup
			deleteErr error
			bookErr   error
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			deleteErr = f.svc.DeleteDoctor(ctx, f.admin, f.doctor.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, bookErr = f.svc.CreateAppointment(ctx, newPatient(), CreateInput{
				DoctorID: f.doctor.ID, Date: "2030-01-08", Time: "10:00", Reason: "Recurring headaches",
			})
		}()
		close(start)
		wg.Wait()

		switch {
		case deleteErr == nil:
			require.ErrorIs(t, bookErr, ErrDoctorUnavailable, "booking landed on a retired doctor")
		case errors.Is(deleteErr, ErrDoctorHasActiveBookings):
			require.NoError(t, bookErr)
		default:
			t.Fatalf("unexpected delete error: %v", deleteErr)
		}
	}
}
