package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// activeSlotIndex is the partial unique index that keeps one active appointment per slot.
const activeSlotIndex = "appointments_active_slot_uniq"

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const appointmentColumns = `
	id, patient_id, doctor_id, appointment_date, appointment_time, duration_minutes, status,
	reason, symptoms, notes, diagnosis, prescription, follow_up_required, follow_up_date,
	consultation_fee, payment_status, cancellation_reason, cancelled_by, cancelled_at,
	rescheduled_from, rating_score, rating_review, rated_at, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var score *int16
	var review *string
	var ratedAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&a.Time,
		&a.DurationMinutes,
		&a.Status,
		&a.Reason,
		&a.Symptoms,
		&a.Notes,
		&a.Diagnosis,
		&a.Prescription,
		&a.FollowUpRequired,
		&a.FollowUpDate,
		&a.ConsultationFee,
		&a.PaymentStatus,
		&a.CancellationReason,
		&a.CancelledBy,
		&a.CancelledAt,
		&a.RescheduledFrom,
		&score,
		&review,
		&ratedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if score != nil {
		a.Rating = &Rating{Score: int(*score)}
		if review != nil {
			a.Rating.Review = *review
		}
		if ratedAt != nil {
			a.Rating.RatedAt = *ratedAt
		}
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// translateWriteErr maps a violation of the active-slot index to ErrSlotConflict.
func translateWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeSlotIndex {
		return ErrSlotConflict
	}
	return err
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, int, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Date != nil {
		add("appointment_date = $%d", DateOnly(*f.Date))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM appointments `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s
		FROM appointments
		%s
		ORDER BY appointment_date DESC, appointment_time DESC, created_at DESC
		LIMIT $%d OFFSET $%d`, appointmentColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	items, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgRepository) ListActiveForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status IN ('pending', 'confirmed')
		ORDER BY appointment_time
	`, doctorID, DateOnly(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindActiveInSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, hhmm string, exclude *uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND appointment_time = $3
		  AND status IN ('pending', 'confirmed')
		  AND ($4::uuid IS NULL OR id <> $4)
		LIMIT 1
	`, doctorID, DateOnly(date), hhmm, exclude)
	return scanAppointment(row)
}

// insertAppointmentSQL inserts nothing when the doctor is retired. The FOR SHARE lock makes a
// concurrent DeleteDoctor wait for the booking, or the booking wait for the delete.
const insertAppointmentSQL = `
	INSERT INTO appointments (
		id, patient_id, doctor_id, appointment_date, appointment_time, duration_minutes, status,
		reason, symptoms, consultation_fee, payment_status, rescheduled_from, created_at, updated_at
	)
	SELECT $1::uuid, $2::uuid, $3::uuid, $4::date, $5::text, $6::int, $7::text,
	       $8::text, $9::text, $10::double precision, $11::text, $12::uuid, now(), now()
	WHERE EXISTS (
		SELECT 1
		FROM doctors
		WHERE id = $3::uuid
		  AND deleted_at IS NULL
		FOR SHARE
	)
	RETURNING created_at, updated_at`

func insertAppointment(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := q.QueryRow(ctx, insertAppointmentSQL,
		a.ID, a.PatientID, a.DoctorID, DateOnly(a.Date), a.Time, a.DurationMinutes, a.Status,
		a.Reason, a.Symptoms, a.ConsultationFee, a.PaymentStatus, a.RescheduledFrom,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDoctorUnavailable
	}
	return translateWriteErr(err)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	return insertAppointment(ctx, r.pool, a)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment, expected AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    symptoms = $4,
		    duration_minutes = $5,
		    notes = $6,
		    diagnosis = $7,
		    prescription = $8,
		    follow_up_required = $9,
		    follow_up_date = $10,
		    payment_status = $11,
		    cancellation_reason = $12,
		    cancelled_by = $13,
		    cancelled_at = $14,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns,
		a.ID, expected, a.Status, a.Symptoms, a.DurationMinutes, a.Notes, a.Diagnosis, a.Prescription,
		a.FollowUpRequired, a.FollowUpDate, a.PaymentStatus, a.CancellationReason, a.CancelledBy, a.CancelledAt,
	)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	return updated, nil
}

// Reschedule retires the original before inserting the successor, so moving an appointment
// to its own slot does not trip the active-slot index.
func (r *PgRepository) Reschedule(ctx context.Context, expected AppointmentStatus, successor *Appointment) error {
	if successor.RescheduledFrom == nil {
		return ErrAppointmentNotFound
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reschedule: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'rescheduled',
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
	`, *successor.RescheduledFrom, expected)
	if err != nil {
		return fmt.Errorf("retire original: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	if err := insertAppointment(ctx, tx, successor); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) SetRating(ctx context.Context, id uuid.UUID, rt Rating) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET rating_score = $2,
		    rating_review = $3,
		    rated_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'completed'
		  AND rating_score IS NULL
		RETURNING `+appointmentColumns, id, rt.Score, rt.Review, rt.RatedAt)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrAlreadyRated
	}
	return a, err
}

func (r *PgRepository) ClearRating(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET rating_score = NULL,
		    rating_review = NULL,
		    rated_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (r *PgRepository) ListUpcoming(ctx context.Context, status AppointmentStatus, fromDate, toDate time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date, appointment_time
	`, status, DateOnly(fromDate), DateOnly(toDate))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// PgDoctorRepository stores doctor profiles. Availability is a JSONB column.
type PgDoctorRepository struct {
	pool *pgxpool.Pool
}

func NewPgDoctorRepository(pool *pgxpool.Pool) *PgDoctorRepository {
	return &PgDoctorRepository{pool: pool}
}

var _ DoctorRepository = (*PgDoctorRepository)(nil)

const doctorColumns = `
	id, user_id, name, specialization, city, bio, consultation_fee, is_active, is_verified,
	availability, rating_average, rating_count, created_at, updated_at`

// doctorUserIndex keeps one live profile per user account.
const doctorUserIndex = "doctors_user_uniq"

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var availability []byte

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.Specialization,
		&d.City,
		&d.Bio,
		&d.ConsultationFee,
		&d.IsActive,
		&d.IsVerified,
		&availability,
		&d.Rating.Average,
		&d.Rating.Count,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if len(availability) > 0 {
		if err := json.Unmarshal(availability, &d.Availability); err != nil {
			return nil, fmt.Errorf("decode availability for doctor %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func (r *PgDoctorRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanDoctor(row)
}

func (r *PgDoctorRepository) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+`
		FROM doctors
		WHERE user_id = $1 AND deleted_at IS NULL
	`, userID)
	return scanDoctor(row)
}

func (r *PgDoctorRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	availability, err := json.Marshal(availabilityOrEmpty(d.Availability))
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, name, specialization, city, bio, consultation_fee, is_active,
		                     is_verified, availability, rating_average, rating_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING created_at, updated_at
	`, d.ID, d.UserID, d.Name, d.Specialization, d.City, d.Bio, d.ConsultationFee, d.IsActive, d.IsVerified,
		availability, d.Rating.Average, d.Rating.Count,
	).Scan(&d.CreatedAt, &d.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == doctorUserIndex {
		return ErrDoctorProfileExists
	}
	return err
}

// likePattern turns free text into an ILIKE substring pattern, escaping LIKE wildcards.
func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

func (r *PgDoctorRepository) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, int, error) {
	where := []string{"deleted_at IS NULL", "is_active", "is_verified"}
	args := []any{}

	if f.Specialization != "" {
		args = append(args, likePattern(f.Specialization))
		where = append(where, fmt.Sprintf("specialization ILIKE $%d", len(args)))
	}
	if f.City != "" {
		args = append(args, likePattern(f.City))
		where = append(where, fmt.Sprintf("city ILIKE $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM doctors WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE ` + cond +
		` ORDER BY rating_average DESC, created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	doctors := []Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		doctors = append(doctors, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return doctors, total, nil
}

func (r *PgDoctorRepository) Specializations(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT specialization
		FROM doctors
		WHERE deleted_at IS NULL
		  AND is_active
		  AND is_verified
		  AND specialization <> ''
		ORDER BY specialization
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PgDoctorRepository) UpdateProfile(ctx context.Context, d *Doctor) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET name = $2,
		    specialization = $3,
		    city = $4,
		    bio = $5,
		    consultation_fee = $6,
		    is_active = $7,
		    is_verified = $8,
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+doctorColumns,
		d.ID, d.Name, d.Specialization, d.City, d.Bio, d.ConsultationFee, d.IsActive, d.IsVerified,
	)
	return scanDoctor(row)
}

func (r *PgDoctorRepository) UpdateAvailability(ctx context.Context, id uuid.UUID, entries []AvailabilityEntry) (*Doctor, error) {
	availability, err := json.Marshal(availabilityOrEmpty(entries))
	if err != nil {
		return nil, fmt.Errorf("encode availability: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET availability = $2,
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+doctorColumns, id, availability)
	return scanDoctor(row)
}

// ApplyRating computes the new average in a single statement, so concurrent ratings for one
// doctor serialize on the row lock.
func (r *PgDoctorRepository) ApplyRating(ctx context.Context, id uuid.UUID, score int) (RatingAggregate, error) {
	var agg RatingAggregate
	err := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET rating_average = (rating_average * rating_count + $2::int) / (rating_count + 1),
		    rating_count = rating_count + 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING rating_average, rating_count
	`, id, score).Scan(&agg.Average, &agg.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return RatingAggregate{}, ErrDoctorNotFound
	}
	return agg, err
}

// DeleteDoctor locks the doctor row first, so bookings that hold it FOR SHARE have committed
// before the active-appointment check runs, and later bookings see the retired row.
func (r *PgDoctorRepository) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete doctor: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM doctors
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDoctorNotFound
	}
	if err != nil {
		return fmt.Errorf("lock doctor: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE doctors
		SET deleted_at = now(),
		    is_active = false,
		    updated_at = now()
		WHERE id = $1
		  AND NOT EXISTS (
		      SELECT 1
		      FROM appointments
		      WHERE doctor_id = $1
		        AND status IN ('pending', 'confirmed')
		  )
	`, id)
	if err != nil {
		return fmt.Errorf("retire doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorHasActiveBookings
	}

	return tx.Commit(ctx)
}

func availabilityOrEmpty(entries []AvailabilityEntry) []AvailabilityEntry {
	if entries == nil {
		return []AvailabilityEntry{}
	}
	return entries
}
