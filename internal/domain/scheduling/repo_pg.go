package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// exclusionViolation is the Postgres error code raised when an EXCLUDE
// constraint rejects an overlapping row.
const exclusionViolation = "23P01"

func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return ErrBookingOverlap
	}
	return err
}

// =========== Shift Repository ===========

type shiftRepoPG struct{ pool *pgxpool.Pool }

func NewShiftRepoPG(pool *pgxpool.Pool) ShiftRepository { return &shiftRepoPG{pool: pool} }

const shiftCols = `id, assignee_id, room_id, start_time, end_time, recurrence_rule, created_at, updated_at`

func scanShift(row pgx.Row) (*Shift, error) {
	var s Shift
	err := row.Scan(&s.ID, &s.AssigneeID, &s.RoomID, &s.StartTime, &s.EndTime, &s.RecurrenceRule, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShiftNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *shiftRepoPG) Create(ctx context.Context, s *Shift) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shift (id, assignee_id, room_id, start_time, end_time, recurrence_rule)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.AssigneeID, s.RoomID, s.StartTime, s.EndTime, s.RecurrenceRule)
	return mapPgErr(err)
}

// CreateBatch inserts all occurrences of one request in a single transaction
// so a constraint violation on any row rolls back the whole series.
func (r *shiftRepoPG) CreateBatch(ctx context.Context, shifts []*Shift) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range shifts {
		_, err := tx.Exec(ctx, `
			INSERT INTO shift (id, assignee_id, room_id, start_time, end_time, recurrence_rule)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, s.AssigneeID, s.RoomID, s.StartTime, s.EndTime, s.RecurrenceRule)
		if err != nil {
			return mapPgErr(err)
		}
	}
	return tx.Commit(ctx)
}

func (r *shiftRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Shift, error) {
	return scanShift(r.pool.QueryRow(ctx, `SELECT `+shiftCols+` FROM shift WHERE id = $1`, id))
}

func (r *shiftRepoPG) Update(ctx context.Context, s *Shift) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE shift SET assignee_id = $2, room_id = $3, start_time = $4, end_time = $5, updated_at = now()
		WHERE id = $1`,
		s.ID, s.AssigneeID, s.RoomID, s.StartTime, s.EndTime)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrShiftNotFound
	}
	return nil
}

func (r *shiftRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shift WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShiftNotFound
	}
	return nil
}

func (r *shiftRepoPG) List(ctx context.Context, f ShiftFilter, limit, offset int) ([]*Shift, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	n := 0
	next := func() string { n++; return fmt.Sprintf("$%d", n) }

	if f.BranchID != nil {
		where = append(where, "s.room_id IN (SELECT id FROM room WHERE branch_id = "+next()+")")
		args = append(args, *f.BranchID)
	}
	if f.From != nil {
		where = append(where, "s.end_time > "+next())
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "s.start_time < "+next())
		args = append(args, *f.To)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shift s WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT s.id, s.assignee_id, s.room_id, s.start_time, s.end_time, s.recurrence_rule, s.created_at, s.updated_at
		FROM shift s WHERE ` + cond + ` ORDER BY s.start_time ` +
		`LIMIT ` + next() + ` OFFSET ` + next()
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *shiftRepoPG) FirstOverlappingByAssignee(ctx context.Context, assigneeID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Shift, error) {
	return r.firstOverlapping(ctx, "assignee_id", assigneeID, start, end, exclude)
}

func (r *shiftRepoPG) FirstOverlappingByRoom(ctx context.Context, roomID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Shift, error) {
	return r.firstOverlapping(ctx, "room_id", roomID, start, end, exclude)
}

func (r *shiftRepoPG) firstOverlapping(ctx context.Context, col string, id uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Shift, error) {
	query := `SELECT ` + shiftCols + ` FROM shift
		WHERE ` + col + ` = $1 AND start_time < $3 AND end_time > $2`
	args := []interface{}{id, start, end}
	if exclude != nil {
		query += ` AND id <> $4`
		args = append(args, *exclude)
	}
	query += ` ORDER BY start_time LIMIT 1`

	s, err := scanShift(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, ErrShiftNotFound) {
		return nil, nil
	}
	return s, err
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const appointmentCols = `id, branch_id, patient_id, doctor_id, room_id, start_time, end_time, status, type, source, notes, created_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.BranchID, &a.PatientID, &a.DoctorID, &a.RoomID,
		&a.StartTime, &a.EndTime, &a.Status, &a.Type, &a.Source, &a.Notes,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment (id, branch_id, patient_id, doctor_id, room_id, start_time, end_time, status, type, source, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.BranchID, a.PatientID, a.DoctorID, a.RoomID, a.StartTime, a.EndTime,
		a.Status, a.Type, a.Source, a.Notes, a.CreatedBy)
	return mapPgErr(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointment
		SET doctor_id = $2, room_id = $3, start_time = $4, end_time = $5,
		    status = $6, type = $7, notes = $8, updated_at = now()
		WHERE id = $1`,
		a.ID, a.DoctorID, a.RoomID, a.StartTime, a.EndTime, a.Status, a.Type, a.Notes)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	n := 0
	next := func() string { n++; return fmt.Sprintf("$%d", n) }

	if f.Status != nil {
		where = append(where, "status = "+next())
		args = append(args, *f.Status)
	}
	if f.PatientID != nil {
		where = append(where, "patient_id = "+next())
		args = append(args, *f.PatientID)
	}
	if f.DoctorID != nil {
		where = append(where, "doctor_id = "+next())
		args = append(args, *f.DoctorID)
	}
	if f.RoomID != nil {
		where = append(where, "room_id = "+next())
		args = append(args, *f.RoomID)
	}
	if f.From != nil {
		where = append(where, "end_time > "+next())
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "start_time < "+next())
		args = append(args, *f.To)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + appointmentCols + ` FROM appointment WHERE ` + cond +
		` ORDER BY start_time LIMIT ` + next() + ` OFFSET ` + next()
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) FirstOverlappingByDoctor(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentCols + ` FROM appointment
		WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2
		  AND status NOT IN ('cancelled', 'no_show')`
	args := []interface{}{doctorID, start, end}
	if exclude != nil {
		query += ` AND id <> $4`
		args = append(args, *exclude)
	}
	query += ` ORDER BY start_time LIMIT 1`

	a, err := scanAppointment(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *appointmentRepoPG) FindPendingInWindow(ctx context.Context, branchID uuid.UUID, start, end time.Time) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE branch_id = $1 AND doctor_id IS NULL AND status = 'scheduled'
		  AND start_time >= $2 AND end_time <= $3
		ORDER BY start_time, created_at`,
		branchID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) FindScheduledByDoctorWithin(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE doctor_id = $1 AND status = 'scheduled'
		  AND start_time >= $2 AND end_time <= $3
		ORDER BY start_time`,
		doctorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) AppendStatusLog(ctx context.Context, l *AppointmentStatusLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_status_log (id, appointment_id, old_status, new_status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.AppointmentID, l.OldStatus, l.NewStatus, l.ChangedBy, l.ChangedAt)
	return err
}

func (r *appointmentRepoPG) ListStatusLogs(ctx context.Context, appointmentID uuid.UUID) ([]*AppointmentStatusLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, old_status, new_status, changed_by, changed_at
		FROM appointment_status_log
		WHERE appointment_id = $1
		ORDER BY changed_at DESC`,
		appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AppointmentStatusLog
	for rows.Next() {
		var l AppointmentStatusLog
		if err := rows.Scan(&l.ID, &l.AppointmentID, &l.OldStatus, &l.NewStatus, &l.ChangedBy, &l.ChangedAt); err != nil {
			return nil, err
		}
		items = append(items, &l)
	}
	return items, rows.Err()
}

// =========== Sync Task Repository ===========

type syncTaskRepoPG struct{ pool *pgxpool.Pool }

func NewSyncTaskRepoPG(pool *pgxpool.Pool) SyncTaskRepository { return &syncTaskRepoPG{pool: pool} }

func (r *syncTaskRepoPG) Enqueue(ctx context.Context, t *SyncTask) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO sync_task (branch_id, doctor_id, room_id, window_start, window_end, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, created_at`,
		t.BranchID, t.DoctorID, t.RoomID, t.WindowStart, t.WindowEnd).
		Scan(&t.ID, &t.CreatedAt)
}

// ClaimPending bumps the attempt counter as it reads so a crashed worker does
// not reprocess a batch forever without that showing in the row. SKIP LOCKED
// keeps concurrent workers on disjoint batches.
func (r *syncTaskRepoPG) ClaimPending(ctx context.Context, limit int) ([]*SyncTask, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE sync_task SET attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM sync_task
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, branch_id, doctor_id, room_id, window_start, window_end, status, attempts, created_at`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*SyncTask
	for rows.Next() {
		var t SyncTask
		if err := rows.Scan(&t.ID, &t.BranchID, &t.DoctorID, &t.RoomID,
			&t.WindowStart, &t.WindowEnd, &t.Status, &t.Attempts, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (r *syncTaskRepoPG) MarkDone(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE sync_task SET status = 'done' WHERE id = $1`, id)
	return err
}
