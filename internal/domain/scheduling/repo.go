package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrShiftNotFound       = errors.New("shift not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrBookingOverlap is returned by repositories when a storage-level
	// exclusion constraint rejects an overlapping insert or update.
	ErrBookingOverlap = errors.New("overlapping booking rejected by storage constraint")
)

type ShiftRepository interface {
	Create(ctx context.Context, s *Shift) error
	CreateBatch(ctx context.Context, shifts []*Shift) error
	GetByID(ctx context.Context, id uuid.UUID) (*Shift, error)
	Update(ctx context.Context, s *Shift) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ShiftFilter, limit, offset int) ([]*Shift, int, error)

	// Conflict scans. A nil result means no overlapping record. The exclude
	// id, when non-nil, skips the record being updated.
	FirstOverlappingByAssignee(ctx context.Context, assigneeID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Shift, error)
	FirstOverlappingByRoom(ctx context.Context, roomID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Shift, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)

	// FirstOverlappingByDoctor skips cancelled and no-show rows.
	FirstOverlappingByDoctor(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Appointment, error)

	// FindPendingInWindow returns doctor-less appointments of the branch whose
	// window fits inside [start, end), ordered by start time then creation.
	FindPendingInWindow(ctx context.Context, branchID uuid.UUID, start, end time.Time) ([]*Appointment, error)

	// FindScheduledByDoctorWithin returns still-scheduled appointments of the
	// doctor whose window lies within [start, end). Used by shift removal.
	FindScheduledByDoctorWithin(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*Appointment, error)

	AppendStatusLog(ctx context.Context, l *AppointmentStatusLog) error
	ListStatusLogs(ctx context.Context, appointmentID uuid.UUID) ([]*AppointmentStatusLog, error)
}

type SyncTaskRepository interface {
	Enqueue(ctx context.Context, t *SyncTask) error
	// ClaimPending returns up to limit pending tasks, oldest first, bumping
	// their attempt counter.
	ClaimPending(ctx context.Context, limit int) ([]*SyncTask, error)
	MarkDone(ctx context.Context, id int64) error
}
