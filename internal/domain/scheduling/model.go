package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinix/clinix/internal/domain/directory"
)

// AppointmentStatus enumerates the lifecycle states of an appointment.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

var validAppointmentStatuses = map[AppointmentStatus]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusInProgress: true,
	StatusCompleted: true, StatusCancelled: true, StatusNoShow: true,
}

// Valid reports whether s is a known status value.
func (s AppointmentStatus) Valid() bool { return validAppointmentStatuses[s] }

// Blocking reports whether an appointment in this status occupies its doctor's
// time for conflict purposes. Cancelled and no-show appointments do not.
func (s AppointmentStatus) Blocking() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// Shift maps to the shift table: one staff member bound to one room for one
// contiguous interval. Recurring shifts are expanded into one row per
// occurrence at creation time; each row keeps the rule it was generated from.
type Shift struct {
	ID             uuid.UUID `db:"id" json:"id"`
	AssigneeID     uuid.UUID `db:"assignee_id" json:"assignee_id"`
	RoomID         uuid.UUID `db:"room_id" json:"room_id"`
	StartTime      time.Time `db:"start_time" json:"start_time"`
	EndTime        time.Time `db:"end_time" json:"end_time"`
	RecurrenceRule *string   `db:"recurrence_rule" json:"recurrence_rule,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Appointment maps to the appointment table. A nil DoctorID is the pending
// state: booked now, doctor assigned later once a compatible shift opens.
type Appointment struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	BranchID  uuid.UUID         `db:"branch_id" json:"branch_id"`
	PatientID uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID  *uuid.UUID        `db:"doctor_id" json:"doctor_id,omitempty"`
	RoomID    *uuid.UUID        `db:"room_id" json:"room_id,omitempty"`
	StartTime time.Time         `db:"start_time" json:"start_time"`
	EndTime   time.Time         `db:"end_time" json:"end_time"`
	Status    AppointmentStatus `db:"status" json:"status"`
	Type      *string           `db:"type" json:"type,omitempty"`
	Source    *string           `db:"source" json:"source,omitempty"`
	Notes     *string           `db:"notes" json:"notes,omitempty"`
	CreatedBy uuid.UUID         `db:"created_by" json:"created_by"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// Pending reports whether the appointment still awaits a doctor.
func (a *Appointment) Pending() bool { return a.DoctorID == nil }

// AppointmentStatusLog is an append-only audit entry for one status
// transition. OldStatus is nil for the creation entry.
type AppointmentStatusLog struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	AppointmentID uuid.UUID          `db:"appointment_id" json:"appointment_id"`
	OldStatus     *AppointmentStatus `db:"old_status" json:"old_status,omitempty"`
	NewStatus     AppointmentStatus  `db:"new_status" json:"new_status"`
	ChangedBy     uuid.UUID          `db:"changed_by" json:"changed_by"`
	ChangedAt     time.Time          `db:"changed_at" json:"changed_at"`
}

// AppointmentDetail is an appointment with its display relations resolved.
type AppointmentDetail struct {
	Appointment
	Patient *directory.Patient `json:"patient,omitempty"`
	Doctor  *directory.Staff   `json:"doctor,omitempty"`
	Room    *directory.Room    `json:"room,omitempty"`
}

// SyncTask is an outbox row recording that a shift change opened capacity and
// pending appointments should be reconciled against it. The shift operation
// commits the task first and then attempts the sync inline; a failed attempt
// leaves the task pending for the worker to retry.
type SyncTask struct {
	ID          int64     `db:"id" json:"id"`
	BranchID    uuid.UUID `db:"branch_id" json:"branch_id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	RoomID      uuid.UUID `db:"room_id" json:"room_id"`
	WindowStart time.Time `db:"window_start" json:"window_start"`
	WindowEnd   time.Time `db:"window_end" json:"window_end"`
	Status      string    `db:"status" json:"status"`
	Attempts    int       `db:"attempts" json:"attempts"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

const (
	SyncTaskPending = "pending"
	SyncTaskDone    = "done"
)

// Window returns the sync window described by the task.
func (t *SyncTask) Window() SyncWindow {
	return SyncWindow{
		BranchID: t.BranchID,
		DoctorID: t.DoctorID,
		RoomID:   t.RoomID,
		Start:    t.WindowStart,
		End:      t.WindowEnd,
	}
}

// SyncWindow describes the capacity opened by a shift: which doctor and room
// became available in which branch over which interval.
type SyncWindow struct {
	BranchID uuid.UUID
	DoctorID uuid.UUID
	RoomID   uuid.UUID
	Start    time.Time
	End      time.Time
}

// ShiftFilter narrows shift listings.
type ShiftFilter struct {
	BranchID *uuid.UUID
	From     *time.Time
	To       *time.Time
}

// AppointmentFilter narrows appointment listings.
type AppointmentFilter struct {
	Status    *AppointmentStatus
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	RoomID    *uuid.UUID
	From      *time.Time
	To        *time.Time
}
