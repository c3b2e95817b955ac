package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinix/clinix/internal/domain/directory"
	"github.com/clinix/clinix/internal/platform/auth"
	"github.com/clinix/clinix/internal/platform/booking"
)

// AppointmentDirectory is the slice of the directory service the scheduler
// needs to resolve patients, doctors and rooms.
type AppointmentDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Staff, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*directory.Room, error)
}

// AppointmentInput carries the fields of a booking request. DoctorID and
// RoomID are optional: a doctor-less appointment is created pending and
// placed later when a compatible shift opens.
type AppointmentInput struct {
	PatientID uuid.UUID
	DoctorID  *uuid.UUID
	RoomID    *uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Type      *string
	Source    *string
	Notes     *string
}

// AppointmentUpdateInput carries the fields of an appointment update. Nil
// fields keep their current value.
type AppointmentUpdateInput struct {
	DoctorID  *uuid.UUID
	RoomID    *uuid.UUID
	StartTime *time.Time
	EndTime   *time.Time
	Status    *AppointmentStatus
	Type      *string
	Notes     *string
}

// AppointmentService owns the appointment lifecycle: booking with doctor
// conflict checks, the pending-placement sync, status transitions with an
// append-only audit log, cancellation and deletion.
type AppointmentService struct {
	appts   AppointmentRepository
	dir     AppointmentDirectory
	checker *Checker
	locker  booking.Locker
	logger  zerolog.Logger
}

func NewAppointmentService(
	appts AppointmentRepository,
	dir AppointmentDirectory,
	checker *Checker,
	locker booking.Locker,
	logger zerolog.Logger,
) *AppointmentService {
	return &AppointmentService{
		appts:   appts,
		dir:     dir,
		checker: checker,
		locker:  locker,
		logger:  logger.With().Str("service", "appointment").Logger(),
	}
}

// Create books an appointment. When a doctor is named, the doctor's calendar
// is checked for overlap under a per-doctor lock before the insert; without a
// doctor the appointment is stored pending. Every creation writes the first
// status log entry.
func (s *AppointmentService) Create(ctx context.Context, actor auth.Actor, in AppointmentInput) (*AppointmentDetail, error) {
	if !in.EndTime.After(in.StartTime) {
		return nil, validationf("appointment end time must be after start time")
	}
	if in.StartTime.Before(time.Now()) {
		return nil, validationf("appointment cannot start in the past")
	}

	patient, err := s.dir.GetPatient(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return nil, notFoundf("patient %s not found", in.PatientID)
		}
		return nil, err
	}

	var doctor *directory.Staff
	if in.DoctorID != nil {
		doctor, err = s.dir.GetDoctor(ctx, *in.DoctorID)
		if err != nil {
			if errors.Is(err, directory.ErrStaffNotFound) {
				return nil, notFoundf("doctor %s not found", *in.DoctorID)
			}
			return nil, err
		}
	}
	var room *directory.Room
	if in.RoomID != nil {
		room, err = s.dir.GetRoom(ctx, *in.RoomID)
		if err != nil {
			if errors.Is(err, directory.ErrRoomNotFound) {
				return nil, notFoundf("room %s not found", *in.RoomID)
			}
			return nil, err
		}
	}

	now := time.Now().UTC()
	appt := &Appointment{
		ID:        uuid.New(),
		BranchID:  patient.BranchID,
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		RoomID:    in.RoomID,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Status:    StatusScheduled,
		Type:      in.Type,
		Source:    in.Source,
		Notes:     in.Notes,
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	insert := func(ctx context.Context) error {
		if in.DoctorID != nil {
			b, err := s.checker.HasConflict(ctx, ResourceDoctorAppointment, *in.DoctorID, in.StartTime, in.EndTime, nil)
			if err != nil {
				return err
			}
			if b != nil {
				return conflictf("doctor %s already has an appointment in this time range", *in.DoctorID)
			}
		}
		return s.appts.Create(ctx, appt)
	}

	if in.DoctorID != nil {
		err = s.locker.WithResourceLock(ctx, *in.DoctorID, insert)
	} else {
		err = insert(ctx)
	}
	if err != nil {
		return nil, mapBookingErr(err)
	}

	if err := s.logTransition(ctx, appt.ID, nil, StatusScheduled, actor.ID); err != nil {
		return nil, err
	}

	return &AppointmentDetail{Appointment: *appt, Patient: patient, Doctor: doctor, Room: room}, nil
}

// SyncPendingAppointments walks the branch's doctor-less appointments whose
// window fits inside the opened capacity, re-checks the doctor's calendar for
// each, and assigns the doctor and room to those that fit. Appointments that
// no longer fit are skipped, not failed, so the pass is safe to repeat.
func (s *AppointmentService) SyncPendingAppointments(ctx context.Context, w SyncWindow) (int, error) {
	pending, err := s.appts.FindPendingInWindow(ctx, w.BranchID, w.Start, w.End)
	if err != nil {
		return 0, err
	}

	placed := 0
	for _, a := range pending {
		b, err := s.checker.HasConflict(ctx, ResourceDoctorAppointment, w.DoctorID, a.StartTime, a.EndTime, nil)
		if err != nil {
			return placed, err
		}
		if b != nil {
			continue
		}

		doctorID, roomID := w.DoctorID, w.RoomID
		a.DoctorID = &doctorID
		a.RoomID = &roomID
		a.UpdatedAt = time.Now().UTC()
		if err := s.appts.Update(ctx, a); err != nil {
			if errors.Is(err, ErrBookingOverlap) {
				a.DoctorID = nil
				a.RoomID = nil
				continue
			}
			return placed, err
		}
		placed++
	}
	return placed, nil
}

// Get returns one appointment with its relations resolved.
func (s *AppointmentService) Get(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, notFoundf("appointment %s not found", id)
		}
		return nil, err
	}
	return s.resolveDetail(ctx, a)
}

// List returns appointments matching the filter.
func (s *AppointmentService) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.List(ctx, f, limit, offset)
}

// Update edits an appointment's assignment, window and free-form fields.
// Referenced doctors and rooms are re-resolved, but the service does not
// re-check the doctor's calendar: rescheduling is a front-desk override and
// the audit log records who did it. The storage exclusion constraint still
// rejects a hard overlap on the doctor's calendar, surfaced as a conflict.
func (s *AppointmentService) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in AppointmentUpdateInput) (*AppointmentDetail, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, notFoundf("appointment %s not found", id)
		}
		return nil, err
	}

	if in.DoctorID != nil {
		if _, err := s.dir.GetDoctor(ctx, *in.DoctorID); err != nil {
			if errors.Is(err, directory.ErrStaffNotFound) {
				return nil, notFoundf("doctor %s not found", *in.DoctorID)
			}
			return nil, err
		}
		a.DoctorID = in.DoctorID
	}
	if in.RoomID != nil {
		if _, err := s.dir.GetRoom(ctx, *in.RoomID); err != nil {
			if errors.Is(err, directory.ErrRoomNotFound) {
				return nil, notFoundf("room %s not found", *in.RoomID)
			}
			return nil, err
		}
		a.RoomID = in.RoomID
	}
	if in.StartTime != nil {
		a.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		a.EndTime = *in.EndTime
	}
	if !a.EndTime.After(a.StartTime) {
		return nil, validationf("appointment end time must be after start time")
	}
	if in.Type != nil {
		a.Type = in.Type
	}
	if in.Notes != nil {
		a.Notes = in.Notes
	}

	oldStatus := a.Status
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, validationf("unknown appointment status %q", *in.Status)
		}
		a.Status = *in.Status
	}

	a.UpdatedAt = time.Now().UTC()
	if err := s.appts.Update(ctx, a); err != nil {
		return nil, mapBookingErr(err)
	}

	if a.Status != oldStatus {
		if err := s.logTransition(ctx, a.ID, &oldStatus, a.Status, actor.ID); err != nil {
			return nil, err
		}
	}

	return s.resolveDetail(ctx, a)
}

// ChangeStatus sets the appointment's status and always appends an audit
// entry, even when the status did not change. Any known status may follow any
// other; the log, not a transition table, is the record of what happened.
func (s *AppointmentService) ChangeStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, validationf("unknown appointment status %q", status)
	}

	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, notFoundf("appointment %s not found", id)
		}
		return nil, err
	}

	oldStatus := a.Status
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	if err := s.appts.Update(ctx, a); err != nil {
		return nil, err
	}
	if err := s.logTransition(ctx, a.ID, &oldStatus, status, actor.ID); err != nil {
		return nil, err
	}
	return a, nil
}

// Cancel marks the appointment cancelled, recording the reason in its notes.
// Already cancelled or completed appointments reject the call.
func (s *AppointmentService) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, notFoundf("appointment %s not found", id)
		}
		return nil, err
	}
	if a.Status == StatusCancelled {
		return nil, badRequestf("appointment %s is already cancelled", id)
	}
	if a.Status == StatusCompleted {
		return nil, badRequestf("appointment %s is completed and cannot be cancelled", id)
	}

	oldStatus := a.Status
	a.Status = StatusCancelled
	if reason != "" {
		a.Notes = appendNote(a.Notes, "cancelled: "+reason)
	}
	a.UpdatedAt = time.Now().UTC()
	if err := s.appts.Update(ctx, a); err != nil {
		return nil, err
	}
	if err := s.logTransition(ctx, a.ID, &oldStatus, StatusCancelled, actor.ID); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete hard-deletes an appointment and, through the database cascade, its
// status log.
func (s *AppointmentService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.appts.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return notFoundf("appointment %s not found", id)
		}
		return err
	}
	return s.appts.Delete(ctx, id)
}

// StatusHistory returns the appointment's audit trail, newest first.
func (s *AppointmentService) StatusHistory(ctx context.Context, id uuid.UUID) ([]*AppointmentStatusLog, error) {
	if _, err := s.appts.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, notFoundf("appointment %s not found", id)
		}
		return nil, err
	}
	return s.appts.ListStatusLogs(ctx, id)
}

func (s *AppointmentService) logTransition(ctx context.Context, apptID uuid.UUID, old *AppointmentStatus, status AppointmentStatus, changedBy uuid.UUID) error {
	return s.appts.AppendStatusLog(ctx, &AppointmentStatusLog{
		ID:            uuid.New(),
		AppointmentID: apptID,
		OldStatus:     old,
		NewStatus:     status,
		ChangedBy:     changedBy,
		ChangedAt:     time.Now().UTC(),
	})
}

func (s *AppointmentService) resolveDetail(ctx context.Context, a *Appointment) (*AppointmentDetail, error) {
	d := &AppointmentDetail{Appointment: *a}

	patient, err := s.dir.GetPatient(ctx, a.PatientID)
	if err == nil {
		d.Patient = patient
	} else if !errors.Is(err, directory.ErrPatientNotFound) {
		return nil, err
	}
	if a.DoctorID != nil {
		doctor, err := s.dir.GetDoctor(ctx, *a.DoctorID)
		if err == nil {
			d.Doctor = doctor
		} else if !errors.Is(err, directory.ErrStaffNotFound) {
			return nil, err
		}
	}
	if a.RoomID != nil {
		room, err := s.dir.GetRoom(ctx, *a.RoomID)
		if err == nil {
			d.Room = room
		} else if !errors.Is(err, directory.ErrRoomNotFound) {
			return nil, err
		}
	}
	return d, nil
}
