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

// ShiftDirectory is the slice of the directory service the shift manager
// needs to resolve rooms and staff.
type ShiftDirectory interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*directory.Room, error)
	GetStaff(ctx context.Context, id uuid.UUID) (*directory.Staff, error)
}

// PendingSyncer reconciles pending appointments against newly opened
// capacity. Implemented by the appointment service.
type PendingSyncer interface {
	SyncPendingAppointments(ctx context.Context, w SyncWindow) (int, error)
}

// ShiftInput carries the fields of a shift create request.
type ShiftInput struct {
	AssigneeID     uuid.UUID
	RoomID         uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	RecurrenceRule *string
}

// ShiftUpdateInput carries the fields of a shift update request. Nil fields
// keep their current value.
type ShiftUpdateInput struct {
	AssigneeID *uuid.UUID
	RoomID     *uuid.UUID
	StartTime  *time.Time
	EndTime    *time.Time
}

// ShiftService owns the shift lifecycle: creation with recurrence expansion
// and double-booking checks, updates that exclude the shift itself from those
// checks, and removal that orphans rather than deletes affected appointments.
type ShiftService struct {
	shifts    ShiftRepository
	appts     AppointmentRepository
	dir       ShiftDirectory
	checker   *Checker
	locker    booking.Locker
	syncTasks SyncTaskRepository
	syncer    PendingSyncer
	logger    zerolog.Logger
}

func NewShiftService(
	shifts ShiftRepository,
	appts AppointmentRepository,
	dir ShiftDirectory,
	checker *Checker,
	locker booking.Locker,
	syncTasks SyncTaskRepository,
	syncer PendingSyncer,
	logger zerolog.Logger,
) *ShiftService {
	return &ShiftService{
		shifts:    shifts,
		appts:     appts,
		dir:       dir,
		checker:   checker,
		locker:    locker,
		syncTasks: syncTasks,
		syncer:    syncer,
		logger:    logger.With().Str("service", "shift").Logger(),
	}
}

// Create validates and stores a shift, expanding a recurrence rule into one
// row per occurrence. Occurrences are checked against each other and against
// existing bookings before any row is written; one conflicting occurrence
// rejects the whole request.
func (s *ShiftService) Create(ctx context.Context, actor auth.Actor, in ShiftInput) ([]*Shift, error) {
	if !in.EndTime.After(in.StartTime) {
		return nil, validationf("shift end time must be after start time")
	}

	room, err := s.dir.GetRoom(ctx, in.RoomID)
	if err != nil {
		if errors.Is(err, directory.ErrRoomNotFound) {
			return nil, notFoundf("room %s not found", in.RoomID)
		}
		return nil, err
	}
	staff, err := s.dir.GetStaff(ctx, in.AssigneeID)
	if err != nil {
		if errors.Is(err, directory.ErrStaffNotFound) {
			return nil, notFoundf("staff member %s not found", in.AssigneeID)
		}
		return nil, err
	}
	if err := checkBranchAccess(actor, room.BranchID); err != nil {
		return nil, err
	}
	if staff.BranchID != room.BranchID {
		return nil, validationf("staff member %s does not belong to the room's branch", in.AssigneeID)
	}

	starts := []time.Time{in.StartTime}
	if in.RecurrenceRule != nil && *in.RecurrenceRule != "" {
		starts, err = ExpandRecurrence(*in.RecurrenceRule, in.StartTime)
		if err != nil {
			return nil, err
		}
	}

	duration := in.EndTime.Sub(in.StartTime)
	// Occurrences arrive sorted, so adjacent pairs are enough to catch a rule
	// that repeats faster than the shift lasts.
	for i := 1; i < len(starts); i++ {
		if starts[i].Before(starts[i-1].Add(duration)) {
			return nil, validationf("recurrence occurrences overlap each other: rule repeats faster than the shift duration")
		}
	}

	now := time.Now().UTC()
	shifts := make([]*Shift, 0, len(starts))
	for _, start := range starts {
		shifts = append(shifts, &Shift{
			ID:             uuid.New(),
			AssigneeID:     in.AssigneeID,
			RoomID:         in.RoomID,
			StartTime:      start,
			EndTime:        start.Add(duration),
			RecurrenceRule: in.RecurrenceRule,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	err = s.withShiftLocks(ctx, in.AssigneeID, in.RoomID, func(ctx context.Context) error {
		for _, sh := range shifts {
			if err := s.checkShiftFree(ctx, sh.AssigneeID, sh.RoomID, sh.StartTime, sh.EndTime, nil); err != nil {
				return err
			}
		}
		return s.shifts.CreateBatch(ctx, shifts)
	})
	if err != nil {
		return nil, mapBookingErr(err)
	}

	if staff.IsDoctor() {
		for _, sh := range shifts {
			s.dispatchSync(ctx, SyncWindow{
				BranchID: room.BranchID,
				DoctorID: sh.AssigneeID,
				RoomID:   sh.RoomID,
				Start:    sh.StartTime,
				End:      sh.EndTime,
			})
		}
	}

	return shifts, nil
}

// Update modifies a single shift row. The shift's own interval is excluded
// from the overlap checks so an unchanged or narrowed window never conflicts
// with itself.
func (s *ShiftService) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in ShiftUpdateInput) (*Shift, error) {
	sh, err := s.shifts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrShiftNotFound) {
			return nil, notFoundf("shift %s not found", id)
		}
		return nil, err
	}

	// Authorization is decided by the shift as it currently exists: the actor
	// must control the branch the shift belongs to before any field merges.
	room, err := s.dir.GetRoom(ctx, sh.RoomID)
	if err != nil {
		if errors.Is(err, directory.ErrRoomNotFound) {
			return nil, notFoundf("room %s not found", sh.RoomID)
		}
		return nil, err
	}
	if err := checkBranchAccess(actor, room.BranchID); err != nil {
		return nil, err
	}

	if in.AssigneeID != nil {
		sh.AssigneeID = *in.AssigneeID
	}
	if in.RoomID != nil {
		sh.RoomID = *in.RoomID
	}
	if in.StartTime != nil {
		sh.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		sh.EndTime = *in.EndTime
	}
	if !sh.EndTime.After(sh.StartTime) {
		return nil, validationf("shift end time must be after start time")
	}

	if sh.RoomID != room.ID {
		room, err = s.dir.GetRoom(ctx, sh.RoomID)
		if err != nil {
			if errors.Is(err, directory.ErrRoomNotFound) {
				return nil, notFoundf("room %s not found", sh.RoomID)
			}
			return nil, err
		}
		if err := checkBranchAccess(actor, room.BranchID); err != nil {
			return nil, err
		}
	}
	staff, err := s.dir.GetStaff(ctx, sh.AssigneeID)
	if err != nil {
		if errors.Is(err, directory.ErrStaffNotFound) {
			return nil, notFoundf("staff member %s not found", sh.AssigneeID)
		}
		return nil, err
	}
	if staff.BranchID != room.BranchID {
		return nil, validationf("staff member %s does not belong to the room's branch", sh.AssigneeID)
	}

	err = s.withShiftLocks(ctx, sh.AssigneeID, sh.RoomID, func(ctx context.Context) error {
		if err := s.checkShiftFree(ctx, sh.AssigneeID, sh.RoomID, sh.StartTime, sh.EndTime, &sh.ID); err != nil {
			return err
		}
		sh.UpdatedAt = time.Now().UTC()
		return s.shifts.Update(ctx, sh)
	})
	if err != nil {
		return nil, mapBookingErr(err)
	}

	if staff.IsDoctor() {
		s.dispatchSync(ctx, SyncWindow{
			BranchID: room.BranchID,
			DoctorID: sh.AssigneeID,
			RoomID:   sh.RoomID,
			Start:    sh.StartTime,
			End:      sh.EndTime,
		})
	}

	return sh, nil
}

// Remove deletes a shift. Appointments already scheduled against the shift's
// doctor inside its window are not deleted: they lose their doctor and gain a
// reassignment note, staying visible for front-desk follow-up.
func (s *ShiftService) Remove(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	sh, err := s.shifts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrShiftNotFound) {
			return notFoundf("shift %s not found", id)
		}
		return err
	}

	room, err := s.dir.GetRoom(ctx, sh.RoomID)
	if err != nil {
		if !errors.Is(err, directory.ErrRoomNotFound) {
			return err
		}
		// A branch-scoped actor cannot be authorized against a shift whose
		// room row is gone; only unscoped roles may clean those up.
		if actor.BranchScoped() {
			return forbiddenf("shift %s has no resolvable room for branch authorization", id)
		}
	} else {
		if err := checkBranchAccess(actor, room.BranchID); err != nil {
			return err
		}
	}

	affected, err := s.appts.FindScheduledByDoctorWithin(ctx, sh.AssigneeID, sh.StartTime, sh.EndTime)
	if err != nil {
		return err
	}
	for _, a := range affected {
		a.DoctorID = nil
		a.Notes = appendNote(a.Notes, "shift cancelled, reassignment pending")
		a.UpdatedAt = time.Now().UTC()
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		s.logger.Info().
			Str("appointment_id", a.ID.String()).
			Str("shift_id", sh.ID.String()).
			Msg("appointment orphaned by shift removal")
	}

	return s.shifts.Delete(ctx, id)
}

// List returns shifts matching the filter. Branch-scoped actors only ever see
// their own branch regardless of the filter they send.
func (s *ShiftService) List(ctx context.Context, actor auth.Actor, f ShiftFilter, limit, offset int) ([]*Shift, int, error) {
	if actor.BranchScoped() {
		branchID := actor.BranchID
		f.BranchID = &branchID
	}
	return s.shifts.List(ctx, f, limit, offset)
}

// withShiftLocks serializes against concurrent bookings on both the assignee
// and the room. Locks are always taken assignee first, then room, so two
// shift writes touching the same pair cannot deadlock.
func (s *ShiftService) withShiftLocks(ctx context.Context, assigneeID, roomID uuid.UUID, fn func(ctx context.Context) error) error {
	return s.locker.WithResourceLock(ctx, assigneeID, func(ctx context.Context) error {
		return s.locker.WithResourceLock(ctx, roomID, fn)
	})
}

func (s *ShiftService) checkShiftFree(ctx context.Context, assigneeID, roomID uuid.UUID, start, end time.Time, exclude *uuid.UUID) error {
	b, err := s.checker.HasConflict(ctx, ResourceAssigneeShift, assigneeID, start, end, exclude)
	if err != nil {
		return err
	}
	if b != nil {
		return conflictf("staff member %s already has a shift in this time range", assigneeID)
	}
	b, err = s.checker.HasConflict(ctx, ResourceRoomShift, roomID, start, end, exclude)
	if err != nil {
		return err
	}
	if b != nil {
		return conflictf("room %s already has a shift in this time range", roomID)
	}
	return nil
}

// dispatchSync records the opened capacity as an outbox task, then tries the
// reconciliation inline. A failed inline attempt leaves the task pending for
// the worker; sync failures never fail the shift operation that triggered
// them.
func (s *ShiftService) dispatchSync(ctx context.Context, w SyncWindow) {
	task := &SyncTask{
		BranchID:    w.BranchID,
		DoctorID:    w.DoctorID,
		RoomID:      w.RoomID,
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Status:      SyncTaskPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.syncTasks.Enqueue(ctx, task); err != nil {
		s.logger.Error().Err(err).
			Str("doctor_id", w.DoctorID.String()).
			Msg("enqueue sync task failed")
		return
	}

	placed, err := s.syncer.SyncPendingAppointments(ctx, w)
	if err != nil {
		s.logger.Error().Err(err).
			Int64("task_id", task.ID).
			Msg("inline appointment sync failed, left for worker")
		return
	}
	if err := s.syncTasks.MarkDone(ctx, task.ID); err != nil {
		s.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark sync task done failed")
	}
	if placed > 0 {
		s.logger.Info().
			Int("placed", placed).
			Str("doctor_id", w.DoctorID.String()).
			Msg("pending appointments placed after shift change")
	}
}

func checkBranchAccess(actor auth.Actor, branchID uuid.UUID) error {
	if actor.BranchScoped() && actor.BranchID != branchID {
		return forbiddenf("actor may not manage resources outside branch %s", actor.BranchID)
	}
	return nil
}

func mapBookingErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, booking.ErrLockNotAcquired):
		return conflictf("resource is being booked by another request, retry")
	case errors.Is(err, ErrBookingOverlap):
		return conflictf("time range was booked concurrently")
	default:
		return err
	}
}

func appendNote(notes *string, msg string) *string {
	if notes == nil || *notes == "" {
		return &msg
	}
	joined := *notes + "; " + msg
	return &joined
}
