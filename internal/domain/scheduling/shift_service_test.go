package scheduling

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinix/clinix/internal/platform/auth"
)

func TestShiftServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		created, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID,
			RoomID:     room.ID,
			StartTime:  at(9, 0),
			EndTime:    at(12, 0),
		})
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, doctor.ID, created[0].AssigneeID)
	})

	t.Run("end before start rejected", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID,
			RoomID:     room.ID,
			StartTime:  at(12, 0),
			EndTime:    at(9, 0),
		})
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("unknown room rejected", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)

		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID,
			RoomID:     uuid.New(),
			StartTime:  at(9, 0),
			EndTime:    at(10, 0),
		})
		require.Error(t, err)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("assignee double booking rejected", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		roomA := env.dir.addRoom(env.branchID)
		roomB := env.dir.addRoom(env.branchID)

		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: roomA.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.NoError(t, err)

		_, err = env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: roomB.ID, StartTime: at(11, 0), EndTime: at(13, 0),
		})
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})

	t.Run("room double booking rejected", func(t *testing.T) {
		env := newTestEnv()
		docA := env.dir.addDoctor(env.branchID)
		docB := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: docA.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.NoError(t, err)

		_, err = env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: docB.ID, RoomID: room.ID, StartTime: at(10, 0), EndTime: at(11, 0),
		})
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})

	t.Run("back to back shifts allowed", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(10, 0),
		})
		require.NoError(t, err)

		_, err = env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(10, 0), EndTime: at(11, 0),
		})
		require.NoError(t, err)
	})

	t.Run("recurrence expands into one row per occurrence", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)
		rule := "FREQ=WEEKLY;COUNT=3"

		created, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID:     doctor.ID,
			RoomID:         room.ID,
			StartTime:      at(9, 0),
			EndTime:        at(12, 0),
			RecurrenceRule: &rule,
		})
		require.NoError(t, err)
		require.Len(t, created, 3)
		for _, sh := range created {
			assert.Equal(t, 3*time.Hour, sh.EndTime.Sub(sh.StartTime))
			require.NotNil(t, sh.RecurrenceRule)
		}
		assert.Equal(t, created[0].StartTime.Add(7*24*time.Hour), created[1].StartTime)
	})

	t.Run("self-overlapping recurrence rejected", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		// Three-hour shifts repeating hourly overlap each other even with an
		// empty calendar.
		rule := "FREQ=HOURLY;COUNT=3"
		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID,
			StartTime: at(9, 0), EndTime: at(12, 0), RecurrenceRule: &rule,
		})
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))

		_, total, err := env.shifts.List(ctx, ShiftFilter{}, 100, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, total, "no occurrence of the invalid series may persist")
	})

	t.Run("conflicting occurrence rejects whole series", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		// Occupy the slot one week out, where the second occurrence lands.
		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID,
			StartTime: at(9, 0).Add(7 * 24 * time.Hour),
			EndTime:   at(12, 0).Add(7 * 24 * time.Hour),
		})
		require.NoError(t, err)

		rule := "FREQ=WEEKLY;COUNT=3"
		_, err = env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID,
			StartTime: at(9, 0), EndTime: at(12, 0), RecurrenceRule: &rule,
		})
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))

		_, total, err := env.shifts.List(ctx, ShiftFilter{}, 100, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total, "no occurrence of the rejected series may persist")
	})

	t.Run("branch manager limited to own branch", func(t *testing.T) {
		env := newTestEnv()
		otherBranch := uuid.New()
		doctor := env.dir.addDoctor(otherBranch)
		room := env.dir.addRoom(otherBranch)

		manager := auth.Actor{ID: uuid.New(), Role: auth.RoleBranchManager, BranchID: env.branchID}
		_, err := env.shiftSvc.Create(ctx, manager, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.Error(t, err)
		assert.Equal(t, KindForbidden, KindOf(err))
	})

	t.Run("assignee from another branch rejected", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(uuid.New())
		room := env.dir.addRoom(env.branchID)

		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("doctor shift syncs pending appointments", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)
		patient := env.dir.addPatient(env.branchID)

		pending := &Appointment{
			ID:        uuid.New(),
			BranchID:  env.branchID,
			PatientID: patient.ID,
			StartTime: at(10, 0),
			EndTime:   at(10, 30),
			Status:    StatusScheduled,
			CreatedBy: env.admin.ID,
		}
		require.NoError(t, env.appts.Create(ctx, pending))

		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.NoError(t, err)

		placed, err := env.appts.GetByID(ctx, pending.ID)
		require.NoError(t, err)
		require.NotNil(t, placed.DoctorID)
		assert.Equal(t, doctor.ID, *placed.DoctorID)
		require.NotNil(t, placed.RoomID)
		assert.Equal(t, room.ID, *placed.RoomID)
		assert.Equal(t, 0, env.syncTasks.pendingCount(), "inline sync must complete the task")
	})

	t.Run("receptionist shift dispatches no sync", func(t *testing.T) {
		env := newTestEnv()
		rec := env.dir.addReceptionist(env.branchID)
		room := env.dir.addRoom(env.branchID)

		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: rec.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, env.syncTasks.pendingCount())
	})
}

func TestShiftServiceUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("unchanged window does not conflict with itself", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		created, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.NoError(t, err)

		start := at(9, 30)
		sh, err := env.shiftSvc.Update(ctx, env.admin, created[0].ID, ShiftUpdateInput{StartTime: &start})
		require.NoError(t, err)
		assert.True(t, sh.StartTime.Equal(start))
	})

	t.Run("moving onto another shift rejected", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(10, 0),
		})
		require.NoError(t, err)
		second, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(10, 0), EndTime: at(11, 0),
		})
		require.NoError(t, err)

		start := at(9, 30)
		_, err = env.shiftSvc.Update(ctx, env.admin, second[0].ID, ShiftUpdateInput{StartTime: &start})
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})

	t.Run("unknown shift", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.shiftSvc.Update(ctx, env.admin, uuid.New(), ShiftUpdateInput{})
		require.Error(t, err)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("manager cannot capture a shift from another branch", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		created, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.NoError(t, err)

		// A manager from another branch offers a room they do control; the
		// check must run against the branch the shift already belongs to.
		otherBranch := uuid.New()
		manager := auth.Actor{ID: uuid.New(), Role: auth.RoleBranchManager, BranchID: otherBranch}
		theirRoom := env.dir.addRoom(otherBranch)

		_, err = env.shiftSvc.Update(ctx, manager, created[0].ID, ShiftUpdateInput{RoomID: &theirRoom.ID})
		require.Error(t, err)
		assert.Equal(t, KindForbidden, KindOf(err))

		kept, err := env.shifts.GetByID(ctx, created[0].ID)
		require.NoError(t, err)
		assert.Equal(t, room.ID, kept.RoomID)
	})

	t.Run("manager cannot move a shift into another branch", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)

		created, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.NoError(t, err)

		manager := auth.Actor{ID: uuid.New(), Role: auth.RoleBranchManager, BranchID: env.branchID}
		foreignRoom := env.dir.addRoom(uuid.New())

		_, err = env.shiftSvc.Update(ctx, manager, created[0].ID, ShiftUpdateInput{RoomID: &foreignRoom.ID})
		require.Error(t, err)
		assert.Equal(t, KindForbidden, KindOf(err))
	})

	t.Run("manager can move a shift within their branch", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)
		otherRoom := env.dir.addRoom(env.branchID)

		created, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.NoError(t, err)

		manager := auth.Actor{ID: uuid.New(), Role: auth.RoleBranchManager, BranchID: env.branchID}
		sh, err := env.shiftSvc.Update(ctx, manager, created[0].ID, ShiftUpdateInput{RoomID: &otherRoom.ID})
		require.NoError(t, err)
		assert.Equal(t, otherRoom.ID, sh.RoomID)
	})
}

func TestShiftServiceRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("orphans scheduled appointments inside the window", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)
		room := env.dir.addRoom(env.branchID)
		patient := env.dir.addPatient(env.branchID)

		created, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID, StartTime: at(9, 0), EndTime: at(12, 0),
		})
		require.NoError(t, err)

		doctorID := doctor.ID
		inside := &Appointment{
			ID: uuid.New(), BranchID: env.branchID, PatientID: patient.ID,
			DoctorID: &doctorID, StartTime: at(9, 30), EndTime: at(10, 0),
			Status: StatusScheduled, CreatedBy: env.admin.ID,
		}
		confirmed := &Appointment{
			ID: uuid.New(), BranchID: env.branchID, PatientID: patient.ID,
			DoctorID: &doctorID, StartTime: at(10, 0), EndTime: at(10, 30),
			Status: StatusConfirmed, CreatedBy: env.admin.ID,
		}
		require.NoError(t, env.appts.Create(ctx, inside))
		require.NoError(t, env.appts.Create(ctx, confirmed))

		require.NoError(t, env.shiftSvc.Remove(ctx, env.admin, created[0].ID))

		_, err = env.shifts.GetByID(ctx, created[0].ID)
		assert.ErrorIs(t, err, ErrShiftNotFound)

		orphaned, err := env.appts.GetByID(ctx, inside.ID)
		require.NoError(t, err)
		assert.Nil(t, orphaned.DoctorID)
		assert.Equal(t, StatusScheduled, orphaned.Status, "orphaned appointment stays scheduled")
		require.NotNil(t, orphaned.Notes)
		assert.True(t, strings.Contains(*orphaned.Notes, "reassignment pending"))

		kept, err := env.appts.GetByID(ctx, confirmed.ID)
		require.NoError(t, err)
		require.NotNil(t, kept.DoctorID, "confirmed appointments keep their doctor")
	})

	t.Run("unknown shift", func(t *testing.T) {
		env := newTestEnv()
		err := env.shiftSvc.Remove(ctx, env.admin, uuid.New())
		require.Error(t, err)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("manager cannot remove a shift whose room is gone", func(t *testing.T) {
		env := newTestEnv()
		doctor := env.dir.addDoctor(env.branchID)

		// A shift row pointing at a deleted room cannot be attributed to a
		// branch, so scoped actors are refused while admins may clean it up.
		orphan := &Shift{
			ID:         uuid.New(),
			AssigneeID: doctor.ID,
			RoomID:     uuid.New(),
			StartTime:  at(9, 0),
			EndTime:    at(12, 0),
		}
		require.NoError(t, env.shifts.Create(ctx, orphan))

		manager := auth.Actor{ID: uuid.New(), Role: auth.RoleBranchManager, BranchID: env.branchID}
		err := env.shiftSvc.Remove(ctx, manager, orphan.ID)
		require.Error(t, err)
		assert.Equal(t, KindForbidden, KindOf(err))

		require.NoError(t, env.shiftSvc.Remove(ctx, env.admin, orphan.ID))
	})
}

func TestShiftServiceList(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	doctor := env.dir.addDoctor(env.branchID)
	room := env.dir.addRoom(env.branchID)

	for i := 0; i < 3; i++ {
		_, err := env.shiftSvc.Create(ctx, env.admin, ShiftInput{
			AssigneeID: doctor.ID, RoomID: room.ID,
			StartTime: at(9, 0).Add(time.Duration(i) * 24 * time.Hour),
			EndTime:   at(12, 0).Add(time.Duration(i) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}

	from := at(0, 0).Add(24 * time.Hour)
	items, total, err := env.shiftSvc.List(ctx, env.admin, ShiftFilter{From: &from}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)
}
