package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinix/clinix/internal/domain/directory"
	"github.com/clinix/clinix/internal/platform/auth"
	"github.com/clinix/clinix/internal/platform/booking"
)

// =========== Mock repositories ===========

type mockShiftRepo struct {
	mu     sync.Mutex
	shifts map[uuid.UUID]*Shift
}

func newMockShiftRepo() *mockShiftRepo {
	return &mockShiftRepo{shifts: make(map[uuid.UUID]*Shift)}
}

func (m *mockShiftRepo) Create(_ context.Context, s *Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.shifts[s.ID] = &cp
	return nil
}

func (m *mockShiftRepo) CreateBatch(ctx context.Context, shifts []*Shift) error {
	for _, s := range shifts {
		if err := m.Create(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockShiftRepo) GetByID(_ context.Context, id uuid.UUID) (*Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[id]
	if !ok {
		return nil, ErrShiftNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockShiftRepo) Update(_ context.Context, s *Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[s.ID]; !ok {
		return ErrShiftNotFound
	}
	cp := *s
	m.shifts[s.ID] = &cp
	return nil
}

func (m *mockShiftRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[id]; !ok {
		return ErrShiftNotFound
	}
	delete(m.shifts, id)
	return nil
}

func (m *mockShiftRepo) List(_ context.Context, f ShiftFilter, limit, offset int) ([]*Shift, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Shift
	for _, s := range m.shifts {
		if f.From != nil && !s.EndTime.After(*f.From) {
			continue
		}
		if f.To != nil && !s.StartTime.Before(*f.To) {
			continue
		}
		cp := *s
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *mockShiftRepo) FirstOverlappingByAssignee(_ context.Context, assigneeID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Shift, error) {
	return m.firstOverlapping(func(s *Shift) bool { return s.AssigneeID == assigneeID }, start, end, exclude)
}

func (m *mockShiftRepo) FirstOverlappingByRoom(_ context.Context, roomID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Shift, error) {
	return m.firstOverlapping(func(s *Shift) bool { return s.RoomID == roomID }, start, end, exclude)
}

func (m *mockShiftRepo) firstOverlapping(match func(*Shift) bool, start, end time.Time, exclude *uuid.UUID) (*Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Shift
	for _, s := range m.shifts {
		if !match(s) {
			continue
		}
		if exclude != nil && s.ID == *exclude {
			continue
		}
		if !Overlaps(s.StartTime, s.EndTime, start, end) {
			continue
		}
		if found == nil || s.StartTime.Before(found.StartTime) {
			cp := *s
			found = &cp
		}
	}
	return found, nil
}

type mockApptRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
	logs  []*AppointmentStatusLog
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.appts, id)
	return nil
}

func (m *mockApptRepo) List(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Appointment
	for _, a := range m.appts {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && (a.DoctorID == nil || *a.DoctorID != *f.DoctorID) {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *mockApptRepo) FirstOverlappingByDoctor(_ context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Appointment
	for _, a := range m.appts {
		if a.DoctorID == nil || *a.DoctorID != doctorID {
			continue
		}
		if !a.Status.Blocking() {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if !Overlaps(a.StartTime, a.EndTime, start, end) {
			continue
		}
		if found == nil || a.StartTime.Before(found.StartTime) {
			cp := *a
			found = &cp
		}
	}
	return found, nil
}

func (m *mockApptRepo) FindPendingInWindow(_ context.Context, branchID uuid.UUID, start, end time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*Appointment
	for _, a := range m.appts {
		if a.BranchID != branchID || a.DoctorID != nil || a.Status != StatusScheduled {
			continue
		}
		if a.StartTime.Before(start) || a.EndTime.After(end) {
			continue
		}
		cp := *a
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].StartTime.Before(items[j].StartTime)
	})
	return items, nil
}

func (m *mockApptRepo) FindScheduledByDoctorWithin(_ context.Context, doctorID uuid.UUID, start, end time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*Appointment
	for _, a := range m.appts {
		if a.DoctorID == nil || *a.DoctorID != doctorID || a.Status != StatusScheduled {
			continue
		}
		if a.StartTime.Before(start) || a.EndTime.After(end) {
			continue
		}
		cp := *a
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StartTime.Before(items[j].StartTime) })
	return items, nil
}

func (m *mockApptRepo) AppendStatusLog(_ context.Context, l *AppointmentStatusLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *mockApptRepo) ListStatusLogs(_ context.Context, appointmentID uuid.UUID) ([]*AppointmentStatusLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*AppointmentStatusLog
	for _, l := range m.logs {
		if l.AppointmentID == appointmentID {
			cp := *l
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ChangedAt.After(items[j].ChangedAt) })
	return items, nil
}

func (m *mockApptRepo) logCount(appointmentID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.logs {
		if l.AppointmentID == appointmentID {
			n++
		}
	}
	return n
}

type mockSyncTaskRepo struct {
	mu     sync.Mutex
	tasks  []*SyncTask
	nextID int64
}

func newMockSyncTaskRepo() *mockSyncTaskRepo { return &mockSyncTaskRepo{} }

func (m *mockSyncTaskRepo) Enqueue(_ context.Context, t *SyncTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.tasks = append(m.tasks, &cp)
	return nil
}

func (m *mockSyncTaskRepo) ClaimPending(_ context.Context, limit int) ([]*SyncTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []*SyncTask
	for _, t := range m.tasks {
		if t.Status != SyncTaskPending {
			continue
		}
		t.Attempts++
		cp := *t
		claimed = append(claimed, &cp)
		if len(claimed) == limit {
			break
		}
	}
	return claimed, nil
}

func (m *mockSyncTaskRepo) MarkDone(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id {
			t.Status = SyncTaskDone
			return nil
		}
	}
	return fmt.Errorf("sync task %d not found", id)
}

func (m *mockSyncTaskRepo) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.Status == SyncTaskPending {
			n++
		}
	}
	return n
}

// =========== Mock directory ===========

type mockDirectory struct {
	rooms    map[uuid.UUID]*directory.Room
	staff    map[uuid.UUID]*directory.Staff
	patients map[uuid.UUID]*directory.Patient
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		rooms:    make(map[uuid.UUID]*directory.Room),
		staff:    make(map[uuid.UUID]*directory.Staff),
		patients: make(map[uuid.UUID]*directory.Patient),
	}
}

func (m *mockDirectory) GetRoom(_ context.Context, id uuid.UUID) (*directory.Room, error) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, directory.ErrRoomNotFound
	}
	return r, nil
}

func (m *mockDirectory) GetStaff(_ context.Context, id uuid.UUID) (*directory.Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return nil, directory.ErrStaffNotFound
	}
	return s, nil
}

func (m *mockDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*directory.Staff, error) {
	s, ok := m.staff[id]
	if !ok || !s.IsDoctor() {
		return nil, directory.ErrStaffNotFound
	}
	return s, nil
}

func (m *mockDirectory) GetPatient(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, directory.ErrPatientNotFound
	}
	return p, nil
}

func (m *mockDirectory) addRoom(branchID uuid.UUID) *directory.Room {
	r := &directory.Room{ID: uuid.New(), BranchID: branchID, Name: "room"}
	m.rooms[r.ID] = r
	return r
}

func (m *mockDirectory) addDoctor(branchID uuid.UUID) *directory.Staff {
	s := &directory.Staff{ID: uuid.New(), BranchID: branchID, Role: directory.StaffRoleDoctor}
	m.staff[s.ID] = s
	return s
}

func (m *mockDirectory) addReceptionist(branchID uuid.UUID) *directory.Staff {
	s := &directory.Staff{ID: uuid.New(), BranchID: branchID, Role: directory.StaffRoleReceptionist}
	m.staff[s.ID] = s
	return s
}

func (m *mockDirectory) addPatient(branchID uuid.UUID) *directory.Patient {
	p := &directory.Patient{ID: uuid.New(), BranchID: branchID}
	m.patients[p.ID] = p
	return p
}

// =========== Test environment ===========

type testEnv struct {
	shifts    *mockShiftRepo
	appts     *mockApptRepo
	syncTasks *mockSyncTaskRepo
	dir       *mockDirectory

	shiftSvc *ShiftService
	apptSvc  *AppointmentService

	branchID uuid.UUID
	admin    auth.Actor
}

func newTestEnv() *testEnv {
	shifts := newMockShiftRepo()
	appts := newMockApptRepo()
	syncTasks := newMockSyncTaskRepo()
	dir := newMockDirectory()
	checker := NewChecker(shifts, appts)
	logger := zerolog.Nop()

	apptSvc := NewAppointmentService(appts, dir, checker, booking.NopLocker(), logger)
	shiftSvc := NewShiftService(shifts, appts, dir, checker, booking.NopLocker(), syncTasks, apptSvc, logger)

	return &testEnv{
		shifts:    shifts,
		appts:     appts,
		syncTasks: syncTasks,
		dir:       dir,
		shiftSvc:  shiftSvc,
		apptSvc:   apptSvc,
		branchID:  uuid.New(),
		admin:     auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin},
	}
}
