package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Touching endpoints do not overlap: a booking ending at 09:30
// never conflicts with one starting at 09:30.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// ResourceKind selects which booking table and owner column a conflict check
// scans.
type ResourceKind string

const (
	// ResourceAssigneeShift checks the target's shifts as assignee.
	ResourceAssigneeShift ResourceKind = "assignee-shift"
	// ResourceRoomShift checks shifts bound to the target room.
	ResourceRoomShift ResourceKind = "room-shift"
	// ResourceDoctorAppointment checks the doctor's non-cancelled,
	// non-no-show appointments.
	ResourceDoctorAppointment ResourceKind = "doctor-appointment"
)

// Booking describes an existing record that blocks a candidate interval.
type Booking struct {
	ID    uuid.UUID
	Start time.Time
	End   time.Time
}

// Checker is the overlap-detection predicate shared by the shift manager and
// the appointment scheduler. It holds no state of its own and never writes.
type Checker struct {
	shifts       ShiftRepository
	appointments AppointmentRepository
}

func NewChecker(shifts ShiftRepository, appointments AppointmentRepository) *Checker {
	return &Checker{shifts: shifts, appointments: appointments}
}

// HasConflict returns the first booking of the given resource that overlaps
// [start, end), or nil when the interval is free. A non-nil exclude skips the
// record being updated so it cannot conflict with itself.
func (c *Checker) HasConflict(ctx context.Context, kind ResourceKind, resourceID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Booking, error) {
	switch kind {
	case ResourceAssigneeShift:
		s, err := c.shifts.FirstOverlappingByAssignee(ctx, resourceID, start, end, exclude)
		if err != nil || s == nil {
			return nil, err
		}
		return &Booking{ID: s.ID, Start: s.StartTime, End: s.EndTime}, nil
	case ResourceRoomShift:
		s, err := c.shifts.FirstOverlappingByRoom(ctx, resourceID, start, end, exclude)
		if err != nil || s == nil {
			return nil, err
		}
		return &Booking{ID: s.ID, Start: s.StartTime, End: s.EndTime}, nil
	case ResourceDoctorAppointment:
		a, err := c.appointments.FirstOverlappingByDoctor(ctx, resourceID, start, end, exclude)
		if err != nil || a == nil {
			return nil, err
		}
		return &Booking{ID: a.ID, Start: a.StartTime, End: a.EndTime}, nil
	default:
		return nil, validationf("unknown resource kind %q", kind)
	}
}
