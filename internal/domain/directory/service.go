package directory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service exposes the lookup contracts the scheduling core consumes, plus the
// minimal listings the admin console needs. No business logic lives here.
type Service struct {
	branches BranchRepository
	rooms    RoomRepository
	staff    StaffRepository
	patients PatientRepository
}

func NewService(branches BranchRepository, rooms RoomRepository, staff StaffRepository, patients PatientRepository) *Service {
	return &Service{branches: branches, rooms: rooms, staff: staff, patients: patients}
}

func (s *Service) GetBranch(ctx context.Context, id uuid.UUID) (*Branch, error) {
	return s.branches.GetByID(ctx, id)
}

func (s *Service) ListBranches(ctx context.Context, limit, offset int) ([]*Branch, int, error) {
	return s.branches.List(ctx, limit, offset)
}

func (s *Service) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return s.rooms.GetByID(ctx, id)
}

func (s *Service) ListRooms(ctx context.Context, branchID uuid.UUID, limit, offset int) ([]*Room, int, error) {
	return s.rooms.ListByBranch(ctx, branchID, limit, offset)
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.staff.GetByID(ctx, id)
}

// GetDoctor resolves a staff member and checks the doctor role.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Staff, error) {
	st, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !st.IsDoctor() {
		return nil, fmt.Errorf("staff member %s: %w", id, ErrStaffNotFound)
	}
	return st, nil
}

func (s *Service) ListStaff(ctx context.Context, branchID uuid.UUID, limit, offset int) ([]*Staff, int, error) {
	return s.staff.ListByBranch(ctx, branchID, limit, offset)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, branchID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return s.patients.ListByBranch(ctx, branchID, limit, offset)
}
