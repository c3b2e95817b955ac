package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrBranchNotFound  = errors.New("branch not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrStaffNotFound   = errors.New("staff member not found")
	ErrPatientNotFound = errors.New("patient not found")
)

type BranchRepository interface {
	Create(ctx context.Context, b *Branch) error
	GetByID(ctx context.Context, id uuid.UUID) (*Branch, error)
	List(ctx context.Context, limit, offset int) ([]*Branch, int, error)
}

type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	ListByBranch(ctx context.Context, branchID uuid.UUID, limit, offset int) ([]*Room, int, error)
}

type StaffRepository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	ListByBranch(ctx context.Context, branchID uuid.UUID, limit, offset int) ([]*Staff, int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListByBranch(ctx context.Context, branchID uuid.UUID, limit, offset int) ([]*Patient, int, error)
}
