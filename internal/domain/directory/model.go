package directory

import (
	"time"

	"github.com/google/uuid"
)

// Branch maps to the branch table.
type Branch struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Room maps to the room table. Every room belongs to one branch.
type Room struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BranchID  uuid.UUID `db:"branch_id" json:"branch_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Staff roles stored in the staff table.
const (
	StaffRoleDoctor       = "doctor"
	StaffRoleReceptionist = "receptionist"
)

// Staff maps to the staff table. Doctors and receptionists both live here;
// shifts may be assigned to either.
type Staff struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BranchID  uuid.UUID `db:"branch_id" json:"branch_id"`
	Role      string    `db:"role" json:"role"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Specialty *string   `db:"specialty" json:"specialty,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsDoctor reports whether this staff member can be assigned to appointments.
func (s *Staff) IsDoctor() bool { return s.Role == StaffRoleDoctor }

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BranchID  uuid.UUID `db:"branch_id" json:"branch_id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
