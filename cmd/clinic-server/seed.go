package main

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinix/clinix/internal/domain/directory"
)

var specialties = []string{
	"general practice", "pediatrics", "cardiology", "dermatology", "orthopedics",
}

func runSeed(ctx context.Context, pool *pgxpool.Pool, branchCount, doctorsPer, patientsPer int) error {
	branches := directory.NewBranchRepoPG(pool)
	rooms := directory.NewRoomRepoPG(pool)
	staff := directory.NewStaffRepoPG(pool)
	patients := directory.NewPatientRepoPG(pool)

	for i := 0; i < branchCount; i++ {
		branch := &directory.Branch{
			Name: gofakeit.City() + " Clinic",
		}
		if err := branches.Create(ctx, branch); err != nil {
			return fmt.Errorf("seed branch: %w", err)
		}

		for r := 0; r < doctorsPer; r++ {
			room := &directory.Room{
				BranchID: branch.ID,
				Name:     fmt.Sprintf("Room %d", r+1),
			}
			if err := rooms.Create(ctx, room); err != nil {
				return fmt.Errorf("seed room: %w", err)
			}
		}

		for d := 0; d < doctorsPer; d++ {
			specialty := specialties[d%len(specialties)]
			doc := &directory.Staff{
				BranchID:  branch.ID,
				Role:      directory.StaffRoleDoctor,
				FirstName: gofakeit.FirstName(),
				LastName:  gofakeit.LastName(),
				Specialty: &specialty,
			}
			if err := staff.Create(ctx, doc); err != nil {
				return fmt.Errorf("seed doctor: %w", err)
			}
		}

		rec := &directory.Staff{
			BranchID:  branch.ID,
			Role:      directory.StaffRoleReceptionist,
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
		}
		if err := staff.Create(ctx, rec); err != nil {
			return fmt.Errorf("seed receptionist: %w", err)
		}

		for p := 0; p < patientsPer; p++ {
			phone := gofakeit.Phone()
			patient := &directory.Patient{
				BranchID:  branch.ID,
				FirstName: gofakeit.FirstName(),
				LastName:  gofakeit.LastName(),
				Phone:     &phone,
			}
			if err := patients.Create(ctx, patient); err != nil {
				return fmt.Errorf("seed patient: %w", err)
			}
		}
	}
	return nil
}
