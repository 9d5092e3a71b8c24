package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func seedCmd() *cobra.Command {
	var (
		count      int
		unverified int
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake doctors with weekly availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("seeding needs STORE=%s", config.StorePostgres)
			}
			log := logger.New(cfg.Env, cfg.LogLevel)

			ctx := cmd.Context()
			connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
			cancel()
			if err != nil {
				return err
			}
			defer pool.Close()

			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			faker := gofakeit.New(uint64(seed))
			repo := appointment.NewPgDoctorRepository(pool)

			log.Info().Int("count", count).Int64("seed", seed).Msg("seeding doctors")
			fmt.Printf("%-36s  %-36s  %-8s  %s\n", "DOCTOR ID", "USER ID", "FEE", "NAME")
			for i := 0; i < count; i++ {
				d := fakeDoctor(faker, i >= count-unverified)
				if err := repo.CreateDoctor(ctx, d); err != nil {
					return fmt.Errorf("create doctor %d: %w", i, err)
				}
				fmt.Printf("%-36s  %-36s  %-8.2f  %s (%s)\n", d.ID, d.UserID, d.ConsultationFee, d.Name, d.Specialization)
			}

			log.Info().Msg("seed complete")
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "doctors", 20, "number of doctors to create")
	cmd.Flags().IntVar(&unverified, "unverified", 2, "how many of them stay unverified")
	cmd.Flags().Int64Var(&seed, "seed", 0, "faker seed, 0 picks one from the clock")
	return cmd
}

func fakeDoctor(f *gofakeit.Faker, unverified bool) *appointment.Doctor {
	var week []appointment.AvailabilityEntry
	for _, day := range []appointment.Weekday{
		appointment.Monday, appointment.Tuesday, appointment.Wednesday, appointment.Thursday, appointment.Friday,
	} {
		start := f.Number(8, 10)
		end := start + f.Number(4, 8)
		week = append(week, appointment.AvailabilityEntry{
			DayOfWeek:   day,
			StartTime:   fmt.Sprintf("%02d:00", start),
			EndTime:     fmt.Sprintf("%02d:00", end),
			IsAvailable: f.Number(0, 9) > 0,
		})
	}

	return &appointment.Doctor{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Name:            "Dr. " + f.Name(),
		Specialization:  specializations[f.Number(0, len(specializations)-1)],
		City:            f.City(),
		Bio:             f.Sentence(12),
		ConsultationFee: float64(f.Number(4, 30) * 10),
		IsActive:        true,
		IsVerified:      !unverified,
		Availability:    week,
	}
}
