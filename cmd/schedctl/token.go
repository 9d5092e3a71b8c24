package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		role string
		sub  string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			actor := appointment.Actor{Role: appointment.Role(role)}
			switch actor.Role {
			case appointment.RolePatient, appointment.RoleDoctor, appointment.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			if sub == "" {
				actor.ID = uuid.New()
			} else if actor.ID, err = uuid.Parse(sub); err != nil {
				return fmt.Errorf("--sub must be a UUID: %w", err)
			}

			token, err := auth.IssueToken(cfg.JWTSecret, actor, ttl)
			if err != nil {
				return err
			}
			fmt.Printf("sub=%s role=%s\n%s\n", actor.ID, actor.Role, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(appointment.RolePatient), "patient, doctor or admin")
	cmd.Flags().StringVar(&sub, "sub", "", "account id, random when empty")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
