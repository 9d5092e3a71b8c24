package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/bootstrap"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New("dev", "info")
		l.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env, cfg.LogLevel).With().Str("service", "reminder-worker").Logger()
	log.Info().
		Str("env", cfg.Env).
		Str("schedule", cfg.ReminderSchedule).
		Dur("lead", cfg.ReminderLeadTime).
		Str("stream", cfg.ReminderStream).
		Msg("reminder-worker starting up")

	if cfg.RedisAddr == "" {
		log.Fatal().Msg("reminder-worker needs Redis: set REDIS_ADDR or REDIS_URL")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Open(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("backend setup failed")
	}
	defer backends.Close()

	svc := appointment.NewService(backends.Repo, backends.Doctors, backends.Locker, cfg, log)

	// markers outlive the lead window so an appointment is never reminded twice
	publisher := redisclient.NewStreamPublisher(backends.Redis, cfg.ReminderStream, 2*cfg.ReminderLeadTime)
	job := reminder.NewJob(svc, publisher, cfg.ReminderLeadTime, log)

	// Run once at startup
	if res, err := job.Run(rootCtx); err != nil {
		log.Error().Err(err).Msg("initial reminder run failed")
	} else {
		log.Info().Int("due", res.Due).Int("sent", res.Sent).Msg("initial reminder run complete")
	}

	c := cron.New()
	if _, err := job.Schedule(rootCtx, c, cfg.ReminderSchedule); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.ReminderSchedule).Msg("invalid REMINDER_SCHEDULE")
	}
	c.Start()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, waiting for running job")
	<-c.Stop().Done()
	log.Info().Msg("reminder-worker stopped")
}
