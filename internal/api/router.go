package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service   *appointment.Service
	PgPool    *pgxpool.Pool // nil in memory mode
	Redis     *redis.Client // nil when Redis is not configured
	Logger    zerolog.Logger
	Metrics   *Metrics
	JWTSecret string
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(metrics.Middleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Public doctor endpoints
	r.Get("/doctors", listDoctorsHandler(cfg.Service))
	r.Get("/doctors/specializations", specializationsHandler(cfg.Service))
	r.Get("/doctors/{id}", getDoctorHandler(cfg.Service))
	r.Get("/doctors/{id}/slots", availableSlotsHandler(cfg.Service))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/doctors", createDoctorHandler(cfg.Service))
		r.Put("/doctors/{id}", updateDoctorHandler(cfg.Service))
		r.Put("/doctors/{id}/availability", updateAvailabilityHandler(cfg.Service))
		r.Delete("/doctors/{id}", deleteDoctorHandler(cfg.Service))

		// Appointment endpoints
		r.Post("/appointments", createAppointmentHandler(cfg.Service, metrics))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/appointments/{id}", updateAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service, metrics))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/rate", rateAppointmentHandler(cfg.Service))
	})

	return r
}
