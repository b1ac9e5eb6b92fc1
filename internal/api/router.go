package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hearwell/clinic-backend/internal/billing"
	"github.com/hearwell/clinic-backend/internal/identity"
	"github.com/hearwell/clinic-backend/internal/inventory"
	"github.com/hearwell/clinic-backend/internal/patient"
	"github.com/hearwell/clinic-backend/internal/trial"
)

type RouterConfig struct {
	Identity  *identity.Service
	Patients  *patient.Service
	Inventory *inventory.Service
	Billing   *billing.Service
	Trials    *trial.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/auth/login", loginHandler(cfg.Identity))

	auth := NewAuthenticator(cfg.Identity)
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Get("/auth/me", meHandler(cfg.Identity))
		r.Get("/clinics", listClinicsHandler(cfg.Identity))
		r.With(RequireCapability(identity.CapManageStaff)).Post("/users", createUserHandler(cfg.Identity))
		r.With(RequireCapability(identity.CapManageStaff)).Get("/users", listUsersHandler(cfg.Identity))

		r.Route("/patients", func(r chi.Router) {
			r.Get("/", listPatientsHandler(cfg.Patients))
			r.Get("/{id}", getPatientHandler(cfg.Patients))
			r.Get("/{id}/visits", listPatientVisitsHandler(cfg.Patients))

			r.Group(func(r chi.Router) {
				r.Use(RequireCapability(identity.CapManagePatients))
				r.Post("/", registerPatientHandler(cfg.Patients))
				r.Put("/{id}", updatePatientHandler(cfg.Patients))
				r.Post("/{id}/visits", createVisitsHandler(cfg.Patients))
			})
		})

		r.Route("/visits", func(r chi.Router) {
			r.Get("/", listVisitsHandler(cfg.Patients))
			r.Get("/{id}", getVisitHandler(cfg.Patients))
			r.Get("/{id}/trial", getVisitTrialHandler(cfg.Trials))
			r.With(RequireCapability(identity.CapManagePatients)).Put("/{id}", updateVisitHandler(cfg.Patients))

			r.With(RequireCapability(identity.CapViewBills)).Get("/{id}/bill", getVisitBillHandler(cfg.Billing))
			r.Group(func(r chi.Router) {
				r.Use(RequireCapability(identity.CapManagePatients))
				r.Post("/{id}/bill/tests", billTestsHandler(cfg.Billing))
				r.Post("/{id}/bill/discount", applyDiscountHandler(cfg.Billing))
			})
		})

		r.Route("/trials", func(r chi.Router) {
			r.Get("/", listTrialsHandler(cfg.Trials))
			r.Get("/awaiting-stock", listAwaitingStockHandler(cfg.Trials))
			r.Get("/{id}", getTrialHandler(cfg.Trials))

			r.Group(func(r chi.Router) {
				r.Use(RequireCapability(identity.CapRunTrials))
				r.Post("/", startTrialHandler(cfg.Trials))
				r.Post("/{id}/complete", completeTrialHandler(cfg.Trials))
				r.Post("/{id}/allocate", allocateSerialHandler(cfg.Trials))
			})
		})
		r.With(RequireCapability(identity.CapRunTrials)).Post("/devices/return", returnDeviceHandler(cfg.Trials))

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/items", listItemsHandler(cfg.Inventory))
			r.Get("/items/{id}", getItemHandler(cfg.Inventory))
			r.Get("/items/{id}/serials", listSerialsHandler(cfg.Inventory))
			r.Get("/serials/{serialNumber}", serialInfoHandler(cfg.Inventory))
			r.Get("/trial-devices", listTrialDeviceSerialsHandler(cfg.Inventory))

			r.Group(func(r chi.Router) {
				r.Use(RequireCapability(identity.CapManageInventory))
				r.Post("/items", createItemHandler(cfg.Inventory))
				r.Put("/items/{id}", updateItemHandler(cfg.Inventory))
				r.Post("/items/{id}/serials", addSerialsHandler(cfg.Inventory))
				r.Put("/serials/{serialNumber}/status", updateSerialStatusHandler(cfg.Inventory))
			})
			r.With(RequireCapability(identity.CapTransferStock)).Post("/transfer", transferHandler(cfg.Inventory))
		})

		r.Get("/test-types", listTestTypesHandler(cfg.Billing))
	})

	return r
}
