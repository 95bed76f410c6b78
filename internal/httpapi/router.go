package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aethermarket/coordinator/internal/storage"
)

// NewRouter wires the full REST surface, composing the C3 auth gates per
// endpoint the way the teacher's router.go composes wrapWithAuth/wrapWithRole.
func NewRouter(d Deps) http.Handler {
	h := newHandler(d)
	gate := newAuthGate(d.Audit, d.ClockSkew, d.ReplayWindow)

	user := requireUser(gate, d.Accounts)
	provision := requireAgent(gate, d.Agents, storage.PermissionProvision)
	terminate := requireAgent(gate, d.Agents, storage.PermissionTerminate)
	report := requireAgent(gate, d.Agents, storage.PermissionReport)
	heartbeat := requireAgent(gate, d.Agents, storage.PermissionHeartbeat)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metricsMiddleware)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", metricsHandler())

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.createAccount)
		r.Get("/{accountID}", h.getAccount)
		r.Group(func(r chi.Router) {
			r.Use(user)
			r.Post("/keys", h.addAccountKey)
			r.Delete("/keys/{pubkey}", h.disableAccountKey)
		})
	})

	r.Route("/providers/{pubkey}", func(r chi.Router) {
		r.Get("/profile", h.getProviderProfile)
		r.Group(func(r chi.Router) {
			r.Use(user)
			r.Put("/profile", h.upsertProviderProfile)
			r.Post("/offerings", h.createOffering)
			r.Post("/pools", h.createPool)
			r.Delete("/pools/{poolID}", h.deletePool)
			r.Post("/pools/{poolID}/setup-tokens", h.createSetupToken)
			r.Post("/trust-score/refresh", h.refreshTrustScore)
		})
	})
	r.Get("/offerings", h.searchOfferings)

	r.Route("/contracts", func(r chi.Router) {
		r.Post("/", h.createContract)
		r.Get("/{contractID}", h.getContract)
		r.Group(func(r chi.Router) {
			r.Use(user)
			r.Post("/{contractID}/accept", h.acceptContract)
			r.Post("/{contractID}/reject", h.rejectContract)
			r.Post("/{contractID}/cancel", h.cancelContract)
			r.Post("/{contractID}/extend", h.extendContract)
		})
	})

	r.Route("/agents", func(r chi.Router) {
		r.Post("/setup-tokens/consume", h.consumeSetupToken)
		r.Group(func(r chi.Router) {
			r.Use(provision)
			r.Get("/pending-provision", h.pendingProvision)
			r.Post("/reconcile", h.reconcile)
			r.Post("/contracts/{contractID}/lock", h.acquireLock)
			r.Delete("/contracts/{contractID}/lock", h.releaseLock)
		})
		r.With(report).Put("/contracts/{contractID}/provisioning", h.reportProvisioning)
		r.With(terminate).Post("/contracts/{contractID}/terminated", h.reportTerminated)
		r.With(heartbeat).Post("/heartbeat", h.heartbeat)
	})

	r.Route("/notify", func(r chi.Router) {
		r.Use(user)
		r.Post("/escalate", h.escalate)
	})

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
