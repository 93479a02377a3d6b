package http

import (
	"net/http"

	"contractor-backend/internal/handlers"
	"contractor-backend/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(
	estimateHandler *handlers.DocumentHandler,
	invoiceHandler *handlers.DocumentHandler,
	changeOrderHandler *handlers.DocumentHandler,
	conversionHandler *handlers.ConversionHandler,
	paymentHandler *handlers.PaymentHandler,
	profileHandler *handlers.ProfileHandler,
	eventsHandler *handlers.EventsHandler,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware)

	// Protected API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Authenticate)

	mountDocuments(api, "/estimates", estimateHandler)
	mountDocuments(api, "/invoices", invoiceHandler)
	mountDocuments(api, "/change-orders", changeOrderHandler)

	// Conversion pipeline
	api.HandleFunc("/estimates/{id:[0-9]+}/convert/invoice", conversionHandler.ToInvoice).Methods("POST")
	api.HandleFunc("/estimates/{id:[0-9]+}/convert/project", conversionHandler.ToProject).Methods("POST")
	api.HandleFunc("/projects/{id:[0-9]+}", conversionHandler.GetProject).Methods("GET")

	// Payments
	api.HandleFunc("/invoices/{id:[0-9]+}/checkout", paymentHandler.CreateCheckout).Methods("POST")

	// Business profile printed on documents
	api.HandleFunc("/business-profile", profileHandler.Get).Methods("GET")
	api.HandleFunc("/business-profile", profileHandler.Save).Methods("PUT")

	// Live document events (token may be passed as ?token= for browsers)
	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(authMiddleware.Authenticate)
	ws.HandleFunc("", eventsHandler.Stream).Methods("GET")

	// Payment provider webhooks (no auth - verified by signature)
	r.HandleFunc("/webhooks/{provider}", paymentHandler.HandleWebhook).Methods("POST")

	// Health endpoints (no auth required - for Kubernetes probes)
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", healthHandler.ReadinessHealth).Methods("GET")
	r.HandleFunc("/health/detailed", healthHandler.DetailedHealth).Methods("GET")

	// Metrics endpoint (Prometheus format)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func mountDocuments(api *mux.Router, prefix string, h *handlers.DocumentHandler) {
	s := api.PathPrefix(prefix).Subrouter()
	s.HandleFunc("", h.List).Methods("GET")
	s.HandleFunc("", h.Create).Methods("POST")
	s.HandleFunc("/{id:[0-9]+}", h.Get).Methods("GET")
	s.HandleFunc("/{id:[0-9]+}", h.Update).Methods("PUT")
	s.HandleFunc("/{id:[0-9]+}", h.Delete).Methods("DELETE")
	s.HandleFunc("/{id:[0-9]+}/send", h.Send).Methods("POST")
	s.HandleFunc("/{id:[0-9]+}/pdf", h.Artifact).Methods("GET")
	s.HandleFunc("/{id:[0-9]+}/pdf/regenerate", h.RegenerateArtifact).Methods("POST")
}

// Wrap applies the outer middleware chain shared by every route
func Wrap(router http.Handler, cors func(http.Handler) http.Handler) http.Handler {
	return middleware.PanicRecovery(middleware.RequestLogging(cors(router)))
}
