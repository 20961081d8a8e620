package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/payment"
	"github.com/corray333/backend-labs/payment/internal/service/services/checkoutsvc"
	"github.com/corray333/backend-labs/payment/internal/transport/http/checkout"
	"github.com/corray333/backend-labs/payment/internal/transport/http/docs"
	getorder "github.com/corray333/backend-labs/payment/internal/transport/http/get_order"
	listorders "github.com/corray333/backend-labs/payment/internal/transport/http/list_orders"
	paymentwebhook "github.com/corray333/backend-labs/payment/internal/transport/http/payment_webhook"
	"github.com/corray333/backend-labs/payment/internal/transport/http/response"
	"github.com/corray333/backend-labs/payment/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/payment/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

const defaultMaxWebhookBodyBytes = 64 << 10

type checkoutService interface {
	Checkout(ctx context.Context, req checkoutsvc.Request) (checkoutsvc.Result, error)
}

type reconcileService interface {
	HandleInboundEvent(ctx context.Context, payload []byte, sigHeader string) (payment.Outcome, error)
}

type orderService interface {
	GetOrder(ctx context.Context, id string) (order.Order, error)
	ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// CORSConfig mirrors the server.http.cors config block.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// Config holds the HTTP server settings.
type Config struct {
	Port                int
	ServiceName         string
	CORS                CORSConfig
	MaxWebhookBodyBytes int64
	ReadHeaderTimeout   time.Duration
}

// Services are the handlers' dependencies.
type Services struct {
	Checkout  checkoutService
	Reconcile reconcileService
	Orders    orderService
	Health    pinger
}

type HTTPTransport struct {
	server   *http.Server
	router   *chi.Mux
	services Services
	cfg      Config
}

func NewHTTPTransport(cfg Config, services Services) *HTTPTransport {
	if cfg.MaxWebhookBodyBytes <= 0 {
		cfg.MaxWebhookBodyBytes = defaultMaxWebhookBodyBytes
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	router := newRouter(cfg)
	server := newServer(cfg, router)

	return &HTTPTransport{
		server:   server,
		router:   router,
		services: services,
		cfg:      cfg,
	}
}

// Handler exposes the router, mainly for tests.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

func (h *HTTPTransport) Run() error {
	err := h.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/healthz", h.healthz)

	docs.Register()
	h.router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	h.router.Route("/api", func(r chi.Router) {
		r.Post("/checkout", h.checkout)
		r.Post("/webhooks/payments", h.paymentWebhook)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
	})
}

func (h *HTTPTransport) checkout(w http.ResponseWriter, r *http.Request) {
	checkout.Checkout(w, r, h.services.Checkout)
}

func (h *HTTPTransport) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	paymentwebhook.HandleEvent(w, r, h.services.Reconcile, h.cfg.MaxWebhookBodyBytes)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.services.Orders)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, chi.URLParam(r, "id"), h.services.Orders)
}

func (h *HTTPTransport) healthz(w http.ResponseWriter, r *http.Request) {
	if h.services.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.services.Health.Ping(ctx); err != nil {
			slog.Warn("Health check failed", "error", err)
			response.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})

			return
		}
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newRouter(cfg Config) *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(trace.NewTraceMiddleware(cfg.ServiceName))
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(cfg Config, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              "0.0.0.0:" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
