package accounts_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"ledger/internal/app/ledger"
	ledger_mw "ledger/internal/handler/http/middleware"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	// AllowedOrigins enables CORS when non-empty.
	AllowedOrigins []string
}

// NewRouter builds the service's HTTP handler with its middleware stack.
func NewRouter(cfg RouterConfig, s ledger.LedgerService, l *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(ledger_mw.RequestLogger(l.With(zap.String("component", "HTTPRequestLogger"))))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	RegisterRoutes(r, s, l)
	return r
}

func RegisterRoutes(r chi.Router, s ledger.LedgerService, l *zap.Logger) {
	handler := NewAccountHandler(s, l.With(zap.String("component", "AccountHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ledger service is healthy!"))
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", handler.CreateAccountHandler)
		r.Get("/{accountId}", handler.ReadAccountHandler)
		r.Post("/{accountId}/balance", handler.AdjustBalanceHandler)
	})
}
