// Package api exposes the scoring service over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/shamba/internal/domain"
	"github.com/opensource-finance/shamba/internal/fraud"
	"github.com/opensource-finance/shamba/internal/velocity"
)

const (
	defaultPort         = 8080
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 45 * time.Second
	idleTimeout         = 120 * time.Second
)

// Server serves the scoring, farmer and fraud rule endpoints.
type Server struct {
	router *chi.Mux
	http   *http.Server
}

// NewServer wires the handler dependencies into a chi router. The listener is
// not opened until Start.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, eventBus domain.EventBus, scorer Scorer, engine *fraud.Engine, limiter *velocity.Limiter, version string) *Server {
	handler := NewHandler(repo, cache, eventBus, scorer, engine, limiter, version)
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(BodyLimitMiddleware(cfg.MaxBodyBytes))
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Scoring
	router.Post("/score", handler.Score)
	router.Post("/score/async", handler.EnqueueScore)

	// Farmer profiles
	router.Route("/farmers", func(r chi.Router) {
		r.Get("/", handler.ListFarmers)
		r.Post("/", handler.CreateFarmer)
		r.Get("/{phone}", handler.GetFarmer)
		r.Post("/{phone}/score", handler.ScoreFarmer)
	})

	// Fraud rule management
	router.Route("/fraud-rules", func(r chi.Router) {
		r.Get("/", handler.ListFraudRules)
		r.Post("/", handler.CreateFraudRule)
		r.Post("/reload", handler.ReloadFraudRules)
	})

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              listenAddr(cfg),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       seconds(cfg.ReadTimeout, defaultReadTimeout),
			WriteTimeout:      seconds(cfg.WriteTimeout, defaultWriteTimeout),
			IdleTimeout:       idleTimeout,
		},
	}
}

func listenAddr(cfg domain.ServerConfig) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(port))
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// Addr returns the address Start listens on.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start blocks serving HTTP until Shutdown. A graceful shutdown returns nil.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router returns the chi router, for tests that drive it with httptest.
func (s *Server) Router() *chi.Mux {
	return s.router
}
