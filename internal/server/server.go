package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/expense-track/apiserver/config"
	"github.com/expense-track/apiserver/internal/db"
	"github.com/expense-track/apiserver/internal/handlers"
	"github.com/expense-track/apiserver/internal/mq"
	"github.com/expense-track/apiserver/internal/services"
	"github.com/expense-track/apiserver/internal/storage"
	"github.com/expense-track/apiserver/internal/store"
	"github.com/expense-track/apiserver/internal/ui"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	tokenRepo := store.NewTokenRepository(dbConn)
	expenseRepo := store.NewExpenseRepository(dbConn)

	userService := services.NewUserService(userRepo)
	tokenService := services.NewTokenService(tokenRepo)
	expenseService := services.NewExpenseService(expenseRepo, userRepo)

	queue, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if queue != nil {
		expenseService.WithEvents(queue, cfg.MQ.EventsChannel)
	}

	receipts, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if receipts != nil {
		if err := receipts.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, err
		}
	}

	authMiddleware := handlers.RequireAuth(tokenService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.StripSlashes,
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(handlers.NotFound)
	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, userService, tokenService)
	router.Route("/users", func(r chi.Router) {
		r.Use(authMiddleware)
		handlers.UserRouter(r, userService, tokenService)
		r.Route("/{username}/expenses", func(r chi.Router) {
			handlers.ExpenseRouter(r, expenseService, receipts)
		})
	})
	ui.Router(router, userService, tokenService, expenseService)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
