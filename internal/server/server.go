package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"rugroulette/internal/cache"
	"rugroulette/internal/config"
	"rugroulette/internal/database"
	"rugroulette/internal/events"
	"rugroulette/internal/game"
	"rugroulette/internal/logging"
)

// HistoryReader lists recently resolved pools, newest first.
type HistoryReader interface {
	RecentRugs(ctx context.Context, limit int) ([]game.Pool, error)
}

// Deps are the components the server fronts. Cache, DB, Events and History
// are optional.
type Deps struct {
	Config  *config.Config
	Engine  *game.Engine
	Hub     *game.Hub
	Cache   cache.Service
	DB      database.Service
	Events  *events.Sink
	History HistoryReader
	Logger  zerolog.Logger
}

type FiberServer struct {
	*fiber.App

	cfg        *config.Config
	engine     *game.Engine
	hub        *game.Hub
	dispatcher *game.Dispatcher
	cache      cache.Service
	db         database.Service
	events     *events.Sink
	history    HistoryReader
	log        zerolog.Logger
}

func New(deps Deps) *FiberServer {
	log := logging.WithComponent(deps.Logger, "server")

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:          "rugroulette",
			AppName:               "rugroulette",
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
			IdleTimeout:           120 * time.Second,
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),

		cfg:        deps.Config,
		engine:     deps.Engine,
		hub:        deps.Hub,
		dispatcher: game.NewDispatcher(deps.Engine, deps.Hub, deps.Logger),
		cache:      deps.Cache,
		db:         deps.DB,
		events:     deps.Events,
		history:    deps.History,
		log:        log,
	}

	server.App.Use(recover.New())
	server.RegisterFiberRoutes()

	return server
}

// Start runs the hub and the engine loop.
func (s *FiberServer) Start() {
	go s.hub.Run()
	s.engine.Start()
	s.log.Info().Msg("Pool engine started")
}

// Shutdown stops accepting connections, stops the engine (flushing pending
// history records) and closes the backing services.
func (s *FiberServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down")

	var errs []error
	if err := s.App.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, err)
	}

	s.engine.Stop()
	s.hub.Stop()

	if s.events != nil {
		if err := s.events.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
