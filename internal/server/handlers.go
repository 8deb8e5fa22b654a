package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"rugroulette/internal/game"
	"rugroulette/internal/logging"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxMessageSize      = 4096
)

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"status":   "ok",
		"database": disabled,
		"cache":    disabled,
		"events":   disabled,
		"engine": fiber.Map{
			"status":            "running",
			"connected_clients": s.hub.GetClientCount(),
			"sessions":          s.engine.SessionCount(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	if s.events != nil {
		health["events"] = map[string]string{"status": "up"}
	}
	return c.JSON(health)
}

var disabled = map[string]string{"status": "disabled"}

func (s *FiberServer) poolHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.CurrentPool())
}

func (s *FiberServer) statsHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.Stats())
}

func (s *FiberServer) historyHandler(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "History is not enabled",
		})
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 100",
		})
	}

	pools, err := s.history.RecentRugs(c.UserContext(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read history")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read history",
		})
	}
	return c.JSON(fiber.Map{
		"rugs":  pools,
		"count": len(pools),
	})
}

// websocketHandler owns one client connection: the hub writes to it, this
// loop reads from it, and the dispatcher turns frames into engine calls.
func (s *FiberServer) websocketHandler(conn *websocket.Conn) {
	id := game.SessionID(uuid.NewString())
	log := logging.WithSession(s.log, string(id))
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket connected")

	writerDone := s.hub.RegisterClient(id, conn)
	defer func() {
		s.hub.UnregisterClient(id)
		<-writerDone
		if err := s.dispatcher.Disconnected(id); err != nil {
			log.Debug().Err(err).Msg("Disconnect after engine stop")
		}
		log.Info().Msg("WebSocket disconnected")
	}()

	if err := s.dispatcher.Connected(id); err != nil {
		return
	}

	conn.SetReadLimit(maxMessageSize)
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("Read ended")
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := s.dispatcher.Handle(id, message); err != nil {
			return
		}
	}
}
