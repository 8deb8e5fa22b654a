package server

import (
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/samber/lo"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     "GET,OPTIONS",
		AllowHeaders:     "Accept,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api", limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))
	api.Get("/pool", s.poolHandler)
	api.Get("/stats", s.statsHandler)
	api.Get("/history", s.historyHandler)

	s.App.Use("/ws", upgradeRequired)
	s.App.Get("/ws", websocket.New(s.websocketHandler, websocket.Config{
		Origins: lo.Map(strings.Split(s.cfg.CORSOrigins, ","), func(o string, _ int) string {
			return strings.TrimSpace(o)
		}),
	}))
}

func upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
