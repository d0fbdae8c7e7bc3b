// Package httpapi exposes the relay's admin surface over HTTP: status,
// room management, runtime settings, blacklists and Prometheus metrics.
// It listens on its own port, separate from the game transport.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"claj/server/internal/config"
	"claj/server/internal/packet"
	"claj/server/internal/relay"
)

// Admin is the slice of the relay the API needs; *relay.Relay satisfies
// it and tests substitute a fake.
type Admin interface {
	Status() relay.Status
	RoomSummaries() []relay.RoomSummary
	CloseRoom(sid string) error
	Broadcast(text string) int
	RefreshLists()
}

// Server serves the admin API.
type Server struct {
	admin Admin
	cfg   *config.Config
	echo  *echo.Echo
}

// NewServer constructs the API server and registers all routes.
func NewServer(admin Admin, cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("api request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{admin: admin, cfg: cfg, echo: e}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.GET("/api/status", s.handleStatus)
	s.echo.GET("/api/rooms", s.handleRooms)
	s.echo.POST("/api/rooms/:sid/close", s.handleCloseRoom)
	s.echo.POST("/api/rooms/refresh", s.handleRefresh)
	s.echo.POST("/api/broadcast", s.handleBroadcast)

	s.echo.GET("/api/config", s.handleGetConfig)
	s.echo.PUT("/api/config", s.handlePutConfig)

	s.echo.GET("/api/blacklist", s.handleGetBlacklist)
	s.echo.POST("/api/blacklist", s.handleAddBlacklist)
	s.echo.DELETE("/api/blacklist/:address", s.handleRemoveBlacklist)
	s.echo.POST("/api/blacklist/types", s.handleAddTypeBlacklist)
	s.echo.DELETE("/api/blacklist/types/:type", s.handleRemoveTypeBlacklist)
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server error", "err", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		slog.Error("api shutdown failed", "err", err)
	}
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(c echo.Context) error {
	st := s.admin.Status()
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Rooms:       st.Rooms,
		Connections: st.Connections,
	})
}

// StatusResponse is the payload for GET /api/status.
type StatusResponse struct {
	Version     int32 `json:"version"`
	UptimeSec   int64 `json:"uptimeSec"`
	Closing     bool  `json:"closing"`
	Connections int   `json:"connections"`
	Rooms       int   `json:"rooms"`
	Clients     int   `json:"clients"`
	GameTypes   int   `json:"gameTypes"`
}

func (s *Server) handleStatus(c echo.Context) error {
	st := s.admin.Status()
	return c.JSON(http.StatusOK, StatusResponse{
		Version:     st.Version,
		UptimeSec:   int64(st.Uptime / time.Second),
		Closing:     st.Closing,
		Connections: st.Connections,
		Rooms:       st.Rooms,
		Clients:     st.Clients,
		GameTypes:   st.GameTypes,
	})
}

func (s *Server) handleRooms(c echo.Context) error {
	rooms := s.admin.RoomSummaries()
	if rooms == nil {
		rooms = []relay.RoomSummary{}
	}
	return c.JSON(http.StatusOK, rooms)
}

func (s *Server) handleCloseRoom(c echo.Context) error {
	if err := s.admin.CloseRoom(c.Param("sid")); err != nil {
		if errors.Is(err, relay.ErrRoomNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "room not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRefresh(c echo.Context) error {
	s.admin.RefreshLists()
	return c.NoContent(http.StatusNoContent)
}

// BroadcastRequest is the body for POST /api/broadcast.
type BroadcastRequest struct {
	Text string `json:"text"`
}

// BroadcastResponse reports how many rooms received the message.
type BroadcastResponse struct {
	Rooms int `json:"rooms"`
}

func (s *Server) handleBroadcast(c echo.Context) error {
	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text must not be empty")
	}
	if len(text) > 200 {
		return echo.NewHTTPError(http.StatusBadRequest, "text must not exceed 200 characters")
	}
	return c.JSON(http.StatusOK, BroadcastResponse{Rooms: s.admin.Broadcast(text)})
}

func (s *Server) handleGetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cfg.Snapshot())
}

// ConfigRequest is the body for PUT /api/config: one setting at a time,
// as the console does it.
type ConfigRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handlePutConfig(c echo.Context) error {
	var req ConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.cfg.Set(strings.TrimSpace(req.Key), strings.TrimSpace(req.Value)); err != nil {
		if errors.Is(err, config.ErrUnknownKey) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown setting")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// BlacklistResponse is the payload for GET /api/blacklist.
type BlacklistResponse struct {
	Addresses []string `json:"addresses"`
	Types     []string `json:"types"`
}

func (s *Server) handleGetBlacklist(c echo.Context) error {
	return c.JSON(http.StatusOK, BlacklistResponse{
		Addresses: s.cfg.BlacklistedAddresses(),
		Types:     s.cfg.BlacklistedTypes(),
	})
}

// BlacklistRequest is the body for the blacklist POST endpoints.
type BlacklistRequest struct {
	Address string `json:"address,omitempty"`
	Type    string `json:"type,omitempty"`
}

func (s *Server) handleAddBlacklist(c echo.Context) error {
	var req BlacklistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	addr := strings.TrimSpace(req.Address)
	if addr == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "address must not be empty")
	}
	if !s.cfg.BlacklistAddress(addr) {
		return c.NoContent(http.StatusNoContent)
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) handleRemoveBlacklist(c echo.Context) error {
	if !s.cfg.UnblacklistAddress(c.Param("address")) {
		return echo.NewHTTPError(http.StatusNotFound, "address not blacklisted")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddTypeBlacklist(c echo.Context) error {
	var req BlacklistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	typ := packet.GameType(strings.TrimSpace(req.Type))
	if typ == "" || !typ.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid game type")
	}
	if !s.cfg.BlacklistType(typ) {
		return c.NoContent(http.StatusNoContent)
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) handleRemoveTypeBlacklist(c echo.Context) error {
	if !s.cfg.UnblacklistType(packet.GameType(c.Param("type"))) {
		return echo.NewHTTPError(http.StatusNotFound, "type not blacklisted")
	}
	return c.NoContent(http.StatusNoContent)
}
