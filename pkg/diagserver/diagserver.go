// Package diagserver exposes read-only daemon state over HTTP and a
// live telemetry websocket: a gin.Engine with gin.Recovery(), route
// groups under /api/v1, and a websocket endpoint pushing telemetry
// frames. Every route here is read-only except the runtime FFB-mode
// toggle.
package diagserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Fooderapp/WheelerHost-V1/pkg/diag"
	"github.com/Fooderapp/WheelerHost-V1/pkg/feedback"
	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

// Status is the point-in-time daemon state served by /api/v1/status.
type Status struct {
	SessionActive  bool   `json:"session_active"`
	Background     bool   `json:"background"`
	BridgeReady    bool   `json:"bridge_ready"`
	BridgeTarget   string `json:"bridge_target"`
	BridgeRestarts int    `json:"bridge_restarts"`
	FFBMode        string `json:"ffb_mode"`
}

// Telemetry is one frame pushed over /ws/telemetry.
type Telemetry struct {
	State     wire.GamepadState  `json:"state"`
	Feedback  wire.FeedbackState `json:"feedback"`
	Audio     wire.AudioFeatures `json:"audio"`
	Timestamp int64              `json:"ts_unix_ms"`
}

// StatusFunc reports the current Status snapshot.
type StatusFunc func() Status

// TelemetryFunc reports the current Telemetry snapshot.
type TelemetryFunc func() Telemetry

// SetModeFunc applies a runtime FFB mode change.
type SetModeFunc func(feedback.Mode)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the diagnostics HTTP+websocket server.
type Server struct {
	httpServer *http.Server
	status     StatusFunc
	telemetry  TelemetryFunc
	setMode    SetModeFunc
	diag       *diag.Counters
}

// New builds a Server bound to addr. status and telemetry are called
// on every request/tick to read live state owned by pkg/sessionloop;
// setMode is invoked for the one mutating endpoint.
func New(addr string, status StatusFunc, telemetry TelemetryFunc, setMode SetModeFunc, d *diag.Counters) *Server {
	s := &Server{status: status, telemetry: telemetry, setMode: setMode, diag: d}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealthz)

	api := router.Group("/api/v1")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/counters", s.handleCounters)
		api.POST("/ffb-mode", s.handleSetFFBMode)
	}

	router.GET("/ws/telemetry", s.handleTelemetryWS)

	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start launches the HTTP server in a background goroutine, returning
// immediately. ErrServerClosed after shutdown has begun is not an
// error.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("diagserver: %w", err)
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) handleCounters(c *gin.Context) {
	c.JSON(http.StatusOK, s.diag.Snapshot())
}

type ffbModeRequest struct {
	Mode string `json:"mode"`
}

// handleSetFFBMode is the one mutating endpoint this server exposes;
// anything else the daemon owns stays read-only here.
func (s *Server) handleSetFFBMode(c *gin.Context) {
	var req ffbModeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	switch req.Mode {
	case "passthrough", "synthetic", "hybrid":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be one of passthrough, synthetic, hybrid"})
		return
	}
	s.setMode(feedback.ParseMode(req.Mode))
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

// telemetryPushInterval caps the websocket fan-out below the 60 Hz
// core tick rate; no observer needs every frame to see live telemetry.
const telemetryPushInterval = 50 * time.Millisecond

// handleTelemetryWS upgrades to a websocket and pushes Telemetry
// frames until the client disconnects.
func (s *Server) handleTelemetryWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(telemetryPushInterval)
	defer ticker.Stop()

	for range ticker.C {
		t := s.telemetry()
		t.Timestamp = time.Now().UnixMilli()
		if err := conn.WriteJSON(t); err != nil {
			return
		}
	}
}
