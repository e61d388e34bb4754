package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"riskwatch/src/config"
	"riskwatch/src/interfaces"
	"riskwatch/src/logger"
	"riskwatch/src/margin"
	"riskwatch/src/mux"
	"riskwatch/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server hosts the downstream websocket endpoint plus the thin HTTP surface.
// It also implements the broadcast router (see router.go).
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	Mux    *mux.Multiplexer
	Store  interfaces.IStore

	// Tape, when set, serves the in-memory recent-ticks view.
	Tape *utils.TickTape

	engine       *gin.Engine
	http         *http.Server
	marginEngine *margin.Engine
}

// -----------------------------------------------------------------------------

func NewServer(cfg *config.Config, m *mux.Multiplexer, store interfaces.IStore, l *logger.Logger) *Server {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Config: cfg,
		Logger: l,
		Mux:    m,
		Store:  store,
		engine: gin.Default(),
	}

	// CORS for local dashboard development
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

// AttachMarginEngine wires the engine after construction; the engine itself
// needs the server as its notifier.
func (s *Server) AttachMarginEngine(e *margin.Engine) {
	s.marginEngine = e
}

// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/margin/:clientId", s.getMargin)
	s.engine.GET("/api/chart/:symbol", s.getChart)
	s.engine.GET("/api/tape/:symbol", s.getTape)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.http = &http.Server{Addr: addr, Handler: s.engine}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	payload := gin.H{
		"status":      "ok",
		"connections": s.Mux.ConnectionCount(),
		"demand":      len(s.Mux.DemandedSymbols()),
		"active":      s.Mux.ActiveSymbols(),
	}
	if s.Tape != nil {
		payload["tape_symbols"] = s.Tape.SymbolCount()
	}
	c.JSON(200, payload)
}

// -----------------------------------------------------------------------------

// getMargin serves the on-demand margin query path: a synchronous computation
// that does not require an active upstream tick.
func (s *Server) getMargin(c *gin.Context) {
	if s.marginEngine == nil {
		c.JSON(503, gin.H{"error": "margin engine not ready"})
		return
	}

	status, err := s.marginEngine.ComputeMarginStatus(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		s.Logger.Error("On-demand margin computation failed: %v", err)
		c.JSON(500, gin.H{"error": "margin computation failed"})
		return
	}
	c.JSON(200, status)
}

// -----------------------------------------------------------------------------

// getChart reads stored price history. Cache-aside glue around the store,
// kept deliberately thin.
func (s *Server) getChart(c *gin.Context) {
	fromTs, _ := strconv.ParseInt(c.DefaultQuery("from", "0"), 10, 64)

	points, err := s.Store.GetChartPoints(c.Param("symbol"), fromTs)
	if err != nil {
		c.JSON(500, gin.H{"error": "chart lookup failed"})
		return
	}
	c.JSON(200, gin.H{"symbol": c.Param("symbol"), "points": points})
}

// -----------------------------------------------------------------------------

// getTape serves the most recent in-memory ticks for a symbol without touching
// storage.
func (s *Server) getTape(c *gin.Context) {
	if s.Tape == nil {
		c.JSON(503, gin.H{"error": "tape not ready"})
		return
	}

	n, err := strconv.Atoi(c.DefaultQuery("n", "50"))
	if err != nil || n <= 0 {
		n = 50
	}

	symbol := c.Param("symbol")
	c.JSON(200, gin.H{"symbol": symbol, "points": s.Tape.Latest(symbol, n)})
}

// -----------------------------------------------------------------------------
// WebSocket Handler
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		// Buffered channel so a slow consumer cannot block the fan-out
		send: make(chan interface{}, 256),
		done: make(chan struct{}),
	}

	s.Mux.Add(client)
	s.Logger.Debug("Client %s connected", client.id)

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// handleClientMessage dispatches one inbound frame. Malformed messages are
// logged and ignored; the connection stays open.
func (s *Server) handleClientMessage(client *Client, message []byte) {
	cmd, err := decodeCommand(message)
	if err != nil {
		s.Logger.Warning("Ignoring malformed message from %s: %v", client.id, err)
		return
	}

	switch cmd.Type {
	case "register":
		if cmd.ClientID == "" {
			s.Logger.Warning("Ignoring register without clientId from %s", client.id)
			return
		}
		s.Mux.Register(client, cmd.ClientID)

	case "subscribe":
		if cmd.ClientID != "" {
			s.Mux.Register(client, cmd.ClientID)
		}
		s.Mux.Subscribe(client, cmd.Symbols)

		// An identified subscriber gets one immediate margin snapshot so the
		// dashboard has data before the first upstream tick.
		if cmd.ClientID != "" && s.marginEngine != nil {
			go s.pushInitialMargin(cmd.ClientID)
		}

	default:
		s.Logger.Warning("Ignoring unknown message type %q from %s", cmd.Type, client.id)
	}
}

// -----------------------------------------------------------------------------

func (s *Server) pushInitialMargin(clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	status, err := s.marginEngine.ComputeMarginStatus(ctx, clientID)
	if err != nil {
		s.Logger.Error("Initial margin snapshot for %s failed: %v", clientID, err)
		return
	}
	s.PushMarginUpdate(clientID, status)
}
