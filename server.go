package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"i4.energy/across/btconf/device"
	"i4.energy/across/btconf/param"
)

// Server handles incoming HTTP requests for the module held by its session
type Server struct {
	config  *Config
	catalog *param.Catalog
	logger  *zap.Logger
	session *device.Session
	hub     *Hub
}

// NewServer creates a server that opens serial connections on request
func NewServer(config *Config, catalog *param.Catalog, logger *zap.Logger) *Server {
	s := &Server{
		config:  config,
		catalog: catalog,
		logger:  logger,
		session: &device.Session{},
	}
	s.hub = NewHub(logger.With(zap.String("component", "stream")), s.snapshot)
	return s
}

// Router builds the gin engine serving the control API
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(cors.New(s.corsConfig()))

	api := router.Group("/api")
	api.GET("/ports", s.handlePorts)
	api.POST("/connection", s.handleOpen)
	api.DELETE("/connection", s.handleClose)
	api.GET("/params", s.handleParams)
	api.POST("/params/read", s.handleRead)
	api.POST("/params/write", s.handleWrite)
	api.GET("/params/:index/edit", s.handleBeginEdit)
	api.PUT("/params/:index", s.handleCommitEdit)
	api.GET("/stream", s.hub.Handle)

	return router
}

// Shutdown closes the stream clients and the open connection, if any
func (s *Server) Shutdown() {
	s.hub.Close()
	if err := s.session.Close(); err != nil && !errors.Is(err, device.ErrNotOpen) {
		s.logger.Error("Failed to close connection", zap.Error(err))
	}
}

func (s *Server) corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	if len(s.config.HTTP.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.HTTP.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	return corsConfig
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status_code", status),
			zap.Duration("duration", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("API request", fields...)
		} else {
			s.logger.Debug("API request", fields...)
		}
	}
}

func (s *Server) sendError(c *gin.Context, err error) {
	type ErrorResponse struct {
		Message string `json:"message"`
	}
	c.JSON(statusFor(err), ErrorResponse{Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrNotOpen),
		errors.Is(err, device.ErrBatchInProgress):
		return http.StatusConflict
	case errors.Is(err, device.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, device.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) snapshot() StreamMessage {
	conn, err := s.session.Current()
	if err != nil {
		return StreamMessage{Event: "snapshot", Parameters: []device.ParameterView{}}
	}
	return StreamMessage{
		Event:        "snapshot",
		ConnectionID: conn.ID(),
		Parameters:   conn.Snapshot(),
	}
}

func (s *Server) broadcast(event string, conn *device.Connection, report *device.Report) {
	msg := StreamMessage{Event: event, Report: report, Parameters: []device.ParameterView{}}
	if conn != nil {
		msg.ConnectionID = conn.ID()
		msg.Parameters = conn.Snapshot()
	}
	s.hub.Broadcast(msg)
}

func (s *Server) handlePorts(c *gin.Context) {
	ports, err := listSerialPorts()
	if err != nil {
		s.logger.Error("Failed to list serial ports", zap.Error(err))
		s.sendError(c, err)
		return
	}
	if ports == nil {
		ports = []device.PortInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

// handleOpen opens a connection, replacing any open one
func (s *Server) handleOpen(c *gin.Context) {
	type OpenRequest struct {
		Port     string `json:"port"`
		BaudRate int    `json:"baud_rate"`
	}

	req := OpenRequest{
		Port:     s.config.Serial.Port,
		BaudRate: s.config.Serial.BaudRate,
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
	}
	if req.Port == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "'port' is required"})
		return
	}

	config, err := device.NewConfigBuilder().
		WithDialer(dialSerial(req.Port, req.BaudRate, s.config.Serial.Timeout)).
		WithCatalog(s.catalog).
		WithTimeout(s.config.Serial.Timeout).
		WithSkipUnchanged(s.config.Sync.SkipUnchanged).
		WithLogger(s.logger.With(zap.String("port", req.Port))).
		Build()
	if err != nil {
		s.sendError(c, err)
		return
	}

	conn, err := s.session.Open(c.Request.Context(), config)
	if err != nil {
		s.logger.Error("Failed to open connection", zap.String("port", req.Port), zap.Error(err))
		s.broadcast("closed", nil, nil)
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
		return
	}

	s.broadcast("opened", conn, nil)
	c.JSON(http.StatusCreated, gin.H{
		"connection_id": conn.ID(),
		"port":          req.Port,
		"parameters":    conn.Snapshot(),
	})
}

func (s *Server) handleClose(c *gin.Context) {
	if err := s.session.Close(); err != nil {
		if errors.Is(err, device.ErrNotOpen) {
			s.sendError(c, err)
			return
		}
		s.logger.Warn("Transport close failed", zap.Error(err))
	}
	s.broadcast("closed", nil, nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleParams(c *gin.Context) {
	conn, err := s.session.Current()
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connection_id": conn.ID(),
		"parameters":    conn.Snapshot(),
	})
}

func (s *Server) handleRead(c *gin.Context) {
	s.runBatch(c, "read", (*device.Connection).Read)
}

func (s *Server) handleWrite(c *gin.Context) {
	s.runBatch(c, "write", (*device.Connection).Write)
}

func (s *Server) runBatch(c *gin.Context, event string, batch func(*device.Connection, context.Context) (device.Report, error)) {
	conn, err := s.session.Current()
	if err != nil {
		s.sendError(c, err)
		return
	}

	report, err := batch(conn, c.Request.Context())
	if err != nil {
		s.sendError(c, err)
		return
	}

	s.broadcast(event, conn, &report)
	c.JSON(http.StatusOK, gin.H{
		"report":     report,
		"parameters": conn.Snapshot(),
	})
}

func (s *Server) handleBeginEdit(c *gin.Context) {
	conn, index, ok := s.paramTarget(c)
	if !ok {
		return
	}

	value, err := conn.BeginEdit(index)
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "value": value})
}

func (s *Server) handleCommitEdit(c *gin.Context) {
	type EditRequest struct {
		Value *string `json:"value"`
	}

	conn, index, ok := s.paramTarget(c)
	if !ok {
		return
	}

	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "'value' is required"})
		return
	}

	if err := conn.CommitEdit(index, *req.Value); err != nil {
		s.sendError(c, err)
		return
	}

	views := conn.Snapshot()
	if index >= len(views) {
		// closed between commit and snapshot
		s.sendError(c, device.ErrNotOpen)
		return
	}
	s.broadcast("edit", conn, nil)
	c.JSON(http.StatusOK, views[index])
}

// paramTarget resolves the open connection and the :index path parameter,
// writing the error response itself when either is missing
func (s *Server) paramTarget(c *gin.Context) (*device.Connection, int, bool) {
	conn, err := s.session.Current()
	if err != nil {
		s.sendError(c, err)
		return nil, 0, false
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "index must be an integer"})
		return nil, 0, false
	}
	return conn, index, true
}
