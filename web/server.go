package web

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"capture-colorspace/camera"
	"capture-colorspace/config"

	"go.uber.org/zap"
)

// Server represents the main web server
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	httpServer *http.Server

	// Components
	cameraManager *camera.Manager
	events        *EventHub

	// Handlers
	handlers *Handlers
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	server := &Server{
		config: cfg,
		logger: logger,
		events: NewEventHub(cfg.Server.AllowedOrigins, cfg.Buffers.EventChannelSize, cfg.Buffers.WebSocketSendBuffer, logger.Named("events")),
	}

	server.handlers = NewHandlers(cfg, logger)
	server.handlers.SetEventHub(server.events)

	return server
}

// SetCameraManager sets the camera manager and subscribes the event hub to
// its configuration events
func (s *Server) SetCameraManager(manager *camera.Manager) {
	s.cameraManager = manager
	s.handlers.SetCameraManager(manager)
	manager.Subscribe(s.events.Publish)
}

// Events returns the websocket event hub
func (s *Server) Events() *EventHub {
	return s.events
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handlers.HandleHealth)

	// API endpoints
	mux.HandleFunc("GET /api/config", s.handlers.HandleAPIConfig)
	mux.HandleFunc("GET /api/color-spaces", s.handlers.HandleAPIColorSpaces)
	mux.HandleFunc("GET /api/cameras", s.handlers.HandleAPICameras)
	mux.HandleFunc("GET /api/cameras/{id}/formats", s.handlers.HandleAPIFormats)
	mux.HandleFunc("GET /api/cameras/{id}/availability", s.handlers.HandleAPIAvailability)
	mux.HandleFunc("POST /api/cameras/{id}/color-space", s.handlers.HandleAPISetColorSpace)

	// Event stream
	mux.HandleFunc("GET /ws/events", s.events.HandleWebSocket)

	return s.addMiddleware(mux)
}

// Start starts the web server
func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.Int("port", s.config.Server.WebPort))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.BindIP, s.config.Server.WebPort),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server error", zap.Error(err))
		}
	}()

	s.logger.Info("Web server started", zap.String("address", s.httpServer.Addr))
	return nil
}

// addMiddleware adds CORS and request logging
func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && originAllowed(s.config.Server.AllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler.ServeHTTP(lw, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", lw.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// Stop closes event clients and shuts the server down gracefully
func (s *Server) Stop() error {
	s.logger.Info("Stopping web server")

	s.events.Close()

	if s.httpServer == nil {
		return nil
	}

	timeout := time.Duration(s.config.Timeouts.HTTPShutdownTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Error during server shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("Web server stopped")
	return nil
}
