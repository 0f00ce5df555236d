package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"time"

	"capture-colorspace/camera"
	"capture-colorspace/config"
	"capture-colorspace/telemetry"
	"capture-colorspace/web"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultConfigPath = "config.toml"
	AppName           = "Capture Color Space Service"
	AppVersion        = "1.0.0"
	logFilePrefix     = "capture-colorspace"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger

	// Components
	cameraManager     *camera.Manager
	webServer         *web.Server
	telemetryShutdown func(context.Context) error

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", DefaultConfigPath, "Path to configuration file")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		listFormats = flag.Bool("list-formats", false, "Log the formats of every camera and exit")
		applyOnly   = flag.Bool("apply", false, "Apply the configured color spaces and exit")
		version     = flag.Bool("version", false, "Show version information")
		help        = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	if *help {
		fmt.Printf("%s v%s\n\n", AppName, AppVersion)
		fmt.Println("Configures capture devices for sRGB, Display P3, HLG and log color spaces with fallback")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	logger, err := createLogger(*logLevel, cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting "+AppName,
		zap.String("version", AppVersion),
		zap.String("go_version", runtime.Version()),
		zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH))

	logger.Info("Configuration loaded",
		zap.String("path", *configPath),
		zap.Int("cameras", len(cfg.Cameras)),
		zap.Bool("web_server", cfg.Server.Enabled),
		zap.Bool("monitor", cfg.Monitor.Enabled),
		zap.Bool("telemetry", cfg.Telemetry.Enabled))

	app := NewApplication(cfg, logger)

	if *listFormats || *applyOnly {
		os.Exit(app.RunOnce(*listFormats, *applyOnly))
	}

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	// Start application
	if err := app.Start(ctx); err != nil {
		logger.Fatal("Failed to start application", zap.Error(err))
	}

	// Wait for shutdown signal
	select {
	case sig := <-signalCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Graceful shutdown
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(app.config.Timeouts.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config, logger *zap.Logger) *Application {
	ctx, cancel := context.WithCancel(context.Background())

	return &Application{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RunOnce handles the -list-formats and -apply modes and returns the exit
// code
func (a *Application) RunOnce(listFormats, apply bool) int {
	if err := a.initializeCameraManager(); err != nil {
		a.logger.Error("Failed to initialize camera manager", zap.Error(err))
		return 1
	}
	defer a.cameraManager.Close()

	if listFormats {
		a.cameraManager.LogFormats()
	}

	if apply {
		if errs := a.cameraManager.ApplyAll(a.ctx); len(errs) > 0 {
			return 1
		}
	}
	return 0
}

// Start starts all application components
func (a *Application) Start(ctx context.Context) error {
	a.logger.Info("Starting application components")

	if a.config.Telemetry.Enabled {
		shutdown, err := telemetry.Setup(ctx, a.config.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		a.telemetryShutdown = shutdown
		a.logger.Info("Telemetry enabled", zap.String("endpoint", a.config.Telemetry.Endpoint))
	}

	// Initialize camera manager
	if err := a.initializeCameraManager(); err != nil {
		return fmt.Errorf("failed to initialize camera manager: %w", err)
	}

	// Initialize web server before applying so clients see startup events
	if a.config.Server.Enabled {
		a.webServer = web.NewServer(a.config, a.logger)
		a.webServer.SetCameraManager(a.cameraManager)
		if err := a.webServer.Start(); err != nil {
			return fmt.Errorf("failed to start web server: %w", err)
		}
	}

	a.cameraManager.ApplyAll(a.ctx)

	if a.config.Monitor.Enabled {
		if err := a.cameraManager.StartMonitor(a.ctx, a.config.Monitor.Schedule); err != nil {
			return fmt.Errorf("failed to start drift monitor: %w", err)
		}
	}

	fields := []zap.Field{zap.Strings("cameras", a.cameraManager.GetCameraList())}
	if a.webServer != nil {
		fields = append(fields, zap.String("web_url", fmt.Sprintf("http://%s:%d", a.config.Server.BindIP, a.config.Server.WebPort)))
	}
	a.logger.Info("Application started successfully", fields...)

	return nil
}

// initializeCameraManager opens every configured camera
func (a *Application) initializeCameraManager() error {
	a.logger.Info("Initializing camera manager")

	manager, err := camera.NewManager(a.config, a.logger)
	if err != nil {
		return err
	}
	a.cameraManager = manager

	initialized := a.cameraManager.InitializeAll()
	a.logger.Info("Camera manager initialized",
		zap.Int("initialized", initialized),
		zap.Int("configured", len(a.config.Cameras)))
	return nil
}

// Stop gracefully stops all application components
func (a *Application) Stop(ctx context.Context) error {
	a.logger.Info("Stopping application")

	a.cancel()

	if a.webServer != nil {
		if err := a.webServer.Stop(); err != nil {
			a.logger.Error("Error stopping web server", zap.Error(err))
		}
	}

	if a.cameraManager != nil {
		if err := a.cameraManager.Close(); err != nil {
			a.logger.Error("Error stopping camera manager", zap.Error(err))
		}
	}

	if a.telemetryShutdown != nil {
		if err := a.telemetryShutdown(ctx); err != nil {
			a.logger.Warn("Error flushing telemetry", zap.Error(err))
		}
	}

	a.logger.Info("All components stopped")
	return nil
}

// createLogger creates a structured logger writing to stdout and a
// timestamped file under the configured directory
func createLogger(level string, logging config.LoggingConfig) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	// Prepare log directory and file path
	logDir := logging.Directory
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	ts := time.Now().Format("20060102-150405")
	logFile := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", logFilePrefix, ts))

	pruneLogs(logDir, logging.MaxLogFiles)

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout", logFile},
		ErrorOutputPaths: []string{"stderr", logFile},
	}

	return config.Build()
}

// pruneLogs keeps the newest keep files, leaving room for the one about to
// be created
func pruneLogs(logDir string, keep int) {
	if keep <= 0 {
		return
	}
	files, _ := filepath.Glob(filepath.Join(logDir, logFilePrefix+"-*.log"))
	if len(files) < keep {
		return
	}
	sort.Strings(files) // lexicographic order matches timestamp
	for _, f := range files[:len(files)-keep+1] {
		_ = os.Remove(f)
	}
}
