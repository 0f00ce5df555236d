package config

import (
	"fmt"
	"os"

	"capture-colorspace/bridge"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config represents the application configuration
type Config struct {
	Cameras   []CameraConfig      `toml:"camera" json:"cameras"`
	Fallbacks map[string][]string `toml:"fallbacks" json:"fallbacks"`
	Server    ServerConfig        `toml:"server" json:"server"`
	Monitor   MonitorConfig       `toml:"monitor" json:"monitor"`
	Telemetry TelemetryConfig     `toml:"telemetry" json:"telemetry"`
	Buffers   BufferConfig        `toml:"buffers" json:"buffers"`
	Timeouts  TimeoutConfig       `toml:"timeouts" json:"timeouts"`
	Logging   LoggingConfig       `toml:"logging" json:"logging"`
}

// CameraConfig holds camera-specific settings
type CameraConfig struct {
	ID           string         `toml:"id" json:"id"`
	Backend      string         `toml:"backend" json:"backend"` // "virtual" or "v4l2"
	Device       string         `toml:"device" json:"device"`
	Name         string         `toml:"name" json:"name"`
	ColorSpace   string         `toml:"color_space" json:"color_space"`
	Width        int            `toml:"width" json:"width"`
	Height       int            `toml:"height" json:"height"`
	FPS          float64        `toml:"fps" json:"fps"`
	MaxFPS       int            `toml:"max_fps" json:"max_fps"`
	ApplyOnStart bool           `toml:"apply_on_start" json:"apply_on_start"`
	Formats      []FormatConfig `toml:"formats" json:"formats,omitempty"` // virtual backend only
}

// FormatConfig declares one format of a virtual camera
type FormatConfig struct {
	PixelFormat string   `toml:"pixel_format" json:"pixel_format"`
	Width       int      `toml:"width" json:"width"`
	Height      int      `toml:"height" json:"height"`
	MinFPS      float64  `toml:"min_fps" json:"min_fps"`
	MaxFPS      float64  `toml:"max_fps" json:"max_fps"`
	ColorSpaces []string `toml:"color_spaces" json:"color_spaces"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Enabled        bool     `toml:"enabled" json:"enabled"`
	WebPort        int      `toml:"web_port" json:"web_port"`
	BindIP         string   `toml:"bind_ip" json:"bind_ip"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
}

// MonitorConfig holds drift monitor settings
type MonitorConfig struct {
	Enabled  bool   `toml:"enabled" json:"enabled"`
	Schedule string `toml:"schedule" json:"schedule"`
}

// TelemetryConfig holds OpenTelemetry metric export settings
type TelemetryConfig struct {
	Enabled         bool   `toml:"enabled" json:"enabled"`
	Endpoint        string `toml:"endpoint" json:"endpoint"`
	ServiceName     string `toml:"service_name" json:"service_name"`
	IntervalSeconds int    `toml:"interval_seconds" json:"interval_seconds"`
}

// BufferConfig holds buffer size settings for channels
type BufferConfig struct {
	EventChannelSize    int `toml:"event_channel_size" json:"event_channel_size"`
	WebSocketSendBuffer int `toml:"websocket_send_buffer" json:"websocket_send_buffer"`
}

// TimeoutConfig holds timeout and delay settings
type TimeoutConfig struct {
	ShutdownTimeout     int `toml:"shutdown_timeout_seconds" json:"shutdown_timeout_seconds"`
	HTTPShutdownTimeout int `toml:"http_shutdown_timeout_seconds" json:"http_shutdown_timeout_seconds"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Directory   string `toml:"directory" json:"directory"`
	MaxLogFiles int    `toml:"max_log_files" json:"max_log_files"`
}

// DefaultCamera returns a 1080p30 virtual camera offering SDR and HLG formats
func DefaultCamera() CameraConfig {
	return CameraConfig{
		ID:           "camera1",
		Backend:      "virtual",
		Name:         "Virtual Camera",
		ColorSpace:   bridge.SRGB.String(),
		Width:        1920,
		Height:       1080,
		FPS:          30,
		MaxFPS:       30,
		ApplyOnStart: true,
		Formats: []FormatConfig{
			{
				PixelFormat: "420v",
				Width:       1920,
				Height:      1080,
				MinFPS:      1,
				MaxFPS:      60,
				ColorSpaces: []string{"srgb", "p3_d65"},
			},
			{
				PixelFormat: "x420",
				Width:       1920,
				Height:      1080,
				MinFPS:      1,
				MaxFPS:      30,
				ColorSpaces: []string{"hlg_bt2020", "p3_d65", "srgb"},
			},
		},
	}
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Cameras: []CameraConfig{DefaultCamera()},
		Fallbacks: map[string][]string{
			"apple_log":  {"hlg_bt2020", "p3_d65", "srgb"},
			"hlg_bt2020": {"p3_d65", "srgb"},
			"p3_d65":     {"srgb"},
		},
		Server: ServerConfig{
			Enabled:        true,
			WebPort:        8080,
			BindIP:         "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Monitor: MonitorConfig{
			Enabled:  false,
			Schedule: "@every 1m",
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			ServiceName:     "capture-colorspace",
			IntervalSeconds: 10,
		},
		Buffers: BufferConfig{
			EventChannelSize:    16,
			WebSocketSendBuffer: 64,
		},
		Timeouts: TimeoutConfig{
			ShutdownTimeout:     30,
			HTTPShutdownTimeout: 5,
		},
		Logging: LoggingConfig{
			Directory:   "logs",
			MaxLogFiles: 20,
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	config := Default()

	// Load from file if it exists
	if _, err := os.Stat(configPath); err == nil {
		// A file that declares cameras replaces the default camera list
		config.Cameras = nil
		if _, err := toml.DecodeFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		if len(config.Cameras) == 0 {
			config.Cameras = []CameraConfig{DefaultCamera()}
		}
		logger.Info("Config loaded from file", zap.String("path", configPath))
	} else {
		logger.Info("Config file not found, using defaults", zap.String("path", configPath))
	}

	config.applyCameraDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// applyCameraDefaults fills fields a camera entry may leave out
func (c *Config) applyCameraDefaults() {
	for i := range c.Cameras {
		cam := &c.Cameras[i]
		if cam.ID == "" {
			cam.ID = fmt.Sprintf("camera%d", i+1)
		}
		if cam.Backend == "" {
			cam.Backend = "virtual"
		}
		if cam.Name == "" {
			cam.Name = cam.ID
		}
		if cam.ColorSpace == "" {
			cam.ColorSpace = bridge.SRGB.String()
		}
		if cam.FPS == 0 {
			cam.FPS = 30
		}
		if cam.MaxFPS == 0 {
			cam.MaxFPS = 30
		}
	}
}

// Validate checks selectors, the fallback table, camera entries and the
// monitor schedule
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, cam := range c.Cameras {
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true

		switch cam.Backend {
		case "virtual":
		case "v4l2":
			if cam.Device == "" {
				return fmt.Errorf("camera %s: v4l2 backend needs a device path", cam.ID)
			}
		default:
			return fmt.Errorf("camera %s: unknown backend %q", cam.ID, cam.Backend)
		}

		if _, err := bridge.ParseColorSpace(cam.ColorSpace); err != nil {
			return fmt.Errorf("camera %s: %w", cam.ID, err)
		}
		if cam.Width <= 0 || cam.Height <= 0 {
			return fmt.Errorf("camera %s: invalid resolution %dx%d", cam.ID, cam.Width, cam.Height)
		}

		for i, f := range cam.Formats {
			if f.Width <= 0 || f.Height <= 0 {
				return fmt.Errorf("camera %s: format %d: invalid resolution %dx%d", cam.ID, i, f.Width, f.Height)
			}
			if f.MinFPS > f.MaxFPS {
				return fmt.Errorf("camera %s: format %d: min_fps above max_fps", cam.ID, i)
			}
			for _, s := range f.ColorSpaces {
				if _, err := bridge.ParseColorSpace(s); err != nil {
					return fmt.Errorf("camera %s: format %d: %w", cam.ID, i, err)
				}
			}
		}
	}

	if _, err := c.FallbackSelectors(); err != nil {
		return err
	}

	if c.Monitor.Enabled {
		if _, err := cron.ParseStandard(c.Monitor.Schedule); err != nil {
			return fmt.Errorf("invalid monitor schedule %q: %w", c.Monitor.Schedule, err)
		}
	}

	return nil
}

// FallbackSelectors parses the [fallbacks] table
func (c *Config) FallbackSelectors() (map[bridge.ColorSpace][]bridge.ColorSpace, error) {
	out := make(map[bridge.ColorSpace][]bridge.ColorSpace, len(c.Fallbacks))
	for requested, substitutes := range c.Fallbacks {
		key, err := bridge.ParseColorSpace(requested)
		if err != nil {
			return nil, fmt.Errorf("fallbacks: %w", err)
		}
		list := make([]bridge.ColorSpace, 0, len(substitutes))
		for _, s := range substitutes {
			cs, err := bridge.ParseColorSpace(s)
			if err != nil {
				return nil, fmt.Errorf("fallbacks for %s: %w", requested, err)
			}
			list = append(list, cs)
		}
		out[key] = list
	}
	return out, nil
}

// Camera returns the entry with the given id
func (c *Config) Camera(id string) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.ID == id {
			return cam, true
		}
	}
	return CameraConfig{}, false
}

// SaveConfig saves the current configuration to a file
func SaveConfig(config *Config, configPath string) error {
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
