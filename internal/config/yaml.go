// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	applog "player/internal/log"
	"player/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"`          // Logging level (e.g., "debug", "info", "warn", "error").
	LogFile   string          `yaml:"log_file,omitempty"` // Optional rotating log file.
	Audio     AudioConfig     `yaml:"audio"`              // Audio output settings.
	Recording RecordingConfig `yaml:"recording"`          // Recording tap settings.
	Video     VideoConfig     `yaml:"video"`              // Video frame store settings.
	Transport TransportConfig `yaml:"transport"`          // Clock publisher settings.
}

// AudioConfig holds settings related to audio decode and output.
type AudioConfig struct {
	Backend         string        `yaml:"backend"`            // Output backend: portaudio, malgo, wav or null.
	OutputDevice    int           `yaml:"output_device"`      // PortAudio device index for output (-1 for default).
	WAVPath         string        `yaml:"wav_path,omitempty"` // Destination file for the wav backend.
	SampleRate      int           `yaml:"sample_rate"`        // Output sample rate in Hz.
	Channels        int           `yaml:"channels"`           // Output channel count.
	FramesPerBuffer int           `yaml:"frames_per_buffer"`  // Frames per device write.
	LowLatency      bool          `yaml:"low_latency"`        // Request low latency settings from the device.
	QueueCapacity   int           `yaml:"queue_capacity"`     // Compressed packets buffered ahead of decode.
	PollInterval    time.Duration `yaml:"poll_interval"`      // How often an idle playback loop re-checks its exit flag.
}

// RecordingConfig holds settings for teeing played audio into a WAV file.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"`
}

// VideoConfig holds the initial output image dimensions.
type VideoConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TransportConfig holds settings for publishing the playback clock.
type TransportConfig struct {
	Kind             string        `yaml:"kind"`               // "", websocket, udp or log.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address for the websocket server.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets.
	SendInterval     time.Duration `yaml:"send_interval"`      // Interval between clock updates.
	FFTSize          int           `yaml:"fft_size"`           // Spectrum size attached to clock updates (0 disables).
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("player.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		candidates := []string{
			"player.yaml",
			"config.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every option against the limits in config.go.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not recognized", c.LogLevel)
	}

	// Audio Validation
	a := c.Audio
	switch a.Backend {
	case BackendPortAudio, BackendMalgo, BackendNull:
	case BackendWAV:
		if a.WAVPath == "" {
			return fmt.Errorf("audio.wav_path must be set for the wav backend")
		}
	default:
		return fmt.Errorf("audio.backend %q is not supported", a.Backend)
	}
	if a.OutputDevice < MinDeviceID {
		return fmt.Errorf("audio.output_device %d is invalid", a.OutputDevice)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %d outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.Channels < 1 || a.Channels > MaxChannels {
		return fmt.Errorf("audio.channels %d outside [1, %d]", a.Channels, MaxChannels)
	}
	if !bitint.IsPowerOfTwo(a.FramesPerBuffer) || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d must be a power of two <= %d", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.QueueCapacity < 1 || a.QueueCapacity > MaxQueueCapacity {
		return fmt.Errorf("audio.queue_capacity %d outside [1, %d]", a.QueueCapacity, MaxQueueCapacity)
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("audio.poll_interval must be positive")
	}

	// Video Validation
	if c.Video.Width < 0 || c.Video.Height < 0 ||
		c.Video.Width > MaxDimension || c.Video.Height > MaxDimension {
		return fmt.Errorf("video dimensions %dx%d are invalid", c.Video.Width, c.Video.Height)
	}

	// Transport Validation
	t := c.Transport
	switch t.Kind {
	case TransportNone, TransportLog:
	case TransportWebSocket:
		if t.WebSocketAddr == "" {
			return fmt.Errorf("transport.websocket_addr must be set for the websocket transport")
		}
	case TransportUDP:
		if t.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set for the udp transport")
		}
	default:
		return fmt.Errorf("transport.kind %q is not supported", t.Kind)
	}
	if t.Kind != TransportNone && t.SendInterval <= 0 {
		return fmt.Errorf("transport.send_interval must be positive")
	}
	if t.FFTSize != 0 && !bitint.IsPowerOfTwo(t.FFTSize) {
		return fmt.Errorf("transport.fft_size %d must be a power of two", t.FFTSize)
	}

	return nil
}

// applyEnvOverrides lets ENV_* variables override file and default values.
// Unparseable values are ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Infof("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_AUDIO_{...}
	// These are specific to the audio output.

	// ENV_AUDIO_BACKEND
	if val, ok := os.LookupEnv("ENV_AUDIO_BACKEND"); ok {
		cfg.Audio.Backend = val
		applog.Infof("configuration: Overriding audio.backend from env: %s", val)
	}
	// ENV_AUDIO_QUEUE_CAPACITY
	if val, ok := os.LookupEnv("ENV_AUDIO_QUEUE_CAPACITY"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Audio.QueueCapacity = n
			applog.Infof("configuration: Overriding audio.queue_capacity from env: %d", n)
		}
	}

	// ENV_TRANSPORT_{...}
	// These are specific to the clock publisher.

	// ENV_TRANSPORT_KIND
	if val, ok := os.LookupEnv("ENV_TRANSPORT_KIND"); ok {
		cfg.Transport.Kind = val
		applog.Infof("configuration: Overriding transport.kind from env: %s", val)
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.SendInterval = dur
			applog.Infof("configuration: Overriding transport.send_interval from env: %s", dur)
		}
	}
}
