package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the playback core.
const (
	// Audio defaults
	DefaultBackend         = BackendPortAudio
	DefaultDeviceID        = MinDeviceID // Default to system default device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultChannels        = 2           // Stereo output
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultLowLatency      = false       // Standard latency mode
	DefaultQueueCapacity   = 1           // Single slot, producer and consumer run in lockstep
	DefaultPollInterval    = 10 * time.Millisecond

	// Recording defaults
	DefaultRecord     = false
	DefaultOutputFile = "" // Auto-generated filename

	// Video defaults
	DefaultWidth  = 640
	DefaultHeight = 360

	// Transport defaults
	DefaultTransport     = TransportNone
	DefaultWebSocketAddr = ":8080"
	DefaultUDPTarget     = "127.0.0.1:9090"
	DefaultSendInterval  = 33 * time.Millisecond // ~30Hz
	DefaultFFTSize       = 1024

	DefaultLogLevel = "info"

	// Hardware and processing limits
	MinDeviceID      = -1     // -1 represents system default device
	MinSampleRate    = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate    = 192000 // Maximum supported sample rate (Hz)
	MaxChannels      = 8
	MaxBufferFrames  = 8192 // Maximum frames per buffer (power of 2)
	MaxQueueCapacity = 4096
	MaxDimension     = 8192
)

// Output backends understood by the audio package.
const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
	BackendWAV       = "wav"
	BackendNull      = "null"
)

// Clock publisher transports.
const (
	TransportNone      = ""
	TransportWebSocket = "websocket"
	TransportUDP       = "udp"
	TransportLog       = "log"
)

// NewConfig creates a new Config instance with default values.
// This is used as the base configuration before applying a config file,
// environment overrides or command line flags.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			Channels:        DefaultChannels,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			QueueCapacity:   DefaultQueueCapacity,
			PollInterval:    DefaultPollInterval,
		},
		Recording: RecordingConfig{
			Enabled:    DefaultRecord,
			OutputFile: DefaultOutputFile,
		},
		Video: VideoConfig{
			Width:  DefaultWidth,
			Height: DefaultHeight,
		},
		Transport: TransportConfig{
			Kind:             DefaultTransport,
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTarget,
			SendInterval:     DefaultSendInterval,
			FFTSize:          DefaultFFTSize,
		},
	}
}
