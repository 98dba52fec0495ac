// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"time"

	"player/internal/audio"
	"player/internal/config"
	applog "player/internal/log"
	"player/internal/video"
	"player/pkg/build"

	"github.com/spf13/cobra"
)

var log = applog.Logger("CMD")

// options collects the flags that override the loaded configuration.
type options struct {
	configPath string
	logLevel   string
	logFile    string

	backend      string
	device       int
	wavPath      string
	sampleRate   int
	channels     int
	frames       int
	lowLatency   bool
	queue        int
	record       bool
	outputFile   string
	transport    string
	wsAddr       string
	udpTarget    string
	sendInterval time.Duration
	width        int
	height       int

	playSnapshot string
	snapshotPTS  int64
	snapshotOut  string
}

// NewRootCommand builds the command tree. The loaded configuration is
// stored in *cfg before any subcommand runs.
func NewRootCommand(cfg **config.Config) *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			*cfg = c
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	pf.StringVar(&opts.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFile, "log-file", "", "Also write logs to this file, rotated at 1MiB")

	// Play command
	playCmd := &cobra.Command{
		Use:   "play <file.wav>",
		Short: "Play a WAV file with a synchronized test pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *cfg, args[0], opts.playSnapshot)
		},
	}
	f := playCmd.Flags()

	// Audio Device Configuration
	f.StringVar(&opts.backend, "backend", config.DefaultBackend, "Output backend (portaudio, malgo, wav, null)")
	f.IntVarP(&opts.device, "device", "d", config.DefaultDeviceID,
		"Specify output device ID. Use 'devices' command to see available devices.")
	f.StringVar(&opts.wavPath, "wav-out", "", "Destination file for the wav backend")
	f.IntVarP(&opts.sampleRate, "sample-rate", "s", config.DefaultSampleRate, "Output sample rate, measured in Hertz (Hz)")
	f.IntVarP(&opts.channels, "channels", "c", config.DefaultChannels, "Output channels (1=mono, 2=stereo)")
	f.IntVarP(&opts.frames, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	f.BoolVarP(&opts.lowLatency, "low-latency", "l", config.DefaultLowLatency, "Use low latency device settings")
	f.IntVarP(&opts.queue, "queue", "q", config.DefaultQueueCapacity, "Packets buffered ahead of decode")

	// Recording Configuration
	f.BoolVarP(&opts.record, "record", "r", config.DefaultRecord, "Record the played audio")
	f.StringVarP(&opts.outputFile, "output", "o", config.DefaultOutputFile,
		"Recording file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Clock publisher Configuration
	f.StringVar(&opts.transport, "transport", config.DefaultTransport, "Clock publisher (websocket, udp, log)")
	f.StringVar(&opts.wsAddr, "ws-addr", config.DefaultWebSocketAddr, "WebSocket listen address")
	f.StringVar(&opts.udpTarget, "udp-target", config.DefaultUDPTarget, "UDP target address")
	f.DurationVar(&opts.sendInterval, "send-interval", config.DefaultSendInterval, "Interval between clock updates")

	// Video Configuration
	f.IntVar(&opts.width, "width", config.DefaultWidth, "Pattern width in pixels")
	f.IntVar(&opts.height, "height", config.DefaultHeight, "Pattern height in pixels")
	f.StringVar(&opts.playSnapshot, "snapshot", "", "Write the last rendered frame to this PNG file")
	rootCmd.AddCommand(playCmd)

	// Devices command
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio output devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()
			return audio.ListDevices(cmd.OutOrStdout())
		},
	}
	rootCmd.AddCommand(devicesCmd)

	// Snapshot command
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render one test pattern frame to a PNG file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			return writeSnapshot(opts.snapshotOut, c.Video.Width, c.Video.Height, opts.snapshotPTS)
		},
	}
	snapshotCmd.Flags().Int64Var(&opts.snapshotPTS, "pts", 0, "Presentation time of the frame in ms")
	snapshotCmd.Flags().StringVarP(&opts.snapshotOut, "output", "o", "snapshot.png", "Output PNG file")
	snapshotCmd.Flags().IntVar(&opts.width, "width", config.DefaultWidth, "Frame width in pixels")
	snapshotCmd.Flags().IntVar(&opts.height, "height", config.DefaultHeight, "Frame height in pixels")
	rootCmd.AddCommand(snapshotCmd)

	return rootCmd
}

// Execute runs the CLI with os.Args until ctx is cancelled or the command
// finishes.
func Execute(ctx context.Context) error {
	var cfg *config.Config
	rootCmd := NewRootCommand(&cfg)
	rootCmd.SetArgs(os.Args[1:])
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the config file and applies every flag the user set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}

	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if changed("log-file") {
		cfg.LogFile = opts.logFile
	}
	if changed("backend") {
		cfg.Audio.Backend = opts.backend
	}
	if changed("device") {
		cfg.Audio.OutputDevice = opts.device
	}
	if changed("wav-out") {
		cfg.Audio.WAVPath = opts.wavPath
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = opts.sampleRate
	}
	if changed("channels") {
		cfg.Audio.Channels = opts.channels
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = opts.frames
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = opts.lowLatency
	}
	if changed("queue") {
		cfg.Audio.QueueCapacity = opts.queue
	}
	if changed("record") {
		cfg.Recording.Enabled = opts.record
	}
	if changed("output") && cmd.Name() == "play" {
		cfg.Recording.OutputFile = opts.outputFile
	}
	if changed("transport") {
		cfg.Transport.Kind = opts.transport
	}
	if changed("ws-addr") {
		cfg.Transport.WebSocketAddr = opts.wsAddr
	}
	if changed("udp-target") {
		cfg.Transport.UDPTargetAddress = opts.udpTarget
	}
	if changed("send-interval") {
		cfg.Transport.SendInterval = opts.sendInterval
	}
	if changed("width") {
		cfg.Video.Width = opts.width
	}
	if changed("height") {
		cfg.Video.Height = opts.height
	}

	// Defaults
	if cfg.Recording.Enabled && cfg.Recording.OutputFile == "" {
		cfg.Recording.OutputFile = "recording-" +
			time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	applog.SetLevel(level)
	if err := applog.SetLogFile(cfg.LogFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

// renderPattern draws the test pattern for pts with the software GPU.
func renderPattern(width, height int, pts int64) (*video.SoftGPU, error) {
	store := video.NewFrameStore(nil)
	gpu := video.NewSoftGPU(width, height)
	r := video.NewRenderer(store, gpu)
	defer r.Release()
	if err := r.InitGL(); err != nil {
		return nil, err
	}
	r.Resize(width, height)
	store.Init(width, height)

	frame := video.NewPatternSource(width, height, 0).Frame(pts)
	store.CopyIn(frame)
	frame.Release()
	r.Draw()
	return gpu, nil
}

func writeSnapshot(path string, width, height int, pts int64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("snapshot size %dx%d is empty", width, height)
	}
	gpu, err := renderPattern(width, height, pts)
	if err != nil {
		return err
	}
	return writePNG(path, gpu)
}

func writePNG(path string, gpu *video.SoftGPU) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := png.Encode(f, gpu.Image()); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Infof("Snapshot written to %s", path)
	return nil
}
