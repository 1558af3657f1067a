package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"digitalrgb/logging"
)

// Display modes.
const (
	DisplayWindow   = "window"
	DisplayFFplay   = "ffplay"
	DisplayHeadless = "headless"
)

// Config holds all application configuration values.
type Config struct {
	// ConfigPath is the YAML file the values were loaded from, if any.
	ConfigPath string `yaml:"-"`

	USB     USBConfig     `yaml:"usb"`
	Capture CaptureConfig `yaml:"capture"`
	Display DisplayConfig `yaml:"display"`

	Test          bool   `yaml:"test"`           // synthetic colour bars instead of the device
	TUI           bool   `yaml:"tui"`            // full screen status instead of the status line
	StatsviewAddr string `yaml:"statsview_addr"` // runtime stats server, empty to disable
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
}

// USBConfig selects and prepares the capture device.
type USBConfig struct {
	VendorID       uint          `yaml:"vendor_id"`
	ProductID      uint          `yaml:"product_id"`
	Interface      int           `yaml:"interface"`
	AltSetting     int           `yaml:"alt_setting"`
	Endpoint       uint          `yaml:"endpoint"`
	Firmware       string        `yaml:"firmware"` // Intel HEX image; empty skips the upload
	ControlTimeout time.Duration `yaml:"control_timeout"`
}

// CaptureConfig sizes the transfer ring.
type CaptureConfig struct {
	Slots          int           `yaml:"slots"`
	SlotSize       int           `yaml:"slot_size"`
	ReapTimeout    time.Duration `yaml:"reap_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// DisplayConfig selects the display sink.
type DisplayConfig struct {
	Mode  string `yaml:"mode"`
	Title string `yaml:"title"`
	Scale int    `yaml:"scale"`
	Hz    int    `yaml:"hz"`
	// Frames stops a headless run after this many refreshes; 0 runs forever.
	Frames uint64 `yaml:"frames"`
}

// Default returns the built-in configuration for an FX2LP board.
func Default() *Config {
	return &Config{
		USB: USBConfig{
			VendorID:       0x04b4,
			ProductID:      0x8613,
			Interface:      0,
			AltSetting:     1,
			Endpoint:       0x86,
			ControlTimeout: time.Second,
		},
		Capture: CaptureConfig{
			Slots:          64,
			SlotSize:       64 * 1024,
			ReapTimeout:    100 * time.Millisecond,
			DrainTimeout:   2 * time.Second,
			ReportInterval: time.Second,
		},
		Display: DisplayConfig{
			Mode:  DisplayWindow,
			Title: "Digital RGB",
			Scale: 1,
			Hz:    60,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func bind(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "YAML configuration file")

	fs.UintVar(&cfg.USB.VendorID, "vid", cfg.USB.VendorID, "USB vendor ID")
	fs.UintVar(&cfg.USB.ProductID, "pid", cfg.USB.ProductID, "USB product ID")
	fs.IntVar(&cfg.USB.Interface, "interface", cfg.USB.Interface, "USB interface number")
	fs.IntVar(&cfg.USB.AltSetting, "alt", cfg.USB.AltSetting, "USB alternate setting")
	fs.UintVar(&cfg.USB.Endpoint, "endpoint", cfg.USB.Endpoint, "Bulk IN endpoint address")
	fs.StringVar(&cfg.USB.Firmware, "firmware", cfg.USB.Firmware, "Intel HEX firmware to load before streaming")
	fs.DurationVar(&cfg.USB.ControlTimeout, "control-timeout", cfg.USB.ControlTimeout, "Control transfer timeout")

	fs.IntVar(&cfg.Capture.Slots, "slots", cfg.Capture.Slots, "Number of concurrent bulk transfers")
	fs.IntVar(&cfg.Capture.SlotSize, "slot-size", cfg.Capture.SlotSize, "Bytes per bulk transfer (multiple of 512)")
	fs.DurationVar(&cfg.Capture.ReapTimeout, "reap-timeout", cfg.Capture.ReapTimeout, "Transfer completion wait per poll")
	fs.DurationVar(&cfg.Capture.DrainTimeout, "drain-timeout", cfg.Capture.DrainTimeout, "How long to wait for cancelled transfers on shutdown")

	fs.StringVar(&cfg.Display.Mode, "display", cfg.Display.Mode, "Display sink: window, ffplay or headless")
	fs.IntVar(&cfg.Display.Scale, "scale", cfg.Display.Scale, "Window scale factor")
	fs.IntVar(&cfg.Display.Hz, "hz", cfg.Display.Hz, "Display refresh rate")
	fs.Uint64Var(&cfg.Display.Frames, "frames", cfg.Display.Frames, "Stop a headless run after this many refreshes")

	fs.BoolVar(&cfg.Test, "test", cfg.Test, "Decode a synthetic colour bar signal instead of the device")
	fs.BoolVar(&cfg.TUI, "tui", cfg.TUI, "Show a full screen status view")
	fs.StringVar(&cfg.StatsviewAddr, "statsview", cfg.StatsviewAddr, "Serve runtime statistics on this address (e.g. localhost:18066)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
}

// New creates a Config from the command line, exiting on bad flags.
func New() *Config {
	cfg, err := Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Parse builds a Config from defaults, the file named by -config and the
// remaining flags, in increasing order of precedence.
func Parse(args []string, output io.Writer) (*Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("digitalrgb", flag.ContinueOnError)
	fs.SetOutput(output)
	bind(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ConfigPath != "" {
		path := cfg.ConfigPath
		fromFile, err := Load(path)
		if err != nil {
			return nil, err
		}

		// flags win over the file
		fs = flag.NewFlagSet("digitalrgb", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		bind(fs, fromFile)
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		fromFile.ConfigPath = path
		cfg = fromFile
	}

	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load reads a YAML configuration file on top of the defaults. Keys that
// are absent keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks a configuration for values the pipeline cannot run with.
func Validate(cfg *Config) error {
	if cfg.USB.VendorID > 0xffff || cfg.USB.ProductID > 0xffff {
		return fmt.Errorf("usb ids %#x:%#x out of range", cfg.USB.VendorID, cfg.USB.ProductID)
	}
	if cfg.USB.Endpoint&0x80 == 0 || cfg.USB.Endpoint > 0x8f {
		return fmt.Errorf("endpoint %#02x is not an IN endpoint", cfg.USB.Endpoint)
	}
	if cfg.USB.Interface < 0 || cfg.USB.AltSetting < 0 {
		return fmt.Errorf("negative interface or alt setting")
	}
	if cfg.USB.ControlTimeout <= 0 {
		return fmt.Errorf("control timeout must be positive")
	}

	if cfg.Capture.Slots < 2 {
		return fmt.Errorf("need at least 2 transfer slots, got %d", cfg.Capture.Slots)
	}
	if cfg.Capture.SlotSize <= 0 || cfg.Capture.SlotSize%512 != 0 {
		return fmt.Errorf("slot size %d is not a positive multiple of 512", cfg.Capture.SlotSize)
	}
	if cfg.Capture.ReapTimeout <= 0 || cfg.Capture.DrainTimeout <= 0 || cfg.Capture.ReportInterval <= 0 {
		return fmt.Errorf("capture timeouts must be positive")
	}

	switch cfg.Display.Mode {
	case DisplayWindow, DisplayFFplay, DisplayHeadless:
	default:
		return fmt.Errorf("unknown display mode %q", cfg.Display.Mode)
	}
	if cfg.Display.Scale < 1 {
		return fmt.Errorf("scale must be at least 1")
	}
	if cfg.Display.Hz < 1 {
		return fmt.Errorf("refresh rate must be at least 1 Hz")
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(cfg.LogFormat); err != nil {
		return err
	}
	return nil
}
