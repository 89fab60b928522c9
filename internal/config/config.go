package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RMahshie/powersweep/internal/instrument"
	"github.com/RMahshie/powersweep/internal/scope"
	"github.com/RMahshie/powersweep/internal/sweep"
	"github.com/RMahshie/powersweep/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Device   DeviceConfig
	Sweep    SweepConfig
	Scope    ScopeConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Server   ServerConfig
	Log      LogConfig
}

// DeviceConfig holds the radio CLI settings
type DeviceConfig struct {
	CLI  string
	Port string
}

// SweepConfig holds the power range and step timing
type SweepConfig struct {
	MinPower      int
	MaxPower      int
	Step          int
	Delay         time.Duration
	Settle        time.Duration
	MessageSettle time.Duration
	Destination   string
	Message       string
}

// ScopeConfig holds oscilloscope settings
type ScopeConfig struct {
	Resource      string
	Channel       int
	OutputDir     string
	VoltsPerDiv   float64
	TriggerLevel  float64
	Timebase      float64
	ResetSettle   time.Duration
	TriggerSettle time.Duration
	ReadTimeout   time.Duration
	BaudRate      int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// AWSConfig holds AWS/S3 configuration
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	S3Endpoint      string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// Bounds accepted for --min-power and --max-power. Radios in this class stay
// well inside them.
const (
	MinPower = -128
	MaxPower = 127
)

// Mode selects which settings Validate requires
type Mode int

const (
	ModeSweep Mode = iota
	ModeScope
	ModeServe
)

// flag names whose viper key is not the flag name with dashes as underscores
var flagKeys = map[string]string{
	"port": "device_port",
	"addr": "port",
}

// AddSweepFlags registers the flags shared by both sweep variants
func AddSweepFlags(fs *pflag.FlagSet) {
	timing := sweep.DefaultTiming()
	fs.String("port", "", "Serial port of the radio, e.g. /dev/ttyUSB0")
	fs.String("device-cli", "meshtastic", "Device CLI executable")
	fs.Int("min-power", 0, "Minimum TX power in dBm")
	fs.Int("max-power", 30, "Maximum TX power in dBm")
	fs.Int("step", 1, "TX power increment in dBm")
	secondsFlag(fs, "delay", 5*time.Second, "Wait between power levels, in seconds or with a unit")
	secondsFlag(fs, "settle", timing.Settle, "Wait after setting power before reading it back")
	fs.String("dest", "", "Destination node ID (broadcast when empty)")
	fs.String("message", "", "Test message text (defaults to one naming the power level)")
}

// AddScopeFlags registers the oscilloscope flags
func AddScopeFlags(fs *pflag.FlagSet) {
	settings := scope.DefaultSettings()
	fs.String("visa-resource", "", "Instrument resource, e.g. TCPIP0::192.168.1.50::INSTR or USB0::0x1AB1::0x04CE::DS1ZA123456789::INSTR")
	fs.Int("channel", 1, "Oscilloscope channel")
	fs.String("output-dir", "waveforms", "Directory for waveform and summary CSV files")
	secondsFlag(fs, "message-settle", sweep.DefaultTiming().MessageSettle, "Wait after sending before capturing")
	secondsFlag(fs, "trigger-settle", settings.TriggerSettle, "Wait after forcing a trigger")
	secondsFlag(fs, "reset-settle", settings.ResetSettle, "Wait after resetting the instrument")
	secondsFlag(fs, "read-timeout", instrument.DefaultOptions().Timeout, "Instrument read timeout")
	fs.Int("baud", instrument.DefaultOptions().BaudRate, "Baud rate for ASRL resources")
	fs.Float64("volts-per-div", settings.VoltsPerDiv, "Vertical scale in V/div")
	fs.Float64("trigger-level", settings.TriggerLevel, "Edge trigger level in V")
	fs.Float64("timebase", settings.Timebase, "Horizontal scale in s/div")
}

// AddServeFlags registers the API server flags
func AddServeFlags(fs *pflag.FlagSet) {
	fs.String("addr", "8080", "Port for the run history API")
}

// AddLogFlags registers the logging flags
func AddLogFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "console", "Log format (console or json)")
}

func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

// Load loads configuration from flags, environment variables and .env files.
// Flags override the environment, which overrides the .env file and defaults.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "dev")
	v.SetDefault("device_cli", "meshtastic")
	v.SetDefault("min_power", 0)
	v.SetDefault("max_power", 30)
	v.SetDefault("step", 1)
	timing := sweep.DefaultTiming()
	settings := scope.DefaultSettings()
	instrumentOpts := instrument.DefaultOptions()
	v.SetDefault("delay", (5 * time.Second).String())
	v.SetDefault("settle", timing.Settle.String())
	v.SetDefault("message_settle", timing.MessageSettle.String())
	v.SetDefault("channel", 1)
	v.SetDefault("output_dir", "waveforms")
	v.SetDefault("trigger_settle", settings.TriggerSettle.String())
	v.SetDefault("reset_settle", settings.ResetSettle.String())
	v.SetDefault("read_timeout", instrumentOpts.Timeout.String())
	v.SetDefault("baud", instrumentOpts.BaudRate)
	v.SetDefault("volts_per_div", settings.VoltsPerDiv)
	v.SetDefault("trigger_level", settings.TriggerLevel)
	v.SetDefault("timebase", settings.Timebase)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("port", "8080")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("allowed_origins", "http://localhost:5173,http://localhost:3000")

	// Environment variables override .env file values
	v.AutomaticEnv()
	for _, key := range []string{
		"environment", "log_level", "database_url", "s3_bucket", "s3_endpoint",
		"aws_region", "aws_access_key_id", "aws_secret_access_key", "port", "allowed_origins",
	} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// Read .env file for the current environment (it may not exist)
	v.SetConfigName(".env." + v.GetString("environment"))
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
	}

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(flagKey(f.Name), f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var config Config
	for key, dst := range map[string]*time.Duration{
		"delay":          &config.Sweep.Delay,
		"settle":         &config.Sweep.Settle,
		"message_settle": &config.Sweep.MessageSettle,
		"reset_settle":   &config.Scope.ResetSettle,
		"trigger_settle": &config.Scope.TriggerSettle,
		"read_timeout":   &config.Scope.ReadTimeout,
	} {
		d, err := ParseSeconds(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	config.Device.CLI = v.GetString("device_cli")
	config.Device.Port = v.GetString("device_port")

	config.Sweep.MinPower = v.GetInt("min_power")
	config.Sweep.MaxPower = v.GetInt("max_power")
	config.Sweep.Step = v.GetInt("step")
	config.Sweep.Destination = v.GetString("dest")
	config.Sweep.Message = v.GetString("message")

	config.Scope.Resource = v.GetString("visa_resource")
	config.Scope.Channel = v.GetInt("channel")
	config.Scope.OutputDir = v.GetString("output_dir")
	config.Scope.VoltsPerDiv = v.GetFloat64("volts_per_div")
	config.Scope.TriggerLevel = v.GetFloat64("trigger_level")
	config.Scope.Timebase = v.GetFloat64("timebase")
	config.Scope.BaudRate = v.GetInt("baud")

	config.Database.URL = v.GetString("database_url")

	config.AWS.Region = v.GetString("aws_region")
	config.AWS.AccessKeyID = v.GetString("aws_access_key_id")
	config.AWS.SecretAccessKey = v.GetString("aws_secret_access_key")
	config.AWS.S3Bucket = v.GetString("s3_bucket")
	config.AWS.S3Endpoint = v.GetString("s3_endpoint")

	config.Server.Port = v.GetString("port")
	config.Server.Env = v.GetString("environment")
	config.Server.AllowedOrigins = splitList(v.GetString("allowed_origins"))

	config.Log.Level = v.GetString("log_level")
	config.Log.Format = v.GetString("log_format")

	log.Debug().
		Str("env", config.Server.Env).
		Str("config_file", v.ConfigFileUsed()).
		Strs("allowed_origins", config.Server.AllowedOrigins).
		Msg("Configuration loaded")

	return &config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the settings the given subcommand depends on
func (c *Config) Validate(mode Mode) error {
	switch mode {
	case ModeServe:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required to serve run history")
		}
		return nil
	case ModeScope:
		if c.Scope.Resource == "" {
			return errors.New("--visa-resource is required")
		}
		if c.Scope.Channel < 1 {
			return fmt.Errorf("channel must be at least 1, got %d", c.Scope.Channel)
		}
		if c.Scope.OutputDir == "" {
			return errors.New("--output-dir must not be empty")
		}
		if c.Scope.ReadTimeout <= 0 {
			return fmt.Errorf("read timeout must be positive, got %s", c.Scope.ReadTimeout)
		}
	}

	if c.Device.Port == "" {
		return errors.New("--port is required")
	}
	for name, p := range map[string]int{"min-power": c.Sweep.MinPower, "max-power": c.Sweep.MaxPower} {
		if p < MinPower || p > MaxPower {
			return fmt.Errorf("%s must be between %d and %d dBm, got %d", name, MinPower, MaxPower, p)
		}
	}
	if c.Sweep.Step <= 0 {
		return fmt.Errorf("step must be positive, got %d", c.Sweep.Step)
	}
	if c.Sweep.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", c.Sweep.Delay)
	}
	return nil
}

// SweepParams converts the configuration into the parameters of one run
func (c *Config) SweepParams(variant models.Variant) models.SweepParams {
	p := models.SweepParams{
		Variant:     variant,
		Port:        c.Device.Port,
		MinPower:    c.Sweep.MinPower,
		MaxPower:    c.Sweep.MaxPower,
		Step:        c.Sweep.Step,
		Delay:       c.Sweep.Delay,
		Destination: c.Sweep.Destination,
		Message:     c.Sweep.Message,
	}
	if variant == models.VariantScope {
		p.VisaResource = c.Scope.Resource
		p.Channel = c.Scope.Channel
		p.OutputDir = c.Scope.OutputDir
	}
	return p
}
