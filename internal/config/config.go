// ABOUTME: Viper-backed configuration for the player and bridge host
// ABOUTME: Defaults, optional YAML file and environment overrides
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override except AUDIODRIVER
const EnvPrefix = "PEPPERAUDIO"

// Config is the resolved configuration
type Config struct {
	LogLevel string
	LogFile  string

	// Driver names the output driver; empty lets the registry choose
	Driver string

	// Zero Frequency or Channels means "use the source's value"
	Frequency int
	Channels  int
	Samples   int
	Format    audio.SampleFormat

	DiskPath string

	BridgeAddr  string
	BridgeCodec string
	BridgePort  int
	BridgeMDNS  bool

	// BlockingPush tells the pepper driver the bridge host supports blocking push
	BlockingPush bool
	BufferWait   time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
	v.SetDefault("driver", "")
	v.SetDefault("frequency", 0)
	v.SetDefault("channels", 0)
	v.SetDefault("samples", 1024)
	v.SetDefault("format", "S16LSB")
	v.SetDefault("disk.path", "pepperaudio.wav")
	v.SetDefault("bridge.addr", "")
	v.SetDefault("bridge.codec", "pcm")
	v.SetDefault("bridge.port", 8937)
	v.SetDefault("bridge.mdns", true)
	v.SetDefault("bridge.blockingpush", true)
	v.SetDefault("bufferwait", "2s")
}

// New returns a viper instance with defaults and environment bindings set
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The driver override keeps its conventional unprefixed name
	v.BindEnv("driver", driver.EnvDriver)

	return v
}

// Load reads the config file at path, if any, and resolves the result. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			slog.Info("no config file found", "configFilePath", path)
		}
	}

	return FromViper(v)
}

// FromViper resolves and validates a Config from v
func FromViper(v *viper.Viper) (*Config, error) {
	format, err := audio.ParseSampleFormat(v.GetString("format"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:     v.GetString("loglevel"),
		LogFile:      v.GetString("logfile"),
		Driver:       v.GetString("driver"),
		Frequency:    v.GetInt("frequency"),
		Channels:     v.GetInt("channels"),
		Samples:      v.GetInt("samples"),
		Format:       format,
		DiskPath:     v.GetString("disk.path"),
		BridgeAddr:   v.GetString("bridge.addr"),
		BridgeCodec:  v.GetString("bridge.codec"),
		BridgePort:   v.GetInt("bridge.port"),
		BridgeMDNS:   v.GetBool("bridge.mdns"),
		BlockingPush: v.GetBool("bridge.blockingpush"),
		BufferWait:   v.GetDuration("bufferwait"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that the drivers cannot check themselves
func (c *Config) Validate() error {
	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("%w: %q", ErrLogLevel, c.LogLevel)
	}
	if c.Frequency < 0 {
		return audio.ErrInvalidFrequency
	}
	if c.Channels != 0 && c.Channels != 1 && c.Channels != 2 {
		return audio.ErrInvalidChannels
	}
	if c.Samples <= 0 {
		return audio.ErrInvalidSamples
	}
	switch c.BridgeCodec {
	case "pcm", "opus":
	default:
		return fmt.Errorf("unknown bridge codec %q", c.BridgeCodec)
	}
	if c.BridgePort <= 0 || c.BridgePort > 65535 {
		return fmt.Errorf("bridge port out of range: %d", c.BridgePort)
	}
	return nil
}

// Spec builds the output spec, taking unset fields from the source
func (c *Config) Spec(sourceRate, sourceChannels int) audio.Spec {
	spec := audio.Spec{
		Freq:     c.Frequency,
		Format:   c.Format,
		Channels: c.Channels,
		Samples:  c.Samples,
	}
	if spec.Freq == 0 {
		spec.Freq = sourceRate
	}
	if spec.Channels == 0 {
		spec.Channels = sourceChannels
	}
	return spec
}
