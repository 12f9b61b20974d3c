// ABOUTME: Configuration loading with defaults, YAML files and CODECBRIDGE_ env vars
// ABOUTME: Command flags are bound on top so the precedence is flag, env, file, default
package config

import (
	"os"
	"strings"
	"time"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CODECBRIDGE_LOG_LEVEL
const EnvPrefix = "CODECBRIDGE"

// Log configures logrus
type Log struct {
	Level   string   `mapstructure:"level"`   // debug/info/warn/error
	Format  string   `mapstructure:"format"`  // text/json
	Outputs []string `mapstructure:"outputs"` // stderr/stdout/file path
}

// Codec sizes the buffer slots of every codec created by the CLI
type Codec struct {
	InputBuffers     int `mapstructure:"input_buffers"`
	OutputBuffers    int `mapstructure:"output_buffers"`
	InputBufferSize  int `mapstructure:"input_buffer_size"`
	OutputBufferSize int `mapstructure:"output_buffer_size"`
}

// Options converts the section into codec options
func (c Codec) Options() []codec.Option {
	return []codec.Option{
		codec.WithInputBuffers(c.InputBuffers, c.InputBufferSize),
		codec.WithOutputBuffers(c.OutputBuffers, c.OutputBufferSize),
	}
}

// Playback selects the audio output used by decode --play
type Playback struct {
	Backend string `mapstructure:"backend"` // malgo/oto
}

// Stress configures the concurrent session runner
type Stress struct {
	Sessions int           `mapstructure:"sessions"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Serve configures the websocket stream server
type Serve struct {
	Port int    `mapstructure:"port"`
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
	MDNS bool   `mapstructure:"mdns"`
}

// Config is the full configuration tree
type Config struct {
	Log      Log      `mapstructure:"log"`
	Codec    Codec    `mapstructure:"codec"`
	Playback Playback `mapstructure:"playback"`
	Stress   Stress   `mapstructure:"stress"`
	Serve    Serve    `mapstructure:"serve"`
}

func setDefaults(v *viper.Viper) {
	defaults := codec.DefaultOptions()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.outputs", []string{"stderr"})

	v.SetDefault("codec.input_buffers", defaults.InputBuffers)
	v.SetDefault("codec.output_buffers", defaults.OutputBuffers)
	v.SetDefault("codec.input_buffer_size", defaults.InputBufferSize)
	v.SetDefault("codec.output_buffer_size", defaults.OutputBufferSize)

	v.SetDefault("playback.backend", "malgo")

	v.SetDefault("stress.sessions", 16)
	v.SetDefault("stress.timeout", 2*time.Minute)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "codecbridge"
	}
	v.SetDefault("serve.port", 8927)
	v.SetDefault("serve.name", hostname+"-codecbridge")
	v.SetDefault("serve.path", "/stream")
	v.SetDefault("serve.mdns", true)
}

// New returns a viper instance with defaults, env binding and the config
// file at path, or the first config.yaml found in the search paths
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		for _, p := range []string{".", "$HOME/.codecbridge", "/etc/codecbridge"} {
			v.AddConfigPath(os.ExpandEnv(p))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
		// No config file; defaults and env apply
	}
	return v, nil
}

// BindFlags maps command flags onto config keys; a flag overrides only
// when set on the command line
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := flags.Lookup(flag)
		if f == nil {
			return errors.Errorf("unknown flag %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind flag %q", flag)
		}
	}
	return nil
}

// Unmarshal decodes v into a Config
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// Load is New followed by Unmarshal
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(v)
}
