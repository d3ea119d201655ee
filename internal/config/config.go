package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Audio  AudioConfig  `mapstructure:"audio"`
	Bundle BundleConfig `mapstructure:"bundle"`
	Bridge BridgeConfig `mapstructure:"bridge"`
	UI     UIConfig     `mapstructure:"ui"`
}

type LogConfig struct {
	Build string `mapstructure:"build"`
	Level string `mapstructure:"level"`
}

type AudioConfig struct {
	Backend         string   `mapstructure:"backend"`
	SampleRate      int      `mapstructure:"sample_rate"`
	BufferMS        int      `mapstructure:"buffer_ms"`
	ResampleQuality int      `mapstructure:"resample_quality"`
	Formats         []string `mapstructure:"formats"`
}

// BundleConfig points at resources shipped with the caller. They cannot be
// played, only recognised and warned about.
type BundleConfig struct {
	Dir string `mapstructure:"dir"`
}

type BridgeConfig struct {
	Name    string   `mapstructure:"name"`
	Addr    string   `mapstructure:"addr"`
	Origins []string `mapstructure:"origins"`
}

type UIConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	KeyBindings KeyMap `mapstructure:"keys"`
}

// KeyMap defines keyboard shortcuts
type KeyMap struct {
	PlayPause   string `mapstructure:"play_pause"`
	Stop        string `mapstructure:"stop"`
	Release     string `mapstructure:"release"`
	Loop        string `mapstructure:"loop"`
	Next        string `mapstructure:"next"`
	Previous    string `mapstructure:"previous"`
	VolumeUp    string `mapstructure:"volume_up"`
	VolumeDown  string `mapstructure:"volume_down"`
	SeekForward string `mapstructure:"seek_forward"`
	SeekBack    string `mapstructure:"seek_back"`
	Quit        string `mapstructure:"quit"`
}

const (
	configName = "soundbridge"
	configType = "yaml"
	envPrefix  = "SOUNDBRIDGE"

	// EnvConfigPath names an explicit config file
	EnvConfigPath = "SOUNDBRIDGE_CONFIG"
)

var defaults = map[string]interface{}{
	"log.build":              "dev",
	"log.level":              "debug",
	"audio.backend":          "beep",
	"audio.sample_rate":      44100,
	"audio.buffer_ms":        100,
	"audio.resample_quality": 4,
	"audio.formats":          []string{".mp3", ".wav", ".flac", ".ogg"},
	"bundle.dir":             "",
	"bridge.name":            "RNSound",
	"bridge.addr":            "127.0.0.1:8765",
	"bridge.origins":         []string{"*"},
	"ui.enabled":             false,
	"ui.keys.play_pause":     " ",
	"ui.keys.stop":           "s",
	"ui.keys.release":        "x",
	"ui.keys.loop":           "l",
	"ui.keys.next":           "down",
	"ui.keys.previous":       "up",
	"ui.keys.volume_up":      "+",
	"ui.keys.volume_down":    "-",
	"ui.keys.seek_forward":   "right",
	"ui.keys.seek_back":      "left",
	"ui.keys.quit":           "q",
}

// Loader reads the configuration file and environment and can watch the file
type Loader struct {
	v      *viper.Viper
	logger *zap.SugaredLogger
}

// NewLoader prepares a loader. path may be empty to search the default
// locations; $SOUNDBRIDGE_CONFIG takes precedence over the search.
func NewLoader(path string, logger *zap.SugaredLogger) *Loader {
	v := viper.New()
	v.SetConfigType(configType)

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return &Loader{v: v, logger: logger.Named("config")}
}

// SetLogger replaces the logger, once the configured one exists
func (l *Loader) SetLogger(logger *zap.SugaredLogger) {
	l.logger = logger.Named("config")
}

// Load reads .env, the config file if any, and the environment. A missing
// file falls back to defaults; an explicitly named missing file is an error.
func (l *Loader) Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		l.logger.Debug("No config file found, using defaults")
	} else {
		l.logger.Debugw("Loaded config file", "path", l.v.ConfigFileUsed())
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with the new configuration whenever the config file
// changes. Invalid edits are logged and skipped.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		l.logger.Debug("No config file in use, not watching")
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			l.logger.Warnw("Ignoring invalid config change", "path", e.Name, "error", err)
			return
		}
		l.logger.Infow("Config file changed", "path", e.Name)
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Validate checks values that would otherwise fail deep inside the engine
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.BufferMS <= 0 {
		return fmt.Errorf("audio.buffer_ms must be positive, got %d", c.Audio.BufferMS)
	}
	if c.Bridge.Name == "" {
		return errors.New("bridge.name must not be empty")
	}
	return nil
}
