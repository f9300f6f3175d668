package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/calembot/calembot/internal/adapters/pundict"
	"github.com/calembot/calembot/internal/adapters/repo/sessionfile"
	"github.com/calembot/calembot/internal/adapters/repo/settings"
	"github.com/calembot/calembot/internal/ports"
)

const (
	configName    = "config"
	configType    = "toml"
	configDirName = ".calembot"
	envPrefix     = "CALEMBOT"

	stateDirMode = 0o700
)

type app struct {
	cfg      *viper.Viper
	logger   *slog.Logger
	stateDir string

	sessions ports.SessionRepository
	prefs    ports.PreferenceRepository
	punsPath string
}

// wireApp reads the config file and environment, builds the logger, and
// constructs the file-backed repositories. The state directory and an empty
// settings document are created on first use.
func wireApp() (*app, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	defaultStateDir := filepath.Join(homeDir, configDirName)

	cfg := viper.New()
	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(defaultStateDir)
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetDefault("state.dir", defaultStateDir)
	cfg.SetDefault("dictionary.path", filepath.Join(defaultStateDir, "puns.toml"))
	cfg.SetDefault("channel.host", "mqtt-mini.facebook.com")
	cfg.SetDefault("channel.port", 443)
	cfg.SetDefault("channel.secure", true)
	cfg.SetDefault("channel.keepalive", "900s")
	cfg.SetDefault("logging.level", "info")
	cfg.SetDefault("logging.format", "text")

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	logger, err := newLoggerFromConfig(cfg.GetString("logging.level"), cfg.GetString("logging.format"))
	if err != nil {
		return nil, err
	}

	stateDir := cfg.GetString("state.dir")
	if stateDir == "" {
		return nil, errors.New("state dir is empty")
	}
	if err := os.MkdirAll(filepath.Join(stateDir, "sessions"), stateDirMode); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	sessions, err := sessionfile.NewRepository(filepath.Join(stateDir, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("wire session repository: %w", err)
	}

	prefs, err := settings.NewRepository(filepath.Join(stateDir, "settings.json"))
	if err != nil {
		return nil, fmt.Errorf("wire settings repository: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		stateDir: stateDir,
		sessions: sessions,
		prefs:    prefs,
		punsPath: cfg.GetString("dictionary.path"),
	}, nil
}

func (a *app) channelConfig() ports.ChannelConfig {
	return ports.ChannelConfig{
		Host:      a.cfg.GetString("channel.host"),
		Port:      a.cfg.GetInt("channel.port"),
		Secure:    a.cfg.GetBool("channel.secure"),
		Keepalive: a.cfg.GetDuration("channel.keepalive"),
	}
}

func (a *app) dictionary() (*pundict.Dictionary, error) {
	dict, err := pundict.Load(a.punsPath)
	if err != nil {
		return nil, fmt.Errorf("load pun dictionary: %w", err)
	}
	return dict, nil
}

func newLoggerFromConfig(level, format string) (*slog.Logger, error) {
	parsedLevel, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: parsedLevel}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown logging.format: %s", format)
	}

	return slog.New(handler), nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", level)
	}
}
