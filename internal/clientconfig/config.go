// Пакет clientconfig — конфигурация клиента записи.
// Источники по возрастанию приоритета: значения по умолчанию,
// TOML-файл ~/.config/audio-recorder/config.toml, переменные AUDIO_RECORDER_*.
// Флаги командной строки применяются поверх в пакете cli.
package clientconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config — итоговая конфигурация клиента.
type Config struct {
	ServerURL      string
	Duration       time.Duration
	RequestTimeout time.Duration
	LogLevel       slog.Level
	FFmpeg         FFmpegConfig
}

// FFmpegConfig — параметры устройства захвата. Пустые значения
// заменяются умолчаниями для текущей ОС.
type FFmpegConfig struct {
	Binary     string
	Format     string
	Device     string
	SampleRate int
	Channels   int
}

// fileConfig — структура TOML-файла. Длительности задаются строками ("5s").
type fileConfig struct {
	ServerURL      string `toml:"server_url"`
	Duration       string `toml:"duration"`
	RequestTimeout string `toml:"request_timeout"`
	LogLevel       string `toml:"log_level"`
	FFmpeg         struct {
		Binary     string `toml:"binary"`
		Format     string `toml:"format"`
		Device     string `toml:"device"`
		SampleRate int    `toml:"sample_rate"`
		Channels   int    `toml:"channels"`
	} `toml:"ffmpeg"`
}

// Load читает конфигурацию. Пустой path — путь по умолчанию;
// отсутствие файла по умолчанию не ошибка, явно указанного — ошибка.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ServerURL:      "http://localhost:5000",
		Duration:       5 * time.Second,
		RequestTimeout: 30 * time.Second,
		LogLevel:       slog.LevelInfo,
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := applyFile(cfg, expandTilde(path), explicit); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет итоговые значения.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("адрес сервера не задан")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("адрес сервера должен начинаться с http:// или https://: %s", c.ServerURL)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("длительность записи должна быть положительной: %v", c.Duration)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("таймаут запроса не может быть отрицательным: %v", c.RequestTimeout)
	}
	return nil
}

// DefaultPath возвращает путь к файлу конфигурации с учётом XDG_CONFIG_HOME.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "audio-recorder", "config.toml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "audio-recorder", "config.toml")
	}
	return ""
}

func applyFile(cfg *Config, path string, explicit bool) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}

	if fc.ServerURL != "" {
		cfg.ServerURL = strings.TrimRight(fc.ServerURL, "/")
	}
	if fc.Duration != "" {
		d, err := time.ParseDuration(fc.Duration)
		if err != nil {
			return fmt.Errorf("некорректное значение duration %q: %w", fc.Duration, err)
		}
		cfg.Duration = d
	}
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("некорректное значение request_timeout %q: %w", fc.RequestTimeout, err)
		}
		cfg.RequestTimeout = d
	}
	if fc.LogLevel != "" {
		level, err := ParseLogLevel(fc.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	cfg.FFmpeg = FFmpegConfig{
		Binary:     fc.FFmpeg.Binary,
		Format:     fc.FFmpeg.Format,
		Device:     fc.FFmpeg.Device,
		SampleRate: fc.FFmpeg.SampleRate,
		Channels:   fc.FFmpeg.Channels,
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("AUDIO_RECORDER_SERVER_URL"); v != "" {
		cfg.ServerURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("AUDIO_RECORDER_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("некорректное значение AUDIO_RECORDER_DURATION=%q: %w", v, err)
		}
		cfg.Duration = d
	}
	if v := os.Getenv("AUDIO_RECORDER_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("некорректное значение AUDIO_RECORDER_REQUEST_TIMEOUT=%q: %w", v, err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("AUDIO_RECORDER_LOG_LEVEL"); v != "" {
		level, err := ParseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv("AUDIO_RECORDER_FFMPEG"); v != "" {
		cfg.FFmpeg.Binary = expandTilde(v)
	}
	if v := os.Getenv("AUDIO_RECORDER_INPUT_FORMAT"); v != "" {
		cfg.FFmpeg.Format = v
	}
	if v := os.Getenv("AUDIO_RECORDER_INPUT_DEVICE"); v != "" {
		cfg.FFmpeg.Device = v
	}
	if v := os.Getenv("AUDIO_RECORDER_SAMPLE_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("некорректное значение AUDIO_RECORDER_SAMPLE_RATE=%q", v)
		}
		cfg.FFmpeg.SampleRate = n
	}
	return nil
}

// ParseLogLevel преобразует строку в slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("неизвестный уровень логирования: %q", level)
	}
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
