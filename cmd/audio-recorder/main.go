// Клиент записи: захват звука с микрофона через ffmpeg и управление
// записями на сервере audio-server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bigkaa/goaudiostore/internal/capture"
	"github.com/bigkaa/goaudiostore/internal/cli"
	"github.com/bigkaa/goaudiostore/internal/client"
	"github.com/bigkaa/goaudiostore/internal/clientconfig"
	"github.com/bigkaa/goaudiostore/internal/domain/recorder"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := clientconfig.Load(os.Getenv("AUDIO_RECORDER_CONFIG"))
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	deps := &cli.Dependencies{
		Config: cfg,
		Logger: logger,
		NewAPI: func(serverURL string, timeout time.Duration) cli.API {
			return client.New(serverURL, timeout)
		},
		NewCapturer: func(fc clientconfig.FFmpegConfig) recorder.Capturer {
			return capture.NewFFmpegCapturer(capture.Options{
				Binary:     fc.Binary,
				Format:     fc.Format,
				Device:     fc.Device,
				SampleRate: fc.SampleRate,
				Channels:   fc.Channels,
			}, logger)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.NewRootCmd(deps).ExecuteContext(ctx)
}
