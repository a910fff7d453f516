// Пакет capture — захват звука с микрофона через подпроцесс ffmpeg.
// ffmpeg пишет WAV в stdout, поток читается сеансом записи порциями.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/goaudiostore/internal/domain/recorder"
)

// Options — параметры запуска ffmpeg.
type Options struct {
	// Binary — путь или имя исполняемого файла ffmpeg
	Binary string
	// Format — входной формат устройства (alsa, pulse, avfoundation, dshow)
	Format string
	// Device — имя устройства в терминах Format
	Device string
	// SampleRate — частота дискретизации, Гц
	SampleRate int
	// Channels — количество каналов
	Channels int
	// StopTimeout — сколько ждать штатного завершения ffmpeg после Stop
	StopTimeout time.Duration
}

// DefaultOptions возвращает параметры для текущей ОС.
func DefaultOptions() Options {
	opts := Options{
		Binary:      "ffmpeg",
		SampleRate:  44100,
		Channels:    1,
		StopTimeout: 3 * time.Second,
	}
	switch runtime.GOOS {
	case "darwin":
		opts.Format, opts.Device = "avfoundation", ":default"
	case "windows":
		opts.Format, opts.Device = "dshow", "audio=default"
	default:
		opts.Format, opts.Device = "pulse", "default"
	}
	return opts
}

// FFmpegCapturer реализует recorder.Capturer поверх ffmpeg.
type FFmpegCapturer struct {
	opts   Options
	logger *slog.Logger
}

// NewFFmpegCapturer создаёт захват через ffmpeg. Пустые поля opts
// заполняются значениями DefaultOptions.
func NewFFmpegCapturer(opts Options, logger *slog.Logger) *FFmpegCapturer {
	def := DefaultOptions()
	if opts.Binary == "" {
		opts.Binary = def.Binary
	}
	if opts.Format == "" {
		opts.Format = def.Format
	}
	if opts.Device == "" {
		opts.Device = def.Device
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = def.Channels
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = def.StopTimeout
	}
	return &FFmpegCapturer{
		opts:   opts,
		logger: logger.With(slog.String("component", "capture")),
	}
}

// Extension — ffmpeg всегда пишет WAV.
func (c *FFmpegCapturer) Extension() string {
	return ".wav"
}

// args формирует аргументы командной строки ffmpeg.
func (c *FFmpegCapturer) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", c.opts.Format,
		"-i", c.opts.Device,
		"-ac", strconv.Itoa(c.opts.Channels),
		"-ar", strconv.Itoa(c.opts.SampleRate),
		"-f", "wav",
		"pipe:1",
	}
}

// Open запускает ffmpeg и дожидается первых байт потока.
// Если ffmpeg завершился, не выдав данных, ошибка классифицируется
// по stderr: отказ в доступе → ErrPermissionDenied, иначе ErrDeviceUnavailable.
func (c *FFmpegCapturer) Open(ctx context.Context) (recorder.Stream, error) {
	binary, err := exec.LookPath(c.opts.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg не найден (%s)", recorder.ErrDeviceUnavailable, c.opts.Binary)
	}

	cmd := exec.CommandContext(ctx, binary, c.args()...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ошибка создания stdin ffmpeg: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ошибка создания stdout ffmpeg: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: запуск ffmpeg: %v", recorder.ErrDeviceUnavailable, err)
	}

	reader := bufio.NewReaderSize(stdout, 32*1024)
	if _, err := reader.Peek(1); err != nil {
		_ = stdin.Close()
		waitErr := cmd.Wait()
		return nil, classify(stderr.String(), waitErr)
	}

	c.logger.Debug("ffmpeg запущен",
		slog.String("format", c.opts.Format),
		slog.String("device", c.opts.Device),
		slog.Int("pid", cmd.Process.Pid),
	)

	return &ffmpegStream{
		cmd:         cmd,
		reader:      reader,
		stdin:       stdin,
		stderr:      stderr,
		stopTimeout: c.opts.StopTimeout,
		logger:      c.logger,
		exited:      make(chan struct{}),
	}, nil
}

// classify переводит вывод ffmpeg в ошибку сеанса записи.
func classify(stderr string, waitErr error) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" && waitErr != nil {
		msg = waitErr.Error()
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "not permitted") ||
		strings.Contains(lower, "not authorized") {
		return fmt.Errorf("%w: %s", recorder.ErrPermissionDenied, msg)
	}
	return fmt.Errorf("%w: %s", recorder.ErrDeviceUnavailable, msg)
}

// ffmpegStream — активный процесс ffmpeg.
type ffmpegStream struct {
	cmd         *exec.Cmd
	reader      *bufio.Reader
	stdin       io.WriteCloser
	stderr      *syncBuffer
	stopTimeout time.Duration
	logger      *slog.Logger

	stopOnce  sync.Once
	closeOnce sync.Once
	waitErr   error
	exited    chan struct{}
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// Stop просит ffmpeg завершиться командой "q" в stdin. WAV-заголовок
// дописывается ffmpeg при штатном выходе. Если процесс не завершился
// за stopTimeout, он принудительно останавливается.
func (s *ffmpegStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if _, werr := io.WriteString(s.stdin, "q"); werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
			err = fmt.Errorf("ошибка отправки команды остановки: %w", werr)
		}
		_ = s.stdin.Close()

		// Процесс, не закрывший stdout, принудительно завершается по таймеру.
		proc := s.cmd.Process
		timeout := s.stopTimeout
		exited := s.exited
		go func() {
			select {
			case <-exited:
			case <-time.After(timeout):
				s.logger.Warn("ffmpeg не завершился вовремя, процесс прерван")
				_ = proc.Kill()
			}
		}()
	})
	return err
}

// Close дожидается завершения процесса. Повторный вызов возвращает тот же результат.
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		close(s.exited)
		if s.waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(s.waitErr, &exitErr) {
				s.logger.Debug("ffmpeg завершился с ошибкой",
					slog.Int("exit_code", exitErr.ExitCode()),
					slog.String("stderr", s.stderr.String()),
				)
			}
		}
	})
	if s.waitErr != nil {
		// ffmpeg, остановленный по "q" или сигналу, не считается ошибкой,
		// если данные уже прочитаны.
		var exitErr *exec.ExitError
		if errors.As(s.waitErr, &exitErr) {
			return nil
		}
		return fmt.Errorf("ошибка ожидания ffmpeg: %w", s.waitErr)
	}
	return nil
}

// syncBuffer — bytes.Buffer с мьютексом для stderr подпроцесса.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
