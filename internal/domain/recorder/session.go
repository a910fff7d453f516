// session.go — сеанс записи: захват с устройства, автоостановка,
// сборка клипа и сохранение на сервер.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// Ошибки захвата звука.
var (
	// ErrPermissionDenied — нет разрешения на доступ к микрофону.
	ErrPermissionDenied = errors.New("доступ к микрофону запрещён")
	// ErrDeviceUnavailable — устройство записи недоступно.
	ErrDeviceUnavailable = errors.New("устройство записи недоступно")
	// ErrEmptyClip — клип не содержит данных.
	ErrEmptyClip = errors.New("клип пуст")
)

// DefaultDuration — длительность записи по умолчанию.
const DefaultDuration = 5 * time.Second

// chunkSize — размер буфера одной порции захвата.
const chunkSize = 16 * 1024

// Stream — открытый поток захвата с устройства.
type Stream interface {
	io.Reader
	// Stop просит устройство завершить запись. Read вернёт io.EOF
	// после передачи оставшихся данных.
	Stop() error
	// Close освобождает устройство. Вызывается после завершения чтения.
	Close() error
}

// Capturer открывает устройство записи.
type Capturer interface {
	// Open запрашивает доступ к микрофону.
	// Ошибки оборачивают ErrPermissionDenied или ErrDeviceUnavailable.
	Open(ctx context.Context) (Stream, error)
	// Extension — расширение файла для формата потока (".wav").
	Extension() string
}

// Backend — операции сервера, нужные сеансу.
type Backend interface {
	Upload(ctx context.Context, fileName string, data []byte) (*model.AudioRecord, error)
	List(ctx context.Context) ([]model.AudioRecord, error)
}

// Clip — собранная запись, хранится только в памяти процесса.
type Clip struct {
	Data       []byte
	Extension  string
	Duration   time.Duration
	CapturedAt time.Time
}

// FileName возвращает имя файла для загрузки.
func (c *Clip) FileName() string {
	return "recording-" + c.CapturedAt.Format("20060102-150405") + c.Extension
}

// recording — состояние одного активного захвата.
type recording struct {
	stream   Stream
	stopReq  chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

// Session управляет записью через StateMachine.
type Session struct {
	sm       *StateMachine
	capturer Capturer
	backend  Backend
	duration time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	active  *recording
	clip    *Clip
	records []model.AudioRecord
}

// NewSession создаёт сеанс записи. duration <= 0 — DefaultDuration.
func NewSession(capturer Capturer, backend Backend, duration time.Duration, logger *slog.Logger) *Session {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Session{
		sm:       NewStateMachine(),
		capturer: capturer,
		backend:  backend,
		duration: duration,
		logger:   logger.With(slog.String("component", "recorder")),
		now:      time.Now,
		records:  make([]model.AudioRecord, 0),
	}
}

// State возвращает текущее состояние сеанса.
func (s *Session) State() State {
	return s.sm.Current()
}

// Duration возвращает длительность автоостановки.
func (s *Session) Duration() time.Duration {
	return s.duration
}

// Clip возвращает собранный клип или nil.
func (s *Session) Clip() *Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// History возвращает переходы состояний сеанса.
func (s *Session) History() []TransitionRecord {
	return s.sm.History()
}

// Records возвращает последний полученный список записей сервера.
func (s *Session) Records() []model.AudioRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]model.AudioRecord, len(s.records))
	copy(result, s.records)
	return result
}

// Start запрашивает микрофон и начинает захват. Предыдущий клип отбрасывается.
// Запись останавливается через Duration или вызовом Stop.
// При ошибке доступа к устройству сеанс возвращается в idle.
func (s *Session) Start(ctx context.Context) error {
	if err := s.sm.Fire(EventStart); err != nil {
		return err
	}

	s.mu.Lock()
	s.clip = nil
	s.mu.Unlock()

	stream, err := s.capturer.Open(ctx)
	if err != nil {
		if fireErr := s.sm.Fire(EventStartFailed); fireErr != nil {
			s.logger.Error("Ошибка возврата в idle", slog.String("error", fireErr.Error()))
		}
		s.logger.Warn("Не удалось начать запись", slog.String("error", err.Error()))
		return err
	}

	rec := &recording{
		stream:   stream,
		stopReq:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	s.mu.Lock()
	s.active = rec
	s.mu.Unlock()

	go s.supervise(rec, s.now())

	s.logger.Info("Запись начата", slog.Duration("duration", s.duration))
	return nil
}

// Stop останавливает активную запись и возвращает собранный клип.
func (s *Session) Stop() (*Clip, error) {
	s.mu.Lock()
	rec := s.active
	s.mu.Unlock()

	if rec == nil {
		return nil, &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("запись не выполняется (состояние %s)", s.sm.Current()),
		}
	}

	rec.stopOnce.Do(func() { close(rec.stopReq) })
	<-rec.finished
	return s.Clip(), nil
}

// Wait ожидает завершения активной записи (по таймеру или Stop).
// Если запись уже завершена, сразу возвращает клип.
func (s *Session) Wait(ctx context.Context) (*Clip, error) {
	s.mu.Lock()
	rec := s.active
	clip := s.clip
	s.mu.Unlock()

	if rec == nil {
		if clip == nil {
			return nil, ErrEmptyClip
		}
		return clip, nil
	}

	select {
	case <-rec.finished:
		return s.Clip(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// supervise ждёт таймера, Stop или конца потока, затем освобождает
// устройство и собирает клип.
func (s *Session) supervise(rec *recording, startedAt time.Time) {
	var (
		chunks  [][]byte
		readErr error
	)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		chunks, readErr = readChunks(rec.stream)
	}()

	timer := time.NewTimer(s.duration)
	defer timer.Stop()

	event := EventStop
	select {
	case <-timer.C:
		event = EventTimeout
	case <-rec.stopReq:
	case <-loopDone:
		s.logger.Warn("Поток захвата завершился до остановки записи")
	}

	if err := rec.stream.Stop(); err != nil {
		s.logger.Warn("Ошибка остановки захвата", slog.String("error", err.Error()))
	}
	<-loopDone
	if err := rec.stream.Close(); err != nil {
		s.logger.Warn("Ошибка освобождения устройства", slog.String("error", err.Error()))
	}
	if readErr != nil {
		s.logger.Warn("Ошибка чтения потока захвата", slog.String("error", readErr.Error()))
	}

	clip := &Clip{
		Data:       bytes.Join(chunks, nil),
		Extension:  s.capturer.Extension(),
		Duration:   s.now().Sub(startedAt),
		CapturedAt: startedAt,
	}

	s.mu.Lock()
	s.clip = clip
	s.active = nil
	s.mu.Unlock()

	if err := s.sm.Fire(event); err != nil {
		s.logger.Error("Ошибка перехода после остановки", slog.String("error", err.Error()))
	}
	close(rec.finished)

	s.logger.Info("Запись остановлена",
		slog.String("reason", string(event)),
		slog.Int("bytes", len(clip.Data)),
		slog.Int("chunks", len(chunks)),
	)
}

// readChunks читает поток порциями до io.EOF или ошибки.
func readChunks(r io.Reader) ([][]byte, error) {
	var chunks [][]byte
	for {
		buf := make([]byte, chunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			chunks = append(chunks, buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return chunks, nil
			}
			return chunks, err
		}
	}
}

// Save загружает клип на сервер multipart-запросом и обновляет список.
// При ошибке загрузки сеанс остаётся в reviewing для повторной попытки.
func (s *Session) Save(ctx context.Context) (*model.AudioRecord, error) {
	if !s.sm.Can(EventSave) {
		return nil, &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("нечего сохранять (состояние %s)", s.sm.Current()),
		}
	}

	clip := s.Clip()
	if clip == nil || len(clip.Data) == 0 {
		return nil, ErrEmptyClip
	}

	record, err := s.backend.Upload(ctx, clip.FileName(), clip.Data)
	if err != nil {
		s.logger.Warn("Не удалось сохранить запись, клип сохранён для повтора",
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if err := s.sm.Fire(EventSave); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.clip = nil
	s.mu.Unlock()

	s.logger.Info("Запись сохранена",
		slog.String("id", record.ID),
		slog.String("file_name", record.FileName),
	)

	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Не удалось обновить список после сохранения", slog.String("error", err.Error()))
	}
	return record, nil
}

// Refresh запрашивает список записей с сервера.
// При ошибке прежний список сохраняется.
func (s *Session) Refresh(ctx context.Context) ([]model.AudioRecord, error) {
	records, err := s.backend.List(ctx)
	if err != nil {
		return s.Records(), err
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return s.Records(), nil
}
