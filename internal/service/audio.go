// audio.go — сервис операций над аудиозаписями: список, загрузка,
// удаление и скачивание. Связывает Metadata Store и Blob Store.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bigkaa/goaudiostore/internal/api/middleware"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/repository"
	"github.com/bigkaa/goaudiostore/internal/storage/blobstore"
)

// UploadParams — параметры загрузки аудиофайла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — имя файла, переданное клиентом
	OriginalFilename string
	// Size — размер файла из multipart part (-1 если неизвестен)
	Size int64
	// BaseURL — публичный адрес сервера без завершающего слэша
	BaseURL string
}

// AudioService — сервис операций над аудиозаписями.
type AudioService struct {
	repo        repository.AudioRepository
	store       *blobstore.BlobStore
	fieldTag    string
	maxFileSize int64
	logger      *slog.Logger
}

// NewAudioService создаёт сервис аудиозаписей.
// fieldTag — префикс имён файлов (имя поля формы), maxFileSize — лимит размера.
func NewAudioService(
	repo repository.AudioRepository,
	store *blobstore.BlobStore,
	fieldTag string,
	maxFileSize int64,
	logger *slog.Logger,
) *AudioService {
	return &AudioService{
		repo:        repo,
		store:       store,
		fieldTag:    fieldTag,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "audio_service")),
	}
}

// List возвращает все аудиозаписи в порядке создания.
func (s *AudioService) List(ctx context.Context) ([]*model.AudioRecord, *Error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Ошибка получения списка аудиозаписей", slog.String("error", err.Error()))
		middleware.OperationsTotal.WithLabelValues("list", "error").Inc()
		return nil, newError(KindStoreUnavailable, "Хранилище метаданных недоступно", err)
	}
	middleware.OperationsTotal.WithLabelValues("list", "success").Inc()
	return records, nil
}

// Create сохраняет файл в Blob Store и регистрирует запись в Metadata Store.
//
// Поток:
//  1. Проверка размера
//  2. Save (streaming, уникальное имя)
//  3. Формирование публичного URL
//  4. repo.Create
//
// При ошибке шага 4 файл остаётся на диске и будет найден сверкой как orphaned_file.
func (s *AudioService) Create(ctx context.Context, params UploadParams) (*model.AudioRecord, *Error) {
	if params.Size > s.maxFileSize {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, newError(KindFileTooLarge,
			fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.maxFileSize), nil)
	}

	// Ограничиваем чтение на случай, если Size неизвестен или занижен
	limited := &io.LimitedReader{R: params.Reader, N: s.maxFileSize + 1}

	saved, err := s.store.Save(limited, s.fieldTag, params.OriginalFilename)
	if err != nil {
		s.logger.Error("Ошибка сохранения файла", slog.String("error", err.Error()))
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, newError(KindInternal, "Ошибка сохранения файла на диск", err)
	}
	if saved.Size > s.maxFileSize {
		if rmErr := s.store.Remove(saved.FileName); rmErr != nil {
			s.logger.Warn("Не удалось удалить превышающий лимит файл",
				slog.String("file_name", saved.FileName),
				slog.String("error", rmErr.Error()),
			)
		}
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, newError(KindFileTooLarge,
			fmt.Sprintf("Размер файла превышает максимум %d байт", s.maxFileSize), nil)
	}

	record := &model.AudioRecord{
		AudioURL: AudioURL(params.BaseURL, saved.FileName),
		FileName: saved.FileName,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		// Откат не выполняется: файл становится orphaned_file
		s.logger.Error("Ошибка записи метаданных, файл оставлен на диске",
			slog.String("file_name", saved.FileName),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, newError(KindPersistenceFailure, "Ошибка сохранения метаданных аудиозаписи", err)
	}

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	middleware.AudiosTotal.Inc()

	s.logger.Info("Аудиозапись загружена",
		slog.String("id", record.ID),
		slog.String("file_name", record.FileName),
		slog.Int64("size", saved.Size),
	)

	return record, nil
}

// Delete удаляет запись из Metadata Store, затем файл из Blob Store.
// Отсутствующий на диске файл не считается ошибкой.
// При ошибке удаления файла запись не восстанавливается.
func (s *AudioService) Delete(ctx context.Context, id string) *Error {
	record, svcErr := s.lookup(ctx, id, "delete")
	if svcErr != nil {
		return svcErr
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			// Запись удалена параллельным запросом
			return newError(KindNotFound, fmt.Sprintf("Аудиозапись %s не найдена", id), err)
		}
		s.logger.Error("Ошибка удаления записи", slog.String("id", id), slog.String("error", err.Error()))
		return newError(KindStoreUnavailable, "Хранилище метаданных недоступно", err)
	}
	middleware.AudiosTotal.Dec()

	if err := s.store.Remove(record.FileName); err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn("Файл аудиозаписи уже отсутствует на диске",
				slog.String("id", id),
				slog.String("file_name", record.FileName),
			)
		} else {
			s.logger.Error("Ошибка удаления файла, запись уже удалена",
				slog.String("id", id),
				slog.String("file_name", record.FileName),
				slog.String("error", err.Error()),
			)
			middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
			return newError(KindFileRemovalFailure, "Ошибка удаления файла аудиозаписи", err)
		}
	}

	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Аудиозапись удалена",
		slog.String("id", id),
		slog.String("file_name", record.FileName),
	)
	return nil
}

// Serve отдаёт файл аудиозаписи как вложение.
//
// Ошибка возвращается, только пока клиенту ничего не отправлено.
// Сбой чтения после начала передачи обрывает соединение через
// http.ErrAbortHandler: клиент видит неполный ответ.
func (s *AudioService) Serve(w http.ResponseWriter, r *http.Request, id string) *Error {
	record, svcErr := s.lookup(r.Context(), id, "download")
	if svcErr != nil {
		return svcErr
	}

	file, err := s.store.Open(record.FileName)
	if err != nil {
		s.logger.Warn("Файл аудиозаписи не найден на диске",
			slog.String("id", id),
			slog.String("file_name", record.FileName),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		return newError(KindFileMissing, fmt.Sprintf("Файл аудиозаписи %s отсутствует", id), err)
	}
	defer file.Close()

	size := int64(-1)
	if stat, err := file.Stat(); err == nil {
		size = stat.Size()
	}

	written, err := stream(w, file, record.FileName, size)
	if err == nil {
		middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
		s.logger.Debug("Аудиозапись скачана",
			slog.String("id", id),
			slog.Int64("bytes", written),
		)
		return nil
	}

	middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
	s.logger.Error("Ошибка передачи файла",
		slog.String("id", id),
		slog.String("file_name", record.FileName),
		slog.Int64("bytes", written),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, errHeadersSent) {
		panic(http.ErrAbortHandler)
	}
	return newError(KindTransferFailure, "Ошибка чтения файла аудиозаписи", err)
}

// errHeadersSent — ошибка после отправки заголовков ответа.
var errHeadersSent = errors.New("ответ уже начат")

// streamChunk — размер первой порции: читается до отправки заголовков.
const streamChunk = 32 * 1024

// stream отправляет содержимое src клиенту с заголовками вложения.
// Первая порция читается до WriteHeader, поэтому ошибка чтения в ней
// возвращается без побочных эффектов. Ошибки после WriteHeader
// оборачивают errHeadersSent.
func stream(w http.ResponseWriter, src io.Reader, fileName string, size int64) (int64, error) {
	buf := make([]byte, streamChunk)
	n, err := io.ReadFull(src, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}
	complete := err != nil

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	written, werr := w.Write(buf[:n])
	total := int64(written)
	if werr != nil {
		return total, fmt.Errorf("%w: %v", errHeadersSent, werr)
	}
	if complete {
		return total, nil
	}

	copied, cerr := io.Copy(w, src)
	total += copied
	if cerr != nil {
		return total, fmt.Errorf("%w: %v", errHeadersSent, cerr)
	}
	return total, nil
}

// lookup получает запись по ID, переводя ошибки репозитория в ошибки сервиса.
func (s *AudioService) lookup(ctx context.Context, id, operation string) (*model.AudioRecord, *Error) {
	record, err := s.repo.GetByID(ctx, id)
	if err == nil {
		return record, nil
	}

	middleware.OperationsTotal.WithLabelValues(operation, "error").Inc()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, fmt.Sprintf("Аудиозапись %s не найдена", id), err)
	}
	s.logger.Error("Ошибка получения записи", slog.String("id", id), slog.String("error", err.Error()))
	return nil, newError(KindStoreUnavailable, "Хранилище метаданных недоступно", err)
}

// RefreshGauge пересчитывает as_audios_total по Metadata Store.
func (s *AudioService) RefreshGauge(ctx context.Context) error {
	records, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("ошибка подсчёта аудиозаписей: %w", err)
	}
	middleware.AudiosTotal.Set(float64(len(records)))
	return nil
}

// AudioURL формирует публичный адрес файла: {baseURL}/uploads/{fileName}.
func AudioURL(baseURL, fileName string) string {
	return strings.TrimSuffix(baseURL, "/") + "/uploads/" + url.PathEscape(fileName)
}
