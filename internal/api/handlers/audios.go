// audios.go — HTTP handlers операций над аудиозаписями:
// List, Upload, Delete, Download.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goaudiostore/internal/api/errors"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/service"
)

// multipartMemory — объём multipart-формы, хранимый в памяти; остальное на диске.
const multipartMemory = 8 << 20

// multipartOverhead — запас на заголовки и границы multipart сверх MaxFileSize.
const multipartOverhead = 1 << 20

// AudiosHandler — обработчик endpoints /api/audios.
type AudiosHandler struct {
	svc           *service.AudioService
	uploadField   string
	maxFileSize   int64
	publicBaseURL string
}

// NewAudiosHandler создаёт обработчик аудиозаписей.
// publicBaseURL — внешний адрес сервера; пустая строка — адрес из запроса.
func NewAudiosHandler(svc *service.AudioService, uploadField string, maxFileSize int64, publicBaseURL string) *AudiosHandler {
	return &AudiosHandler{
		svc:           svc,
		uploadField:   uploadField,
		maxFileSize:   maxFileSize,
		publicBaseURL: publicBaseURL,
	}
}

// uploadResponse — тело ответа успешной загрузки.
type uploadResponse struct {
	Message string             `json:"message"`
	Audio   *model.AudioRecord `json:"audio"`
}

// messageResponse — тело ответа с текстовым подтверждением.
type messageResponse struct {
	Message string `json:"message"`
}

// ListAudios обрабатывает GET /api/audios.
func (h *AudiosHandler) ListAudios(w http.ResponseWriter, r *http.Request) {
	records, svcErr := h.svc.List(r.Context())
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// UploadAudio обрабатывает POST /api/audios.
// Multipart form: ровно один файл в поле uploadField.
func (h *AudiosHandler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case stderrors.As(err, &maxErr):
			errors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает максимум %d байт", h.maxFileSize))
		case stderrors.Is(err, http.ErrNotMultipart), stderrors.Is(err, http.ErrMissingBoundary),
			stderrors.Is(err, io.EOF), stderrors.Is(err, io.ErrUnexpectedEOF):
			// Пустое тело или форма без частей: файла нет
			errors.MissingFile(w, fmt.Sprintf("Аудиофайл не передан: ожидается multipart-поле '%s'", h.uploadField))
		default:
			errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		}
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File[h.uploadField]
	if len(files) != 1 {
		errors.MissingFile(w, fmt.Sprintf("Ожидается ровно один файл в поле '%s', получено %d", h.uploadField, len(files)))
		return
	}
	header := files[0]

	file, err := header.Open()
	if err != nil {
		errors.InternalError(w, "Ошибка чтения загруженного файла")
		return
	}
	defer file.Close()

	record, svcErr := h.svc.Create(r.Context(), service.UploadParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		Size:             header.Size,
		BaseURL:          h.baseURL(r),
	})
	if svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		Message: "Аудиозапись сохранена",
		Audio:   record,
	})
}

// DeleteAudio обрабатывает DELETE /api/audios/{id}.
func (h *AudiosHandler) DeleteAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if svcErr := h.svc.Delete(r.Context(), id); svcErr != nil {
		writeServiceError(w, svcErr)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Аудиозапись удалена"})
}

// DownloadAudio обрабатывает GET /api/audios/{id}/download.
func (h *AudiosHandler) DownloadAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if svcErr := h.svc.Serve(w, r, id); svcErr != nil {
		writeServiceError(w, svcErr)
	}
}

// baseURL возвращает публичный адрес сервера для формирования audioURL.
// Схема учитывает TLS и X-Forwarded-Proto, хост берётся из Host (с портом).
func (h *AudiosHandler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		if first = strings.ToLower(strings.TrimSpace(first)); first == "http" || first == "https" {
			scheme = first
		}
	}
	return scheme + "://" + r.Host
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, e *service.Error) {
	errors.WriteError(w, e.StatusCode, e.Code, e.Message)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
