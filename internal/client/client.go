// Пакет client — REST-клиент сервера аудиозаписей (go-resty).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// UploadField — имя поля multipart-формы, которое ожидает сервер.
const UploadField = "audio"

// APIError — ошибка, возвращённая сервером в формате {"error":{"code","message"}}.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("сервер вернул %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("сервер вернул %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound проверяет, что err — ответ 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// errorBody — тело ответа с ошибкой.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// uploadResponse — тело ответа POST /api/audios.
type uploadResponse struct {
	Message string            `json:"message"`
	Audio   model.AudioRecord `json:"audio"`
}

// Client — клиент API /api/audios.
type Client struct {
	http        *resty.Client
	uploadField string
}

// New создаёт клиент для сервера baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}
	return &Client{http: rc, uploadField: UploadField}
}

// List возвращает все записи в порядке создания.
func (c *Client) List(ctx context.Context) ([]model.AudioRecord, error) {
	var records []model.AudioRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&records).
		SetError(&errorBody{}).
		Get("/api/audios")
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса списка записей: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	if records == nil {
		records = make([]model.AudioRecord, 0)
	}
	return records, nil
}

// Upload загружает данные клипа multipart-запросом.
func (c *Client) Upload(ctx context.Context, fileName string, data []byte) (*model.AudioRecord, error) {
	var result uploadResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader(c.uploadField, fileName, bytes.NewReader(data)).
		SetResult(&result).
		SetError(&errorBody{}).
		Post("/api/audios")
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки записи: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	if resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("неожиданный статус загрузки: %d", resp.StatusCode())
	}
	return &result.Audio, nil
}

// Delete удаляет запись и её файл.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetError(&errorBody{}).
		Delete("/api/audios/{id}")
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// Download копирует содержимое записи в w.
// Возвращает имя файла из Content-Disposition и количество байт.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (string, int64, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetDoNotParseResponse(true).
		Get("/api/audios/{id}/download")
	if err != nil {
		return "", 0, fmt.Errorf("ошибка скачивания записи: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= http.StatusBadRequest {
		return "", 0, decodeError(resp.StatusCode(), body)
	}

	n, err := io.Copy(w, body)
	if err != nil {
		return "", n, fmt.Errorf("передача прервана после %d байт: %w", n, err)
	}
	if resp.RawResponse.ContentLength >= 0 && n != resp.RawResponse.ContentLength {
		return "", n, fmt.Errorf("передача прервана: получено %d из %d байт", n, resp.RawResponse.ContentLength)
	}

	return fileNameFromDisposition(resp.Header().Get("Content-Disposition")), n, nil
}

// apiError строит APIError из распарсенного тела ошибки.
func apiError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body.Error.Code != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}

// decodeError читает тело ошибки из непарсенного ответа.
func decodeError(status int, body io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(body, 64*1024))
	apiErr := &APIError{StatusCode: status}
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Code != "" {
		apiErr.Code = eb.Error.Code
		apiErr.Message = eb.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// fileNameFromDisposition извлекает filename из заголовка Content-Disposition.
func fileNameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
