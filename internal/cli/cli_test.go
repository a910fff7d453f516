package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goaudiostore/internal/client"
	"github.com/bigkaa/goaudiostore/internal/clientconfig"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/domain/recorder"
)

// fakeAPI — сервер записей в памяти.
type fakeAPI struct {
	mu        sync.Mutex
	records   []model.AudioRecord
	files     map[string][]byte
	uploadErr error
	listErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{files: make(map[string][]byte)}
}

func (a *fakeAPI) List(_ context.Context) ([]model.AudioRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listErr != nil {
		return nil, a.listErr
	}
	out := make([]model.AudioRecord, len(a.records))
	copy(out, a.records)
	return out, nil
}

func (a *fakeAPI) Upload(_ context.Context, fileName string, data []byte) (*model.AudioRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uploadErr != nil {
		return nil, a.uploadErr
	}
	rec := model.AudioRecord{
		ID:        fmt.Sprintf("id-%d", len(a.records)+1),
		FileName:  "audio-" + fileName,
		AudioURL:  "http://localhost/uploads/audio-" + fileName,
		CreatedAt: time.Now().UTC(),
	}
	a.records = append(a.records, rec)
	a.files[rec.ID] = data
	return &rec, nil
}

func (a *fakeAPI) Delete(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.records {
		if r.ID == id {
			a.records = append(a.records[:i], a.records[i+1:]...)
			delete(a.files, id)
			return nil
		}
	}
	return &client.APIError{StatusCode: http.StatusNotFound, Code: "NOT_FOUND", Message: "не найдена"}
}

func (a *fakeAPI) Download(_ context.Context, id string, w io.Writer) (string, int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.files[id]
	if !ok {
		return "", 0, &client.APIError{StatusCode: http.StatusNotFound, Code: "NOT_FOUND", Message: "не найдена"}
	}
	n, err := w.Write(data)
	for _, r := range a.records {
		if r.ID == id {
			return r.FileName, int64(n), err
		}
	}
	return "", int64(n), err
}

// pipeStream отдаёт данные и завершается после Stop.
type pipeStream struct {
	pr *io.PipeReader
	pw *io.PipeWriter
}

func (s *pipeStream) Read(p []byte) (int, error) { return s.pr.Read(p) }
func (s *pipeStream) Stop() error                { return s.pw.Close() }
func (s *pipeStream) Close() error               { return s.pr.Close() }

type fakeCapturer struct {
	data []byte
	err  error
}

func (c *fakeCapturer) Open(_ context.Context) (recorder.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	pr, pw := io.Pipe()
	go func() { _, _ = pw.Write(c.data) }()
	return &pipeStream{pr: pr, pw: pw}, nil
}

func (c *fakeCapturer) Extension() string { return ".wav" }

// execute запускает корневую команду с аргументами и возвращает вывод.
func execute(t *testing.T, api *fakeAPI, capt *fakeCapturer, args ...string) (string, error) {
	t.Helper()

	deps := &Dependencies{
		Config: &clientconfig.Config{
			ServerURL:      "http://localhost:5000",
			Duration:       50 * time.Millisecond,
			RequestTimeout: time.Second,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewAPI: func(string, time.Duration) API { return api },
		NewCapturer: func(clientconfig.FFmpegConfig) recorder.Capturer {
			return capt
		},
	}

	root := NewRootCmd(deps)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

// TestRecord_Save проверяет запись, загрузку и вывод обновлённого списка.
func TestRecord_Save(t *testing.T) {
	api := newFakeAPI()
	out, err := execute(t, api, &fakeCapturer{data: []byte("RIFFclip")}, "record", "--save")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(api.records) != 1 {
		t.Fatalf("ожидалась 1 запись, получено %d", len(api.records))
	}
	if string(api.files["id-1"]) != "RIFFclip" {
		t.Errorf("загружены байты %q", api.files["id-1"])
	}
	for _, want := range []string{"Аудиозапись сохранена", "id-1", "ФАЙЛ"} {
		if !strings.Contains(out, want) {
			t.Errorf("вывод не содержит %q:\n%s", want, out)
		}
	}
}

// TestRecord_OutputFile проверяет сохранение клипа в файл без загрузки.
func TestRecord_OutputFile(t *testing.T) {
	api := newFakeAPI()
	path := filepath.Join(t.TempDir(), "clip.wav")

	if _, err := execute(t, api, &fakeCapturer{data: []byte("local")}, "record", "--duration", "20ms", "-o", path); err != nil {
		t.Fatalf("record: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "local" {
		t.Errorf("файл клипа: %q, %v", data, err)
	}
	if len(api.records) != 0 {
		t.Error("без --save загрузки быть не должно")
	}
}

// TestRecord_DeviceErrors проверяет ошибки доступа к микрофону.
func TestRecord_DeviceErrors(t *testing.T) {
	for _, sentinel := range []error{recorder.ErrPermissionDenied, recorder.ErrDeviceUnavailable} {
		_, err := execute(t, newFakeAPI(), &fakeCapturer{err: sentinel}, "record", "--save")
		if !errors.Is(err, sentinel) {
			t.Errorf("ожидалась %v, получено %v", sentinel, err)
		}
	}
}

// TestRecord_SaveFailure проверяет ошибку загрузки.
func TestRecord_SaveFailure(t *testing.T) {
	api := newFakeAPI()
	api.uploadErr = errors.New("сервер недоступен")

	if _, err := execute(t, api, &fakeCapturer{data: []byte("x")}, "record", "--save"); err == nil {
		t.Error("ожидалась ошибка загрузки")
	}
}

// TestListDeleteDownload проверяет list, download и delete.
func TestListDeleteDownload(t *testing.T) {
	api := newFakeAPI()

	out, err := execute(t, api, nil, "list")
	if err != nil || !strings.Contains(out, "Записей нет") {
		t.Fatalf("пустой список: %q, %v", out, err)
	}

	rec, _ := api.Upload(context.Background(), "a.wav", []byte("audio-bytes"))

	out, err = execute(t, api, nil, "list")
	if err != nil || !strings.Contains(out, rec.FileName) {
		t.Fatalf("список: %q, %v", out, err)
	}

	target := filepath.Join(t.TempDir(), "copy.wav")
	out, err = execute(t, api, nil, "download", rec.ID, "-o", target)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "audio-bytes" || !strings.Contains(out, "11 байт") {
		t.Errorf("скачано %q, вывод %q", data, out)
	}

	out, err = execute(t, api, nil, "delete", rec.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "удалена") || !strings.Contains(out, "Записей нет") {
		t.Errorf("после удаления список не обновлён:\n%s", out)
	}

	_, err = execute(t, api, nil, "delete", rec.ID)
	if err == nil || !strings.Contains(err.Error(), "не найдена") {
		t.Errorf("повторное удаление: ожидалась ошибка «не найдена», получено %v", err)
	}
}

// TestDownload_FailureLeavesNoFile проверяет, что при ошибке файл не создаётся.
func TestDownload_FailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.wav")

	if _, err := execute(t, newFakeAPI(), nil, "download", "missing", "-o", target); err == nil {
		t.Fatal("ожидалась ошибка")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("после ошибки остались файлы: %d", len(entries))
	}
}

// TestList_Failure проверяет ошибку получения списка.
func TestList_Failure(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("нет соединения")
	if _, err := execute(t, api, nil, "list"); err == nil {
		t.Error("ожидалась ошибка")
	}
}

// TestRoot_InvalidServer проверяет валидацию флага --server.
func TestRoot_InvalidServer(t *testing.T) {
	if _, err := execute(t, newFakeAPI(), nil, "--server", "ftp://x", "list"); err == nil {
		t.Error("ожидалась ошибка валидации адреса")
	}
}

// TestRoot_Version проверяет вывод --version.
func TestRoot_Version(t *testing.T) {
	out, err := execute(t, newFakeAPI(), nil, "--version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "audio-recorder dev") {
		t.Errorf("вывод --version: %q", out)
	}
}
