package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/goaudiostore/internal/api/handlers"
	"github.com/bigkaa/goaudiostore/internal/config"
	"github.com/bigkaa/goaudiostore/internal/domain/model"
	"github.com/bigkaa/goaudiostore/internal/repository"
	"github.com/bigkaa/goaudiostore/internal/service"
	"github.com/bigkaa/goaudiostore/internal/storage/blobstore"
)

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		Port:            0,
		DataDir:         dataDir,
		UploadField:     "audio",
		MaxFileSize:     1 << 20,
		MetadataBackend: config.MetadataBackendMemory,
		CORSOrigins:     []string{"*"},
		ShutdownTimeout: 2 * time.Second,
	}
}

// newTestServer собирает полный роутер поверх in-memory хранилищ.
func newTestServer(t *testing.T) (*httptest.Server, *blobstore.BlobStore) {
	t.Helper()

	cfg := testConfig(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := blobstore.New(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewCachedAudioRepository(repository.NewMemoryAudioRepository(), 10, time.Minute)
	audioSvc := service.NewAudioService(repo, store, cfg.UploadField, cfg.MaxFileSize, logger)
	reconcileSvc := service.NewReconcileService(repo, store, service.ReconcileOptions{}, logger)

	router := NewRouter(cfg, logger, Handlers{
		Audios:      handlers.NewAudiosHandler(audioSvc, cfg.UploadField, cfg.MaxFileSize, cfg.PublicBaseURL),
		Uploads:     handlers.NewUploadsHandler(store),
		Health:      handlers.NewHealthHandler(cfg.DataDir, nil),
		Maintenance: handlers.NewMaintenanceHandler(reconcileSvc),
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, store
}

func listAudios(t *testing.T, baseURL string) []model.AudioRecord {
	t.Helper()
	resp, err := http.Get(baseURL + "/api/audios")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("List: статус %d", resp.StatusCode)
	}
	var list []model.AudioRecord
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	return list
}

// TestEndToEnd проверяет сценарий: загрузка → список → скачивание →
// удаление → пустой список → NOT_FOUND при скачивании.
func TestEndToEnd(t *testing.T) {
	ts, store := newTestServer(t)
	content := []byte("RIFF\x24\x00\x00\x00WAVEfmt тестовая запись")

	if list := listAudios(t, ts.URL); len(list) != 0 {
		t.Fatalf("ожидался пустой список, получено %d", len(list))
	}

	// Загрузка a.wav
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("audio", "a.wav")
	_, _ = fw.Write(content)
	_ = mw.Close()

	resp, err := http.Post(ts.URL+"/api/audios", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Upload: статус %d", resp.StatusCode)
	}

	list := listAudios(t, ts.URL)
	if len(list) != 1 {
		t.Fatalf("ожидалась 1 запись, получено %d", len(list))
	}
	rec := list[0]
	if !strings.HasSuffix(rec.FileName, ".wav") {
		t.Errorf("fileName = %s", rec.FileName)
	}
	if !store.Exists(rec.FileName) {
		t.Error("файл отсутствует в Blob Store")
	}

	// Статика по audioURL
	staticResp, err := http.Get(rec.AudioURL)
	if err != nil {
		t.Fatal(err)
	}
	staticBytes, _ := io.ReadAll(staticResp.Body)
	staticResp.Body.Close()
	if !bytes.Equal(staticBytes, content) {
		t.Error("содержимое /uploads не совпадает")
	}

	// Скачивание
	dl, err := http.Get(ts.URL + "/api/audios/" + rec.ID + "/download")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	if dl.StatusCode != http.StatusOK || !bytes.Equal(got, content) {
		t.Fatalf("Download: статус %d, %d байт", dl.StatusCode, len(got))
	}
	if cd := dl.Header.Get("Content-Disposition"); !strings.Contains(cd, rec.FileName) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	// Удаление
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/audios/"+rec.ID, nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusOK {
		t.Fatalf("Delete: статус %d", del.StatusCode)
	}
	if store.Exists(rec.FileName) {
		t.Error("файл не удалён")
	}

	if list := listAudios(t, ts.URL); len(list) != 0 {
		t.Fatalf("после удаления ожидался пустой список, получено %d", len(list))
	}

	dl, err = http.Get(ts.URL + "/api/audios/" + rec.ID + "/download")
	if err != nil {
		t.Fatal(err)
	}
	var errBody struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.NewDecoder(dl.Body).Decode(&errBody)
	dl.Body.Close()
	if dl.StatusCode != http.StatusNotFound || errBody.Error.Code != "NOT_FOUND" {
		t.Errorf("Download после удаления: статус %d, code %q", dl.StatusCode, errBody.Error.Code)
	}
}

// TestRouter_Infrastructure проверяет health, metrics, CORS и reconcile.
func TestRouter_Infrastructure(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: статус %d", path, resp.StatusCode)
		}
	}

	resp, err := http.Post(ts.URL+"/api/maintenance/reconcile", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reconcile: статус %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/audios", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("CORS preflight не обработан")
	}
}

// TestServer_RunShutdown проверяет graceful shutdown по отмене контекста.
func TestServer_RunShutdown(t *testing.T) {
	cfg := testConfig(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := blobstore.New(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewMemoryAudioRepository()
	svc := service.NewAudioService(repo, store, "audio", cfg.MaxFileSize, logger)

	srv := New(cfg, logger, Handlers{
		Audios:      handlers.NewAudiosHandler(svc, "audio", cfg.MaxFileSize, ""),
		Uploads:     handlers.NewUploadsHandler(store),
		Health:      handlers.NewHealthHandler(cfg.DataDir, nil),
		Maintenance: handlers.NewMaintenanceHandler(service.NewReconcileService(repo, store, service.ReconcileOptions{}, logger)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run вернул ошибку: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("сервер не остановился")
	}
}
