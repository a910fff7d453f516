// health.go — обработчики health endpoints для проверок Kubernetes (liveness, readiness).
package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/bigkaa/goaudiostore/internal/version"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// ReadinessChecker — проверка готовности внешней зависимости.
// Возвращает статус ("ok", "fail") и сообщение.
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dataDir — директория Blob Store (проверяется запись)
	dataDir string
	// db — проверка Metadata Store (nil для in-memory)
	db ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(dataDir string, db ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version: version.Version,
		dataDir: dataDir,
		db:      db,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "audio-server",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: директорию данных и подключение к Metadata Store.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	checks := map[string]any{
		"filesystem": fsCheck,
	}

	if h.db != nil {
		status, message := h.db.CheckReady()
		checks["metadata_store"] = map[string]any{
			"status":  status,
			"message": message,
		}
		if status != "ok" {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "audio-server",
		"checks":    checks,
	})
}

// checkFilesystem проверяет доступность директории данных на запись.
// Пробный файл имеет суффикс .tmp и не виден Blob Store.
func (h *HealthHandler) checkFilesystem() map[string]any {
	f, err := os.CreateTemp(h.dataDir, ".health-*.tmp")
	if err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория данных недоступна для записи: " + err.Error(),
		}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return map[string]any{
		"status": "ok",
	}
}
