// uploads.go — раздача сохранённых аудиофайлов как статики: GET /uploads/{fileName}.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goaudiostore/internal/api/errors"
	"github.com/bigkaa/goaudiostore/internal/storage/blobstore"
)

// UploadsHandler отдаёт файлы Blob Store по имени.
// Листинг директории не поддерживается.
type UploadsHandler struct {
	store *blobstore.BlobStore
}

// NewUploadsHandler создаёт обработчик статики.
func NewUploadsHandler(store *blobstore.BlobStore) *UploadsHandler {
	return &UploadsHandler{store: store}
}

// ServeFile обрабатывает GET /uploads/{fileName}.
// Поддерживает Range и If-Modified-Since через http.ServeContent.
func (h *UploadsHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "fileName")

	f, err := h.store.Open(name)
	if err != nil {
		errors.NotFound(w, "Файл "+name+" не найден")
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || !stat.Mode().IsRegular() {
		errors.NotFound(w, "Файл "+name+" не найден")
		return
	}

	http.ServeContent(w, r, name, stat.ModTime(), f)
}
