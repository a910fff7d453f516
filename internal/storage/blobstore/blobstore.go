// Пакет blobstore — операции с аудиофайлами на диске (Blob Store).
// Обеспечивает streaming-запись под уникальным именем, чтение,
// удаление и перечисление файлов в одной директории.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// tmpSuffix — суффикс временных файлов, не видимых снаружи.
const tmpSuffix = ".tmp"

// maxCommitAttempts — сколько раз пробуем следующее имя, если текущее уже занято.
const maxCommitAttempts = 100

// Ошибки Blob Store.
var (
	// ErrBlobNotFound — файл отсутствует в хранилище.
	ErrBlobNotFound = errors.New("файл не найден в хранилище")
	// ErrInvalidName — имя файла содержит недопустимые символы или компоненты пути.
	ErrInvalidName = errors.New("недопустимое имя файла")
)

// BlobStore — управление аудиофайлами в одной директории.
type BlobStore struct {
	// dir — корневая директория хранения (AS_DATA_DIR)
	dir string
	// now — источник времени (подменяется в тестах)
	now func() time.Time
	// link — жёсткая ссылка без перезаписи (подменяется в тестах)
	link func(oldname, newname string) error
	// noLinks — файловая система не поддерживает жёсткие ссылки,
	// фиксация идёт копированием в файл, созданный с O_EXCL
	noLinks atomic.Bool

	mu         sync.Mutex
	lastMillis int64
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// FileName — уникальное имя файла в dir
	FileName string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
}

// BlobInfo — сведения о файле для сверки.
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// New создаёт новый BlobStore. Создаёт директорию, если она не существует.
func New(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dir, err)
	}

	return &BlobStore{dir: dir, now: time.Now, link: os.Link}, nil
}

// Save записывает данные из reader на диск под новым уникальным именем.
// Формат имени: {fieldTag}-{unix_millis}{ext}, где ext — расширение originalName.
//
// Паттерн: temp файл → запись → fsync → link без перезаписи → удаление temp.
// При ошибке temp файл удаляется.
func (bs *BlobStore) Save(reader io.Reader, fieldTag, originalName string) (*SaveResult, error) {
	tmp, err := os.CreateTemp(bs.dir, ".upload-*"+tmpSuffix)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	defer os.Remove(tmpPath)

	tag := sanitize(fieldTag)
	ext := sanitizeExt(filepath.Ext(originalName))

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		name := tag + "-" + strconv.FormatInt(bs.nextMillis(), 10) + ext
		fullPath := filepath.Join(bs.dir, name)

		err := bs.commit(tmpPath, fullPath)
		if err == nil {
			return &SaveResult{FileName: name, FullPath: fullPath, Size: size}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("ошибка фиксации файла %s: %w", name, err)
		}
	}

	return nil, fmt.Errorf("не удалось подобрать свободное имя файла за %d попыток", maxCommitAttempts)
}

// commit фиксирует temp файл под именем fullPath, не перезаписывая
// существующий файл. Занятое имя возвращает ошибку, для которой os.IsExist.
// Link не перезаписывает цель, в отличие от Rename. Если ссылки не
// поддерживаются (FAT, часть сетевых FS), данные копируются.
func (bs *BlobStore) commit(tmpPath, fullPath string) error {
	if !bs.noLinks.Load() {
		err := bs.link(tmpPath, fullPath)
		if err == nil || os.IsExist(err) {
			return err
		}
		bs.noLinks.Store(true)
	}
	return copyExclusive(tmpPath, fullPath)
}

// copyExclusive копирует src в новый файл dst, созданный с O_EXCL.
// При ошибке частично записанный dst удаляется.
func copyExclusive(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

// nextMillis возвращает метку времени в миллисекундах, строго большую
// предыдущей выданной. Несколько загрузок в одну миллисекунду получают
// последовательные значения.
func (bs *BlobStore) nextMillis() int64 {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	ms := bs.now().UnixMilli()
	if ms <= bs.lastMillis {
		ms = bs.lastMillis + 1
	}
	bs.lastMillis = ms
	return ms
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (bs *BlobStore) Open(name string) (*os.File, error) {
	fullPath, err := bs.resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, name)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", name, err)
	}

	return f, nil
}

// Remove удаляет файл с диска.
// Возвращает ErrBlobNotFound, если файл уже не существует.
func (bs *BlobStore) Remove(name string) error {
	fullPath, err := bs.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrBlobNotFound, name)
		}
		return fmt.Errorf("ошибка удаления файла %s: %w", name, err)
	}
	return nil
}

// Exists проверяет существование файла на диске.
func (bs *BlobStore) Exists(name string) bool {
	fullPath, err := bs.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// List возвращает все зафиксированные файлы хранилища.
// Временные файлы незавершённых загрузок пропускаются.
func (bs *BlobStore) List() ([]BlobInfo, error) {
	entries, err := os.ReadDir(bs.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", bs.dir, err)
	}

	result := make([]BlobInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), tmpSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}
		result = append(result, BlobInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return result, nil
}

// Dir возвращает путь к директории хранения.
func (bs *BlobStore) Dir() string {
	return bs.dir
}

// resolve проверяет имя и возвращает полный путь.
// Имя должно быть одним компонентом пути внутри dir.
func (bs *BlobStore) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(bs.dir, name), nil
}

// sanitize убирает небезопасные символы из строки для использования в имени файла.
// Оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}

// sanitizeExt оставляет в расширении только латиницу и цифры.
// Пустое или полностью недопустимое расширение отбрасывается.
func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	var result strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return ""
	}
	s := result.String()
	if len(s) > 10 {
		s = s[:10]
	}
	return "." + s
}
