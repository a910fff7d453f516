// Пакет repository — слой доступа к метаданным аудиозаписей (Metadata Store).
// PostgreSQL-реализация — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// AudioRepository — операции над метаданными аудиозаписей.
type AudioRepository interface {
	// Create сохраняет новую запись, назначая ей ID и CreatedAt.
	Create(ctx context.Context, a *model.AudioRecord) error
	// List возвращает все записи в порядке создания.
	List(ctx context.Context) ([]*model.AudioRecord, error)
	// GetByID возвращает запись по ID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.AudioRecord, error)
	// Delete удаляет запись по ID или возвращает ErrNotFound.
	Delete(ctx context.Context, id string) error
	// FileNames возвращает множество имён файлов всех записей.
	FileNames(ctx context.Context) (map[string]struct{}, error)
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
