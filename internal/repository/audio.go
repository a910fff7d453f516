package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// audioRepo — PostgreSQL-реализация AudioRepository.
type audioRepo struct {
	db DBTX
}

// NewAudioRepository создаёт репозиторий аудиозаписей поверх PostgreSQL.
func NewAudioRepository(db DBTX) AudioRepository {
	return &audioRepo{db: db}
}

func (r *audioRepo) Create(ctx context.Context, a *model.AudioRecord) error {
	query := `
		INSERT INTO audios (id, audio_url, file_name, created_at)
		VALUES ($1, $2, $3, $4)`

	id := uuid.New()
	createdAt := time.Now().UTC()

	if _, err := r.db.Exec(ctx, query, id, a.AudioURL, a.FileName, createdAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл %s уже зарегистрирован", ErrConflict, a.FileName)
		}
		return fmt.Errorf("ошибка создания записи: %w", err)
	}

	a.ID = id.String()
	a.CreatedAt = createdAt
	return nil
}

func (r *audioRepo) List(ctx context.Context) ([]*model.AudioRecord, error) {
	query := `
		SELECT id, audio_url, file_name, created_at
		FROM audios
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	result := make([]*model.AudioRecord, 0)
	for rows.Next() {
		a, err := scanAudio(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения записи: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации записей: %w", err)
	}
	return result, nil
}

func (r *audioRepo) GetByID(ctx context.Context, id string) (*model.AudioRecord, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		// Некорректный ID не может соответствовать ни одной записи
		return nil, ErrNotFound
	}

	query := `
		SELECT id, audio_url, file_name, created_at
		FROM audios
		WHERE id = $1`

	a, err := scanAudio(r.db.QueryRow(ctx, query, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return a, nil
}

func (r *audioRepo) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM audios WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *audioRepo) FileNames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT file_name FROM audios`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения имён файлов: %w", err)
	}
	defer rows.Close()

	result := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ошибка чтения имени файла: %w", err)
		}
		result[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации имён файлов: %w", err)
	}
	return result, nil
}

// scanAudio читает одну строку audios в модель.
func scanAudio(row pgx.Row) (*model.AudioRecord, error) {
	var (
		id uuid.UUID
		a  model.AudioRecord
	)
	if err := row.Scan(&id, &a.AudioURL, &a.FileName, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = id.String()
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
