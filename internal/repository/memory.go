package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// memoryAudioRepo — in-memory реализация AudioRepository.
// Хранит записи в порядке создания. Данные теряются при перезапуске.
type memoryAudioRepo struct {
	mu      sync.RWMutex
	records []*model.AudioRecord
	byID    map[string]*model.AudioRecord
	// now — источник времени (подменяется в тестах)
	now func() time.Time
}

// NewMemoryAudioRepository создаёт in-memory репозиторий аудиозаписей.
func NewMemoryAudioRepository() AudioRepository {
	return &memoryAudioRepo{
		byID: make(map[string]*model.AudioRecord),
		now:  time.Now,
	}
}

func (r *memoryAudioRepo) Create(_ context.Context, a *model.AudioRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records {
		if existing.FileName == a.FileName {
			return ErrConflict
		}
	}

	a.ID = uuid.New().String()
	a.CreatedAt = r.now().UTC()

	stored := a.Clone()
	r.records = append(r.records, stored)
	r.byID[stored.ID] = stored
	return nil
}

func (r *memoryAudioRepo) List(_ context.Context) ([]*model.AudioRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.AudioRecord, 0, len(r.records))
	for _, a := range r.records {
		result = append(result, a.Clone())
	}
	return result, nil
}

func (r *memoryAudioRepo) GetByID(_ context.Context, id string) (*model.AudioRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (r *memoryAudioRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)

	for i, a := range r.records {
		if a.ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memoryAudioRepo) FileNames(_ context.Context) (map[string]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]struct{}, len(r.records))
	for _, a := range r.records {
		result[a.FileName] = struct{}{}
	}
	return result, nil
}
