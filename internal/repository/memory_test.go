package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// TestMemoryAudioRepository проверяет in-memory реализацию.
func TestMemoryAudioRepository(t *testing.T) {
	runAudioRepositoryContract(t, NewMemoryAudioRepository())
}

// TestMemoryAudioRepository_ReturnsCopies проверяет, что изменение
// возвращённой записи не влияет на хранилище.
func TestMemoryAudioRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryAudioRepository()
	ctx := context.Background()

	a := &model.AudioRecord{AudioURL: "http://h/uploads/a.wav", FileName: "a.wav"}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	a.FileName = "изменено"

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FileName != "a.wav" {
		t.Errorf("хранилище изменено через аргумент Create: %s", got.FileName)
	}

	got.AudioURL = "изменено"
	list, _ := repo.List(ctx)
	if list[0].AudioURL != "http://h/uploads/a.wav" {
		t.Errorf("хранилище изменено через результат GetByID: %s", list[0].AudioURL)
	}
}

// TestMemoryAudioRepository_CreatedAtUTC проверяет, что время создания в UTC.
func TestMemoryAudioRepository_CreatedAtUTC(t *testing.T) {
	repo := NewMemoryAudioRepository().(*memoryAudioRepo)
	fixed := time.Date(2026, 1, 2, 15, 4, 5, 0, time.FixedZone("MSK", 3*3600))
	repo.now = func() time.Time { return fixed }

	a := &model.AudioRecord{FileName: "a.wav"}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if a.CreatedAt.Location() != time.UTC {
		t.Errorf("ожидалась зона UTC, получено %v", a.CreatedAt.Location())
	}
	if !a.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, ожидалось %v", a.CreatedAt, fixed)
	}
}
