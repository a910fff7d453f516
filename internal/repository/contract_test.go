package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// runAudioRepositoryContract проверяет поведение, общее для всех реализаций
// AudioRepository. Репозиторий должен быть пустым.
func runAudioRepositoryContract(t *testing.T, repo AudioRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyList", func(t *testing.T) {
		list, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if list == nil || len(list) != 0 {
			t.Fatalf("ожидался пустой не-nil список, получено %v", list)
		}
	})

	var created []*model.AudioRecord
	t.Run("Create", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			a := &model.AudioRecord{
				AudioURL: fmt.Sprintf("http://localhost:5000/uploads/audio-%d.wav", i),
				FileName: fmt.Sprintf("audio-%d.wav", i),
			}
			if err := repo.Create(ctx, a); err != nil {
				t.Fatalf("Create %d: %v", i, err)
			}
			if a.ID == "" {
				t.Fatal("ID не назначен")
			}
			if a.CreatedAt.IsZero() {
				t.Fatal("CreatedAt не назначен")
			}
			created = append(created, a)
		}
		if created[0].ID == created[1].ID {
			t.Error("ID должны быть уникальными")
		}
	})

	t.Run("DuplicateFileName", func(t *testing.T) {
		dup := &model.AudioRecord{AudioURL: "x", FileName: "audio-0.wav"}
		if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
			t.Errorf("ожидалась ErrConflict, получено %v", err)
		}
	})

	t.Run("ListOrder", func(t *testing.T) {
		list, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("ожидалось 3 записи, получено %d", len(list))
		}
		for i, a := range list {
			if a.ID != created[i].ID {
				t.Errorf("позиция %d: ID = %s, ожидался %s", i, a.ID, created[i].ID)
			}
		}
	})

	t.Run("GetByID", func(t *testing.T) {
		got, err := repo.GetByID(ctx, created[1].ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.FileName != "audio-1.wav" || got.AudioURL != created[1].AudioURL {
			t.Errorf("получена запись %+v", got)
		}

		for _, id := range []string{"00000000-0000-0000-0000-000000000000", "not-a-uuid", ""} {
			if _, err := repo.GetByID(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetByID(%q): ожидалась ErrNotFound, получено %v", id, err)
			}
		}
	})

	t.Run("FileNames", func(t *testing.T) {
		names, err := repo.FileNames(ctx)
		if err != nil {
			t.Fatalf("FileNames: %v", err)
		}
		for _, a := range created {
			if _, ok := names[a.FileName]; !ok {
				t.Errorf("имя %s отсутствует", a.FileName)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, created[0].ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := repo.GetByID(ctx, created[0].ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("после удаления ожидалась ErrNotFound, получено %v", err)
		}
		if err := repo.Delete(ctx, created[0].ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("повторное удаление: ожидалась ErrNotFound, получено %v", err)
		}
		if err := repo.Delete(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
			t.Errorf("удаление некорректного ID: ожидалась ErrNotFound, получено %v", err)
		}

		list, _ := repo.List(ctx)
		if len(list) != 2 || list[0].ID != created[1].ID {
			t.Errorf("после удаления список = %+v", list)
		}
	})
}
