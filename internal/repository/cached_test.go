package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// countingRepo считает обращения к GetByID нижележащего репозитория.
type countingRepo struct {
	AudioRepository
	gets int
}

func (r *countingRepo) GetByID(ctx context.Context, id string) (*model.AudioRecord, error) {
	r.gets++
	return r.AudioRepository.GetByID(ctx, id)
}

// stallingRepo задерживает ответ GetByID после чтения из хранилища.
type stallingRepo struct {
	AudioRepository
	read    chan struct{}
	release chan struct{}
}

func (r *stallingRepo) GetByID(ctx context.Context, id string) (*model.AudioRecord, error) {
	a, err := r.AudioRepository.GetByID(ctx, id)
	if r.read != nil {
		close(r.read)
		r.read = nil
		<-r.release
	}
	return a, err
}

// TestCachedAudioRepository проверяет общий контракт через кэш.
func TestCachedAudioRepository(t *testing.T) {
	runAudioRepositoryContract(t, NewCachedAudioRepository(NewMemoryAudioRepository(), 100, time.Minute))
}

// TestCachedAudioRepository_Hit проверяет, что повторный GetByID не идёт в хранилище.
func TestCachedAudioRepository_Hit(t *testing.T) {
	inner := &countingRepo{AudioRepository: NewMemoryAudioRepository()}
	repo := NewCachedAudioRepository(inner, 10, time.Minute)
	ctx := context.Background()

	a := &model.AudioRecord{FileName: "a.wav"}
	if err := inner.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := repo.GetByID(ctx, a.ID); err != nil {
			t.Fatalf("GetByID: %v", err)
		}
	}
	if inner.gets != 1 {
		t.Errorf("ожидалось 1 обращение к хранилищу, получено %d", inner.gets)
	}
}

// TestCachedAudioRepository_CreateWarmsCache проверяет заполнение кэша при Create.
func TestCachedAudioRepository_CreateWarmsCache(t *testing.T) {
	inner := &countingRepo{AudioRepository: NewMemoryAudioRepository()}
	repo := NewCachedAudioRepository(inner, 10, time.Minute)
	ctx := context.Background()

	a := &model.AudioRecord{FileName: "a.wav"}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetByID(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if inner.gets != 0 {
		t.Errorf("ожидался hit после Create, обращений к хранилищу: %d", inner.gets)
	}
}

// TestCachedAudioRepository_DeleteInvalidates проверяет инвалидацию при удалении.
func TestCachedAudioRepository_DeleteInvalidates(t *testing.T) {
	repo := NewCachedAudioRepository(NewMemoryAudioRepository(), 10, time.Minute)
	ctx := context.Background()

	a := &model.AudioRecord{FileName: "a.wav"}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetByID(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetByID(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("после удаления ожидалась ErrNotFound, получено %v", err)
	}
}

// TestCachedAudioRepository_TTL проверяет истечение записи кэша.
func TestCachedAudioRepository_TTL(t *testing.T) {
	inner := &countingRepo{AudioRepository: NewMemoryAudioRepository()}
	repo := NewCachedAudioRepository(inner, 10, 50*time.Millisecond)
	ctx := context.Background()

	a := &model.AudioRecord{FileName: "a.wav"}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := repo.GetByID(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if inner.gets != 1 {
		t.Errorf("после TTL ожидался miss, обращений к хранилищу: %d", inner.gets)
	}
}

// TestCachedAudioRepository_Disabled проверяет, что size=0 отключает кэш.
func TestCachedAudioRepository_Disabled(t *testing.T) {
	inner := NewMemoryAudioRepository()
	if repo := NewCachedAudioRepository(inner, 0, time.Minute); repo != inner {
		t.Error("при size=0 ожидался исходный репозиторий")
	}
}

// TestCachedAudioRepository_DeleteDuringRead проверяет, что чтение,
// завершившееся после удаления, не возвращает запись в кэш.
func TestCachedAudioRepository_DeleteDuringRead(t *testing.T) {
	inner := &stallingRepo{
		AudioRepository: NewMemoryAudioRepository(),
		read:            make(chan struct{}),
		release:         make(chan struct{}),
	}
	repo := NewCachedAudioRepository(inner, 10, time.Minute)
	ctx := context.Background()

	a := &model.AudioRecord{FileName: "a.wav"}
	if err := inner.AudioRepository.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	read := inner.read
	done := make(chan error, 1)
	go func() {
		_, err := repo.GetByID(ctx, a.ID)
		done <- err
	}()

	<-read
	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	close(inner.release)
	if err := <-done; err != nil {
		t.Fatalf("GetByID в процессе удаления: %v", err)
	}

	if _, err := repo.GetByID(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("после удаления ожидалась ErrNotFound, получено %v", err)
	}
}
