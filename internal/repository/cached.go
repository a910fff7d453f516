package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных аудиозаписей.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных аудиозаписей.",
	})
)

// cachedAudioRepo — декоратор AudioRepository с LRU-кэшем GetByID.
// Записи неизменяемы, поэтому инвалидация нужна только при удалении.
//
// gen увеличивается до и после каждого Delete. GetByID кладёт прочитанную
// запись в кэш, только если gen не изменился с начала чтения: иначе
// параллельное удаление могло вернуть в кэш уже удалённую запись.
type cachedAudioRepo struct {
	next  AudioRepository
	cache *expirable.LRU[string, *model.AudioRecord]

	mu  sync.Mutex
	gen uint64
}

// NewCachedAudioRepository оборачивает репозиторий кэшем с указанным
// размером и TTL. При size <= 0 возвращает next без изменений.
func NewCachedAudioRepository(next AudioRepository, size int, ttl time.Duration) AudioRepository {
	if size <= 0 {
		return next
	}
	return &cachedAudioRepo{
		next:  next,
		cache: expirable.NewLRU[string, *model.AudioRecord](size, nil, ttl),
	}
}

func (r *cachedAudioRepo) Create(ctx context.Context, a *model.AudioRecord) error {
	if err := r.next.Create(ctx, a); err != nil {
		return err
	}
	r.cache.Add(a.ID, a.Clone())
	return nil
}

func (r *cachedAudioRepo) List(ctx context.Context) ([]*model.AudioRecord, error) {
	return r.next.List(ctx)
}

func (r *cachedAudioRepo) GetByID(ctx context.Context, id string) (*model.AudioRecord, error) {
	if a, ok := r.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		return a.Clone(), nil
	}
	cacheMissesTotal.Inc()

	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	a, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.gen == gen {
		r.cache.Add(id, a.Clone())
	}
	r.mu.Unlock()
	return a, nil
}

func (r *cachedAudioRepo) Delete(ctx context.Context, id string) error {
	// Сбрасываем кэш и до, и после обращения к хранилищу: чтение,
	// начатое в промежутке, не попадёт в кэш.
	r.invalidate(id)
	err := r.next.Delete(ctx, id)
	r.invalidate(id)
	return err
}

func (r *cachedAudioRepo) invalidate(id string) {
	r.mu.Lock()
	r.gen++
	r.cache.Remove(id)
	r.mu.Unlock()
}

func (r *cachedAudioRepo) FileNames(ctx context.Context) (map[string]struct{}, error) {
	return r.next.FileNames(ctx)
}
