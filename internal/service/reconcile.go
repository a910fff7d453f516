// reconcile.go — сервис сверки Blob Store с Metadata Store.
//
// Обнаруживает проблемы:
//   - orphaned_file: файл на диске без записи (например, после сбоя записи метаданных)
//   - missing_file: запись, файл которой отсутствует на диске
//
// Записи никогда не удаляются. Осиротевшие файлы удаляются только при
// включённом AS_RECONCILE_REMOVE_ORPHANS и если они старше AS_RECONCILE_GRACE.
// Запускается как горутина с периодическим тикером и по запросу.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goaudiostore/internal/api/middleware"
	"github.com/bigkaa/goaudiostore/internal/repository"
	"github.com/bigkaa/goaudiostore/internal/storage/blobstore"
)

// Prometheus метрики сверки
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "as_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	reconcileRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_reconcile_removed_files_total",
		Help: "Общее количество осиротевших файлов, удалённых сверкой",
	})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "as_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// IssueType — тип проблемы, найденной сверкой.
type IssueType string

// Типы проблем.
const (
	IssueOrphanedFile IssueType = "orphaned_file"
	IssueMissingFile  IssueType = "missing_file"
)

// ReconcileIssue — одна найденная проблема.
type ReconcileIssue struct {
	Type        IssueType `json:"type"`
	FileName    string    `json:"fileName"`
	ID          string    `json:"id,omitempty"`
	Description string    `json:"description"`
	Removed     bool      `json:"removed,omitempty"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	OrphanedFiles int `json:"orphanedFiles"`
	MissingFiles  int `json:"missingFiles"`
	RemovedFiles  int `json:"removedFiles"`
	Ok            int `json:"ok"`
}

// ReconcileReport — результат одного прохода сверки.
type ReconcileReport struct {
	StartedAt      time.Time        `json:"startedAt"`
	CompletedAt    time.Time        `json:"completedAt"`
	BlobsChecked   int              `json:"blobsChecked"`
	RecordsChecked int              `json:"recordsChecked"`
	Issues         []ReconcileIssue `json:"issues"`
	Summary        ReconcileSummary `json:"summary"`
}

// ReconcileOptions — параметры сверки.
type ReconcileOptions struct {
	// Interval — период фонового запуска (0 — только по запросу)
	Interval time.Duration
	// Grace — минимальный возраст осиротевшего файла для удаления
	Grace time.Duration
	// RemoveOrphans — удалять ли осиротевшие файлы
	RemoveOrphans bool
}

// ReconcileService — сервис сверки хранилищ.
type ReconcileService struct {
	repo   repository.AudioRepository
	store  *blobstore.BlobStore
	opts   ReconcileOptions
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	repo repository.AudioRepository,
	store *blobstore.BlobStore,
	opts ReconcileOptions,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		repo:   repo,
		store:  store,
		opts:   opts,
		now:    time.Now,
		logger: logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину сверки. При Interval == 0 ничего не делает.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.opts.Interval <= 0 {
		rs.logger.Info("Фоновая сверка отключена")
		return
	}

	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Фоновая сверка запущена",
		slog.String("interval", rs.opts.Interval.String()),
		slog.Bool("remove_orphans", rs.opts.RemoveOrphans),
	)
}

// Stop останавливает фоновую сверку и ждёт завершения горутины.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Фоновая сверка остановлена")
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(ctx); err != nil {
				rs.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один проход сверки.
// Если сверка уже выполняется, возвращает (nil, true, nil).
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileReport, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := rs.now().UTC()
	rs.logger.Info("Сверка начата")

	report, err := rs.reconcile(ctx)
	if err != nil {
		return nil, false, err
	}

	report.StartedAt = startedAt
	report.CompletedAt = rs.now().UTC()
	duration := report.CompletedAt.Sub(startedAt)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}
	reconcileRemovedTotal.Add(float64(report.Summary.RemovedFiles))
	middleware.AudiosTotal.Set(float64(report.RecordsChecked))

	rs.logger.Info("Сверка завершена",
		slog.Int("blobs_checked", report.BlobsChecked),
		slog.Int("records_checked", report.RecordsChecked),
		slog.Int("orphaned_files", report.Summary.OrphanedFiles),
		slog.Int("missing_files", report.Summary.MissingFiles),
		slog.Int("removed_files", report.Summary.RemovedFiles),
		slog.Duration("duration", duration),
	)

	return report, false, nil
}

// reconcile сравнивает содержимое хранилищ.
// Файлы перечисляются до записей: файл, зарегистрированный между
// двумя чтениями, не попадёт в orphaned_file.
func (rs *ReconcileService) reconcile(ctx context.Context) (*ReconcileReport, error) {
	blobs, err := rs.store.List()
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления файлов: %w", err)
	}
	records, err := rs.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей: %w", err)
	}

	report := &ReconcileReport{
		BlobsChecked:   len(blobs),
		RecordsChecked: len(records),
		Issues:         make([]ReconcileIssue, 0),
	}

	blobSet := make(map[string]blobstore.BlobInfo, len(blobs))
	for _, b := range blobs {
		blobSet[b.Name] = b
	}
	recordSet := make(map[string]struct{}, len(records))
	for _, rec := range records {
		recordSet[rec.FileName] = struct{}{}
	}

	// 1. Записи без файла (missing_file)
	for _, rec := range records {
		if _, ok := blobSet[rec.FileName]; ok {
			continue
		}
		// Файл мог появиться после перечисления
		if rs.store.Exists(rec.FileName) {
			continue
		}
		report.Issues = append(report.Issues, ReconcileIssue{
			Type:        IssueMissingFile,
			FileName:    rec.FileName,
			ID:          rec.ID,
			Description: "Запись без файла на диске",
		})
		report.Summary.MissingFiles++
	}

	// 2. Файлы без записи (orphaned_file)
	var orphans []blobstore.BlobInfo
	for _, b := range blobs {
		if _, ok := recordSet[b.Name]; !ok {
			orphans = append(orphans, b)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Name < orphans[j].Name })

	var fresh map[string]struct{}
	for _, b := range orphans {
		issue := ReconcileIssue{
			Type:        IssueOrphanedFile,
			FileName:    b.Name,
			Description: "Файл на диске без записи",
		}

		if rs.opts.RemoveOrphans && rs.now().Sub(b.ModTime) >= rs.opts.Grace {
			// Перед удалением перечитываем актуальный набор имён
			if fresh == nil {
				if fresh, err = rs.repo.FileNames(ctx); err != nil {
					return nil, fmt.Errorf("ошибка получения имён файлов: %w", err)
				}
			}
			if _, registered := fresh[b.Name]; registered {
				continue
			}
			if rmErr := rs.store.Remove(b.Name); rmErr != nil {
				rs.logger.Warn("Не удалось удалить осиротевший файл",
					slog.String("file_name", b.Name),
					slog.String("error", rmErr.Error()),
				)
			} else {
				issue.Removed = true
				report.Summary.RemovedFiles++
				rs.logger.Info("Осиротевший файл удалён", slog.String("file_name", b.Name))
			}
		}

		report.Issues = append(report.Issues, issue)
		report.Summary.OrphanedFiles++
	}

	report.Summary.Ok = len(records) - report.Summary.MissingFiles
	return report, nil
}
