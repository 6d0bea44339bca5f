// Package reaper периодически удаляет истёкшие ссылки.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/Totarae/shortlink/internal/metrics"
	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// DefaultSchedule ежедневно в полночь UTC (формат с секундами).
const DefaultSchedule = "0 0 0 * * *"

// Sweeper удаляет записи, истёкшие к моменту now, и возвращает их число.
type Sweeper interface {
	Reap(ctx context.Context, now time.Time) (int64, error)
}

type Reaper struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// Option настраивает Reaper.
type Option func(*Reaper)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

// WithTimeout ограничивает длительность одного прохода.
func WithTimeout(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func New(sweeper Sweeper, schedule string, logger *zap.Logger, opts ...Option) *Reaper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reaper{
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  30 * time.Second,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateSchedule проверяет cron-выражение.
func ValidateSchedule(spec string) error {
	_, err := cron.Parse(spec)
	return err
}

// Start запускает проходы по расписанию. Повторный вызов ничего не делает.
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	c := cron.NewWithLocation(time.UTC)
	if err := c.AddFunc(r.schedule, r.RunOnce); err != nil {
		return err
	}
	c.Start()

	r.cron = c
	r.running = true
	r.logger.Info("Чистка истёкших ссылок запущена", zap.String("schedule", r.schedule))
	return nil
}

// Stop останавливает расписание. Уже начатый проход не прерывается.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.cron.Stop()
	r.cron = nil
	r.running = false
	r.logger.Info("Чистка истёкших ссылок остановлена")
}

// Reap выполняет один проход относительно момента now.
func (r *Reaper) Reap(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	deleted, err := r.sweeper.Reap(ctx, now.UTC())
	if err != nil {
		metrics.ReaperRuns.WithLabelValues("error").Inc()
		r.logger.Error("Ошибка чистки истёкших ссылок", zap.Error(err))
		return 0, err
	}

	metrics.ReaperRuns.WithLabelValues("ok").Inc()
	r.logger.Info("Чистка истёкших ссылок завершена",
		zap.Int64("deleted", deleted),
		zap.Duration("took", time.Since(started)),
	)
	return deleted, nil
}

// RunOnce проход по текущему времени. Ошибки и паники только логируются,
// чтобы сбой хранилища не остановил планировщик.
func (r *Reaper) RunOnce() {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.ReaperRuns.WithLabelValues("error").Inc()
			r.logger.Error("Паника при чистке истёкших ссылок", zap.Any("panic", rec))
		}
	}()
	_, _ = r.Reap(context.Background(), r.now())
}
