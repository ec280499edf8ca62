package sweep

import (
	"context"
	"time"

	"fleetd/internal/logs"
)

// Task — периодическая фоновая задача. Ошибка логируется и ждёт
// следующего тика; задачи независимы — отказ одной не блокирует другие.
type Task struct {
	Name  string
	Every time.Duration
	Run   func() error
}

type Runner struct{ tasks []Task }

func NewRunner(tasks ...Task) *Runner { return &Runner{tasks: tasks} }

// Start — по горутине на задачу; первый прогон сразу, дальше по тикеру.
// Останавливается отменой ctx.
func (r *Runner) Start(ctx context.Context) {
	for _, t := range r.tasks {
		go r.loop(ctx, t)
	}
}

func (r *Runner) loop(ctx context.Context, t Task) {
	run := func() {
		defer func() {
			if rec := recover(); rec != nil {
				logs.Logger.Errorf("sweep %s: panic: %v", t.Name, rec)
			}
		}()
		if err := t.Run(); err != nil {
			logs.Logger.Warnf("sweep %s: %v (retry on next tick)", t.Name, err)
		}
	}

	run()
	tick := time.NewTicker(t.Every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			run()
		}
	}
}
