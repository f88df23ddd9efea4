package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Config controls the task server.
type Config struct {
	RedisOpt    asynq.RedisConnOpt
	Concurrency int
	// Queues maps queue names to their priority weight.
	Queues          map[string]int
	ShutdownTimeout time.Duration
	Logger          zerolog.Logger
}

// Worker wraps an asynq server and its handler mux.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger zerolog.Logger
}

// NewWorker builds a worker. Handlers registered on it are instrumented.
func NewWorker(cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = map[string]int{"default": 1}
	}
	logger := cfg.Logger.With().Str("component", "worker").Logger()
	srv := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          cfg.Queues,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn().Err(err).Str("type", task.Type()).Int("retried", retried).Int("max_retry", maxRetry).Msg("task_failed")
		}),
	})
	mux := asynq.NewServeMux()
	mux.Use(Instrument(logger))
	return &Worker{server: srv, mux: mux, logger: logger}
}

// Handle registers fn for taskType.
func (w *Worker) Handle(taskType string, fn func(context.Context, *asynq.Task) error) {
	w.mux.HandleFunc(taskType, fn)
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Instrument logs and measures every handled task.
func Instrument(logger zerolog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			start := time.Now()
			id, _ := asynq.GetTaskID(ctx)
			err := next.ProcessTask(ctx, task)
			elapsed := time.Since(start)

			result := "ok"
			switch {
			case err == nil:
			case errors.Is(err, asynq.SkipRetry):
				result = "skipped"
			default:
				result = "retry"
			}
			observe(task.Type(), result, elapsed)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}
			evt.Str("task_id", id).Str("type", task.Type()).Str("result", result).
				Float64("duration_ms", float64(elapsed)/float64(time.Millisecond)).Msg("task_handled")
			return err
		})
	}
}

func observe(taskType, result string, d time.Duration) {
	if TasksProcessed != nil {
		TasksProcessed.WithLabelValues(taskType, result).Inc()
	}
	if TaskDuration != nil {
		TaskDuration.WithLabelValues(taskType).Observe(float64(d) / float64(time.Millisecond))
	}
}

type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
