package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"surveydialer/internal/metrics"
)

const (
	fullCallDir = "full_calls"
	stepDir     = "survey_steps"
)

// Fetcher fetches the raw artifact bytes; the voice client satisfies it.
type Fetcher interface {
	DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error)
}

type Config struct {
	// Dir is the download root; full_calls/ and survey_steps/ live under it.
	Dir string

	Workers int

	// MaxRetries is the per-task attempt budget while the task is live on
	// the queue.
	MaxRetries int

	// InitialBackoff doubles on every failed attempt.
	InitialBackoff time.Duration

	// SweepRetries is the attempt budget RetryFailed gives each failed task.
	SweepRetries int
}

type Pool struct {
	cfg   Config
	fetch Fetcher
	log   *slog.Logger

	tasks chan Task
	wg    sync.WaitGroup

	// done closes once every worker has exited, whether by sentinel or by
	// context cancellation.
	done chan struct{}

	mu     sync.Mutex
	failed []Task

	sleep func(ctx context.Context, d time.Duration) error
}

func NewPool(cfg Config, fetch Fetcher, log *slog.Logger) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.SweepRetries <= 0 {
		cfg.SweepRetries = 2
	}
	if log == nil {
		log = slog.Default()
	}
	for _, sub := range []string{fullCallDir, stepDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("download: create %s dir: %w", sub, err)
		}
	}
	return &Pool{
		cfg:   cfg,
		fetch: fetch,
		log:   log,
		tasks: make(chan Task, 64),
		done:  make(chan struct{}),
		sleep: sleepCtx,
	}, nil
}

// Start launches the worker goroutines. They run until Shutdown delivers a
// sentinel per worker or ctx is canceled, whichever comes first.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
}

// Enqueue hands one task to the pool. It never blocks the webhook path: when
// the queue is full the task goes straight to the failed list for a later
// sweep.
func (p *Pool) Enqueue(task Task) {
	select {
	case p.tasks <- task:
	default:
		p.log.Warn("download queue full, deferring task",
			"kind", task.Kind, "conversation_uuid", task.ConversationUUID)
		p.park(task)
	}
}

// Shutdown sends one sentinel per worker and waits for them to drain. When
// the workers already exited on a canceled context the sends are skipped, so
// Shutdown returns even with a backlogged queue.
func (p *Pool) Shutdown() {
	for i := 0; i < p.cfg.Workers; i++ {
		select {
		case p.tasks <- Task{}:
		case <-p.done:
			return
		}
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		// The pop watches ctx so shutdown works even when the queue is
		// empty and no sentinel will ever arrive.
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			if task.Kind == "" {
				return
			}
			p.run(ctx, task, p.cfg.MaxRetries)
		}
	}
}

// run drives one task through its attempt budget. Exhausted tasks land on
// the failed list with their attempt counter reset for the sweep.
func (p *Pool) run(ctx context.Context, task Task, budget int) {
	for task.attempts < budget {
		if task.attempts > 0 {
			metrics.IncDownloadRetries()
			if err := p.sleep(ctx, p.backoff(task.attempts)); err != nil {
				p.park(task)
				return
			}
		}
		err := p.attempt(ctx, task)
		if err == nil {
			metrics.IncDownload(string(task.Kind), "success")
			return
		}
		task.attempts++
		p.log.Warn("recording download attempt failed",
			"kind", task.Kind,
			"conversation_uuid", task.ConversationUUID,
			"attempt", task.attempts,
			"err", err)
		if ctx.Err() != nil {
			break
		}
	}

	metrics.IncDownload(string(task.Kind), "failed")
	task.attempts = 0
	p.park(task)
}

func (p *Pool) attempt(ctx context.Context, task Task) error {
	start := time.Now()
	data, err := p.fetch.DownloadRecording(ctx, task.RecordingURL)
	if err != nil {
		return err
	}
	if len(data) <= task.minBytes() {
		return fmt.Errorf("download: artifact is %d bytes, need more than %d", len(data), task.minBytes())
	}

	path := filepath.Join(p.cfg.Dir, task.relPath())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("download: write artifact: %w", err)
	}
	metrics.ObserveDownloadDuration(time.Since(start))
	p.log.Info("recording saved",
		"kind", task.Kind,
		"conversation_uuid", task.ConversationUUID,
		"path", path,
		"bytes", len(data))
	return nil
}

// RetryFailed sweeps the failed list once, giving each task the sweep
// budget. Tasks that still fail are dropped after a final log line carrying
// enough context to fetch the artifact by hand.
func (p *Pool) RetryFailed(ctx context.Context) (recovered, abandoned int) {
	p.mu.Lock()
	pending := p.failed
	p.failed = nil
	p.mu.Unlock()

	for _, task := range pending {
		if err := p.retryOnce(ctx, task); err != nil {
			abandoned++
			p.log.Error("recording permanently failed",
				"kind", task.Kind,
				"conversation_uuid", task.ConversationUUID,
				"step", task.Step.StepID,
				"recording_url", task.RecordingURL,
				"err", err)
			continue
		}
		recovered++
		metrics.IncDownload(string(task.Kind), "success")
	}
	return recovered, abandoned
}

func (p *Pool) retryOnce(ctx context.Context, task Task) error {
	var err error
	for attempt := 0; attempt < p.cfg.SweepRetries; attempt++ {
		if attempt > 0 {
			metrics.IncDownloadRetries()
			if serr := p.sleep(ctx, p.backoff(attempt)); serr != nil {
				return serr
			}
		}
		if err = p.attempt(ctx, task); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// FailedCount reports how many tasks await the next sweep.
func (p *Pool) FailedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failed)
}

func (p *Pool) park(task Task) {
	p.mu.Lock()
	p.failed = append(p.failed, task)
	p.mu.Unlock()
}

func (p *Pool) backoff(attempt int) time.Duration {
	return p.cfg.InitialBackoff * (1 << (attempt - 1))
}

// sleepCtx is a cancellation-aware sleep.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
