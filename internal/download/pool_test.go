package download

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"surveydialer/internal/tracker"
)

type scriptedFetcher struct {
	mu    sync.Mutex
	calls int
	// fail makes the first n calls error out.
	fail int
	data []byte
}

func (f *scriptedFetcher) DownloadRecording(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return nil, errors.New("provider hiccup")
	}
	return f.data, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestPool(t *testing.T, fetch Fetcher) *Pool {
	t.Helper()
	p, err := NewPool(Config{
		Dir:            t.TempDir(),
		Workers:        1,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		SweepRetries:   2,
	}, fetch, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestFullCallArtifactWritten(t *testing.T) {
	fetch := &scriptedFetcher{data: make([]byte, 2048)}
	p := newTestPool(t, fetch)

	p.run(context.Background(), FullCallTask("https://api.example.test/rec/1", "conv-1"), p.cfg.MaxRetries)

	path := filepath.Join(p.cfg.Dir, "full_calls", "full_call_conv-1.wav")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if len(data) != 2048 {
		t.Fatalf("artifact is %d bytes", len(data))
	}
}

func TestStepArtifactPath(t *testing.T) {
	fetch := &scriptedFetcher{data: make([]byte, 600)}
	p := newTestPool(t, fetch)
	sr := tracker.StepRecording{StepID: "device_type", ConversationUUID: "conv-9"}

	p.run(context.Background(), StepTask("https://api.example.test/rec/2", sr), p.cfg.MaxRetries)

	path := filepath.Join(p.cfg.Dir, "survey_steps", "step_device_type_conv-9.wav")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("step artifact not written: %v", err)
	}
}

func TestSizeThresholdIsExclusive(t *testing.T) {
	// Exactly at the threshold is still a fragment.
	fetch := &scriptedFetcher{data: make([]byte, fullCallMinBytes)}
	p := newTestPool(t, fetch)

	p.run(context.Background(), FullCallTask("u", "conv-1"), p.cfg.MaxRetries)

	if p.FailedCount() != 1 {
		t.Fatalf("threshold-sized artifact accepted, failed=%d", p.FailedCount())
	}

	fetch2 := &scriptedFetcher{data: make([]byte, fullCallMinBytes+1)}
	p2 := newTestPool(t, fetch2)
	p2.run(context.Background(), FullCallTask("u", "conv-2"), p2.cfg.MaxRetries)
	if p2.FailedCount() != 0 {
		t.Fatal("threshold+1 artifact rejected")
	}
}

func TestRetriesWithinBudget(t *testing.T) {
	fetch := &scriptedFetcher{fail: 2, data: make([]byte, 2048)}
	p := newTestPool(t, fetch)

	p.run(context.Background(), FullCallTask("u", "conv-1"), p.cfg.MaxRetries)

	if got := fetch.callCount(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	if p.FailedCount() != 0 {
		t.Fatal("task parked despite eventual success")
	}
}

func TestExhaustedBudgetParksTask(t *testing.T) {
	fetch := &scriptedFetcher{fail: 100}
	p := newTestPool(t, fetch)

	p.run(context.Background(), FullCallTask("u", "conv-1"), p.cfg.MaxRetries)

	if got := fetch.callCount(); got != p.cfg.MaxRetries {
		t.Fatalf("calls = %d, want %d", got, p.cfg.MaxRetries)
	}
	if p.FailedCount() != 1 {
		t.Fatalf("failed = %d, want 1", p.FailedCount())
	}
}

func TestRetryFailedRecovers(t *testing.T) {
	fetch := &scriptedFetcher{fail: 3, data: make([]byte, 2048)}
	p := newTestPool(t, fetch)
	p.run(context.Background(), FullCallTask("u", "conv-1"), p.cfg.MaxRetries)
	if p.FailedCount() != 1 {
		t.Fatal("task should be parked")
	}

	recovered, abandoned := p.RetryFailed(context.Background())

	if recovered != 1 || abandoned != 0 {
		t.Fatalf("recovered=%d abandoned=%d", recovered, abandoned)
	}
	if p.FailedCount() != 0 {
		t.Fatal("failed list not drained")
	}
}

func TestRetryFailedAbandonsAfterBudget(t *testing.T) {
	fetch := &scriptedFetcher{fail: 100}
	p := newTestPool(t, fetch)
	p.run(context.Background(), FullCallTask("u", "conv-1"), p.cfg.MaxRetries)

	recovered, abandoned := p.RetryFailed(context.Background())

	if recovered != 0 || abandoned != 1 {
		t.Fatalf("recovered=%d abandoned=%d", recovered, abandoned)
	}
	if p.FailedCount() != 0 {
		t.Fatal("abandoned task should not return to the failed list")
	}
}

func TestShutdownDrainsWorkers(t *testing.T) {
	fetch := &scriptedFetcher{data: make([]byte, 2048)}
	p := newTestPool(t, fetch)

	p.Start(context.Background())
	p.Enqueue(FullCallTask("u", "conv-1"))
	p.Shutdown()

	if fetch.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", fetch.callCount())
	}
	path := filepath.Join(p.cfg.Dir, "full_calls", "full_call_conv-1.wav")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact not written before shutdown: %v", err)
	}
}

func TestCanceledContextStopsWorkers(t *testing.T) {
	fetch := &scriptedFetcher{}
	p := newTestPool(t, fetch)
	ctx, cancel := context.WithCancel(context.Background())

	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop on cancellation")
	}
}

func TestShutdownAfterCancelReturns(t *testing.T) {
	fetch := &scriptedFetcher{}
	p := newTestPool(t, fetch)
	ctx, cancel := context.WithCancel(context.Background())

	p.Start(ctx)
	cancel()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop on cancellation")
	}

	// Backlog the queue to capacity so a blind sentinel send would block.
	for i := 0; i < cap(p.tasks); i++ {
		p.tasks <- FullCallTask("u", "conv-1")
	}

	returned := make(chan struct{})
	go func() {
		p.Shutdown()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown hung after context cancellation")
	}
}

func TestBackoffDoubles(t *testing.T) {
	p := newTestPool(t, &scriptedFetcher{})
	p.cfg.InitialBackoff = time.Second

	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		if got := p.backoff(i + 1); got != want {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, want)
		}
	}
}
