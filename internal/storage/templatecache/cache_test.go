package templatecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brightleaf/certforge/internal/common"
)

type fakeDistLock struct {
	mu      sync.Mutex
	holders map[string]bool
}

func newFakeDistLock() *fakeDistLock {
	return &fakeDistLock{holders: make(map[string]bool)}
}

func (l *fakeDistLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[key] {
		return false, nil
	}
	l.holders[key] = true
	return true, nil
}

func (l *fakeDistLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holders, key)
	return nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), time.Hour, common.NewLogger("error"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestCache_FetchesOnceOnMiss(t *testing.T) {
	c := newTestCache(t)
	var calls int32

	fetch := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("template-bytes"), nil
	}

	data, err := c.Get(context.Background(), "tmpl-1", fetch)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "template-bytes" {
		t.Fatalf("unexpected data: %s", data)
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch call, got %d", calls)
	}

	// second call hits memory, must not fetch again
	if _, err := c.Get(context.Background(), "tmpl-1", fetch); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected fetch still called once, got %d", calls)
	}
}

func TestCache_SingleFlightCoalescesConcurrentFetches(t *testing.T) {
	c := newTestCache(t)
	var calls int32

	start := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-start
		return []byte("coalesced"), nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([][]byte, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "tmpl-shared", fetch)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Get[%d] failed: %v", i, errs[i])
		}
		if string(results[i]) != "coalesced" {
			t.Fatalf("Get[%d] unexpected data: %s", i, results[i])
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 fetch across %d concurrent callers, got %d", n, calls)
	}
}

func TestCache_PropagatesFetchError(t *testing.T) {
	c := newTestCache(t)
	wantErr := errors.New("download failed")

	_, err := c.Get(context.Background(), "tmpl-err", func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestCache_SurvivesRestartViaDiskTier(t *testing.T) {
	dir := t.TempDir()
	logger := common.NewLogger("error")

	c1, err := New(dir, time.Hour, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := c1.Get(context.Background(), "tmpl-persist", func(ctx context.Context) ([]byte, error) {
		return []byte("persisted"), nil
	}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// fresh cache instance, same disk directory: no memory tier warm, must
	// read through to disk instead of calling fetch again
	c2, err := New(dir, time.Hour, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data, err := c2.Get(context.Background(), "tmpl-persist", func(ctx context.Context) ([]byte, error) {
		t.Fatal("fetch should not be called when disk tier has a fresh entry")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "persisted" {
		t.Fatalf("unexpected data: %s", data)
	}
}

func TestCache_DistLockSecondInstanceReadsPeerDiskEntry(t *testing.T) {
	dir := t.TempDir()
	logger := common.NewLogger("error")
	lock := newFakeDistLock()

	c1, err := New(dir, time.Hour, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c1.WithDistLock(lock, time.Second)

	if _, err := c1.Get(context.Background(), "tmpl-dist", func(ctx context.Context) ([]byte, error) {
		return []byte("from-process-one"), nil
	}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// A second, memory-cold cache instance sharing the same disk directory
	// and lock must read the first process's disk entry instead of
	// re-fetching, because Get consults the disk tier before it ever
	// touches the distributed lock.
	c2, err := New(dir, time.Hour, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c2.WithDistLock(lock, time.Second)

	data, err := c2.Get(context.Background(), "tmpl-dist", func(ctx context.Context) ([]byte, error) {
		t.Fatal("fetch should not be called when another process already populated the disk tier")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "from-process-one" {
		t.Fatalf("unexpected data: %s", data)
	}
}
