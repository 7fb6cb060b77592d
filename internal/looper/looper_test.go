package looper

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostRunsInFIFOOrder(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(10)

	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}

	waitOrTimeout(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestPostFromMultipleGoroutines(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Stop()

	var counter int64
	var wg sync.WaitGroup
	const posters, perPoster = 8, 50
	wg.Add(posters * perPoster)

	for g := 0; g < posters; g++ {
		go func() {
			for i := 0; i < perPoster; i++ {
				l.Post(func() {
					atomic.AddInt64(&counter, 1)
					wg.Done()
				})
			}
		}()
	}

	waitOrTimeout(t, &wg)
	require.Equal(t, int64(posters*perPoster), atomic.LoadInt64(&counter))
}

func TestStopDrainsOutstandingCallbacks(t *testing.T) {
	l := New()

	var ran int32
	for i := 0; i < 5; i++ {
		l.Post(func() { atomic.AddInt32(&ran, 1) })
	}

	go l.Run()
	l.Stop()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&ran) < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, int32(5), atomic.LoadInt32(&ran))
}

func TestMainLooperIsFirstConstructed(t *testing.T) {
	// Main() is process-global; only assert the invariant holds for
	// whichever looper already won the race in this test binary.
	m, err := Main()
	require.NoError(t, err)
	require.NotNil(t, m)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callbacks to run")
	}
}
