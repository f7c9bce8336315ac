package portpool_test

import (
	"sync"
	"testing"

	"github.com/ExamTrust/ProctorGate/pkg/infra/portpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsUnusableRange(t *testing.T) {
	_, err := portpool.New(0, 100)
	assert.Error(t, err)

	_, err = portpool.New(5000, 4000)
	assert.Error(t, err)

	_, err = portpool.New(65000, 70000)
	assert.Error(t, err)
}

func TestPool_AcquireReturnsDistinctPorts(t *testing.T) {
	pool, err := portpool.New(40000, 40009)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		port, err := pool.Acquire()
		require.NoError(t, err)
		assert.False(t, seen[port], "port %d handed out twice", port)
		assert.GreaterOrEqual(t, port, 40000)
		assert.LessOrEqual(t, port, 40009)
		seen[port] = true
	}

	_, err = pool.Acquire()
	assert.ErrorIs(t, err, portpool.ErrExhausted)
}

func TestPool_ReleaseMakesPortAvailableAgain(t *testing.T) {
	pool, err := portpool.New(40000, 40000)
	require.NoError(t, err)

	port, err := pool.Acquire()
	require.NoError(t, err)

	_, err = pool.Acquire()
	require.ErrorIs(t, err, portpool.ErrExhausted)

	pool.Release(port)

	again, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, port, again)
}

func TestPool_ReleaseIsIdempotent(t *testing.T) {
	pool, err := portpool.New(40000, 40004)
	require.NoError(t, err)

	a, err := pool.Acquire()
	require.NoError(t, err)
	_, err = pool.Acquire()
	require.NoError(t, err)

	pool.Release(a)
	pool.Release(a)
	pool.Release(a)

	assert.Equal(t, 1, pool.InUse())
}

func TestPool_ReleaseOutOfRangeIsNoOp(t *testing.T) {
	pool, err := portpool.New(40000, 40004)
	require.NoError(t, err)

	_, err = pool.Acquire()
	require.NoError(t, err)

	pool.Release(1)
	pool.Release(50000)

	assert.Equal(t, 1, pool.InUse())
}

func TestPool_ConcurrentAcquireNeverDoubleBinds(t *testing.T) {
	const size = 100
	pool, err := portpool.New(41000, 41000+size-1)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[int]int)
	var wg sync.WaitGroup

	for i := 0; i < size*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := pool.Acquire()
			if err != nil {
				return
			}
			mu.Lock()
			seen[port]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, size)
	for port, count := range seen {
		assert.Equal(t, 1, count, "port %d bound %d times", port, count)
	}
	assert.Equal(t, size, pool.InUse())
}

func TestPool_AcquireReleaseCycleLeaksNothing(t *testing.T) {
	pool, err := portpool.New(42000, 42009)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		port, err := pool.Acquire()
		require.NoError(t, err)
		pool.Release(port)
	}

	assert.Equal(t, 0, pool.InUse())
}
