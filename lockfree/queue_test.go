package lockfree

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_fifo(t *testing.T) {
	q := NewQueue[int]()
	assert.True(t, q.IsEmpty())
	_, ok := q.TryDequeue()
	assert.False(t, ok)

	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}
	assert.False(t, q.IsEmpty())
	assert.Equal(t, 10, q.Len())
	assert.Equal(t, 0, q.Peek())

	for i := 0; i < 10; i++ {
		v, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_emptyPanics(t *testing.T) {
	q := NewQueue[string]()
	assert.PanicsWithValue(t, `lockfree: queue: dequeue from empty queue`, func() { q.Dequeue() })
	assert.PanicsWithValue(t, `lockfree: queue: peek at empty queue`, func() { q.Peek() })
	// still usable after the panics
	q.Enqueue(`a`)
	assert.Equal(t, `a`, q.Dequeue())
}

func TestQueue_recyclesNodes(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 4; i++ {
		q.Enqueue(i)
	}
	for i := 0; i < 4; i++ {
		q.Dequeue()
	}
	allocs := testing.AllocsPerRun(100, func() {
		q.Enqueue(1)
		q.Dequeue()
	})
	assert.Zero(t, allocs)
}

func TestQueue_concurrentMultiset(t *testing.T) {
	const (
		producers = 6
		consumers = 4
		perWriter = 5000
	)
	type item struct {
		producer int
		seq      int
	}

	q := NewQueue[item]()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([][]item, consumers)
		done    = make(chan struct{})
	)

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				q.Enqueue(item{producer: p, seq: i})
			}
		}()
	}

	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			var local []item
			for {
				v, ok := q.TryDequeue()
				if ok {
					local = append(local, v)
					continue
				}
				select {
				case <-done:
					if q.IsEmpty() {
						mu.Lock()
						results[c] = local
						mu.Unlock()
						return
					}
				default:
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	cwg.Wait()

	counts := make([]int, producers)
	for _, local := range results {
		// each consumer observes each producer's items in production order
		last := make([]int, producers)
		for i := range last {
			last[i] = -1
		}
		for _, v := range local {
			require.Greater(t, v.seq, last[v.producer])
			last[v.producer] = v.seq
			counts[v.producer]++
		}
	}
	for p, n := range counts {
		assert.Equal(t, perWriter, n, `producer %d`, p)
	}
}

func TestQueue_singleProducerOrder(t *testing.T) {
	q := NewQueue[int]()
	var got []int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for len(got) < 1000 {
			if v, ok := q.TryDequeue(); ok {
				got = append(got, v)
			}
		}
	}()
	for i := 0; i < 1000; i++ {
		q.Enqueue(i)
	}
	wg.Wait()
	assert.True(t, sort.IntsAreSorted(got))
}
