package ringbuf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	b := New[int](4)
	var wg sync.WaitGroup
	wg.Add(1)
	var got []int
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			v, ok := b.Pop()
			require.True(t, ok)
			got = append(got, v)
		}
	}()
	for i := 1; i <= 10; i++ {
		require.True(t, b.Push(i))
	}
	wg.Wait()
	for i, v := range got {
		assert.Equal(t, i+1, v)
	}
}

func TestPushOverwriteDropsOldest(t *testing.T) {
	const cap = 4
	const extra = 3
	b := New[int](cap)
	for i := 1; i <= cap+extra; i++ {
		b.PushOverwrite(i)
	}
	assert.Equal(t, cap, b.Len())
	for i := extra + 1; i <= cap+extra; i++ {
		v, ok := b.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := b.TryPop()
	assert.False(t, ok)
}

func TestPushBlocksWhileFull(t *testing.T) {
	b := New[int](1)
	require.True(t, b.Push(1))

	done := make(chan struct{})
	go func() {
		b.Push(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("push should have blocked while buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after pop freed capacity")
	}
}

func TestCloseDrainsThenReturnsFalse(t *testing.T) {
	b := New[int](4)
	require.True(t, b.Push(1))
	require.True(t, b.Push(2))
	b.Close()
	b.Close() // idempotent

	v, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = b.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = b.Pop()
	assert.False(t, ok)
}

func TestCloseUnblocksPendingPop(t *testing.T) {
	b := New[int](4)
	done := make(chan bool)
	go func() {
		_, ok := b.Pop()
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	b.Close()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after close")
	}
}

func TestClearEmptiesWithoutClosing(t *testing.T) {
	b := New[int](4)
	b.Push(1)
	b.Push(2)
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Closed())
}
