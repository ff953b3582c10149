package cache

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/shelf/internal/content"
)

func kids(texts ...string) []content.Child {
	out := make([]content.Child, len(texts))
	for i, s := range texts {
		out[i] = content.Child{ID: s, ParentID: "p", Text: s}
	}
	return out
}

func TestGetPutInvalidate(t *testing.T) {
	c := New()

	_, ok := c.Get("p")
	require.False(t, ok)

	c.Put("p", kids("a", "b"))
	got, ok := c.Get("p")
	require.True(t, ok)
	require.Len(t, got, 2)
	require.True(t, c.Loaded("p"))

	c.Invalidate("p")
	_, ok = c.Get("p")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestPutEmptyIsLoaded(t *testing.T) {
	c := New()
	c.Put("p", nil)

	got, ok := c.Get("p")
	require.True(t, ok, "an empty parent is loaded, not missing")
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestValuesAreCopied(t *testing.T) {
	c := New()
	in := kids("a")
	c.Put("p", in)

	in[0].Text = "mutated by caller"
	got, _ := c.Get("p")
	require.Equal(t, "a", got[0].Text)

	got[0].Text = "mutated by reader"
	again, _ := c.Get("p")
	require.Equal(t, "a", again[0].Text)
}

func TestLoad_CachesResult(t *testing.T) {
	c := New()
	var calls int32
	fetch := func(context.Context) ([]content.Child, error) {
		atomic.AddInt32(&calls, 1)
		return kids("a"), nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.Load(context.Background(), "p", fetch)
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoad_ErrorNotCached(t *testing.T) {
	c := New()
	boom := stderrors.New("boom")

	_, err := c.Load(context.Background(), "p", func(context.Context) ([]content.Child, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, c.Loaded("p"))
}

func TestLoad_ConcurrentCallersShareFetch(t *testing.T) {
	c := New()
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int32

	fetch := func(context.Context) ([]content.Child, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return kids("a", "b"), nil
	}

	var wg sync.WaitGroup
	first := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(first)
		_, _ = c.Load(context.Background(), "p", fetch)
	}()
	<-first
	<-started

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Load(context.Background(), "p", fetch)
			if err == nil && len(got) != 2 {
				t.Errorf("len = %d, want 2", len(got))
			}
		}()
	}
	close(release)
	wg.Wait()

	// Late callers either joined the flight or hit the cache.
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoad_StaleFetchDoesNotOverwritePut(t *testing.T) {
	c := New()
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan []content.Child)
	go func() {
		got, _ := c.Load(context.Background(), "p", func(context.Context) ([]content.Child, error) {
			close(started)
			<-release
			return kids("old"), nil
		})
		done <- got
	}()

	<-started
	c.Put("p", kids("new"))
	close(release)

	got := <-done
	require.Equal(t, "new", got[0].Text, "loader sees the newer state")

	cached, ok := c.Get("p")
	require.True(t, ok)
	require.Equal(t, "new", cached[0].Text)
}

func TestLoad_StaleFetchAfterInvalidateIsNotCached(t *testing.T) {
	c := New()
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan struct{})
	go func() {
		_, _ = c.Load(context.Background(), "p", func(context.Context) ([]content.Child, error) {
			close(started)
			<-release
			return kids("old"), nil
		})
		close(done)
	}()

	<-started
	c.Invalidate("p")
	close(release)
	<-done

	require.False(t, c.Loaded("p"), "a fetch that raced an invalidate must not populate the cache")
}

func TestForget(t *testing.T) {
	c := New()
	c.Put("p", kids("a"))
	c.Forget("p")
	require.False(t, c.Loaded("p"))
}
