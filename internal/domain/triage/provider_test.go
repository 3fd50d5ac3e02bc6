package triage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/medtriage/triage/internal/platform/apperror"
)

func TestProvider_AcquireLoadsLazily(t *testing.T) {
	dir := t.TempDir()
	p := NewProvider(dir, zerolog.Nop())

	_, err := p.Acquire(context.Background())
	require.Equal(t, apperror.KindServiceUnavailable, apperror.KindOf(err))

	m := writeReferenceArtifact(t, dir, time.Now())
	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, m.Version, a.Version)
	require.Same(t, a, p.Current())
}

func TestProvider_LoadAtStartupTolerantOfMissingArtifact(t *testing.T) {
	p := NewProvider(t.TempDir(), zerolog.Nop())
	p.LoadAtStartup(context.Background())
	require.Nil(t, p.Current())
}

func TestProvider_FailedReloadKeepsPrevious(t *testing.T) {
	p := NewProvider(t.TempDir(), zerolog.Nop())
	prev := &Artifact{Version: "old"}
	p.Set(prev)
	p.load = func(string) (*Artifact, error) { return nil, errors.New("corrupt") }

	_, err := p.Reload(context.Background())
	require.Error(t, err)
	require.Same(t, prev, p.Current())

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, prev, a)
}

func TestProvider_ConcurrentReloadsShareOneLoad(t *testing.T) {
	p := NewProvider(t.TempDir(), zerolog.Nop())
	var loads int32
	release := make(chan struct{})
	p.load = func(string) (*Artifact, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return &Artifact{Version: "v2"}, nil
	}

	var wg sync.WaitGroup
	results := make([]*Artifact, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := p.Acquire(context.Background())
			if err == nil {
				results[i] = a
			}
		}(i)
	}
	// Let the callers pile up on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, atomic.LoadInt32(&loads), int32(2))
	for _, a := range results {
		require.NotNil(t, a)
		require.Equal(t, "v2", a.Version)
	}
}

func TestProvider_RefreshIfChanged(t *testing.T) {
	dir := t.TempDir()
	p := NewProvider(dir, zerolog.Nop())

	_, err := p.RefreshIfChanged(context.Background())
	require.ErrorIs(t, err, ErrArtifactMissing)

	writeReferenceArtifact(t, dir, time.Now())
	changed, err := p.RefreshIfChanged(context.Background())
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = p.RefreshIfChanged(context.Background())
	require.NoError(t, err)
	require.False(t, changed)
}

func TestRefresher_RunOnce(t *testing.T) {
	dir := t.TempDir()
	p := NewProvider(dir, zerolog.Nop())
	r := NewRefresher(p, zerolog.Nop())

	r.RunOnce(context.Background())
	require.Nil(t, p.Current())

	m := writeReferenceArtifact(t, dir, time.Now())
	r.RunOnce(context.Background())
	require.NotNil(t, p.Current())
	require.Equal(t, m.Version, p.Current().Version)
}

func TestRefresher_StartStop(t *testing.T) {
	r := NewRefresher(NewProvider(t.TempDir(), zerolog.Nop()), zerolog.Nop())
	r.Start(context.Background(), "not a cron spec")
	require.NotNil(t, r.cron)
	require.Len(t, r.cron.Entries(), 1)
	r.Stop()
}

func newTestBroadcaster(p *Provider) *Broadcaster {
	return &Broadcaster{provider: p, origin: "self", logger: zerolog.Nop()}
}

func TestBroadcaster_IgnoresOwnNotice(t *testing.T) {
	p := NewProvider(t.TempDir(), zerolog.Nop())
	var loads int32
	p.load = func(string) (*Artifact, error) {
		atomic.AddInt32(&loads, 1)
		return &Artifact{Version: "v2"}, nil
	}
	b := newTestBroadcaster(p)

	b.handle(context.Background(), `{"origin":"self","version":"v2"}`)
	require.Zero(t, atomic.LoadInt32(&loads))
}

func TestBroadcaster_IgnoresCurrentVersion(t *testing.T) {
	p := NewProvider(t.TempDir(), zerolog.Nop())
	p.Set(&Artifact{Version: "v2"})
	var loads int32
	p.load = func(string) (*Artifact, error) {
		atomic.AddInt32(&loads, 1)
		return &Artifact{Version: "v2"}, nil
	}
	b := newTestBroadcaster(p)

	b.handle(context.Background(), `{"origin":"other","version":"v2"}`)
	b.handle(context.Background(), `not json`)
	require.Zero(t, atomic.LoadInt32(&loads))
}

func TestBroadcaster_ReloadsOnForeignNotice(t *testing.T) {
	p := NewProvider(t.TempDir(), zerolog.Nop())
	p.Set(&Artifact{Version: "v1"})
	p.load = func(string) (*Artifact, error) { return &Artifact{Version: "v2"}, nil }
	b := newTestBroadcaster(p)

	ch := make(chan *redis.Message, 1)
	ch <- &redis.Message{Channel: ReloadChannel, Payload: `{"origin":"other","version":"v2"}`}
	close(ch)
	b.consume(context.Background(), ch)

	require.Equal(t, "v2", p.Current().Version)
}

func TestBroadcaster_ListenRetriesSubscribe(t *testing.T) {
	p := NewProvider(t.TempDir(), zerolog.Nop())
	p.Set(&Artifact{Version: "v1"})
	p.load = func(string) (*Artifact, error) { return &Artifact{Version: "v2"}, nil }

	b := newTestBroadcaster(p)
	b.minBackoff, b.maxBackoff = time.Millisecond, 4*time.Millisecond

	var attempts int32
	ch := make(chan *redis.Message, 1)
	b.subscribe = func(context.Context) (<-chan *redis.Message, func() error, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, nil, errors.New("connection refused")
		}
		return ch, func() error { return nil }, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Listen(ctx)
		close(done)
	}()

	ch <- &redis.Message{Channel: ReloadChannel, Payload: `{"origin":"other","version":"v2"}`}
	require.Eventually(t, func() bool { return p.Current().Version == "v2" }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestBroadcaster_ListenStopsWhileBackingOff(t *testing.T) {
	b := newTestBroadcaster(NewProvider(t.TempDir(), zerolog.Nop()))
	b.minBackoff, b.maxBackoff = time.Hour, time.Hour
	b.subscribe = func(context.Context) (<-chan *redis.Message, func() error, error) {
		return nil, nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Listen(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}
