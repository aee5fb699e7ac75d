package watch

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"modelboard/internal/cluster"
)

// scriptedStream replays a fixed event sequence, then returns finalErr.
// Recv honors the watch context the opener received, mirroring how the
// HTTP stream unblocks when the request context is cancelled.
type scriptedStream struct {
	ctx      context.Context
	events   []cluster.WatchEvent
	finalErr error
	index    int
}

func (s *scriptedStream) Recv() (cluster.WatchEvent, error) {
	if s.index < len(s.events) {
		event := s.events[s.index]
		s.index++
		return event, nil
	}
	if s.finalErr != nil {
		return cluster.WatchEvent{}, s.finalErr
	}
	<-s.ctx.Done()
	return cluster.WatchEvent{}, s.ctx.Err()
}

func (s *scriptedStream) Close() error { return nil }

type scriptedOpener struct {
	mu      sync.Mutex
	scripts []func(ctx context.Context) (cluster.WatchStream, error)
	opens   int
	opened  chan struct{}
}

func (o *scriptedOpener) OpenWatch(ctx context.Context, key Key, timeoutSeconds int) (cluster.WatchStream, error) {
	o.mu.Lock()
	index := o.opens
	o.opens++
	o.mu.Unlock()

	if o.opened != nil {
		select {
		case o.opened <- struct{}{}:
		default:
		}
	}
	if index >= len(o.scripts) {
		index = len(o.scripts) - 1
	}
	return o.scripts[index](ctx)
}

func (o *scriptedOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func TestWatcherForwardsEvents(t *testing.T) {
	opener := &scriptedOpener{
		scripts: []func(ctx context.Context) (cluster.WatchStream, error){
			func(ctx context.Context) (cluster.WatchStream, error) {
				return &scriptedStream{ctx: ctx, events: []cluster.WatchEvent{
					{Type: cluster.EventAdded, Object: cluster.Object{"metadata": map[string]any{"name": "mnist"}}},
					{Type: cluster.EventModified, Object: cluster.Object{"metadata": map[string]any{"name": "mnist"}}},
				}}, nil
			},
		},
	}

	received := make(chan string, 4)
	watcher := NewWatcher(WatcherOptions{
		Key:    NamespaceKey("team-a"),
		Source: opener,
		Callback: func(eventType string, object cluster.Object) {
			received <- eventType
		},
	})

	done := make(chan struct{})
	go func() {
		watcher.Run()
		close(done)
	}()

	for _, want := range []string{cluster.EventAdded, cluster.EventModified} {
		select {
		case got := <-received:
			if got != want {
				t.Fatalf("got event %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	watcher.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestWatcherReconnectsAfterStreamEnd(t *testing.T) {
	opened := make(chan struct{}, 8)
	opener := &scriptedOpener{
		opened: opened,
		scripts: []func(ctx context.Context) (cluster.WatchStream, error){
			func(ctx context.Context) (cluster.WatchStream, error) {
				return &scriptedStream{ctx: ctx, finalErr: io.EOF}, nil
			},
		},
	}

	watcher := NewWatcher(WatcherOptions{
		Key:            NamespaceKey("team-a"),
		Source:         opener,
		Callback:       func(string, cluster.Object) {},
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	})
	defer watcher.Stop()
	go watcher.Run()

	for i := 0; i < 3; i++ {
		select {
		case <-opened:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for stream attempt %d", i+1)
		}
	}
	if opener.openCount() < 3 {
		t.Fatalf("expected at least 3 stream attempts, got %d", opener.openCount())
	}
}

func TestWatcherRetriesFailedOpen(t *testing.T) {
	opened := make(chan struct{}, 8)
	received := make(chan string, 1)
	opener := &scriptedOpener{
		opened: opened,
		scripts: []func(ctx context.Context) (cluster.WatchStream, error){
			func(ctx context.Context) (cluster.WatchStream, error) {
				return nil, errors.New("connection refused")
			},
			func(ctx context.Context) (cluster.WatchStream, error) {
				return &scriptedStream{ctx: ctx, events: []cluster.WatchEvent{
					{Type: cluster.EventAdded},
				}}, nil
			},
		},
	}

	watcher := NewWatcher(WatcherOptions{
		Key:    ObjectKey("team-a", "mnist"),
		Source: opener,
		Callback: func(eventType string, object cluster.Object) {
			received <- eventType
		},
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	})
	defer watcher.Stop()
	go watcher.Run()

	select {
	case got := <-received:
		if got != cluster.EventAdded {
			t.Fatalf("got %q after retry, want ADDED", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event after failed open")
	}
}

func TestWatcherSurvivesCallbackPanic(t *testing.T) {
	received := make(chan string, 2)
	opener := &scriptedOpener{
		scripts: []func(ctx context.Context) (cluster.WatchStream, error){
			func(ctx context.Context) (cluster.WatchStream, error) {
				return &scriptedStream{ctx: ctx, events: []cluster.WatchEvent{
					{Type: cluster.EventAdded},
					{Type: cluster.EventModified},
				}}, nil
			},
		},
	}

	watcher := NewWatcher(WatcherOptions{
		Key:    NamespaceKey("team-a"),
		Source: opener,
		Callback: func(eventType string, object cluster.Object) {
			if eventType == cluster.EventAdded {
				panic("bad subscriber")
			}
			received <- eventType
		},
	})
	defer watcher.Stop()
	go watcher.Run()

	select {
	case got := <-received:
		if got != cluster.EventModified {
			t.Fatalf("got %q, want MODIFIED", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not continue past panicking callback")
	}
}

func TestWatcherStopDuringBackoff(t *testing.T) {
	mock := clock.NewMock()
	opened := make(chan struct{}, 1)
	opener := &scriptedOpener{
		opened: opened,
		scripts: []func(ctx context.Context) (cluster.WatchStream, error){
			func(ctx context.Context) (cluster.WatchStream, error) {
				return nil, errors.New("connection refused")
			},
		},
	}

	watcher := NewWatcher(WatcherOptions{
		Key:      NamespaceKey("team-a"),
		Source:   opener,
		Callback: func(string, cluster.Object) {},
		Clock:    mock,
	})

	done := make(chan struct{})
	go func() {
		watcher.Run()
		close(done)
	}()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("stream open never attempted")
	}

	// The mock clock never advances, so Run is parked in the backoff
	// sleep; Stop must still unwind it.
	watcher.Stop()
	watcher.Stop() // idempotent

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return while sleeping in backoff")
	}
}
